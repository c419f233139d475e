package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"logging": {"level": "debug", "console": true},
		"scheduler": {"enabled": true, "schedule": "0 3 * * *"},
		"hubspot": {"token": "t"},
		"sync": {"organizer": "FIRST in Alabama", "region": "Alabama"}
	}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Scheduler.Enabled {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Sync.Organizer != "FIRST in Alabama" {
		t.Fatalf("organizer = %q", cfg.Sync.Organizer)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get() did not return committed config")
	}
}

func TestParseYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
logging:
  level: info
  console: true
scheduler:
  enabled: true
  schedule: "0 3 * * *"
  timezone: America/Chicago
hubspot:
  token: t
  rate_per_sec: 5
sync:
  organizer: FIRST in Alabama
  region: Alabama
storage:
  driver: file
  path: ./store
`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scheduler.Timezone != "America/Chicago" {
		t.Fatalf("timezone = %q", cfg.Scheduler.Timezone)
	}
	if cfg.HubSpot.RatePerSec != 5 {
		t.Fatalf("rate_per_sec = %d", cfg.HubSpot.RatePerSec)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "config.json", `{"sync": {"organizer": "x"}, "typo_section": {}}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	path := writeConfig(t, "config.json", `{"sync": {"organizer": "x"}} {"more": true}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestSubscribePublish(t *testing.T) {
	path := writeConfig(t, "config.json", `{"sync": {"organizer": "x"}, "hubspot": {"token": "t"}}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	next := &Config{}
	next.Sync.Organizer = "y"
	m.publish(next)

	got := <-sub
	if got.Sync.Organizer != "y" {
		t.Fatalf("published organizer = %q", got.Sync.Organizer)
	}
}
