package config

import (
	"bytes"
	"encoding/json"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Scheduler controls when the sync job fires.
	Scheduler SchedulerConfig `json:"scheduler"`

	// Seasons is the FIRST seasons lookup API.
	Seasons SeasonsConfig `json:"seasons"`

	// Events is the FIRST Elasticsearch events index.
	Events EventsConfig `json:"events"`

	HubSpot HubSpotConfig `json:"hubspot"`

	Sync SyncConfig `json:"sync"`

	Storage *StorageConfig `json:"storage,omitempty"`

	Pprof PprofConfig `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// SchedulerConfig controls the trigger/execution layer.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - schedule: "0 3 * * *"
//   - workers: 1
//   - queue_size: 8
//   - default_timeout: "10m"
//   - history_size: 50
//   - retry_max: 0 (a failed sync waits for the next trigger)
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"` // IANA TZ, e.g. "America/Chicago"

	// RunOnStart fires one sync immediately after startup in addition to
	// the regular schedule.
	RunOnStart bool `json:"run_on_start,omitempty"`

	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
}

type SeasonsConfig struct {
	URL     string `json:"url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

// EventsConfig describes the Elasticsearch events search.
//
// QueryFile points at a text/template file producing the search body;
// the template receives .Season and .PriorSeason (ints). When empty, a
// built-in default query is used.
type EventsConfig struct {
	URL       string `json:"url,omitempty"`
	QueryFile string `json:"query_file,omitempty"`
	PageSize  int    `json:"page_size,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
}

// HubSpotConfig configures the Marketing Events API client.
//
// Token resolution order: TokenFile (trimmed file contents), then Token.
// TokenFile defaults to the Docker secrets path used in production.
type HubSpotConfig struct {
	BaseURL   string `json:"base_url,omitempty"`
	Token     string `json:"token,omitempty"`
	TokenFile string `json:"token_file,omitempty"`

	// PageLimit is the page size for listing marketing events (max 100).
	PageLimit int `json:"page_limit,omitempty"`

	// BatchSize caps inputs per batch upsert call.
	BatchSize int `json:"batch_size,omitempty"`

	// RatePerSec throttles outgoing API calls.
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

type SyncConfig struct {
	// Organizer is stamped on newly created marketing events
	// (e.g. "FIRST in Alabama").
	Organizer string `json:"organizer"`

	// Region is the state/region appended to event locations.
	Region string `json:"region,omitempty"`

	// SkipUnchanged drops events whose payload hash matches the stored
	// hash from the previous run. Requires storage.
	SkipUnchanged bool `json:"skip_unchanged,omitempty"`

	// DryRun logs the create/update plan without writing to HubSpot.
	DryRun bool `json:"dry_run,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./firstsync_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

// Clone returns a deep copy via JSON round-trip.
// Config is plain data, so this is safe and keeps the code simple.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var cp Config
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&cp); err != nil {
		return nil
	}
	return &cp
}
