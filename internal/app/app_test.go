package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeAppConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunOnceHonorsDefaultTimeout(t *testing.T) {
	// A seasons endpoint that never answers. The single-shot pass must be
	// cut off by scheduler.default_timeout, same as a scheduled run.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	cfgPath := writeAppConfig(t, fmt.Sprintf(`
logging:
  level: error
  console: true
scheduler:
  default_timeout: 100ms
seasons:
  url: %s
events:
  url: %s
hubspot:
  token: test-token
sync:
  organizer: FIRST in Alabama
`, srv.URL, srv.URL))

	a, err := NewApp(cfgPath)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := a.RunOnce(context.Background()); err == nil {
		t.Fatal("expected the pass to fail once the timeout fires")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("RunOnce returned after %v, default timeout not applied", elapsed)
	}
}
