package first

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	logx "firstsync/pkg/logx"
)

func TestCurrentSeasons(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[
			{"ProgramCode":"FRC","SeasonYearStart":2026,"IsCurrentSeason":true},
			{"ProgramCode":"FTC","SeasonYearStart":"2025","IsCurrentSeason":true},
			{"ProgramCode":"FRC","SeasonYearStart":2025,"IsCurrentSeason":false},
			{"ProgramCode":"","SeasonYearStart":2026,"IsCurrentSeason":true}
		]`)
	}))
	defer srv.Close()

	c := NewSeasonsClient(SeasonsConfig{URL: srv.URL}, logx.Nop())
	seasons, err := c.CurrentSeasons(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(seasons) != 2 {
		t.Fatalf("got %d seasons, want 2: %v", len(seasons), seasons)
	}
	if seasons["FRC"] != 2026 || seasons["FTC"] != 2025 {
		t.Fatalf("seasons = %v", seasons)
	}

	year, err := FRCSeason(seasons)
	if err != nil || year != 2026 {
		t.Fatalf("FRCSeason = %d, %v", year, err)
	}
}

func TestCurrentSeasonsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"ProgramCode":"FRC","SeasonYearStart":2026,"IsCurrentSeason":false}]`)
	}))
	defer srv.Close()

	c := NewSeasonsClient(SeasonsConfig{URL: srv.URL}, logx.Nop())
	if _, err := c.CurrentSeasons(context.Background()); err == nil {
		t.Fatal("expected error for empty current seasons")
	}
}

func TestCurrentSeasonsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewSeasonsClient(SeasonsConfig{URL: srv.URL}, logx.Nop())
	if _, err := c.CurrentSeasons(context.Background()); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestSearch(t *testing.T) {
	var gotSize string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSize = r.URL.Query().Get("size")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("body decode: %v", err)
		}
		io.WriteString(w, `{"hits":{"hits":[
			{"_source":{"event_type":"FRC","event_season":2026,"event_code":"ALHU","event_name":"Rocket City Regional"}},
			{"_source":{"event_type":"FTC","event_season":"2025","event_code":"ALQ1","event_name":null}}
		]}}`)
	}))
	defer srv.Close()

	c := NewEventsClient(EventsConfig{URL: srv.URL, PageSize: 150}, logx.Nop())
	events, err := c.Search(context.Background(), 2026)
	if err != nil {
		t.Fatal(err)
	}
	if gotSize != "150" {
		t.Fatalf("size = %q, want 150", gotSize)
	}
	if gotBody == nil {
		t.Fatal("no request body seen")
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	// Numeric and string season values both land as strings.
	if events[0].Season != "2026" || events[1].Season != "2025" {
		t.Fatalf("seasons = %q, %q", events[0].Season, events[1].Season)
	}
	if events[1].Name != "" {
		t.Fatalf("null name = %q, want empty", events[1].Name)
	}
}

func TestRenderQueryDefault(t *testing.T) {
	c := NewEventsClient(EventsConfig{URL: "http://unused"}, logx.Nop())
	body, err := c.renderQuery(2026)
	if err != nil {
		t.Fatal(err)
	}
	var q map[string]any
	if err := json.Unmarshal(body, &q); err != nil {
		t.Fatalf("default query is not JSON: %v", err)
	}
}

func TestRenderQueryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "query.json.tmpl")
	tmpl := `{"query":{"terms":{"event_season":[{{.Season}},{{.PriorSeason}}]}}}`
	if err := os.WriteFile(path, []byte(tmpl), 0o600); err != nil {
		t.Fatal(err)
	}

	c := NewEventsClient(EventsConfig{URL: "http://unused", QueryFile: path}, logx.Nop())
	body, err := c.renderQuery(2026)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"query":{"terms":{"event_season":[2026,2025]}}}`
	if string(body) != want {
		t.Fatalf("body = %s, want %s", body, want)
	}
}

func TestRenderQueryInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "query.json.tmpl")
	if err := os.WriteFile(path, []byte(`{{.Season}} not json`), 0o600); err != nil {
		t.Fatal(err)
	}

	c := NewEventsClient(EventsConfig{URL: "http://unused", QueryFile: path}, logx.Nop())
	if _, err := c.renderQuery(2026); err == nil {
		t.Fatal("expected error for non-JSON template output")
	}
}
