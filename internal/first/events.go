package first

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	logx "firstsync/pkg/logx"
)

// defaultQuery is used when no query file is configured. Production deploys
// ship a curated query file alongside the binary; the built-in body only
// filters by season.
const defaultQuery = `{
  "query": {
    "bool": {
      "filter": [
        { "terms": { "event_season": [{{.Season}}, {{.PriorSeason}}] } }
      ]
    }
  },
  "sort": [{ "date_start": { "order": "asc" } }]
}`

// EventsClient fetches event documents from the FIRST Elasticsearch index.
type EventsClient struct {
	url       string
	queryFile string
	pageSize  int
	hc        *http.Client
	log       logx.Logger
}

type EventsConfig struct {
	URL       string
	QueryFile string
	PageSize  int
	Timeout   time.Duration
}

func NewEventsClient(cfg EventsConfig, log logx.Logger) *EventsClient {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}
	return &EventsClient{
		url:       cfg.URL,
		queryFile: strings.TrimSpace(cfg.QueryFile),
		pageSize:  pageSize,
		hc:        &http.Client{Timeout: timeout},
		log:       log,
	}
}

// flexString tolerates string, number, and null JSON values; the events
// index is not strict about field types.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if len(s) > 0 && s[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) trimmed() string { return strings.TrimSpace(string(f)) }

// Event is one _source document from the events index.
type Event struct {
	Type       flexString `json:"event_type"`
	Season     flexString `json:"event_season"`
	Code       flexString `json:"event_code"`
	Name       flexString `json:"event_name"`
	DateStart  flexString `json:"date_start"`
	DateEnd    flexString `json:"date_end"`
	Venue      flexString `json:"event_venue"`
	Address1   flexString `json:"event_address1"`
	Address2   flexString `json:"event_address2"`
	City       flexString `json:"event_city"`
	PostalCode flexString `json:"event_postal_code"`

	ExpressVolunteerURL flexString `json:"express_volunteer_url"`
	LegacyVolunteerURL  flexString `json:"dashboard_volunteer_deeplink"`
}

// Identifier is the stable event identity: type + season + code.
// It matches the external ids already stored in HubSpot.
func (e Event) Identifier() string {
	return e.Type.trimmed() + e.Season.trimmed() + e.Code.trimmed()
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source Event `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search returns raw event documents for the given FRC season (the query
// also covers season-1 for programs whose season labels lag a year).
func (c *EventsClient) Search(ctx context.Context, season int) ([]Event, error) {
	body, err := c.renderQuery(season)
	if err != nil {
		return nil, err
	}

	url := c.url + "?size=" + strconv.Itoa(c.pageSize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("events: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("events: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("events: decode: %w", err)
	}

	events := make([]Event, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		events = append(events, h.Source)
	}
	c.log.Debug("events fetched", logx.Int("count", len(events)), logx.Int("season", season))
	return events, nil
}

// renderQuery builds the search body from the configured template file
// (or the built-in default). Templates receive .Season and .PriorSeason.
func (c *EventsClient) renderQuery(season int) ([]byte, error) {
	text := defaultQuery
	if c.queryFile != "" {
		b, err := os.ReadFile(c.queryFile)
		if err != nil {
			return nil, fmt.Errorf("events: read query file: %w", err)
		}
		text = string(b)
	}

	tpl, err := template.New("query").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("events: parse query template: %w", err)
	}
	var buf bytes.Buffer
	err = tpl.Execute(&buf, struct {
		Season      int
		PriorSeason int
	}{Season: season, PriorSeason: season - 1})
	if err != nil {
		return nil, fmt.Errorf("events: render query: %w", err)
	}

	// Fail fast on templates that don't produce valid JSON.
	var js any
	if err := json.Unmarshal(buf.Bytes(), &js); err != nil {
		return nil, fmt.Errorf("events: query template produced invalid JSON: %w", err)
	}
	return buf.Bytes(), nil
}
