package first

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	logx "firstsync/pkg/logx"
)

// ProgramFRC is the program code whose season anchors a sync run.
const ProgramFRC = "FRC"

// SeasonsClient resolves the current season year per FIRST program.
type SeasonsClient struct {
	url string
	hc  *http.Client
	log logx.Logger
}

type SeasonsConfig struct {
	URL     string
	Timeout time.Duration
}

func NewSeasonsClient(cfg SeasonsConfig, log logx.Logger) *SeasonsClient {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SeasonsClient{
		url: cfg.URL,
		hc:  &http.Client{Timeout: timeout},
		log: log,
	}
}

// seasonRow mirrors one entry of the seasons search response. SeasonYearStart
// arrives as either a number or a numeric string depending on the backend.
type seasonRow struct {
	ProgramCode     string      `json:"ProgramCode"`
	SeasonYearStart json.Number `json:"SeasonYearStart"`
	IsCurrentSeason bool        `json:"IsCurrentSeason"`
}

// CurrentSeasons returns ProgramCode -> SeasonYearStart for every program
// marked as current.
func (c *SeasonsClient) CurrentSeasons(ctx context.Context) (map[string]int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("seasons: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("seasons: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("seasons: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rows []seasonRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("seasons: decode: %w", err)
	}

	seasons := make(map[string]int, len(rows))
	for _, r := range rows {
		if !r.IsCurrentSeason {
			continue
		}
		code := strings.TrimSpace(r.ProgramCode)
		if code == "" {
			continue
		}
		year, err := strconv.Atoi(strings.TrimSpace(r.SeasonYearStart.String()))
		if err != nil {
			c.log.Warn("season year unparseable; skipping program",
				logx.String("program", code),
				logx.String("raw", r.SeasonYearStart.String()))
			continue
		}
		seasons[code] = year
	}
	if len(seasons) == 0 {
		return nil, fmt.Errorf("seasons: no current seasons in response")
	}
	return seasons, nil
}

// FRCSeason extracts the FRC season year from a CurrentSeasons result.
func FRCSeason(seasons map[string]int) (int, error) {
	year, ok := seasons[ProgramFRC]
	if !ok {
		return 0, fmt.Errorf("seasons: no current %s season", ProgramFRC)
	}
	return year, nil
}
