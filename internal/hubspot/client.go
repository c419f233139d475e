package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "firstsync/pkg/logx"
)

const (
	eventsPath = "/marketing/v3/marketing-events/events"
	upsertPath = "/marketing/v3/marketing-events/events/upsert"

	maxPageLimit = 100
)

var ErrNoToken = errors.New("hubspot: no API token available")

// Config configures the client. Token resolution order: TokenFile (trimmed
// file contents), then Token.
type Config struct {
	BaseURL   string
	Token     string
	TokenFile string

	PageLimit  int // list page size, capped at 100
	BatchSize  int // inputs per upsert call
	RatePerSec int // outgoing request throttle; 0 disables
	Timeout    time.Duration
}

// Client is a thin Marketing Events API client.
//
// Every request passes through a shared rate limiter; HubSpot enforces
// per-account request budgets and a burst of parallel syncs must not trip
// them.
type Client struct {
	baseURL   string
	token     string
	pageLimit int
	batchSize int

	hc      *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	token, err := resolveToken(cfg)
	if err != nil {
		return nil, err
	}

	pageLimit := cfg.PageLimit
	if pageLimit <= 0 || pageLimit > maxPageLimit {
		pageLimit = maxPageLimit
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     token,
		pageLimit: pageLimit,
		batchSize: batchSize,
		hc:        &http.Client{Timeout: timeout},
		limiter:   limiter,
		log:       log,
	}, nil
}

func resolveToken(cfg Config) (string, error) {
	if path := strings.TrimSpace(cfg.TokenFile); path != "" {
		b, err := os.ReadFile(path)
		if err == nil {
			if token := strings.TrimSpace(string(b)); token != "" {
				return token, nil
			}
		}
		// Fall through: an inline token may still be configured.
	}
	if token := strings.TrimSpace(cfg.Token); token != "" {
		return token, nil
	}
	return "", ErrNoToken
}

// do issues one authenticated request and decodes a JSON response into out
// (when out is non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("hubspot: rate limiter: %w", err)
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("hubspot: marshal body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("hubspot: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("hubspot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{
			StatusCode:    resp.StatusCode,
			CorrelationID: resp.Header.Get("X-HubSpot-Correlation-Id"),
			Body:          string(b),
		}
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("hubspot: decode response: %w", err)
	}
	return nil
}
