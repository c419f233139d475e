package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Defaults for omitted fields. Applied by the app at mapping time, kept
// here so validation and mapping agree.
const (
	DefaultSchedule    = "0 3 * * *"
	DefaultSeasonsURL  = "https://my.firstinspires.org/usfirstapi/seasons/search"
	DefaultEventsURL   = "https://es02.firstinspires.org/events/_search"
	DefaultTokenFile   = "/run/secrets/HUBSPOT_API_TOKEN"
	DefaultHubSpotURL  = "https://api.hubapi.com"
	DefaultEventsSize  = 200
	DefaultPageLimit   = 100
	DefaultBatchSize   = 100
	DefaultHTTPTimeout = 30 * time.Second
)

// Validate checks field-level constraints and that referenced files such as
// events.query_file are readable. It is installed as the Manager's validator
// so bad reloads are rejected before being published.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Scheduler.Workers < 0 {
		return fmt.Errorf("scheduler.workers must be >= 0")
	}
	if cfg.Scheduler.QueueSize < 0 {
		return fmt.Errorf("scheduler.queue_size must be >= 0")
	}
	if cfg.Scheduler.HistorySize < 0 {
		return fmt.Errorf("scheduler.history_size must be >= 0")
	}
	if cfg.Scheduler.RetryMax < 0 {
		return fmt.Errorf("scheduler.retry_max must be >= 0")
	}
	if _, err := ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout); err != nil {
		return err
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}

	if _, err := ParseDurationField("seasons.timeout", cfg.Seasons.Timeout); err != nil {
		return err
	}
	if cfg.Events.PageSize < 0 {
		return fmt.Errorf("events.page_size must be >= 0")
	}
	if _, err := ParseDurationField("events.timeout", cfg.Events.Timeout); err != nil {
		return err
	}
	if qf := strings.TrimSpace(cfg.Events.QueryFile); qf != "" {
		f, err := os.Open(qf)
		if err != nil {
			return fmt.Errorf("events.query_file: %w", err)
		}
		_ = f.Close()
	}

	if strings.TrimSpace(cfg.HubSpot.Token) == "" && strings.TrimSpace(cfg.HubSpot.TokenFile) == "" {
		// Token file has a production default; an explicitly blanked config
		// would leave the client unusable.
		return fmt.Errorf("hubspot: token or token_file required")
	}
	if cfg.HubSpot.PageLimit < 0 || cfg.HubSpot.PageLimit > 100 {
		return fmt.Errorf("hubspot.page_limit must be in [0,100]")
	}
	if cfg.HubSpot.BatchSize < 0 {
		return fmt.Errorf("hubspot.batch_size must be >= 0")
	}
	if cfg.HubSpot.RatePerSec < 0 {
		return fmt.Errorf("hubspot.rate_per_sec must be >= 0")
	}
	if _, err := ParseDurationField("hubspot.timeout", cfg.HubSpot.Timeout); err != nil {
		return err
	}

	if strings.TrimSpace(cfg.Sync.Organizer) == "" {
		return fmt.Errorf("sync.organizer is required")
	}

	if cfg.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}

	return nil
}

// ApplyDefaults fills omitted fields in place. Token/token_file defaulting
// happens here so Validate sees the final values.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.Scheduler.Schedule) == "" {
		cfg.Scheduler.Schedule = DefaultSchedule
	}
	if strings.TrimSpace(cfg.Seasons.URL) == "" {
		cfg.Seasons.URL = DefaultSeasonsURL
	}
	if strings.TrimSpace(cfg.Events.URL) == "" {
		cfg.Events.URL = DefaultEventsURL
	}
	if cfg.Events.PageSize == 0 {
		cfg.Events.PageSize = DefaultEventsSize
	}
	if strings.TrimSpace(cfg.HubSpot.BaseURL) == "" {
		cfg.HubSpot.BaseURL = DefaultHubSpotURL
	}
	if strings.TrimSpace(cfg.HubSpot.Token) == "" && strings.TrimSpace(cfg.HubSpot.TokenFile) == "" {
		cfg.HubSpot.TokenFile = DefaultTokenFile
	}
	if cfg.HubSpot.PageLimit == 0 {
		cfg.HubSpot.PageLimit = DefaultPageLimit
	}
	if cfg.HubSpot.BatchSize == 0 {
		cfg.HubSpot.BatchSize = DefaultBatchSize
	}
}
