package app

import (
	"strings"
	"time"

	"firstsync/internal/config"
	"firstsync/internal/first"
	"firstsync/internal/hubspot"
	"firstsync/internal/observability/pprof"
	"firstsync/internal/scheduler"
	"firstsync/internal/storage"
	"firstsync/internal/syncer"
)

// Mapping helpers translate the file config into per-service configs.
// Defaults here must agree with config.ApplyDefaults / config.Validate.

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	workers := cfg.Scheduler.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.Scheduler.QueueSize
	if queueSize <= 0 {
		queueSize = 8
	}
	historySize := cfg.Scheduler.HistorySize
	if historySize <= 0 {
		historySize = 50
	}

	defTimeout, err := config.ParseDurationOrDefault(
		"scheduler.default_timeout", cfg.Scheduler.DefaultTimeout, 10*time.Minute)
	if err != nil {
		return scheduler.Config{}, err
	}

	return scheduler.Config{
		Enabled:        cfg.Scheduler.Enabled,
		Workers:        workers,
		QueueSize:      queueSize,
		DefaultTimeout: defTimeout,
		HistorySize:    historySize,
		Timezone:       cfg.Scheduler.Timezone,
		RetryMax:       cfg.Scheduler.RetryMax,
	}, nil
}

func mapSeasonsConfig(cfg *config.Config) (first.SeasonsConfig, error) {
	timeout, err := config.ParseDurationOrDefault(
		"seasons.timeout", cfg.Seasons.Timeout, config.DefaultHTTPTimeout)
	if err != nil {
		return first.SeasonsConfig{}, err
	}
	return first.SeasonsConfig{
		URL:     cfg.Seasons.URL,
		Timeout: timeout,
	}, nil
}

func mapEventsConfig(cfg *config.Config) (first.EventsConfig, error) {
	timeout, err := config.ParseDurationOrDefault(
		"events.timeout", cfg.Events.Timeout, config.DefaultHTTPTimeout)
	if err != nil {
		return first.EventsConfig{}, err
	}
	return first.EventsConfig{
		URL:       cfg.Events.URL,
		QueryFile: cfg.Events.QueryFile,
		PageSize:  cfg.Events.PageSize,
		Timeout:   timeout,
	}, nil
}

func mapHubSpotConfig(cfg *config.Config) (hubspot.Config, error) {
	timeout, err := config.ParseDurationOrDefault(
		"hubspot.timeout", cfg.HubSpot.Timeout, config.DefaultHTTPTimeout)
	if err != nil {
		return hubspot.Config{}, err
	}
	return hubspot.Config{
		BaseURL:    cfg.HubSpot.BaseURL,
		Token:      cfg.HubSpot.Token,
		TokenFile:  cfg.HubSpot.TokenFile,
		PageLimit:  cfg.HubSpot.PageLimit,
		BatchSize:  cfg.HubSpot.BatchSize,
		RatePerSec: cfg.HubSpot.RatePerSec,
		Timeout:    timeout,
	}, nil
}

func mapSyncConfig(cfg *config.Config) syncer.Config {
	return syncer.Config{
		Organizer:     cfg.Sync.Organizer,
		Region:        cfg.Sync.Region,
		SkipUnchanged: cfg.Sync.SkipUnchanged,
		DryRun:        cfg.Sync.DryRun,
	}
}

// mapStorageConfig returns (config, enabled, error). A nil storage section
// or driver "none" disables persistence.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, true, nil
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{
		Enabled:       cfg.Pprof.Enabled,
		Addr:          cfg.Pprof.Addr,
		Prefix:        cfg.Pprof.Prefix,
		Token:         cfg.Pprof.Token,
		AllowInsecure: cfg.Pprof.AllowInsecure,
	}
}
