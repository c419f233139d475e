package config

import (
	"strings"

	logx "firstsync/pkg/logx"
)

// SummarizeChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like tokens).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.schedule", strings.TrimSpace(newCfg.Scheduler.Schedule)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	if oldCfg.Seasons != newCfg.Seasons || oldCfg.Events != newCfg.Events {
		changed = append(changed, "first")
		attrs = append(attrs,
			logx.String("events.query_file", strings.TrimSpace(newCfg.Events.QueryFile)),
			logx.Int("events.page_size", newCfg.Events.PageSize),
		)
	}

	// HubSpot (never log token)
	if oldCfg.HubSpot != newCfg.HubSpot {
		changed = append(changed, "hubspot")
		attrs = append(attrs,
			logx.Bool("hubspot.token_set", strings.TrimSpace(newCfg.HubSpot.Token) != ""),
			logx.String("hubspot.token_file", strings.TrimSpace(newCfg.HubSpot.TokenFile)),
			logx.Int("hubspot.rate_per_sec", newCfg.HubSpot.RatePerSec),
		)
	}

	if oldCfg.Sync != newCfg.Sync {
		changed = append(changed, "sync")
		attrs = append(attrs,
			logx.String("sync.organizer", newCfg.Sync.Organizer),
			logx.Bool("sync.dry_run", newCfg.Sync.DryRun),
			logx.Bool("sync.skip_unchanged", newCfg.Sync.SkipUnchanged),
		)
	}

	oldStore := StorageConfig{}
	if oldCfg.Storage != nil {
		oldStore = *oldCfg.Storage
	}
	newStore := StorageConfig{}
	if newCfg.Storage != nil {
		newStore = *newCfg.Storage
	}
	if oldStore != newStore {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newStore.Driver))
	}

	if oldCfg.Pprof != newCfg.Pprof {
		changed = append(changed, "pprof")
		attrs = append(attrs, logx.Bool("pprof.enabled", newCfg.Pprof.Enabled))
	}

	return changed, attrs
}
