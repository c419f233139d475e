// Package syncer runs one FIRST -> HubSpot synchronization pass: resolve the
// current FRC season, fetch the season's events, diff them against the
// marketing events HubSpot already knows, and batch-upsert the result.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"firstsync/internal/eventbus"
	"firstsync/internal/first"
	"firstsync/internal/hubspot"
	"firstsync/internal/storage"
	logx "firstsync/pkg/logx"
)

// SeasonSource resolves current season years per program.
type SeasonSource interface {
	CurrentSeasons(ctx context.Context) (map[string]int, error)
}

// EventSource fetches raw event documents for a season.
type EventSource interface {
	Search(ctx context.Context, season int) ([]first.Event, error)
}

// MarketingEventAPI is the slice of the HubSpot client the syncer needs.
type MarketingEventAPI interface {
	ListAll(ctx context.Context) ([]hubspot.MarketingEvent, error)
	BatchUpsert(ctx context.Context, inputs []hubspot.MarketingEventInput) error
}

// Config controls one sync pass.
type Config struct {
	Organizer     string
	Region        string
	SkipUnchanged bool
	DryRun        bool
}

// Result summarizes a finished run.
type Result struct {
	RunID   string
	Season  int
	Fetched int
	Created int
	Updated int
	Skipped int
	DryRun  bool
	Took    time.Duration
}

// Summary renders the counts as a short human-readable line.
func (r Result) Summary() string {
	return fmt.Sprintf("season %d: %d fetched, %d created, %d updated, %d skipped",
		r.Season, r.Fetched, r.Created, r.Updated, r.Skipped)
}

type Service struct {
	mu  sync.Mutex
	cfg Config

	seasons SeasonSource
	events  EventSource
	hub     MarketingEventAPI
	store   storage.Store // may be nil
	bus     eventbus.Bus  // may be nil
	log     logx.Logger
}

func New(cfg Config, seasons SeasonSource, events EventSource, hub MarketingEventAPI,
	store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		seasons: seasons,
		events:  events,
		hub:     hub,
		store:   store,
		bus:     bus,
		log:     log,
	}
}

// Apply swaps the sync options. Safe while a run is in flight; the running
// pass keeps the options it started with.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Run performs one full sync pass. Errors from the season/event/list phases
// abort the run before any write.
func (s *Service) Run(ctx context.Context) error {
	_, err := s.RunResult(ctx)
	return err
}

// RunResult is Run with the run summary exposed (used by -once and tests).
func (s *Service) RunResult(ctx context.Context) (Result, error) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	start := time.Now()
	res := Result{RunID: uuid.NewString(), DryRun: cfg.DryRun}
	log := s.log.With(logx.String("run", res.RunID))
	log.Info("sync started", logx.Bool("dry_run", cfg.DryRun))
	s.publish(eventbus.TypeSyncStarted, res)

	err := s.run(ctx, cfg, log, &res)
	res.Took = time.Since(start)

	s.recordRun(ctx, res, err, log)
	s.publish(eventbus.TypeSyncFinished, res)
	if err != nil {
		log.Error("sync failed", logx.Duration("took", res.Took), logx.Err(err))
		return res, err
	}
	log.Info("sync complete",
		logx.Int("season", res.Season),
		logx.Int("fetched", res.Fetched),
		logx.Int("created", res.Created),
		logx.Int("updated", res.Updated),
		logx.Int("skipped", res.Skipped),
		logx.Duration("took", res.Took))
	return res, nil
}

func (s *Service) run(ctx context.Context, cfg Config, log logx.Logger, res *Result) error {
	seasons, err := s.seasons.CurrentSeasons(ctx)
	if err != nil {
		return fmt.Errorf("fetch current seasons: %w", err)
	}
	season, err := first.FRCSeason(seasons)
	if err != nil {
		return err
	}
	res.Season = season

	raw, err := s.events.Search(ctx, season)
	if err != nil {
		return fmt.Errorf("fetch events for season %d: %w", season, err)
	}
	candidates := first.BuildMarketingEvents(raw, cfg.Organizer, cfg.Region, log)
	res.Fetched = len(candidates)

	existing, err := s.hub.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list known events: %w", err)
	}

	updates, creates := splitPlan(candidates, existing, season, log)

	batch := make([]hubspot.MarketingEventInput, 0, len(updates)+len(creates))
	batch = append(batch, updates...)
	batch = append(batch, creates...)

	if cfg.SkipUnchanged && s.store != nil {
		batch, res.Skipped = s.dropUnchanged(ctx, batch, log)
	}

	// Counts reflect the batch actually sent.
	res.Updated = 0
	res.Created = 0
	updateIDs := make(map[string]struct{}, len(updates))
	for _, u := range updates {
		updateIDs[u.ExternalEventID] = struct{}{}
	}
	for _, in := range batch {
		if _, ok := updateIDs[in.ExternalEventID]; ok {
			res.Updated++
		} else {
			res.Created++
		}
	}

	if len(batch) == 0 {
		log.Info("nothing to upsert", logx.Int("season", season))
		return nil
	}

	if cfg.DryRun {
		log.Info("dry run; skipping upsert",
			logx.Int("updates", res.Updated), logx.Int("creates", res.Created))
		return nil
	}

	if err := s.hub.BatchUpsert(ctx, batch); err != nil {
		return err
	}

	if s.store != nil {
		for _, in := range batch {
			if err := s.store.PutEventHash(ctx, in.ExternalEventID, payloadHash(in)); err != nil {
				log.Warn("event hash not persisted",
					logx.String("event", in.ExternalEventID), logx.Err(err))
			}
		}
	}
	return nil
}

// dropUnchanged removes payloads whose hash matches the stored hash from a
// previous successful upsert.
func (s *Service) dropUnchanged(ctx context.Context, batch []hubspot.MarketingEventInput, log logx.Logger) ([]hubspot.MarketingEventInput, int) {
	kept := batch[:0]
	skipped := 0
	for _, in := range batch {
		prev, ok, err := s.store.GetEventHash(ctx, in.ExternalEventID)
		if err == nil && ok && prev == payloadHash(in) {
			skipped++
			continue
		}
		kept = append(kept, in)
	}
	if skipped > 0 {
		log.Debug("unchanged events skipped", logx.Int("count", skipped))
	}
	return kept, skipped
}

func (s *Service) recordRun(ctx context.Context, res Result, runErr error, log logx.Logger) {
	if s.store == nil {
		return
	}
	entry := storage.RunEntry{
		ID:      res.RunID,
		At:      time.Now(),
		Season:  res.Season,
		Fetched: res.Fetched,
		Created: res.Created,
		Updated: res.Updated,
		Skipped: res.Skipped,
		DryRun:  res.DryRun,
		TookMS:  res.Took.Milliseconds(),
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if err := s.store.AppendRun(ctx, entry); err != nil {
		log.Warn("run entry not persisted", logx.Err(err))
	}
}

func (s *Service) publish(typ string, res Result) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: res})
}

// payloadHash is a stable content hash of an upsert payload.
func payloadHash(in hubspot.MarketingEventInput) uint64 {
	b, err := json.Marshal(in)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
