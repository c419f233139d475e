package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"firstsync/internal/eventbus"
	logx "firstsync/pkg/logx"
)

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		bus: bus,
		// Shared with ParseSchedule: SecondOptional allows both 5-field
		// and 6-field (with seconds) cron specs.
		parser: cronParser,
		defs:   map[string]*jobDef{},
	}
}

// Enabled reports the current config flag. (Thread-safe; Apply() may run concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Add registers a job. Safe before or after Start.
func (s *Service) Add(job Job) error {
	if strings.TrimSpace(job.Name) == "" {
		return fmt.Errorf("job name required")
	}
	if job.Run == nil {
		return fmt.Errorf("job %q: run func required", job.Name)
	}
	if _, err := ParseSchedule(job.Spec); err != nil {
		return fmt.Errorf("job %q: %w", job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.defs[job.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, job.Name)
	}
	def := &jobDef{job: job}
	s.defs[job.Name] = def
	s.order = append(s.order, job.Name)
	if s.c != nil {
		if err := s.addCronLocked(def); err != nil {
			delete(s.defs, job.Name)
			s.order = s.order[:len(s.order)-1]
			return err
		}
	}
	return nil
}

// Remove unregisters a job by name.
func (s *Service) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defs[name]
	if !ok {
		return
	}
	if s.c != nil && def.entryID != 0 {
		s.c.Remove(def.entryID)
	}
	delete(s.defs, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Apply updates the config. A timezone change restarts cron with the new
// location and re-registers definitions.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if s.c == nil {
		return
	}
	if oldTZ != newTZ {
		s.restartCronLocked()
	}
}

// Start starts cron triggering and the worker pool. Idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	cur := s.cfg
	s.log.Debug("start requested",
		logx.Bool("enabled", cur.Enabled),
		logx.Int("workers", cur.Workers),
		logx.String("tz", strings.TrimSpace(cur.Timezone)))

	workers := cur.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cur.QueueSize
	if queueSize <= 0 {
		queueSize = 8
	}

	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	// Fresh queue per run to avoid executing stale enqueued tasks after a stop/start toggle.
	s.queue = make(chan task, queueSize)

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	for _, name := range s.order {
		if def := s.defs[name]; def != nil {
			if err := s.addCronLocked(def); err != nil {
				s.log.Error("schedule registration failed", logx.String("job", name), logx.Err(err))
			}
		}
	}

	// Local captures prevent races if fields are swapped/nilled during Stop().
	runCtx := s.runCtx
	stopCh := s.stopCh
	queue := s.queue

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in scheduler worker",
						logx.Int("worker", idx), logx.Any("panic", r),
						logx.Stack(string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, queue, idx)
		}()
	}
	s.c.Start()
	s.log.Info("scheduler started",
		logx.Int("workers", workers),
		logx.String("tz", loc.String()),
		logx.Int("jobs", len(s.defs)))
}

// Stop stops triggering and waits (bounded by ctx) for in-flight runs.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	stopCh := s.stopCh
	s.c = nil
	s.runCancel = nil
	s.runCtx = nil
	s.stopCh = nil
	s.queue = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	s.log.Info("scheduler stop requested")

	// Prevent new enqueues, then signal workers.
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
	close(stopCh)
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; workers draining in background")
	}
}

// RunNow enqueues one immediate run of a registered job.
func (s *Service) RunNow(name string) error {
	s.mu.Lock()
	def, ok := s.defs[name]
	queue := s.queue
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if queue == nil {
		return ErrNotRunning
	}
	return s.enqueue(def, queue)
}

func (s *Service) addCronLocked(def *jobDef) error {
	spec, err := ParseSchedule(def.job.Spec)
	if err != nil {
		return err
	}
	expr := spec.Cron
	if spec.Kind == SpecInterval {
		expr = "@every " + spec.Every.String()
	}
	queue := s.queue
	id, err := s.c.AddFunc(expr, func() {
		if !s.Enabled() {
			return
		}
		if err := s.enqueue(def, queue); err != nil {
			s.log.Warn("trigger dropped",
				logx.String("job", def.job.Name), logx.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("job %q: %w", def.job.Name, err)
	}
	def.entryID = id
	return nil
}

func (s *Service) enqueue(def *jobDef, queue chan task) error {
	if def.job.Overlap == OverlapSkip {
		if !def.running.CompareAndSwap(false, true) {
			s.dropped.Add(1)
			return fmt.Errorf("job %q still running (overlap skip)", def.job.Name)
		}
	}
	select {
	case queue <- task{def: def, enqueuedAt: time.Now()}:
		return nil
	default:
		if def.job.Overlap == OverlapSkip {
			def.running.Store(false)
		}
		s.dropped.Add(1)
		return ErrQueueFull
	}
}

func (s *Service) restartCronLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for _, name := range s.order {
		if def := s.defs[name]; def != nil {
			if err := s.addCronLocked(def); err != nil {
				s.log.Error("schedule re-registration failed", logx.String("job", name), logx.Err(err))
			}
		}
	}
	s.c.Start()
	s.log.Info("scheduler restarted", logx.String("tz", loc.String()))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to local",
			logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Snapshot returns a point-in-time view for logs/debug endpoints.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Timezone: s.cfg.Timezone,
		Workers:  s.cfg.Workers,
		Dropped:  s.dropped.Load(),
	}
	if s.queue != nil {
		snap.QueueLen = len(s.queue)
		snap.QueueCap = cap(s.queue)
	}
	for _, name := range s.order {
		def := s.defs[name]
		if def == nil {
			continue
		}
		info := JobInfo{
			Name:    def.job.Name,
			Spec:    def.job.Spec,
			Timeout: def.job.Timeout,
			Running: def.running.Load(),
		}
		if s.c != nil && def.entryID != 0 {
			e := s.c.Entry(def.entryID)
			info.Next = e.Next
			info.Prev = e.Prev
		}
		snap.Jobs = append(snap.Jobs, info)
	}
	s.mu.Unlock()

	s.hmu.Lock()
	snap.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return snap
}
