package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "firstsync/pkg/logx"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func newTestService(cfg Config) *Service {
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	cfg.Enabled = true
	return New(cfg, logx.Nop(), nil)
}

func TestAddValidation(t *testing.T) {
	t.Parallel()
	s := newTestService(Config{})

	if err := s.Add(Job{Name: "", Spec: "1m", Run: func(context.Context) error { return nil }}); err == nil {
		t.Fatal("expected error for empty name")
	}
	if err := s.Add(Job{Name: "x", Spec: "1m"}); err == nil {
		t.Fatal("expected error for nil run func")
	}
	if err := s.Add(Job{Name: "x", Spec: "garbage spec here too long", Run: func(context.Context) error { return nil }}); err == nil {
		t.Fatal("expected error for bad spec")
	}

	ok := Job{Name: "x", Spec: "1m", Run: func(context.Context) error { return nil }}
	if err := s.Add(ok); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(ok); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestAddRejectsUnparseableCron(t *testing.T) {
	t.Parallel()
	s := newTestService(Config{})

	run := func(context.Context) error { return nil }
	for _, spec := range []string{"bad cron spec here x", "@neverish", "cron:* * *"} {
		if err := s.Add(Job{Name: "sync", Spec: spec, Run: run}); err == nil {
			t.Fatalf("Add accepted unparseable spec %q", spec)
		}
	}
	// Nothing registered: the daemon must not start with a dead schedule.
	if jobs := s.Snapshot().Jobs; len(jobs) != 0 {
		t.Fatalf("rejected specs left registrations behind: %+v", jobs)
	}
}

func TestRunNowExecutesJob(t *testing.T) {
	t.Parallel()
	s := newTestService(Config{HistorySize: 10})

	var runs atomic.Int32
	err := s.Add(Job{
		Name: "sync",
		Spec: "@daily",
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.RunNow("sync"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning before Start, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	if err := s.RunNow("sync"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return len(s.Snapshot().History) == 1 })
	if runs.Load() != 1 {
		t.Fatalf("runs = %d, want 1", runs.Load())
	}

	snap := s.Snapshot()
	if snap.History[0].Error != "" {
		t.Fatalf("unexpected run error: %s", snap.History[0].Error)
	}

	if err := s.RunNow("nope"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob, got %v", err)
	}
}

func TestOverlapSkip(t *testing.T) {
	t.Parallel()
	s := newTestService(Config{Workers: 2})

	release := make(chan struct{})
	started := make(chan struct{})
	err := s.Add(Job{
		Name: "slow",
		Spec: "@daily",
		Run: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	if err := s.RunNow("slow"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	<-started

	// Second trigger while running must be skipped.
	if err := s.RunNow("slow"); err == nil {
		t.Fatal("expected overlap skip error")
	}
	if got := s.Snapshot().Dropped; got != 1 {
		t.Fatalf("Dropped = %d, want 1", got)
	}
	close(release)
}

func TestRetryThenSuccess(t *testing.T) {
	t.Parallel()
	s := newTestService(Config{RetryMax: 2})

	var attempts atomic.Int32
	err := s.Add(Job{
		Name: "flaky",
		Spec: "@daily",
		Run: func(ctx context.Context) error {
			if attempts.Add(1) < 2 {
				return errors.New("transient")
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	if err := s.RunNow("flaky"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	// First retry backoff is ~2s.
	waitFor(t, 10*time.Second, func() bool { return len(s.Snapshot().History) == 1 })
	if attempts.Load() != 2 {
		t.Fatalf("attempts = %d, want 2", attempts.Load())
	}

	snap := s.Snapshot()
	if len(snap.History) != 1 || snap.History[0].Attempts != 2 || snap.History[0].Error != "" {
		t.Fatalf("unexpected history: %+v", snap.History)
	}
}

func TestNoRetryError(t *testing.T) {
	t.Parallel()
	s := newTestService(Config{RetryMax: 3})

	var attempts atomic.Int32
	err := s.Add(Job{
		Name: "fatal",
		Spec: "@daily",
		Run: func(ctx context.Context) error {
			attempts.Add(1)
			return NoRetry(errors.New("bad config"))
		},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	if err := s.RunNow("fatal"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		h := s.Snapshot().History
		return len(h) == 1
	})
	if attempts.Load() != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry)", attempts.Load())
	}
	if got := s.Snapshot().History[0].Error; got != "bad config" {
		t.Fatalf("history error = %q", got)
	}
}
