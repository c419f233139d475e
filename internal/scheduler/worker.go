package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"time"

	"firstsync/internal/eventbus"
	logx "firstsync/pkg/logx"
)

const (
	retryBase     = 2 * time.Second
	retryMaxDelay = 2 * time.Minute
	retryJitter   = 0.2
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue chan task, idx int) {
	// Per-worker RNG: avoids global lock contention when tasks retry concurrently.
	seed := time.Now().UnixNano() ^ (int64(idx) << 32)
	rng := rand.New(rand.NewSource(seed))

	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t, ok := <-queue:
			if !ok {
				return
			}
			s.execOne(ctx, t, rng)
		}
	}
}

func (s *Service) execOne(ctx context.Context, t task, rng *rand.Rand) {
	def := t.def
	start := time.Now()
	queueDelay := time.Duration(0)
	if !t.enqueuedAt.IsZero() {
		queueDelay = start.Sub(t.enqueuedAt)
		if queueDelay < 0 {
			queueDelay = 0
		}
	}

	if def.job.Overlap == OverlapSkip {
		defer def.running.Store(false)
	}

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	timeout := def.job.Timeout
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout
	}
	retries := cfg.RetryMax
	if def.job.RetryMax != nil {
		retries = *def.job.RetryMax
	}
	if retries < 0 {
		retries = 0
	}

	s.log.Debug("job started",
		logx.String("job", def.job.Name),
		logx.Duration("queue_delay", queueDelay))

	var err error
	attempts := 0
	maxAttempts := 1 + retries
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt

		runCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		// Guard against job panics: convert to error so one bad run can't
		// kill the worker.
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
					s.log.Error("job panic",
						logx.String("job", def.job.Name),
						logx.Any("panic", r),
						logx.Stack(string(debug.Stack())))
				}
			}()
			err = def.job.Run(runCtx)
		}()
		if cancel != nil {
			cancel()
		}
		if err == nil {
			break
		}
		var nr noRetryError
		if errors.As(err, &nr) {
			err = nr.err
			break
		}
		if ctx.Err() != nil || attempt == maxAttempts {
			break
		}

		delay := backoffDelay(attempt, rng)
		s.log.Warn("job failed; retrying",
			logx.String("job", def.job.Name),
			logx.Int("attempt", attempt),
			logx.Duration("backoff", delay),
			logx.Err(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	took := time.Since(start)
	item := HistoryItem{
		Name:       def.job.Name,
		Started:    start,
		QueueDelay: queueDelay,
		Duration:   took,
		Attempts:   attempts,
	}
	if err != nil {
		item.Error = err.Error()
		s.log.Error("job finished with error",
			logx.String("job", def.job.Name),
			logx.Int("attempts", attempts),
			logx.Duration("took", took),
			logx.Err(err))
	} else {
		s.log.Info("job finished",
			logx.String("job", def.job.Name),
			logx.Int("attempts", attempts),
			logx.Duration("took", took))
	}
	s.appendHistory(item)

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "job.finished", Time: time.Now(), Data: item})
	}
}

func (s *Service) appendHistory(item HistoryItem) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()
	if size <= 0 {
		size = 50
	}
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

// backoffDelay is exponential with +/- jitter, capped at retryMaxDelay.
func backoffDelay(attempt int, rng *rand.Rand) time.Duration {
	d := retryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= retryMaxDelay {
			d = retryMaxDelay
			break
		}
	}
	if retryJitter > 0 {
		j := 1 + retryJitter*(2*rng.Float64()-1)
		d = time.Duration(float64(d) * j)
	}
	if d < 0 {
		d = retryBase
	}
	return d
}
