// Package sdnotify reports daemon readiness and liveness to systemd
// via the sd_notify protocol. Everything here is a no-op when the
// process is not running under systemd (no NOTIFY_SOCKET).
package sdnotify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"firstsync/internal/eventbus"
	logx "firstsync/pkg/logx"
)

// notify is swappable for tests.
var notify = daemon.SdNotify

// watchdogInterval is swappable for tests.
var watchdogInterval = daemon.SdWatchdogEnabled

type Service struct {
	log logx.Logger
	bus eventbus.Bus

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	enabled bool
}

func New(bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, bus: bus}
}

// Start sends READY=1 and spawns the watchdog/status loop.
// Idempotent; returns immediately when NOTIFY_SOCKET is absent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return
	}
	sent, err := notify(false, daemon.SdNotifyReady)
	if err != nil {
		s.log.Warn("sd_notify failed", logx.Err(err))
	}
	s.enabled = sent
	if !sent {
		s.mu.Unlock()
		s.log.Debug("systemd notify socket not present")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.log.Info("systemd readiness reported")

	interval, err := watchdogInterval(false)
	if err != nil {
		s.log.Warn("watchdog query failed", logx.Err(err))
		interval = 0
	}

	// Subscribe before the loop starts so events published immediately
	// after Start are not dropped.
	events, unsub := s.bus.Subscribe(16)

	go s.loop(runCtx, done, interval, events, unsub)
}

// Stop sends STOPPING=1 and terminates the background loop.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	enabled := s.enabled
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	if enabled {
		_, _ = notify(false, daemon.SdNotifyStopping)
	}
}

// loop pings the systemd watchdog at half the configured interval and
// mirrors sync outcomes into the unit's status line.
func (s *Service) loop(ctx context.Context, done chan struct{}, watchdog time.Duration, events <-chan eventbus.Event, unsub func()) {
	defer close(done)
	defer unsub()

	var tick <-chan time.Time
	if watchdog > 0 {
		t := time.NewTicker(watchdog / 2)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = notify(false, daemon.SdNotifyWatchdog)
		case ev, ok := <-events:
			if !ok {
				return
			}
			if st := statusFor(ev); st != "" {
				_, _ = notify(false, "STATUS="+st)
			}
		}
	}
}

// statusFor renders a one-line unit status for interesting bus events.
func statusFor(ev eventbus.Event) string {
	switch ev.Type {
	case eventbus.TypeSyncStarted:
		return "sync running"
	case eventbus.TypeSyncFinished:
		type counts interface {
			Summary() string
		}
		if c, ok := ev.Data.(counts); ok {
			return fmt.Sprintf("last sync %s: %s", ev.Time.Format(time.RFC3339), c.Summary())
		}
		return "last sync " + ev.Time.Format(time.RFC3339)
	default:
		return ""
	}
}
