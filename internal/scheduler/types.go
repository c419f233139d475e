package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"firstsync/internal/eventbus"
	logx "firstsync/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Enabled        bool
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
	HistorySize    int
	Timezone       string // IANA TZ, e.g. "America/Chicago"
	RetryMax       int
}

// OverlapPolicy decides what happens when a trigger fires while the same
// job is still running.
type OverlapPolicy int

const (
	// OverlapSkip drops the trigger (default; classic cron behavior for
	// long-running jobs guarded by a lock).
	OverlapSkip OverlapPolicy = iota
	// OverlapAllow enqueues regardless.
	OverlapAllow
)

// JobFunc is one run of a scheduled job.
type JobFunc func(ctx context.Context) error

// Job describes a schedulable unit.
type Job struct {
	Name     string
	Spec     string // cron spec, "@every ...", duration, or HH:MM
	Timeout  time.Duration
	RetryMax *int // nil = service default
	Overlap  OverlapPolicy
	Run      JobFunc
}

// HistoryItem is one completed (or dropped) run.
type HistoryItem struct {
	Name       string
	Started    time.Time
	QueueDelay time.Duration
	Duration   time.Duration
	Attempts   int
	Error      string
}

// JobInfo is a point-in-time view of a registered job.
type JobInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
	Running bool
}

// Snapshot is a point-in-time view of the service (for logs/debug).
type Snapshot struct {
	Enabled  bool
	Timezone string
	Workers  int
	QueueLen int
	QueueCap int
	Dropped  uint64
	Jobs     []JobInfo
	History  []HistoryItem
}

var (
	ErrNotRunning  = errors.New("scheduler not running")
	ErrQueueFull   = errors.New("scheduler queue full")
	ErrUnknownJob  = errors.New("unknown job")
	ErrDuplicateID = errors.New("job already registered")
)

// noRetryError marks a failure as non-retryable.
type noRetryError struct{ err error }

func (e noRetryError) Error() string { return e.err.Error() }
func (e noRetryError) Unwrap() error { return e.err }

// NoRetry wraps err so the worker won't retry the run.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

type jobDef struct {
	job     Job
	entryID cron.EntryID
	running atomic.Bool
}

type task struct {
	def        *jobDef
	enqueuedAt time.Time
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   map[string]*jobDef
	order  []string // registration order, for stable snapshots

	queue     chan task
	stopCh    chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	dropped atomic.Uint64

	hmu     sync.Mutex
	history []HistoryItem
}
