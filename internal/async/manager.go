package async

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kelsos/doc2x-cli/internal/backoff"
	"github.com/kelsos/doc2x-cli/internal/logger"
	"github.com/kelsos/doc2x-cli/internal/metrics"
	"github.com/kelsos/doc2x-cli/internal/models"
	"github.com/kelsos/doc2x-cli/internal/toolerr"
)

// TaskManager runs wait loops and keeps the latest update of every wait in
// flight.
type TaskManager struct {
	backoff     *backoff.Policy
	sleep       backoff.Sleeper
	now         func() time.Time
	activeTasks map[string]Update
	mu          sync.RWMutex
}

// Option customizes a TaskManager.
type Option func(*TaskManager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(tm *TaskManager) { tm.now = now }
}

// WithSleeper replaces the sleep used between polls.
func WithSleeper(s backoff.Sleeper) Option {
	return func(tm *TaskManager) { tm.sleep = s }
}

// WithBackoff replaces the poll-retry delay policy.
func WithBackoff(p *backoff.Policy) Option {
	return func(tm *TaskManager) { tm.backoff = p }
}

func NewTaskManager(opts ...Option) *TaskManager {
	tm := &TaskManager{
		backoff:     backoff.New(),
		sleep:       backoff.Sleep,
		now:         time.Now,
		activeTasks: make(map[string]Update),
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// Active returns the last update of every wait still running, ordered by uid.
func (tm *TaskManager) Active() []Update {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	out := make([]Update, 0, len(tm.activeTasks))
	for _, u := range tm.activeTasks {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func (tm *TaskManager) track(u Update) {
	tm.mu.Lock()
	tm.activeTasks[u.UID] = u
	tm.mu.Unlock()
}

func (tm *TaskManager) forget(uid string) {
	tm.mu.Lock()
	delete(tm.activeTasks, uid)
	tm.mu.Unlock()
}

// Wait polls uid until it reaches an accepted success, fails, or exceeds
// opts.MaxWait. Retryable poll errors are retried with backoff on a counter
// private to this call, reset by every successful poll.
func Wait[S any](ctx context.Context, tm *TaskManager, kind Kind[S], uid string, opts WaitOptions) (S, error) {
	var zero S
	if uid == "" {
		return zero, toolerr.InvalidArgument("uid is required")
	}

	start := tm.now()
	tm.track(Update{Kind: kind.Name, UID: uid})
	defer tm.forget(uid)

	finish := func(outcome string) {
		metrics.TaskOutcomesTotal.WithLabelValues(string(kind.Name), outcome).Inc()
		metrics.WaitDuration.WithLabelValues(string(kind.Name)).Observe(tm.now().Sub(start).Seconds())
	}

	notify := func(u Update) {
		u.Kind = kind.Name
		u.UID = uid
		u.Elapsed = tm.now().Sub(start)
		tm.track(u)
		if opts.Observer != nil {
			opts.Observer(u)
		}
	}

	pollAttempt := 0
	for {
		if err := ctx.Err(); err != nil {
			finish("error")
			return zero, toolerr.FromContext(err)
		}

		if elapsed := tm.now().Sub(start); elapsed > opts.MaxWait {
			finish("timeout")
			msg := fmt.Sprintf("wait timeout after %dms", opts.MaxWait.Milliseconds())
			if kind.TimeoutHint != "" {
				msg += " (hint: " + kind.TimeoutHint + ")"
			}
			return zero, toolerr.WithUID(toolerr.CodeTimeout, msg, true, uid)
		}

		snapshot, err := kind.Poll(ctx, uid)
		if err != nil {
			if !toolerr.IsRetryable(err) || ctx.Err() != nil {
				finish("error")
				return zero, err
			}
			notify(Update{Attempt: pollAttempt + 1, Err: err})
			delay := tm.backoff.Delay(pollAttempt)
			pollAttempt++
			metrics.RetriesTotal.WithLabelValues("poll").Inc()
			logger.Debug("Polling %s %s failed, retrying in %v: %v", kind.Name, uid, delay, err)
			if err := tm.sleep(ctx, delay); err != nil {
				finish("error")
				return zero, toolerr.FromContext(err)
			}
			continue
		}
		pollAttempt = 0

		status := kind.Status(snapshot)
		u := Update{Status: status}
		if kind.Progress != nil {
			u.Progress = kind.Progress(snapshot)
		}
		notify(u)

		switch status {
		case models.TaskStatusSuccess:
			if kind.Accept == nil || kind.Accept(snapshot) {
				finish("success")
				logger.Debug("Task %s %s completed in %v", kind.Name, uid, tm.now().Sub(start))
				return snapshot, nil
			}
			logger.Debug("Task %s %s reported success without an acceptable result yet", kind.Name, uid)
		case models.TaskStatusFailed:
			finish("failed")
			return zero, kind.Failure(uid, snapshot)
		}

		if err := tm.sleep(ctx, opts.PollInterval); err != nil {
			finish("error")
			return zero, toolerr.FromContext(err)
		}
	}
}
