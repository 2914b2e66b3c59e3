package async

import (
	"context"
	"time"

	"github.com/kelsos/doc2x-cli/internal/models"
)

// Kind describes how to poll and interpret one kind of remote task.
// Progress and Accept are optional; a nil Accept accepts every success.
type Kind[S any] struct {
	Name     models.TaskKind
	Poll     func(ctx context.Context, uid string) (S, error)
	Status   func(S) models.TaskStatus
	Progress func(S) int
	Accept   func(S) bool
	Failure  func(uid string, snapshot S) error
	// TimeoutHint is appended to the timeout message.
	TimeoutHint string
}

// Update is reported to observers after every poll.
type Update struct {
	Kind     models.TaskKind
	UID      string
	Status   models.TaskStatus
	Progress int
	Attempt  int
	Elapsed  time.Duration
	Err      error
}

// Done reports whether the update carries a terminal status.
func (u Update) Done() bool {
	return u.Err == nil && u.Status.IsTerminal()
}

// Observer receives wait progress; it must not block.
type Observer func(Update)

// WaitOptions bounds a single wait.
type WaitOptions struct {
	PollInterval time.Duration
	MaxWait      time.Duration
	Observer     Observer
}
