package async

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/doc2x-cli/internal/models"
	"github.com/kelsos/doc2x-cli/internal/toolerr"
)

type snap struct {
	status models.TaskStatus
	url    string
}

// fakeClock advances only when the manager sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

func newManager(c *fakeClock) *TaskManager {
	return NewTaskManager(WithClock(c.Now), WithSleeper(c.Sleep))
}

type scripted struct {
	snaps []snap
	errs  []error
	calls int
}

func (s *scripted) poll(_ context.Context, _ string) (snap, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return snap{}, s.errs[i]
	}
	if i >= len(s.snaps) {
		return s.snaps[len(s.snaps)-1], nil
	}
	return s.snaps[i], nil
}

func testKind(s *scripted) Kind[snap] {
	return Kind[snap]{
		Name:   models.KindPDFParse,
		Poll:   s.poll,
		Status: func(v snap) models.TaskStatus { return v.status },
		Failure: func(uid string, _ snap) error {
			return toolerr.WithUID(toolerr.CodeParseFailed, "parse failed", true, uid)
		},
	}
}

func TestWaitPollsUntilSuccess(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := &scripted{snaps: []snap{{status: "processing"}, {status: "processing"}, {status: "success"}}}

	var updates []Update
	got, err := Wait(context.Background(), newManager(clock), testKind(s), "u1", WaitOptions{
		PollInterval: 2 * time.Second,
		MaxWait:      time.Minute,
		Observer:     func(u Update) { updates = append(updates, u) },
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, got.status)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, clock.sleeps)
	require.Len(t, updates, 3)
	assert.True(t, updates[2].Done())
	assert.Equal(t, "u1", updates[0].UID)
}

func TestWaitTimesOut(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := &scripted{snaps: []snap{{status: "processing"}}}

	_, err := Wait(context.Background(), newManager(clock), testKind(s), "u2", WaitOptions{
		PollInterval: time.Second,
		MaxWait:      5 * time.Second,
	})
	te, ok := toolerr.As(err)
	require.True(t, ok)
	assert.Equal(t, toolerr.CodeTimeout, te.Code)
	assert.True(t, te.Retryable)
	assert.Equal(t, "u2", te.UID)
	assert.Equal(t, 6, s.calls)
}

func TestWaitFailedStatus(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := &scripted{snaps: []snap{{status: "processing"}, {status: "failed"}}}

	_, err := Wait(context.Background(), newManager(clock), testKind(s), "u3", WaitOptions{PollInterval: time.Second, MaxWait: time.Minute})
	te, ok := toolerr.As(err)
	require.True(t, ok)
	assert.Equal(t, toolerr.CodeParseFailed, te.Code)
	assert.Equal(t, "u3", te.UID)
	assert.True(t, te.Retryable)
}

func TestWaitRetriesRetryablePollErrors(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	transient := toolerr.New("http_503", "unavailable", true)
	s := &scripted{
		errs:  []error{transient, transient, nil, transient, nil},
		snaps: []snap{{}, {}, {status: "processing"}, {}, {status: "success"}},
	}

	_, err := Wait(context.Background(), newManager(clock), testKind(s), "u4", WaitOptions{PollInterval: 10 * time.Second, MaxWait: time.Hour})
	require.NoError(t, err)
	require.Len(t, clock.sleeps, 4)
	// attempts 0 and 1, then the poll interval, then attempt 0 again after the reset
	assert.Less(t, clock.sleeps[0], time.Second)
	assert.GreaterOrEqual(t, clock.sleeps[1], time.Second)
	assert.Equal(t, 10*time.Second, clock.sleeps[2])
	assert.Less(t, clock.sleeps[3], time.Second)
}

func TestWaitNonRetryablePollErrorPropagates(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	fatal := toolerr.New("http_401", "unauthorized", false)
	s := &scripted{errs: []error{fatal}, snaps: []snap{{}}}

	_, err := Wait(context.Background(), newManager(clock), testKind(s), "u5", WaitOptions{MaxWait: time.Minute})
	assert.Same(t, fatal, err)
	assert.Empty(t, clock.sleeps)
}

func TestWaitKeepsPollingUntilAccepted(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := &scripted{snaps: []snap{
		{status: "success", url: "https://x/convert_tex_1.zip"},
		{status: "success", url: "https://x/convert_md_2.zip"},
	}}
	kind := testKind(s)
	kind.Name = models.KindExport
	kind.Accept = func(v snap) bool { return v.url == "https://x/convert_md_2.zip" }

	got, err := Wait(context.Background(), newManager(clock), kind, "u6", WaitOptions{PollInterval: time.Second, MaxWait: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, "https://x/convert_md_2.zip", got.url)
	assert.Equal(t, 2, s.calls)
}

func TestWaitNeverAcceptedTimesOutWithHint(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := &scripted{snaps: []snap{{status: "success", url: "wrong"}}}
	kind := testKind(s)
	kind.Accept = func(snap) bool { return false }
	kind.TimeoutHint = "run exports sequentially"

	_, err := Wait(context.Background(), newManager(clock), kind, "u7", WaitOptions{PollInterval: time.Second, MaxWait: 3 * time.Second})
	te, ok := toolerr.As(err)
	require.True(t, ok)
	assert.Equal(t, toolerr.CodeTimeout, te.Code)
	assert.Contains(t, te.Message, "run exports sequentially")
}

func TestWaitCanceled(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := &scripted{snaps: []snap{{status: "processing"}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Wait(ctx, newManager(clock), testKind(s), "u8", WaitOptions{MaxWait: time.Minute})
	te, ok := toolerr.As(err)
	require.True(t, ok)
	assert.Equal(t, toolerr.CodeCanceled, te.Code)
	assert.Zero(t, s.calls)
}

func TestWaitRequiresUID(t *testing.T) {
	_, err := Wait(context.Background(), NewTaskManager(), testKind(&scripted{}), "", WaitOptions{})
	te, ok := toolerr.As(err)
	require.True(t, ok)
	assert.Equal(t, toolerr.CodeInvalidArgument, te.Code)
}

func TestActiveTracksInFlightWaits(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	tm := newManager(clock)
	var seen []Update
	s := &scripted{snaps: []snap{{status: "processing"}, {status: "success"}}}

	kind := testKind(s)
	kind.Progress = func(snap) int { return 40 }
	_, err := Wait(context.Background(), tm, kind, "u9", WaitOptions{
		PollInterval: time.Second,
		MaxWait:      time.Minute,
		Observer: func(Update) {
			seen = append(seen, tm.Active()...)
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, seen)
	assert.Equal(t, "u9", seen[0].UID)
	assert.Equal(t, 40, seen[0].Progress)
	assert.Empty(t, tm.Active())
}
