package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/doc2x-cli/internal/async"
	"github.com/kelsos/doc2x-cli/internal/models"
)

func apply(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func TestModelTracksTaskLifecycle(t *testing.T) {
	m := NewModel("")

	m = apply(t, m, WaitUpdate{Update: async.Update{Kind: models.KindPDFParse, UID: "u1", Status: models.TaskStatusProcessing, Progress: 40, Elapsed: time.Second}})
	m = apply(t, m, WaitUpdate{Update: async.Update{Kind: models.KindExport, UID: "u2", Status: models.TaskStatusProcessing}})
	m = apply(t, m, WaitUpdate{Update: async.Update{Kind: models.KindPDFParse, UID: "u1", Status: models.TaskStatusSuccess, Progress: 100}})

	tasks := m.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "u1", tasks[0].UID)
	assert.Equal(t, models.TaskStatusSuccess, tasks[0].Status)
	assert.Equal(t, 100, tasks[0].Progress)
	assert.Equal(t, models.KindExport, tasks[1].Kind)
	assert.Equal(t, 1, m.successCount)
	assert.Len(t, m.logs, 1)
}

func TestModelRecordsPollErrorsWithoutChangingStatus(t *testing.T) {
	m := NewModel("")
	m = apply(t, m, WaitUpdate{Update: async.Update{Kind: models.KindPDFParse, UID: "u1", Status: models.TaskStatusProcessing, Progress: 10}})
	m = apply(t, m, WaitUpdate{Update: async.Update{Kind: models.KindPDFParse, UID: "u1", Attempt: 2, Err: errors.New("http_503")}})

	task := m.Tasks()[0]
	assert.Equal(t, models.TaskStatusProcessing, task.Status)
	assert.Equal(t, 10, task.Progress)
	assert.Equal(t, 2, task.Retries)
	assert.Error(t, task.Error)
	assert.Contains(t, m.View(), "http_503")
}

func TestModelFailedCountedOnce(t *testing.T) {
	m := NewModel("")
	for i := 0; i < 3; i++ {
		m = apply(t, m, WaitUpdate{Update: async.Update{Kind: models.KindImageLayoutParse, UID: "img", Status: models.TaskStatusFailed}})
	}
	assert.Equal(t, 1, m.errorCount)
}

func TestLogRingKeepsTen(t *testing.T) {
	m := NewModel("")
	for i := 0; i < 15; i++ {
		m = apply(t, m, LogMessage{Message: "line"})
	}
	assert.Len(t, m.logs, 10)
}

func TestFinishedAndQuit(t *testing.T) {
	m := NewModel("/tmp/doc2x.log")
	view := m.View()
	assert.Contains(t, view, "Doc2x Task Monitor")
	assert.Contains(t, view, "/tmp/doc2x.log")

	done := apply(t, m, Finished{Err: errors.New("boom")})
	assert.True(t, done.done)
	assert.EqualError(t, done.result, "boom")

	quit := apply(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Equal(t, "Shutting down...\n", quit.View())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
