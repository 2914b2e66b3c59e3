package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kelsos/doc2x-cli/internal/async"
)

// WaitMonitor renders lifecycle updates while an operation runs.
type WaitMonitor struct {
	program *tea.Program
}

func NewWaitMonitor(logFile string) *WaitMonitor {
	return &WaitMonitor{
		program: tea.NewProgram(NewModel(logFile), tea.WithAltScreen()),
	}
}

// Observer forwards wait updates to the program.
func (wm *WaitMonitor) Observer() async.Observer {
	return func(u async.Update) {
		wm.program.Send(WaitUpdate{Update: u})
	}
}

func (wm *WaitMonitor) AddLog(message string) {
	wm.program.Send(LogMessage{Message: message})
}

// Run executes op in the background and blocks until it finishes or the user
// quits, in which case ctx handed to op is canceled.
func (wm *WaitMonitor) Run(ctx context.Context, op func(ctx context.Context, observer async.Observer) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opErr := make(chan error, 1)
	go func() {
		err := op(ctx, wm.Observer())
		opErr <- err
		wm.program.Send(Finished{Err: err})
	}()

	// Run the TUI (blocks until quit)
	if _, err := wm.program.Run(); err != nil {
		cancel()
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	cancel()
	return <-opErr
}
