package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kelsos/doc2x-cli/internal/assemble"
	"github.com/kelsos/doc2x-cli/internal/async"
	"github.com/kelsos/doc2x-cli/internal/config"
	"github.com/kelsos/doc2x-cli/internal/logger"
	"github.com/kelsos/doc2x-cli/internal/metrics"
	"github.com/kelsos/doc2x-cli/internal/models"
	"github.com/kelsos/doc2x-cli/internal/services"
	"github.com/kelsos/doc2x-cli/internal/storage"
	"github.com/kelsos/doc2x-cli/internal/toolerr"
	"github.com/kelsos/doc2x-cli/internal/tui"
	"github.com/kelsos/doc2x-cli/internal/utils"
)

// errReported means the failure payload was already printed.
var errReported = errors.New("error reported")

type operation func(ctx context.Context, observer async.Observer) (interface{}, error)

type app struct {
	configPath  string
	apiKey      string
	debug       bool
	useTUI      bool
	metricsFile string
	output      string

	cfg     *config.Config
	engine  *services.Engine
	logFile string
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	logger.Init(a.debug)
	utils.LoadEnvironment()

	cfg := config.NewConfig()
	if a.configPath != "" {
		if err := cfg.LoadFile(a.configPath); err != nil {
			return a.fail(cmd, toolerr.InvalidArgument("%v", err))
		}
	}
	if err := cfg.LoadFromEnvironment(); err != nil {
		return a.fail(cmd, toolerr.InvalidArgument("%v", err))
	}
	if a.apiKey != "" {
		cfg.SetAPIKey(a.apiKey, config.KeySourceFlag)
	}
	if err := cfg.Validate(); err != nil {
		return a.fail(cmd, toolerr.InvalidArgument("%v", err))
	}

	if a.useTUI {
		logDir, err := storage.GetLogDir(cfg.LogDir)
		if err != nil {
			return a.fail(cmd, err)
		}
		if a.logFile, err = logger.InitFileOnly(logDir, a.debug); err != nil {
			return a.fail(cmd, err)
		}
	}

	a.cfg = cfg
	a.engine = services.NewEngine(cfg, services.EngineOptions{})
	logger.Debug("Using %s (api key from %s)", cfg.BaseURL, cfg.APIKeySource)
	return nil
}

func (a *app) teardown(*cobra.Command, []string) {
	logger.Close()
}

// run executes op with interrupt handling, the optional TUI and the final
// metrics dump, then prints the result or the error payload.
func (a *app) run(cmd *cobra.Command, op operation) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			for _, u := range a.engine.Tasks().Active() {
				logger.Warn("Interrupted while waiting on %s task %s (status %q, %s elapsed)", u.Kind, u.UID, u.Status, u.Elapsed.Truncate(time.Millisecond))
			}
		case <-finished:
		}
	}()

	var (
		result interface{}
		err    error
	)
	if a.useTUI {
		monitor := tui.NewWaitMonitor(a.logFile)
		err = monitor.Run(ctx, func(ctx context.Context, observer async.Observer) error {
			var opErr error
			result, opErr = op(ctx, observer)
			return opErr
		})
	} else {
		result, err = op(ctx, logObserver)
	}

	if a.metricsFile != "" {
		if mErr := metrics.WriteFile(a.metricsFile); mErr != nil {
			logger.Warn("Failed to write metrics to %s: %v", a.metricsFile, mErr)
		}
	}

	if err != nil {
		return a.fail(cmd, err)
	}
	return a.emit(cmd, result)
}

func logObserver(u async.Update) {
	if u.Err != nil {
		logger.Warn("Polling %s task %s failed (retry %d): %v", u.Kind, u.UID, u.Attempt, u.Err)
		return
	}
	logger.Debug("%s task %s: %s %d%% after %s", u.Kind, u.UID, u.Status, u.Progress, u.Elapsed.Truncate(time.Millisecond))
}

// savedOutput is printed instead of the text when --output is used.
type savedOutput struct {
	OutputPath string      `json:"output_path"`
	Result     interface{} `json:"result"`
}

func (a *app) emit(cmd *cobra.Command, result interface{}) error {
	if a.output != "" {
		if text, ok := textOf(result); ok {
			path, err := storage.WriteText(a.output, text)
			if err != nil {
				return a.fail(cmd, err)
			}
			logger.Info("Wrote %s", path)
			result = savedOutput{OutputPath: path, Result: withoutText(result)}
		}
	}
	return writeJSON(cmd.OutOrStdout(), result)
}

func textOf(result interface{}) (string, bool) {
	switch r := result.(type) {
	case *models.TextResult:
		return r.Text, true
	case assemble.Merged:
		return r.Text, true
	case *services.ImageSyncOutput:
		return r.Text, true
	}
	return "", false
}

func withoutText(result interface{}) interface{} {
	switch r := result.(type) {
	case *models.TextResult:
		c := *r
		c.Text = ""
		return &c
	case assemble.Merged:
		r.Text = ""
		return r
	case *services.ImageSyncOutput:
		c := *r
		c.Text = ""
		return &c
	}
	return result
}

func (a *app) fail(cmd *cobra.Command, err error) error {
	te := toolerr.From(err)
	logger.Debug("Command failed: %v", te)
	if wErr := writeJSON(cmd.OutOrStdout(), te.ToPayload()); wErr != nil {
		logger.Error("Failed to print error: %v", wErr)
	}
	return errReported
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "doc2x",
		Short: "A CLI client for the Doc2x document parsing service",
		Long: `doc2x submits PDFs and images to Doc2x, waits for the remote tasks to finish,
exports parsed documents and downloads the results. Results are printed as JSON.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: a.teardown,
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (yaml, json or toml) with the DOC2X_* keys in lowercase")
	rootCmd.PersistentFlags().StringVar(&a.apiKey, "api-key", "", "Doc2x API key (overrides DOC2X_API_KEY)")
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&a.useTUI, "tui", false, "Show a live task monitor; logs go to a file")
	rootCmd.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when the command finishes")
	rootCmd.PersistentFlags().StringVarP(&a.output, "output", "o", "", "Write text results to this file instead of stdout")

	rootCmd.AddCommand(
		newPDFCmd(a),
		newImageCmd(a),
		newExportCmd(a),
		newDownloadCmd(a),
		newMaterializeCmd(a),
		newMergeCmd(a),
		newConfigCmd(a),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
