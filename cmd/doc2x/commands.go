package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kelsos/doc2x-cli/internal/assemble"
	"github.com/kelsos/doc2x-cli/internal/async"
	"github.com/kelsos/doc2x-cli/internal/config"
	"github.com/kelsos/doc2x-cli/internal/models"
	"github.com/kelsos/doc2x-cli/internal/services"
	"github.com/kelsos/doc2x-cli/internal/toolerr"
)

// waitFlags are shared by every wait subcommand.
type waitFlags struct {
	pollInterval string
	maxWait      string
}

func (w *waitFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&w.pollInterval, "poll-interval", "", "Delay between status polls (e.g. 2000, 2s)")
	cmd.Flags().StringVar(&w.maxWait, "max-wait", "", "Give up after this long (e.g. 600000, 10m)")
}

func (w *waitFlags) durations() (time.Duration, time.Duration, error) {
	poll, err := optionalDuration("poll-interval", w.pollInterval)
	if err != nil {
		return 0, 0, err
	}
	maxWait, err := optionalDuration("max-wait", w.maxWait)
	if err != nil {
		return 0, 0, err
	}
	return poll, maxWait, nil
}

func optionalDuration(name, raw string) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	d, err := config.ParseDuration(raw, time.Millisecond)
	if err != nil {
		return 0, toolerr.InvalidArgument("--%s: %v", name, err)
	}
	return d, nil
}

// changedInt returns a pointer to v only when the flag was given.
func changedInt(cmd *cobra.Command, name string, v int) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func changedString(cmd *cobra.Command, name, v string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func changedBool(cmd *cobra.Command, name string, v bool) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func newPDFCmd(a *app) *cobra.Command {
	pdfCmd := &cobra.Command{
		Use:   "pdf",
		Short: "Parse PDF files",
	}

	var submit services.PDFSubmitRequest
	var model string
	registerSubmit := func(cmd *cobra.Command) {
		cmd.Flags().StringVarP(&model, "model", "m", "", "Parse model (v2 or v3-2026)")
		cmd.Flags().StringVar(&submit.IdempotencyKey, "idempotency-key", "", "Reuse the task submitted under this key")
	}

	submitCmd := &cobra.Command{
		Use:   "submit <file.pdf>",
		Short: "Upload a PDF and start a parse task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, _ async.Observer) (interface{}, error) {
				req := submit
				req.Path = args[0]
				req.Model = models.ParseModel(model)
				return a.engine.SubmitPDF(ctx, req)
			})
		},
	}
	registerSubmit(submitCmd)

	statusCmd := &cobra.Command{
		Use:   "status <uid>",
		Short: "Fetch the status of a parse task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, _ async.Observer) (interface{}, error) {
				return a.engine.PDFStatus(ctx, args[0])
			})
		},
	}

	var (
		wf        waitFlags
		uid       string
		file      string
		separator string
		maxChars  int
		maxPages  int
	)
	waitCmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait for a parse task and print the merged markdown",
		Long: `Wait for the parse task given by --uid, or submit --file first (reusing the
previous task for an unchanged file) and wait for it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			poll, maxWait, err := wf.durations()
			if err != nil {
				return a.fail(cmd, err)
			}
			return a.run(cmd, func(ctx context.Context, observer async.Observer) (interface{}, error) {
				req := services.PDFWaitRequest{
					UID:          uid,
					Submit:       submit,
					PollInterval: poll,
					MaxWait:      maxWait,
					Separator:    changedString(cmd, "separator", separator),
					MaxChars:     changedInt(cmd, "max-chars", maxChars),
					MaxPages:     changedInt(cmd, "max-pages", maxPages),
					Observer:     observer,
				}
				req.Submit.Path = file
				req.Submit.Model = models.ParseModel(model)
				return a.engine.WaitPDFText(ctx, req)
			})
		},
	}
	registerSubmit(waitCmd)
	wf.register(waitCmd)
	waitCmd.Flags().StringVar(&uid, "uid", "", "Task uid")
	waitCmd.Flags().StringVarP(&file, "file", "f", "", "PDF to submit when no uid is given")
	waitCmd.Flags().StringVar(&separator, "separator", assemble.DefaultSeparator, "Text placed between pages")
	waitCmd.Flags().IntVar(&maxChars, "max-chars", 0, "Truncate after this many characters (0 = unlimited)")
	waitCmd.Flags().IntVar(&maxPages, "max-pages", 0, "Truncate after this many pages (0 = unlimited)")

	pdfCmd.AddCommand(submitCmd, statusCmd, waitCmd)
	return pdfCmd
}

func newImageCmd(a *app) *cobra.Command {
	imageCmd := &cobra.Command{
		Use:   "image",
		Short: "Parse image layouts",
	}

	submitCmd := &cobra.Command{
		Use:   "submit <image>",
		Short: "Start an asynchronous layout parse",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, _ async.Observer) (interface{}, error) {
				return a.engine.SubmitImage(ctx, args[0])
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status <uid>",
		Short: "Fetch the status of a layout parse task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, _ async.Observer) (interface{}, error) {
				return a.engine.ImageStatus(ctx, args[0])
			})
		},
	}

	syncCmd := &cobra.Command{
		Use:   "sync <image>",
		Short: "Parse an image layout synchronously",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, _ async.Observer) (interface{}, error) {
				return a.engine.ParseImageSync(ctx, args[0])
			})
		},
	}

	var (
		wf   waitFlags
		uid  string
		file string
		sync bool
	)
	waitCmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait for a layout parse and print the first page's markdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			poll, maxWait, err := wf.durations()
			if err != nil {
				return a.fail(cmd, err)
			}
			return a.run(cmd, func(ctx context.Context, observer async.Observer) (interface{}, error) {
				return a.engine.WaitImageText(ctx, services.ImageWaitRequest{
					UID:          uid,
					Path:         file,
					Sync:         sync,
					PollInterval: poll,
					MaxWait:      maxWait,
					Observer:     observer,
				})
			})
		},
	}
	wf.register(waitCmd)
	waitCmd.Flags().StringVar(&uid, "uid", "", "Task uid")
	waitCmd.Flags().StringVarP(&file, "file", "f", "", "Image to submit when no uid is given")
	waitCmd.Flags().BoolVar(&sync, "sync", false, "Use the synchronous endpoint instead of a task")

	imageCmd.AddCommand(submitCmd, statusCmd, syncCmd, waitCmd)
	return imageCmd
}

// exportFlags binds the export parameters shared by submit and wait.
type exportFlags struct {
	uid          string
	to           string
	formulaMode  string
	formulaLevel int
	filename     string
	filenameMode string
	mergeForms   bool
}

func (f *exportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.uid, "uid", "", "Parse task uid")
	cmd.Flags().StringVar(&f.to, "to", "", "Target format: md, tex or docx")
	cmd.Flags().StringVar(&f.formulaMode, "formula-mode", "", "Formula mode: normal or dollar")
	cmd.Flags().IntVar(&f.formulaLevel, "formula-level", 0, "Formula degradation level (0, 1 or 2)")
	cmd.Flags().StringVar(&f.filename, "filename", "", "Output filename")
	cmd.Flags().StringVar(&f.filenameMode, "filename-mode", string(models.FilenameAuto), "auto strips the target extension, raw keeps the basename")
	cmd.Flags().BoolVar(&f.mergeForms, "merge-cross-page-forms", false, "Merge tables split across pages")
}

func (f *exportFlags) request(cmd *cobra.Command) services.ExportRequest {
	return services.ExportRequest{
		UID:                 f.uid,
		To:                  models.ExportFormat(f.to),
		FormulaMode:         models.FormulaMode(f.formulaMode),
		FormulaLevel:        changedInt(cmd, "formula-level", f.formulaLevel),
		Filename:            changedString(cmd, "filename", f.filename),
		FilenameMode:        models.FilenameMode(f.filenameMode),
		MergeCrossPageForms: changedBool(cmd, "merge-cross-page-forms", f.mergeForms),
	}
}

func newExportCmd(a *app) *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Convert parsed documents to md, tex or docx",
	}

	var submitFlags exportFlags
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Start an export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := submitFlags.request(cmd)
			return a.run(cmd, func(ctx context.Context, _ async.Observer) (interface{}, error) {
				return a.engine.SubmitExport(ctx, req)
			})
		},
	}
	submitFlags.register(submitCmd)

	resultCmd := &cobra.Command{
		Use:   "result <uid>",
		Short: "Fetch the export status and download url",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, _ async.Observer) (interface{}, error) {
				return a.engine.ExportResult(ctx, args[0])
			})
		},
	}

	var (
		waitExport exportFlags
		wf         waitFlags
	)
	waitCmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait for an export, submitting it first when --formula-mode is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			poll, maxWait, err := wf.durations()
			if err != nil {
				return a.fail(cmd, err)
			}
			req := waitExport.request(cmd)
			return a.run(cmd, func(ctx context.Context, observer async.Observer) (interface{}, error) {
				return a.engine.WaitExport(ctx, services.ExportWaitRequest{
					ExportRequest: req,
					PollInterval:  poll,
					MaxWait:       maxWait,
					Observer:      observer,
				})
			})
		},
	}
	waitExport.register(waitCmd)
	wf.register(waitCmd)

	exportCmd.AddCommand(submitCmd, resultCmd, waitCmd)
	return exportCmd
}

func newDownloadCmd(a *app) *cobra.Command {
	var url, outputPath string
	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Download an export result to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, _ async.Observer) (interface{}, error) {
				return a.engine.Download(ctx, url, outputPath)
			})
		},
	}
	downloadCmd.Flags().StringVar(&url, "url", "", "Result url (must match the download allowlist)")
	downloadCmd.Flags().StringVar(&outputPath, "to", "", "Destination file")
	return downloadCmd
}

func newMaterializeCmd(a *app) *cobra.Command {
	var zipFile, outputDir string
	materializeCmd := &cobra.Command{
		Use:   "materialize",
		Short: "Unpack a base64 convert_zip into a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readInput(cmd, zipFile)
			if err != nil {
				return a.fail(cmd, err)
			}
			return a.run(cmd, func(context.Context, async.Observer) (interface{}, error) {
				return a.engine.MaterializeZip(string(data), outputDir)
			})
		},
	}
	materializeCmd.Flags().StringVar(&zipFile, "zip-file", "-", "File holding the base64 convert_zip ('-' for stdin)")
	materializeCmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory to unpack into")
	return materializeCmd
}

// pagesDocument accepts either a bare page array or a parse result object.
type pagesDocument struct {
	Pages []models.Page `json:"pages"`
}

func decodePages(data []byte) ([]models.Page, error) {
	var pages []models.Page
	if err := json.Unmarshal(data, &pages); err == nil {
		return pages, nil
	}
	var doc pagesDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, toolerr.New(toolerr.CodeInvalidJSON, "pages must be a JSON array or an object with a pages field", false)
	}
	return doc.Pages, nil
}

func newMergeCmd(a *app) *cobra.Command {
	var (
		separator string
		limits    assemble.Limits
	)
	mergeCmd := &cobra.Command{
		Use:   "merge [pages.json]",
		Short: "Merge parsed pages into one markdown document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			data, err := readInput(cmd, path)
			if err != nil {
				return a.fail(cmd, err)
			}
			pages, err := decodePages(data)
			if err != nil {
				return a.fail(cmd, err)
			}
			if limits.MaxChars < 0 || limits.MaxPages < 0 {
				return a.fail(cmd, toolerr.InvalidArgument("limits must be non-negative"))
			}
			return a.run(cmd, func(context.Context, async.Observer) (interface{}, error) {
				return a.engine.MergePages(pages, separator, limits), nil
			})
		},
	}
	mergeCmd.Flags().StringVar(&separator, "separator", assemble.DefaultSeparator, "Text placed between pages")
	mergeCmd.Flags().IntVar(&limits.MaxChars, "max-chars", 0, "Truncate after this many characters (0 = unlimited)")
	mergeCmd.Flags().IntVar(&limits.MaxPages, "max-pages", 0, "Truncate after this many pages (0 = unlimited)")
	return mergeCmd
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with the API key redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeJSON(cmd.OutOrStdout(), a.engine.DebugConfig())
		},
	}
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, toolerr.InvalidArgument("cannot read %s: %v", path, err)
	}
	return data, nil
}
