package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/promptvault/internal/batch"
	"github.com/MikeSquared-Agency/promptvault/internal/importer"
	"github.com/MikeSquared-Agency/promptvault/internal/metrics"
	"github.com/MikeSquared-Agency/promptvault/internal/progress"
	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
	"github.com/MikeSquared-Agency/promptvault/internal/recovery"
	"github.com/MikeSquared-Agency/promptvault/internal/store"
)

var importFlags struct {
	user        string
	platform    string
	concurrency int
	chunkSize   int
	retries     int
	noRecovery  bool
	dryRun      bool
}

var importCmd = &cobra.Command{
	Use:   "import [paths|globs...]",
	Short: "Import export files into the local prompt library",
	Long: `Import parses the given files, directories or glob patterns
(e.g. "~/exports/**/*.json"), removes duplicates, categorizes the prompts
and saves them. With --dry-run the files are only parsed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return importRun(cmd, args)
	},
}

func init() {
	f := importCmd.Flags()
	f.StringVar(&importFlags.user, "user", "local", "Library owner the prompts are saved for")
	f.StringVar(&importFlags.platform, "platform", "auto", "Force a parser (chatgpt, claude, claude-code, gemini, cline, cursor, file)")
	f.IntVar(&importFlags.concurrency, "concurrency", 0, "Files parsed at once (default from config)")
	f.IntVar(&importFlags.chunkSize, "chunk-size", 0, "Files per chunk (default from config)")
	f.IntVar(&importFlags.retries, "retries", -1, "Retries per recoverable failure (default from config)")
	f.BoolVar(&importFlags.noRecovery, "no-recovery", false, "Fail files on the first error")
	f.BoolVarP(&importFlags.dryRun, "dry-run", "n", false, "Parse only, do not save")
}

func importRun(cmd *cobra.Command, args []string) error {
	level := "warn"
	if verbose {
		level = cfg.LogLevel
	}
	setupLogging(level, os.Stderr)
	logger := slog.Default()
	ui.DryRun = importFlags.dryRun

	paths, err := collectFiles(args)
	if err != nil {
		return err
	}
	files, unreadable := readFiles(paths)
	if len(files) == 0 {
		if err := ui.Failures(unreadable); err != nil {
			return err
		}
		return fmt.Errorf("none of the %d matched files could be read", len(paths))
	}
	ui.Info("found %d files", len(files))

	opts := batchOptions(cfg.Import)
	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		opts.MaxConcurrency = importFlags.concurrency
	}
	if flags.Changed("chunk-size") {
		opts.ChunkSize = importFlags.chunkSize
	}
	if flags.Changed("retries") {
		opts.MaxRetries = importFlags.retries
	}
	if importFlags.noRecovery {
		opts.EnableRecovery = false
	}
	opts.Platform = importFlags.platform
	opts.Progress = func(p batch.Progress) {
		if p.CurrentFile != "" {
			ui.VerboseLog("[%d/%d] %s (%d prompts so far)", p.FilesProcessed, p.TotalFiles, p.CurrentFile, p.PromptsFound)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	orch := newOrchestrator(m, logger)

	if importFlags.dryRun {
		ui.DryRunMsg("parsing only, nothing will be saved")
		res, err := orch.ProcessBatch(ctx, files, opts)
		res.AddFailures(unreadable...)
		if rerr := ui.BatchResult(res); rerr != nil {
			return rerr
		}
		if err != nil {
			return fmt.Errorf("import interrupted: %w", err)
		}
		return nil
	}

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open prompt store: %w", err)
	}
	defer st.Close()

	tracker := progress.NewTracker(progress.WithLogger(logger))
	defer tracker.Close()

	imp := importer.New(
		tracker,
		orch,
		st,
		newQuota(st, cfg.Quota),
		newCategorizer(ctx, cfg, nil, m, logger),
		importer.WithMetrics(m),
		importer.WithLogger(logger),
		importer.WithDuplicateCheckLimit(cfg.Import.DuplicateCheckLimit),
	)

	s, err := imp.Run(ctx, importer.Request{
		UserID:   importFlags.user,
		Platform: importFlags.platform,
		Files:    files,
		Options:  opts,
	})
	if err != nil {
		return fmt.Errorf("start import: %w", err)
	}
	if err := ui.Session(s); err != nil {
		return err
	}
	if err := ui.Failures(unreadable); err != nil {
		return err
	}
	if s.Status == progress.StatusFailed {
		return errors.New("import failed")
	}
	ui.Success("imported %d prompts", s.ImportedCount)
	return nil
}

// collectFiles expands args into a sorted, de-duplicated list of regular
// files. Directories are walked recursively; arguments containing glob
// metacharacters are matched with doublestar (** crosses directories).
func collectFiles(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		arg = expandHome(arg)
		if strings.ContainsAny(arg, "*?[{") {
			matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("glob %s: %w", arg, err)
			}
			paths = append(paths, matches...)
			continue
		}

		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(arg), "**/*", doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", arg, err)
		}
		for _, m := range matches {
			paths = append(paths, filepath.Join(arg, filepath.FromSlash(m)))
		}
	}

	slices.Sort(paths)
	paths = slices.Compact(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files matched %s", strings.Join(args, " "))
	}
	return paths, nil
}

// readFiles loads every path. A file that cannot be read is returned as a
// classified failure and the remaining files are still imported.
func readFiles(paths []string) ([]prompt.RawFile, []batch.FileFailure) {
	files := make([]prompt.RawFile, 0, len(paths))
	var failed []batch.FileFailure
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			failed = append(failed, batch.FileFailure{
				File:  p,
				Error: recovery.Classify(err, recovery.Context{File: p}),
			})
			continue
		}
		files = append(files, prompt.NewRawFile(p, data))
	}
	return files, failed
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
