package output

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/MikeSquared-Agency/promptvault/internal/batch"
	"github.com/MikeSquared-Agency/promptvault/internal/progress"
	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
)

// UI writes colored CLI output.
type UI struct {
	Verbose bool
	DryRun  bool
	Out     io.Writer
	ErrOut  io.Writer
}

// New creates a UI on stdout/stderr.
func New() *UI {
	return &UI{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
}

var (
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	successPrefix = color.New(color.FgHiGreen).Sprint("✓")
	warningPrefix = color.New(color.FgHiYellow).Sprint("⚠")
	errorPrefix   = color.New(color.FgHiRed).Sprint("✗")
	verbosePrefix = color.New(color.FgHiBlue).Sprint("  →")
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
)

func Cyan(s string) string   { return cyan(s) }
func Green(s string) string  { return green(s) }
func Yellow(s string) string { return yellow(s) }
func Red(s string) string    { return red(s) }

// StatusColor colors a session status.
func StatusColor(status progress.Status) string {
	s := string(status)
	switch status {
	case progress.StatusCompleted:
		return green(s)
	case progress.StatusProcessing:
		return yellow(s)
	case progress.StatusFailed:
		return red(s)
	default:
		return s
	}
}

func (u *UI) Info(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Success(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) VerboseLog(format string, a ...any) {
	if u.Verbose {
		fmt.Fprintf(u.Out, "%s %s\n", verbosePrefix, fmt.Sprintf(format, a...))
	}
}

func (u *UI) DryRunMsg(format string, a ...any) {
	if u.DryRun {
		u.Warning("[DRY-RUN] "+format, a...)
	}
}

// Table creates a borderless left-aligned table.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

// Session prints the counters of a finished import followed by its
// warnings and errors.
func (u *UI) Session(s progress.Session) error {
	table := u.Table([]string{"Session", "Status", "Total", "Imported", "Skipped", "Errors"})
	if err := table.Append([]string{
		cyan(s.ID),
		StatusColor(s.Status),
		strconv.Itoa(s.TotalCount),
		strconv.Itoa(s.ImportedCount),
		strconv.Itoa(s.SkippedCount),
		strconv.Itoa(len(s.Errors)),
	}); err != nil {
		return fmt.Errorf("append session row: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render session: %w", err)
	}
	for _, w := range s.Warnings {
		u.Warning("%s", w)
	}
	for _, e := range s.Errors {
		u.Error("%s", e)
	}
	return nil
}

// BatchResult prints a parse-only run: throughput figures, failed files,
// and in verbose mode every extracted prompt.
func (u *UI) BatchResult(res *batch.Result) error {
	u.Info("%d of %d files parsed, %d prompts, %d duplicates removed, %d retries (%.0f%% success, %dms)",
		res.SucceededFiles, res.TotalProcessed, len(res.Successful), res.DuplicatesRemoved,
		res.Retries, res.SuccessRate*100, res.DurationMs)

	if err := u.Failures(res.Failed); err != nil {
		return err
	}

	if !u.Verbose || len(res.Successful) == 0 {
		return nil
	}
	table := u.Table([]string{"Source", "Title", "Complexity"})
	for _, p := range res.Successful {
		if err := table.Append([]string{string(p.Metadata.Source), prompt.Truncate(p.Title, 60), string(p.Metadata.Complexity)}); err != nil {
			return fmt.Errorf("append prompt row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render prompts: %w", err)
	}
	return nil
}

// Failures prints one row per failed file. Nothing is printed for an
// empty list.
func (u *UI) Failures(failed []batch.FileFailure) error {
	if len(failed) == 0 {
		return nil
	}
	table := u.Table([]string{"File", "Error", "Message", "Suggestion"})
	for _, f := range failed {
		if err := table.Append([]string{f.File, red(string(f.Error.Type)), f.Error.Message, f.Error.Suggestion}); err != nil {
			return fmt.Errorf("append failure row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render failures: %w", err)
	}
	return nil
}
