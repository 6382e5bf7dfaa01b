package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mosly/envelope-stock/internal/reconcile"
	"github.com/mosly/envelope-stock/internal/stock"
	"github.com/mosly/envelope-stock/pkg/enums"
	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
)

// Exit codes returned by stockctl.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2
	// ExitContention means another sync held the lease; retrying later is safe.
	ExitContention = 3
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError maps an engine error to an exit code.
func WrapExitError(err error, message string) *ExitError {
	code := ExitFailure
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeValidation:
		code = ExitCommandError
	case pkgerrors.CodeConflict:
		code = ExitContention
	}
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code for err. nil is success.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope printed in json mode.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error body of a json response.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter prints command results as text or json.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// NewOutputFormatter defaults the writers to stdout and stderr.
func NewOutputFormatter(format string, out, errOut io.Writer, verbose bool) *OutputFormatter {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &OutputFormatter{Format: format, Writer: out, ErrWriter: errOut, Verbose: verbose}
}

// Success prints a command result.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.writeJSON(CLIResponse{Status: "ok", Data: data})
	}
	return renderText(f.Writer, data)
}

// Error prints a failure. Partial sync progress is included when present.
func (f *OutputFormatter) Error(err error) error {
	code := pkgerrors.CodeOf(err)
	message := err.Error()
	var details any
	if typed := pkgerrors.As(err); typed != nil {
		message = typed.Message()
		details = typed.Details()
	}
	if f.Format == "json" {
		return f.writeJSON(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: string(code), Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.ErrWriter, "error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.ErrWriter, "details: %+v\n", details)
	}
	return nil
}

func (f *OutputFormatter) writeJSON(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderText(w io.Writer, data any) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	switch v := data.(type) {
	case *reconcile.SyncReport:
		writeSync(tw, v)
	case *reconcile.AdjustReport:
		fmt.Fprintf(tw, "adjusted\t%s %+d (was %d)\n", v.Movement.ItemName, v.Movement.Change, v.Previous)
		fmt.Fprintf(tw, "baseline\t%s\n", formatTime(v.Baseline))
		if v.SyncError != "" {
			fmt.Fprintf(tw, "sync error\t%s\n", v.SyncError)
		}
		if v.Sync != nil {
			writeSync(tw, v.Sync)
		}
	case *reconcile.SnapshotReport:
		if v.Snapshot != nil {
			fmt.Fprintf(tw, "snapshot\t%s\n", v.Snapshot.ID)
			fmt.Fprintf(tw, "taken at\t%s\n", formatTime(v.Snapshot.TakenAt))
		}
		fmt.Fprintf(tw, "baseline\t%s\n", formatTime(v.Baseline))
		writeState(tw, v.State)
	case *reconcile.StateView:
		fmt.Fprintf(tw, "source\t%s\n", v.Source)
		fmt.Fprintf(tw, "status\t%s\n", v.Status)
		if v.UpdatedAt != nil {
			fmt.Fprintf(tw, "updated at\t%s\n", formatTime(*v.UpdatedAt))
		}
		writeState(tw, v.State)
	case baselineResult:
		fmt.Fprintf(tw, "baseline\t%s\n", formatTime(v.Baseline))
	case string:
		fmt.Fprintln(tw, v)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return tw.Flush()
}

func writeSync(w io.Writer, report *reconcile.SyncReport) {
	fmt.Fprintf(w, "run\t%s\n", report.RunID)
	fmt.Fprintf(w, "baseline\t%s\n", formatTime(report.Baseline))
	fmt.Fprintf(w, "fetched\t%d\n", report.Fetched)
	fmt.Fprintf(w, "new orders\t%d\n", report.NewOrders)
	fmt.Fprintf(w, "material deducted\t%d\n", report.MaterialDeducted)
	skipped := []string{
		fmt.Sprintf("duplicates=%d", report.Duplicates),
		fmt.Sprintf("ignored=%d", report.Ignored),
		fmt.Sprintf("invalid=%d", report.Invalid),
		fmt.Sprintf("empty=%d", report.Empty),
	}
	fmt.Fprintf(w, "skipped\t%s\n", strings.Join(skipped, " "))
	if len(report.PerCategory) > 0 {
		categories := make([]string, 0, len(report.PerCategory))
		for category := range report.PerCategory {
			categories = append(categories, string(category))
		}
		sort.Strings(categories)
		for _, category := range categories {
			fmt.Fprintf(w, "  %s\t%d\n", category, report.PerCategory[enums.Category(category)])
		}
	}
	if report.State != nil {
		writeState(w, report.State)
	}
}

func writeState(w io.Writer, state stock.State) {
	for _, item := range enums.StockItems() {
		fmt.Fprintf(w, "%s\t%d\n", item, state[item])
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
