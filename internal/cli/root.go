// Package cli implements stockctl, the operator command line for the stock engine.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mosly/envelope-stock/internal/reconcile"
)

// Operator is the slice of the reconciliation engine the commands drive.
type Operator interface {
	Sync(ctx context.Context, baseline time.Time) (*reconcile.SyncReport, error)
	SyncLatest(ctx context.Context) (*reconcile.SyncReport, error)
	Adjust(ctx context.Context, input reconcile.AdjustInput) (*reconcile.AdjustReport, error)
	RecordSnapshot(ctx context.Context, input reconcile.SnapshotInput) (*reconcile.SnapshotReport, error)
	GetState(ctx context.Context) (*reconcile.StateView, error)
	ComputeState(ctx context.Context) (*reconcile.StateView, error)
	Baseline(ctx context.Context) (time.Time, error)
}

// OperatorFactory opens the engine for one command. The returned func releases
// its connections.
type OperatorFactory func(ctx context.Context) (Operator, func() error, error)

// RootOptions are the persistent flags shared by every command.
type RootOptions struct {
	Verbose bool
	Format  string

	open OperatorFactory
}

// NewRootCommand builds the stockctl command tree.
func NewRootCommand(open OperatorFactory) *cobra.Command {
	opts := &RootOptions{Format: "text", open: open}

	cmd := &cobra.Command{
		Use:   "stockctl",
		Short: "Operate the envelope stock ledger",
		Long: `stockctl runs the same operations as the HTTP API against the configured
database: order syncs, manual adjustments, physical snapshots and state reads.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "text" && opts.Format != "json" {
				return &ExitError{
					Code:    ExitCommandError,
					Message: fmt.Sprintf("invalid format %q: must be text or json", opts.Format),
				}
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "print error details")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format: text|json")

	cmd.AddCommand(
		NewSyncCommand(opts),
		NewAdjustCommand(opts),
		NewSnapshotCommand(opts),
		NewStateCommand(opts),
		NewBaselineCommand(opts),
		NewHashPasswordCommand(opts),
	)
	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return NewOutputFormatter(o.Format, cmd.OutOrStdout(), cmd.ErrOrStderr(), o.Verbose)
}

// withOperator opens the engine, runs fn with the cli trigger and prints the
// result or the failure.
func (o *RootOptions) withOperator(cmd *cobra.Command, action string, fn func(ctx context.Context, op Operator) (any, error)) error {
	out := o.formatter(cmd)
	if o.open == nil {
		return &ExitError{Code: ExitFailure, Message: "no engine configured"}
	}

	ctx := reconcile.WithTrigger(cmd.Context(), reconcile.TriggerCLI)
	op, closeFn, err := o.open(ctx)
	if err != nil {
		_ = out.Error(err)
		return &ExitError{Code: ExitFailure, Message: "open stock engine", Err: err}
	}
	defer func() {
		if closeFn != nil {
			_ = closeFn()
		}
	}()

	result, err := fn(ctx, op)
	if err != nil {
		_ = out.Error(err)
		return WrapExitError(err, action)
	}
	return out.Success(result)
}

func parseAt(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, &ExitError{
			Code:    ExitCommandError,
			Message: fmt.Sprintf("invalid time %q: use RFC 3339, e.g. 2024-03-01T09:00:00Z", raw),
		}
	}
	return at, nil
}
