package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mosly/envelope-stock/internal/reconcile"
	"github.com/mosly/envelope-stock/pkg/config"
	"github.com/mosly/envelope-stock/pkg/enums"
	"github.com/mosly/envelope-stock/pkg/security"
)

type baselineResult struct {
	Baseline time.Time `json:"baseline"`
}

// NewSyncCommand ingests orders created after the stored baseline, or after
// --baseline when given.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	var baseline string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Ingest new orders and deduct their stock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := parseAt(baseline)
			if err != nil {
				return err
			}
			return rootOpts.withOperator(cmd, "sync", func(ctx context.Context, op Operator) (any, error) {
				if at.IsZero() {
					return op.SyncLatest(ctx)
				}
				return op.Sync(ctx, at)
			})
		},
	}

	cmd.Flags().StringVar(&baseline, "baseline", "", "fetch orders created after this RFC 3339 time instead of the stored baseline")
	return cmd
}

// NewAdjustCommand appends a manual correction:
// stockctl adjust F16 --delta -5 --reason "damaged box".
func NewAdjustCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		at     string
		delta  int
		reason string
	)

	cmd := &cobra.Command{
		Use:   "adjust <item>",
		Short: "Append a manual stock correction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := enums.ParseStockItem(args[0])
			if err != nil {
				return &ExitError{Code: ExitCommandError, Message: "invalid item", Err: err}
			}
			when, err := parseAt(at)
			if err != nil {
				return err
			}
			input := reconcile.AdjustInput{Item: item, Delta: delta, Reason: reason, At: when}
			return rootOpts.withOperator(cmd, "adjust", func(ctx context.Context, op Operator) (any, error) {
				return op.Adjust(ctx, input)
			})
		},
	}

	cmd.Flags().IntVar(&delta, "delta", 0, "signed change in units")
	cmd.Flags().StringVar(&reason, "reason", "", "why the stock changed")
	cmd.Flags().StringVar(&at, "at", "", "RFC 3339 time of the correction (default now)")
	_ = cmd.MarkFlagRequired("delta")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

// NewSnapshotCommand records a full physical count. Every item needs a --qty.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		at         string
		note       string
		quantities map[string]int
	)

	cmd := &cobra.Command{
		Use:     "snapshot",
		Short:   "Record a physical stock count",
		Example: "  stockctl snapshot --qty mosolap=120 --qty F16=40 --qty H18=35 --qty I19=20 --qty K20=10",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseQuantities(quantities)
			if err != nil {
				return err
			}
			when, err := parseAt(at)
			if err != nil {
				return err
			}
			input := reconcile.SnapshotInput{At: when, Quantities: parsed, Note: note}
			return rootOpts.withOperator(cmd, "snapshot", func(ctx context.Context, op Operator) (any, error) {
				return op.RecordSnapshot(ctx, input)
			})
		},
	}

	cmd.Flags().StringToIntVar(&quantities, "qty", nil, "item=quantity, repeat for every stock item")
	cmd.Flags().StringVar(&at, "at", "", "RFC 3339 time of the count (default now)")
	cmd.Flags().StringVar(&note, "note", "", "free-form note stored with the snapshot")
	return cmd
}

// NewStateCommand prints current stock.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print current stock per item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch source {
			case reconcile.StateSourceProjection, reconcile.StateSourceLedger:
			default:
				return &ExitError{
					Code:    ExitCommandError,
					Message: fmt.Sprintf("invalid source %q: must be projection or ledger", source),
				}
			}
			return rootOpts.withOperator(cmd, "state", func(ctx context.Context, op Operator) (any, error) {
				if source == reconcile.StateSourceLedger {
					return op.ComputeState(ctx)
				}
				return op.GetState(ctx)
			})
		},
	}

	cmd.Flags().StringVar(&source, "source", reconcile.StateSourceProjection, "projection reads the stored state, ledger recomputes it")
	return cmd
}

// NewBaselineCommand prints the stored sync baseline.
func NewBaselineCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "baseline",
		Short: "Print the time after which the next sync fetches orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withOperator(cmd, "baseline", func(ctx context.Context, op Operator) (any, error) {
				baseline, err := op.Baseline(ctx)
				if err != nil {
					return nil, err
				}
				return baselineResult{Baseline: baseline}, nil
			})
		},
	}
}

// NewHashPasswordCommand reads a password from stdin and prints the argon2id
// hash for MOSLY_OPERATOR_PASSWORD_HASH. It needs no database.
func NewHashPasswordCommand(rootOpts *RootOptions) *cobra.Command {
	params := config.PasswordConfig{
		ArgonMemoryKB:    65536,
		ArgonTime:        3,
		ArgonParallelism: 2,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash the operator password read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			encoded, err := security.HashPassword(password, params)
			if err != nil {
				return &ExitError{Code: ExitFailure, Message: "hash password", Err: err}
			}
			return rootOpts.formatter(cmd).Success(encoded)
		},
	}

	cmd.Flags().IntVar(&params.ArgonMemoryKB, "memory-kb", params.ArgonMemoryKB, "argon2 memory in KiB")
	cmd.Flags().IntVar(&params.ArgonTime, "time", params.ArgonTime, "argon2 iterations")
	cmd.Flags().IntVar(&params.ArgonParallelism, "parallelism", params.ArgonParallelism, "argon2 lanes")
	return cmd
}

func parseQuantities(raw map[string]int) (map[enums.StockItem]int, error) {
	parsed := make(map[enums.StockItem]int, len(raw))
	for name, qty := range raw {
		item, err := enums.ParseStockItem(name)
		if err != nil {
			return nil, &ExitError{Code: ExitCommandError, Message: "invalid item", Err: err}
		}
		if _, dup := parsed[item]; dup {
			return nil, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("item %s given twice", item)}
		}
		parsed[item] = qty
	}
	var missing []string
	for _, item := range enums.StockItems() {
		if _, ok := parsed[item]; !ok {
			missing = append(missing, string(item))
		}
	}
	if len(missing) > 0 {
		return nil, &ExitError{
			Code:    ExitCommandError,
			Message: "missing --qty for " + strings.Join(missing, ", "),
		}
	}
	return parsed, nil
}

func readPassword(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", &ExitError{Code: ExitFailure, Message: "read password", Err: err}
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", &ExitError{Code: ExitCommandError, Message: "empty password on stdin"}
	}
	return password, nil
}
