package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mosly/envelope-stock/internal/bootstrap"
	"github.com/mosly/envelope-stock/internal/cli"
	"github.com/mosly/envelope-stock/pkg/config"
	"github.com/mosly/envelope-stock/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(openEngine)
	err := root.ExecuteContext(ctx)
	if err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) || exitErr.Err == nil {
			fmt.Fprintln(os.Stderr, "stockctl:", err)
		}
	}
	stop()
	os.Exit(cli.GetExitCode(err))
}

// openEngine loads config and connects the stack only for commands that need it.
func openEngine(ctx context.Context) (cli.Operator, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logg := logger.New(logger.Options{
		ServiceName: "stockctl",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})

	stack, err := bootstrap.New(ctx, cfg, logg, nil)
	if err != nil {
		return nil, nil, err
	}
	return stack.Engine, stack.Close, nil
}
