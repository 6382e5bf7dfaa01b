package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mosly/envelope-stock/pkg/config"
	"github.com/mosly/envelope-stock/pkg/db"
	"github.com/mosly/envelope-stock/pkg/logger"
	"github.com/mosly/envelope-stock/pkg/migrate"
)

// errPending makes -cmd=pending exit 2 so deploy scripts can gate on it.
var errPending = errors.New("migrations pending")

type options struct {
	base    string
	name    string
	version string
}

// fileCommands only touch the migrations tree and run without config.
var fileCommands = map[string]func(options) error{
	"create": func(o options) error {
		if o.name == "" {
			return errors.New("missing -name for create")
		}
		paths, err := migrate.CreateDialectMigrations(o.base, o.name)
		for _, path := range paths {
			fmt.Println("created migration:", path)
		}
		return err
	},
	"validate": func(o options) error {
		if err := migrate.ValidateLockstep(o.base); err != nil {
			return err
		}
		fmt.Println("migration validation passed")
		return nil
	},
}

type dbCommand func(ctx context.Context, sqlDB *sql.DB, driver, dir string, o options) error

var dbCommands = map[string]dbCommand{
	"up":     gooseCommand("up"),
	"down":   gooseCommand("down"),
	"status": gooseCommand("status"),
	"version": func(ctx context.Context, sqlDB *sql.DB, driver, dir string, o options) error {
		if o.version == "" {
			return errors.New("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, driver, dir, o.version)
	},
	"pending": func(ctx context.Context, sqlDB *sql.DB, driver, _ string, _ options) error {
		drift, err := migrate.CheckDrift(ctx, sqlDB, driver)
		if err != nil {
			return err
		}
		fmt.Printf("db version %d, latest embedded %d, pending %t\n", drift.Current, drift.Latest, drift.Pending)
		if drift.Pending {
			return errPending
		}
		return nil
	},
}

func gooseCommand(name string) dbCommand {
	return func(ctx context.Context, sqlDB *sql.DB, driver, dir string, _ options) error {
		return migrate.Run(ctx, sqlDB, driver, dir, name)
	}
}

func main() {
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "up|down|status|version|pending|create|validate")
	var o options
	flag.StringVar(&o.base, "dir", migrate.DefaultDir, "base migrations directory; the dialect subdirectory is appended")
	flag.StringVar(&o.name, "name", "", "migration name (for create)")
	flag.StringVar(&o.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	if run, ok := fileCommands[*cmd]; ok {
		if err := run(o); err != nil {
			fmt.Fprintf(os.Stderr, "migrate %s: %v\n", *cmd, err)
			os.Exit(1)
		}
		return
	}
	run, ok := dbCommands[*cmd]
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dir := migrate.DirFor(o.base, cfg.DB.Driver)
	ctx = logg.WithFields(ctx, map[string]any{"cmd": *cmd, "dir": dir, "driver": cfg.DB.Driver})

	err = execute(ctx, cfg, logg, run, dir, o)
	switch {
	case errors.Is(err, errPending):
		stop()
		os.Exit(2)
	case err != nil:
		logg.Error(ctx, "migrate.failed", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "migrate.done")
}

func execute(ctx context.Context, cfg *config.Config, logg *logger.Logger, run dbCommand, dir string, o options) error {
	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql database: %w", err)
	}
	return run(ctx, sqlDB, cfg.DB.Driver, dir, o)
}
