package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

type dbCommand func(ctx context.Context, runner *migrate.Runner, opts options) error

// commands that run the embedded migrations against Postgres.
var dbCommands = map[string]dbCommand{
	"up": func(ctx context.Context, runner *migrate.Runner, _ options) error {
		return runner.Up(ctx)
	},
	"down": func(ctx context.Context, runner *migrate.Runner, _ options) error {
		return runner.Down(ctx)
	},
	"status": func(ctx context.Context, runner *migrate.Runner, _ options) error {
		return runner.Status(ctx)
	},
	"version": func(ctx context.Context, runner *migrate.Runner, opts options) error {
		if opts.version == "" {
			return errors.New("missing -version")
		}
		return runner.To(ctx, opts.version)
	},
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: "+strings.Join(commandNames(), "|"))
	var opts options
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "source migrations directory for create and validate")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate only touch the migrations directory.
	switch *cmd {
	case "create":
		if opts.name == "" {
			exit(logg, context.Background(), "missing -name for create", nil)
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			exit(logg, context.Background(), "create migration", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			exit(logg, context.Background(), "validate migrations", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		exit(logg, context.Background(), "load config", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    *cmd,
		"driver": cfg.DB.Driver,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		exit(logg, ctx, "bootstrap database", err)
	}
	defer dbClient.Close()

	if cfg.DB.IsSQLite() {
		if *cmd != "up" {
			exit(logg, ctx, "sqlite only supports -cmd=up", nil)
		}
		if err := migrate.AutoMigrate(dbClient.DB()); err != nil {
			exit(logg, ctx, "build sqlite schema", err)
		}
		logg.Info(ctx, "sqlite schema built from models")
		return
	}

	run, ok := dbCommands[*cmd]
	if !ok {
		exit(logg, ctx, "unknown -cmd value "+*cmd, nil)
	}
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		exit(logg, ctx, "extract sql database", err)
	}
	runner, err := migrate.NewRunner(sqlDB)
	if err != nil {
		exit(logg, ctx, "configure migrations", err)
	}
	if err := run(ctx, runner, opts); err != nil {
		exit(logg, ctx, "goose "+*cmd+" failed", err)
	}
	logg.Info(ctx, "migration command completed")
}

func commandNames() []string {
	names := []string{"create", "validate"}
	for name := range dbCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func exit(logg *logger.Logger, ctx context.Context, msg string, err error) {
	if err == nil {
		err = errors.New(msg)
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
