package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/farmachelo/pharmacy-backend/internal/admins"
	"github.com/farmachelo/pharmacy-backend/internal/catalog"
	"github.com/farmachelo/pharmacy-backend/internal/repo"
	"github.com/farmachelo/pharmacy-backend/internal/seed"
	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/db"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
	"github.com/farmachelo/pharmacy-backend/pkg/migrate"
	"github.com/farmachelo/pharmacy-backend/pkg/migrate/migrations"
	"github.com/farmachelo/pharmacy-backend/pkg/security"
)

type env struct {
	cfg    *config.Config
	logg   *logger.Logger
	client *db.Client
	sqlDB  *sql.DB
	runner *migrate.Runner
}

type command struct {
	needsDB bool
	run     func(ctx context.Context, e *env) error
}

var (
	name    = flag.String("name", "", "migration description (create)")
	version = flag.String("version", "", "target version YYYYMMDDHHMMSS (to)")
	dir     = flag.String("dir", migrate.SourceDir, "directory new migrations are written to (create)")
)

var commands = map[string]command{
	"create": {run: func(_ context.Context, _ *env) error {
		path, err := migrate.CreateFile(*dir, *name, time.Now())
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	}},
	"validate": {run: func(_ context.Context, _ *env) error {
		return migrate.Validate(migrations.FS)
	}},
	"up": {needsDB: true, run: func(ctx context.Context, e *env) error {
		if e.cfg.DB.IsSQLite() {
			return migrate.AutoMigrateModels(e.client)
		}
		applied, err := e.runner.Up(ctx)
		printSteps(applied)
		return err
	}},
	"down": {needsDB: true, run: func(ctx context.Context, e *env) error {
		reverted, err := e.runner.Down(ctx)
		printSteps(reverted)
		return err
	}},
	"to": {needsDB: true, run: func(ctx context.Context, e *env) error {
		target, err := strconv.ParseInt(*version, 10, 64)
		if err != nil {
			return fmt.Errorf("-version %q is not a migration version", *version)
		}
		moved, err := e.runner.To(ctx, target)
		printSteps(moved)
		return err
	}},
	"status": {needsDB: true, run: func(ctx context.Context, e *env) error {
		rows, err := e.runner.Status(ctx)
		if err != nil {
			return err
		}
		for _, row := range rows {
			state := "pending"
			if row.Applied {
				state = "applied"
			}
			fmt.Printf("%d\t%-8s\t%s\n", row.Version, state, row.Path)
		}
		return nil
	}},
	"automigrate": {needsDB: true, run: func(_ context.Context, e *env) error {
		return migrate.AutoMigrateModels(e.client)
	}},
	"seed": {needsDB: true, run: func(ctx context.Context, e *env) error {
		base := repo.NewBase(e.client.DB(), e.cfg.DB.QueryTimeout)
		seeder, err := seed.NewSeeder(
			catalog.NewRepository(base),
			admins.NewRepository(base),
			security.NewHasher(e.cfg.Password),
			e.cfg.Seed,
			e.logg,
		)
		if err != nil {
			return err
		}
		return seeder.Run(ctx)
	}},
}

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmdName := flag.String("cmd", "up", "one of: "+strings.Join(commandNames(), "|"))
	flag.Parse()

	cmd, ok := commands[*cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown -cmd %q (want %s)\n", *cmdName, strings.Join(commandNames(), "|"))
		os.Exit(2)
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": *cmdName})

	e := &env{cfg: cfg, logg: logg}
	if cmd.needsDB {
		e.client, err = db.New(ctx, cfg.DB, logg)
		requireResource(ctx, logg, "database", err)
		defer func() {
			if err := e.client.Close(); err != nil {
				logg.Error(ctx, "error closing database", err)
			}
		}()
		if !cfg.DB.IsSQLite() {
			e.sqlDB, err = e.client.DB().DB()
			requireResource(ctx, logg, "sql database", err)
			e.runner, err = migrate.NewRunner(e.sqlDB, nil)
			requireResource(ctx, logg, "migration runner", err)
		}
	}

	if err := cmd.run(ctx, e); err != nil {
		logg.Error(ctx, "migrate command failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migrate command finished")
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func printSteps(steps []migrate.Step) {
	for _, s := range steps {
		fmt.Printf("%s\t%d\t%s\n", s.Direction, s.Version, s.Path)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
