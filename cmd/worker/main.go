package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/habitnudge/internal/config"
	"github.com/quocanhngo/habitnudge/internal/handler"
	"github.com/quocanhngo/habitnudge/internal/logger"
	"github.com/quocanhngo/habitnudge/internal/middleware"
	"github.com/quocanhngo/habitnudge/internal/model"
	"github.com/quocanhngo/habitnudge/internal/repository"
	"github.com/quocanhngo/habitnudge/internal/scheduler"
	"github.com/quocanhngo/habitnudge/internal/service"
	"github.com/quocanhngo/habitnudge/migrations"
	"go.uber.org/zap"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2

	shutdownTimeout = 30 * time.Second
)

const usage = `Usage: worker [flags] <command>

Commands:
  daily           run the daily reminder engine once
  followup        run the habit follow-up engine once
  schedule        run both engines on their cron specs and serve /health and /runs
  migrate up|down apply or roll back the kv_store migrations

Flags:
`

type options struct {
	dryRun   bool
	fixtures string
}

func main() {
	var opts options
	flag.BoolVar(&opts.dryRun, "dry-run", false, "classify and render, but never call the push provider")
	flag.StringVar(&opts.fixtures, "fixtures", "", "read users from this JSON file instead of the store")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(exitUsage)
	}
	os.Exit(run(flag.Arg(0), flag.Args()[1:], opts))
}

func run(cmd string, args []string, opts options) int {
	// ==================== Load Config ====================
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load config: %v\n", err)
		return exitError
	}

	log, err := logger.New(cfg.App.LogLevel, cfg.App.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to build logger: %v\n", err)
		return exitError
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "migrate":
		return runMigrate(cfg, args, log)
	case "daily", "followup", "schedule":
	default:
		log.Error("unknown command", zap.String("command", cmd))
		flag.Usage()
		return exitUsage
	}

	if opts.dryRun {
		cfg.Push.DryRun = true
	}
	if opts.fixtures == "" {
		if err := cfg.Validate(); err != nil {
			log.Error("❌ Invalid config", zap.Error(err))
			return exitError
		}
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Error("❌ Invalid config", zap.Error(err))
		return exitError
	}
	log.Info("🚀 Starting habit notification worker",
		zap.String("command", cmd),
		zap.String("tz", loc.String()),
		zap.String("provider", cfg.Push.Provider),
		zap.Bool("dry_run", cfg.Push.DryRun),
	)

	// ==================== Store ====================
	var (
		in  *infra
		src repository.UserRecordSource
	)
	if opts.fixtures != "" {
		static, err := repository.LoadFixtureFile(opts.fixtures)
		if err != nil {
			log.Error("❌ Failed to load fixtures", zap.Error(err))
			return exitError
		}
		src = static
		log.Info("📦 Reading users from fixtures", zap.String("path", opts.fixtures))
	} else {
		in, src, err = buildInfra(ctx, cfg, log)
		if err != nil {
			log.Error("❌ Failed to open store", zap.Error(err))
			return exitError
		}
		defer in.Close()
	}

	// ==================== Push Provider ====================
	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		log.Error("❌ Failed to build push provider", zap.Error(err))
		return exitError
	}

	// ==================== Engines ====================
	deps := service.Deps{
		Source:          src,
		Dispatcher:      buildDispatcher(provider, cfg, log),
		Guard:           buildGuard(cfg, in),
		Log:             log,
		Location:        loc,
		SnapshotTimeout: cfg.Store.SnapshotTimeout,
	}
	daily := service.NewDailyReminderService(deps, cfg.Daily.WindowMinutes)
	followup := service.NewFollowupService(deps)

	switch cmd {
	case "daily":
		return runOnce(ctx, daily, log)
	case "followup":
		return runOnce(ctx, followup, log)
	}

	var checks map[string]handler.Check
	if in != nil {
		checks = in.checks
	}
	return runSchedule(ctx, cfg, loc, checks, log, daily, followup)
}

func runOnce(ctx context.Context, job scheduler.Job, log *zap.Logger) int {
	if _, err := job.Run(ctx); err != nil {
		log.Error("❌ Run aborted", zap.String("engine", job.Name()), zap.Error(err))
		return exitError
	}
	return exitOK
}

func runMigrate(cfg *config.Config, args []string, log *zap.Logger) int {
	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}

	var err error
	switch direction {
	case "up":
		if err = migrations.Run(cfg.DB.URL(), log); err != nil {
			log.Warn("⚠️  Migration failed, falling back to GORM AutoMigrate", zap.Error(err))
			err = autoMigrate(cfg, log)
		}
	case "down":
		err = migrations.Rollback(cfg.DB.URL(), log)
	default:
		log.Error("migrate expects up or down", zap.String("got", direction))
		return exitUsage
	}
	if err != nil {
		log.Error("❌ Migration failed", zap.Error(err))
		return exitError
	}
	return exitOK
}

func autoMigrate(cfg *config.Config, log *zap.Logger) error {
	db, err := openPostgres(cfg, log)
	if err != nil {
		return err
	}
	defer (&infra{db: db}).Close()

	if err := db.Table(cfg.Store.Table).AutoMigrate(&model.KVEntry{}); err != nil {
		return fmt.Errorf("auto migrate %s: %w", cfg.Store.Table, err)
	}
	log.Info("✅ Table migrated with AutoMigrate", zap.String("table", cfg.Store.Table))
	return nil
}

func runSchedule(ctx context.Context, cfg *config.Config, loc *time.Location, checks map[string]handler.Check, log *zap.Logger, daily, followup scheduler.Job) int {
	// ==================== Scheduler ====================
	sched := scheduler.New(loc, cfg.Schedule.RunTimeout, log.With(zap.String("component", "scheduler")))
	if err := sched.Add(cfg.Schedule.DailyCron, daily); err != nil {
		log.Error("❌ Invalid schedule", zap.Error(err))
		return exitError
	}
	if err := sched.Add(cfg.Schedule.FollowupCron, followup); err != nil {
		log.Error("❌ Invalid schedule", zap.Error(err))
		return exitError
	}
	sched.Start(ctx)

	// ==================== Gin Router ====================
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log), middleware.CORSMiddleware(cfg.CORS.Origins))
	handler.NewStatusHandler(sched, checks).Register(router, cfg.HTTP.AdminToken)
	handler.RegisterDocs(router)

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	log.Info("🌐 Status API running", zap.String("addr", cfg.HTTP.Addr))
	log.Info("📋 API docs", zap.String("url", "http://"+cfg.HTTP.Addr+"/swagger/index.html"))

	code := exitOK
	select {
	case <-ctx.Done():
		log.Info("🛑 Shutting down...")
	case err := <-serveErr:
		log.Error("❌ Server failed", zap.Error(err))
		code = exitError
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced to shutdown", zap.Error(err))
	}
	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("runs still in progress at shutdown")
	}
	log.Info("✅ Worker exited gracefully")
	return code
}
