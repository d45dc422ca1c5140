package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/example/task-lifecycle/config"
	"github.com/example/task-lifecycle/domain/task"
	"github.com/example/task-lifecycle/modules/api"
	"github.com/example/task-lifecycle/modules/notification"
	"github.com/example/task-lifecycle/modules/scheduler"
	"github.com/example/task-lifecycle/modules/statusupdate"
	"github.com/example/task-lifecycle/modules/store"
	taskmod "github.com/example/task-lifecycle/modules/task"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/spf13/cobra"
)

const lockPrefix = "tasks:lock:"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, request-reply services and scheduler",
	RunE:  runServe,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Demote every overdue task to PAST_DUE once and exit",
	RunE:  runSweep,
}

func newUpdater(cfg *config.Config, repo task.Repository, clock task.Clock, logger types.Logger) *statusupdate.Updater {
	return statusupdate.NewUpdater(
		repo,
		task.NewPastDueStrategy(clock),
		clock,
		statusupdate.Config{
			Mode:      statusupdate.Mode(cfg.StatusUpdater.Mode),
			BatchSize: cfg.StatusUpdater.BatchSize,
		},
		logger.WithModule("statusupdate"),
	)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Println("=== Task Lifecycle Service ===")

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout()),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	logger := app.Logger()
	clock := task.SystemClock
	ctx := context.Background()

	storeModule, err := store.Open(ctx, cfg.Database, clock)
	if err != nil {
		return err
	}
	repo := storeModule.Repository()

	updater := newUpdater(cfg, repo, clock, logger)
	service := taskmod.NewService(repo, task.NewRuleSets(clock), updater, clock, logger.WithModule("task"))

	var locker scheduler.Locker
	if cfg.SchedulingEnabled() && cfg.Redis.Addr != "" {
		redisLocker, err := scheduler.DialRedisLocker(ctx, cfg.Redis.Addr, lockPrefix)
		if err != nil {
			_ = storeModule.Stop(ctx)
			return err
		}
		locker = redisLocker
	}

	schedulerModule, err := scheduler.NewModule(scheduler.Config{
		Enabled: cfg.SchedulingEnabled(),
		Cron:    cfg.StatusUpdater.Scheduling.Cron,
		LockTTL: cfg.LockTTL(),
	}, updater, locker, logger)
	if err != nil {
		_ = storeModule.Stop(ctx)
		return err
	}

	taskModule := taskmod.NewModule(service, logger)
	notificationModule := notification.NewModule(notification.DefaultCapacity, logger)
	apiModule := api.NewModule(cfg.HTTP.Port, service, updater)
	apiModule.AddHealthCheck("store", storeModule)
	apiModule.AddHealthCheck("scheduler", schedulerModule)

	for _, m := range []mono.Module{storeModule, taskModule, schedulerModule, notificationModule, apiModule} {
		if err := app.Register(m); err != nil {
			return fmt.Errorf("failed to register %s module: %w", m.Name(), err)
		}
	}

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	printStartupInfo(cfg)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout(),
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
	return nil
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// the application is never started; it only supplies the logger
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout()),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	storeModule, err := store.Open(ctx, cfg.Database, task.SystemClock)
	if err != nil {
		return err
	}
	defer func() {
		if err := storeModule.Stop(context.Background()); err != nil {
			log.Printf("Failed to close store: %v", err)
		}
	}()

	updater := newUpdater(cfg, storeModule.Repository(), task.SystemClock, app.Logger())
	res, err := updater.UpdateStatusAll(ctx)
	if err != nil {
		return fmt.Errorf("status sweep failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s (%s): %d task(s) marked PAST_DUE in %s\n",
		res.RunID, res.Mode, res.Updated, res.Duration)
	return nil
}

func printStartupInfo(cfg *config.Config) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Printf("Store: %s", cfg.Database.Driver)
	log.Printf("Status updater mode: %s (batch size %d)", cfg.StatusUpdater.Mode, cfg.StatusUpdater.BatchSize)
	if cfg.SchedulingEnabled() {
		log.Printf("Scheduled sweep: %s", cfg.StatusUpdater.Scheduling.Cron)
	} else {
		log.Println("Scheduled sweep: disabled")
	}
	log.Println("")
	log.Printf("HTTP API on :%d", cfg.HTTP.Port)
	log.Println("  GET    /api/tasks?status=&page=&size=")
	log.Println("  GET    /api/tasks/:id")
	log.Println("  POST   /api/tasks")
	log.Println("  PUT    /api/tasks/:id")
	log.Println("  PATCH  /api/tasks/:id")
	log.Println("  DELETE /api/tasks/:id")
	log.Println("  DELETE /api/tasks")
	log.Println("  POST   /api/tasks/status-sweep")
	log.Println("  GET    /health")
	log.Println("")
	log.Println("Request-reply services (NATS):")
	log.Println("  services.task.{create,get,list,update,patch,delete,delete-all}")
	log.Println("")
}
