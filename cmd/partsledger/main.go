package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/partsledger/cmd/partsledger/cli"
	"github.com/odyssey-erp/partsledger/internal/app"
	"github.com/odyssey-erp/partsledger/internal/audit"
	"github.com/odyssey-erp/partsledger/internal/inventory"
	"github.com/odyssey-erp/partsledger/internal/rbac"
	"github.com/odyssey-erp/partsledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	switch command {
	case "serve":
		os.Exit(serve(ctx, stop, cfg, logger))
	case "reconcile":
		os.Exit(reconcile(ctx, cfg, logger, args))
	case "jobs":
		os.Exit(jobsCommand(ctx, cfg, args))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want serve, reconcile or jobs)\n", command)
		os.Exit(cli.ExitError)
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) int {
	rt, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		return 1
	}
	defer rt.Close()

	rbacMiddleware := rbac.Middleware{Logger: logger}
	inventoryHandler := inventory.NewHandler(logger, rt.Inventory, rt.Tokens, rbacMiddleware)
	auditHandler := audit.NewHandler(logger, audit.NewService(audit.NewRepository(rt.Pool)), rbacMiddleware)

	inspector := asynq.NewInspector(cfg.RedisOpts())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		InventoryHandler: inventoryHandler,
		AuditHandler:     auditHandler,
		JobHandler:       jobHandler,
		Identity:         rbacMiddleware,
		Metrics:          rt.Metrics,
		Readiness:        rt.Readiness(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return 1
	}
	return 0
}

func reconcile(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	opts := cli.ReconcileOptions{}
	fs.Int64Var(&opts.TenantID, "tenant", 0, "tenant id; omit to walk every balance")
	fs.Int64Var(&opts.LocationID, "location", 0, "location id of a single pair")
	fs.Int64Var(&opts.PartID, "part", 0, "part id of a single pair")
	fs.IntVar(&opts.Batch, "batch", cfg.ReconcileBatch, "page size for a full walk")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print a JSON summary")
	if err := fs.Parse(args); err != nil {
		return cli.ExitError
	}

	rt, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		return cli.ExitError
	}
	defer rt.Close()

	command, err := cli.NewReconcileCLI(rt.Inventory)
	if err != nil {
		logger.Error("init reconcile cli", slog.Any("error", err))
		return cli.ExitError
	}
	return command.ReconcileCommand(ctx, opts)
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	trigger := fs.String("trigger", "", "enqueue a job by task type, e.g. "+jobs.TaskReconcileAll)
	if err := fs.Parse(args); err != nil {
		return cli.ExitError
	}

	helper, err := cli.NewJobsCLI(cfg.RedisOpts(), cfg.ReconcileBatch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return cli.ExitError
	}
	defer func() { _ = helper.Close() }()

	if *trigger != "" {
		info, err := helper.Trigger(ctx, *trigger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return cli.ExitError
		}
		fmt.Fprintf(os.Stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return cli.ExitOK
	}

	stats, err := helper.InspectQueue(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return cli.ExitError
	}
	if err := json.NewEncoder(os.Stdout).Encode(stats); err != nil {
		return cli.ExitError
	}
	return cli.ExitOK
}
