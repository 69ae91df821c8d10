package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticketflow/internal/api/http"
	"github.com/spec-kit/ticketflow/internal/api/http/handlers"
	"github.com/spec-kit/ticketflow/internal/auth"
	"github.com/spec-kit/ticketflow/internal/config"
	"github.com/spec-kit/ticketflow/internal/events"
	"github.com/spec-kit/ticketflow/internal/observability"
	"github.com/spec-kit/ticketflow/internal/persistence"
	"github.com/spec-kit/ticketflow/internal/repository"
	"github.com/spec-kit/ticketflow/internal/service"
	"github.com/spec-kit/ticketflow/internal/worker"
)

type options struct {
	envFiles []string
	store    string
	dataFile string
	addr     string
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("ticketflow: %v", err)
	}
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("ticketflow", pflag.ContinueOnError)
	flagSet.StringSliceVar(&opts.envFiles, "env-file", nil, "env files to load before reading configuration (default: .env when present)")
	flagSet.StringVar(&opts.store, "store", "", "ticket store backend: file or postgres (overrides STORE_BACKEND)")
	flagSet.StringVar(&opts.dataFile, "data-file", "", "path of the ticket JSON document (overrides TICKETS_DATA_FILE)")
	flagSet.StringVar(&opts.addr, "addr", "", "listen address host:port (overrides APP_HOST and APP_PORT)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(opts.envFiles...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyFlags(cfg, opts); err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Logger,
		zap.String("service", cfg.App.Name),
		zap.String("version", cfg.App.Version))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()
	healthDeps := map[string]handlers.Pinger{}

	ticketRepo, closeStore, err := openTicketStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	healthDeps["store"] = ticketRepo

	dispatcher := events.NewInMemoryDispatcher()
	var sink *events.RedisStreamSink
	if redis := persistence.NewRedis(ctx, cfg.Redis, logger); redis != nil {
		defer redis.Close()
		sink = events.NewRedisStreamSink(redis.Client, cfg.Redis.Stream, logger)
		healthDeps["redis"] = redis
	}
	notifications := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartEventSubscribers(dispatcher, notifications, sink)

	var transitions service.TransitionPolicy
	if cfg.Tickets.StrictTransitions {
		transitions = service.StrictTransitions
	}
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   ticketRepo,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
		Transitions:  transitions,
		DefaultActor: cfg.Tickets.DefaultActor,
	})

	accountRepo, err := repository.NewFileAccountRepository(cfg.Accounts.DataFile)
	if err != nil {
		return err
	}
	accountService := service.NewAccountService(service.AccountDependencies{
		AccountRepo:  accountRepo,
		TokenManager: auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		BcryptCost:   cfg.Auth.BcryptCost,
		Logger:       logger,
	})
	if err := accountService.EnsureAdmin(ctx, cfg.Accounts.AdminUsername, cfg.Accounts.AdminPassword); err != nil {
		return fmt.Errorf("seed admin account: %w", err)
	}
	authMiddleware := auth.NewAuthMiddleware(accountService.TokenManager(), accountRepo, service.WithActor)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, healthDeps),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Accounts:       handlers.NewAccountsHandler(accountService),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.App.Addr()),
			zap.String("store", cfg.Store.Backend),
			zap.Bool("strict_transitions", cfg.Tickets.StrictTransitions))
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}
	return app.Shutdown()
}

func applyFlags(cfg *config.Config, opts options) error {
	if opts.store != "" {
		cfg.Store.Backend = strings.ToLower(opts.store)
	}
	if opts.dataFile != "" {
		cfg.Store.DataFile = opts.dataFile
	}
	if opts.addr != "" {
		host, port, ok := strings.Cut(opts.addr, ":")
		if !ok || port == "" {
			return fmt.Errorf("invalid --addr %q: want host:port", opts.addr)
		}
		cfg.App.Host, cfg.App.Port = host, port
	}
	return cfg.Validate()
}

func openTicketStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.TicketRepository, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				pg.Close()
				return nil, nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		return repository.NewPostgresTicketRepository(pg.Pool), pg.Close, nil
	default:
		repo, err := repository.NewFileTicketRepository(cfg.Store.DataFile, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using file ticket store", zap.String("path", cfg.Store.DataFile))
		return repo, func() {}, nil
	}
}
