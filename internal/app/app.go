package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sarkarn/clinprecision-sub002/internal/adapter/postgres"
	buildrepo "github.com/sarkarn/clinprecision-sub002/internal/adapter/postgres/build"
	patientrepo "github.com/sarkarn/clinprecision-sub002/internal/adapter/postgres/patient"
	processedrepo "github.com/sarkarn/clinprecision-sub002/internal/adapter/postgres/processed"
	visitrepo "github.com/sarkarn/clinprecision-sub002/internal/adapter/postgres/visit"
	"github.com/sarkarn/clinprecision-sub002/internal/bridge"
	"github.com/sarkarn/clinprecision-sub002/internal/command"
	"github.com/sarkarn/clinprecision-sub002/internal/config"
	"github.com/sarkarn/clinprecision-sub002/internal/eventlog"
	"github.com/sarkarn/clinprecision-sub002/internal/projector"
	"github.com/sarkarn/clinprecision-sub002/internal/scheduler"
	"github.com/sarkarn/clinprecision-sub002/internal/transport/middleware"
	"github.com/sarkarn/clinprecision-sub002/internal/transport/rest"
)

// Run is the application entry point. It loads configuration, connects
// to the database, wires the command pipeline (dispatcher, event log,
// projectors, consistency bridge) to the HTTP transport, and serves
// until the context is cancelled.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := NewLogger(cfg.Log)

	logger.Info("starting application",
		slog.String("version", BuildVersion()),
		slog.String("log_level", cfg.Log.Level),
	)

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	patients := patientrepo.New(pool)
	builds := buildrepo.New(pool)
	visits := visitrepo.New(pool)
	processed := processedrepo.New(pool)
	txManager := postgres.NewTxManager(pool)

	events := eventlog.NewMemLog(logger)
	defer events.Close()

	visitScheduler := scheduler.New(visits, builds, logger)

	patientProjector := projector.NewPatientProjector(patients, processed, txManager, visitScheduler, logger)
	patientProjector.Register(events)

	buildProjector := projector.NewBuildProjector(builds, processed, txManager, logger)
	buildProjector.Register(events)

	dispatcher := command.NewDispatcher(logger, events, builds)
	bus := submitTimeoutBus{bus: dispatcher, timeout: cfg.Pipeline.SubmitTimeout}

	consistencyBridge := bridge.New(
		cfg.Pipeline.ProjectionInterval,
		cfg.Pipeline.ProjectionWaitTimeout,
		bridge.RealClock(),
		logger,
	)

	mux := http.NewServeMux()

	healthHandler := rest.NewHealthHandler(pool, BuildVersion())
	mux.HandleFunc("GET /health/live", healthHandler.Live)
	mux.HandleFunc("GET /health/ready", healthHandler.Ready)

	rest.NewPatientHandler(bus, patients, visits, consistencyBridge).Register(mux)
	rest.NewBuildHandler(bus, builds, builds, consistencyBridge).Register(mux)

	handler := middleware.Chain(
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.Recovery(logger),
	)(mux)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", slog.Duration("timeout", cfg.Server.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// submitTimeoutBus bounds every command submission with the configured
// pipeline timeout.
type submitTimeoutBus struct {
	bus     *command.Dispatcher
	timeout time.Duration
}

func (b submitTimeoutBus) Submit(ctx context.Context, cmd command.Command) (command.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.bus.Submit(ctx, cmd)
}
