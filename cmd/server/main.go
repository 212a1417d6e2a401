package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-qc-inspections/internal/client"
	"github.com/pesio-ai/be-qc-inspections/internal/handler"
	"github.com/pesio-ai/be-qc-inspections/internal/metrics"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/config"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/database"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/logger"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/middleware"
	natsclient "github.com/pesio-ai/be-qc-inspections/internal/platform/nats"
	"github.com/pesio-ai/be-qc-inspections/internal/repository"
	"github.com/pesio-ai/be-qc-inspections/internal/service"
	"github.com/pesio-ai/be-qc-inspections/internal/template"
)

// streamName is the JetStream stream holding inspection events.
const streamName = "QC_INSPECTIONS"

func main() {
	configPath := flag.String("config", os.Getenv("QC_CONFIG"), "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Str("storage", cfg.Storage.Driver).
		Msg("Starting QC Inspections Service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open inspection store")
	}
	defer closeStore()
	log.Info().Str("driver", cfg.Storage.Driver).Msg("Inspection store ready")

	// Load template sets
	templates, err := template.LoadFile(cfg.Templates.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Templates.Path).Msg("Failed to load template sets")
	}
	sets, _ := templates.List(ctx)
	log.Info().Str("path", templates.Path()).Int("template_sets", len(sets)).Msg("Template sets loaded")

	m := metrics.New(prometheus.DefaultRegisterer)

	opts := []service.Option{service.WithMetrics(m)}

	// Request-id deduplication
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
		}
		opts = append(opts, service.WithIdempotency(repository.NewRedisIdempotency(rdb, cfg.Redis.IdempotencyTTL)))
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis idempotency guard enabled")
	} else {
		opts = append(opts, service.WithIdempotency(repository.NewMemoryIdempotency(cfg.Redis.IdempotencyTTL)))
	}

	// Roster source
	if cfg.Roster.Enabled {
		rosterClient, err := client.NewRosterGRPCClient(cfg.Roster.Addr, cfg.Roster.Timeout)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create roster gRPC client")
		}
		defer rosterClient.Close()
		opts = append(opts, service.WithRosterSource(rosterClient))
		log.Info().Str("roster_grpc", cfg.Roster.Addr).Msg("Roster client initialized")
	}

	// Event publishing
	var publisher client.Publisher
	if cfg.NATS.Enabled {
		nc, err := natsclient.Connect(natsclient.Config{URL: cfg.NATS.URL, Name: cfg.Service.Name}, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Close()
		if err := nc.EnsureStream(ctx, streamName, cfg.NATS.SubjectPrefix+".>"); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure NATS stream")
		}
		publisher = nc
		log.Info().Str("url", cfg.NATS.URL).Str("stream", streamName).Msg("NATS publishing enabled")
	} else {
		log.Warn().Msg("NATS disabled, inspection events will not be published")
	}
	notifier := client.NewNotificationPublisher(publisher, cfg.NATS.SubjectPrefix, log.Logger)
	dispatcher := service.NewDispatcher(notifier, cfg.Dispatcher.Workers, cfg.Dispatcher.QueueSize, m, log)
	opts = append(opts, service.WithEventSink(dispatcher))

	// Initialize services
	inspectionService := service.NewInspectionService(store, templates, log, opts...)

	// Setup HTTP routes
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler.NewHTTPHandler(inspectionService, log).RegisterRoutes(mux)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS(cfg.Server.CORSOrigins)(h)
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Setup gRPC server
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.UnaryRecovery(log),
		handler.UnaryLogging(log),
	))
	handler.NewGRPCHandler(inspectionService, log).Register(grpcServer)
	healthServer := health.NewServer()
	healthServer.SetServingStatus(handler.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer) // Enable reflection for debugging

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dispatcher.Run(gctx)
	})

	g.Go(func() error {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		healthServer.Shutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
		closeStore()
		os.Exit(1)
	}

	log.Info().Msg("Server stopped")
}

// openStore builds the configured inspection store and its cleanup func.
func openStore(ctx context.Context, cfg *config.Config) (repository.InspectionStore, func(), error) {
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := database.New(ctx, database.Config{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			Database:    cfg.Database.Database,
			SSLMode:     cfg.Database.SSLMode,
			MaxConns:    cfg.Database.MaxConns,
			MinConns:    cfg.Database.MinConns,
			MaxConnTime: cfg.Database.MaxConnTime,
			MaxIdleTime: cfg.Database.MaxIdleTime,
			HealthCheck: cfg.Database.HealthCheck,
		})
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresStore(db), db.Close, nil
	case "badger":
		s, err := repository.OpenBadger(cfg.Storage.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return repository.NewMemoryStore(), func() {}, nil
	}
}
