package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"google.golang.org/grpc"

	"github.com/chungtau/mti-gateway/internal/config"
	"github.com/chungtau/mti-gateway/internal/eventlog"
	"github.com/chungtau/mti-gateway/internal/grpcapi"
	"github.com/chungtau/mti-gateway/internal/handler"
	"github.com/chungtau/mti-gateway/internal/middleware"
	"github.com/chungtau/mti-gateway/internal/model"
	"github.com/chungtau/mti-gateway/internal/notify"
	"github.com/chungtau/mti-gateway/internal/payout"
	"github.com/chungtau/mti-gateway/internal/processor"
	"github.com/chungtau/mti-gateway/internal/store"
)

// Server represents the HTTP and gRPC servers with all their dependencies
type Server struct {
	cfg         *config.Config
	logger      zerolog.Logger
	httpServer  *http.Server
	grpcServer  *grpc.Server
	grpcService *grpcapi.Service
	processor   *processor.Processor
	redisClient *redis.Client
	mongoClient *mongo.Client
	kafkaSink   *eventlog.KafkaSink
}

// New creates a new server instance
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}

	var (
		txStore   processor.Store
		merchants processor.MerchantDirectory
		idem      middleware.IdempotencyStore
		limits    middleware.RateLimitStore
	)
	health := map[string]handler.Pinger{"redis": nil, "mongo": nil}

	if cfg.MockMode {
		logger.Info().Msg("using in-memory store with demo merchants")
		mem := store.NewMemory()
		store.SeedMemory(mem)
		txStore, merchants = mem, mem
		idem, limits = store.NewMemoryIdempotency(), store.NewMemoryRateLimiter()
	} else {
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connecting to redis")
		s.redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}

		rs := store.NewRedisStore(s.redisClient)
		txStore, merchants = rs, rs
		idem, limits = store.NewRedisIdempotency(s.redisClient), store.NewRedisRateLimiter(s.redisClient)
		health["redis"] = rs

		if cfg.MongoURI != "" {
			mm, err := s.connectMongo(ctx)
			if err != nil {
				return nil, err
			}
			merchants = mm
			health["mongo"] = mm
		}

		if cfg.DevMode {
			if err := seed(ctx, merchants); err != nil {
				return nil, err
			}
		}
	}

	hub := notify.NewHub(logger)
	var publisher notify.Publisher = hub
	if len(cfg.KafkaBrokers) > 0 {
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaEventsTopic).Msg("mirroring events to kafka")
		s.kafkaSink = eventlog.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaEventsTopic, logger)
		publisher = notify.Tee(hub, s.kafkaSink)
	}

	router := payout.NewRouter(
		payout.SimulatedBank{Latency: cfg.BankLatency},
		payout.SimulatedCrypto{Latency: cfg.CryptoLatency},
	)

	s.processor = processor.New(txStore, merchants, publisher, router,
		processor.WithLatencies(cfg.AuthLatency, cfg.CaptureLatency),
		processor.WithSuccessRate(cfg.CaptureSuccessRate),
		processor.WithDefaultCurrency(cfg.DefaultCurrency),
		processor.WithLogger(logger),
	)

	engine := SetupRouter(cfg, RouterDeps{
		Transactions: s.processor,
		Hub:          hub,
		Idempotency:  idem,
		Health:       health,
		RateLimits:   limits,
		Logger:       logger,
	})

	// WriteTimeout stays zero: /v1/events holds the response open.
	// Request contexts derive from baseCtx; cancelling it on shutdown ends open
	// event streams.
	baseCtx, stopStreams := context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Addr:        ":" + cfg.GatewayPort,
		Handler:     engine,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	s.httpServer.RegisterOnShutdown(stopStreams)

	s.grpcService = grpcapi.NewService(hub, s.processor, cfg.SubscriberBuffer, logger)
	s.grpcServer = grpcapi.NewServer(s.grpcService, cfg.JWTSecret)

	return s, nil
}

func (s *Server) connectMongo(ctx context.Context) (*store.MongoMerchants, error) {
	s.logger.Info().Str("database", s.cfg.MongoDatabase).Msg("connecting to mongodb")
	client, err := mongo.Connect(options.Client().ApplyURI(s.cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	s.mongoClient = client

	mm := store.NewMongoMerchants(client, s.cfg.MongoDatabase)
	if err := mm.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return mm, nil
}

type merchantWriter interface {
	PutMerchant(ctx context.Context, s model.MerchantPayoutSettings) error
}

// seed writes the demo merchants into a persistent directory.
func seed(ctx context.Context, dir processor.MerchantDirectory) error {
	w, ok := dir.(merchantWriter)
	if !ok {
		return nil
	}
	for _, m := range store.DemoMerchants() {
		if err := w.PutMerchant(ctx, m); err != nil {
			return fmt.Errorf("seed merchant %s: %w", m.MerchantID, err)
		}
	}
	return nil
}

// Run starts the servers and handles graceful shutdown
func (s *Server) Run() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 2)

	go func() {
		s.logger.Info().
			Str("port", s.cfg.GatewayPort).
			Bool("mock_mode", s.cfg.MockMode).
			Bool("dev_mode", s.cfg.DevMode).
			Msg("starting HTTP gateway")
		if s.cfg.DevMode {
			s.logger.Info().Msg("dev token endpoint available at POST /auth/dev/token")
		}
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http: %w", err)
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", ":"+s.cfg.GRPCPort)
		if err != nil {
			errChan <- fmt.Errorf("grpc listen: %w", err)
			return
		}
		s.logger.Info().Str("port", s.cfg.GRPCPort).Msg("starting gRPC notifications")
		if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("grpc: %w", err)
		}
	}()

	var runErr error
	select {
	case runErr = <-errChan:
		s.logger.Error().Err(runErr).Msg("server failed, shutting down")
	case sig := <-sigChan:
		s.logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	s.grpcService.Shutdown()
	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}

	// In-flight pipelines finish before their stores close.
	s.processor.Wait()

	if s.kafkaSink != nil {
		if err := s.kafkaSink.Close(); err != nil {
			s.logger.Error().Err(err).Msg("kafka writer close error")
		}
	}
	if s.mongoClient != nil {
		if err := s.mongoClient.Disconnect(ctx); err != nil {
			s.logger.Error().Err(err).Msg("mongodb disconnect error")
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error().Err(err).Msg("redis client close error")
		}
	}

	s.logger.Info().Msg("server gracefully stopped")
	return runErr
}
