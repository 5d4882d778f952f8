package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/chat-service/config"
	"github.com/cwrk-planet/chat-service/internal/fanout"
	"github.com/cwrk-planet/chat-service/internal/postgres"
	"github.com/cwrk-planet/chat-service/internal/realtime"
	"github.com/cwrk-planet/chat-service/internal/security"
	"github.com/cwrk-planet/chat-service/internal/service"
	grpcx "github.com/cwrk-planet/chat-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/chat-service/internal/transport/http"
	"github.com/cwrk-planet/chat-service/internal/transport/ws"
	"github.com/cwrk-planet/chat-service/migrations"
	"github.com/cwrk-planet/chat-service/pkg/logger"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting chat-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "bus", cfg.Bus.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- postgres ---
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	if cfg.Postgres.Migrate {
		if _, err := db.Migrate(ctx, migrations.FS); err != nil {
			log.Fatalf("postgres migrate: %v", err)
		}
	}

	checks := []grpcx.Check{{Name: "postgres", Ping: db.Ping}}

	// --- repos ---
	userRepo := postgres.NewUserRepository(db.Pool)
	convRepo := postgres.NewConversationRepository(db.Pool)
	msgRepo := postgres.NewMessageRepository(db.Pool)

	// --- services ---
	memberSvc := service.NewMemberService(convRepo)
	chatSvc := service.NewChatService(msgRepo, memberSvc)
	convSvc := service.NewConversationService(convRepo, memberSvc)
	userSvc := service.NewUserService(userRepo)

	// --- realtime core ---
	jwt := security.NewJWTManager(cfg.Security.JWT.ToSecurityConfig(), nil)
	auth := realtime.NewAuthenticator(jwt)
	rooms := realtime.NewRoomManager(memberSvc)
	typing := realtime.NewTypingTracker(cfg.Realtime.TypingTTL, nil)

	g, gctx := errgroup.WithContext(ctx)

	// --- fan-out bus ---
	var bus realtime.Publisher
	switch cfg.Bus.Driver {
	case config.BusRedis:
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("redis url: %v", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		rb := fanout.NewRedis(rdb, cfg.Redis.Channel, rooms)
		g.Go(func() error { return rb.Run(gctx) })
		checks = append(checks, grpcx.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		bus = rb
	case config.BusNATS:
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name(cfg.Logging.Service),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		defer nc.Close()

		nb := fanout.NewNATS(nc, cfg.NATS.Subject, rooms)
		g.Go(func() error { return nb.Run(gctx) })
		checks = append(checks, grpcx.Check{Name: "nats", Ping: func(ctx context.Context) error {
			return nc.FlushWithContext(ctx)
		}})
		bus = nb
	default:
		mb := fanout.NewMemory()
		mb.Attach(rooms)
		bus = mb
	}

	router := realtime.NewRouter(rooms, memberSvc, chatSvc, typing, bus)

	// --- WS ---
	wsServer, err := ws.NewServer(auth, rooms, router, ws.Options{
		PingInterval: cfg.Realtime.PingInterval,
		SendBuffer:   cfg.Realtime.SendBuffer,
		ReadLimit:    cfg.Realtime.ReadLimit,
	})
	if err != nil {
		log.Fatalf("ws server: %v", err)
	}

	// --- HTTP ---
	handler := httpx.NewHandler(userSvc, convSvc, chatSvc, bus)
	httpSrv := &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     httpx.NewRouter(handler, jwt, wsServer.HandleWS),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// --- gRPC ---
	health := grpcx.NewHealth(checks...)
	grpcServer := grpcx.NewServer(health)

	// --- run ---
	g.Go(func() error {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return err
		}
		slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
		return grpcServer.Serve(lis)
	})

	g.Go(func() error { return health.Run(gctx, cfg.GRPC.ProbeInterval) })
	g.Go(func() error { return typing.Run(gctx, cfg.Realtime.SweepInterval) })

	// --- graceful shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		health.Shutdown()
		grpcServer.GracefulStop()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
	}
	slog.Info("stopped")
}
