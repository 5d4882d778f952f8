package grpcx

import (
	"context"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-service/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service reported for the realtime layer. The
// empty name tracks the process itself and stays SERVING until shutdown.
const ServiceName = "chat.realtime"

// Check pings one backing dependency (postgres, redis, nats).
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Health struct {
	srv     *health.Server
	checks  []Check
	timeout time.Duration

	mu      sync.Mutex
	serving bool
	failing map[string]string
}

func NewHealth(checks ...Check) *Health {
	h := &Health{
		srv:     health.NewServer(),
		checks:  checks,
		timeout: 2 * time.Second,
		failing: map[string]string{},
	}
	h.srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.srv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// NewServer builds the gRPC server with logging interceptors and the
// health service registered.
func NewServer(h *Health) *grpc.Server {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	)
	healthpb.RegisterHealthServer(gs, h.srv)
	return gs
}

// Probe runs every check once and flips ServiceName accordingly. It returns
// true when all checks passed.
func (h *Health) Probe(ctx context.Context) bool {
	failing := map[string]string{}
	for _, c := range h.checks {
		cctx, cancel := context.WithTimeout(ctx, h.timeout)
		err := c.Ping(cctx)
		cancel()
		if err != nil {
			failing[c.Name] = err.Error()
		}
	}
	ok := len(failing) == 0

	h.mu.Lock()
	changed := ok != h.serving
	for name, msg := range failing {
		if h.failing[name] != msg {
			logger.FromContext(ctx).Warn("health check failed", "dep", name, "err", msg)
		}
	}
	h.serving = ok
	h.failing = failing
	h.mu.Unlock()

	if changed {
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if ok {
			st = healthpb.HealthCheckResponse_SERVING
		}
		h.srv.SetServingStatus(ServiceName, st)
		logger.FromContext(ctx).Info("health status changed", "service", ServiceName, "status", st.String())
	}
	return ok
}

// Run probes immediately and then every interval until ctx is done.
func (h *Health) Run(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = 5 * time.Second
	}
	h.Probe(ctx)

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			h.Probe(ctx)
		}
	}
}

// Shutdown reports NOT_SERVING for every service and ignores later updates.
func (h *Health) Shutdown() {
	h.srv.Shutdown()
}
