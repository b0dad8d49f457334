package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Checker performs one reachability check.
type Checker interface {
	Check(ctx context.Context) error
}

// GRPCHealth checks the standard grpc.health.v1 service.
type GRPCHealth struct {
	client healthpb.HealthClient
}

// NewGRPCHealth builds a checker over an existing connection.
func NewGRPCHealth(cc grpc.ClientConnInterface) *GRPCHealth {
	return &GRPCHealth{client: healthpb.NewHealthClient(cc)}
}

func (g *GRPCHealth) Check(ctx context.Context) error {
	resp, err := g.client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("health status %s", resp.GetStatus())
	}
	return nil
}

// HTTPHealth checks GET {base}/healthz.
type HTTPHealth struct {
	url    string
	client *http.Client
}

// NewHTTPHealth builds a checker for the given base URL.
func NewHTTPHealth(baseURL string, client *http.Client) *HTTPHealth {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPHealth{url: baseURL + "/healthz", client: client}
}

func (h *HTTPHealth) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthz status %d", resp.StatusCode)
	}
	return nil
}

// Prober periodically checks reachability and feeds the result to a Monitor.
type Prober struct {
	checker  Checker
	monitor  *Monitor
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

// NewProber builds a prober. Each check is bounded by timeout.
func NewProber(checker Checker, monitor *Monitor, interval, timeout time.Duration, log *zap.Logger) *Prober {
	if log == nil {
		log = zap.NewNop()
	}
	return &Prober{checker: checker, monitor: monitor, interval: interval, timeout: timeout, log: log}
}

// ProbeOnce runs a single check and updates the monitor.
func (p *Prober) ProbeOnce(ctx context.Context) bool {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := p.checker.Check(cctx)
	online := err == nil
	if !online && p.monitor.Online() {
		p.log.Info("record store unreachable", zap.Error(err))
	}
	p.monitor.Set(online)
	return online
}

// Run probes until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	p.ProbeOnce(ctx)
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.ProbeOnce(ctx)
		}
	}
}
