package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/wonderpush/segmenter/internal/core/api"
)

// Metrics holds the service collectors on a dedicated registry.
type Metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	matchDuration prometheus.Histogram
}

// NewMetrics creates and registers the service collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "segmenter_requests_total",
			Help: "Segmenter RPCs by method and outcome.",
		}, []string{"method", "outcome"}),
		matchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "segmenter_match_duration_seconds",
			Help:    "Time spent serving Match, including segment parsing.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}
	m.registry.MustRegister(m.requests, m.matchDuration)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// UnaryInterceptor counts requests and times Match calls.
// Outcome is "match", "nomatch", "ok" or the lowercased gRPC code.
func (m *Metrics) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if info.FullMethod == api.MatchMethod {
			m.matchDuration.Observe(time.Since(start).Seconds())
		}
		m.requests.WithLabelValues(methodName(info.FullMethod), outcome(resp, err)).Inc()
		return resp, err
	}
}

func methodName(fullMethod string) string {
	for i := len(fullMethod) - 1; i >= 0; i-- {
		if fullMethod[i] == '/' {
			return fullMethod[i+1:]
		}
	}
	return fullMethod
}

func outcome(resp any, err error) string {
	if err != nil {
		return codeLabel(status.Code(err).String())
	}
	if b, ok := resp.(*wrapperspb.BoolValue); ok {
		if b.GetValue() {
			return "match"
		}
		return "nomatch"
	}
	return "ok"
}

// codeLabel turns "InvalidArgument" into "invalid_argument".
func codeLabel(code string) string {
	out := make([]byte, 0, len(code)+4)
	for i := 0; i < len(code); i++ {
		c := code[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// MetricsServer exposes the registry over HTTP at /metrics.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates an HTTP server for m listening on addr.
func NewMetricsServer(addr string, m *Metrics) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves until Shutdown is called.
func (s *MetricsServer) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
