package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor counts control RPCs by method and status code and
// records their latency. A nil collector passes requests through.
func (c *SimCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if c == nil {
			return handler(ctx, req)
		}
		start := time.Now()
		resp, err := handler(ctx, req)

		method := "unknown"
		if info != nil && info.FullMethod != "" {
			method = path.Base(info.FullMethod)
		}
		c.Requests.WithLabelValues(method, status.Code(err).String()).Inc()
		c.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// Handler serves the collector's registry in the Prometheus text format.
// A nil collector serves the default gatherer.
func (c *SimCollector) Handler() http.Handler {
	g := c.Gatherer()
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// register adds c to reg. When an equal collector is already registered the
// existing one is returned so several collectors can share a registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var zero T
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return zero, err
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return zero, fmt.Errorf("observability: %T collides with a registered %T", c, are.ExistingCollector)
	}
	return existing, nil
}
