/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/numaproj/dataplane/pkg/shared/logging"
	"github.com/numaproj/dataplane/pkg/shared/queue"
	sharedtls "github.com/numaproj/dataplane/pkg/shared/tls"
)

const (
	// PendingNotAvailable is reported when no sample falls into the lookback period.
	PendingNotAvailable = int64(math.MinInt64)
	// EnvPPROF enables the pprof endpoints.
	EnvPPROF = "DATAPLANE_PPROF"
	// DefaultAddress is where the metrics server listens unless told otherwise.
	DefaultAddress = ":9090"
)

// lookbackPeriods are the periods the pending averages are exposed for.
var lookbackPeriods = map[string]int64{
	"1m":  60,
	"5m":  300,
	"15m": 900,
}

type timestampedPending struct {
	pending int64
	// timestamp in seconds
	timestamp int64
}

// metricsServer runs an HTTP server to:
// 1. Expose metrics;
// 2. Serve an endpoint to execute health checks
type metricsServer struct {
	address        string
	tlsEnabled     bool
	pendingReaders map[string]PendingReader
	// pendingCheckingInterval is how often the pending readers are sampled
	pendingCheckingInterval time.Duration
	// refreshInterval is how often the pending averages are exposed
	refreshInterval time.Duration
	pendingInfo     map[string]*queue.OverflowQueue[timestampedPending]
	// Functions that health check executes
	healthCheckExecutors []func() error
}

type Option func(*metricsServer)

// WithAddress sets the listening address
func WithAddress(addr string) Option {
	return func(m *metricsServer) {
		m.address = addr
	}
}

// WithTLS serves the metrics over HTTPS with a self-signed certificate
func WithTLS() Option {
	return func(m *metricsServer) {
		m.tlsEnabled = true
	}
}

// WithPendingReaders sets the pending readers
func WithPendingReaders(readers ...PendingReader) Option {
	return func(m *metricsServer) {
		for _, r := range readers {
			m.pendingReaders[r.GetName()] = r
		}
	}
}

// WithRefreshInterval sets how often to refresh the pending information
func WithRefreshInterval(d time.Duration) Option {
	return func(m *metricsServer) {
		m.refreshInterval = d
	}
}

// WithHealthCheckExecutor appends a health check executor
func WithHealthCheckExecutor(f func() error) Option {
	return func(m *metricsServer) {
		m.healthCheckExecutors = append(m.healthCheckExecutors, f)
	}
}

// NewMetricsOptions returns a metrics option list.
func NewMetricsOptions(ctx context.Context, healthCheckers []HealthChecker, readers []PendingReader) []Option {
	var metricsOpts []Option
	for _, hc := range healthCheckers {
		hc := hc
		metricsOpts = append(metricsOpts, WithHealthCheckExecutor(func() error {
			cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			return hc.IsHealthy(cctx)
		}))
	}
	if len(readers) > 0 {
		metricsOpts = append(metricsOpts, WithPendingReaders(readers...))
	}
	return metricsOpts
}

// NewMetricsServer returns a Prometheus metrics server instance.
func NewMetricsServer(opts ...Option) *metricsServer {
	m := &metricsServer{
		address:                 DefaultAddress,
		pendingReaders:          make(map[string]PendingReader),
		pendingCheckingInterval: 3 * time.Second,
		refreshInterval:         5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.pendingInfo = make(map[string]*queue.OverflowQueue[timestampedPending], len(m.pendingReaders))
	for name := range m.pendingReaders {
		// enough samples for the longest lookback period
		m.pendingInfo[name] = queue.New[timestampedPending](int(900/m.pendingCheckingInterval.Seconds()) + 1)
	}
	return m
}

// Handler returns the HTTP handler serving the metrics and health endpoints.
func (ms *metricsServer) Handler(ctx context.Context) http.Handler {
	log := logging.FromContext(ctx)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		for _, ex := range ms.healthCheckExecutors {
			if err := ex(); err != nil {
				log.Errorw("Failed to execute health check", zap.Error(err))
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if os.Getenv(logging.EnvDebug) == "true" || os.Getenv(EnvPPROF) == "true" {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		log.Info("Not enabling pprof debug endpoints")
	}
	return mux
}

// Start listens on the configured address and serves the metrics, it returns a shutdown function and an error if any
func (ms *metricsServer) Start(ctx context.Context) (func(ctx context.Context) error, error) {
	ln, err := net.Listen("tcp", ms.address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %q, %w", ms.address, err)
	}
	return ms.Serve(ctx, ln)
}

// Serve serves the metrics on the given listener, it returns a shutdown function and an error if any
func (ms *metricsServer) Serve(ctx context.Context, ln net.Listener) (func(ctx context.Context) error, error) {
	log := logging.FromContext(ctx)
	httpServer := &http.Server{Handler: ms.Handler(ctx)}
	if ms.tlsEnabled {
		log.Info("Generating self-signed certificate")
		cer, err := sharedtls.GenerateX509KeyPair()
		if err != nil {
			return nil, fmt.Errorf("failed to generate cert: %w", err)
		}
		httpServer.TLSConfig = &tls.Config{Certificates: []tls.Certificate{*cer}, MinVersion: tls.VersionTLS12}
		ln = tls.NewListener(ln, httpServer.TLSConfig)
	}

	pendingCtx, cancel := context.WithCancel(ctx)
	if len(ms.pendingReaders) > 0 {
		go ms.buildupPendingInfo(pendingCtx)
		go ms.exposePendingMetrics(pendingCtx)
	}

	go func() {
		log.Infow("Starting metrics server", zap.String("address", ln.Addr().String()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("Failed to serve metrics", zap.Error(err))
		}
		log.Info("Metrics server shutdown")
	}()
	return func(ctx context.Context) error {
		cancel()
		return httpServer.Shutdown(ctx)
	}, nil
}

// buildupPendingInfo samples the pending readers periodically.
func (ms *metricsServer) buildupPendingInfo(ctx context.Context) {
	ticker := time.NewTicker(ms.pendingCheckingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().Unix()
			for name, reader := range ms.pendingReaders {
				ms.pendingInfo[name].Append(timestampedPending{pending: reader.Pending(), timestamp: now})
			}
		}
	}
}

// exposePendingMetrics exposes the averaged pending information per lookback period.
func (ms *metricsServer) exposePendingMetrics(ctx context.Context) {
	ticker := time.NewTicker(ms.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name := range ms.pendingReaders {
				for period, seconds := range lookbackPeriods {
					if p := ms.calculatePending(seconds, name); p != PendingNotAvailable {
						pending.WithLabelValues(period, name).Set(float64(p))
					}
				}
			}
		}
	}
}

// calculatePending averages the samples taken within the last lookbackSeconds.
func (ms *metricsServer) calculatePending(lookbackSeconds int64, name string) int64 {
	q, ok := ms.pendingInfo[name]
	if !ok {
		return PendingNotAvailable
	}
	minTs := time.Now().Unix() - lookbackSeconds
	var total, num int64
	for _, item := range q.Items() {
		if item.timestamp >= minTs {
			total += item.pending
			num++
		}
	}
	if num == 0 {
		return PendingNotAvailable
	}
	return total / num
}
