package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/zonefwd/internal/logging"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all daemon metrics. Methods are safe on a nil Registry
// so components can run without metrics.
type Registry struct {
	// Reconciliation
	Transitions       *prometheus.CounterVec
	PollFailures      prometheus.Counter
	AddressedNetworks prometheus.Gauge

	// Control plane
	ControlRequests *prometheus.CounterVec
	ConfigReload    *prometheus.CounterVec

	// Packet filter
	Commits     *prometheus.CounterVec
	RuleEntries *prometheus.GaugeVec
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = New(prometheus.DefaultRegisterer)
	})
	return registry
}

// New creates a Registry whose collectors are registered with reg.
func New(reg prometheus.Registerer) *Registry {
	f := promauto.With(reg)
	r := &Registry{}

	r.Transitions = f.NewCounterVec(prometheus.CounterOpts{
		Name: "zonefwd_transitions_total",
		Help: "Interface state transitions observed by the reconciler",
	}, []string{"network", "transition"})

	r.PollFailures = f.NewCounter(prometheus.CounterOpts{
		Name: "zonefwd_poll_failures_total",
		Help: "Address polls that failed and were skipped",
	})

	r.AddressedNetworks = f.NewGauge(prometheus.GaugeOpts{
		Name: "zonefwd_addressed_networks",
		Help: "Networks that currently have an address",
	})

	r.ControlRequests = f.NewCounterVec(prometheus.CounterOpts{
		Name: "zonefwd_control_requests_total",
		Help: "Control socket requests by type and result",
	}, []string{"type", "result"})

	r.ConfigReload = f.NewCounterVec(prometheus.CounterOpts{
		Name: "zonefwd_config_reloads_total",
		Help: "Configuration reloads by result",
	}, []string{"result"})

	r.Commits = f.NewCounterVec(prometheus.CounterOpts{
		Name: "zonefwd_commits_total",
		Help: "Packet filter table commits by table and result",
	}, []string{"table", "result"})

	r.RuleEntries = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "zonefwd_rule_entries",
		Help: "Rule entries per chain after the last commit",
	}, []string{"table", "chain"})

	return r
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordTransition records an interface transition.
func (r *Registry) RecordTransition(network, transition string) {
	if r == nil {
		return
	}
	r.Transitions.WithLabelValues(network, transition).Inc()
}

// RecordPollFailure records a skipped reconciliation cycle.
func (r *Registry) RecordPollFailure() {
	if r == nil {
		return
	}
	r.PollFailures.Inc()
}

// SetAddressedNetworks updates the addressed network gauge.
func (r *Registry) SetAddressedNetworks(n int) {
	if r == nil {
		return
	}
	r.AddressedNetworks.Set(float64(n))
}

// RecordControlRequest records a handled control request.
func (r *Registry) RecordControlRequest(typ string, err error) {
	if r == nil {
		return
	}
	r.ControlRequests.WithLabelValues(typ, result(err)).Inc()
}

// RecordReload records a configuration reload.
func (r *Registry) RecordReload(err error) {
	if r == nil {
		return
	}
	r.ConfigReload.WithLabelValues(result(err)).Inc()
}

// RecordCommit records a table commit.
func (r *Registry) RecordCommit(table string, err error) {
	if r == nil {
		return
	}
	r.Commits.WithLabelValues(table, result(err)).Inc()
}

// SetRuleEntries records the entry count of one chain.
func (r *Registry) SetRuleEntries(table, chain string, n int) {
	if r == nil {
		return
	}
	r.RuleEntries.WithLabelValues(table, chain).Set(float64(n))
}

// ResetRuleEntries drops every per-chain gauge, used after a ruleset clear.
func (r *Registry) ResetRuleEntries() {
	if r == nil {
		return
	}
	r.RuleEntries.Reset()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
