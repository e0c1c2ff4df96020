package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/gsd/internal/generators"
	"github.com/inferloop/gsd/pkg/constants"
)

// PrometheusMetrics exports search progress as Prometheus metrics.
type PrometheusMetrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry
	server   *http.Server
	config   *PrometheusConfig

	phaseDuration    *prometheus.HistogramVec
	generationsTotal prometheus.Counter
	bestFitness      prometheus.Gauge
	roundsTotal      prometheus.Counter
	roundMaxError    prometheus.Gauge
	roundAvgError    prometheus.Gauge
	rhoSpent         prometheus.Gauge
}

// PrometheusConfig configures Prometheus metrics
type PrometheusConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Port      int    `json:"port" mapstructure:"port"`
	Path      string `json:"path" mapstructure:"path"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
	Subsystem string `json:"subsystem" mapstructure:"subsystem"`
}

// DefaultPrometheusConfig returns the default configuration.
func DefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Enabled:   false,
		Port:      constants.DefaultMetricsPort,
		Path:      constants.DefaultMetricsPath,
		Namespace: "gsd",
		Subsystem: "search",
	}
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
func NewPrometheusMetrics(config *PrometheusConfig, logger *logrus.Logger) (*PrometheusMetrics, error) {
	if config == nil {
		config = DefaultPrometheusConfig()
	}

	if logger == nil {
		logger = logrus.New()
	}

	pm := &PrometheusMetrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		config:   config,
	}

	pm.initializeMetrics()

	if err := pm.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return pm, nil
}

// Registry exposes the underlying registry.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

// Hooks returns generator hooks feeding these metrics.
func (pm *PrometheusMetrics) Hooks() *generators.Hooks {
	return &generators.Hooks{
		OnPhase:      pm.RecordPhase,
		OnGeneration: pm.RecordGeneration,
		OnRound:      pm.RecordRound,
	}
}

// RecordPhase observes the duration of one search phase.
func (pm *PrometheusMetrics) RecordPhase(phase generators.Phase, elapsed time.Duration) {
	pm.phaseDuration.WithLabelValues(string(phase)).Observe(elapsed.Seconds())
}

// RecordGeneration counts a finished generation.
func (pm *PrometheusMetrics) RecordGeneration(_ int, bestFitness float64) {
	pm.generationsTotal.Inc()
	pm.bestFitness.Set(bestFitness)
}

// RecordRound records an adaptive round.
func (pm *PrometheusMetrics) RecordRound(report generators.RoundReport) {
	pm.roundsTotal.Inc()
	pm.roundMaxError.Set(report.Errors.MaxError)
	pm.roundAvgError.Set(report.Errors.AverageError)
}

// SetRhoSpent records the zCDP budget consumed so far.
func (pm *PrometheusMetrics) SetRhoSpent(rho float64) {
	pm.rhoSpent.Set(rho)
}

// Start starts the Prometheus metrics server
func (pm *PrometheusMetrics) Start(ctx context.Context) error {
	if !pm.config.Enabled {
		pm.logger.Info("Prometheus metrics disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(pm.config.Path, promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	pm.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", pm.config.Port),
		Handler: mux,
	}

	pm.logger.WithFields(logrus.Fields{
		"port": pm.config.Port,
		"path": pm.config.Path,
	}).Info("Starting Prometheus metrics server")

	go func() {
		if err := pm.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			pm.logger.WithError(err).Error("Prometheus metrics server error")
		}
	}()

	return nil
}

// Stop stops the Prometheus metrics server
func (pm *PrometheusMetrics) Stop(ctx context.Context) error {
	if pm.server == nil {
		return nil
	}

	pm.logger.Info("Stopping Prometheus metrics server")
	return pm.server.Shutdown(ctx)
}

func (pm *PrometheusMetrics) initializeMetrics() {
	namespace := pm.config.Namespace
	subsystem := pm.config.Subsystem

	pm.phaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "phase_duration_seconds",
			Help:      "Duration of search phases in seconds",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		},
		[]string{"phase"},
	)

	pm.generationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "generations_total",
		Help:      "Total number of generations evaluated",
	})

	pm.bestFitness = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "best_fitness",
		Help:      "Best fitness of the current search",
	})

	pm.roundsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "adaptive_rounds_total",
		Help:      "Total number of adaptive rounds completed",
	})

	pm.roundMaxError = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "round_max_error",
		Help:      "Max absolute error against all true statistics after the last round",
	})

	pm.roundAvgError = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "round_average_error",
		Help:      "Average absolute error against all true statistics after the last round",
	})

	pm.rhoSpent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "privacy_rho_spent",
		Help:      "zCDP budget consumed",
	})
}

func (pm *PrometheusMetrics) registerMetrics() error {
	collectors := []prometheus.Collector{
		pm.phaseDuration,
		pm.generationsTotal,
		pm.bestFitness,
		pm.roundsTotal,
		pm.roundMaxError,
		pm.roundAvgError,
		pm.rhoSpent,
	}

	for _, collector := range collectors {
		if err := pm.registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}
