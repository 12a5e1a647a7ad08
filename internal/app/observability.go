package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-invoice/internal/config"
	"github.com/noah-isme/backend-invoice/internal/obs"
)

// Observability holds what a binary needs to expose telemetry.
type Observability struct {
	Logger         zerolog.Logger
	HTTPMetrics    *obs.HTTPMetrics
	TracingEnabled bool
	shutdown       func(context.Context) error
}

// SetupObservability builds the logger, registers Prometheus collectors and
// starts the tracer provider when enabled. A tracer that fails to start is
// logged and tracing stays off.
func SetupObservability(ctx context.Context, cfg *config.Config, service string) *Observability {
	o := &Observability{
		Logger: obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().
			Str("env", cfg.AppEnv).
			Str("component", service).
			Logger(),
	}

	if cfg.Obs.EnablePrometheus {
		obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
		o.HTTPMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
	}

	if cfg.Obs.EnableTracing {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   service,
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			o.Logger.Error().Err(err).Msg("initialise tracing")
		} else {
			o.TracingEnabled = true
			o.shutdown = shutdown
		}
	}
	return o
}

// Shutdown flushes pending spans.
func (o *Observability) Shutdown(ctx context.Context) {
	if o.shutdown == nil {
		return
	}
	if err := o.shutdown(ctx); err != nil {
		o.Logger.Error().Err(err).Msg("shutdown tracer")
	}
}
