package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"

	"template-publisher/internal/common/logger"
)

// Observability records publisher runs through an OpenTelemetry meter that
// is exported on the Prometheus registry. A nil *Observability is valid and
// records nothing.
type Observability struct {
	meterProvider *metric.MeterProvider
	runCounter    otelmetric.Int64Counter
	runDuration   otelmetric.Float64Histogram
	recordCounter otelmetric.Int64Counter
}

func New(serviceName string, log logger.Logger) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("Failed to create Prometheus exporter, OTel metrics disabled", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	runCounter, _ := meter.Int64Counter(
		"publisher.runs",
		otelmetric.WithDescription("Number of publisher runs"),
	)
	runDuration, _ := meter.Float64Histogram(
		"publisher.run.duration",
		otelmetric.WithDescription("Publisher run duration"),
		otelmetric.WithUnit("ms"),
	)
	recordCounter, _ := meter.Int64Counter(
		"publisher.records",
		otelmetric.WithDescription("Template records handled"),
	)

	return &Observability{
		meterProvider: provider,
		runCounter:    runCounter,
		runDuration:   runDuration,
		recordCounter: recordCounter,
	}
}

func (o *Observability) RecordRun(ctx context.Context, mode string, statusCode int, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Int("status_code", statusCode),
	)
	if o.runCounter != nil {
		o.runCounter.Add(ctx, 1, attrs)
	}
	if o.runDuration != nil {
		o.runDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) RecordRecord(ctx context.Context, mode, outcome string) {
	if o == nil || o.recordCounter == nil {
		return
	}
	o.recordCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	))
}

func (o *Observability) Shutdown() {
	if o == nil || o.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = o.meterProvider.Shutdown(ctx)
}
