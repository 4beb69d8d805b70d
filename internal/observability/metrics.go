package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/apresai/papercast"

// InitMetrics installs a global MeterProvider backed by a Prometheus
// exporter on its own registry and returns the /metrics handler.
func InitMetrics() (*sdkmetric.MeterProvider, http.Handler, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(mp)
	return mp, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// Metrics holds the pipeline's instruments. A nil *Metrics records nothing.
type Metrics struct {
	segments  metric.Int64Counter
	synthTime metric.Float64Histogram
	published metric.Int64Counter
	failed    metric.Int64Counter
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)

	segments, err := meter.Int64Counter("papercast.segments.synthesized",
		metric.WithDescription("Utterances synthesized successfully"))
	if err != nil {
		return nil, err
	}
	synthTime, err := meter.Float64Histogram("papercast.synthesis.duration",
		metric.WithDescription("Wall time of the synthesis stage"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	published, err := meter.Int64Counter("papercast.episodes.published",
		metric.WithDescription("Episodes whose artifact was published"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("papercast.episodes.failed",
		metric.WithDescription("Episodes that ended in the failed state"))
	if err != nil {
		return nil, err
	}
	return &Metrics{segments: segments, synthTime: synthTime, published: published, failed: failed}, nil
}

func (m *Metrics) SegmentSynthesized(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.segments.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

func (m *Metrics) SynthesisDuration(ctx context.Context, provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.synthTime.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("provider", provider)))
}

func (m *Metrics) EpisodePublished(ctx context.Context, tier string) {
	if m == nil {
		return
	}
	m.published.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

func (m *Metrics) EpisodeFailed(ctx context.Context, stage, kind string) {
	if m == nil {
		return
	}
	m.failed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("kind", kind),
	))
}
