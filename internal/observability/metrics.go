package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/config"
)

const meterName = "github.com/HusseinTALL/GARBAKING-POS-sub001"

var (
	repositoryOpsOnce    sync.Once
	repositoryOpsCounter metric.Int64Counter
)

// InitMetrics configures the global meter provider. Disabled metrics still get
// a provider so instrument lookups never fail.
func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		return mp, nil
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	otel.SetMeterProvider(mp)
	logger.Info("metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

// RecordRepositoryOperation counts one repository call by entity, operation and
// outcome. Called on every repository path, error branches included.
func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	repositoryOpsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(meterName)
		counter, err := meter.Int64Counter(
			"repository_operations_total",
			metric.WithDescription("Repository operations by entity, operation and outcome"),
		)
		if err != nil {
			return
		}
		repositoryOpsCounter = counter
	})
	if repositoryOpsCounter == nil {
		return
	}
	repositoryOpsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}
