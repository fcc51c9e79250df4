package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	creditMutations metric.Int64Counter
	callAdmissions  metric.Int64Counter
	callReleases    metric.Int64Counter
	priorityQueries metric.Int64Counter
	payments        metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "agentdesk"
	}
	meter := provider.Meter(name)

	creditMutations, err := meter.Int64Counter("agentdesk_credit_mutations_total")
	if err != nil {
		return nil, err
	}
	callAdmissions, err := meter.Int64Counter("agentdesk_call_admissions_total")
	if err != nil {
		return nil, err
	}
	callReleases, err := meter.Int64Counter("agentdesk_call_releases_total")
	if err != nil {
		return nil, err
	}
	priorityQueries, err := meter.Int64Counter("agentdesk_priority_queries_total")
	if err != nil {
		return nil, err
	}
	payments, err := meter.Int64Counter("agentdesk_payments_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		creditMutations: creditMutations,
		callAdmissions:  callAdmissions,
		callReleases:    callReleases,
		priorityQueries: priorityQueries,
		payments:        payments,
	}, nil
}

// RecordCreditMutation increments credit mutation counts.
func (m *Metrics) RecordCreditMutation(ctx context.Context, creditType, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("credit_type", strings.TrimSpace(creditType)),
		attribute.String("operation", strings.TrimSpace(operation)),
	)
	m.creditMutations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCallAdmission counts start-call attempts by outcome.
func (m *Metrics) RecordCallAdmission(ctx context.Context, region, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("region", strings.TrimSpace(region)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.callAdmissions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCallRelease counts end-call attempts by outcome.
func (m *Metrics) RecordCallRelease(ctx context.Context, region, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("region", strings.TrimSpace(region)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.callReleases.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPriorityQuery increments lead priority query counts.
func (m *Metrics) RecordPriorityQuery(ctx context.Context, scope string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("scope", strings.TrimSpace(scope)))
	m.priorityQueries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPayment increments recorded payment counts.
func (m *Metrics) RecordPayment(ctx context.Context, creditType, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("credit_type", strings.TrimSpace(creditType)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.payments.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"credit_type": {},
	"operation":   {},
	"region":      {},
	"result":      {},
	"scope":       {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
