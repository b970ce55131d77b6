package tracing

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
)

type Config struct {
	Enabled     bool
	ServiceName string
	// Environment is recorded as deployment.environment on every span.
	Environment string

	OTLPEndpoint string
	OTLPInsecure bool

	SampleRatio float64
}

// exporterSettings is Config after OTEL_* environment overrides and defaults.
type exporterSettings struct {
	serviceName string
	environment string
	endpoint    string
	insecure    bool
	sampleRatio float64
}

func resolve(cfg Config) exporterSettings {
	s := exporterSettings{
		serviceName: firstNonEmpty(cfg.ServiceName, os.Getenv("OTEL_SERVICE_NAME"), "autodeploy"),
		environment: strings.TrimSpace(cfg.Environment),
		endpoint:    sanitizeEndpoint(firstNonEmpty(cfg.OTLPEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "localhost:4317")),
		insecure:    cfg.OTLPInsecure,
		sampleRatio: cfg.SampleRatio,
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); v != "" {
		s.insecure = parseBool(v)
	}
	if s.sampleRatio <= 0 || s.sampleRatio > 1 {
		s.sampleRatio = 1
	}
	return s
}

// Setup installs the global tracer provider that exports pipeline and request spans over
// OTLP/gRPC. Exporter failures leave tracing off rather than failing startup.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	noop := func(context.Context) error { return nil }
	// Inbound traceparent headers are honoured even with tracing off.
	otel.SetTextMapPropagator(defaultPropagator())
	if !cfg.Enabled {
		return noop, nil
	}

	set := resolve(cfg)
	expOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(set.endpoint)}
	if set.insecure {
		expOpts = append(expOpts, otlptracegrpc.WithInsecure())
	} else {
		expOpts = append(expOpts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}
	exp, err := otlptracegrpc.New(ctx, expOpts...)
	if err != nil {
		logger.Warn("otel exporter init failed; deployments will not be traced", "endpoint", set.endpoint, "err", err)
		return noop, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, set.resourceAttributes()...))
	if err != nil {
		logger.Warn("otel resource init failed; using default", "err", err)
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(set.sampleRatio))),
	)
	otel.SetTracerProvider(tp)
	logger.Info("tracing enabled", "service", set.serviceName, "endpoint", set.endpoint, "sample_ratio", set.sampleRatio)
	return tp.Shutdown, nil
}

func (s exporterSettings) resourceAttributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(s.serviceName)}
	if s.environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(s.environment))
	}
	return attrs
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func defaultPropagator() propagation.TextMapPropagator {
	return propagation.TraceContext{}
}

// callbackPropagator only carries TraceContext; baggage never leaves for callback endpoints.
func callbackPropagator() propagation.TextMapPropagator {
	return propagation.TraceContext{}
}

func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	// OTEL_EXPORTER_OTLP_ENDPOINT is often configured as a URL. The gRPC exporter expects host:port.
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return strings.TrimSuffix(raw, "/")
}

func parseBool(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	return v == "true" || v == "1" || v == "yes" || v == "y" || v == "on"
}

const instrumentationName = "github.com/osvaldoandrade/autodeploy"

// StartSpan starts a span on the global tracer. It is a no-op span when tracing is disabled.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err (if any) on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// IDs returns the hex trace and span ids of the span in ctx, or empty strings.
func IDs(ctx context.Context) (traceID string, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}

// InjectHeaders injects traceparent/tracestate into h for an outbound callback.
func InjectHeaders(ctx context.Context, h http.Header) {
	if h == nil {
		return
	}
	callbackPropagator().Inject(ctx, propagation.HeaderCarrier(h))
}

func ParseSampleRatio(v string) float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}
