// Package tracing 提供 OpenTelemetry 分布式追踪
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config 追踪配置
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string // OTLP endpoint，为空时输出到 stdout
	SampleRate     float64
	Enabled        bool
}

// Tracer 追踪器包装
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   *Config
}

var defaultTracer = &Tracer{tracer: noop.NewTracerProvider().Tracer(""), config: &Config{}}

// Init 初始化追踪器
func Init(cfg *Config) (*Tracer, error) {
	if cfg == nil {
		cfg = &Config{
			ServiceName: "housing-visit-backend",
			Environment: "development",
			SampleRate:  1.0,
			Enabled:     true,
		}
	}

	if !cfg.Enabled {
		defaultTracer = &Tracer{tracer: noop.NewTracerProvider().Tracer(cfg.ServiceName), config: cfg}
		return defaultTracer, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("创建资源失败: %w", err)
	}

	var exporter sdktrace.SpanExporter
	if cfg.Endpoint != "" {
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
		exporter, err = otlptrace.New(context.Background(), client)
		if err != nil {
			return nil, fmt.Errorf("创建 OTLP 导出器失败: %w", err)
		}
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("创建 stdout 导出器失败: %w", err)
		}
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SampleRate)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	defaultTracer = &Tracer{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
		config:   cfg,
	}
	return defaultTracer, nil
}

func newSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// NewWithProvider 使用指定 TracerProvider 创建追踪器（用于测试）
func NewWithProvider(provider *sdktrace.TracerProvider, name string) *Tracer {
	return &Tracer{provider: provider, tracer: provider.Tracer(name), config: &Config{ServiceName: name, Enabled: true}}
}

// SetDefault 替换默认追踪器
func SetDefault(t *Tracer) {
	if t != nil {
		defaultTracer = t
	}
}

// GetTracer 获取默认追踪器
func GetTracer() *Tracer {
	return defaultTracer
}

// Shutdown 关闭追踪器
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// StartSpan 开始一个带属性的 span
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartSpan 使用默认追踪器开始 span
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return defaultTracer.StartSpan(ctx, name, attrs...)
}

// End 结束 span，err 非空时记录错误状态
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// AddEvent 添加事件到当前 span
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetAttributes 设置当前 span 属性
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// 常用属性键
var (
	AttrUserID    = attribute.Key("user.id")
	AttrVisitID   = attribute.Key("visit.id")
	AttrBookingID = attribute.Key("booking.id")
	AttrRoomCount = attribute.Key("booking.room_count")
	AttrOperation = attribute.Key("operation")
)

// WithUserID 添加用户 ID 属性
func WithUserID(id int64) attribute.KeyValue {
	return AttrUserID.Int64(id)
}

// WithVisitID 添加看房 ID 属性
func WithVisitID(id int64) attribute.KeyValue {
	return AttrVisitID.Int64(id)
}

// WithBookingID 添加预订 ID 属性
func WithBookingID(id int64) attribute.KeyValue {
	return AttrBookingID.Int64(id)
}

// WithOperation 添加操作属性
func WithOperation(op string) attribute.KeyValue {
	return AttrOperation.String(op)
}
