/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package otel_trace sets up OpenTelemetry tracing for drifterd services.
// otel_trace 包为 drifterd 服务初始化 OpenTelemetry 追踪。
package otel_trace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// InstrumentationName names the tracer every drifterd span comes from.
const InstrumentationName = "github.com/glidertools/drifterfollow"

// ErrSampleRatio is returned for a sample ratio outside [0, 1].
var ErrSampleRatio = errors.New("otel_trace: traceSampleRatio must be within [0, 1]")

// Options selects the exporter. An empty Endpoint disables tracing.
// Options 选择导出器，Endpoint 为空时禁用追踪。
type Options struct {
	Endpoint    string  `mapstructure:"otlpEndpoint"`
	SampleRatio float64 `mapstructure:"traceSampleRatio"`
}

// AddFlags registers the tracing flags on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("otlpEndpoint", "", "OTLP/gRPC collector host:port, tracing is off when empty")
	fs.Float64("traceSampleRatio", 1, "Fraction of root spans sampled")
}

var (
	mu            sync.RWMutex
	tracer        trace.Tracer = noop.NewTracerProvider().Tracer("noop")
	shutdownFuncs []func(context.Context) error
	enabled       bool
)

// Init installs the tracer provider for service. Without an endpoint it keeps
// the noop tracer.
// Init 为 service 安装追踪提供者；未配置 endpoint 时保留空操作追踪器。
func Init(ctx context.Context, service string, opts Options, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SampleRatio < 0 || opts.SampleRatio > 1 {
		return fmt.Errorf("%w: %g", ErrSampleRatio, opts.SampleRatio)
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if opts.Endpoint == "" {
		logger.Debug("OpenTelemetry tracing is disabled")
		return nil
	}

	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("otel_trace: create exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", service),
		attribute.String("service.namespace", "drifterd"),
	))
	if err != nil {
		return fmt.Errorf("otel_trace: create resource: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mu.Lock()
	tracer = tp.Tracer(InstrumentationName)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	enabled = true
	mu.Unlock()

	logger.Info("OpenTelemetry tracing initialized",
		zap.String("endpoint", opts.Endpoint),
		zap.Float64("sampleRatio", opts.SampleRatio))
	return nil
}

// IsEnabled returns whether spans are exported.
// IsEnabled 返回追踪是否已启用。
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Shutdown flushes pending spans, waiting at most five seconds.
func Shutdown(ctx context.Context) {
	mu.Lock()
	fns := shutdownFuncs
	shutdownFuncs = nil
	enabled = false
	tracer = noop.NewTracerProvider().Tracer("noop")
	mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, fn := range fns {
		_ = fn(ctx)
	}
}

// Start opens a span on the drifterd tracer.
func Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	mu.RLock()
	t := tracer
	mu.RUnlock()
	return t.Start(ctx, name, opts...)
}

// End records err on span, if any, and ends it.
// End 在 span 上记录错误（如有）并结束它。
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
