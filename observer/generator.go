package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/contexture-ai/contexture"
)

// ObservedGeneration wraps a contexture.Generator with OTEL instrumentation.
type ObservedGeneration struct {
	inner contexture.Generator
	inst  *Instruments
	model string
}

// WrapGeneration returns an instrumented generator.
func WrapGeneration(inner contexture.Generator, model string, inst *Instruments) *ObservedGeneration {
	return &ObservedGeneration{inner: inner, inst: inst, model: model}
}

func (o *ObservedGeneration) Name() string { return o.inner.Name() }

func (o *ObservedGeneration) Generate(ctx context.Context, prompt string, opts contexture.GenerateOptions) (string, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		AttrPromptLength.Int(len(prompt)),
	))
	defer span.End()
	start := time.Now()

	out, err := o.inner.Generate(ctx, prompt, opts)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(AttrOutputLength.Int(len(out)))
	}

	o.inst.GenerateRequests.Add(ctx, 1, metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		attribute.String("status", status),
	))
	o.inst.GenerateDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
	))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("generation completed"))
	rec.AddAttributes(
		otellog.String("llm.model", o.model),
		otellog.String("llm.provider", o.inner.Name()),
		otellog.Int("llm.prompt_length", len(prompt)),
		otellog.Int("llm.output_length", len(out)),
		otellog.Float64("llm.duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)

	return out, err
}

var _ contexture.Generator = (*ObservedGeneration)(nil)
