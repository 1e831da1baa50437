package observer

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/contexture-ai/contexture"
)

// StageProgress returns a pipeline progress hook that counts each stage
// transition. Pass the result to contexture.Pipeline.Run.
func StageProgress(ctx context.Context, inst *Instruments) contexture.Progress {
	return func(stage contexture.Stage) {
		inst.PipelineStages.Add(ctx, 1, metric.WithAttributes(
			AttrPipelineStage.String(string(stage)),
		))
	}
}
