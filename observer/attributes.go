package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for retrieval and generation spans and metrics.
var (
	AttrLLMModel    = attribute.Key("llm.model")
	AttrLLMProvider = attribute.Key("llm.provider")

	AttrEmbedTextCount  = attribute.Key("llm.embed.text_count")
	AttrEmbedDimensions = attribute.Key("llm.embed.dimensions")

	AttrPromptLength = attribute.Key("llm.prompt_length")
	AttrOutputLength = attribute.Key("llm.output_length")

	AttrPipelineStage = attribute.Key("pipeline.stage")
)
