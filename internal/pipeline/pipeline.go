// Package pipeline composes preprocessing, inference and annotation into
// the single detection pass the HTTP layer invokes per request.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/neuroscan/tumor-detection-service/internal/annotate"
	"github.com/neuroscan/tumor-detection-service/internal/detect"
	"github.com/neuroscan/tumor-detection-service/internal/preprocess"
)

// Engine is the inference strategy, selected once at startup: the ONNX
// model engine when a model is loaded, the simulator otherwise.
type Engine interface {
	Infer(ctx context.Context, t *preprocess.Tensor) (detect.Result, float64)
	Name() string
}

// Outcome is the aggregate of one pipeline invocation.
type Outcome struct {
	Result detect.Result
	// AnnotatedImage is a PNG data URI, empty unless a finding was
	// located and the overlay succeeded.
	AnnotatedImage string
	// ElapsedMS is the inference time in milliseconds.
	ElapsedMS float64
	// Original is the uploaded image's size before resizing.
	Original preprocess.Dimensions
}

type Pipeline struct {
	pre    *preprocess.Preprocessor
	engine Engine
	log    *slog.Logger
}

func New(pre *preprocess.Preprocessor, engine Engine, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{pre: pre, engine: engine, log: log}
}

func (p *Pipeline) EngineName() string { return p.engine.Name() }

// Run executes one detection pass: preprocess, infer, annotate. Stages
// run sequentially on the calling goroutine and share no state across
// invocations. Preprocessing failures are returned to the caller as
// client-input errors; inference faults are reported inside the Result;
// annotation failures degrade to an absent overlay.
func (p *Pipeline) Run(ctx context.Context, imageBytes []byte) (*Outcome, error) {
	tensor, orig, err := p.pre.Preprocess(imageBytes)
	if err != nil {
		return nil, err
	}
	p.log.Debug("image preprocessed",
		"original_height", orig.Height,
		"original_width", orig.Width,
		"tensor_width", tensor.Width,
		"tensor_height", tensor.Height)

	result, elapsed := p.engine.Infer(ctx, tensor)
	if result.Error != "" {
		p.log.Error("inference fault", "engine", p.engine.Name(), "error", result.Error)
	}

	outcome := &Outcome{
		Result:    result,
		ElapsedMS: elapsed,
		Original:  orig,
	}

	if result.Found {
		annotated, err := annotate.Annotate(imageBytes, result.Box, result.Found)
		if err != nil {
			p.log.Warn("annotation failed", "error", err)
		}
		outcome.AnnotatedImage = annotated
	}

	p.log.Info("detection complete",
		"engine", p.engine.Name(),
		"found", result.Found,
		"confidence", result.Confidence,
		"count", result.Count,
		"inference_ms", elapsed)

	return outcome, nil
}
