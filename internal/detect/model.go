package detect

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/neuroscan/tumor-detection-service/internal/preprocess"
)

const defaultCandidates = 8400

// ModelConfig describes the ONNX detector: where the weights live, the
// tensor geometry it expects and the thresholds applied to its output.
type ModelConfig struct {
	ModelPath           string
	InputWidth          int
	InputHeight         int
	NumClasses          int
	NumCandidates       int
	ConfidenceThreshold float32
	IoUThreshold        float32
	PoolSize            int
}

func (c ModelConfig) withDefaults() ModelConfig {
	if c.InputWidth <= 0 {
		c.InputWidth = preprocess.DefaultInputWidth
	}
	if c.InputHeight <= 0 {
		c.InputHeight = preprocess.DefaultInputHeight
	}
	if c.NumClasses <= 0 {
		c.NumClasses = 1
	}
	if c.NumCandidates <= 0 {
		c.NumCandidates = defaultCandidates
	}
	return c
}

// ModelSession bundles an ONNX session with its pre-allocated input and
// output tensors.
type ModelSession struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]
}

func (m *ModelSession) Destroy() {
	if m.Session != nil {
		m.Session.Destroy()
	}
	if m.Input != nil {
		m.Input.Destroy()
	}
	if m.Output != nil {
		m.Output.Destroy()
	}
}

func newModelSession(cfg ModelConfig) (*ModelSession, error) {
	cfg = cfg.withDefaults()

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(runtime.NumCPU())
	options.SetInterOpNumThreads(runtime.NumCPU())

	inputShape := ort.NewShape(1, 3, int64(cfg.InputHeight), int64(cfg.InputWidth))
	outputShape := ort.NewShape(1, int64(4+cfg.NumClasses), int64(cfg.NumCandidates))

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &ModelSession{
		Session: session,
		Input:   inputTensor,
		Output:  outputTensor,
	}, nil
}

// ModelEngine adapts the opaque ONNX detector into canonical Results.
// Faults from the detector become negative results carrying an error
// annotation; they are never surfaced as Go errors.
type ModelEngine struct {
	pool *SessionPool
	cfg  ModelConfig
}

func NewModelEngine(pool *SessionPool, cfg ModelConfig) *ModelEngine {
	return &ModelEngine{pool: pool, cfg: cfg.withDefaults()}
}

func (e *ModelEngine) Name() string { return "onnx" }

// Infer runs the detector on a preprocessed tensor and converts its raw
// output into a Result. Elapsed time covers the detector invocation and
// result conversion, in milliseconds.
func (e *ModelEngine) Infer(ctx context.Context, t *preprocess.Tensor) (Result, float64) {
	start := time.Now()

	session, err := e.pool.Acquire(ctx)
	if err != nil {
		return errorResult(fmt.Errorf("acquire session: %w", err)), elapsedMS(start)
	}
	defer e.pool.Release(session)

	copy(session.Input.GetData(), t.Data)

	if err := session.Session.Run(); err != nil {
		return errorResult(fmt.Errorf("model inference: %w", err)), elapsedMS(start)
	}

	all := decodePredictions(session.Output.GetData(), e.cfg)
	return resultFrom(all), elapsedMS(start)
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

// decodePredictions converts the raw YOLO output layout
// [cx, cy, w, h, class scores...] x candidates into tensor-space
// detections, applying the confidence threshold and IoU suppression.
func decodePredictions(preds []float32, cfg ModelConfig) []Detection {
	cfg = cfg.withDefaults()
	n := cfg.NumCandidates

	candidates := make([]Detection, 0, 100)
	for i := 0; i < n; i++ {
		confidence := preds[4*n+i]
		class := 0
		for c := 1; c < cfg.NumClasses; c++ {
			if score := preds[(4+c)*n+i]; score > confidence {
				confidence = score
				class = c
			}
		}
		if confidence < cfg.ConfidenceThreshold {
			continue
		}

		candidates = append(candidates, Detection{
			Box: toTensorBox(
				preds[i], preds[n+i], preds[2*n+i], preds[3*n+i],
				float32(cfg.InputWidth), float32(cfg.InputHeight),
			),
			Confidence: confidence,
			Class:      class,
		})
	}

	return suppressOverlaps(candidates, cfg.IoUThreshold)
}

// toTensorBox converts normalized center coordinates to a tensor-space
// [x, y, w, h] box with a non-negative top-left corner.
func toTensorBox(cx, cy, w, h, inputW, inputH float32) [4]int {
	width := w * inputW
	height := h * inputH
	x := cx*inputW - width/2
	y := cy*inputH - height/2

	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}

	return [4]int{int(x), int(y), int(width), int(height)}
}

// suppressOverlaps keeps the highest-confidence box of every group of
// boxes overlapping above the IoU threshold.
func suppressOverlaps(detections []Detection, iouThreshold float32) []Detection {
	if len(detections) <= 1 {
		return detections
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	kept := make([]Detection, 0, len(detections))
	for _, d := range detections {
		overlapping := false
		for _, k := range kept {
			if boxIOU(d.Box, k.Box) > float64(iouThreshold) {
				overlapping = true
				break
			}
		}
		if !overlapping {
			kept = append(kept, d)
		}
	}

	return kept
}

// boxIOU computes intersection-over-union for [x, y, w, h] boxes.
func boxIOU(a, b [4]int) float64 {
	ax1, ay1, ax2, ay2 := a[0], a[1], a[0]+a[2], a[1]+a[3]
	bx1, by1, bx2, by2 := b[0], b[1], b[0]+b[2], b[1]+b[3]

	x1 := maxInt(ax1, bx1)
	y1 := maxInt(ay1, by1)
	x2 := minInt(ax2, bx2)
	y2 := minInt(ay2, by2)

	if x2 <= x1 || y2 <= y1 {
		return 0.0
	}

	intersection := float64((x2 - x1) * (y2 - y1))
	areaA := float64((ax2 - ax1) * (ay2 - ay1))
	areaB := float64((bx2 - bx1) * (by2 - by1))
	union := areaA + areaB - intersection

	return intersection / union
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
