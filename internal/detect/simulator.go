package detect

import (
	"context"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/neuroscan/tumor-detection-service/internal/preprocess"
)

// DefaultSimulatedLatency pads simulated inference so downstream timing
// displays behave like they would with a real model.
const DefaultSimulatedLatency = 300 * time.Millisecond

// Plausible-scan predicate thresholds. Deliberately permissive so that
// nearly any real MRI upload passes while blank or synthetic images do not.
const (
	minContrastRatio = 0.01
	minMean          = 0.05
	maxMean          = 1.0
	minStd           = 0.01
	minVariance      = 0.0001
)

// Box synthesis ranges, in tensor-space pixels. The brain typically
// occupies the central region of an MRI slice.
const (
	centerMin  = 200
	centerMax  = 400
	boxSizeMin = 80
	boxSizeMax = 150
)

// Simulator produces statistically plausible detections from image
// statistics alone. It stands in for the ONNX engine when no model is
// available at startup; every result it returns is marked Simulated.
type Simulator struct {
	rng *rand.Rand

	// MinLatency is the artificial floor on simulated inference time.
	// Tests set it to zero.
	MinLatency time.Duration
}

// NewSimulator builds a simulator around the given entropy source so
// callers can seed it for deterministic behavior.
func NewSimulator(rng *rand.Rand) *Simulator {
	return &Simulator{
		rng:        rng,
		MinLatency: DefaultSimulatedLatency,
	}
}

func (s *Simulator) Name() string { return "simulator" }

// Infer draws a simulated detection. Tensors that look like a real scan
// are positive 90% of the time with confidence in [0.80, 0.98]; anything
// else is positive only 20% of the time with confidence in [0.40, 0.70].
func (s *Simulator) Infer(_ context.Context, t *preprocess.Tensor) (Result, float64) {
	start := time.Now()

	stats := tensorStats(t)
	likelyScan := stats.likelyScan()

	var positiveRate, confLo, confHi float64
	var negLo, negHi float64
	if likelyScan {
		positiveRate, confLo, confHi = 0.90, 0.80, 0.98
		negLo, negHi = 0.05, 0.20
	} else {
		positiveRate, confLo, confHi = 0.20, 0.40, 0.70
		negLo, negHi = 0.05, 0.30
	}

	found := s.rng.Float64() < positiveRate
	var confidence float64
	if found {
		confidence = s.uniform(confLo, confHi)
	} else {
		// Drawn but unreported: a negative result always carries
		// confidence 0 in the canonical shape.
		_ = s.uniform(negLo, negHi)
	}

	var result Result
	if found {
		result = resultFrom([]Detection{{
			Box:        s.synthesizeBox(),
			Confidence: float32(confidence),
			Class:      0,
		}})
	} else {
		result = emptyResult()
	}
	result.Simulated = true

	if remaining := s.MinLatency - time.Since(start); remaining > 0 {
		time.Sleep(remaining)
	}

	return result, elapsedMS(start)
}

// synthesizeBox draws a box centered in the middle region of the tensor,
// converted to a top-left origin and clamped to the image.
func (s *Simulator) synthesizeBox() [4]int {
	centerX := s.intn(centerMin, centerMax)
	centerY := s.intn(centerMin, centerMax)
	width := s.intn(boxSizeMin, boxSizeMax)
	height := s.intn(boxSizeMin, boxSizeMax)

	x := centerX - width/2
	y := centerY - height/2
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}

	return [4]int{x, y, width, height}
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

// intn draws uniformly from [lo, hi] inclusive.
func (s *Simulator) intn(lo, hi int) int {
	return lo + s.rng.Intn(hi-lo+1)
}

type scanStats struct {
	mean     float64
	std      float64
	variance float64
}

func (st scanStats) contrastRatio() float64 {
	return st.std / (st.mean + 1e-5)
}

func (st scanStats) likelyScan() bool {
	return st.contrastRatio() > minContrastRatio &&
		st.mean > minMean && st.mean < maxMean &&
		st.std > minStd &&
		st.variance > minVariance
}

func tensorStats(t *preprocess.Tensor) scanStats {
	if t == nil || len(t.Data) == 0 {
		return scanStats{}
	}

	vals := make([]float64, len(t.Data))
	for i, v := range t.Data {
		vals[i] = float64(v)
	}

	return scanStats{
		mean:     stat.Mean(vals, nil),
		std:      stat.PopStdDev(vals, nil),
		variance: stat.PopVariance(vals, nil),
	}
}
