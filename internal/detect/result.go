// Package detect holds the canonical detection result types and the two
// inference engines that produce them: the ONNX model engine and the
// heuristic simulator used when no model is available.
package detect

import "math"

// Detection is one candidate finding in tensor-space pixel coordinates.
// Box is [x, y, width, height] with the origin at the top-left corner.
type Detection struct {
	Box        [4]int  `json:"box"`
	Confidence float32 `json:"confidence"`
	Class      int     `json:"class"`
}

// Result aggregates one inference pass. Invariants: Found is true iff
// Count > 0 iff Box has four elements; otherwise Confidence is 0 and Box
// serializes as an empty array. Confidence is a percentage rounded to
// two decimals. All retains every raw detection, not just the winner.
type Result struct {
	Found      bool        `json:"found"`
	Confidence float64     `json:"confidence"`
	Box        []int       `json:"box"`
	Count      int         `json:"count"`
	All        []Detection `json:"all"`
	Simulated  bool        `json:"simulated,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// emptyResult is the canonical negative result.
func emptyResult() Result {
	return Result{
		Box: []int{},
		All: []Detection{},
	}
}

// resultFrom builds a Result from raw detections, selecting the one with
// maximum confidence as the reported finding.
func resultFrom(all []Detection) Result {
	if len(all) == 0 {
		return emptyResult()
	}

	best := all[0]
	for _, d := range all[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}

	return Result{
		Found:      true,
		Confidence: roundPercent(best.Confidence),
		Box:        []int{best.Box[0], best.Box[1], best.Box[2], best.Box[3]},
		Count:      len(all),
		All:        all,
	}
}

// errorResult wraps an engine fault as a negative result so inference
// failures never abort the request.
func errorResult(err error) Result {
	r := emptyResult()
	r.Error = err.Error()
	return r
}

// roundPercent converts a [0,1] confidence to a 0-100 percentage with
// two-decimal rounding.
func roundPercent(c float32) float64 {
	return math.Round(float64(c)*10000) / 100
}
