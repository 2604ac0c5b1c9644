package preprocess

import "fmt"

// DecodeError reports bytes that could not be interpreted as a raster
// image. Always a client-input fault.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decode image: %v", e.Cause)
	}
	return "decode image"
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// PreprocessError reports a transform failure after a successful decode.
type PreprocessError struct {
	Stage string
	Cause error
}

func (e *PreprocessError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("preprocess %s: %v", e.Stage, e.Cause)
	}
	return fmt.Sprintf("preprocess %s", e.Stage)
}

func (e *PreprocessError) Unwrap() error { return e.Cause }
