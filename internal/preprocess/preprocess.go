// Package preprocess turns uploaded image bytes into the normalized
// channel-first tensor the detection engines consume.
package preprocess

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

const (
	DefaultInputWidth  = 640
	DefaultInputHeight = 640
)

// ImageNet normalization constants, matching the statistics the model
// was trained with.
var (
	DefaultMean = [3]float32{0.485, 0.456, 0.406}
	DefaultStd  = [3]float32{0.229, 0.224, 0.225}
)

// Dimensions is the size of the uploaded image before any resize.
// Detection boxes are produced in tensor-space; these are needed to map
// them back to the source image.
type Dimensions struct {
	Height int
	Width  int
}

// Tensor is a 3-channel float32 image in CHW layout. Data holds
// Width*Height red values, then green, then blue.
type Tensor struct {
	Data   []float32
	Width  int
	Height int
}

// Config controls the target tensor size and normalization constants.
type Config struct {
	TargetWidth  int
	TargetHeight int
	Mean         [3]float32
	Std          [3]float32
}

func DefaultConfig() Config {
	return Config{
		TargetWidth:  DefaultInputWidth,
		TargetHeight: DefaultInputHeight,
		Mean:         DefaultMean,
		Std:          DefaultStd,
	}
}

type Preprocessor struct {
	cfg Config
}

func New(cfg Config) *Preprocessor {
	if cfg.TargetWidth <= 0 {
		cfg.TargetWidth = DefaultInputWidth
	}
	if cfg.TargetHeight <= 0 {
		cfg.TargetHeight = DefaultInputHeight
	}
	if cfg.Std == ([3]float32{}) {
		cfg.Mean = DefaultMean
		cfg.Std = DefaultStd
	}
	return &Preprocessor{cfg: cfg}
}

// Preprocess decodes raw image bytes, records the original size, resizes
// to the target dimensions with linear interpolation (stretch to fit,
// aspect ratio is not preserved), scales to [0,1], applies per-channel
// mean/std normalization and returns the result in channel-first layout.
//
// A failure to decode is a *DecodeError; any later failure is a
// *PreprocessError. Both indicate bad client input, not a system fault.
func (p *Preprocessor) Preprocess(data []byte) (*Tensor, Dimensions, error) {
	if len(data) == 0 {
		return nil, Dimensions{}, &DecodeError{Cause: image.ErrFormat}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Dimensions{}, &DecodeError{Cause: err}
	}

	orig := Dimensions{
		Height: img.Bounds().Dy(),
		Width:  img.Bounds().Dx(),
	}
	if orig.Width == 0 || orig.Height == 0 {
		return nil, Dimensions{}, &PreprocessError{Stage: "size", Cause: image.ErrFormat}
	}

	// imaging stretches to the exact target size; the decoded image is
	// already in RGB channel order, so no colorspace swap is needed.
	resized := imaging.Resize(img, p.cfg.TargetWidth, p.cfg.TargetHeight, imaging.Linear)

	w, h := p.cfg.TargetWidth, p.cfg.TargetHeight
	channelSize := w * h
	t := &Tensor{
		Data:   make([]float32, 3*channelSize),
		Width:  w,
		Height: h,
	}

	for y := 0; y < h; y++ {
		offset := y * w
		for x := 0; x < w; x++ {
			i := offset + x
			r, g, b, _ := resized.At(x, y).RGBA()
			t.Data[i] = (float32(r>>8)/255.0 - p.cfg.Mean[0]) / p.cfg.Std[0]
			t.Data[channelSize+i] = (float32(g>>8)/255.0 - p.cfg.Mean[1]) / p.cfg.Std[1]
			t.Data[2*channelSize+i] = (float32(b>>8)/255.0 - p.cfg.Mean[2]) / p.cfg.Std[2]
		}
	}

	return t, orig, nil
}

// DenormalizeBox scales a tensor-space [x, y, w, h] box back to the
// original image's coordinate space.
func (p *Preprocessor) DenormalizeBox(box [4]int, orig Dimensions) [4]int {
	return [4]int{
		box[0] * orig.Width / p.cfg.TargetWidth,
		box[1] * orig.Height / p.cfg.TargetHeight,
		box[2] * orig.Width / p.cfg.TargetWidth,
		box[3] * orig.Height / p.cfg.TargetHeight,
	}
}
