// Package annotate overlays a detected finding on the uploaded image
// and re-encodes it for display.
package annotate

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	strokeWidth = 4
	labelText   = "TUMOR DETECTED"
	labelOffset = 25
)

// warningColor is the box and label color.
var warningColor = color.NRGBA{R: 255, G: 0, B: 0, A: 255}

// Annotate draws the finding's box and a warning label on the original
// image and returns it as a PNG data URI. It is a no-op (empty string,
// nil error) when found is false or box has fewer than four elements.
//
// The box is drawn at its tensor-space coordinates without rescaling to
// the original image size. Existing clients render the overlay this way;
// callers needing original-space boxes scale them first with
// preprocess.DenormalizeBox.
func Annotate(original []byte, box []int, found bool) (string, error) {
	if !found || len(box) < 4 {
		return "", nil
	}

	img, _, err := image.Decode(bytes.NewReader(original))
	if err != nil {
		return "", fmt.Errorf("decode original image: %w", err)
	}

	canvas := imaging.Clone(img)

	x, y, w, h := box[0], box[1], box[2], box[3]
	drawRect(canvas, x, y, x+w, y+h)

	labelY := y - labelOffset
	if labelY < 0 {
		labelY = 0
	}
	drawLabel(canvas, x, labelY)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return "", fmt.Errorf("encode annotated image: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// drawRect strokes an axis-aligned rectangle, clipped to the image.
func drawRect(img *image.NRGBA, x1, y1, x2, y2 int) {
	bounds := img.Bounds()

	setPixel := func(x, y int) {
		if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
			img.SetNRGBA(x, y, warningColor)
		}
	}

	for t := 0; t < strokeWidth; t++ {
		for x := x1; x <= x2; x++ {
			setPixel(x, y1+t)
			setPixel(x, y2-t)
		}
		for y := y1; y <= y2; y++ {
			setPixel(x1+t, y)
			setPixel(x2-t, y)
		}
	}
}

func drawLabel(img *image.NRGBA, x, y int) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(warningColor),
		Face: face,
		Dot:  fixed.P(x, y+face.Ascent),
	}
	drawer.DrawString(labelText)
}
