// Package frame turns captured images into annotated, encoded broadcast
// messages.
package frame

import (
	"image"
	"image/draw"

	"github.com/bryanchriswhite/CamWatch/internal/detect"
	"github.com/bryanchriswhite/CamWatch/internal/overlay"
	xdraw "golang.org/x/image/draw"
)

// Transform downscales a frame, runs detection on its greyscale derivation
// and draws the overlay onto the colour frame
type Transform struct {
	maxWidth int
	detector detect.Detector
	overlay  *overlay.Manager
	scaler   xdraw.Scaler
}

// NewTransform creates a transform. A nil detector detects nothing and a nil
// overlay draws nothing.
func NewTransform(maxWidth int, detector detect.Detector, ov *overlay.Manager) *Transform {
	if detector == nil {
		detector = detect.Nop{}
	}
	return &Transform{
		maxWidth: maxWidth,
		detector: detector,
		overlay:  ov,
		scaler:   xdraw.ApproxBiLinear,
	}
}

// Apply returns the annotated frame and the detections, in detector order
func (t *Transform) Apply(img image.Image) (*image.RGBA, []image.Rectangle) {
	rgba := t.resize(img)
	detections := t.detector.Detect(Grey(rgba))

	if t.overlay != nil {
		t.overlay.Render(rgba, overlay.Scene{Detections: detections})
	}
	return rgba, detections
}

// ScaledSize returns the output dimensions for a w x h input
func ScaledSize(w, h, maxWidth int) (int, int) {
	if maxWidth <= 0 || w <= maxWidth {
		return w, h
	}
	return maxWidth, h * maxWidth / w
}

func (t *Transform) resize(img image.Image) *image.RGBA {
	b := img.Bounds()
	w, h := ScaledSize(b.Dx(), b.Dy(), t.maxWidth)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}

	t.scaler.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// Grey converts a frame to single-channel luminance
func Grey(img *image.RGBA) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	return gray
}
