//go:build gocv

package capture

import (
	"context"
	"fmt"
	"image"

	"github.com/bryanchriswhite/CamWatch/internal/config"
	"gocv.io/x/gocv"
)

func init() {
	Register("gocv", func(cfg config.CaptureConfig) (Opener, error) {
		return &GocvOpener{}, nil
	})
}

// GocvOpener opens sources through OpenCV's VideoCapture. Only built with
// -tags gocv since it needs the OpenCV shared libraries.
type GocvOpener struct{}

// Name returns the backend name
func (o *GocvOpener) Name() string {
	return "gocv"
}

// Open connects a VideoCapture to the address
func (o *GocvOpener) Open(ctx context.Context, address string) (Capture, error) {
	vc, err := gocv.OpenVideoCapture(address)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", address, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("video capture for %s did not open", address)
	}

	mat := gocv.NewMat()
	return &gocvCapture{address: address, vc: vc, mat: &mat}, nil
}

type gocvCapture struct {
	address string
	vc      *gocv.VideoCapture
	mat     *gocv.Mat
}

// Read grabs one frame. A false read on a still-open capture is a miss.
func (c *gocvCapture) Read() (image.Image, error) {
	if !c.vc.Read(c.mat) {
		if !c.vc.IsOpened() {
			return nil, fmt.Errorf("video capture for %s closed", c.address)
		}
		return nil, ErrNoFrame
	}
	if c.mat.Empty() {
		return nil, ErrNoFrame
	}

	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame (%v): %w", err, ErrNoFrame)
	}
	return img, nil
}

// Close releases the capture and its frame buffer
func (c *gocvCapture) Close() error {
	err := c.vc.Close()
	c.mat.Close()
	return err
}
