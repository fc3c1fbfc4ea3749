package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/bryanchriswhite/CamWatch/internal/output"
)

// ErrEmptyFrame is returned for nil or zero-area frames
var ErrEmptyFrame = errors.New("empty frame")

// DefaultQuality matches the JPEG quality viewers have always received
const DefaultQuality = 90

// Encoder compresses frames to JPEG and wraps them as broadcast messages.
// It holds no per-frame state and is safe for concurrent use.
type Encoder struct {
	quality int
}

// NewEncoder creates an encoder; out-of-range quality falls back to 90
func NewEncoder(quality int) *Encoder {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &Encoder{quality: quality}
}

// Encode produces the message for one frame
func (e *Encoder) Encode(img image.Image, detections []image.Rectangle) (output.Message, error) {
	if img == nil || img.Bounds().Empty() {
		return output.Message{}, ErrEmptyFrame
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return output.Message{}, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	data := buf.Bytes()
	return output.Message{
		Image:      base64.StdEncoding.EncodeToString(data),
		Faces:      len(detections),
		JPEG:       data,
		Detections: detections,
	}, nil
}
