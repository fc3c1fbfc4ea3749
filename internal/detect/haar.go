//go:build gocv

package detect

import (
	"fmt"
	"image"

	"github.com/bryanchriswhite/CamWatch/internal/config"
	"gocv.io/x/gocv"
)

func init() {
	Register("haar", func(cfg config.DetectorConfig) (Detector, error) {
		return NewHaar(cfg)
	})
}

// Haar runs an OpenCV Haar cascade (e.g. haarcascade_frontalface_default.xml)
type Haar struct {
	classifier gocv.CascadeClassifier
	cfg        config.DetectorConfig
}

// NewHaar loads the cascade XML named in the config
func NewHaar(cfg config.DetectorConfig) (*Haar, error) {
	if cfg.CascadePath == "" {
		return nil, fmt.Errorf("haar backend needs detector.cascade_path")
	}
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.CascadePath) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade %s", cfg.CascadePath)
	}

	if cfg.ScaleFactor <= 1 {
		cfg.ScaleFactor = 1.1
	}
	if cfg.MinNeighbors <= 0 {
		cfg.MinNeighbors = 5
	}
	if cfg.MinSize <= 0 {
		cfg.MinSize = 30
	}

	return &Haar{classifier: classifier, cfg: cfg}, nil
}

// Detect runs detectMultiScale on the greyscale frame
func (h *Haar) Detect(img *image.Gray) []image.Rectangle {
	mat, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return nil
	}
	defer mat.Close()

	return h.classifier.DetectMultiScaleWithParams(
		mat,
		h.cfg.ScaleFactor,
		h.cfg.MinNeighbors,
		0,
		image.Pt(h.cfg.MinSize, h.cfg.MinSize),
		image.Pt(0, 0),
	)
}

// Close releases the classifier
func (h *Haar) Close() error {
	return h.classifier.Close()
}
