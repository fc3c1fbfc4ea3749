package detect

import (
	_ "embed"
	"fmt"
	"image"
	"os"

	"github.com/bryanchriswhite/CamWatch/internal/config"
	pigo "github.com/esimov/pigo/core"
)

// facefinder is the frontal face cascade distributed with pigo
//
//go:embed cascade/facefinder
var facefinder []byte

func init() {
	Register("pigo", func(cfg config.DetectorConfig) (Detector, error) {
		return NewPigo(cfg)
	})
}

// Pigo runs the pure-Go pixel intensity comparison cascade
type Pigo struct {
	classifier *pigo.Pigo
	cfg        config.DetectorConfig
}

// NewPigo loads the cascade file named in the config, or the built-in
// facefinder cascade when no path is set
func NewPigo(cfg config.DetectorConfig) (*Pigo, error) {
	if cfg.CascadePath == "" {
		return NewPigoFromCascade(facefinder, cfg)
	}
	data, err := os.ReadFile(cfg.CascadePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade: %w", err)
	}
	return NewPigoFromCascade(data, cfg)
}

// NewPigoFromCascade builds a detector from raw cascade bytes
func NewPigoFromCascade(cascade []byte, cfg config.DetectorConfig) (*Pigo, error) {
	classifier, err := unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}

	if cfg.MinSize <= 0 {
		cfg.MinSize = 30
	}
	if cfg.ScaleFactor <= 1 {
		cfg.ScaleFactor = 1.1
	}
	if cfg.ShiftFactor <= 0 {
		cfg.ShiftFactor = 0.1
	}
	if cfg.IoUThreshold <= 0 {
		cfg.IoUThreshold = 0.2
	}

	return &Pigo{classifier: classifier, cfg: cfg}, nil
}

// unpack turns the index panics pigo raises on truncated input into errors
func unpack(cascade []byte) (classifier *pigo.Pigo, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed cascade: %v", r)
		}
	}()
	return pigo.NewPigo().Unpack(cascade)
}

// Detect returns square face boxes above the quality threshold
func (p *Pigo) Detect(img *image.Gray) []image.Rectangle {
	b := img.Bounds()
	cols, rows := b.Dx(), b.Dy()
	if cols == 0 || rows == 0 {
		return nil
	}

	maxSize := cols
	if rows > maxSize {
		maxSize = rows
	}

	params := pigo.CascadeParams{
		MinSize:     p.cfg.MinSize,
		MaxSize:     maxSize,
		ShiftFactor: p.cfg.ShiftFactor,
		ScaleFactor: p.cfg.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: img.Pix[img.PixOffset(b.Min.X, b.Min.Y):],
			Rows:   rows,
			Cols:   cols,
			Dim:    img.Stride,
		},
	}

	dets := p.classifier.RunCascade(params, 0.0)
	dets = p.classifier.ClusterDetections(dets, p.cfg.IoUThreshold)

	boxes := make([]image.Rectangle, 0, len(dets))
	for _, d := range dets {
		if float64(d.Q) < p.cfg.QualityThreshold {
			continue
		}
		half := d.Scale / 2
		boxes = append(boxes, image.Rect(d.Col-half, d.Row-half, d.Col+half, d.Row+half).Add(b.Min))
	}
	return boxes
}
