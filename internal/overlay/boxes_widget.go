package overlay

import (
	"image"
	"image/color"
)

// DefaultBoxColor matches the classic OpenCV (0, 255, 0) annotation
var DefaultBoxColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// BoxesWidget outlines every detection in the scene
type BoxesWidget struct {
	*BaseWidget
	color     color.RGBA
	lineWidth int
}

// NewBoxesWidget creates a box outliner; lineWidth <= 0 means 2px
func NewBoxesWidget(id string, lineWidth int) *BoxesWidget {
	if lineWidth <= 0 {
		lineWidth = 2
	}
	return &BoxesWidget{
		BaseWidget: NewBaseWidget(id, 0, 0, 1.0),
		color:      DefaultBoxColor,
		lineWidth:  lineWidth,
	}
}

// Type returns the widget type
func (w *BoxesWidget) Type() string {
	return "boxes"
}

// SetColor changes the outline colour
func (w *BoxesWidget) SetColor(c color.RGBA) {
	w.color = c
}

// Render draws one outline per detection
func (w *BoxesWidget) Render(img *image.RGBA, scene Scene) error {
	for _, box := range scene.Detections {
		DrawOutline(img, box, w.color, w.lineWidth)
	}
	return nil
}
