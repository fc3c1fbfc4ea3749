package overlay

import (
	"image"
	"image/color"
	"image/draw"
)

// Scene carries the per-frame facts widgets draw from
type Scene struct {
	Detections []image.Rectangle
	Source     string
}

// Faces returns the number of detections in the scene
func (s Scene) Faces() int {
	return len(s.Detections)
}

// Widget represents a renderable overlay widget
type Widget interface {
	// ID returns the unique identifier for this widget instance
	ID() string

	// Type returns the widget type name
	Type() string

	// Render draws the widget onto the frame using the scene's detections
	Render(img *image.RGBA, scene Scene) error

	// IsEnabled returns whether the widget should be rendered
	IsEnabled() bool

	// SetEnabled sets whether the widget should be rendered
	SetEnabled(enabled bool)
}

// BaseWidget provides common functionality for all widgets
type BaseWidget struct {
	id      string
	enabled bool
	x       int
	y       int
	opacity float64 // 0.0 to 1.0
}

// NewBaseWidget creates a new base widget
func NewBaseWidget(id string, x, y int, opacity float64) *BaseWidget {
	w := &BaseWidget{
		id:      id,
		enabled: true,
		x:       x,
		y:       y,
	}
	w.SetOpacity(opacity)
	return w
}

// ID returns the widget's unique identifier
func (w *BaseWidget) ID() string {
	return w.id
}

// IsEnabled returns whether the widget should be rendered
func (w *BaseWidget) IsEnabled() bool {
	return w.enabled
}

// SetEnabled sets whether the widget should be rendered
func (w *BaseWidget) SetEnabled(enabled bool) {
	w.enabled = enabled
}

// SetPosition sets the widget's top-left anchor
func (w *BaseWidget) SetPosition(x, y int) {
	w.x = x
	w.y = y
}

// SetOpacity sets the widget's opacity (0.0 to 1.0)
func (w *BaseWidget) SetOpacity(opacity float64) {
	if opacity < 0.0 {
		opacity = 0.0
	}
	if opacity > 1.0 {
		opacity = 1.0
	}
	w.opacity = opacity
}

// BlendImage blends src onto dst at (x, y) with the given opacity, clipping
// to dst's bounds
func BlendImage(dst *image.RGBA, src image.Image, x, y int, opacity float64) {
	if opacity <= 0 {
		return
	}
	srcBounds := src.Bounds()
	target := image.Rect(x, y, x+srcBounds.Dx(), y+srcBounds.Dy())

	if opacity >= 1 {
		draw.Draw(dst, target, src, srcBounds.Min, draw.Over)
		return
	}

	mask := image.NewUniform(color.Alpha{A: uint8(opacity * 255)})
	draw.DrawMask(dst, target, src, srcBounds.Min, mask, image.Point{}, draw.Over)
}

// DrawOutline strokes the inside edge of r with a line of the given width.
// Parts of r outside dst are clipped.
func DrawOutline(dst *image.RGBA, r image.Rectangle, c color.Color, width int) {
	if width <= 0 || r.Empty() {
		return
	}
	if width*2 > r.Dx() || width*2 > r.Dy() {
		draw.Draw(dst, r.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
		return
	}

	src := image.NewUniform(c)
	bands := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width), // top
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y), // bottom
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y), // left
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y), // right
	}
	for _, band := range bands {
		band = band.Intersect(dst.Bounds())
		if band.Empty() {
			continue
		}
		draw.Draw(dst, band, src, image.Point{}, draw.Src)
	}
}
