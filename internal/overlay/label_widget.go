package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// LabelWidget prints a caption built from the scene, "faces: N" by default
type LabelWidget struct {
	*BaseWidget
	format    string
	fontSize  int
	textColor color.RGBA
	bgColor   *color.RGBA // Optional background color
	padding   int
}

// NewLabelWidget creates a face-count label anchored at (x, y)
func NewLabelWidget(id string, x, y int) *LabelWidget {
	return &LabelWidget{
		BaseWidget: NewBaseWidget(id, x, y, 1.0),
		format:     "faces: %d",
		fontSize:   13, // basicfont size
		textColor:  color.RGBA{255, 255, 255, 255},
		bgColor:    &color.RGBA{0, 0, 0, 160},
		padding:    4,
	}
}

// Type returns the widget type
func (w *LabelWidget) Type() string {
	return "label"
}

// SetFormat sets the caption format; it receives the face count
func (w *LabelWidget) SetFormat(format string) {
	w.format = format
}

// SetColor sets the text color
func (w *LabelWidget) SetColor(c color.RGBA) {
	w.textColor = c
}

// SetBackground sets the background color (nil for transparent)
func (w *LabelWidget) SetBackground(c *color.RGBA) {
	w.bgColor = c
}

// Text returns the caption for a scene
func (w *LabelWidget) Text(scene Scene) string {
	return fmt.Sprintf(w.format, scene.Faces())
}

// Render draws the caption
func (w *LabelWidget) Render(img *image.RGBA, scene Scene) error {
	text := w.Text(scene)
	if text == "" {
		return nil
	}

	face := basicfont.Face7x13
	textWidthPx := font.MeasureString(face, text).Ceil()

	widgetWidth := textWidthPx + w.padding*2
	widgetHeight := w.fontSize + w.padding*2

	if w.bgColor != nil {
		bgImg := image.NewRGBA(image.Rect(0, 0, widgetWidth, widgetHeight))
		draw.Draw(bgImg, bgImg.Bounds(), &image.Uniform{*w.bgColor}, image.Point{}, draw.Src)
		BlendImage(img, bgImg, w.x, w.y, w.opacity)
	}

	textImg := image.NewRGBA(image.Rect(0, 0, textWidthPx, w.fontSize))
	d := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(w.textColor),
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: fixed.I(face.Ascent)},
	}
	d.DrawString(text)

	BlendImage(img, textImg, w.x+w.padding, w.y+w.padding, w.opacity)
	return nil
}
