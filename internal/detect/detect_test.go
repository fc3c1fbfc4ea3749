package detect

import (
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bryanchriswhite/CamWatch/internal/config"
)

func TestNew_None(t *testing.T) {
	d, err := New(config.DetectorConfig{Backend: "none"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if boxes := d.Detect(image.NewGray(image.Rect(0, 0, 10, 10))); len(boxes) != 0 {
		t.Errorf("expected no boxes, got %v", boxes)
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	if _, err := New(config.DetectorConfig{Backend: "magic"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestNew_PigoBuiltinCascade(t *testing.T) {
	d, err := New(config.DetectorConfig{Backend: "pigo"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := d.(*Pigo); !ok {
		t.Fatalf("expected *Pigo, got %T", d)
	}

	img := image.NewGray(image.Rect(0, 0, 160, 120))
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 251)
	}
	for _, box := range d.Detect(img) {
		if box.Dx() <= 0 || box.Dy() <= 0 {
			t.Errorf("degenerate box %v", box)
		}
	}
}

func TestNew_PigoMissingCascadeFails(t *testing.T) {
	d, err := New(config.DetectorConfig{
		Backend:     "pigo",
		CascadePath: filepath.Join(t.TempDir(), "missing"),
	})
	if err == nil {
		t.Fatalf("expected an error for a missing cascade, got %T", d)
	}
	if !strings.Contains(err.Error(), "none") {
		t.Errorf("error should point at the none backend: %v", err)
	}
}

func TestNew_PigoCorruptCascadeFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad")
	if err := os.WriteFile(path, []byte("not a cascade"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(config.DetectorConfig{Backend: "pigo", CascadePath: path}); err == nil {
		t.Fatal("expected an error for a corrupt cascade")
	}
}

func TestFunc(t *testing.T) {
	want := []image.Rectangle{image.Rect(1, 2, 3, 4)}
	var got *image.Gray

	d := Func(func(img *image.Gray) []image.Rectangle {
		got = img
		return want
	})

	in := image.NewGray(image.Rect(0, 0, 5, 5))
	boxes := d.Detect(in)
	if got != in {
		t.Error("Func did not receive the input image")
	}
	if len(boxes) != 1 || boxes[0] != want[0] {
		t.Errorf("unexpected boxes %v", boxes)
	}
}

func TestBackends(t *testing.T) {
	found := map[string]bool{}
	for _, name := range Backends() {
		found[name] = true
	}
	if !found["none"] || !found["pigo"] {
		t.Errorf("expected none and pigo backends, got %v", Backends())
	}
}
