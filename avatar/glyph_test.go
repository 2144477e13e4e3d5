package avatar

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func newTestGlyphRenderer(t *testing.T) *GlyphRenderer {
	t.Helper()
	r, err := NewGlyphRenderer(GlyphConfig{})
	if err != nil {
		t.Fatalf("NewGlyphRenderer() error = %v", err)
	}
	return r
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	return img
}

func sameColor(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}

func TestGlyphRenderer_Sizes(t *testing.T) {
	r := newTestGlyphRenderer(t)

	tests := []struct {
		size int
		want int
	}{
		{0, DefaultSize},
		{64, 64},
		{300, 300},
	}
	for _, tt := range tests {
		data, err := r.Render(context.Background(), "test", tt.size, nil, nil)
		if err != nil {
			t.Fatalf("Render(size=%d) error = %v", tt.size, err)
		}
		b := decodePNG(t, data).Bounds()
		if b.Dx() != tt.want || b.Dy() != tt.want {
			t.Errorf("Render(size=%d) bounds = %v, want %dx%d", tt.size, b, tt.want, tt.want)
		}
	}
}

func TestGlyphRenderer_Deterministic(t *testing.T) {
	r := newTestGlyphRenderer(t)

	a, _ := r.Render(context.Background(), "ބައިވަރު", 150, nil, nil)
	b, _ := r.Render(context.Background(), "ބައިވަރު", 150, nil, nil)
	if !bytes.Equal(a, b) {
		t.Error("same request rendered different bytes")
	}
}

func TestGlyphRenderer_Colors(t *testing.T) {
	r := newTestGlyphRenderer(t)
	bg := &RGB{R: 0xff}
	fg := &RGB{G: 0xff}

	img := decodePNG(t, mustRender(t, r, "test", 150, bg, fg))

	if !sameColor(img.At(0, 0), *bg) {
		t.Errorf("corner = %v, want background %v", img.At(0, 0), *bg)
	}

	var drew bool
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y && !drew; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if !sameColor(img.At(x, y), *bg) {
				drew = true
				break
			}
		}
	}
	if !drew {
		t.Error("no glyph pixels drawn")
	}
}

func TestGlyphRenderer_DerivedBackground(t *testing.T) {
	r := newTestGlyphRenderer(t)

	img := decodePNG(t, mustRender(t, r, "test", 64, nil, nil))
	want := PaletteColor("test", DefaultSaturation, DefaultLightness)
	if !sameColor(img.At(0, 0), want) {
		t.Errorf("corner = %v, want palette %v", img.At(0, 0), want)
	}
}

func TestGlyphRenderer_Errors(t *testing.T) {
	r := newTestGlyphRenderer(t)

	if _, err := r.Render(context.Background(), "test", -1, nil, nil); !errors.Is(err, ErrRender) {
		t.Errorf("negative size error = %v, want ErrRender", err)
	}
	if _, err := r.Render(context.Background(), "test", MaxRenderSize+1, nil, nil); !errors.Is(err, ErrRender) {
		t.Errorf("huge size error = %v, want ErrRender", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Render(ctx, "test", 64, nil, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled render error = %v, want context.Canceled", err)
	}
}

func TestNewGlyphRenderer_Config(t *testing.T) {
	if _, err := NewGlyphRenderer(GlyphConfig{FontData: []byte("not a font")}); err == nil {
		t.Error("expected error for invalid font data")
	}
	if _, err := NewGlyphRenderer(GlyphConfig{DefaultSize: MaxRenderSize + 1}); err == nil {
		t.Error("expected error for oversized default")
	}

	r, err := NewGlyphRenderer(GlyphConfig{DefaultSize: 200, Scale: 2})
	if err != nil {
		t.Fatalf("NewGlyphRenderer() error = %v", err)
	}
	if r.DefaultSize() != 200 || r.cfg.Scale != DefaultScale {
		t.Errorf("config = %+v", r.cfg)
	}
	if r.cfg.Compression != png.DefaultCompression {
		t.Errorf("Compression = %v, want png.DefaultCompression", r.cfg.Compression)
	}
}

func TestGlyphRenderer_CompressionLevels(t *testing.T) {
	for _, level := range []png.CompressionLevel{png.DefaultCompression, png.BestSpeed, png.BestCompression} {
		r, err := NewGlyphRenderer(GlyphConfig{Compression: level})
		if err != nil {
			t.Fatalf("NewGlyphRenderer() error = %v", err)
		}
		img := decodePNG(t, mustRender(t, r, "test", 64, nil, nil))
		if b := img.Bounds(); b.Dx() != 64 {
			t.Errorf("level %v: width = %d, want 64", level, b.Dx())
		}
	}
}

func TestInitials(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  string
	}{
		{"test", 2, "T"},
		{"john smith", 2, "JS"},
		{"  ada   lovelace  byron ", 2, "AL"},
		{"ada lovelace byron", 3, "ALB"},
		{"ބައިވަރު", 2, "ބަ"},
		{"މުޙައްމަދު ނަޝީދު", 2, "މުނަ"},
		{"", 2, ""},
		{"   ", 2, ""},
	}

	for _, tt := range tests {
		if got := Initials(tt.name, tt.limit); got != tt.want {
			t.Errorf("Initials(%q, %d) = %q, want %q", tt.name, tt.limit, got, tt.want)
		}
	}
}

func TestPaletteColor_Stable(t *testing.T) {
	a := PaletteColor("ބައިވަރު", DefaultSaturation, DefaultLightness)
	b := PaletteColor("ބައިވަރު", DefaultSaturation, DefaultLightness)
	if a != b {
		t.Errorf("PaletteColor not stable: %v vs %v", a, b)
	}
}

func mustRender(t *testing.T, r Renderer, name string, size int, bg, fg *RGB) []byte {
	t.Helper()
	data, err := r.Render(context.Background(), name, size, bg, fg)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return data
}
