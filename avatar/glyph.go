package avatar

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Glyph renderer defaults.
const (
	DefaultSize        = 150
	DefaultScale       = 0.42
	DefaultSaturation  = 0.45
	DefaultLightness   = 0.55
	DefaultMaxInitials = 2

	// MaxRenderSize bounds the canvas regardless of policy.
	MaxRenderSize = 4096
)

// White is the default foreground.
var White = RGB{R: 0xff, G: 0xff, B: 0xff}

// GlyphConfig configures a GlyphRenderer. Zero values select defaults.
type GlyphConfig struct {
	// DefaultSize is used when Render is called with size 0.
	DefaultSize int

	// FontData is a TrueType or OpenType font. Defaults to Go Bold, which
	// has no Thaana coverage; set a Dhivehi face for Thaana names.
	FontData []byte

	// Scale is the font size relative to the canvas edge.
	Scale float64

	// Saturation and Lightness shape the derived background palette.
	Saturation float64
	Lightness  float64

	// MaxInitials caps how many words contribute a letter.
	MaxInitials int

	// Compression is the PNG encoder level. The zero value is
	// png.DefaultCompression.
	Compression png.CompressionLevel
}

// GlyphRenderer draws a name's initials centered on a solid square.
// The background hue is derived from a hash of the name, so every name
// keeps its color across restarts.
type GlyphRenderer struct {
	cfg  GlyphConfig
	font *opentype.Font
	pool *bufferPool
}

// NewGlyphRenderer parses the configured font.
func NewGlyphRenderer(cfg GlyphConfig) (*GlyphRenderer, error) {
	if cfg.DefaultSize <= 0 {
		cfg.DefaultSize = DefaultSize
	}
	if cfg.DefaultSize > MaxRenderSize {
		return nil, fmt.Errorf("avatar: default size %d exceeds %d", cfg.DefaultSize, MaxRenderSize)
	}
	if len(cfg.FontData) == 0 {
		cfg.FontData = gobold.TTF
	}
	if cfg.Scale <= 0 || cfg.Scale > 1 {
		cfg.Scale = DefaultScale
	}
	if cfg.Saturation <= 0 || cfg.Saturation > 1 {
		cfg.Saturation = DefaultSaturation
	}
	if cfg.Lightness <= 0 || cfg.Lightness >= 1 {
		cfg.Lightness = DefaultLightness
	}
	if cfg.MaxInitials <= 0 {
		cfg.MaxInitials = DefaultMaxInitials
	}

	f, err := opentype.Parse(cfg.FontData)
	if err != nil {
		return nil, fmt.Errorf("avatar: parse font: %w", err)
	}

	return &GlyphRenderer{cfg: cfg, font: f, pool: &bufferPool{}}, nil
}

// DefaultSize returns the size used for Render(size=0).
func (r *GlyphRenderer) DefaultSize() int {
	return r.cfg.DefaultSize
}

// Render implements Renderer.
func (r *GlyphRenderer) Render(ctx context.Context, name string, size int, bg, fg *RGB) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if size == 0 {
		size = r.cfg.DefaultSize
	}
	if size < 0 || size > MaxRenderSize {
		return nil, fmt.Errorf("%w: size %d out of range", ErrRender, size)
	}

	background := PaletteColor(name, r.cfg.Saturation, r.cfg.Lightness)
	if bg != nil {
		background = *bg
	}
	foreground := White
	if fg != nil {
		foreground = *fg
	}

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	if text := Initials(name, r.cfg.MaxInitials); text != "" {
		if err := r.drawCentered(img, text, size, foreground); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: r.cfg.Compression, BufferPool: r.pool}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrRender, err)
	}
	return buf.Bytes(), nil
}

func (r *GlyphRenderer) drawCentered(img draw.Image, text string, size int, fg RGB) error {
	// Faces are not safe for concurrent use; the parsed font is.
	face, err := opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    float64(size) * r.cfg.Scale,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return fmt.Errorf("%w: face: %w", ErrRender, err)
	}
	defer face.Close()

	d := &font.Drawer{Dst: img, Src: image.NewUniform(fg), Face: face}
	m := face.Metrics()
	edge := fixed.I(size)
	d.Dot = fixed.Point26_6{
		X: (edge - d.MeasureString(text)) / 2,
		Y: (edge + m.Ascent - m.Descent) / 2,
	}
	d.DrawString(text)
	return nil
}

// Initials returns the first letter of up to limit words of name, upper-cased.
// Combining marks that follow a letter (such as Thaana vowel signs) are kept
// with it.
func Initials(name string, limit int) string {
	var b strings.Builder
	for i, word := range strings.Fields(name) {
		if i == limit {
			break
		}
		first, n := utf8.DecodeRuneInString(word)
		if first == utf8.RuneError {
			continue
		}
		b.WriteRune(unicode.ToUpper(first))
		for _, r := range word[n:] {
			if !unicode.Is(unicode.Mn, r) {
				break
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PaletteColor derives a stable background color from name.
func PaletteColor(name string, saturation, lightness float64) RGB {
	hue := float64(xxhash.Sum64String(name) % 360)
	r, g, b := colorful.Hsl(hue, saturation, lightness).Clamped().RGB255()
	return RGB{R: r, G: g, B: b}
}

// bufferPool implements png.EncoderBufferPool.
type bufferPool struct {
	p sync.Pool
}

func (bp *bufferPool) Get() *png.EncoderBuffer {
	if b, ok := bp.p.Get().(*png.EncoderBuffer); ok {
		return b
	}
	return nil
}

func (bp *bufferPool) Put(b *png.EncoderBuffer) {
	bp.p.Put(b)
}
