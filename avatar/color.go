package avatar

import (
	"fmt"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// RGB is an 8-bit color triplet. It implements color.Color.
type RGB struct {
	R, G, B uint8
}

// RGBA implements color.Color with full opacity.
func (c RGB) RGBA() (r, g, b, a uint32) {
	r = uint32(c.R)
	r |= r << 8
	g = uint32(c.G)
	g |= g << 8
	b = uint32(c.B)
	b |= b << 8
	return r, g, b, 0xffff
}

// Hex returns the color as six lowercase hex digits without a leading '#'.
func (c RGB) Hex() string {
	return fmt.Sprintf("%02x%02x%02x", c.R, c.G, c.B)
}

// ResolveColor parses a hex triplet such as "7e6b5c".
// An empty string means no override and returns (nil, nil).
// Anything other than exactly six hex digits fails with ErrInvalidColor.
func ResolveColor(hex string) (*RGB, error) {
	if hex == "" {
		return nil, nil
	}
	if len(hex) != 6 || !isHex(hex) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidColor, hex)
	}

	c, err := colorful.Hex("#" + hex)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidColor, hex)
	}
	r, g, b := c.RGB255()
	return &RGB{R: r, G: g, B: b}, nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
