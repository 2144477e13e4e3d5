package avatar

import (
	"errors"
	"testing"
)

func TestResolveColor(t *testing.T) {
	tests := []struct {
		in      string
		want    *RGB
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "ff0000", want: &RGB{R: 0xff}},
		{in: "7E6B5C", want: &RGB{R: 0x7e, G: 0x6b, B: 0x5c}},
		{in: "000000", want: &RGB{}},
		{in: "#ff0000", wantErr: true},
		{in: "fff", wantErr: true},
		{in: "ff00000", wantErr: true},
		{in: "gg0000", wantErr: true},
		{in: "red", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ResolveColor(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidColor) {
					t.Fatalf("ResolveColor(%q) error = %v, want ErrInvalidColor", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveColor(%q) error = %v", tt.in, err)
			}
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Errorf("ResolveColor(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRGB_HexAndRGBA(t *testing.T) {
	c := RGB{R: 0x7e, G: 0x6b, B: 0x5c}
	if c.Hex() != "7e6b5c" {
		t.Errorf("Hex() = %q", c.Hex())
	}

	r, g, b, a := c.RGBA()
	if r != 0x7e7e || g != 0x6b6b || b != 0x5c5c || a != 0xffff {
		t.Errorf("RGBA() = %x %x %x %x", r, g, b, a)
	}
}
