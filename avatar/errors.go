package avatar

import "errors"

// Sentinel errors for avatar requests.
var (
	// ErrInvalidName indicates a blank, non-UTF-8 or overlong display name.
	ErrInvalidName = errors.New("avatar: invalid name")

	// ErrInvalidColor indicates a color that is not a six-digit hex triplet.
	ErrInvalidColor = errors.New("avatar: invalid color")

	// ErrRender indicates the renderer failed to produce an image.
	ErrRender = errors.New("avatar: render failed")

	// ErrNilRenderer indicates a Service was configured without a renderer.
	ErrNilRenderer = errors.New("avatar: renderer is nil")
)
