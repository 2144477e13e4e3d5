package avatar

import "context"

// Renderer turns a name into PNG bytes.
//
// Contract:
//   - Size 0 means the renderer's default size.
//   - Nil colors mean the renderer's derived defaults.
//   - Output for the same inputs must be stable, since it is cached.
//   - Implementations must be safe for concurrent use.
type Renderer interface {
	Render(ctx context.Context, name string, size int, bg, fg *RGB) ([]byte, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, name string, size int, bg, fg *RGB) ([]byte, error)

// Render calls f.
func (f RendererFunc) Render(ctx context.Context, name string, size int, bg, fg *RGB) ([]byte, error) {
	return f(ctx, name, size, bg, fg)
}
