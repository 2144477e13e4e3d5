package avatar

// Cache outcomes reported by Result.CacheStatus.
const (
	OutcomeHit    = "hit"
	OutcomeMiss   = "miss"
	OutcomeBypass = "bypass"
)

// Request asks for one avatar.
type Request struct {
	// Name is the display name the avatar is derived from.
	Name string

	// Size is the edge length in pixels. It must be positive.
	Size int

	// Background and Foreground override the derived colors. Any override
	// takes the request out of the cache.
	Background *RGB
	Foreground *RGB
}

// HasOverride reports whether the request overrides a color.
func (r Request) HasOverride() bool {
	return r.Background != nil || r.Foreground != nil
}

// Source says where a Result's bytes came from.
type Source int

const (
	// SourceGenerated means the image was rendered for this request.
	SourceGenerated Source = iota
	// SourceCache means the image was read from the cache store.
	SourceCache
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceGenerated:
		return "generated"
	default:
		return "unknown"
	}
}

// Result is a served avatar.
type Result struct {
	Source Source

	// Path is the cache entry location relative to the store root. It is
	// empty for requests that bypassed the cache.
	Path string

	// Data holds the PNG bytes. Callers must not modify it.
	Data []byte

	// Size is the requested edge length, or 0 when the renderer default
	// was used.
	Size int
}

// CacheStatus returns OutcomeHit, OutcomeMiss or OutcomeBypass.
func (r Result) CacheStatus() string {
	switch {
	case r.Source == SourceCache:
		return OutcomeHit
	case r.Path != "":
		return OutcomeMiss
	default:
		return OutcomeBypass
	}
}
