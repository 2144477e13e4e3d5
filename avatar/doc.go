// Package avatar serves deterministic, name-derived placeholder avatars.
//
// A Service validates a Request, classifies its size with a cache.Policy and
// either serves the image from the cache.Store, fills the store on a miss, or
// renders directly when the request cannot be cached (color overrides,
// undeclared sizes, oversized requests).
//
// # Basic Usage
//
//	store, _ := cache.OpenDiskStore("caches", cache.DefaultBuckets)
//	renderer, _ := avatar.NewGlyphRenderer(avatar.GlyphConfig{})
//	svc, _ := avatar.NewService(avatar.Config{
//	    Policy:   cache.DefaultPolicy(),
//	    Store:    store,
//	    Renderer: renderer,
//	})
//
//	res, err := svc.Avatar(ctx, avatar.Request{Name: "ބައިވަރު", Size: 150})
//
// Rendering is delegated to the Renderer interface; GlyphRenderer draws the
// name's initials over a background picked from the name's hash.
package avatar
