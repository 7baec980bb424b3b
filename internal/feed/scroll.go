package feed

// Viewport describes the scroll position of the rendered feed.
type Viewport struct {
	ScrollTop      float64
	ViewportHeight float64
	DocumentHeight float64
}

// NearBottom reports whether the visible bottom edge is within threshold of
// the end of the document.
func (v Viewport) NearBottom(threshold float64) bool {
	return v.ScrollTop+v.ViewportHeight >= v.DocumentHeight-threshold
}
