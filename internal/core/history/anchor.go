package history

// Anchor captures the viewport geometry the consuming view reports
// before a window mutation is committed.
type Anchor struct {
	ScrollTop      float64
	ContentHeight  float64
	ViewportHeight float64
}

// AutoScrollThreshold is how close to the bottom (in content units) the
// viewport must be for live inserts to auto-scroll it. A reader who has
// scrolled up to browse history is never yanked down.
const AutoScrollThreshold = 40

// AnchorAfterPrepend returns the scroll top that keeps the previously
// visible record anchored after older content of total height
// (newContentHeight - old.ContentHeight) was inserted above it.
func AnchorAfterPrepend(old Anchor, newContentHeight float64) float64 {
	return newContentHeight - old.ContentHeight + old.ScrollTop
}

// NearBottom reports whether the viewport is within
// AutoScrollThreshold of the content bottom.
func NearBottom(a Anchor) bool {
	return a.ContentHeight-(a.ScrollTop+a.ViewportHeight) <= AutoScrollThreshold
}

// ShouldAutoScroll decides whether a live tail insert should scroll the
// view to the bottom, based on the geometry captured before ingestion.
func ShouldAutoScroll(before Anchor) bool {
	return NearBottom(before)
}
