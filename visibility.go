package backdrop

import (
	"image"
	"slices"
	"sync"
)

// ImageID identifies an image on the page, typically its source URL.
type ImageID string

// Entry reports the fraction of an element's area inside the viewport.
type Entry struct {
	ID    ImageID
	Ratio float64
}

// Observer is the viewport-intersection capability the tracker relies on.
// Implementations deliver Entries through a callback they were built with.
// The scene that owns an Observer configures its threshold and root margin.
type Observer interface {
	Observe(id ImageID, bounds image.Rectangle)
	Unobserve(id ImageID)
	Disconnect()
	SetThreshold(threshold float64)
	SetRootMargin(px int)
}

// Tracker maintains the set of images currently on screen.
// It is not safe for concurrent use; the scene owns it.
type Tracker struct {
	threshold float64
	obs       Observer
	visible   map[ImageID]struct{}
}

// NewTracker returns a tracker that counts an image as visible once at
// least threshold of its area intersects the viewport. obs may be nil when
// entries are fed to Handle directly.
func NewTracker(obs Observer, threshold float64) *Tracker {
	return &Tracker{
		threshold: threshold,
		obs:       obs,
		visible:   make(map[ImageID]struct{}),
	}
}

// Observe starts watching the element of id.
func (t *Tracker) Observe(id ImageID, bounds image.Rectangle) {
	if t.obs != nil {
		t.obs.Observe(id, bounds)
	}
}

// Forget stops watching id and drops it from the visible set.
func (t *Tracker) Forget(id ImageID) bool {
	if t.obs != nil {
		t.obs.Unobserve(id)
	}
	return t.Remove(id)
}

// Handle applies intersection entries and reports whether the visible set
// changed.
func (t *Tracker) Handle(entries []Entry) bool {
	changed := false
	for _, e := range entries {
		if e.Ratio > 0 && e.Ratio >= t.threshold {
			changed = t.Add(e.ID) || changed
		} else {
			changed = t.Remove(e.ID) || changed
		}
	}
	return changed
}

func (t *Tracker) Add(id ImageID) bool {
	if _, ok := t.visible[id]; ok {
		return false
	}
	t.visible[id] = struct{}{}
	return true
}

func (t *Tracker) Remove(id ImageID) bool {
	if _, ok := t.visible[id]; !ok {
		return false
	}
	delete(t.visible, id)
	return true
}

func (t *Tracker) Contains(id ImageID) bool {
	_, ok := t.visible[id]
	return ok
}

func (t *Tracker) Len() int {
	return len(t.visible)
}

// Visible returns the visible identities in sorted order.
func (t *Tracker) Visible() []ImageID {
	ids := make([]ImageID, 0, len(t.visible))
	for id := range t.visible {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Close disconnects the observer and empties the visible set.
func (t *Tracker) Close() {
	if t.obs != nil {
		t.obs.Disconnect()
	}
	clear(t.visible)
}

// IntersectionRatio is the fraction of elem's area inside root.
func IntersectionRatio(elem, root image.Rectangle) float64 {
	area := elem.Dx() * elem.Dy()
	if area <= 0 {
		return 0
	}
	in := elem.Intersect(root)
	return float64(in.Dx()*in.Dy()) / float64(area)
}

type target struct {
	bounds  image.Rectangle
	visible bool
}

// Viewport is a geometric Observer over page coordinates. It calls notify
// with an entry for every newly observed element and for every element
// whose ratio crosses the threshold after a scroll, resize or move.
type Viewport struct {
	mu        sync.Mutex
	root      image.Rectangle
	margin    int
	threshold float64
	targets   map[ImageID]*target
	notify    func([]Entry)
	closed    bool
}

func NewViewport(root image.Rectangle, threshold float64, notify func([]Entry)) *Viewport {
	return &Viewport{
		root:      root,
		threshold: threshold,
		targets:   make(map[ImageID]*target),
		notify:    notify,
	}
}

// SetNotify replaces the callback.
func (v *Viewport) SetNotify(notify func([]Entry)) {
	v.mu.Lock()
	v.notify = notify
	v.mu.Unlock()
}

// SetThreshold changes the ratio at which elements cross between hidden and
// visible. Elements whose state flips are reported.
func (v *Viewport) SetThreshold(threshold float64) {
	v.update(func() { v.threshold = threshold })
}

// SetRootMargin grows (or, when negative, shrinks) the root on every side.
func (v *Viewport) SetRootMargin(px int) {
	v.update(func() { v.margin = px })
}

func (v *Viewport) Observe(id ImageID, bounds image.Rectangle) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	ratio := IntersectionRatio(bounds, v.effectiveRoot())
	v.targets[id] = &target{bounds: bounds, visible: v.crosses(ratio)}
	notify := v.notify
	v.mu.Unlock()

	if notify != nil {
		notify([]Entry{{ID: id, Ratio: ratio}})
	}
}

func (v *Viewport) Unobserve(id ImageID) {
	v.mu.Lock()
	delete(v.targets, id)
	v.mu.Unlock()
}

func (v *Viewport) Disconnect() {
	v.mu.Lock()
	clear(v.targets)
	v.closed = true
	v.mu.Unlock()
}

// Observed reports how many elements are being watched.
func (v *Viewport) Observed() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.targets)
}

// Scroll moves the viewport by (dx, dy).
func (v *Viewport) Scroll(dx, dy int) {
	v.update(func() { v.root = v.root.Add(image.Pt(dx, dy)) })
}

// Resize replaces the viewport rectangle.
func (v *Viewport) Resize(root image.Rectangle) {
	v.update(func() { v.root = root })
}

// Move relocates an observed element.
func (v *Viewport) Move(id ImageID, bounds image.Rectangle) {
	v.update(func() {
		if t, ok := v.targets[id]; ok {
			t.bounds = bounds
		}
	})
}

func (v *Viewport) update(mutate func()) {
	v.mu.Lock()
	mutate()
	var entries []Entry
	root := v.effectiveRoot()
	for id, t := range v.targets {
		ratio := IntersectionRatio(t.bounds, root)
		if vis := v.crosses(ratio); vis != t.visible {
			t.visible = vis
			entries = append(entries, Entry{ID: id, Ratio: ratio})
		}
	}
	notify := v.notify
	v.mu.Unlock()

	if notify != nil && len(entries) > 0 {
		slices.SortFunc(entries, func(a, b Entry) int {
			switch {
			case a.ID < b.ID:
				return -1
			case a.ID > b.ID:
				return 1
			}
			return 0
		})
		notify(entries)
	}
}

func (v *Viewport) effectiveRoot() image.Rectangle {
	return v.root.Inset(-v.margin)
}

func (v *Viewport) crosses(ratio float64) bool {
	return ratio > 0 && ratio >= v.threshold
}
