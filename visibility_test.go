package backdrop

import (
	"image"
	"slices"
	"testing"
)

type recordingObserver struct {
	observed     map[ImageID]image.Rectangle
	unobserved   []ImageID
	disconnected bool
	threshold    float64
	margin       int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{observed: make(map[ImageID]image.Rectangle)}
}

func (o *recordingObserver) Observe(id ImageID, bounds image.Rectangle) { o.observed[id] = bounds }
func (o *recordingObserver) Unobserve(id ImageID) {
	delete(o.observed, id)
	o.unobserved = append(o.unobserved, id)
}
func (o *recordingObserver) Disconnect() {
	clear(o.observed)
	o.disconnected = true
}
func (o *recordingObserver) SetThreshold(threshold float64) { o.threshold = threshold }
func (o *recordingObserver) SetRootMargin(px int) { o.margin = px }

func TestTracker_Idempotent(t *testing.T) {
	tr := NewTracker(nil, 0.3)
	if !tr.Add("a") {
		t.Error("first Add should change the set")
	}
	if tr.Add("a") {
		t.Error("second Add should be a no-op")
	}
	if !tr.Remove("a") {
		t.Error("Remove of present id should change the set")
	}
	if tr.Remove("a") || tr.Remove("missing") {
		t.Error("Remove of absent id should be a no-op")
	}
	if tr.Len() != 0 {
		t.Errorf("Len = %d, want 0", tr.Len())
	}
}

func TestTracker_Handle(t *testing.T) {
	tr := NewTracker(nil, 0.3)
	changed := tr.Handle([]Entry{{"a", 0.5}, {"b", 0.29}, {"c", 0.3}})
	if !changed {
		t.Fatal("Handle should report a change")
	}
	if got, want := tr.Visible(), []ImageID{"a", "c"}; !slices.Equal(got, want) {
		t.Fatalf("Visible = %v, want %v", got, want)
	}
	if tr.Handle([]Entry{{"a", 0.9}, {"b", 0.1}}) {
		t.Error("repeated state should not report a change")
	}
	tr.Handle([]Entry{{"a", 0}})
	if tr.Contains("a") {
		t.Error("a should have left the visible set")
	}
}

func TestTracker_ZeroThreshold(t *testing.T) {
	tr := NewTracker(nil, 0)
	tr.Handle([]Entry{{"a", 0}})
	if tr.Contains("a") {
		t.Error("an element with no intersection is never visible")
	}
}

func TestTracker_ForgetAndClose(t *testing.T) {
	obs := newRecordingObserver()
	tr := NewTracker(obs, 0.3)
	tr.Observe("a", image.Rect(0, 0, 10, 10))
	tr.Observe("b", image.Rect(0, 0, 10, 10))
	tr.Add("a")
	tr.Add("b")

	if !tr.Forget("a") {
		t.Error("Forget of a visible id should change the set")
	}
	if _, ok := obs.observed["a"]; ok {
		t.Error("a still observed after Forget")
	}

	tr.Close()
	if !obs.disconnected {
		t.Error("Close did not disconnect the observer")
	}
	if tr.Len() != 0 {
		t.Errorf("Len after Close = %d", tr.Len())
	}
}

func TestIntersectionRatio(t *testing.T) {
	root := image.Rect(0, 0, 100, 100)
	tests := []struct {
		elem image.Rectangle
		want float64
	}{
		{image.Rect(10, 10, 50, 50), 1},
		{image.Rect(50, 0, 150, 100), 0.5},
		{image.Rect(0, 80, 100, 180), 0.2},
		{image.Rect(200, 200, 300, 300), 0},
		{image.Rect(0, 0, 0, 0), 0},
	}
	for _, tt := range tests {
		if got := IntersectionRatio(tt.elem, root); got != tt.want {
			t.Errorf("IntersectionRatio(%v) = %v, want %v", tt.elem, got, tt.want)
		}
	}
}

func TestViewport_Crossings(t *testing.T) {
	var got [][]Entry
	vp := NewViewport(image.Rect(0, 0, 100, 100), 0.3, func(e []Entry) {
		got = append(got, e)
	})

	vp.Observe("top", image.Rect(0, 0, 100, 100))
	vp.Observe("below", image.Rect(0, 100, 100, 200))
	if len(got) != 2 || got[0][0].Ratio != 1 || got[1][0].Ratio != 0 {
		t.Fatalf("initial entries = %v", got)
	}

	got = nil
	vp.Scroll(0, 20) // below: 20% visible, still under threshold
	if len(got) != 0 {
		t.Fatalf("unexpected entries after small scroll: %v", got)
	}

	vp.Scroll(0, 30) // below: 50%, top: 50%
	if len(got) != 1 || len(got[0]) != 1 || got[0][0].ID != "below" {
		t.Fatalf("entries after crossing = %v", got)
	}

	got = nil
	vp.Scroll(0, 30) // top: 20%
	if len(got) != 1 || got[0][0].ID != "top" || got[0][0].Ratio >= 0.3 {
		t.Fatalf("entries after top left = %v", got)
	}
}

func TestViewport_RootMargin(t *testing.T) {
	var got []Entry
	vp := NewViewport(image.Rect(0, 0, 100, 100), 0.3, func(e []Entry) {
		got = append(got, e...)
	})
	vp.Observe("near", image.Rect(0, 110, 100, 210))
	vp.SetRootMargin(50)
	if len(got) != 2 || got[1].ID != "near" || got[1].Ratio != 0.4 {
		t.Fatalf("entries = %v", got)
	}
}

func TestViewport_UnobserveAndDisconnect(t *testing.T) {
	calls := 0
	vp := NewViewport(image.Rect(0, 0, 100, 100), 0.3, func([]Entry) { calls++ })
	vp.Observe("a", image.Rect(0, 0, 10, 10))
	vp.Observe("b", image.Rect(0, 200, 10, 210))
	vp.Unobserve("a")
	if vp.Observed() != 1 {
		t.Fatalf("Observed = %d, want 1", vp.Observed())
	}

	vp.Disconnect()
	before := calls
	vp.Observe("c", image.Rect(0, 0, 10, 10))
	vp.Scroll(0, 200)
	if calls != before {
		t.Error("callbacks after Disconnect")
	}
	if vp.Observed() != 0 {
		t.Errorf("Observed after Disconnect = %d", vp.Observed())
	}
}

func TestViewport_SetThreshold(t *testing.T) {
	var got []Entry
	vp := NewViewport(image.Rect(0, 0, 100, 100), 0.3, func(e []Entry) {
		got = append(got, e...)
	})
	vp.Observe("half", image.Rect(0, 60, 100, 160))
	vp.SetThreshold(0.5)
	if len(got) != 2 || got[1].ID != "half" || got[1].Ratio != 0.4 {
		t.Fatalf("entries after raising threshold = %v", got)
	}
	vp.SetThreshold(0.5)
	if len(got) != 2 {
		t.Errorf("unchanged threshold emitted %v", got[2:])
	}
}
