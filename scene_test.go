package backdrop

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"
)

// settle runs queued tasks until no load is in flight and the queue is empty.
func (s *Scene) settle() {
	for {
		s.loads.Wait()
		if s.drain() == 0 {
			return
		}
	}
}

type mapSource map[ImageID]image.Image

func (m mapSource) Load(ctx context.Context, id ImageID) (image.Image, error) {
	img, ok := m[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return img, nil
}

var (
	imgRGB = bands([]int{40, 30, 30}, []color.NRGBA{
		{255, 40, 40, 255}, {40, 255, 40, 255}, {40, 40, 255, 255},
	})
	imgWarm = bands([]int{50, 30, 20}, []color.NRGBA{
		{200, 120, 40, 255}, {180, 60, 60, 255}, {230, 200, 80, 255},
	})
	imgBlack = uniform(50, 50, color.NRGBA{0, 0, 0, 255})
)

func extractOrFail(t *testing.T, img image.Image) ColorSet {
	t.Helper()
	set, err := Extract(img, DefaultOptions())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	return set
}

func TestScene_BlendsVisibleImages(t *testing.T) {
	src := mapSource{"rgb": imgRGB, "warm": imgWarm, "black": imgBlack}
	s := NewScene(src, nil, DefaultOptions(), DefaultSceneOptions())

	var updates []ColorSet
	s.Subscribe(func(p ColorSet, ok bool) {
		if ok {
			updates = append(updates, p)
		} else {
			updates = append(updates, ColorSet{})
		}
	})

	for _, id := range []ImageID{"rgb", "warm", "black"} {
		s.Mount(id, image.Rect(0, 0, 10, 10))
	}
	s.settle()
	if _, err := s.Palette(); !errors.Is(err, ErrEmptyVisibleSet) {
		t.Fatalf("palette before anything is visible: err = %v", err)
	}

	s.HandleEntries([]Entry{{"rgb", 1}})
	s.settle()
	rgb := extractOrFail(t, imgRGB)
	if p, err := s.Palette(); err != nil || p != rgb {
		t.Fatalf("one visible: palette = %v, %v; want %v", p, err, rgb)
	}

	s.HandleEntries([]Entry{{"warm", 0.8}, {"black", 1}})
	s.settle()
	want, _ := Blend(rgb, extractOrFail(t, imgWarm))
	if p, _ := s.Palette(); p != want {
		t.Fatalf("two visible: palette = %v, want %v", p, want)
	}
	if st := s.State(); st.Extracted != 2 || st.Mounted != 3 || len(st.Visible) != 3 {
		t.Errorf("state = %+v", st)
	}

	s.HandleEntries([]Entry{{"rgb", 0}, {"warm", 0.1}})
	s.settle()
	if _, err := s.Palette(); !errors.Is(err, ErrEmptyVisibleSet) {
		t.Fatalf("only failed image visible: err = %v", err)
	}

	if len(updates) != 3 || updates[2].Valid() {
		t.Errorf("updates = %v", updates)
	}
}

func TestScene_UnmountLastVisible(t *testing.T) {
	s := NewScene(mapSource{"rgb": imgRGB}, nil, DefaultOptions(), DefaultSceneOptions())
	r := NewRenderer(DefaultRenderOptions())
	r.SetTheme(ThemeDark)
	s.Subscribe(r.SetPalette)

	s.Mount("rgb", image.Rect(0, 0, 10, 10))
	s.HandleEntries([]Entry{{"rgb", 1}})
	s.settle()
	if f := r.Frame(time.Now()); f.Neutral {
		t.Fatal("expected an animated frame while rgb is visible")
	}

	s.Unmount("rgb")
	s.settle()
	if _, err := s.Palette(); !errors.Is(err, ErrEmptyVisibleSet) {
		t.Fatalf("err = %v, want ErrEmptyVisibleSet", err)
	}
	if f := r.Frame(time.Now()); !f.Neutral {
		t.Fatalf("frame after unmount = %+v, want neutral", f)
	}
}

func TestScene_IgnoresEntriesForUnknownImages(t *testing.T) {
	s := NewScene(mapSource{}, nil, DefaultOptions(), DefaultSceneOptions())
	s.HandleEntries([]Entry{{"ghost", 1}})
	s.settle()
	if v := s.State().Visible; len(v) != 0 {
		t.Fatalf("Visible = %v", v)
	}
}

// gatedSource blocks every load until its gate is closed, ignoring ctx.
type gatedSource struct {
	gate  chan struct{}
	img   image.Image
	mu    sync.Mutex
	loads int
}

func (g *gatedSource) Load(ctx context.Context, id ImageID) (image.Image, error) {
	g.mu.Lock()
	g.loads++
	g.mu.Unlock()
	<-g.gate
	return g.img, nil
}

func TestScene_DiscardsResultAfterUnmount(t *testing.T) {
	src := &gatedSource{gate: make(chan struct{}), img: imgRGB}
	s := NewScene(src, nil, DefaultOptions(), DefaultSceneOptions())

	s.Mount("rgb", image.Rect(0, 0, 10, 10))
	s.HandleEntries([]Entry{{"rgb", 1}})
	s.drain()
	s.Unmount("rgb")
	s.drain()

	close(src.gate)
	s.settle()
	if st := s.State(); st.Extracted != 0 || st.HasPalette || st.Mounted != 0 {
		t.Fatalf("state after late result = %+v", st)
	}
}

func TestScene_RemountDropsStaleLoad(t *testing.T) {
	src := &gatedSource{gate: make(chan struct{}), img: imgRGB}
	s := NewScene(src, nil, DefaultOptions(), DefaultSceneOptions())

	s.Mount("rgb", image.Rect(0, 0, 10, 10))
	s.drain()
	s.Mount("rgb", image.Rect(0, 0, 10, 10))
	s.drain()
	close(src.gate)
	s.settle()

	if src.loads != 2 {
		t.Fatalf("loads = %d, want 2", src.loads)
	}
	if st := s.State(); st.Extracted != 1 || st.Mounted != 1 {
		t.Fatalf("state = %+v", st)
	}
}

func TestScene_ReloadReplacesSet(t *testing.T) {
	src := mapSource{"img": imgRGB}
	s := NewScene(src, nil, DefaultOptions(), DefaultSceneOptions())
	s.Mount("img", image.Rect(0, 0, 10, 10))
	s.HandleEntries([]Entry{{"img", 1}})
	s.settle()

	src["img"] = imgWarm
	s.Reload("img")
	s.settle()
	if p, _ := s.Palette(); p != extractOrFail(t, imgWarm) {
		t.Fatalf("palette after reload = %v", p)
	}

	src["img"] = imgBlack
	s.Reload("img")
	s.settle()
	if _, err := s.Palette(); !errors.Is(err, ErrEmptyVisibleSet) {
		t.Fatalf("palette after failed reload: err = %v", err)
	}
}

func TestScene_WithViewport(t *testing.T) {
	src := mapSource{"a": imgRGB, "b": imgWarm}
	vp := NewViewport(image.Rect(0, 0, 100, 100), 0.3, nil)
	s := NewScene(src, vp, DefaultOptions(), DefaultSceneOptions())
	vp.SetNotify(s.HandleEntries)

	s.Mount("a", image.Rect(0, 0, 100, 100))
	s.Mount("b", image.Rect(0, 100, 100, 200))
	s.settle()
	if v := s.State().Visible; len(v) != 1 || v[0] != "a" {
		t.Fatalf("Visible = %v, want [a]", v)
	}

	vp.Scroll(0, 100)
	s.settle()
	if v := s.State().Visible; len(v) != 1 || v[0] != "b" {
		t.Fatalf("Visible after scroll = %v, want [b]", v)
	}
	if p, _ := s.Palette(); p != extractOrFail(t, imgWarm) {
		t.Fatalf("palette = %v", p)
	}
}

func TestScene_RunTeardown(t *testing.T) {
	obs := newRecordingObserver()
	s := NewScene(mapSource{"a": imgRGB}, obs, DefaultOptions(), DefaultSceneOptions())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.Mount("a", image.Rect(0, 0, 10, 10))
	s.HandleEntries([]Entry{{"a", 1}})

	deadline := time.Now().Add(5 * time.Second)
	for !s.State().HasPalette {
		if time.Now().After(deadline) {
			t.Fatal("palette never appeared")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	if !obs.disconnected || len(obs.observed) != 0 {
		t.Error("observer not disconnected on teardown")
	}
	if st := s.State(); st.HasPalette || st.Mounted != 0 {
		t.Errorf("state after teardown = %+v", st)
	}
}

func TestScene_ConfiguresObserver(t *testing.T) {
	src := mapSource{"a": imgRGB}
	vp := NewViewport(image.Rect(0, 0, 100, 100), 0.3, nil)
	s := NewScene(src, vp, DefaultOptions(), SceneOptions{Threshold: 0.5})
	vp.SetNotify(s.HandleEntries)

	s.Mount("a", image.Rect(0, 60, 100, 160)) // 40% inside
	s.settle()
	if v := s.State().Visible; len(v) != 0 {
		t.Fatalf("Visible at 40%% = %v, want none", v)
	}

	vp.Scroll(0, 60)
	s.settle()
	if v := s.State().Visible; len(v) != 1 || v[0] != "a" {
		t.Fatalf("Visible when fully on screen = %v, want [a]", v)
	}

	obs := newRecordingObserver()
	NewScene(src, obs, DefaultOptions(), SceneOptions{Threshold: 0.6, RootMargin: 120})
	if obs.threshold != 0.6 || obs.margin != 120 {
		t.Errorf("observer threshold, margin = %v, %d; want 0.6, 120", obs.threshold, obs.margin)
	}
}

func TestScene_RootMargin(t *testing.T) {
	src := mapSource{"near": imgRGB}
	vp := NewViewport(image.Rect(0, 0, 100, 100), 0.3, nil)
	s := NewScene(src, vp, DefaultOptions(), SceneOptions{Threshold: 0.3, RootMargin: 50})
	vp.SetNotify(s.HandleEntries)

	s.Mount("near", image.Rect(0, 110, 100, 210)) // 40% inside the grown root
	s.settle()
	if v := s.State().Visible; len(v) != 1 || v[0] != "near" {
		t.Fatalf("Visible = %v, want [near]", v)
	}
}
