package backdrop

import (
	"context"
	"errors"
	"image"
	"log"
	"slices"
	"sync"
	"sync/atomic"
)

// Source loads the decoded image behind an identity. Load is the only
// blocking step of an extraction and must honor ctx.
type Source interface {
	Load(ctx context.Context, id ImageID) (image.Image, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, id ImageID) (image.Image, error)

func (f SourceFunc) Load(ctx context.Context, id ImageID) (image.Image, error) {
	return f(ctx, id)
}

type SceneOptions struct {
	// Visible fraction of an image's area from which it counts as on screen.
	Threshold float64 `toml:"threshold"`
	// Pixels added around the viewport before intersecting.
	RootMargin int `toml:"root_margin"`
}

func DefaultSceneOptions() SceneOptions {
	return SceneOptions{
		Threshold:  0.3,
		RootMargin: 0,
	}
}

// Snapshot is a copy of the scene state taken after the last change.
type Snapshot struct {
	Palette    ColorSet
	HasPalette bool
	Visible    []ImageID
	Mounted    int
	Extracted  int
}

type mount struct {
	gen    uint64
	cancel context.CancelFunc
}

// Scene ties extraction, visibility and blending together. All of its
// state is owned by the goroutine running Run; the exported methods only
// enqueue tasks for it. Loads run in their own goroutines and post their
// results back, so extraction and blending never run concurrently.
type Scene struct {
	opt     Options
	src     Source
	queue   *taskQueue
	tracker *Tracker

	base   context.Context
	cancel context.CancelFunc
	loads  sync.WaitGroup

	gen        uint64
	mounts     map[ImageID]*mount
	sets       map[ImageID]ColorSet
	palette    ColorSet
	hasPalette bool

	snapshot atomic.Pointer[Snapshot]

	subsMu sync.Mutex
	subs   []func(ColorSet, bool)
}

// NewScene returns a scene extracting with opt from src. obs takes its
// threshold and root margin from sopt. Intersection entries for obs must be
// routed to HandleEntries.
func NewScene(src Source, obs Observer, opt Options, sopt SceneOptions) *Scene {
	if obs != nil {
		obs.SetThreshold(sopt.Threshold)
		obs.SetRootMargin(sopt.RootMargin)
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Scene{
		opt:     opt,
		src:     src,
		queue:   newTaskQueue(),
		tracker: NewTracker(obs, sopt.Threshold),
		base:    base,
		cancel:  cancel,
		mounts:  make(map[ImageID]*mount),
		sets:    make(map[ImageID]ColorSet),
	}
	s.snapshot.Store(&Snapshot{})
	return s
}

// Subscribe registers fn to be called from the scene loop whenever the
// blended palette changes. fn must not block.
func (s *Scene) Subscribe(fn func(ColorSet, bool)) {
	s.subsMu.Lock()
	s.subs = append(s.subs, fn)
	s.subsMu.Unlock()
}

// Mount adds an image at the given page bounds and starts loading it.
// Mounting an identity again restarts its load.
func (s *Scene) Mount(id ImageID, bounds image.Rectangle) {
	s.queue.Push(func() { s.mount(id, bounds) })
}

// Unmount removes an image. A load still in flight is cancelled and its
// result discarded.
func (s *Scene) Unmount(id ImageID) {
	s.queue.Push(func() { s.unmount(id) })
}

// Reload extracts a mounted image again, e.g. after its source changed.
func (s *Scene) Reload(id ImageID) {
	s.queue.Push(func() {
		if m, ok := s.mounts[id]; ok {
			m.cancel()
			s.startLoad(id)
		}
	})
}

// HandleEntries feeds intersection entries to the tracker.
func (s *Scene) HandleEntries(entries []Entry) {
	s.queue.Push(func() {
		mounted := entries[:0:0]
		for _, e := range entries {
			if _, ok := s.mounts[e.ID]; ok {
				mounted = append(mounted, e)
			}
		}
		if s.tracker.Handle(mounted) {
			s.recompute()
		}
	})
}

// Palette returns the current blended palette, or ErrEmptyVisibleSet.
func (s *Scene) Palette() (ColorSet, error) {
	snap := s.snapshot.Load()
	if !snap.HasPalette {
		return ColorSet{}, ErrEmptyVisibleSet
	}
	return snap.Palette, nil
}

// State returns the latest snapshot.
func (s *Scene) State() Snapshot {
	return *s.snapshot.Load()
}

// Run executes queued tasks until ctx is done, then cancels pending loads,
// disconnects the observer and clears all state.
func (s *Scene) Run(ctx context.Context) error {
	defer s.teardown()
	for {
		s.drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.queue.Ready():
		}
	}
}

// drain runs every pending task and returns how many ran.
func (s *Scene) drain() int {
	n := 0
	for {
		tasks := s.queue.Consume()
		if len(tasks) == 0 {
			return n
		}
		for _, t := range tasks {
			t()
		}
		n += len(tasks)
	}
}

func (s *Scene) teardown() {
	s.queue.Close()
	s.cancel()
	for id, m := range s.mounts {
		m.cancel()
		delete(s.mounts, id)
	}
	clear(s.sets)
	s.tracker.Close()
	s.recompute()
}

func (s *Scene) mount(id ImageID, bounds image.Rectangle) {
	if m, ok := s.mounts[id]; ok {
		m.cancel()
	}
	s.mounts[id] = &mount{}
	s.startLoad(id)
	s.tracker.Observe(id, bounds)
	s.publish()
}

func (s *Scene) unmount(id ImageID) {
	m, ok := s.mounts[id]
	if !ok {
		return
	}
	m.cancel()
	delete(s.mounts, id)
	delete(s.sets, id)
	s.tracker.Forget(id)
	s.recompute()
}

func (s *Scene) startLoad(id ImageID) {
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(s.base)
	s.mounts[id].gen = gen
	s.mounts[id].cancel = cancel

	s.loads.Add(1)
	go func() {
		defer s.loads.Done()
		img, err := s.src.Load(ctx, id)
		s.queue.Push(func() { s.finish(id, gen, img, err) })
	}()
}

func (s *Scene) finish(id ImageID, gen uint64, img image.Image, err error) {
	m, ok := s.mounts[id]
	if !ok || m.gen != gen {
		return
	}
	if err == nil {
		var set ColorSet
		if set, err = Extract(img, s.opt); err == nil {
			s.sets[id] = set
			s.recompute()
			return
		}
	}
	if !errors.Is(err, context.Canceled) {
		log.Printf("backdrop: no colors for %s: %v", id, err)
	}
	if _, had := s.sets[id]; had {
		delete(s.sets, id)
		s.recompute()
	}
}

// recompute derives the palette from the visible sets from scratch and
// notifies subscribers when it changed.
func (s *Scene) recompute() {
	ids := s.tracker.Visible()
	sets := make([]ColorSet, 0, len(ids))
	for _, id := range ids {
		if set, ok := s.sets[id]; ok {
			sets = append(sets, set)
		}
	}
	p, ok := Blend(sets...)
	changed := ok != s.hasPalette || p != s.palette
	s.palette, s.hasPalette = p, ok
	s.publish()
	if !changed {
		return
	}

	s.subsMu.Lock()
	subs := slices.Clone(s.subs)
	s.subsMu.Unlock()
	for _, fn := range subs {
		fn(p, ok)
	}
}

func (s *Scene) publish() {
	s.snapshot.Store(&Snapshot{
		Palette:    s.palette,
		HasPalette: s.hasPalette,
		Visible:    s.tracker.Visible(),
		Mounted:    len(s.mounts),
		Extracted:  len(s.sets),
	})
}
