package viewer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/k11v/brickview/internal/build"
	"github.com/k11v/brickview/internal/metrics"
	"github.com/k11v/brickview/internal/render"
)

type Params struct {
	Store    render.ContentStore   // required
	Loader   render.MetadataLoader // required
	Renderer render.PageRenderer   // required
	Recorder metrics.Recorder      // optional
	Logger   *slog.Logger          // optional

	Width       int // optional
	Concurrency int // optional
}

// Viewer keeps the latest good build collection, drives the render buffer
// with its latest successful build and derives what the user sees.
// It is safe for concurrent use.
type Viewer struct {
	buffer   *render.Buffer
	recorder metrics.Recorder
	log      *slog.Logger

	mu            sync.Mutex
	loaded        bool
	collection    build.Collection
	collectionErr error
	snapshot      render.Snapshot
	loggedFailure map[string]struct{}
	subscribers   map[uuid.UUID]chan struct{}
}

func New(params *Params) *Viewer {
	v := &Viewer{
		recorder:      params.Recorder,
		log:           params.Logger,
		collection:    make(build.Collection),
		loggedFailure: make(map[string]struct{}),
		subscribers:   make(map[uuid.UUID]chan struct{}),
	}
	if v.recorder == nil {
		v.recorder = metrics.NoopRecorder{}
	}
	if v.log == nil {
		v.log = slog.Default()
	}

	v.buffer = render.NewBuffer(&render.BufferParams{
		Store:       params.Store,
		Loader:      params.Loader,
		Renderer:    params.Renderer,
		Sink:        v,
		Recorder:    v.recorder,
		Logger:      v.log,
		Width:       params.Width,
		Concurrency: params.Concurrency,
	})
	v.log = v.log.With("component", "viewer.Viewer")
	return v
}

// Run runs the render buffer until ctx is done.
func (v *Viewer) Run(ctx context.Context) error {
	return v.buffer.Run(ctx)
}

// HandleCollection replaces the known builds with c and selects its
// latest successful build for rendering.
func (v *Viewer) HandleCollection(ctx context.Context, c build.Collection) {
	v.recorder.IncCollectionUpdate()

	v.mu.Lock()
	v.loaded = true
	v.collection = c.Clone()
	v.collectionErr = nil
	latest, _ := build.Latest(v.collection)
	if latest != nil && latest.Failed() {
		if _, ok := v.loggedFailure[latest.ID]; !ok {
			v.loggedFailure[latest.ID] = struct{}{}
			v.log.Warn("build failed", "build_id", latest.ID, "error", latest.Result.Error, "stderr", latest.Result.Stderr)
		}
	}
	successful, ok := build.LatestSuccessful(v.collection)
	v.mu.Unlock()
	v.notify()

	if !ok {
		return
	}
	if err := v.buffer.SelectBuild(ctx, successful); err != nil {
		v.log.Error("didn't select build", "build_id", successful.ID, "err", err)
	}
}

// HandleError reports a collection that couldn't be received or parsed.
// The last good collection stays in effect.
func (v *Viewer) HandleError(ctx context.Context, err error) {
	v.recorder.IncCollectionError()
	v.log.Error("didn't receive build collection", "err", err)

	v.mu.Lock()
	v.collectionErr = err
	v.mu.Unlock()
	v.notify()
}

// Publish implements render.Sink.
func (v *Viewer) Publish(s render.Snapshot) {
	v.mu.Lock()
	v.snapshot = s
	v.mu.Unlock()
	v.notify()
}

// SetWidth sets the display width used for pages rendered from now on.
func (v *Viewer) SetWidth(width int) {
	v.buffer.SetWidth(width)
}

// Artifact returns the buffered artifact built by buildID.
func (v *Viewer) Artifact(buildID string) (*render.Artifact, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshot.Artifact(buildID)
}

// Subscribe returns a channel that receives a value after changes.
// Changes that happen while a value is pending are coalesced.
// The returned function unsubscribes.
func (v *Viewer) Subscribe() (<-chan struct{}, func()) {
	id := uuid.New()
	ch := make(chan struct{}, 1)

	v.mu.Lock()
	v.subscribers[id] = ch
	v.mu.Unlock()

	return ch, func() {
		v.mu.Lock()
		delete(v.subscribers, id)
		v.mu.Unlock()
	}
}

func (v *Viewer) notify() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, ch := range v.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// View derives what the user sees at now.
func (v *Viewer) View(now time.Time) *View {
	v.mu.Lock()
	defer v.mu.Unlock()

	latest, _ := build.Latest(v.collection)
	view := &View{
		Loaded:   v.loaded,
		Status:   build.StatusOf(latest, now),
		Previous: newArtifactView(v.snapshot.Previous),
		Current:  newArtifactView(v.snapshot.Current),
		Visible:  newArtifactView(v.snapshot.Visible),
	}
	if latest != nil {
		view.LatestBuildID = latest.ID
	}
	if v.snapshot.Visible != nil {
		view.ShowingBuildID = v.snapshot.Visible.Tag.BuildID
		view.ShowingLatest = view.ShowingBuildID == view.LatestBuildID
	}
	if v.collectionErr != nil {
		view.CollectionError = v.collectionErr.Error()
	}
	return view
}
