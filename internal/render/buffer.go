package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/k11v/brickview/internal/build"
	"github.com/k11v/brickview/internal/metrics"
)

// ErrNoResult is returned when a build without a successful result is selected.
var ErrNoResult = errors.New("build has no successful result")

const (
	defaultConcurrency = 4
	defaultWidth       = 800
	eventBufferSize    = 64
)

// ContentStore fetches artifact bytes by reference.
type ContentStore interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// MetadataLoader reads the page count of an artifact.
type MetadataLoader interface {
	Load(ctx context.Context, data []byte) (totalPages int, err error)
}

// PageRenderer renders one page of an artifact for the given display width.
type PageRenderer interface {
	RenderPage(ctx context.Context, data []byte, pageIndex int, width int) ([]byte, error)
}

// Sink receives a snapshot after every change of the buffer state.
// Publish is called from the event loop and must not block for long.
type Sink interface {
	Publish(s Snapshot)
}

type BufferParams struct {
	Store    ContentStore     // required
	Loader   MetadataLoader   // required
	Renderer PageRenderer     // required
	Sink     Sink             // optional
	Recorder metrics.Recorder // optional
	Logger   *slog.Logger     // optional

	Width       int // optional, initial display width
	Concurrency int // optional, page renders running at once
}

// Buffer runs the double buffer on a single event loop.
// Fetches, metadata loads and page renders run on their own goroutines and
// report back through the loop, which drops results of superseded builds.
type Buffer struct {
	store    ContentStore
	loader   MetadataLoader
	renderer PageRenderer
	sink     Sink
	recorder metrics.Recorder
	log      *slog.Logger

	width  atomic.Int64
	sem    *semaphore.Weighted
	events chan event

	// Seq of the Current artifact, read by page renders to skip work
	// whose result the loop would drop.
	currentSeq atomic.Uint64

	// owned by the event loop
	state      State
	selectedAt time.Time
}

func NewBuffer(params *BufferParams) *Buffer {
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	b := &Buffer{
		store:    params.Store,
		loader:   params.Loader,
		renderer: params.Renderer,
		sink:     params.Sink,
		recorder: params.Recorder,
		log:      params.Logger,
		sem:      semaphore.NewWeighted(int64(concurrency)),
		events:   make(chan event, eventBufferSize),
	}
	if b.recorder == nil {
		b.recorder = metrics.NoopRecorder{}
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	b.log = b.log.With("component", "render.Buffer")

	width := params.Width
	if width <= 0 {
		width = defaultWidth
	}
	b.width.Store(int64(width))

	return b
}

// SelectBuild asks the loop to show the artifact of b.
// Selecting the build that is already live does nothing.
// It blocks until the loop accepts the request or ctx is done.
func (b *Buffer) SelectBuild(ctx context.Context, bd *build.Build) error {
	if bd == nil || !bd.Succeeded() {
		return ErrNoResult
	}
	return b.post(ctx, selectEvent{buildID: bd.ID, ref: bd.Result.ArtifactRef})
}

// SetWidth caches the display width used by page renders started later.
// Non-positive widths are ignored.
func (b *Buffer) SetWidth(width int) {
	if width > 0 {
		b.width.Store(int64(width))
	}
}

func (b *Buffer) Width() int {
	return int(b.width.Load())
}

// Run processes events until ctx is done.
// Tasks it starts use ctx and stop reporting once it is done.
func (b *Buffer) Run(ctx context.Context) error {
	b.log.Info("starting buffer")
	for {
		select {
		case e := <-b.events:
			b.handle(ctx, e)
		case <-ctx.Done():
			b.log.Info("stopped buffer")
			return ctx.Err()
		}
	}
}

type event interface{ isEvent() }

type selectEvent struct {
	buildID string
	ref     string
}

type fetchedEvent struct {
	tag  Tag
	data []byte
	err  error
}

type metadataLoadedEvent struct {
	tag        Tag
	totalPages int
	err        error
}

type pageRenderedEvent struct {
	tag       Tag
	pageIndex int
	output    []byte
	err       error
}

func (selectEvent) isEvent()         {}
func (fetchedEvent) isEvent()        {}
func (metadataLoadedEvent) isEvent() {}
func (pageRenderedEvent) isEvent()   {}

func (b *Buffer) post(ctx context.Context, e event) error {
	select {
	case b.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Buffer) handle(ctx context.Context, e event) {
	switch e := e.(type) {
	case selectEvent:
		b.handleSelect(ctx, e)
	case fetchedEvent:
		b.handleFetched(ctx, e)
	case metadataLoadedEvent:
		b.handleMetadataLoaded(ctx, e)
	case pageRenderedEvent:
		b.handlePageRendered(e)
	default:
		panic(fmt.Sprintf("unknown event %T", e))
	}
}

func (b *Buffer) handleSelect(ctx context.Context, e selectEvent) {
	tag, ok := b.state.Select(e.buildID)
	if !ok {
		return
	}
	b.selectedAt = time.Now()
	b.recorder.IncSelection()
	b.log.Info("selected build", "build_id", tag.BuildID, "generation", tag.Seq)
	b.publish()

	go b.fetch(ctx, tag, e.ref)
}

func (b *Buffer) handleFetched(ctx context.Context, e fetchedEvent) {
	if e.err != nil {
		b.fail(e.tag, "fetch", fmt.Errorf("fetch artifact: %w", e.err))
		return
	}
	if !b.state.Swap(e.tag, e.data) {
		b.stale(e.tag, "fetch")
		return
	}
	b.publish()

	go b.loadMetadata(ctx, e.tag, e.data)
}

func (b *Buffer) handleMetadataLoaded(ctx context.Context, e metadataLoadedEvent) {
	if e.err != nil {
		b.fail(e.tag, "metadata", fmt.Errorf("load metadata: %w", e.err))
		return
	}
	if !b.state.LoadMetadata(e.tag, e.totalPages) {
		b.stale(e.tag, "metadata")
		return
	}
	b.log.Info("loaded metadata", "build_id", e.tag.BuildID, "total_pages", e.totalPages)

	if b.state.Current.FullyRendered() {
		b.ready()
	} else {
		data := b.state.Current.Data
		width := b.Width()
		for i := range e.totalPages {
			go b.renderPage(ctx, e.tag, data, i, width)
		}
	}
	b.publish()
}

func (b *Buffer) handlePageRendered(e pageRenderedEvent) {
	if e.err != nil {
		b.fail(e.tag, "page", fmt.Errorf("render page %d: %w", e.pageIndex, e.err))
		return
	}
	if !b.state.RenderPage(e.tag, e.pageIndex, e.output) {
		b.stale(e.tag, "page")
		return
	}
	if b.state.Current.FullyRendered() {
		b.ready()
	}
	b.publish()
}

func (b *Buffer) fail(tag Tag, kind string, err error) {
	if !b.state.Fail(tag, err) {
		b.stale(tag, kind)
		return
	}
	b.recorder.IncArtifactOutcome(metrics.ArtifactFailed)
	b.log.Error("didn't render artifact", "build_id", tag.BuildID, "err", err)
	b.publish()
}

func (b *Buffer) ready() {
	b.recorder.IncArtifactOutcome(metrics.ArtifactReady)
	b.recorder.ObserveReadyDuration(time.Since(b.selectedAt))
	b.log.Info("rendered artifact", "build_id", b.state.Current.Tag.BuildID, "total_pages", b.state.Current.TotalPages)
}

func (b *Buffer) stale(tag Tag, kind string) {
	b.recorder.IncStaleEvent(kind)
	b.log.Debug("dropped event", "event", kind, "build_id", tag.BuildID, "generation", tag.Seq, "live_generation", b.state.Live.Seq)
}

func (b *Buffer) publish() {
	if c := b.state.Current; c != nil {
		b.currentSeq.Store(c.Tag.Seq)
	}
	if b.sink != nil {
		b.sink.Publish(b.state.Snapshot())
	}
}

func (b *Buffer) fetch(ctx context.Context, tag Tag, ref string) {
	start := time.Now()
	data, err := b.store.Fetch(ctx, ref)
	b.recorder.ObserveFetchDuration(time.Since(start))
	_ = b.post(ctx, fetchedEvent{tag: tag, data: data, err: err})
}

func (b *Buffer) loadMetadata(ctx context.Context, tag Tag, data []byte) {
	totalPages, err := b.loader.Load(ctx, data)
	_ = b.post(ctx, metadataLoadedEvent{tag: tag, totalPages: totalPages, err: err})
}

// renderPage skips the render once tag's artifact has left the Current
// slot. Current never goes back to an earlier generation.
func (b *Buffer) renderPage(ctx context.Context, tag Tag, data []byte, pageIndex int, width int) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return
	}
	if b.currentSeq.Load() != tag.Seq {
		b.sem.Release(1)
		b.recorder.IncStaleEvent("page")
		return
	}
	output, err := b.renderer.RenderPage(ctx, data, pageIndex, width)
	b.sem.Release(1)
	_ = b.post(ctx, pageRenderedEvent{tag: tag, pageIndex: pageIndex, output: output, err: err})
}
