package render

import "sync/atomic"

// Phase is the rendering progress of an artifact.
type Phase int

const (
	// PhasePending means the bytes are fetched and the page count is unknown.
	PhasePending Phase = iota
	// PhaseLoaded means the page count is known and pages are rendering.
	PhaseLoaded
	// PhaseFullyRendered means every page has been rendered.
	PhaseFullyRendered
	// PhaseFailed means fetching, loading or rendering failed.
	// It is terminal for the generation.
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseLoaded:
		return "loaded"
	case PhaseFullyRendered:
		return "fully_rendered"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Tag identifies one generation of asynchronous work.
// Seq grows every time a different build is selected, so a build that is
// selected again after being superseded gets a new tag.
type Tag struct {
	BuildID string
	Seq     uint64
}

// Artifact is the document produced by a successful build,
// tracked through its rendering phases.
type Artifact struct {
	Tag           Tag
	Data          []byte
	Phase         Phase
	TotalPages    int
	RenderedPages int
	Err           error // set in PhaseFailed

	pages []pageSlot // by page index, shared by every copy of the artifact
}

// pageSlot is written once by the event loop and read by copies
// that left it.
type pageSlot struct {
	p atomic.Pointer[renderedPage]
}

type renderedPage struct {
	output []byte
	order  int // RenderedPages once this page was stored
}

func (a *Artifact) FullyRendered() bool {
	return a != nil && a.Phase == PhaseFullyRendered
}

// Page returns the rendered output of the page at index.
// A copy only sees the pages that were rendered when it was made.
func (a *Artifact) Page(index int) ([]byte, bool) {
	if a == nil || index < 0 || index >= len(a.pages) {
		return nil, false
	}
	p := a.pages[index].p.Load()
	if p == nil || p.order > a.RenderedPages {
		return nil, false
	}
	return p.output, true
}

func (a *Artifact) rendered(index int) bool {
	return a.pages[index].p.Load() != nil
}

// setPage stores the output of a page that hasn't been rendered yet.
func (a *Artifact) setPage(index int, output []byte) {
	a.RenderedPages++
	a.pages[index].p.Store(&renderedPage{output: output, order: a.RenderedPages})
}

// clone copies a so the copy can leave the event loop.
// Data and the page slots are shared, so cloning doesn't depend on the
// page count.
func (a *Artifact) clone() *Artifact {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
