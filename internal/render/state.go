package render

// State is the double buffer.
//
// Previous is nil or fully rendered. Current may be in any phase.
// Every transition takes the Tag of the work that produced it and
// does nothing if the tag is no longer live, which is how superseded
// work gets discarded.
//
// State isn't safe for concurrent use. Buffer owns one on its event loop.
type State struct {
	Live     Tag // generation of the most recently selected build
	Current  *Artifact
	Previous *Artifact
}

// Select makes buildID the live generation.
// It returns false, and changes nothing, if buildID is already live.
func (s *State) Select(buildID string) (Tag, bool) {
	if s.Live.Seq != 0 && s.Live.BuildID == buildID {
		return s.Live, false
	}
	s.Live = Tag{BuildID: buildID, Seq: s.Live.Seq + 1}
	return s.Live, true
}

// Swap installs freshly fetched data for tag as the Current artifact.
// The old Current becomes Previous only if it was fully rendered,
// otherwise Previous stays as it is.
// This is the only transition that changes Previous.
func (s *State) Swap(tag Tag, data []byte) bool {
	if tag != s.Live || (s.Current != nil && s.Current.Tag == tag) {
		return false
	}
	s.swap(&Artifact{Tag: tag, Data: data, Phase: PhasePending})
	return true
}

func (s *State) swap(a *Artifact) {
	if s.Current.FullyRendered() {
		s.Previous = s.Current
	}
	s.Current = a
}

// LoadMetadata moves the Current artifact from pending to loaded.
// An artifact without pages is fully rendered right away.
func (s *State) LoadMetadata(tag Tag, totalPages int) bool {
	a := s.Current
	if a == nil || a.Tag != tag || a.Phase != PhasePending || totalPages < 0 {
		return false
	}
	a.Phase = PhaseLoaded
	a.TotalPages = totalPages
	a.RenderedPages = 0
	a.pages = make([]pageSlot, totalPages)
	if totalPages == 0 {
		a.Phase = PhaseFullyRendered
	}
	return true
}

// RenderPage records the output of one page of the Current artifact.
// Pages that are out of range or already rendered are ignored.
func (s *State) RenderPage(tag Tag, pageIndex int, output []byte) bool {
	a := s.Current
	if a == nil || a.Tag != tag || a.Phase != PhaseLoaded {
		return false
	}
	if pageIndex < 0 || pageIndex >= a.TotalPages || a.rendered(pageIndex) {
		return false
	}
	if output == nil {
		output = []byte{}
	}
	a.setPage(pageIndex, output)
	if a.RenderedPages == a.TotalPages {
		a.Phase = PhaseFullyRendered
	}
	return true
}

// Fail marks the generation of tag as failed.
// If its data never arrived, a failed artifact without data takes the
// Current slot under the usual swap rule. A fully rendered artifact
// can't fail.
func (s *State) Fail(tag Tag, err error) bool {
	if tag != s.Live {
		return false
	}
	a := s.Current
	if a == nil || a.Tag != tag {
		s.swap(&Artifact{Tag: tag, Phase: PhaseFailed, Err: err})
		return true
	}
	if a.Phase == PhaseFullyRendered || a.Phase == PhaseFailed {
		return false
	}
	a.Phase = PhaseFailed
	a.Err = err
	return true
}

// Visible returns the artifact the viewer should show.
// It is Current once Current is fully rendered and Previous otherwise,
// which is nil until the first artifact finishes rendering.
func (s *State) Visible() *Artifact {
	if s.Current.FullyRendered() {
		return s.Current
	}
	return s.Previous
}

// Snapshot is a copy of State that is safe to hand out of the event loop.
// Visible points to the same copy as Previous or Current.
type Snapshot struct {
	Live     Tag
	Previous *Artifact
	Current  *Artifact
	Visible  *Artifact
}

func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Live:     s.Live,
		Previous: s.Previous.clone(),
		Current:  s.Current.clone(),
	}
	switch s.Visible() {
	case nil:
	case s.Current:
		snap.Visible = snap.Current
	default:
		snap.Visible = snap.Previous
	}
	return snap
}

// Artifact returns the buffered artifact built by buildID, if any.
// Both slots hold the same build when it was selected again. Then the
// visible copy wins, and Current only if neither is visible.
func (s Snapshot) Artifact(buildID string) (*Artifact, bool) {
	for _, a := range []*Artifact{s.Visible, s.Current, s.Previous} {
		if a != nil && a.Tag.BuildID == buildID && a.Phase != PhaseFailed {
			return a, true
		}
	}
	return nil, false
}
