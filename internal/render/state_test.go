package render

import (
	"errors"
	"testing"
)

// renderAll renders every page of the current artifact of tag.
func renderAll(t *testing.T, s *State, tag Tag, pages ...int) {
	t.Helper()
	for _, i := range pages {
		if !s.RenderPage(tag, i, []byte{byte(i)}) {
			t.Fatalf("got page %d of %v dropped, want it accepted", i, tag)
		}
	}
}

func selectAndSwap(t *testing.T, s *State, buildID string) Tag {
	t.Helper()
	tag, ok := s.Select(buildID)
	if !ok {
		t.Fatalf("got %s not selected, want it selected", buildID)
	}
	if !s.Swap(tag, []byte(buildID)) {
		t.Fatalf("got %s not swapped, want it swapped", buildID)
	}
	return tag
}

func checkPreviousInvariant(t *testing.T, s *State) {
	t.Helper()
	if p := s.Previous; p != nil && (p.Phase != PhaseFullyRendered || p.RenderedPages != p.TotalPages) {
		t.Fatalf("got previous %s in phase %v with %d/%d pages, want it fully rendered", p.Tag.BuildID, p.Phase, p.RenderedPages, p.TotalPages)
	}
}

func visibleID(s *State) string {
	if v := s.Visible(); v != nil {
		return v.Tag.BuildID
	}
	return ""
}

func TestStateScenarios(t *testing.T) {
	var s State

	// No successful build: nothing is selected and nothing is visible.
	if got := visibleID(&s); got != "" {
		t.Fatalf("got visible %q, want none", got)
	}

	// b1 succeeds with three pages.
	b1 := selectAndSwap(t, &s, "b1")
	if got, want := s.Current.Phase, PhasePending; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if !s.LoadMetadata(b1, 3) {
		t.Fatal("got metadata dropped, want it accepted")
	}
	renderAll(t, &s, b1, 0, 1)
	if got := visibleID(&s); got != "" {
		t.Fatalf("got visible %q before b1 finished, want none", got)
	}
	renderAll(t, &s, b1, 2)
	if got, want := visibleID(&s), "b1"; got != want {
		t.Fatalf("got visible %q, want %q", got, want)
	}
	if s.Previous != nil {
		t.Fatalf("got previous %v, want nil", s.Previous.Tag)
	}

	// b2 with five pages promotes b1 to previous.
	b2 := selectAndSwap(t, &s, "b2")
	checkPreviousInvariant(t, &s)
	if got, want := s.Previous.Tag.BuildID, "b1"; got != want {
		t.Fatalf("got previous %q, want %q", got, want)
	}
	if !s.LoadMetadata(b2, 5) {
		t.Fatal("got metadata dropped, want it accepted")
	}
	renderAll(t, &s, b2, 0, 1, 2)
	if got, want := visibleID(&s), "b1"; got != want {
		t.Fatalf("got visible %q, want %q", got, want)
	}

	// b3 arrives before b2 finishes: b2 is not promoted.
	b3 := selectAndSwap(t, &s, "b3")
	checkPreviousInvariant(t, &s)
	if got, want := s.Previous.Tag.BuildID, "b1"; got != want {
		t.Fatalf("got previous %q, want %q", got, want)
	}

	// Late pages of b2 are dropped.
	for _, i := range []int{3, 4} {
		if s.RenderPage(b2, i, []byte{1}) {
			t.Fatalf("got late page %d of b2 accepted, want it dropped", i)
		}
	}
	if got, want := s.Current.Tag, b3; got != want {
		t.Fatalf("got current %v, want %v", got, want)
	}
	if got, want := s.Current.Phase, PhasePending; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}

	if !s.LoadMetadata(b3, 2) {
		t.Fatal("got metadata dropped, want it accepted")
	}
	renderAll(t, &s, b3, 1)
	if got, want := visibleID(&s), "b1"; got != want {
		t.Fatalf("got visible %q, want %q", got, want)
	}
	renderAll(t, &s, b3, 0)
	if got, want := visibleID(&s), "b3"; got != want {
		t.Fatalf("got visible %q, want %q", got, want)
	}
	if got, want := s.Previous.Tag.BuildID, "b1"; got != want {
		t.Fatalf("got previous %q, want %q", got, want)
	}
}

func TestStateSelectSameBuild(t *testing.T) {
	var s State
	tag, ok := s.Select("b1")
	if !ok {
		t.Fatal("got b1 not selected, want it selected")
	}
	again, ok := s.Select("b1")
	if ok {
		t.Fatal("got b1 selected twice, want the second selection ignored")
	}
	if again != tag {
		t.Fatalf("got %v, want %v", again, tag)
	}
}

func TestStateVisibleStaysUntilNextSwap(t *testing.T) {
	var s State
	b1 := selectAndSwap(t, &s, "b1")
	s.LoadMetadata(b1, 1)
	renderAll(t, &s, b1, 0)

	// Selecting b2 doesn't change what is shown until b2 is fetched.
	b2, _ := s.Select("b2")
	if got, want := visibleID(&s), "b1"; got != want {
		t.Fatalf("got visible %q, want %q", got, want)
	}
	s.Swap(b2, []byte("b2"))
	if got, want := visibleID(&s), "b1"; got != want {
		t.Fatalf("got visible %q, want %q", got, want)
	}
	if got, want := s.Previous.Tag, b1; got != want {
		t.Fatalf("got previous %v, want %v", got, want)
	}
}

func TestStateStaleEvents(t *testing.T) {
	var s State
	a, _ := s.Select("a")
	b, _ := s.Select("b")

	if s.Swap(a, []byte("a")) {
		t.Fatal("got superseded fetch swapped, want it dropped")
	}
	if s.Current != nil {
		t.Fatalf("got current %v, want nil", s.Current.Tag)
	}
	if !s.Swap(b, []byte("b")) {
		t.Fatal("got live fetch dropped, want it swapped")
	}
	if s.LoadMetadata(a, 1) {
		t.Fatal("got superseded metadata accepted, want it dropped")
	}
	if s.RenderPage(a, 0, nil) {
		t.Fatal("got superseded page accepted, want it dropped")
	}
	if s.Fail(a, errors.New("late")) {
		t.Fatal("got superseded failure accepted, want it dropped")
	}
	if got, want := s.Current.Phase, PhasePending; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestStateReselectedBuildGetsNewGeneration(t *testing.T) {
	var s State
	a1, _ := s.Select("a")
	b, _ := s.Select("b")
	a2, _ := s.Select("a")
	if a1 == a2 {
		t.Fatalf("got the same tag %v for both selections of a, want distinct", a1)
	}
	if s.Swap(b, nil) {
		t.Fatal("got superseded b swapped, want it dropped")
	}
	if s.Swap(a1, nil) {
		t.Fatal("got first generation of a swapped, want it dropped")
	}
	if !s.Swap(a2, nil) {
		t.Fatal("got live generation of a dropped, want it swapped")
	}
}

func TestStateRenderPageIgnoresDuplicatesAndOutOfRange(t *testing.T) {
	var s State
	tag := selectAndSwap(t, &s, "b1")
	s.LoadMetadata(tag, 2)

	tests := []struct {
		name      string
		pageIndex int
		want      bool
	}{
		{"first page", 0, true},
		{"duplicate", 0, false},
		{"negative", -1, false},
		{"past end", 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.RenderPage(tag, tt.pageIndex, []byte("x")); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
	if got, want := s.Current.RenderedPages, 1; got != want {
		t.Fatalf("got %d rendered pages, want %d", got, want)
	}
	if s.Current.FullyRendered() {
		t.Fatal("got fully rendered, want loaded")
	}
}

func TestStateRenderPageNilOutput(t *testing.T) {
	var s State
	tag := selectAndSwap(t, &s, "b1")
	s.LoadMetadata(tag, 1)
	s.RenderPage(tag, 0, nil)
	page, ok := s.Current.Page(0)
	if !ok || page == nil {
		t.Fatalf("got page %v, %v, want an empty rendered page", page, ok)
	}
}

func TestStateZeroPages(t *testing.T) {
	var s State
	tag := selectAndSwap(t, &s, "empty")
	if !s.LoadMetadata(tag, 0) {
		t.Fatal("got metadata dropped, want it accepted")
	}
	if !s.Current.FullyRendered() {
		t.Fatalf("got %v, want %v", s.Current.Phase, PhaseFullyRendered)
	}
	if got, want := visibleID(&s), "empty"; got != want {
		t.Fatalf("got visible %q, want %q", got, want)
	}
}

func TestStateLoadMetadataOnce(t *testing.T) {
	var s State
	tag := selectAndSwap(t, &s, "b1")
	if !s.LoadMetadata(tag, 2) {
		t.Fatal("got metadata dropped, want it accepted")
	}
	if s.LoadMetadata(tag, 7) {
		t.Fatal("got second metadata accepted, want it dropped")
	}
	if got, want := s.Current.TotalPages, 2; got != want {
		t.Fatalf("got %d total pages, want %d", got, want)
	}
}

func TestStateFail(t *testing.T) {
	errFetch := errors.New("fetch failed")

	t.Run("fetch failure reverts to previous", func(t *testing.T) {
		var s State
		b1 := selectAndSwap(t, &s, "b1")
		s.LoadMetadata(b1, 1)
		renderAll(t, &s, b1, 0)

		b2, _ := s.Select("b2")
		if !s.Fail(b2, errFetch) {
			t.Fatal("got failure dropped, want it accepted")
		}
		checkPreviousInvariant(t, &s)
		if got, want := s.Current.Phase, PhaseFailed; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
		if !errors.Is(s.Current.Err, errFetch) {
			t.Fatalf("got %v, want %v", s.Current.Err, errFetch)
		}
		if got, want := visibleID(&s), "b1"; got != want {
			t.Fatalf("got visible %q, want %q", got, want)
		}
	})

	t.Run("render failure keeps previous", func(t *testing.T) {
		var s State
		b1 := selectAndSwap(t, &s, "b1")
		s.LoadMetadata(b1, 1)
		renderAll(t, &s, b1, 0)
		b2 := selectAndSwap(t, &s, "b2")
		s.LoadMetadata(b2, 2)
		renderAll(t, &s, b2, 0)

		if !s.Fail(b2, errors.New("page 1")) {
			t.Fatal("got failure dropped, want it accepted")
		}
		if s.RenderPage(b2, 1, []byte{1}) {
			t.Fatal("got page of failed artifact accepted, want it dropped")
		}
		if got, want := visibleID(&s), "b1"; got != want {
			t.Fatalf("got visible %q, want %q", got, want)
		}

		// A failed current is never promoted.
		selectAndSwap(t, &s, "b3")
		if got, want := s.Previous.Tag, b1; got != want {
			t.Fatalf("got previous %v, want %v", got, want)
		}
	})

	t.Run("fully rendered can't fail", func(t *testing.T) {
		var s State
		b1 := selectAndSwap(t, &s, "b1")
		s.LoadMetadata(b1, 1)
		renderAll(t, &s, b1, 0)
		if s.Fail(b1, errors.New("late")) {
			t.Fatal("got failure accepted, want it dropped")
		}
		if got, want := visibleID(&s), "b1"; got != want {
			t.Fatalf("got visible %q, want %q", got, want)
		}
	})
}

func TestStateSnapshot(t *testing.T) {
	var s State
	b1 := selectAndSwap(t, &s, "b1")
	s.LoadMetadata(b1, 2)
	renderAll(t, &s, b1, 0)

	snap := s.Snapshot()
	if snap.Visible != nil {
		t.Fatalf("got visible %v, want nil", snap.Visible.Tag)
	}
	renderAll(t, &s, b1, 1)
	if got, want := snap.Current.RenderedPages, 1; got != want {
		t.Fatalf("got %d rendered pages in snapshot, want %d", got, want)
	}
	if _, ok := snap.Current.Page(1); ok {
		t.Fatal("got page 1 in snapshot taken before it rendered, want none")
	}

	snap = s.Snapshot()
	if snap.Visible != snap.Current {
		t.Fatal("got visible not pointing to current, want it to")
	}
	a, ok := snap.Artifact("b1")
	if !ok || a.Tag != b1 {
		t.Fatalf("got %v, %v, want b1", a, ok)
	}
	if _, ok := snap.Artifact("missing"); ok {
		t.Fatal("got artifact for missing build, want none")
	}
}

func TestStateSnapshotArtifactPrefersVisibleCopy(t *testing.T) {
	var s State
	first := selectAndSwap(t, &s, "b1")
	s.LoadMetadata(first, 1)
	renderAll(t, &s, first, 0)

	// b2 leaves the collection before it is fetched and b1 is selected again.
	if _, ok := s.Select("b2"); !ok {
		t.Fatal("got b2 not selected, want it selected")
	}
	second := selectAndSwap(t, &s, "b1")
	if second == first {
		t.Fatalf("got the same tag %v for both selections of b1, want distinct", first)
	}

	snap := s.Snapshot()
	if snap.Visible == nil || snap.Visible.Tag != first {
		t.Fatalf("got visible %v, want %v", snap.Visible, first)
	}
	a, ok := snap.Artifact("b1")
	if !ok || a.Tag != first {
		t.Fatalf("got %v, %v, want the visible %v", a, ok, first)
	}
	if _, ok = a.Page(0); !ok {
		t.Fatal("got page 0 of the visible copy missing, want it rendered")
	}

	s.LoadMetadata(second, 1)
	renderAll(t, &s, second, 0)
	a, ok = s.Snapshot().Artifact("b1")
	if !ok || a.Tag != second {
		t.Fatalf("got %v, %v, want the newly rendered %v", a, ok, second)
	}
}

func TestStateSnapshotDoesNotCopyPages(t *testing.T) {
	snapshotAllocs := func(totalPages int) float64 {
		var s State
		tag := selectAndSwap(t, &s, "b1")
		s.LoadMetadata(tag, totalPages)
		renderAll(t, &s, tag, 0)
		return testing.AllocsPerRun(100, func() {
			_ = s.Snapshot()
		})
	}
	if few, many := snapshotAllocs(1), snapshotAllocs(1000); few != many {
		t.Fatalf("got %v allocations for 1000 pages, want %v as for 1 page", many, few)
	}
}
