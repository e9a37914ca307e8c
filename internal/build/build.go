package build

import (
	"maps"
	"time"
)

// Build is one run of the external build process as observed by the viewer.
// It is never mutated after it has been observed.
type Build struct {
	ID        string
	StartTime time.Time
	Result    *Result // nil while the build is running
}

// Result is the outcome of a finished build.
// ArtifactRef is set if OK is true, Error is set otherwise.
type Result struct {
	OK          bool
	ArtifactRef string
	Error       string
	FinishTime  time.Time
	Stdout      string
	Stderr      string
}

func (b *Build) Running() bool {
	return b.Result == nil
}

func (b *Build) Succeeded() bool {
	return b.Result != nil && b.Result.OK
}

func (b *Build) Failed() bool {
	return b.Result != nil && !b.Result.OK
}

// Collection maps build IDs to builds.
// It has no order, recency is determined by Build.StartTime only.
type Collection map[string]*Build

// Clone returns a shallow copy of c. Builds are shared.
func (c Collection) Clone() Collection {
	if c == nil {
		return make(Collection)
	}
	return maps.Clone(c)
}
