package viewer

import (
	"github.com/k11v/brickview/internal/build"
	"github.com/k11v/brickview/internal/render"
)

// View is the presentation state of the viewer at one moment.
type View struct {
	Loaded          bool // false until the first collection arrives
	Status          build.Status
	LatestBuildID   string
	ShowingBuildID  string // build of the visible artifact
	ShowingLatest   bool
	CollectionError string

	Previous *ArtifactView
	Current  *ArtifactView
	Visible  *ArtifactView
}

type ArtifactView struct {
	BuildID       string
	Phase         string
	TotalPages    int
	RenderedPages int
	Error         string
}

func newArtifactView(a *render.Artifact) *ArtifactView {
	if a == nil {
		return nil
	}
	av := &ArtifactView{
		BuildID:       a.Tag.BuildID,
		Phase:         a.Phase.String(),
		TotalPages:    a.TotalPages,
		RenderedPages: a.RenderedPages,
	}
	if a.Err != nil {
		av.Error = a.Err.Error()
	}
	return av
}
