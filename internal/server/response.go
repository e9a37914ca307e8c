package server

import (
	"fmt"

	"github.com/k11v/brickview/internal/build"
	"github.com/k11v/brickview/internal/viewer"
)

const statusKindBuilding = string(build.StatusBuilding)

type healthResponse struct {
	Status string `json:"status"`
}

type widthRequest struct {
	Width *int `json:"width"`
}

type statusResponse struct {
	Kind           string `json:"kind" enums:"no_builds,building,error,success"`
	BuildID        string `json:"build_id,omitempty"`
	ElapsedSeconds int64  `json:"elapsed_seconds,omitempty"`
	Message        string `json:"message,omitempty"`
}

type artifactResponse struct {
	BuildID       string   `json:"build_id"`
	Phase         string   `json:"phase" enums:"pending,loaded,fully_rendered,failed"`
	TotalPages    int      `json:"total_pages"`
	RenderedPages int      `json:"rendered_pages"`
	Error         string   `json:"error,omitempty"`
	DownloadURL   string   `json:"download_url,omitempty"`
	PageURLs      []string `json:"page_urls,omitempty"`
}

type viewResponse struct {
	Loaded          bool              `json:"loaded"`
	Status          statusResponse    `json:"status"`
	LatestBuildID   string            `json:"latest_build_id,omitempty"`
	ShowingBuildID  string            `json:"showing_build_id,omitempty"`
	ShowingLatest   bool              `json:"showing_latest"`
	CollectionError string            `json:"collection_error,omitempty"`
	Previous        *artifactResponse `json:"previous"`
	Current         *artifactResponse `json:"current"`
	Visible         *artifactResponse `json:"visible"`
}

func newViewResponse(v *viewer.View) *viewResponse {
	return &viewResponse{
		Loaded: v.Loaded,
		Status: statusResponse{
			Kind:           string(v.Status.Kind),
			BuildID:        v.Status.BuildID,
			ElapsedSeconds: v.Status.ElapsedSeconds,
			Message:        v.Status.Message,
		},
		LatestBuildID:   v.LatestBuildID,
		ShowingBuildID:  v.ShowingBuildID,
		ShowingLatest:   v.ShowingLatest,
		CollectionError: v.CollectionError,
		Previous:        newArtifactResponse(v.Previous, false),
		Current:         newArtifactResponse(v.Current, false),
		Visible:         newArtifactResponse(v.Visible, true),
	}
}

// newArtifactResponse links pages and download only for the visible
// artifact, the only one the page shows.
func newArtifactResponse(a *viewer.ArtifactView, links bool) *artifactResponse {
	if a == nil {
		return nil
	}
	resp := &artifactResponse{
		BuildID:       a.BuildID,
		Phase:         a.Phase,
		TotalPages:    a.TotalPages,
		RenderedPages: a.RenderedPages,
		Error:         a.Error,
	}
	if links {
		resp.DownloadURL = fmt.Sprintf("/api/artifacts/%s/download", a.BuildID)
		resp.PageURLs = make([]string, a.TotalPages)
		for i := range a.TotalPages {
			resp.PageURLs[i] = fmt.Sprintf("/api/artifacts/%s/pages/%d", a.BuildID, i)
		}
	}
	return resp
}
