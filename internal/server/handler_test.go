package server

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/k11v/brickview/internal/build"
	"github.com/k11v/brickview/internal/render"
	"github.com/k11v/brickview/internal/viewer"
)

type stubViewer struct {
	mu        sync.Mutex
	view      *viewer.View
	artifacts map[string]*render.Artifact
	changed   chan struct{}
	widths    []int
}

func newStubViewer(view *viewer.View) *stubViewer {
	return &stubViewer{
		view:      view,
		artifacts: make(map[string]*render.Artifact),
		changed:   make(chan struct{}, 1),
	}
}

func (v *stubViewer) View(time.Time) *viewer.View {
	v.mu.Lock()
	defer v.mu.Unlock()
	view := *v.view
	return &view
}

func (v *stubViewer) setView(view *viewer.View) {
	v.mu.Lock()
	v.view = view
	v.mu.Unlock()
	v.changed <- struct{}{}
}

func (v *stubViewer) Artifact(buildID string) (*render.Artifact, bool) {
	a, ok := v.artifacts[buildID]
	return a, ok
}

func (v *stubViewer) Subscribe() (<-chan struct{}, func()) {
	return v.changed, func() {}
}

func (v *stubViewer) SetWidth(width int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.widths = append(v.widths, width)
}

func newTestHandler(v Viewer) *handler {
	return newHandler(v, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func serve(h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, body))
	return rec
}

func TestHandlerGetHealth(t *testing.T) {
	rec := serve(newTestHandler(newStubViewer(&viewer.View{})), http.MethodGet, "/health", nil)
	if got, want := rec.Code, http.StatusOK; got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestHandlerGetPage(t *testing.T) {
	rec := serve(newTestHandler(newStubViewer(&viewer.View{})), http.MethodGet, "/", nil)
	if got, want := rec.Code, http.StatusOK; got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
	if got, want := rec.Header().Get("Content-Type"), "text/html; charset=utf-8"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if body := rec.Body.String(); !strings.Contains(body, "/api/events") {
		t.Fatalf("got %q, want it to contain /api/events", body)
	}

	rec = serve(newTestHandler(newStubViewer(&viewer.View{})), http.MethodGet, "/unknown", nil)
	if got, want := rec.Code, http.StatusNotFound; got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestHandlerGetStatus(t *testing.T) {
	v := newStubViewer(&viewer.View{
		Loaded:         true,
		Status:         build.Status{Kind: build.StatusBuilding, BuildID: "b2", ElapsedSeconds: 3},
		LatestBuildID:  "b2",
		ShowingBuildID: "b1",
		Visible:        &viewer.ArtifactView{BuildID: "b1", Phase: "fully_rendered", TotalPages: 2, RenderedPages: 2},
		Current:        &viewer.ArtifactView{BuildID: "b1", Phase: "fully_rendered", TotalPages: 2, RenderedPages: 2},
	})

	rec := serve(newTestHandler(v), http.MethodGet, "/api/status", nil)
	if got, want := rec.Code, http.StatusOK; got != want {
		t.Fatalf("got %d, want %d", got, want)
	}

	var resp viewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("didn't want %q", err)
	}
	if got, want := resp.Status.Kind, "building"; got != want {
		t.Fatalf("got %q status, want %q", got, want)
	}
	if got, want := resp.Status.ElapsedSeconds, int64(3); got != want {
		t.Fatalf("got %d elapsed seconds, want %d", got, want)
	}
	if resp.ShowingLatest {
		t.Fatal("got showing latest, want not")
	}
	if resp.Previous != nil {
		t.Fatalf("got %+v previous, want nil", resp.Previous)
	}
	if resp.Visible == nil {
		t.Fatal("got nil visible, want b1")
	}
	if got, want := resp.Visible.DownloadURL, "/api/artifacts/b1/download"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	wantPages := []string{"/api/artifacts/b1/pages/0", "/api/artifacts/b1/pages/1"}
	if got, want := strings.Join(resp.Visible.PageURLs, " "), strings.Join(wantPages, " "); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if resp.Current.PageURLs != nil {
		t.Fatalf("got %v current page urls, want none", resp.Current.PageURLs)
	}
}

func TestHandlerPutWidth(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid", `{"width":1024}`, http.StatusNoContent},
		{"missing width", `{}`, http.StatusUnprocessableEntity},
		{"zero width", `{"width":0}`, http.StatusUnprocessableEntity},
		{"negative width", `{"width":-5}`, http.StatusUnprocessableEntity},
		{"unknown field", `{"width":10,"height":10}`, http.StatusUnprocessableEntity},
		{"not json", `width=10`, http.StatusUnprocessableEntity},
		{"multiple values", `{"width":10}{"width":20}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newStubViewer(&viewer.View{})
			rec := serve(newTestHandler(v), http.MethodPut, "/api/width", strings.NewReader(tt.body))
			if got, want := rec.Code, tt.wantStatus; got != want {
				t.Fatalf("got %d, want %d", got, want)
			}
			if tt.wantStatus == http.StatusNoContent {
				if len(v.widths) != 1 || v.widths[0] != 1024 {
					t.Fatalf("got widths %v, want [1024]", v.widths)
				}
			} else if len(v.widths) != 0 {
				t.Fatalf("got widths %v, want none", v.widths)
			}
		})
	}
}

func TestHandlerGetArtifactPage(t *testing.T) {
	v := newStubViewer(&viewer.View{})
	var state render.State
	tag, _ := state.Select("b1")
	state.Swap(tag, []byte("%PDF-document"))
	state.LoadMetadata(tag, 2)
	state.RenderPage(tag, 0, []byte("%PDF-page-0"))
	v.artifacts["b1"] = state.Snapshot().Current
	h := newTestHandler(v)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantBody   string
	}{
		{"rendered page", "/api/artifacts/b1/pages/0", http.StatusOK, "%PDF-page-0"},
		{"page not rendered yet", "/api/artifacts/b1/pages/1", http.StatusNotFound, ""},
		{"page out of range", "/api/artifacts/b1/pages/2", http.StatusNotFound, ""},
		{"unknown artifact", "/api/artifacts/b9/pages/0", http.StatusNotFound, ""},
		{"invalid index", "/api/artifacts/b1/pages/first", http.StatusUnprocessableEntity, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, http.MethodGet, tt.target, nil)
			if got, want := rec.Code, tt.wantStatus; got != want {
				t.Fatalf("got %d, want %d", got, want)
			}
			if tt.wantBody == "" {
				return
			}
			if got, want := rec.Body.String(), tt.wantBody; got != want {
				t.Fatalf("got %q, want %q", got, want)
			}
			if got, want := rec.Header().Get("Content-Type"), "application/pdf"; got != want {
				t.Fatalf("got %q, want %q", got, want)
			}
		})
	}
}

func TestHandlerDownloadArtifact(t *testing.T) {
	v := newStubViewer(&viewer.View{})
	v.artifacts["b1"] = &render.Artifact{
		Tag:   render.Tag{BuildID: "b1", Seq: 1},
		Data:  []byte("%PDF-document"),
		Phase: render.PhaseFullyRendered,
	}
	h := newTestHandler(v)

	rec := serve(h, http.MethodGet, "/api/artifacts/b1/download", nil)
	if got, want := rec.Code, http.StatusOK; got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
	if got, want := rec.Body.String(), "%PDF-document"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got, want := rec.Header().Get("Content-Disposition"), `attachment; filename="build-b1.pdf"`; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	rec = serve(h, http.MethodGet, "/api/artifacts/b2/download", nil)
	if got, want := rec.Code, http.StatusNotFound; got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestHandlerGetEvents(t *testing.T) {
	v := newStubViewer(&viewer.View{Status: build.Status{Kind: build.StatusNoBuilds}})
	srv := httptest.NewServer(newTestHandler(v))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events")
	if err != nil {
		t.Fatalf("didn't want %q", err)
	}
	defer resp.Body.Close()

	if got, want := resp.Header.Get("Content-Type"), "text/event-stream"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	r := bufio.NewReader(resp.Body)
	readView := func() viewResponse {
		t.Helper()
		var data string
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				t.Fatalf("didn't want %q", err)
			}
			line = strings.TrimRight(line, "\n")
			if line == "" && data != "" {
				break
			}
			if d, ok := strings.CutPrefix(line, "data: "); ok {
				data = d
			}
		}
		var view viewResponse
		if err := json.Unmarshal([]byte(data), &view); err != nil {
			t.Fatalf("didn't want %q", err)
		}
		return view
	}

	if got, want := readView().Status.Kind, "no_builds"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	v.setView(&viewer.View{Loaded: true, Status: build.Status{Kind: build.StatusSuccess, BuildID: "b1"}})
	view := readView()
	if got, want := view.Status.Kind, "success"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got, want := view.Status.BuildID, "b1"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestHandlerGetEventsBuildingTicks(t *testing.T) {
	v := newStubViewer(&viewer.View{Status: build.Status{Kind: build.StatusBuilding, BuildID: "b1"}})
	h := newTestHandler(v)
	h.tick = 10 * time.Millisecond
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events")
	if err != nil {
		t.Fatalf("didn't want %q", err)
	}
	defer resp.Body.Close()

	// Without any change notification, a building status keeps arriving.
	r := bufio.NewReader(resp.Body)
	events := 0
	for events < 3 {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if line == "event: view\n" {
			events++
		}
	}
}
