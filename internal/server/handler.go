package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/k11v/brickview/docs"
	"github.com/k11v/brickview/internal/metrics"
)

//go:embed data/*.html.tmpl
var dataFS embed.FS

const (
	pathValueID    = "id"
	pathValueIndex = "index"
)

type handler struct {
	mux    *http.ServeMux
	viewer Viewer
	log    *slog.Logger
	tmpl   *template.Template
	now    func() time.Time
	tick   time.Duration // how often a building status is refreshed on the event stream
}

func newHandler(v Viewer, reg prometheus.Gatherer, log *slog.Logger) *handler {
	mux := http.NewServeMux()
	h := &handler{
		mux:    mux,
		viewer: v,
		log:    log,
		tmpl:   template.Must(template.New("").ParseFS(dataFS, "data/*.html.tmpl")),
		now:    time.Now,
		tick:   time.Second,
	}

	mux.Handle("GET /swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	if reg != nil {
		mux.Handle("GET /metrics", metrics.HTTPHandler(reg))
	}

	mux.HandleFunc("GET /health", h.GetHealth)
	mux.HandleFunc("GET /{$}", h.GetPage)

	mux.HandleFunc("GET /api/status", h.GetStatus)
	mux.HandleFunc("GET /api/events", h.GetEvents)
	mux.HandleFunc("PUT /api/width", h.PutWidth)
	mux.HandleFunc("GET /api/artifacts/{id}/pages/{index}", h.GetArtifactPage)
	mux.HandleFunc("GET /api/artifacts/{id}/download", h.DownloadArtifact)

	return h
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// GetHealth godoc
//
//	@Summary	Report that the server is up
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	healthResponse
//	@Router		/health [get]
func (h *handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *handler) GetPage(w http.ResponseWriter, r *http.Request) {
	buf := new(bytes.Buffer)
	if err := h.tmpl.ExecuteTemplate(buf, "index.html.tmpl", nil); err != nil {
		h.log.Error("didn't execute template", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// GetStatus godoc
//
//	@Summary	Get what the viewer shows
//	@Tags		viewer
//	@Produce	json
//	@Success	200	{object}	viewResponse
//	@Router		/api/status [get]
func (h *handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, newViewResponse(h.viewer.View(h.now())))
}

// GetEvents godoc
//
//	@Summary		Follow what the viewer shows
//	@Description	Server-sent events. Every "view" event carries a viewResponse.
//	@Description	While the latest build is running, an event is sent every second.
//	@Tags			viewer
//	@Produce		text/event-stream
//	@Success		200
//	@Router			/api/events [get]
func (h *handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	changed, unsubscribe := h.viewer.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	building, err := h.sendView(w, flusher)
	for err == nil {
		select {
		case <-changed:
			building, err = h.sendView(w, flusher)
		case <-ticker.C:
			if building {
				building, err = h.sendView(w, flusher)
			}
		case <-r.Context().Done():
			return
		}
	}
	h.log.Debug("stopped event stream", "err", err)
}

// sendView writes one view event and reports whether a build is running.
func (h *handler) sendView(w http.ResponseWriter, flusher http.Flusher) (building bool, err error) {
	resp := newViewResponse(h.viewer.View(h.now()))
	data, err := json.Marshal(resp)
	if err != nil {
		return false, err
	}
	if _, err = fmt.Fprintf(w, "event: view\ndata: %s\n\n", data); err != nil {
		return false, err
	}
	flusher.Flush()
	return resp.Status.Kind == statusKindBuilding, nil
}

// PutWidth godoc
//
//	@Summary	Set the display width for pages rendered from now on
//	@Tags		viewer
//	@Accept		json
//	@Param		request	body	widthRequest	true	"Display width"
//	@Success	204
//	@Failure	422	{string}	string
//	@Router		/api/width [put]
func (h *handler) PutWidth(w http.ResponseWriter, r *http.Request) {
	var req widthRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, fmt.Errorf("invalid request body: %w", err).Error(), http.StatusUnprocessableEntity)
		return
	}
	if dec.More() {
		http.Error(w, "invalid request body: multiple top-level values", http.StatusUnprocessableEntity)
		return
	}
	if req.Width == nil {
		http.Error(w, "invalid request body: missing width", http.StatusUnprocessableEntity)
		return
	}
	if *req.Width <= 0 {
		http.Error(w, "invalid request body: width isn't positive", http.StatusUnprocessableEntity)
		return
	}

	h.viewer.SetWidth(*req.Width)
	w.WriteHeader(http.StatusNoContent)
}

// GetArtifactPage godoc
//
//	@Summary	Get a rendered page of a buffered artifact
//	@Tags		artifacts
//	@Produce	application/pdf
//	@Param		id		path	string	true	"Build ID"
//	@Param		index	path	int		true	"Page index, counted from zero"
//	@Success	200
//	@Failure	404	{string}	string
//	@Failure	422	{string}	string
//	@Router		/api/artifacts/{id}/pages/{index} [get]
func (h *handler) GetArtifactPage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue(pathValueIndex))
	if err != nil {
		http.Error(w, fmt.Errorf("invalid %q request path value: %w", pathValueIndex, err).Error(), http.StatusUnprocessableEntity)
		return
	}

	a, ok := h.viewer.Artifact(r.PathValue(pathValueID))
	if !ok {
		http.Error(w, "artifact not found", http.StatusNotFound)
		return
	}
	page, ok := a.Page(index)
	if !ok {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(page)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

// DownloadArtifact godoc
//
//	@Summary	Download a buffered artifact
//	@Tags		artifacts
//	@Produce	application/pdf
//	@Param		id	path	string	true	"Build ID"
//	@Success	200
//	@Failure	404	{string}	string
//	@Router		/api/artifacts/{id}/download [get]
func (h *handler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue(pathValueID)
	a, ok := h.viewer.Artifact(id)
	if !ok || a.Data == nil {
		http.Error(w, "artifact not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "build-"+id+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Data)
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("didn't encode response", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}
