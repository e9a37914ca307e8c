package server

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/k11v/brickview/internal/render"
	"github.com/k11v/brickview/internal/viewer"
)

// Viewer is what the server shows.
type Viewer interface {
	View(now time.Time) *viewer.View
	Artifact(buildID string) (*render.Artifact, bool)
	Subscribe() (changed <-chan struct{}, unsubscribe func())
	SetWidth(width int)
}

// New returns a new HTTP server.
// It should be started with http.Server's ListenAndServe.
// Metrics are served from reg if it isn't nil.
func New(cfg *Config, log *slog.Logger, v Viewer, reg prometheus.Gatherer) *http.Server {
	addr := net.JoinHostPort(cfg.host(), strconv.Itoa(cfg.port()))

	subLogger := log.With("component", "server")
	subLogLogger := slog.NewLogLogger(subLogger.Handler(), slog.LevelError)

	h := newHandler(v, reg, subLogger)

	return &http.Server{
		Addr:              addr,
		ErrorLog:          subLogLogger,
		Handler:           h,
		ReadHeaderTimeout: cfg.readHeaderTimeout(),
	}
}
