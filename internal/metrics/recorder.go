package metrics

import "time"

// ArtifactOutcome labels how an artifact generation ended.
type ArtifactOutcome string

const (
	ArtifactReady  ArtifactOutcome = "ready"
	ArtifactFailed ArtifactOutcome = "failed"
)

// Recorder defines observability hooks for the viewer.
// Implementations must be safe for concurrent use.
type Recorder interface {
	IncCollectionUpdate()
	IncCollectionError()
	IncSelection()
	IncStaleEvent(event string)
	IncArtifactOutcome(outcome ArtifactOutcome)
	ObserveFetchDuration(d time.Duration)
	ObserveReadyDuration(d time.Duration)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) IncCollectionUpdate() {}
func (NoopRecorder) IncCollectionError() {}
func (NoopRecorder) IncSelection() {}
func (NoopRecorder) IncStaleEvent(string) {}
func (NoopRecorder) IncArtifactOutcome(ArtifactOutcome) {}
func (NoopRecorder) ObserveFetchDuration(time.Duration) {}
func (NoopRecorder) ObserveReadyDuration(time.Duration) {}
