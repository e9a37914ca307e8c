package build

import "time"

// StatusKind is the user-facing state of the latest build.
type StatusKind string

const (
	StatusNoBuilds StatusKind = "no_builds"
	StatusBuilding StatusKind = "building"
	StatusError    StatusKind = "error"
	StatusSuccess  StatusKind = "success"
)

// Status is derived from the latest build on every request.
// It is presentation state, nothing is stored.
type Status struct {
	Kind           StatusKind
	BuildID        string
	ElapsedSeconds int64  // set for StatusBuilding
	Message        string // set for StatusError
}

// StatusOf maps the latest build to a Status.
// latest may be nil when there are no builds.
func StatusOf(latest *Build, now time.Time) Status {
	switch {
	case latest == nil:
		return Status{Kind: StatusNoBuilds}
	case latest.Running():
		// Whole seconds on both ends, so the counter ticks once per wall-clock second.
		elapsed := max(now.Unix()-latest.StartTime.Unix(), 0)
		return Status{Kind: StatusBuilding, BuildID: latest.ID, ElapsedSeconds: elapsed}
	case latest.Failed():
		return Status{Kind: StatusError, BuildID: latest.ID, Message: latest.Result.Error}
	default:
		return Status{Kind: StatusSuccess, BuildID: latest.ID}
	}
}
