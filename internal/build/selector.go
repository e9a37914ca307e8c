package build

// Latest returns the build with the latest start time.
// Builds with equal start times are ordered by ID and the smallest ID wins,
// so the result doesn't depend on map iteration order.
// It returns false if c is empty.
func Latest(c Collection) (*Build, bool) {
	return latest(c, func(*Build) bool { return true })
}

// LatestSuccessful is like Latest but only considers succeeded builds.
func LatestSuccessful(c Collection) (*Build, bool) {
	return latest(c, (*Build).Succeeded)
}

func latest(c Collection, keep func(*Build) bool) (*Build, bool) {
	var found *Build
	for _, b := range c {
		if b == nil || !keep(b) {
			continue
		}
		if found == nil || newer(b, found) {
			found = b
		}
	}
	return found, found != nil
}

func newer(a, b *Build) bool {
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.After(b.StartTime)
	}
	return a.ID < b.ID
}
