package download

// downloadActiveError signals that a second download was requested while one
// is in flight. Concurrent starts are a caller error; the manager fails
// loudly instead of silently replacing the shared cancellation token.
type downloadActiveError struct {
	active    string
	requested string
}

func (e downloadActiveError) Error() string {
	return "download already active: " + e.active + " (requested " + e.requested + ")"
}

// IsDownloadActive reports whether err indicates a conflicting download.
func IsDownloadActive(err error) bool {
	_, ok := err.(downloadActiveError)
	return ok
}
