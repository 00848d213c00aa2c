package gateway

// engineUnavailableError signals a missing runtime dependency (e.g. the CGO
// engine was not compiled in) so callers can report 503-style failures
// instead of generic errors.
type engineUnavailableError struct{ msg string }

func (e engineUnavailableError) Error() string { return e.msg }

// ErrEngineUnavailable constructs an engineUnavailableError.
func ErrEngineUnavailable(msg string) error { return engineUnavailableError{msg: msg} }

// IsEngineUnavailable reports whether err indicates a missing/failed engine.
func IsEngineUnavailable(err error) bool {
	_, ok := err.(engineUnavailableError)
	return ok
}

// notLoadedError signals a submission without a loaded model.
type notLoadedError struct{}

func (notLoadedError) Error() string { return "no model loaded" }

// IsNotLoaded reports whether err indicates a missing loaded model.
func IsNotLoaded(err error) bool {
	_, ok := err.(notLoadedError)
	return ok
}
