package app

type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound builds the error returned for unknown catalog ids.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// ErrCaptureBusy builds the error returned when the capture guard refuses a
// request.
func ErrCaptureBusy() error { return captureBusyError{} }

// IsModelNotFound reports whether err names a model id absent from the
// catalog.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}

type captureBusyError struct{}

func (captureBusyError) Error() string {
	return "capture rejected: a cycle is already in progress or the camera is not ready"
}

// IsCaptureBusy reports whether err means a capture request was refused by
// the state machine guard.
func IsCaptureBusy(err error) bool {
	_, ok := err.(captureBusyError)
	return ok
}
