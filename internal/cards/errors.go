package cards

type notFoundError struct{ id string }

func (e notFoundError) Error() string { return "card not found: " + e.id }

// IsNotFound reports whether err indicates the card id does not exist.
func IsNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}
