package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a business rule rejected the input.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates the actor may not perform the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates the operation clashes with the current state.
	ErrConflict = errors.New("conflict")
)

// UserSafeMessage returns the message that may be shown to portal users.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound):
		return err.Error()
	case errors.Is(err, ErrForbidden):
		return "You are not allowed to perform this action"
	default:
		return "Something went wrong, please try again"
	}
}

// IsDomainError reports whether err is one of the expected business outcomes
// rather than an infrastructure failure.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrForbidden) || errors.Is(err, ErrConflict)
}
