package session

import "errors"

// All of these are fail-silent on the wire. The gateway only logs and counts
// them.
var (
	ErrUnknownSession = errors.New("unknown session")
	ErrUnknownUser    = errors.New("unknown user")
	ErrUnauthorized   = errors.New("sender is not the controller")
	ErrNoController   = errors.New("session has no controller")
	ErrIsController   = errors.New("sender already holds control")
)

// Reason returns a short label for metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownSession):
		return "unknown_session"
	case errors.Is(err, ErrUnknownUser):
		return "unknown_user"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNoController):
		return "no_controller"
	case errors.Is(err, ErrIsController):
		return "is_controller"
	}
	return "other"
}
