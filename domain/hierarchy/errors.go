package hierarchy

import "errors"

// Rejections of a link or unlink request. Store faults are returned
// unchanged and are never one of these.
var (
	ErrInvalidTicketID      = errors.New("invalid ticket id")
	ErrSelfLink             = errors.New("a ticket cannot be its own parent")
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrParentNotFound       = errors.New("parent ticket not found")
	ErrParentNumberNotFound = errors.New("no ticket with that number")
	ErrCircularDependency   = errors.New("circular dependency detected")
	ErrMaxDepthExceeded     = errors.New("maximum hierarchy depth exceeded")
	ErrMaxChildrenExceeded  = errors.New("maximum number of subtickets reached")
)

// IsRejection reports whether err is a domain rejection rather than a fault.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrInvalidTicketID,
		ErrSelfLink,
		ErrTicketNotFound,
		ErrParentNotFound,
		ErrParentNumberNotFound,
		ErrCircularDependency,
		ErrMaxDepthExceeded,
		ErrMaxChildrenExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
