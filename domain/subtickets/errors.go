package subtickets

import (
	"errors"

	"github.com/markus-michalski/osticket-subticket-manager/domain/hierarchy"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/apperror"
)

// toAppError maps hierarchy rejections onto the API error categories.
// Errors that already carry a category pass through; anything else is a
// store fault.
func toAppError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hierarchy.ErrInvalidTicketID):
		return apperror.NewValidation("ticketId", "Invalid ticket ID")
	case errors.Is(err, hierarchy.ErrSelfLink):
		return apperror.ErrIntegrity.WithMessage("A ticket cannot be its own parent")
	case errors.Is(err, hierarchy.ErrCircularDependency):
		return apperror.ErrIntegrity.WithMessage("Circular dependency detected: the parent is a subticket of this ticket")
	case errors.Is(err, hierarchy.ErrMaxDepthExceeded):
		return apperror.ErrIntegrity.WithMessage("Maximum hierarchy depth reached")
	case errors.Is(err, hierarchy.ErrMaxChildrenExceeded):
		return apperror.ErrIntegrity.WithMessage("Parent ticket already has the maximum number of subtickets")
	case errors.Is(err, hierarchy.ErrTicketNotFound):
		return apperror.ErrNotFound.WithMessage("Ticket not found")
	case errors.Is(err, hierarchy.ErrParentNotFound), errors.Is(err, hierarchy.ErrParentNumberNotFound):
		return apperror.ErrNotFound.WithMessage("Parent ticket not found")
	}

	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperror.ErrDatabase.WithMessage("Operation failed").WithInternal(err)
}
