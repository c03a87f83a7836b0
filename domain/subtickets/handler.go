package subtickets

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/markus-michalski/osticket-subticket-manager/domain/gate"
	"github.com/markus-michalski/osticket-subticket-manager/domain/hierarchy"
	"github.com/markus-michalski/osticket-subticket-manager/domain/tickets"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/apperror"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/auth"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/logger"
)

// Creator opens new tickets on the host.
type Creator interface {
	CreateChild(ctx context.Context, parent *tickets.Ticket, in tickets.NewChild) (*tickets.Ticket, error)
}

// Handler handles HTTP requests for subtickets
type Handler struct {
	svc     *hierarchy.Service
	gate    *gate.Gate
	creator Creator
	log     *slog.Logger
}

// NewHandler creates a new subtickets handler
func NewHandler(svc *hierarchy.Service, g *gate.Gate, creator Creator, log *slog.Logger) *Handler {
	return &Handler{
		svc:     svc,
		gate:    g,
		creator: creator,
		log:     log.With(logger.Scope("subtickets.handler")),
	}
}

// CSRFToken handles GET /api/subtickets/csrf
// Issues the session's CSRF token, creating it on first use.
func (h *Handler) CSRFToken(c echo.Context) error {
	actor, err := auth.RequireStaff(c)
	if err != nil {
		return err
	}

	token, err := h.gate.CSRF().Token(c.Request().Context(), actor.SessionID)
	if err != nil {
		return apperror.ErrInternal.WithInternal(err)
	}

	return c.JSON(http.StatusOK, apperror.OK("CSRF token issued", CSRFData{CSRFToken: token}))
}

// GetChildren handles GET /api/subtickets/:ticketId/children
func (h *Handler) GetChildren(c echo.Context) error {
	ticketID, err := parseID(c, "ticketId")
	if err != nil {
		return err
	}

	grant, err := h.gate.Authorize(c, gate.Request{TicketID: ticketID})
	if err != nil {
		return err
	}

	all, err := h.svc.GetChildren(c.Request().Context(), ticketID)
	if err != nil {
		return toAppError(err)
	}

	children := gate.VisibleChildren(grant.Actor, all)
	data := ChildrenData{TicketID: ticketID, Children: children, Hidden: len(all) - len(children)}
	if len(children) == 0 {
		return c.JSON(http.StatusOK, apperror.OK("No subtickets found", data))
	}
	return c.JSON(http.StatusOK, apperror.OK(fmt.Sprintf("%d subticket(s) found", len(children)), data))
}

// GetParent handles GET /api/subtickets/:ticketId/parent
func (h *Handler) GetParent(c echo.Context) error {
	ticketID, err := parseID(c, "ticketId")
	if err != nil {
		return err
	}

	grant, err := h.gate.Authorize(c, gate.Request{TicketID: ticketID})
	if err != nil {
		return err
	}

	parent, err := h.svc.GetParent(c.Request().Context(), ticketID)
	if err != nil {
		return toAppError(err)
	}

	data := ParentData{TicketID: ticketID, Parent: parent}
	if parent != nil && !gate.CanSeeParent(grant.Actor, parent) {
		data.Parent = nil
		data.Hidden = true
		return c.JSON(http.StatusOK, apperror.OK("Parent ticket is outside your departments", data))
	}
	if parent == nil {
		return c.JSON(http.StatusOK, apperror.OK("Ticket has no parent", data))
	}
	return c.JSON(http.StatusOK, apperror.OK("Parent ticket found", data))
}

// Unlink handles POST /api/subtickets/:childId/unlink
func (h *Handler) Unlink(c echo.Context) error {
	childID, err := parseID(c, "childId")
	if err != nil {
		return err
	}

	var req CSRFRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	if _, err := h.gate.Authorize(c, gate.Request{
		Mutating:  true,
		CSRFToken: csrfToken(c, req.CSRFToken),
		TicketID:  childID,
	}); err != nil {
		return err
	}

	if err := h.svc.UnlinkTicket(c.Request().Context(), childID); err != nil {
		return toAppError(err)
	}

	return c.JSON(http.StatusOK, apperror.OK("Ticket unlinked from its parent", LinkData{ChildID: childID}))
}

// Link handles POST /api/subtickets/:childId/link
// The parent is named by its public number, or by parentId.
func (h *Handler) Link(c echo.Context) error {
	childID, err := parseID(c, "childId")
	if err != nil {
		return err
	}

	var req LinkRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	number := strings.TrimSpace(string(req.ParentNumber))
	switch {
	case req.ParentID != nil && number != "":
		return apperror.NewValidation("parentNumber", "Provide either a parent number or a parent ID, not both")
	case req.ParentID != nil && *req.ParentID <= 0:
		return apperror.NewValidation("parentId", "Invalid parent ticket ID")
	case req.ParentID == nil && number == "":
		return apperror.NewValidation("parentNumber", "Parent ticket number is required")
	}

	grant, err := h.gate.Authorize(c, gate.Request{
		Mutating:  true,
		CSRFToken: csrfToken(c, req.CSRFToken),
		TicketID:  childID,
	})
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	var parentID int64
	if req.ParentID != nil {
		parentID = *req.ParentID
	} else if parentID, err = h.svc.ResolveNumber(ctx, number); err != nil {
		return toAppError(err)
	}

	// the parent is checked like the child; a hidden parent reads as missing
	ok, err := h.gate.Reachable(ctx, grant.Actor, parentID)
	if err != nil {
		return toAppError(err)
	}
	if !ok {
		return toAppError(hierarchy.ErrParentNotFound)
	}

	if err := h.svc.LinkTicket(ctx, childID, parentID); err != nil {
		h.log.Info("link rejected",
			slog.Int64("child_id", childID),
			slog.Int64("staff_id", grant.Actor.StaffID),
			logger.Error(err),
		)
		return toAppError(err)
	}

	parent, err := h.svc.GetParent(ctx, childID)
	if err != nil {
		return toAppError(err)
	}
	data := LinkData{ChildID: childID}
	if parent != nil {
		data.ParentID = &parent.ID
	}

	return c.JSON(http.StatusOK, apperror.OK("Ticket linked to its parent", data))
}

// Create handles POST /api/subtickets/:parentId/subtickets
// Opens a ticket through the host and links it under the parent. When the
// ticket is created but the link fails the response says so, since the
// ticket exists either way.
func (h *Handler) Create(c echo.Context) error {
	parentID, err := parseID(c, "parentId")
	if err != nil {
		return err
	}

	var req CreateRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	subject := strings.TrimSpace(req.Subject)
	message := strings.TrimSpace(req.Message)
	switch {
	case subject == "":
		return apperror.NewValidation("subject", "Subject is required")
	case utf8.RuneCountInString(subject) > MaxSubjectLength:
		return apperror.NewValidation("subject", fmt.Sprintf("Subject must be at most %d characters", MaxSubjectLength))
	case req.DepartmentID <= 0:
		return apperror.NewValidation("departmentId", "Invalid department ID")
	case message == "":
		return apperror.NewValidation("message", "Message is required")
	}

	grant, err := h.gate.Authorize(c, gate.Request{
		Mutating:  true,
		CSRFToken: csrfToken(c, req.CSRFToken),
		TicketID:  parentID,
	})
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	child, err := h.creator.CreateChild(ctx, grant.Ticket, tickets.NewChild{
		Subject:      subject,
		DepartmentID: req.DepartmentID,
		Message:      message,
		StaffID:      grant.Actor.StaffID,
	})
	if err != nil {
		return toAppError(err)
	}

	data := CreatedData{ID: child.ID, Number: child.Number, ParentID: parentID}
	if err := h.svc.LinkTicket(ctx, child.ID, parentID); err != nil {
		h.log.Warn("subticket created but not linked",
			slog.Int64("ticket_id", child.ID),
			slog.Int64("parent_id", parentID),
			logger.Error(err),
		)
		return apperror.ErrCreatedNotLinked.
			WithMessage(fmt.Sprintf("Ticket #%s was created but could not be linked to its parent", child.Number)).
			WithDetails(map[string]any{"id": child.ID, "number": child.Number, "parentId": parentID}).
			WithInternal(err)
	}

	return c.JSON(http.StatusOK, apperror.OK(fmt.Sprintf("Subticket #%s created", child.Number), data))
}

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.NewValidation(name, "Invalid ticket ID")
	}
	return id, nil
}

// bindBody decodes the JSON body, if any.
func bindBody(c echo.Context, dst any) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return apperror.NewBadRequest("Invalid request body").WithInternal(err)
	}
	return nil
}

// csrfToken prefers the header over the body field.
func csrfToken(c echo.Context, fromBody string) string {
	if v := c.Request().Header.Get(gate.CSRFHeader); v != "" {
		return v
	}
	return fromBody
}
