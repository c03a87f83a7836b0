package subtickets

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/markus-michalski/osticket-subticket-manager/domain/tickets"
)

// MaxSubjectLength is the longest subject accepted for a new subticket.
const MaxSubjectLength = 50

// TicketRef is a ticket number sent either as a JSON string or a number.
type TicketRef string

// UnmarshalJSON accepts "100001" and 100001 alike.
func (r *TicketRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = TicketRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("ticket number must be a string or integer: %w", err)
	}
	if _, err := n.Int64(); err != nil {
		return fmt.Errorf("ticket number must be an integer: %w", err)
	}
	*r = TicketRef(n.String())
	return nil
}

// CSRFRequest carries the token for calls without other fields.
type CSRFRequest struct {
	CSRFToken string `json:"csrfToken"`
}

// LinkRequest is the body of POST /api/subtickets/:childId/link.
// Exactly one of ParentNumber and ParentID names the parent.
type LinkRequest struct {
	ParentNumber TicketRef `json:"parentNumber"`
	ParentID     *int64    `json:"parentId"`
	CSRFToken    string    `json:"csrfToken"`
}

// CreateRequest is the body of POST /api/subtickets/:parentId/subtickets.
type CreateRequest struct {
	Subject      string `json:"subject"`
	DepartmentID int64  `json:"departmentId"`
	Message      string `json:"message"`
	CSRFToken    string `json:"csrfToken"`
}

// CSRFData is returned by GET /api/subtickets/csrf.
type CSRFData struct {
	CSRFToken string `json:"csrfToken"`
}

// ChildrenData lists the subtickets of a ticket the caller may see.
// Hidden counts the children left out.
type ChildrenData struct {
	TicketID int64           `json:"ticketId"`
	Children []tickets.Child `json:"children"`
	Hidden   int             `json:"hidden,omitempty"`
}

// ParentData names the parent of a ticket; Parent is null for roots and
// for parents the caller may not see, which also set Hidden.
type ParentData struct {
	TicketID int64                 `json:"ticketId"`
	Parent   *tickets.ParentRecord `json:"parent"`
	Hidden   bool                  `json:"hidden,omitempty"`
}

// LinkData is returned after a successful link or unlink.
type LinkData struct {
	ChildID  int64  `json:"childId"`
	ParentID *int64 `json:"parentId"`
}

// CreatedData describes a ticket created under a parent.
type CreatedData struct {
	ID       int64  `json:"id"`
	Number   string `json:"number"`
	ParentID int64  `json:"parentId"`
}
