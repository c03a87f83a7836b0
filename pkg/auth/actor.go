package auth

import (
	"slices"

	"github.com/labstack/echo/v4"
)

// Roles carried in the "role" claim.
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
	RoleUser  = "user"
)

// Actor is the caller identified from a verified token.
type Actor struct {
	// Staff id from the "sub" claim
	StaffID int64 `json:"staffId"`

	// Host session the token was minted for
	SessionID string `json:"sessionId"`

	Role string `json:"role"`

	// Departments the staff member may access
	Departments []int64 `json:"departments,omitempty"`
}

// IsStaff reports whether the actor is an agent rather than an end customer.
func (a *Actor) IsStaff() bool {
	return a != nil && (a.Role == RoleStaff || a.Role == RoleAdmin)
}

// IsAdmin reports whether the actor bypasses department checks.
func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// InDepartment reports whether deptID is one of the actor's departments.
func (a *Actor) InDepartment(deptID int64) bool {
	return a != nil && slices.Contains(a.Departments, deptID)
}

type contextKey string

const (
	ActorContextKey     contextKey = "auth_actor"
	AuthErrorContextKey contextKey = "auth_error"
)

// GetActor retrieves the identified actor from the Echo context
func GetActor(c echo.Context) *Actor {
	if actor, ok := c.Get(string(ActorContextKey)).(*Actor); ok {
		return actor
	}
	return nil
}

// SessionID returns the identified actor's session id, or "" when anonymous.
func SessionID(c echo.Context) string {
	if actor := GetActor(c); actor != nil {
		return actor.SessionID
	}
	return ""
}
