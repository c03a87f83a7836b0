package gate

import (
	"github.com/markus-michalski/osticket-subticket-manager/domain/tickets"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/auth"
)

// CanAccess reports whether actor may see or change t. Admins see every
// ticket; staff see tickets of their departments and tickets assigned to them.
func CanAccess(actor *auth.Actor, t *tickets.Ticket) bool {
	if t == nil {
		return false
	}
	return owns(actor, t.DepartmentID, t.StaffID)
}

// CanSeeParent applies CanAccess to a parent record.
func CanSeeParent(actor *auth.Actor, p *tickets.ParentRecord) bool {
	if p == nil {
		return false
	}
	return owns(actor, p.DepartmentID, p.StaffID)
}

// VisibleChildren drops the children actor may not see, keeping order.
func VisibleChildren(actor *auth.Actor, children []tickets.Child) []tickets.Child {
	out := make([]tickets.Child, 0, len(children))
	for _, ch := range children {
		if owns(actor, ch.DepartmentID, ch.StaffID) {
			out = append(out, ch)
		}
	}
	return out
}

func owns(actor *auth.Actor, departmentID int64, assignee *int64) bool {
	if actor == nil || !actor.IsStaff() {
		return false
	}
	if actor.IsAdmin() {
		return true
	}
	return actor.InDepartment(departmentID) || (assignee != nil && *assignee == actor.StaffID)
}
