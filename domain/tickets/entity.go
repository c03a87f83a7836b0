package tickets

import (
	"time"

	"github.com/uptrace/bun"
)

// Ticket statuses
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
	StatusClosed   = "closed"
	StatusArchived = "archived"
	StatusDeleted  = "deleted"
)

// Ticket represents a row of the helpdesk ticket table
type Ticket struct {
	bun.BaseModel `bun:"table:ticket,alias:t"`

	ID           int64      `bun:"id,pk,autoincrement" json:"id"`
	Number       string     `bun:"number,notnull" json:"number"`
	Subject      string     `bun:"subject,notnull" json:"subject"`
	Status       string     `bun:"status,notnull,default:'open'" json:"status"`
	DepartmentID int64      `bun:"department_id,notnull" json:"departmentId"`
	UserID       int64      `bun:"user_id,notnull" json:"userId"`
	StaffID      *int64     `bun:"staff_id" json:"staffId,omitempty"`
	TopicID      *int64     `bun:"topic_id" json:"topicId,omitempty"`
	PriorityID   *int64     `bun:"priority_id" json:"priorityId,omitempty"`
	SLAID        *int64     `bun:"sla_id" json:"slaId,omitempty"`
	DueDate      *time.Time `bun:"duedate" json:"dueDate,omitempty"`
	ParentID     *int64     `bun:"parent_id" json:"parentId,omitempty"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// AssignedTo reports whether the ticket is assigned to staffID.
func (t *Ticket) AssignedTo(staffID int64) bool {
	return t.StaffID != nil && *t.StaffID == staffID
}

// ThreadEntry is a message on a ticket's thread
type ThreadEntry struct {
	bun.BaseModel `bun:"table:ticket_thread_entry,alias:te"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	TicketID  int64     `bun:"ticket_id,notnull" json:"ticketId"`
	StaffID   *int64    `bun:"staff_id" json:"staffId,omitempty"`
	Body      string    `bun:"body,notnull" json:"body"`
	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
}

// Child is the listing shape of a subticket. Department and assignee are
// loaded for access checks and never rendered.
type Child struct {
	ID           int64     `bun:"id" json:"id"`
	Number       string    `bun:"number" json:"number"`
	Subject      string    `bun:"subject" json:"subject"`
	Status       string    `bun:"status" json:"status"`
	CreatedAt    time.Time `bun:"created_at" json:"createdAt"`
	DepartmentID int64     `bun:"department_id" json:"-"`
	StaffID      *int64    `bun:"staff_id" json:"-"`
}

// ParentRecord is the one-hop parent of a ticket
type ParentRecord struct {
	ID           int64  `bun:"id" json:"id"`
	Number       string `bun:"number" json:"number"`
	Subject      string `bun:"subject" json:"subject"`
	Status       string `bun:"status" json:"status"`
	DepartmentID int64  `bun:"department_id" json:"-"`
	StaffID      *int64 `bun:"staff_id" json:"-"`
}

// NewChild holds the caller-supplied fields of a ticket created under a parent.
// Requester, topic, priority and SLA come from the parent.
type NewChild struct {
	Subject      string
	DepartmentID int64
	Message      string

	// Staff member opening the ticket
	StaffID int64
}
