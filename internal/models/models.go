package models

import "strings"

// AccessLevel ranks what a user is allowed to see and do. It serialises as
// the bare variant name to stay compatible with existing snapshots.
type AccessLevel string

const (
	AccessUser     AccessLevel = "User"
	AccessEmployee AccessLevel = "Employee"
	AccessAdmin    AccessLevel = "Admin"
)

// Valid reports whether the level is one of the known variants.
func (l AccessLevel) Valid() bool {
	switch l {
	case AccessUser, AccessEmployee, AccessAdmin:
		return true
	}
	return false
}

// CanModerate reports whether the level may act on reports it does not own.
func (l AccessLevel) CanModerate() bool {
	return l == AccessEmployee || l == AccessAdmin
}

// Priority classifies how urgent a report is.
type Priority string

const (
	PriorityMinor    Priority = "Minor"
	PriorityMajor    Priority = "Major"
	PriorityCritical Priority = "Critical"
)

// Valid reports whether the priority is one of the known variants.
func (p Priority) Valid() bool {
	switch p {
	case PriorityMinor, PriorityMajor, PriorityCritical:
		return true
	}
	return false
}

// ParsePriority maps a request-supplied string onto a Priority, ignoring case.
func ParsePriority(raw string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "minor":
		return PriorityMinor, true
	case "major":
		return PriorityMajor, true
	case "critical":
		return PriorityCritical, true
	}
	return "", false
}

// User is an account record. The password is stored in clear text to keep
// the login comparison and snapshot format compatible with existing
// deployments; see DESIGN.md before changing this.
type User struct {
	UUID        string      `json:"uuid"`
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	AccessLevel AccessLevel `json:"access_level"`
}

// PublicUser is the projection of a User that is safe to put on the wire.
type PublicUser struct {
	UUID        string      `json:"uuid"`
	Username    string      `json:"username"`
	AccessLevel AccessLevel `json:"access_level"`
}

// Public strips the credential fields from a User.
func (u User) Public() PublicUser {
	return PublicUser{
		UUID:        u.UUID,
		Username:    u.Username,
		AccessLevel: u.AccessLevel,
	}
}

// Message is a single entry in a report or thread discussion. Entries are
// append-only and kept in insertion order. CreateAt is Unix milliseconds.
type Message struct {
	AuthorUUID string `json:"author_uuid"`
	Content    string `json:"content"`
	CreateAt   int64  `json:"create_at"`
}

// Report is a support ticket raised by a user and optionally assigned to an
// employee.
type Report struct {
	UUID         string    `json:"uuid"`
	CreateAt     int64     `json:"create_at"`
	Subject      string    `json:"subject"`
	Priority     Priority  `json:"priority"`
	UserUUID     string    `json:"user_uuid"`
	EmployeeUUID string    `json:"employee_uuid"`
	Messages     []Message `json:"messages"`
	IsResolved   bool      `json:"is_resolved"`
}

// Thread is a discussion channel referencing a report by id. The reference is
// deliberately soft: a thread may outlive or predate the report it names.
type Thread struct {
	UUID       string    `json:"uuid"`
	ReportUUID string    `json:"report_uuid"`
	Messages   []Message `json:"messages"`
	IsResolved bool      `json:"is_resolved"`
}
