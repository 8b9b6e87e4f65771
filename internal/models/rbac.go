package models

import "github.com/gofrs/uuid"

// Role is the relation of an actor to a resource. Admin and Member are
// resolved once per request from the user record; Owner, Author and Self are
// resolved against the target by the permission evaluator.
type Role string

const (
	RoleNone   Role = "none"
	RoleMember Role = "member"
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleAuthor Role = "author"
	RoleSelf   Role = "self"
)

type Resource string

const (
	ResourceProject     Resource = "project"
	ResourceTask        Resource = "task"
	ResourceComment     Resource = "comment"
	ResourceActivityLog Resource = "activity_log"
	ResourceUser        Resource = "user"
)

type Action string

const (
	ActionList          Action = "list"
	ActionCreate        Action = "create"
	ActionRead          Action = "read"
	ActionUpdate        Action = "update"
	ActionDelete        Action = "delete"
	ActionManageMembers Action = "manage_members"
)

// Actor is the authenticated identity making a request.
type Actor struct {
	ID       uuid.UUID
	Username string
	Role     Role
}

func NewActor(u *User) Actor {
	role := RoleMember
	if u.IsAdmin() {
		role = RoleAdmin
	}
	return Actor{ID: u.ID, Username: u.Username, Role: role}
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// All lists every persisted model, in dependency order, for migrations.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Token{},
		&Project{},
		&Task{},
		&Comment{},
		&ActivityLog{},
	}
}
