package models

type UserRole string

const (
	RoleAdmin     UserRole = "admin"
	RoleOrganizer UserRole = "organizer"
	RolePlayer    UserRole = "player"
)

// Actor is the caller on whose behalf an operation runs.
type Actor struct {
	UserID int      `json:"user_id"`
	Role   UserRole `json:"role"`
}

// SystemActor is used by background components (change watcher, sweeper).
var SystemActor = Actor{UserID: 0, Role: RoleAdmin}
