package models

import "time"

// TournamentStatus mirrors the tournament_status ENUM in the database.
type TournamentStatus string

const (
	StatusRegistrationOpen   TournamentStatus = "registration_open"
	StatusRegistrationClosed TournamentStatus = "registration_closed"
	StatusOngoing            TournamentStatus = "ongoing"
	StatusCompleted          TournamentStatus = "completed"
	StatusCancelled          TournamentStatus = "cancelled"
)

// IsActive reports whether matches of the tournament may be mutated.
func (s TournamentStatus) IsActive() bool {
	return s == StatusRegistrationClosed || s == StatusOngoing
}

// IsTerminal reports whether the bracket is frozen.
func (s TournamentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type TournamentType string

const (
	TypeSingleElimination TournamentType = "single_elimination"
	TypeDoubleElimination TournamentType = "double_elimination"
	TypeRoundRobin        TournamentType = "round_robin"
	TypeSwiss             TournamentType = "swiss"
)

// IsElimination reports whether the type has a bracket that the progression engine manages.
func (t TournamentType) IsElimination() bool {
	return t == TypeSingleElimination || t == TypeDoubleElimination
}

type Tournament struct {
	ID              int              `json:"id" db:"id"`
	Name            string           `json:"name" db:"name"`
	Type            TournamentType   `json:"tournament_type" db:"tournament_type"`
	Status          TournamentStatus `json:"status" db:"status"`
	MaxParticipants int              `json:"max_participants" db:"max_participants"`
	OrganizerID     int              `json:"organizer_id" db:"organizer_id"`
	WinnerID        *int             `json:"winner_id,omitempty" db:"winner_id"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}
