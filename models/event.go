package models

type ChangeOperation string

const (
	ChangeInsert ChangeOperation = "INSERT"
	ChangeUpdate ChangeOperation = "UPDATE"
	ChangeDelete ChangeOperation = "DELETE"
)

// ChangeEvent signals that matches of a tournament changed.
type ChangeEvent struct {
	TournamentID int             `json:"tournament_id"`
	MatchID      int             `json:"match_id,omitempty"`
	Operation    ChangeOperation `json:"operation"`
}
