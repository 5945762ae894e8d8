package models

import "time"

type MatchStatus string

const (
	MatchStatusScheduled  MatchStatus = "scheduled"
	MatchStatusInProgress MatchStatus = "in_progress"
	MatchStatusCompleted  MatchStatus = "completed"
)

// Branch is the part of a bracket a match belongs to. Single elimination only uses BranchWinner.
type Branch string

const (
	BranchWinner Branch = "winner"
	BranchLoser  Branch = "loser"
	BranchFinal  Branch = "final"
)

// Slot identifies player1 (1) or player2 (2) of a match.
type Slot int

const (
	SlotPlayer1 Slot = 1
	SlotPlayer2 Slot = 2
)

type Match struct {
	ID           int         `json:"id" db:"id"`
	TournamentID int         `json:"tournament_id" db:"tournament_id"`
	RoundNumber  int         `json:"round_number" db:"round_number"`
	MatchNumber  int         `json:"match_number" db:"match_number"`
	Branch       Branch      `json:"bracket_type" db:"bracket_type"`
	Player1ID    *int        `json:"player1_id" db:"player1_id"`
	Player2ID    *int        `json:"player2_id" db:"player2_id"`
	Status       MatchStatus `json:"status" db:"status"`
	ScorePlayer1 *int        `json:"score_player1" db:"score_player1"`
	ScorePlayer2 *int        `json:"score_player2" db:"score_player2"`
	WinnerID     *int        `json:"winner_id" db:"winner_id"`
	SubmittedBy  *int        `json:"submitted_by,omitempty" db:"submitted_by"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// IsFillable reports whether both player slots are occupied.
func (m *Match) IsFillable() bool {
	return m.Player1ID != nil && m.Player2ID != nil
}

// HasWinner reports whether the match is completed with a recorded winner.
func (m *Match) HasWinner() bool {
	return m.Status == MatchStatusCompleted && m.WinnerID != nil
}

// HasEmptySlot reports whether at least one player slot is still unfilled.
func (m *Match) HasEmptySlot() bool {
	return m.Player1ID == nil || m.Player2ID == nil
}

// PlayerInSlot returns the player occupying the slot, or nil.
func (m *Match) PlayerInSlot(slot Slot) *int {
	if slot == SlotPlayer1 {
		return m.Player1ID
	}
	return m.Player2ID
}

// LoserID returns the player of a completed match who is not the winner.
func (m *Match) LoserID() *int {
	if !m.HasWinner() || !m.IsFillable() {
		return nil
	}
	if *m.WinnerID == *m.Player1ID {
		return m.Player2ID
	}
	return m.Player1ID
}

// WinnerSlot returns the slot the winner played from, or 0 if there is no winner.
func (m *Match) WinnerSlot() Slot {
	if !m.HasWinner() {
		return 0
	}
	if m.Player1ID != nil && *m.Player1ID == *m.WinnerID {
		return SlotPlayer1
	}
	if m.Player2ID != nil && *m.Player2ID == *m.WinnerID {
		return SlotPlayer2
	}
	return 0
}

// EffectiveBranch treats an unset branch as the winner branch.
func (m *Match) EffectiveBranch() Branch {
	if m.Branch == "" {
		return BranchWinner
	}
	return m.Branch
}
