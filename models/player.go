package models

// PlayerProfile is presentation-only enrichment. The progression engine never reads it.
type PlayerProfile struct {
	ID          int    `json:"id" db:"id"`
	DisplayName string `json:"display_name" db:"display_name"`
	Elo         *int   `json:"elo,omitempty" db:"elo"`
}
