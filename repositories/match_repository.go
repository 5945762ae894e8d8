package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/bracket-progression/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound          = errors.New("match not found")
	ErrMatchNotReady          = errors.New("match does not have both players assigned")
	ErrMatchStatusConflict    = errors.New("match status changed concurrently")
	ErrMatchTournamentInvalid = errors.New("match tournament conflict or invalid")
	ErrMatchPositionConflict  = errors.New("match position already exists in this bracket")
	ErrEqualScores            = errors.New("elimination matches cannot end in a draw")
	ErrMatchAlreadyCompleted  = errors.New("match already has a different result")
)

// ScoreUpdate is the outcome of an atomic score write.
type ScoreUpdate struct {
	Match *models.Match
	// Changed is false when the identical result was already stored.
	Changed bool
}

type FillOutcome int

const (
	SlotFilled FillOutcome = iota + 1
	SlotAlreadyFilled
	SlotConflict
)

func (o FillOutcome) String() string {
	switch o {
	case SlotFilled:
		return "filled"
	case SlotAlreadyFilled:
		return "already_filled"
	case SlotConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

type FillResult struct {
	Outcome FillOutcome
	// ExistingPlayerID is set for SlotConflict.
	ExistingPlayerID *int
}

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]models.Match, error)
	UpdateScore(ctx context.Context, matchID int, scorePlayer1, scorePlayer2 int, submittedBy *int) (*ScoreUpdate, error)
	FillSlot(ctx context.Context, matchID int, slot models.Slot, playerID int) (FillResult, error)
	UpdateStatus(ctx context.Context, matchID int, from, to models.MatchStatus) error
}

const matchColumns = `id, tournament_id, round_number, match_number, bracket_type, player1_id, player2_id,
		status, score_player1, score_player2, winner_id, submitted_by, created_at, updated_at`

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func scanMatch(row rowScanner) (*models.Match, error) {
	m := &models.Match{}
	err := row.Scan(
		&m.ID,
		&m.TournamentID,
		&m.RoundNumber,
		&m.MatchNumber,
		&m.Branch,
		&m.Player1ID,
		&m.Player2ID,
		&m.Status,
		&m.ScorePlayer1,
		&m.ScorePlayer2,
		&m.WinnerID,
		&m.SubmittedBy,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	if exec == nil {
		exec = r.db
	}
	if match.Status == "" {
		match.Status = models.MatchStatusScheduled
	}
	if match.Branch == "" {
		match.Branch = models.BranchWinner
	}
	query := `
		INSERT INTO matches
			(tournament_id, round_number, match_number, bracket_type, player1_id, player2_id,
			 status, score_player1, score_player2, winner_id, submitted_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	err := exec.QueryRowContext(ctx, query,
		match.TournamentID,
		match.RoundNumber,
		match.MatchNumber,
		match.Branch,
		match.Player1ID,
		match.Player2ID,
		match.Status,
		match.ScorePlayer1,
		match.ScorePlayer2,
		match.WinnerID,
		match.SubmittedBy,
	).Scan(&match.ID, &match.CreatedAt, &match.UpdatedAt)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	m, err := scanMatch(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match by id %d: %w", id, err)
	}
	return m, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, tournamentID int) ([]models.Match, error) {
	query := `SELECT ` + matchColumns + `
		FROM matches
		WHERE tournament_id = $1
		ORDER BY bracket_type ASC, round_number ASC, match_number ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	matches := make([]models.Match, 0)
	for rows.Next() {
		m, scanErr := scanMatch(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, *m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

// UpdateScore locks the match row, checks that the tournament is still active and writes score,
// winner and status in one transaction. A completed match is final: the identical result comes back
// with Changed == false, any other result fails with ErrMatchAlreadyCompleted and nothing is written.
// Two concurrent submissions serialize on the row lock, so only one of them can complete the match.
func (r *postgresMatchRepository) UpdateScore(ctx context.Context, matchID int, scorePlayer1, scorePlayer2 int, submittedBy *int) (*ScoreUpdate, error) {
	if scorePlayer1 == scorePlayer2 {
		return nil, ErrEqualScores
	}

	var update *ScoreUpdate
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := scanMatch(tx.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1 FOR UPDATE`, matchID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrMatchNotFound
			}
			return fmt.Errorf("failed to lock match %d: %w", matchID, err)
		}

		var status models.TournamentStatus
		if err := tx.QueryRowContext(ctx, `SELECT status FROM tournaments WHERE id = $1 FOR SHARE`, current.TournamentID).Scan(&status); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrTournamentNotFound
			}
			return fmt.Errorf("failed to read tournament %d status: %w", current.TournamentID, err)
		}
		if !status.IsActive() {
			return ErrTournamentFrozen
		}
		if !current.IsFillable() {
			return ErrMatchNotReady
		}

		if current.Status == models.MatchStatusCompleted {
			if !intPtrEqual(current.ScorePlayer1, scorePlayer1) || !intPtrEqual(current.ScorePlayer2, scorePlayer2) {
				return ErrMatchAlreadyCompleted
			}
			update = &ScoreUpdate{Match: current, Changed: false}
			return nil
		}

		winnerID := *current.Player2ID
		if scorePlayer1 > scorePlayer2 {
			winnerID = *current.Player1ID
		}

		query := `
			UPDATE matches
			SET score_player1 = $1, score_player2 = $2, winner_id = $3, status = $4, submitted_by = $5, updated_at = NOW()
			WHERE id = $6 AND status <> $4
			RETURNING ` + matchColumns
		updated, err := scanMatch(tx.QueryRowContext(ctx, query,
			scorePlayer1, scorePlayer2, winnerID, models.MatchStatusCompleted, submittedBy, matchID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMatchAlreadyCompleted
		}
		if err != nil {
			return r.handleMatchError(err)
		}
		update = &ScoreUpdate{Match: updated, Changed: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return update, nil
}

// FillSlot writes playerID into an empty slot with a compare-and-swap. An occupied slot is never
// overwritten: it reports SlotAlreadyFilled for the same player and SlotConflict otherwise.
func (r *postgresMatchRepository) FillSlot(ctx context.Context, matchID int, slot models.Slot, playerID int) (FillResult, error) {
	column, err := slotColumn(slot)
	if err != nil {
		return FillResult{}, err
	}

	query := fmt.Sprintf(`
		UPDATE matches SET %[1]s = $1, updated_at = NOW()
		WHERE id = $2 AND %[1]s IS NULL
		  AND EXISTS (
			SELECT 1 FROM tournaments t
			WHERE t.id = matches.tournament_id AND t.status IN ('registration_closed', 'ongoing')
		  )`, column)
	result, err := r.db.ExecContext(ctx, query, playerID, matchID)
	if err != nil {
		return FillResult{}, fmt.Errorf("FillSlot: failed to execute query for match %d: %w", matchID, r.handleMatchError(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return FillResult{}, fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 1 {
		return FillResult{Outcome: SlotFilled}, nil
	}

	var existing *int
	var status models.TournamentStatus
	check := fmt.Sprintf(`
		SELECT m.%s, t.status
		FROM matches m JOIN tournaments t ON t.id = m.tournament_id
		WHERE m.id = $1`, column)
	if err := r.db.QueryRowContext(ctx, check, matchID).Scan(&existing, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FillResult{}, ErrMatchNotFound
		}
		return FillResult{}, fmt.Errorf("failed to read slot of match %d: %w", matchID, err)
	}
	if !status.IsActive() {
		return FillResult{}, ErrTournamentFrozen
	}
	switch {
	case existing == nil:
		return FillResult{}, fmt.Errorf("slot %d of match %d is empty but could not be written", slot, matchID)
	case *existing == playerID:
		return FillResult{Outcome: SlotAlreadyFilled}, nil
	default:
		return FillResult{Outcome: SlotConflict, ExistingPlayerID: existing}, nil
	}
}

func (r *postgresMatchRepository) UpdateStatus(ctx context.Context, matchID int, from, to models.MatchStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE matches SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`, to, matchID, from)
	if err != nil {
		return r.handleMatchError(err)
	}
	if err := checkAffectedRows(result, ErrMatchStatusConflict); err != nil {
		if _, getErr := r.GetByID(ctx, matchID); errors.Is(getErr, ErrMatchNotFound) {
			return ErrMatchNotFound
		}
		return err
	}
	return nil
}

func slotColumn(slot models.Slot) (string, error) {
	switch slot {
	case models.SlotPlayer1:
		return "player1_id", nil
	case models.SlotPlayer2:
		return "player2_id", nil
	default:
		return "", fmt.Errorf("invalid slot %d", slot)
	}
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Constraint {
		case "matches_tournament_id_fkey":
			return ErrMatchTournamentInvalid
		case "matches_position_key":
			return ErrMatchPositionConflict
		case "matches_scores_differ":
			return ErrEqualScores
		}
	}
	return err
}
