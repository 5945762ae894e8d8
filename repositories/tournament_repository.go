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
	ErrTournamentNotFound       = errors.New("tournament not found")
	ErrTournamentFrozen         = errors.New("tournament is completed or cancelled")
	ErrTournamentStatusConflict = errors.New("tournament status changed concurrently")
)

var activeStatuses = []models.TournamentStatus{models.StatusRegistrationClosed, models.StatusOngoing}

type TournamentRepository interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	ListActive(ctx context.Context) ([]models.Tournament, error)
	// UpdateStatus moves the tournament to `to` only if its current status is one of `from`.
	UpdateStatus(ctx context.Context, id int, from []models.TournamentStatus, to models.TournamentStatus) error
	// Complete marks an active tournament completed. It reports false when it already was.
	Complete(ctx context.Context, id int, winnerID *int) (bool, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

const tournamentColumns = `id, name, tournament_type, status, max_participants, organizer_id, winner_id, created_at, updated_at`

func scanTournament(row rowScanner) (*models.Tournament, error) {
	t := &models.Tournament{}
	err := row.Scan(
		&t.ID, &t.Name, &t.Type, &t.Status, &t.MaxParticipants, &t.OrganizerID, &t.WinnerID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (name, tournament_type, status, max_participants, organizer_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		t.Name, t.Type, t.Status, t.MaxParticipants, t.OrganizerID,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	return err
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := scanTournament(r.db.QueryRowContext(ctx, `SELECT `+tournamentColumns+` FROM tournaments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) ListActive(ctx context.Context) ([]models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + `
		FROM tournaments
		WHERE status = ANY($1) AND tournament_type = ANY($2)
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query,
		pq.Array(activeStatuses),
		pq.Array([]models.TournamentType{models.TypeSingleElimination, models.TypeDoubleElimination}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query active tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		t, scanErr := scanTournament(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		tournaments = append(tournaments, *t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, id int, from []models.TournamentStatus, to models.TournamentStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tournaments SET status = $1, updated_at = NOW() WHERE id = $2 AND status = ANY($3)`,
		to, id, pq.Array(from))
	if err != nil {
		return err
	}
	if err := checkAffectedRows(result, ErrTournamentStatusConflict); err != nil {
		if _, getErr := r.GetByID(ctx, id); errors.Is(getErr, ErrTournamentNotFound) {
			return ErrTournamentNotFound
		}
		return err
	}
	return nil
}

func (r *postgresTournamentRepository) Complete(ctx context.Context, id int, winnerID *int) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tournaments SET status = $1, winner_id = $2, updated_at = NOW() WHERE id = $3 AND status = ANY($4)`,
		models.StatusCompleted, winnerID, id, pq.Array(activeStatuses))
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	t, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if t.Status == models.StatusCompleted {
		return false, nil
	}
	return false, ErrTournamentFrozen
}
