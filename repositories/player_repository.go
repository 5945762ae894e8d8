package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dosada05/bracket-progression/models"
	"github.com/lib/pq"
)

// PlayerRepository serves the presentation read model only.
type PlayerRepository interface {
	ListByIDs(ctx context.Context, ids []int) (map[int]models.PlayerProfile, error)
}

type postgresPlayerRepository struct {
	db *sql.DB
}

func NewPostgresPlayerRepository(db *sql.DB) PlayerRepository {
	return &postgresPlayerRepository{db: db}
}

func (r *postgresPlayerRepository) ListByIDs(ctx context.Context, ids []int) (map[int]models.PlayerProfile, error) {
	profiles := make(map[int]models.PlayerProfile, len(ids))
	if len(ids) == 0 {
		return profiles, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, display_name, elo FROM players WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.PlayerProfile
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.Elo); err != nil {
			return nil, fmt.Errorf("failed to scan player row: %w", err)
		}
		profiles[p.ID] = p
	}
	return profiles, rows.Err()
}
