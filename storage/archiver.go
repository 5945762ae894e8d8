package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dosada05/bracket-progression/brackets"
	"github.com/Dosada05/bracket-progression/models"
)

// BracketSnapshot is the archived form of a finished bracket.
type BracketSnapshot struct {
	Tournament models.Tournament       `json:"tournament"`
	Branches   []brackets.BranchRounds `json:"branches"`
	ArchivedAt time.Time               `json:"archived_at"`
}

// BracketArchiver uploads bracket snapshots to tournaments/{id}/bracket.json.
type BracketArchiver struct {
	uploader FileUploader
	now      func() time.Time
}

func NewBracketArchiver(uploader FileUploader) *BracketArchiver {
	return &BracketArchiver{uploader: uploader, now: time.Now}
}

func ArchiveKey(tournamentID int) string {
	return fmt.Sprintf("tournaments/%d/bracket.json", tournamentID)
}

// Archive returns the object key, or the public URL when one is configured.
func (a *BracketArchiver) Archive(ctx context.Context, tournament *models.Tournament, matches []models.Match) (string, error) {
	snapshot := BracketSnapshot{
		Tournament: *tournament,
		Branches:   brackets.GroupByBranch(matches),
		ArchivedAt: a.now().UTC(),
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to encode bracket snapshot: %w", err)
	}

	res, err := a.uploader.Upload(ctx, ArchiveKey(tournament.ID), "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	if res.Location != "" {
		return res.Location, nil
	}
	return res.Key, nil
}
