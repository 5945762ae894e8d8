package services

import (
	"github.com/Dosada05/bracket-progression/models"
)

func isValidStatusTransition(current, next models.TournamentStatus) bool {
	if current == next {
		return true
	}
	allowedTransitions := map[models.TournamentStatus][]models.TournamentStatus{
		models.StatusRegistrationOpen:   {models.StatusRegistrationClosed, models.StatusCancelled},
		models.StatusRegistrationClosed: {models.StatusOngoing, models.StatusCancelled},
		models.StatusOngoing:            {models.StatusCompleted, models.StatusCancelled},
		models.StatusCompleted:          {},
		models.StatusCancelled:          {},
	}
	for _, allowedNextStatus := range allowedTransitions[current] {
		if next == allowedNextStatus {
			return true
		}
	}
	return false
}

func isKnownStatus(status models.TournamentStatus) bool {
	switch status {
	case models.StatusRegistrationOpen, models.StatusRegistrationClosed, models.StatusOngoing,
		models.StatusCompleted, models.StatusCancelled:
		return true
	}
	return false
}

// canManageTournament: администратор или организатор (владелец клуба) турнира.
func canManageTournament(actor models.Actor, tournament *models.Tournament) bool {
	if actor.Role == models.RoleAdmin {
		return true
	}
	return tournament != nil && actor.UserID != 0 && actor.UserID == tournament.OrganizerID
}

func userIDPtr(actor models.Actor) *int {
	if actor.UserID == 0 {
		return nil
	}
	id := actor.UserID
	return &id
}
