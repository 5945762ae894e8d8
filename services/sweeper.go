package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/bracket-progression/models"
	"github.com/Dosada05/bracket-progression/repositories"
	"github.com/go-co-op/gocron/v2"
)

// Sweeper periodically checks every active elimination tournament. It catches what the change
// feed missed, for example notifications lost while the listener was reconnecting.
type Sweeper struct {
	tournamentRepo repositories.TournamentRepository
	progression    ProgressionService
	scheduler      *AutoFixScheduler
	interval       time.Duration
	logger         *slog.Logger
	cron           gocron.Scheduler
}

func NewSweeper(
	tournamentRepo repositories.TournamentRepository,
	progression ProgressionService,
	scheduler *AutoFixScheduler,
	interval time.Duration,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		tournamentRepo: tournamentRepo,
		progression:    progression,
		scheduler:      scheduler,
		interval:       interval,
		logger:         logger,
	}
}

// Start registers the sweep job and starts the scheduler. The job never overlaps itself.
func (s *Sweeper) Start(ctx context.Context) error {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = cron.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("Sweeper: run failed", slog.Any("error", err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register sweep job: %w", err)
	}
	cron.Start()
	s.cron = cron
	s.logger.Info("Sweeper started", slog.Duration("interval", s.interval))
	return nil
}

// Sweep checks all active tournaments once and returns how many were repaired.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	tournaments, err := s.tournamentRepo.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active tournaments: %w", err)
	}

	repaired := 0
	for _, t := range tournaments {
		if ctx.Err() != nil {
			return repaired, ctx.Err()
		}
		check, err := s.progression.Check(ctx, t.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "Sweeper: progression check failed",
				slog.Int("tournament_id", t.ID), slog.Any("error", err))
			continue
		}
		res, err := s.scheduler.Trigger(ctx, check.Tournament, check.Report, models.SystemActor)
		if err != nil {
			s.logger.WarnContext(ctx, "Sweeper: auto-fix failed",
				slog.Int("tournament_id", t.ID), slog.Any("error", err))
		}
		if res != nil && res.Decision == DecisionRepaired {
			repaired++
		}
	}
	return repaired, nil
}

func (s *Sweeper) Shutdown() error {
	if s.cron == nil {
		return nil
	}
	return s.cron.Shutdown()
}
