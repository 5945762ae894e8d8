package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/bracket-progression/models"
	"github.com/Dosada05/bracket-progression/repositories"
	"github.com/lib/pq"
)

// ChannelMatchesChanged is the NOTIFY channel fed by the matches table trigger.
const ChannelMatchesChanged = "matches_changed"

// PostgresListener republishes database notifications onto the bus, so changes made by other
// service instances or directly in the database reach the progression watcher.
type PostgresListener struct {
	dsn      string
	notifier repositories.ChangeNotifier
	logger   *slog.Logger
}

func NewPostgresListener(dsn string, bus repositories.ChangeNotifier, logger *slog.Logger) *PostgresListener {
	return &PostgresListener{dsn: dsn, notifier: bus, logger: logger}
}

// Run blocks until ctx is cancelled.
func (l *PostgresListener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.dsn, 5*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			l.logger.Warn("postgres listener event", slog.Int("event", int(ev)), slog.Any("error", err))
		}
	})
	defer listener.Close()

	if err := listener.Listen(ChannelMatchesChanged); err != nil {
		return fmt.Errorf("failed to LISTEN %s: %w", ChannelMatchesChanged, err)
	}
	l.logger.Info("listening for match changes", slog.String("channel", ChannelMatchesChanged))

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil означает переподключение: события за это время потеряны, их подберёт sweeper
			if n == nil {
				continue
			}
			l.forward(ctx, n.Extra)
		case <-time.After(90 * time.Second):
			if err := listener.Ping(); err != nil {
				l.logger.Warn("postgres listener ping failed", slog.Any("error", err))
			}
		}
	}
}

func (l *PostgresListener) forward(ctx context.Context, payload string) {
	var event models.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		l.logger.Warn("malformed notification payload", slog.String("payload", payload), slog.Any("error", err))
		return
	}
	if err := l.notifier.NotifyMatchesChanged(ctx, event); err != nil {
		l.logger.Warn("failed to republish notification",
			slog.Int("tournament_id", event.TournamentID), slog.Any("error", err))
	}
}
