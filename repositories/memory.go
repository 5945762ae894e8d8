package repositories

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/bracket-progression/models"
)

// ChangeNotifier receives an event after every successful match mutation.
type ChangeNotifier interface {
	NotifyMatchesChanged(ctx context.Context, event models.ChangeEvent) error
}

type MemoryOption func(*MemoryStore)

func WithNotifier(notifier ChangeNotifier, logger *slog.Logger) MemoryOption {
	return func(s *MemoryStore) {
		s.notifier = notifier
		if logger != nil {
			s.logger = logger
		}
	}
}

// MemoryStore keeps tournaments, matches and players in process memory. It implements
// MatchRepository and PlayerRepository directly and TournamentRepository via Tournaments(), with the same atomicity guarantees
// as the postgres implementations: every operation runs under a single lock and callers only
// ever see copies.
type MemoryStore struct {
	mu          sync.Mutex
	tournaments map[int]models.Tournament
	matches     map[int]models.Match
	players     map[int]models.PlayerProfile
	nextID      int
	writes      int

	notifier ChangeNotifier
	logger   *slog.Logger
	now      func() time.Time
}

var (
	_ MatchRepository      = (*MemoryStore)(nil)
	_ PlayerRepository     = (*MemoryStore)(nil)
	_ TournamentRepository = memoryTournaments{}
)

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		tournaments: make(map[int]models.Tournament),
		matches:     make(map[int]models.Match),
		players:     make(map[int]models.PlayerProfile),
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Writes returns how many mutations of match or tournament rows have been applied.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// AddTournament seeds a tournament. A zero ID is replaced with a generated one.
func (s *MemoryStore) AddTournament(t models.Tournament) models.Tournament {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.allocID()
	} else if t.ID > s.nextID {
		s.nextID = t.ID
	}
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	s.tournaments[t.ID] = t
	return t
}

// AddMatches seeds matches and returns them with their assigned ids.
func (s *MemoryStore) AddMatches(matches ...models.Match) []models.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Match, 0, len(matches))
	for _, m := range matches {
		if m.ID == 0 {
			m.ID = s.allocID()
		} else if m.ID > s.nextID {
			s.nextID = m.ID
		}
		if m.Status == "" {
			m.Status = models.MatchStatusScheduled
		}
		if m.Branch == "" {
			m.Branch = models.BranchWinner
		}
		now := s.now()
		m.CreatedAt, m.UpdatedAt = now, now
		s.matches[m.ID] = m
		out = append(out, m)
	}
	return out
}

func (s *MemoryStore) AddPlayer(p models.PlayerProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[p.ID] = p
}

func (s *MemoryStore) allocID() int {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) notify(ctx context.Context, tournamentID, matchID int, op models.ChangeOperation) {
	if s.notifier == nil {
		return
	}
	event := models.ChangeEvent{TournamentID: tournamentID, MatchID: matchID, Operation: op}
	if err := s.notifier.NotifyMatchesChanged(ctx, event); err != nil {
		s.logger.Warn("failed to publish match change",
			slog.Int("tournament_id", tournamentID),
			slog.Int("match_id", matchID),
			slog.String("error", err.Error()))
	}
}

func (s *MemoryStore) Create(ctx context.Context, _ SQLExecutor, match *models.Match) error {
	s.mu.Lock()
	if _, ok := s.tournaments[match.TournamentID]; !ok {
		s.mu.Unlock()
		return ErrMatchTournamentInvalid
	}
	if match.Branch == "" {
		match.Branch = models.BranchWinner
	}
	for _, existing := range s.matches {
		if existing.TournamentID == match.TournamentID && existing.Branch == match.Branch &&
			existing.RoundNumber == match.RoundNumber && existing.MatchNumber == match.MatchNumber {
			s.mu.Unlock()
			return ErrMatchPositionConflict
		}
	}
	if match.Status == "" {
		match.Status = models.MatchStatusScheduled
	}
	match.ID = s.allocID()
	now := s.now()
	match.CreatedAt, match.UpdatedAt = now, now
	s.matches[match.ID] = *match
	s.writes++
	s.mu.Unlock()

	s.notify(ctx, match.TournamentID, match.ID, models.ChangeInsert)
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id int) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return &m, nil
}

func (s *MemoryStore) ListByTournament(_ context.Context, tournamentID int) ([]models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Match, 0)
	for _, m := range s.matches {
		if m.TournamentID == tournamentID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Branch != b.Branch {
			return a.Branch < b.Branch
		}
		if a.RoundNumber != b.RoundNumber {
			return a.RoundNumber < b.RoundNumber
		}
		if a.MatchNumber != b.MatchNumber {
			return a.MatchNumber < b.MatchNumber
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (s *MemoryStore) activeTournamentLocked(tournamentID int) error {
	t, ok := s.tournaments[tournamentID]
	if !ok {
		return ErrTournamentNotFound
	}
	if !t.Status.IsActive() {
		return ErrTournamentFrozen
	}
	return nil
}

func (s *MemoryStore) UpdateScore(ctx context.Context, matchID int, scorePlayer1, scorePlayer2 int, submittedBy *int) (*ScoreUpdate, error) {
	if scorePlayer1 == scorePlayer2 {
		return nil, ErrEqualScores
	}

	s.mu.Lock()
	current, ok := s.matches[matchID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrMatchNotFound
	}
	if err := s.activeTournamentLocked(current.TournamentID); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !current.IsFillable() {
		s.mu.Unlock()
		return nil, ErrMatchNotReady
	}
	if current.Status == models.MatchStatusCompleted {
		s.mu.Unlock()
		if !intPtrEqual(current.ScorePlayer1, scorePlayer1) || !intPtrEqual(current.ScorePlayer2, scorePlayer2) {
			return nil, ErrMatchAlreadyCompleted
		}
		return &ScoreUpdate{Match: &current, Changed: false}, nil
	}

	winnerID := *current.Player2ID
	if scorePlayer1 > scorePlayer2 {
		winnerID = *current.Player1ID
	}
	updated := current
	updated.ScorePlayer1 = &scorePlayer1
	updated.ScorePlayer2 = &scorePlayer2
	updated.WinnerID = &winnerID
	updated.Status = models.MatchStatusCompleted
	updated.SubmittedBy = submittedBy
	updated.UpdatedAt = s.now()
	s.matches[matchID] = updated
	s.writes++
	s.mu.Unlock()

	s.notify(ctx, updated.TournamentID, matchID, models.ChangeUpdate)
	return &ScoreUpdate{Match: &updated, Changed: true}, nil
}

func (s *MemoryStore) FillSlot(ctx context.Context, matchID int, slot models.Slot, playerID int) (FillResult, error) {
	if _, err := slotColumn(slot); err != nil {
		return FillResult{}, err
	}

	s.mu.Lock()
	m, ok := s.matches[matchID]
	if !ok {
		s.mu.Unlock()
		return FillResult{}, ErrMatchNotFound
	}
	if err := s.activeTournamentLocked(m.TournamentID); err != nil {
		s.mu.Unlock()
		return FillResult{}, err
	}
	if existing := m.PlayerInSlot(slot); existing != nil {
		s.mu.Unlock()
		if *existing == playerID {
			return FillResult{Outcome: SlotAlreadyFilled}, nil
		}
		id := *existing
		return FillResult{Outcome: SlotConflict, ExistingPlayerID: &id}, nil
	}

	id := playerID
	if slot == models.SlotPlayer1 {
		m.Player1ID = &id
	} else {
		m.Player2ID = &id
	}
	m.UpdatedAt = s.now()
	s.matches[matchID] = m
	s.writes++
	s.mu.Unlock()

	s.notify(ctx, m.TournamentID, matchID, models.ChangeUpdate)
	return FillResult{Outcome: SlotFilled}, nil
}

// UpdateStatus implements the match status compare-and-swap of MatchRepository.
func (s *MemoryStore) UpdateStatus(ctx context.Context, matchID int, from, to models.MatchStatus) error {
	s.mu.Lock()
	m, ok := s.matches[matchID]
	if !ok {
		s.mu.Unlock()
		return ErrMatchNotFound
	}
	if m.Status != from {
		s.mu.Unlock()
		return ErrMatchStatusConflict
	}
	m.Status = to
	m.UpdatedAt = s.now()
	s.matches[matchID] = m
	s.writes++
	s.mu.Unlock()

	s.notify(ctx, m.TournamentID, matchID, models.ChangeUpdate)
	return nil
}

// Tournaments returns the TournamentRepository view of the store. MemoryStore cannot implement
// both GetByID methods on one type, so the tournament side lives on a thin wrapper.
func (s *MemoryStore) Tournaments() TournamentRepository {
	return memoryTournaments{s}
}

func (s *MemoryStore) ListByIDs(_ context.Context, ids []int) (map[int]models.PlayerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]models.PlayerProfile, len(ids))
	for _, id := range ids {
		if p, ok := s.players[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type memoryTournaments struct {
	s *MemoryStore
}

func (r memoryTournaments) Create(_ context.Context, t *models.Tournament) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t.ID = r.s.allocID()
	now := r.s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	r.s.tournaments[t.ID] = *t
	r.s.writes++
	return nil
}

func (r memoryTournaments) GetByID(_ context.Context, id int) (*models.Tournament, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tournaments[id]
	if !ok {
		return nil, ErrTournamentNotFound
	}
	return &t, nil
}

func (r memoryTournaments) ListActive(_ context.Context) ([]models.Tournament, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.Tournament, 0)
	for _, t := range r.s.tournaments {
		if t.Status.IsActive() && t.Type.IsElimination() {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memoryTournaments) UpdateStatus(_ context.Context, id int, from []models.TournamentStatus, to models.TournamentStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tournaments[id]
	if !ok {
		return ErrTournamentNotFound
	}
	for _, status := range from {
		if t.Status == status {
			t.Status = to
			t.UpdatedAt = r.s.now()
			r.s.tournaments[id] = t
			r.s.writes++
			return nil
		}
	}
	return ErrTournamentStatusConflict
}

func (r memoryTournaments) Complete(_ context.Context, id int, winnerID *int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tournaments[id]
	if !ok {
		return false, ErrTournamentNotFound
	}
	switch {
	case t.Status == models.StatusCompleted:
		return false, nil
	case !t.Status.IsActive():
		return false, ErrTournamentFrozen
	}
	t.Status = models.StatusCompleted
	t.WinnerID = winnerID
	t.UpdatedAt = r.s.now()
	r.s.tournaments[id] = t
	r.s.writes++
	return true, nil
}
