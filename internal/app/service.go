package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"live-trivia/internal/domain"
	"live-trivia/internal/game"
)

// ErrCodeTaken is returned by SessionStore.Put when the code is already live.
var ErrCodeTaken = errors.New("session code already in use")

const (
	maxCodeAttempts           = 100
	defaultQuestionSeconds    = 20
	defaultLeaderboardSeconds = 10
)

// SessionStore abstracts how live sessions are kept (in-memory, Redis, etc).
type SessionStore interface {
	// Put stores a new session, failing with ErrCodeTaken on collision.
	Put(ctx context.Context, session *game.Session) error
	Get(ctx context.Context, code string) (*game.Session, error)
	// Save persists the session's current state after a mutation; in-memory
	// stores treat it as a no-op.
	Save(ctx context.Context, session *game.Session) error
	Delete(ctx context.Context, code string) error
	// ListExpired returns codes of sessions untouched since cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]string, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListQuizzes(ctx context.Context) ([]domain.QuizSummary, error)
}

// GameService contains the session lifecycle use cases.
type GameService struct {
	sessions SessionStore
	quizzes  QuizRepository
	clock    clockwork.Clock
	log      zerolog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewGameService(store SessionStore, quizzes QuizRepository, log zerolog.Logger) *GameService {
	return NewGameServiceWithClock(store, quizzes, log, clockwork.NewRealClock())
}

// NewGameServiceWithClock allows deterministic time in tests.
func NewGameServiceWithClock(store SessionStore, quizzes QuizRepository, log zerolog.Logger, clock clockwork.Clock) *GameService {
	return &GameService{
		sessions: store,
		quizzes:  quizzes,
		clock:    clock,
		log:      log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ListQuizzes exposes the quiz bank catalog.
func (s *GameService) ListQuizzes(ctx context.Context) ([]domain.QuizSummary, error) {
	return s.quizzes.ListQuizzes(ctx)
}

// CreateSession loads the quiz, allocates a fresh 4-digit code and issues the
// host token. Code collisions are resolved by retrying generation.
func (s *GameService) CreateSession(ctx context.Context, quizID string, settings domain.Settings) (code, hostToken string, err error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return "", "", err
	}

	settings = withDefaults(settings)
	hostToken = uuid.NewString()

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code = s.newCode()
		session, err := game.NewSessionWithClock(code, hostToken, quiz.Questions, settings, s.clock.Now)
		if err != nil {
			return "", "", err
		}
		if err := s.sessions.Put(ctx, session); err != nil {
			if errors.Is(err, ErrCodeTaken) {
				continue
			}
			return "", "", err
		}
		s.log.Info().Str("code", code).Str("quiz", quizID).
			Int("questions", len(quiz.Questions)).Str("mode", string(settings.Mode)).
			Msg("session created")
		return code, hostToken, nil
	}
	return "", "", fmt.Errorf("allocate session code: %w", ErrCodeTaken)
}

// Join adds a player to the lobby, or reconnects one joining under a known
// display name. The returned key identifies the player in later submissions.
func (s *GameService) Join(ctx context.Context, code, name, avatar string) (string, domain.Snapshot, error) {
	session, err := s.sessions.Get(ctx, code)
	if err != nil {
		return "", domain.Snapshot{}, err
	}
	playerID, snap, err := session.Join(name, avatar)
	if err != nil {
		return "", domain.Snapshot{}, err
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		s.log.Warn().Err(err).Str("code", code).Msg("persist after join failed")
	}
	return playerID, snap, nil
}

// GetState returns the authoritative snapshot clients poll.
func (s *GameService) GetState(ctx context.Context, code string) (domain.Snapshot, error) {
	session, err := s.sessions.Get(ctx, code)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return session.Snapshot(), nil
}

// Start begins the first question round.
func (s *GameService) Start(ctx context.Context, code, hostToken string) error {
	session, err := s.sessions.Get(ctx, code)
	if err != nil {
		return err
	}
	if err := session.Start(hostToken); err != nil {
		return err
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		s.log.Warn().Err(err).Str("code", code).Msg("persist after start failed")
	}
	return nil
}

// SubmitAnswer records a player's answer and returns the points awarded.
func (s *GameService) SubmitAnswer(ctx context.Context, code, playerID string, optionIndex int, elapsedMs int64) (int, error) {
	session, err := s.sessions.Get(ctx, code)
	if err != nil {
		return 0, err
	}
	points, err := session.Submit(playerID, optionIndex, elapsedMs)
	if err != nil {
		return 0, err
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		s.log.Warn().Err(err).Str("code", code).Msg("persist after answer failed")
	}
	return points, nil
}

// Advance drives the session to its next state on behalf of the host.
func (s *GameService) Advance(ctx context.Context, code, hostToken string) error {
	session, err := s.sessions.Get(ctx, code)
	if err != nil {
		return err
	}
	if err := session.Advance(hostToken); err != nil {
		return err
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		s.log.Warn().Err(err).Str("code", code).Msg("persist after advance failed")
	}
	return nil
}

// Watch returns a channel that receives a fresh snapshot after every session
// mutation. The caller must invoke cancel to avoid leaks.
func (s *GameService) Watch(ctx context.Context, code string) (<-chan domain.Snapshot, func(), error) {
	session, err := s.sessions.Get(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

// EvictIdle purges sessions untouched for longer than maxIdle and reports how
// many were removed.
func (s *GameService) EvictIdle(ctx context.Context, maxIdle time.Duration) int {
	cutoff := s.clock.Now().Add(-maxIdle)
	codes, err := s.sessions.ListExpired(ctx, cutoff)
	if err != nil {
		s.log.Warn().Err(err).Msg("list expired sessions failed")
		return 0
	}
	evicted := 0
	for _, code := range codes {
		if err := s.sessions.Delete(ctx, code); err != nil {
			s.log.Warn().Err(err).Str("code", code).Msg("evict session failed")
			continue
		}
		evicted++
	}
	if evicted > 0 {
		s.log.Info().Int("evicted", evicted).Msg("idle sessions purged")
	}
	return evicted
}

// RunJanitor sweeps for idle sessions until ctx is canceled.
func (s *GameService) RunJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.EvictIdle(ctx, maxIdle)
		}
	}
}

func (s *GameService) newCode() string {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return fmt.Sprintf("%04d", s.rng.Intn(10000))
}

func withDefaults(settings domain.Settings) domain.Settings {
	if settings.QuestionSeconds <= 0 {
		settings.QuestionSeconds = defaultQuestionSeconds
	}
	if settings.LeaderboardSeconds <= 0 {
		settings.LeaderboardSeconds = defaultLeaderboardSeconds
	}
	if settings.Mode != domain.AdvanceManual {
		settings.Mode = domain.AdvanceAutomatic
	}
	return settings
}
