package game

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"live-trivia/internal/domain"
)

const (
	minNameLen = 2
	maxNameLen = 15
)

// Session is one running quiz game. All mutations go through its methods and
// serialize on the internal mutex, so concurrent submissions and a racing
// advance cannot violate the session invariants.
type Session struct {
	mu sync.RWMutex

	code      string
	hostToken string
	questions []domain.Question
	settings  domain.Settings

	status        domain.Status
	current       int
	players       map[string]*domain.Player
	nameIndex     map[string]string // lowercased display name -> player ID
	answers       map[string]domain.Answer
	lastAnswers   map[string]domain.Answer
	lastCorrect   int
	questionStart time.Time
	leaderboard   []domain.LeaderboardEntry
	touched       time.Time

	now         func() time.Time
	subscribers map[chan domain.Snapshot]struct{}
}

// NewSession validates the question bank and returns a fresh LOBBY session.
func NewSession(code, hostToken string, questions []domain.Question, settings domain.Settings) (*Session, error) {
	return NewSessionWithClock(code, hostToken, questions, settings, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(code, hostToken string, questions []domain.Question, settings domain.Settings, now func() time.Time) (*Session, error) {
	if err := ValidateQuestions(questions); err != nil {
		return nil, err
	}
	return &Session{
		code:        code,
		hostToken:   hostToken,
		questions:   questions,
		settings:    settings,
		status:      domain.StatusLobby,
		players:     make(map[string]*domain.Player),
		nameIndex:   make(map[string]string),
		answers:     make(map[string]domain.Answer),
		lastAnswers: make(map[string]domain.Answer),
		lastCorrect: domain.NoCorrectIndex,
		touched:     now(),
		now:         now,
		subscribers: make(map[chan domain.Snapshot]struct{}),
	}, nil
}

// ValidateQuestions enforces the question bank contract: non-empty, exactly
// four options each, correct index in range.
func ValidateQuestions(questions []domain.Question) error {
	if len(questions) == 0 {
		return domain.ErrInvalidQuestionBank
	}
	for _, q := range questions {
		if len(q.Options) != domain.OptionsPerQuestion {
			return domain.ErrInvalidQuestionBank
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= domain.OptionsPerQuestion {
			return domain.ErrInvalidQuestionBank
		}
	}
	return nil
}

// Code returns the session's join code.
func (s *Session) Code() string {
	return s.code
}

// HostToken returns the token issued at creation; stores persist it alongside
// the snapshot so restored sessions keep authorizing the same host.
func (s *Session) HostToken() string {
	return s.hostToken
}

// LastTouched reports when the session last served a request, for idle eviction.
func (s *Session) LastTouched() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.touched
}

// Join registers a player, or reconnects one that already joined under the
// same display name. New players may only join while the session is in the
// lobby; a known name is let back in at any phase so a refreshed device can
// resume without resetting its score.
func (s *Session) Join(name, avatar string) (string, domain.Snapshot, error) {
	trimmed := strings.TrimSpace(name)
	if n := utf8.RuneCountInString(trimmed); n < minNameLen || n > maxNameLen {
		return "", domain.Snapshot{}, domain.ErrInvalidDisplayName
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = s.now()

	if id, ok := s.nameIndex[strings.ToLower(trimmed)]; ok {
		return id, s.broadcastLocked(), nil
	}
	if s.status != domain.StatusLobby {
		return "", domain.Snapshot{}, domain.ErrSessionStarted
	}

	id := uuid.NewString()
	s.players[id] = &domain.Player{
		ID:     id,
		Name:   trimmed,
		Avatar: avatar,
	}
	s.nameIndex[strings.ToLower(trimmed)] = id
	return id, s.broadcastLocked(), nil
}

// Start moves the session from LOBBY into the first question round.
func (s *Session) Start(hostToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = s.now()

	if hostToken != s.hostToken {
		return domain.ErrNotAuthorized
	}
	if s.status != domain.StatusLobby {
		return domain.ErrSessionStarted
	}
	if len(s.players) == 0 {
		return domain.ErrNoPlayers
	}

	s.status = domain.StatusQuestion
	s.current = 0
	s.questionStart = s.now()
	s.answers = make(map[string]domain.Answer)
	s.broadcastLocked()
	return nil
}

// Submit records a player's answer for the current round. The first write
// wins; resubmissions and submissions outside QUESTION are rejected with no
// state change.
func (s *Session) Submit(playerID string, optionIndex int, elapsedMs int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = s.now()

	if s.status != domain.StatusQuestion {
		return 0, domain.ErrRoundClosed
	}
	player, ok := s.players[playerID]
	if !ok {
		return 0, domain.ErrUnknownPlayer
	}
	if _, ok := s.answers[playerID]; ok {
		return 0, domain.ErrAlreadyAnswered
	}

	question := s.questions[s.current]
	correct := optionIndex == question.CorrectIndex
	points := Score(correct, elapsedMs, s.settings.QuestionSeconds)

	idx := optionIndex
	s.answers[playerID] = domain.Answer{OptionIndex: &idx, Points: points}
	if correct {
		player.Score += points
		player.CorrectCount++
	}
	s.broadcastLocked()
	return points, nil
}

// Advance is the single transition driver:
//
//	QUESTION     -> ANSWER_REVEAL (reveal correct option, snapshot answers and leaderboard)
//	ANSWER_REVEAL-> LEADERBOARD
//	LEADERBOARD  -> QUESTION (next index) or FINAL (after the last question)
//
// In LOBBY or FINAL it is a no-op that reports success, so a stale or
// duplicate advance from the host can never corrupt state.
func (s *Session) Advance(hostToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = s.now()

	if hostToken != s.hostToken {
		return domain.ErrNotAuthorized
	}

	switch s.status {
	case domain.StatusQuestion:
		s.lastCorrect = s.questions[s.current].CorrectIndex
		s.lastAnswers = make(map[string]domain.Answer, len(s.players))
		for id := range s.players {
			if ans, ok := s.answers[id]; ok {
				s.lastAnswers[id] = ans
			} else {
				s.lastAnswers[id] = domain.Answer{} // time expired, no submission
			}
		}
		s.leaderboard = s.rankedLocked()
		s.status = domain.StatusAnswerReveal
	case domain.StatusAnswerReveal:
		s.status = domain.StatusLeaderboard
	case domain.StatusLeaderboard:
		if s.current >= len(s.questions)-1 {
			s.status = domain.StatusFinal
		} else {
			s.current++
			s.questionStart = s.now()
			s.answers = make(map[string]domain.Answer)
			s.status = domain.StatusQuestion
		}
	default:
		// LOBBY and FINAL: nothing to do.
		return nil
	}
	s.broadcastLocked()
	return nil
}

// Snapshot returns a deep, independent copy of the session state.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel receiving a snapshot after every mutation,
// seeded with the current state. The caller must invoke cancel to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.snapshotLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() domain.Snapshot {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the stale snapshot so a slow watcher never blocks mutations.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return snap
}

func (s *Session) snapshotLocked() domain.Snapshot {
	questions := make([]domain.Question, len(s.questions))
	for i, q := range s.questions {
		q.Options = append([]string(nil), q.Options...)
		questions[i] = q
	}
	players := make(map[string]domain.Player, len(s.players))
	for id, p := range s.players {
		players[id] = *p
	}

	var startMs int64
	if !s.questionStart.IsZero() {
		startMs = s.questionStart.UnixMilli()
	}

	return domain.Snapshot{
		Code:                 s.code,
		Status:               s.status,
		Questions:            questions,
		CurrentQuestionIndex: s.current,
		Players:              players,
		Answers:              copyAnswers(s.answers),
		LastAnswers:          copyAnswers(s.lastAnswers),
		LastCorrectIndex:     s.lastCorrect,
		QuestionStartMs:      startMs,
		QuestionSeconds:      s.settings.QuestionSeconds,
		LeaderboardSeconds:   s.settings.LeaderboardSeconds,
		Mode:                 s.settings.Mode,
		Leaderboard:          append([]domain.LeaderboardEntry(nil), s.leaderboard...),
	}
}

func copyAnswers(in map[string]domain.Answer) map[string]domain.Answer {
	out := make(map[string]domain.Answer, len(in))
	for id, ans := range in {
		if ans.OptionIndex != nil {
			idx := *ans.OptionIndex
			ans.OptionIndex = &idx
		}
		out[id] = ans
	}
	return out
}

// rankedLocked orders players by score, then correct count, then name.
func (s *Session) rankedLocked() []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(s.players))
	for _, p := range s.players {
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID:     p.ID,
			Name:         p.Name,
			Avatar:       p.Avatar,
			Score:        p.Score,
			CorrectCount: p.CorrectCount,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].CorrectCount != entries[j].CorrectCount {
			return entries[i].CorrectCount > entries[j].CorrectCount
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// Restore rebuilds a session from a persisted snapshot, preserving players,
// answers and progress exactly. Used by stores that keep serialized state.
func Restore(snap domain.Snapshot, hostToken string, touched time.Time) *Session {
	return RestoreWithClock(snap, hostToken, touched, time.Now)
}

// RestoreWithClock is Restore with an injectable clock for tests.
func RestoreWithClock(snap domain.Snapshot, hostToken string, touched time.Time, now func() time.Time) *Session {
	s := &Session{
		code:      snap.Code,
		hostToken: hostToken,
		questions: snap.Questions,
		settings: domain.Settings{
			QuestionSeconds:    snap.QuestionSeconds,
			LeaderboardSeconds: snap.LeaderboardSeconds,
			Mode:               snap.Mode,
		},
		status:      snap.Status,
		current:     snap.CurrentQuestionIndex,
		players:     make(map[string]*domain.Player, len(snap.Players)),
		nameIndex:   make(map[string]string, len(snap.Players)),
		answers:     copyAnswers(snap.Answers),
		lastAnswers: copyAnswers(snap.LastAnswers),
		lastCorrect: snap.LastCorrectIndex,
		leaderboard: append([]domain.LeaderboardEntry(nil), snap.Leaderboard...),
		touched:     touched,
		now:         now,
		subscribers: make(map[chan domain.Snapshot]struct{}),
	}
	if snap.QuestionStartMs > 0 {
		s.questionStart = time.UnixMilli(snap.QuestionStartMs)
	}
	for id, p := range snap.Players {
		player := p
		s.players[id] = &player
		s.nameIndex[strings.ToLower(p.Name)] = id
	}
	return s
}
