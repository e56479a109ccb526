package domain

// Status is the lifecycle phase of a game session.
type Status string

const (
	StatusLobby        Status = "LOBBY"
	StatusQuestion     Status = "QUESTION"
	StatusAnswerReveal Status = "ANSWER_REVEAL"
	StatusLeaderboard  Status = "LEADERBOARD"
	StatusFinal        Status = "FINAL"
)

// AdvanceMode controls whether the host client drives transitions on timers
// or a human triggers them explicitly.
type AdvanceMode string

const (
	AdvanceAutomatic AdvanceMode = "automatic"
	AdvanceManual    AdvanceMode = "manual"
)

// OptionsPerQuestion is fixed; every question carries exactly four choices.
const OptionsPerQuestion = 4

// NoCorrectIndex is the sentinel for LastCorrectIndex before the first reveal.
const NoCorrectIndex = -1

// Question is an immutable multiple-choice question from the quiz bank.
type Question struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
}

// Quiz is an ordered bank of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

// QuizSummary is the listing view of a quiz.
type QuizSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Player is a participant keyed by a server-issued opaque ID.
type Player struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Avatar       string `json:"avatar"`
	Score        int    `json:"score"`
	CorrectCount int    `json:"correctCount"`
}

// Answer records one player's submission for a round. A nil OptionIndex
// means the round ended without a submission.
type Answer struct {
	OptionIndex *int `json:"optionIndex"`
	Points      int  `json:"points"`
}

// Settings is the immutable per-session configuration fixed at creation.
type Settings struct {
	QuestionSeconds    int         `json:"questionSeconds"`
	LeaderboardSeconds int         `json:"leaderboardSeconds"`
	Mode               AdvanceMode `json:"mode"`
}

// LeaderboardEntry is one ranked row of the scoreboard snapshot.
type LeaderboardEntry struct {
	PlayerID     string `json:"playerId"`
	Name         string `json:"name"`
	Avatar       string `json:"avatar"`
	Score        int    `json:"score"`
	CorrectCount int    `json:"correctCount"`
}

// Snapshot is the full, self-contained view of a session that clients poll.
// Clients replace their local view wholesale with each snapshot; partial
// merges are never performed.
type Snapshot struct {
	Code                 string             `json:"code"`
	Status               Status             `json:"status"`
	Questions            []Question         `json:"questions"`
	CurrentQuestionIndex int                `json:"currentQuestionIndex"`
	Players              map[string]Player  `json:"players"`
	Answers              map[string]Answer  `json:"answers"`
	LastAnswers          map[string]Answer  `json:"lastAnswers"`
	LastCorrectIndex     int                `json:"lastCorrectIndex"`
	QuestionStartMs      int64              `json:"questionStartMs"`
	QuestionSeconds      int                `json:"questionSeconds"`
	LeaderboardSeconds   int                `json:"leaderboardSeconds"`
	Mode                 AdvanceMode        `json:"mode"`
	Leaderboard          []LeaderboardEntry `json:"leaderboard"`
}

// AnsweredCount reports how many players have submitted this round.
func (s Snapshot) AnsweredCount() int {
	return len(s.Answers)
}

// AllAnswered reports whether every joined player has submitted this round.
func (s Snapshot) AllAnswered() bool {
	return len(s.Players) > 0 && len(s.Answers) == len(s.Players)
}
