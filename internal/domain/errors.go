package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no live session matches a code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionStarted is returned when joining or starting a session that already left the lobby.
	ErrSessionStarted = errors.New("session already started")
	// ErrNoPlayers is returned when starting a session nobody has joined.
	ErrNoPlayers = errors.New("no players joined")
	// ErrUnknownPlayer is returned when a submission references a player not in the session.
	ErrUnknownPlayer = errors.New("unknown player")
	// ErrAlreadyAnswered is returned on a second submission in the same round; the first write wins.
	ErrAlreadyAnswered = errors.New("already answered this round")
	// ErrRoundClosed is returned when a submission arrives after the round left QUESTION.
	ErrRoundClosed = errors.New("round closed for answers")
	// ErrNotAuthorized is returned when a host token does not match the one issued at creation.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrInvalidQuestionBank is returned when the quiz bank is empty or malformed.
	ErrInvalidQuestionBank = errors.New("invalid question bank")
	// ErrInvalidDisplayName is returned when a join name fails validation.
	ErrInvalidDisplayName = errors.New("invalid display name")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
)
