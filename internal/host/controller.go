// Package host implements the client-side half of the synchronization
// protocol: the host polls the authoritative snapshot, derives the countdown
// from the server-stamped question start time, and drives advance calls with
// an at-most-once dispatch guard per (status, question index).
package host

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"live-trivia/internal/domain"
)

// GameAPI is the slice of the game API the controller needs.
type GameAPI interface {
	GetState(ctx context.Context, code string) (domain.Snapshot, error)
	Advance(ctx context.Context, code, hostToken string) error
}

// Config tunes the controller's timers.
type Config struct {
	Code      string
	HostToken string
	// PollInterval is how often the snapshot is refreshed.
	PollInterval time.Duration
	// GraceDelay is the pause before advancing once every player has
	// answered, so the transition isn't jarringly instantaneous.
	GraceDelay time.Duration
	// RevealDwell is how long ANSWER_REVEAL stays up in automatic mode.
	RevealDwell time.Duration
}

const (
	DefaultPollInterval = 1500 * time.Millisecond
	DefaultGraceDelay   = 1500 * time.Millisecond
	DefaultRevealDwell  = 5 * time.Second
)

// advanceKey identifies one server-side state; the guard ensures at most one
// advance dispatch per key no matter how many timers fire for it.
type advanceKey struct {
	Status   domain.Status
	Question int
}

// Controller runs the host's timers against polled snapshots. It is driven by
// a single goroutine; poll responses replace the local view wholesale.
type Controller struct {
	api   GameAPI
	clock clockwork.Clock
	cfg   Config
	log   zerolog.Logger

	snap          domain.Snapshot
	hasSnap       bool
	enteredAt     time.Time // local time the current (status, question) was first observed
	allAnsweredAt time.Time // local time every player was first seen answered; zero otherwise

	dispatched    bool
	dispatchedKey advanceKey
}

func NewController(api GameAPI, cfg Config, log zerolog.Logger) *Controller {
	return NewControllerWithClock(api, cfg, log, clockwork.NewRealClock())
}

// NewControllerWithClock allows deterministic timers in tests.
func NewControllerWithClock(api GameAPI, cfg Config, log zerolog.Logger, clock clockwork.Clock) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.GraceDelay <= 0 {
		cfg.GraceDelay = DefaultGraceDelay
	}
	if cfg.RevealDwell <= 0 {
		cfg.RevealDwell = DefaultRevealDwell
	}
	return &Controller{api: api, cfg: cfg, log: log, clock: clock}
}

// Run polls and evaluates timers until the session reaches FINAL or ctx is
// canceled. A failed poll keeps the previous snapshot and retries on the next
// interval.
func (c *Controller) Run(ctx context.Context) error {
	c.poll(ctx)

	pollTicker := c.clock.NewTicker(c.cfg.PollInterval)
	defer pollTicker.Stop()
	countdown := c.clock.NewTicker(time.Second)
	defer countdown.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pollTicker.Chan():
			c.poll(ctx)
			c.evaluate(ctx)
		case <-countdown.Chan():
			c.evaluate(ctx)
		}
		if c.hasSnap && c.snap.Status == domain.StatusFinal {
			c.log.Info().Str("code", c.cfg.Code).Msg("session finished")
			return nil
		}
	}
}

// Remaining derives the countdown from the server-stamped start time, so the
// display stays correct across missed polls and local clock jitter.
func Remaining(now time.Time, questionStartMs int64, limitSeconds int) int {
	if questionStartMs <= 0 {
		return limitSeconds
	}
	elapsedMs := now.UnixMilli() - questionStartMs
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	remaining := limitSeconds - int(elapsedMs/1000)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (c *Controller) poll(ctx context.Context) {
	snap, err := c.api.GetState(ctx, c.cfg.Code)
	if err != nil {
		// Skip this poll; the previous snapshot stays authoritative.
		c.log.Debug().Err(err).Str("code", c.cfg.Code).Msg("poll failed")
		return
	}
	c.apply(snap)
}

// apply replaces the local view with the polled snapshot and reconciles the
// dispatch guard: it resets only once the server confirms a different
// (status, question) than the one last dispatched.
func (c *Controller) apply(snap domain.Snapshot) {
	key := advanceKey{Status: snap.Status, Question: snap.CurrentQuestionIndex}
	if !c.hasSnap || key != (advanceKey{Status: c.snap.Status, Question: c.snap.CurrentQuestionIndex}) {
		c.enteredAt = c.clock.Now()
		c.allAnsweredAt = time.Time{}
	}
	if c.dispatched && key != c.dispatchedKey {
		c.dispatched = false
	}
	c.snap = snap
	c.hasSnap = true
}

// evaluate decides, from the current snapshot and local clock, whether the
// host should request an advance now.
func (c *Controller) evaluate(ctx context.Context) {
	if !c.hasSnap {
		return
	}
	now := c.clock.Now()
	automatic := c.snap.Mode == domain.AdvanceAutomatic

	switch c.snap.Status {
	case domain.StatusQuestion:
		if Remaining(now, c.snap.QuestionStartMs, c.snap.QuestionSeconds) == 0 {
			c.dispatch(ctx, "question timeout")
			return
		}
		if automatic && c.snap.AllAnswered() {
			if c.allAnsweredAt.IsZero() {
				c.allAnsweredAt = now
				return
			}
			if now.Sub(c.allAnsweredAt) >= c.cfg.GraceDelay {
				c.dispatch(ctx, "all answered")
			}
		}
	case domain.StatusAnswerReveal:
		if automatic && now.Sub(c.enteredAt) >= c.cfg.RevealDwell {
			c.dispatch(ctx, "reveal dwell elapsed")
		}
	case domain.StatusLeaderboard:
		dwell := time.Duration(c.snap.LeaderboardSeconds) * time.Second
		if automatic && now.Sub(c.enteredAt) >= dwell {
			c.dispatch(ctx, "leaderboard dwell elapsed")
		}
	}
}

// dispatch performs at most one advance per (status, question). On transport
// failure the guard is cleared immediately so the next tick can retry;
// otherwise it holds until a poll confirms the server moved on.
func (c *Controller) dispatch(ctx context.Context, reason string) {
	key := advanceKey{Status: c.snap.Status, Question: c.snap.CurrentQuestionIndex}
	if c.dispatched && c.dispatchedKey == key {
		return
	}
	c.dispatched = true
	c.dispatchedKey = key

	if err := c.api.Advance(ctx, c.cfg.Code, c.cfg.HostToken); err != nil {
		c.dispatched = false
		c.log.Warn().Err(err).Str("code", c.cfg.Code).Str("reason", reason).Msg("advance failed, will retry")
		return
	}
	c.log.Info().Str("code", c.cfg.Code).Str("reason", reason).
		Str("from", string(key.Status)).Int("question", key.Question).
		Msg("advance dispatched")
}
