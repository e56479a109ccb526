package game_test

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"
	"time"

	"live-trivia/internal/domain"
	"live-trivia/internal/game"
)

const hostToken = "host-token"

func testQuestions(n int) []domain.Question {
	questions := make([]domain.Question, n)
	for i := range questions {
		questions[i] = domain.Question{
			ID:           fmt.Sprintf("q%d", i+1),
			Text:         fmt.Sprintf("Question %d", i+1),
			Options:      []string{"A", "B", "C", "D"},
			CorrectIndex: 1,
		}
	}
	return questions
}

func testSettings() domain.Settings {
	return domain.Settings{QuestionSeconds: 20, LeaderboardSeconds: 10, Mode: domain.AdvanceAutomatic}
}

func newTestSession(t *testing.T, questions int) *game.Session {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	session, err := game.NewSessionWithClock("1234", hostToken, testQuestions(questions), testSettings(), func() time.Time { return now })
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return session
}

func TestQuestionBankValidation(t *testing.T) {
	cases := []struct {
		name      string
		questions []domain.Question
	}{
		{"empty bank", nil},
		{"three options", []domain.Question{{ID: "q1", Options: []string{"A", "B", "C"}, CorrectIndex: 0}}},
		{"correct index out of range", []domain.Question{{ID: "q1", Options: []string{"A", "B", "C", "D"}, CorrectIndex: 4}}},
		{"negative correct index", []domain.Question{{ID: "q1", Options: []string{"A", "B", "C", "D"}, CorrectIndex: -1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := game.NewSession("1234", hostToken, tc.questions, testSettings()); err != domain.ErrInvalidQuestionBank {
				t.Fatalf("expected ErrInvalidQuestionBank, got %v", err)
			}
		})
	}
}

func TestTransitionPath(t *testing.T) {
	session := newTestSession(t, 2)

	if got := session.Snapshot().Status; got != domain.StatusLobby {
		t.Fatalf("expected LOBBY, got %s", got)
	}

	if _, _, err := session.Join("Alice", "🦊"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := session.Start(hostToken); err != nil {
		t.Fatalf("start: %v", err)
	}

	want := []domain.Status{
		domain.StatusQuestion,
		domain.StatusAnswerReveal,
		domain.StatusLeaderboard,
		domain.StatusQuestion, // second question
		domain.StatusAnswerReveal,
		domain.StatusLeaderboard,
		domain.StatusFinal,
	}
	for i, expected := range want {
		if got := session.Snapshot().Status; got != expected {
			t.Fatalf("step %d: expected %s, got %s", i, expected, got)
		}
		if expected == domain.StatusFinal {
			break
		}
		if err := session.Advance(hostToken); err != nil {
			t.Fatalf("advance at step %d: %v", i, err)
		}
	}
}

func TestAdvanceIsNoOpInLobbyAndFinal(t *testing.T) {
	session := newTestSession(t, 1)

	if err := session.Advance(hostToken); err != nil {
		t.Fatalf("advance in lobby should succeed as no-op, got %v", err)
	}
	if got := session.Snapshot().Status; got != domain.StatusLobby {
		t.Fatalf("lobby advance mutated status to %s", got)
	}

	mustFinish(t, session)
	if got := session.Snapshot().Status; got != domain.StatusFinal {
		t.Fatalf("expected FINAL, got %s", got)
	}
	if err := session.Advance(hostToken); err != nil {
		t.Fatalf("advance in final should succeed as no-op, got %v", err)
	}
	if got := session.Snapshot().Status; got != domain.StatusFinal {
		t.Fatalf("final advance mutated status to %s", got)
	}
}

func TestLastLeaderboardAdvanceGoesFinal(t *testing.T) {
	session := newTestSession(t, 1)
	if _, _, err := session.Join("Alice", "🦊"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := session.Start(hostToken); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, expected := range []domain.Status{domain.StatusAnswerReveal, domain.StatusLeaderboard, domain.StatusFinal} {
		if err := session.Advance(hostToken); err != nil {
			t.Fatalf("advance: %v", err)
		}
		if got := session.Snapshot().Status; got != expected {
			t.Fatalf("expected %s, got %s", expected, got)
		}
	}
}

func TestJoinRules(t *testing.T) {
	session := newTestSession(t, 1)

	id, _, err := session.Join("Alice", "🦊")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	// Same name joins back as the same player.
	again, _, err := session.Join("alice", "🐼")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if again != id {
		t.Fatalf("rejoin created a new player: %s vs %s", again, id)
	}
	if got := len(session.Snapshot().Players); got != 1 {
		t.Fatalf("expected 1 player, got %d", got)
	}

	if err := session.Start(hostToken); err != nil {
		t.Fatalf("start: %v", err)
	}

	// New names are rejected once the game started.
	if _, _, err := session.Join("Bob", "🐸"); err != domain.ErrSessionStarted {
		t.Fatalf("expected ErrSessionStarted, got %v", err)
	}
	// But a reconnecting known name still gets in, score intact.
	if _, err := session.Submit(id, 1, 1000); err != nil {
		t.Fatalf("submit: %v", err)
	}
	rejoined, snap, err := session.Join("Alice", "🦊")
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if rejoined != id {
		t.Fatalf("reconnect changed identity")
	}
	if snap.Players[id].Score == 0 {
		t.Fatalf("reconnect reset score")
	}

	if _, _, err := session.Join("X", "🐸"); err != domain.ErrInvalidDisplayName {
		t.Fatalf("expected ErrInvalidDisplayName for short name, got %v", err)
	}
}

func TestStartRules(t *testing.T) {
	session := newTestSession(t, 1)

	if err := session.Start(hostToken); err != domain.ErrNoPlayers {
		t.Fatalf("expected ErrNoPlayers, got %v", err)
	}
	if _, _, err := session.Join("Alice", "🦊"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := session.Start("wrong-token"); err != domain.ErrNotAuthorized {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := session.Start(hostToken); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := session.Start(hostToken); err != domain.ErrSessionStarted {
		t.Fatalf("expected ErrSessionStarted on second start, got %v", err)
	}
	if err := session.Advance("wrong-token"); err != domain.ErrNotAuthorized {
		t.Fatalf("expected ErrNotAuthorized on advance, got %v", err)
	}
}

func TestSubmitRules(t *testing.T) {
	session := newTestSession(t, 2)
	alice, _, _ := session.Join("Alice", "🦊")
	bob, _, _ := session.Join("Bob", "🐸")

	if _, err := session.Submit(alice, 1, 1000); err != domain.ErrRoundClosed {
		t.Fatalf("expected ErrRoundClosed before start, got %v", err)
	}
	if err := session.Start(hostToken); err != nil {
		t.Fatalf("start: %v", err)
	}

	points, err := session.Submit(alice, 1, 1000)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if points != 950 {
		t.Fatalf("expected 950 points at 1s elapsed, got %d", points)
	}

	// First write wins.
	if _, err := session.Submit(alice, 0, 2000); err != domain.ErrAlreadyAnswered {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}
	snap := session.Snapshot()
	if snap.Players[alice].Score != 950 {
		t.Fatalf("resubmission changed score: %d", snap.Players[alice].Score)
	}

	if _, err := session.Submit("nobody", 1, 1000); err != domain.ErrUnknownPlayer {
		t.Fatalf("expected ErrUnknownPlayer, got %v", err)
	}

	// Wrong answer earns nothing but is recorded.
	if points, err := session.Submit(bob, 0, 1000); err != nil || points != 0 {
		t.Fatalf("wrong answer: points=%d err=%v", points, err)
	}
	snap = session.Snapshot()
	if snap.Players[bob].Score != 0 || snap.Players[bob].CorrectCount != 0 {
		t.Fatalf("wrong answer mutated score: %+v", snap.Players[bob])
	}
	if snap.AnsweredCount() != 2 {
		t.Fatalf("expected 2 answers recorded, got %d", snap.AnsweredCount())
	}

	// A submission racing past the reveal transition is rejected.
	if err := session.Advance(hostToken); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := session.Submit(bob, 1, 1500); err != domain.ErrRoundClosed {
		t.Fatalf("expected ErrRoundClosed after reveal, got %v", err)
	}
}

func TestRevealSnapshotsRound(t *testing.T) {
	session := newTestSession(t, 2)
	alice, _, _ := session.Join("Alice", "🦊")
	bob, _, _ := session.Join("Bob", "🐸")
	if err := session.Start(hostToken); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := session.Submit(alice, 1, 1000); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// Bob never answers this round.
	if err := session.Advance(hostToken); err != nil {
		t.Fatalf("advance: %v", err)
	}

	snap := session.Snapshot()
	if snap.LastCorrectIndex != 1 {
		t.Fatalf("expected correct index 1 revealed, got %d", snap.LastCorrectIndex)
	}
	aliceAns, ok := snap.LastAnswers[alice]
	if !ok || aliceAns.OptionIndex == nil || *aliceAns.OptionIndex != 1 || aliceAns.Points != 950 {
		t.Fatalf("unexpected alice answer: %+v", aliceAns)
	}
	bobAns, ok := snap.LastAnswers[bob]
	if !ok || bobAns.OptionIndex != nil || bobAns.Points != 0 {
		t.Fatalf("expected nil-option answer for bob, got %+v", bobAns)
	}

	// Leaderboard is ranked and stays stable until the next reveal.
	if len(snap.Leaderboard) != 2 || snap.Leaderboard[0].PlayerID != alice {
		t.Fatalf("unexpected leaderboard: %+v", snap.Leaderboard)
	}
	if err := session.Advance(hostToken); err != nil { // LEADERBOARD
		t.Fatalf("advance: %v", err)
	}
	if err := session.Advance(hostToken); err != nil { // next QUESTION
		t.Fatalf("advance: %v", err)
	}
	next := session.Snapshot()
	if next.CurrentQuestionIndex != 1 || next.AnsweredCount() != 0 {
		t.Fatalf("new round not reset: index=%d answers=%d", next.CurrentQuestionIndex, next.AnsweredCount())
	}
	if !reflect.DeepEqual(next.Leaderboard, snap.Leaderboard) {
		t.Fatalf("leaderboard changed outside a reveal transition")
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	session := newTestSession(t, 3)
	alice, _, _ := session.Join("Alice", "🦊")
	bob, _, _ := session.Join("Bob", "🐸")
	carol, _, _ := session.Join("Carol", "🦉")
	if err := session.Start(hostToken); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Round 1: alice fast correct, bob slow correct, carol wrong.
	if _, err := session.Submit(alice, 1, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := session.Submit(bob, 1, 20000); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := session.Submit(carol, 0, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := session.Advance(hostToken); err != nil {
		t.Fatalf("advance: %v", err)
	}

	lb := session.Snapshot().Leaderboard
	if len(lb) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(lb))
	}
	if lb[0].PlayerID != alice || lb[0].Score != 1000 {
		t.Fatalf("expected alice leading with 1000, got %+v", lb[0])
	}
	if lb[1].PlayerID != bob || lb[1].Score != 500 {
		t.Fatalf("expected bob second with 500, got %+v", lb[1])
	}
	if lb[2].PlayerID != carol || lb[2].Score != 0 {
		t.Fatalf("expected carol last, got %+v", lb[2])
	}
}

func TestScoreMonotonicallyNonDecreasing(t *testing.T) {
	session := newTestSession(t, 3)
	alice, _, _ := session.Join("Alice", "🦊")
	if err := session.Start(hostToken); err != nil {
		t.Fatalf("start: %v", err)
	}

	last := 0
	answers := []int{1, 0, 1} // correct, wrong, correct
	for round, option := range answers {
		if _, err := session.Submit(alice, option, 5000); err != nil {
			t.Fatalf("round %d submit: %v", round, err)
		}
		score := session.Snapshot().Players[alice].Score
		if score < last {
			t.Fatalf("score decreased from %d to %d in round %d", last, score, round)
		}
		last = score
		for i := 0; i < 3; i++ {
			if err := session.Advance(hostToken); err != nil {
				t.Fatalf("advance: %v", err)
			}
		}
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	session := newTestSession(t, 1)
	alice, _, _ := session.Join("Alice", "🦊")
	if err := session.Start(hostToken); err != nil {
		t.Fatalf("start: %v", err)
	}

	snap := session.Snapshot()
	p := snap.Players[alice]
	p.Score = 9999
	snap.Players[alice] = p
	snap.Questions[0].Options[0] = "tampered"
	snap.Answers["ghost"] = domain.Answer{}

	fresh := session.Snapshot()
	if fresh.Players[alice].Score != 0 {
		t.Fatalf("snapshot aliased player state")
	}
	if fresh.Questions[0].Options[0] == "tampered" {
		t.Fatalf("snapshot aliased question options")
	}
	if fresh.AnsweredCount() != 0 {
		t.Fatalf("snapshot aliased answers map")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	session := newTestSession(t, 2)
	alice, _, _ := session.Join("Alice", "🦊")
	bob, _, _ := session.Join("Bob", "🐸")
	if err := session.Start(hostToken); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := session.Submit(alice, 1, 3000); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := session.Submit(bob, 2, 4000); err != nil {
		t.Fatalf("submit: %v", err)
	}

	snap := session.Snapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded domain.Snapshot
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	restored := game.Restore(decoded, hostToken, time.Now()).Snapshot()
	if !reflect.DeepEqual(restored.Players, snap.Players) {
		t.Fatalf("players differ after round-trip:\n%+v\n%+v", restored.Players, snap.Players)
	}
	if !reflect.DeepEqual(restored.Answers, snap.Answers) {
		t.Fatalf("answers differ after round-trip:\n%+v\n%+v", restored.Answers, snap.Answers)
	}
	if restored.CurrentQuestionIndex != snap.CurrentQuestionIndex {
		t.Fatalf("question index differs after round-trip")
	}

	// The restored session keeps working: same round still accepts an advance.
	rebuilt := game.Restore(decoded, hostToken, time.Now())
	if err := rebuilt.Advance(hostToken); err != nil {
		t.Fatalf("advance on restored session: %v", err)
	}
	if got := rebuilt.Snapshot().Status; got != domain.StatusAnswerReveal {
		t.Fatalf("expected ANSWER_REVEAL after advance, got %s", got)
	}
}

func mustFinish(t *testing.T, session *game.Session) {
	t.Helper()
	if len(session.Snapshot().Players) == 0 {
		if _, _, err := session.Join("Filler", "🤖"); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	if session.Snapshot().Status == domain.StatusLobby {
		if err := session.Start(hostToken); err != nil {
			t.Fatalf("start: %v", err)
		}
	}
	for i := 0; i < 100; i++ {
		if session.Snapshot().Status == domain.StatusFinal {
			return
		}
		if err := session.Advance(hostToken); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	t.Fatalf("session never reached FINAL")
}
