package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"live-trivia/internal/app"
	"live-trivia/internal/domain"
	"live-trivia/internal/infra/memory"
)

func TestPollingFlowOverHTTP(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	// List quizzes.
	var quizzes []domain.QuizSummary
	getJSON(t, server.URL+"/api/quizzes", &quizzes)
	if len(quizzes) != 1 || quizzes[0].ID != "quiz-1" {
		t.Fatalf("unexpected quiz list: %+v", quizzes)
	}

	// Create a session.
	var created struct {
		Code      string `json:"code"`
		HostToken string `json:"hostToken"`
	}
	postJSON(t, server.URL+"/api/games", map[string]any{
		"quizId":          "quiz-1",
		"questionSeconds": 20,
		"mode":            "automatic",
	}, http.StatusCreated, &created)
	if created.Code == "" || created.HostToken == "" {
		t.Fatalf("missing code or host token: %+v", created)
	}

	// Two players join.
	var joined struct {
		PlayerID string          `json:"playerId"`
		State    domain.Snapshot `json:"state"`
	}
	postJSON(t, server.URL+"/api/games/"+created.Code+"/join", map[string]string{"name": "Alice", "avatar": "🦊"}, http.StatusOK, &joined)
	alice := joined.PlayerID
	postJSON(t, server.URL+"/api/games/"+created.Code+"/join", map[string]string{"name": "Bob", "avatar": "🐸"}, http.StatusOK, &joined)
	bob := joined.PlayerID
	if len(joined.State.Players) != 2 {
		t.Fatalf("expected 2 players, got %d", len(joined.State.Players))
	}

	// Start and answer.
	postJSON(t, server.URL+"/api/games/"+created.Code+"/start", map[string]string{"hostToken": created.HostToken}, http.StatusOK, nil)

	var answered struct {
		Points int `json:"points"`
	}
	postJSON(t, server.URL+"/api/games/"+created.Code+"/answers", map[string]any{
		"playerId": alice, "optionIndex": 1, "elapsedMs": 1000,
	}, http.StatusOK, &answered)
	if answered.Points != 950 {
		t.Fatalf("expected 950 points, got %d", answered.Points)
	}

	// Duplicate submission is rejected.
	resp := postRaw(t, server.URL+"/api/games/"+created.Code+"/answers", map[string]any{
		"playerId": alice, "optionIndex": 0, "elapsedMs": 2000,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate answer, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	postJSON(t, server.URL+"/api/games/"+created.Code+"/answers", map[string]any{
		"playerId": bob, "optionIndex": 0, "elapsedMs": 1500,
	}, http.StatusOK, nil)

	// Advance to the reveal and poll the snapshot.
	postJSON(t, server.URL+"/api/games/"+created.Code+"/advance", map[string]string{"hostToken": created.HostToken}, http.StatusOK, nil)

	var snap domain.Snapshot
	getJSON(t, server.URL+"/api/games/"+created.Code, &snap)
	if snap.Status != domain.StatusAnswerReveal {
		t.Fatalf("expected ANSWER_REVEAL, got %s", snap.Status)
	}
	if snap.LastCorrectIndex != 1 {
		t.Fatalf("expected revealed correct index 1, got %d", snap.LastCorrectIndex)
	}
	if len(snap.Leaderboard) != 2 || snap.Leaderboard[0].PlayerID != alice {
		t.Fatalf("unexpected leaderboard: %+v", snap.Leaderboard)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/games/0000")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown code, got %d", resp.StatusCode)
	}

	var created struct {
		Code      string `json:"code"`
		HostToken string `json:"hostToken"`
	}
	postJSON(t, server.URL+"/api/games", map[string]any{"quizId": "quiz-1"}, http.StatusCreated, &created)

	resp = postRaw(t, server.URL+"/api/games/"+created.Code+"/start", map[string]string{"hostToken": "wrong"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for bad host token, got %d", resp.StatusCode)
	}

	resp = postRaw(t, server.URL+"/api/games/"+created.Code+"/join", map[string]string{"name": "A", "avatar": "🦊"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid name, got %d", resp.StatusCode)
	}
}

func TestWatchPushesSnapshots(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	var created struct {
		Code      string `json:"code"`
		HostToken string `json:"hostToken"`
	}
	postJSON(t, server.URL+"/api/games", map[string]any{"quizId": "quiz-1"}, http.StatusCreated, &created)

	u := "ws" + server.URL[len("http"):] + "/api/games/" + created.Code + "/watch"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Initial snapshot arrives immediately.
	var snap domain.Snapshot
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if snap.Status != domain.StatusLobby {
		t.Fatalf("expected LOBBY snapshot, got %s", snap.Status)
	}

	// A join is pushed to the watcher.
	postJSON(t, server.URL+"/api/games/"+created.Code+"/join", map[string]string{"name": "Alice", "avatar": "🦊"}, http.StatusOK, nil)
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read join snapshot: %v", err)
	}
	if len(snap.Players) != 1 {
		t.Fatalf("expected pushed join, got %+v", snap.Players)
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.NewSessionStore()
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {
			ID:   "quiz-1",
			Name: "Test Quiz",
			Questions: []domain.Question{
				{ID: "q1", Text: "Pick one", Options: []string{"A", "B", "C", "D"}, CorrectIndex: 1},
				{ID: "q2", Text: "Pick again", Options: []string{"A", "B", "C", "D"}, CorrectIndex: 2},
			},
		},
	}), time.Minute)
	service := app.NewGameService(store, quizRepo, zerolog.Nop())
	handler := NewHandler(service, zerolog.Nop())

	mux := http.NewServeMux()
	handler.Register(mux)
	return httptest.NewServer(mux)
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func postJSON(t *testing.T, url string, body any, wantStatus int, out any) {
	t.Helper()
	resp := postRaw(t, url, body)
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("post %s: status %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func postRaw(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}
