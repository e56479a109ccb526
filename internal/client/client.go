package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"live-trivia/internal/domain"
)

// Client talks to the game API over HTTP. It backs the automated host
// controller and mirrors the transport layer's request shapes.
type Client struct {
	base string
	http *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) ListQuizzes(ctx context.Context) ([]domain.QuizSummary, error) {
	var quizzes []domain.QuizSummary
	if err := c.getJSON(ctx, "/api/quizzes", &quizzes); err != nil {
		return nil, err
	}
	return quizzes, nil
}

func (c *Client) CreateSession(ctx context.Context, quizID string, settings domain.Settings) (code, hostToken string, err error) {
	req := map[string]any{
		"quizId":             quizID,
		"questionSeconds":    settings.QuestionSeconds,
		"leaderboardSeconds": settings.LeaderboardSeconds,
		"mode":               settings.Mode,
	}
	var resp struct {
		Code      string `json:"code"`
		HostToken string `json:"hostToken"`
	}
	if err := c.postJSON(ctx, "/api/games", req, &resp); err != nil {
		return "", "", err
	}
	return resp.Code, resp.HostToken, nil
}

func (c *Client) Join(ctx context.Context, code, name, avatar string) (string, domain.Snapshot, error) {
	req := map[string]string{"name": name, "avatar": avatar}
	var resp struct {
		PlayerID string          `json:"playerId"`
		State    domain.Snapshot `json:"state"`
	}
	if err := c.postJSON(ctx, "/api/games/"+code+"/join", req, &resp); err != nil {
		return "", domain.Snapshot{}, err
	}
	return resp.PlayerID, resp.State, nil
}

func (c *Client) GetState(ctx context.Context, code string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := c.getJSON(ctx, "/api/games/"+code, &snap); err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

func (c *Client) Start(ctx context.Context, code, hostToken string) error {
	return c.postJSON(ctx, "/api/games/"+code+"/start", map[string]string{"hostToken": hostToken}, nil)
}

func (c *Client) SubmitAnswer(ctx context.Context, code, playerID string, optionIndex int, elapsedMs int64) (int, error) {
	req := map[string]any{"playerId": playerID, "optionIndex": optionIndex, "elapsedMs": elapsedMs}
	var resp struct {
		Points int `json:"points"`
	}
	if err := c.postJSON(ctx, "/api/games/"+code+"/answers", req, &resp); err != nil {
		return 0, err
	}
	return resp.Points, nil
}

func (c *Client) Advance(ctx context.Context, code, hostToken string) error {
	return c.postJSON(ctx, "/api/games/"+code+"/advance", map[string]string{"hostToken": hostToken}, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusNotFound {
			return domain.ErrSessionNotFound
		}
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("api: %s", apiErr.Error)
		}
		return fmt.Errorf("api: unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
