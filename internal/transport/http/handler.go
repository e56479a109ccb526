package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"live-trivia/internal/app"
	"live-trivia/internal/domain"
)

// Handler exposes the polling surface of the game service: every state
// transition is a plain request/response, and clients converge by polling
// GET /api/games/{code} and replacing their view with each snapshot.
type Handler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewHandler(service *app.GameService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register wires all routes onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/quizzes", h.listQuizzes)
	mux.HandleFunc("POST /api/games", h.createSession)
	mux.HandleFunc("GET /api/games/{code}", h.getState)
	mux.HandleFunc("POST /api/games/{code}/join", h.join)
	mux.HandleFunc("POST /api/games/{code}/start", h.start)
	mux.HandleFunc("POST /api/games/{code}/answers", h.submitAnswer)
	mux.HandleFunc("POST /api/games/{code}/advance", h.advance)
	mux.HandleFunc("GET /api/games/{code}/watch", h.watch)
}

type createSessionRequest struct {
	QuizID             string             `json:"quizId"`
	QuestionSeconds    int                `json:"questionSeconds"`
	LeaderboardSeconds int                `json:"leaderboardSeconds"`
	Mode               domain.AdvanceMode `json:"mode"`
}

type createSessionResponse struct {
	Code      string `json:"code"`
	HostToken string `json:"hostToken"`
}

type joinRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type joinResponse struct {
	PlayerID string          `json:"playerId"`
	State    domain.Snapshot `json:"state"`
}

type hostRequest struct {
	HostToken string `json:"hostToken"`
}

type answerRequest struct {
	PlayerID    string `json:"playerId"`
	OptionIndex int    `json:"optionIndex"`
	ElapsedMs   int64  `json:"elapsedMs"`
}

type answerResponse struct {
	Points int `json:"points"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) listQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.service.ListQuizzes(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, quizzes)
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	code, hostToken, err := h.service.CreateSession(r.Context(), req.QuizID, domain.Settings{
		QuestionSeconds:    req.QuestionSeconds,
		LeaderboardSeconds: req.LeaderboardSeconds,
		Mode:               req.Mode,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, createSessionResponse{Code: code, HostToken: hostToken})
}

func (h *Handler) getState(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetState(r.Context(), r.PathValue("code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !h.decode(w, r, &req) {
		return
	}
	playerID, snap, err := h.service.Join(r.Context(), r.PathValue("code"), req.Name, req.Avatar)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, joinResponse{PlayerID: playerID, State: snap})
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req hostRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.Start(r.Context(), r.PathValue("code"), req.HostToken); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !h.decode(w, r, &req) {
		return
	}
	points, err := h.service.SubmitAnswer(r.Context(), r.PathValue("code"), req.PlayerID, req.OptionIndex, req.ElapsedMs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, answerResponse{Points: points})
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request) {
	var req hostRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.Advance(r.Context(), r.PathValue("code"), req.HostToken); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// watch upgrades to a websocket and pushes the full snapshot after every
// session mutation. Push is an optimization over polling; the payload is the
// same whole snapshot and clients still replace their view wholesale.
func (h *Handler) watch(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	updates, cancel, err := h.service.Watch(r.Context(), code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("code", code).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Reads are discarded; the loop only notices a closed connection.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				h.log.Debug().Err(err).Str("code", code).Msg("ws write failed")
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Warn().Err(err).Msg("write response failed")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidQuestionBank), errors.Is(err, domain.ErrInvalidDisplayName):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionStarted),
		errors.Is(err, domain.ErrNoPlayers),
		errors.Is(err, domain.ErrUnknownPlayer),
		errors.Is(err, domain.ErrAlreadyAnswered),
		errors.Is(err, domain.ErrRoundClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
