package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/felipefinhane/poker-ranking/internal/alloc"
	"github.com/felipefinhane/poker-ranking/internal/commit"
	"github.com/felipefinhane/poker-ranking/internal/db"
	"github.com/felipefinhane/poker-ranking/internal/guard"
	"github.com/felipefinhane/poker-ranking/internal/wizard"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		a.log.Warn("Health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Public handlers
func (a *API) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	list, err := a.store.ListParticipants(r.Context())
	if err != nil {
		a.log.Error("Failed to list participants", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list participants")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rows": list})
}

func (a *API) handleRanking(w http.ResponseWriter, r *http.Request) {
	tid, ok := tournamentParam(w, r)
	if !ok {
		return
	}
	rows, err := a.store.Ranking(r.Context(), tid)
	if err != nil {
		a.log.Error("Failed to load ranking", zap.String("tournament_id", tid), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load ranking")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rows": rows})
}

func (a *API) handleListMatches(w http.ResponseWriter, r *http.Request) {
	tid, ok := tournamentParam(w, r)
	if !ok {
		return
	}
	rows, err := a.store.ListMatches(r.Context(), tid)
	if err != nil {
		a.log.Error("Failed to list matches", zap.String("tournament_id", tid), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rows": rows})
}

func (a *API) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}
	m, err := a.store.GetMatch(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "match not found")
		return
	}
	if err != nil {
		a.log.Error("Failed to load match", zap.String("match_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load match")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"match": m})
}

func tournamentParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	tid := r.URL.Query().Get("tournament_id")
	if tid == "" {
		writeError(w, http.StatusBadRequest, "tournament_id is required")
		return "", false
	}
	if _, err := uuid.Parse(tid); err != nil {
		writeError(w, http.StatusBadRequest, "invalid tournament_id")
		return "", false
	}
	return tid, true
}

type createMatchRequest struct {
	RequestID    string                   `json:"request_id"`
	TournamentID string                   `json:"tournament_id"`
	PlayedAt     *time.Time               `json:"played_at"`
	Participants []createMatchParticipant `json:"participants"`
}

type createMatchParticipant struct {
	PlayerID  string `json:"player_id"`
	Position  int    `json:"position"`
	Knockouts int    `json:"knockouts"`
}

func (req *createMatchRequest) rows() []alloc.Row {
	rows := make([]alloc.Row, 0, len(req.Participants))
	for _, p := range req.Participants {
		rows = append(rows, alloc.Row{Position: p.Position, ParticipantID: p.PlayerID, Credits: p.Knockouts})
	}
	alloc.SortRows(rows)
	return rows
}

// Protected handlers
func (a *API) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := uuid.Parse(req.RequestID); err != nil {
		writeError(w, http.StatusBadRequest, "request_id must be a UUID")
		return
	}
	if _, err := uuid.Parse(req.TournamentID); err != nil {
		writeError(w, http.StatusBadRequest, "tournament_id must be a UUID")
		return
	}

	scope := guard.Scope{ContextID: "web:" + claims.UserID, Kind: guard.ScopePrivate}
	ok, err := a.authz.CanStartEntry(r.Context(), claims.UserID, scope, req.TournamentID)
	if err != nil {
		a.log.Error("Failed to check permission", zap.String("actor_id", claims.UserID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "failed to check permission")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	rows := req.rows()
	if err := alloc.ValidateRows(rows); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := a.store.ListParticipants(r.Context())
	if err != nil {
		a.log.Error("Failed to list participants", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list participants")
		return
	}
	if id, ok := unknownPlayer(list, rows); ok {
		writeError(w, http.StatusBadRequest, "unknown player "+id)
		return
	}

	playedAt := a.now()
	if req.PlayedAt != nil && !req.PlayedAt.IsZero() {
		playedAt = *req.PlayedAt
	}

	matchID, err := a.store.CreateMatchWithParticipants(r.Context(), req.TournamentID, playedAt, req.RequestID, rows)
	switch {
	case errors.Is(err, commit.ErrDuplicate):
		a.observeCommit("duplicate")
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate", "match_id": matchID})
	case err != nil:
		a.observeCommit("failed")
		a.log.Error("Failed to create match",
			zap.String("request_id", req.RequestID),
			zap.String("tournament_id", req.TournamentID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to create match")
	default:
		a.observeCommit("created")
		a.log.Info("Match created from web",
			zap.String("match_id", matchID),
			zap.String("actor_id", claims.UserID),
		)
		writeJSON(w, http.StatusCreated, map[string]string{"status": "created", "match_id": matchID})
	}
}

func unknownPlayer(list []wizard.Participant, rows []alloc.Row) (string, bool) {
	known := make(map[string]bool, len(list))
	for _, p := range list {
		known[p.ID] = true
	}
	for _, row := range rows {
		if !known[row.ParticipantID] {
			return row.ParticipantID, true
		}
	}
	return "", false
}

func (a *API) observeCommit(outcome string) {
	if a.metrics != nil {
		a.metrics.ObserveCommit(outcome)
	}
}
