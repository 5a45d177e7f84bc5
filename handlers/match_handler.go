package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Dosada05/bracket-engine/models"
	"github.com/Dosada05/bracket-engine/services"
)

type MatchHandler struct {
	matchService  services.MatchService
	checkInWindow time.Duration
}

func NewMatchHandler(matchService services.MatchService, checkInWindow time.Duration) *MatchHandler {
	return &MatchHandler{matchService: matchService, checkInWindow: checkInWindow}
}

func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	matchID, err := intURLParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.GetMatch(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) OpenCheckIn(w http.ResponseWriter, r *http.Request) {
	matchID, err := intURLParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.OpenCheckIn(r.Context(), matchID, h.checkInWindow)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type checkInRequest struct {
	ParticipantID int `json:"participant_id"`
}

func (h *MatchHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	matchID, err := intURLParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var req checkInRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.CheckIn(r.Context(), matchID, req.ParticipantID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	h.simpleAction(w, r, h.matchService.MarkReady)
}

func (h *MatchHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.simpleAction(w, r, h.matchService.Start)
}

func (h *MatchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.simpleAction(w, r, h.matchService.Cancel)
}

type forfeitRequest struct {
	ForfeitingID int `json:"forfeiting_id"`
}

func (h *MatchHandler) Forfeit(w http.ResponseWriter, r *http.Request) {
	matchID, err := intURLParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var req forfeitRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.Forfeit(r.Context(), matchID, req.ForfeitingID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type forceCompleteRequest struct {
	Score1   int `json:"score1"`
	Score2   int `json:"score2"`
	WinnerID int `json:"winner_id"`
}

func (h *MatchHandler) ForceComplete(w http.ResponseWriter, r *http.Request) {
	matchID, err := intURLParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var req forceCompleteRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.ForceComplete(r.Context(), matchID, req.Score1, req.Score2, req.WinnerID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type rescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (h *MatchHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	matchID, err := intURLParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var req rescheduleRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.Reschedule(r.Context(), matchID, req.ScheduledAt)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) simpleAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, matchID int) (*models.Match, error)) {
	matchID, err := intURLParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := action(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
