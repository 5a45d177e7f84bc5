package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Dosada05/bracket-engine/models"
	"github.com/Dosada05/bracket-engine/services"
	"github.com/go-chi/chi/v5"
)

type SubmissionHandler struct {
	submissionService services.SubmissionService
}

func NewSubmissionHandler(submissionService services.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: submissionService}
}

type submitResultRequest struct {
	SubmitterID int             `json:"submitter_id"`
	Score1      int             `json:"score1"`
	Score2      int             `json:"score2"`
	WinnerID    int             `json:"winner_id"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	matchID, err := intURLParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var req submitResultRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	submission, err := h.submissionService.Submit(r.Context(), matchID, req.SubmitterID, models.ResultPayload{
		Score1:   req.Score1,
		Score2:   req.Score2,
		WinnerID: req.WinnerID,
		Raw:      req.Raw,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"submission": submission}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type confirmRequest struct {
	ConfirmerID int  `json:"confirmer_id"`
	Organizer   bool `json:"organizer,omitempty"`
}

func (h *SubmissionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	submissionID := chi.URLParam(r, "submissionID")
	var req confirmRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.submissionService.Confirm(r.Context(), submissionID, req.ConfirmerID, req.Organizer)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	submissionID := chi.URLParam(r, "submissionID")

	submission, err := h.submissionService.GetSubmission(r.Context(), submissionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"submission": submission}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *SubmissionHandler) GetPendingForMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := intURLParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	submission, err := h.submissionService.GetPendingForMatch(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"submission": submission}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
