package handlers

import (
	"fmt"
	"net/http"

	"github.com/Dosada05/bracket-engine/services"
	"github.com/go-chi/chi/v5"
)

// maxEvidenceSize caps a single evidence upload at 10MB.
const maxEvidenceSize = 10 << 20

type DisputeHandler struct {
	disputeService services.DisputeService
}

func NewDisputeHandler(disputeService services.DisputeService) *DisputeHandler {
	return &DisputeHandler{disputeService: disputeService}
}

type openDisputeRequest struct {
	OpenedBy int    `json:"opened_by"`
	Reason   string `json:"reason"`
}

func (h *DisputeHandler) Open(w http.ResponseWriter, r *http.Request) {
	matchID, err := intURLParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var req openDisputeRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if req.Reason == "" {
		badRequestResponse(w, r, fmt.Errorf("reason is required"))
		return
	}

	dispute, err := h.disputeService.Open(r.Context(), matchID, req.OpenedBy, req.Reason)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"dispute": dispute}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *DisputeHandler) ReopenCompleted(w http.ResponseWriter, r *http.Request) {
	matchID, err := intURLParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var req openDisputeRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if req.Reason == "" {
		badRequestResponse(w, r, fmt.Errorf("reason is required"))
		return
	}

	dispute, err := h.disputeService.ReopenCompleted(r.Context(), matchID, req.OpenedBy, req.Reason)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"dispute": dispute}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *DisputeHandler) Get(w http.ResponseWriter, r *http.Request) {
	dispute, err := h.disputeService.GetDispute(r.Context(), chi.URLParam(r, "disputeID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"dispute": dispute}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *DisputeHandler) Review(w http.ResponseWriter, r *http.Request) {
	dispute, err := h.disputeService.Review(r.Context(), chi.URLParam(r, "disputeID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"dispute": dispute}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *DisputeHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	dispute, err := h.disputeService.Escalate(r.Context(), chi.URLParam(r, "disputeID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"dispute": dispute}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type resolveDisputeRequest struct {
	Score1   int     `json:"score1"`
	Score2   int     `json:"score2"`
	WinnerID int     `json:"winner_id"`
	Notes    *string `json:"notes,omitempty"`
}

func (h *DisputeHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveDisputeRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	dispute, err := h.disputeService.Resolve(r.Context(), chi.URLParam(r, "disputeID"), services.DisputeRuling{
		Score1:   req.Score1,
		Score2:   req.Score2,
		WinnerID: req.WinnerID,
		Notes:    req.Notes,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"dispute": dispute}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *DisputeHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	dispute, err := h.disputeService.Withdraw(r.Context(), chi.URLParam(r, "disputeID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"dispute": dispute}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// AttachEvidence accepts multipart form data with an optional "file"
// part; form fields "kind", "url" and "note" describe the attachment.
func (h *DisputeHandler) AttachEvidence(w http.ResponseWriter, r *http.Request) {
	disputeID := chi.URLParam(r, "disputeID")

	if err := r.ParseMultipartForm(maxEvidenceSize); err != nil {
		badRequestResponse(w, r, fmt.Errorf("invalid multipart form: %w", err))
		return
	}

	input := services.EvidenceInput{
		Kind: r.FormValue("kind"),
		URL:  r.FormValue("url"),
	}
	if note := r.FormValue("note"); note != "" {
		input.Note = &note
	}

	file, header, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
		input.Body = file
		input.FileName = header.Filename
		input.ContentType = header.Header.Get("Content-Type")
	} else if err != http.ErrMissingFile {
		badRequestResponse(w, r, err)
		return
	}
	if input.Body == nil && input.URL == "" {
		badRequestResponse(w, r, fmt.Errorf("either a file or a url is required"))
		return
	}

	evidence, err := h.disputeService.AttachEvidence(r.Context(), disputeID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"evidence": evidence}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
