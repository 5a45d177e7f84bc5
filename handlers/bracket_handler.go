package handlers

import (
	"net/http"
	"strings"

	"github.com/Dosada05/bracket-engine/brackets"
	"github.com/Dosada05/bracket-engine/models"
	"github.com/Dosada05/bracket-engine/services"
)

type BracketHandler struct {
	bracketService services.BracketService
}

func NewBracketHandler(bracketService services.BracketService) *BracketHandler {
	return &BracketHandler{bracketService: bracketService}
}

type generateBracketRequest struct {
	TournamentID    int                   `json:"tournament_id"`
	Format          models.BracketFormat  `json:"format"`
	SeedingMethod   models.SeedingMethod  `json:"seeding_method"`
	RandomSeed      int64                 `json:"random_seed,omitempty"`
	ManualSlots     map[int]int           `json:"manual_slots,omitempty"`
	MaxParticipants int                   `json:"max_participants,omitempty"`
	Participants    []*models.Participant `json:"participants"`
	GrandFinalReset bool                  `json:"grand_final_reset,omitempty"`
	ThirdPlaceMatch bool                  `json:"third_place_match,omitempty"`
}

func (h *BracketHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateBracketRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	bracket, err := h.bracketService.GenerateBracket(r.Context(), services.GenerateBracketInput{
		TournamentID: req.TournamentID,
		Format:       req.Format,
		Seeding: brackets.SeedingOptions{
			Method:          req.SeedingMethod,
			RandomSeed:      req.RandomSeed,
			ManualSlots:     req.ManualSlots,
			MaxParticipants: req.MaxParticipants,
		},
		Participants:    req.Participants,
		GrandFinalReset: req.GrandFinalReset,
		ThirdPlaceMatch: req.ThirdPlaceMatch,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"bracket": bracket}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *BracketHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	bracketID, err := intURLParam(r, "bracketID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	snapshot, err := h.bracketService.GetSnapshot(r.Context(), bracketID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, snapshot, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *BracketHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	bracketID, err := intURLParam(r, "bracketID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.bracketService.FinalizeBracket(r.Context(), bracketID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"finalized": true}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *BracketHandler) NextSwissRound(w http.ResponseWriter, r *http.Request) {
	bracketID, err := intURLParam(r, "bracketID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	matches, err := h.bracketService.GenerateNextSwissRound(r.Context(), bracketID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *BracketHandler) Standings(w http.ResponseWriter, r *http.Request) {
	bracketID, err := intURLParam(r, "bracketID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var order brackets.TiebreakerOrder
	if raw := r.URL.Query().Get("tiebreakers"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			order = append(order, brackets.Tiebreaker(strings.TrimSpace(name)))
		}
	}

	standings, err := h.bracketService.Standings(r.Context(), bracketID, order)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"standings": standings}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *BracketHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	bracketID, err := intURLParam(r, "bracketID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.bracketService.CancelBracket(r.Context(), bracketID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"cancelled": true}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
