package models

import "time"

type DisputeStatus string

const (
	DisputeOpen                 DisputeStatus = "open"
	DisputeUnderReview          DisputeStatus = "under_review"
	DisputeResolvedForSubmitter DisputeStatus = "resolved_for_submitter"
	DisputeResolvedForOpponent  DisputeStatus = "resolved_for_opponent"
	DisputeCancelled            DisputeStatus = "cancelled"
	DisputeEscalated            DisputeStatus = "escalated"
)

// IsClosed reports whether the dispute reached a final outcome.
// Escalation is not closure: an escalated dispute is still awaiting a
// ruling, just at a higher tier.
func (s DisputeStatus) IsClosed() bool {
	switch s {
	case DisputeResolvedForSubmitter, DisputeResolvedForOpponent, DisputeCancelled:
		return true
	}
	return false
}

// DisputeRecord is opened against a match and, usually, the pending
// submission on it. A ruling can override scores and winner and re-drive
// advancement.
type DisputeRecord struct {
	ID           string        `json:"id"`
	MatchID      int           `json:"match_id"`
	SubmissionID *string       `json:"submission_id,omitempty"`
	OpenedBy     int           `json:"opened_by"`
	Reason       string        `json:"reason"`
	Notes        *string       `json:"notes,omitempty"`
	Status       DisputeStatus `json:"status"`

	FinalScore1   *int `json:"final_score1,omitempty"`
	FinalScore2   *int `json:"final_score2,omitempty"`
	FinalWinnerID *int `json:"final_winner_id,omitempty"`

	OpenedAt    time.Time  `json:"opened_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`

	Evidence []Evidence `json:"evidence,omitempty"`
}

// Evidence is an attachment backing a dispute: a screenshot, a replay
// file, a stream VOD link.
type Evidence struct {
	ID        string    `json:"id"`
	DisputeID string    `json:"dispute_id"`
	Kind      string    `json:"kind"`
	URL       string    `json:"url"`
	Note      *string   `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
