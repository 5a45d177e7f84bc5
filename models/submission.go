package models

import (
	"encoding/json"
	"time"
)

type SubmissionStatus string

const (
	SubmissionPending       SubmissionStatus = "pending"
	SubmissionConfirmed     SubmissionStatus = "confirmed"
	SubmissionAutoConfirmed SubmissionStatus = "auto_confirmed"
	SubmissionDisputed      SubmissionStatus = "disputed"
	SubmissionFinalized     SubmissionStatus = "finalized"
	SubmissionRejected      SubmissionStatus = "rejected"
)

// ResultPayload is the claim a participant submits about a match outcome.
// Scores are non-negative; WinnerID must be one of the match participants.
type ResultPayload struct {
	Score1   int             `json:"score1"`
	Score2   int             `json:"score2"`
	WinnerID int             `json:"winner_id"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// ResultSubmission is one party's claim about a match outcome. Opposing
// parties may each submit; exactly one submission becomes authoritative.
type ResultSubmission struct {
	ID          string           `json:"id"`
	MatchID     int              `json:"match_id"`
	SubmitterID int              `json:"submitter_id"`
	Payload     ResultPayload    `json:"payload"`
	Status      SubmissionStatus `json:"status"`

	AutoConfirmDeadline time.Time `json:"auto_confirm_deadline"`
	CreatedAt           time.Time `json:"created_at"`
}
