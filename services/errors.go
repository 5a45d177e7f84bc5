package services

import "errors"

// Sentinel errors shared across services and the HTTP error mapper.
// Auto-confirm timing out is a designed success path and has no error
// here; the only loud failure class is a violated invariant on persisted
// state, which is never silently repaired.
var (
	// Validation (rejected before any mutation)
	ErrInvalidParticipantCount = errors.New("participant count invalid for the requested format")
	ErrSeedingInvalid          = errors.New("seeding configuration is invalid")
	ErrInvalidResultPayload    = errors.New("result payload does not match the match's result schema")
	ErrUnsupportedFormat       = errors.New("unsupported bracket format")

	// State
	ErrInvalidTransition    = errors.New("transition not permitted from the current match state")
	ErrMatchTerminal        = errors.New("match is in a terminal state")
	ErrNoPendingSubmission  = errors.New("match has no pending result submission")
	ErrNotOpponent          = errors.New("confirmer is neither the opponent nor an organizer")
	ErrMatchNotDisputable   = errors.New("match cannot be disputed in its current state")
	ErrDisputeClosed        = errors.New("dispute has already been closed")
	ErrSwissRoundIncomplete = errors.New("current swiss round has unfinished matches")
	ErrMatchNotAdvanceable  = errors.New("match must be completed with a winner before advancement")

	// Consistency
	ErrBracketFinalized      = errors.New("bracket is finalized; structure is immutable")
	ErrWinnerNotInMatch      = errors.New("winner is not a participant of this match")
	ErrConsistencyViolation  = errors.New("bracket consistency violation detected")
	ErrOverrideNotApplicable = errors.New("override can no longer be applied: downstream matches have progressed")

	// Lookup
	ErrBracketNotFound    = errors.New("bracket not found")
	ErrMatchNotFound      = errors.New("match not found")
	ErrSubmissionNotFound = errors.New("result submission not found")
	ErrDisputeNotFound    = errors.New("dispute not found")
)
