package models

import "time"

type MatchState string

const (
	MatchScheduled     MatchState = "scheduled"
	MatchCheckIn       MatchState = "check_in"
	MatchReady         MatchState = "ready"
	MatchLive          MatchState = "live"
	MatchPendingResult MatchState = "pending_result"
	MatchCompleted     MatchState = "completed"
	MatchDisputed      MatchState = "disputed"
	MatchForfeit       MatchState = "forfeit"
	MatchCancelled     MatchState = "cancelled"
)

// IsTerminal reports whether the state may never be left again.
// FORFEIT is final for gameplay but is not listed here: a forfeit can
// still be corrected through a dispute ruling.
func (s MatchState) IsTerminal() bool {
	return s == MatchCompleted || s == MatchCancelled
}

// Match is the playable contest bound to exactly one bracket node.
// Bye nodes never get a match.
type Match struct {
	ID           int `json:"id"`
	BracketID    int `json:"bracket_id"`
	NodePosition int `json:"node_position"`
	Round        int `json:"round"`
	MatchNumber  int `json:"match_number"`

	Participant1ID int `json:"participant1_id"`
	Participant2ID int `json:"participant2_id"`

	Score1   *int `json:"score1,omitempty"`
	Score2   *int `json:"score2,omitempty"`
	WinnerID *int `json:"winner_id,omitempty"`
	LoserID  *int `json:"loser_id,omitempty"`

	State MatchState `json:"state"`

	P1CheckedIn bool `json:"p1_checked_in"`
	P2CheckedIn bool `json:"p2_checked_in"`

	ScheduledAt     time.Time  `json:"scheduled_at"`
	CheckInDeadline *time.Time `json:"check_in_deadline,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// HasParticipant reports whether the participant plays in this match.
func (m *Match) HasParticipant(participantID int) bool {
	return m.Participant1ID == participantID || m.Participant2ID == participantID
}

// OpponentOf returns the other participant's ID, or 0 when the given
// participant is not in the match.
func (m *Match) OpponentOf(participantID int) int {
	switch participantID {
	case m.Participant1ID:
		return m.Participant2ID
	case m.Participant2ID:
		return m.Participant1ID
	}
	return 0
}
