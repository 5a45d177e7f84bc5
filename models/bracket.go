package models

import "time"

type BracketFormat string

const (
	FormatSingleElimination BracketFormat = "single_elimination"
	FormatDoubleElimination BracketFormat = "double_elimination"
	FormatRoundRobin        BracketFormat = "round_robin"
	FormatSwiss             BracketFormat = "swiss"
)

type SeedingMethod string

const (
	SeedingSlotOrder SeedingMethod = "slot_order"
	SeedingRandom    SeedingMethod = "random"
	SeedingRanked    SeedingMethod = "ranked"
	SeedingManual    SeedingMethod = "manual"
)

// Bracket is one stage of a tournament: the format, the node arena and
// the derived totals. Finalized locks the structure; after that only
// results move, never the tree.
type Bracket struct {
	ID           int           `json:"id"`
	TournamentID int           `json:"tournament_id"`
	Format       BracketFormat `json:"format"`
	Seeding      SeedingMethod `json:"seeding"`
	TotalRounds  int           `json:"total_rounds"`
	TotalMatches int           `json:"total_matches"`
	Finalized    bool          `json:"finalized"`
	CreatedAt    time.Time     `json:"created_at"`
}

// NodeBracketType distinguishes the sub-bracket a node belongs to.
type NodeBracketType string

const (
	BracketTypeMain       NodeBracketType = "main"
	BracketTypeLosers     NodeBracketType = "losers"
	BracketTypeGrandFinal NodeBracketType = "grand_final"
	BracketTypeThirdPlace NodeBracketType = "third_place"
)

// BracketNode is one slot pair in the bracket tree. Positions are
// 1-based and unique per bracket; parent, child and loser links all
// reference positions within the same bracket. Participant names are
// denormalized so bracket views render without joins.
type BracketNode struct {
	ID          int             `json:"id"`
	BracketID   int             `json:"bracket_id"`
	Position    int             `json:"position"`
	Round       int             `json:"round"`
	MatchNumber int             `json:"match_number"`
	BracketType NodeBracketType `json:"bracket_type"`

	Participant1ID   *int    `json:"participant1_id,omitempty"`
	Participant2ID   *int    `json:"participant2_id,omitempty"`
	Participant1Name *string `json:"participant1_name,omitempty"`
	Participant2Name *string `json:"participant2_name,omitempty"`

	WinnerID *int `json:"winner_id,omitempty"`

	// IsBye marks a node decided without play: its lone occupant (or the
	// lone arrival, for a voided losers slot) advances automatically.
	IsBye bool `json:"is_bye"`

	ParentPosition *int `json:"parent_position,omitempty"`
	ParentSlot     *int `json:"parent_slot,omitempty"`
	LoserPosition  *int `json:"loser_position,omitempty"`
	LoserSlot      *int `json:"loser_slot,omitempty"`
	Child1Position *int `json:"child1_position,omitempty"`
	Child2Position *int `json:"child2_position,omitempty"`
}

// SetSlot writes a participant into slot 1 or 2.
func (n *BracketNode) SetSlot(slot, participantID int, name string) {
	if slot == 1 {
		n.Participant1ID = &participantID
		n.Participant1Name = &name
		return
	}
	n.Participant2ID = &participantID
	n.Participant2Name = &name
}

// BothSlotsFilled reports whether the node is ready to become a match.
func (n *BracketNode) BothSlotsFilled() bool {
	return n.Participant1ID != nil && n.Participant2ID != nil
}

// HasParticipant reports whether the participant occupies either slot.
func (n *BracketNode) HasParticipant(participantID int) bool {
	return (n.Participant1ID != nil && *n.Participant1ID == participantID) ||
		(n.Participant2ID != nil && *n.Participant2ID == participantID)
}
