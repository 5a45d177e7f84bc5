package brackets

import (
	"fmt"

	"github.com/Dosada05/bracket-engine/models"
)

type RoundRobinFormat struct{}

func NewRoundRobinFormat() *RoundRobinFormat {
	return &RoundRobinFormat{}
}

func (f *RoundRobinFormat) Name() models.BracketFormat {
	return models.FormatRoundRobin
}

// Generate schedules every pair of participants exactly once using the
// circle method: one participant stays fixed while the rest rotate around
// the table each round. With an odd field a phantom opponent joins the
// rotation; whoever draws the phantom simply rests that round, so no node
// is emitted for it.
//
// There is no tree here: round-robin nodes carry no parent/child links
// and the winner is decided by the standings table, not by advancement.
func (f *RoundRobinFormat) Generate(params GenerateParams) (*Blueprint, error) {
	participants := params.Participants
	n := len(participants)
	if n < MinParticipants {
		return nil, fmt.Errorf("%w: got %d", ErrNotEnoughParticipants, n)
	}

	// The rotation works over an even table; nil marks the phantom seat.
	table := make([]*models.Participant, n)
	copy(table, participants)
	if n%2 == 1 {
		table = append(table, nil)
	}
	m := len(table)
	rounds := m - 1

	nodes := make([]*models.BracketNode, 0, n*(n-1)/2)
	position := 0

	for r := 1; r <= rounds; r++ {
		matchNumber := 0
		for i := 0; i < m/2; i++ {
			p1 := table[i]
			p2 := table[m-1-i]
			if p1 == nil || p2 == nil {
				continue
			}
			matchNumber++
			position++
			node := &models.BracketNode{
				Position:    position,
				Round:       r,
				MatchNumber: matchNumber,
				BracketType: models.BracketTypeMain,
			}
			node.SetSlot(1, p1.ID, p1.DisplayName)
			node.SetSlot(2, p2.ID, p2.DisplayName)
			nodes = append(nodes, node)
		}

		// Rotate everyone but the first seat.
		last := table[m-1]
		copy(table[2:], table[1:m-1])
		table[1] = last
	}

	return &Blueprint{
		Nodes:        nodes,
		TotalRounds:  rounds,
		TotalMatches: len(nodes),
	}, nil
}

// TiebreakerOrder configures how round-robin standings break ties; the
// ordering is game-specific and supplied by tournament configuration.
type TiebreakerOrder []Tiebreaker

type Tiebreaker string

const (
	TiebreakScoreDifference Tiebreaker = "score_difference"
	TiebreakWins            Tiebreaker = "wins"
	TiebreakScoreFor        Tiebreaker = "score_for"
)

// DefaultTiebreakers orders by wins, then score difference, then score for.
func DefaultTiebreakers() TiebreakerOrder {
	return TiebreakerOrder{TiebreakWins, TiebreakScoreDifference, TiebreakScoreFor}
}
