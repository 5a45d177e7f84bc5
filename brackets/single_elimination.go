package brackets

import (
	"fmt"

	"github.com/Dosada05/bracket-engine/models"
)

type SingleEliminationFormat struct{}

func NewSingleEliminationFormat() *SingleEliminationFormat {
	return &SingleEliminationFormat{}
}

func (f *SingleEliminationFormat) Name() models.BracketFormat {
	return models.FormatSingleElimination
}

// Generate builds a seeded binary elimination tree. For N participants the
// bracket has ceil(log2(N)) rounds and nextPow2(N)-1 nodes; the
// nextPow2(N)-N byes fall to the top seeds, so higher seeds skip round 1.
// Bye nodes carry a preset winner and are advanced (without a match) by
// the advancement engine right after the bracket is persisted.
func (f *SingleEliminationFormat) Generate(params GenerateParams) (*Blueprint, error) {
	seeded := params.Participants
	if len(seeded) < MinParticipants {
		return nil, fmt.Errorf("%w: got %d", ErrNotEnoughParticipants, len(seeded))
	}

	nodes, rounds := buildEliminationTree(seeded, models.BracketTypeMain, 0)

	// The optional third-place node is fed by the semifinal losers. It has
	// no parent: its winner leaves the bracket with third place.
	if params.ThirdPlaceMatch && rounds >= 2 {
		thirdPlace := &models.BracketNode{
			Position:    len(nodes) + 1,
			Round:       rounds,
			MatchNumber: 2,
			BracketType: models.BracketTypeThirdPlace,
		}
		semiSlot := 0
		for _, node := range nodes {
			if node.BracketType == models.BracketTypeMain && node.Round == rounds-1 {
				semiSlot++
				node.LoserPosition = intPtr(thirdPlace.Position)
				node.LoserSlot = intPtr(semiSlot)
			}
		}
		nodes = append(nodes, thirdPlace)
	}

	playable := 0
	for _, node := range nodes {
		if !node.IsBye {
			playable++
		}
	}

	return &Blueprint{
		Nodes:        nodes,
		TotalRounds:  rounds,
		TotalMatches: playable,
	}, nil
}

// buildEliminationTree builds a full seeded elimination tree with
// positions starting at positionOffset+1. The winner of round r match m
// feeds round r+1 match ceil(m/2), slot 1 for odd m and slot 2 for even.
// Shared between single elimination and the winners side of double
// elimination.
func buildEliminationTree(seeded []*models.Participant, bracketType models.NodeBracketType, positionOffset int) ([]*models.BracketNode, int) {
	n := len(seeded)
	rounds := CeilLog2(n)
	size := NextPow2(n)

	nodes := make([]*models.BracketNode, 0, size-1)
	// index of a node within this tree: rounds are laid out sequentially
	roundStart := make([]int, rounds+2)
	matchesIn := make([]int, rounds+1)
	idx := 0
	for r := 1; r <= rounds; r++ {
		roundStart[r] = idx
		matchesIn[r] = size >> uint(r)
		idx += matchesIn[r]
	}
	roundStart[rounds+1] = idx

	for r := 1; r <= rounds; r++ {
		for m := 1; m <= matchesIn[r]; m++ {
			node := &models.BracketNode{
				Position:    positionOffset + roundStart[r] + m,
				Round:       r,
				MatchNumber: m,
				BracketType: bracketType,
			}
			if r < rounds {
				parentMatch := (m + 1) / 2
				node.ParentPosition = intPtr(positionOffset + roundStart[r+1] + parentMatch)
				if m%2 == 1 {
					node.ParentSlot = intPtr(1)
				} else {
					node.ParentSlot = intPtr(2)
				}
			}
			nodes = append(nodes, node)
		}
	}

	// Child back references mirror the parent links.
	for _, node := range nodes {
		if node.ParentPosition == nil {
			continue
		}
		parent := nodes[*node.ParentPosition-positionOffset-1]
		if *node.ParentSlot == 1 {
			parent.Child1Position = intPtr(node.Position)
		} else {
			parent.Child2Position = intPtr(node.Position)
		}
	}

	// Round 1 is filled from the standard seed arrangement. A matchup
	// whose second seed falls outside the field is a bye for the first:
	// the top byeCount seeds never see a round-1 opponent.
	for i, matchup := range arrangeSeeds(rounds) {
		node := nodes[i]
		p1 := seeded[matchup.seed1]
		node.SetSlot(1, p1.ID, p1.DisplayName)
		if matchup.seed2 < n {
			p2 := seeded[matchup.seed2]
			node.SetSlot(2, p2.ID, p2.DisplayName)
		} else {
			node.IsBye = true
			node.WinnerID = intPtr(p1.ID)
		}
	}

	return nodes, rounds
}
