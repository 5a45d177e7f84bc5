package brackets

import (
	"fmt"

	"github.com/Dosada05/bracket-engine/models"
)

type DoubleEliminationFormat struct{}

func NewDoubleEliminationFormat() *DoubleEliminationFormat {
	return &DoubleEliminationFormat{}
}

func (f *DoubleEliminationFormat) Name() models.BracketFormat {
	return models.FormatDoubleElimination
}

// Generate builds a winners bracket identical to single elimination, a
// losers bracket that receives the loser of every winners-bracket match,
// and a grand final (plus optional bracket-reset node).
//
// For a winners bracket of k rounds the losers bracket has 2(k-1) rounds,
// alternating "minor" rounds (losers-bracket survivors meet each other)
// and "major" rounds (survivors receive the next wave of winners-bracket
// losers). Major-round drop-in order is reversed on every other wave so a
// participant does not face the opponent who just beat them until it is
// structurally unavoidable.
//
// Winners-bracket byes produce no loser, so the losers-bracket slot that
// would have received one stays empty forever. Such slots are resolved at
// generation time: a losers node with exactly one live feed becomes a bye
// (its lone arrival auto-advances), a node with no live feeds is dead and
// its own output is void in turn.
func (f *DoubleEliminationFormat) Generate(params GenerateParams) (*Blueprint, error) {
	seeded := params.Participants
	if len(seeded) < MinParticipants {
		return nil, fmt.Errorf("%w: got %d", ErrNotEnoughParticipants, len(seeded))
	}

	wbNodes, wbRounds := buildEliminationTree(seeded, models.BracketTypeMain, 0)
	nodes := wbNodes
	size := NextPow2(len(seeded))

	// Two participants leave no room for a losers bracket: the winners
	// final's loser drops straight into the grand final.
	if wbRounds == 1 {
		return f.finishWithGrandFinal(nodes, nodes[0], wbRounds, 0, params.GrandFinalReset)
	}

	lbRounds := 2 * (wbRounds - 1)
	lbStart := make([]int, lbRounds+2) // node index of first match per LB round
	lbCount := make([]int, lbRounds+1)
	idx := len(nodes)
	for lr := 1; lr <= lbRounds; lr++ {
		// Minor round 2j-1 and major round 2j both hold size/2^(j+1)
		// matches, where j is the wave of winners-round losers involved.
		wave := (lr + 1) / 2
		lbCount[lr] = size >> uint(wave+1)
		lbStart[lr] = idx
		idx += lbCount[lr]
	}
	lbStart[lbRounds+1] = idx

	for lr := 1; lr <= lbRounds; lr++ {
		for m := 1; m <= lbCount[lr]; m++ {
			node := &models.BracketNode{
				Position:    lbStart[lr] + m,
				Round:       lr,
				MatchNumber: m,
				BracketType: models.BracketTypeLosers,
			}
			if lr < lbRounds {
				// Minor-round winners keep their match index into the next
				// major round; major-round winners pair up into the next
				// minor round.
				if lr%2 == 1 {
					node.ParentPosition = intPtr(lbStart[lr+1] + m)
					node.ParentSlot = intPtr(1)
				} else {
					node.ParentPosition = intPtr(lbStart[lr+1] + (m+1)/2)
					if m%2 == 1 {
						node.ParentSlot = intPtr(1)
					} else {
						node.ParentSlot = intPtr(2)
					}
				}
			}
			nodes = append(nodes, node)
		}
	}

	// Loser routing out of the winners bracket. Round 1 losers pair up in
	// LB round 1; round r>=2 losers drop into major round 2(r-1), with the
	// drop-in order reversed on odd waves.
	for _, wb := range wbNodes {
		r, m := wb.Round, wb.MatchNumber
		if r == 1 {
			if wb.IsBye {
				continue // a bye has no loser
			}
			wb.LoserPosition = intPtr(lbStart[1] + (m+1)/2)
			if m%2 == 1 {
				wb.LoserSlot = intPtr(1)
			} else {
				wb.LoserSlot = intPtr(2)
			}
			continue
		}
		wave := r - 1
		target := lbStart[2*wave]
		count := lbCount[2*wave]
		dropMatch := m
		if wave%2 == 1 {
			dropMatch = count + 1 - m
		}
		wb.LoserPosition = intPtr(target + dropMatch)
		wb.LoserSlot = intPtr(2)
	}

	resolveLosersByes(nodes, wbNodes, lbStart, lbCount, lbRounds)

	lbFinal := nodes[lbStart[lbRounds]]
	wbFinal := wbNodes[len(wbNodes)-1]
	return f.finishWithGrandFinal(nodes, wbFinal, wbRounds, lbRounds, params.GrandFinalReset, lbFinal)
}

// finishWithGrandFinal appends the grand final (and optional reset) and
// wires the finalists into it. The losers-bracket finalist, when present,
// is passed as the trailing node.
func (f *DoubleEliminationFormat) finishWithGrandFinal(nodes []*models.BracketNode, wbFinal *models.BracketNode, wbRounds, lbRounds int, withReset bool, lbFinal ...*models.BracketNode) (*Blueprint, error) {
	grandFinal := &models.BracketNode{
		Position:    len(nodes) + 1,
		Round:       1,
		MatchNumber: 1,
		BracketType: models.BracketTypeGrandFinal,
	}
	wbFinal.ParentPosition = intPtr(grandFinal.Position)
	wbFinal.ParentSlot = intPtr(1)
	grandFinal.Child1Position = intPtr(wbFinal.Position)

	if len(lbFinal) > 0 {
		lb := lbFinal[0]
		lb.ParentPosition = intPtr(grandFinal.Position)
		lb.ParentSlot = intPtr(2)
		grandFinal.Child2Position = intPtr(lb.Position)
	} else {
		// No losers bracket: the winners final's loser is the challenger.
		wbFinal.LoserPosition = intPtr(grandFinal.Position)
		wbFinal.LoserSlot = intPtr(2)
	}
	nodes = append(nodes, grandFinal)

	gfRounds := 1
	if withReset {
		reset := &models.BracketNode{
			Position:    len(nodes) + 1,
			Round:       2,
			MatchNumber: 1,
			BracketType: models.BracketTypeGrandFinal,
		}
		nodes = append(nodes, reset)
		gfRounds = 2
	}

	playable := 0
	for _, node := range nodes {
		if !node.IsBye && node.BracketType != models.BracketTypeGrandFinal {
			playable++
		}
	}
	playable++ // the grand final itself; the reset is conditional and not counted

	return &Blueprint{
		Nodes:        nodes,
		TotalRounds:  wbRounds + lbRounds + gfRounds,
		TotalMatches: playable,
	}, nil
}

// resolveLosersByes marks losers-bracket nodes whose feeds were voided by
// winners-bracket byes. Voidness cascades: a dead node's parent loses that
// feed as well.
func resolveLosersByes(nodes, wbNodes []*models.BracketNode, lbStart, lbCount []int, lbRounds int) {
	// producesWinner answers whether a position will ever emit a winner.
	producesWinner := make(map[int]bool, len(nodes))
	for _, node := range nodes {
		producesWinner[node.Position] = true
	}
	// producesLoser: winners-bracket byes eliminate nobody.
	producesLoser := make(map[int]bool, len(wbNodes))
	for _, wb := range wbNodes {
		producesLoser[wb.Position] = !wb.IsBye
	}

	for lr := 1; lr <= lbRounds; lr++ {
		for m := 1; m <= lbCount[lr]; m++ {
			node := nodes[lbStart[lr]+m-1]
			live := 0
			for _, wb := range wbNodes {
				if wb.LoserPosition != nil && *wb.LoserPosition == node.Position && producesLoser[wb.Position] {
					live++
				}
			}
			for _, other := range nodes {
				if other.ParentPosition != nil && *other.ParentPosition == node.Position && producesWinner[other.Position] {
					live++
				}
			}
			switch live {
			case 0:
				node.IsBye = true
				producesWinner[node.Position] = false
			case 1:
				node.IsBye = true
			}
		}
	}
}
