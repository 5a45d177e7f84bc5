package brackets

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Dosada05/bracket-engine/models"
)

var ErrSwissUnpairable = errors.New("swiss round cannot be paired without a rematch")

type SwissFormat struct{}

func NewSwissFormat() *SwissFormat {
	return &SwissFormat{}
}

func (f *SwissFormat) Name() models.BracketFormat {
	return models.FormatSwiss
}

// Generate produces round 1 only: the top half of the seed order plays
// the bottom half (seed 1 vs seed N/2+1 and so on). Later rounds depend
// on results and are paired by PairNextRound once a round completes. With
// an odd field the lowest seed draws a bye.
//
// TotalRounds is ceil(log2(N)), the count needed for a clear leader.
func (f *SwissFormat) Generate(params GenerateParams) (*Blueprint, error) {
	seeded := params.Participants
	n := len(seeded)
	if n < MinParticipants {
		return nil, fmt.Errorf("%w: got %d", ErrNotEnoughParticipants, n)
	}

	half := n / 2
	nodes := make([]*models.BracketNode, 0, half+1)
	for i := 0; i < half; i++ {
		p1 := seeded[i]
		p2 := seeded[i+half]
		node := &models.BracketNode{
			Position:    i + 1,
			Round:       1,
			MatchNumber: i + 1,
			BracketType: models.BracketTypeMain,
		}
		node.SetSlot(1, p1.ID, p1.DisplayName)
		node.SetSlot(2, p2.ID, p2.DisplayName)
		nodes = append(nodes, node)
	}
	if n%2 == 1 {
		bye := seeded[n-1]
		node := &models.BracketNode{
			Position:    half + 1,
			Round:       1,
			MatchNumber: half + 1,
			BracketType: models.BracketTypeMain,
			IsBye:       true,
			WinnerID:    intPtr(bye.ID),
		}
		node.SetSlot(1, bye.ID, bye.DisplayName)
		nodes = append(nodes, node)
	}

	return &Blueprint{
		Nodes:        nodes,
		TotalRounds:  CeilLog2(n),
		TotalMatches: half,
	}, nil
}

// SwissStanding is one participant's cumulative record going into the
// next pairing step.
type SwissStanding struct {
	Participant *models.Participant
	Wins        int
	Seed        int // 1-based original seed, the tiebreaker within a score group
	HadBye      bool
}

// SwissPairInput feeds PairNextRound. PlayedPairs holds every pair that
// has already met, keyed order-independently.
type SwissPairInput struct {
	Round          int
	PositionOffset int // positions already used by earlier rounds
	Standings      []SwissStanding
	PlayedPairs    map[[2]int]bool
}

// PairNextRound pairs the next Swiss round: participants are grouped by
// score, sorted by seed within the group, and paired top-down while
// avoiding rematches. When a score group is odd its last participant
// floats down into the next group. With an odd field the lowest-standing
// participant who has not yet had a bye receives one.
//
// Pairing within a group backtracks over candidate opponents; only if no
// rematch-free assignment exists at all does it return ErrSwissUnpairable.
func (f *SwissFormat) PairNextRound(input SwissPairInput) ([]*models.BracketNode, error) {
	standings := make([]SwissStanding, len(input.Standings))
	copy(standings, input.Standings)

	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Wins != standings[j].Wins {
			return standings[i].Wins > standings[j].Wins
		}
		return standings[i].Seed < standings[j].Seed
	})

	var byeStanding *SwissStanding
	if len(standings)%2 == 1 {
		// Walk up from the bottom for someone without a previous bye.
		idx := -1
		for i := len(standings) - 1; i >= 0; i-- {
			if !standings[i].HadBye {
				idx = i
				break
			}
		}
		if idx < 0 {
			idx = len(standings) - 1
		}
		s := standings[idx]
		byeStanding = &s
		standings = append(standings[:idx], standings[idx+1:]...)
	}

	played := input.PlayedPairs
	if played == nil {
		played = map[[2]int]bool{}
	}

	pairs, ok := pairAvoidingRematches(standings, played)
	if !ok {
		return nil, fmt.Errorf("%w: round %d", ErrSwissUnpairable, input.Round)
	}

	nodes := make([]*models.BracketNode, 0, len(pairs)+1)
	for i, pair := range pairs {
		node := &models.BracketNode{
			Position:    input.PositionOffset + i + 1,
			Round:       input.Round,
			MatchNumber: i + 1,
			BracketType: models.BracketTypeMain,
		}
		node.SetSlot(1, pair[0].Participant.ID, pair[0].Participant.DisplayName)
		node.SetSlot(2, pair[1].Participant.ID, pair[1].Participant.DisplayName)
		nodes = append(nodes, node)
	}
	if byeStanding != nil {
		node := &models.BracketNode{
			Position:    input.PositionOffset + len(pairs) + 1,
			Round:       input.Round,
			MatchNumber: len(pairs) + 1,
			BracketType: models.BracketTypeMain,
			IsBye:       true,
			WinnerID:    intPtr(byeStanding.Participant.ID),
		}
		node.SetSlot(1, byeStanding.Participant.ID, byeStanding.Participant.DisplayName)
		nodes = append(nodes, node)
	}

	return nodes, nil
}

// pairAvoidingRematches pairs an ordered, even-length field without
// repeating a previous matchup. It takes the highest unpaired participant
// and tries opponents in standing order, backtracking when a choice makes
// the remainder unpairable.
func pairAvoidingRematches(standings []SwissStanding, played map[[2]int]bool) ([][2]SwissStanding, bool) {
	if len(standings) == 0 {
		return nil, true
	}

	first := standings[0]
	rest := standings[1:]
	for i, opponent := range rest {
		if played[pairKey(first.Participant.ID, opponent.Participant.ID)] {
			continue
		}
		remaining := make([]SwissStanding, 0, len(rest)-1)
		remaining = append(remaining, rest[:i]...)
		remaining = append(remaining, rest[i+1:]...)

		tail, ok := pairAvoidingRematches(remaining, played)
		if !ok {
			continue
		}
		return append([][2]SwissStanding{{first, opponent}}, tail...), true
	}

	return nil, false
}
