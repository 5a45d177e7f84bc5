package brackets

import (
	"fmt"

	"github.com/Dosada05/bracket-engine/models"
)

// GenerateParams carries everything a format generator needs. Participants
// must already be in seed order (seeding.AssignSeeds).
type GenerateParams struct {
	Participants []*models.Participant

	// GrandFinalReset pre-creates the bracket-reset node for double
	// elimination so the structure stays deterministic whether or not the
	// reset ends up being played.
	GrandFinalReset bool

	// ThirdPlaceMatch adds a third-place node fed by the semifinal losers
	// (single elimination only, fields of 4 or more).
	ThirdPlaceMatch bool
}

// Blueprint is the generated structure for one bracket stage. Nodes are
// positioned 1..len(Nodes); parent/child/loser links reference positions
// within the same blueprint. Generation is pure: no persistence, no
// mutation of the input.
type Blueprint struct {
	Nodes       []*models.BracketNode
	TotalRounds int

	// TotalMatches counts playable (non-bye) slots. For Swiss it covers
	// round 1 only; later rounds are paired after results come in.
	TotalMatches int
}

// BracketFormat is implemented once per tournament format. Given the same
// seeded participants and params, Generate always returns the same
// blueprint.
type BracketFormat interface {
	Generate(params GenerateParams) (*Blueprint, error)

	Name() models.BracketFormat
}

// ForFormat selects the generator for a format. Selection is explicit
// data passed at bracket-creation time, not ambient configuration.
func ForFormat(format models.BracketFormat) (BracketFormat, error) {
	switch format {
	case models.FormatSingleElimination:
		return NewSingleEliminationFormat(), nil
	case models.FormatDoubleElimination:
		return NewDoubleEliminationFormat(), nil
	case models.FormatRoundRobin:
		return NewRoundRobinFormat(), nil
	case models.FormatSwiss:
		return NewSwissFormat(), nil
	default:
		return nil, fmt.Errorf("unsupported bracket format %q", format)
	}
}

// NextPow2 returns the smallest power of two >= n.
func NextPow2(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}

// CeilLog2 returns ceil(log2(n)) for n >= 1.
func CeilLog2(n int) int {
	rounds := 0
	size := 1
	for size < n {
		size <<= 1
		rounds++
	}
	return rounds
}

type seedMatchup struct {
	seed1 int
	seed2 int
}

// arrangeSeeds lays out the first elimination round of a bracket with
// numRounds rounds so that seeds 1 and 2 can only meet in the final,
// seeds 1-4 in the semifinals, and so on. Seeds are 0-indexed; the
// returned matchups are in bracket order (match 1 first).
func arrangeSeeds(numRounds int) []seedMatchup {
	matchups := []seedMatchup{{0, 1}}
	totalSeeds := 2

	for r := 1; r < numRounds; r++ {
		next := make([]seedMatchup, 0, totalSeeds)
		totalSeeds *= 2
		for _, parent := range matchups {
			next = append(next,
				seedMatchup{parent.seed1, totalSeeds - 1 - parent.seed1},
				seedMatchup{parent.seed2, totalSeeds - 1 - parent.seed2},
			)
		}
		matchups = next
	}

	return matchups
}

// pairKey builds an order-independent key for a pair of participant IDs.
func pairKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }

func nameOf(p *models.Participant) string {
	if p == nil {
		return ""
	}
	return p.DisplayName
}
