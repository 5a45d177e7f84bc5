package brackets

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/Dosada05/bracket-engine/models"
)

const MinParticipants = 2

var (
	ErrNotEnoughParticipants = errors.New("not enough participants for bracket generation (minimum 2)")
	ErrTooManyParticipants   = errors.New("participant count exceeds the configured maximum")
	ErrManualSeedingInvalid  = errors.New("manual seeding has duplicate, missing or out-of-range slots")
)

// SeedingOptions selects and parameterizes a seeding policy.
type SeedingOptions struct {
	Method models.SeedingMethod

	// RandomSeed makes random seeding reproducible. A given seed always
	// yields the same slot order.
	RandomSeed int64

	// ManualSlots maps participant ID to a 1-based seed slot. Required
	// for SeedingManual, ignored otherwise. Every participant must get
	// exactly one slot in [1, N].
	ManualSlots map[int]int

	// MaxParticipants caps the field size; 0 means no cap.
	MaxParticipants int
}

// AssignSeeds orders participants into seed order under the chosen policy.
// The input slice is never mutated; the result is a fresh slice where
// index 0 is seed 1.
func AssignSeeds(participants []*models.Participant, opts SeedingOptions) ([]*models.Participant, error) {
	n := len(participants)
	if n < MinParticipants {
		return nil, fmt.Errorf("%w: got %d", ErrNotEnoughParticipants, n)
	}
	if opts.MaxParticipants > 0 && n > opts.MaxParticipants {
		return nil, fmt.Errorf("%w: got %d, maximum %d", ErrTooManyParticipants, n, opts.MaxParticipants)
	}

	seeded := make([]*models.Participant, n)
	copy(seeded, participants)

	switch opts.Method {
	case models.SeedingSlotOrder, "":
		// Input order is slot order.

	case models.SeedingRandom:
		rng := rand.New(rand.NewSource(opts.RandomSeed))
		rng.Shuffle(n, func(i, j int) {
			seeded[i], seeded[j] = seeded[j], seeded[i]
		})

	case models.SeedingRanked:
		sort.SliceStable(seeded, func(i, j int) bool {
			return ratingOf(seeded[i]) > ratingOf(seeded[j])
		})

	case models.SeedingManual:
		assigned := make([]*models.Participant, n)
		seen := make(map[int]bool, n)
		for _, p := range seeded {
			slot, ok := opts.ManualSlots[p.ID]
			if !ok {
				return nil, fmt.Errorf("%w: participant %d has no slot", ErrManualSeedingInvalid, p.ID)
			}
			if slot < 1 || slot > n {
				return nil, fmt.Errorf("%w: slot %d out of range for participant %d", ErrManualSeedingInvalid, slot, p.ID)
			}
			if seen[slot] {
				return nil, fmt.Errorf("%w: slot %d assigned twice", ErrManualSeedingInvalid, slot)
			}
			seen[slot] = true
			assigned[slot-1] = p
		}
		seeded = assigned

	default:
		return nil, fmt.Errorf("unknown seeding method %q", opts.Method)
	}

	return seeded, nil
}

func ratingOf(p *models.Participant) int {
	if p.Rating == nil {
		return 0
	}
	return *p.Rating
}
