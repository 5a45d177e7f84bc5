package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/bracket-engine/models"
	"github.com/Dosada05/bracket-engine/repositories"
)

// AdvancementResult reports what a single advancement did. Applied is
// false when the call was an idempotent no-op (the node had already
// recorded this winner).
type AdvancementResult struct {
	MatchID         int
	NodePosition    int
	Applied         bool
	CreatedMatches  []*models.Match
	BracketResolved bool
	ChampionID      *int
}

// AdvancementEngine propagates confirmed winners through the bracket
// tree: it records the winner on the match's node, routes the winner
// (and, for double elimination, the loser) to the linked target slots,
// creates the next match when a target fills up, and cascades through
// bye nodes whose lone arrival is an automatic win.
type AdvancementEngine interface {
	// Advance applies a completed match's outcome to the tree. Calling it
	// again with the same outcome is a no-op; calling it with a
	// conflicting outcome is a consistency violation.
	Advance(ctx context.Context, exec repositories.SQLExecutor, bracket *models.Bracket, match *models.Match) (*AdvancementResult, error)

	// AdvanceByes runs at bracket creation: nodes whose winner was preset
	// by a bye propagate immediately, recursively, with no match. The
	// given nodes are the just-persisted arena (visible inside the
	// creation transaction).
	AdvanceByes(ctx context.Context, exec repositories.SQLExecutor, bracket *models.Bracket, nodes []*models.BracketNode) ([]*models.Match, error)

	// Override corrects an already-advanced outcome after a dispute
	// ruling. It only applies while nothing downstream has progressed
	// beyond SCHEDULED; otherwise it fails loudly rather than rewriting
	// played matches.
	Override(ctx context.Context, exec repositories.SQLExecutor, bracket *models.Bracket, match *models.Match, newWinnerID int) (*AdvancementResult, error)
}

type advancementEngine struct {
	bracketRepo repositories.BracketRepository
	matchRepo   repositories.MatchRepository

	// Advancement is serialized per bracket: two children of the same
	// parent completing at once must not both create the parent's match.
	brackets *matchLocker
	now      func() time.Time
}

func NewAdvancementEngine(bracketRepo repositories.BracketRepository, matchRepo repositories.MatchRepository) AdvancementEngine {
	return &advancementEngine{
		bracketRepo: bracketRepo,
		matchRepo:   matchRepo,
		brackets:    newMatchLocker(),
		now:         time.Now,
	}
}

type nodeIndex map[int]*models.BracketNode

func indexNodes(nodes []*models.BracketNode) nodeIndex {
	idx := make(nodeIndex, len(nodes))
	for _, node := range nodes {
		idx[node.Position] = node
	}
	return idx
}

func (e *advancementEngine) Advance(ctx context.Context, exec repositories.SQLExecutor, bracket *models.Bracket, match *models.Match) (*AdvancementResult, error) {
	unlock := e.brackets.lock(bracket.ID)
	defer unlock()

	if match.State != models.MatchCompleted && match.State != models.MatchForfeit {
		return nil, fmt.Errorf("%w: match %d is %s", ErrMatchNotAdvanceable, match.ID, match.State)
	}
	if match.WinnerID == nil {
		return nil, fmt.Errorf("%w: match %d has no winner", ErrMatchNotAdvanceable, match.ID)
	}
	winnerID := *match.WinnerID
	if !match.HasParticipant(winnerID) {
		return nil, fmt.Errorf("%w: participant %d in match %d", ErrWinnerNotInMatch, winnerID, match.ID)
	}

	nodes, err := e.bracketRepo.ListNodes(ctx, bracket.ID)
	if err != nil {
		return nil, err
	}
	idx := indexNodes(nodes)
	node, ok := idx[match.NodePosition]
	if !ok {
		return nil, fmt.Errorf("%w: match %d references missing node %d", ErrConsistencyViolation, match.ID, match.NodePosition)
	}

	res := &AdvancementResult{MatchID: match.ID, NodePosition: node.Position}

	if node.WinnerID != nil {
		if *node.WinnerID == winnerID {
			return res, nil // retried advancement, nothing to do
		}
		return nil, fmt.Errorf("%w: node %d already recorded winner %d, got %d",
			ErrConsistencyViolation, node.Position, *node.WinnerID, winnerID)
	}

	loserID := match.OpponentOf(winnerID)
	res.Applied = true
	if err := e.propagateWinner(ctx, exec, bracket, idx, node, winnerID, nameFor(node, winnerID), &loserID, nameFor(node, loserID), res); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *advancementEngine) AdvanceByes(ctx context.Context, exec repositories.SQLExecutor, bracket *models.Bracket, nodes []*models.BracketNode) ([]*models.Match, error) {
	unlock := e.brackets.lock(bracket.ID)
	defer unlock()

	idx := indexNodes(nodes)
	res := &AdvancementResult{}

	for _, node := range nodes {
		if !node.IsBye || node.WinnerID == nil || node.ParentPosition == nil {
			continue
		}
		parent := idx[*node.ParentPosition]
		if parent != nil && parent.HasParticipant(*node.WinnerID) {
			continue // already propagated
		}
		if err := e.placeParticipant(ctx, exec, bracket, idx, *node.ParentPosition, *node.ParentSlot, *node.WinnerID, nameFor(node, *node.WinnerID), res); err != nil {
			return nil, err
		}
	}
	return res.CreatedMatches, nil
}

// propagateWinner records the winner on a node and routes both outgoing
// edges: the loser drop (when present) and the winner's parent slot.
func (e *advancementEngine) propagateWinner(ctx context.Context, exec repositories.SQLExecutor, bracket *models.Bracket, idx nodeIndex, node *models.BracketNode, winnerID int, winnerName string, loserID *int, loserName string, res *AdvancementResult) error {
	if err := e.bracketRepo.UpdateNodeWinner(ctx, exec, bracket.ID, node.Position, winnerID); err != nil {
		return err
	}
	node.WinnerID = &winnerID

	if node.LoserPosition != nil && loserID != nil {
		if err := e.placeParticipant(ctx, exec, bracket, idx, *node.LoserPosition, *node.LoserSlot, *loserID, loserName, res); err != nil {
			return err
		}
	}

	if node.ParentPosition == nil {
		return e.finishTerminalNode(ctx, exec, bracket, idx, node, winnerID, res)
	}
	return e.placeParticipant(ctx, exec, bracket, idx, *node.ParentPosition, *node.ParentSlot, winnerID, winnerName, res)
}

// placeParticipant writes a participant into a target slot. A bye target
// auto-advances its lone arrival; a fully occupied target gets its match
// created (once).
func (e *advancementEngine) placeParticipant(ctx context.Context, exec repositories.SQLExecutor, bracket *models.Bracket, idx nodeIndex, position, slot, participantID int, name string, res *AdvancementResult) error {
	target, ok := idx[position]
	if !ok {
		return fmt.Errorf("%w: link points to missing node %d", ErrConsistencyViolation, position)
	}

	current := target.Participant1ID
	if slot == 2 {
		current = target.Participant2ID
	}
	switch {
	case current == nil:
		if err := e.bracketRepo.UpdateNodeSlot(ctx, exec, bracket.ID, position, slot, participantID, name); err != nil {
			return err
		}
		target.SetSlot(slot, participantID, name)
	case *current != participantID:
		return fmt.Errorf("%w: node %d slot %d holds participant %d, got %d",
			ErrConsistencyViolation, position, slot, *current, participantID)
	}

	if target.IsBye && target.WinnerID == nil {
		// Losers-bracket slot voided by a winners-bracket bye: the
		// arrival advances without playing.
		return e.propagateWinner(ctx, exec, bracket, idx, target, participantID, name, nil, "", res)
	}

	if target.BothSlotsFilled() && !target.IsBye {
		return e.ensureMatch(ctx, exec, bracket, target, res)
	}
	return nil
}

func (e *advancementEngine) ensureMatch(ctx context.Context, exec repositories.SQLExecutor, bracket *models.Bracket, node *models.BracketNode, res *AdvancementResult) error {
	for _, created := range res.CreatedMatches {
		if created.NodePosition == node.Position {
			return nil
		}
	}
	_, err := e.matchRepo.GetByNode(ctx, bracket.ID, node.Position)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repositories.ErrMatchNotFound) {
		return err
	}

	match := &models.Match{
		BracketID:      bracket.ID,
		NodePosition:   node.Position,
		Round:          node.Round,
		MatchNumber:    node.MatchNumber,
		Participant1ID: *node.Participant1ID,
		Participant2ID: *node.Participant2ID,
		State:          models.MatchScheduled,
		ScheduledAt:    e.now(),
	}
	if err := e.matchRepo.Create(ctx, exec, match); err != nil {
		return err
	}
	res.CreatedMatches = append(res.CreatedMatches, match)
	return nil
}

// finishTerminalNode handles a winner on a node with no parent: the
// single-elimination root, the third-place match, the grand final and
// its reset.
func (e *advancementEngine) finishTerminalNode(ctx context.Context, exec repositories.SQLExecutor, bracket *models.Bracket, idx nodeIndex, node *models.BracketNode, winnerID int, res *AdvancementResult) error {
	switch node.BracketType {
	case models.BracketTypeThirdPlace:
		return nil

	case models.BracketTypeMain:
		if bracket.Format == models.FormatSingleElimination {
			res.BracketResolved = true
			res.ChampionID = &winnerID
		}
		// Round-robin and Swiss winners are decided by standings, not by
		// a root node.
		return nil

	case models.BracketTypeGrandFinal:
		if node.Round == 1 {
			if reset := findResetNode(idx); reset != nil &&
				node.Participant2ID != nil && winnerID == *node.Participant2ID {
				// The losers-bracket finalist won game one: everyone has
				// one loss now, a second final decides it.
				if err := e.placeParticipant(ctx, exec, bracket, idx, reset.Position, 1, *node.Participant1ID, deref(node.Participant1Name), res); err != nil {
					return err
				}
				return e.placeParticipant(ctx, exec, bracket, idx, reset.Position, 2, winnerID, deref(node.Participant2Name), res)
			}
		}
		res.BracketResolved = true
		res.ChampionID = &winnerID
		return nil
	}
	return nil
}

func (e *advancementEngine) Override(ctx context.Context, exec repositories.SQLExecutor, bracket *models.Bracket, match *models.Match, newWinnerID int) (*AdvancementResult, error) {
	unlock := e.brackets.lock(bracket.ID)
	defer unlock()

	if !match.HasParticipant(newWinnerID) {
		return nil, fmt.Errorf("%w: participant %d in match %d", ErrWinnerNotInMatch, newWinnerID, match.ID)
	}

	nodes, err := e.bracketRepo.ListNodes(ctx, bracket.ID)
	if err != nil {
		return nil, err
	}
	idx := indexNodes(nodes)
	node, ok := idx[match.NodePosition]
	if !ok {
		return nil, fmt.Errorf("%w: match %d references missing node %d", ErrConsistencyViolation, match.ID, match.NodePosition)
	}

	res := &AdvancementResult{MatchID: match.ID, NodePosition: node.Position}

	if node.WinnerID == nil {
		// Nothing was propagated yet; this is a plain advancement.
		res.Applied = true
		loserID := match.OpponentOf(newWinnerID)
		err := e.propagateWinner(ctx, exec, bracket, idx, node, newWinnerID, nameFor(node, newWinnerID), &loserID, nameFor(node, loserID), res)
		if err != nil {
			return nil, err
		}
		return res, nil
	}

	oldWinnerID := *node.WinnerID
	if oldWinnerID == newWinnerID {
		return res, nil
	}
	newLoserID := oldWinnerID

	// The correction rewrites this node and the slots it fed. It refuses
	// to touch anything that has progressed past SCHEDULED.
	if node.ParentPosition != nil {
		if err := e.checkRewritable(ctx, bracket, idx, *node.ParentPosition); err != nil {
			return nil, err
		}
	}
	if node.LoserPosition != nil {
		if err := e.checkRewritable(ctx, bracket, idx, *node.LoserPosition); err != nil {
			return nil, err
		}
	}

	if err := e.bracketRepo.UpdateNodeWinner(ctx, exec, bracket.ID, node.Position, newWinnerID); err != nil {
		return nil, err
	}
	node.WinnerID = &newWinnerID
	res.Applied = true

	if node.ParentPosition != nil {
		if err := e.rewriteSlot(ctx, exec, bracket, idx, *node.ParentPosition, *node.ParentSlot, newWinnerID, nameFor(node, newWinnerID)); err != nil {
			return nil, err
		}
	}
	if node.LoserPosition != nil {
		if err := e.rewriteSlot(ctx, exec, bracket, idx, *node.LoserPosition, *node.LoserSlot, newLoserID, nameFor(node, newLoserID)); err != nil {
			return nil, err
		}
	}
	if node.ParentPosition == nil {
		if err := e.finishTerminalNode(ctx, exec, bracket, idx, node, newWinnerID, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// checkRewritable verifies that a downstream node can still absorb a
// corrected participant: no winner recorded and no match beyond
// SCHEDULED.
func (e *advancementEngine) checkRewritable(ctx context.Context, bracket *models.Bracket, idx nodeIndex, position int) error {
	target, ok := idx[position]
	if !ok {
		return fmt.Errorf("%w: link points to missing node %d", ErrConsistencyViolation, position)
	}
	if target.WinnerID != nil {
		return fmt.Errorf("%w: node %d already resolved", ErrOverrideNotApplicable, position)
	}
	downstream, err := e.matchRepo.GetByNode(ctx, bracket.ID, position)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil
		}
		return err
	}
	if downstream.State != models.MatchScheduled {
		return fmt.Errorf("%w: match %d at node %d is %s", ErrOverrideNotApplicable, downstream.ID, position, downstream.State)
	}
	return nil
}

func (e *advancementEngine) rewriteSlot(ctx context.Context, exec repositories.SQLExecutor, bracket *models.Bracket, idx nodeIndex, position, slot, participantID int, name string) error {
	if err := e.bracketRepo.UpdateNodeSlot(ctx, exec, bracket.ID, position, slot, participantID, name); err != nil {
		return err
	}
	target := idx[position]
	target.SetSlot(slot, participantID, name)

	downstream, err := e.matchRepo.GetByNode(ctx, bracket.ID, position)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil
		}
		return err
	}
	if slot == 1 {
		downstream.Participant1ID = participantID
	} else {
		downstream.Participant2ID = participantID
	}
	return e.matchRepo.Update(ctx, exec, downstream)
}

// nameFor resolves the denormalized display name a node holds for a
// participant.
func nameFor(node *models.BracketNode, participantID int) string {
	if node.Participant1ID != nil && *node.Participant1ID == participantID {
		return deref(node.Participant1Name)
	}
	if node.Participant2ID != nil && *node.Participant2ID == participantID {
		return deref(node.Participant2Name)
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func findResetNode(idx nodeIndex) *models.BracketNode {
	for _, node := range idx {
		if node.BracketType == models.BracketTypeGrandFinal && node.Round == 2 {
			return node
		}
	}
	return nil
}
