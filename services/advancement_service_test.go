package services

import (
	"context"
	"testing"

	"github.com/Dosada05/bracket-engine/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvance_FillsParentSlotWithoutCreatingHalfEmptyMatch(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 8, models.FormatSingleElimination)

	match := env.matchAtNode(t, bracket.ID, 1) // 1 vs 8
	env.completeMatch(t, match.ID, 1, 2, 0)
	match = env.matchRepo.mustMatch(t, match.ID)

	res, err := env.engine.Advance(context.Background(), nil, bracket, match)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Empty(t, res.CreatedMatches)
	assert.False(t, res.BracketResolved)

	node := env.node(t, bracket.ID, 1)
	require.NotNil(t, node.WinnerID)
	assert.Equal(t, 1, *node.WinnerID)

	parent := env.node(t, bracket.ID, *node.ParentPosition)
	require.NotNil(t, parent.Participant1ID)
	assert.Equal(t, 1, *parent.Participant1ID)
	assert.Nil(t, parent.Participant2ID)
}

func TestAdvance_CreatesMatchWhenParentFills(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 8, models.FormatSingleElimination)

	first := env.completeMatch(t, env.matchAtNode(t, bracket.ID, 1).ID, 1, 2, 0)
	_, err := env.engine.Advance(context.Background(), nil, bracket, first)
	require.NoError(t, err)

	second := env.completeMatch(t, env.matchAtNode(t, bracket.ID, 2).ID, 4, 2, 1)
	res, err := env.engine.Advance(context.Background(), nil, bracket, second)
	require.NoError(t, err)

	require.Len(t, res.CreatedMatches, 1)
	semi := res.CreatedMatches[0]
	assert.Equal(t, 1, semi.Participant1ID)
	assert.Equal(t, 4, semi.Participant2ID)
	assert.Equal(t, models.MatchScheduled, semi.State)
	assert.Equal(t, 2, semi.Round)
}

func TestAdvance_RetryIsANoOp(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 8, models.FormatSingleElimination)

	match := env.completeMatch(t, env.matchAtNode(t, bracket.ID, 1).ID, 1, 2, 0)
	_, err := env.engine.Advance(context.Background(), nil, bracket, match)
	require.NoError(t, err)

	res, err := env.engine.Advance(context.Background(), nil, bracket, match)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Empty(t, res.CreatedMatches)
}

func TestAdvance_ConflictingWinnerIsAConsistencyViolation(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 8, models.FormatSingleElimination)

	match := env.completeMatch(t, env.matchAtNode(t, bracket.ID, 1).ID, 1, 2, 0)
	_, err := env.engine.Advance(context.Background(), nil, bracket, match)
	require.NoError(t, err)

	conflicting := env.completeMatch(t, match.ID, 8, 0, 2)
	_, err = env.engine.Advance(context.Background(), nil, bracket, conflicting)
	assert.ErrorIs(t, err, ErrConsistencyViolation)
}

func TestAdvance_RejectsUndecidedMatch(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 8, models.FormatSingleElimination)

	match := env.matchAtNode(t, bracket.ID, 1)
	_, err := env.engine.Advance(context.Background(), nil, bracket, match)
	assert.ErrorIs(t, err, ErrMatchNotAdvanceable)
}

func TestAdvanceByes_CascadeCreatesPlayableSecondRoundMatch(t *testing.T) {
	// With 5 entrants seeds 1, 2 and 3 hold byes; 2 and 3 meet in the
	// second round, so that match must exist right after generation.
	env := newTestEnv(t)
	bracket := env.generate(t, 5, models.FormatSingleElimination)

	matches := env.listMatches(t, bracket.ID)
	require.Len(t, matches, 2)

	round1 := matches[0]
	assert.Equal(t, 1, round1.Round)
	assert.Equal(t, 4, round1.Participant1ID)
	assert.Equal(t, 5, round1.Participant2ID)

	semi := matches[1]
	assert.Equal(t, 2, semi.Round)
	assert.Equal(t, 2, semi.Participant1ID)
	assert.Equal(t, 3, semi.Participant2ID)
}

func TestAdvance_FinalResolvesBracket(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 2, models.FormatSingleElimination)

	final := env.completeMatch(t, env.matchAtNode(t, bracket.ID, 1).ID, 2, 1, 3)
	res, err := env.engine.Advance(context.Background(), nil, bracket, final)
	require.NoError(t, err)

	assert.True(t, res.BracketResolved)
	require.NotNil(t, res.ChampionID)
	assert.Equal(t, 2, *res.ChampionID)
}

func TestAdvance_DoubleEliminationRoutesLoserIntoGrandFinal(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 2, models.FormatDoubleElimination)

	final := env.completeMatch(t, env.matchAtNode(t, bracket.ID, 1).ID, 1, 2, 0)
	res, err := env.engine.Advance(context.Background(), nil, bracket, final)
	require.NoError(t, err)

	require.Len(t, res.CreatedMatches, 1)
	grandFinal := res.CreatedMatches[0]
	assert.Equal(t, 1, grandFinal.Participant1ID)
	assert.Equal(t, 2, grandFinal.Participant2ID)
	assert.False(t, res.BracketResolved)

	upset := env.completeMatch(t, grandFinal.ID, 1, 2, 1)
	res, err = env.engine.Advance(context.Background(), nil, bracket, upset)
	require.NoError(t, err)
	assert.True(t, res.BracketResolved)
	assert.Equal(t, 1, *res.ChampionID)
}

func TestAdvance_GrandFinalResetTriggersOnlyWhenLowerFinalistWins(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generateWith(t, GenerateBracketInput{
		Format:          models.FormatDoubleElimination,
		Participants:    seededParticipants(2),
		GrandFinalReset: true,
	})

	final := env.completeMatch(t, env.matchAtNode(t, bracket.ID, 1).ID, 1, 2, 0)
	res, err := env.engine.Advance(context.Background(), nil, bracket, final)
	require.NoError(t, err)
	require.Len(t, res.CreatedMatches, 1)
	grandFinal := res.CreatedMatches[0]

	// The finalist coming through the lower side wins game one: both
	// players now have a loss, so the reset match materializes.
	game1 := env.completeMatch(t, grandFinal.ID, 2, 1, 2)
	res, err = env.engine.Advance(context.Background(), nil, bracket, game1)
	require.NoError(t, err)
	assert.False(t, res.BracketResolved)
	require.Len(t, res.CreatedMatches, 1)

	reset := res.CreatedMatches[0]
	assert.Equal(t, 1, reset.Participant1ID)
	assert.Equal(t, 2, reset.Participant2ID)

	game2 := env.completeMatch(t, reset.ID, 2, 1, 2)
	res, err = env.engine.Advance(context.Background(), nil, bracket, game2)
	require.NoError(t, err)
	assert.True(t, res.BracketResolved)
	assert.Equal(t, 2, *res.ChampionID)
}

func TestOverride_ActsAsPlainAdvancementOnUntouchedNode(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 8, models.FormatSingleElimination)

	match := env.completeMatch(t, env.matchAtNode(t, bracket.ID, 1).ID, 8, 0, 2)
	res, err := env.engine.Override(context.Background(), nil, bracket, match, 8)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	node := env.node(t, bracket.ID, 1)
	require.NotNil(t, node.WinnerID)
	assert.Equal(t, 8, *node.WinnerID)
}

func TestOverride_RewritesDownstreamScheduledMatch(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 8, models.FormatSingleElimination)

	first := env.completeMatch(t, env.matchAtNode(t, bracket.ID, 1).ID, 1, 2, 0)
	_, err := env.engine.Advance(context.Background(), nil, bracket, first)
	require.NoError(t, err)
	second := env.completeMatch(t, env.matchAtNode(t, bracket.ID, 2).ID, 4, 2, 1)
	res, err := env.engine.Advance(context.Background(), nil, bracket, second)
	require.NoError(t, err)
	require.Len(t, res.CreatedMatches, 1)
	semiID := res.CreatedMatches[0].ID

	// A ruling flips the first quarterfinal to the other player while the
	// semifinal is still only scheduled.
	res, err = env.engine.Override(context.Background(), nil, bracket, first, 8)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	node := env.node(t, bracket.ID, 1)
	assert.Equal(t, 8, *node.WinnerID)
	semi := env.matchRepo.mustMatch(t, semiID)
	assert.Equal(t, 8, semi.Participant1ID)
	assert.Equal(t, 4, semi.Participant2ID)
}

func TestOverride_SameWinnerIsANoOp(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 8, models.FormatSingleElimination)

	match := env.completeMatch(t, env.matchAtNode(t, bracket.ID, 1).ID, 1, 2, 0)
	_, err := env.engine.Advance(context.Background(), nil, bracket, match)
	require.NoError(t, err)

	res, err := env.engine.Override(context.Background(), nil, bracket, match, 1)
	require.NoError(t, err)
	assert.False(t, res.Applied)
}

func TestOverride_RefusesWhenDownstreamMatchProgressed(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 8, models.FormatSingleElimination)

	first := env.completeMatch(t, env.matchAtNode(t, bracket.ID, 1).ID, 1, 2, 0)
	_, err := env.engine.Advance(context.Background(), nil, bracket, first)
	require.NoError(t, err)
	second := env.completeMatch(t, env.matchAtNode(t, bracket.ID, 2).ID, 4, 2, 1)
	res, err := env.engine.Advance(context.Background(), nil, bracket, second)
	require.NoError(t, err)
	require.Len(t, res.CreatedMatches, 1)

	semi := env.matchRepo.mustMatch(t, res.CreatedMatches[0].ID)
	semi.State = models.MatchLive
	require.NoError(t, env.matchRepo.Update(context.Background(), nil, semi))

	_, err = env.engine.Override(context.Background(), nil, bracket, first, 8)
	assert.ErrorIs(t, err, ErrOverrideNotApplicable)
}

func TestOverride_RefusesWhenDownstreamNodeResolved(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 8, models.FormatSingleElimination)

	first := env.completeMatch(t, env.matchAtNode(t, bracket.ID, 1).ID, 1, 2, 0)
	_, err := env.engine.Advance(context.Background(), nil, bracket, first)
	require.NoError(t, err)
	second := env.completeMatch(t, env.matchAtNode(t, bracket.ID, 2).ID, 4, 2, 1)
	res, err := env.engine.Advance(context.Background(), nil, bracket, second)
	require.NoError(t, err)

	semi := env.completeMatch(t, res.CreatedMatches[0].ID, 1, 2, 0)
	_, err = env.engine.Advance(context.Background(), nil, bracket, semi)
	require.NoError(t, err)

	_, err = env.engine.Override(context.Background(), nil, bracket, first, 8)
	assert.ErrorIs(t, err, ErrOverrideNotApplicable)
}
