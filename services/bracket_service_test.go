package services

import (
	"context"
	"testing"

	"github.com/Dosada05/bracket-engine/brackets"
	"github.com/Dosada05/bracket-engine/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateBracket_PersistsArenaAndInitialMatches(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 8, models.FormatSingleElimination)

	assert.Equal(t, 3, bracket.TotalRounds)
	assert.Equal(t, 7, bracket.TotalMatches)
	assert.Equal(t, models.SeedingSlotOrder, bracket.Seeding)

	snapshot, err := env.brackets.GetSnapshot(context.Background(), bracket.ID)
	require.NoError(t, err)
	assert.Len(t, snapshot.Nodes, 7)
	require.Len(t, snapshot.Matches, 4)
	for _, match := range snapshot.Matches {
		assert.Equal(t, models.MatchScheduled, match.State)
		assert.Equal(t, 1, match.Round)
	}
	assert.True(t, env.publisher.has(brackets.EventBracketUpdated))
}

func TestGenerateBracket_InputValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.brackets.GenerateBracket(context.Background(), GenerateBracketInput{
		TournamentID: 1,
		Format:       models.FormatSingleElimination,
		Participants: seededParticipants(1),
	})
	assert.ErrorIs(t, err, ErrInvalidParticipantCount)

	_, err = env.brackets.GenerateBracket(context.Background(), GenerateBracketInput{
		TournamentID: 1,
		Format:       models.BracketFormat("ladder"),
		Participants: seededParticipants(4),
	})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = env.brackets.GenerateBracket(context.Background(), GenerateBracketInput{
		TournamentID: 1,
		Format:       models.FormatSingleElimination,
		Seeding: brackets.SeedingOptions{
			Method:      models.SeedingManual,
			ManualSlots: map[int]int{1: 1, 2: 1, 3: 2, 4: 3},
		},
		Participants: seededParticipants(4),
	})
	assert.ErrorIs(t, err, ErrSeedingInvalid)
}

func TestGenerateBracket_FinalizedStageCannotBeRegenerated(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 4, models.FormatSingleElimination)

	require.NoError(t, env.brackets.FinalizeBracket(context.Background(), bracket.ID))

	_, err := env.brackets.GenerateBracket(context.Background(), GenerateBracketInput{
		TournamentID: bracket.TournamentID,
		Format:       models.FormatSingleElimination,
		Participants: seededParticipants(4),
	})
	assert.ErrorIs(t, err, ErrBracketFinalized)
}

func TestGetSnapshot_UnknownBracket(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.brackets.GetSnapshot(context.Background(), 404)
	assert.ErrorIs(t, err, ErrBracketNotFound)
}

func forceCompletePair(t *testing.T, env *testEnv, bracketID, p1, p2, winner, score1, score2 int) {
	t.Helper()
	for _, match := range env.listMatches(t, bracketID) {
		if match.State != models.MatchScheduled {
			continue
		}
		if (match.Participant1ID == p1 && match.Participant2ID == p2) ||
			(match.Participant1ID == p2 && match.Participant2ID == p1) {
			if match.Participant1ID != p1 {
				score1, score2 = score2, score1
			}
			_, err := env.matches.ForceComplete(context.Background(), match.ID, score1, score2, winner)
			require.NoError(t, err)
			return
		}
	}
	t.Fatalf("no scheduled match between %d and %d", p1, p2)
}

func TestGenerateNextSwissRound_PairsByScoreAfterRoundCompletes(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 4, models.FormatSwiss)
	require.Equal(t, 2, bracket.TotalRounds)

	// Round 1: 1v3, 2v4.
	_, err := env.brackets.GenerateNextSwissRound(context.Background(), bracket.ID)
	assert.ErrorIs(t, err, ErrSwissRoundIncomplete)

	forceCompletePair(t, env, bracket.ID, 1, 3, 1, 2, 0)
	forceCompletePair(t, env, bracket.ID, 2, 4, 2, 2, 1)

	created, err := env.brackets.GenerateNextSwissRound(context.Background(), bracket.ID)
	require.NoError(t, err)
	require.Len(t, created, 2)

	// Winners play winners, losers play losers.
	assert.Equal(t, 1, created[0].Participant1ID)
	assert.Equal(t, 2, created[0].Participant2ID)
	assert.Equal(t, 3, created[1].Participant1ID)
	assert.Equal(t, 4, created[1].Participant2ID)
	for _, match := range created {
		assert.Equal(t, 2, match.Round)
	}

	updated, err := env.bracketRepo.GetByID(context.Background(), bracket.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, updated.TotalMatches)

	// All rounds paired: nothing further to generate.
	forceCompletePair(t, env, bracket.ID, 1, 2, 1, 2, 0)
	forceCompletePair(t, env, bracket.ID, 3, 4, 3, 2, 0)
	_, err = env.brackets.GenerateNextSwissRound(context.Background(), bracket.ID)
	assert.ErrorIs(t, err, ErrSwissRoundIncomplete)
}

func TestGenerateNextSwissRound_RotatesTheBye(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 5, models.FormatSwiss)

	// Round 1: 1v3, 2v4, bye for 5.
	forceCompletePair(t, env, bracket.ID, 1, 3, 1, 2, 0)
	forceCompletePair(t, env, bracket.ID, 2, 4, 2, 2, 0)

	created, err := env.brackets.GenerateNextSwissRound(context.Background(), bracket.ID)
	require.NoError(t, err)
	require.Len(t, created, 2)

	// 1, 2 and 5 are on one win; 5 already had its bye, so 4 sits out.
	assert.Equal(t, 1, created[0].Participant1ID)
	assert.Equal(t, 2, created[0].Participant2ID)
	assert.Equal(t, 5, created[1].Participant1ID)
	assert.Equal(t, 3, created[1].Participant2ID)

	nodes, err := env.bracketRepo.ListNodes(context.Background(), bracket.ID)
	require.NoError(t, err)
	bye := nodes[len(nodes)-1]
	require.True(t, bye.IsBye)
	assert.Equal(t, 2, bye.Round)
	assert.Equal(t, 4, *bye.Participant1ID)
	assert.Equal(t, 4, *bye.WinnerID)
}

func TestGenerateNextSwissRound_OnlyForSwiss(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 4, models.FormatSingleElimination)

	_, err := env.brackets.GenerateNextSwissRound(context.Background(), bracket.ID)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestStandings_RoundRobinTable(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 3, models.FormatRoundRobin)

	forceCompletePair(t, env, bracket.ID, 1, 2, 1, 2, 0)
	forceCompletePair(t, env, bracket.ID, 1, 3, 1, 2, 1)
	forceCompletePair(t, env, bracket.ID, 2, 3, 2, 2, 0)

	table, err := env.brackets.Standings(context.Background(), bracket.ID, nil)
	require.NoError(t, err)
	require.Len(t, table, 3)

	assert.Equal(t, 1, table[0].ParticipantID)
	assert.Equal(t, 2, table[0].Wins)
	assert.Equal(t, 2, table[0].Played)
	assert.Equal(t, 4, table[0].ScoreFor)
	assert.Equal(t, 1, table[0].ScoreAgainst)

	assert.Equal(t, 2, table[1].ParticipantID)
	assert.Equal(t, 1, table[1].Wins)
	assert.Equal(t, 1, table[1].Losses)

	assert.Equal(t, 3, table[2].ParticipantID)
	assert.Equal(t, 2, table[2].Losses)

	// The last completed match resolved the stage.
	assert.True(t, env.publisher.has(brackets.EventTournamentCompleted))
}

func TestStandings_TiebreakersDecideEqualRecords(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 3, models.FormatRoundRobin)

	// Everyone wins once: 1 beats 2, 2 beats 3, 3 beats 1. The margins
	// break the tie on score difference.
	forceCompletePair(t, env, bracket.ID, 1, 2, 1, 3, 0)
	forceCompletePair(t, env, bracket.ID, 2, 3, 2, 2, 1)
	forceCompletePair(t, env, bracket.ID, 3, 1, 3, 2, 1)

	table, err := env.brackets.Standings(context.Background(), bracket.ID, brackets.DefaultTiebreakers())
	require.NoError(t, err)
	require.Len(t, table, 3)

	// Diffs: 1 has +2, 2 has -2, 3 has 0.
	assert.Equal(t, 1, table[0].ParticipantID)
	assert.Equal(t, 3, table[1].ParticipantID)
	assert.Equal(t, 2, table[2].ParticipantID)
}

func TestCancelBracket_StopsEverythingStillPlayable(t *testing.T) {
	env := newTestEnv(t)
	bracket := env.generate(t, 4, models.FormatSingleElimination)

	forceCompletePair(t, env, bracket.ID, 1, 4, 1, 2, 0)
	require.NoError(t, env.brackets.CancelBracket(context.Background(), bracket.ID))

	for _, match := range env.listMatches(t, bracket.ID) {
		if match.Participant1ID == 1 && match.Participant2ID == 4 {
			assert.Equal(t, models.MatchCompleted, match.State)
			continue
		}
		assert.Equal(t, models.MatchCancelled, match.State)
	}
}
