package services

import (
	"context"
	"database/sql"
	"testing"

	"github.com/Dosada05/bracket-engine/models"
	"github.com/stretchr/testify/require"
)

// testEnv wires every service against in-memory fakes, the way main
// wires them against postgres.
type testEnv struct {
	db          *sql.DB
	bracketRepo *fakeBracketRepo
	matchRepo   *fakeMatchRepo
	subRepo     *fakeSubmissionRepo
	disputeRepo *fakeDisputeRepo
	scheduler   *manualScheduler
	publisher   *recordPublisher
	uploader    *fakeUploader

	engine      AdvancementEngine
	brackets    BracketService
	matches     MatchService
	submissions SubmissionService
	disputes    DisputeService

	nextTournament int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		db:          newTestDB(t),
		bracketRepo: newFakeBracketRepo(),
		matchRepo:   newFakeMatchRepo(),
		subRepo:     newFakeSubmissionRepo(),
		disputeRepo: newFakeDisputeRepo(),
		scheduler:   newManualScheduler(),
		publisher:   &recordPublisher{},
		uploader:    &fakeUploader{},
	}
	logger := testLogger()
	env.engine = NewAdvancementEngine(env.bracketRepo, env.matchRepo)
	env.brackets = NewBracketService(env.db, env.bracketRepo, env.matchRepo, env.engine, env.publisher, logger)
	env.matches = NewMatchService(env.db, env.matchRepo, env.bracketRepo, env.engine, env.publisher, logger)
	env.submissions = NewSubmissionService(env.db, env.subRepo, env.matchRepo, env.bracketRepo, env.engine, env.scheduler, env.publisher, logger, 0)
	env.disputes = NewDisputeService(env.db, env.disputeRepo, env.subRepo, env.matchRepo, env.bracketRepo, env.engine, env.submissions, env.scheduler, env.uploader, env.publisher, logger)
	return env
}

func (e *testEnv) generate(t *testing.T, n int, format models.BracketFormat) *models.Bracket {
	t.Helper()
	e.nextTournament++
	bracket, err := e.brackets.GenerateBracket(context.Background(), GenerateBracketInput{
		TournamentID: e.nextTournament,
		Format:       format,
		Participants: seededParticipants(n),
	})
	require.NoError(t, err)
	return bracket
}

func (e *testEnv) generateWith(t *testing.T, input GenerateBracketInput) *models.Bracket {
	t.Helper()
	if input.TournamentID == 0 {
		e.nextTournament++
		input.TournamentID = e.nextTournament
	}
	bracket, err := e.brackets.GenerateBracket(context.Background(), input)
	require.NoError(t, err)
	return bracket
}

func (e *testEnv) node(t *testing.T, bracketID, position int) *models.BracketNode {
	t.Helper()
	node, err := e.bracketRepo.GetNode(context.Background(), bracketID, position)
	require.NoError(t, err)
	return node
}

func (e *testEnv) matchAtNode(t *testing.T, bracketID, position int) *models.Match {
	t.Helper()
	match, err := e.matchRepo.GetByNode(context.Background(), bracketID, position)
	require.NoError(t, err)
	return match
}

func (e *testEnv) listMatches(t *testing.T, bracketID int) []*models.Match {
	t.Helper()
	matches, err := e.matchRepo.ListByBracket(context.Background(), bracketID, nil, nil)
	require.NoError(t, err)
	return matches
}

// driveToLive walks a scheduled match to LIVE through the lifecycle
// service.
func (e *testEnv) driveToLive(t *testing.T, matchID int) *models.Match {
	t.Helper()
	_, err := e.matches.MarkReady(context.Background(), matchID)
	require.NoError(t, err)
	match, err := e.matches.Start(context.Background(), matchID)
	require.NoError(t, err)
	return match
}

// submitResult drives a match to LIVE and files a submission for it.
func (e *testEnv) submitResult(t *testing.T, matchID, submitterID int, payload models.ResultPayload) *models.ResultSubmission {
	t.Helper()
	e.driveToLive(t, matchID)
	submission, err := e.submissions.Submit(context.Background(), matchID, submitterID, payload)
	require.NoError(t, err)
	return submission
}

// completeMatch marks a stored match completed with the given winner,
// bypassing the services; used to feed the engine directly.
func (e *testEnv) completeMatch(t *testing.T, matchID, winnerID, score1, score2 int) *models.Match {
	t.Helper()
	match := e.matchRepo.mustMatch(t, matchID)
	match.State = models.MatchCompleted
	match.Score1 = &score1
	match.Score2 = &score2
	match.WinnerID = &winnerID
	loserID := match.OpponentOf(winnerID)
	match.LoserID = &loserID
	require.NoError(t, e.matchRepo.Update(context.Background(), nil, match))
	return match
}
