package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/Dosada05/bracket-engine/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var matchColumnNames = []string{
	"id", "bracket_id", "node_position", "round", "match_number",
	"participant1_id", "participant2_id", "score1", "score2", "winner_id", "loser_id",
	"state", "p1_checked_in", "p2_checked_in",
	"scheduled_at", "check_in_deadline", "started_at", "completed_at", "created_at",
}

func newMatchRepo(t *testing.T) (MatchRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresMatchRepository(db), mock
}

func TestMatchRepository_GetByID(t *testing.T) {
	repo, mock := newMatchRepo(t)
	now := time.Now()

	rows := sqlmock.NewRows(matchColumnNames).AddRow(
		7, 3, 5, 2, 1,
		11, 12, nil, nil, nil, nil,
		"scheduled", false, false,
		now, nil, nil, nil, now,
	)
	mock.ExpectQuery(`SELECT (.+) FROM matches WHERE id = \$1`).
		WithArgs(7).
		WillReturnRows(rows)

	match, err := repo.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, match.ID)
	assert.Equal(t, 3, match.BracketID)
	assert.Equal(t, 5, match.NodePosition)
	assert.Equal(t, 11, match.Participant1ID)
	assert.Equal(t, 12, match.Participant2ID)
	assert.Equal(t, models.MatchScheduled, match.State)
	assert.Nil(t, match.WinnerID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchRepository_GetByIDNotFound(t *testing.T) {
	repo, mock := newMatchRepo(t)

	mock.ExpectQuery(`SELECT (.+) FROM matches WHERE id = \$1`).
		WithArgs(404).
		WillReturnRows(sqlmock.NewRows(matchColumnNames))

	_, err := repo.GetByID(context.Background(), 404)
	assert.ErrorIs(t, err, ErrMatchNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchRepository_UpdateMissingRow(t *testing.T) {
	repo, mock := newMatchRepo(t)

	mock.ExpectExec(`UPDATE matches`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	match := &models.Match{ID: 99, State: models.MatchScheduled}
	err := repo.Update(context.Background(), repo.(*postgresMatchRepository).db, match)
	assert.ErrorIs(t, err, ErrMatchNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchRepository_CreateMapsConstraintViolations(t *testing.T) {
	repo, mock := newMatchRepo(t)

	mock.ExpectQuery(`INSERT INTO matches`).
		WillReturnError(&pq.Error{Constraint: "matches_bracket_id_node_position_key"})

	match := &models.Match{
		BracketID:      3,
		NodePosition:   5,
		Round:          1,
		MatchNumber:    1,
		Participant1ID: 11,
		Participant2ID: 12,
		State:          models.MatchScheduled,
		ScheduledAt:    time.Now(),
	}
	err := repo.Create(context.Background(), repo.(*postgresMatchRepository).db, match)
	assert.ErrorIs(t, err, ErrMatchBracketInvalid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchRepository_ListCheckInExpiredUsesGivenClock(t *testing.T) {
	repo, mock := newMatchRepo(t)
	now := time.Now()
	deadline := now.Add(-time.Minute)

	rows := sqlmock.NewRows(matchColumnNames).AddRow(
		7, 3, 5, 1, 1,
		11, 12, nil, nil, nil, nil,
		"check_in", true, false,
		now, deadline, nil, nil, now,
	)
	mock.ExpectQuery(`FROM matches\s+WHERE state = 'check_in'`).
		WithArgs(now).
		WillReturnRows(rows)

	expired, err := repo.ListCheckInExpired(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, 7, expired[0].ID)
	assert.True(t, expired[0].P1CheckedIn)
	require.NoError(t, mock.ExpectationsWereMet())
}
