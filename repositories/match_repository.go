package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Dosada05/bracket-engine/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound           = errors.New("match not found")
	ErrMatchBracketInvalid     = errors.New("match bracket conflict or invalid")
	ErrMatchParticipantInvalid = errors.New("match participant conflict or invalid")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	GetByNode(ctx context.Context, bracketID, position int) (*models.Match, error)
	ListByBracket(ctx context.Context, bracketID int, round *int, state *models.MatchState) ([]*models.Match, error)
	Update(ctx context.Context, exec SQLExecutor, match *models.Match) error
	CountNonTerminal(ctx context.Context, bracketID int) (int, error)
	ListCheckInExpired(ctx context.Context, now time.Time) ([]*models.Match, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const matchColumns = `
	id, bracket_id, node_position, round, match_number,
	participant1_id, participant2_id, score1, score2, winner_id, loser_id,
	state, p1_checked_in, p2_checked_in,
	scheduled_at, check_in_deadline, started_at, completed_at, created_at`

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		INSERT INTO matches
			(bracket_id, node_position, round, match_number,
			 participant1_id, participant2_id, score1, score2, winner_id, loser_id,
			 state, p1_checked_in, p2_checked_in, scheduled_at, check_in_deadline, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query,
		match.BracketID,
		match.NodePosition,
		match.Round,
		match.MatchNumber,
		match.Participant1ID,
		match.Participant2ID,
		match.Score1,
		match.Score2,
		match.WinnerID,
		match.LoserID,
		match.State,
		match.P1CheckedIn,
		match.P2CheckedIn,
		match.ScheduledAt,
		match.CheckInDeadline,
		match.StartedAt,
		match.CompletedAt,
	).Scan(&match.ID, &match.CreatedAt)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	return r.getMatch(ctx, query, id)
}

func (r *postgresMatchRepository) GetByNode(ctx context.Context, bracketID, position int) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE bracket_id = $1 AND node_position = $2`
	return r.getMatch(ctx, query, bracketID, position)
}

func (r *postgresMatchRepository) getMatch(ctx context.Context, query string, args ...interface{}) (*models.Match, error) {
	match := &models.Match{}
	err := scanMatch(r.db.QueryRowContext(ctx, query, args...), match)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match: %w", err)
	}
	return match, nil
}

func (r *postgresMatchRepository) ListByBracket(ctx context.Context, bracketID int, round *int, state *models.MatchState) ([]*models.Match, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + matchColumns + ` FROM matches WHERE bracket_id = $1`)

	args := []interface{}{bracketID}
	placeholder := 2

	if round != nil {
		queryBuilder.WriteString(" AND round = $" + strconv.Itoa(placeholder))
		args = append(args, *round)
		placeholder++
	}
	if state != nil {
		queryBuilder.WriteString(" AND state = $" + strconv.Itoa(placeholder))
		args = append(args, *state)
	}
	queryBuilder.WriteString(" ORDER BY round ASC, match_number ASC, id ASC")

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for bracket %d: %w", bracketID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		match := &models.Match{}
		if err := scanMatch(rows, match); err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

// Update persists every mutable field. Lifecycle decisions are made in
// the service layer under the per-match lock; the repository writes the
// resulting row as-is.
func (r *postgresMatchRepository) Update(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		UPDATE matches
		SET score1 = $1, score2 = $2, winner_id = $3, loser_id = $4, state = $5,
		    p1_checked_in = $6, p2_checked_in = $7,
		    scheduled_at = $8, check_in_deadline = $9, started_at = $10, completed_at = $11,
		    participant1_id = $12, participant2_id = $13
		WHERE id = $14`

	result, err := exec.ExecContext(ctx, query,
		match.Score1,
		match.Score2,
		match.WinnerID,
		match.LoserID,
		match.State,
		match.P1CheckedIn,
		match.P2CheckedIn,
		match.ScheduledAt,
		match.CheckInDeadline,
		match.StartedAt,
		match.CompletedAt,
		match.Participant1ID,
		match.Participant2ID,
		match.ID,
	)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) CountNonTerminal(ctx context.Context, bracketID int) (int, error) {
	query := `SELECT COUNT(*) FROM matches WHERE bracket_id = $1 AND state NOT IN ('completed', 'cancelled', 'forfeit')`

	var count int
	if err := r.db.QueryRowContext(ctx, query, bracketID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count non-terminal matches for bracket %d: %w", bracketID, err)
	}
	return count, nil
}

func (r *postgresMatchRepository) ListCheckInExpired(ctx context.Context, now time.Time) ([]*models.Match, error) {
	query := `SELECT ` + matchColumns + `
		FROM matches
		WHERE state = 'check_in' AND check_in_deadline IS NOT NULL AND check_in_deadline < $1
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query check-in expired matches: %w", err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		match := &models.Match{}
		if err := scanMatch(rows, match); err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		matches = append(matches, match)
	}
	return matches, rows.Err()
}

func scanMatch(row rowScanner, match *models.Match) error {
	return row.Scan(
		&match.ID,
		&match.BracketID,
		&match.NodePosition,
		&match.Round,
		&match.MatchNumber,
		&match.Participant1ID,
		&match.Participant2ID,
		&match.Score1,
		&match.Score2,
		&match.WinnerID,
		&match.LoserID,
		&match.State,
		&match.P1CheckedIn,
		&match.P2CheckedIn,
		&match.ScheduledAt,
		&match.CheckInDeadline,
		&match.StartedAt,
		&match.CompletedAt,
		&match.CreatedAt,
	)
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Constraint {
		case "matches_bracket_id_fkey", "matches_bracket_id_node_position_key":
			return ErrMatchBracketInvalid
		case "matches_participant1_id_fkey", "matches_participant2_id_fkey":
			return ErrMatchParticipantInvalid
		}
	}
	return err
}
