package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/bracket-engine/models"
)

var ErrSubmissionNotFound = errors.New("result submission not found")

type SubmissionRepository interface {
	Create(ctx context.Context, exec SQLExecutor, submission *models.ResultSubmission) error
	GetByID(ctx context.Context, id string) (*models.ResultSubmission, error)
	GetPendingByMatch(ctx context.Context, matchID int) (*models.ResultSubmission, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id string, status models.SubmissionStatus) error
	ListDueAutoConfirm(ctx context.Context, now time.Time) ([]*models.ResultSubmission, error)
}

type postgresSubmissionRepository struct {
	db *sql.DB
}

func NewPostgresSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &postgresSubmissionRepository{db: db}
}

const submissionColumns = `
	id, match_id, submitter_id, payload, status, auto_confirm_deadline, created_at`

func (r *postgresSubmissionRepository) Create(ctx context.Context, exec SQLExecutor, submission *models.ResultSubmission) error {
	payload, err := json.Marshal(submission.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal submission payload: %w", err)
	}

	query := `
		INSERT INTO result_submissions (id, match_id, submitter_id, payload, status, auto_confirm_deadline)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err = exec.QueryRowContext(ctx, query,
		submission.ID,
		submission.MatchID,
		submission.SubmitterID,
		payload,
		submission.Status,
		submission.AutoConfirmDeadline,
	).Scan(&submission.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert submission for match %d: %w", submission.MatchID, err)
	}
	return nil
}

func (r *postgresSubmissionRepository) GetByID(ctx context.Context, id string) (*models.ResultSubmission, error) {
	query := `SELECT ` + submissionColumns + ` FROM result_submissions WHERE id = $1`
	return r.getSubmission(ctx, query, id)
}

// GetPendingByMatch returns the open claim on a match, the one that a
// confirmation or auto-confirm would make authoritative.
func (r *postgresSubmissionRepository) GetPendingByMatch(ctx context.Context, matchID int) (*models.ResultSubmission, error) {
	query := `SELECT ` + submissionColumns + `
		FROM result_submissions
		WHERE match_id = $1 AND status IN ('pending', 'disputed')
		ORDER BY created_at ASC LIMIT 1`
	return r.getSubmission(ctx, query, matchID)
}

func (r *postgresSubmissionRepository) getSubmission(ctx context.Context, query string, arg interface{}) (*models.ResultSubmission, error) {
	submission := &models.ResultSubmission{}
	var payload []byte
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&submission.ID,
		&submission.MatchID,
		&submission.SubmitterID,
		&payload,
		&submission.Status,
		&submission.AutoConfirmDeadline,
		&submission.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to scan submission: %w", err)
	}
	if err := json.Unmarshal(payload, &submission.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submission payload %s: %w", submission.ID, err)
	}
	return submission, nil
}

func (r *postgresSubmissionRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id string, status models.SubmissionStatus) error {
	result, err := exec.ExecContext(ctx,
		`UPDATE result_submissions SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update submission %s status: %w", id, err)
	}
	return checkAffectedRows(result, ErrSubmissionNotFound)
}

// ListDueAutoConfirm backs the periodic sweeper: pending submissions
// whose deadline passed while no in-process timer fired (for example
// across a restart).
func (r *postgresSubmissionRepository) ListDueAutoConfirm(ctx context.Context, now time.Time) ([]*models.ResultSubmission, error) {
	query := `SELECT ` + submissionColumns + `
		FROM result_submissions
		WHERE status = 'pending' AND auto_confirm_deadline <= $1
		ORDER BY auto_confirm_deadline ASC`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due submissions: %w", err)
	}
	defer rows.Close()

	submissions := make([]*models.ResultSubmission, 0)
	for rows.Next() {
		submission := &models.ResultSubmission{}
		var payload []byte
		if err := rows.Scan(
			&submission.ID,
			&submission.MatchID,
			&submission.SubmitterID,
			&payload,
			&submission.Status,
			&submission.AutoConfirmDeadline,
			&submission.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan submission row: %w", err)
		}
		if err := json.Unmarshal(payload, &submission.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal submission payload %s: %w", submission.ID, err)
		}
		submissions = append(submissions, submission)
	}
	return submissions, rows.Err()
}
