package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/bracket-engine/models"
)

var ErrDisputeNotFound = errors.New("dispute not found")

type DisputeRepository interface {
	Create(ctx context.Context, exec SQLExecutor, dispute *models.DisputeRecord) error
	GetByID(ctx context.Context, id string) (*models.DisputeRecord, error)
	GetOpenByMatch(ctx context.Context, matchID int) (*models.DisputeRecord, error)
	Update(ctx context.Context, exec SQLExecutor, dispute *models.DisputeRecord) error
	AddEvidence(ctx context.Context, exec SQLExecutor, evidence *models.Evidence) error
	ListEvidence(ctx context.Context, disputeID string) ([]models.Evidence, error)
}

type postgresDisputeRepository struct {
	db *sql.DB
}

func NewPostgresDisputeRepository(db *sql.DB) DisputeRepository {
	return &postgresDisputeRepository{db: db}
}

const disputeColumns = `
	id, match_id, submission_id, opened_by, reason, notes, status,
	final_score1, final_score2, final_winner_id, opened_at, resolved_at, escalated_at`

func (r *postgresDisputeRepository) Create(ctx context.Context, exec SQLExecutor, dispute *models.DisputeRecord) error {
	query := `
		INSERT INTO disputes
			(id, match_id, submission_id, opened_by, reason, notes, status,
			 final_score1, final_score2, final_winner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING opened_at`

	err := exec.QueryRowContext(ctx, query,
		dispute.ID,
		dispute.MatchID,
		dispute.SubmissionID,
		dispute.OpenedBy,
		dispute.Reason,
		dispute.Notes,
		dispute.Status,
		dispute.FinalScore1,
		dispute.FinalScore2,
		dispute.FinalWinnerID,
	).Scan(&dispute.OpenedAt)
	if err != nil {
		return fmt.Errorf("failed to insert dispute for match %d: %w", dispute.MatchID, err)
	}
	return nil
}

func (r *postgresDisputeRepository) GetByID(ctx context.Context, id string) (*models.DisputeRecord, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1`
	return r.getDispute(ctx, query, id)
}

// GetOpenByMatch finds the live dispute on a match, in any pre-ruling
// status including escalated.
func (r *postgresDisputeRepository) GetOpenByMatch(ctx context.Context, matchID int) (*models.DisputeRecord, error) {
	query := `SELECT ` + disputeColumns + `
		FROM disputes
		WHERE match_id = $1 AND status IN ('open', 'under_review', 'escalated')
		ORDER BY opened_at ASC LIMIT 1`
	return r.getDispute(ctx, query, matchID)
}

func (r *postgresDisputeRepository) getDispute(ctx context.Context, query string, arg interface{}) (*models.DisputeRecord, error) {
	dispute := &models.DisputeRecord{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&dispute.ID,
		&dispute.MatchID,
		&dispute.SubmissionID,
		&dispute.OpenedBy,
		&dispute.Reason,
		&dispute.Notes,
		&dispute.Status,
		&dispute.FinalScore1,
		&dispute.FinalScore2,
		&dispute.FinalWinnerID,
		&dispute.OpenedAt,
		&dispute.ResolvedAt,
		&dispute.EscalatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("failed to scan dispute: %w", err)
	}

	evidence, err := r.ListEvidence(ctx, dispute.ID)
	if err != nil {
		return nil, err
	}
	dispute.Evidence = evidence
	return dispute, nil
}

func (r *postgresDisputeRepository) Update(ctx context.Context, exec SQLExecutor, dispute *models.DisputeRecord) error {
	query := `
		UPDATE disputes
		SET status = $1, notes = $2, final_score1 = $3, final_score2 = $4,
		    final_winner_id = $5, resolved_at = $6, escalated_at = $7
		WHERE id = $8`

	result, err := exec.ExecContext(ctx, query,
		dispute.Status,
		dispute.Notes,
		dispute.FinalScore1,
		dispute.FinalScore2,
		dispute.FinalWinnerID,
		dispute.ResolvedAt,
		dispute.EscalatedAt,
		dispute.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update dispute %s: %w", dispute.ID, err)
	}
	return checkAffectedRows(result, ErrDisputeNotFound)
}

func (r *postgresDisputeRepository) AddEvidence(ctx context.Context, exec SQLExecutor, evidence *models.Evidence) error {
	query := `
		INSERT INTO dispute_evidence (id, dispute_id, kind, url, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := exec.QueryRowContext(ctx, query,
		evidence.ID,
		evidence.DisputeID,
		evidence.Kind,
		evidence.URL,
		evidence.Note,
	).Scan(&evidence.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert evidence for dispute %s: %w", evidence.DisputeID, err)
	}
	return nil
}

func (r *postgresDisputeRepository) ListEvidence(ctx context.Context, disputeID string) ([]models.Evidence, error) {
	query := `
		SELECT id, dispute_id, kind, url, note, created_at
		FROM dispute_evidence
		WHERE dispute_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, disputeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence for dispute %s: %w", disputeID, err)
	}
	defer rows.Close()

	evidence := make([]models.Evidence, 0)
	for rows.Next() {
		var e models.Evidence
		if err := rows.Scan(&e.ID, &e.DisputeID, &e.Kind, &e.URL, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan evidence row: %w", err)
		}
		evidence = append(evidence, e)
	}
	return evidence, rows.Err()
}
