package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/bracket-engine/models"
	"github.com/lib/pq"
)

var (
	ErrBracketNotFound     = errors.New("bracket not found")
	ErrBracketNodeNotFound = errors.New("bracket node not found")
	ErrBracketConflict     = errors.New("bracket already exists for this tournament stage")
)

// BracketRepository owns brackets together with their node arenas. Nodes
// are only ever written as part of their bracket's lifecycle, so they
// live behind the same interface.
type BracketRepository interface {
	Create(ctx context.Context, exec SQLExecutor, bracket *models.Bracket) error
	GetByID(ctx context.Context, id int) (*models.Bracket, error)
	GetByTournament(ctx context.Context, tournamentID int) (*models.Bracket, error)
	SetFinalized(ctx context.Context, exec SQLExecutor, id int) error
	UpdateTotals(ctx context.Context, exec SQLExecutor, id, totalRounds, totalMatches int) error

	CreateNodes(ctx context.Context, exec SQLExecutor, nodes []*models.BracketNode) error
	GetNode(ctx context.Context, bracketID, position int) (*models.BracketNode, error)
	ListNodes(ctx context.Context, bracketID int) ([]*models.BracketNode, error)
	UpdateNodeWinner(ctx context.Context, exec SQLExecutor, bracketID, position, winnerID int) error
	UpdateNodeSlot(ctx context.Context, exec SQLExecutor, bracketID, position, slot, participantID int, name string) error
}

type postgresBracketRepository struct {
	db *sql.DB
}

func NewPostgresBracketRepository(db *sql.DB) BracketRepository {
	return &postgresBracketRepository{db: db}
}

func (r *postgresBracketRepository) Create(ctx context.Context, exec SQLExecutor, bracket *models.Bracket) error {
	query := `
		INSERT INTO brackets (tournament_id, format, seeding, total_rounds, total_matches, finalized)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query,
		bracket.TournamentID,
		bracket.Format,
		bracket.Seeding,
		bracket.TotalRounds,
		bracket.TotalMatches,
		bracket.Finalized,
	).Scan(&bracket.ID, &bracket.CreatedAt)

	return r.handleBracketError(err)
}

func (r *postgresBracketRepository) GetByID(ctx context.Context, id int) (*models.Bracket, error) {
	return r.getBracket(ctx, `WHERE id = $1`, id)
}

func (r *postgresBracketRepository) GetByTournament(ctx context.Context, tournamentID int) (*models.Bracket, error) {
	return r.getBracket(ctx, `WHERE tournament_id = $1 ORDER BY id DESC LIMIT 1`, tournamentID)
}

func (r *postgresBracketRepository) getBracket(ctx context.Context, where string, arg interface{}) (*models.Bracket, error) {
	query := `
		SELECT id, tournament_id, format, seeding, total_rounds, total_matches, finalized, created_at
		FROM brackets ` + where

	bracket := &models.Bracket{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&bracket.ID,
		&bracket.TournamentID,
		&bracket.Format,
		&bracket.Seeding,
		&bracket.TotalRounds,
		&bracket.TotalMatches,
		&bracket.Finalized,
		&bracket.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBracketNotFound
		}
		return nil, fmt.Errorf("failed to scan bracket: %w", err)
	}
	return bracket, nil
}

func (r *postgresBracketRepository) SetFinalized(ctx context.Context, exec SQLExecutor, id int) error {
	result, err := exec.ExecContext(ctx, `UPDATE brackets SET finalized = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to finalize bracket %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrBracketNotFound)
}

func (r *postgresBracketRepository) UpdateTotals(ctx context.Context, exec SQLExecutor, id, totalRounds, totalMatches int) error {
	result, err := exec.ExecContext(ctx,
		`UPDATE brackets SET total_rounds = $1, total_matches = $2 WHERE id = $3`,
		totalRounds, totalMatches, id)
	if err != nil {
		return fmt.Errorf("failed to update totals for bracket %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrBracketNotFound)
}

func (r *postgresBracketRepository) CreateNodes(ctx context.Context, exec SQLExecutor, nodes []*models.BracketNode) error {
	query := `
		INSERT INTO bracket_nodes
			(bracket_id, position, round, match_number, bracket_type,
			 participant1_id, participant2_id, participant1_name, participant2_name,
			 winner_id, is_bye, parent_position, parent_slot, loser_position, loser_slot,
			 child1_position, child2_position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`

	for _, node := range nodes {
		err := exec.QueryRowContext(ctx, query,
			node.BracketID,
			node.Position,
			node.Round,
			node.MatchNumber,
			node.BracketType,
			node.Participant1ID,
			node.Participant2ID,
			node.Participant1Name,
			node.Participant2Name,
			node.WinnerID,
			node.IsBye,
			node.ParentPosition,
			node.ParentSlot,
			node.LoserPosition,
			node.LoserSlot,
			node.Child1Position,
			node.Child2Position,
		).Scan(&node.ID)
		if err != nil {
			return r.handleBracketError(fmt.Errorf("failed to insert node at position %d: %w", node.Position, err))
		}
	}
	return nil
}

const nodeColumns = `
	id, bracket_id, position, round, match_number, bracket_type,
	participant1_id, participant2_id, participant1_name, participant2_name,
	winner_id, is_bye, parent_position, parent_slot, loser_position, loser_slot,
	child1_position, child2_position`

func (r *postgresBracketRepository) GetNode(ctx context.Context, bracketID, position int) (*models.BracketNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM bracket_nodes WHERE bracket_id = $1 AND position = $2`

	node := &models.BracketNode{}
	err := scanNode(r.db.QueryRowContext(ctx, query, bracketID, position), node)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBracketNodeNotFound
		}
		return nil, fmt.Errorf("failed to scan node (bracket %d, position %d): %w", bracketID, position, err)
	}
	return node, nil
}

func (r *postgresBracketRepository) ListNodes(ctx context.Context, bracketID int) ([]*models.BracketNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM bracket_nodes WHERE bracket_id = $1 ORDER BY position ASC`

	rows, err := r.db.QueryContext(ctx, query, bracketID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes for bracket %d: %w", bracketID, err)
	}
	defer rows.Close()

	nodes := make([]*models.BracketNode, 0)
	for rows.Next() {
		node := &models.BracketNode{}
		if err := scanNode(rows, node); err != nil {
			return nil, fmt.Errorf("failed to scan node row: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during node rows iteration: %w", err)
	}
	return nodes, nil
}

func (r *postgresBracketRepository) UpdateNodeWinner(ctx context.Context, exec SQLExecutor, bracketID, position, winnerID int) error {
	result, err := exec.ExecContext(ctx,
		`UPDATE bracket_nodes SET winner_id = $1 WHERE bracket_id = $2 AND position = $3`,
		winnerID, bracketID, position)
	if err != nil {
		return fmt.Errorf("failed to set winner on node (bracket %d, position %d): %w", bracketID, position, err)
	}
	return checkAffectedRows(result, ErrBracketNodeNotFound)
}

func (r *postgresBracketRepository) UpdateNodeSlot(ctx context.Context, exec SQLExecutor, bracketID, position, slot, participantID int, name string) error {
	var query string
	if slot == 1 {
		query = `UPDATE bracket_nodes SET participant1_id = $1, participant1_name = $2 WHERE bracket_id = $3 AND position = $4`
	} else {
		query = `UPDATE bracket_nodes SET participant2_id = $1, participant2_name = $2 WHERE bracket_id = $3 AND position = $4`
	}
	result, err := exec.ExecContext(ctx, query, participantID, name, bracketID, position)
	if err != nil {
		return fmt.Errorf("failed to set slot %d on node (bracket %d, position %d): %w", slot, bracketID, position, err)
	}
	return checkAffectedRows(result, ErrBracketNodeNotFound)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner, node *models.BracketNode) error {
	return row.Scan(
		&node.ID,
		&node.BracketID,
		&node.Position,
		&node.Round,
		&node.MatchNumber,
		&node.BracketType,
		&node.Participant1ID,
		&node.Participant2ID,
		&node.Participant1Name,
		&node.Participant2Name,
		&node.WinnerID,
		&node.IsBye,
		&node.ParentPosition,
		&node.ParentSlot,
		&node.LoserPosition,
		&node.LoserSlot,
		&node.Child1Position,
		&node.Child2Position,
	)
}

func (r *postgresBracketRepository) handleBracketError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Constraint {
		case "brackets_tournament_id_key":
			return ErrBracketConflict
		case "bracket_nodes_bracket_id_position_key":
			return fmt.Errorf("duplicate node position: %w", err)
		}
	}
	return err
}
