package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Dosada05/bracket-engine/brackets"
	"github.com/Dosada05/bracket-engine/models"
	"github.com/Dosada05/bracket-engine/repositories"
	"golang.org/x/sync/errgroup"
)

// GenerateBracketInput is the full configuration for one bracket stage.
// Format and seeding arrive as explicit data from tournament
// configuration; nothing here is ambient state.
type GenerateBracketInput struct {
	TournamentID    int
	Format          models.BracketFormat
	Seeding         brackets.SeedingOptions
	Participants    []*models.Participant
	GrandFinalReset bool
	ThirdPlaceMatch bool
}

// BracketSnapshot is the read-only projection handed to renderers: the
// node arena with its linkage plus the current matches. No logic beyond
// a tree walk.
type BracketSnapshot struct {
	Bracket *models.Bracket        `json:"bracket"`
	Nodes   []*models.BracketNode  `json:"nodes"`
	Matches []*models.Match        `json:"matches"`
}

// Standing is one row of a round-robin or Swiss table.
type Standing struct {
	ParticipantID int    `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	Played        int    `json:"played"`
	Wins          int    `json:"wins"`
	Losses        int    `json:"losses"`
	ScoreFor      int    `json:"score_for"`
	ScoreAgainst  int    `json:"score_against"`
	HadBye        bool   `json:"had_bye"`
}

type BracketService interface {
	GenerateBracket(ctx context.Context, input GenerateBracketInput) (*models.Bracket, error)
	FinalizeBracket(ctx context.Context, bracketID int) error
	GetSnapshot(ctx context.Context, bracketID int) (*BracketSnapshot, error)
	GenerateNextSwissRound(ctx context.Context, bracketID int) ([]*models.Match, error)
	Standings(ctx context.Context, bracketID int, order brackets.TiebreakerOrder) ([]Standing, error)
	CancelBracket(ctx context.Context, bracketID int) error
}

type bracketService struct {
	db          *sql.DB
	bracketRepo repositories.BracketRepository
	matchRepo   repositories.MatchRepository
	engine      AdvancementEngine
	publisher   EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

func NewBracketService(
	db *sql.DB,
	bracketRepo repositories.BracketRepository,
	matchRepo repositories.MatchRepository,
	engine AdvancementEngine,
	publisher EventPublisher,
	logger *slog.Logger,
) BracketService {
	return &bracketService{
		db:          db,
		bracketRepo: bracketRepo,
		matchRepo:   matchRepo,
		engine:      engine,
		publisher:   publisher,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *bracketService) GenerateBracket(ctx context.Context, input GenerateBracketInput) (*models.Bracket, error) {
	existing, err := s.bracketRepo.GetByTournament(ctx, input.TournamentID)
	if err != nil && !errors.Is(err, repositories.ErrBracketNotFound) {
		return nil, err
	}
	if existing != nil && existing.Finalized {
		return nil, fmt.Errorf("%w: tournament %d", ErrBracketFinalized, input.TournamentID)
	}

	seeded, err := brackets.AssignSeeds(input.Participants, input.Seeding)
	if err != nil {
		return nil, mapSeedingError(err)
	}

	format, err := brackets.ForFormat(input.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, input.Format)
	}

	blueprint, err := format.Generate(brackets.GenerateParams{
		Participants:    seeded,
		GrandFinalReset: input.GrandFinalReset,
		ThirdPlaceMatch: input.ThirdPlaceMatch,
	})
	if err != nil {
		return nil, mapSeedingError(err)
	}

	bracket := &models.Bracket{
		TournamentID: input.TournamentID,
		Format:       input.Format,
		Seeding:      input.Seeding.Method,
		TotalRounds:  blueprint.TotalRounds,
		TotalMatches: blueprint.TotalMatches,
	}
	if bracket.Seeding == "" {
		bracket.Seeding = models.SeedingSlotOrder
	}

	// Bracket, nodes, round-1 matches and bye advancement commit as one
	// unit; a bracket is never partially persisted.
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.bracketRepo.Create(ctx, tx, bracket); err != nil {
			return err
		}
		for _, node := range blueprint.Nodes {
			node.BracketID = bracket.ID
		}
		if err := s.bracketRepo.CreateNodes(ctx, tx, blueprint.Nodes); err != nil {
			return err
		}
		if err := s.createInitialMatches(ctx, tx, bracket, blueprint.Nodes); err != nil {
			return err
		}
		if _, err := s.engine.AdvanceByes(ctx, tx, bracket, blueprint.Nodes); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bracket generated",
		slog.Int("bracket_id", bracket.ID),
		slog.Int("tournament_id", input.TournamentID),
		slog.String("format", string(input.Format)),
		slog.Int("participants", len(seeded)),
		slog.Int("total_rounds", bracket.TotalRounds),
		slog.Int("total_matches", bracket.TotalMatches),
	)
	s.publisher.Publish(input.TournamentID, brackets.EventBracketUpdated, bracket)
	return bracket, nil
}

// createInitialMatches creates SCHEDULED matches for every playable node
// that already has both participants (round 1 pairs, round robin, swiss
// round 1). Later matches are created by the advancement engine as
// parents fill.
func (s *bracketService) createInitialMatches(ctx context.Context, exec repositories.SQLExecutor, bracket *models.Bracket, nodes []*models.BracketNode) error {
	for _, node := range nodes {
		if node.IsBye || !node.BothSlotsFilled() {
			continue
		}
		match := &models.Match{
			BracketID:      bracket.ID,
			NodePosition:   node.Position,
			Round:          node.Round,
			MatchNumber:    node.MatchNumber,
			Participant1ID: *node.Participant1ID,
			Participant2ID: *node.Participant2ID,
			State:          models.MatchScheduled,
			ScheduledAt:    s.now(),
		}
		if err := s.matchRepo.Create(ctx, exec, match); err != nil {
			return err
		}
	}
	return nil
}

func (s *bracketService) FinalizeBracket(ctx context.Context, bracketID int) error {
	if err := s.bracketRepo.SetFinalized(ctx, s.db, bracketID); err != nil {
		if errors.Is(err, repositories.ErrBracketNotFound) {
			return ErrBracketNotFound
		}
		return err
	}
	return nil
}

func (s *bracketService) GetSnapshot(ctx context.Context, bracketID int) (*BracketSnapshot, error) {
	snapshot := &BracketSnapshot{}
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		bracket, err := s.bracketRepo.GetByID(gCtx, bracketID)
		if err != nil {
			if errors.Is(err, repositories.ErrBracketNotFound) {
				return ErrBracketNotFound
			}
			return err
		}
		snapshot.Bracket = bracket
		return nil
	})
	g.Go(func() error {
		nodes, err := s.bracketRepo.ListNodes(gCtx, bracketID)
		if err != nil {
			return err
		}
		snapshot.Nodes = nodes
		return nil
	})
	g.Go(func() error {
		matches, err := s.matchRepo.ListByBracket(gCtx, bracketID, nil, nil)
		if err != nil {
			return err
		}
		snapshot.Matches = matches
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *bracketService) GenerateNextSwissRound(ctx context.Context, bracketID int) ([]*models.Match, error) {
	bracket, err := s.bracketRepo.GetByID(ctx, bracketID)
	if err != nil {
		if errors.Is(err, repositories.ErrBracketNotFound) {
			return nil, ErrBracketNotFound
		}
		return nil, err
	}
	if bracket.Format != models.FormatSwiss {
		return nil, fmt.Errorf("%w: next-round pairing only applies to swiss", ErrUnsupportedFormat)
	}
	if bracket.Finalized {
		return nil, ErrBracketFinalized
	}

	nodes, err := s.bracketRepo.ListNodes(ctx, bracketID)
	if err != nil {
		return nil, err
	}
	matches, err := s.matchRepo.ListByBracket(ctx, bracketID, nil, nil)
	if err != nil {
		return nil, err
	}

	currentRound := 0
	for _, node := range nodes {
		if node.Round > currentRound {
			currentRound = node.Round
		}
	}
	if currentRound >= bracket.TotalRounds {
		return nil, fmt.Errorf("%w: all %d rounds already paired", ErrSwissRoundIncomplete, bracket.TotalRounds)
	}
	for _, match := range matches {
		if match.State != models.MatchCompleted && match.State != models.MatchForfeit && match.State != models.MatchCancelled {
			return nil, fmt.Errorf("%w: match %d is %s", ErrSwissRoundIncomplete, match.ID, match.State)
		}
	}

	input := swissPairInput(nodes, matches, currentRound+1)
	swiss := brackets.NewSwissFormat()
	newNodes, err := swiss.PairNextRound(input)
	if err != nil {
		return nil, err
	}

	var created []*models.Match
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, node := range newNodes {
			node.BracketID = bracket.ID
		}
		if err := s.bracketRepo.CreateNodes(ctx, tx, newNodes); err != nil {
			return err
		}
		for _, node := range newNodes {
			if node.IsBye || !node.BothSlotsFilled() {
				continue
			}
			match := &models.Match{
				BracketID:      bracket.ID,
				NodePosition:   node.Position,
				Round:          node.Round,
				MatchNumber:    node.MatchNumber,
				Participant1ID: *node.Participant1ID,
				Participant2ID: *node.Participant2ID,
				State:          models.MatchScheduled,
				ScheduledAt:    s.now(),
			}
			if err := s.matchRepo.Create(ctx, tx, match); err != nil {
				return err
			}
			created = append(created, match)
		}
		return s.bracketRepo.UpdateTotals(ctx, tx, bracket.ID, bracket.TotalRounds, bracket.TotalMatches+len(created))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("swiss round paired",
		slog.Int("bracket_id", bracket.ID),
		slog.Int("round", currentRound+1),
		slog.Int("matches", len(created)),
	)
	s.publisher.Publish(bracket.TournamentID, brackets.EventBracketUpdated, bracket)
	return created, nil
}

// swissPairInput reconstructs standings and matchup history from the
// persisted arena. Original seeds are recovered from the round-1 layout:
// match i of round 1 paired seeds i and i+half.
func swissPairInput(nodes []*models.BracketNode, matches []*models.Match, nextRound int) brackets.SwissPairInput {
	half := 0
	for _, node := range nodes {
		if node.Round == 1 && !node.IsBye {
			half++
		}
	}

	seeds := make(map[int]int)
	participants := make(map[int]*models.Participant)
	hadBye := make(map[int]bool)
	wins := make(map[int]int)
	played := make(map[[2]int]bool)

	for _, node := range nodes {
		if node.Round == 1 {
			switch {
			case node.IsBye && node.Participant1ID != nil:
				// The odd seed out: lowest in the original order.
				seeds[*node.Participant1ID] = 2*half + 1
			default:
				if node.Participant1ID != nil {
					seeds[*node.Participant1ID] = node.MatchNumber
				}
				if node.Participant2ID != nil {
					seeds[*node.Participant2ID] = node.MatchNumber + half
				}
			}
		}
		for slot, pid := range map[int]*int{1: node.Participant1ID, 2: node.Participant2ID} {
			if pid == nil {
				continue
			}
			name := node.Participant1Name
			if slot == 2 {
				name = node.Participant2Name
			}
			if _, ok := participants[*pid]; !ok {
				displayName := ""
				if name != nil {
					displayName = *name
				}
				participants[*pid] = &models.Participant{ID: *pid, DisplayName: displayName}
			}
		}
		if node.IsBye {
			if node.Participant1ID != nil {
				hadBye[*node.Participant1ID] = true
			}
			if node.WinnerID != nil {
				wins[*node.WinnerID]++
			}
			continue
		}
		if node.Participant1ID != nil && node.Participant2ID != nil {
			key := [2]int{*node.Participant1ID, *node.Participant2ID}
			if key[0] > key[1] {
				key[0], key[1] = key[1], key[0]
			}
			played[key] = true
		}
		if node.WinnerID != nil {
			wins[*node.WinnerID]++
		}
	}
	// Winners recorded on matches but not yet mirrored to nodes.
	for _, match := range matches {
		if match.WinnerID == nil {
			continue
		}
		node := nodeAt(nodes, match.NodePosition)
		if node != nil && node.WinnerID == nil {
			wins[*match.WinnerID]++
		}
	}

	standings := make([]brackets.SwissStanding, 0, len(participants))
	for pid, p := range participants {
		standings = append(standings, brackets.SwissStanding{
			Participant: p,
			Wins:        wins[pid],
			Seed:        seeds[pid],
			HadBye:      hadBye[pid],
		})
	}
	sort.Slice(standings, func(i, j int) bool { return standings[i].Seed < standings[j].Seed })

	return brackets.SwissPairInput{
		Round:          nextRound,
		PositionOffset: len(nodes),
		Standings:      standings,
		PlayedPairs:    played,
	}
}

func nodeAt(nodes []*models.BracketNode, position int) *models.BracketNode {
	for _, node := range nodes {
		if node.Position == position {
			return node
		}
	}
	return nil
}

func (s *bracketService) Standings(ctx context.Context, bracketID int, order brackets.TiebreakerOrder) ([]Standing, error) {
	if len(order) == 0 {
		order = brackets.DefaultTiebreakers()
	}

	snapshot, err := s.GetSnapshot(ctx, bracketID)
	if err != nil {
		return nil, err
	}

	rows := make(map[int]*Standing)
	ensure := func(pid int, name string) *Standing {
		if row, ok := rows[pid]; ok {
			return row
		}
		row := &Standing{ParticipantID: pid, DisplayName: name}
		rows[pid] = row
		return row
	}

	for _, node := range snapshot.Nodes {
		if node.Participant1ID != nil {
			ensure(*node.Participant1ID, deref(node.Participant1Name))
		}
		if node.Participant2ID != nil {
			ensure(*node.Participant2ID, deref(node.Participant2Name))
		}
		if node.IsBye && node.WinnerID != nil {
			row := ensure(*node.WinnerID, "")
			row.Wins++
			row.HadBye = true
		}
	}
	for _, match := range snapshot.Matches {
		if match.State != models.MatchCompleted && match.State != models.MatchForfeit {
			continue
		}
		if match.WinnerID == nil {
			continue
		}
		winner := rows[*match.WinnerID]
		loser := rows[match.OpponentOf(*match.WinnerID)]
		if winner == nil || loser == nil {
			continue
		}
		winner.Played++
		loser.Played++
		winner.Wins++
		loser.Losses++
		if match.Score1 != nil && match.Score2 != nil {
			s1, s2 := *match.Score1, *match.Score2
			if *match.WinnerID == match.Participant2ID {
				s1, s2 = s2, s1
			}
			winner.ScoreFor += s1
			winner.ScoreAgainst += s2
			loser.ScoreFor += s2
			loser.ScoreAgainst += s1
		}
	}

	table := make([]Standing, 0, len(rows))
	for _, row := range rows {
		table = append(table, *row)
	}
	sort.SliceStable(table, func(i, j int) bool {
		for _, tb := range order {
			var a, b int
			switch tb {
			case brackets.TiebreakWins:
				a, b = table[i].Wins, table[j].Wins
			case brackets.TiebreakScoreDifference:
				a, b = table[i].ScoreFor-table[i].ScoreAgainst, table[j].ScoreFor-table[j].ScoreAgainst
			case brackets.TiebreakScoreFor:
				a, b = table[i].ScoreFor, table[j].ScoreFor
			}
			if a != b {
				return a > b
			}
		}
		return table[i].ParticipantID < table[j].ParticipantID
	})
	return table, nil
}

// CancelBracket aborts the stage: every non-terminal match moves to
// CANCELLED and no further advancement happens.
func (s *bracketService) CancelBracket(ctx context.Context, bracketID int) error {
	bracket, err := s.bracketRepo.GetByID(ctx, bracketID)
	if err != nil {
		if errors.Is(err, repositories.ErrBracketNotFound) {
			return ErrBracketNotFound
		}
		return err
	}

	matches, err := s.matchRepo.ListByBracket(ctx, bracketID, nil, nil)
	if err != nil {
		return err
	}

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, match := range matches {
			if match.State.IsTerminal() || match.State == models.MatchForfeit {
				continue
			}
			match.State = models.MatchCancelled
			if err := s.matchRepo.Update(ctx, tx, match); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("bracket cancelled", slog.Int("bracket_id", bracketID))
	s.publisher.Publish(bracket.TournamentID, brackets.EventBracketUpdated, bracket)
	return nil
}

func mapSeedingError(err error) error {
	switch {
	case errors.Is(err, brackets.ErrNotEnoughParticipants),
		errors.Is(err, brackets.ErrTooManyParticipants):
		return fmt.Errorf("%w: %v", ErrInvalidParticipantCount, err)
	case errors.Is(err, brackets.ErrManualSeedingInvalid):
		return fmt.Errorf("%w: %v", ErrSeedingInvalid, err)
	default:
		return err
	}
}
