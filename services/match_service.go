package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/bracket-engine/brackets"
	"github.com/Dosada05/bracket-engine/models"
	"github.com/Dosada05/bracket-engine/repositories"
)

// allowedTransitions is the full lifecycle: anything absent here is
// rejected with ErrInvalidTransition. COMPLETED and CANCELLED have no
// outgoing edges; the dispute path reopens COMPLETED through an
// explicit organizer override, not through this table.
var allowedTransitions = map[models.MatchState][]models.MatchState{
	models.MatchScheduled:     {models.MatchCheckIn, models.MatchReady, models.MatchForfeit, models.MatchCancelled},
	models.MatchCheckIn:       {models.MatchReady, models.MatchForfeit, models.MatchCancelled},
	models.MatchReady:         {models.MatchLive, models.MatchForfeit, models.MatchCancelled},
	models.MatchLive:          {models.MatchPendingResult, models.MatchForfeit, models.MatchCancelled},
	models.MatchPendingResult: {models.MatchCompleted, models.MatchDisputed, models.MatchForfeit, models.MatchCancelled},
	models.MatchDisputed:      {models.MatchCompleted, models.MatchPendingResult, models.MatchForfeit, models.MatchCancelled},
}

func transitionAllowed(from, to models.MatchState) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type MatchService interface {
	GetMatch(ctx context.Context, matchID int) (*models.Match, error)
	OpenCheckIn(ctx context.Context, matchID int, window time.Duration) (*models.Match, error)
	CheckIn(ctx context.Context, matchID, participantID int) (*models.Match, error)
	MarkReady(ctx context.Context, matchID int) (*models.Match, error)
	Start(ctx context.Context, matchID int) (*models.Match, error)
	Forfeit(ctx context.Context, matchID, forfeitingID int) (*models.Match, error)
	Cancel(ctx context.Context, matchID int) (*models.Match, error)
	ForceComplete(ctx context.Context, matchID int, score1, score2, winnerID int) (*models.Match, error)
	Reschedule(ctx context.Context, matchID int, at time.Time) (*models.Match, error)
	SweepCheckInDeadlines(ctx context.Context) (int, error)
}

type matchService struct {
	db          *sql.DB
	matchRepo   repositories.MatchRepository
	bracketRepo repositories.BracketRepository
	engine      AdvancementEngine
	publisher   EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

func NewMatchService(
	db *sql.DB,
	matchRepo repositories.MatchRepository,
	bracketRepo repositories.BracketRepository,
	engine AdvancementEngine,
	publisher EventPublisher,
	logger *slog.Logger,
) MatchService {
	return &matchService{
		db:          db,
		matchRepo:   matchRepo,
		bracketRepo: bracketRepo,
		engine:      engine,
		publisher:   publisher,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *matchService) GetMatch(ctx context.Context, matchID int) (*models.Match, error) {
	return s.loadMatch(ctx, matchID)
}

func (s *matchService) loadMatch(ctx context.Context, matchID int) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return match, nil
}

func (s *matchService) OpenCheckIn(ctx context.Context, matchID int, window time.Duration) (*models.Match, error) {
	unlock := resultLocks.lock(matchID)
	defer unlock()

	match, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(match, models.MatchCheckIn); err != nil {
		return nil, err
	}
	deadline := s.now().Add(window)
	match.CheckInDeadline = &deadline
	if err := s.matchRepo.Update(ctx, s.db, match); err != nil {
		return nil, err
	}
	s.publishMatch(ctx, brackets.EventMatchUpdated, match)
	return match, nil
}

func (s *matchService) CheckIn(ctx context.Context, matchID, participantID int) (*models.Match, error) {
	unlock := resultLocks.lock(matchID)
	defer unlock()

	match, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.State != models.MatchCheckIn {
		return nil, fmt.Errorf("%w: check-in is not open for match %d (%s)", ErrInvalidTransition, match.ID, match.State)
	}
	switch participantID {
	case match.Participant1ID:
		match.P1CheckedIn = true
	case match.Participant2ID:
		match.P2CheckedIn = true
	default:
		return nil, fmt.Errorf("%w: participant %d in match %d", ErrWinnerNotInMatch, participantID, match.ID)
	}
	if match.P1CheckedIn && match.P2CheckedIn {
		match.State = models.MatchReady
	}
	if err := s.matchRepo.Update(ctx, s.db, match); err != nil {
		return nil, err
	}
	s.publishMatch(ctx, brackets.EventMatchUpdated, match)
	return match, nil
}

// MarkReady skips the check-in step entirely; used when a tournament
// runs without check-in windows.
func (s *matchService) MarkReady(ctx context.Context, matchID int) (*models.Match, error) {
	return s.simpleTransition(ctx, matchID, models.MatchReady)
}

func (s *matchService) Start(ctx context.Context, matchID int) (*models.Match, error) {
	unlock := resultLocks.lock(matchID)
	defer unlock()

	match, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(match, models.MatchLive); err != nil {
		return nil, err
	}
	started := s.now()
	match.StartedAt = &started
	if err := s.matchRepo.Update(ctx, s.db, match); err != nil {
		return nil, err
	}
	s.publishMatch(ctx, brackets.EventMatchUpdated, match)
	return match, nil
}

// Forfeit awards the match to the opponent of the forfeiting
// participant and advances the bracket immediately; no result
// confirmation window applies.
func (s *matchService) Forfeit(ctx context.Context, matchID, forfeitingID int) (*models.Match, error) {
	unlock := resultLocks.lock(matchID)
	defer unlock()

	match, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !match.HasParticipant(forfeitingID) {
		return nil, fmt.Errorf("%w: participant %d in match %d", ErrWinnerNotInMatch, forfeitingID, match.ID)
	}
	if err := s.transition(match, models.MatchForfeit); err != nil {
		return nil, err
	}

	winnerID := match.OpponentOf(forfeitingID)
	match.WinnerID = &winnerID
	match.LoserID = &forfeitingID
	completed := s.now()
	match.CompletedAt = &completed

	if err := s.completeAndAdvance(ctx, match); err != nil {
		return nil, err
	}
	s.logger.Info("match forfeited",
		slog.Int("match_id", match.ID),
		slog.Int("forfeiting_id", forfeitingID),
		slog.Int("winner_id", winnerID),
	)
	return match, nil
}

func (s *matchService) Cancel(ctx context.Context, matchID int) (*models.Match, error) {
	return s.simpleTransition(ctx, matchID, models.MatchCancelled)
}

// ForceComplete is the organizer escape hatch: record a final result on
// any non-terminal match and advance, bypassing submission and
// confirmation.
func (s *matchService) ForceComplete(ctx context.Context, matchID int, score1, score2, winnerID int) (*models.Match, error) {
	unlock := resultLocks.lock(matchID)
	defer unlock()

	match, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.State.IsTerminal() {
		return nil, fmt.Errorf("%w: match %d is %s", ErrMatchTerminal, match.ID, match.State)
	}
	if !match.HasParticipant(winnerID) {
		return nil, fmt.Errorf("%w: participant %d in match %d", ErrWinnerNotInMatch, winnerID, match.ID)
	}

	match.State = models.MatchCompleted
	match.Score1 = &score1
	match.Score2 = &score2
	match.WinnerID = &winnerID
	loserID := match.OpponentOf(winnerID)
	match.LoserID = &loserID
	completed := s.now()
	match.CompletedAt = &completed

	if err := s.completeAndAdvance(ctx, match); err != nil {
		return nil, err
	}
	s.logger.Info("match force-completed",
		slog.Int("match_id", match.ID),
		slog.Int("winner_id", winnerID),
	)
	return match, nil
}

func (s *matchService) Reschedule(ctx context.Context, matchID int, at time.Time) (*models.Match, error) {
	unlock := resultLocks.lock(matchID)
	defer unlock()

	match, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.State != models.MatchScheduled && match.State != models.MatchCheckIn {
		return nil, fmt.Errorf("%w: cannot reschedule match %d in state %s", ErrInvalidTransition, match.ID, match.State)
	}
	match.ScheduledAt = at
	if err := s.matchRepo.Update(ctx, s.db, match); err != nil {
		return nil, err
	}
	s.publishMatch(ctx, brackets.EventMatchUpdated, match)
	return match, nil
}

// SweepCheckInDeadlines closes expired check-in windows: a lone
// checked-in participant wins by forfeit, and a match where nobody
// showed up is cancelled. Returns the number of matches it closed.
func (s *matchService) SweepCheckInDeadlines(ctx context.Context) (int, error) {
	expired, err := s.matchRepo.ListCheckInExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, match := range expired {
		var sweepErr error
		switch {
		case match.P1CheckedIn && !match.P2CheckedIn:
			_, sweepErr = s.Forfeit(ctx, match.ID, match.Participant2ID)
		case match.P2CheckedIn && !match.P1CheckedIn:
			_, sweepErr = s.Forfeit(ctx, match.ID, match.Participant1ID)
		default:
			_, sweepErr = s.Cancel(ctx, match.ID)
		}
		if sweepErr != nil {
			s.logger.Error("check-in sweep failed for match",
				slog.Int("match_id", match.ID),
				slog.String("error", sweepErr.Error()),
			)
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *matchService) simpleTransition(ctx context.Context, matchID int, to models.MatchState) (*models.Match, error) {
	unlock := resultLocks.lock(matchID)
	defer unlock()

	match, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(match, to); err != nil {
		return nil, err
	}
	if err := s.matchRepo.Update(ctx, s.db, match); err != nil {
		return nil, err
	}
	s.publishMatch(ctx, brackets.EventMatchUpdated, match)
	return match, nil
}

func (s *matchService) transition(match *models.Match, to models.MatchState) error {
	if match.State.IsTerminal() {
		return fmt.Errorf("%w: match %d is %s", ErrMatchTerminal, match.ID, match.State)
	}
	if !transitionAllowed(match.State, to) {
		return fmt.Errorf("%w: %s -> %s for match %d", ErrInvalidTransition, match.State, to, match.ID)
	}
	match.State = to
	return nil
}

// completeAndAdvance persists a decided match and propagates the winner
// in one transaction, then signals completion events.
func (s *matchService) completeAndAdvance(ctx context.Context, match *models.Match) error {
	bracket, err := s.bracketRepo.GetByID(ctx, match.BracketID)
	if err != nil {
		return err
	}

	var res *AdvancementResult
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.matchRepo.Update(ctx, tx, match); err != nil {
			return err
		}
		res, err = s.engine.Advance(ctx, tx, bracket, match)
		return err
	})
	if err != nil {
		return err
	}

	s.publishMatch(ctx, brackets.EventMatchCompleted, match)
	for _, created := range res.CreatedMatches {
		s.publisher.Publish(bracket.TournamentID, brackets.EventMatchCreated, created)
	}
	signalCompletion(ctx, s.matchRepo, s.publisher, s.logger, bracket, res)
	return nil
}

func (s *matchService) publishMatch(ctx context.Context, eventType string, match *models.Match) {
	bracket, err := s.bracketRepo.GetByID(ctx, match.BracketID)
	if err != nil {
		s.logger.Warn("failed to resolve bracket for event",
			slog.Int("bracket_id", match.BracketID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.publisher.Publish(bracket.TournamentID, eventType, match)
}

// signalCompletion emits TOURNAMENT_COMPLETED when the bracket is fully
// resolved. Elimination brackets resolve through their root node;
// round-robin and swiss resolve when no playable match remains.
func signalCompletion(ctx context.Context, matchRepo repositories.MatchRepository, publisher EventPublisher, logger *slog.Logger, bracket *models.Bracket, res *AdvancementResult) {
	if res != nil && res.BracketResolved {
		publisher.Publish(bracket.TournamentID, brackets.EventTournamentCompleted, map[string]interface{}{
			"bracket_id":  bracket.ID,
			"champion_id": res.ChampionID,
		})
		return
	}
	if bracket.Format != models.FormatRoundRobin && bracket.Format != models.FormatSwiss {
		return
	}
	remaining, err := matchRepo.CountNonTerminal(ctx, bracket.ID)
	if err != nil {
		logger.Warn("completion check failed",
			slog.Int("bracket_id", bracket.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if remaining == 0 {
		// Champion comes from standings, which the caller queries.
		publisher.Publish(bracket.TournamentID, brackets.EventTournamentCompleted, map[string]interface{}{
			"bracket_id": bracket.ID,
		})
	}
}

// withTx mirrors the service transaction helper for callers that hold
// only the raw handle.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
