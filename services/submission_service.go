package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/bracket-engine/brackets"
	"github.com/Dosada05/bracket-engine/models"
	"github.com/Dosada05/bracket-engine/repositories"
	"github.com/google/uuid"
)

// DefaultAutoConfirmWindow is how long the opponent has to confirm or
// dispute a submitted result before it confirms on its own.
const DefaultAutoConfirmWindow = 24 * time.Hour

// ConfirmScheduler arms one cancellable timer per submission. The
// in-process implementation loses timers on restart; the periodic
// sweeper picks those up from the persisted deadlines.
type ConfirmScheduler interface {
	Schedule(submissionID string, fireAt time.Time, fn func())
	Cancel(submissionID string)
}

type timerScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewTimerScheduler() ConfirmScheduler {
	return &timerScheduler{timers: make(map[string]*time.Timer)}
}

func (s *timerScheduler) Schedule(submissionID string, fireAt time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[submissionID]; ok {
		t.Stop()
	}
	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}
	s.timers[submissionID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, submissionID)
		s.mu.Unlock()
		fn()
	})
}

func (s *timerScheduler) Cancel(submissionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[submissionID]; ok {
		t.Stop()
		delete(s.timers, submissionID)
	}
}

type SubmissionService interface {
	// Submit records a participant's claim about the match outcome,
	// moves the match to PENDING_RESULT and starts the auto-confirm
	// window.
	Submit(ctx context.Context, matchID, submitterID int, payload models.ResultPayload) (*models.ResultSubmission, error)

	// Confirm finalizes the pending submission. The confirmer must be
	// the submitter's opponent, or an organizer.
	Confirm(ctx context.Context, submissionID string, confirmerID int, organizer bool) (*models.Match, error)

	// AutoConfirm fires when the window elapses. It has exactly the same
	// effect as an explicit confirmation and is a silent no-op when the
	// submission was confirmed or disputed in the meantime.
	AutoConfirm(ctx context.Context, submissionID string) error

	// ArmAutoConfirm re-arms the timer for a submission whose dispute
	// was withdrawn. A deadline already in the past fires immediately.
	ArmAutoConfirm(submission *models.ResultSubmission)

	GetSubmission(ctx context.Context, submissionID string) (*models.ResultSubmission, error)
	GetPendingForMatch(ctx context.Context, matchID int) (*models.ResultSubmission, error)

	// SweepDueAutoConfirms confirms pending submissions whose deadline
	// passed without an in-process timer, e.g. across a restart.
	SweepDueAutoConfirms(ctx context.Context) (int, error)
}

type submissionService struct {
	db             *sql.DB
	submissionRepo repositories.SubmissionRepository
	matchRepo      repositories.MatchRepository
	bracketRepo    repositories.BracketRepository
	engine         AdvancementEngine
	scheduler      ConfirmScheduler
	publisher      EventPublisher
	logger         *slog.Logger
	window         time.Duration
	now            func() time.Time
}

func NewSubmissionService(
	db *sql.DB,
	submissionRepo repositories.SubmissionRepository,
	matchRepo repositories.MatchRepository,
	bracketRepo repositories.BracketRepository,
	engine AdvancementEngine,
	scheduler ConfirmScheduler,
	publisher EventPublisher,
	logger *slog.Logger,
	window time.Duration,
) SubmissionService {
	if window <= 0 {
		window = DefaultAutoConfirmWindow
	}
	return &submissionService{
		db:             db,
		submissionRepo: submissionRepo,
		matchRepo:      matchRepo,
		bracketRepo:    bracketRepo,
		engine:         engine,
		scheduler:      scheduler,
		publisher:      publisher,
		logger:         logger,
		window:         window,
		now:            time.Now,
	}
}

func (s *submissionService) Submit(ctx context.Context, matchID, submitterID int, payload models.ResultPayload) (*models.ResultSubmission, error) {
	unlock := resultLocks.lock(matchID)
	defer unlock()

	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	if match.State != models.MatchLive && match.State != models.MatchPendingResult {
		return nil, fmt.Errorf("%w: cannot submit a result for match %d in state %s", ErrInvalidTransition, match.ID, match.State)
	}
	if !match.HasParticipant(submitterID) {
		return nil, fmt.Errorf("%w: submitter %d is not in match %d", ErrNotOpponent, submitterID, match.ID)
	}
	if err := validateResultPayload(match, payload); err != nil {
		return nil, err
	}

	if _, err := s.submissionRepo.GetPendingByMatch(ctx, matchID); err == nil {
		return nil, fmt.Errorf("%w: match %d already has a pending submission; confirm or dispute it", ErrInvalidTransition, matchID)
	} else if !errors.Is(err, repositories.ErrSubmissionNotFound) {
		return nil, err
	}

	submission := &models.ResultSubmission{
		ID:                  uuid.NewString(),
		MatchID:             matchID,
		SubmitterID:         submitterID,
		Payload:             payload,
		Status:              models.SubmissionPending,
		AutoConfirmDeadline: s.now().Add(s.window),
	}

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.submissionRepo.Create(ctx, tx, submission); err != nil {
			return err
		}
		if match.State == models.MatchLive {
			match.State = models.MatchPendingResult
			if err := s.matchRepo.Update(ctx, tx, match); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ArmAutoConfirm(submission)
	s.logger.Info("result submitted",
		slog.Int("match_id", matchID),
		slog.String("submission_id", submission.ID),
		slog.Int("submitter_id", submitterID),
		slog.Time("auto_confirm_deadline", submission.AutoConfirmDeadline),
	)
	s.publishMatch(ctx, brackets.EventMatchUpdated, match)
	return submission, nil
}

func (s *submissionService) Confirm(ctx context.Context, submissionID string, confirmerID int, organizer bool) (*models.Match, error) {
	submission, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	unlock := resultLocks.lock(submission.MatchID)
	defer unlock()

	// Reload under the lock: the timer or a dispute may have raced us.
	submission, err = s.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if submission.Status != models.SubmissionPending {
		return nil, fmt.Errorf("%w: submission %s is %s", ErrNoPendingSubmission, submission.ID, submission.Status)
	}

	match, err := s.matchRepo.GetByID(ctx, submission.MatchID)
	if err != nil {
		return nil, err
	}
	if match.State != models.MatchPendingResult {
		return nil, fmt.Errorf("%w: match %d is %s", ErrInvalidTransition, match.ID, match.State)
	}
	if !organizer && confirmerID != match.OpponentOf(submission.SubmitterID) {
		return nil, fmt.Errorf("%w: participant %d cannot confirm submission %s", ErrNotOpponent, confirmerID, submission.ID)
	}

	if err := s.finalize(ctx, match, submission, models.SubmissionConfirmed); err != nil {
		return nil, err
	}
	return match, nil
}

func (s *submissionService) AutoConfirm(ctx context.Context, submissionID string) error {
	submission, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, ErrSubmissionNotFound) {
			return nil
		}
		return err
	}

	unlock := resultLocks.lock(submission.MatchID)
	defer unlock()

	submission, err = s.GetSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	if submission.Status != models.SubmissionPending {
		return nil // confirmed or disputed before the timer fired
	}
	match, err := s.matchRepo.GetByID(ctx, submission.MatchID)
	if err != nil {
		return err
	}
	if match.State != models.MatchPendingResult {
		return nil
	}

	if err := s.finalize(ctx, match, submission, models.SubmissionAutoConfirmed); err != nil {
		return err
	}
	s.logger.Info("result auto-confirmed",
		slog.Int("match_id", match.ID),
		slog.String("submission_id", submission.ID),
	)
	return nil
}

func (s *submissionService) ArmAutoConfirm(submission *models.ResultSubmission) {
	id := submission.ID
	s.scheduler.Schedule(id, submission.AutoConfirmDeadline, func() {
		if err := s.AutoConfirm(context.Background(), id); err != nil {
			s.logger.Error("auto-confirm failed",
				slog.String("submission_id", id),
				slog.String("error", err.Error()),
			)
		}
	})
}

// finalize applies the accepted payload to the match, advances the
// bracket and closes the submission, all in one transaction. Advancement
// runs exactly once per match because the node winner guard in the
// engine makes retries no-ops.
func (s *submissionService) finalize(ctx context.Context, match *models.Match, submission *models.ResultSubmission, status models.SubmissionStatus) error {
	bracket, err := s.bracketRepo.GetByID(ctx, match.BracketID)
	if err != nil {
		return err
	}

	applyPayload(match, submission.Payload)
	completed := s.now()
	match.CompletedAt = &completed
	match.State = models.MatchCompleted

	var res *AdvancementResult
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.submissionRepo.UpdateStatus(ctx, tx, submission.ID, status); err != nil {
			return err
		}
		if err := s.matchRepo.Update(ctx, tx, match); err != nil {
			return err
		}
		res, err = s.engine.Advance(ctx, tx, bracket, match)
		return err
	})
	if err != nil {
		return err
	}
	submission.Status = status
	s.scheduler.Cancel(submission.ID)

	s.publisher.Publish(bracket.TournamentID, brackets.EventMatchCompleted, match)
	for _, created := range res.CreatedMatches {
		s.publisher.Publish(bracket.TournamentID, brackets.EventMatchCreated, created)
	}
	signalCompletion(ctx, s.matchRepo, s.publisher, s.logger, bracket, res)
	return nil
}

func (s *submissionService) GetSubmission(ctx context.Context, submissionID string) (*models.ResultSubmission, error) {
	submission, err := s.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSubmissionNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return submission, nil
}

func (s *submissionService) GetPendingForMatch(ctx context.Context, matchID int) (*models.ResultSubmission, error) {
	submission, err := s.submissionRepo.GetPendingByMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrSubmissionNotFound) {
			return nil, ErrNoPendingSubmission
		}
		return nil, err
	}
	return submission, nil
}

func (s *submissionService) SweepDueAutoConfirms(ctx context.Context) (int, error) {
	due, err := s.submissionRepo.ListDueAutoConfirm(ctx, s.now())
	if err != nil {
		return 0, err
	}
	confirmed := 0
	for _, submission := range due {
		if err := s.AutoConfirm(ctx, submission.ID); err != nil {
			s.logger.Error("sweeper auto-confirm failed",
				slog.String("submission_id", submission.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		confirmed++
	}
	return confirmed, nil
}

func (s *submissionService) publishMatch(ctx context.Context, eventType string, match *models.Match) {
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

// validateResultPayload enforces the claim's internal consistency before
// anything is persisted.
func validateResultPayload(match *models.Match, payload models.ResultPayload) error {
	if payload.Score1 < 0 || payload.Score2 < 0 {
		return fmt.Errorf("%w: scores must be non-negative", ErrInvalidResultPayload)
	}
	if !match.HasParticipant(payload.WinnerID) {
		return fmt.Errorf("%w: winner %d is not in match %d", ErrInvalidResultPayload, payload.WinnerID, match.ID)
	}
	if payload.Score1 != payload.Score2 {
		higher := match.Participant1ID
		if payload.Score2 > payload.Score1 {
			higher = match.Participant2ID
		}
		if payload.WinnerID != higher {
			return fmt.Errorf("%w: declared winner %d does not hold the higher score", ErrInvalidResultPayload, payload.WinnerID)
		}
	}
	return nil
}

func applyPayload(match *models.Match, payload models.ResultPayload) {
	score1, score2 := payload.Score1, payload.Score2
	match.Score1 = &score1
	match.Score2 = &score2
	winnerID := payload.WinnerID
	loserID := match.OpponentOf(winnerID)
	match.WinnerID = &winnerID
	match.LoserID = &loserID
}
