package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/Dosada05/bracket-engine/brackets"
	"github.com/Dosada05/bracket-engine/models"
	"github.com/Dosada05/bracket-engine/repositories"
	"github.com/Dosada05/bracket-engine/storage"
	"github.com/google/uuid"
)

// DisputeRuling is the organizer's decision on a dispute: the final
// scores and winner that become authoritative for the match.
type DisputeRuling struct {
	Score1   int
	Score2   int
	WinnerID int
	Notes    *string
}

// EvidenceInput is one attachment for a dispute. Either Body (a file to
// upload) or URL (an external link, e.g. a VOD) must be set.
type EvidenceInput struct {
	Kind        string
	FileName    string
	ContentType string
	Body        io.Reader
	URL         string
	Note        *string
}

type DisputeService interface {
	// Open contests the pending result of a match: the match moves to
	// DISPUTED, the submission is frozen and its auto-confirm timer is
	// cancelled.
	Open(ctx context.Context, matchID, openedBy int, reason string) (*models.DisputeRecord, error)

	GetDispute(ctx context.Context, disputeID string) (*models.DisputeRecord, error)
	Review(ctx context.Context, disputeID string) (*models.DisputeRecord, error)
	Escalate(ctx context.Context, disputeID string) (*models.DisputeRecord, error)

	// Resolve applies the ruling: the match completes with the final
	// result, the bracket advances (or is corrected), and the frozen
	// submission is finalized or rejected depending on whether the
	// ruling upheld its claim.
	Resolve(ctx context.Context, disputeID string, ruling DisputeRuling) (*models.DisputeRecord, error)

	// Withdraw cancels the dispute: the match returns to PENDING_RESULT
	// and the auto-confirm window resumes from its original deadline.
	Withdraw(ctx context.Context, disputeID string) (*models.DisputeRecord, error)

	AttachEvidence(ctx context.Context, disputeID string, input EvidenceInput) (*models.Evidence, error)

	// ReopenCompleted is the organizer path for contesting an already
	// completed match: it moves COMPLETED to DISPUTED so a ruling can
	// correct the recorded outcome.
	ReopenCompleted(ctx context.Context, matchID, openedBy int, reason string) (*models.DisputeRecord, error)
}

type disputeService struct {
	db             *sql.DB
	disputeRepo    repositories.DisputeRepository
	submissionRepo repositories.SubmissionRepository
	matchRepo      repositories.MatchRepository
	bracketRepo    repositories.BracketRepository
	engine         AdvancementEngine
	submissions    SubmissionService
	scheduler      ConfirmScheduler
	uploader       storage.FileUploader
	publisher      EventPublisher
	logger         *slog.Logger
	now            func() time.Time
}

func NewDisputeService(
	db *sql.DB,
	disputeRepo repositories.DisputeRepository,
	submissionRepo repositories.SubmissionRepository,
	matchRepo repositories.MatchRepository,
	bracketRepo repositories.BracketRepository,
	engine AdvancementEngine,
	submissions SubmissionService,
	scheduler ConfirmScheduler,
	uploader storage.FileUploader,
	publisher EventPublisher,
	logger *slog.Logger,
) DisputeService {
	return &disputeService{
		db:             db,
		disputeRepo:    disputeRepo,
		submissionRepo: submissionRepo,
		matchRepo:      matchRepo,
		bracketRepo:    bracketRepo,
		engine:         engine,
		submissions:    submissions,
		scheduler:      scheduler,
		uploader:       uploader,
		publisher:      publisher,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *disputeService) Open(ctx context.Context, matchID, openedBy int, reason string) (*models.DisputeRecord, error) {
	unlock := resultLocks.lock(matchID)
	defer unlock()

	match, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.State != models.MatchPendingResult {
		return nil, fmt.Errorf("%w: match %d is %s", ErrMatchNotDisputable, match.ID, match.State)
	}
	if !match.HasParticipant(openedBy) {
		return nil, fmt.Errorf("%w: participant %d is not in match %d", ErrNotOpponent, openedBy, match.ID)
	}
	if _, err := s.disputeRepo.GetOpenByMatch(ctx, matchID); err == nil {
		return nil, fmt.Errorf("%w: match %d already has an open dispute", ErrMatchNotDisputable, matchID)
	} else if !errors.Is(err, repositories.ErrDisputeNotFound) {
		return nil, err
	}

	submission, err := s.submissionRepo.GetPendingByMatch(ctx, matchID)
	if err != nil && !errors.Is(err, repositories.ErrSubmissionNotFound) {
		return nil, err
	}

	dispute := &models.DisputeRecord{
		ID:       uuid.NewString(),
		MatchID:  matchID,
		OpenedBy: openedBy,
		Reason:   reason,
		Status:   models.DisputeOpen,
	}
	if submission != nil {
		dispute.SubmissionID = &submission.ID
	}

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.disputeRepo.Create(ctx, tx, dispute); err != nil {
			return err
		}
		if submission != nil {
			if err := s.submissionRepo.UpdateStatus(ctx, tx, submission.ID, models.SubmissionDisputed); err != nil {
				return err
			}
		}
		match.State = models.MatchDisputed
		return s.matchRepo.Update(ctx, tx, match)
	})
	if err != nil {
		return nil, err
	}

	// The window is suspended for the length of the dispute.
	if submission != nil {
		s.scheduler.Cancel(submission.ID)
	}

	s.logger.Info("dispute opened",
		slog.Int("match_id", matchID),
		slog.String("dispute_id", dispute.ID),
		slog.Int("opened_by", openedBy),
	)
	s.publishMatch(ctx, brackets.EventMatchUpdated, match)
	return dispute, nil
}

func (s *disputeService) GetDispute(ctx context.Context, disputeID string) (*models.DisputeRecord, error) {
	return s.loadDispute(ctx, disputeID)
}

func (s *disputeService) Review(ctx context.Context, disputeID string) (*models.DisputeRecord, error) {
	dispute, err := s.loadDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status != models.DisputeOpen {
		return nil, fmt.Errorf("%w: dispute %s is %s", ErrDisputeClosed, dispute.ID, dispute.Status)
	}
	dispute.Status = models.DisputeUnderReview
	if err := s.disputeRepo.Update(ctx, s.db, dispute); err != nil {
		return nil, err
	}
	return dispute, nil
}

func (s *disputeService) Escalate(ctx context.Context, disputeID string) (*models.DisputeRecord, error) {
	dispute, err := s.loadDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status != models.DisputeOpen && dispute.Status != models.DisputeUnderReview {
		return nil, fmt.Errorf("%w: dispute %s is %s", ErrDisputeClosed, dispute.ID, dispute.Status)
	}
	dispute.Status = models.DisputeEscalated
	escalated := s.now()
	dispute.EscalatedAt = &escalated
	if err := s.disputeRepo.Update(ctx, s.db, dispute); err != nil {
		return nil, err
	}
	s.logger.Info("dispute escalated", slog.String("dispute_id", dispute.ID))
	return dispute, nil
}

func (s *disputeService) Resolve(ctx context.Context, disputeID string, ruling DisputeRuling) (*models.DisputeRecord, error) {
	dispute, err := s.loadDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	unlock := resultLocks.lock(dispute.MatchID)
	defer unlock()

	dispute, err = s.loadDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status.IsClosed() {
		return nil, fmt.Errorf("%w: dispute %s is %s", ErrDisputeClosed, dispute.ID, dispute.Status)
	}

	match, err := s.loadMatch(ctx, dispute.MatchID)
	if err != nil {
		return nil, err
	}
	if match.State != models.MatchDisputed {
		return nil, fmt.Errorf("%w: match %d is %s", ErrMatchNotDisputable, match.ID, match.State)
	}
	if !match.HasParticipant(ruling.WinnerID) {
		return nil, fmt.Errorf("%w: participant %d in match %d", ErrWinnerNotInMatch, ruling.WinnerID, match.ID)
	}

	var submission *models.ResultSubmission
	if dispute.SubmissionID != nil {
		submission, err = s.submissionRepo.GetByID(ctx, *dispute.SubmissionID)
		if err != nil && !errors.Is(err, repositories.ErrSubmissionNotFound) {
			return nil, err
		}
	}

	// The ruling either upholds the contested claim or sides with the
	// party that disputed it.
	dispute.Status = models.DisputeResolvedForOpponent
	if submission != nil && submission.Payload.WinnerID == ruling.WinnerID {
		dispute.Status = models.DisputeResolvedForSubmitter
	}
	score1, score2, winnerID := ruling.Score1, ruling.Score2, ruling.WinnerID
	dispute.FinalScore1 = &score1
	dispute.FinalScore2 = &score2
	dispute.FinalWinnerID = &winnerID
	dispute.Notes = ruling.Notes
	resolved := s.now()
	dispute.ResolvedAt = &resolved

	match.Score1 = &score1
	match.Score2 = &score2
	match.WinnerID = &winnerID
	loserID := match.OpponentOf(winnerID)
	match.LoserID = &loserID
	match.State = models.MatchCompleted
	match.CompletedAt = &resolved

	bracket, err := s.bracketRepo.GetByID(ctx, match.BracketID)
	if err != nil {
		return nil, err
	}

	var res *AdvancementResult
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.disputeRepo.Update(ctx, tx, dispute); err != nil {
			return err
		}
		if submission != nil {
			status := models.SubmissionRejected
			if dispute.Status == models.DisputeResolvedForSubmitter {
				status = models.SubmissionFinalized
			}
			if err := s.submissionRepo.UpdateStatus(ctx, tx, submission.ID, status); err != nil {
				return err
			}
		}
		if err := s.matchRepo.Update(ctx, tx, match); err != nil {
			return err
		}
		// Override subsumes plain advancement when the node has no winner
		// yet, and corrects an earlier advancement when it does.
		res, err = s.engine.Override(ctx, tx, bracket, match, winnerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("dispute resolved",
		slog.String("dispute_id", dispute.ID),
		slog.Int("match_id", match.ID),
		slog.String("outcome", string(dispute.Status)),
		slog.Int("final_winner_id", winnerID),
	)
	s.publisher.Publish(bracket.TournamentID, brackets.EventMatchCompleted, match)
	for _, created := range res.CreatedMatches {
		s.publisher.Publish(bracket.TournamentID, brackets.EventMatchCreated, created)
	}
	signalCompletion(ctx, s.matchRepo, s.publisher, s.logger, bracket, res)
	return dispute, nil
}

func (s *disputeService) Withdraw(ctx context.Context, disputeID string) (*models.DisputeRecord, error) {
	dispute, err := s.loadDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	unlock := resultLocks.lock(dispute.MatchID)
	defer unlock()

	dispute, err = s.loadDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status.IsClosed() {
		return nil, fmt.Errorf("%w: dispute %s is %s", ErrDisputeClosed, dispute.ID, dispute.Status)
	}

	match, err := s.loadMatch(ctx, dispute.MatchID)
	if err != nil {
		return nil, err
	}

	var submission *models.ResultSubmission
	if dispute.SubmissionID != nil {
		submission, err = s.submissionRepo.GetByID(ctx, *dispute.SubmissionID)
		if err != nil && !errors.Is(err, repositories.ErrSubmissionNotFound) {
			return nil, err
		}
	}

	dispute.Status = models.DisputeCancelled
	resolved := s.now()
	dispute.ResolvedAt = &resolved

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.disputeRepo.Update(ctx, tx, dispute); err != nil {
			return err
		}
		if submission != nil {
			if err := s.submissionRepo.UpdateStatus(ctx, tx, submission.ID, models.SubmissionPending); err != nil {
				return err
			}
		}
		if match.State == models.MatchDisputed {
			match.State = models.MatchPendingResult
			return s.matchRepo.Update(ctx, tx, match)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Resume the original window; a deadline already in the past
	// auto-confirms immediately.
	if submission != nil {
		submission.Status = models.SubmissionPending
		s.submissions.ArmAutoConfirm(submission)
	}

	s.logger.Info("dispute withdrawn",
		slog.String("dispute_id", dispute.ID),
		slog.Int("match_id", match.ID),
	)
	s.publishMatch(ctx, brackets.EventMatchUpdated, match)
	return dispute, nil
}

func (s *disputeService) AttachEvidence(ctx context.Context, disputeID string, input EvidenceInput) (*models.Evidence, error) {
	dispute, err := s.loadDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status.IsClosed() {
		return nil, fmt.Errorf("%w: dispute %s is %s", ErrDisputeClosed, dispute.ID, dispute.Status)
	}

	evidence := &models.Evidence{
		ID:        uuid.NewString(),
		DisputeID: dispute.ID,
		Kind:      input.Kind,
		URL:       input.URL,
		Note:      input.Note,
	}
	if input.Body != nil {
		key := path.Join("evidence", dispute.ID, evidence.ID+"-"+input.FileName)
		url, err := s.uploader.Upload(ctx, key, input.ContentType, input.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to store evidence file: %w", err)
		}
		evidence.URL = url
	}

	if err := s.disputeRepo.AddEvidence(ctx, s.db, evidence); err != nil {
		return nil, err
	}
	return evidence, nil
}

func (s *disputeService) ReopenCompleted(ctx context.Context, matchID, openedBy int, reason string) (*models.DisputeRecord, error) {
	unlock := resultLocks.lock(matchID)
	defer unlock()

	match, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.State != models.MatchCompleted && match.State != models.MatchForfeit {
		return nil, fmt.Errorf("%w: match %d is %s, not completed", ErrMatchNotDisputable, match.ID, match.State)
	}
	if _, err := s.disputeRepo.GetOpenByMatch(ctx, matchID); err == nil {
		return nil, fmt.Errorf("%w: match %d already has an open dispute", ErrMatchNotDisputable, matchID)
	} else if !errors.Is(err, repositories.ErrDisputeNotFound) {
		return nil, err
	}

	dispute := &models.DisputeRecord{
		ID:       uuid.NewString(),
		MatchID:  matchID,
		OpenedBy: openedBy,
		Reason:   reason,
		Status:   models.DisputeOpen,
	}

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.disputeRepo.Create(ctx, tx, dispute); err != nil {
			return err
		}
		match.State = models.MatchDisputed
		return s.matchRepo.Update(ctx, tx, match)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("completed match reopened for dispute",
		slog.Int("match_id", matchID),
		slog.String("dispute_id", dispute.ID),
	)
	s.publishMatch(ctx, brackets.EventMatchUpdated, match)
	return dispute, nil
}

func (s *disputeService) loadDispute(ctx context.Context, disputeID string) (*models.DisputeRecord, error) {
	dispute, err := s.disputeRepo.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, repositories.ErrDisputeNotFound) {
			return nil, ErrDisputeNotFound
		}
		return nil, err
	}
	return dispute, nil
}

func (s *disputeService) loadMatch(ctx context.Context, matchID int) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return match, nil
}

func (s *disputeService) publishMatch(ctx context.Context, eventType string, match *models.Match) {
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
