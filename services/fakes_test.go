package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/Dosada05/bracket-engine/models"
	"github.com/Dosada05/bracket-engine/repositories"
	"github.com/stretchr/testify/require"
)

// newTestDB hands out a *sql.DB whose transactions always succeed. The
// fakes ignore the executor, so the handle only has to survive
// Begin/Commit/Rollback.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 64; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBracketRepo keeps brackets and their node arenas in memory. Nodes
// are stored by pointer so mutations made by the advancement engine and
// writes made through the repository stay coherent, the way a single
// database row would.
type fakeBracketRepo struct {
	mu       sync.Mutex
	nextID   int
	brackets map[int]*models.Bracket
	nodes    map[int]map[int]*models.BracketNode
}

func newFakeBracketRepo() *fakeBracketRepo {
	return &fakeBracketRepo{
		brackets: make(map[int]*models.Bracket),
		nodes:    make(map[int]map[int]*models.BracketNode),
	}
}

func (r *fakeBracketRepo) Create(_ context.Context, _ repositories.SQLExecutor, bracket *models.Bracket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	bracket.ID = r.nextID
	bracket.CreatedAt = time.Now()
	r.brackets[bracket.ID] = bracket
	r.nodes[bracket.ID] = make(map[int]*models.BracketNode)
	return nil
}

func (r *fakeBracketRepo) GetByID(_ context.Context, id int) (*models.Bracket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bracket, ok := r.brackets[id]
	if !ok {
		return nil, repositories.ErrBracketNotFound
	}
	return bracket, nil
}

func (r *fakeBracketRepo) GetByTournament(_ context.Context, tournamentID int) (*models.Bracket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, bracket := range r.brackets {
		if bracket.TournamentID == tournamentID {
			return bracket, nil
		}
	}
	return nil, repositories.ErrBracketNotFound
}

func (r *fakeBracketRepo) SetFinalized(_ context.Context, _ repositories.SQLExecutor, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	bracket, ok := r.brackets[id]
	if !ok {
		return repositories.ErrBracketNotFound
	}
	bracket.Finalized = true
	return nil
}

func (r *fakeBracketRepo) UpdateTotals(_ context.Context, _ repositories.SQLExecutor, id, totalRounds, totalMatches int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	bracket, ok := r.brackets[id]
	if !ok {
		return repositories.ErrBracketNotFound
	}
	bracket.TotalRounds = totalRounds
	bracket.TotalMatches = totalMatches
	return nil
}

func (r *fakeBracketRepo) CreateNodes(_ context.Context, _ repositories.SQLExecutor, nodes []*models.BracketNode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, node := range nodes {
		arena, ok := r.nodes[node.BracketID]
		if !ok {
			return repositories.ErrBracketNotFound
		}
		if _, exists := arena[node.Position]; exists {
			return fmt.Errorf("duplicate node position %d", node.Position)
		}
		r.nextID++
		node.ID = r.nextID
		arena[node.Position] = node
	}
	return nil
}

func (r *fakeBracketRepo) GetNode(_ context.Context, bracketID, position int) (*models.BracketNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, ok := r.nodes[bracketID][position]
	if !ok {
		return nil, repositories.ErrBracketNodeNotFound
	}
	return node, nil
}

func (r *fakeBracketRepo) ListNodes(_ context.Context, bracketID int) ([]*models.BracketNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	nodes := make([]*models.BracketNode, 0, len(r.nodes[bracketID]))
	for _, node := range r.nodes[bracketID] {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Position < nodes[j].Position })
	return nodes, nil
}

func (r *fakeBracketRepo) UpdateNodeWinner(_ context.Context, _ repositories.SQLExecutor, bracketID, position, winnerID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, ok := r.nodes[bracketID][position]
	if !ok {
		return repositories.ErrBracketNodeNotFound
	}
	node.WinnerID = &winnerID
	return nil
}

func (r *fakeBracketRepo) UpdateNodeSlot(_ context.Context, _ repositories.SQLExecutor, bracketID, position, slot, participantID int, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, ok := r.nodes[bracketID][position]
	if !ok {
		return repositories.ErrBracketNodeNotFound
	}
	node.SetSlot(slot, participantID, name)
	return nil
}

type fakeMatchRepo struct {
	mu      sync.Mutex
	nextID  int
	matches map[int]*models.Match
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{matches: make(map[int]*models.Match)}
}

func (r *fakeMatchRepo) Create(_ context.Context, _ repositories.SQLExecutor, match *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.matches {
		if existing.BracketID == match.BracketID && existing.NodePosition == match.NodePosition {
			return repositories.ErrMatchBracketInvalid
		}
	}
	r.nextID++
	match.ID = r.nextID
	match.CreatedAt = time.Now()
	stored := *match
	r.matches[match.ID] = &stored
	return nil
}

func (r *fakeMatchRepo) GetByID(_ context.Context, id int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	match, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	copied := *match
	return &copied, nil
}

func (r *fakeMatchRepo) GetByNode(_ context.Context, bracketID, position int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, match := range r.matches {
		if match.BracketID == bracketID && match.NodePosition == position {
			copied := *match
			return &copied, nil
		}
	}
	return nil, repositories.ErrMatchNotFound
}

func (r *fakeMatchRepo) ListByBracket(_ context.Context, bracketID int, round *int, state *models.MatchState) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matches := make([]*models.Match, 0)
	for _, match := range r.matches {
		if match.BracketID != bracketID {
			continue
		}
		if round != nil && match.Round != *round {
			continue
		}
		if state != nil && match.State != *state {
			continue
		}
		copied := *match
		matches = append(matches, &copied)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Round != matches[j].Round {
			return matches[i].Round < matches[j].Round
		}
		if matches[i].MatchNumber != matches[j].MatchNumber {
			return matches[i].MatchNumber < matches[j].MatchNumber
		}
		return matches[i].ID < matches[j].ID
	})
	return matches, nil
}

func (r *fakeMatchRepo) Update(_ context.Context, _ repositories.SQLExecutor, match *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.matches[match.ID]; !ok {
		return repositories.ErrMatchNotFound
	}
	stored := *match
	r.matches[match.ID] = &stored
	return nil
}

func (r *fakeMatchRepo) CountNonTerminal(_ context.Context, bracketID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, match := range r.matches {
		if match.BracketID != bracketID {
			continue
		}
		switch match.State {
		case models.MatchCompleted, models.MatchCancelled, models.MatchForfeit:
		default:
			count++
		}
	}
	return count, nil
}

func (r *fakeMatchRepo) ListCheckInExpired(_ context.Context, now time.Time) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matches := make([]*models.Match, 0)
	for _, match := range r.matches {
		if match.State != models.MatchCheckIn || match.CheckInDeadline == nil {
			continue
		}
		if match.CheckInDeadline.Before(now) {
			copied := *match
			matches = append(matches, &copied)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches, nil
}

// mustMatch is a direct read of the stored row, for assertions.
func (r *fakeMatchRepo) mustMatch(t *testing.T, id int) *models.Match {
	t.Helper()
	match, err := r.GetByID(context.Background(), id)
	require.NoError(t, err)
	return match
}

type fakeSubmissionRepo struct {
	mu          sync.Mutex
	submissions map[string]*models.ResultSubmission
	order       []string
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{submissions: make(map[string]*models.ResultSubmission)}
}

func (r *fakeSubmissionRepo) Create(_ context.Context, _ repositories.SQLExecutor, submission *models.ResultSubmission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	submission.CreatedAt = time.Now()
	stored := *submission
	r.submissions[submission.ID] = &stored
	r.order = append(r.order, submission.ID)
	return nil
}

func (r *fakeSubmissionRepo) GetByID(_ context.Context, id string) (*models.ResultSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	submission, ok := r.submissions[id]
	if !ok {
		return nil, repositories.ErrSubmissionNotFound
	}
	copied := *submission
	return &copied, nil
}

func (r *fakeSubmissionRepo) GetPendingByMatch(_ context.Context, matchID int) (*models.ResultSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		submission := r.submissions[id]
		if submission.MatchID != matchID {
			continue
		}
		if submission.Status == models.SubmissionPending || submission.Status == models.SubmissionDisputed {
			copied := *submission
			return &copied, nil
		}
	}
	return nil, repositories.ErrSubmissionNotFound
}

func (r *fakeSubmissionRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id string, status models.SubmissionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	submission, ok := r.submissions[id]
	if !ok {
		return repositories.ErrSubmissionNotFound
	}
	submission.Status = status
	return nil
}

func (r *fakeSubmissionRepo) ListDueAutoConfirm(_ context.Context, now time.Time) ([]*models.ResultSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	due := make([]*models.ResultSubmission, 0)
	for _, id := range r.order {
		submission := r.submissions[id]
		if submission.Status == models.SubmissionPending && !submission.AutoConfirmDeadline.After(now) {
			copied := *submission
			due = append(due, &copied)
		}
	}
	return due, nil
}

// setDeadline rewrites a stored deadline, for sweeper scenarios.
func (r *fakeSubmissionRepo) setDeadline(id string, deadline time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if submission, ok := r.submissions[id]; ok {
		submission.AutoConfirmDeadline = deadline
	}
}

func (r *fakeSubmissionRepo) mustStatus(t *testing.T, id string) models.SubmissionStatus {
	t.Helper()
	submission, err := r.GetByID(context.Background(), id)
	require.NoError(t, err)
	return submission.Status
}

type fakeDisputeRepo struct {
	mu       sync.Mutex
	disputes map[string]*models.DisputeRecord
	evidence map[string][]models.Evidence
}

func newFakeDisputeRepo() *fakeDisputeRepo {
	return &fakeDisputeRepo{
		disputes: make(map[string]*models.DisputeRecord),
		evidence: make(map[string][]models.Evidence),
	}
}

func (r *fakeDisputeRepo) Create(_ context.Context, _ repositories.SQLExecutor, dispute *models.DisputeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	dispute.OpenedAt = time.Now()
	stored := *dispute
	r.disputes[dispute.ID] = &stored
	return nil
}

func (r *fakeDisputeRepo) GetByID(_ context.Context, id string) (*models.DisputeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dispute, ok := r.disputes[id]
	if !ok {
		return nil, repositories.ErrDisputeNotFound
	}
	copied := *dispute
	return &copied, nil
}

func (r *fakeDisputeRepo) GetOpenByMatch(_ context.Context, matchID int) (*models.DisputeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dispute := range r.disputes {
		if dispute.MatchID != matchID {
			continue
		}
		switch dispute.Status {
		case models.DisputeOpen, models.DisputeUnderReview, models.DisputeEscalated:
			copied := *dispute
			return &copied, nil
		}
	}
	return nil, repositories.ErrDisputeNotFound
}

func (r *fakeDisputeRepo) Update(_ context.Context, _ repositories.SQLExecutor, dispute *models.DisputeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.disputes[dispute.ID]; !ok {
		return repositories.ErrDisputeNotFound
	}
	stored := *dispute
	r.disputes[dispute.ID] = &stored
	return nil
}

func (r *fakeDisputeRepo) AddEvidence(_ context.Context, _ repositories.SQLExecutor, evidence *models.Evidence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	evidence.CreatedAt = time.Now()
	r.evidence[evidence.DisputeID] = append(r.evidence[evidence.DisputeID], *evidence)
	return nil
}

func (r *fakeDisputeRepo) ListEvidence(_ context.Context, disputeID string) ([]models.Evidence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Evidence(nil), r.evidence[disputeID]...), nil
}

// manualScheduler holds timers without real clocks; tests fire them
// explicitly.
type manualScheduler struct {
	mu        sync.Mutex
	scheduled map[string]func()
	fireAt    map[string]time.Time
	cancelled []string
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{
		scheduled: make(map[string]func()),
		fireAt:    make(map[string]time.Time),
	}
}

func (s *manualScheduler) Schedule(submissionID string, fireAt time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled[submissionID] = fn
	s.fireAt[submissionID] = fireAt
}

func (s *manualScheduler) Cancel(submissionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scheduled, submissionID)
	delete(s.fireAt, submissionID)
	s.cancelled = append(s.cancelled, submissionID)
}

func (s *manualScheduler) fire(t *testing.T, submissionID string) {
	s.mu.Lock()
	fn, ok := s.scheduled[submissionID]
	delete(s.scheduled, submissionID)
	delete(s.fireAt, submissionID)
	s.mu.Unlock()
	require.True(t, ok, "no timer armed for submission %s", submissionID)
	fn()
}

func (s *manualScheduler) armed(submissionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.scheduled[submissionID]
	return ok
}

func (s *manualScheduler) wasCancelled(submissionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.cancelled {
		if id == submissionID {
			return true
		}
	}
	return false
}

type publishedEvent struct {
	TournamentID int
	Type         string
	Payload      interface{}
}

type recordPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordPublisher) Publish(tournamentID int, eventType string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{TournamentID: tournamentID, Type: eventType, Payload: payload})
}

func (p *recordPublisher) typesSeen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.Type)
	}
	return types
}

func (p *recordPublisher) has(eventType string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, event := range p.events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

type fakeUploader struct {
	mu   sync.Mutex
	keys []string
}

func (u *fakeUploader) Upload(_ context.Context, key, _ string, body io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.keys = append(u.keys, key)
	return "https://cdn.test/" + key, nil
}

func (u *fakeUploader) Delete(_ context.Context, _ string) error { return nil }

func seededParticipants(n int) []*models.Participant {
	participants := make([]*models.Participant, n)
	for i := 0; i < n; i++ {
		participants[i] = &models.Participant{
			ID:          i + 1,
			DisplayName: fmt.Sprintf("Team %d", i+1),
		}
	}
	return participants
}
