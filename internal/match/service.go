// internal/match/service.go
package match

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/seungho-lim/numrace/internal/engine"
	"github.com/seungho-lim/numrace/internal/models"
	"github.com/seungho-lim/numrace/internal/rating"
)

// TransitionBufferSec pads the new deadline whenever the match advances to
// the next queued problem, so clients have a moment to show the handoff.
const TransitionBufferSec = 5

// Domain-state failures. The string form is the machine code surfaced to
// clients.
var (
	ErrRoundNotActive = errors.New("round_not_active")
	ErrNoActiveMatch  = errors.New("no_active_match")
)

// Profile aggregate fields understood by ProfileStore.Increment.
const (
	FieldTotalScore = "total_score"
	FieldWinCount   = "win_count"
	FieldLossCount  = "loss_count"
	FieldRating     = "rating"
)

// MatchStore persists matches.
type MatchStore interface {
	CreateMatch(ctx context.Context, m *models.Match) error
	UpdateMatch(ctx context.Context, m *models.Match) error
	// GetMatch returns the match by id, or nil when it does not exist.
	GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error)
	// GetActiveMatch returns the most recent ACTIVE match for the room, or
	// nil when there is none.
	GetActiveMatch(ctx context.Context, roomID uuid.UUID) (*models.Match, error)
	// ListExpiredActive returns ACTIVE matches whose deadline is at or
	// before now. Used by the idle sweep.
	ListExpiredActive(ctx context.Context, now time.Time) ([]*models.Match, error)
}

// SubmissionStore persists submissions for the problem currently in play.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, sub *models.Submission) error
	ListByMatch(ctx context.Context, matchID uuid.UUID) ([]*models.Submission, error)
	DeleteByMatch(ctx context.Context, matchID uuid.UUID) error
}

// ProfileStore is the actor-profile collaborator for win/loss/score
// aggregates and rating lookups.
type ProfileStore interface {
	Increment(ctx context.Context, userID uuid.UUID, field string, delta int) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RoomStore is the slice of room persistence the orchestrator needs: a
// room is archived in lock-step with its match's closure.
type RoomStore interface {
	SetRoomStatus(ctx context.Context, roomID uuid.UUID, status models.RoomStatus) error
}

// Publisher delivers orchestrator events to a room's observers.
type Publisher interface {
	BroadcastRoom(roomID uuid.UUID, payload interface{})
}

// Journal receives an audit record per persisted submission, consumed out
// of process. Failures are logged, never surfaced to the player.
type Journal interface {
	RecordSubmission(ctx context.Context, sub *models.Submission) error
}

// Deps wires a Service. Engine and Now default when left unset; Journal
// and Publisher may be nil.
type Deps struct {
	Matches     MatchStore
	Submissions SubmissionStore
	Profiles    ProfileStore
	Rooms       RoomStore
	Engine      *engine.Engine
	Publisher   Publisher
	Journal     Journal
	Logger      *logrus.Logger
	Now         func() time.Time
}

// Service owns match lifecycle state transitions. Every public operation
// serializes on a per-match mutex, so two submissions for the same match
// cannot interleave their read-modify-write on the problem index, deadline
// or submission set.
type Service struct {
	matches     MatchStore
	submissions SubmissionStore
	profiles    ProfileStore
	rooms       RoomStore
	engine      *engine.Engine
	publisher   Publisher
	journal     Journal
	logger      *logrus.Logger
	now         func() time.Time

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

func NewService(deps Deps) *Service {
	if deps.Engine == nil {
		deps.Engine = engine.NewEngine(nil)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	return &Service{
		matches:     deps.Matches,
		submissions: deps.Submissions,
		profiles:    deps.Profiles,
		rooms:       deps.Rooms,
		engine:      deps.Engine,
		publisher:   deps.Publisher,
		journal:     deps.Journal,
		logger:      deps.Logger,
		now:         deps.Now,
		locks:       make(map[uuid.UUID]*sync.Mutex),
	}
}

// lockMatch acquires the per-match mutex, creating it on first use.
func (s *Service) lockMatch(matchID uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	mu, ok := s.locks[matchID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[matchID] = mu
	}
	s.locksMu.Unlock()
	mu.Lock()
	return mu
}

func (s *Service) forgetLock(matchID uuid.UUID) {
	s.locksMu.Lock()
	delete(s.locks, matchID)
	s.locksMu.Unlock()
}

// reloadLocked refreshes m from the store under its lock. The caller's
// copy can be stale: the store materializes a fresh row per query, so a
// concurrent request may have finalized the match between the caller's
// fetch and its lock acquisition. Every status guard must run against the
// reloaded state, never the snapshot the caller handed in.
func (s *Service) reloadLocked(ctx context.Context, m *models.Match) error {
	cur, err := s.matches.GetMatch(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("reload match: %w", err)
	}
	if cur == nil {
		return ErrRoundNotActive
	}
	*m = *cur
	return nil
}

// CreateMatch creates an ACTIVE match for the room with its deadline set
// durationMinutes ahead, stores the problem queue at index 0 in the
// metadata snapshot, and announces round_started. Callers must ensure the
// room has no ACTIVE match already.
func (s *Service) CreateMatch(ctx context.Context, room *models.Room, targetNumber, optimalCost, roundNumber, durationMinutes int, queue []models.ProblemRef, playerIDs []uuid.UUID) (*models.Match, error) {
	if len(queue) == 0 {
		queue = []models.ProblemRef{{TargetNumber: targetNumber, OptimalCost: optimalCost}}
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generate match id: %w", err)
	}
	now := s.now()
	deadline := now.Add(time.Duration(durationMinutes) * time.Minute)

	m := &models.Match{
		ID:           id,
		RoomID:       room.ID,
		RoundType:    room.RoundType,
		TargetNumber: targetNumber,
		OptimalCost:  optimalCost,
		Status:       models.MatchActive,
		Deadline:     &deadline,
		StartedAt:    &now,
		RoundNumber:  roundNumber,
		Metadata: &models.MatchMetadata{
			Problems:           queue,
			CurrentIndex:       0,
			PlayerIDs:          playerIDs,
			ProblemDurationSec: durationMinutes * 60,
		},
		CreatedAt: now,
	}
	if err := s.matches.CreateMatch(ctx, m); err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}

	s.publish(m.RoomID, RoundStarted{
		Type:         EventRoundStarted,
		RoomID:       m.RoomID,
		MatchID:      m.ID,
		TargetNumber: m.TargetNumber,
		OptimalCost:  m.OptimalCost,
		Deadline:     m.Deadline,
		Problems:     queue,
		CurrentIndex: 0,
	})
	return m, nil
}

// GetActiveMatch returns the room's ACTIVE match, lazily finalizing it
// first if its deadline has passed. Returns nil when no match is live.
func (s *Service) GetActiveMatch(ctx context.Context, roomID uuid.UUID) (*models.Match, error) {
	m, err := s.matches.GetActiveMatch(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}

	mu := s.lockMatch(m.ID)
	defer mu.Unlock()
	if err := s.reloadLocked(ctx, m); err != nil {
		if errors.Is(err, ErrRoundNotActive) {
			return nil, nil
		}
		return nil, err
	}
	if _, err := s.timeoutCheckLocked(ctx, m); err != nil {
		return nil, err
	}
	if m.Status != models.MatchActive {
		return nil, nil
	}
	return m, nil
}

// Submit runs the evaluate -> score -> persist sequence for one attempt
// against the match's current problem. The only submission-time failure is
// engine.ErrEmptyExpression; any other malformed input produces a
// zero-score submission. Aggregate counters are incremented exactly once
// per successful call.
func (s *Service) Submit(ctx context.Context, m *models.Match, actor *models.User, teamLabel, expression string) (*models.Submission, error) {
	mu := s.lockMatch(m.ID)
	defer mu.Unlock()

	if err := s.reloadLocked(ctx, m); err != nil {
		return nil, err
	}
	// Poll-triggered timeout detection: a match past its deadline is
	// finalized on this access before the submission is considered.
	if _, err := s.timeoutCheckLocked(ctx, m); err != nil {
		return nil, err
	}
	if m.Status != models.MatchActive {
		return nil, ErrRoundNotActive
	}

	outcome, err := s.engine.Evaluate(expression, m.TargetNumber, m.OptimalCost, m.Deadline, s.now())
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generate submission id: %w", err)
	}
	sub := &models.Submission{
		ID:             id,
		MatchID:        m.ID,
		Expression:     expression,
		ResultValue:    outcome.Value,
		Cost:           outcome.Cost,
		Distance:       outcome.Distance,
		IsOptimal:      outcome.IsOptimal,
		Score:          outcome.Score,
		SubmittedAt:    s.now(),
		SubmittedRound: m.RoundNumber,
		TeamLabel:      teamLabel,
	}
	if actor != nil {
		sub.UserID = &actor.ID
	}
	if err := s.submissions.CreateSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("persist submission: %w", err)
	}

	if actor != nil {
		if err := s.profiles.Increment(ctx, actor.ID, FieldTotalScore, outcome.Score); err != nil {
			return nil, fmt.Errorf("increment total score: %w", err)
		}
		if outcome.Distance != nil && *outcome.Distance == 0 {
			if err := s.profiles.Increment(ctx, actor.ID, FieldWinCount, 1); err != nil {
				return nil, fmt.Errorf("increment win count: %w", err)
			}
		}
	}

	s.journalSubmission(sub)

	s.publish(m.RoomID, SubmissionReceived{
		Type:       EventSubmissionReceived,
		RoomID:     m.RoomID,
		MatchID:    m.ID,
		Submission: sub,
	})

	if sub.Distance != nil && *sub.Distance == 0 {
		if err := s.advanceOrCloseLocked(ctx, m, sub); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

// advanceOrCloseLocked handles an exact hit: either move the match to the
// next queued problem or close it. Caller holds the match lock.
//
// Policy note: an exact hit advances or closes regardless of whether it
// stayed within the optimal cost budget. Optimality only affects the score
// and the terminal reason tag (optimal vs target_hit).
func (s *Service) advanceOrCloseLocked(ctx context.Context, m *models.Match, sub *models.Submission) error {
	meta := m.Metadata
	hasMore := meta != nil && meta.CurrentIndex < len(meta.Problems)-1

	if !hasMore {
		reason := ReasonTargetHit
		if sub.IsOptimal {
			reason = ReasonOptimal
		}
		if err := s.closeLocked(ctx, m, &sub.ID); err != nil {
			return err
		}
		s.settleDecidedLocked(ctx, m, sub.UserID)
		s.publish(m.RoomID, RoundFinished{
			Type:               EventRoundFinished,
			RoomID:             m.RoomID,
			MatchID:            m.ID,
			Reason:             reason,
			WinnerSubmissionID: &sub.ID,
			WinnerUserID:       sub.UserID,
		})
		return nil
	}

	next := meta.Problems[meta.CurrentIndex+1]
	meta.CurrentIndex++
	m.TargetNumber = next.TargetNumber
	m.OptimalCost = next.OptimalCost

	// Only the just-finished problem's submissions are cleared; earlier
	// problems were already cleared by their own advance.
	if err := s.submissions.DeleteByMatch(ctx, m.ID); err != nil {
		return fmt.Errorf("clear submissions: %w", err)
	}

	duration := time.Duration(meta.ProblemDurationSec) * time.Second
	if duration <= 0 {
		duration = time.Minute
	}
	deadline := s.now().Add(duration + TransitionBufferSec*time.Second)
	m.Deadline = &deadline

	if err := s.matches.UpdateMatch(ctx, m); err != nil {
		return fmt.Errorf("advance match: %w", err)
	}

	s.publish(m.RoomID, ProblemAdvanced{
		Type:         EventProblemAdvanced,
		RoomID:       m.RoomID,
		MatchID:      m.ID,
		CurrentIndex: meta.CurrentIndex,
		TargetNumber: m.TargetNumber,
		OptimalCost:  m.OptimalCost,
		Deadline:     m.Deadline,
	})
	return nil
}

// TimeoutCheck finalizes the match if it is ACTIVE and past its deadline.
// Reports whether a finalization happened.
func (s *Service) TimeoutCheck(ctx context.Context, m *models.Match) (bool, error) {
	mu := s.lockMatch(m.ID)
	defer mu.Unlock()
	if err := s.reloadLocked(ctx, m); err != nil {
		if errors.Is(err, ErrRoundNotActive) {
			return false, nil
		}
		return false, err
	}
	return s.timeoutCheckLocked(ctx, m)
}

func (s *Service) timeoutCheckLocked(ctx context.Context, m *models.Match) (bool, error) {
	if m.Status != models.MatchActive {
		return false, nil
	}
	if m.Deadline == nil || s.now().Before(*m.Deadline) {
		return false, nil
	}

	subs, err := s.submissions.ListByMatch(ctx, m.ID)
	if err != nil {
		return false, fmt.Errorf("list submissions: %w", err)
	}
	winner := SelectWinner(subs)

	if winner == nil {
		if err := s.closeLocked(ctx, m, nil); err != nil {
			return false, err
		}
		s.publish(m.RoomID, RoundFinished{
			Type:    EventRoundFinished,
			RoomID:  m.RoomID,
			MatchID: m.ID,
			Reason:  ReasonTimeout,
		})
		return true, nil
	}

	if winner.Distance != nil && *winner.Distance == 0 {
		// The best submission already hit the target: route it through the
		// normal advance/close path.
		if err := s.advanceOrCloseLocked(ctx, m, winner); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := s.closeLocked(ctx, m, &winner.ID); err != nil {
		return false, err
	}
	if winner.UserID != nil {
		if err := s.profiles.Increment(ctx, *winner.UserID, FieldWinCount, 1); err != nil {
			s.logger.Warnf("match %s: timeout winner increment failed: %v", m.ID, err)
		}
		s.settleDecidedLocked(ctx, m, winner.UserID)
	}
	s.publish(m.RoomID, RoundFinished{
		Type:               EventRoundFinished,
		RoomID:             m.RoomID,
		MatchID:            m.ID,
		Reason:             ReasonTimeout,
		WinnerSubmissionID: &winner.ID,
		WinnerUserID:       winner.UserID,
	})
	return true, nil
}

// Forfeit closes an ACTIVE match immediately because a participant left.
// No winning submission is recorded, only the explicit winner override.
func (s *Service) Forfeit(ctx context.Context, m *models.Match, winnerUserID uuid.UUID) error {
	mu := s.lockMatch(m.ID)
	defer mu.Unlock()

	if err := s.reloadLocked(ctx, m); err != nil {
		return err
	}
	if m.Status != models.MatchActive {
		return ErrRoundNotActive
	}
	if err := s.closeLocked(ctx, m, nil); err != nil {
		return err
	}
	if winnerUserID != uuid.Nil {
		if err := s.profiles.Increment(ctx, winnerUserID, FieldWinCount, 1); err != nil {
			s.logger.Warnf("match %s: forfeit winner increment failed: %v", m.ID, err)
		}
		s.settleDecidedLocked(ctx, m, &winnerUserID)
	}

	ev := RoundFinished{
		Type:    EventRoundFinished,
		RoomID:  m.RoomID,
		MatchID: m.ID,
		Reason:  ReasonForfeit,
	}
	if winnerUserID != uuid.Nil {
		ev.WinnerUserID = &winnerUserID
	}
	s.publish(m.RoomID, ev)
	return nil
}

// CloseMatch closes an ACTIVE match with an optional winning submission.
func (s *Service) CloseMatch(ctx context.Context, m *models.Match, winningSubmissionID *uuid.UUID) error {
	mu := s.lockMatch(m.ID)
	defer mu.Unlock()

	if err := s.reloadLocked(ctx, m); err != nil {
		return err
	}
	if m.Status != models.MatchActive {
		return ErrRoundNotActive
	}
	return s.closeLocked(ctx, m, winningSubmissionID)
}

// closeLocked performs the terminal transition: status CLOSED, finished
// timestamp, winning submission reference, room archived in lock-step.
// A CLOSED match is immutable afterwards. Caller holds the match lock.
func (s *Service) closeLocked(ctx context.Context, m *models.Match, winningSubmissionID *uuid.UUID) error {
	now := s.now()
	m.Status = models.MatchClosed
	m.FinishedAt = &now
	m.WinningSubmissionID = winningSubmissionID
	if err := s.matches.UpdateMatch(ctx, m); err != nil {
		return fmt.Errorf("close match: %w", err)
	}
	if err := s.rooms.SetRoomStatus(ctx, m.RoomID, models.RoomArchived); err != nil {
		return fmt.Errorf("archive room: %w", err)
	}
	s.forgetLock(m.ID)
	return nil
}

// settleDecidedLocked applies the loser's loss count and the Elo exchange
// for a match that closed with a decided winner. Best effort: aggregate
// failures are logged, never propagated, since the match is already
// CLOSED. Caller holds the match lock.
func (s *Service) settleDecidedLocked(ctx context.Context, m *models.Match, winnerUserID *uuid.UUID) {
	if winnerUserID == nil || m.Metadata == nil {
		return
	}
	var loserID *uuid.UUID
	for i := range m.Metadata.PlayerIDs {
		if m.Metadata.PlayerIDs[i] != *winnerUserID {
			loserID = &m.Metadata.PlayerIDs[i]
			break
		}
	}
	if loserID == nil {
		return
	}

	if err := s.profiles.Increment(ctx, *loserID, FieldLossCount, 1); err != nil {
		s.logger.Warnf("match %s: loss count increment failed: %v", m.ID, err)
	}

	winner, err := s.profiles.GetUserByID(ctx, *winnerUserID)
	if err != nil {
		s.logger.Warnf("match %s: load winner for rating: %v", m.ID, err)
		return
	}
	loser, err := s.profiles.GetUserByID(ctx, *loserID)
	if err != nil {
		s.logger.Warnf("match %s: load loser for rating: %v", m.ID, err)
		return
	}
	winDelta, loseDelta := rating.Pair(winner.Rating, loser.Rating)
	if err := s.profiles.Increment(ctx, *winnerUserID, FieldRating, winDelta); err != nil {
		s.logger.Warnf("match %s: winner rating update failed: %v", m.ID, err)
	}
	if err := s.profiles.Increment(ctx, *loserID, FieldRating, loseDelta); err != nil {
		s.logger.Warnf("match %s: loser rating update failed: %v", m.ID, err)
	}
}

func (s *Service) publish(roomID uuid.UUID, payload interface{}) {
	if s.publisher != nil {
		s.publisher.BroadcastRoom(roomID, payload)
	}
}

func (s *Service) journalSubmission(sub *models.Submission) {
	if s.journal == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.journal.RecordSubmission(ctx, sub); err != nil {
			s.logger.Warnf("submission journal: %v", err)
		}
	}()
}

// SelectWinner orders submissions by the timeout resolution total order:
// a non-nil distance before nil, then ascending distance, then ascending
// submission time, then ascending cost. Returns nil for an empty slate.
func SelectWinner(subs []*models.Submission) *models.Submission {
	if len(subs) == 0 {
		return nil
	}
	sorted := make([]*models.Submission, len(subs))
	copy(sorted, subs)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.Distance == nil && b.Distance == nil:
			// fall through to time ordering
		case a.Distance == nil:
			return false
		case b.Distance == nil:
			return true
		case *a.Distance != *b.Distance:
			return *a.Distance < *b.Distance
		}
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
		return a.Cost < b.Cost
	})
	return sorted[0]
}
