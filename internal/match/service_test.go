// internal/match/service_test.go
package match

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seungho-lim/numrace/internal/engine"
	"github.com/seungho-lim/numrace/internal/models"
)

// fakeStore backs every store interface the service needs with in-memory
// maps.
type fakeStore struct {
	mu         sync.Mutex
	matches    map[uuid.UUID]*models.Match
	subs       []*models.Submission
	users      map[uuid.UUID]*models.User
	increments map[string]int
	roomStatus map[uuid.UUID]models.RoomStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		matches:    make(map[uuid.UUID]*models.Match),
		users:      make(map[uuid.UUID]*models.User),
		increments: make(map[string]int),
		roomStatus: make(map[uuid.UUID]models.RoomStatus),
	}
}

// cloneMatch mirrors the SQL store: every query materializes a fresh row,
// so callers never share a struct.
func cloneMatch(m *models.Match) *models.Match {
	cp := *m
	if m.Metadata != nil {
		meta := *m.Metadata
		meta.Problems = append([]models.ProblemRef(nil), m.Metadata.Problems...)
		meta.PlayerIDs = append([]uuid.UUID(nil), m.Metadata.PlayerIDs...)
		cp.Metadata = &meta
	}
	return &cp
}

func (f *fakeStore) CreateMatch(ctx context.Context, m *models.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches[m.ID] = cloneMatch(m)
	return nil
}

func (f *fakeStore) UpdateMatch(ctx context.Context, m *models.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches[m.ID] = cloneMatch(m)
	return nil
}

func (f *fakeStore) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[id]
	if !ok {
		return nil, nil
	}
	return cloneMatch(m), nil
}

func (f *fakeStore) GetActiveMatch(ctx context.Context, roomID uuid.UUID) (*models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.matches {
		if m.RoomID == roomID && m.Status == models.MatchActive {
			return cloneMatch(m), nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListExpiredActive(ctx context.Context, now time.Time) ([]*models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Match
	for _, m := range f.matches {
		if m.Status == models.MatchActive && m.Deadline != nil && !now.Before(*m.Deadline) {
			out = append(out, cloneMatch(m))
		}
	}
	return out, nil
}

func (f *fakeStore) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, sub)
	return nil
}

func (f *fakeStore) ListByMatch(ctx context.Context, matchID uuid.UUID) ([]*models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Submission
	for _, s := range f.subs {
		if s.MatchID == matchID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteByMatch(ctx context.Context, matchID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.subs[:0]
	for _, s := range f.subs {
		if s.MatchID != matchID {
			kept = append(kept, s)
		}
	}
	f.subs = kept
	return nil
}

func (f *fakeStore) Increment(ctx context.Context, userID uuid.UUID, field string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.increments[fmt.Sprintf("%s/%s", userID, field)] += delta
	return nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	u := &models.User{ID: id, Rating: 1500}
	f.users[id] = u
	return u, nil
}

func (f *fakeStore) SetRoomStatus(ctx context.Context, roomID uuid.UUID, status models.RoomStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roomStatus[roomID] = status
	return nil
}

func (f *fakeStore) counter(userID uuid.UUID, field string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.increments[fmt.Sprintf("%s/%s", userID, field)]
}

// fakePublisher collects broadcast payloads instead of fanning them out.
type fakePublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (p *fakePublisher) BroadcastRoom(roomID uuid.UUID, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, payload)
}

func (p *fakePublisher) last() interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	return p.events[len(p.events)-1]
}

func (p *fakePublisher) ofType(et EventType) []interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []interface{}
	for _, ev := range p.events {
		switch v := ev.(type) {
		case RoundStarted:
			if v.Type == et {
				out = append(out, v)
			}
		case SubmissionReceived:
			if v.Type == et {
				out = append(out, v)
			}
		case ProblemAdvanced:
			if v.Type == et {
				out = append(out, v)
			}
		case RoundFinished:
			if v.Type == et {
				out = append(out, v)
			}
		}
	}
	return out
}

type harness struct {
	store   *fakeStore
	pub     *fakePublisher
	svc     *Service
	now     time.Time
	nowMu   sync.Mutex
	room    *models.Room
	playerA uuid.UUID
	playerB uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   newFakeStore(),
		pub:     &fakePublisher{},
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		playerA: uuid.New(),
		playerB: uuid.New(),
	}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	h.svc = NewService(Deps{
		Matches:     h.store,
		Submissions: h.store,
		Profiles:    h.store,
		Rooms:       h.store,
		Engine:      engine.NewEngine(nil),
		Publisher:   h.pub,
		Logger:      logger,
		Now: func() time.Time {
			h.nowMu.Lock()
			defer h.nowMu.Unlock()
			return h.now
		},
	})
	roomID := uuid.New()
	h.room = &models.Room{
		ID:          roomID,
		HostID:      h.playerA,
		Status:      models.RoomWaiting,
		RoundType:   models.RoundIndividual,
		PlayerOneID: &h.playerA,
		PlayerTwoID: &h.playerB,
	}
	return h
}

func (h *harness) advance(d time.Duration) {
	h.nowMu.Lock()
	defer h.nowMu.Unlock()
	h.now = h.now.Add(d)
}

func (h *harness) userA() *models.User { return &models.User{ID: h.playerA} }
func (h *harness) userB() *models.User { return &models.User{ID: h.playerB} }

func (h *harness) players() []uuid.UUID { return []uuid.UUID{h.playerA, h.playerB} }

func TestCreateMatchDefaultsToSingleProblem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	m, err := h.svc.CreateMatch(ctx, h.room, 2, 3, 1, 3, nil, h.players())
	require.NoError(t, err)

	assert.Equal(t, models.MatchActive, m.Status)
	require.NotNil(t, m.Metadata)
	require.Len(t, m.Metadata.Problems, 1)
	assert.Equal(t, 2, m.Metadata.Problems[0].TargetNumber)
	assert.Equal(t, 0, m.Metadata.CurrentIndex)
	assert.Equal(t, 180, m.Metadata.ProblemDurationSec)
	require.NotNil(t, m.Deadline)
	assert.Equal(t, 3*time.Minute, m.Deadline.Sub(*m.StartedAt))

	started := h.pub.ofType(EventRoundStarted)
	require.Len(t, started, 1)
}

func TestSubmitExactAdvancesQueue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	queue := []models.ProblemRef{
		{TargetNumber: 2, OptimalCost: 3},
		{TargetNumber: 121, OptimalCost: 8},
	}
	m, err := h.svc.CreateMatch(ctx, h.room, 2, 3, 1, 3, queue, h.players())
	require.NoError(t, err)

	sub, err := h.svc.Submit(ctx, m, h.userA(), "", "1+1")
	require.NoError(t, err)
	require.NotNil(t, sub.Distance)
	assert.Zero(t, *sub.Distance)
	assert.True(t, sub.IsOptimal)

	// Exact hit on a non-final problem advances the queue.
	assert.Equal(t, models.MatchActive, m.Status)
	assert.Equal(t, 1, m.Metadata.CurrentIndex)
	assert.Equal(t, 121, m.TargetNumber)
	assert.Equal(t, 8, m.OptimalCost)

	// Earlier submissions are cleared for the fresh problem.
	remaining, err := h.store.ListByMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// New deadline: full problem duration plus the transition buffer.
	wantDeadline := h.now.Add(180*time.Second + TransitionBufferSec*time.Second)
	require.NotNil(t, m.Deadline)
	assert.Equal(t, wantDeadline, *m.Deadline)

	advanced := h.pub.ofType(EventProblemAdvanced)
	require.Len(t, advanced, 1)
	assert.Empty(t, h.pub.ofType(EventRoundFinished))
}

func TestSubmitExactClosesFinalProblem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	m, err := h.svc.CreateMatch(ctx, h.room, 2, 3, 1, 3, nil, h.players())
	require.NoError(t, err)

	sub, err := h.svc.Submit(ctx, m, h.userA(), "", "1+1")
	require.NoError(t, err)

	assert.Equal(t, models.MatchClosed, m.Status)
	require.NotNil(t, m.WinningSubmissionID)
	assert.Equal(t, sub.ID, *m.WinningSubmissionID)
	assert.NotNil(t, m.FinishedAt)
	assert.Equal(t, models.RoomArchived, h.store.roomStatus[h.room.ID])

	finished := h.pub.ofType(EventRoundFinished)
	require.Len(t, finished, 1)
	assert.Equal(t, ReasonOptimal, finished[0].(RoundFinished).Reason)

	// Aggregates: exact hit wins, loser recorded, ratings exchanged.
	assert.Equal(t, 1, h.store.counter(h.playerA, FieldWinCount))
	assert.Equal(t, 1, h.store.counter(h.playerB, FieldLossCount))
	assert.Greater(t, h.store.counter(h.playerA, FieldRating), 0)
	assert.Less(t, h.store.counter(h.playerB, FieldRating), 0)

	// A CLOSED match rejects further submissions.
	_, err = h.svc.Submit(ctx, m, h.userB(), "", "1+1")
	assert.ErrorIs(t, err, ErrRoundNotActive)
}

func TestSubmitExactOverBudgetStillCloses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Optimal cost 2 is unreachable; "1+1" costs 3 but still hits exactly.
	m, err := h.svc.CreateMatch(ctx, h.room, 2, 2, 1, 3, nil, h.players())
	require.NoError(t, err)

	sub, err := h.svc.Submit(ctx, m, h.userA(), "", "1+1")
	require.NoError(t, err)
	assert.False(t, sub.IsOptimal)

	assert.Equal(t, models.MatchClosed, m.Status)
	finished := h.pub.ofType(EventRoundFinished)
	require.Len(t, finished, 1)
	assert.Equal(t, ReasonTargetHit, finished[0].(RoundFinished).Reason)
}

func TestSubmitAfterDeadlineFinalizesFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	m, err := h.svc.CreateMatch(ctx, h.room, 5, 5, 1, 3, nil, h.players())
	require.NoError(t, err)

	h.advance(4 * time.Minute)

	_, err = h.svc.Submit(ctx, m, h.userA(), "", "1+1")
	assert.ErrorIs(t, err, ErrRoundNotActive)
	assert.Equal(t, models.MatchClosed, m.Status)

	finished := h.pub.ofType(EventRoundFinished)
	require.Len(t, finished, 1)
	assert.Equal(t, ReasonTimeout, finished[0].(RoundFinished).Reason)
}

func TestSubmitEmptyExpression(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	m, err := h.svc.CreateMatch(ctx, h.room, 5, 5, 1, 3, nil, h.players())
	require.NoError(t, err)

	_, err = h.svc.Submit(ctx, m, h.userA(), "", "   \n  ")
	assert.ErrorIs(t, err, engine.ErrEmptyExpression)

	subs, err := h.store.ListByMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSubmitMalformedScoresZero(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	m, err := h.svc.CreateMatch(ctx, h.room, 5, 5, 1, 3, nil, h.players())
	require.NoError(t, err)

	sub, err := h.svc.Submit(ctx, m, h.userA(), "", "1+")
	require.NoError(t, err)
	assert.Nil(t, sub.ResultValue)
	assert.Nil(t, sub.Distance)
	assert.Zero(t, sub.Score)
	assert.Equal(t, models.MatchActive, m.Status)
}

func TestTimeoutWithoutSubmissions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	m, err := h.svc.CreateMatch(ctx, h.room, 5, 5, 1, 3, nil, h.players())
	require.NoError(t, err)

	h.advance(4 * time.Minute)
	finalized, err := h.svc.TimeoutCheck(ctx, m)
	require.NoError(t, err)
	assert.True(t, finalized)
	assert.Equal(t, models.MatchClosed, m.Status)
	assert.Nil(t, m.WinningSubmissionID)

	finished := h.pub.ofType(EventRoundFinished)
	require.Len(t, finished, 1)
	ev := finished[0].(RoundFinished)
	assert.Equal(t, ReasonTimeout, ev.Reason)
	assert.Nil(t, ev.WinnerSubmissionID)
}

func TestTimeoutPicksClosestSubmission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	m, err := h.svc.CreateMatch(ctx, h.room, 4, 4, 1, 3, nil, h.players())
	require.NoError(t, err)

	// A lands at distance 2, B at distance 1, and one submission has no
	// value at all.
	_, err = h.svc.Submit(ctx, m, h.userA(), "", "1+1")
	require.NoError(t, err)
	h.advance(time.Second)
	best, err := h.svc.Submit(ctx, m, h.userB(), "", "1+1+1")
	require.NoError(t, err)
	h.advance(time.Second)
	_, err = h.svc.Submit(ctx, m, h.userA(), "", "1+")
	require.NoError(t, err)

	h.advance(4 * time.Minute)
	finalized, err := h.svc.TimeoutCheck(ctx, m)
	require.NoError(t, err)
	assert.True(t, finalized)

	require.NotNil(t, m.WinningSubmissionID)
	assert.Equal(t, best.ID, *m.WinningSubmissionID)
	assert.Equal(t, 1, h.store.counter(h.playerB, FieldWinCount))
	assert.Equal(t, 1, h.store.counter(h.playerA, FieldLossCount))

	finished := h.pub.ofType(EventRoundFinished)
	require.Len(t, finished, 1)
	assert.Equal(t, ReasonTimeout, finished[0].(RoundFinished).Reason)
}

func TestTimeoutCheckIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	m, err := h.svc.CreateMatch(ctx, h.room, 5, 5, 1, 3, nil, h.players())
	require.NoError(t, err)

	h.advance(4 * time.Minute)
	first, err := h.svc.TimeoutCheck(ctx, m)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := h.svc.TimeoutCheck(ctx, m)
	require.NoError(t, err)
	assert.False(t, second)
	assert.Len(t, h.pub.ofType(EventRoundFinished), 1)
}

func TestForfeit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	m, err := h.svc.CreateMatch(ctx, h.room, 5, 5, 1, 3, nil, h.players())
	require.NoError(t, err)

	require.NoError(t, h.svc.Forfeit(ctx, m, h.playerB))

	assert.Equal(t, models.MatchClosed, m.Status)
	assert.Nil(t, m.WinningSubmissionID)
	assert.Equal(t, 1, h.store.counter(h.playerB, FieldWinCount))
	assert.Equal(t, 1, h.store.counter(h.playerA, FieldLossCount))

	finished := h.pub.ofType(EventRoundFinished)
	require.Len(t, finished, 1)
	ev := finished[0].(RoundFinished)
	assert.Equal(t, ReasonForfeit, ev.Reason)
	require.NotNil(t, ev.WinnerUserID)
	assert.Equal(t, h.playerB, *ev.WinnerUserID)

	// Forfeiting twice fails.
	assert.ErrorIs(t, h.svc.Forfeit(ctx, m, h.playerB), ErrRoundNotActive)
}

func TestGetActiveMatchLazyTimeout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.CreateMatch(ctx, h.room, 5, 5, 1, 3, nil, h.players())
	require.NoError(t, err)

	live, err := h.svc.GetActiveMatch(ctx, h.room.ID)
	require.NoError(t, err)
	require.NotNil(t, live)

	h.advance(4 * time.Minute)
	gone, err := h.svc.GetActiveMatch(ctx, h.room.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestSubmitRejectsStaleMatchCopy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.svc.CreateMatch(ctx, h.room, 2, 3, 1, 3, nil, h.players())
	require.NoError(t, err)

	// Two requests fetch the match independently; the store hands each a
	// distinct struct, exactly as the SQL store materializes rows.
	copyA, err := h.svc.GetActiveMatch(ctx, h.room.ID)
	require.NoError(t, err)
	require.NotNil(t, copyA)
	copyB, err := h.svc.GetActiveMatch(ctx, h.room.ID)
	require.NoError(t, err)
	require.NotNil(t, copyB)
	require.NotSame(t, copyA, copyB)

	winning, err := h.svc.Submit(ctx, copyA, h.userA(), "", "1+1")
	require.NoError(t, err)
	assert.Equal(t, models.MatchClosed, copyA.Status)

	// The second request still holds an ACTIVE snapshot. It must be judged
	// against current state, not its snapshot.
	_, err = h.svc.Submit(ctx, copyB, h.userB(), "", "1+1")
	assert.ErrorIs(t, err, ErrRoundNotActive)

	// And a stale TimeoutCheck must not re-finalize either.
	refired, err := h.svc.TimeoutCheck(ctx, copyB)
	require.NoError(t, err)
	assert.False(t, refired)

	assert.Len(t, h.pub.ofType(EventRoundFinished), 1)
	stored, err := h.store.GetMatch(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.WinningSubmissionID)
	assert.Equal(t, winning.ID, *stored.WinningSubmissionID)
}

func TestSelectWinnerTotalOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d0, d2 := 0.0, 2.0

	withValue := func(dist *float64, at time.Time, cost int) *models.Submission {
		return &models.Submission{ID: uuid.New(), Distance: dist, SubmittedAt: at, Cost: cost}
	}

	// Non-nil distance beats nil, smaller distance wins.
	exact := withValue(&d0, base.Add(2*time.Second), 5)
	rough := withValue(&d2, base, 3)
	blank := withValue(nil, base, 1)
	got := SelectWinner([]*models.Submission{rough, exact, blank})
	require.NotNil(t, got)
	assert.Equal(t, exact.ID, got.ID)

	// Equal distance: earlier submission wins.
	early := withValue(&d2, base, 9)
	late := withValue(&d2, base.Add(time.Second), 1)
	got = SelectWinner([]*models.Submission{late, early})
	assert.Equal(t, early.ID, got.ID)

	// Equal distance and time: cheaper submission wins.
	cheap := withValue(&d2, base, 2)
	pricey := withValue(&d2, base, 7)
	got = SelectWinner([]*models.Submission{pricey, cheap})
	assert.Equal(t, cheap.ID, got.ID)

	assert.Nil(t, SelectWinner(nil))
}
