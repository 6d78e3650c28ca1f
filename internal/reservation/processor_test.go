package reservation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"studieplekken/internal/metrics"
	"studieplekken/internal/user"
)

func newProcessor(queue *Queue, repo Repository, users user.Repository, mailer Mailer, now time.Time) *Processor {
	return &Processor{
		queue:  queue,
		repo:   repo,
		users:  users,
		mailer: mailer,
		grace:  10 * time.Minute,
		now:    func() time.Time { return now },
	}
}

func TestProcessorApprovesDueItem(t *testing.T) {
	repo := new(MockRepo)
	users := new(MockUsers)
	mailer := new(MockMailer)
	now := time.Date(2026, time.March, 2, 10, 30, 0, 0, time.UTC)
	p := newProcessor(nil, repo, users, mailer, now)

	repo.On("Get", mock.Anything, 5, 9).
		Return(&Reservation{TimeslotID: 5, UserID: 9, State: StatePending}, nil)
	repo.On("SlotWindow", mock.Anything, 5).
		Return(openWindow(now.Add(-time.Hour)), nil)
	repo.On("Approve", mock.Anything, 5, 9).Return(nil)
	users.On("FindByID", mock.Anything, 9).
		Return(&user.User{ID: 9, Name: "Ann", Email: "ann@ugent.be"}, nil)
	mailer.On("SendReservationApproved", mock.Anything, "ann@ugent.be", "Ann", "Therminal",
		mock.Anything, mock.Anything).Return(nil)

	p.process(context.Background(), PoolItem{TimeslotID: 5, UserID: 9})
	repo.AssertExpectations(t)
	mailer.AssertExpectations(t)
}

func TestProcessorRejectsWhenFull(t *testing.T) {
	repo := new(MockRepo)
	users := new(MockUsers)
	mailer := new(MockMailer)
	now := time.Date(2026, time.March, 2, 10, 30, 0, 0, time.UTC)
	p := newProcessor(nil, repo, users, mailer, now)

	repo.On("Get", mock.Anything, 5, 9).
		Return(&Reservation{TimeslotID: 5, UserID: 9, State: StatePending}, nil)
	repo.On("SlotWindow", mock.Anything, 5).
		Return(openWindow(now.Add(-time.Hour)), nil)
	repo.On("Approve", mock.Anything, 5, 9).Return(ErrTimeslotFull)
	repo.On("Reject", mock.Anything, 5, 9).Return(nil)
	users.On("FindByID", mock.Anything, 9).
		Return(&user.User{ID: 9, Name: "Ann", Email: "ann@ugent.be"}, nil)
	mailer.On("SendReservationRejected", mock.Anything, "ann@ugent.be", "Ann", "Therminal",
		mock.Anything).Return(nil)

	p.process(context.Background(), PoolItem{TimeslotID: 5, UserID: 9})
	repo.AssertExpectations(t)
	mailer.AssertExpectations(t)
}

func TestProcessorSkipsNonPending(t *testing.T) {
	repo := new(MockRepo)
	now := time.Date(2026, time.March, 2, 10, 30, 0, 0, time.UTC)
	p := newProcessor(nil, repo, new(MockUsers), new(MockMailer), now)

	// A cancel while queued leaves a DELETED row; the item is dropped.
	repo.On("Get", mock.Anything, 5, 9).
		Return(&Reservation{TimeslotID: 5, UserID: 9, State: StateDeleted}, nil)

	p.process(context.Background(), PoolItem{TimeslotID: 5, UserID: 9})
	repo.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "Reject", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessorRequeuesNotYetDueItem(t *testing.T) {
	repo := new(MockRepo)
	db, redisMock := redismock.NewClientMock()
	queue := &Queue{redis: db}

	now := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	p := newProcessor(queue, repo, new(MockUsers), new(MockMailer), now)

	// Opened five minutes ago: the grace window has not elapsed, so the item
	// goes back on the queue until the pool may start deciding.
	repo.On("Get", mock.Anything, 5, 9).
		Return(&Reservation{TimeslotID: 5, UserID: 9, State: StatePending}, nil)
	repo.On("SlotWindow", mock.Anything, 5).
		Return(openWindow(now.Add(-5*time.Minute)), nil)
	redisMock.Regexp().ExpectLPush("reservations:pool", `.*`).SetVal(1)

	// Cancelled context keeps the post-requeue wait from sleeping.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p.process(ctx, PoolItem{TimeslotID: 5, UserID: 9})
	require.NoError(t, redisMock.ExpectationsWereMet())
	repo.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessorRejectsItemQueuedBeforeOpening(t *testing.T) {
	repo := new(MockRepo)
	users := new(MockUsers)
	mailer := new(MockMailer)
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	p := newProcessor(nil, repo, users, mailer, now)

	// The queue should never hold items for slots that have not opened;
	// one showing up means the calendar and the queue disagree.
	repo.On("Get", mock.Anything, 5, 9).
		Return(&Reservation{TimeslotID: 5, UserID: 9, State: StatePending}, nil)
	repo.On("SlotWindow", mock.Anything, 5).
		Return(openWindow(now.Add(24*time.Hour)), nil)
	repo.On("Reject", mock.Anything, 5, 9).Return(nil)
	users.On("FindByID", mock.Anything, 9).
		Return(&user.User{ID: 9, Name: "Ann", Email: "ann@ugent.be"}, nil)
	mailer.On("SendReservationRejected", mock.Anything, "ann@ugent.be", "Ann", "Therminal",
		mock.Anything).Return(nil)

	p.process(context.Background(), PoolItem{TimeslotID: 5, UserID: 9})
	repo.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestProcessorRejectsExpiredItem(t *testing.T) {
	repo := new(MockRepo)
	users := new(MockUsers)
	mailer := new(MockMailer)
	// The whole day passed before the pool ran.
	now := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	p := newProcessor(nil, repo, users, mailer, now)

	repo.On("Get", mock.Anything, 5, 9).
		Return(&Reservation{TimeslotID: 5, UserID: 9, State: StatePending}, nil)
	repo.On("SlotWindow", mock.Anything, 5).
		Return(openWindow(now.Add(-48*time.Hour)), nil)
	repo.On("Reject", mock.Anything, 5, 9).Return(nil)
	users.On("FindByID", mock.Anything, 9).
		Return(&user.User{ID: 9, Name: "Ann", Email: "ann@ugent.be"}, nil)
	mailer.On("SendReservationRejected", mock.Anything, "ann@ugent.be", "Ann", "Therminal",
		mock.Anything).Return(nil)

	p.process(context.Background(), PoolItem{TimeslotID: 5, UserID: 9})
	repo.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestProcessorReseedsQueueGaugeOnStart(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	queue := &Queue{redis: db}

	now := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	p := newProcessor(queue, new(MockRepo), new(MockUsers), new(MockMailer), now)

	// Items queued by a previous process are still on the Redis list.
	redisMock.ExpectLLen("reservations:pool").SetVal(4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Start(ctx)

	require.Equal(t, float64(4), testutil.ToFloat64(metrics.PoolQueueLength))
	require.NoError(t, redisMock.ExpectationsWereMet())
	metrics.PoolQueueLength.Set(0)
}

func TestQueueRoundTrip(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	queue := &Queue{redis: db}

	item := PoolItem{TimeslotID: 5, UserID: 9, Queued: time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)}
	payload, err := json.Marshal(item)
	require.NoError(t, err)

	redisMock.ExpectLPush("reservations:pool", payload).SetVal(1)
	require.NoError(t, queue.Push(context.Background(), item))

	redisMock.ExpectBRPop(popTimeout, "reservations:pool").
		SetVal([]string{"reservations:pool", string(payload)})

	popped, err := queue.Pop(context.Background(), popTimeout)
	require.NoError(t, err)
	require.Equal(t, item.TimeslotID, popped.TimeslotID)
	require.Equal(t, item.UserID, popped.UserID)
	require.NoError(t, redisMock.ExpectationsWereMet())
}

func TestQueuePopTimeout(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	queue := &Queue{redis: db}

	redisMock.ExpectBRPop(popTimeout, "reservations:pool").RedisNil()

	popped, err := queue.Pop(context.Background(), popTimeout)
	require.NoError(t, err)
	require.Nil(t, popped)
}
