package reservation

import (
	"context"
	"errors"
	"time"

	"studieplekken/internal/logger"
	"studieplekken/internal/metrics"
	"studieplekken/internal/user"
)

const (
	popTimeout  = 2 * time.Second
	maxPoolWait = 30 * time.Second
	maxTries    = 3
)

// Mailer is the slice of the notification service the processor needs.
type Mailer interface {
	SendReservationApproved(ctx context.Context, email, name, locationName string, start, end time.Time) error
	SendReservationRejected(ctx context.Context, email, name, locationName string, start time.Time) error
}

// Processor drains the pool queue and turns PENDING reservations into
// APPROVED or REJECTED ones once their timeslot opens. One processor
// goroutine runs for the lifetime of the process; items are handled in
// queue order and a failing item never stops the loop.
type Processor struct {
	queue  *Queue
	repo   Repository
	users  user.Repository
	mailer Mailer
	grace  time.Duration
	now    func() time.Time
}

func NewProcessor(queue *Queue, repo Repository, users user.Repository, mailer Mailer, graceMinutes int) *Processor {
	return &Processor{
		queue:  queue,
		repo:   repo,
		users:  users,
		mailer: mailer,
		grace:  time.Duration(graceMinutes) * time.Minute,
		now:    time.Now,
	}
}

func (p *Processor) Start(ctx context.Context) {
	// The Redis list survives restarts; the in-process gauge does not.
	metrics.PoolQueueLength.Set(float64(p.queue.Length(ctx)))
	logger.Info("Pool processor started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Pool processor stopped")
			return
		default:
			p.processNext(ctx)
		}
	}
}

func (p *Processor) processNext(ctx context.Context) {
	item, err := p.queue.Pop(ctx, popTimeout)
	if err != nil {
		if ctx.Err() == nil {
			logger.Errorf("Pool queue pop failed: %v", err)
		}
		return
	}
	if item == nil {
		return
	}
	p.process(ctx, *item)
}

func (p *Processor) process(ctx context.Context, item PoolItem) {
	res, err := p.repo.Get(ctx, item.TimeslotID, item.UserID)
	if errors.Is(err, ErrReservationNotFound) {
		logger.Warnf("Pool item for timeslot %d user %d has no reservation, dropping", item.TimeslotID, item.UserID)
		return
	}
	if err != nil {
		p.retry(ctx, item, err)
		return
	}
	if res.State != StatePending {
		// Cancelled while queued, or a requeued item that was already
		// decided. Re-processing must not touch it again.
		return
	}

	window, err := p.repo.SlotWindow(ctx, item.TimeslotID)
	if err != nil {
		p.retry(ctx, item, err)
		return
	}

	now := p.now()
	if now.Before(window.ReservableFrom) {
		// The routing layer only queues after the booking window opens, so
		// an early item means the queue and the calendar disagree.
		logger.Warnf("Pool item for timeslot %d user %d queued before its window opened", item.TimeslotID, item.UserID)
		start, _ := window.Window()
		p.reject(ctx, item, window, start, "not_open")
		return
	}
	due := window.ReservableFrom.Add(p.grace)
	if now.Before(due) {
		if err := p.queue.Requeue(ctx, item); err != nil {
			logger.Errorf("Failed to requeue pool item: %v", err)
			return
		}
		p.wait(ctx, due.Sub(now))
		return
	}

	start, end := window.Window()
	if now.After(end) {
		logger.Warnf("Timeslot %d ended before its pool was processed", item.TimeslotID)
		p.reject(ctx, item, window, start, "expired")
		return
	}

	err = p.repo.Approve(ctx, item.TimeslotID, item.UserID)
	switch {
	case err == nil:
		metrics.RecordAdmission(metrics.PathPool)
		logger.Infof("Pool admitted user %d onto timeslot %d", item.UserID, item.TimeslotID)
		p.mail(ctx, item.UserID, func(u *user.User) error {
			return p.mailer.SendReservationApproved(ctx, u.Email, u.Name, window.LocationName, start, end)
		})
	case errors.Is(err, ErrTimeslotFull):
		p.reject(ctx, item, window, start, "full")
	case errors.Is(err, ErrReservationNotFound):
		// Lost a race with a cancel between the state check and here.
		return
	default:
		p.retry(ctx, item, err)
	}
}

func (p *Processor) reject(ctx context.Context, item PoolItem, window *SlotWindow, start time.Time, reason string) {
	if err := p.repo.Reject(ctx, item.TimeslotID, item.UserID); err != nil {
		if !errors.Is(err, ErrReservationNotFound) {
			logger.Errorf("Failed to reject reservation for timeslot %d user %d: %v", item.TimeslotID, item.UserID, err)
		}
		return
	}
	metrics.RecordRejection(metrics.PathPool, reason)
	logger.Infof("Pool rejected user %d for timeslot %d (%s)", item.UserID, item.TimeslotID, reason)
	p.mail(ctx, item.UserID, func(u *user.User) error {
		return p.mailer.SendReservationRejected(ctx, u.Email, u.Name, window.LocationName, start)
	})
}

func (p *Processor) mail(ctx context.Context, userID int, send func(*user.User) error) {
	if p.mailer == nil {
		return
	}
	u, err := p.users.FindByID(ctx, userID)
	if err != nil {
		logger.Errorf("Failed to load user %d for mail: %v", userID, err)
		return
	}
	if err := send(u); err != nil {
		logger.Errorf("Failed to queue mail for user %d: %v", userID, err)
	}
}

func (p *Processor) retry(ctx context.Context, item PoolItem, cause error) {
	item.Tries++
	if item.Tries >= maxTries {
		logger.Errorf("Dropping pool item for timeslot %d user %d after %d attempts: %v",
			item.TimeslotID, item.UserID, item.Tries, cause)
		return
	}
	logger.Warnf("Pool item for timeslot %d user %d failed, retrying: %v", item.TimeslotID, item.UserID, cause)
	if err := p.queue.Requeue(ctx, item); err != nil {
		logger.Errorf("Failed to requeue pool item: %v", err)
	}
}

// wait sleeps until the next item could be due, capped so the loop keeps
// responding to shutdown.
func (p *Processor) wait(ctx context.Context, d time.Duration) {
	if d > maxPoolWait {
		d = maxPoolWait
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
