package reservation

import (
	"context"
	"errors"
	"time"

	"studieplekken/internal/logger"
	"studieplekken/internal/metrics"
	"studieplekken/internal/user"
)

// NotifySender is the slice of the notification service the reservation
// flow uses.
type NotifySender interface {
	Mailer
	SendNoShowNotice(ctx context.Context, email, name, locationName string, date time.Time) error
}

type Service interface {
	Reserve(ctx context.Context, userID, timeslotID int) (*Reservation, error)
	Cancel(ctx context.Context, userID, timeslotID int) error
	MyReservations(ctx context.Context, userID int) ([]ReservationDetails, error)
	Attendees(ctx context.Context, timeslotID int) ([]Attendee, error)
	SetAttendance(ctx context.Context, timeslotID, userID int, attended bool) error
	SweepTimeslot(ctx context.Context, timeslotID int) (int, error)
	NoShowsOfDay(ctx context.Context, day time.Time) ([]NoShow, error)
	NotifyNoShows(ctx context.Context, day time.Time) (int, error)
}

type service struct {
	repo   Repository
	users  user.Repository
	queue  *Queue
	mailer NotifySender
	grace  time.Duration
	now    func() time.Time
}

func NewService(repo Repository, users user.Repository, queue *Queue, mailer NotifySender, graceMinutes int) Service {
	return &service{
		repo:   repo,
		users:  users,
		queue:  queue,
		mailer: mailer,
		grace:  time.Duration(graceMinutes) * time.Minute,
		now:    time.Now,
	}
}

// Reserve admits the user onto the timeslot, or queues the request for the
// pool processor when it arrives within the grace window after the slot
// opened. The returned reservation is APPROVED on the direct path and
// PENDING on the queued one.
func (s *service) Reserve(ctx context.Context, userID, timeslotID int) (*Reservation, error) {
	window, err := s.repo.SlotWindow(ctx, timeslotID)
	if err != nil {
		return nil, err
	}
	if !window.Reservable {
		return nil, ErrNotReservable
	}

	now := s.now()
	_, end := window.Window()
	if now.After(end) {
		return nil, ErrTimeslotEnded
	}
	if now.Before(window.ReservableFrom) {
		return nil, ErrWindowNotOpen
	}

	// The burst right after opening is levelled through the pool; once the
	// grace window has passed, admission is decided on the spot.
	if now.Before(window.ReservableFrom.Add(s.grace)) {
		return s.reserveQueued(ctx, userID, timeslotID, now)
	}
	return s.reserveDirect(ctx, userID, timeslotID, window)
}

func (s *service) reserveQueued(ctx context.Context, userID, timeslotID int, now time.Time) (*Reservation, error) {
	res, err := s.repo.CreatePending(ctx, timeslotID, userID)
	if err != nil {
		return nil, err
	}

	item := PoolItem{TimeslotID: timeslotID, UserID: userID, Queued: now}
	if err := s.queue.Push(ctx, item); err != nil {
		// Without a queue entry the pending row would never be decided.
		if cancelErr := s.repo.Cancel(ctx, timeslotID, userID); cancelErr != nil {
			logger.Errorf("Failed to undo unqueued reservation: %v", cancelErr)
		}
		return nil, err
	}

	logger.Infof("User %d queued for timeslot %d", userID, timeslotID)
	return res, nil
}

func (s *service) reserveDirect(ctx context.Context, userID, timeslotID int, window *SlotWindow) (*Reservation, error) {
	res, err := s.repo.TryReserve(ctx, timeslotID, userID)
	if errors.Is(err, ErrTimeslotFull) {
		metrics.RecordRejection(metrics.PathSync, "full")
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordAdmission(metrics.PathSync)
	logger.Infof("User %d admitted onto timeslot %d", userID, timeslotID)

	if s.mailer != nil {
		start, end := window.Window()
		if u, err := s.users.FindByID(ctx, userID); err == nil {
			if err := s.mailer.SendReservationApproved(ctx, u.Email, u.Name, window.LocationName, start, end); err != nil {
				logger.Errorf("Failed to queue confirmation mail: %v", err)
			}
		}
	}
	return res, nil
}

func (s *service) Cancel(ctx context.Context, userID, timeslotID int) error {
	if err := s.repo.Cancel(ctx, timeslotID, userID); err != nil {
		return err
	}
	metrics.RecordCancellation()
	logger.Infof("User %d cancelled reservation on timeslot %d", userID, timeslotID)
	return nil
}

func (s *service) MyReservations(ctx context.Context, userID int) ([]ReservationDetails, error) {
	return s.repo.GetOfUser(ctx, userID)
}

func (s *service) Attendees(ctx context.Context, timeslotID int) ([]Attendee, error) {
	if _, err := s.repo.SlotWindow(ctx, timeslotID); err != nil {
		return nil, err
	}
	return s.repo.AttendeesOfTimeslot(ctx, timeslotID)
}

func (s *service) SetAttendance(ctx context.Context, timeslotID, userID int, attended bool) error {
	return s.repo.SetAttendance(ctx, timeslotID, userID, attended)
}

// SweepTimeslot marks every reservation still APPROVED on the timeslot as
// ABSENT, freeing their seats. Meant to run after the scan window of the
// slot; running it again is a no-op.
func (s *service) SweepTimeslot(ctx context.Context, timeslotID int) (int, error) {
	swept, err := s.repo.SweepTimeslot(ctx, timeslotID)
	if err != nil {
		return 0, err
	}
	metrics.NoShowSweepsTotal.Inc()
	if swept > 0 {
		logger.Infof("Swept %d no-shows on timeslot %d", swept, timeslotID)
	}
	return swept, nil
}

func (s *service) NoShowsOfDay(ctx context.Context, day time.Time) ([]NoShow, error) {
	return s.repo.NoShowsOfDay(ctx, day)
}

// NotifyNoShows queues a notice mail for every ABSENT reservation of the
// day and returns how many were queued.
func (s *service) NotifyNoShows(ctx context.Context, day time.Time) (int, error) {
	noShows, err := s.repo.NoShowsOfDay(ctx, day)
	if err != nil {
		return 0, err
	}
	if s.mailer == nil {
		return 0, nil
	}

	sent := 0
	for _, ns := range noShows {
		if err := s.mailer.SendNoShowNotice(ctx, ns.Email, ns.Name, ns.LocationName, ns.Date); err != nil {
			logger.Errorf("Failed to queue no-show notice for user %d: %v", ns.UserID, err)
			continue
		}
		sent++
	}
	return sent, nil
}
