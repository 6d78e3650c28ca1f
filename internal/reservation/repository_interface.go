package reservation

import (
	"context"
	"time"
)

// Repository owns every write to the reservations table and to the
// reservation_count column of timeslots. The counter is only ever moved by
// conditional statements inside the same transaction as the state change it
// belongs to.
type Repository interface {
	SlotWindow(ctx context.Context, timeslotID int) (*SlotWindow, error)

	TryReserve(ctx context.Context, timeslotID, userID int) (*Reservation, error)
	CreatePending(ctx context.Context, timeslotID, userID int) (*Reservation, error)
	Approve(ctx context.Context, timeslotID, userID int) error
	Reject(ctx context.Context, timeslotID, userID int) error
	Cancel(ctx context.Context, timeslotID, userID int) error
	SetAttendance(ctx context.Context, timeslotID, userID int, attended bool) error
	SweepTimeslot(ctx context.Context, timeslotID int) (int, error)

	Get(ctx context.Context, timeslotID, userID int) (*Reservation, error)
	GetOfUser(ctx context.Context, userID int) ([]ReservationDetails, error)
	AttendeesOfTimeslot(ctx context.Context, timeslotID int) ([]Attendee, error)
	NoShowsOfDay(ctx context.Context, day time.Time) ([]NoShow, error)
}
