package reservation

import (
	"errors"
	"time"

	"studieplekken/internal/calendar"
)

var (
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrDuplicateReservation = errors.New("user already holds a reservation for this timeslot")
	ErrTimeslotFull         = errors.New("no seats left on this timeslot")
	ErrNotReservable        = errors.New("timeslot belongs to a non-reservable period")
	ErrWindowNotOpen        = errors.New("booking window has not opened yet")
	ErrTimeslotEnded        = errors.New("timeslot already ended")
	ErrInvalidTransition    = errors.New("reservation state does not allow this change")
)

type State string

const (
	StatePending  State = "PENDING"
	StateApproved State = "APPROVED"
	StateRejected State = "REJECTED"
	StatePresent  State = "PRESENT"
	StateAbsent   State = "ABSENT"
	StateDeleted  State = "DELETED"
)

// Occupies reports whether a reservation in this state holds a seat, which
// is what the timeslot's reservation_count counts. Every transition into or
// out of an occupying state adjusts the counter in the same transaction.
func (s State) Occupies() bool {
	return s == StateApproved || s == StatePresent
}

// Reservation is keyed by (timeslot, user): a user holds at most one live
// reservation per timeslot. A cancelled one stays behind as a DELETED row
// and may be revived by a later reserve.
type Reservation struct {
	TimeslotID int       `db:"timeslot_id" json:"timeslot_id"`
	UserID     int       `db:"user_id" json:"user_id"`
	State      State     `db:"state" json:"state"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// SlotWindow carries the slice of timeslot and period data the admission
// path needs: the wall-clock window, the reservable-from moment and the
// location for mails.
type SlotWindow struct {
	TimeslotID     int       `db:"timeslot_id"`
	PeriodID       int       `db:"period_id"`
	LocationID     int       `db:"location_id"`
	LocationName   string    `db:"location_name"`
	Date           time.Time `db:"slot_date"`
	Seqnr          int       `db:"seqnr"`
	SeatCount      int       `db:"seat_count"`
	OpeningTime    string    `db:"opening_time"`
	ClosingTime    string    `db:"closing_time"`
	Reservable     bool      `db:"reservable"`
	ReservableFrom time.Time `db:"reservable_from"`
	TimeslotLength int       `db:"timeslot_length"`
}

// Window returns the wall-clock start and end of the slot.
func (w *SlotWindow) Window() (time.Time, time.Time) {
	slot := calendar.Timeslot{Date: w.Date, Seqnr: w.Seqnr}
	if w.Reservable && w.TimeslotLength > 0 {
		return slot.Window(w.OpeningTime, w.TimeslotLength)
	}
	day := calendar.Timeslot{Date: w.Date}
	start, _ := day.Window(w.OpeningTime, 0)
	end, _ := day.Window(w.ClosingTime, 0)
	return start, end
}

// ReservationDetails is a reservation joined with its timeslot and location
// for listings. StartsAt and EndsAt are derived after scanning.
type ReservationDetails struct {
	Reservation
	LocationID     int       `db:"location_id" json:"location_id"`
	LocationName   string    `db:"location_name" json:"location_name"`
	Date           time.Time `db:"slot_date" json:"date"`
	Seqnr          int       `db:"seqnr" json:"seqnr"`
	OpeningTime    string    `db:"opening_time" json:"-"`
	ClosingTime    string    `db:"closing_time" json:"-"`
	Reservable     bool      `db:"reservable" json:"-"`
	TimeslotLength int       `db:"timeslot_length" json:"-"`
	StartsAt       time.Time `db:"-" json:"starts_at"`
	EndsAt         time.Time `db:"-" json:"ends_at"`
}

func (d *ReservationDetails) fillWindow() {
	w := SlotWindow{
		Date:           d.Date,
		Seqnr:          d.Seqnr,
		OpeningTime:    d.OpeningTime,
		ClosingTime:    d.ClosingTime,
		Reservable:     d.Reservable,
		TimeslotLength: d.TimeslotLength,
	}
	d.StartsAt, d.EndsAt = w.Window()
}

// Attendee is one reservation of a timeslot with the holder's identity, as
// shown to the employee scanning attendance.
type Attendee struct {
	UserID int    `db:"user_id" json:"user_id"`
	Name   string `db:"name" json:"name"`
	Email  string `db:"email" json:"email"`
	State  State  `db:"state" json:"state"`
}

type ReserveRequest struct {
	TimeslotID int `json:"timeslot_id" binding:"required"`
}

type AttendanceRequest struct {
	UserID   int   `json:"user_id" binding:"required"`
	Attended *bool `json:"attended" binding:"required"`
}
