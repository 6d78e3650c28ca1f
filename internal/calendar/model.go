package calendar

import (
	"errors"
	"time"
)

var (
	ErrEndsBeforeStarts       = errors.New("period ends before it starts")
	ErrInvalidOpeningHours    = errors.New("closing time must be after opening time")
	ErrInvalidTimeslotLength  = errors.New("reservable period needs a positive timeslot length")
	ErrWrongLocation          = errors.New("period belongs to a different location")
	ErrPeriodNotFound         = errors.New("calendar period not found")
	ErrTimeslotNotFound       = errors.New("timeslot not found")
	ErrPeriodLocked           = errors.New("calendar period is locked for edits")
	ErrStaleView              = errors.New("calendar periods changed since they were fetched")
)

// lockLeadTime is how long before a period starts that edits to it are
// frozen, so that opening hours communicated to facility services stay stable.
const lockLeadTime = 3 * 7 * 24 * time.Hour

const clockLayout = "15:04"

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	StartsAt time.Time `db:"starts_at" json:"starts_at"`
	EndsAt   time.Time `db:"ends_at" json:"ends_at"`
}

func (r DateRange) Valid() bool {
	return !r.EndsAt.Before(r.StartsAt)
}

// Days returns the number of calendar days in the range, both ends inclusive.
func (r DateRange) Days() int {
	start := r.StartsAt.Truncate(24 * time.Hour)
	end := r.EndsAt.Truncate(24 * time.Hour)
	return int(end.Sub(start).Hours()/24) + 1
}

// Period is a declared opening window of a location. When reservable, its
// open hours are sliced into timeslots of TimeslotLength minutes; otherwise
// each day becomes a single full-day timeslot. SeatCount is snapshotted from
// the location when the period is created and never follows later capacity
// changes of the location.
type Period struct {
	ID         int `db:"id" json:"id"`
	LocationID int `db:"location_id" json:"location_id"`
	DateRange
	OpeningTime    string    `db:"opening_time" json:"opening_time"`
	ClosingTime    string    `db:"closing_time" json:"closing_time"`
	Reservable     bool      `db:"reservable" json:"reservable"`
	ReservableFrom time.Time `db:"reservable_from" json:"reservable_from"`
	LockedFrom     time.Time `db:"locked_from" json:"locked_from"`
	TimeslotLength int       `db:"timeslot_length" json:"timeslot_length"`
	SeatCount      int       `db:"seat_count" json:"seat_count"`
}

// Validate rejects malformed periods before they reach the database or the
// timeslot generator.
func (p *Period) Validate() error {
	if !p.DateRange.Valid() {
		return ErrEndsBeforeStarts
	}
	if _, err := time.Parse(clockLayout, p.OpeningTime); err != nil {
		return ErrInvalidOpeningHours
	}
	if _, err := time.Parse(clockLayout, p.ClosingTime); err != nil {
		return ErrInvalidOpeningHours
	}
	if p.OpenMinutes() <= 0 {
		return ErrInvalidOpeningHours
	}
	if p.Reservable && p.TimeslotLength <= 0 {
		return ErrInvalidTimeslotLength
	}
	return nil
}

// OpenMinutes returns the length of the daily opening window in minutes.
func (p *Period) OpenMinutes() int {
	opening, err := time.Parse(clockLayout, p.OpeningTime)
	if err != nil {
		return 0
	}
	closing, err := time.Parse(clockLayout, p.ClosingTime)
	if err != nil {
		return 0
	}
	return int(closing.Sub(opening).Minutes())
}

// TimeslotsPerDay returns how many timeslots a single day of this period
// yields. Remainder minutes that do not fill a whole slot are dropped.
func (p *Period) TimeslotsPerDay() int {
	if !p.Reservable {
		return 1
	}
	if p.TimeslotLength <= 0 {
		return 0
	}
	return p.OpenMinutes() / p.TimeslotLength
}

func (p *Period) Locked(now time.Time) bool {
	return !p.LockedFrom.IsZero() && !now.Before(p.LockedFrom)
}

// ApplyDefaults fills ReservableFrom and LockedFrom for freshly submitted
// periods.
func (p *Period) ApplyDefaults(now time.Time) {
	if p.ReservableFrom.IsZero() {
		p.ReservableFrom = now
	}
	if p.LockedFrom.IsZero() {
		p.LockedFrom = p.StartsAt.Add(-lockLeadTime)
	}
}

// Equivalent reports whether two periods describe the same opening window.
// It is the comparison used for stale-view detection on bulk updates, so it
// ignores generated identifiers and compares ReservableFrom with one second
// precision.
func (p *Period) Equivalent(other *Period) bool {
	return p.LocationID == other.LocationID &&
		p.StartsAt.Equal(other.StartsAt) &&
		p.EndsAt.Equal(other.EndsAt) &&
		p.OpeningTime == other.OpeningTime &&
		p.ClosingTime == other.ClosingTime &&
		p.Reservable == other.Reservable &&
		p.TimeslotLength == other.TimeslotLength &&
		p.ReservableFrom.Sub(other.ReservableFrom).Abs() < time.Second
}

// BuildTimeslots expands the period into the timeslots it declares. The
// period's seat count snapshot is copied onto every slot.
func (p *Period) BuildTimeslots() []Timeslot {
	perDay := p.TimeslotsPerDay()
	if perDay <= 0 {
		return nil
	}

	slots := make([]Timeslot, 0, p.Days()*perDay)
	for day := 0; day < p.Days(); day++ {
		date := p.StartsAt.AddDate(0, 0, day)
		for seq := 0; seq < perDay; seq++ {
			slots = append(slots, Timeslot{
				PeriodID:  p.ID,
				Date:      date,
				Seqnr:     seq,
				SeatCount: p.SeatCount,
			})
		}
	}
	return slots
}

// Timeslot is one reservable unit. ReservationCount is only ever mutated
// through conditional UPDATE statements so that it can never pass SeatCount
// or drop below zero.
type Timeslot struct {
	ID               int       `db:"id" json:"id"`
	PeriodID         int       `db:"period_id" json:"period_id"`
	Date             time.Time `db:"slot_date" json:"date"`
	Seqnr            int       `db:"seqnr" json:"seqnr"`
	SeatCount        int       `db:"seat_count" json:"seat_count"`
	ReservationCount int       `db:"reservation_count" json:"reservation_count"`
}

// Window returns the wall-clock start and end of the slot given its parent
// period's opening time and slot length. The instants are built in the
// location of Date, which is UTC for dates scanned from a DATE column, so
// opening and closing times are interpreted as UTC wall clock. Deployments
// and their calendars are assumed to run on UTC.
func (t *Timeslot) Window(openingTime string, slotLengthMinutes int) (time.Time, time.Time) {
	opening, err := time.Parse(clockLayout, openingTime)
	if err != nil {
		return time.Time{}, time.Time{}
	}
	start := time.Date(t.Date.Year(), t.Date.Month(), t.Date.Day(),
		opening.Hour(), opening.Minute(), 0, 0, t.Date.Location())
	start = start.Add(time.Duration(t.Seqnr*slotLengthMinutes) * time.Minute)
	end := start.Add(time.Duration(slotLengthMinutes) * time.Minute)
	return start, end
}

// LocationStatus describes whether a location is currently open, derived
// from its next timeslot window.
type LocationStatus string

const (
	StatusOpen           LocationStatus = "OPEN"
	StatusClosedActive   LocationStatus = "CLOSED_ACTIVE"
	StatusClosedUpcoming LocationStatus = "CLOSED_UPCOMING"
	StatusClosed         LocationStatus = "CLOSED"
)

type StatusReport struct {
	Status LocationStatus `json:"status"`
	Until  string         `json:"until,omitempty"`
}

type PeriodRequest struct {
	LocationID     int       `json:"location_id" binding:"required"`
	StartsAt       time.Time `json:"starts_at" binding:"required"`
	EndsAt         time.Time `json:"ends_at" binding:"required"`
	OpeningTime    string    `json:"opening_time" binding:"required"`
	ClosingTime    string    `json:"closing_time" binding:"required"`
	Reservable     bool      `json:"reservable"`
	ReservableFrom time.Time `json:"reservable_from"`
	TimeslotLength int       `json:"timeslot_length"`
}

func (r PeriodRequest) Period() Period {
	return Period{
		LocationID: r.LocationID,
		DateRange: DateRange{
			StartsAt: r.StartsAt,
			EndsAt:   r.EndsAt,
		},
		OpeningTime:    r.OpeningTime,
		ClosingTime:    r.ClosingTime,
		Reservable:     r.Reservable,
		ReservableFrom: r.ReservableFrom,
		TimeslotLength: r.TimeslotLength,
	}
}

type UpdatePeriodsRequest struct {
	From []PeriodRequest `json:"from"`
	To   []PeriodRequest `json:"to"`
}
