package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"studieplekken/internal/calendar"
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const slotWindowQuery = `
	SELECT t.id AS timeslot_id, t.period_id, p.location_id, l.name AS location_name,
	       t.slot_date, t.seqnr, t.seat_count,
	       p.opening_time, p.closing_time, p.reservable, p.reservable_from, p.timeslot_length
	FROM timeslots t
	JOIN calendar_periods p ON p.id = t.period_id
	JOIN locations l ON l.id = p.location_id
	WHERE t.id = $1`

func (r *repository) SlotWindow(ctx context.Context, timeslotID int) (*SlotWindow, error) {
	var window SlotWindow
	err := r.db.GetContext(ctx, &window, slotWindowQuery, timeslotID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, calendar.ErrTimeslotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot window: %w", err)
	}
	return &window, nil
}

// upsertQuery revives a DELETED reservation or inserts a fresh one. A
// conflict on a row in any other state matches zero rows, which the callers
// report as a duplicate.
const upsertQuery = `
	INSERT INTO reservations (timeslot_id, user_id, state)
	VALUES ($1, $2, $3)
	ON CONFLICT (timeslot_id, user_id) DO UPDATE
	SET state = $3, created_at = now()
	WHERE reservations.state = 'DELETED'
	RETURNING timeslot_id, user_id, state, created_at`

// claimSeatQuery only moves the counter while a seat is free, so admission
// can never pass seat_count no matter how many transactions race on it.
const claimSeatQuery = `
	UPDATE timeslots
	SET reservation_count = reservation_count + 1
	WHERE id = $1 AND reservation_count < seat_count`

const releaseSeatQuery = `
	UPDATE timeslots
	SET reservation_count = GREATEST(reservation_count - 1, 0)
	WHERE id = $1`

// TryReserve admits a user onto a timeslot: the reservation row and the
// seat claim commit together or not at all.
func (r *repository) TryReserve(ctx context.Context, timeslotID, userID int) (*Reservation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var res Reservation
	err = tx.GetContext(ctx, &res, upsertQuery, timeslotID, userID, StateApproved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDuplicateReservation
	}
	if err != nil {
		return nil, fmt.Errorf("insert reservation: %w", err)
	}

	if err := claimSeat(ctx, tx, timeslotID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &res, nil
}

func claimSeat(ctx context.Context, tx *sqlx.Tx, timeslotID int) error {
	result, err := tx.ExecContext(ctx, claimSeatQuery, timeslotID)
	if err != nil {
		return fmt.Errorf("claim seat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim seat: %w", err)
	}
	if affected == 0 {
		return ErrTimeslotFull
	}
	return nil
}

// CreatePending records a reservation made before the timeslot opened. No
// seat is claimed; the pool processor decides later.
func (r *repository) CreatePending(ctx context.Context, timeslotID, userID int) (*Reservation, error) {
	var res Reservation
	err := r.db.GetContext(ctx, &res, upsertQuery, timeslotID, userID, StatePending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDuplicateReservation
	}
	if err != nil {
		return nil, fmt.Errorf("insert pending reservation: %w", err)
	}
	return &res, nil
}

// Approve promotes a PENDING reservation to APPROVED while claiming its
// seat. ErrTimeslotFull means the pool outgrew the capacity and the caller
// should reject instead.
func (r *repository) Approve(ctx context.Context, timeslotID, userID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE reservations SET state = 'APPROVED'
		WHERE timeslot_id = $1 AND user_id = $2 AND state = 'PENDING'`,
		timeslotID, userID)
	if err != nil {
		return fmt.Errorf("approve reservation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("approve reservation: %w", err)
	}
	if affected == 0 {
		return ErrReservationNotFound
	}

	if err := claimSeat(ctx, tx, timeslotID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *repository) Reject(ctx context.Context, timeslotID, userID int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE reservations SET state = 'REJECTED'
		WHERE timeslot_id = $1 AND user_id = $2 AND state = 'PENDING'`,
		timeslotID, userID)
	if err != nil {
		return fmt.Errorf("reject reservation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reject reservation: %w", err)
	}
	if affected == 0 {
		return ErrReservationNotFound
	}
	return nil
}

// Cancel marks the reservation DELETED and releases its seat if the old
// state was occupying one.
func (r *repository) Cancel(ctx context.Context, timeslotID, userID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	state, err := lockState(ctx, tx, timeslotID, userID)
	if err != nil {
		return err
	}
	if state != StatePending && !state.Occupies() {
		return ErrReservationNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE reservations SET state = 'DELETED'
		WHERE timeslot_id = $1 AND user_id = $2`,
		timeslotID, userID); err != nil {
		return fmt.Errorf("cancel reservation: %w", err)
	}
	if state.Occupies() {
		if _, err := tx.ExecContext(ctx, releaseSeatQuery, timeslotID); err != nil {
			return fmt.Errorf("release seat: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func lockState(ctx context.Context, tx *sqlx.Tx, timeslotID, userID int) (State, error) {
	var state State
	err := tx.GetContext(ctx, &state, `
		SELECT state FROM reservations
		WHERE timeslot_id = $1 AND user_id = $2
		FOR UPDATE`,
		timeslotID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrReservationNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lock reservation: %w", err)
	}
	return state, nil
}

// SetAttendance flips a reservation between PRESENT and ABSENT at the scan
// desk, moving the seat counter whenever the reservation enters or leaves
// an occupying state.
func (r *repository) SetAttendance(ctx context.Context, timeslotID, userID int, attended bool) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	state, err := lockState(ctx, tx, timeslotID, userID)
	if err != nil {
		return err
	}

	target := StateAbsent
	if attended {
		target = StatePresent
	}
	if state == target {
		return tx.Commit()
	}
	if !state.Occupies() && state != StateAbsent {
		return ErrInvalidTransition
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE reservations SET state = $3
		WHERE timeslot_id = $1 AND user_id = $2`,
		timeslotID, userID, target); err != nil {
		return fmt.Errorf("set attendance: %w", err)
	}

	switch {
	case state.Occupies() && !target.Occupies():
		if _, err := tx.ExecContext(ctx, releaseSeatQuery, timeslotID); err != nil {
			return fmt.Errorf("release seat: %w", err)
		}
	case !state.Occupies() && target.Occupies():
		if err := claimSeat(ctx, tx, timeslotID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// sweepQuery marks every still-APPROVED reservation of the timeslot ABSENT
// and releases their seats in one statement, so running it twice is
// harmless.
const sweepQuery = `
	WITH swept AS (
		UPDATE reservations SET state = 'ABSENT'
		WHERE timeslot_id = $1 AND state = 'APPROVED'
		RETURNING user_id
	)
	UPDATE timeslots
	SET reservation_count = GREATEST(reservation_count - (SELECT count(*) FROM swept), 0)
	WHERE id = $1
	RETURNING (SELECT count(*) FROM swept)`

func (r *repository) SweepTimeslot(ctx context.Context, timeslotID int) (int, error) {
	var swept int
	err := r.db.QueryRowxContext(ctx, sweepQuery, timeslotID).Scan(&swept)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, calendar.ErrTimeslotNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("sweep timeslot: %w", err)
	}
	return swept, nil
}

func (r *repository) Get(ctx context.Context, timeslotID, userID int) (*Reservation, error) {
	var res Reservation
	err := r.db.GetContext(ctx, &res, `
		SELECT timeslot_id, user_id, state, created_at
		FROM reservations
		WHERE timeslot_id = $1 AND user_id = $2`,
		timeslotID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return &res, nil
}

func (r *repository) GetOfUser(ctx context.Context, userID int) ([]ReservationDetails, error) {
	var details []ReservationDetails
	err := r.db.SelectContext(ctx, &details, `
		SELECT r.timeslot_id, r.user_id, r.state, r.created_at,
		       p.location_id, l.name AS location_name, t.slot_date, t.seqnr,
		       p.opening_time, p.closing_time, p.reservable, p.timeslot_length
		FROM reservations r
		JOIN timeslots t ON t.id = r.timeslot_id
		JOIN calendar_periods p ON p.id = t.period_id
		JOIN locations l ON l.id = p.location_id
		WHERE r.user_id = $1 AND r.state <> 'DELETED'
		ORDER BY t.slot_date, t.seqnr`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("get reservations of user: %w", err)
	}
	for i := range details {
		details[i].fillWindow()
	}
	return details, nil
}

func (r *repository) AttendeesOfTimeslot(ctx context.Context, timeslotID int) ([]Attendee, error) {
	var attendees []Attendee
	err := r.db.SelectContext(ctx, &attendees, `
		SELECT r.user_id, u.name, u.email, r.state
		FROM reservations r
		JOIN users u ON u.id = r.user_id
		WHERE r.timeslot_id = $1 AND r.state <> 'DELETED'
		ORDER BY u.name`,
		timeslotID)
	if err != nil {
		return nil, fmt.Errorf("get attendees: %w", err)
	}
	return attendees, nil
}

// NoShow is an ABSENT reservation of a given day, used for follow-up mails.
type NoShow struct {
	TimeslotID   int       `db:"timeslot_id" json:"timeslot_id"`
	UserID       int       `db:"user_id" json:"user_id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	LocationName string    `db:"location_name" json:"location_name"`
	Date         time.Time `db:"slot_date" json:"date"`
}

func (r *repository) NoShowsOfDay(ctx context.Context, day time.Time) ([]NoShow, error) {
	var noShows []NoShow
	err := r.db.SelectContext(ctx, &noShows, `
		SELECT r.timeslot_id, r.user_id, u.name, u.email,
		       l.name AS location_name, t.slot_date
		FROM reservations r
		JOIN users u ON u.id = r.user_id
		JOIN timeslots t ON t.id = r.timeslot_id
		JOIN calendar_periods p ON p.id = t.period_id
		JOIN locations l ON l.id = p.location_id
		WHERE r.state = 'ABSENT' AND t.slot_date = $1
		ORDER BY l.name, u.name`,
		day)
	if err != nil {
		return nil, fmt.Errorf("get no-shows of day: %w", err)
	}
	return noShows, nil
}
