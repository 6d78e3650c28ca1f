package calendar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const insertPeriodQuery = `
	INSERT INTO calendar_periods
		(location_id, starts_at, ends_at, opening_time, closing_time,
		 reservable, reservable_from, locked_from, timeslot_length, seat_count)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING id`

const periodColumns = `
	id, location_id, starts_at, ends_at, opening_time, closing_time,
	reservable, reservable_from, locked_from, timeslot_length, seat_count`

// AddPeriods inserts the periods and generates their timeslots in one
// transaction. Either every period exists together with all of its slots,
// or nothing does.
func (r *repository) AddPeriods(ctx context.Context, periods []Period) ([]Period, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	saved, err := insertPeriodsTx(ctx, tx, periods)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return saved, nil
}

func insertPeriodsTx(ctx context.Context, tx *sqlx.Tx, periods []Period) ([]Period, error) {
	saved := make([]Period, 0, len(periods))
	for _, p := range periods {
		err := tx.QueryRowxContext(ctx, insertPeriodQuery,
			p.LocationID, p.StartsAt, p.EndsAt, p.OpeningTime, p.ClosingTime,
			p.Reservable, p.ReservableFrom, p.LockedFrom, p.TimeslotLength, p.SeatCount,
		).Scan(&p.ID)
		if err != nil {
			return nil, fmt.Errorf("insert period: %w", err)
		}
		if err := insertTimeslotsTx(ctx, tx, p.BuildTimeslots()); err != nil {
			return nil, err
		}
		saved = append(saved, p)
	}
	return saved, nil
}

func insertTimeslotsTx(ctx context.Context, tx *sqlx.Tx, slots []Timeslot) error {
	if len(slots) == 0 {
		return nil
	}

	var (
		rows = make([]string, 0, len(slots))
		args = make([]interface{}, 0, len(slots)*4)
	)
	for i, s := range slots {
		base := i * 4
		rows = append(rows, fmt.Sprintf("($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4))
		args = append(args, s.PeriodID, s.Date, s.Seqnr, s.SeatCount)
	}

	query := `INSERT INTO timeslots (period_id, slot_date, seqnr, seat_count) VALUES ` +
		strings.Join(rows, ", ")
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert timeslots: %w", err)
	}
	return nil
}

func (r *repository) GetPeriodByID(ctx context.Context, id int) (*Period, error) {
	var period Period
	query := `SELECT` + periodColumns + ` FROM calendar_periods WHERE id = $1`
	err := r.db.GetContext(ctx, &period, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPeriodNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get period: %w", err)
	}
	return &period, nil
}

func (r *repository) GetPeriodsOfLocation(ctx context.Context, locationID int) ([]Period, error) {
	var periods []Period
	query := `SELECT` + periodColumns + ` FROM calendar_periods WHERE location_id = $1 ORDER BY starts_at`
	if err := r.db.SelectContext(ctx, &periods, query, locationID); err != nil {
		return nil, fmt.Errorf("get periods of location: %w", err)
	}
	return periods, nil
}

// UpdatePeriod rewrites the period row, drops its generated timeslots and
// regenerates them from the new definition, all in one transaction.
// Reservations on the old slots are removed by the cascade.
func (r *repository) UpdatePeriod(ctx context.Context, period *Period) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE calendar_periods
		SET starts_at = $1, ends_at = $2, opening_time = $3, closing_time = $4,
		    reservable = $5, reservable_from = $6, locked_from = $7,
		    timeslot_length = $8, seat_count = $9
		WHERE id = $10`,
		period.StartsAt, period.EndsAt, period.OpeningTime, period.ClosingTime,
		period.Reservable, period.ReservableFrom, period.LockedFrom,
		period.TimeslotLength, period.SeatCount, period.ID)
	if err != nil {
		return fmt.Errorf("update period: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update period: %w", err)
	}
	if affected == 0 {
		return ErrPeriodNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM timeslots WHERE period_id = $1`, period.ID); err != nil {
		return fmt.Errorf("delete timeslots: %w", err)
	}
	if err := insertTimeslotsTx(ctx, tx, period.BuildTimeslots()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ReplacePeriods deletes the listed periods of the location and inserts the
// replacement set, regenerating all timeslots, in a single transaction.
func (r *repository) ReplacePeriods(ctx context.Context, locationID int, removeIDs []int, periods []Period) ([]Period, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if len(removeIDs) > 0 {
		query, args, err := sqlx.In(
			`DELETE FROM calendar_periods WHERE location_id = ? AND id IN (?)`,
			locationID, removeIDs)
		if err != nil {
			return nil, fmt.Errorf("delete periods: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("delete periods: %w", err)
		}
	}

	saved, err := insertPeriodsTx(ctx, tx, periods)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return saved, nil
}

func (r *repository) DeletePeriod(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM calendar_periods WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete period: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete period: %w", err)
	}
	if affected == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

const timeslotColumns = ` id, period_id, slot_date, seqnr, seat_count, reservation_count `

func (r *repository) GetTimeslotByID(ctx context.Context, id int) (*Timeslot, error) {
	var slot Timeslot
	query := `SELECT` + timeslotColumns + `FROM timeslots WHERE id = $1`
	err := r.db.GetContext(ctx, &slot, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTimeslotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get timeslot: %w", err)
	}
	return &slot, nil
}

func (r *repository) GetTimeslotsOfPeriod(ctx context.Context, periodID int) ([]Timeslot, error) {
	var slots []Timeslot
	query := `SELECT` + timeslotColumns + `FROM timeslots WHERE period_id = $1 ORDER BY slot_date, seqnr`
	if err := r.db.SelectContext(ctx, &slots, query, periodID); err != nil {
		return nil, fmt.Errorf("get timeslots of period: %w", err)
	}
	return slots, nil
}

func (r *repository) GetTimeslotsOfLocation(ctx context.Context, locationID int) ([]Timeslot, error) {
	var slots []Timeslot
	query := `
		SELECT t.id, t.period_id, t.slot_date, t.seqnr, t.seat_count, t.reservation_count
		FROM timeslots t
		JOIN calendar_periods p ON p.id = t.period_id
		WHERE p.location_id = $1
		ORDER BY t.slot_date, t.seqnr`
	if err := r.db.SelectContext(ctx, &slots, query, locationID); err != nil {
		return nil, fmt.Errorf("get timeslots of location: %w", err)
	}
	return slots, nil
}

type slotWindowRow struct {
	Timeslot
	OpeningTime    string `db:"opening_time"`
	ClosingTime    string `db:"closing_time"`
	Reservable     bool   `db:"reservable"`
	TimeslotLength int    `db:"timeslot_length"`
}

// NextWindowOfLocation returns the wall-clock window of the next timeslot of
// the location that has not ended yet. ErrTimeslotNotFound means the
// location has no upcoming slots at all.
func (r *repository) NextWindowOfLocation(ctx context.Context, locationID int, now time.Time) (time.Time, time.Time, error) {
	var rows []slotWindowRow
	query := `
		SELECT t.id, t.period_id, t.slot_date, t.seqnr, t.seat_count, t.reservation_count,
		       p.opening_time, p.closing_time, p.reservable, p.timeslot_length
		FROM timeslots t
		JOIN calendar_periods p ON p.id = t.period_id
		WHERE p.location_id = $1 AND t.slot_date >= $2
		ORDER BY t.slot_date, t.seqnr
		LIMIT 100`
	if err := r.db.SelectContext(ctx, &rows, query, locationID, now.AddDate(0, 0, -1)); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("next window of location: %w", err)
	}

	for _, row := range rows {
		var start, end time.Time
		if row.Reservable && row.TimeslotLength > 0 {
			start, end = row.Window(row.OpeningTime, row.TimeslotLength)
		} else {
			day := Timeslot{Date: row.Date}
			start, _ = day.Window(row.OpeningTime, 0)
			end, _ = day.Window(row.ClosingTime, 0)
		}
		if end.After(now) {
			return start, end, nil
		}
	}
	return time.Time{}, time.Time{}, ErrTimeslotNotFound
}
