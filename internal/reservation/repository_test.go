package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"studieplekken/internal/calendar"
)

func setupMock(t *testing.T) (Repository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewRepository(sqlxDB)

	closer := func() {
		sqlxDB.Close()
	}

	return repo, mock, closer
}

var reservationCols = []string{"timeslot_id", "user_id", "state", "created_at"}

func TestTryReserveClaimsSeat(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO reservations").
		WithArgs(5, 9, StateApproved).
		WillReturnRows(sqlmock.NewRows(reservationCols).AddRow(5, 9, "APPROVED", time.Now()))
	mock.ExpectExec("UPDATE timeslots SET reservation_count = reservation_count \\+ 1").
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := repo.TryReserve(context.Background(), 5, 9)
	require.NoError(t, err)
	require.Equal(t, StateApproved, res.State)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTryReserveFullRollsBack(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO reservations").
		WithArgs(5, 9, StateApproved).
		WillReturnRows(sqlmock.NewRows(reservationCols).AddRow(5, 9, "APPROVED", time.Now()))
	// Seat claim matches zero rows once the counter reached seat_count.
	mock.ExpectExec("UPDATE timeslots SET reservation_count = reservation_count \\+ 1").
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.TryReserve(context.Background(), 5, 9)
	require.ErrorIs(t, err, ErrTimeslotFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTryReserveDuplicate(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectBegin()
	// The upsert only revives DELETED rows; a live reservation yields no row.
	mock.ExpectQuery("INSERT INTO reservations").
		WithArgs(5, 9, StateApproved).
		WillReturnRows(sqlmock.NewRows(reservationCols))
	mock.ExpectRollback()

	_, err := repo.TryReserve(context.Background(), 5, 9)
	require.ErrorIs(t, err, ErrDuplicateReservation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePendingNoSeatClaim(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectQuery("INSERT INTO reservations").
		WithArgs(5, 9, StatePending).
		WillReturnRows(sqlmock.NewRows(reservationCols).AddRow(5, 9, "PENDING", time.Now()))

	res, err := repo.CreatePending(context.Background(), 5, 9)
	require.NoError(t, err)
	require.Equal(t, StatePending, res.State)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveFull(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE reservations SET state = 'APPROVED'").
		WithArgs(5, 9).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE timeslots SET reservation_count = reservation_count \\+ 1").
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Approve(context.Background(), 5, 9)
	require.ErrorIs(t, err, ErrTimeslotFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveSkipsNonPending(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE reservations SET state = 'APPROVED'").
		WithArgs(5, 9).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Approve(context.Background(), 5, 9)
	require.ErrorIs(t, err, ErrReservationNotFound)
}

func TestCancelReleasesOccupiedSeat(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT state FROM reservations").
		WithArgs(5, 9).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("APPROVED"))
	mock.ExpectExec("UPDATE reservations SET state = 'DELETED'").
		WithArgs(5, 9).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE timeslots SET reservation_count = GREATEST").
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Cancel(context.Background(), 5, 9))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelPendingKeepsCounter(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT state FROM reservations").
		WithArgs(5, 9).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("PENDING"))
	mock.ExpectExec("UPDATE reservations SET state = 'DELETED'").
		WithArgs(5, 9).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Cancel(context.Background(), 5, 9))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelDeletedReservation(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT state FROM reservations").
		WithArgs(5, 9).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("DELETED"))
	mock.ExpectRollback()

	err := repo.Cancel(context.Background(), 5, 9)
	require.ErrorIs(t, err, ErrReservationNotFound)
}

func TestSetAttendanceAbsentReclaimsSeat(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT state FROM reservations").
		WithArgs(5, 9).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("ABSENT"))
	mock.ExpectExec("UPDATE reservations SET state =").
		WithArgs(5, 9, StatePresent).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE timeslots SET reservation_count = reservation_count \\+ 1").
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SetAttendance(context.Background(), 5, 9, true))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetAttendanceAbsentReleasesSeat(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT state FROM reservations").
		WithArgs(5, 9).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("APPROVED"))
	mock.ExpectExec("UPDATE reservations SET state =").
		WithArgs(5, 9, StateAbsent).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE timeslots SET reservation_count = GREATEST").
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SetAttendance(context.Background(), 5, 9, false))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetAttendanceRejectsPending(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT state FROM reservations").
		WithArgs(5, 9).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("PENDING"))
	mock.ExpectRollback()

	err := repo.SetAttendance(context.Background(), 5, 9, true)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSweepTimeslot(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectQuery("WITH swept AS").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	swept, err := repo.SweepTimeslot(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, 3, swept)
}

func TestSweepUnknownTimeslot(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectQuery("WITH swept AS").
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"count"}))

	_, err := repo.SweepTimeslot(context.Background(), 99)
	require.ErrorIs(t, err, calendar.ErrTimeslotNotFound)
}

func TestGetOfUserFillsWindows(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	cols := []string{"timeslot_id", "user_id", "state", "created_at",
		"location_id", "location_name", "slot_date", "seqnr",
		"opening_time", "closing_time", "reservable", "timeslot_length"}
	date := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT r.timeslot_id").
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(5, 9, "APPROVED", time.Now(), 1, "Therminal", date, 2, "09:00", "17:00", true, 60))

	details, err := repo.GetOfUser(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, details, 1)
	require.Equal(t, time.Date(2026, time.March, 2, 11, 0, 0, 0, time.UTC), details[0].StartsAt)
	require.Equal(t, time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC), details[0].EndsAt)
}

func TestSlotWindowNotFound(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectQuery("SELECT t.id AS timeslot_id").
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"timeslot_id"}))

	_, err := repo.SlotWindow(context.Background(), 99)
	require.ErrorIs(t, err, calendar.ErrTimeslotNotFound)
}
