package calendar

import (
	"context"
	"time"
)

// Repository persists calendar periods together with the timeslots they
// generate. Every write that touches timeslots runs in the same transaction
// as the period write it belongs to.
type Repository interface {
	AddPeriods(ctx context.Context, periods []Period) ([]Period, error)
	GetPeriodByID(ctx context.Context, id int) (*Period, error)
	GetPeriodsOfLocation(ctx context.Context, locationID int) ([]Period, error)
	UpdatePeriod(ctx context.Context, period *Period) error
	ReplacePeriods(ctx context.Context, locationID int, removeIDs []int, periods []Period) ([]Period, error)
	DeletePeriod(ctx context.Context, id int) error

	GetTimeslotByID(ctx context.Context, id int) (*Timeslot, error)
	GetTimeslotsOfPeriod(ctx context.Context, periodID int) ([]Timeslot, error)
	GetTimeslotsOfLocation(ctx context.Context, locationID int) ([]Timeslot, error)
	NextWindowOfLocation(ctx context.Context, locationID int, now time.Time) (start, end time.Time, err error)
}
