package calendar

import (
	"context"
	"sort"
	"time"

	"studieplekken/internal/location"
	"studieplekken/internal/metrics"
)

type Service interface {
	AddPeriods(ctx context.Context, reqs []PeriodRequest) ([]Period, error)
	GetPeriod(ctx context.Context, id int) (*Period, error)
	GetPeriodsOfLocation(ctx context.Context, locationID int) ([]Period, error)
	UpdatePeriod(ctx context.Context, id int, req PeriodRequest) (*Period, error)
	UpdatePeriods(ctx context.Context, locationID int, from, to []PeriodRequest) ([]Period, error)
	DeletePeriod(ctx context.Context, id int) error
	GetTimeslot(ctx context.Context, id int) (*Timeslot, error)
	GetTimeslotsOfPeriod(ctx context.Context, periodID int) ([]Timeslot, error)
	GetTimeslotsOfLocation(ctx context.Context, locationID int) ([]Timeslot, error)
	LocationStatus(ctx context.Context, locationID int) (*StatusReport, error)
}

type service struct {
	repo      Repository
	locations location.Repository
	now       func() time.Time
}

func NewService(repo Repository, locations location.Repository) Service {
	return &service{
		repo:      repo,
		locations: locations,
		now:       time.Now,
	}
}

// AddPeriods validates and stores new calendar periods. Each period gets the
// current seat count of its location snapshotted onto it, and its timeslots
// are generated in the same transaction as the period itself.
func (s *service) AddPeriods(ctx context.Context, reqs []PeriodRequest) ([]Period, error) {
	now := s.now()
	periods := make([]Period, 0, len(reqs))
	for _, req := range reqs {
		p := req.Period()
		if err := p.Validate(); err != nil {
			return nil, err
		}
		seats, err := s.locations.SeatCount(ctx, p.LocationID)
		if err != nil {
			return nil, err
		}
		p.SeatCount = seats
		p.ApplyDefaults(now)
		periods = append(periods, p)
	}

	saved, err := s.repo.AddPeriods(ctx, periods)
	if err != nil {
		return nil, err
	}
	for _, p := range saved {
		metrics.RecordTimeslotsGenerated(p.Days() * p.TimeslotsPerDay())
	}
	return saved, nil
}

func (s *service) GetPeriod(ctx context.Context, id int) (*Period, error) {
	return s.repo.GetPeriodByID(ctx, id)
}

func (s *service) GetPeriodsOfLocation(ctx context.Context, locationID int) ([]Period, error) {
	exists, err := s.locations.Exists(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, location.ErrLocationNotFound
	}
	return s.repo.GetPeriodsOfLocation(ctx, locationID)
}

// UpdatePeriod rewrites a single period. Locked periods cannot be edited,
// and a period can never move to another location. The seat count snapshot
// taken at creation is kept.
func (s *service) UpdatePeriod(ctx context.Context, id int, req PeriodRequest) (*Period, error) {
	existing, err := s.repo.GetPeriodByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if existing.Locked(now) {
		return nil, ErrPeriodLocked
	}

	p := req.Period()
	if p.LocationID != existing.LocationID {
		return nil, ErrWrongLocation
	}
	p.ID = id
	p.SeatCount = existing.SeatCount
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.ApplyDefaults(now)

	if err := s.repo.UpdatePeriod(ctx, &p); err != nil {
		return nil, err
	}
	metrics.RecordTimeslotsGenerated(p.Days() * p.TimeslotsPerDay())
	return &p, nil
}

// UpdatePeriods replaces the full period set of a location. The caller sends
// the periods it based its edit on; if the stored set no longer matches that
// view the update is refused with ErrStaleView and the caller has to refetch.
func (s *service) UpdatePeriods(ctx context.Context, locationID int, from, to []PeriodRequest) ([]Period, error) {
	current, err := s.repo.GetPeriodsOfLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if stale(current, from) {
		return nil, ErrStaleView
	}

	now := s.now()
	periods := make([]Period, 0, len(to))
	for _, req := range to {
		p := req.Period()
		if p.LocationID != locationID {
			return nil, ErrWrongLocation
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		seats, err := s.locations.SeatCount(ctx, locationID)
		if err != nil {
			return nil, err
		}
		p.SeatCount = seats
		p.ApplyDefaults(now)
		periods = append(periods, p)
	}

	// A locked period may survive the replacement only unchanged.
	for i := range current {
		if !current[i].Locked(now) {
			continue
		}
		kept := false
		for j := range periods {
			if current[i].Equivalent(&periods[j]) {
				kept = true
				break
			}
		}
		if !kept {
			return nil, ErrPeriodLocked
		}
	}

	removeIDs := make([]int, 0, len(current))
	for _, p := range current {
		removeIDs = append(removeIDs, p.ID)
	}

	saved, err := s.repo.ReplacePeriods(ctx, locationID, removeIDs, periods)
	if err != nil {
		return nil, err
	}
	for _, p := range saved {
		metrics.RecordTimeslotsGenerated(p.Days() * p.TimeslotsPerDay())
	}
	return saved, nil
}

// stale reports whether the stored periods differ from the view the caller
// edited against. Both sets are compared sorted by start date so that
// ordering differences do not count as conflicts.
func stale(current []Period, from []PeriodRequest) bool {
	if len(current) != len(from) {
		return true
	}

	view := make([]Period, 0, len(from))
	for _, req := range from {
		view = append(view, req.Period())
	}
	sorted := make([]Period, len(current))
	copy(sorted, current)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartsAt.Before(sorted[j].StartsAt) })
	sort.Slice(view, func(i, j int) bool { return view[i].StartsAt.Before(view[j].StartsAt) })

	for i := range sorted {
		if !sorted[i].Equivalent(&view[i]) {
			return true
		}
	}
	return false
}

func (s *service) DeletePeriod(ctx context.Context, id int) error {
	existing, err := s.repo.GetPeriodByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.Locked(s.now()) {
		return ErrPeriodLocked
	}
	return s.repo.DeletePeriod(ctx, id)
}

func (s *service) GetTimeslot(ctx context.Context, id int) (*Timeslot, error) {
	return s.repo.GetTimeslotByID(ctx, id)
}

func (s *service) GetTimeslotsOfPeriod(ctx context.Context, periodID int) ([]Timeslot, error) {
	if _, err := s.repo.GetPeriodByID(ctx, periodID); err != nil {
		return nil, err
	}
	return s.repo.GetTimeslotsOfPeriod(ctx, periodID)
}

func (s *service) GetTimeslotsOfLocation(ctx context.Context, locationID int) ([]Timeslot, error) {
	exists, err := s.locations.Exists(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, location.ErrLocationNotFound
	}
	return s.repo.GetTimeslotsOfLocation(ctx, locationID)
}

// LocationStatus derives the open state of a location from its next
// timeslot window.
func (s *service) LocationStatus(ctx context.Context, locationID int) (*StatusReport, error) {
	exists, err := s.locations.Exists(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, location.ErrLocationNotFound
	}

	now := s.now()
	start, end, err := s.repo.NextWindowOfLocation(ctx, locationID, now)
	if err == ErrTimeslotNotFound {
		return &StatusReport{Status: StatusClosed}, nil
	}
	if err != nil {
		return nil, err
	}

	switch {
	case !now.Before(start) && now.Before(end):
		return &StatusReport{Status: StatusOpen, Until: end.Format(time.RFC3339)}, nil
	case sameDay(now, start):
		return &StatusReport{Status: StatusClosedActive, Until: start.Format(time.RFC3339)}, nil
	default:
		return &StatusReport{Status: StatusClosedUpcoming, Until: start.Format(time.RFC3339)}, nil
	}
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
