package location

import (
	"context"
	"errors"
)

var ErrLocationNotFound = errors.New("location not found")

type Service interface {
	CreateLocation(ctx context.Context, req CreateLocationRequest) (*Location, error)
	GetAllLocations(ctx context.Context) ([]Location, error)
	GetLocationByID(ctx context.Context, id int) (*Location, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) CreateLocation(ctx context.Context, req CreateLocationRequest) (*Location, error) {
	return s.repo.Create(ctx, req.Name, req.Building, req.NumberOfSeats)
}

func (s *service) GetAllLocations(ctx context.Context) ([]Location, error) {
	return s.repo.GetAll(ctx)
}

func (s *service) GetLocationByID(ctx context.Context, id int) (*Location, error) {
	loc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrLocationNotFound
	}
	return loc, nil
}
