package location

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, name, building string, numberOfSeats int) (*Location, error) {
	query := `
		INSERT INTO locations (name, building, number_of_seats)
		VALUES ($1, $2, $3)
		RETURNING id, name, building, number_of_seats, created_at
	`

	var loc Location
	err := r.db.GetContext(ctx, &loc, query, name, building, numberOfSeats)
	if err != nil {
		return nil, err
	}

	return &loc, nil
}

func (r *repository) GetAll(ctx context.Context) ([]Location, error) {
	query := `
		SELECT id, name, building, number_of_seats, created_at
		FROM locations
		ORDER BY name ASC
	`

	var locations []Location
	err := r.db.SelectContext(ctx, &locations, query)
	if err != nil {
		return nil, err
	}

	return locations, nil
}

func (r *repository) GetByID(ctx context.Context, id int) (*Location, error) {
	query := `
		SELECT id, name, building, number_of_seats, created_at
		FROM locations
		WHERE id = $1
	`

	var loc Location
	err := r.db.GetContext(ctx, &loc, query, id)
	if err != nil {
		return nil, err
	}

	return &loc, nil
}

func (r *repository) Exists(ctx context.Context, id int) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM locations WHERE id = $1)`

	var exists bool
	err := r.db.GetContext(ctx, &exists, query, id)
	if err != nil {
		return false, err
	}

	return exists, nil
}

func (r *repository) SeatCount(ctx context.Context, id int) (int, error) {
	query := `SELECT number_of_seats FROM locations WHERE id = $1`

	var seats int
	err := r.db.GetContext(ctx, &seats, query, id)
	if err != nil {
		return 0, err
	}

	return seats, nil
}
