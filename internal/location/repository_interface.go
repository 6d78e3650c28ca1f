package location

import "context"

type Repository interface {
	Create(ctx context.Context, name, building string, numberOfSeats int) (*Location, error)
	GetAll(ctx context.Context) ([]Location, error)
	GetByID(ctx context.Context, id int) (*Location, error)
	Exists(ctx context.Context, id int) (bool, error)
	SeatCount(ctx context.Context, id int) (int, error)
}
