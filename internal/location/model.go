package location

import "time"

type Location struct {
	ID            int       `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Building      string    `db:"building" json:"building"`
	NumberOfSeats int       `db:"number_of_seats" json:"number_of_seats"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

type CreateLocationRequest struct {
	Name          string `json:"name" binding:"required"`
	Building      string `json:"building" binding:"required"`
	NumberOfSeats int    `json:"number_of_seats" binding:"required,min=1"`
}
