package entity

import "time"

type Product struct {
	ID          string
	UserID      string
	Name        string
	Description string
	Price       float64
	Stock       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
