package models

import "time"

// Customer is a delivery account. Due is never stored on it; it is always
// derived from entries and payments.
type Customer struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Phone     string    `bson:"phone" json:"phone"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}
