package database

import "time"

// TicketRecord represents a lease ticket row in the database.
type TicketRecord struct {
	ID           int32
	Creation     time.Time
	Expiry       time.Time
	Title        string
	RefreshCount int
}
