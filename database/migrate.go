package database

import (
	"database/sql"
	"fmt"
)

var (
	createTicketSequenceSQL = `
CREATE SEQUENCE IF NOT EXISTS %s_tickets_id_seq
    MINVALUE 1
    MAXVALUE 2147483647
    CYCLE;`

	createTicketsTableSQL = `
CREATE TABLE IF NOT EXISTS %s_tickets (
    id             INTEGER       PRIMARY KEY,
    creation       TIMESTAMPTZ   NOT NULL DEFAULT now(),
    expiry         TIMESTAMPTZ   NOT NULL,
    title          VARCHAR       NOT NULL DEFAULT '',
    refresh_count  INTEGER       NOT NULL DEFAULT 0
);`

	createTicketsExpiryIndexSQL = `
CREATE INDEX IF NOT EXISTS %s_tickets_expiry_idx
ON %s_tickets (expiry);`
)

// Migrate creates the ticket id sequence, the tickets table, and its expiry
// index. The sequence cycles through the full positive int32 range so id
// allocation wraps back to 1 on exhaustion instead of failing.
func Migrate(db *sql.DB, tablePrefix string) error {
	if err := createTicketSequence(db, tablePrefix); err != nil {
		return err
	}

	if err := createTicketsTable(db, tablePrefix); err != nil {
		return err
	}

	if err := createTicketsExpiryIndex(db, tablePrefix); err != nil {
		return err
	}

	return nil
}

func createTicketSequence(db *sql.DB, tablePrefix string) error {
	var query = fmt.Sprintf(createTicketSequenceSQL, tablePrefix)
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create ticket id sequence: %w", err)
	}
	return nil
}

func createTicketsTable(db *sql.DB, tablePrefix string) error {
	var query = fmt.Sprintf(createTicketsTableSQL, tablePrefix)
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tickets table: %w", err)
	}
	return nil
}

func createTicketsExpiryIndex(db *sql.DB, tablePrefix string) error {
	var query = fmt.Sprintf(createTicketsExpiryIndexSQL, tablePrefix, tablePrefix)
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tickets expiry index: %w", err)
	}
	return nil
}
