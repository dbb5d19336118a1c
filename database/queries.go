package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrDuplicateID is returned by InsertTicket when the allocated id is still
// occupied by an existing row. Only possible after the id sequence has
// cycled while old tickets remain in the table.
var ErrDuplicateID = errors.New("ticket id already occupied")

// DBTX is an interface that both sql.DB and sql.Tx implement.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries provides table-aware database operations.
type Queries struct {
	db          DBTX
	tablePrefix string
}

// NewQueries creates a new Queries instance with the given table prefix.
func NewQueries(db DBTX, tablePrefix string) *Queries {
	return &Queries{
		db:          db,
		tablePrefix: tablePrefix,
	}
}

// TablePrefix returns the prefix this Queries instance operates on.
func (q *Queries) TablePrefix() string {
	return q.tablePrefix
}

// The insert draws its id from the cyclic sequence and computes both
// creation and expiry from the same statement-level now(), so the invariant
// expiry = creation + timeout holds exactly. The touch recomputes expiry
// server-side inside the same atomic statement that bumps refresh_count;
// clients never compute or write an expiry value themselves.
var (
	insertTicketSQL = `
INSERT INTO %s_tickets (id, title, expiry)
VALUES (nextval('%s_tickets_id_seq'), $1, now() + make_interval(secs => $2))
RETURNING id, creation, expiry, title, refresh_count;`

	touchTicketSQL = `
UPDATE %s_tickets
SET expiry = now() + make_interval(secs => $1),
    refresh_count = refresh_count + 1
WHERE id = $2
RETURNING id, creation, expiry, title, refresh_count;`

	getTicketSQL = `
SELECT id, creation, expiry, title, refresh_count
FROM %s_tickets
WHERE id = $1;`

	listTicketsSQL = `
SELECT id, creation, expiry, title, refresh_count
FROM %s_tickets
ORDER BY id ASC;`

	ticketIsLiveSQL = `
SELECT EXISTS (
    SELECT 1 FROM %s_tickets
    WHERE id = $1 AND expiry > now()
);`

	deleteTicketSQL = `
DELETE FROM %s_tickets
WHERE id = $1;`

	deleteExpiredTicketsSQL = `
DELETE FROM %s_tickets
WHERE expiry <= now()
RETURNING id, creation, expiry, title, refresh_count;`
)

// InsertTicket allocates the next id from the cyclic sequence and inserts a
// ticket expiring timeoutSeconds from now. Returns ErrDuplicateID when the
// allocated id is still occupied.
func (q *Queries) InsertTicket(ctx context.Context, title string, timeoutSeconds float64) (*TicketRecord, error) {
	var (
		query  = fmt.Sprintf(insertTicketSQL, q.tablePrefix, q.tablePrefix)
		ticket TicketRecord
		err    = q.db.QueryRowContext(ctx, query, title, timeoutSeconds).Scan(
			&ticket.ID, &ticket.Creation, &ticket.Expiry, &ticket.Title, &ticket.RefreshCount,
		)
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %w", ErrDuplicateID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert ticket: %w", err)
	}

	return &ticket, nil
}

// TouchTicket atomically extends the ticket's expiry to now plus
// timeoutSeconds and increments its refresh count. Returns nil when no row
// matches the id.
func (q *Queries) TouchTicket(ctx context.Context, id int32, timeoutSeconds float64) (*TicketRecord, error) {
	var (
		query  = fmt.Sprintf(touchTicketSQL, q.tablePrefix)
		ticket TicketRecord
		err    = q.db.QueryRowContext(ctx, query, timeoutSeconds, id).Scan(
			&ticket.ID, &ticket.Creation, &ticket.Expiry, &ticket.Title, &ticket.RefreshCount,
		)
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to touch ticket %d: %w", id, err)
	}

	return &ticket, nil
}

// GetTicket retrieves a single ticket by id, or nil if not found.
func (q *Queries) GetTicket(ctx context.Context, id int32) (*TicketRecord, error) {
	var (
		query  = fmt.Sprintf(getTicketSQL, q.tablePrefix)
		ticket TicketRecord
		err    = q.db.QueryRowContext(ctx, query, id).Scan(
			&ticket.ID, &ticket.Creation, &ticket.Expiry, &ticket.Title, &ticket.RefreshCount,
		)
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket %d: %w", id, err)
	}

	return &ticket, nil
}

// ListTickets returns all tickets ordered by id.
func (q *Queries) ListTickets(ctx context.Context) ([]*TicketRecord, error) {
	var (
		query     = fmt.Sprintf(listTicketsSQL, q.tablePrefix)
		rows, err = q.db.QueryContext(ctx, query)
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	return scanTickets(rows)
}

// TicketIsLive reports whether a row exists for the id with its expiry
// strictly in the future, judged by the database clock.
func (q *Queries) TicketIsLive(ctx context.Context, id int32) (bool, error) {
	var (
		query = fmt.Sprintf(ticketIsLiveSQL, q.tablePrefix)
		live  bool
		err   = q.db.QueryRowContext(ctx, query, id).Scan(&live)
	)
	if err != nil {
		return false, fmt.Errorf("failed to check ticket %d liveness: %w", id, err)
	}

	return live, nil
}

// DeleteTicket removes a ticket by id. Deleting a nonexistent id is not an
// error.
func (q *Queries) DeleteTicket(ctx context.Context, id int32) error {
	var query = fmt.Sprintf(deleteTicketSQL, q.tablePrefix)
	_, err := q.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete ticket %d: %w", id, err)
	}
	return nil
}

// DeleteExpiredTickets removes all tickets past expiry and returns the
// deleted rows so callers can log what was reclaimed.
func (q *Queries) DeleteExpiredTickets(ctx context.Context) ([]*TicketRecord, error) {
	var (
		query     = fmt.Sprintf(deleteExpiredTicketsSQL, q.tablePrefix)
		rows, err = q.db.QueryContext(ctx, query)
	)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired tickets: %w", err)
	}
	defer rows.Close()

	return scanTickets(rows)
}

func scanTickets(rows *sql.Rows) ([]*TicketRecord, error) {
	var tickets []*TicketRecord
	for rows.Next() {
		var ticket TicketRecord
		if err := rows.Scan(&ticket.ID, &ticket.Creation, &ticket.Expiry, &ticket.Title, &ticket.RefreshCount); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, &ticket)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tickets, nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
