package leaseticket

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go-leaseticket/database"
)

var (
	// ErrInvalidTablePrefix is returned when the table prefix contains invalid characters
	ErrInvalidTablePrefix = errors.New("tablePrefix must contain only lowercase letters, numbers, and underscores, and start with a letter")

	// validTablePrefixPattern validates PostgreSQL-safe identifiers
	validTablePrefixPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// PostgresStore is the Postgres-backed Store. The database is the sole
// arbiter of concurrency: id allocation, expiry computation, and refresh
// counting all happen server-side in single atomic statements, so handles
// in different processes coordinate only through the table's transactional
// guarantees.
type PostgresStore struct {
	db      *sql.DB
	queries *database.Queries
	options options
}

// Open validates the table prefix, runs migrations, and returns a
// Postgres-backed store. The tablePrefix must be a valid PostgreSQL
// identifier (lowercase letters, numbers, underscores, starting with a
// letter).
func Open(db *sql.DB, tablePrefix string, opts ...Option) (*PostgresStore, error) {
	if err := ValidateTablePrefix(tablePrefix); err != nil {
		return nil, fmt.Errorf("invalid tablePrefix: %w", err)
	}

	if err := database.Migrate(db, tablePrefix); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	var options = defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &PostgresStore{
		db:      db,
		queries: database.NewQueries(db, tablePrefix),
		options: options,
	}, nil
}

// ValidateTablePrefix checks if the prefix is valid for use as a PostgreSQL identifier.
func ValidateTablePrefix(tablePrefix string) error {
	if tablePrefix == "" {
		return errors.New("tablePrefix cannot be empty")
	}

	// The longest generated identifier is %s_tickets_expiry_idx; keep the
	// whole name under Postgres' 63-character limit.
	if len(tablePrefix) > 40 {
		return errors.New("tablePrefix must be 40 characters or less")
	}

	if !validTablePrefixPattern.MatchString(tablePrefix) {
		return ErrInvalidTablePrefix
	}

	return nil
}

// Create allocates an id from the cyclic sequence and inserts a ticket in
// one atomic statement. A collision with a still-live occupant is retried a
// bounded number of times, sweeping expired rows between attempts so that
// collisions with dead occupants resolve themselves.
func (s *PostgresStore) Create(ctx context.Context, title string) (*Handle, error) {
	var attempts = s.options.allocRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		var record, err = s.queries.InsertTicket(ctx, title, s.options.timeout.Seconds())
		if err == nil {
			return newHandle(s, ticketFromRecord(record)), nil
		}

		if !errors.Is(err, database.ErrDuplicateID) {
			return nil, fmt.Errorf("%w: failed to create ticket: %w", ErrStoreUnavailable, err)
		}

		s.options.logger.Warn("ticket id collision, sweeping and retrying",
			"attempt", attempt+1,
			"max_attempts", attempts)

		if _, err := s.Sweep(ctx); err != nil {
			s.options.logger.Warn("failed to sweep before allocation retry", "error", err)
		}
	}

	return nil, fmt.Errorf("%w: gave up after %d attempts: %w", ErrAllocationExhausted, attempts, ErrIDCollision)
}

// Heartbeat atomically recomputes expiry to now+timeout and increments the
// refresh count, both inside the same UPDATE statement evaluated against
// the database clock. Returns ErrNotFound when the ticket no longer exists.
func (s *PostgresStore) Heartbeat(ctx context.Context, id int32) (*Ticket, error) {
	var record, err = s.queries.TouchTicket(ctx, id, s.options.timeout.Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to heartbeat ticket %d: %w", ErrStoreUnavailable, id, err)
	}

	if record == nil {
		return nil, fmt.Errorf("failed to heartbeat ticket %d: %w", id, ErrNotFound)
	}

	return ticketFromRecord(record), nil
}

// Release deletes the ticket. Idempotent.
func (s *PostgresStore) Release(ctx context.Context, id int32) error {
	if err := s.queries.DeleteTicket(ctx, id); err != nil {
		return fmt.Errorf("%w: failed to release ticket %d: %w", ErrStoreUnavailable, id, err)
	}
	return nil
}

// IsLive reports whether a record exists for the id with its expiry
// strictly in the future, judged by the database clock.
func (s *PostgresStore) IsLive(ctx context.Context, id int32) (bool, error) {
	var live, err = s.queries.TicketIsLive(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%w: failed to check ticket %d: %w", ErrStoreUnavailable, id, err)
	}
	return live, nil
}

// Sweep deletes all tickets past expiry and returns the reclaimed records.
func (s *PostgresStore) Sweep(ctx context.Context) ([]Ticket, error) {
	var records, err = s.queries.DeleteExpiredTickets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sweep expired tickets: %w", ErrStoreUnavailable, err)
	}

	var tickets = make([]Ticket, len(records))
	for i, record := range records {
		tickets[i] = *ticketFromRecord(record)
	}

	return tickets, nil
}

// List returns all tickets, live or expired, ordered by id.
func (s *PostgresStore) List(ctx context.Context) ([]Ticket, error) {
	var records, err = s.queries.ListTickets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list tickets: %w", ErrStoreUnavailable, err)
	}

	var tickets = make([]Ticket, len(records))
	for i, record := range records {
		tickets[i] = *ticketFromRecord(record)
	}

	return tickets, nil
}

// Exclusively runs fn inside a database transaction that first heartbeats
// the ticket. The heartbeat validates the ticket still exists, extends its
// expiry, and holds the row lock for the duration of the transaction, so
// the ticket cannot be swept by another party while fn runs. Returns
// ErrNotFound (and never runs fn) when the ticket is gone.
func (s *PostgresStore) Exclusively(ctx context.Context, id int32, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	var queries = database.NewQueries(tx, s.queries.TablePrefix())

	record, err := queries.TouchTicket(ctx, id, s.options.timeout.Seconds())
	if err != nil {
		return fmt.Errorf("%w: failed to heartbeat ticket %d: %w", ErrStoreUnavailable, id, err)
	}
	if record == nil {
		return fmt.Errorf("failed to heartbeat ticket %d: %w", id, ErrNotFound)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %w", ErrStoreUnavailable, err)
	}

	return nil
}

// Timeout returns the configured process-wide lease timeout.
func (s *PostgresStore) Timeout() time.Duration {
	return s.options.timeout
}

func ticketFromRecord(record *database.TicketRecord) *Ticket {
	return &Ticket{
		ID:           record.ID,
		Creation:     record.Creation,
		Expiry:       record.Expiry,
		Title:        record.Title,
		RefreshCount: record.RefreshCount,
	}
}
