// Package store provides read access to the studio entity tables the rule
// engine evaluates against: clients, trainers, sessions and payments. The
// engine never writes these tables; they are owned by the main CRUD service.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store reads studio entities from PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates an entity store over the given database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Client fetches a single client by ID. Returns (nil, nil) when absent.
func (s *Store) Client(ctx context.Context, id uuid.UUID) (*Client, error) {
	var c Client
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(email,''), COALESCE(phone,''), status, birth_date, created_at
		FROM clients WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Status, &c.BirthDate, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Trainer fetches a single trainer by ID. Returns (nil, nil) when absent.
func (s *Store) Trainer(ctx context.Context, id uuid.UUID) (*Trainer, error) {
	var t Trainer
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(email,''), COALESCE(phone,''), status, COALESCE(specialty,'')
		FROM trainers WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Email, &t.Phone, &t.Status, &t.Specialty)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Session fetches a single session by ID. Returns (nil, nil) when absent.
func (s *Store) Session(ctx context.Context, id uuid.UUID) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, client_id, trainer_id, COALESCE(title,''), starts_at, ends_at, status
		FROM training_sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.ClientID, &sess.TrainerID, &sess.Title, &sess.StartsAt, &sess.EndsAt, &sess.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Payment fetches a single payment by ID. Returns (nil, nil) when absent.
func (s *Store) Payment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	var p Payment
	err := s.db.QueryRowContext(ctx,
		`SELECT id, client_id, amount, status, COALESCE(description,''), due_date
		FROM payments WHERE id = $1`, id,
	).Scan(&p.ID, &p.ClientID, &p.Amount, &p.Status, &p.Description, &p.DueDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// allowedClientFilters are the client columns an audience filter may
// reference. Anything else is ignored rather than interpolated.
var allowedClientFilters = map[string]string{
	"status": "status",
	"source": "source",
	"city":   "city",
}

// ListClients returns clients matching the given column filters. With no
// filters, only active clients are returned.
func (s *Store) ListClients(ctx context.Context, filters map[string]string) ([]Client, error) {
	query := `SELECT id, name, COALESCE(email,''), COALESCE(phone,''), status, birth_date, created_at
		FROM clients WHERE 1=1`
	var args []interface{}
	argIdx := 1

	if len(filters) == 0 {
		query += " AND status = 'active'"
	}
	for field, value := range filters {
		col, ok := allowedClientFilters[field]
		if !ok {
			continue
		}
		query += fmt.Sprintf(" AND %s = $%d", col, argIdx)
		args = append(args, value)
		argIdx++
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Status, &c.BirthDate, &c.CreatedAt); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// ListTrainers returns trainers matching the given status filter. With no
// filters, only active trainers are returned.
func (s *Store) ListTrainers(ctx context.Context, filters map[string]string) ([]Trainer, error) {
	query := `SELECT id, name, COALESCE(email,''), COALESCE(phone,''), status, COALESCE(specialty,'')
		FROM trainers WHERE 1=1`
	var args []interface{}

	status := filters["status"]
	if status == "" {
		status = "active"
	}
	query += " AND status = $1 ORDER BY name"
	args = append(args, status)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trainers []Trainer
	for rows.Next() {
		var t Trainer
		if err := rows.Scan(&t.ID, &t.Name, &t.Email, &t.Phone, &t.Status, &t.Specialty); err != nil {
			return nil, err
		}
		trainers = append(trainers, t)
	}
	return trainers, rows.Err()
}

// ClientsByBirthday returns active clients whose birth month/day matches.
func (s *Store) ClientsByBirthday(ctx context.Context, month time.Month, day int) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(email,''), COALESCE(phone,''), status, birth_date, created_at
		FROM clients
		WHERE status = 'active'
		  AND birth_date IS NOT NULL
		  AND EXTRACT(MONTH FROM birth_date) = $1
		  AND EXTRACT(DAY FROM birth_date) = $2
		ORDER BY name`, int(month), day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Status, &c.BirthDate, &c.CreatedAt); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// PaymentsByStatus returns payments in any of the given statuses.
func (s *Store) PaymentsByStatus(ctx context.Context, statuses ...string) ([]Payment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, client_id, amount, status, COALESCE(description,''), due_date
		FROM payments WHERE status = ANY($1) ORDER BY due_date NULLS LAST`,
		pq.Array(statuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.ClientID, &p.Amount, &p.Status, &p.Description, &p.DueDate); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// SessionsStartingBetween returns scheduled sessions starting inside the
// half-open window [from, to).
func (s *Store) SessionsStartingBetween(ctx context.Context, from, to time.Time) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, client_id, trainer_id, COALESCE(title,''), starts_at, ends_at, status
		FROM training_sessions
		WHERE status = 'scheduled' AND starts_at >= $1 AND starts_at < $2
		ORDER BY starts_at`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.ClientID, &sess.TrainerID, &sess.Title, &sess.StartsAt, &sess.EndsAt, &sess.Status); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
