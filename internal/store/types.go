package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Client is a studio member record.
type Client struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     string
	Status    string
	BirthDate sql.NullTime
	CreatedAt time.Time
}

// Fields exposes client attributes for predicate checks and template
// variables.
func (c *Client) Fields() map[string]interface{} {
	m := map[string]interface{}{
		"name":   c.Name,
		"email":  c.Email,
		"phone":  c.Phone,
		"status": c.Status,
	}
	if c.BirthDate.Valid {
		m["birth_date"] = c.BirthDate.Time
	}
	return m
}

// Trainer is a studio staff record.
type Trainer struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     string
	Status    string
	Specialty string
}

// Fields exposes trainer attributes for predicate checks and template
// variables.
func (t *Trainer) Fields() map[string]interface{} {
	return map[string]interface{}{
		"name":      t.Name,
		"email":     t.Email,
		"phone":     t.Phone,
		"status":    t.Status,
		"specialty": t.Specialty,
	}
}

// Session is a scheduled training session.
type Session struct {
	ID        uuid.UUID
	ClientID  uuid.UUID
	TrainerID uuid.NullUUID
	Title     string
	StartsAt  time.Time
	EndsAt    sql.NullTime
	Status    string
}

// Fields exposes session attributes for predicate checks and template
// variables.
func (s *Session) Fields() map[string]interface{} {
	return map[string]interface{}{
		"status":        s.Status,
		"session_title": s.Title,
		"session_date":  s.StartsAt.Format("January 2, 2006"),
		"session_time":  s.StartsAt.Format("3:04 PM"),
	}
}

// Payment is an invoice/payment record.
type Payment struct {
	ID          uuid.UUID
	ClientID    uuid.UUID
	Amount      float64
	Status      string
	Description string
	DueDate     sql.NullTime
}

// Fields exposes payment attributes for predicate checks and template
// variables.
func (p *Payment) Fields() map[string]interface{} {
	m := map[string]interface{}{
		"status":      p.Status,
		"amount":      p.Amount,
		"description": p.Description,
	}
	if p.DueDate.Valid {
		m["due_date"] = p.DueDate.Time.Format("January 2, 2006")
	}
	return m
}
