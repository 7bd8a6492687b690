package render

import (
	"context"
	"database/sql"
)

// TemplateStore loads message templates from the message_templates table.
type TemplateStore struct {
	db *sql.DB
}

// NewTemplateStore creates a template store over the given database handle.
func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// Template fetches an active template by name. Returns (nil, nil) when no
// such template exists.
func (s *TemplateStore) Template(ctx context.Context, name string) (*Template, error) {
	var t Template
	err := s.db.QueryRowContext(ctx,
		`SELECT name, COALESCE(subject,''), COALESCE(text_body,''), COALESCE(html_body,''), COALESCE(sms_body,'')
		FROM message_templates
		WHERE name = $1 AND status = 'active'
		LIMIT 1`, name,
	).Scan(&t.Name, &t.Subject, &t.TextBody, &t.HTMLBody, &t.SMSBody)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
