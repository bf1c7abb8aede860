package store

import (
	"context"
	_ "embed"

	"github.com/go-faster/errors"
)

// Schema contains the DDL statements for all tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}
