package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// Statement is one labelled DDL step of a migration.
type Statement struct {
	Label string
	SQL   string
}

// Apply runs statements in order inside a single transaction. Each
// statement must be idempotent (CREATE ... IF NOT EXISTS) since Apply is
// called on every start.
func Apply(conn *sqlx.DB, name string, statements []Statement) error {
	logger := log.With().Str("component", "db").Str("migration", name).Logger()

	tx, err := conn.Beginx()
	if err != nil {
		return fmt.Errorf("migration %s: begin: %w", name, err)
	}
	defer tx.Rollback()

	for _, s := range statements {
		if _, err := tx.Exec(s.SQL); err != nil {
			return fmt.Errorf("migration %s failed at [%s]: %w", name, s.Label, err)
		}
		logger.Debug().Str("step", s.Label).Msg("applied")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %s: commit: %w", name, err)
	}
	logger.Info().Int("steps", len(statements)).Msg("migration completed")
	return nil
}
