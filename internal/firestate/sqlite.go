package firestate

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"adhan/internal/db"
	"adhan/internal/prayer"
)

var migrations = []db.Statement{
	{Label: "fired_prayers", SQL: `
		CREATE TABLE IF NOT EXISTS fired_prayers (
			date     TEXT NOT NULL,
			prayer   TEXT NOT NULL,
			kind     TEXT NOT NULL DEFAULT 'adhan',
			fired_at TEXT NOT NULL,
			PRIMARY KEY (date, prayer, kind)
		);`},
	{Label: "fired_prayers indexes", SQL: `
		CREATE INDEX IF NOT EXISTS idx_fired_date ON fired_prayers(date);`},
}

// Migrate creates the fired_prayers table.
func Migrate(conn *sqlx.DB) error {
	return db.Apply(conn, "firestate", migrations)
}

// SQLiteBackend stores fires in the fired_prayers table.
type SQLiteBackend struct {
	conn *sqlx.DB
}

// NewSQLiteBackend returns a backend over conn. Migrate must have run.
func NewSQLiteBackend(conn *sqlx.DB) *SQLiteBackend {
	return &SQLiteBackend{conn: conn}
}

type firedRow struct {
	Date    string `db:"date"`
	Prayer  string `db:"prayer"`
	Kind    string `db:"kind"`
	FiredAt string `db:"fired_at"`
}

// Load reads every row. Rows that do not parse are skipped.
func (b *SQLiteBackend) Load(ctx context.Context) (map[Key]time.Time, error) {
	var rows []firedRow
	if err := b.conn.SelectContext(ctx, &rows, `SELECT date, prayer, kind, fired_at FROM fired_prayers`); err != nil {
		return nil, fmt.Errorf("load fired prayers: %w", err)
	}

	out := make(map[Key]time.Time, len(rows))
	for _, r := range rows {
		name, err := prayer.ParseName(r.Prayer)
		if err != nil {
			log.Warn().Str("component", "firestate").Str("prayer", r.Prayer).Msg("skipping row with unknown prayer")
			continue
		}
		at, err := time.Parse(time.RFC3339Nano, r.FiredAt)
		if err != nil {
			log.Warn().Str("component", "firestate").Str("fired_at", r.FiredAt).Msg("skipping row with bad timestamp")
			continue
		}
		out[Key{Date: r.Date, Prayer: name, Kind: Kind(r.Kind)}] = at
	}
	return out, nil
}

// Save upserts every key in one transaction. Rows it was not given are
// left alone, so a second process (the CLI) cannot erase fires the daemon
// wrote in between; old rows go through PruneBefore.
func (b *SQLiteBackend) Save(ctx context.Context, fired map[Key]time.Time) error {
	tx, err := b.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save fired prayers: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO fired_prayers (date, prayer, kind, fired_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (date, prayer, kind) DO UPDATE SET fired_at = excluded.fired_at`)
	if err != nil {
		return fmt.Errorf("save fired prayers: prepare: %w", err)
	}
	defer stmt.Close()

	for k, at := range fired {
		if _, err := stmt.ExecContext(ctx, k.Date, string(k.Prayer), string(k.Kind), at.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("save fired prayer %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save fired prayers: commit: %w", err)
	}
	return nil
}

// PruneBefore deletes rows dated before the given date.
func (b *SQLiteBackend) PruneBefore(ctx context.Context, before string) (int, error) {
	res, err := b.conn.ExecContext(ctx, `DELETE FROM fired_prayers WHERE date < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("prune fired prayers: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune fired prayers: %w", err)
	}
	return int(n), nil
}
