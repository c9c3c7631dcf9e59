package notify

import (
	"github.com/jmoiron/sqlx"

	"adhan/internal/db"
)

var migrations = []db.Statement{
	{Label: "notification_services", SQL: `
		CREATE TABLE IF NOT EXISTS notification_services (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			name               TEXT    NOT NULL,
			service_type       TEXT    NOT NULL,
			config_json        TEXT    NOT NULL,
			enabled            INTEGER DEFAULT 1,
			notify_on_adhan    INTEGER DEFAULT 1,
			notify_on_reminder INTEGER DEFAULT 1,
			created_at         DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at         DATETIME DEFAULT CURRENT_TIMESTAMP
		);`},
	{Label: "notification_services indexes", SQL: `
		CREATE INDEX IF NOT EXISTS idx_notif_enabled ON notification_services(enabled);`},
	{Label: "notification_history", SQL: `
		CREATE TABLE IF NOT EXISTS notification_history (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			service_id    INTEGER,
			channel       TEXT    NOT NULL,
			kind          TEXT    NOT NULL,
			prayer        TEXT,
			message       TEXT    NOT NULL,
			status        TEXT    NOT NULL,
			error_message TEXT,
			sent_at       TEXT,
			created_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (service_id) REFERENCES notification_services(id) ON DELETE SET NULL
		);`},
	{Label: "notification_history indexes", SQL: `
		CREATE INDEX IF NOT EXISTS idx_notif_hist_status  ON notification_history(status);
		CREATE INDEX IF NOT EXISTS idx_notif_hist_created ON notification_history(created_at);`},
}

// Migrate creates the notification tables.
func Migrate(conn *sqlx.DB) error {
	return db.Apply(conn, "notify", migrations)
}
