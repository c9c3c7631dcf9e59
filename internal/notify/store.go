package notify

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"adhan/internal/db"
)

const serviceColumns = `
	SELECT id, name, service_type, config_json, enabled,
	       notify_on_adhan, notify_on_reminder, created_at, updated_at
	FROM notification_services`

type serviceRow struct {
	NotificationService
	CreatedAtRaw string `db:"created_at"`
	UpdatedAtRaw string `db:"updated_at"`
}

func (r serviceRow) service() NotificationService {
	s := r.NotificationService
	s.CreatedAt = db.ParseTime(r.CreatedAtRaw)
	s.UpdatedAt = db.ParseTime(r.UpdatedAtRaw)
	return s
}

// ── NotificationService CRUD ────────────────────────────────────────────

// CreateService inserts a new notification destination.
func CreateService(conn *sqlx.DB, svc *NotificationService) (int64, error) {
	res, err := conn.Exec(`
		INSERT INTO notification_services
			(name, service_type, config_json, enabled, notify_on_adhan, notify_on_reminder)
		VALUES (?, ?, ?, ?, ?, ?)`,
		svc.Name, svc.ServiceType, svc.ConfigJSON,
		db.BoolToInt(svc.Enabled),
		db.BoolToInt(svc.NotifyOnAdhan),
		db.BoolToInt(svc.NotifyOnReminder))
	if err != nil {
		return 0, fmt.Errorf("create notification service: %w", err)
	}
	return res.LastInsertId()
}

// GetService returns the service with id, or nil if there is none.
func GetService(conn *sqlx.DB, id int64) (*NotificationService, error) {
	var row serviceRow
	err := conn.Get(&row, serviceColumns+` WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification service %d: %w", id, err)
	}
	s := row.service()
	return &s, nil
}

// ListServices returns all services ordered by name.
func ListServices(conn *sqlx.DB) ([]NotificationService, error) {
	return listServices(conn, serviceColumns+` ORDER BY name`)
}

// ListEnabledServices returns only enabled services.
func ListEnabledServices(conn *sqlx.DB) ([]NotificationService, error) {
	return listServices(conn, serviceColumns+` WHERE enabled = 1 ORDER BY name`)
}

func listServices(conn *sqlx.DB, query string) ([]NotificationService, error) {
	var rows []serviceRow
	if err := conn.Select(&rows, query); err != nil {
		return nil, fmt.Errorf("list notification services: %w", err)
	}
	out := make([]NotificationService, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.service())
	}
	return out, nil
}

// UpdateService overwrites a service's configuration.
func UpdateService(conn *sqlx.DB, svc *NotificationService) error {
	res, err := conn.Exec(`
		UPDATE notification_services SET
			name = ?, service_type = ?, config_json = ?, enabled = ?,
			notify_on_adhan = ?, notify_on_reminder = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		svc.Name, svc.ServiceType, svc.ConfigJSON,
		db.BoolToInt(svc.Enabled),
		db.BoolToInt(svc.NotifyOnAdhan),
		db.BoolToInt(svc.NotifyOnReminder),
		svc.ID)
	if err != nil {
		return fmt.Errorf("update notification service: %w", err)
	}
	return db.ExpectOneRow(res, "update notification service")
}

// DeleteService removes a service. History rows keep a NULL service_id.
func DeleteService(conn *sqlx.DB, id int64) error {
	res, err := conn.Exec(`DELETE FROM notification_services WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete notification service: %w", err)
	}
	return db.ExpectOneRow(res, "delete notification service")
}

// ── NotificationHistory ─────────────────────────────────────────────────

// RecordNotification inserts a row into notification_history.
func RecordNotification(conn *sqlx.DB, rec *NotificationRecord) (int64, error) {
	var serviceID interface{}
	if rec.ServiceID != 0 {
		serviceID = rec.ServiceID
	}

	res, err := conn.Exec(`
		INSERT INTO notification_history
			(service_id, channel, kind, prayer, message, status, error_message, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		serviceID, rec.Channel, rec.Kind, rec.Prayer,
		rec.Message, rec.Status, rec.ErrorMessage, db.NullTimeString(rec.SentAt))
	if err != nil {
		return 0, fmt.Errorf("record notification: %w", err)
	}
	return res.LastInsertId()
}

type historyRow struct {
	ID           int64  `db:"id"`
	ServiceID    int64  `db:"service_id"`
	Channel      string `db:"channel"`
	Kind         string `db:"kind"`
	Prayer       string `db:"prayer"`
	Message      string `db:"message"`
	Status       string `db:"status"`
	ErrorMessage string `db:"error_message"`
	SentAt       string `db:"sent_at"`
	CreatedAt    string `db:"created_at"`
}

// RecentHistory returns the latest limit records, newest first.
func RecentHistory(conn *sqlx.DB, limit int) ([]NotificationRecord, error) {
	var rows []historyRow
	err := conn.Select(&rows, `
		SELECT id, COALESCE(service_id, 0) AS service_id, channel, kind,
		       COALESCE(prayer, '') AS prayer, message, status,
		       COALESCE(error_message, '') AS error_message,
		       COALESCE(sent_at, '') AS sent_at, created_at
		FROM notification_history
		ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}

	out := make([]NotificationRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, NotificationRecord{
			ID:           r.ID,
			ServiceID:    r.ServiceID,
			Channel:      r.Channel,
			Kind:         r.Kind,
			Prayer:       r.Prayer,
			Message:      r.Message,
			Status:       r.Status,
			ErrorMessage: r.ErrorMessage,
			SentAt:       db.ParseTime(r.SentAt),
			CreatedAt:    db.ParseTime(r.CreatedAt),
		})
	}
	return out, nil
}

// PruneHistory deletes history rows created before cutoff ("2006-01-02
// 15:04:05" UTC) and returns how many were removed.
func PruneHistory(conn *sqlx.DB, cutoff string) (int64, error) {
	res, err := conn.Exec(`DELETE FROM notification_history WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune notification history: %w", err)
	}
	return res.RowsAffected()
}
