package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"adhan/internal/db"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conn, err := db.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	if err := Migrate(conn); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func createTestService(t *testing.T, conn *sqlx.DB, name string, adhan, reminder bool) int64 {
	t.Helper()
	id, err := CreateService(conn, &NotificationService{
		Name:             name,
		ServiceType:      "generic",
		ConfigJSON:       `{"shoutrrr_url":"generic://example.com/` + name + `"}`,
		Enabled:          true,
		NotifyOnAdhan:    adhan,
		NotifyOnReminder: reminder,
	})
	if err != nil {
		t.Fatalf("CreateService: %v", err)
	}
	return id
}

func TestCreateAndGetService(t *testing.T) {
	conn := setupTestDB(t)
	id := createTestService(t, conn, "phone", true, false)

	svc, err := GetService(conn, id)
	if err != nil {
		t.Fatalf("GetService: %v", err)
	}
	if svc == nil {
		t.Fatal("expected service")
	}
	if svc.Name != "phone" || !svc.Enabled || !svc.NotifyOnAdhan || svc.NotifyOnReminder {
		t.Errorf("unexpected service: %+v", svc)
	}
	if svc.CreatedAt.IsZero() {
		t.Error("expected created_at to be parsed")
	}
}

func TestGetServiceNotFound(t *testing.T) {
	conn := setupTestDB(t)

	svc, err := GetService(conn, 9999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc != nil {
		t.Error("expected nil for missing service")
	}
}

func TestListEnabledServices(t *testing.T) {
	conn := setupTestDB(t)
	createTestService(t, conn, "a", true, true)
	id := createTestService(t, conn, "b", true, true)

	svc, _ := GetService(conn, id)
	svc.Enabled = false
	if err := UpdateService(conn, svc); err != nil {
		t.Fatalf("UpdateService: %v", err)
	}

	all, _ := ListServices(conn)
	enabled, _ := ListEnabledServices(conn)
	if len(all) != 2 || len(enabled) != 1 {
		t.Errorf("expected 2 total and 1 enabled, got %d and %d", len(all), len(enabled))
	}
}

func TestUpdateAndDeleteMissingService(t *testing.T) {
	conn := setupTestDB(t)

	err := UpdateService(conn, &NotificationService{ID: 42, Name: "x", ServiceType: "generic", ConfigJSON: "{}"})
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound from update, got %v", err)
	}
	if err := DeleteService(conn, 42); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound from delete, got %v", err)
	}
}

func TestRecordAndRecentHistory(t *testing.T) {
	conn := setupTestDB(t)
	id := createTestService(t, conn, "phone", true, true)

	RecordNotification(conn, &NotificationRecord{
		ServiceID: id, Channel: "shoutrrr:phone", Kind: KindAdhan, Prayer: "Fajr",
		Message: "Prayer Time: Fajr time (04:45 AM)", Status: StatusSent, SentAt: time.Now(),
	})
	RecordNotification(conn, &NotificationRecord{
		Channel: "mqtt", Kind: KindReminder, Prayer: "Dhuhr",
		Message: "Prayer Time Reminder: Dhuhr in 00:10:00", Status: StatusFailed, ErrorMessage: "broker down",
	})

	recs, err := RecentHistory(conn, 10)
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Channel != "mqtt" || recs[0].ErrorMessage != "broker down" || !recs[0].SentAt.IsZero() {
		t.Errorf("unexpected newest record: %+v", recs[0])
	}
	if recs[1].ServiceID != id || recs[1].SentAt.IsZero() {
		t.Errorf("unexpected oldest record: %+v", recs[1])
	}

	limited, _ := RecentHistory(conn, 1)
	if len(limited) != 1 {
		t.Errorf("expected limit to apply, got %d", len(limited))
	}
}

func TestDeleteServiceKeepsHistory(t *testing.T) {
	conn := setupTestDB(t)
	id := createTestService(t, conn, "phone", true, true)
	RecordNotification(conn, &NotificationRecord{
		ServiceID: id, Channel: "shoutrrr:phone", Kind: KindAdhan, Message: "m", Status: StatusSent,
	})

	if err := DeleteService(conn, id); err != nil {
		t.Fatalf("DeleteService: %v", err)
	}
	recs, _ := RecentHistory(conn, 10)
	if len(recs) != 1 || recs[0].ServiceID != 0 {
		t.Errorf("expected orphaned history row, got %+v", recs)
	}
}

func TestPruneHistory(t *testing.T) {
	conn := setupTestDB(t)
	conn.MustExec(`INSERT INTO notification_history (channel, kind, message, status, created_at)
		VALUES ('mqtt', 'adhan', 'old', 'sent', '2020-01-01 00:00:00')`)
	RecordNotification(conn, &NotificationRecord{Channel: "mqtt", Kind: KindAdhan, Message: "new", Status: StatusSent})

	n, err := PruneHistory(conn, "2024-01-01 00:00:00")
	if err != nil {
		t.Fatalf("PruneHistory: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned row, got %d", n)
	}
}

func TestServiceWants(t *testing.T) {
	svc := NotificationService{NotifyOnAdhan: true}
	if !svc.Wants(KindAdhan) || svc.Wants(KindReminder) || !svc.Wants(KindTest) || svc.Wants("other") {
		t.Errorf("unexpected Wants results for %+v", svc)
	}
}
