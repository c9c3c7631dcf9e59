package db

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "adhan.db")

	conn, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer conn.Close()

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("expected database directory to exist: %v", err)
	}

	var mode string
	if err := conn.Get(&mode, "PRAGMA journal_mode"); err != nil {
		t.Fatalf("query journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("expected wal journal mode, got %q", mode)
	}
}

func TestOpenMemoryIsSingleConnection(t *testing.T) {
	conn, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Exec("CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	// A second pooled connection would not see the table.
	var n int
	if err := conn.Get(&n, "SELECT COUNT(*) FROM t"); err != nil {
		t.Fatalf("table not visible on pooled query: %v", err)
	}
}

func TestExpectOneRow(t *testing.T) {
	conn, err := OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.MustExec("CREATE TABLE t (id INTEGER PRIMARY KEY)")
	conn.MustExec("INSERT INTO t (id) VALUES (1)")

	res, _ := conn.Exec("DELETE FROM t WHERE id = 2")
	err = ExpectOneRow(res, "delete t")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err == nil || err.Error() != "delete t: not found" {
		t.Errorf("unexpected message: %v", err)
	}

	res, _ = conn.Exec("DELETE FROM t WHERE id = 1")
	if err := ExpectOneRow(res, "delete t"); err != nil {
		t.Errorf("expected success, got %v", err)
	}
}

func TestTimeHelpers(t *testing.T) {
	if !ParseTime("garbage").IsZero() {
		t.Error("expected zero time for unparsable input")
	}
	ts := time.Date(2025, 3, 10, 4, 45, 0, 0, time.UTC)
	if got := NullTimeString(ts); got != "2025-03-10 04:45:00" {
		t.Errorf("NullTimeString = %v", got)
	}
	if NullTimeString(time.Time{}) != nil {
		t.Error("expected nil for zero time")
	}
	if !ParseTime("2025-03-10 04:45:00").Equal(ts) {
		t.Error("ParseTime round trip mismatch")
	}
}

func TestApplyIsAtomic(t *testing.T) {
	conn, err := OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	err = Apply(conn, "broken", []Statement{
		{"good", `CREATE TABLE IF NOT EXISTS a (id INTEGER)`},
		{"bad", `CREATE TABLE nope (`},
	})
	if err == nil {
		t.Fatal("expected error from malformed statement")
	}

	var n int
	conn.Get(&n, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'a'`)
	if n != 0 {
		t.Error("partial migration was committed")
	}

	ok := []Statement{{"a", `CREATE TABLE IF NOT EXISTS a (id INTEGER)`}}
	if err := Apply(conn, "ok", ok); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if err := Apply(conn, "ok", ok); err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}
}
