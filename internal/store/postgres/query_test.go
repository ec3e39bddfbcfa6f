package postgres

import (
	"testing"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

func TestListQueryNoOptions(t *testing.T) {
	q := newListQuery(`SELECT id FROM audit_log WHERE TRUE`)
	q.apply(domain.ListOpts{}, "created_at")
	want := `SELECT id FROM audit_log WHERE TRUE ORDER BY created_at DESC`
	if q.String() != want {
		t.Errorf("query = %q, want %q", q.String(), want)
	}
	if len(q.Args()) != 0 {
		t.Errorf("args = %v", q.Args())
	}
}

func TestListQueryAllOptions(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)
	q := newListQuery(`SELECT id FROM order_intents WHERE instrument = $1`, "AAPL")
	q.apply(domain.ListOpts{Since: &since, Until: &until, Limit: 10, Offset: 20}, "created_at")

	want := `SELECT id FROM order_intents WHERE instrument = $1 AND created_at >= $2 AND created_at <= $3 ORDER BY created_at DESC LIMIT $4 OFFSET $5`
	if q.String() != want {
		t.Errorf("query = %q, want %q", q.String(), want)
	}
	args := q.Args()
	if len(args) != 5 || args[0] != "AAPL" || args[3] != 10 || args[4] != 20 {
		t.Errorf("args = %v", args)
	}
}

func TestDSN(t *testing.T) {
	if got := DSN(ClientConfig{DSN: " postgres://x "}); got != "postgres://x" {
		t.Errorf("explicit DSN = %q", got)
	}
	got := DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "equity"})
	want := "postgres://u:p@db:5432/equity?sslmode=disable"
	if got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestSessionDateKeepsLocalDay(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	session := time.Date(2026, 3, 2, 0, 0, 0, 0, tokyo) // 2026-03-01 15:00 UTC
	got := sessionDate(session)
	want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("sessionDate = %v, want %v", got, want)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	for _, name := range []string{"migrations/001_init.sql", "migrations/002_holding_session.sql"} {
		if _, err := migrationsFS.ReadFile(name); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}
