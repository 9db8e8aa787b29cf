package maintenance

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/saltyorg/opsboard/internal/config"
	"github.com/saltyorg/opsboard/internal/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		schedule string
		wantErr  bool
	}{
		{"@every 1h", false},
		{"@daily", false},
		{"0 3 * * *", false},
		{"every hour", true},
		{"", true},
	}
	for _, tt := range tests {
		if err := ValidateSchedule(tt.schedule); (err != nil) != tt.wantErr {
			t.Errorf("ValidateSchedule(%q) error = %v, wantErr %v", tt.schedule, err, tt.wantErr)
		}
	}
}

func TestRunPurgesExpiredSessions(t *testing.T) {
	db := newTestDB(t)

	company, err := db.CreateCompany("acme")
	if err != nil {
		t.Fatalf("CreateCompany returned error: %v", err)
	}
	user, err := db.CreateUser("root", "hash", database.RoleAdmin, company.ID)
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	if _, err := db.CreateSession("expired", user.ID, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if _, err := db.CreateSession("live", user.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	m := New(db)
	report := m.Run()
	if report.Error != "" {
		t.Fatalf("Run reported error: %s", report.Error)
	}
	if report.SessionsPurged != 1 {
		t.Fatalf("expected 1 purged session, got %d", report.SessionsPurged)
	}
	if m.LastRun() == nil {
		t.Fatal("LastRun not recorded")
	}
}

func TestStartUsesStoredSchedule(t *testing.T) {
	db := newTestDB(t)
	if err := db.SetSetting(config.KeyMaintenanceSchedule, "@every 5m"); err != nil {
		t.Fatalf("SetSetting returned error: %v", err)
	}

	m := New(db)
	if err := m.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer m.Stop()

	if got := m.Schedule(); got != "@every 5m" {
		t.Fatalf("Schedule() = %q, want %q", got, "@every 5m")
	}

	if err := m.Reschedule("bogus"); err == nil {
		t.Fatal("expected invalid schedule to be rejected")
	}
	if got := m.Schedule(); got != "@every 5m" {
		t.Fatalf("rejected schedule replaced the active one: %q", got)
	}
	if err := m.Reschedule("@daily"); err != nil {
		t.Fatalf("Reschedule returned error: %v", err)
	}
	if got := m.Schedule(); got != "@daily" {
		t.Fatalf("Schedule() = %q, want @daily", got)
	}
}

func TestStartFallsBackOnInvalidSchedule(t *testing.T) {
	db := newTestDB(t)
	if err := db.SetSetting(config.KeyMaintenanceSchedule, "not a schedule"); err != nil {
		t.Fatalf("SetSetting returned error: %v", err)
	}

	m := New(db)
	if err := m.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer m.Stop()

	if got := m.Schedule(); got != DefaultSchedule {
		t.Fatalf("Schedule() = %q, want %q", got, DefaultSchedule)
	}
}
