// Package maintenance runs scheduled housekeeping on the local store.
package maintenance

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/opsboard/internal/config"
	"github.com/saltyorg/opsboard/internal/database"
)

// DefaultSchedule is used when no schedule setting exists.
const DefaultSchedule = "@every 1h"

// Report summarizes one maintenance run.
type Report struct {
	StartedAt      time.Time     `json:"startedAt"`
	Duration       time.Duration `json:"duration"`
	SessionsPurged int64         `json:"sessionsPurged"`
	Error          string        `json:"error,omitempty"`
}

// Manager owns the maintenance schedule.
type Manager struct {
	db       *database.DB
	cron     *cron.Cron
	entryID  cron.EntryID
	schedule string
	running  bool
	lastRun  *Report
	mu       sync.RWMutex
	runMu    sync.Mutex
	now      func() time.Time
}

// New creates a maintenance manager
func New(db *database.DB) *Manager {
	return &Manager{
		db:   db,
		cron: cron.New(),
		now:  time.Now,
	}
}

// ValidateSchedule reports whether schedule is a cron spec or descriptor.
func ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return nil
}

// Start starts the scheduler with the stored schedule.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	schedule := config.NewLoader(m.db).String(config.KeyMaintenanceSchedule, DefaultSchedule)
	if err := m.updateScheduleLocked(schedule); err != nil {
		log.Warn().Err(err).Str("schedule", schedule).Msg("Falling back to default maintenance schedule")
		if err := m.updateScheduleLocked(DefaultSchedule); err != nil {
			return err
		}
	}

	m.cron.Start()
	m.running = true

	log.Info().Str("schedule", m.schedule).Msg("Maintenance scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running job.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	ctx := m.cron.Stop()
	<-ctx.Done()

	m.running = false
	log.Info().Msg("Maintenance scheduler stopped")
}

// Reschedule replaces the active schedule.
func (m *Manager) Reschedule(schedule string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateScheduleLocked(schedule)
}

func (m *Manager) updateScheduleLocked(schedule string) error {
	if err := ValidateSchedule(schedule); err != nil {
		return err
	}
	if m.entryID != 0 {
		m.cron.Remove(m.entryID)
		m.entryID = 0
	}

	id, err := m.cron.AddFunc(schedule, func() { m.Run() })
	if err != nil {
		return err
	}
	m.entryID = id
	m.schedule = schedule
	return nil
}

// Schedule returns the active schedule.
func (m *Manager) Schedule() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.schedule
}

// LastRun returns the report of the most recent run, or nil.
func (m *Manager) LastRun() *Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRun
}

// Run purges expired sessions and refreshes planner statistics. Runs are
// serialized.
func (m *Manager) Run() Report {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	report := Report{StartedAt: m.now()}

	purged, err := m.db.DeleteExpiredSessions(report.StartedAt)
	if err == nil {
		report.SessionsPurged = purged
		err = m.db.Optimize()
	}
	report.Duration = time.Since(report.StartedAt)

	if err != nil {
		report.Error = err.Error()
		log.Error().Err(err).Msg("Maintenance run failed")
	} else {
		log.Debug().Int64("sessions_purged", purged).Dur("duration", report.Duration).Msg("Maintenance run completed")
	}

	m.mu.Lock()
	m.lastRun = &report
	m.mu.Unlock()
	return report
}
