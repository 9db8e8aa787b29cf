package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

type migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrate applies every migration newer than the recorded schema version.
func (db *DB) Migrate() error {
	log.Info().Msg("Running database migrations")

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	current, err := db.SchemaVersion()
	if err != nil {
		return err
	}
	log.Debug().Int("current_version", current).Msg("Current schema version")

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applying migration")

		if err := db.Transaction(func(tx *sql.Tx) error {
			for i, stmt := range splitSQLStatements(m.SQL) {
				if _, err := tx.Exec(stmt); err != nil {
					return fmt.Errorf("migration %d statement %d failed: %w", m.Version, i+1, err)
				}
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
			}
			return nil
		}); err != nil {
			return err
		}
	}

	if err := db.InitializeDefaults(); err != nil {
		return fmt.Errorf("failed to initialize default settings: %w", err)
	}

	log.Info().Msg("Database migrations complete")
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get current migration version: %w", err)
	}
	return version, nil
}

// splitSQLStatements splits a SQL script into statements on line-final
// semicolons, skipping blank lines and "--" comments.
func splitSQLStatements(script string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(trimmed, ";") {
			if stmt := strings.TrimSpace(current.String()); stmt != "" && stmt != ";" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	if rest := strings.TrimSpace(current.String()); rest != "" {
		statements = append(statements, rest)
	}
	return statements
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: `
			CREATE TABLE companies (
				id INTEGER PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			-- Dashboard accounts; managers are users with any role
			CREATE TABLE users (
				id INTEGER PRIMARY KEY,
				username TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				role TEXT NOT NULL DEFAULT 'manager',
				company_id INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE sessions (
				id TEXT PRIMARY KEY,
				user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				expires_at TIMESTAMP NOT NULL,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_sessions_expires_at ON sessions(expires_at);

			CREATE TABLE settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
		`,
	},
	{
		Version: 2,
		Name:    "departments",
		SQL: `
			CREATE TABLE departments (
				id TEXT PRIMARY KEY,
				company_id INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				type TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_departments_company ON departments(company_id);

			CREATE TABLE department_jsons (
				id INTEGER PRIMARY KEY,
				department_id TEXT NOT NULL REFERENCES departments(id) ON DELETE CASCADE,
				json TEXT NOT NULL,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_department_jsons_department ON department_jsons(department_id);

			CREATE TABLE department_connections (
				id INTEGER PRIMARY KEY,
				department_id TEXT NOT NULL REFERENCES departments(id) ON DELETE CASCADE,
				connection_string TEXT NOT NULL,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_department_connections_department ON department_connections(department_id);

			CREATE TABLE department_managers (
				department_id TEXT NOT NULL REFERENCES departments(id) ON DELETE CASCADE,
				manager_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				PRIMARY KEY (department_id, manager_id)
			);
			CREATE INDEX idx_department_managers_manager ON department_managers(manager_id);
		`,
	},
	{
		Version: 3,
		Name:    "stock_and_sales",
		SQL: `
			CREATE TABLE stock_items (
				id INTEGER PRIMARY KEY,
				company_id INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
				sku TEXT NOT NULL,
				name TEXT NOT NULL,
				quantity INTEGER NOT NULL DEFAULT 0,
				unit_price REAL NOT NULL DEFAULT 0,
				location TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (company_id, sku)
			);

			CREATE TABLE products (
				id INTEGER PRIMARY KEY,
				company_id INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				price REAL NOT NULL DEFAULT 0,
				change REAL NOT NULL DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE monthly_sales (
				id INTEGER PRIMARY KEY,
				company_id INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
				month TEXT NOT NULL,
				amount REAL NOT NULL DEFAULT 0,
				UNIQUE (company_id, month)
			);

			CREATE TABLE region_sales (
				id INTEGER PRIMARY KEY,
				company_id INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				lng REAL NOT NULL,
				lat REAL NOT NULL,
				sales REAL NOT NULL DEFAULT 0,
				growth REAL NOT NULL DEFAULT 0,
				UNIQUE (company_id, name)
			);
		`,
	},
}
