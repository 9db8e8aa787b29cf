package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Department is an organizational unit of a company with its attached JSON
// blobs, external connection strings and manager links.
type Department struct {
	ID          string
	CompanyID   int64
	Name        string
	Type        string
	JSONs       []DepartmentJSON
	Connections []DepartmentConnection
	ManagerIDs  []int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DepartmentJSON is a JSON document attached to a department.
type DepartmentJSON struct {
	ID        int64
	JSON      string
	CreatedAt time.Time
}

// DepartmentConnection is an external database connection string attached
// to a department.
type DepartmentConnection struct {
	ID               int64
	ConnectionString string
	CreatedAt        time.Time
}

// DepartmentPatch holds a sparse update. Nil fields are left untouched.
// ManagerIDs replaces the manager links when non-nil.
type DepartmentPatch struct {
	Name       *string
	Type       *string
	ManagerIDs []int64
}

// Empty reports whether the patch writes nothing.
func (p DepartmentPatch) Empty() bool {
	return p.Name == nil && p.Type == nil && p.ManagerIDs == nil
}

// HasManager reports whether managerID is linked to the department.
func (d *Department) HasManager(managerID int64) bool {
	for _, id := range d.ManagerIDs {
		if id == managerID {
			return true
		}
	}
	return false
}

// DepartmentCheck inspects a loaded department inside a write transaction.
// Returning an error aborts the write.
type DepartmentCheck func(*Department) error

// CreateDepartment inserts a department with its manager links.
func (db *DB) CreateDepartment(d *Department) error {
	now := time.Now()
	return db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO departments (id, company_id, name, type, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, d.ID, d.CompanyID, d.Name, d.Type, now, now); err != nil {
			return fmt.Errorf("failed to create department: %w", err)
		}
		if err := replaceManagers(tx, d.ID, d.ManagerIDs); err != nil {
			return err
		}
		d.CreatedAt = now
		d.UpdatedAt = now
		return nil
	})
}

// GetDepartment loads a department with its relations. Returns nil when
// the department does not exist.
func (db *DB) GetDepartment(id string) (*Department, error) {
	return loadDepartment(db.DB, id)
}

// ListDepartments returns the departments of a company ordered by name.
// When managerID is non-zero only departments linked to that manager are
// returned.
func (db *DB) ListDepartments(companyID, managerID int64) ([]*Department, error) {
	query := "SELECT id FROM departments WHERE company_id = ?"
	args := []any{companyID}
	if managerID != 0 {
		query += " AND id IN (SELECT department_id FROM department_managers WHERE manager_id = ?)"
		args = append(args, managerID)
	}
	query += " ORDER BY name, id"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan department id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	departments := make([]*Department, 0, len(ids))
	for _, id := range ids {
		d, err := db.GetDepartment(id)
		if err != nil {
			return nil, err
		}
		if d != nil {
			departments = append(departments, d)
		}
	}
	return departments, nil
}

// UpdateDepartment applies patch in a single transaction after check
// accepts the current record. Returns nil when the department does not
// exist. An empty patch returns the current record unchanged.
func (db *DB) UpdateDepartment(id string, patch DepartmentPatch, check DepartmentCheck) (*Department, error) {
	var updated *Department
	err := db.Transaction(func(tx *sql.Tx) error {
		current, err := loadDepartment(tx, id)
		if err != nil || current == nil {
			return err
		}
		if check != nil {
			if err := check(current); err != nil {
				return err
			}
		}
		if patch.Empty() {
			updated = current
			return nil
		}

		sets := []string{"updated_at = ?"}
		args := []any{time.Now()}
		if patch.Name != nil {
			sets = append(sets, "name = ?")
			args = append(args, *patch.Name)
		}
		if patch.Type != nil {
			sets = append(sets, "type = ?")
			args = append(args, *patch.Type)
		}
		args = append(args, id)
		if _, err := tx.Exec("UPDATE departments SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
			return fmt.Errorf("failed to update department: %w", err)
		}

		if patch.ManagerIDs != nil {
			if _, err := tx.Exec("DELETE FROM department_managers WHERE department_id = ?", id); err != nil {
				return fmt.Errorf("failed to clear department managers: %w", err)
			}
			if err := replaceManagers(tx, id, patch.ManagerIDs); err != nil {
				return err
			}
		}

		updated, err = loadDepartment(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteDepartment removes a department and its relations in a single
// transaction after check accepts it, and returns the removed record.
// Returns nil when the department does not exist.
func (db *DB) DeleteDepartment(id string, check DepartmentCheck) (*Department, error) {
	var deleted *Department
	err := db.Transaction(func(tx *sql.Tx) error {
		current, err := loadDepartment(tx, id)
		if err != nil || current == nil {
			return err
		}
		if check != nil {
			if err := check(current); err != nil {
				return err
			}
		}
		if _, err := tx.Exec("DELETE FROM departments WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete department: %w", err)
		}
		deleted = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// AddDepartmentJSON attaches a JSON document to a department.
func (db *DB) AddDepartmentJSON(departmentID, document string) (*DepartmentJSON, error) {
	now := time.Now()
	result, err := db.Exec(
		"INSERT INTO department_jsons (department_id, json, created_at) VALUES (?, ?, ?)",
		departmentID, document, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add department json: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get department json id: %w", err)
	}
	return &DepartmentJSON{ID: id, JSON: document, CreatedAt: now}, nil
}

// AddDepartmentConnection attaches a connection string to a department.
func (db *DB) AddDepartmentConnection(departmentID, connectionString string) (*DepartmentConnection, error) {
	now := time.Now()
	result, err := db.Exec(
		"INSERT INTO department_connections (department_id, connection_string, created_at) VALUES (?, ?, ?)",
		departmentID, connectionString, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add department connection: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get department connection id: %w", err)
	}
	return &DepartmentConnection{ID: id, ConnectionString: connectionString, CreatedAt: now}, nil
}

func replaceManagers(q querier, departmentID string, managerIDs []int64) error {
	seen := make(map[int64]bool, len(managerIDs))
	for _, managerID := range managerIDs {
		if managerID == 0 || seen[managerID] {
			continue
		}
		seen[managerID] = true
		if _, err := q.Exec(
			"INSERT INTO department_managers (department_id, manager_id) VALUES (?, ?)",
			departmentID, managerID,
		); err != nil {
			return fmt.Errorf("failed to link manager %d: %w", managerID, err)
		}
	}
	return nil
}

func loadDepartment(q querier, id string) (*Department, error) {
	d := &Department{}
	err := q.QueryRow(`
		SELECT id, company_id, name, type, created_at, updated_at
		FROM departments WHERE id = ?
	`, id).Scan(&d.ID, &d.CompanyID, &d.Name, &d.Type, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get department: %w", err)
	}

	rows, err := q.Query("SELECT id, json, created_at FROM department_jsons WHERE department_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get department jsons: %w", err)
	}
	for rows.Next() {
		var j DepartmentJSON
		if err := rows.Scan(&j.ID, &j.JSON, &j.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan department json: %w", err)
		}
		d.JSONs = append(d.JSONs, j)
	}
	rows.Close()

	rows, err = q.Query("SELECT id, connection_string, created_at FROM department_connections WHERE department_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get department connections: %w", err)
	}
	for rows.Next() {
		var c DepartmentConnection
		if err := rows.Scan(&c.ID, &c.ConnectionString, &c.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan department connection: %w", err)
		}
		d.Connections = append(d.Connections, c)
	}
	rows.Close()

	rows, err = q.Query("SELECT manager_id FROM department_managers WHERE department_id = ? ORDER BY manager_id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get department managers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var managerID int64
		if err := rows.Scan(&managerID); err != nil {
			return nil, fmt.Errorf("failed to scan department manager: %w", err)
		}
		d.ManagerIDs = append(d.ManagerIDs, managerID)
	}
	return d, rows.Err()
}
