package database

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// seedCompany creates a company with an admin and two managers.
func seedCompany(t *testing.T, db *DB, name string) (company *Company, admin, m1, m2 *UserRecord) {
	t.Helper()

	company, err := db.CreateCompany(name)
	if err != nil {
		t.Fatalf("CreateCompany returned error: %v", err)
	}
	mk := func(username, role string) *UserRecord {
		u, err := db.CreateUser(name+"-"+username, "hash", role, company.ID)
		if err != nil {
			t.Fatalf("CreateUser returned error: %v", err)
		}
		return u
	}
	return company, mk("admin", RoleAdmin), mk("alice", RoleManager), mk("bob", RoleManager)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate returned error: %v", err)
	}
	version, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion returned error: %v", err)
	}
	if version != len(migrations) {
		t.Fatalf("expected schema version %d, got %d", len(migrations), version)
	}
	if v, _ := db.GetSetting("extern.max_conns"); v != "4" {
		t.Fatalf("expected default extern.max_conns 4, got %q", v)
	}
}

func TestDepartmentLifecycle(t *testing.T) {
	db := newTestDB(t)
	company, _, alice, bob := seedCompany(t, db, "acme")

	d := &Department{
		ID:         "6f1c1b8e-0000-4000-8000-000000000001",
		CompanyID:  company.ID,
		Name:       "Sales",
		Type:       "commercial",
		ManagerIDs: []int64{alice.ID, alice.ID, 0},
	}
	if err := db.CreateDepartment(d); err != nil {
		t.Fatalf("CreateDepartment returned error: %v", err)
	}
	if _, err := db.AddDepartmentJSON(d.ID, `{"kpi":"revenue"}`); err != nil {
		t.Fatalf("AddDepartmentJSON returned error: %v", err)
	}
	if _, err := db.AddDepartmentConnection(d.ID, "postgres://reports@db/sales"); err != nil {
		t.Fatalf("AddDepartmentConnection returned error: %v", err)
	}

	got, err := db.GetDepartment(d.ID)
	if err != nil {
		t.Fatalf("GetDepartment returned error: %v", err)
	}
	if got == nil {
		t.Fatal("expected department to be saved")
	}
	if diff := cmp.Diff([]int64{alice.ID}, got.ManagerIDs); diff != "" {
		t.Fatalf("manager ids mismatch (-want +got):\n%s", diff)
	}
	if len(got.JSONs) != 1 || got.JSONs[0].JSON != `{"kpi":"revenue"}` {
		t.Fatalf("unexpected jsons: %+v", got.JSONs)
	}
	if len(got.Connections) != 1 || got.Connections[0].ConnectionString != "postgres://reports@db/sales" {
		t.Fatalf("unexpected connections: %+v", got.Connections)
	}

	// Only the name is patched
	name := "Sales EMEA"
	updated, err := db.UpdateDepartment(d.ID, DepartmentPatch{Name: &name}, nil)
	if err != nil {
		t.Fatalf("UpdateDepartment returned error: %v", err)
	}
	if updated.Name != name || updated.Type != "commercial" {
		t.Fatalf("unexpected sparse update result: name=%q type=%q", updated.Name, updated.Type)
	}
	if diff := cmp.Diff([]int64{alice.ID}, updated.ManagerIDs); diff != "" {
		t.Fatalf("manager links changed by name-only patch (-want +got):\n%s", diff)
	}

	// Manager links are replaced
	updated, err = db.UpdateDepartment(d.ID, DepartmentPatch{ManagerIDs: []int64{bob.ID}}, nil)
	if err != nil {
		t.Fatalf("UpdateDepartment returned error: %v", err)
	}
	if diff := cmp.Diff([]int64{bob.ID}, updated.ManagerIDs); diff != "" {
		t.Fatalf("manager links not replaced (-want +got):\n%s", diff)
	}

	// Empty patch returns the record unchanged
	same, err := db.UpdateDepartment(d.ID, DepartmentPatch{}, nil)
	if err != nil {
		t.Fatalf("UpdateDepartment returned error: %v", err)
	}
	if same.Name != name || !same.UpdatedAt.Equal(updated.UpdatedAt) {
		t.Fatalf("empty patch modified the record: %+v", same)
	}

	deleted, err := db.DeleteDepartment(d.ID, nil)
	if err != nil {
		t.Fatalf("DeleteDepartment returned error: %v", err)
	}
	if deleted == nil || deleted.ID != d.ID {
		t.Fatalf("expected deleted record, got %+v", deleted)
	}

	var orphans int
	if err := db.QueryRow(`
		SELECT (SELECT COUNT(*) FROM department_jsons) +
		       (SELECT COUNT(*) FROM department_connections) +
		       (SELECT COUNT(*) FROM department_managers)
	`).Scan(&orphans); err != nil {
		t.Fatalf("failed to count relations: %v", err)
	}
	if orphans != 0 {
		t.Fatalf("expected relations to cascade, %d rows left", orphans)
	}

	again, err := db.DeleteDepartment(d.ID, nil)
	if err != nil || again != nil {
		t.Fatalf("expected (nil, nil) on second delete, got (%v, %v)", again, err)
	}
}

func TestUpdateDepartmentCheckAborts(t *testing.T) {
	db := newTestDB(t)
	company, _, alice, _ := seedCompany(t, db, "acme")

	d := &Department{ID: "dept-1", CompanyID: company.ID, Name: "Ops", ManagerIDs: []int64{alice.ID}}
	if err := db.CreateDepartment(d); err != nil {
		t.Fatalf("CreateDepartment returned error: %v", err)
	}

	denied := errors.New("denied")
	name := "Renamed"
	if _, err := db.UpdateDepartment(d.ID, DepartmentPatch{Name: &name}, func(*Department) error { return denied }); !errors.Is(err, denied) {
		t.Fatalf("expected check error, got %v", err)
	}

	got, err := db.GetDepartment(d.ID)
	if err != nil {
		t.Fatalf("GetDepartment returned error: %v", err)
	}
	if got.Name != "Ops" {
		t.Fatalf("rejected update was applied: %q", got.Name)
	}

	if _, err := db.DeleteDepartment(d.ID, func(*Department) error { return denied }); !errors.Is(err, denied) {
		t.Fatalf("expected check error on delete, got %v", err)
	}
	if got, _ := db.GetDepartment(d.ID); got == nil {
		t.Fatal("rejected delete removed the department")
	}
}

func TestListDepartments(t *testing.T) {
	db := newTestDB(t)
	acme, _, alice, bob := seedCompany(t, db, "acme")
	other, _, carol, _ := seedCompany(t, db, "globex")

	for _, d := range []*Department{
		{ID: "a", CompanyID: acme.ID, Name: "Finance", ManagerIDs: []int64{alice.ID}},
		{ID: "b", CompanyID: acme.ID, Name: "Audit", ManagerIDs: []int64{alice.ID, bob.ID}},
		{ID: "c", CompanyID: acme.ID, Name: "Logistics", ManagerIDs: []int64{bob.ID}},
		{ID: "d", CompanyID: other.ID, Name: "Finance", ManagerIDs: []int64{carol.ID}},
	} {
		if err := db.CreateDepartment(d); err != nil {
			t.Fatalf("CreateDepartment(%s) returned error: %v", d.ID, err)
		}
	}

	names := func(ds []*Department) []string {
		var out []string
		for _, d := range ds {
			out = append(out, d.Name)
		}
		return out
	}

	all, err := db.ListDepartments(acme.ID, 0)
	if err != nil {
		t.Fatalf("ListDepartments returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"Audit", "Finance", "Logistics"}, names(all)); diff != "" {
		t.Fatalf("company listing mismatch (-want +got):\n%s", diff)
	}

	mine, err := db.ListDepartments(acme.ID, alice.ID)
	if err != nil {
		t.Fatalf("ListDepartments returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"Audit", "Finance"}, names(mine)); diff != "" {
		t.Fatalf("manager listing mismatch (-want +got):\n%s", diff)
	}
}
