package departments

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/saltyorg/opsboard/internal/apperr"
	"github.com/saltyorg/opsboard/internal/database"
)

type fixture struct {
	db      *database.DB
	svc     *Service
	admin   Caller
	alice   Caller
	bob     Caller
	outside Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	caller := func(company *database.Company, username, role string) Caller {
		u, err := db.CreateUser(username, "hash", role, company.ID)
		if err != nil {
			t.Fatalf("CreateUser returned error: %v", err)
		}
		return Caller{UserID: u.ID, CompanyID: company.ID, Role: role}
	}

	acme, err := db.CreateCompany("acme")
	if err != nil {
		t.Fatalf("CreateCompany returned error: %v", err)
	}
	globex, err := db.CreateCompany("globex")
	if err != nil {
		t.Fatalf("CreateCompany returned error: %v", err)
	}

	n := 0
	svc := NewService(db)
	svc.newID = func() string {
		n++
		return "00000000-0000-4000-8000-00000000000" + string(rune('0'+n))
	}

	return &fixture{
		db:      db,
		svc:     svc,
		admin:   caller(acme, "root", database.RoleAdmin),
		alice:   caller(acme, "alice", database.RoleManager),
		bob:     caller(acme, "bob", database.RoleManager),
		outside: caller(globex, "carol", database.RoleAdmin),
	}
}

func ptr(s string) *string { return &s }

func kindOf(err error) apperr.Kind { return apperr.KindOf(err) }

func TestCreateDefaultsManagerToCaller(t *testing.T) {
	f := newFixture(t)

	v, err := f.svc.Create(f.alice, Input{DepartmentName: ptr(" Finance "), DepartmentType: ptr("support")})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if v.DepartmentName != "Finance" || v.DepartmentType != "support" {
		t.Fatalf("unexpected view: %+v", v)
	}

	stored, err := f.db.GetDepartment(v.DepartmentID)
	if err != nil {
		t.Fatalf("GetDepartment returned error: %v", err)
	}
	if diff := cmp.Diff([]int64{f.alice.UserID}, stored.ManagerIDs); diff != "" {
		t.Fatalf("manager links mismatch (-want +got):\n%s", diff)
	}

	if _, err := f.svc.Create(f.alice, Input{}); kindOf(err) != apperr.KindBadRequest {
		t.Fatalf("expected bad request for missing name, got %v", err)
	}
	_, err = f.svc.Create(f.alice, Input{
		DepartmentName: ptr("Ops"),
		ManagerAccess:  []ManagerAccess{{ManagerID: ManagerID(f.outside.UserID)}},
	})
	if kindOf(err) != apperr.KindBadRequest {
		t.Fatalf("expected bad request for foreign manager, got %v", err)
	}
}

func TestGetAccessChecks(t *testing.T) {
	f := newFixture(t)

	v, err := f.svc.Create(f.alice, Input{DepartmentName: ptr("Finance")})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	tests := []struct {
		name   string
		id     string
		caller Caller
		want   apperr.Kind
		ok     bool
	}{
		{"linked manager", v.DepartmentID, f.alice, 0, true},
		{"admin of same company", v.DepartmentID, f.admin, 0, true},
		{"unlinked manager", v.DepartmentID, f.bob, apperr.KindUnauthorized, false},
		{"other company", v.DepartmentID, f.outside, apperr.KindNotFound, false},
		{"missing", "does-not-exist", f.alice, apperr.KindNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Get(tt.id, tt.caller)
			if tt.ok {
				if err != nil {
					t.Fatalf("Get returned error: %v", err)
				}
				if got.DepartmentID != tt.id {
					t.Fatalf("Get returned %q", got.DepartmentID)
				}
				return
			}
			if kindOf(err) != tt.want {
				t.Fatalf("Get error kind = %v, want %v (err %v)", kindOf(err), tt.want, err)
			}
		})
	}
}

func TestTrimmedViewOmitsSecurityFields(t *testing.T) {
	f := newFixture(t)

	v, err := f.svc.Create(f.alice, Input{DepartmentName: ptr("Finance")})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := f.svc.AddJSON(v.DepartmentID, f.alice, json.RawMessage(`{"target":5}`)); err != nil {
		t.Fatalf("AddJSON returned error: %v", err)
	}
	if _, err := f.svc.AddConnection(v.DepartmentID, f.alice, "postgres://u@h/db"); err != nil {
		t.Fatalf("AddConnection returned error: %v", err)
	}

	got, err := f.svc.Get(v.DepartmentID, f.alice)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	body, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	for _, hidden := range []string{"companyId", "departmentManagers", "CompanyID", "ManagerIDs"} {
		if _, ok := fields[hidden]; ok {
			t.Fatalf("trimmed view exposes %q: %s", hidden, body)
		}
	}
	if string(fields["departmentConnections"]) != `[{"databaseConnectionConnectionString":"postgres://u@h/db"}]` {
		t.Fatalf("unexpected connections: %s", fields["departmentConnections"])
	}
	if got.DepartmentJSONs[0].JSON == nil || string(got.DepartmentJSONs[0].JSON) != `{"target":5}` {
		t.Fatalf("unexpected json: %s", got.DepartmentJSONs[0].JSON)
	}

	if _, err := f.svc.AddJSON(v.DepartmentID, f.alice, json.RawMessage(`{broken`)); kindOf(err) != apperr.KindBadRequest {
		t.Fatalf("expected bad request for invalid json, got %v", err)
	}
	if _, err := f.svc.AddConnection(v.DepartmentID, f.bob, "postgres://u@h/db"); kindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("expected unauthorized for unlinked manager, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)

	v, err := f.svc.Create(f.alice, Input{DepartmentName: ptr("Finance"), DepartmentType: ptr("support")})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	// Empty patch
	same, err := f.svc.Update(v.DepartmentID, f.alice, Input{})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if diff := cmp.Diff(v, same); diff != "" {
		t.Fatalf("empty patch changed the department (-want +got):\n%s", diff)
	}

	// Name only
	renamed, err := f.svc.Update(v.DepartmentID, f.alice, Input{DepartmentName: ptr("Treasury")})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if renamed.DepartmentName != "Treasury" || renamed.DepartmentType != "support" {
		t.Fatalf("unexpected update: %+v", renamed)
	}

	// Replace managers, empty ids dropped
	var in Input
	body := `{"managerAccess":[{"managerId":""},{"managerId":` + itoa(f.bob.UserID) + `}]}`
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	if _, err := f.svc.Update(v.DepartmentID, f.alice, in); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	stored, _ := f.db.GetDepartment(v.DepartmentID)
	if diff := cmp.Diff([]int64{f.bob.UserID}, stored.ManagerIDs); diff != "" {
		t.Fatalf("manager links mismatch (-want +got):\n%s", diff)
	}

	// Alice lost access
	if _, err := f.svc.Update(v.DepartmentID, f.alice, Input{DepartmentName: ptr("x")}); kindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := f.svc.Update(v.DepartmentID, f.outside, Input{}); kindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found for other company, got %v", err)
	}
	if _, err := f.svc.Update("missing", f.admin, Input{}); kindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)

	v, err := f.svc.Create(f.alice, Input{DepartmentName: ptr("Finance")})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := f.svc.Delete(v.DepartmentID, f.bob); kindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	deleted, err := f.svc.Delete(v.DepartmentID, f.alice)
	if err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if deleted.DepartmentName != "Finance" {
		t.Fatalf("unexpected deleted view: %+v", deleted)
	}

	if _, err := f.svc.Delete(v.DepartmentID, f.alice); kindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestListVisibility(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Create(f.alice, Input{DepartmentName: ptr("Finance")}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := f.svc.Create(f.bob, Input{DepartmentName: ptr("Logistics")}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	tests := []struct {
		name   string
		caller Caller
		want   int
	}{
		{"manager sees linked", f.alice, 1},
		{"admin sees company", f.admin, 2},
		{"other company sees nothing", f.outside, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.List(tt.caller)
			if err != nil {
				t.Fatalf("List returned error: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("List returned %d departments, want %d", len(got), tt.want)
			}
		})
	}
}

func TestManagerIDUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    ManagerID
		wantErr bool
	}{
		{`12`, 12, false},
		{`"7"`, 7, false},
		{`""`, 0, false},
		{`null`, 0, false},
		{`"abc"`, 0, true},
	}
	for _, tt := range tests {
		var got ManagerID
		err := json.Unmarshal([]byte(tt.in), &got)
		if (err != nil) != tt.wantErr {
			t.Fatalf("Unmarshal(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("Unmarshal(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestCreateWithEmptyManagerAccessKeepsCreator(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		access []ManagerAccess
	}{
		{"empty list", []ManagerAccess{}},
		{"only empty ids", []ManagerAccess{{ManagerID: 0}, {ManagerID: 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := f.svc.Create(f.alice, Input{DepartmentName: ptr("Ops"), ManagerAccess: tt.access})
			if err != nil {
				t.Fatalf("Create returned error: %v", err)
			}
			if _, err := f.svc.Get(v.DepartmentID, f.alice); err != nil {
				t.Fatalf("creator cannot read own department: %v", err)
			}
		})
	}
}

func TestUpdateChecksAccessBeforeInput(t *testing.T) {
	f := newFixture(t)
	v, err := f.svc.Create(f.alice, Input{DepartmentName: ptr("Finance")})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	tests := []struct {
		name   string
		id     string
		caller Caller
		in     Input
		want   apperr.Kind
	}{
		{"other company with blank name", v.DepartmentID, f.outside, Input{DepartmentName: ptr("")}, apperr.KindNotFound},
		{"missing department with blank name", "does-not-exist", f.alice, Input{DepartmentName: ptr("")}, apperr.KindNotFound},
		{"unlinked manager with unknown id", v.DepartmentID, f.bob, Input{ManagerAccess: []ManagerAccess{{ManagerID: 9999}}}, apperr.KindUnauthorized},
		{"unlinked manager with known id", v.DepartmentID, f.bob, Input{ManagerAccess: []ManagerAccess{{ManagerID: ManagerID(f.bob.UserID)}}}, apperr.KindUnauthorized},
		{"linked manager with unknown id", v.DepartmentID, f.alice, Input{ManagerAccess: []ManagerAccess{{ManagerID: 9999}}}, apperr.KindBadRequest},
		{"linked manager with blank name", v.DepartmentID, f.alice, Input{DepartmentName: ptr(" ")}, apperr.KindBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Update(tt.id, tt.caller, tt.in)
			if got := kindOf(err); got != tt.want {
				t.Fatalf("Update() kind = %v, want %v (err %v)", got, tt.want, err)
			}
		})
	}

	got, err := f.svc.Get(v.DepartmentID, f.alice)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.DepartmentName != "Finance" {
		t.Fatalf("rejected updates changed the department: %+v", got)
	}
}
