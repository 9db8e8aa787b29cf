// Package departments implements department management on top of the
// local store with company scoping and manager access checks.
package departments

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/opsboard/internal/apperr"
	"github.com/saltyorg/opsboard/internal/database"
	"github.com/saltyorg/opsboard/internal/web/sse"
)

// Caller identifies who performs an operation.
type Caller struct {
	UserID    int64
	CompanyID int64
	Role      string
}

func (c Caller) isAdmin() bool {
	return c.Role == database.RoleAdmin
}

// ManagerID accepts a JSON number or string. An empty string decodes to 0.
type ManagerID int64

func (m *ManagerID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*m = 0
		return nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid manager id %q", s)
	}
	*m = ManagerID(id)
	return nil
}

// ManagerAccess links a manager to a department.
type ManagerAccess struct {
	ManagerID ManagerID `json:"managerId"`
}

// Input is the create and patch payload. Absent fields are nil.
type Input struct {
	DepartmentName *string         `json:"departmentName"`
	DepartmentType *string         `json:"departmentType"`
	ManagerAccess  []ManagerAccess `json:"managerAccess"`
}

// JSONView is an attached JSON document.
type JSONView struct {
	ID   int64           `json:"id"`
	JSON json.RawMessage `json:"json"`
}

// ConnectionView is an attached connection string.
type ConnectionView struct {
	ConnectionString string `json:"databaseConnectionConnectionString"`
}

// View is the trimmed department returned to callers. It never carries
// the company id or the manager links.
type View struct {
	DepartmentID          string           `json:"departmentId"`
	DepartmentName        string           `json:"departmentName"`
	DepartmentType        string           `json:"departmentType"`
	DepartmentJSONs       []JSONView       `json:"departmentJsons"`
	DepartmentConnections []ConnectionView `json:"departmentConnections"`
	CreatedAt             time.Time        `json:"createdAt"`
	UpdatedAt             time.Time        `json:"updatedAt"`
}

// Trim converts a stored department into its caller-facing view.
func Trim(d *database.Department) *View {
	v := &View{
		DepartmentID:          d.ID,
		DepartmentName:        d.Name,
		DepartmentType:        d.Type,
		DepartmentJSONs:       make([]JSONView, 0, len(d.JSONs)),
		DepartmentConnections: make([]ConnectionView, 0, len(d.Connections)),
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
	for _, j := range d.JSONs {
		v.DepartmentJSONs = append(v.DepartmentJSONs, JSONView{ID: j.ID, JSON: json.RawMessage(j.JSON)})
	}
	for _, c := range d.Connections {
		v.DepartmentConnections = append(v.DepartmentConnections, ConnectionView{ConnectionString: c.ConnectionString})
	}
	return v
}

// Service manages departments.
type Service struct {
	db        *database.DB
	sseBroker *sse.Broker
	newID     func() string
}

// NewService creates a department service.
func NewService(db *database.DB) *Service {
	return &Service{db: db, newID: uuid.NewString}
}

// SetSSEBroker sets the broker used to announce department changes.
func (s *Service) SetSSEBroker(broker *sse.Broker) {
	s.sseBroker = broker
}

func (s *Service) publish(companyID int64, eventType sse.EventType, v *View) {
	if s.sseBroker != nil {
		s.sseBroker.Publish(companyID, eventType, v)
	}
}

// access enforces company scoping and manager membership.
func access(d *database.Department, caller Caller) error {
	if d == nil || d.CompanyID != caller.CompanyID {
		return apperr.NotFound("Department not found")
	}
	if !caller.isAdmin() && !d.HasManager(caller.UserID) {
		return apperr.Unauthorized("You are not allowed to access this department")
	}
	return nil
}

// managerIDs filters empty ids and checks the rest belong to the
// caller's company. A nil list stays nil.
func (s *Service) managerIDs(caller Caller, refs []ManagerAccess) ([]int64, error) {
	if refs == nil {
		return nil, nil
	}
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		if ref.ManagerID != 0 {
			ids = append(ids, int64(ref.ManagerID))
		}
	}
	if len(ids) == 0 {
		return ids, nil
	}

	found, err := s.db.CompanyUserIDs(caller.CompanyID, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if !found[id] {
			return nil, apperr.BadRequest("Unknown manager %d", id)
		}
	}
	return ids, nil
}

// List returns the departments visible to the caller.
func (s *Service) List(caller Caller) ([]*View, error) {
	managerID := caller.UserID
	if caller.isAdmin() {
		managerID = 0
	}

	departments, err := s.db.ListDepartments(caller.CompanyID, managerID)
	if err != nil {
		return nil, err
	}
	views := make([]*View, 0, len(departments))
	for _, d := range departments {
		views = append(views, Trim(d))
	}
	return views, nil
}

// Create adds a department. When managerAccess names nobody the caller
// becomes its only manager.
func (s *Service) Create(caller Caller, in Input) (*View, error) {
	if in.DepartmentName == nil || strings.TrimSpace(*in.DepartmentName) == "" {
		return nil, apperr.BadRequest("departmentName is required")
	}

	managers, err := s.managerIDs(caller, in.ManagerAccess)
	if err != nil {
		return nil, err
	}
	if len(managers) == 0 {
		managers = []int64{caller.UserID}
	}

	d := &database.Department{
		ID:         s.newID(),
		CompanyID:  caller.CompanyID,
		Name:       strings.TrimSpace(*in.DepartmentName),
		ManagerIDs: managers,
	}
	if in.DepartmentType != nil {
		d.Type = strings.TrimSpace(*in.DepartmentType)
	}

	if err := s.db.CreateDepartment(d); err != nil {
		return nil, err
	}

	created, err := s.db.GetDepartment(d.ID)
	if err != nil {
		return nil, err
	}
	v := Trim(created)
	log.Info().Str("department_id", d.ID).Int64("company_id", caller.CompanyID).Msg("Department created")
	s.publish(caller.CompanyID, sse.EventDepartmentCreated, v)
	return v, nil
}

// Get returns a department the caller may access.
func (s *Service) Get(id string, caller Caller) (*View, error) {
	d, err := s.db.GetDepartment(id)
	if err != nil {
		return nil, err
	}
	if err := access(d, caller); err != nil {
		return nil, err
	}
	return Trim(d), nil
}

// Update applies a sparse patch in one transaction. An empty patch returns
// the department unchanged. The access check runs before the patch is
// validated and again inside the transaction.
func (s *Service) Update(id string, caller Caller, in Input) (*View, error) {
	current, err := s.db.GetDepartment(id)
	if err != nil {
		return nil, err
	}
	if err := access(current, caller); err != nil {
		return nil, err
	}

	patch := database.DepartmentPatch{}
	if in.DepartmentName != nil {
		name := strings.TrimSpace(*in.DepartmentName)
		if name == "" {
			return nil, apperr.BadRequest("departmentName cannot be empty")
		}
		patch.Name = &name
	}
	if in.DepartmentType != nil {
		typ := strings.TrimSpace(*in.DepartmentType)
		patch.Type = &typ
	}
	managers, err := s.managerIDs(caller, in.ManagerAccess)
	if err != nil {
		return nil, err
	}
	patch.ManagerIDs = managers

	updated, err := s.db.UpdateDepartment(id, patch, func(d *database.Department) error {
		return access(d, caller)
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperr.NotFound("Department not found")
	}

	v := Trim(updated)
	if !patch.Empty() {
		s.publish(caller.CompanyID, sse.EventDepartmentUpdated, v)
	}
	return v, nil
}

// Delete removes a department with its documents, connections and manager
// links and returns what was removed.
func (s *Service) Delete(id string, caller Caller) (*View, error) {
	deleted, err := s.db.DeleteDepartment(id, func(d *database.Department) error {
		return access(d, caller)
	})
	if err != nil {
		return nil, err
	}
	if deleted == nil {
		return nil, apperr.NotFound("Department not found")
	}

	v := Trim(deleted)
	log.Info().Str("department_id", id).Int64("company_id", caller.CompanyID).Msg("Department deleted")
	s.publish(caller.CompanyID, sse.EventDepartmentDeleted, v)
	return v, nil
}

// AddJSON attaches a JSON document to a department.
func (s *Service) AddJSON(id string, caller Caller, document json.RawMessage) (*View, error) {
	if len(document) == 0 || !json.Valid(document) {
		return nil, apperr.BadRequest("json must be a valid JSON document")
	}
	return s.attach(id, caller, func() error {
		_, err := s.db.AddDepartmentJSON(id, string(document))
		return err
	})
}

// AddConnection attaches an external connection string to a department.
func (s *Service) AddConnection(id string, caller Caller, connectionString string) (*View, error) {
	connectionString = strings.TrimSpace(connectionString)
	if connectionString == "" {
		return nil, apperr.BadRequest("databaseConnectionConnectionString is required")
	}
	return s.attach(id, caller, func() error {
		_, err := s.db.AddDepartmentConnection(id, connectionString)
		return err
	})
}

func (s *Service) attach(id string, caller Caller, insert func() error) (*View, error) {
	d, err := s.db.GetDepartment(id)
	if err != nil {
		return nil, err
	}
	if err := access(d, caller); err != nil {
		return nil, err
	}
	if err := insert(); err != nil {
		return nil, err
	}

	updated, err := s.db.GetDepartment(id)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperr.NotFound("Department not found")
	}
	v := Trim(updated)
	s.publish(caller.CompanyID, sse.EventDepartmentUpdated, v)
	return v, nil
}
