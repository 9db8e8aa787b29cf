// Package authz enforces role based permissions with casbin.
package authz

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
)

// Objects guarded by the policy.
const (
	ObjDepartments = "departments"
	ObjExtern      = "extern"
	ObjStock       = "stock"
	ObjSales       = "sales"
	ObjManagers    = "managers"
	ObjSettings    = "settings"
	ObjEvents      = "events"
	// ObjInstance guards settings shared by every company on the instance.
	ObjInstance = "instance"
)

// Actions.
const (
	ActRead  = "read"
	ActWrite = "write"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// DefaultPolicy grants managers the dashboard resources and lets admins
// inherit them on top of user and settings management.
const DefaultPolicy = `
p, manager, departments, read
p, manager, departments, write
p, manager, extern, read
p, manager, stock, read
p, manager, stock, write
p, manager, sales, read
p, manager, sales, write
p, manager, events, read
p, admin, managers, read
p, admin, managers, write
p, admin, settings, read
p, admin, settings, write
p, admin, instance, write
g, admin, manager
`

// Authorizer answers whether a role may perform an action on an object.
type Authorizer struct {
	enforcer   *casbin.SyncedEnforcer
	policyPath string
}

// New builds an authorizer. An empty policyPath uses DefaultPolicy.
func New(policyPath string) (*Authorizer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse authz model: %w", err)
	}

	var adapter persist.Adapter
	if policyPath != "" {
		adapter = fileadapter.NewAdapter(policyPath)
	} else {
		adapter = stringadapter.NewAdapter(strings.TrimSpace(DefaultPolicy))
	}

	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to load authz policy: %w", err)
	}
	return &Authorizer{enforcer: enforcer, policyPath: policyPath}, nil
}

// PolicyPath returns the policy file in use, or "" for the built-in policy.
func (a *Authorizer) PolicyPath() string {
	return a.policyPath
}

// Authorize reports whether role may perform act on obj.
func (a *Authorizer) Authorize(role, obj, act string) (bool, error) {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return false, nil
	}
	return a.enforcer.Enforce(role, obj, act)
}

// Reload re-reads the policy from its adapter. The previous policy stays
// active when loading fails.
func (a *Authorizer) Reload() error {
	if err := a.enforcer.LoadPolicy(); err != nil {
		return fmt.Errorf("failed to reload authz policy: %w", err)
	}
	return nil
}
