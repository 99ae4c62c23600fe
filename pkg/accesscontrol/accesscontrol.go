package accesscontrol

import (
	"bringitback-controlplane/pkg/config"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const RoleAdmin = "admin"

// rbacModel grants roles to users, g = user, role.
const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (r.obj == p.obj || p.obj == "*") && (r.act == p.act || p.act == "*")
`

var Module = fx.Module("accesscontrol",
	fx.Provide(New),
)

type Enforcer struct {
	enforcer *casbin.Enforcer
}

// New loads role assignments from ACCESS_CONTROL.POLICY (casbin csv). Without a policy
// file nobody is an administrator.
func New(cfg *config.Config) (*Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}

	var e *casbin.Enforcer
	if cfg.AccessControl.Policy != "" {
		e, err = casbin.NewEnforcer(m, fileadapter.NewAdapter(cfg.AccessControl.Policy))
	} else {
		zap.L().Warn("[AccessControl] no policy configured, administrator routes are closed")
		e, err = casbin.NewEnforcer(m)
	}
	if err != nil {
		return nil, err
	}

	return &Enforcer{enforcer: e}, nil
}

// NewInMemory builds an enforcer with the given administrators, used by tests and tooling.
func NewInMemory(admins ...string) (*Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	for _, id := range admins {
		if _, err := e.AddRoleForUser(id, RoleAdmin); err != nil {
			return nil, err
		}
	}
	return &Enforcer{enforcer: e}, nil
}

func (e *Enforcer) HasRole(userID, role string) bool {
	if userID == "" {
		return false
	}
	ok, err := e.enforcer.HasRoleForUser(userID, role)
	if err != nil {
		zap.L().Error("[AccessControl] role lookup failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return ok
}

// Administrators lists the users holding the admin role.
func (e *Enforcer) Administrators() []string {
	users, err := e.enforcer.GetUsersForRole(RoleAdmin)
	if err != nil {
		zap.L().Error("[AccessControl] failed to list administrators", zap.Error(err))
		return nil
	}
	return users
}
