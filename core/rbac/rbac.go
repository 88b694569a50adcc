package rbac

import (
	"context"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"sokol-alert/core/store"
)

// Objects and actions of the command surface.
const (
	ObjIncident  = "incident"
	ObjReport    = "report"
	ObjOperators = "operators"

	ActCreate = "create"
	ActNotify = "notify"
	ActRead   = "read"
	ActManage = "manage"
)

const roleOperator = "operator"

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

var operatorPolicies = [][]string{
	{roleOperator, ObjIncident, ActCreate},
	{roleOperator, ObjIncident, ActNotify},
	{roleOperator, ObjReport, ActRead},
	{roleOperator, ObjOperators, ActManage},
}

// Enforcer answers "may user X do act on obj". The operator role is
// granted through the operators table; grouping policies mirror it in
// memory and are kept in sync on grant/revoke.
type Enforcer struct {
	enforcer  *casbin.Enforcer
	operators store.OperatorsStore
}

func NewEnforcer(ctx context.Context, operators store.OperatorsStore) (*Enforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	for _, p := range operatorPolicies {
		if _, err := enforcer.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, err
		}
	}
	e := &Enforcer{enforcer: enforcer, operators: operators}
	if err := e.Reload(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func subject(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// Reload resyncs the operator role bindings from the store.
func (e *Enforcer) Reload(ctx context.Context) error {
	ops, err := e.operators.List(ctx)
	if err != nil {
		return err
	}
	e.enforcer.RemoveFilteredGroupingPolicy(1, roleOperator)
	for _, op := range ops {
		if _, err := e.enforcer.AddGroupingPolicy(subject(op.UserID), roleOperator); err != nil {
			return err
		}
	}
	return nil
}

func (e *Enforcer) Allow(userID int64, obj, act string) bool {
	ok, err := e.enforcer.Enforce(subject(userID), obj, act)
	return err == nil && ok
}

// Grant persists the operator role and updates the in-memory binding.
func (e *Enforcer) Grant(ctx context.Context, userID, grantedBy int64) error {
	if err := e.operators.Grant(ctx, userID, grantedBy); err != nil {
		return err
	}
	_, err := e.enforcer.AddGroupingPolicy(subject(userID), roleOperator)
	return err
}

// Operators lists the current role holders straight from the store.
func (e *Enforcer) Operators(ctx context.Context) ([]store.Operator, error) {
	return e.operators.List(ctx)
}

func (e *Enforcer) Revoke(ctx context.Context, userID int64) error {
	if err := e.operators.Revoke(ctx, userID); err != nil {
		return err
	}
	_, err := e.enforcer.RemoveGroupingPolicy(subject(userID), roleOperator)
	return err
}
