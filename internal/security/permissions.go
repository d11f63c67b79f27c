// Package security grants entity permissions to the importing user through a
// casbin enforcer.
package security

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"emxloader/pkg/domain"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"github.com/sirupsen/logrus"
)

// Entity permissions granted on import.
const (
	ActionRead      = "read"
	ActionWrite     = "write"
	ActionWriteMeta = "writemeta"
)

// GrantedActions are given to the importing user on every entity it creates.
var GrantedActions = []string{ActionRead, ActionWrite, ActionWriteMeta}

// modelText: subjects inherit through g, objects match with keyMatch so
// "lab_*" covers a package.
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
m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj) && r.act == p.act
`

var _ domain.PermissionHook = (*Enforcer)(nil)

// Enforcer implements domain.PermissionHook on a casbin enforcer. With a
// policy file the policies are loaded from and saved back to it.
type Enforcer struct {
	mu         sync.RWMutex
	enforcer   *casbin.Enforcer
	policyPath string
	log        *logrus.Entry
}

// NewEnforcer builds an enforcer. An empty policyPath keeps policies in memory.
func NewEnforcer(policyPath string, log *logrus.Entry) (*Enforcer, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("security: parse model: %w", err)
	}
	var enf *casbin.Enforcer
	if policyPath == "" {
		enf, err = casbin.NewEnforcer(m)
	} else {
		if err := ensureFile(policyPath); err != nil {
			return nil, err
		}
		enf, err = casbin.NewEnforcer(m, fileadapter.NewAdapter(policyPath))
	}
	if err != nil {
		return nil, fmt.Errorf("security: failed to initialize enforcer: %w", err)
	}
	return &Enforcer{enforcer: enf, policyPath: policyPath, log: log.WithField("component", "security")}, nil
}

func ensureFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("security: create policy dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("security: create policy file: %w", err)
	}
	return f.Close()
}

// Grant gives principal every GrantedActions permission on entities.
func (e *Enforcer) Grant(ctx context.Context, principal domain.Principal, entities []string) error {
	if principal.Username == "" {
		return fmt.Errorf("security: grant requires a user")
	}
	if len(entities) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rules := make([][]string, 0, len(entities)*len(GrantedActions))
	for _, entity := range entities {
		for _, act := range GrantedActions {
			rules = append(rules, []string{principal.Username, entity, act})
		}
	}
	if _, err := e.enforcer.AddPolicies(rules); err != nil {
		return fmt.Errorf("security: add policies: %w", err)
	}
	if e.policyPath != "" {
		if err := e.enforcer.SavePolicy(); err != nil {
			return fmt.Errorf("security: save policy: %w", err)
		}
	}
	e.log.WithContext(ctx).WithFields(logrus.Fields{
		"user":     principal.Username,
		"entities": len(entities),
	}).Debug("granted entity permissions")
	return nil
}

// Allowed reports whether principal may perform act on entity. Superusers
// may do everything.
func (e *Enforcer) Allowed(principal domain.Principal, entity, act string) (bool, error) {
	if principal.Superuser {
		return true, nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	ok, err := e.enforcer.Enforce(principal.Username, entity, act)
	if err != nil {
		return false, fmt.Errorf("security: enforce failed: %w", err)
	}
	return ok, nil
}

// Authorize returns a PERMISSION_FAILURE error when principal may not perform act on entity.
func (e *Enforcer) Authorize(principal domain.Principal, entity, act string) error {
	ok, err := e.Allowed(principal, entity, act)
	if err != nil {
		return domain.NewError(domain.KindPermissionFailure, entity, err, "permission check failed")
	}
	if !ok {
		return domain.NewError(domain.KindPermissionFailure, entity, nil, "user %q may not %s %s", principal.Username, act, entity)
	}
	return nil
}
