// Package engine evaluates route authorization with OPA Rego.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const allowQuery = "data.socialmedia.authz.allow"

// DefaultRolePolicy grants access when the principal's role is one of the roles the route accepts.
const DefaultRolePolicy = `package socialmedia.authz

default allow := false

allow if {
	input.allowed_roles[_] == input.role
}
`

// ErrNoDecision is returned when the policy yields no boolean for the allow query.
var ErrNoDecision = errors.New("policy returned no decision")

// RoleAuthorizer decides whether a role may use a route. The policy is compiled once at construction.
type RoleAuthorizer struct {
	query rego.PreparedEvalQuery
}

// NewRoleAuthorizer compiles policy, or DefaultRolePolicy when policy is empty.
// The policy must define data.socialmedia.authz.allow.
func NewRoleAuthorizer(ctx context.Context, policy string) (*RoleAuthorizer, error) {
	if policy == "" {
		policy = DefaultRolePolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"authz.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile role policy: %w", err)
	}
	pq, err := rego.New(
		rego.Query(allowQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare role policy: %w", err)
	}
	return &RoleAuthorizer{query: pq}, nil
}

// Allow reports whether role is permitted where allowed lists the accepted roles.
// An empty allowed list denies every role.
func (a *RoleAuthorizer) Allow(ctx context.Context, role string, allowed []string) (bool, error) {
	if allowed == nil {
		allowed = []string{}
	}
	input := map[string]interface{}{
		"role":          role,
		"allowed_roles": allowed,
	}
	rs, err := a.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval role policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, ErrNoDecision
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, ErrNoDecision
	}
	return v, nil
}

// HealthCheck evaluates the compiled policy on a fixed input. Returns nil when the engine answers.
func (a *RoleAuthorizer) HealthCheck(ctx context.Context) error {
	_, err := a.Allow(ctx, "REGULAR", []string{"REGULAR"})
	return err
}
