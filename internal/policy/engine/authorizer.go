// Package engine authorizes session operations with an in-process OPA Rego policy.
package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

// Actions understood by the default policy.
const (
	ActionListSessions  = "sessions:list"
	ActionRevokeSession = "sessions:revoke"
	ActionLogout        = "auth:logout"
)

const allowQuery = "data.otpauth.authz.allow"

// Default Rego policy: owners manage their own sessions; ADMIN may do anything.
const defaultRegoPolicy = `package otpauth.authz

default allow := false

allow if {
	input.subject.roles[_] == "ADMIN"
}

allow if {
	input.subject.id != ""
	input.action in {"sessions:list", "auth:logout"}
}

allow if {
	input.action == "sessions:revoke"
	input.subject.id != ""
	input.resource.owner_id == input.subject.id
}
`

// Subject is the authenticated caller.
type Subject struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// Resource is the object acted upon. OwnerID is empty for collection actions.
type Resource struct {
	OwnerID string `json:"owner_id"`
}

// Input is the document passed to the policy as input.
type Input struct {
	Subject  Subject  `json:"subject"`
	Action   string   `json:"action"`
	Resource Resource `json:"resource"`
}

// OPAAuthorizer evaluates a prepared allow query.
type OPAAuthorizer struct {
	query rego.PreparedEvalQuery
}

// NewOPAAuthorizer compiles the policy at policyFile, or the built-in policy when policyFile
// is empty. The policy must define data.otpauth.authz.allow.
func NewOPAAuthorizer(ctx context.Context, policyFile string) (*OPAAuthorizer, error) {
	src := defaultRegoPolicy
	name := "default.rego"
	if policyFile != "" {
		b, err := os.ReadFile(policyFile)
		if err != nil {
			return nil, fmt.Errorf("read policy: %w", err)
		}
		src, name = string(b), policyFile
	}
	return newFromSource(ctx, name, src)
}

func newFromSource(ctx context.Context, name, src string) (*OPAAuthorizer, error) {
	compiler, err := ast.CompileModules(map[string]string{name: src})
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	pq, err := rego.New(rego.Query(allowQuery), rego.Compiler(compiler)).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	return &OPAAuthorizer{query: pq}, nil
}

// Allow reports whether in is permitted. An undefined result is a deny.
func (a *OPAAuthorizer) Allow(ctx context.Context, in Input) (bool, error) {
	if in.Subject.Roles == nil {
		in.Subject.Roles = []string{}
	}
	rs, err := a.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return false, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy: allow is %T, want bool", rs[0].Expressions[0].Value)
	}
	return allowed, nil
}

// HealthCheck evaluates the loaded policy against a minimal input. Returns nil when the
// engine answers.
func (a *OPAAuthorizer) HealthCheck(ctx context.Context) error {
	_, err := a.Allow(ctx, Input{Action: ActionListSessions})
	return err
}
