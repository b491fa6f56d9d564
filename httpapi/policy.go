package httpapi

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Policy decision sentinels. Rules return one of these (or a wrapped
// form) to terminate or continue the chain; check with errors.Is.
var (
	// Allow terminates evaluation permitting the request.
	Allow = errors.New("httpapi: allow rule")

	// Deny terminates evaluation rejecting the request with 403.
	Deny = errors.New("httpapi: deny rule")

	// Skip abstains and passes evaluation to the next rule.
	Skip = errors.New("httpapi: skip rule")
)

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// IsDeny reports whether err is a Deny decision.
func IsDeny(err error) bool {
	return errors.Is(err, Deny)
}

// Op is the request operation a rule evaluates.
type Op uint8

const (
	OpList Op = iota + 1
	OpGet
	OpCreate
	OpUpdate
	OpDelete
)

// String returns the lowercase operation name.
func (o Op) String() string {
	switch o {
	case OpList:
		return "list"
	case OpGet:
		return "get"
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// Mutation reports whether the operation writes.
func (o Op) Mutation() bool {
	return o == OpCreate || o == OpUpdate || o == OpDelete
}

// Request is the view of an API request handed to policy rules.
type Request struct {
	Table string
	Op    Op

	// Body is the decoded write body for create/update, nil otherwise.
	Body map[string]any
}

// Rule decides one request. Return Allow/Deny to terminate, Skip or
// nil to continue the chain.
type Rule interface {
	Eval(ctx context.Context, req *Request) error
}

// RuleFunc adapts a function to Rule.
type RuleFunc func(ctx context.Context, req *Request) error

// Eval returns f(ctx, req).
func (f RuleFunc) Eval(ctx context.Context, req *Request) error {
	return f(ctx, req)
}

// Policy is an ordered rule chain. An exhausted chain allows.
type Policy struct {
	Rules []Rule
}

// NewPolicy builds a policy from rules in evaluation order.
func NewPolicy(rules ...Rule) *Policy {
	return &Policy{Rules: rules}
}

// Eval runs the chain. Allow and Skip map to nil; everything else is
// the decision.
func (p *Policy) Eval(ctx context.Context, req *Request) error {
	if p == nil {
		return nil
	}
	for _, rule := range p.Rules {
		switch decision := rule.Eval(ctx, req); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// Viewer identifies the authenticated caller. The JWT middleware
// attaches one; API key auth leaves it nil.
type Viewer struct {
	ID     string
	Issuer string
	Roles  []string
}

type viewerCtxKey struct{}

// WithViewer returns a context carrying the viewer.
func WithViewer(ctx context.Context, v *Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, v)
}

// ViewerFromContext returns the viewer, or nil.
func ViewerFromContext(ctx context.Context) *Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(*Viewer)
	return v
}

// DenyIfNoViewer denies any request without an authenticated viewer.
// Typically the first rule of a chain.
func DenyIfNoViewer() Rule {
	return RuleFunc(func(ctx context.Context, _ *Request) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("viewer required")
		}
		return Skip
	})
}

// HasRole allows when the viewer carries the role, skips otherwise.
func HasRole(role string) Rule {
	return RuleFunc(func(ctx context.Context, _ *Request) error {
		v := ViewerFromContext(ctx)
		if v != nil && slices.Contains(v.Roles, role) {
			return Allow
		}
		return Skip
	})
}

// DenyMutations denies every write on the named tables; an empty
// table list denies writes everywhere.
func DenyMutations(tables ...string) Rule {
	return RuleFunc(func(_ context.Context, req *Request) error {
		if !req.Op.Mutation() {
			return Skip
		}
		if len(tables) == 0 || slices.Contains(tables, req.Table) {
			return Denyf("%s on %s is not allowed", req.Op, req.Table)
		}
		return Skip
	})
}

// OwnerRule allows a mutation whose body field matches the viewer id,
// skipping when the field is absent or there is no viewer.
func OwnerRule(field string) Rule {
	return RuleFunc(func(ctx context.Context, req *Request) error {
		v := ViewerFromContext(ctx)
		if v == nil || req.Body == nil {
			return Skip
		}
		if owner, ok := req.Body[field].(string); ok && owner == v.ID {
			return Allow
		}
		return Skip
	})
}
