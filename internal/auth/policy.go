package auth

import (
	"sort"
	"strings"
)

// Rule is the access requirement of one operation.
type Rule struct {
	public bool
	deny   bool
	roles  map[Role]struct{}
}

// Public marks an operation that needs no token.
func Public() Rule { return Rule{public: true} }

// Authenticated requires a valid token with any role.
func Authenticated() Rule { return Rule{} }

// RequireRoles requires a valid token whose role claim is one of roles.
func RequireRoles(roles ...Role) Rule {
	set := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return Rule{roles: set}
}

// Deny refuses every caller, authenticated or not.
func Deny() Rule { return Rule{deny: true} }

// IsPublic reports whether the rule admits callers without a token.
func (r Rule) IsPublic() bool { return r.public && !r.deny }

// Roles returns the allowed roles in stable order; empty means any role.
func (r Rule) Roles() []Role {
	out := make([]Role, 0, len(r.roles))
	for role := range r.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Authorize decides access for claims (nil when no valid token was presented).
// It returns ErrUnauthenticated for a missing identity and ErrForbidden for a
// role outside the allowed set.
func (r Rule) Authorize(claims *Claims) error {
	if r.deny {
		return ErrForbidden
	}
	if r.public {
		return nil
	}
	if claims == nil {
		return ErrUnauthenticated
	}
	if len(r.roles) == 0 {
		return nil
	}
	if _, ok := r.roles[claims.Role]; !ok {
		return ErrForbidden
	}
	return nil
}

// Policy maps an operation key ("METHOD /pattern") to its Rule. It is built
// once at startup and only read afterwards.
type Policy struct {
	rules map[string]Rule
}

// NewPolicy copies rules into an immutable Policy.
func NewPolicy(rules map[string]Rule) *Policy {
	p := &Policy{rules: make(map[string]Rule, len(rules))}
	for op, rule := range rules {
		p.rules[normalizeOperation(op)] = rule
	}
	return p
}

// Rule returns the rule for op. An operation absent from the policy gets
// Deny and ok=false.
func (p *Policy) Rule(op string) (rule Rule, ok bool) {
	rule, ok = p.rules[normalizeOperation(op)]
	if !ok {
		return Deny(), false
	}
	return rule, true
}

// Operations lists declared operation keys in sorted order.
func (p *Policy) Operations() []string {
	out := make([]string, 0, len(p.rules))
	for op := range p.rules {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

func normalizeOperation(op string) string {
	method, path, found := strings.Cut(strings.TrimSpace(op), " ")
	if !found {
		return op
	}
	return strings.ToUpper(method) + " " + strings.TrimSpace(path)
}
