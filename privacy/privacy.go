package privacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/raillogistic/autogql"
	"github.com/raillogistic/autogql/filter"
)

// Rule decisions. Rules may wrap them; they are matched with errors.Is.
var (
	Allow = errors.New("privacy: allow")
	Deny  = errors.New("privacy: deny")
	Skip  = errors.New("privacy: skip")
)

// Denyf returns a Deny decision carrying a formatted reason.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

type (
	// QueryRule decides whether a read may run, and may narrow it.
	QueryRule interface {
		EvalQuery(context.Context, autogql.Query) error
	}

	// MutationRule decides whether a write may touch a record.
	MutationRule interface {
		EvalMutation(context.Context, autogql.Mutation) error
	}

	// QueryMutationRule is a rule usable in both kinds of policy.
	QueryMutationRule interface {
		QueryRule
		MutationRule
	}

	// QueryPolicy is an ordered list of query rules.
	QueryPolicy []QueryRule

	// MutationPolicy is an ordered list of mutation rules.
	MutationPolicy []MutationRule
)

// QueryRuleFunc adapts a function to a QueryRule.
type QueryRuleFunc func(context.Context, autogql.Query) error

// EvalQuery returns f(ctx, q).
func (f QueryRuleFunc) EvalQuery(ctx context.Context, q autogql.Query) error {
	return f(ctx, q)
}

// MutationRuleFunc adapts a function to a MutationRule.
type MutationRuleFunc func(context.Context, autogql.Mutation) error

// EvalMutation returns f(ctx, m).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, m autogql.Mutation) error {
	return f(ctx, m)
}

// EvalQuery returns the first decision of the policy that is not a Skip.
func (p QueryPolicy) EvalQuery(ctx context.Context, q autogql.Query) error {
	return decide(p, func(r QueryRule) error { return r.EvalQuery(ctx, q) })
}

// EvalMutation returns the first decision of the policy that is not a Skip.
func (p MutationPolicy) EvalMutation(ctx context.Context, m autogql.Mutation) error {
	return decide(p, func(r MutationRule) error { return r.EvalMutation(ctx, m) })
}

// Policy is the autogql.Policy returned by the Policy method of an entity.
type Policy struct {
	Query    QueryPolicy
	Mutation MutationPolicy
}

// EvalQuery evaluates the query rules.
func (p Policy) EvalQuery(ctx context.Context, q autogql.Query) error {
	return p.Query.EvalQuery(ctx, q)
}

// EvalMutation evaluates the mutation rules.
func (p Policy) EvalMutation(ctx context.Context, m autogql.Mutation) error {
	return p.Mutation.EvalMutation(ctx, m)
}

// decide runs rules in order and returns the first Allow, Deny or error.
// A nil or Skip result moves on; running out of rules is a nil decision.
func decide[R any](rules []R, eval func(R) error) error {
	for _, r := range rules {
		if d := eval(r); d != nil && !errors.Is(d, Skip) {
			return d
		}
	}
	return nil
}

// AlwaysAllowRule allows every query and mutation.
func AlwaysAllowRule() QueryMutationRule { return fixed{Allow} }

// AlwaysDenyRule denies every query and mutation. It usually ends a policy.
func AlwaysDenyRule() QueryMutationRule { return fixed{Deny} }

type fixed struct{ decision error }

func (f fixed) EvalQuery(context.Context, autogql.Query) error       { return f.decision }
func (f fixed) EvalMutation(context.Context, autogql.Mutation) error { return f.decision }

// contextRule decides from the context alone, e.g. from its viewer.
type contextRule func(context.Context) error

func (f contextRule) EvalQuery(ctx context.Context, _ autogql.Query) error       { return f(ctx) }
func (f contextRule) EvalMutation(ctx context.Context, _ autogql.Mutation) error { return f(ctx) }

// OnMutationOperation runs rule for the mutations matching op and skips the
// others.
func OnMutationOperation(rule MutationRule, op autogql.Op) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m autogql.Mutation) error {
		if m.Op().Is(op) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// DenyMutationOperationRule denies the mutations matching op, e.g.
// autogql.OpDelete for records that are never removed.
func DenyMutationOperationRule(op autogql.Op) MutationRule {
	return OnMutationOperation(MutationRuleFunc(func(_ context.Context, m autogql.Mutation) error {
		return Denyf("privacy: %s of %s is not allowed", opName(m.Op()), m.Type())
	}), op)
}

// Filter collects the predicates narrowing a read.
type Filter interface {
	Where(...filter.P)
}

// Filterable is implemented by reads that can be narrowed. Generated
// single, list and paginated queries and relation reads implement it.
type Filterable interface {
	Filter() Filter
}

// FilterFunc is a query rule adding predicates to a read:
//
//	privacy.FilterFunc(func(ctx context.Context, f privacy.Filter) error {
//	    f.Where(filter.FieldEQ("workspace_id", workspaceID))
//	    return privacy.Skip
//	})
//
// Reads that cannot be narrowed are denied.
type FilterFunc func(context.Context, Filter) error

// EvalQuery calls f with the filter of q.
func (f FilterFunc) EvalQuery(ctx context.Context, q autogql.Query) error {
	fr, ok := q.(Filterable)
	if !ok {
		return Denyf("privacy: %s of %s cannot be filtered", q.Operation(), q.Type())
	}
	return f(ctx, fr.Filter())
}

// CheckQuery evaluates the policies of an entity, in order, for a read. The
// first policy that allows or denies decides. A denial, or a rule failure,
// is returned as an autogql.PermissionError.
func CheckQuery(ctx context.Context, policies []autogql.Policy, q autogql.Query) error {
	d := decide(policies, func(p autogql.Policy) error { return p.EvalQuery(ctx, q) })
	return verdict(d, q.Type(), q.Operation())
}

// CheckMutation is the CheckQuery of writes. It runs once per record a
// mutation touches.
func CheckMutation(ctx context.Context, policies []autogql.Policy, m autogql.Mutation) error {
	d := decide(policies, func(p autogql.Policy) error { return p.EvalMutation(ctx, m) })
	return verdict(d, m.Type(), opName(m.Op()))
}

func verdict(d error, entity, op string) error {
	if d == nil || errors.Is(d, Allow) {
		return nil
	}
	return autogql.NewPermissionError(entity, op, d)
}

func opName(op autogql.Op) string {
	switch {
	case op.Is(autogql.OpCreate):
		return "create"
	case op.Is(autogql.OpUpdate):
		return "update"
	case op.Is(autogql.OpDelete):
		return "delete"
	case op.Is(autogql.OpMethod):
		return "method"
	}
	return op.String()
}
