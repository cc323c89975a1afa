package abac

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Decision reasons. The two non-granted strings are relied on by callers.
const (
	ReasonDenied  = "Access denied by ABAC policy"
	ReasonGranted = "Access granted by ABAC policy"
	ReasonNoMatch = "No matching ABAC policies"
)

// PolicyRef identifies a matched policy in a decision without echoing its
// condition.
type PolicyRef struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Effect Effect    `json:"effect"`
}

// Decision is the outcome of one evaluation. Decision is nil when no active
// policy matched; MatchedPolicies lists the actual matches either way and is
// never nil.
type Decision struct {
	Decision        *Effect     `json:"decision"`
	MatchedPolicies []PolicyRef `json:"matched_policies"`
	Reason          string      `json:"reason"`
}

// Denied reports whether the decision is an explicit DENY.
func (d *Decision) Denied() bool {
	return d.Decision != nil && *d.Decision == EffectDeny
}

// Allowed reports whether the decision is an explicit ALLOW.
func (d *Decision) Allowed() bool {
	return d.Decision != nil && *d.Decision == EffectAllow
}

// Engine evaluates the active policy set against attribute triples. It holds
// no mutable state; the policy list is re-read per evaluation and may change
// between evaluations.
type Engine struct {
	policies PolicyStore
}

func NewEngine(policies PolicyStore) *Engine {
	return &Engine{policies: policies}
}

// Evaluate loads the active policies and combines their outcomes with
// explicit-DENY override. Nil attribute maps are treated as empty.
func (e *Engine) Evaluate(ctx context.Context, subject, resource, reqContext map[string]interface{}) (*Decision, error) {
	active, err := e.policies.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active policies: %w", err)
	}
	return Combine(ctx, active, subject, resource, reqContext), nil
}

// Combine evaluates the given policies against the attribute triple. A policy
// whose condition cannot be parsed, is oversized, too deeply nested, or names
// an unknown operator contributes nothing and never disturbs its siblings.
func Combine(ctx context.Context, policies []*Policy, subject, resource, reqContext map[string]interface{}) *Decision {
	attrs := attributes{subject: subject, resource: resource, context: reqContext}

	matched := make([]PolicyRef, 0, len(policies))
	var sawDeny, sawAllow bool

	for _, p := range policies {
		if !match(ctx, p, attrs) {
			continue
		}
		matched = append(matched, PolicyRef{ID: p.ID, Name: p.Name, Effect: p.Effect})
		switch p.Effect {
		case EffectDeny:
			sawDeny = true
		case EffectAllow:
			sawAllow = true
		}
	}

	decision := &Decision{MatchedPolicies: matched}
	switch {
	case sawDeny:
		effect := EffectDeny
		decision.Decision = &effect
		decision.Reason = ReasonDenied
	case sawAllow:
		effect := EffectAllow
		decision.Decision = &effect
		decision.Reason = ReasonGranted
	default:
		decision.Reason = ReasonNoMatch
	}
	return decision
}

// match evaluates one policy's condition. Logs reference the policy by id and
// name only; condition text and attribute values stay out of the log stream.
func match(ctx context.Context, p *Policy, attrs attributes) bool {
	root, err := parseCondition([]byte(p.Condition))
	if err != nil {
		slog.WarnContext(ctx, "skipping unevaluable abac policy",
			"policy_id", p.ID,
			"policy_name", p.Name,
			"error", err,
		)
		return false
	}
	return root.eval(attrs)
}
