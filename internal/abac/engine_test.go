package abac_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidsec/identity/internal/abac"
	"github.com/corvidsec/identity/internal/storage/memory"
)

func newEngine(t *testing.T, policies ...*abac.Policy) *abac.Engine {
	t.Helper()
	store := memory.NewPolicyStore()
	for _, p := range policies {
		require.NoError(t, store.Create(context.Background(), p))
	}
	return abac.NewEngine(store)
}

func policy(name string, effect abac.Effect, condition string) *abac.Policy {
	return &abac.Policy{
		ID:        uuid.New(),
		Name:      name,
		Effect:    effect,
		Condition: condition,
		IsActive:  true,
	}
}

func TestEvaluateNoMatchingPolicies(t *testing.T) {
	engine := newEngine(t,
		policy("eng-only", abac.EffectAllow, `{"eq": {"subject.department": "engineering"}}`),
	)

	decision, err := engine.Evaluate(context.Background(),
		map[string]interface{}{"department": "sales"}, nil, nil)
	require.NoError(t, err)

	assert.Nil(t, decision.Decision)
	assert.False(t, decision.Allowed())
	assert.False(t, decision.Denied())
	require.NotNil(t, decision.MatchedPolicies)
	assert.Empty(t, decision.MatchedPolicies)
	assert.Equal(t, abac.ReasonNoMatch, decision.Reason)
}

func TestEvaluateAllow(t *testing.T) {
	engine := newEngine(t,
		policy("eng-only", abac.EffectAllow, `{"eq": {"subject.department": "engineering"}}`),
	)

	decision, err := engine.Evaluate(context.Background(),
		map[string]interface{}{"department": "engineering"}, nil, nil)
	require.NoError(t, err)

	assert.True(t, decision.Allowed())
	assert.Equal(t, abac.ReasonGranted, decision.Reason)
	require.Len(t, decision.MatchedPolicies, 1)
	assert.Equal(t, "eng-only", decision.MatchedPolicies[0].Name)
}

func TestEvaluateDenyOverridesAllow(t *testing.T) {
	engine := newEngine(t,
		policy("allow-eng", abac.EffectAllow, `{"eq": {"subject.department": "engineering"}}`),
		policy("deny-contractors", abac.EffectDeny, `{"eq": {"subject.contractor": true}}`),
	)

	decision, err := engine.Evaluate(context.Background(),
		map[string]interface{}{"department": "engineering", "contractor": true}, nil, nil)
	require.NoError(t, err)

	assert.True(t, decision.Denied())
	assert.Equal(t, abac.ReasonDenied, decision.Reason)

	// Both matches are reported even though DENY wins.
	assert.Len(t, decision.MatchedPolicies, 2)
}

func TestEvaluateInactivePoliciesIgnored(t *testing.T) {
	dormant := policy("deny-everyone", abac.EffectDeny, `{"not": {"eq": {"subject.nope": "never"}}}`)
	dormant.IsActive = false

	engine := newEngine(t,
		dormant,
		policy("allow-eng", abac.EffectAllow, `{"eq": {"subject.department": "engineering"}}`),
	)

	decision, err := engine.Evaluate(context.Background(),
		map[string]interface{}{"department": "engineering"}, nil, nil)
	require.NoError(t, err)
	assert.True(t, decision.Allowed())
}

func TestEvaluateSkipsUnevaluablePolicyInIsolation(t *testing.T) {
	engine := newEngine(t,
		policy("broken", abac.EffectDeny, `{"bogus": {"subject.a": 1}}`),
		policy("oversized", abac.EffectDeny, `{"eq": {"subject.a": "`+strings.Repeat("x", 11*1024)+`"}}`),
		policy("allow-eng", abac.EffectAllow, `{"eq": {"subject.department": "engineering"}}`),
	)

	decision, err := engine.Evaluate(context.Background(),
		map[string]interface{}{"department": "engineering"}, nil, nil)
	require.NoError(t, err)

	// The unevaluable policies contribute nothing; the healthy one decides.
	assert.True(t, decision.Allowed())
	require.Len(t, decision.MatchedPolicies, 1)
	assert.Equal(t, "allow-eng", decision.MatchedPolicies[0].Name)
}

func TestEvaluateMalformedSubtreeNeverFlipsThroughNot(t *testing.T) {
	// The not wraps a malformed child. The parse failure kills the whole
	// policy rather than evaluating the child to false and negating it.
	engine := newEngine(t,
		policy("broken-not", abac.EffectAllow, `{"not": {"bogus": {}}}`),
	)

	decision, err := engine.Evaluate(context.Background(),
		map[string]interface{}{"department": "engineering"}, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, decision.Decision)
	assert.Empty(t, decision.MatchedPolicies)
}

func TestEvaluateAttributeTriple(t *testing.T) {
	engine := newEngine(t,
		policy("owner-in-hours", abac.EffectAllow, `{"and": [
			{"eq": {"resource.owner_id": "u1"}},
			{"gte": {"context.hour": 9}},
			{"lt": {"context.hour": 17}}
		]}`),
	)

	subject := map[string]interface{}{"id": "u1"}
	resource := map[string]interface{}{"owner_id": "u1"}

	decision, err := engine.Evaluate(context.Background(), subject, resource,
		map[string]interface{}{"hour": 14})
	require.NoError(t, err)
	assert.True(t, decision.Allowed())

	decision, err = engine.Evaluate(context.Background(), subject, resource,
		map[string]interface{}{"hour": 20})
	require.NoError(t, err)
	assert.Nil(t, decision.Decision)
}

func TestCombineWithoutStore(t *testing.T) {
	policies := []*abac.Policy{
		policy("deny-suspended", abac.EffectDeny, `{"eq": {"subject.suspended": true}}`),
	}

	decision := abac.Combine(context.Background(), policies,
		map[string]interface{}{"suspended": true}, nil, nil)
	assert.True(t, decision.Denied())

	decision = abac.Combine(context.Background(), policies,
		map[string]interface{}{"suspended": false}, nil, nil)
	assert.Nil(t, decision.Decision)
}
