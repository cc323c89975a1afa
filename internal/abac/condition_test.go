package abac

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, condition string) *node {
	t.Helper()
	n, err := parseCondition([]byte(condition))
	require.NoError(t, err)
	return n
}

func evalCondition(t *testing.T, condition string, attrs attributes) bool {
	t.Helper()
	return mustParse(t, condition).eval(attrs)
}

func subjectAttrs(m map[string]interface{}) attributes {
	return attributes{subject: m}
}

func TestParseConditionShapes(t *testing.T) {
	cases := []struct {
		name      string
		condition string
		wantErr   bool
	}{
		{"simple eq", `{"eq": {"subject.department": "engineering"}}`, false},
		{"nested logic", `{"and": [{"eq": {"subject.a": 1}}, {"or": [{"eq": {"subject.b": 2}}, {"not": {"eq": {"subject.c": 3}}}]}]}`, false},
		{"in with array", `{"in": {"subject.groups": ["staff", "admins"]}}`, false},
		{"not json", `eq subject.a 1`, true},
		{"json scalar", `"eq"`, true},
		{"empty object", `{}`, true},
		{"two operators", `{"eq": {"subject.a": 1}, "ne": {"subject.b": 2}}`, true},
		{"unknown operator", `{"matches": {"subject.a": "x"}}`, true},
		{"comparison with two fields", `{"eq": {"subject.a": 1, "subject.b": 2}}`, true},
		{"comparison not an object", `{"eq": "subject.a"}`, true},
		{"and not an array", `{"and": {"eq": {"subject.a": 1}}}`, true},
		{"and empty array", `{"and": []}`, true},
		{"in without array", `{"in": {"subject.groups": "staff"}}`, true},
		{"malformed child fails parent", `{"and": [{"eq": {"subject.a": 1}}, {"bogus": {}}]}`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseCondition([]byte(tc.condition))
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseConditionSizeCap(t *testing.T) {
	// Valid JSON padded past the cap must be rejected before parsing.
	pad := strings.Repeat("x", maxConditionBytes)
	condition := fmt.Sprintf(`{"eq": {"subject.a": "%s"}}`, pad)

	_, err := parseCondition([]byte(condition))
	require.ErrorIs(t, err, errConditionTooLarge)
}

func TestParseConditionDepthCountsLogicalOpsOnly(t *testing.T) {
	wrap := func(inner string, n int) string {
		for i := 0; i < n; i++ {
			inner = `{"not": ` + inner + `}`
		}
		return inner
	}
	leaf := `{"eq": {"subject.a": 1}}`

	// Ten logical levels parse; eleven do not. The comparison leaf does not
	// count against the limit.
	_, err := parseCondition([]byte(wrap(leaf, maxLogicalDepth)))
	require.NoError(t, err)

	_, err = parseCondition([]byte(wrap(leaf, maxLogicalDepth+1)))
	require.ErrorIs(t, err, errConditionTooDeep)
}

func TestEvalComparisons(t *testing.T) {
	attrs := subjectAttrs(map[string]interface{}{
		"department": "engineering",
		"level":      float64(5),
		"active":     true,
		"groups":     []interface{}{"staff", "oncall"},
		"tags":       []string{"blue"},
		"profile": map[string]interface{}{
			"region": "eu",
		},
	})

	cases := []struct {
		name      string
		condition string
		want      bool
	}{
		{"eq string match", `{"eq": {"subject.department": "engineering"}}`, true},
		{"eq string mismatch", `{"eq": {"subject.department": "sales"}}`, false},
		{"eq bool", `{"eq": {"subject.active": true}}`, true},
		{"eq cross-type", `{"eq": {"subject.active": "true"}}`, false},
		{"eq missing path is false", `{"eq": {"subject.salary": 0}}`, false},
		{"eq nested path", `{"eq": {"subject.profile.region": "eu"}}`, true},
		{"ne mismatch is true", `{"ne": {"subject.department": "sales"}}`, true},
		{"ne match is false", `{"ne": {"subject.department": "engineering"}}`, false},
		{"ne on missing path is false", `{"ne": {"subject.salary": 100}}`, false},
		{"gt true", `{"gt": {"subject.level": 3}}`, true},
		{"gt equal is false", `{"gt": {"subject.level": 5}}`, false},
		{"gte equal is true", `{"gte": {"subject.level": 5}}`, true},
		{"lt false", `{"lt": {"subject.level": 5}}`, false},
		{"lte equal is true", `{"lte": {"subject.level": 5}}`, true},
		{"ordering on non-number is false", `{"gt": {"subject.department": 1}}`, false},
		{"ordering on missing path is false", `{"gt": {"subject.salary": 1}}`, false},
		{"in hit", `{"in": {"subject.groups": ["oncall", "admins"]}}`, true},
		{"in miss", `{"in": {"subject.groups": ["admins"]}}`, false},
		{"in over string slice", `{"in": {"subject.tags": ["blue"]}}`, true},
		{"in on scalar is false", `{"in": {"subject.department": ["engineering"]}}`, false},
		{"in on missing path is false", `{"in": {"subject.nope": ["x"]}}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, evalCondition(t, tc.condition, attrs))
		})
	}
}

func TestEvalNumericWidening(t *testing.T) {
	// Attribute maps assembled in Go carry native ints; JSON literals decode
	// to float64. The comparison must not care.
	attrs := subjectAttrs(map[string]interface{}{"level": int(5)})

	assert.True(t, evalCondition(t, `{"eq": {"subject.level": 5}}`, attrs))
	assert.True(t, evalCondition(t, `{"eq": {"subject.level": 5.0}}`, attrs))
	assert.True(t, evalCondition(t, `{"gte": {"subject.level": 5}}`, attrs))
}

func TestEvalLogicalOperators(t *testing.T) {
	attrs := subjectAttrs(map[string]interface{}{"a": "x", "b": "y"})

	cases := []struct {
		name      string
		condition string
		want      bool
	}{
		{"and all true", `{"and": [{"eq": {"subject.a": "x"}}, {"eq": {"subject.b": "y"}}]}`, true},
		{"and one false", `{"and": [{"eq": {"subject.a": "x"}}, {"eq": {"subject.b": "z"}}]}`, false},
		{"or one true", `{"or": [{"eq": {"subject.a": "z"}}, {"eq": {"subject.b": "y"}}]}`, true},
		{"or all false", `{"or": [{"eq": {"subject.a": "z"}}, {"eq": {"subject.b": "z"}}]}`, false},
		{"not flips false", `{"not": {"eq": {"subject.a": "z"}}}`, true},
		{"not flips true", `{"not": {"eq": {"subject.a": "x"}}}`, false},
		// A missing attribute is false; negation turns that into a match.
		{"not over missing path", `{"not": {"eq": {"subject.missing": "x"}}}`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, evalCondition(t, tc.condition, attrs))
		})
	}
}

func TestResolvePathRoots(t *testing.T) {
	attrs := attributes{
		subject:  map[string]interface{}{"id": "u1"},
		resource: map[string]interface{}{"owner": "u1"},
		context:  map[string]interface{}{"hour": float64(14)},
	}

	assert.Equal(t, "u1", resolvePath("subject.id", attrs))
	assert.Equal(t, "u1", resolvePath("resource.owner", attrs))
	assert.Equal(t, float64(14), resolvePath("context.hour", attrs))

	// A bare root, an unknown root, and traversal through a scalar all
	// resolve to nil.
	assert.Nil(t, resolvePath("subject", attrs))
	assert.Nil(t, resolvePath("environment.hour", attrs))
	assert.Nil(t, resolvePath("subject.id.extra", attrs))
	assert.Nil(t, resolvePath("", attrs))
}

func TestEvalNilAttributeMaps(t *testing.T) {
	attrs := attributes{}

	assert.False(t, evalCondition(t, `{"eq": {"subject.a": "x"}}`, attrs))
	assert.True(t, evalCondition(t, `{"not": {"eq": {"subject.a": "x"}}}`, attrs))
}
