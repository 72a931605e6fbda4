package roleattr

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-kessel/rolemapper/internal/claims"
)

// mapSource serves attributes from a map keyed by role ID
type mapSource struct {
	attrs  map[string]Attributes
	errs   map[string]error
	panics map[string]bool
	calls  int
}

func (s *mapSource) RoleAttributes(ctx context.Context, role Role) (Attributes, error) {
	s.calls++
	if s.panics[role.ID] {
		panic("lookup exploded")
	}
	if err := s.errs[role.ID]; err != nil {
		return nil, err
	}
	return s.attrs[role.ID], nil
}

// recordingProbe records events reported during a build
type recordingProbe struct {
	skipped   map[string]error
	omitted   []string
	claimName string
	count     int
	builds    int
}

func newRecordingProbe() *recordingProbe {
	return &recordingProbe{skipped: make(map[string]error)}
}

func (p *recordingProbe) RoleSkipped(role Role, err error) { p.skipped[role.Name] = err }
func (p *recordingProbe) RoleOmitted(role Role)            { p.omitted = append(p.omitted, role.Name) }
func (p *recordingProbe) Built(claimName string, roleCount int) {
	p.claimName = claimName
	p.count = roleCount
	p.builds++
}

func roles(names ...string) []Role {
	out := make([]Role, len(names))
	for i, name := range names {
		out[i] = Role{ID: "id-" + name, Name: name}
	}
	return out
}

func TestBuild_Scenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("roles with attributes are emitted with values in order", func(t *testing.T) {
		source := &mapSource{attrs: map[string]Attributes{
			"id-admin": {"department": {"IT", "Security"}, "level": {"5"}},
			"id-user":  {"department": {"Sales"}},
		}}

		for _, includeEmpty := range []bool{false, true} {
			got := Build(ctx, roles("admin", "user"), source, Options{IncludeEmptyAttributes: includeEmpty})

			want := ClaimValue{
				"admin": {"department": {"IT", "Security"}, "level": {"5"}},
				"user":  {"department": {"Sales"}},
			}
			assert.Equal(t, want, got, "includeEmptyAttributes=%v", includeEmpty)
		}
	})

	t.Run("role with empty mapping is omitted unless empty attributes are included", func(t *testing.T) {
		source := &mapSource{attrs: map[string]Attributes{"id-guest": {}}}

		got := Build(ctx, roles("guest"), source, Options{})
		assert.Empty(t, got)

		got = Build(ctx, roles("guest"), source, Options{IncludeEmptyAttributes: true})
		assert.Equal(t, ClaimValue{"guest": {}}, got)
	})

	t.Run("role without any mapping follows the same policy", func(t *testing.T) {
		source := &mapSource{attrs: map[string]Attributes{}}

		assert.Empty(t, Build(ctx, roles("ghost"), source, Options{}))
		assert.Equal(t, ClaimValue{"ghost": {}}, Build(ctx, roles("ghost"), source, Options{IncludeEmptyAttributes: true}))
	})

	t.Run("no roles yields an empty claim value", func(t *testing.T) {
		got := Build(ctx, nil, &mapSource{}, Options{})
		require.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("failing role is skipped and reported", func(t *testing.T) {
		lookupErr := errors.New("connection reset")
		source := &mapSource{
			attrs: map[string]Attributes{"id-user": {"department": {"Sales"}}},
			errs:  map[string]error{"id-admin": lookupErr},
		}
		probe := newRecordingProbe()

		got := Build(ctx, roles("admin", "user"), source, Options{ClaimName: "role_attributes", Probe: probe})

		assert.Equal(t, ClaimValue{"user": {"department": {"Sales"}}}, got)
		require.Contains(t, probe.skipped, "admin")
		assert.ErrorIs(t, probe.skipped["admin"], lookupErr)
		assert.Equal(t, 1, probe.builds)
		assert.Equal(t, "role_attributes", probe.claimName)
		assert.Equal(t, 1, probe.count)
	})

	t.Run("panicking lookup is confined to its role", func(t *testing.T) {
		source := &mapSource{
			attrs:  map[string]Attributes{"id-user": {"department": {"Sales"}}},
			panics: map[string]bool{"id-admin": true},
		}
		probe := newRecordingProbe()

		got := Build(ctx, roles("admin", "user"), source, Options{Probe: probe})

		assert.Equal(t, ClaimValue{"user": {"department": {"Sales"}}}, got)
		assert.Contains(t, probe.skipped, "admin")
	})

	t.Run("nil source skips every role", func(t *testing.T) {
		probe := newRecordingProbe()
		got := Build(ctx, roles("admin"), nil, Options{Probe: probe})

		assert.Empty(t, got)
		assert.ErrorIs(t, probe.skipped["admin"], ErrNilAttributeSource)
	})
}

func TestBuild_EmptyValueFiltering(t *testing.T) {
	ctx := context.Background()
	source := &mapSource{attrs: map[string]Attributes{
		"id-ops": {"region": {"eu"}, "shift": {}, "legacy": nil},
	}}

	t.Run("empty value lists are dropped by default", func(t *testing.T) {
		got := Build(ctx, roles("ops"), source, Options{})
		assert.Equal(t, ClaimValue{"ops": {"region": {"eu"}}}, got)
	})

	t.Run("empty value lists are kept empty when included", func(t *testing.T) {
		got := Build(ctx, roles("ops"), source, Options{IncludeEmptyAttributes: true})
		assert.Equal(t, ClaimValue{"ops": {"region": {"eu"}, "shift": {}}}, got)

		data, err := json.Marshal(got)
		require.NoError(t, err)
		assert.JSONEq(t, `{"ops":{"region":["eu"],"shift":[]}}`, string(data))
	})

	t.Run("role whose attributes are all empty is omitted by default", func(t *testing.T) {
		onlyEmpty := &mapSource{attrs: map[string]Attributes{"id-idle": {"shift": {}}}}
		probe := newRecordingProbe()

		got := Build(ctx, roles("idle"), onlyEmpty, Options{Probe: probe})
		assert.Empty(t, got)
		assert.Equal(t, []string{"idle"}, probe.omitted)
	})
}

func TestBuild_Invariants(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent for unchanged input", func(t *testing.T) {
		source := &mapSource{attrs: map[string]Attributes{
			"id-admin": {"department": {"IT", "Security"}},
			"id-guest": {},
		}}
		opts := Options{IncludeEmptyAttributes: true}

		first := Build(ctx, roles("admin", "guest"), source, opts)
		second := Build(ctx, roles("admin", "guest"), source, opts)
		assert.True(t, first.Equal(second))
	})

	t.Run("mutating the source does not change a built value", func(t *testing.T) {
		values := []string{"IT", "Security"}
		attrs := Attributes{"department": values}
		source := &mapSource{attrs: map[string]Attributes{"id-admin": attrs}}

		got := Build(ctx, roles("admin"), source, Options{})

		values[0] = "HR"
		attrs["level"] = []string{"9"}
		delete(attrs, "department")

		assert.Equal(t, ClaimValue{"admin": {"department": {"IT", "Security"}}}, got)
	})

	t.Run("duplicate role names are processed once", func(t *testing.T) {
		source := &mapSource{attrs: map[string]Attributes{
			"first":  {"k": {"1"}},
			"second": {"k": {"2"}},
		}}
		dup := []Role{{ID: "first", Name: "admin"}, {ID: "second", Name: "admin"}}

		got := Build(ctx, dup, source, Options{})
		assert.Equal(t, ClaimValue{"admin": {"k": {"1"}}}, got)
		assert.Equal(t, 1, source.calls)
	})

	t.Run("values are neither sorted nor deduplicated", func(t *testing.T) {
		source := &mapSource{attrs: map[string]Attributes{"id-r": {"k": {"b", "a", "b"}}}}
		got := Build(ctx, roles("r"), source, Options{})
		assert.Equal(t, []string{"b", "a", "b"}, got["r"]["k"])
	})
}

type stubPredicate struct {
	allow map[string]bool
	err   error
}

func (p stubPredicate) Match(ctx context.Context, role Role, attrs RoleAttributeSet) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	return p.allow[role.Name], nil
}

func TestBuild_FilterAndPredicate(t *testing.T) {
	ctx := context.Background()
	source := &mapSource{attrs: map[string]Attributes{
		"id-admin": {"department": {"IT"}, "secret": {"x"}},
		"id-user":  {"department": {"Sales"}},
	}}

	t.Run("attribute filter drops names", func(t *testing.T) {
		got := Build(ctx, roles("admin", "user"), source, Options{
			AttributeFilter: claims.NewDenyListFilter([]string{"secret"}),
		})
		assert.Equal(t, ClaimValue{
			"admin": {"department": {"IT"}},
			"user":  {"department": {"Sales"}},
		}, got)
	})

	t.Run("filtered-out attributes can empty a role", func(t *testing.T) {
		got := Build(ctx, roles("admin", "user"), source, Options{
			AttributeFilter: claims.NewAllowListFilter([]string{"secret"}),
		})
		assert.Equal(t, ClaimValue{"admin": {"secret": {"x"}}}, got)
	})

	t.Run("predicate excludes roles", func(t *testing.T) {
		got := Build(ctx, roles("admin", "user"), source, Options{
			RolePredicate: stubPredicate{allow: map[string]bool{"user": true}},
		})
		assert.Equal(t, ClaimValue{"user": {"department": {"Sales"}}}, got)
	})

	t.Run("predicate error skips the role", func(t *testing.T) {
		probe := newRecordingProbe()
		got := Build(ctx, roles("admin"), source, Options{
			RolePredicate: stubPredicate{err: errors.New("no such key")},
			Probe:         probe,
		})
		assert.Empty(t, got)
		assert.Contains(t, probe.skipped, "admin")
	})
}

func TestOutcomes(t *testing.T) {
	source := &mapSource{
		attrs: map[string]Attributes{"id-a": {"k": {"v"}}, "id-b": {}},
		errs:  map[string]error{"id-c": errors.New("boom")},
	}

	outcomes := Outcomes(context.Background(), roles("a", "b", "c"), source, Options{})
	require.Len(t, outcomes, 3)

	assert.Equal(t, OutcomeIncluded, outcomes[0].Kind)
	assert.Equal(t, OutcomeOmitted, outcomes[1].Kind)
	assert.Equal(t, OutcomeSkipped, outcomes[2].Kind)
	assert.Equal(t, "skipped", outcomes[2].Kind.String())

	assert.Equal(t, ClaimValue{"a": {"k": {"v"}}}, Fold(outcomes))
}
