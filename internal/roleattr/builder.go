package roleattr

import (
	"context"
	"errors"
	"fmt"

	"github.com/project-kessel/rolemapper/internal/claims"
)

// ErrNilAttributeSource is reported for every role when Build is given no attribute source
var ErrNilAttributeSource = errors.New("no attribute source configured")

// Options controls how role attributes are turned into a claim value
type Options struct {
	// ClaimName is the claim the result will be attached under.
	// Only used for reporting; attachment is the caller's concern.
	ClaimName string

	// IncludeEmptyAttributes keeps roles without attributes and attributes without values
	IncludeEmptyAttributes bool

	// AttributeFilter restricts which attribute names are emitted.
	// Nil lets every attribute through.
	AttributeFilter claims.NameFilter

	// RolePredicate restricts which roles are emitted.
	// Nil accepts every role.
	RolePredicate RolePredicate

	// Probe receives per-role and per-build events. Nil disables reporting.
	Probe Probe
}

// OutcomeKind classifies what happened to one role during a build
type OutcomeKind int

const (
	// OutcomeIncluded means the role contributes an entry to the claim value
	OutcomeIncluded OutcomeKind = iota

	// OutcomeOmitted means the role was processed but has nothing to contribute
	OutcomeOmitted

	// OutcomeSkipped means the role could not be processed
	OutcomeSkipped
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeIncluded:
		return "included"
	case OutcomeOmitted:
		return "omitted"
	case OutcomeSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of processing one role
type Outcome struct {
	Role       Role
	Kind       OutcomeKind
	Attributes RoleAttributeSet

	// Err is the reason a role was skipped
	Err error
}

// Build resolves the attributes of every role and assembles the claim value.
// Failures are confined to the role they occur on; Build itself never fails.
func Build(ctx context.Context, roles []Role, source AttributeSource, opts Options) ClaimValue {
	probe := opts.Probe
	if probe == nil {
		probe = NoOpProbe{}
	}

	outcomes := Outcomes(ctx, roles, source, opts)
	for _, o := range outcomes {
		switch o.Kind {
		case OutcomeSkipped:
			probe.RoleSkipped(o.Role, o.Err)
		case OutcomeOmitted:
			probe.RoleOmitted(o.Role)
		}
	}

	result := Fold(outcomes)
	probe.Built(opts.ClaimName, len(result))
	return result
}

// Outcomes processes each distinct role independently.
// Roles are deduplicated by name; the first occurrence wins.
func Outcomes(ctx context.Context, roles []Role, source AttributeSource, opts Options) []Outcome {
	seen := make(map[string]bool, len(roles))
	outcomes := make([]Outcome, 0, len(roles))
	for _, role := range roles {
		if seen[role.Name] {
			continue
		}
		seen[role.Name] = true
		outcomes = append(outcomes, resolve(ctx, role, source, opts))
	}
	return outcomes
}

// Fold keeps the included outcomes as the claim value
func Fold(outcomes []Outcome) ClaimValue {
	result := make(ClaimValue)
	for _, o := range outcomes {
		if o.Kind == OutcomeIncluded {
			result[o.Role.Name] = o.Attributes
		}
	}
	return result
}

func resolve(ctx context.Context, role Role, source AttributeSource, opts Options) (out Outcome) {
	out.Role = role

	// A panicking source is a lookup failure of this role, not of the build.
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Role: role, Kind: OutcomeSkipped, Err: fmt.Errorf("attribute lookup panicked: %v", r)}
		}
	}()

	if source == nil {
		return Outcome{Role: role, Kind: OutcomeSkipped, Err: ErrNilAttributeSource}
	}

	attrs, err := source.RoleAttributes(ctx, role)
	if err != nil {
		return Outcome{Role: role, Kind: OutcomeSkipped, Err: err}
	}

	filtered := filterAttributes(attrs, opts)
	if len(filtered) == 0 && !opts.IncludeEmptyAttributes {
		return Outcome{Role: role, Kind: OutcomeOmitted}
	}

	if opts.RolePredicate != nil {
		ok, err := opts.RolePredicate.Match(ctx, role, filtered)
		if err != nil {
			return Outcome{Role: role, Kind: OutcomeSkipped, Err: fmt.Errorf("role predicate: %w", err)}
		}
		if !ok {
			return Outcome{Role: role, Kind: OutcomeOmitted}
		}
	}

	return Outcome{Role: role, Kind: OutcomeIncluded, Attributes: filtered}
}

// filterAttributes copies the attributes that survive the empty-value policy and name filter.
// A nil mapping yields an empty set.
func filterAttributes(attrs Attributes, opts Options) RoleAttributeSet {
	filtered := make(RoleAttributeSet, len(attrs))
	for name, values := range attrs {
		if values == nil {
			continue
		}
		if len(values) == 0 && !opts.IncludeEmptyAttributes {
			continue
		}
		if opts.AttributeFilter != nil && !opts.AttributeFilter.Allows(name) {
			continue
		}
		copied := make([]string, len(values))
		copy(copied, values)
		filtered[name] = copied
	}
	return filtered
}
