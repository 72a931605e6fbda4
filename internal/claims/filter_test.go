package claims

import "testing"

func TestNameFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter NameFilter
		want   map[string]bool
	}{
		{
			name:   "allow list",
			filter: NewAllowListFilter([]string{"department"}),
			want:   map[string]bool{"department": true, "level": false},
		},
		{
			name:   "deny list",
			filter: NewDenyListFilter([]string{"level"}),
			want:   map[string]bool{"department": true, "level": false},
		},
		{
			name:   "empty allow list blocks everything",
			filter: NewAllowListFilter(nil),
			want:   map[string]bool{"department": false},
		},
		{
			name:   "passthrough",
			filter: &PassthroughFilter{},
			want:   map[string]bool{"department": true, "level": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for attr, want := range tt.want {
				if got := tt.filter.Allows(attr); got != want {
					t.Errorf("Allows(%q) = %v, want %v", attr, got, want)
				}
			}
		})
	}
}

func TestClaims_CopyAndMerge(t *testing.T) {
	original := Claims{"sub": "alice"}
	copied := original.Copy()
	copied["sub"] = "bob"

	if original["sub"] != "alice" {
		t.Errorf("copy mutated original: %v", original["sub"])
	}

	original.Merge(Claims{"azp": "portal", "sub": "carol"})
	if original["sub"] != "carol" || original["azp"] != "portal" {
		t.Errorf("unexpected merge result: %v", original)
	}

	if !original.Has("azp") || original.Has("aud") {
		t.Errorf("Has returned wrong answer for %v", original)
	}

	var nilClaims Claims
	if nilClaims.Copy() != nil {
		t.Error("copy of nil claims should be nil")
	}
}
