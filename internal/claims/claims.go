package claims

import "maps"

// Claims is the claim set of a token under construction
type Claims map[string]any

// Copy returns a shallow copy of the claims
func (c Claims) Copy() Claims {
	if c == nil {
		return nil
	}
	out := make(Claims, len(c))
	maps.Copy(out, c)
	return out
}

// Merge copies every claim from other into c, overwriting existing keys
func (c Claims) Merge(other Claims) {
	maps.Copy(c, other)
}

// Has reports whether the claim is present
func (c Claims) Has(name string) bool {
	_, ok := c[name]
	return ok
}
