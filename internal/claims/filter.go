package claims

// NameFilter decides which attribute names may appear in an emitted claim
type NameFilter interface {
	// Allows reports whether the named attribute passes the filter
	Allows(name string) bool
}

// AllowListFilter only allows names in the allow list
type AllowListFilter struct {
	allowed map[string]bool
}

// NewAllowListFilter creates a new allow list filter
func NewAllowListFilter(names []string) *AllowListFilter {
	allowed := make(map[string]bool, len(names))
	for _, name := range names {
		allowed[name] = true
	}
	return &AllowListFilter{
		allowed: allowed,
	}
}

// Allows implements NameFilter
func (f *AllowListFilter) Allows(name string) bool {
	return f.allowed[name]
}

// DenyListFilter blocks names in the deny list
type DenyListFilter struct {
	denied map[string]bool
}

// NewDenyListFilter creates a new deny list filter
func NewDenyListFilter(names []string) *DenyListFilter {
	denied := make(map[string]bool, len(names))
	for _, name := range names {
		denied[name] = true
	}
	return &DenyListFilter{
		denied: denied,
	}
}

// Allows implements NameFilter
func (f *DenyListFilter) Allows(name string) bool {
	return !f.denied[name]
}

// PassthroughFilter lets every name through
type PassthroughFilter struct{}

// Allows implements NameFilter
func (f *PassthroughFilter) Allows(string) bool {
	return true
}
