// Package access computes and applies per-user visibility scopes over the
// network -> church -> activity hierarchy.
package access

import (
	"fmt"
	"sort"
	"strings"
)

// ScopeSet is either unrestricted or an explicit set of IDs. The zero value
// is an empty explicit set, which matches nothing. An empty set is never
// widened to unrestricted; "no grants" means "no rows".
type ScopeSet struct {
	unrestricted bool
	ids          map[string]struct{}
}

// Unrestricted returns a scope that matches every row.
func Unrestricted() ScopeSet {
	return ScopeSet{unrestricted: true}
}

// IDSet returns an explicit scope over the given IDs. Duplicates collapse.
func IDSet(ids ...string) ScopeSet {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return ScopeSet{ids: set}
}

// IsUnrestricted reports whether the scope matches everything.
func (s ScopeSet) IsUnrestricted() bool { return s.unrestricted }

// IsEmpty reports whether the scope matches nothing.
func (s ScopeSet) IsEmpty() bool { return !s.unrestricted && len(s.ids) == 0 }

// Contains reports whether id is inside the scope.
func (s ScopeSet) Contains(id string) bool {
	if s.unrestricted {
		return true
	}
	_, ok := s.ids[id]
	return ok
}

// IDs returns the explicit members sorted, or nil when unrestricted.
func (s ScopeSet) IDs() []string {
	if s.unrestricted {
		return nil
	}
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Intersect narrows the scope to the requested filter IDs. Filtering an
// unrestricted scope yields exactly the filter; filtering an explicit scope
// keeps only members present in both.
func (s ScopeSet) Intersect(filter []string) ScopeSet {
	if s.unrestricted {
		return IDSet(filter...)
	}
	kept := make(map[string]struct{})
	for _, id := range filter {
		if _, ok := s.ids[id]; ok {
			kept[id] = struct{}{}
		}
	}
	return ScopeSet{ids: kept}
}

// Union merges two scopes.
func (s ScopeSet) Union(other ScopeSet) ScopeSet {
	if s.unrestricted || other.unrestricted {
		return Unrestricted()
	}
	merged := make(map[string]struct{}, len(s.ids)+len(other.ids))
	for id := range s.ids {
		merged[id] = struct{}{}
	}
	for id := range other.ids {
		merged[id] = struct{}{}
	}
	return ScopeSet{ids: merged}
}

// Predicate renders the scope as a SQL boolean expression over column,
// appending bind values to args and numbering placeholders from the current
// length. Unrestricted renders "true", the empty set renders "false", and
// an explicit set renders an IN list. The predicate must be applied before
// any aggregation so excluded rows never reach a GROUP BY.
func (s ScopeSet) Predicate(column string, args *[]any) string {
	if s.unrestricted {
		return "true"
	}
	if len(s.ids) == 0 {
		return "false"
	}
	ids := s.IDs()
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		*args = append(*args, id)
		placeholders[i] = fmt.Sprintf("$%d", len(*args))
	}
	return fmt.Sprintf("%s in (%s)", column, strings.Join(placeholders, ", "))
}

func (s ScopeSet) String() string {
	if s.unrestricted {
		return "unrestricted"
	}
	return fmt.Sprintf("{%s}", strings.Join(s.IDs(), ", "))
}

// Scope is the full visibility decision for one user, one set per axis of
// the hierarchy. Each axis already includes everything implied by grants on
// ancestors.
type Scope struct {
	Networks   ScopeSet
	Churches   ScopeSet
	Activities ScopeSet
}

// AllUnrestricted is the administrator scope.
func AllUnrestricted() Scope {
	return Scope{
		Networks:   Unrestricted(),
		Churches:   Unrestricted(),
		Activities: Unrestricted(),
	}
}
