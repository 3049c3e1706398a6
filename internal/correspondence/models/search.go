package models

import (
	"cmp"
	"slices"
	"strings"

	id "frontdesk/pkg/domain"
)

// Scope restricts a search by status.
type Scope string

const (
	ScopePending Scope = "pending"
	ScopeAll     Scope = "all"
)

// ParseScope defaults to pending.
func ParseScope(s string) Scope {
	if Scope(strings.ToLower(strings.TrimSpace(s))) == ScopeAll {
		return ScopeAll
	}
	return ScopePending
}

const (
	DefaultSearchLimit = 50
	MaxSearchLimit     = 200
)

// SearchQuery looks a record up by protocol, unit or resident-name prefix.
type SearchQuery struct {
	CondominiumID id.CondominiumID
	Term          string
	Scope         Scope
	// Unit restricts results to one unit, used for residents.
	Unit  string
	Limit int
}

func (q *SearchQuery) Normalize() {
	q.Term = strings.TrimSpace(q.Term)
	q.Unit = strings.TrimSpace(q.Unit)
	if q.Scope == "" {
		q.Scope = ScopePending
	}
	if q.Limit <= 0 {
		q.Limit = DefaultSearchLimit
	}
	if q.Limit > MaxSearchLimit {
		q.Limit = MaxSearchLimit
	}
}

// Match rank, lower is better.
const (
	rankProtocolExact = iota
	rankProtocolPrefix
	rankUnitExact
	rankUnitPrefix
	rankResidentPrefix
	rankNone
)

// Rank scores c against term. An empty term matches everything at the
// lowest positive rank.
func Rank(c *Correspondence, term string) int {
	if term == "" {
		return rankResidentPrefix
	}
	t := strings.ToLower(term)
	protocol := strings.ToLower(c.Protocol)
	unit := strings.ToLower(c.Recipient.Unit)
	switch {
	case protocol == t:
		return rankProtocolExact
	case strings.HasPrefix(protocol, t):
		return rankProtocolPrefix
	case unit == t:
		return rankUnitExact
	case strings.HasPrefix(unit, t):
		return rankUnitPrefix
	case residentMatches(c.Recipient.ResidentName, t):
		return rankResidentPrefix
	}
	return rankNone
}

// residentMatches checks the prefix of the full name and of every word.
func residentMatches(name, lowerTerm string) bool {
	name = strings.ToLower(name)
	if strings.HasPrefix(name, lowerTerm) {
		return true
	}
	for _, word := range strings.Fields(name) {
		if strings.HasPrefix(word, lowerTerm) {
			return true
		}
	}
	return false
}

// Matches applies scope, unit restriction and term.
func (q SearchQuery) Matches(c *Correspondence) bool {
	if c.CondominiumID != q.CondominiumID {
		return false
	}
	if q.Scope != ScopeAll && c.Status != StatusPending {
		return false
	}
	if q.Unit != "" && !strings.EqualFold(c.Recipient.Unit, q.Unit) {
		return false
	}
	return Rank(c, q.Term) != rankNone
}

// SortByRelevance orders exact protocol matches first, then by rank and
// newest arrival. It truncates to limit when limit > 0.
func SortByRelevance(items []*Correspondence, term string, limit int) []*Correspondence {
	slices.SortStableFunc(items, func(a, b *Correspondence) int {
		if c := cmp.Compare(Rank(a, term), Rank(b, term)); c != 0 {
			return c
		}
		return b.ArrivedAt.Compare(a.ArrivedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
