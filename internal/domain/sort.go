/**
 * @description
 * Canonical result ordering for listing queries. Paid placement always wins:
 * featured listings that still have an active purchased-view target rank
 * first, then remaining featured, then premium, then VIP. Only inside a rank
 * does the caller-selected sort apply, with newest-first as the final
 * tie-break. The in-memory repository sorts with this comparator; the
 * Postgres repository mirrors it with a CASE ordering.
 */
package domain

import (
	"sort"
	"strings"
)

// Sort keys accepted by Filter.SortBy.
const (
	SortByCreatedAt = "created_at"
	SortByPrice     = "price"
	SortByViews     = "views"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// Filter narrows and orders a listing query. Soft-deleted listings are
// excluded unless IncludeDeleted is set.
type Filter struct {
	OwnerID        string
	StoreID        string
	AdType         AdType
	Query          string
	MinPrice       int64
	MaxPrice       int64
	SortBy         string
	SortOrder      string
	IncludeDeleted bool
	Page           int
	Limit          int
}

// placementRank buckets a listing by paid placement. Lower ranks first.
func placementRank(l *Listing) int {
	switch {
	case l.IsFeatured && l.TargetViews != nil:
		return 0
	case l.IsFeatured:
		return 1
	case l.IsPremium:
		return 2
	case l.IsVip:
		return 3
	}
	return 4
}

// SortListings orders listings in place by placement rank, then the selected
// sort, then newest-first.
func SortListings(listings []*Listing, sortBy, sortOrder string) {
	desc := sortOrder != SortAsc

	sort.SliceStable(listings, func(i, j int) bool {
		a, b := listings[i], listings[j]

		ra, rb := placementRank(a), placementRank(b)
		if ra != rb {
			return ra < rb
		}

		var ka, kb int64
		switch sortBy {
		case SortByPrice:
			ka, kb = a.Price, b.Price
		case SortByViews:
			ka, kb = a.Views, b.Views
		case SortByCreatedAt:
			ka, kb = a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano()
		}
		if ka != kb {
			if desc {
				return ka > kb
			}
			return ka < kb
		}

		return a.CreatedAt.After(b.CreatedAt)
	})
}

// Matches reports whether a listing satisfies the filter predicates.
// Ordering and pagination are handled separately.
func (f Filter) Matches(l *Listing) bool {
	if !f.IncludeDeleted && l.IsDeleted() {
		return false
	}
	if f.OwnerID != "" && l.OwnerID != f.OwnerID {
		return false
	}
	if f.StoreID != "" && (l.StoreID == nil || *l.StoreID != f.StoreID) {
		return false
	}
	if f.AdType != "" && l.AdType != f.AdType {
		return false
	}
	if f.MinPrice > 0 && l.Price < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && l.Price > f.MaxPrice {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(l.Title), q) &&
			!strings.Contains(strings.ToLower(l.Description), q) {
			return false
		}
	}
	return true
}
