/**
 * @description
 * Core domain model for the listing lifecycle engine: the Listing record, its
 * promotion and auto-renewal state, and the pricing tables for paid upgrades.
 *
 * Promotion and auto-renewal are modelled as pointer-typed sub-records instead
 * of clusters of nullable columns: a nil *Promotion means no paid promotion is
 * active, a nil *AutoRenewal means auto-renewal is disabled. Field combinations
 * that were representable-but-invalid in the legacy schema (e.g. a paid renewal
 * without a grace end) cannot be constructed this way.
 */
package domain

import "time"

// AdType is the paid tier of a listing.
type AdType string

const (
	AdTypeFree     AdType = "free"
	AdTypeStandard AdType = "standard"
	AdTypePremium  AdType = "premium"
	AdTypeVIP      AdType = "vip"
	AdTypeFeatured AdType = "featured"
)

// Monetary amounts are stored in minor units (kobo/cents) as int64.
const (
	// MaxViewPurchase is the per-call ceiling on purchased view counts.
	MaxViewPurchase = 100_000

	// MaxWalletTransaction caps a single wallet debit or credit.
	MaxWalletTransaction int64 = 10_000_000

	// MaxWalletBalance caps the balance a credit may result in.
	MaxWalletBalance int64 = 1_000_000_000

	// RenewalGracePeriod is how long after expiry a paid renewal stays refundable.
	RenewalGracePeriod = 3 * 24 * time.Hour

	// PromotionGracePeriod is granted to non-store listings when a promotion
	// lapses; store listings revert immediately.
	PromotionGracePeriod = 3 * 24 * time.Hour

	// ExpiryWarningWindow is how close to expiry the "expiring soon"
	// notification starts firing.
	ExpiryWarningWindow = 3 // days

	// GraceWarningWindow is how close to a grace end the "grace period ending"
	// notification starts firing.
	GraceWarningWindow = 24 * time.Hour
)

// Promotion is an active paid upgrade on a listing.
// GraceEndDate is nil for store listings: they revert the moment the
// promotion lapses, with no grace window.
type Promotion struct {
	Tier         AdType     `json:"tier"`
	EndDate      time.Time  `json:"end_date"`
	GraceEndDate *time.Time `json:"grace_end_date,omitempty"`
}

// InGrace reports whether the promotion has lapsed but is still inside its
// grace window at the given instant.
func (p *Promotion) InGrace(now time.Time) bool {
	if p == nil || p.GraceEndDate == nil {
		return false
	}
	return now.After(p.EndDate) && !now.After(*p.GraceEndDate)
}

// AutoRenewal is a standing paid arrangement to re-extend a listing at expiry.
// A non-nil value always carries its price and grace end, so the legacy
// "paid implies price and grace end are set" invariant holds by construction.
type AutoRenewal struct {
	PackageID   string    `json:"package_id"`
	Price       int64     `json:"price"`
	Paid        bool      `json:"paid"`
	Used        bool      `json:"used"`
	PaymentDate time.Time `json:"payment_date"`
	GraceEnd    time.Time `json:"grace_end"`
	NextRenewal time.Time `json:"next_renewal"`
}

// Refundable reports whether disabling at the given instant refunds the charge.
func (a *AutoRenewal) Refundable(now time.Time) bool {
	if a == nil {
		return false
	}
	return a.Paid && !a.Used && !now.After(a.GraceEnd)
}

// CreativeEffect is a cosmetic add-on with its own expiry, aged by the sweep.
type CreativeEffect struct {
	Name     string    `json:"name"`
	EndDate  time.Time `json:"end_date"`
	IsActive bool      `json:"is_active"`
}

// Listing is the canonical listing record.
type Listing struct {
	ID          string  `json:"id"`
	OwnerID     string  `json:"owner_id"`
	StoreID     *string `json:"store_id,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Price       int64   `json:"price"`

	// TermDays is the original term in whole days, fixed at creation.
	// Renewals move ExpiresAt but never the term the renewal tiers
	// bucket on.
	TermDays int `json:"term_days"`

	AdType     AdType `json:"ad_type"`
	IsPremium  bool   `json:"is_premium"`
	IsFeatured bool   `json:"is_featured"`
	IsVip      bool   `json:"is_vip"`

	Views          int64  `json:"views"`
	PurchasedViews int64  `json:"purchased_views"`
	TargetViews    *int64 `json:"target_views,omitempty"`

	Promotion       *Promotion       `json:"promotion,omitempty"`
	AutoRenewal     *AutoRenewal     `json:"auto_renewal,omitempty"`
	CreativeEffects []CreativeEffect `json:"creative_effects,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the listing has been soft-deleted. A deleted
// listing accepts no further promotion, view or auto-renewal mutation.
func (l *Listing) IsDeleted() bool {
	return l.DeletedAt != nil
}

// IsStoreListing reports whether the listing belongs to a storefront, which
// removes promotion grace-period eligibility.
func (l *Listing) IsStoreListing() bool {
	return l.StoreID != nil && *l.StoreID != ""
}

// DaysRemaining is the number of whole-or-partial days until expiry, i.e.
// ceil(expiresAt - now in days). Zero or negative means hard-expired.
func (l *Listing) DaysRemaining(now time.Time) int {
	diff := l.ExpiresAt.Sub(now)
	days := diff / (24 * time.Hour)
	if diff%(24*time.Hour) > 0 {
		days++
	}
	return int(days)
}

// ListingPatch is a partial update applied through the repository. Nil fields
// are left untouched; an all-nil patch is treated as empty and ignored.
type ListingPatch struct {
	Title       *string
	Description *string
	Price       *int64
}

// IsEmpty reports whether the patch carries no changes.
func (p ListingPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Price == nil
}

// RenewalPackage is a purchasable auto-renewal tier.
type RenewalPackage struct {
	ID           string `json:"id"`
	DurationDays int    `json:"duration_days"`
	Price        int64  `json:"price"`
}

// Duration is the package term as a time.Duration.
func (p RenewalPackage) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}

// Standard renewal tiers. Listings with an original term of 25-35 days renew
// on the 30-day tier, 10-20 days on the 14-day tier; anything else keeps the
// tier it already has.
var (
	RenewalPackage30 = RenewalPackage{ID: "standard-30", DurationDays: 30, Price: 500}
	RenewalPackage14 = RenewalPackage{ID: "standard-14", DurationDays: 14, Price: 300}
)

// RenewalPackageByID resolves a known renewal package.
func RenewalPackageByID(id string) (RenewalPackage, bool) {
	switch id {
	case RenewalPackage30.ID:
		return RenewalPackage30, true
	case RenewalPackage14.ID:
		return RenewalPackage14, true
	}
	return RenewalPackage{}, false
}

// RenewalPackageForTerm maps an original listing term to its renewal tier.
// The bucket boundaries are fixed and non-overlapping.
func RenewalPackageForTerm(termDays int) (RenewalPackage, bool) {
	switch {
	case termDays >= 25 && termDays <= 35:
		return RenewalPackage30, true
	case termDays >= 10 && termDays <= 20:
		return RenewalPackage14, true
	}
	return RenewalPackage{}, false
}
