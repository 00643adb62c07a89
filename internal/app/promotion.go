/**
 * @description
 * Paid promotion: upgrading a listing to a premium/vip/featured tier for a
 * fixed term. The charge goes through the payment processor (an awaited
 * external call); the state transition out of Promoted happens only in the
 * reconciler sweep. Non-store listings get a grace window after the
 * promotion lapses; store listings revert immediately.
 */
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adverto/listing-service/internal/domain"
)

// Per-day promotion rates by tier, in minor units.
var promotionDayRates = map[domain.AdType]int64{
	domain.AdTypePremium:  100,
	domain.AdTypeVIP:      150,
	domain.AdTypeFeatured: 80,
}

const maxPromotionDays = 365

// PromoteListing purchases a promotion tier for a listing. The listing keeps
// the tier until the reconciler reverts it after the end date (plus grace
// for non-store listings).
func (s *Service) PromoteListing(ctx context.Context, listingID string, tier domain.AdType, durationDays int) error {
	return s.promote(ctx, listingID, "", tier, durationDays)
}

// PromoteListingInStore promotes a listing as part of a storefront. Store
// membership is verified against the directory, and store promotions carry
// no grace period.
func (s *Service) PromoteListingInStore(ctx context.Context, listingID, storeID string, tier domain.AdType, durationDays int) error {
	if storeID == "" {
		return fmt.Errorf("%w: store_id is required", domain.ErrValidation)
	}
	return s.promote(ctx, listingID, storeID, tier, durationDays)
}

func (s *Service) promote(ctx context.Context, listingID, storeID string, tier domain.AdType, durationDays int) error {
	rate, ok := promotionDayRates[tier]
	if !ok {
		return fmt.Errorf("%w: unknown promotion tier %q", domain.ErrValidation, tier)
	}
	if durationDays <= 0 || durationDays > maxPromotionDays {
		return fmt.Errorf("%w: duration must be between 1 and %d days", domain.ErrValidation, maxPromotionDays)
	}

	unlock := s.listingLocks.Lock(listingID)
	defer unlock()

	l, err := s.repo.Get(ctx, listingID)
	if err != nil {
		return fmt.Errorf("promote: %w", err)
	}
	if l.IsDeleted() {
		return fmt.Errorf("%w: listing %s is deleted", domain.ErrStateConflict, listingID)
	}

	if storeID != "" {
		member, err := s.stores.IsMember(ctx, storeID, l.OwnerID)
		if err != nil {
			return fmt.Errorf("store membership lookup: %w", err)
		}
		if !member {
			return fmt.Errorf("%w: owner %s is not a member of store %s", domain.ErrValidation, l.OwnerID, storeID)
		}
		l.StoreID = &storeID
	}

	amount := rate * int64(durationDays)
	reference := fmt.Sprintf("promo:%s:%s", listingID, uuid.NewString())
	if err := s.payments.Process(ctx, l.OwnerID, amount, reference); err != nil {
		return fmt.Errorf("promotion payment: %w", err)
	}

	now := s.now()
	promo := &domain.Promotion{
		Tier:    tier,
		EndDate: now.Add(time.Duration(durationDays) * 24 * time.Hour),
	}
	if !l.IsStoreListing() {
		grace := promo.EndDate.Add(domain.PromotionGracePeriod)
		promo.GraceEndDate = &grace
	}

	l.IsPremium = tier == domain.AdTypePremium
	l.IsVip = tier == domain.AdTypeVIP
	l.IsFeatured = l.IsFeatured || tier == domain.AdTypeFeatured
	l.AdType = tier
	l.Promotion = promo
	l.UpdatedAt = now

	if err := s.repo.Save(ctx, l); err != nil {
		return fmt.Errorf("commit promotion: %w", err)
	}

	s.events.Emit(domain.NewEvent(
		domain.EventListingPromoted,
		l.ID,
		l.OwnerID,
		"Listing promoted",
		fmt.Sprintf("Your listing %q is now %s until %s.", l.Title, tier, promo.EndDate.Format("2006-01-02")),
		now,
	))

	s.logger.Info("listing promoted",
		"listing_id", l.ID, "tier", string(tier), "duration_days", durationDays, "amount", amount)
	return nil
}
