/**
 * @description
 * Auto-renewal billing: charge-on-enable, refund-on-disable within the grace
 * window, and the explicit renewal path that redeems a paid renewal once its
 * grace lapses. The sweep itself never extends a listing's expiry.
 */
package app

import (
	"context"
	"fmt"

	"github.com/adverto/listing-service/internal/domain"
)

// EnableAutoRenewal charges the owner for the renewal tier matching the
// listing's original term and arms auto-renewal. The balance check and the
// debit are a single atomic wallet operation, so an insufficient balance
// leaves everything untouched.
func (s *Service) EnableAutoRenewal(ctx context.Context, listingID string) error {
	unlock := s.listingLocks.Lock(listingID)
	defer unlock()

	l, err := s.repo.Get(ctx, listingID)
	if err != nil {
		return fmt.Errorf("enable auto-renewal: %w", err)
	}
	if l.IsDeleted() {
		return fmt.Errorf("%w: listing %s is deleted", domain.ErrStateConflict, listingID)
	}
	if l.AutoRenewal != nil {
		return fmt.Errorf("%w: auto-renewal already enabled for %s", domain.ErrStateConflict, listingID)
	}

	pkg, ok := domain.RenewalPackageForTerm(l.TermDays)
	if !ok {
		return fmt.Errorf("%w: no renewal package for a %d-day term", domain.ErrValidation, l.TermDays)
	}

	if err := s.wallet.Debit(ctx, l.OwnerID, pkg.Price); err != nil {
		return fmt.Errorf("charge auto-renewal: %w", err)
	}

	now := s.now()
	graceEnd := l.ExpiresAt.Add(domain.RenewalGracePeriod)
	l.AutoRenewal = &domain.AutoRenewal{
		PackageID:   pkg.ID,
		Price:       pkg.Price,
		Paid:        true,
		Used:        false,
		PaymentDate: now,
		GraceEnd:    graceEnd,
		NextRenewal: graceEnd.Add(pkg.Duration()),
	}
	l.UpdatedAt = now

	if err := s.repo.Save(ctx, l); err != nil {
		if refundErr := s.wallet.Credit(ctx, l.OwnerID, pkg.Price); refundErr != nil {
			s.logger.Error("failed to refund after auto-renewal commit failure",
				"listing_id", listingID, "owner_id", l.OwnerID, "amount", pkg.Price, "error", refundErr)
		}
		return fmt.Errorf("commit auto-renewal: %w", err)
	}

	s.events.Emit(domain.NewEvent(
		domain.EventAutoRenewalEnabled,
		l.ID,
		l.OwnerID,
		"Auto-renewal enabled",
		fmt.Sprintf("Your listing %q will renew on the %s package.", l.Title, pkg.ID),
		now,
	))

	s.logger.Info("auto-renewal enabled",
		"listing_id", l.ID, "package_id", pkg.ID, "price", pkg.Price, "grace_end", graceEnd)
	return nil
}

// DisableAutoRenewal clears auto-renewal state. If the charge is still
// unused and inside the grace window, the full price is refunded to the
// wallet balance. Refunds never land in the bonus balance, even when bonus
// funded part of the original charge.
func (s *Service) DisableAutoRenewal(ctx context.Context, listingID string) error {
	unlock := s.listingLocks.Lock(listingID)
	defer unlock()

	l, err := s.repo.Get(ctx, listingID)
	if err != nil {
		return fmt.Errorf("disable auto-renewal: %w", err)
	}
	if l.IsDeleted() {
		return fmt.Errorf("%w: listing %s is deleted", domain.ErrStateConflict, listingID)
	}
	if l.AutoRenewal == nil {
		return fmt.Errorf("%w: auto-renewal not enabled for %s", domain.ErrStateConflict, listingID)
	}

	now := s.now()
	renewal := l.AutoRenewal
	refunded := false

	if renewal.Refundable(now) {
		if err := s.wallet.Credit(ctx, l.OwnerID, renewal.Price); err != nil {
			return fmt.Errorf("refund auto-renewal: %w", err)
		}
		refunded = true
	}

	l.AutoRenewal = nil
	l.UpdatedAt = now

	if err := s.repo.Save(ctx, l); err != nil {
		return fmt.Errorf("commit auto-renewal disable: %w", err)
	}

	if refunded {
		s.events.Emit(domain.NewEvent(
			domain.EventAutoRenewalRefunded,
			l.ID,
			l.OwnerID,
			"Auto-renewal refunded",
			fmt.Sprintf("The %d charge for %q was refunded to your wallet.", renewal.Price, l.Title),
			now,
		))
	}
	s.events.Emit(domain.NewEvent(
		domain.EventAutoRenewalDisabled,
		l.ID,
		l.OwnerID,
		"Auto-renewal disabled",
		fmt.Sprintf("Auto-renewal was turned off for %q.", l.Title),
		now,
	))

	s.logger.Info("auto-renewal disabled",
		"listing_id", l.ID, "refunded", refunded)
	return nil
}

// RenewListing redeems a paid, unused auto-renewal once its grace window has
// lapsed, extending the listing to the scheduled next term end. This is the
// only path that ever extends ExpiresAt.
func (s *Service) RenewListing(ctx context.Context, listingID string) error {
	unlock := s.listingLocks.Lock(listingID)
	defer unlock()

	l, err := s.repo.Get(ctx, listingID)
	if err != nil {
		return fmt.Errorf("renew listing: %w", err)
	}
	if l.IsDeleted() {
		return fmt.Errorf("%w: listing %s is deleted", domain.ErrStateConflict, listingID)
	}

	now := s.now()
	renewal := l.AutoRenewal
	switch {
	case renewal == nil || !renewal.Paid:
		return fmt.Errorf("%w: no paid renewal on %s", domain.ErrStateConflict, listingID)
	case renewal.Used:
		return fmt.Errorf("%w: renewal already redeemed for %s", domain.ErrStateConflict, listingID)
	case !now.After(renewal.GraceEnd):
		return fmt.Errorf("%w: renewal for %s is still refundable until %s",
			domain.ErrStateConflict, listingID, renewal.GraceEnd.Format("2006-01-02"))
	}

	l.ExpiresAt = renewal.NextRenewal
	renewal.Used = true
	l.UpdatedAt = now

	if err := s.repo.Save(ctx, l); err != nil {
		return fmt.Errorf("commit renewal: %w", err)
	}

	s.events.Emit(domain.NewEvent(
		domain.EventListingRenewed,
		l.ID,
		l.OwnerID,
		"Listing renewed",
		fmt.Sprintf("Your listing %q was renewed until %s.", l.Title, l.ExpiresAt.Format("2006-01-02")),
		now,
	))

	s.logger.Info("listing renewed", "listing_id", l.ID, "expires_at", l.ExpiresAt)
	return nil
}
