/**
 * @description
 * The promotion & expiration reconciler: a periodic sweep that ages every
 * non-deleted listing. It fires expiry warnings, hard-expires listings and
 * banks their unmet view targets into the carryover ledger, reverts lapsed
 * promotions (honoring the grace window for non-store listings) and retires
 * expired creative effects.
 *
 * A failure on one listing never aborts the sweep; errors are logged,
 * counted and the sweep moves on. Each listing is processed under the same
 * per-listing lock user mutations take, so the sweep and a concurrent
 * purchase can never interleave on one record.
 */
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adverto/listing-service/internal/domain"
)

// SweepMetrics receives reconciler observations. The prometheus collector
// implements it; tests pass nil and get a no-op.
type SweepMetrics interface {
	RecordSweep(d time.Duration)
	RecordSweepError()
	RecordListingExpired()
	RecordPromotionReverted()
	RecordViewCreditsCarried(n int64)
}

type noopSweepMetrics struct{}

func (noopSweepMetrics) RecordSweep(time.Duration)    {}
func (noopSweepMetrics) RecordSweepError()            {}
func (noopSweepMetrics) RecordListingExpired()        {}
func (noopSweepMetrics) RecordPromotionReverted()     {}
func (noopSweepMetrics) RecordViewCreditsCarried(int64) {}

// Reconciler runs the periodic lifecycle sweep over the service's listings.
type Reconciler struct {
	svc     *Service
	logger  *slog.Logger
	metrics SweepMetrics
}

// NewReconciler creates a sweep runner bound to the service's repository,
// ledgers and locks.
func NewReconciler(svc *Service, metrics SweepMetrics, logger *slog.Logger) *Reconciler {
	if metrics == nil {
		metrics = noopSweepMetrics{}
	}
	return &Reconciler{svc: svc, logger: logger, metrics: metrics}
}

// RunSweep processes every non-deleted listing once. It stops early only on
// context cancellation; per-listing failures are isolated.
func (r *Reconciler) RunSweep(ctx context.Context) error {
	start := r.svc.now()

	listings, err := r.svc.repo.ListActive(ctx)
	if err != nil {
		r.metrics.RecordSweepError()
		return fmt.Errorf("list listings for sweep: %w", err)
	}

	r.logger.Info("reconciler sweep starting", "listing_count", len(listings))

	var failures int
	for _, l := range listings {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := r.processListing(ctx, l.ID); err != nil {
			failures++
			r.metrics.RecordSweepError()
			r.logger.Error("sweep failed for listing", "listing_id", l.ID, "error", err)
		}
	}

	duration := time.Since(start)
	r.metrics.RecordSweep(duration)
	r.logger.Info("reconciler sweep finished",
		"listing_count", len(listings), "failures", failures, "duration_ms", duration.Milliseconds())
	return nil
}

// processListing applies every time-based transition to a single listing
// under its mutation lock, re-reading the record so the sweep never acts on
// a stale snapshot.
func (r *Reconciler) processListing(ctx context.Context, listingID string) error {
	unlock := r.svc.listingLocks.Lock(listingID)
	defer unlock()

	l, err := r.svc.repo.Get(ctx, listingID)
	if err != nil {
		return err
	}
	if l.IsDeleted() {
		return nil
	}

	now := r.svc.now()
	changed := false

	switch days := l.DaysRemaining(now); {
	case days <= 0:
		expired, err := r.hardExpire(ctx, l, now)
		if err != nil {
			return err
		}
		if expired {
			changed = true
		}
	case days <= domain.ExpiryWarningWindow:
		// Fires on every sweep while inside the window; downstream
		// consumers own any dedup.
		r.svc.events.Emit(domain.NewEvent(
			domain.EventListingExpiringSoon,
			l.ID,
			l.OwnerID,
			"Listing expiring soon",
			fmt.Sprintf("Your listing %q expires in %d day(s).", l.Title, days),
			now,
		))
	}

	if r.agePromotion(l, now) {
		changed = true
	}

	for i := range l.CreativeEffects {
		e := &l.CreativeEffects[i]
		if e.IsActive && now.After(e.EndDate) {
			e.IsActive = false
			changed = true
		}
	}

	if !changed {
		return nil
	}
	l.UpdatedAt = now
	return r.svc.repo.Save(ctx, l)
}

// hardExpire banks the unmet view target into the carryover ledger and
// clears the featured state. The listing row stays; expiration and deletion
// are independent concerns. A ledger failure leaves the listing unsettled
// so the next sweep retries the banking instead of destroying the credit.
// Returns whether the record changed.
func (r *Reconciler) hardExpire(ctx context.Context, l *domain.Listing, now time.Time) (bool, error) {
	if l.TargetViews == nil && !l.IsFeatured && l.PurchasedViews == 0 {
		// Already settled on a previous sweep.
		return false, nil
	}

	if l.TargetViews != nil && l.Views < *l.TargetViews {
		unused := *l.TargetViews - l.Views
		if err := r.svc.credits.Add(ctx, l.OwnerID, unused); err != nil {
			return false, fmt.Errorf("bank unused views: %w", err)
		}
		r.metrics.RecordViewCreditsCarried(unused)
		r.logger.Info("unused views carried over",
			"listing_id", l.ID, "owner_id", l.OwnerID, "unused", unused)
	}

	l.IsFeatured = false
	l.TargetViews = nil
	l.PurchasedViews = 0

	r.metrics.RecordListingExpired()
	r.svc.events.Emit(domain.NewEvent(
		domain.EventListingExpired,
		l.ID,
		l.OwnerID,
		"Listing expired",
		fmt.Sprintf("Your listing %q has expired.", l.Title),
		now,
	))
	return true, nil
}

// agePromotion handles a lapsed promotion: non-store listings sit in their
// grace window first (with an ending warning inside the final day), store
// listings revert immediately. Returns whether the record changed.
func (r *Reconciler) agePromotion(l *domain.Listing, now time.Time) bool {
	p := l.Promotion
	if p == nil || !now.After(p.EndDate) {
		return false
	}

	if !l.IsStoreListing() && p.GraceEndDate != nil {
		if p.InGrace(now) {
			if p.GraceEndDate.Sub(now) <= domain.GraceWarningWindow {
				r.svc.events.Emit(domain.NewEvent(
					domain.EventGracePeriodEnding,
					l.ID,
					l.OwnerID,
					"Grace period ending",
					fmt.Sprintf("The promotion on %q reverts within a day.", l.Title),
					now,
				))
			}
			return false
		}

		r.revertPromotion(l)
		r.svc.events.Emit(domain.NewEvent(
			domain.EventGracePeriodEnded,
			l.ID,
			l.OwnerID,
			"Grace period ended",
			fmt.Sprintf("The promotion on %q has been removed.", l.Title),
			now,
		))
		return true
	}

	r.revertPromotion(l)
	r.svc.events.Emit(domain.NewEvent(
		domain.EventPromotionEnded,
		l.ID,
		l.OwnerID,
		"Promotion ended",
		fmt.Sprintf("The promotion on %q has ended.", l.Title),
		now,
	))
	return true
}

func (r *Reconciler) revertPromotion(l *domain.Listing) {
	l.IsPremium = false
	l.IsFeatured = false
	l.IsVip = false
	l.AdType = domain.AdTypeFree
	l.Promotion = nil
	r.metrics.RecordPromotionReverted()
}
