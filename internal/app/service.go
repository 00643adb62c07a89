/**
 * @description
 * Core business logic for the listing lifecycle engine: listing CRUD with
 * carryover credit transfer, view purchases and featured targeting. The
 * Service owns the per-listing and per-user serialization that the legacy
 * single-threaded mutation queue provided implicitly.
 *
 * Paid promotion lives in promotion.go, auto-renewal billing in renewal.go
 * and the periodic sweep in reconciler.go.
 */
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/adverto/listing-service/internal/domain"
)

// Repository is the canonical listing collection the service mutates.
type Repository interface {
	Create(ctx context.Context, l *domain.Listing) error
	Get(ctx context.Context, id string) (*domain.Listing, error)
	Save(ctx context.Context, l *domain.Listing) error
	UpdateFields(ctx context.Context, id string, patch domain.ListingPatch) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	Query(ctx context.Context, f domain.Filter) ([]*domain.Listing, error)
	ListActive(ctx context.Context) ([]*domain.Listing, error)
}

// Wallet is the external wallet ledger. Debit validates the balance and
// charges atomically, draining bonus before wallet; Credit lands in the
// wallet balance only.
type Wallet interface {
	Debit(ctx context.Context, userID string, amount int64) error
	Credit(ctx context.Context, userID string, amount int64) error
	Balance(ctx context.Context, userID string) (wallet, bonus int64, err error)
}

// ViewCredits is the unused-view carryover ledger.
type ViewCredits interface {
	Add(ctx context.Context, userID string, n int64) error
	Consume(ctx context.Context, userID string) (int64, error)
	Balance(ctx context.Context, userID string) (int64, error)
}

// EventSink receives domain events for fire-and-forget delivery.
type EventSink interface {
	Emit(e domain.Event)
}

// StoreDirectory resolves storefront membership for in-store promotions.
type StoreDirectory interface {
	IsMember(ctx context.Context, storeID, userID string) (bool, error)
}

// Service orchestrates listing mutations against the repository and ledgers.
type Service struct {
	repo     Repository
	wallet   Wallet
	credits  ViewCredits
	events   EventSink
	payments PaymentProcessor
	stores   StoreDirectory
	logger   *slog.Logger

	// viewPrice is the charge per purchased view, in minor units.
	viewPrice int64

	listingLocks *keyedMutex
	userLocks    *keyedMutex

	now func() time.Time
}

// NewService wires the engine's collaborators together.
func NewService(
	repo Repository,
	wallet Wallet,
	credits ViewCredits,
	events EventSink,
	payments PaymentProcessor,
	stores StoreDirectory,
	viewPrice int64,
	logger *slog.Logger,
) *Service {
	if viewPrice <= 0 {
		viewPrice = 2
	}
	return &Service{
		repo:         repo,
		wallet:       wallet,
		credits:      credits,
		events:       events,
		payments:     payments,
		stores:       stores,
		viewPrice:    viewPrice,
		logger:       logger,
		listingLocks: newKeyedMutex(),
		userLocks:    newKeyedMutex(),
		now:          time.Now,
	}
}

// CreateListingInput is the submission payload for a new listing.
type CreateListingInput struct {
	ID          string  `json:"id,omitempty"`
	OwnerID     string  `json:"owner_id"`
	StoreID     *string `json:"store_id,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Price       int64   `json:"price"`
	TermDays    int     `json:"term_days"`
}

// CreateListing creates a listing and, if the owner holds an unused-view
// carryover credit, transfers it onto the new listing exactly as a view
// purchase would. The ledger read-and-zero is atomic, so a concurrent
// double-create cannot spend the credit twice.
func (s *Service) CreateListing(ctx context.Context, in CreateListingInput) (*domain.Listing, error) {
	if in.OwnerID == "" || in.Title == "" {
		return nil, fmt.Errorf("%w: owner_id and title are required", domain.ErrValidation)
	}
	if in.TermDays <= 0 {
		return nil, fmt.Errorf("%w: term_days must be positive", domain.ErrValidation)
	}

	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}

	now := s.now()
	listing := &domain.Listing{
		ID:          id,
		OwnerID:     in.OwnerID,
		StoreID:     in.StoreID,
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		TermDays:    in.TermDays,
		AdType:      domain.AdTypeFree,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Duration(in.TermDays) * 24 * time.Hour),
		UpdatedAt:   now,
	}

	unlock := s.userLocks.Lock(in.OwnerID)
	defer unlock()

	if err := s.repo.Create(ctx, listing); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}

	credit, err := s.credits.Consume(ctx, in.OwnerID)
	if err != nil {
		s.logger.Error("failed to consume view credit", "owner_id", in.OwnerID, "error", err)
		return listing, nil
	}
	if credit == 0 {
		return listing, nil
	}

	applyViewGrant(listing, credit)
	listing.UpdatedAt = now

	if err := s.repo.Save(ctx, listing); err != nil {
		// Hand the credit back rather than losing it.
		if addErr := s.credits.Add(ctx, in.OwnerID, credit); addErr != nil {
			s.logger.Error("failed to restore view credit after save failure",
				"owner_id", in.OwnerID, "credit", credit, "error", addErr)
		}
		return nil, fmt.Errorf("apply view credit: %w", err)
	}

	s.events.Emit(domain.NewEvent(
		domain.EventViewCreditApplied,
		listing.ID,
		in.OwnerID,
		"Unused views applied",
		fmt.Sprintf("%d unused views from a previous listing were applied to %q.", credit, listing.Title),
		now,
	))

	s.logger.Info("view credit transferred to new listing",
		"listing_id", listing.ID, "owner_id", in.OwnerID, "credit", credit)
	return listing, nil
}

// applyViewGrant applies purchased or carried-over views to a listing: the
// feature flag is raised and the target is recomputed from the current view
// count. A later, smaller grant deliberately overwrites a larger prior
// target; PurchasedViews stays cumulative for the expiry settlement.
func applyViewGrant(l *domain.Listing, count int64) {
	l.PurchasedViews += count
	l.IsFeatured = true
	target := l.Views + count
	l.TargetViews = &target
}

// GetListing fetches a single listing by ID.
func (s *Service) GetListing(ctx context.Context, id string) (*domain.Listing, error) {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get listing %s: %w", id, err)
	}
	return l, nil
}

// SearchListings queries active listings with the fixed placement ordering.
func (s *Service) SearchListings(ctx context.Context, f domain.Filter) ([]*domain.Listing, error) {
	return s.repo.Query(ctx, f)
}

// UpdateListing applies a partial update to editable fields.
func (s *Service) UpdateListing(ctx context.Context, id string, patch domain.ListingPatch) error {
	unlock := s.listingLocks.Lock(id)
	defer unlock()
	return s.repo.UpdateFields(ctx, id, patch)
}

// DeleteListing soft-deletes a listing. Expiration and deletion are
// independent: the sweep never deletes, and deletion is never reverted.
func (s *Service) DeleteListing(ctx context.Context, id string) error {
	unlock := s.listingLocks.Lock(id)
	defer unlock()

	if err := s.repo.SoftDelete(ctx, id, s.now()); err != nil {
		return fmt.Errorf("delete listing %s: %w", id, err)
	}
	s.logger.Info("listing soft-deleted", "listing_id", id)
	return nil
}

// PurchaseViews charges the owner's wallet for a block of views and holds
// the listing featured until the view target is met. The debit happens
// before the listing commit; a failed commit is compensated with a refund
// so a retry cannot double-charge.
func (s *Service) PurchaseViews(ctx context.Context, listingID string, count int64) error {
	if count <= 0 || count > domain.MaxViewPurchase {
		return fmt.Errorf("%w: view count must be between 1 and %d", domain.ErrValidation, domain.MaxViewPurchase)
	}

	unlock := s.listingLocks.Lock(listingID)
	defer unlock()

	l, err := s.repo.Get(ctx, listingID)
	if err != nil {
		return fmt.Errorf("purchase views: %w", err)
	}
	if l.IsDeleted() {
		return fmt.Errorf("%w: listing %s is deleted", domain.ErrStateConflict, listingID)
	}

	amount := count * s.viewPrice
	if err := s.wallet.Debit(ctx, l.OwnerID, amount); err != nil {
		return fmt.Errorf("charge view purchase: %w", err)
	}

	applyViewGrant(l, count)
	l.UpdatedAt = s.now()

	if err := s.repo.Save(ctx, l); err != nil {
		if refundErr := s.wallet.Credit(ctx, l.OwnerID, amount); refundErr != nil {
			s.logger.Error("failed to refund after view purchase commit failure",
				"listing_id", listingID, "owner_id", l.OwnerID, "amount", amount, "error", refundErr)
		}
		return fmt.Errorf("commit view purchase: %w", err)
	}

	s.logger.Info("views purchased",
		"listing_id", listingID, "count", count, "amount", amount, "target_views", *l.TargetViews)
	return nil
}

// IncrementViewCount records a single view. The featured target is checked
// on every increment, not only on the sweep, so the feature flag drops
// promptly once the purchased views are consumed.
func (s *Service) IncrementViewCount(ctx context.Context, listingID string) error {
	unlock := s.listingLocks.Lock(listingID)
	defer unlock()

	l, err := s.repo.Get(ctx, listingID)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	if l.IsDeleted() {
		return fmt.Errorf("%w: listing %s is deleted", domain.ErrStateConflict, listingID)
	}

	l.Views++

	if l.TargetViews != nil && l.Views >= *l.TargetViews {
		l.IsFeatured = false
		l.TargetViews = nil
		s.events.Emit(domain.NewEvent(
			domain.EventFeaturedEnded,
			l.ID,
			l.OwnerID,
			"Featured period ended",
			fmt.Sprintf("Your listing %q reached its purchased view target.", l.Title),
			s.now(),
		))
	}

	l.UpdatedAt = s.now()
	return s.repo.Save(ctx, l)
}

// ApplyCreativeEffects attaches cosmetic effects to a listing. Effects are
// aged out by the reconciler sweep once their end date passes.
func (s *Service) ApplyCreativeEffects(ctx context.Context, listingID string, effects []domain.CreativeEffect) error {
	if len(effects) == 0 {
		return fmt.Errorf("%w: no effects given", domain.ErrValidation)
	}
	now := s.now()
	for _, e := range effects {
		if e.Name == "" || !e.EndDate.After(now) {
			return fmt.Errorf("%w: effect needs a name and a future end date", domain.ErrValidation)
		}
	}

	unlock := s.listingLocks.Lock(listingID)
	defer unlock()

	l, err := s.repo.Get(ctx, listingID)
	if err != nil {
		return fmt.Errorf("apply effects: %w", err)
	}
	if l.IsDeleted() {
		return fmt.Errorf("%w: listing %s is deleted", domain.ErrStateConflict, listingID)
	}

	for _, e := range effects {
		e.IsActive = true
		l.CreativeEffects = append(l.CreativeEffects, e)
	}
	l.UpdatedAt = now
	return s.repo.Save(ctx, l)
}
