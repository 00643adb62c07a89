/**
 * @description
 * In-memory implementations of the listing repository, wallet ledger and
 * unused-view carryover ledger. These back the service in tests and in
 * local mode (no DATABASE_URL); the Postgres implementations mirror the
 * same contracts.
 *
 * All three are safe for concurrent use. Records are copied on the way in
 * and out so callers can never mutate stored state without going through
 * a write method.
 */
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/adverto/listing-service/internal/domain"
)

// MemoryRepository is a mutex-guarded canonical listing collection.
type MemoryRepository struct {
	mu       sync.RWMutex
	listings map[string]*domain.Listing
	logger   *slog.Logger
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository(logger *slog.Logger) *MemoryRepository {
	return &MemoryRepository{
		listings: make(map[string]*domain.Listing),
		logger:   logger,
	}
}

func cloneListing(l *domain.Listing) *domain.Listing {
	c := *l
	if l.StoreID != nil {
		v := *l.StoreID
		c.StoreID = &v
	}
	if l.TargetViews != nil {
		v := *l.TargetViews
		c.TargetViews = &v
	}
	if l.DeletedAt != nil {
		v := *l.DeletedAt
		c.DeletedAt = &v
	}
	if l.Promotion != nil {
		p := *l.Promotion
		if l.Promotion.GraceEndDate != nil {
			g := *l.Promotion.GraceEndDate
			p.GraceEndDate = &g
		}
		c.Promotion = &p
	}
	if l.AutoRenewal != nil {
		a := *l.AutoRenewal
		c.AutoRenewal = &a
	}
	if l.CreativeEffects != nil {
		c.CreativeEffects = make([]domain.CreativeEffect, len(l.CreativeEffects))
		copy(c.CreativeEffects, l.CreativeEffects)
	}
	return &c
}

// Create inserts a listing. A duplicate ID is treated as an idempotent
// update of the existing row. Missing required fields are rejected.
func (r *MemoryRepository) Create(ctx context.Context, l *domain.Listing) error {
	if l.ID == "" || l.Title == "" || l.OwnerID == "" {
		return domain.ErrValidation
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listings[l.ID]; ok {
		r.logger.Warn("create on existing listing, updating instead", "listing_id", l.ID)
	}
	r.listings[l.ID] = cloneListing(l)
	return nil
}

// Get returns a copy of the listing, soft-deleted or not.
func (r *MemoryRepository) Get(ctx context.Context, id string) (*domain.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.listings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneListing(l), nil
}

// Save replaces a full listing record. The listing must already exist.
func (r *MemoryRepository) Save(ctx context.Context, l *domain.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listings[l.ID]; !ok {
		return domain.ErrNotFound
	}
	r.listings[l.ID] = cloneListing(l)
	return nil
}

// UpdateFields applies a partial update. An absent listing or an empty patch
// is a warned no-op; it never creates a record.
func (r *MemoryRepository) UpdateFields(ctx context.Context, id string, patch domain.ListingPatch) error {
	if patch.IsEmpty() {
		r.logger.Warn("empty patch ignored", "listing_id", id)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[id]
	if !ok {
		r.logger.Warn("update on absent listing ignored", "listing_id", id)
		return nil
	}

	if patch.Title != nil {
		l.Title = *patch.Title
	}
	if patch.Description != nil {
		l.Description = *patch.Description
	}
	if patch.Price != nil {
		l.Price = *patch.Price
	}
	l.UpdatedAt = time.Now()
	return nil
}

// SoftDelete stamps DeletedAt and keeps the row. Repeated deletes keep the
// original timestamp.
func (r *MemoryRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[id]
	if !ok {
		return domain.ErrNotFound
	}
	if l.DeletedAt == nil {
		l.DeletedAt = &at
	}
	return nil
}

// Query filters, orders and paginates listings. Soft-deleted rows are
// excluded unless the filter opts in.
func (r *MemoryRepository) Query(ctx context.Context, f domain.Filter) ([]*domain.Listing, error) {
	r.mu.RLock()
	matched := make([]*domain.Listing, 0)
	for _, l := range r.listings {
		if f.Matches(l) {
			matched = append(matched, cloneListing(l))
		}
	}
	r.mu.RUnlock()

	domain.SortListings(matched, f.SortBy, f.SortOrder)

	if f.Limit > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		offset := (page - 1) * f.Limit
		if offset >= len(matched) {
			return []*domain.Listing{}, nil
		}
		end := offset + f.Limit
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[offset:end]
	}
	return matched, nil
}

// ListActive returns every non-deleted listing, in no particular order.
// The reconciler sweep iterates over this set.
func (r *MemoryRepository) ListActive(ctx context.Context) ([]*domain.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Listing, 0, len(r.listings))
	for _, l := range r.listings {
		if l.DeletedAt == nil {
			out = append(out, cloneListing(l))
		}
	}
	return out, nil
}

// MemoryWallet holds wallet and bonus balances per user. Debits drain bonus
// before wallet; refund credits land in the wallet balance only.
type MemoryWallet struct {
	mu       sync.Mutex
	balances map[string]*walletBalance
}

type walletBalance struct {
	wallet int64
	bonus  int64
}

// NewMemoryWallet creates an empty wallet ledger.
func NewMemoryWallet() *MemoryWallet {
	return &MemoryWallet{balances: make(map[string]*walletBalance)}
}

// Seed sets a user's balances directly. Test and bootstrap helper.
func (w *MemoryWallet) Seed(userID string, wallet, bonus int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[userID] = &walletBalance{wallet: wallet, bonus: bonus}
}

func (w *MemoryWallet) account(userID string) *walletBalance {
	b, ok := w.balances[userID]
	if !ok {
		b = &walletBalance{}
		w.balances[userID] = b
	}
	return b
}

// Debit validates and charges an amount, draining bonus balance first.
// The balance check and the charge are a single critical section, so two
// concurrent debits for the same user cannot double-spend.
func (w *MemoryWallet) Debit(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 || amount > domain.MaxWalletTransaction {
		return domain.ErrValidation
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.account(userID)
	if b.bonus+b.wallet < amount {
		return domain.ErrInsufficientFunds
	}

	fromBonus := amount
	if fromBonus > b.bonus {
		fromBonus = b.bonus
	}
	b.bonus -= fromBonus
	b.wallet -= amount - fromBonus
	return nil
}

// Credit adds to the wallet balance, enforcing the per-transaction and
// resulting-balance ceilings.
func (w *MemoryWallet) Credit(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 || amount > domain.MaxWalletTransaction {
		return domain.ErrValidation
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.account(userID)
	if b.wallet+amount > domain.MaxWalletBalance {
		return domain.ErrValidation
	}
	b.wallet += amount
	return nil
}

// Balance returns the current wallet and bonus balances.
func (w *MemoryWallet) Balance(ctx context.Context, userID string) (wallet, bonus int64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.account(userID)
	return b.wallet, b.bonus, nil
}

// MemoryViewCredits is the unused-view carryover ledger: a per-user credit of
// paid-but-unconsumed views. Created implicitly on first credit; consumed
// read-and-zero exactly once.
type MemoryViewCredits struct {
	mu      sync.Mutex
	credits map[string]int64
}

// NewMemoryViewCredits creates an empty carryover ledger.
func NewMemoryViewCredits() *MemoryViewCredits {
	return &MemoryViewCredits{credits: make(map[string]int64)}
}

// Add credits unused views to a user, additive with any existing credit.
func (v *MemoryViewCredits) Add(ctx context.Context, userID string, n int64) error {
	if n <= 0 {
		return domain.ErrValidation
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.credits[userID] += n
	return nil
}

// Consume atomically reads and zeroes the user's credit. Concurrent callers
// see the credit exactly once; everyone else gets zero.
func (v *MemoryViewCredits) Consume(ctx context.Context, userID string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := v.credits[userID]
	if n > 0 {
		v.credits[userID] = 0
	}
	return n, nil
}

// Balance returns the current credit without consuming it.
func (v *MemoryViewCredits) Balance(ctx context.Context, userID string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.credits[userID], nil
}
