package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/adverto/listing-service/internal/domain"
	"github.com/adverto/listing-service/internal/store"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// capturedEvents records emitted events for assertions.
type capturedEvents struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *capturedEvents) Emit(e domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *capturedEvents) ofType(eventType string) []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Event
	for _, e := range c.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// memberDirectory is a fixed store membership table.
type memberDirectory map[string][]string

func (d memberDirectory) IsMember(ctx context.Context, storeID, userID string) (bool, error) {
	for _, id := range d[storeID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

type testEnv struct {
	svc     *Service
	repo    *store.MemoryRepository
	wallet  *store.MemoryWallet
	credits *store.MemoryViewCredits
	events  *capturedEvents

	mu  sync.Mutex
	now time.Time
}

func (e *testEnv) setNow(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = t
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{
		repo:    store.NewMemoryRepository(logger),
		wallet:  store.NewMemoryWallet(),
		credits: store.NewMemoryViewCredits(),
		events:  &capturedEvents{},
		now:     baseTime,
	}
	env.svc = NewService(
		env.repo,
		env.wallet,
		env.credits,
		env.events,
		NewSimulatedPaymentProcessor(0),
		memberDirectory{"store-1": {"owner-1"}},
		2,
		logger,
	)
	env.svc.now = func() time.Time {
		env.mu.Lock()
		defer env.mu.Unlock()
		return env.now
	}
	return env
}

func (e *testEnv) mustCreate(t *testing.T, in CreateListingInput) *domain.Listing {
	t.Helper()
	l, err := e.svc.CreateListing(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	return l
}

func TestCreateListingValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateListingInput
	}{
		{"missing owner", CreateListingInput{Title: "Bike", TermDays: 30}},
		{"missing title", CreateListingInput{OwnerID: "owner-1", TermDays: 30}},
		{"zero term", CreateListingInput{OwnerID: "owner-1", Title: "Bike"}},
		{"negative term", CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.svc.CreateListing(ctx, tt.in); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreateListingSetsTerm(t *testing.T) {
	env := newTestEnv(t)
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if got := l.ExpiresAt.Sub(l.CreatedAt); got != 30*24*time.Hour {
		t.Errorf("term = %v, want 30 days", got)
	}
	if l.AdType != domain.AdTypeFree {
		t.Errorf("ad type = %q, want free", l.AdType)
	}
	if l.IsFeatured || l.TargetViews != nil {
		t.Error("new listing without credit should not be featured")
	}
}

func TestCreateListingAppliesCarryoverCredit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.credits.Add(ctx, "owner-1", 70); err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if !l.IsFeatured {
		t.Error("listing with applied credit should be featured")
	}
	if l.PurchasedViews != 70 {
		t.Errorf("purchased views = %d, want 70", l.PurchasedViews)
	}
	if l.TargetViews == nil || *l.TargetViews != 70 {
		t.Errorf("target views = %v, want 70", l.TargetViews)
	}

	if balance, _ := env.credits.Balance(ctx, "owner-1"); balance != 0 {
		t.Errorf("ledger balance after transfer = %d, want 0", balance)
	}
	if got := env.events.ofType(domain.EventViewCreditApplied); len(got) != 1 {
		t.Errorf("view credit events = %d, want 1", len(got))
	}
}

func TestConcurrentCreateSpendsCreditOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.credits.Add(ctx, "owner-1", 50); err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]*domain.Listing, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, err := env.svc.CreateListing(ctx, CreateListingInput{
				OwnerID: "owner-1", Title: "Bike", TermDays: 30,
			})
			if err != nil {
				t.Errorf("CreateListing: %v", err)
				return
			}
			results[i] = l
		}(i)
	}
	wg.Wait()

	var granted int64
	for _, l := range results {
		if l != nil {
			granted += l.PurchasedViews
		}
	}
	if granted != 50 {
		t.Errorf("total granted views across creates = %d, want exactly 50", granted)
	}
	if balance, _ := env.credits.Balance(ctx, "owner-1"); balance != 0 {
		t.Errorf("ledger balance = %d, want 0", balance)
	}
}

func TestPurchaseViewsValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	for _, count := range []int64{0, -1, domain.MaxViewPurchase + 1} {
		if err := env.svc.PurchaseViews(ctx, l.ID, count); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("count %d: expected ErrValidation, got %v", count, err)
		}
	}
	if err := env.svc.PurchaseViews(ctx, "missing", 10); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing listing: expected ErrNotFound, got %v", err)
	}
}

func TestPurchaseViewsChargesAndFeatures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.wallet.Seed("owner-1", 1000, 0)
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if err := env.svc.PurchaseViews(ctx, l.ID, 100); err != nil {
		t.Fatalf("PurchaseViews: %v", err)
	}

	got, err := env.svc.GetListing(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetListing: %v", err)
	}
	if !got.IsFeatured || got.TargetViews == nil || *got.TargetViews != 100 {
		t.Errorf("after purchase: featured=%v target=%v, want featured with target 100", got.IsFeatured, got.TargetViews)
	}

	wallet, _, _ := env.wallet.Balance(ctx, "owner-1")
	if wallet != 800 {
		t.Errorf("wallet after 100 views at price 2 = %d, want 800", wallet)
	}
}

func TestPurchaseViewsInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.wallet.Seed("owner-1", 10, 0)
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if err := env.svc.PurchaseViews(ctx, l.ID, 100); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	got, _ := env.svc.GetListing(ctx, l.ID)
	if got.IsFeatured || got.TargetViews != nil {
		t.Error("failed purchase must leave listing untouched")
	}
	wallet, _, _ := env.wallet.Balance(ctx, "owner-1")
	if wallet != 10 {
		t.Errorf("wallet = %d, want untouched 10", wallet)
	}
}

func TestPurchaseViewsOverwritesTarget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.wallet.Seed("owner-1", 10_000, 0)
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if err := env.svc.PurchaseViews(ctx, l.ID, 1000); err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	// A second, smaller purchase recomputes the target from the live view
	// count rather than stacking on the previous one.
	if err := env.svc.PurchaseViews(ctx, l.ID, 10); err != nil {
		t.Fatalf("second purchase: %v", err)
	}

	got, _ := env.svc.GetListing(ctx, l.ID)
	if got.TargetViews == nil || *got.TargetViews != 10 {
		t.Errorf("target views = %v, want 10 (overwritten, not 1010)", got.TargetViews)
	}
	if got.PurchasedViews != 1010 {
		t.Errorf("purchased views = %d, want cumulative 1010", got.PurchasedViews)
	}
}

func TestPurchaseViewsOnDeletedListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.wallet.Seed("owner-1", 1000, 0)
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if err := env.svc.DeleteListing(ctx, l.ID); err != nil {
		t.Fatalf("DeleteListing: %v", err)
	}
	if err := env.svc.PurchaseViews(ctx, l.ID, 10); !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("expected ErrStateConflict on deleted listing, got %v", err)
	}
}

func TestIncrementViewCountClearsFeaturedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.wallet.Seed("owner-1", 1000, 0)
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if err := env.svc.PurchaseViews(ctx, l.ID, 3); err != nil {
		t.Fatalf("PurchaseViews: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := env.svc.IncrementViewCount(ctx, l.ID); err != nil {
			t.Fatalf("IncrementViewCount %d: %v", i, err)
		}
	}

	got, _ := env.svc.GetListing(ctx, l.ID)
	if got.Views != 5 {
		t.Errorf("views = %d, want 5", got.Views)
	}
	if got.IsFeatured || got.TargetViews != nil {
		t.Error("featured flag should drop once the target is reached")
	}
	if events := env.events.ofType(domain.EventFeaturedEnded); len(events) != 1 {
		t.Errorf("featured-ended events = %d, want exactly 1", len(events))
	}
}

func TestUpdateListingPatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", Price: 100, TermDays: 30})

	newTitle := "Mountain bike"
	if err := env.svc.UpdateListing(ctx, l.ID, domain.ListingPatch{Title: &newTitle}); err != nil {
		t.Fatalf("UpdateListing: %v", err)
	}

	got, _ := env.svc.GetListing(ctx, l.ID)
	if got.Title != "Mountain bike" {
		t.Errorf("title = %q, want %q", got.Title, "Mountain bike")
	}
	if got.Price != 100 {
		t.Errorf("price = %d, want untouched 100", got.Price)
	}

	// Empty patch and absent listing are tolerated no-ops.
	if err := env.svc.UpdateListing(ctx, l.ID, domain.ListingPatch{}); err != nil {
		t.Errorf("empty patch: %v", err)
	}
	if err := env.svc.UpdateListing(ctx, "missing", domain.ListingPatch{Title: &newTitle}); err != nil {
		t.Errorf("absent listing: %v", err)
	}
}

func TestDeleteListingIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if err := env.svc.DeleteListing(ctx, l.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	first, _ := env.svc.GetListing(ctx, l.ID)
	if first.DeletedAt == nil {
		t.Fatal("DeletedAt not set")
	}

	env.advance(time.Hour)
	if err := env.svc.DeleteListing(ctx, l.ID); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	second, _ := env.svc.GetListing(ctx, l.ID)
	if !second.DeletedAt.Equal(*first.DeletedAt) {
		t.Error("repeated delete must keep the original timestamp")
	}
}

func TestPromoteListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if err := env.svc.PromoteListing(ctx, l.ID, domain.AdTypePremium, 7); err != nil {
		t.Fatalf("PromoteListing: %v", err)
	}

	got, _ := env.svc.GetListing(ctx, l.ID)
	if !got.IsPremium || got.AdType != domain.AdTypePremium {
		t.Errorf("promoted listing: premium=%v ad_type=%q", got.IsPremium, got.AdType)
	}
	if got.Promotion == nil {
		t.Fatal("promotion state missing")
	}
	if want := baseTime.Add(7 * 24 * time.Hour); !got.Promotion.EndDate.Equal(want) {
		t.Errorf("promotion end = %v, want %v", got.Promotion.EndDate, want)
	}
	if got.Promotion.GraceEndDate == nil {
		t.Error("non-store promotion must carry a grace end date")
	}
}

func TestPromoteListingValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if err := env.svc.PromoteListing(ctx, l.ID, domain.AdType("gold"), 7); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown tier: expected ErrValidation, got %v", err)
	}
	if err := env.svc.PromoteListing(ctx, l.ID, domain.AdTypeVIP, 0); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("zero duration: expected ErrValidation, got %v", err)
	}
	if err := env.svc.PromoteListing(ctx, l.ID, domain.AdTypeVIP, 400); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("over-long duration: expected ErrValidation, got %v", err)
	}
}

func TestPromoteListingInStore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if err := env.svc.PromoteListingInStore(ctx, l.ID, "store-1", domain.AdTypeVIP, 7); err != nil {
		t.Fatalf("PromoteListingInStore: %v", err)
	}

	got, _ := env.svc.GetListing(ctx, l.ID)
	if !got.IsStoreListing() || *got.StoreID != "store-1" {
		t.Errorf("store id = %v, want store-1", got.StoreID)
	}
	if got.Promotion == nil || got.Promotion.GraceEndDate != nil {
		t.Error("store promotion must not carry a grace window")
	}
}

func TestPromoteListingInStoreRejectsNonMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-2", Title: "Bike", TermDays: 30})

	if err := env.svc.PromoteListingInStore(ctx, l.ID, "store-1", domain.AdTypeVIP, 7); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for non-member, got %v", err)
	}
}

func TestApplyCreativeEffects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	effects := []domain.CreativeEffect{{Name: "highlight", EndDate: baseTime.Add(48 * time.Hour)}}
	if err := env.svc.ApplyCreativeEffects(ctx, l.ID, effects); err != nil {
		t.Fatalf("ApplyCreativeEffects: %v", err)
	}

	got, _ := env.svc.GetListing(ctx, l.ID)
	if len(got.CreativeEffects) != 1 || !got.CreativeEffects[0].IsActive {
		t.Errorf("effects = %+v, want one active effect", got.CreativeEffects)
	}

	past := []domain.CreativeEffect{{Name: "highlight", EndDate: baseTime.Add(-time.Hour)}}
	if err := env.svc.ApplyCreativeEffects(ctx, l.ID, past); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("past end date: expected ErrValidation, got %v", err)
	}
	if err := env.svc.ApplyCreativeEffects(ctx, l.ID, nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("no effects: expected ErrValidation, got %v", err)
	}
}
