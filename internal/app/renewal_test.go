package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adverto/listing-service/internal/domain"
)

func TestEnableAutoRenewalBuckets(t *testing.T) {
	tests := []struct {
		name      string
		termDays  int
		wantPkg   string
		wantPrice int64
		wantErr   error
	}{
		{"30-day term", 30, "standard-30", 500, nil},
		{"lower edge of 30 bucket", 25, "standard-30", 500, nil},
		{"upper edge of 30 bucket", 35, "standard-30", 500, nil},
		{"14-day term", 14, "standard-14", 300, nil},
		{"lower edge of 14 bucket", 10, "standard-14", 300, nil},
		{"upper edge of 14 bucket", 20, "standard-14", 300, nil},
		{"between buckets", 22, "", 0, domain.ErrValidation},
		{"above both buckets", 60, "", 0, domain.ErrValidation},
		{"below both buckets", 5, "", 0, domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			env.wallet.Seed("owner-1", 1000, 0)
			l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: tt.termDays})

			err := env.svc.EnableAutoRenewal(ctx, l.ID)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				wallet, _, _ := env.wallet.Balance(ctx, "owner-1")
				if wallet != 1000 {
					t.Errorf("wallet = %d, want untouched 1000", wallet)
				}
				return
			}
			if err != nil {
				t.Fatalf("EnableAutoRenewal: %v", err)
			}

			got, _ := env.svc.GetListing(ctx, l.ID)
			if got.AutoRenewal == nil {
				t.Fatal("auto-renewal state missing")
			}
			if got.AutoRenewal.PackageID != tt.wantPkg {
				t.Errorf("package = %q, want %q", got.AutoRenewal.PackageID, tt.wantPkg)
			}
			if !got.AutoRenewal.Paid || got.AutoRenewal.Used {
				t.Errorf("paid=%v used=%v, want paid and unused", got.AutoRenewal.Paid, got.AutoRenewal.Used)
			}
			if want := got.ExpiresAt.Add(domain.RenewalGracePeriod); !got.AutoRenewal.GraceEnd.Equal(want) {
				t.Errorf("grace end = %v, want %v", got.AutoRenewal.GraceEnd, want)
			}

			wallet, _, _ := env.wallet.Balance(ctx, "owner-1")
			if wallet != 1000-tt.wantPrice {
				t.Errorf("wallet = %d, want %d", wallet, 1000-tt.wantPrice)
			}
		})
	}
}

func TestEnableAutoRenewalInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.wallet.Seed("owner-1", 100, 0)
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if err := env.svc.EnableAutoRenewal(ctx, l.ID); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	got, _ := env.svc.GetListing(ctx, l.ID)
	if got.AutoRenewal != nil {
		t.Error("failed charge must not arm auto-renewal")
	}
	wallet, _, _ := env.wallet.Balance(ctx, "owner-1")
	if wallet != 100 {
		t.Errorf("wallet = %d, want untouched 100", wallet)
	}
}

func TestEnableAutoRenewalAlreadyEnabled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.wallet.Seed("owner-1", 2000, 0)
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if err := env.svc.EnableAutoRenewal(ctx, l.ID); err != nil {
		t.Fatalf("first enable: %v", err)
	}
	if err := env.svc.EnableAutoRenewal(ctx, l.ID); !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}

	wallet, _, _ := env.wallet.Balance(ctx, "owner-1")
	if wallet != 1500 {
		t.Errorf("wallet = %d, want single charge leaving 1500", wallet)
	}
}

func TestEnableAutoRenewalDrainsBonusFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.wallet.Seed("owner-1", 400, 300)
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if err := env.svc.EnableAutoRenewal(ctx, l.ID); err != nil {
		t.Fatalf("EnableAutoRenewal: %v", err)
	}

	wallet, bonus, _ := env.wallet.Balance(ctx, "owner-1")
	if bonus != 0 || wallet != 200 {
		t.Errorf("wallet=%d bonus=%d, want bonus drained first (200, 0)", wallet, bonus)
	}
}

func TestDisableAutoRenewalRefundWindows(t *testing.T) {
	tests := []struct {
		name         string
		sinceExpiry  time.Duration
		wantRefunded bool
	}{
		{"one day into grace", 24 * time.Hour, true},
		{"last moment of grace", domain.RenewalGracePeriod, true},
		{"one day past grace", domain.RenewalGracePeriod + 24*time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			env.wallet.Seed("owner-1", 1000, 0)
			l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

			if err := env.svc.EnableAutoRenewal(ctx, l.ID); err != nil {
				t.Fatalf("EnableAutoRenewal: %v", err)
			}

			env.setNow(l.ExpiresAt.Add(tt.sinceExpiry))
			if err := env.svc.DisableAutoRenewal(ctx, l.ID); err != nil {
				t.Fatalf("DisableAutoRenewal: %v", err)
			}

			got, _ := env.svc.GetListing(ctx, l.ID)
			if got.AutoRenewal != nil {
				t.Error("auto-renewal must be cleared regardless of refund")
			}

			wallet, _, _ := env.wallet.Balance(ctx, "owner-1")
			wantWallet := int64(500)
			if tt.wantRefunded {
				wantWallet = 1000
			}
			if wallet != wantWallet {
				t.Errorf("wallet = %d, want %d", wallet, wantWallet)
			}

			refunds := env.events.ofType(domain.EventAutoRenewalRefunded)
			if tt.wantRefunded && len(refunds) != 1 {
				t.Errorf("refund events = %d, want 1", len(refunds))
			}
			if !tt.wantRefunded && len(refunds) != 0 {
				t.Errorf("refund events = %d, want 0", len(refunds))
			}
		})
	}
}

func TestDisableAutoRenewalRefundsToWalletOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// The charge is funded entirely from bonus; the refund still lands in
	// the wallet balance.
	env.wallet.Seed("owner-1", 0, 500)
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if err := env.svc.EnableAutoRenewal(ctx, l.ID); err != nil {
		t.Fatalf("EnableAutoRenewal: %v", err)
	}
	if err := env.svc.DisableAutoRenewal(ctx, l.ID); err != nil {
		t.Fatalf("DisableAutoRenewal: %v", err)
	}

	wallet, bonus, _ := env.wallet.Balance(ctx, "owner-1")
	if wallet != 500 || bonus != 0 {
		t.Errorf("wallet=%d bonus=%d, want refund of 500 in wallet and empty bonus", wallet, bonus)
	}
}

func TestDisableAutoRenewalOnDeletedListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.wallet.Seed("owner-1", 1000, 0)
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if err := env.svc.EnableAutoRenewal(ctx, l.ID); err != nil {
		t.Fatalf("EnableAutoRenewal: %v", err)
	}
	if err := env.svc.DeleteListing(ctx, l.ID); err != nil {
		t.Fatalf("DeleteListing: %v", err)
	}

	if err := env.svc.DisableAutoRenewal(ctx, l.ID); !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict on deleted listing, got %v", err)
	}

	// The rejected disable must neither refund nor clear the renewal state.
	wallet, _, _ := env.wallet.Balance(ctx, "owner-1")
	if wallet != 500 {
		t.Errorf("wallet = %d, want the charge kept (500)", wallet)
	}
	got, _ := env.svc.GetListing(ctx, l.ID)
	if got.AutoRenewal == nil {
		t.Error("renewal state must survive a rejected disable")
	}
}

func TestAutoRenewalBucketsOnOriginalTerm(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.wallet.Seed("owner-1", 1000, 0)
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if err := env.svc.EnableAutoRenewal(ctx, l.ID); err != nil {
		t.Fatalf("EnableAutoRenewal: %v", err)
	}
	armed, _ := env.svc.GetListing(ctx, l.ID)
	env.setNow(armed.AutoRenewal.GraceEnd.Add(time.Hour))
	if err := env.svc.RenewListing(ctx, l.ID); err != nil {
		t.Fatalf("RenewListing: %v", err)
	}
	if err := env.svc.DisableAutoRenewal(ctx, l.ID); err != nil {
		t.Fatalf("DisableAutoRenewal: %v", err)
	}

	// Renewal moved ExpiresAt, but re-enabling still buckets on the term
	// the listing was created with.
	if err := env.svc.EnableAutoRenewal(ctx, l.ID); err != nil {
		t.Fatalf("re-enable after renewal: %v", err)
	}
	got, _ := env.svc.GetListing(ctx, l.ID)
	if got.AutoRenewal == nil || got.AutoRenewal.PackageID != "standard-30" {
		t.Errorf("package after renewal = %+v, want standard-30", got.AutoRenewal)
	}
	wallet, _, _ := env.wallet.Balance(ctx, "owner-1")
	if wallet != 0 {
		t.Errorf("wallet = %d, want two 500 charges and no refund (0)", wallet)
	}
}

func TestDisableAutoRenewalNotEnabled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if err := env.svc.DisableAutoRenewal(ctx, l.ID); !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("expected ErrStateConflict, got %v", err)
	}
}

func TestRenewListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.wallet.Seed("owner-1", 1000, 0)
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if err := env.svc.EnableAutoRenewal(ctx, l.ID); err != nil {
		t.Fatalf("EnableAutoRenewal: %v", err)
	}

	// Inside the grace window the renewal is still refundable, not redeemable.
	env.setNow(l.ExpiresAt.Add(24 * time.Hour))
	if err := env.svc.RenewListing(ctx, l.ID); !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("renew inside grace: expected ErrStateConflict, got %v", err)
	}

	armed, _ := env.svc.GetListing(ctx, l.ID)
	env.setNow(armed.AutoRenewal.GraceEnd.Add(time.Hour))
	if err := env.svc.RenewListing(ctx, l.ID); err != nil {
		t.Fatalf("RenewListing: %v", err)
	}

	got, _ := env.svc.GetListing(ctx, l.ID)
	if !got.ExpiresAt.Equal(armed.AutoRenewal.NextRenewal) {
		t.Errorf("expires at = %v, want %v", got.ExpiresAt, armed.AutoRenewal.NextRenewal)
	}
	if got.AutoRenewal == nil || !got.AutoRenewal.Used {
		t.Error("redeemed renewal must be marked used")
	}

	// A used renewal cannot be redeemed again.
	if err := env.svc.RenewListing(ctx, l.ID); !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("second redeem: expected ErrStateConflict, got %v", err)
	}
	if events := env.events.ofType(domain.EventListingRenewed); len(events) != 1 {
		t.Errorf("renewed events = %d, want 1", len(events))
	}
}

func TestRenewListingWithoutPaidRenewal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	l := env.mustCreate(t, CreateListingInput{OwnerID: "owner-1", Title: "Bike", TermDays: 30})

	if err := env.svc.RenewListing(ctx, l.ID); !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("expected ErrStateConflict, got %v", err)
	}
}
