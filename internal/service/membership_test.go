package service

import (
	"context"
	"testing"

	"github.com/broncorec/campusrec/internal/model"
)

func TestMembershipPurchase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	member := model.Actor{UserID: "user-a"}

	m, err := env.memberships.Purchase(ctx, member, "plan-semester")
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if m.PriceCents != 24100 {
		t.Errorf("price: got %d, want 24100", m.PriceCents)
	}
	wantExpiry := m.StartsAt.AddDate(0, 4, 0)
	if !m.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expiry: got %v, want %v", m.ExpiresAt, wantExpiry)
	}

	active, err := env.memberships.Active(ctx, member)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active == nil || active.ID != m.ID {
		t.Fatalf("expected active membership %s, got %+v", m.ID, active)
	}
}

func TestMembershipPurchaseIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	member := model.Actor{UserID: "user-a"}

	first, err := env.memberships.Purchase(ctx, member, "plan-annual")
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	second, err := env.memberships.Purchase(ctx, member, "plan-semester")
	if err != nil {
		t.Fatalf("re-purchase: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("re-purchase created a second membership: %s vs %s", second.ID, first.ID)
	}
}

func TestMembershipPlanNotFound(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.memberships.Purchase(context.Background(), model.Actor{UserID: "user-a"}, "plan-gold"); err != ErrPlanNotFound {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
}

func TestMembershipCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	member := model.Actor{UserID: "user-a"}

	if _, err := env.memberships.Purchase(ctx, member, "plan-student-semester"); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	canceled, err := env.memberships.CancelActive(ctx, member)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !canceled {
		t.Fatal("expected canceled=true")
	}

	if active, _ := env.memberships.Active(ctx, member); active != nil {
		t.Fatalf("membership still active after cancel: %+v", active)
	}

	// Canceling again is a no-op.
	canceled, err = env.memberships.CancelActive(ctx, member)
	if err != nil {
		t.Fatalf("re-cancel: %v", err)
	}
	if canceled {
		t.Error("re-cancel reported canceled=true")
	}

	// A new purchase works after cancellation.
	if _, err := env.memberships.Purchase(ctx, member, "plan-semester"); err != nil {
		t.Fatalf("purchase after cancel: %v", err)
	}
}

func TestMembershipPlansSeeded(t *testing.T) {
	env := newTestEnv(t)
	plans, err := env.memberships.Plans(context.Background())
	if err != nil {
		t.Fatalf("plans: %v", err)
	}
	if len(plans) != 3 {
		t.Fatalf("expected 3 seeded plans, got %d", len(plans))
	}
}
