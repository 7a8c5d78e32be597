package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/broncorec/campusrec/internal/model"
	"github.com/broncorec/campusrec/internal/store"
)

// MembershipService handles membership plans, purchase, and cancellation.
// At most one membership is active per user; re-purchasing while one is
// active returns the active membership unchanged.
type MembershipService struct {
	memberships store.MembershipStore
	now         func() time.Time
}

// NewMembershipService constructs a MembershipService. A nil now defaults
// to time.Now.
func NewMembershipService(memberships store.MembershipStore, now func() time.Time) *MembershipService {
	if now == nil {
		now = time.Now
	}
	return &MembershipService{memberships: memberships, now: now}
}

// Plans returns all purchasable plans.
func (s *MembershipService) Plans(ctx context.Context) ([]model.MembershipPlan, error) {
	return s.memberships.Plans(ctx)
}

// Active returns the actor's membership in force, or nil.
func (s *MembershipService) Active(ctx context.Context, actor model.Actor) (*model.Membership, error) {
	return s.memberships.ActiveFor(ctx, actor.UserID, s.now())
}

// Purchase records a membership purchase for the given plan. Idempotent:
// an already-active membership is returned as-is.
func (s *MembershipService) Purchase(ctx context.Context, actor model.Actor, planID string) (*model.Membership, error) {
	if planID == "" {
		return nil, fmt.Errorf("plan id is required")
	}
	plan, err := s.memberships.PlanByID(ctx, planID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}

	now := s.now().UTC()
	if active, err := s.memberships.ActiveFor(ctx, actor.UserID, now); err != nil {
		return nil, err
	} else if active != nil {
		return active, nil
	}

	membership := &model.Membership{
		ID:         uuid.New().String(),
		UserID:     actor.UserID,
		PlanID:     plan.ID,
		PriceCents: plan.PriceCents,
		StartsAt:   now,
		ExpiresAt:  now.AddDate(0, plan.DurationMonths, 0),
		CreatedAt:  now,
	}
	if err := s.memberships.Create(ctx, membership); err != nil {
		return nil, fmt.Errorf("purchase membership: %w", err)
	}
	return membership, nil
}

// CancelActive cancels the actor's active membership. Reports false when
// none was active (idempotent).
func (s *MembershipService) CancelActive(ctx context.Context, actor model.Actor) (bool, error) {
	return s.memberships.CancelActive(ctx, actor.UserID, s.now().UTC())
}
