// Package model defines the core domain types for the campus recreation
// registration service.
package model

import (
	"encoding/json"
	"time"
)

// RegistrationStatus is the lifecycle state of a Registration.
type RegistrationStatus string

const (
	StatusRegistered RegistrationStatus = "REGISTERED"
	StatusWaitlisted RegistrationStatus = "WAITLISTED"
	StatusCanceled   RegistrationStatus = "CANCELED"
	StatusCheckedIn  RegistrationStatus = "CHECKED_IN"
)

// HoldsSeat reports whether a registration in this status occupies one of
// the program's seats. CHECKED_IN still counts against capacity.
func (s RegistrationStatus) HoldsSeat() bool {
	return s == StatusRegistered || s == StatusCheckedIn
}

// Visibility controls whether a program is listed in the public catalog.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
)

// Program represents a schedulable event with finite or unlimited capacity.
type Program struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	Capacity    int        `json:"capacity"` // 0 means unlimited
	StartAt     time.Time  `json:"start_at"`
	EndAt       time.Time  `json:"end_at"`
	Visibility  Visibility `json:"visibility"`
	PublishAt   *time.Time `json:"publish_at"`
	UnpublishAt *time.Time `json:"unpublish_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Unlimited reports whether the program has no capacity limit.
func (p *Program) Unlimited() bool {
	return p.Capacity == 0
}

// RegistrationOpen reports whether the program accepts registrations at the
// given instant: publish_at <= now < unpublish_at, with nil bounds open.
func (p *Program) RegistrationOpen(now time.Time) bool {
	if p.PublishAt != nil && now.Before(*p.PublishAt) {
		return false
	}
	if p.UnpublishAt != nil && !now.Before(*p.UnpublishAt) {
		return false
	}
	return true
}

// Listed reports whether the program appears in the catalog for non-staff
// viewers. Unlisted programs stay reachable by direct link while open.
func (p *Program) Listed(now time.Time) bool {
	return p.Visibility == VisibilityPublic && p.RegistrationOpen(now)
}

// Registration represents a user's claim on a seat in a Program.
type Registration struct {
	ID               string             `json:"id"`
	ProgramID        string             `json:"program_id"`
	UserID           string             `json:"user_id"`
	Status           RegistrationStatus `json:"status"`
	WaitlistPosition *int               `json:"waitlist_position,omitempty"`
	Answers          json.RawMessage    `json:"answers,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	CanceledAt       *time.Time         `json:"canceled_at,omitempty"`
	CheckedInAt      *time.Time         `json:"checked_in_at,omitempty"`
	CheckedInBy      *string            `json:"checked_in_by,omitempty"`
}

// MembershipPlan is a purchasable membership tier.
type MembershipPlan struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	DurationMonths int    `json:"duration_months"`
	PriceCents     int    `json:"price_cents"`
}

// Membership records a membership purchase (the original system's
// transactions table). At most one is active per user at a time.
type Membership struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	PlanID     string     `json:"plan_id"`
	PriceCents int        `json:"price_cents"`
	StartsAt   time.Time  `json:"starts_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CanceledAt *time.Time `json:"canceled_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ActiveAt reports whether the membership is in force at the given instant.
func (m *Membership) ActiveAt(now time.Time) bool {
	return m.CanceledAt == nil && now.Before(m.ExpiresAt)
}

// Actor is the authenticated identity attached to every request by the
// external identity provider. The service never derives it itself.
type Actor struct {
	UserID string
	Staff  bool
}

// CreateProgramRequest is the payload for creating a new program.
type CreateProgramRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	Capacity    int        `json:"capacity"`
	StartAt     time.Time  `json:"start_at"`
	EndAt       time.Time  `json:"end_at"`
	Visibility  Visibility `json:"visibility"`
	PublishAt   *time.Time `json:"publish_at"`
	UnpublishAt *time.Time `json:"unpublish_at"`
}

// UpdateProgramRequest is the payload for a partial program update.
// Nil fields are left unchanged.
type UpdateProgramRequest struct {
	Title       *string     `json:"title"`
	Description *string     `json:"description"`
	Location    *string     `json:"location"`
	Capacity    *int        `json:"capacity"`
	StartAt     *time.Time  `json:"start_at"`
	EndAt       *time.Time  `json:"end_at"`
	Visibility  *Visibility `json:"visibility"`
	PublishAt   *time.Time  `json:"publish_at"`
	UnpublishAt *time.Time  `json:"unpublish_at"`
}

// RegisterRequest is the payload for registering for a program. Answers is
// an opaque structured payload collected at registration time.
type RegisterRequest struct {
	Answers json.RawMessage `json:"answers"`
}

// RegisterResult summarises the outcome of a registration attempt.
type RegisterResult struct {
	RegistrationID string             `json:"registration_id"`
	Status         RegistrationStatus `json:"status"`
	Position       *int               `json:"position,omitempty"`
}

// CancelResult summarises a cancellation and any resulting promotion.
type CancelResult struct {
	Canceled bool    `json:"canceled"`
	Promoted *string `json:"promoted,omitempty"` // promoted registration id
}

// CheckinRequest toggles a registration's checked-in state.
type CheckinRequest struct {
	Checked bool `json:"checked"`
}

// PurchaseRequest is the payload for buying a membership.
type PurchaseRequest struct {
	PlanID string `json:"plan_id"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
