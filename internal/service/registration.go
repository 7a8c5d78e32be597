// Package service implements the admission, cancellation, check-in,
// program catalog, and membership engines on top of the storage layer.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/broncorec/campusrec/internal/model"
	"github.com/broncorec/campusrec/internal/store"
)

// RegistrationService decides admission, runs cancellations with waitlist
// promotion, and tracks check-ins. Every read-decide-write sequence runs
// inside a single store unit of work.
type RegistrationService struct {
	programs      store.ProgramStore
	registrations store.RegistrationStore
	now           func() time.Time
}

// NewRegistrationService constructs a RegistrationService. A nil now
// defaults to time.Now.
func NewRegistrationService(programs store.ProgramStore, registrations store.RegistrationStore, now func() time.Time) *RegistrationService {
	if now == nil {
		now = time.Now
	}
	return &RegistrationService{programs: programs, registrations: registrations, now: now}
}

// Register admits the actor to the program: REGISTERED while seats remain
// (capacity 0 means unlimited), otherwise WAITLISTED at the next position.
// Calling it again with an existing non-canceled registration returns that
// registration's current status instead of creating a duplicate.
func (s *RegistrationService) Register(ctx context.Context, programID string, actor model.Actor, answers json.RawMessage) (*model.RegisterResult, error) {
	if programID == "" {
		return nil, fmt.Errorf("program id is required")
	}

	var result *model.RegisterResult
	err := s.registrations.RunProgramTx(ctx, programID, func(tx store.ProgramTx) error {
		program := tx.Program()
		now := s.now().UTC()

		if !program.RegistrationOpen(now) {
			return ErrProgramClosed
		}

		// Idempotent retry: an existing live registration wins.
		existing, err := tx.ActiveRegistrationFor(actor.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			result = &model.RegisterResult{
				RegistrationID: existing.ID,
				Status:         existing.Status,
				Position:       existing.WaitlistPosition,
			}
			return nil
		}

		active, err := tx.ActiveCount()
		if err != nil {
			return err
		}
		if !program.Unlimited() && active > program.Capacity {
			return fmt.Errorf("%w: %d active seats for capacity %d in program %s",
				ErrCapacityInconsistent, active, program.Capacity, program.ID)
		}

		reg := &model.Registration{
			ID:        uuid.New().String(),
			ProgramID: program.ID,
			UserID:    actor.UserID,
			Answers:   answers,
			CreatedAt: now,
		}
		if program.Unlimited() || active < program.Capacity {
			reg.Status = model.StatusRegistered
		} else {
			pos, err := tx.NextWaitlistPosition()
			if err != nil {
				return err
			}
			reg.Status = model.StatusWaitlisted
			reg.WaitlistPosition = &pos
		}
		if err := tx.InsertRegistration(reg); err != nil {
			return err
		}

		result = &model.RegisterResult{
			RegistrationID: reg.ID,
			Status:         reg.Status,
			Position:       reg.WaitlistPosition,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProgramNotFound
		}
		return nil, err
	}
	return result, nil
}

// Cancel marks a registration CANCELED and, when the canceled row held a
// seat, promotes the earliest waitlisted entrant within the same unit of
// work. Re-canceling is a no-op reporting canceled=false. A failed
// promotion never rejects the cancellation: the next-earliest candidate is
// tried once, then the seat is left vacant.
func (s *RegistrationService) Cancel(ctx context.Context, registrationID string, actor model.Actor) (*model.CancelResult, error) {
	existing, err := s.registrations.GetByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}
	if !actor.Staff && actor.UserID != existing.UserID {
		return nil, ErrUnauthorized
	}

	result := &model.CancelResult{}
	err = s.registrations.RunProgramTx(ctx, existing.ProgramID, func(tx store.ProgramTx) error {
		reg, err := tx.RegistrationByID(registrationID)
		if err != nil {
			return err
		}
		if reg.Status == model.StatusCanceled {
			return nil
		}

		freedSeat := reg.Status.HoldsSeat()
		now := s.now().UTC()
		reg.Status = model.StatusCanceled
		reg.CanceledAt = &now
		if err := tx.UpdateRegistration(reg); err != nil {
			return err
		}
		result.Canceled = true

		if freedSeat {
			result.Promoted = promoteNext(tx)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}
	return result, nil
}

// promoteNext moves the earliest waitlisted registration to REGISTERED and
// returns its id, or nil when the waitlist is empty. On stores with weaker
// isolation the candidate row can be canceled between reads, so a lost
// update is retried once against the then-earliest row before giving up
// and leaving the seat vacant.
func promoteNext(tx store.ProgramTx) *string {
	for attempt := 0; attempt < 2; attempt++ {
		candidate, err := tx.EarliestWaitlisted()
		if err != nil || candidate == nil {
			return nil
		}
		candidate.Status = model.StatusRegistered
		candidate.WaitlistPosition = nil
		if err := tx.UpdateRegistration(candidate); err != nil {
			continue
		}
		return &candidate.ID
	}
	return nil
}

// SetCheckedIn toggles attendance state for a registration. Staff only.
// REGISTERED+checked moves to CHECKED_IN; CHECKED_IN+unchecked reverts to
// REGISTERED and clears the check-in fields; same-state calls are no-ops.
// Capacity accounting is untouched either way.
func (s *RegistrationService) SetCheckedIn(ctx context.Context, registrationID string, actor model.Actor, checked bool) (*model.Registration, error) {
	if !actor.Staff {
		return nil, ErrUnauthorized
	}
	existing, err := s.registrations.GetByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}

	var result *model.Registration
	err = s.registrations.RunProgramTx(ctx, existing.ProgramID, func(tx store.ProgramTx) error {
		reg, err := tx.RegistrationByID(registrationID)
		if err != nil {
			return err
		}

		switch {
		case reg.Status == model.StatusRegistered && checked:
			now := s.now().UTC()
			reg.Status = model.StatusCheckedIn
			reg.CheckedInAt = &now
			staffID := actor.UserID
			reg.CheckedInBy = &staffID
			if err := tx.UpdateRegistration(reg); err != nil {
				return err
			}
		case reg.Status == model.StatusCheckedIn && !checked:
			reg.Status = model.StatusRegistered
			reg.CheckedInAt = nil
			reg.CheckedInBy = nil
			if err := tx.UpdateRegistration(reg); err != nil {
				return err
			}
		case reg.Status == model.StatusRegistered, reg.Status == model.StatusCheckedIn:
			// Same-state no-op.
		default:
			return ErrInvalidTransition
		}
		result = reg
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}
	return result, nil
}

// Roster returns a program's registrations in creation order. Staff only.
func (s *RegistrationService) Roster(ctx context.Context, programID string, actor model.Actor) ([]model.Registration, error) {
	if !actor.Staff {
		return nil, ErrUnauthorized
	}
	if _, err := s.programs.GetByID(ctx, programID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProgramNotFound
		}
		return nil, err
	}
	return s.registrations.ListByProgram(ctx, programID)
}

// ForUser returns the actor's own registrations, newest first.
func (s *RegistrationService) ForUser(ctx context.Context, actor model.Actor) ([]model.Registration, error) {
	return s.registrations.ListByUser(ctx, actor.UserID)
}
