package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/broncorec/campusrec/internal/model"
	"github.com/broncorec/campusrec/internal/store"
)

// ProgramService orchestrates the program catalog: staff manage programs,
// everyone else sees only what is published.
type ProgramService struct {
	programs store.ProgramStore
	now      func() time.Time
}

// NewProgramService constructs a ProgramService. A nil now defaults to
// time.Now.
func NewProgramService(programs store.ProgramStore, now func() time.Time) *ProgramService {
	if now == nil {
		now = time.Now
	}
	return &ProgramService{programs: programs, now: now}
}

// Create validates the request and inserts a new program. Staff only.
func (s *ProgramService) Create(ctx context.Context, actor model.Actor, req model.CreateProgramRequest) (*model.Program, error) {
	if !actor.Staff {
		return nil, ErrUnauthorized
	}

	program := &model.Program{
		ID:          uuid.New().String(),
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Location:    req.Location,
		Capacity:    req.Capacity,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		Visibility:  req.Visibility,
		PublishAt:   req.PublishAt,
		UnpublishAt: req.UnpublishAt,
		CreatedAt:   s.now().UTC(),
	}
	if program.Visibility == "" {
		program.Visibility = model.VisibilityPublic
	}
	if err := validateProgram(program); err != nil {
		return nil, err
	}
	if err := s.programs.Create(ctx, program); err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}
	return program, nil
}

// Update applies a partial edit to an existing program. Staff only.
func (s *ProgramService) Update(ctx context.Context, actor model.Actor, id string, req model.UpdateProgramRequest) (*model.Program, error) {
	if !actor.Staff {
		return nil, ErrUnauthorized
	}
	program, err := s.programs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProgramNotFound
		}
		return nil, err
	}

	if req.Title != nil {
		program.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		program.Description = *req.Description
	}
	if req.Location != nil {
		program.Location = *req.Location
	}
	if req.Capacity != nil {
		program.Capacity = *req.Capacity
	}
	if req.StartAt != nil {
		program.StartAt = *req.StartAt
	}
	if req.EndAt != nil {
		program.EndAt = *req.EndAt
	}
	if req.Visibility != nil {
		program.Visibility = *req.Visibility
	}
	if req.PublishAt != nil {
		program.PublishAt = req.PublishAt
	}
	if req.UnpublishAt != nil {
		program.UnpublishAt = req.UnpublishAt
	}

	if err := validateProgram(program); err != nil {
		return nil, err
	}
	if err := s.programs.Update(ctx, program); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProgramNotFound
		}
		return nil, fmt.Errorf("update program: %w", err)
	}
	return program, nil
}

// Get returns a single program. Non-staff callers cannot see programs
// outside their publish window.
func (s *ProgramService) Get(ctx context.Context, actor model.Actor, id string) (*model.Program, error) {
	if id == "" {
		return nil, fmt.Errorf("program id is required")
	}
	program, err := s.programs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProgramNotFound
		}
		return nil, err
	}
	if !actor.Staff && !program.RegistrationOpen(s.now()) {
		return nil, ErrProgramNotFound
	}
	return program, nil
}

// List returns the catalog. Staff see everything; others see only listed
// programs.
func (s *ProgramService) List(ctx context.Context, actor model.Actor) ([]model.Program, error) {
	programs, err := s.programs.List(ctx)
	if err != nil {
		return nil, err
	}
	if actor.Staff {
		return programs, nil
	}
	now := s.now()
	visible := programs[:0]
	for _, p := range programs {
		if p.Listed(now) {
			visible = append(visible, p)
		}
	}
	return visible, nil
}

func validateProgram(p *model.Program) error {
	if p.Title == "" {
		return fmt.Errorf("program title is required")
	}
	if p.Capacity < 0 {
		return fmt.Errorf("capacity cannot be negative")
	}
	if p.Capacity > 100_000 {
		return fmt.Errorf("capacity cannot exceed 100,000")
	}
	if p.StartAt.IsZero() || p.EndAt.IsZero() {
		return fmt.Errorf("start and end times are required")
	}
	if !p.EndAt.After(p.StartAt) {
		return fmt.Errorf("end time must be after start time")
	}
	if p.Visibility != model.VisibilityPublic && p.Visibility != model.VisibilityUnlisted {
		return fmt.Errorf("visibility must be public or unlisted")
	}
	if p.PublishAt != nil && p.UnpublishAt != nil && !p.UnpublishAt.After(*p.PublishAt) {
		return fmt.Errorf("unpublish time must be after publish time")
	}
	return nil
}
