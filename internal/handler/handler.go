// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/broncorec/campusrec/internal/auth"
	"github.com/broncorec/campusrec/internal/model"
	"github.com/broncorec/campusrec/internal/service"
)

// Handler holds all HTTP handlers for the recreation API.
type Handler struct {
	programs      *service.ProgramService
	registrations *service.RegistrationService
	memberships   *service.MembershipService
	logger        *slog.Logger
}

// New constructs a Handler.
func New(
	programs *service.ProgramService,
	registrations *service.RegistrationService,
	memberships *service.MembershipService,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		programs:      programs,
		registrations: registrations,
		memberships:   memberships,
		logger:        logger,
	}
}

// Routes mounts all API routes. Every route except /health requires an
// identity token; staff-only routes are additionally gated.
func (h *Handler) Routes(verifier *auth.Verifier) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(verifier))

		r.Route("/programs", func(r chi.Router) {
			r.Get("/", h.ListPrograms)
			r.Get("/{id}", h.GetProgram)
			r.Post("/{id}/register", h.Register)
			r.With(RequireStaff).Post("/", h.CreateProgram)
			r.With(RequireStaff).Patch("/{id}", h.UpdateProgram)
			r.With(RequireStaff).Get("/{id}/registrations", h.ListRegistrations)
		})

		r.Route("/registrations", func(r chi.Router) {
			r.Post("/{id}/cancel", h.CancelRegistration)
			r.With(RequireStaff).Post("/{id}/checkin", h.SetCheckedIn)
		})

		r.Route("/membership", func(r chi.Router) {
			r.Get("/plans", h.ListPlans)
			r.Post("/purchase", h.PurchaseMembership)
			r.Post("/cancel", h.CancelMembership)
		})

		r.Route("/me", func(r chi.Router) {
			r.Get("/registrations", h.MyRegistrations)
			r.Get("/membership", h.MyMembership)
		})
	})

	return r
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps domain errors to HTTP statuses. Unrecognized
// errors become 500s; a broken capacity invariant is logged for operator
// attention and never retried.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrProgramNotFound):
		writeError(w, http.StatusNotFound, "program not found")
	case errors.Is(err, service.ErrRegistrationNotFound):
		writeError(w, http.StatusNotFound, "registration not found")
	case errors.Is(err, service.ErrPlanNotFound):
		writeError(w, http.StatusNotFound, "membership plan not found")
	case errors.Is(err, service.ErrProgramClosed):
		writeError(w, http.StatusConflict, "program is not open for registration")
	case errors.Is(err, service.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "registration cannot be checked in from its current status")
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "not authorized")
	case errors.Is(err, service.ErrCapacityInconsistent):
		h.logger.Error("capacity ledger inconsistency",
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		h.logger.Error("request failed",
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func actorFrom(r *http.Request) model.Actor {
	actor, _ := auth.FromContext(r.Context())
	return actor
}

// ─── Programs ─────────────────────────────────────────────────────────────────

// CreateProgram handles POST /programs (staff).
func (h *Handler) CreateProgram(w http.ResponseWriter, r *http.Request) {
	var req model.CreateProgramRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	program, err := h.programs.Create(r.Context(), actorFrom(r), req)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			h.writeServiceError(w, r, err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, program)
}

// UpdateProgram handles PATCH /programs/{id} (staff).
func (h *Handler) UpdateProgram(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateProgramRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	program, err := h.programs.Update(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req)
	if err != nil {
		if errors.Is(err, service.ErrProgramNotFound) || errors.Is(err, service.ErrUnauthorized) {
			h.writeServiceError(w, r, err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, program)
}

// ListPrograms handles GET /programs.
func (h *Handler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := h.programs.List(r.Context(), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	// Return an empty array rather than null for better client compatibility.
	if programs == nil {
		programs = []model.Program{}
	}
	writeJSON(w, http.StatusOK, programs)
}

// GetProgram handles GET /programs/{id}.
func (h *Handler) GetProgram(w http.ResponseWriter, r *http.Request) {
	program, err := h.programs.Get(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, program)
}

// ─── Registrations ────────────────────────────────────────────────────────────

// Register handles POST /programs/{id}/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.registrations.Register(r.Context(), chi.URLParam(r, "id"), actorFrom(r), req.Answers)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// CancelRegistration handles POST /registrations/{id}/cancel.
func (h *Handler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	result, err := h.registrations.Cancel(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SetCheckedIn handles POST /registrations/{id}/checkin (staff).
func (h *Handler) SetCheckedIn(w http.ResponseWriter, r *http.Request) {
	var req model.CheckinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	reg, err := h.registrations.SetCheckedIn(r.Context(), chi.URLParam(r, "id"), actorFrom(r), req.Checked)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// ListRegistrations handles GET /programs/{id}/registrations (staff).
func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.registrations.Roster(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// MyRegistrations handles GET /me/registrations.
func (h *Handler) MyRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.registrations.ForUser(r.Context(), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// ─── Memberships ──────────────────────────────────────────────────────────────

// ListPlans handles GET /membership/plans.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.memberships.Plans(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if plans == nil {
		plans = []model.MembershipPlan{}
	}
	writeJSON(w, http.StatusOK, plans)
}

// PurchaseMembership handles POST /membership/purchase.
func (h *Handler) PurchaseMembership(w http.ResponseWriter, r *http.Request) {
	var req model.PurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	membership, err := h.memberships.Purchase(r.Context(), actorFrom(r), req.PlanID)
	if err != nil {
		if errors.Is(err, service.ErrPlanNotFound) {
			h.writeServiceError(w, r, err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, membership)
}

// CancelMembership handles POST /membership/cancel.
func (h *Handler) CancelMembership(w http.ResponseWriter, r *http.Request) {
	canceled, err := h.memberships.CancelActive(r.Context(), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"canceled": canceled})
}

// MyMembership handles GET /me/membership.
func (h *Handler) MyMembership(w http.ResponseWriter, r *http.Request) {
	membership, err := h.memberships.Active(r.Context(), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if membership == nil {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	writeJSON(w, http.StatusOK, membership)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
