package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/wanderlane/pricing-engine/internal/auth"
	"github.com/wanderlane/pricing-engine/internal/models"
	"github.com/wanderlane/pricing-engine/internal/pricing"
	"github.com/wanderlane/pricing-engine/internal/service"
	"github.com/wanderlane/pricing-engine/internal/store"
)

type Server struct {
	calc        *pricing.Calculator
	admin       *service.AdminService
	store       store.Store
	adminSecret string
}

func New(calc *pricing.Calculator, admin *service.AdminService, st store.Store, adminSecret string) *Server {
	return &Server{
		calc:        calc,
		admin:       admin,
		store:       st,
		adminSecret: adminSecret,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Checkout read path: unauthenticated, never fails for missing data.
	r.Post("/v1/quote", s.handleQuote)
	r.Get("/healthz", s.handleHealth)

	// Admin surface.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin(s.adminSecret))
		r.Route("/v1/rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)
			r.Patch("/{id}", s.handleUpdateRule)
			r.Post("/{id}/toggle", s.handleToggleRule)
		})
		r.Route("/v1/versions", func(r chi.Router) {
			r.Get("/", s.handleListVersions)
			r.Post("/", s.handleCreateVersion)
			r.Get("/{id}", s.handleGetVersion)
			r.Get("/{id}/rules", s.handleVersionRules)
			r.Put("/{id}/rules", s.handleReplaceVersionRules)
			r.Post("/{id}/activate", s.handleActivateVersion)
		})
	})

	return r
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var in models.PriceQuoteInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.calc.PriceQuote(r.Context(), in))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	var f store.RuleFilter
	if v := r.URL.Query().Get("applies_to"); v != "" {
		appliesTo := models.AppliesTo(v)
		if !appliesTo.Valid() {
			respondError(w, http.StatusBadRequest, "applies_to: unrecognized category")
			return
		}
		f.AppliesTo = &appliesTo
	}
	if v := r.URL.Query().Get("destination"); v != "" {
		f.Destination = &v
	}
	if v := r.URL.Query().Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "active: must be a boolean")
			return
		}
		f.Active = &active
	}
	rules, err := s.admin.ListRules(r.Context(), f)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rules)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var in service.CreateRuleInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rule, err := s.admin.CreateRule(r.Context(), in)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

type updateRuleRequest struct {
	Name        *string           `json:"name"`
	AppliesTo   *models.AppliesTo `json:"appliesTo"`
	Destination *string           `json:"destination"`
	Supplier    *string           `json:"supplier"`
	RuleType    *models.RuleType  `json:"ruleType"`
	Value       *float64          `json:"value"`
	Currency    *string           `json:"currency"`
	Priority    *int              `json:"priority"`
	Active      *bool             `json:"active"`
	ValidFrom   *time.Time        `json:"validFrom"`
	ValidTo     *time.Time        `json:"validTo"`
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	var req updateRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rule, err := s.admin.UpdateRule(r.Context(), id, store.RuleUpdate{
		Name:        req.Name,
		AppliesTo:   req.AppliesTo,
		Destination: req.Destination,
		Supplier:    req.Supplier,
		RuleType:    req.RuleType,
		Value:       req.Value,
		Currency:    req.Currency,
		Priority:    req.Priority,
		Active:      req.Active,
		ValidFrom:   req.ValidFrom,
		ValidTo:     req.ValidTo,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	rule, err := s.admin.ToggleRule(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.admin.ListVersions(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, versions)
}

func (s *Server) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	version, err := s.admin.CreateDraftVersion(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, version)
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid version id")
		return
	}
	version, err := s.admin.GetVersion(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, version)
}

func (s *Server) handleVersionRules(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid version id")
		return
	}
	rules, err := s.admin.VersionRules(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rules)
}

type replaceRulesRequest struct {
	RuleIDs []uuid.UUID `json:"ruleIds"`
}

func (s *Server) handleReplaceVersionRules(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid version id")
		return
	}
	var req replaceRulesRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.admin.ReplaceVersionRules(r.Context(), id, req.RuleIDs); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"versionId": id,
		"ruleIds":   req.RuleIDs,
	})
}

type activateRequest struct {
	Confirm bool `json:"confirm"`
}

func (s *Server) handleActivateVersion(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid version id")
		return
	}
	var req activateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	version, err := s.admin.ActivateVersion(r.Context(), id, req.Confirm)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, version)
}

func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error": verr.Error(),
			"field": verr.Field,
		})
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrConfirmationRequired):
		respondError(w, http.StatusConflict, "confirmation required")
	case errors.Is(err, store.ErrVersionNotDraft):
		respondError(w, http.StatusConflict, "version is not a draft")
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
