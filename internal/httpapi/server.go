package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/awaistahir/loadplan/internal/engine"
	"github.com/awaistahir/loadplan/internal/planner"
	"github.com/awaistahir/loadplan/internal/store"
	"github.com/awaistahir/loadplan/internal/tariff"
)

// Server exposes the appliance catalog, the tariff, and the planner over
// a JSON API.
type Server struct {
	store   *store.Store
	planner *planner.Planner
	horizon int
	metrics http.Handler
	log     zerolog.Logger
}

// Options tunes the server. Zero values fall back to defaults.
type Options struct {
	// Horizon is the plan length in hours; stored tariffs are validated
	// against it.
	Horizon int
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
	Logger  *zerolog.Logger
}

func NewServer(st *store.Store, pl *planner.Planner, opts Options) *Server {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	horizon := opts.Horizon
	if horizon <= 0 {
		horizon = tariff.DefaultHorizon
	}
	return &Server{
		store:   st,
		planner: pl,
		horizon: horizon,
		metrics: opts.Metrics,
		log:     log,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS for local development
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/appliances", s.handleListAppliances)
		r.Post("/appliances", s.handleCreateAppliance)
		r.Get("/appliances/{id}", s.handleGetAppliance)
		r.Put("/appliances/{id}", s.handleUpdateAppliance)
		r.Delete("/appliances/{id}", s.handleDeleteAppliance)
		r.Put("/appliances/{id}/enabled", s.handleSetEnabled)
		r.Get("/tariff", s.handleGetTariff)
		r.Put("/tariff", s.handleSetTariff)
		r.Post("/plan", s.handleCreatePlan)
		r.Get("/plans", s.handleListPlans)
		r.Get("/plans/{id}", s.handleGetPlan)
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	appliances, _ := s.store.Appliances(false)
	tariffName := "default"
	if t, err := s.store.ActiveTariff(); err == nil {
		tariffName = t.Name
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"version":    "1.0.0",
		"horizon":    s.horizon,
		"appliances": len(appliances),
		"tariff":     tariffName,
	})
}

func (s *Server) handleListAppliances(w http.ResponseWriter, r *http.Request) {
	appliances, err := s.store.Appliances(false)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, appliances)
}

func (s *Server) handleCreateAppliance(w http.ResponseWriter, r *http.Request) {
	var a engine.Appliance
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.store.AddAppliance(a)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetAppliance(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetAppliance(chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateAppliance(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetAppliance(chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	var a engine.Appliance
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec.Appliance = a
	if err := s.store.UpdateAppliance(rec); err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteAppliance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.RemoveAppliance(id); err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "deleted", "id": id})
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.store.SetApplianceEnabled(id, body.Enabled); err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "enabled": body.Enabled})
}

// handleGetTariff returns the tariff the next plan will use: the active
// stored one, or the built-in default when none is active.
func (s *Server) handleGetTariff(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.ActiveTariff()
	if errors.Is(err, store.ErrNotFound) {
		t = tariff.Default()
	} else if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) handleSetTariff(w http.ResponseWriter, r *http.Request) {
	var req struct {
		tariff.Tariff
		Activate bool `json:"activate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := req.Tariff.Validate(s.horizon); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.SaveTariff(req.Tariff, req.Activate); err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, req.Tariff)
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.planner.BuildPlan(r.Context())
	if err != nil {
		respondError(w, planStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, plan)
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	plans, err := s.store.RecentPlans(limit)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, plans)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetPlan(chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// planStatus maps a planner failure to an HTTP status: bad inputs are the
// client's to fix, an infeasible catalog is a valid request with no
// answer, and an aborted solve is a server-side timeout.
func planStatus(err error) int {
	switch {
	case errors.Is(err, planner.ErrNoAppliances):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInvalidAppliance),
		errors.Is(err, engine.ErrInvalidPrices),
		errors.Is(err, engine.ErrInvalidMaxLoad),
		errors.Is(err, engine.ErrSearchSpaceTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrInfeasible):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrAborted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrExists):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrInvalidAppliance), errors.Is(err, engine.ErrInvalidPrices):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
		s.log.Error().Err(err).Msg("storage failure")
	}
	respondError(w, status, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
