package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gridsim/ev-tariff-storage/internal/subscription"
)

// HealthzResponse reports API server liveness.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	TariffCount   int    `json:"tariffCount"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MinMaxResponse is GET /tariffs/{tariff}/minmax's body.
type MinMaxResponse struct {
	Tariff     string  `json:"tariff"`
	Timeslot   int     `json:"timeslot"`
	MinKWh     float64 `json:"minKWh"`
	MaxKWh     float64 `json:"maxKWh"`
	NominalKWh float64 `json:"nominalKWh"`
}

// CreateSubscriptionRequest is POST /subscriptions's body.
type CreateSubscriptionRequest struct {
	Tariff       string  `json:"tariff"`
	InitialCount float64 `json:"initialCount"`
}

// SubscriptionResponse describes one subscription.
type SubscriptionResponse struct {
	ID     string  `json:"id"`
	Tariff string  `json:"tariff"`
	Count  float64 `json:"count"`
}

// MoveSubscriptionRequest is POST /subscriptions/{id}/move's body.
// Timeslot is the current timeslot both engines are at — it anchors
// where StorageState.MoveSubscribers splits the migrating commitment.
type MoveSubscriptionRequest struct {
	ToTariff string  `json:"toTariff"`
	Count    float64 `json:"count"`
	Timeslot int     `json:"timeslot"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		TariffCount:   len(s.tariffNames()),
	})
}

func (s *Server) handleListTariffs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.tariffNames())
}

func (s *Server) handleGetMinMax(w http.ResponseWriter, r *http.Request) {
	tariff := chi.URLParam(r, "tariff")
	engine, ok := s.engine(tariff)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown tariff: "+tariff)
		return
	}

	tParam := r.URL.Query().Get("t")
	t, err := strconv.Atoi(tParam)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing or invalid query parameter: t")
		return
	}

	minKWh, maxKWh, nominalKWh := engine.GetMinMax(t)
	respondJSON(w, http.StatusOK, MinMaxResponse{
		Tariff:     tariff,
		Timeslot:   t,
		MinKWh:     minKWh,
		MaxKWh:     maxKWh,
		NominalKWh: nominalKWh,
	})
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, ok := s.engine(req.Tariff); !ok {
		s.writeError(w, http.StatusNotFound, "unknown tariff: "+req.Tariff)
		return
	}

	id := s.registry.Create(req.Tariff, req.InitialCount)
	respondJSON(w, http.StatusCreated, SubscriptionResponse{
		ID:     id.String(),
		Tariff: req.Tariff,
		Count:  req.InitialCount,
	})
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := parseSubscriptionID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid subscription id")
		return
	}

	tariff, ok := s.registry.Tariff(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "subscription not found")
		return
	}

	respondJSON(w, http.StatusOK, SubscriptionResponse{
		ID:     id.String(),
		Tariff: tariff,
		Count:  s.registry.CustomersCommitted(id),
	})
}

func (s *Server) handleMoveSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := parseSubscriptionID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid subscription id")
		return
	}
	srcTariff, ok := s.registry.Tariff(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "subscription not found")
		return
	}

	var req MoveSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	srcEngine, ok := s.engine(srcTariff)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown tariff: "+srcTariff)
		return
	}
	dstEngine, ok := s.engine(req.ToTariff)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown tariff: "+req.ToTariff)
		return
	}

	// MoveSubscribers must run before the registry's bookkeeping update:
	// it derives the migration fraction from srcEngine's bound population
	// accessor, read live at call time, which registry.Move would
	// otherwise have already decremented.
	dstEngine.MoveSubscribers(req.Timeslot, req.Count, srcEngine)

	dst := s.registry.Create(req.ToTariff, 0)
	s.registry.Move(id, dst, req.Count)

	respondJSON(w, http.StatusOK, SubscriptionResponse{
		ID:     dst.String(),
		Tariff: req.ToTariff,
		Count:  s.registry.CustomersCommitted(dst),
	})
}

func parseSubscriptionID(s string) (subscription.ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return subscription.ID{}, err
	}
	return subscription.ID(u), nil
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
