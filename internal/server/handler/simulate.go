package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mkoval/depthlab/internal/domain"
	"github.com/mkoval/depthlab/internal/sim"
)

// SimDesk is the simulation surface the handler drives.
type SimDesk interface {
	Submit(ctx context.Context, req sim.Request) (domain.SimulatedOrder, bool)
	Active() *domain.SimulatedOrder
	History() []domain.SimulatedOrder
	ClearHistory()
}

// SimHandler serves order-impact simulations. The audit store is optional;
// when nil the audit listing is unavailable.
type SimHandler struct {
	desk   SimDesk
	store  domain.SimulationStore
	logger *slog.Logger
}

// NewSimHandler creates a SimHandler. store may be nil.
func NewSimHandler(desk SimDesk, store domain.SimulationStore, logger *slog.Logger) *SimHandler {
	return &SimHandler{desk: desk, store: store, logger: logHandler(logger, "simulate")}
}

// simulateRequest is the body of a simulation submission.
type simulateRequest struct {
	Kind     string  `json:"kind"`
	Side     string  `json:"side"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	DelayMs  int64   `json:"delay_ms"`
}

// Simulate prices a hypothetical order against the current book.
// POST /api/simulate
func (h *SimHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	kind := domain.OrderKind(req.Kind)
	if kind != domain.OrderKindMarket && kind != domain.OrderKindLimit {
		writeError(w, http.StatusBadRequest, "kind must be market or limit")
		return
	}
	side := domain.OrderSide(req.Side)
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}

	order, ok := h.desk.Submit(r.Context(), sim.Request{
		Kind:     kind,
		Side:     side,
		Price:    req.Price,
		Quantity: req.Quantity,
		DelayMs:  req.DelayMs,
	})
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "simulation rejected: check price, quantity, and book depth")
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// ListSimulations responds with the active simulation and the in-memory
// history, most recent first. With ?source=audit it reads from the persistent
// audit store instead.
// GET /api/simulations
func (h *SimHandler) ListSimulations(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("source") == "audit" {
		if h.store == nil {
			writeError(w, http.StatusNotImplemented, "audit store not configured")
			return
		}
		orders, err := h.store.ListRecent(r.Context(), parseLimit(r, 50))
		if err != nil {
			h.logger.ErrorContext(r.Context(), "audit listing failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to list simulations")
			return
		}
		if orders == nil {
			orders = []domain.SimulatedOrder{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
		return
	}

	history := h.desk.History()
	if history == nil {
		history = []domain.SimulatedOrder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  h.desk.Active(),
		"history": history,
	})
}

// ClearSimulations discards the in-memory simulation history.
// DELETE /api/simulations
func (h *SimHandler) ClearSimulations(w http.ResponseWriter, r *http.Request) {
	h.desk.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}
