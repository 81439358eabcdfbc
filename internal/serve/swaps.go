package serve

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/joshlzx/starswap/internal/ledger"
	"github.com/joshlzx/starswap/internal/orch"
)

func (s *Server) registerSwapRoutes(r chi.Router) {
	r.Route("/swaps", func(r chi.Router) {
		r.Post("/", s.handleSubmitSwapV1)
		r.Get("/{id}", s.handleSwapStatusV1)
		r.Post("/{id}/stop", s.handleStopSwapV1)
		r.Get("/{id}/ws", s.handleSwapStreamV1)
	})
}

type moduleRequest struct {
	OldIndex   string `json:"old_index"`
	NewIndexes string `json:"new_indexes"`
}

type submitRequest struct {
	Token      string          `json:"token"`
	NumModules int             `json:"num_modules"`
	Modules    []moduleRequest `json:"modules"`
}

// parseModules validates the submitted modules and expands the
// comma-separated candidate lists.
func parseModules(req submitRequest) ([]orch.SwapItem, error) {
	if req.NumModules <= 0 {
		return nil, fmt.Errorf("num_modules must be positive")
	}
	if len(req.Modules) != req.NumModules {
		return nil, fmt.Errorf("expected %d modules, got %d", req.NumModules, len(req.Modules))
	}

	items := make([]orch.SwapItem, 0, len(req.Modules))
	for i, m := range req.Modules {
		old := strings.TrimSpace(m.OldIndex)
		var candidates []string
		for _, c := range strings.Split(m.NewIndexes, ",") {
			if c = strings.TrimSpace(c); c != "" {
				candidates = append(candidates, c)
			}
		}
		if old == "" || len(candidates) == 0 {
			return nil, fmt.Errorf("missing or invalid data for module %d", i+1)
		}
		items = append(items, orch.SwapItem{OldIndex: old, NewIndexes: candidates})
	}
	return items, nil
}

// handleSubmitSwapV1 validates a swap request, seeds its status record and
// launches the orchestration run.
// POST /api/v1/swaps
func (s *Server) handleSubmitSwapV1(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r.Context())

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body", nil, reqID)
		return
	}

	creds, ok := s.creds.get(req.Token)
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, ErrCodeUnauthorized, "unknown or expired token, log in first", nil, reqID)
		return
	}

	items, err := parseModules(req)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil, reqID)
		return
	}

	swapID := uuid.NewString()
	rec := ledger.StatusRecord{
		Status:  ledger.StatusProcessing,
		Details: make([]ledger.DetailEntry, len(items)),
	}
	for i, item := range items {
		rec.Details[i] = ledger.DetailEntry{
			OldIndex:   item.OldIndex,
			NewIndexes: strings.Join(item.NewIndexes, ", "),
			Message:    "Pending...",
		}
	}
	msg := "Your swap request is being processed."
	rec.Message = &msg
	if err := s.ledger.Write(swapID, rec); err != nil {
		s.logger.Error("seed status record", "swap_id", swapID, "error", err)
		writeErrorResponse(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to record swap request", nil, reqID)
		return
	}
	s.bus.Publish(swapID, rec)

	s.creds.bind(swapID, req.Token)
	s.manager.Start(swapID, creds, items)
	s.logger.Info("swap submitted", "swap_id", swapID, "modules", len(items))

	writeSuccessResponse(w, http.StatusAccepted, map[string]any{
		"swap_id": swapID,
		"message": msg,
	}, reqID)
}

// handleSwapStatusV1 returns the stored status record verbatim, so polling
// clients see exactly what the orchestrator last wrote. An unknown ID yields
// the idle default rather than an error.
// GET /api/v1/swaps/{id}
func (s *Server) handleSwapStatusV1(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, s.ledger.Read(id))
}

// handleStopSwapV1 cancels a running swap, marks it stopped for any
// in-flight pollers, then clears its record and cached credentials.
// POST /api/v1/swaps/{id}/stop
func (s *Server) handleStopSwapV1(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	s.manager.Stop(id)

	rec := s.ledger.Read(id)
	rec.Status = ledger.StatusStopped
	if err := s.ledger.Write(id, rec); err != nil {
		s.logger.Error("write stopped record", "swap_id", id, "error", err)
	}
	s.bus.Publish(id, rec)

	if err := s.ledger.Delete(id); err != nil {
		s.logger.Error("delete status record", "swap_id", id, "error", err)
	}
	s.creds.evict(id)
	s.logger.Info("swap stopped", "swap_id", id)

	writeSuccessResponse(w, http.StatusOK, map[string]any{
		"message": "Swap successfully stopped.",
	}, reqID)
}
