/*
handlers.go - HTTP API handlers for the profit store

PURPOSE:
  Exposes the Record Store via REST. Handles HTTP request/response, JSON
  serialization, and delegates persistence to profit.Store.

ENDPOINTS:
  POST   /api/saveProfit           Upsert profit for a plan
  GET    /api/getProfit?planId=    Read profit for a plan
  GET    /                         Liveness (checks the database link)

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call the store
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  - 400: Malformed body, missing planId, startTime outside int64 ms
  - 404: No record for planId (not logged as an error)
  - 500: Store failure. The cause is logged, never sent to the client.
  - 503: Health check could not reach the database

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/warp/profit-engine/profit"
)

// Response messages. Existing clients match on these strings.
const (
	MsgSaved        = "Lucro salvo com sucesso!"
	MsgNotFound     = "Lucro não encontrado"
	MsgSaveFailed   = "Erro ao salvar os dados no servidor"
	MsgFetchFailed  = "Erro ao buscar os dados no servidor"
	MsgHealthy      = "API LucroDB está rodando!"
	MsgUnhealthy    = "Banco de dados indisponível"
	MsgInvalidBody  = "Corpo da requisição inválido"
	MsgPlanIDNeeded = "planId é obrigatório"
	MsgBadStartTime = "startTime fora do intervalo permitido"
)

// maxBodyBytes bounds the saveProfit body.
const maxBodyBytes = 100 << 10

// Pinger is implemented by stores that can report database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store profit.Store
	Log   logrus.FieldLogger
}

// NewHandler creates a new handler with the given store.
func NewHandler(store profit.Store, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{Store: store, Log: log}
}

// SaveProfit creates or replaces the profit for a plan.
// POST /api/saveProfit
func (h *Handler) SaveProfit(w http.ResponseWriter, r *http.Request) {
	var req SaveProfitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, MsgInvalidBody, err)
		return
	}

	in, err := req.ToInput()
	if err != nil {
		writeClientError(w, err)
		return
	}

	rec, err := h.Store.Upsert(r.Context(), in)
	if err != nil {
		if profit.IsClientError(err) {
			writeClientError(w, err)
			return
		}
		h.logFor(r).WithError(err).WithField("plan_id", req.PlanID).Error("failed to save profit")
		writeError(w, http.StatusInternalServerError, MsgSaveFailed, nil)
		return
	}

	writeJSON(w, http.StatusOK, SaveProfitResponse{
		Message: MsgSaved,
		Data:    toProfitDTO(rec),
	})
}

// GetProfit returns the profit and start time for a plan.
// GET /api/getProfit?planId=...
func (h *Handler) GetProfit(w http.ResponseWriter, r *http.Request) {
	planID := r.URL.Query().Get("planId")
	if strings.TrimSpace(planID) == "" {
		writeError(w, http.StatusBadRequest, MsgPlanIDNeeded, nil)
		return
	}

	rec, err := h.Store.FindByPlanID(r.Context(), planID)
	if err != nil {
		if profit.IsNotFound(err) {
			h.logFor(r).WithField("plan_id", planID).Debug("profit not found")
			writeJSON(w, http.StatusNotFound, MessageResponse{Message: MsgNotFound})
			return
		}
		h.logFor(r).WithError(err).WithField("plan_id", planID).Error("failed to get profit")
		writeError(w, http.StatusInternalServerError, MsgFetchFailed, nil)
		return
	}

	writeJSON(w, http.StatusOK, GetProfitResponse{
		Profit:    json.Number(rec.Profit.String()),
		StartTime: rec.StartTime,
	})
}

// Health reports that the API is up and, when the store supports it, that
// the database answers.
// GET /
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.logFor(r).WithError(err).Error("database ping failed")
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(MsgUnhealthy))
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(MsgHealthy))
}

func (h *Handler) logFor(r *http.Request) logrus.FieldLogger {
	return h.Log.WithField("request_id", middleware.GetReqID(r.Context()))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeClientError maps a profit client error to a 400 response.
func writeClientError(w http.ResponseWriter, err error) {
	if errors.Is(err, profit.ErrInvalidStartTime) {
		writeError(w, http.StatusBadRequest, MsgBadStartTime, err)
		return
	}
	writeError(w, http.StatusBadRequest, MsgPlanIDNeeded, nil)
}

// writeError writes an ErrorResponse. err is only echoed for client errors.
func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil && status < http.StatusInternalServerError {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			status = http.StatusRequestEntityTooLarge
		}
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
