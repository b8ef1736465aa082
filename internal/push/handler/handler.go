// Package handler exposes the push, publish, and history endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"attestor/internal/platform/middleware"
	provmodels "attestor/internal/provenance/models"
	"attestor/internal/push"
	"attestor/internal/transport/http/shared"
	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/requestcontext"
)

// Service defines the push operations the handler delegates to.
type Service interface {
	Push(ctx context.Context, localID id.LocalItemID, circuitID id.CircuitID) (push.Result, error)
	Approve(ctx context.Context, circuitID id.CircuitID, dfid id.DFID) (push.Result, error)
	Reject(ctx context.Context, circuitID id.CircuitID, dfid id.DFID) error
	Publish(ctx context.Context, circuitID id.CircuitID, dfid id.DFID) error
	Unpublish(ctx context.Context, circuitID id.CircuitID, dfid id.DFID) error
	History(ctx context.Context, dfid id.DFID) ([]*provmodels.StorageHistoryRecord, error)
}

// Handler handles push endpoints.
type Handler struct {
	pushes       Service
	logger       *slog.Logger
	jwtValidator *middleware.JWTValidator
}

// New creates a push Handler.
func New(pushes Service, logger *slog.Logger, jwtValidator *middleware.JWTValidator) *Handler {
	return &Handler{pushes: pushes, logger: logger, jwtValidator: jwtValidator}
}

// Register registers the push routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/circuits/{circuitID}/push", h.handlePush)
		r.Post("/circuits/{circuitID}/items/{dfid}/approve", h.handleApprove)
		r.Post("/circuits/{circuitID}/items/{dfid}/reject", h.handleReject)
		r.Post("/circuits/{circuitID}/items/{dfid}/publish", h.handlePublish)
		r.Post("/circuits/{circuitID}/items/{dfid}/unpublish", h.handleUnpublish)
		r.Get("/items/{dfid}/history", h.handleHistory)
	})
}

type pushRequest struct {
	LocalItemID string `json:"local_item_id"`
}

func (h *Handler) handlePush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	circuitID, err := id.ParseCircuitID(chi.URLParam(r, "circuitID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	localID, err := id.ParseLocalItemID(req.LocalItemID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.pushes.Push(ctx, localID, circuitID)
	if err != nil {
		h.logError(ctx, "push failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	circuitID, dfid, err := h.pathIDs(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	result, err := h.pushes.Approve(ctx, circuitID, dfid)
	if err != nil {
		h.logError(ctx, "approve push failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.pushes.Reject)
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.pushes.Publish)
}

func (h *Handler) handleUnpublish(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.pushes.Unpublish)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, circuitID id.CircuitID, dfid id.DFID) error) {
	ctx := r.Context()

	circuitID, dfid, err := h.pathIDs(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := op(ctx, circuitID, dfid); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dfid, err := id.ParseDFID(chi.URLParam(r, "dfid"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	records, err := h.pushes.History(ctx, dfid)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *Handler) pathIDs(r *http.Request) (id.CircuitID, id.DFID, error) {
	circuitID, err := id.ParseCircuitID(chi.URLParam(r, "circuitID"))
	if err != nil {
		return id.CircuitID{}, "", err
	}
	dfid, err := id.ParseDFID(chi.URLParam(r, "dfid"))
	if err != nil {
		return id.CircuitID{}, "", err
	}
	return circuitID, dfid, nil
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
}
