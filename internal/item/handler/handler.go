// Package handler exposes item staging and lookup endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	itemmodels "attestor/internal/item/models"
	"attestor/internal/platform/middleware"
	"attestor/internal/transport/http/shared"
	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/requestcontext"
)

// Service defines the item operations the handler delegates to.
type Service interface {
	CreateLocalItem(ctx context.Context, owner id.MemberID, identifiers []itemmodels.Identifier, enriched map[string]any) (*itemmodels.LocalItem, error)
	GetLocalItem(ctx context.Context, localID id.LocalItemID) (*itemmodels.LocalItem, error)
	GetItem(ctx context.Context, dfid id.DFID) (*itemmodels.Item, error)
	DeprecateItem(ctx context.Context, dfid id.DFID) (*itemmodels.Item, error)
}

// Handler handles item endpoints.
type Handler struct {
	items        Service
	logger       *slog.Logger
	jwtValidator *middleware.JWTValidator
}

// New creates an item Handler.
func New(items Service, logger *slog.Logger, jwtValidator *middleware.JWTValidator) *Handler {
	return &Handler{items: items, logger: logger, jwtValidator: jwtValidator}
}

// Register registers the item routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/items/local", h.handleCreateLocal)
		r.Get("/items/local/{localID}", h.handleGetLocal)
		r.Get("/items/{dfid}", h.handleGetItem)
		r.Post("/items/{dfid}/deprecate", h.handleDeprecate)
	})
}

type createLocalRequest struct {
	Identifiers  []itemmodels.Identifier `json:"identifiers"`
	EnrichedData map[string]any          `json:"enriched_data"`
}

func (h *Handler) handleCreateLocal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createLocalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	local, err := h.items.CreateLocalItem(ctx, requestcontext.CallerID(ctx), req.Identifiers, req.EnrichedData)
	if err != nil {
		h.logError(ctx, "create local item failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, local)
}

func (h *Handler) handleGetLocal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	localID, err := id.ParseLocalItemID(chi.URLParam(r, "localID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	local, err := h.items.GetLocalItem(ctx, localID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if local.Owner != requestcontext.CallerID(ctx) {
		shared.WriteError(w, dErrors.New(dErrors.CodePermissionDenied, "local item belongs to another member"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, local)
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dfid, err := id.ParseDFID(chi.URLParam(r, "dfid"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	item, err := h.items.GetItem(ctx, dfid)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) handleDeprecate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dfid, err := id.ParseDFID(chi.URLParam(r, "dfid"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	item, err := h.items.DeprecateItem(ctx, dfid)
	if err != nil {
		h.logError(ctx, "deprecate item failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
}
