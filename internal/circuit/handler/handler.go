// Package handler exposes circuit lifecycle and membership endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	circuitmodels "attestor/internal/circuit/models"
	"attestor/internal/circuit/service"
	"attestor/internal/platform/middleware"
	"attestor/internal/transport/http/shared"
	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/requestcontext"
)

// Service defines the circuit operations the handler delegates to.
type Service interface {
	CreateCircuit(ctx context.Context, owner id.MemberID, params service.CreateCircuitParams) (*circuitmodels.Circuit, error)
	GetCircuit(ctx context.Context, circuitID id.CircuitID) (*circuitmodels.Circuit, error)
	RequestJoin(ctx context.Context, circuitID id.CircuitID, member id.MemberID) (circuitmodels.MemberStatus, error)
	ApproveMember(ctx context.Context, circuitID id.CircuitID, actor, member id.MemberID) error
	DenyMember(ctx context.Context, circuitID id.CircuitID, actor, member id.MemberID) error
	SetPublicSettings(ctx context.Context, circuitID id.CircuitID, actor id.MemberID, settings circuitmodels.PublicSettings) (*circuitmodels.Circuit, error)
	PublicInfo(ctx context.Context, circuitID id.CircuitID, caller id.MemberID) (service.PublicCircuitInfo, error)
}

// Handler handles circuit endpoints.
type Handler struct {
	circuits     Service
	logger       *slog.Logger
	jwtValidator *middleware.JWTValidator
}

// New creates a circuit Handler.
func New(circuits Service, logger *slog.Logger, jwtValidator *middleware.JWTValidator) *Handler {
	return &Handler{circuits: circuits, logger: logger, jwtValidator: jwtValidator}
}

// Register registers the circuit routes with the chi router. The public-info
// route takes optional auth: visibility is decided by access mode.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/circuits", h.handleCreate)
		r.Get("/circuits/{circuitID}", h.handleGet)
		r.Post("/circuits/{circuitID}/join", h.handleJoin)
		r.Post("/circuits/{circuitID}/members/{memberID}/approve", h.handleApproveMember)
		r.Post("/circuits/{circuitID}/members/{memberID}/deny", h.handleDenyMember)
		r.Put("/circuits/{circuitID}/public-settings", h.handleSetPublicSettings)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(h.jwtValidator))
		r.Get("/circuits/{circuitID}/public", h.handlePublicInfo)
	})
}

type createCircuitRequest struct {
	Name                string                      `json:"name"`
	AdapterConfig       circuitmodels.AdapterConfig `json:"adapter_config"`
	AutoApproveMembers  bool                        `json:"auto_approve_members"`
	RequirePushApproval bool                        `json:"require_push_approval"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createCircuitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	circuit, err := h.circuits.CreateCircuit(ctx, requestcontext.CallerID(ctx), service.CreateCircuitParams{
		Name:                req.Name,
		AdapterConfig:       req.AdapterConfig,
		AutoApproveMembers:  req.AutoApproveMembers,
		RequirePushApproval: req.RequirePushApproval,
	})
	if err != nil {
		h.logError(ctx, "create circuit failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, circuit)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	circuitID, err := id.ParseCircuitID(chi.URLParam(r, "circuitID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	circuit, err := h.circuits.GetCircuit(ctx, circuitID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if _, ok := circuit.ApprovedMember(requestcontext.CallerID(ctx)); !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodePermissionDenied, "caller is not an approved circuit member"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, circuit)
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	circuitID, err := id.ParseCircuitID(chi.URLParam(r, "circuitID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	status, err := h.circuits.RequestJoin(ctx, circuitID, requestcontext.CallerID(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (h *Handler) handleApproveMember(w http.ResponseWriter, r *http.Request) {
	h.decideMember(w, r, h.circuits.ApproveMember)
}

func (h *Handler) handleDenyMember(w http.ResponseWriter, r *http.Request) {
	h.decideMember(w, r, h.circuits.DenyMember)
}

func (h *Handler) decideMember(w http.ResponseWriter, r *http.Request, decide func(ctx context.Context, circuitID id.CircuitID, actor, member id.MemberID) error) {
	ctx := r.Context()

	circuitID, err := id.ParseCircuitID(chi.URLParam(r, "circuitID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	memberID, err := id.ParseMemberID(chi.URLParam(r, "memberID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := decide(ctx, circuitID, requestcontext.CallerID(ctx), memberID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type publicSettingsRequest struct {
	AccessMode             circuitmodels.AccessMode `json:"access_mode"`
	AutoPublishPushedItems bool                     `json:"auto_publish_pushed_items"`
	PublishedItems         []string                 `json:"published_items"`
}

func (h *Handler) handleSetPublicSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	circuitID, err := id.ParseCircuitID(chi.URLParam(r, "circuitID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req publicSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	settings := circuitmodels.PublicSettings{
		AccessMode:             req.AccessMode,
		AutoPublishPushedItems: req.AutoPublishPushedItems,
		PublishedItems:         make(map[id.DFID]struct{}, len(req.PublishedItems)),
	}
	for _, raw := range req.PublishedItems {
		dfid, err := id.ParseDFID(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		settings.PublishedItems[dfid] = struct{}{}
	}

	circuit, err := h.circuits.SetPublicSettings(ctx, circuitID, requestcontext.CallerID(ctx), settings)
	if err != nil {
		h.logError(ctx, "set public settings failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, circuit)
}

func (h *Handler) handlePublicInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	circuitID, err := id.ParseCircuitID(chi.URLParam(r, "circuitID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	info, err := h.circuits.PublicInfo(ctx, circuitID, requestcontext.CallerID(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, info)
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
}
