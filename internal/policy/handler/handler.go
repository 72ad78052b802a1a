// Package handler exposes the policy HTTP surface.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"claimstack/internal/audit"
	"claimstack/internal/policy/models"
	domainerrors "claimstack/pkg/domain-errors"
	"claimstack/pkg/platform/httputil"
	"claimstack/pkg/requestcontext"
)

// Service is the policy operation surface the handler depends on.
type Service interface {
	Create(ctx context.Context, req models.CreatePolicyRequest) (*models.Policy, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Policy, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Policy, int, error)
	Update(ctx context.Context, id uuid.UUID, patch models.PolicyPatch) (*models.Policy, error)
	Transition(ctx context.Context, id uuid.UUID, req models.TransitionRequest) (*models.Policy, error)
	Delete(ctx context.Context, id uuid.UUID) error
	History(ctx context.Context, id uuid.UUID, offset, limit int) ([]*models.History, int, error)
	Timeline(ctx context.Context, id uuid.UUID, offset, limit int) ([]*audit.Entry, int, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the policy endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/policies", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Route("/{policyID}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Patch("/", h.HandleUpdate)
			r.Delete("/", h.HandleDelete)
			r.Post("/transition", h.HandleTransition)
			r.Get("/history", h.HandleHistory)
			r.Get("/timeline", h.HandleTimeline)
		})
	})
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domainerrors.Newf(domainerrors.CodeValidation, "invalid %s", name)
	}
	return id, nil
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if domainerrors.CodeOf(err) == domainerrors.CodeInternal {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[models.CreatePolicyRequest](w, r)
	if !ok {
		return
	}
	policy, err := h.service.Create(ctx, req)
	if err != nil {
		h.writeError(ctx, w, "policy create", err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, policy)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "policyID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	policy, err := h.service.Get(ctx, id)
	if err != nil {
		h.writeError(ctx, w, "policy get", err)
		return
	}
	httputil.WriteData(w, http.StatusOK, policy)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, page, limit, err := parseListQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	policies, total, err := h.service.List(ctx, filter)
	if err != nil {
		h.writeError(ctx, w, "policy list", err)
		return
	}
	if policies == nil {
		policies = []*models.Policy{}
	}
	httputil.WriteList(w, policies, httputil.NewMeta(page, limit, total))
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "policyID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	patch, ok := httputil.Decode[models.PolicyPatch](w, r)
	if !ok {
		return
	}
	policy, err := h.service.Update(ctx, id, patch)
	if err != nil {
		h.writeError(ctx, w, "policy update", err)
		return
	}
	httputil.WriteData(w, http.StatusOK, policy)
}

func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "policyID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[models.TransitionRequest](w, r)
	if !ok {
		return
	}
	policy, err := h.service.Transition(ctx, id, req)
	if err != nil {
		h.writeError(ctx, w, "policy transition", err)
		return
	}
	httputil.WriteData(w, http.StatusOK, policy)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "policyID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Delete(ctx, id); err != nil {
		h.writeError(ctx, w, "policy delete", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "policy deleted"})
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "policyID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, limit := parsePagination(r)
	entries, total, err := h.service.History(ctx, id, (page-1)*limit, limit)
	if err != nil {
		h.writeError(ctx, w, "policy history", err)
		return
	}
	if entries == nil {
		entries = []*models.History{}
	}
	httputil.WriteList(w, entries, httputil.NewMeta(page, limit, total))
}

func (h *Handler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "policyID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, limit := parsePagination(r)
	entries, total, err := h.service.Timeline(ctx, id, (page-1)*limit, limit)
	if err != nil {
		h.writeError(ctx, w, "policy timeline", err)
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	httputil.WriteList(w, entries, httputil.NewMeta(page, limit, total))
}
