// Package handler exposes the lookup HTTP surface backing dependent
// selectors in the claim and policy forms.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	dirmodels "claimstack/internal/directory/models"
	policymodels "claimstack/internal/policy/models"
	domainerrors "claimstack/pkg/domain-errors"
	"claimstack/pkg/platform/httputil"
	"claimstack/pkg/requestcontext"
)

// Service is the lookup surface the handler depends on.
type Service interface {
	Clients(ctx context.Context) ([]*dirmodels.Client, error)
	MainAffiliates(ctx context.Context, clientID uuid.UUID) ([]*dirmodels.Affiliate, error)
	Family(ctx context.Context, affiliateID uuid.UUID) ([]*dirmodels.Affiliate, error)
	ActivePolicies(ctx context.Context, clientID uuid.UUID) ([]*policymodels.Policy, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the lookup endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/lookup", func(r chi.Router) {
		r.Get("/clients", h.HandleClients)
		r.Get("/clients/{clientID}/affiliates", h.HandleMainAffiliates)
		r.Get("/clients/{clientID}/policies", h.HandleActivePolicies)
		r.Get("/affiliates/{affiliateID}/family", h.HandleFamily)
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

func (h *Handler) HandleClients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clients, err := h.service.Clients(ctx)
	if err != nil {
		h.writeError(ctx, w, "lookup clients", err)
		return
	}
	httputil.WriteData(w, http.StatusOK, clients)
}

func (h *Handler) HandleMainAffiliates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID, err := pathID(r, "clientID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	affiliates, err := h.service.MainAffiliates(ctx, clientID)
	if err != nil {
		h.writeError(ctx, w, "lookup affiliates", err)
		return
	}
	if affiliates == nil {
		affiliates = []*dirmodels.Affiliate{}
	}
	httputil.WriteData(w, http.StatusOK, affiliates)
}

func (h *Handler) HandleFamily(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	affiliateID, err := pathID(r, "affiliateID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	family, err := h.service.Family(ctx, affiliateID)
	if err != nil {
		h.writeError(ctx, w, "lookup family", err)
		return
	}
	if family == nil {
		family = []*dirmodels.Affiliate{}
	}
	httputil.WriteData(w, http.StatusOK, family)
}

func (h *Handler) HandleActivePolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID, err := pathID(r, "clientID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	policies, err := h.service.ActivePolicies(ctx, clientID)
	if err != nil {
		h.writeError(ctx, w, "lookup policies", err)
		return
	}
	httputil.WriteData(w, http.StatusOK, policies)
}
