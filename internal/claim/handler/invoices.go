package handler

import (
	"net/http"

	"claimstack/internal/claim/models"
	"claimstack/pkg/platform/httputil"
)

func (h *Handler) HandleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, err := pathID(r, "claimID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	in, ok := httputil.Decode[models.InvoiceInput](w, r)
	if !ok {
		return
	}
	inv, err := h.service.CreateInvoice(ctx, claimID, in)
	if err != nil {
		h.writeError(ctx, w, "invoice create", err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, inv)
}

func (h *Handler) HandleGetInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, err := pathID(r, "claimID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	invoiceID, err := pathID(r, "invoiceID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	inv, err := h.service.GetInvoice(ctx, claimID, invoiceID)
	if err != nil {
		h.writeError(ctx, w, "invoice get", err)
		return
	}
	httputil.WriteData(w, http.StatusOK, inv)
}

func (h *Handler) HandleListInvoices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, err := pathID(r, "claimID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	invoices, err := h.service.ListInvoices(ctx, claimID)
	if err != nil {
		h.writeError(ctx, w, "invoice list", err)
		return
	}
	if invoices == nil {
		invoices = []*models.Invoice{}
	}
	httputil.WriteData(w, http.StatusOK, invoices)
}

func (h *Handler) HandleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, err := pathID(r, "claimID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	invoiceID, err := pathID(r, "invoiceID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	in, ok := httputil.Decode[models.InvoiceInput](w, r)
	if !ok {
		return
	}
	inv, err := h.service.UpdateInvoice(ctx, claimID, invoiceID, in)
	if err != nil {
		h.writeError(ctx, w, "invoice update", err)
		return
	}
	httputil.WriteData(w, http.StatusOK, inv)
}

func (h *Handler) HandleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, err := pathID(r, "claimID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	invoiceID, err := pathID(r, "invoiceID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.DeleteInvoice(ctx, claimID, invoiceID); err != nil {
		h.writeError(ctx, w, "invoice delete", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "invoice deleted"})
}
