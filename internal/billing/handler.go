package billing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ledgerpilot/ledgerpilot/internal/billing/customer"
	"github.com/ledgerpilot/ledgerpilot/internal/billing/draft"
	"github.com/ledgerpilot/ledgerpilot/internal/platform/httpx"
	"github.com/ledgerpilot/ledgerpilot/internal/shared"
)

// Handler manages billing endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers billing routes. The send route takes exactly one
// draft id; there is no batch variant.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/invoices", h.createInvoices)
	r.Get("/invoices", h.listInvoices)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Get("/invoices/{id}/history", h.invoiceHistory)
	r.Post("/invoices/{id}/submit", h.submitInvoice)
	r.Patch("/invoices/{id}/purchase-order", h.supplyPurchaseOrder)
	r.Post("/invoices/{id}/present", h.presentInvoice)
	r.Post("/invoices/{id}/response", h.recordResponse)
	r.Post("/invoices/{id}/send", h.sendInvoice)
	r.Post("/invoices/{id}/void", h.voidInvoice)

	r.Post("/customers", h.createCustomer)
	r.Get("/customers/resolve", h.resolveCustomer)
}

type lineItemDTO struct {
	Description string  `json:"description" validate:"required"`
	UnitAmount  float64 `json:"unit_amount" validate:"gt=0"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	ProductTag  string  `json:"product_tag"`
}

type createInvoicesRequest struct {
	ClientIdentifier string        `json:"client_identifier" validate:"required"`
	LineItems        []lineItemDTO `json:"line_items" validate:"required,min=1,dive"`
	Currency         string        `json:"currency" validate:"omitempty,len=3"`
	Notes            string        `json:"notes"`
	PurchaseOrder    string        `json:"purchase_order"`
	FiscalYear       int           `json:"fiscal_year" validate:"omitempty,min=2000,max=2100"`
	Attachments      []string      `json:"attachments"`
}

type draftResultDTO struct {
	Draft draft.Invoice `json:"draft"`
	Error string        `json:"error,omitempty"`
}

func (h *Handler) createInvoices(w http.ResponseWriter, r *http.Request) {
	var req createInvoicesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	items := make([]draft.LineItem, 0, len(req.LineItems))
	for _, li := range req.LineItems {
		items = append(items, draft.LineItem{
			Description: li.Description,
			UnitAmount:  li.UnitAmount,
			Quantity:    li.Quantity,
			ProductTag:  li.ProductTag,
		})
	}

	results, err := h.service.CreateInvoices(r.Context(), CreateInvoicesInput{
		ClientIdentifier: req.ClientIdentifier,
		LineItems:        items,
		Currency:         req.Currency,
		Notes:            req.Notes,
		PurchaseOrder:    req.PurchaseOrder,
		FiscalYear:       req.FiscalYear,
		Attachments:      req.Attachments,
	})
	if err != nil {
		h.logger.Error("create invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	out := make([]draftResultDTO, 0, len(results))
	status := http.StatusCreated
	for _, res := range results {
		dto := draftResultDTO{Draft: res.Draft}
		if res.Err != nil {
			dto.Error = res.Err.Error()
			status = http.StatusMultiStatus
		}
		out = append(out, dto)
	}
	httpx.JSON(w, status, map[string]any{"drafts": out})
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	filter := draft.ListFilter{
		Status:      draft.Status(r.URL.Query().Get("status")),
		ClientEmail: r.URL.Query().Get("client_email"),
		Limit:       100,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}
	invoices, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) invoiceHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}
	records, err := h.service.History(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *Handler) submitInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.SubmitDraft(r.Context(), id)
	if err != nil {
		h.logger.Error("submit draft", slog.String("draft_id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

type purchaseOrderRequest struct {
	PurchaseOrder string `json:"purchase_order" validate:"required"`
}

func (h *Handler) supplyPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}
	var req purchaseOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	inv, err := h.service.SupplyPurchaseOrder(r.Context(), id, req.PurchaseOrder)
	if err != nil {
		h.logger.Error("supply purchase order", slog.String("draft_id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) presentInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}
	pres, err := h.service.Present(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pres)
}

type responseRequest struct {
	Utterance string `json:"utterance" validate:"required"`
}

func (h *Handler) recordResponse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}
	var req responseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	rec, err := h.service.RecordResponse(r.Context(), id, req.Utterance)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) sendInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}
	result, err := h.service.Send(r.Context(), id)
	if err != nil {
		h.logger.Error("send invoice", slog.String("draft_id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type voidRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) voidInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.service.Void(r.Context(), id, req.Reason); err != nil {
		h.logger.Error("void invoice", slog.String("draft_id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(draft.StatusVoid)})
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req customer.CreateInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	rec, err := h.service.CreateCustomer(r.Context(), req)
	if err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			httpx.JSON(w, http.StatusConflict, rec)
			return
		}
		h.logger.Error("create customer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) resolveCustomer(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("identifier")
	rec, err := h.service.ResolveCustomer(r.Context(), identifier)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) draftID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid draft id", "draft id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
