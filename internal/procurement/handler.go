package procurement

import (
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/procurement/internal/platform/httpx"
	"github.com/odyssey-erp/procurement/internal/shared"
)

// ActorHeader carries the acting user for audit and approval logs.
const ActorHeader = "X-User-ID"

// Handler wires procurement endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	location  *time.Location
}

// NewHandler builds a procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{logger: logger, service: service, validator: v, location: time.Local}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(actorMiddleware)

		r.Route("/requisitions", func(r chi.Router) {
			r.Get("/", h.listRequisitions)
			r.Post("/", h.createRequisition)
			r.Get("/{id}", h.getRequisition)
			r.Put("/{id}", h.updateRequisition)
			r.Delete("/{id}", h.deleteRequisition)
			r.Post("/{id}/approve", h.approveRequisition)
			r.Post("/{id}/reject", h.rejectRequisition)
		})

		r.Route("/purchase-orders", func(r chi.Router) {
			r.Get("/", h.listPurchaseOrders)
			r.Post("/", h.createPurchaseOrder)
			r.Get("/{po}", h.getPurchaseOrder)
			r.Put("/{po}", h.updatePurchaseOrder)
		})
		r.Post("/purchase-order-items/approve", h.cascadeApprove)
		r.Post("/purchase-order-items/reject", h.cascadeReject)

		r.Route("/material-documents", func(r chi.Router) {
			r.Get("/", h.listMaterialDocuments)
			r.Post("/", h.saveMaterialDocument(true))
			r.Get("/{doc}", h.getMaterialDocument)
			r.Put("/{doc}", h.saveMaterialDocument(false))
		})

		r.Route("/supplier-invoices", func(r chi.Router) {
			r.Get("/", h.listSupplierInvoices)
			r.Post("/", h.saveSupplierInvoice(true))
			r.Get("/{inv}", h.getSupplierInvoice)
			r.Put("/{inv}", h.saveSupplierInvoice(false))
		})

		r.Route("/info-records", func(r chi.Router) {
			r.Get("/", h.listInfoRecords)
			r.Post("/", h.saveInfoRecord(true))
			r.Get("/{rec}", h.getInfoRecord)
			r.Put("/{rec}", h.saveInfoRecord(false))
		})

		r.Route("/rfqs", func(r chi.Router) {
			r.Post("/", h.createRFQ)
			r.Get("/{rfq}", h.getRFQ)
			r.Post("/{rfq}/quotes", h.submitQuote)
			r.Post("/{rfq}/send", h.sendRFQ)
			r.Post("/{rfq}/close", h.closeRFQ)
			r.Post("/{rfq}/convert-to-pr", h.convertToPR)
			r.Post("/{rfq}/convert-to-po", h.convertToPO)
			r.Get("/{rfq}/comparison", h.compareQuotes)
			r.Post("/{rfq}/budget-check", h.budgetCheck)
		})
		r.Post("/rfq-quotes/{id}/select", h.selectQuote)

		r.Get("/suppliers/{supplier}/exposure", h.supplierExposure)
	})
}

func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
			r = r.WithContext(shared.ContextWithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) listRequisitions(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListRequisitions(r.Context(), listFilters(r))
	h.respond(w, r, http.StatusOK, page, err)
}

func (h *Handler) createRequisition(w http.ResponseWriter, r *http.Request) {
	var req requisitionRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	d := h.dates()
	pr := req.toDomain(d)
	if err := d.err(); err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.CreateRequisition(r.Context(), pr)
	h.respond(w, r, http.StatusCreated, out, err)
}

func (h *Handler) getRequisition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.GetRequisition(r.Context(), id)
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) updateRequisition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req requisitionRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	d := h.dates()
	pr := req.toDomain(d)
	if err := d.err(); err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.UpdateRequisition(r.Context(), id, pr)
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) deleteRequisition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteRequisition(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) approveRequisition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.ApproveRequisition(r.Context(), id)
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) rejectRequisition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.RejectRequisition(r.Context(), id)
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) listPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListPurchaseOrders(r.Context(), listFilters(r))
	h.respond(w, r, http.StatusOK, page, err)
}

func (h *Handler) createPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	po, ok := h.purchaseOrder(w, r)
	if !ok {
		return
	}
	out, err := h.service.CreatePurchaseOrder(r.Context(), po)
	h.respond(w, r, http.StatusCreated, out, err)
}

func (h *Handler) getPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.GetPurchaseOrder(r.Context(), chi.URLParam(r, "po"))
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) updatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	po, ok := h.purchaseOrder(w, r)
	if !ok {
		return
	}
	po.PurchaseOrder = chi.URLParam(r, "po")
	out, err := h.service.UpdatePurchaseOrder(r.Context(), po)
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) purchaseOrder(w http.ResponseWriter, r *http.Request) (PurchaseOrderHeader, bool) {
	var req purchaseOrderRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return PurchaseOrderHeader{}, false
	}
	d := h.dates()
	po := req.toDomain(d)
	if err := d.err(); err != nil {
		h.fail(w, r, err)
		return PurchaseOrderHeader{}, false
	}
	return po, true
}

func (h *Handler) cascadeApprove(w http.ResponseWriter, r *http.Request) {
	sel, ok := h.cascadeSelector(w, r)
	if !ok {
		return
	}
	out, err := h.service.ApprovePurchaseOrderItems(r.Context(), sel)
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) cascadeReject(w http.ResponseWriter, r *http.Request) {
	sel, ok := h.cascadeSelector(w, r)
	if !ok {
		return
	}
	out, err := h.service.RejectPurchaseOrderItems(r.Context(), sel)
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) cascadeSelector(w http.ResponseWriter, r *http.Request) (CascadeSelector, bool) {
	var req cascadeRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return CascadeSelector{}, false
	}
	return CascadeSelector{ItemID: req.ID, PurchaseOrder: req.PurchaseOrder, PurchaseOrderItem: req.PurchaseOrderItem}, true
}

func (h *Handler) listMaterialDocuments(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListMaterialDocuments(r.Context(), listFilters(r))
	h.respond(w, r, http.StatusOK, page, err)
}

func (h *Handler) getMaterialDocument(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.GetMaterialDocument(r.Context(), chi.URLParam(r, "doc"))
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) saveMaterialDocument(create bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req materialDocumentRequest
		if err := h.decode(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
		d := h.dates()
		doc := req.toDomain(d)
		if err := d.err(); err != nil {
			h.fail(w, r, err)
			return
		}
		if !create {
			doc.MaterialDocument = chi.URLParam(r, "doc")
		}
		out, err := h.service.SaveMaterialDocument(r.Context(), doc, create)
		h.respond(w, r, saveStatus(create), out, err)
	}
}

func (h *Handler) listSupplierInvoices(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListSupplierInvoices(r.Context(), listFilters(r))
	h.respond(w, r, http.StatusOK, page, err)
}

func (h *Handler) getSupplierInvoice(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.GetSupplierInvoice(r.Context(), chi.URLParam(r, "inv"))
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) saveSupplierInvoice(create bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req supplierInvoiceRequest
		if err := h.decode(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
		d := h.dates()
		inv := req.toDomain(d)
		if err := d.err(); err != nil {
			h.fail(w, r, err)
			return
		}
		if !create {
			inv.SupplierInvoice = chi.URLParam(r, "inv")
		}
		out, err := h.service.SaveSupplierInvoice(r.Context(), inv, create)
		h.respond(w, r, saveStatus(create), out, err)
	}
}

func (h *Handler) listInfoRecords(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListInfoRecords(r.Context(), listFilters(r))
	h.respond(w, r, http.StatusOK, page, err)
}

func (h *Handler) getInfoRecord(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.GetInfoRecord(r.Context(), chi.URLParam(r, "rec"))
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) saveInfoRecord(create bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req infoRecordRequest
		if err := h.decode(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
		rec := req.toDomain()
		if !create {
			rec.PurchasingInfoRecord = chi.URLParam(r, "rec")
		}
		out, err := h.service.SaveInfoRecord(r.Context(), rec, create)
		h.respond(w, r, saveStatus(create), out, err)
	}
}

func (h *Handler) createRFQ(w http.ResponseWriter, r *http.Request) {
	var req rfqRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	d := h.dates()
	header := req.toDomain(d)
	if err := d.err(); err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.CreateRFQ(r.Context(), header)
	h.respond(w, r, http.StatusCreated, out, err)
}

func (h *Handler) getRFQ(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.GetRFQ(r.Context(), chi.URLParam(r, "rfq"))
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) submitQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	quote := RFQQuote{
		PurchaseOrderItem: req.PurchaseOrderItem,
		Supplier:          req.Supplier,
		Quantity:          req.Quantity,
		NetPrice:          req.NetPrice,
	}
	out, err := h.service.SubmitQuote(r.Context(), chi.URLParam(r, "rfq"), quote)
	h.respond(w, r, http.StatusCreated, out, err)
}

func (h *Handler) sendRFQ(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.SendRFQ(r.Context(), chi.URLParam(r, "rfq"))
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) closeRFQ(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.CloseRFQ(r.Context(), chi.URLParam(r, "rfq"))
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) selectQuote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.SelectQuote(r.Context(), id)
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) convertToPR(w http.ResponseWriter, r *http.Request) {
	var req convertToPRRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	d := h.dates()
	in := ConvertToPRInput{
		PurchasingGroup:         req.PurchasingGroup,
		PurchaseRequisitionType: req.PurchaseRequisitionType,
		DeliveryDate:            d.parse("delivery_date", req.DeliveryDate),
		CostCenter:              req.CostCenter,
	}
	if err := d.err(); err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.ConvertToPR(r.Context(), chi.URLParam(r, "rfq"), in)
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) convertToPO(w http.ResponseWriter, r *http.Request) {
	var req convertToPORequest
	if err := h.decodeOptional(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	d := h.dates()
	in := ConvertToPOInput{
		PurchaseOrder:     req.PurchaseOrder,
		PurchaseOrderType: req.PurchaseOrderType,
		DocumentDate:      d.parse("document_date", req.DocumentDate),
	}
	if err := d.err(); err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.ConvertToPO(r.Context(), chi.URLParam(r, "rfq"), in)
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) compareQuotes(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.CompareQuotes(r.Context(), chi.URLParam(r, "rfq"))
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) budgetCheck(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := h.decodeOptional(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.service.ValidateRFQBudget(r.Context(), chi.URLParam(r, "rfq"), req.Budget)
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) supplierExposure(w http.ResponseWriter, r *http.Request) {
	d := h.dates()
	asOf := d.parse("as_of", r.URL.Query().Get("as_of"))
	if err := d.err(); err != nil {
		h.fail(w, r, err)
		return
	}
	if asOf.IsZero() {
		asOf = time.Now().In(h.location)
	}
	out, err := h.service.SupplierExposure(r.Context(), chi.URLParam(r, "supplier"), asOf)
	h.respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, body any, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, status, body)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error("procurement request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// decode reads a JSON body and checks its shape with the struct tags.
func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	return h.checkShape(target)
}

// decodeOptional is decode for endpoints whose body may be empty.
func (h *Handler) decodeOptional(r *http.Request, target any) error {
	if r.ContentLength == 0 {
		return h.checkShape(target)
	}
	return h.decode(r, target)
}

func (h *Handler) checkShape(target any) error {
	err := h.validator.Struct(target)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%w: %v", httpx.ErrBadRequest, err)
	}
	out := &ValidationError{Document: "payload"}
	for _, fieldErr := range verrs {
		field := fieldErr.Namespace()
		if idx := strings.Index(field, "."); idx >= 0 {
			field = field[idx+1:]
		}
		out.Errors = append(out.Errors, FieldError{Field: field, Message: shapeMessage(field, fieldErr)})
	}
	return out
}

func shapeMessage(field string, fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return fmt.Sprintf("Field '%s' is required.", field)
	case "min":
		return fmt.Sprintf("Field '%s' needs at least %s entries.", field, fieldErr.Param())
	case "max":
		return fmt.Sprintf("Field '%s' must be at most %s characters.", field, fieldErr.Param())
	default:
		return fmt.Sprintf("Field '%s' failed '%s'.", field, fieldErr.Tag())
	}
}

func (h *Handler) dates() *dates {
	return &dates{loc: h.location}
}

func (d *dates) err() error {
	if len(d.errors) == 0 {
		return nil
	}
	return &ValidationError{Document: "payload", Errors: d.errors}
}

func pathID(r *http.Request, param string) (uuid.UUID, error) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id %q", httpx.ErrBadRequest, raw)
	}
	return id, nil
}

func listFilters(r *http.Request) ListFilters {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return ListFilters{
		Page:     page,
		PerPage:  perPage,
		Supplier: strings.TrimSpace(q.Get("supplier")),
		Status:   strings.TrimSpace(q.Get("status")),
	}
}

func saveStatus(create bool) int {
	if create {
		return http.StatusCreated
	}
	return http.StatusOK
}
