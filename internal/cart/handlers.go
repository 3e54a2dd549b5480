package cart

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-kasir/internal/common"
	"github.com/noah-isme/toko-kasir/internal/pricing"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc *Service
}

type createRequest struct {
	Channel string `json:"channel" validate:"omitempty,oneof=admin kasir sales"`
}

type addLineRequest struct {
	ProductID  string        `json:"productId" validate:"required"`
	Packages   common.Digits `json:"packages"`
	LooseUnits common.Digits `json:"looseUnits"`
}

type discountRequest struct {
	Mode  string        `json:"mode" validate:"omitempty,oneof=amount percent"`
	Value common.Digits `json:"value"`
}

func (d discountRequest) discount() pricing.Discount {
	return pricing.Discount{Mode: pricing.ParseDiscountMode(d.Mode), Value: d.Value.Int64()}
}

type updateLineRequest struct {
	Packages     *common.Digits   `json:"packages"`
	LooseUnits   *common.Digits   `json:"looseUnits"`
	Price        *common.Digits   `json:"price"`
	Discount     *discountRequest `json:"discount"`
	DiscountMode *string          `json:"discountMode" validate:"omitempty,oneof=amount percent"`
}

type modeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=amount percent"`
}

type paymentRequest struct {
	Method   string        `json:"method" validate:"required,oneof=CASH TRANSFER SPLIT"`
	Amount   common.Digits `json:"amount"`
	Cash     common.Digits `json:"cash"`
	Transfer common.Digits `json:"transfer"`
	DueDate  string        `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
}

type customerRequest struct {
	CustomerID   string `json:"customerId"`
	CustomerName string `json:"customerName"`
}

// Create starts a new cart session.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var payload createRequest
	if r.ContentLength != 0 {
		if err := common.DecodeAndValidate(r, &payload); err != nil {
			h.writeError(w, err)
			return
		}
	}
	channel, _ := ParseChannel(payload.Channel)
	view, err := h.Svc.Create(r.Context(), channel)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, view)
}

// Get returns the cart with its quote.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, view, err)
}

// AddLine adds a product.
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	var payload addLineRequest
	if err := common.DecodeAndValidate(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.Svc.AddLine(r.Context(), chi.URLParam(r, "id"), payload.ProductID, payload.Packages.Int(), payload.LooseUnits.Int())
	h.respond(w, view, err)
}

// UpdateLine edits quantity, price or discount of one line.
func (h *Handler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	var payload updateLineRequest
	if err := common.DecodeAndValidate(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	upd := LineUpdate{
		Packages:   common.DigitsPtr(payload.Packages),
		LooseUnits: common.DigitsPtr(payload.LooseUnits),
	}
	if payload.Price != nil {
		price := payload.Price.Int64()
		upd.Price = &price
	}
	if payload.Discount != nil {
		d := payload.Discount.discount()
		upd.Discount = &d
	}
	if payload.DiscountMode != nil {
		mode := pricing.ParseDiscountMode(*payload.DiscountMode)
		upd.DiscountMode = &mode
	}
	view, err := h.Svc.UpdateLine(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "productId"), upd)
	h.respond(w, view, err)
}

// RemoveLine drops one line.
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.RemoveLine(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "productId"))
	h.respond(w, view, err)
}

// SetDiscount sets the nota discount.
func (h *Handler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	var payload discountRequest
	if err := common.DecodeAndValidate(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.Svc.SetNotaDiscount(r.Context(), chi.URLParam(r, "id"), payload.discount())
	h.respond(w, view, err)
}

// SwitchDiscountMode converts the nota discount between amount and percent.
func (h *Handler) SwitchDiscountMode(w http.ResponseWriter, r *http.Request) {
	var payload modeRequest
	if err := common.DecodeAndValidate(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.Svc.SwitchNotaDiscountMode(r.Context(), chi.URLParam(r, "id"), pricing.ParseDiscountMode(payload.Mode))
	h.respond(w, view, err)
}

// SetPayment records the payment and due date.
func (h *Handler) SetPayment(w http.ResponseWriter, r *http.Request) {
	var payload paymentRequest
	if err := common.DecodeAndValidate(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	var due *time.Time
	if payload.DueDate != "" {
		loc := h.Svc.Location
		if loc == nil {
			loc = time.Local
		}
		d, err := time.ParseInLocation(time.DateOnly, payload.DueDate, loc)
		if err != nil {
			h.writeError(w, ErrInvalidInput)
			return
		}
		due = &d
	}
	p := pricing.Payment{
		Method:   pricing.PaymentMethod(payload.Method),
		Amount:   payload.Amount.Int64(),
		Cash:     payload.Cash.Int64(),
		Transfer: payload.Transfer.Int64(),
	}
	view, err := h.Svc.SetPayment(r.Context(), chi.URLParam(r, "id"), p, due)
	h.respond(w, view, err)
}

// SetCustomer attaches a registered customer or a walk-in name.
func (h *Handler) SetCustomer(w http.ResponseWriter, r *http.Request) {
	var payload customerRequest
	if err := common.DecodeAndValidate(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	if strings.TrimSpace(payload.CustomerID) == "" && strings.TrimSpace(payload.CustomerName) == "" {
		h.writeError(w, ErrInvalidInput)
		return
	}
	view, err := h.Svc.SetCustomer(r.Context(), chi.URLParam(r, "id"), payload.CustomerID, payload.CustomerName)
	h.respond(w, view, err)
}

// Reset empties the cart.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.Reset(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, view, err)
}

// StartEdit loads a committed order into a new cart.
func (h *Handler) StartEdit(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.StartEdit(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, view)
}

func (h *Handler) respond(w http.ResponseWriter, view View, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case common.IsAppError(err):
		common.WriteError(w, err)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart not found", nil)
	case errors.Is(err, ErrLineNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product is not in the cart", nil)
	case errors.Is(err, ErrProductNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
	case errors.Is(err, ErrCustomerNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "customer not found", nil)
	case errors.Is(err, ErrOrderNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrUpstream):
		common.JSONError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "stock data is unavailable, please retry", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
