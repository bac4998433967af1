package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/domain"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/http/response"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/repository"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/service"
)

// OrderHandler is the thin order surface the payment flow hangs off. Placing
// an order immediately issues its first payment token.
type OrderHandler struct {
	orders repository.OrderRepository
	issuer *service.TokenIssuer
	now    func() time.Time
}

func NewOrderHandler(orders repository.OrderRepository, issuer *service.TokenIssuer) *OrderHandler {
	return &OrderHandler{orders: orders, issuer: issuer, now: time.Now}
}

type createOrderRequest struct {
	OrderNumber string `json:"orderNumber"`
	Items       []struct {
		Name      string          `json:"name"`
		Quantity  int             `json:"quantity"`
		UnitPrice decimal.Decimal `json:"unitPrice"`
	} `json:"items"`
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.OrderNumber == "" || len(req.Items) == 0 {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "orderNumber and items are required", nil)
		return
	}

	order := &domain.Order{
		OrderNumber: req.OrderNumber,
		Status:      domain.OrderStatusPending,
	}
	total := decimal.Zero
	for _, it := range req.Items {
		if it.Name == "" || it.Quantity <= 0 {
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "each item needs a name and a positive quantity", nil)
			return
		}
		order.Items = append(order.Items, domain.OrderItem{
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	order.TotalAmount = total

	if err := h.orders.Create(r.Context(), order); err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to create order", nil)
		return
	}

	token, err := h.issuer.Issue(r.Context(), order.ID)
	if err != nil {
		writeFlowError(w, r, err, "RATE_LIMITED")
		return
	}

	response.JSON(w, r, http.StatusCreated, map[string]any{
		"order": order,
		"token": tokenViewAt(token, h.now()),
	})
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	order, err := h.orders.FindByID(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, order)
}
