package handler

import (
	"bytes"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/canteen/internal/domain/order"
	"github.com/xenking/canteen/internal/report"
)

type orderItemResponse struct {
	ID         string  `json:"id"`
	OrderID    string  `json:"orderId"`
	ItemID     string  `json:"itemId"`
	ItemName   string  `json:"itemName"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
	TotalPrice float64 `json:"totalPrice"`
}

type orderResponse struct {
	OrderID     string              `json:"orderID"`
	UserID      string              `json:"userId"`
	TotalAmount float64             `json:"totalAmount"`
	OrderDate   time.Time           `json:"orderDate"`
	Status      order.Status        `json:"status"`
	Items       []orderItemResponse `json:"items"`
	User        *userResponse       `json:"user,omitempty"`
}

func toOrder(o order.Order) orderResponse {
	out := orderResponse{
		OrderID:     o.ID,
		UserID:      o.UserID,
		TotalAmount: money(o.TotalAmount),
		OrderDate:   o.OrderDate,
		Status:      o.Status,
		Items:       make([]orderItemResponse, len(o.Items)),
	}
	for i, it := range o.Items {
		out.Items[i] = orderItemResponse{
			ID:         it.ID,
			OrderID:    it.OrderID,
			ItemID:     it.ItemID,
			ItemName:   it.ItemName,
			Quantity:   it.Quantity,
			Price:      money(it.Price),
			TotalPrice: money(it.TotalPrice),
		}
	}
	if o.User != nil {
		u := toUser(o.User)
		out.User = &u
	}
	return out
}

func toOrders(orders []order.Order) []orderResponse {
	out := make([]orderResponse, len(orders))
	for i, o := range orders {
		out[i] = toOrder(o)
	}
	return out
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type statusTotalResponse struct {
	Status  order.Status `json:"status"`
	Orders  int          `json:"orders"`
	Revenue float64      `json:"revenue"`
}

type summaryResponse struct {
	Orders   int                   `json:"orders"`
	Revenue  float64               `json:"revenue"`
	ByStatus []statusTotalResponse `json:"byStatus"`
}

type repairResponse struct {
	ID         string       `json:"id"`
	Operation  string       `json:"operation"`
	OrderID    string       `json:"orderId"`
	Target     order.Target `json:"target"`
	Action     order.Action `json:"action"`
	DocumentID string       `json:"documentId"`
	Error      string       `json:"error"`
	CreatedAt  time.Time    `json:"createdAt"`
}

func (h *Handler) listOwnOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.FetchOrdersByUser(r.Context(), identity(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrders(orders))
}

func (h *Handler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.FetchAllOrders(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrders(orders))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	actor := order.Actor{UserID: id.UserID, Admin: id.Admin}
	if err := h.orders.CancelOrder(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := h.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.orders.UpdateOrderStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(*o))
}

func (h *Handler) advanceStatus(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.AdvanceOrderStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(*o))
}

func (h *Handler) exportOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.FetchAllOrders(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteOrders(&buf, orders); err != nil {
		fail(w, r, errors.Wrap(err, "export orders"))
		return
	}
	attachment(w, "orders.xlsx", buf.Bytes())
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.orders.Summary(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := summaryResponse{
		Orders:   s.Orders,
		Revenue:  money(s.Revenue),
		ByStatus: make([]statusTotalResponse, len(s.ByStatus)),
	}
	for i, t := range s.ByStatus {
		out.ByStatus[i] = statusTotalResponse{Status: t.Status, Orders: t.Orders, Revenue: money(t.Revenue)}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listRepairs(w http.ResponseWriter, r *http.Request) {
	repairs, err := h.orders.ListRepairs(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]repairResponse, len(repairs))
	for i, rp := range repairs {
		out[i] = repairResponse{
			ID:         rp.ID,
			Operation:  rp.Operation,
			OrderID:    rp.OrderID,
			Target:     rp.Target,
			Action:     rp.Action,
			DocumentID: rp.DocumentID,
			Error:      rp.Error,
			CreatedAt:  rp.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) retryRepair(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.RetryRepair(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
