package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/canteen/internal/domain/cart"
)

type cartLineResponse struct {
	ItemID   string  `json:"itemId"`
	ItemName string  `json:"itemName"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Stock    int     `json:"stock"`
	Total    float64 `json:"total"`
}

type cartResponse struct {
	Items []cartLineResponse `json:"items"`
	Total float64            `json:"total"`
}

func toCart(c *cart.Cart) cartResponse {
	lines := c.Lines()
	out := cartResponse{Items: make([]cartLineResponse, len(lines)), Total: money(c.Total())}
	for i, l := range lines {
		out.Items[i] = cartLineResponse{
			ItemID:   l.ItemID,
			ItemName: l.Name,
			Price:    money(l.Price),
			Quantity: l.Quantity,
			Stock:    l.Stock,
			Total:    money(l.Total()),
		}
	}
	return out
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), identity(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(c))
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Add(r.Context(), identity(r).UserID, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(c))
}

func (h *Handler) removeFromCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Remove(r.Context(), identity(r).UserID, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(c))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), identity(r).UserID); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	o, err := h.carts.Checkout(r.Context(), identity(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrder(*o))
}
