package handler

import (
	"bytes"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/canteen/internal/domain/item"
	"github.com/xenking/canteen/internal/report"
)

type itemResponse struct {
	ItemID   string  `json:"itemId"`
	ItemName string  `json:"itemName"`
	Stock    int     `json:"stock"`
	Price    float64 `json:"price"`
}

func toItem(it item.Item) itemResponse {
	return itemResponse{
		ItemID:   it.ID,
		ItemName: it.Name,
		Stock:    it.Stock,
		Price:    money(it.Price),
	}
}

// decodeItemInput reads {"itemName", "stock", "price"}. Stock and price
// may be JSON numbers or numeric strings, as entered in a form field.
func decodeItemInput(r io.Reader) (item.Input, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBody))
	if err != nil {
		return item.Input{}, errors.Errorf("%w: %v", errBadRequest, err)
	}

	var (
		in                  item.Input
		hasStock, hasPrice  bool
		stockText, priceTxt string
	)
	err = jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "itemName":
			s, err := d.Str()
			in.Name = s
			return err
		case "stock":
			hasStock = true
			stockText, err = scalar(d)
			return err
		case "price":
			hasPrice = true
			priceTxt, err = scalar(d)
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return item.Input{}, errors.Errorf("%w: %v", errBadRequest, err)
	}

	if !hasStock {
		return item.Input{}, &item.ValidationError{Field: "stock", Message: "Quantity is required"}
	}
	if !hasPrice {
		return item.Input{}, &item.ValidationError{Field: "price", Message: "Price is required"}
	}
	if in.Stock, err = item.ParseStock(stockText); err != nil {
		return item.Input{}, err
	}
	if in.Price, err = item.ParsePrice(priceTxt); err != nil {
		return item.Input{}, err
	}
	return in, nil
}

// scalar returns a number or string value as text.
func scalar(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	default:
		return "", d.Skip()
	}
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]itemResponse, len(items))
	for i, it := range items {
		out[i] = toItem(it)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	in, err := decodeItemInput(r.Body)
	if err != nil {
		fail(w, r, err)
		return
	}
	it, err := h.catalog.Add(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItem(*it))
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	in, err := decodeItemInput(r.Body)
	if err != nil {
		fail(w, r, err)
		return
	}
	it, err := h.catalog.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(*it))
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) exportItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteItems(&buf, items); err != nil {
		fail(w, r, errors.Wrap(err, "export items"))
		return
	}
	attachment(w, "items.xlsx", buf.Bytes())
}

func attachment(w http.ResponseWriter, name string, data []byte) {
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func money(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
