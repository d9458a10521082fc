package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/canteen/internal/domain/cart"
	"github.com/xenking/canteen/internal/domain/item"
	"github.com/xenking/canteen/internal/domain/order"
	"github.com/xenking/canteen/internal/domain/session"
	"github.com/xenking/canteen/internal/domain/user"
	"github.com/xenking/canteen/pkg/httpmiddleware"
)

// errBadRequest wraps malformed request bodies.
var errBadRequest = errors.New("malformed request body")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	httpmiddleware.WriteError(w, status, msg)
}

// fail maps err to a status code and writes the error body. Server errors
// are logged with the full chain and reported with the wrapped message.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, msg)
}

func classify(err error) (int, string) {
	var (
		validation   *item.ValidationError
		fields       validator.ValidationErrors
		badStatus    *order.InvalidStatusError
		badLine      *order.InvalidLineError
		mismatch     *order.TotalMismatchError
		stock        *cart.StockError
		roleMismatch *session.RoleMismatchError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Message
	case errors.As(err, &fields):
		return http.StatusBadRequest, describe(fields)
	case errors.As(err, &badStatus):
		return http.StatusBadRequest, badStatus.Error()
	case errors.Is(err, errBadRequest),
		errors.Is(err, session.ErrMissingCredentials),
		errors.Is(err, order.ErrEmptyLines),
		errors.Is(err, order.ErrUserRequired),
		errors.Is(err, cart.ErrEmpty):
		return http.StatusBadRequest, err.Error()

	case errors.As(err, &badLine):
		return http.StatusUnprocessableEntity, badLine.Error()
	case errors.As(err, &mismatch):
		return http.StatusUnprocessableEntity, mismatch.Error()

	case errors.Is(err, session.ErrIncorrectPassword):
		return http.StatusUnauthorized, session.ErrIncorrectPassword.Error()
	case errors.As(err, &roleMismatch):
		return http.StatusForbidden, roleMismatch.Error()
	case errors.Is(err, order.ErrForbidden):
		return http.StatusForbidden, order.ErrForbidden.Error()

	case errors.Is(err, item.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, order.ErrRepairNotFound),
		errors.Is(err, user.ErrNotFound),
		errors.Is(err, cart.ErrNotInCart):
		return http.StatusNotFound, err.Error()

	case errors.Is(err, user.ErrEmailTaken),
		errors.Is(err, order.ErrNotCancellable),
		errors.Is(err, order.ErrTerminalStatus):
		return http.StatusConflict, err.Error()
	case errors.As(err, &stock):
		return http.StatusConflict, stock.Error()

	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// describe renders the first failed field of a validated request.
func describe(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return "invalid request"
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}
