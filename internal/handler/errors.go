package handler

import (
	"net/http"
	"sort"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/vconn/internal/domain/contract"
	"github.com/xenking/vconn/internal/domain/order"
	"github.com/xenking/vconn/internal/domain/quota"
)

// apiError is the {"code":…,"message":…} envelope with optional detail.
type apiError struct {
	Code       int
	Message    string
	Reason     order.Reason
	Violations map[string]string
}

func (a apiError) encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.FieldStart("code")
		e.Int(a.Code)
		e.FieldStart("message")
		e.Str(a.Message)
		if a.Reason != "" {
			e.FieldStart("reason")
			e.Str(string(a.Reason))
		}
		if len(a.Violations) > 0 {
			keys := make([]string, 0, len(a.Violations))
			for k := range a.Violations {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			e.FieldStart("violations")
			e.Obj(func(e *jx.Encoder) {
				for _, k := range keys {
					e.FieldStart(k)
					e.Str(a.Violations[k])
				}
			})
		}
	})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeAPIError(w, apiError{Code: code, Message: msg})
}

func writeAPIError(w http.ResponseWriter, a apiError) {
	writeJSON(w, a.Code, a.encode)
}

// classify maps a service error to its HTTP rendering. Unknown errors are
// reported as 500 with ok=false.
func classify(err error) (a apiError, ok bool) {
	var (
		inel *order.IneligibleError
		verr *contract.ValidationError
	)
	switch {
	case errors.As(err, &inel):
		return apiError{Code: http.StatusUnprocessableEntity, Message: err.Error(), Reason: inel.Reason}, true
	case errors.As(err, &verr):
		return apiError{Code: http.StatusBadRequest, Message: "invalid contract fields", Violations: verr.Violations}, true
	case errors.Is(err, errBadBody),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, contract.ErrInvalid):
		return apiError{Code: http.StatusBadRequest, Message: err.Error()}, true
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, contract.ErrNotFound),
		errors.Is(err, quota.ErrUnknownActor):
		return apiError{Code: http.StatusNotFound, Message: err.Error()}, true
	case errors.Is(err, contract.ErrAlreadyAccepted):
		return apiError{Code: http.StatusConflict, Message: err.Error()}, true
	case errors.Is(err, contract.ErrNotOpen),
		errors.Is(err, order.ErrNotEligible),
		errors.Is(err, order.ErrQuotaExceeded):
		return apiError{Code: http.StatusUnprocessableEntity, Message: err.Error()}, true
	}
	return apiError{Code: http.StatusInternalServerError, Message: "internal error"}, false
}

// fail renders err, logging anything that is not a business outcome.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	a, ok := classify(err)
	if !ok {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeAPIError(w, a)
}
