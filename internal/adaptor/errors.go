package adaptor

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"cinema-checkout/internal/usecase"
	"cinema-checkout/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// errorBody is the errors payload for tagged service errors.
type errorBody struct {
	Kind   usecase.ErrorKind `json:"kind"`
	Reason string            `json:"reason,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// writeServiceError maps a service error to its HTTP status. Untagged errors
// are internal and their message is not exposed.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error, operation string) {
	var svcErr *usecase.Error
	if !errors.As(err, &svcErr) {
		log.Error(operation+" failed", zap.Error(err), zap.String("operation", operation))
		utils.ResponseInternalError(w, "Internal server error")
		return
	}

	body := errorBody{Kind: svcErr.Kind, Reason: svcErr.Reason, Fields: svcErr.Fields}
	fields := []zap.Field{
		zap.Error(err),
		zap.String("operation", operation),
		zap.String("kind", string(svcErr.Kind)),
	}

	switch svcErr.Kind {
	case usecase.KindValidation:
		log.Warn(operation+" validation failed", fields...)
		utils.ResponseBadRequest(w, svcErr.Error(), body)

	case usecase.KindNotFound:
		log.Warn(operation+" failed - not found", fields...)
		utils.ResponseNotFound(w, svcErr.Error())

	case usecase.KindConflict, usecase.KindStale, usecase.KindInvalidState:
		log.Warn(operation+" failed - conflict", fields...)
		utils.ResponseConflict(w, svcErr.Error(), body)

	case usecase.KindVoucherRejected:
		log.Info(operation+" failed - voucher rejected", fields...)
		utils.ResponseUnprocessable(w, svcErr.Error(), body)

	case usecase.KindGatewayUnavailable:
		log.Error(operation+" failed - payment gateway unavailable", fields...)
		utils.ResponseUnavailable(w, svcErr.Error())

	default:
		log.Error(operation+" failed", fields...)
		utils.ResponseInternalError(w, "Internal server error")
	}
}

// decodeBody reads a JSON body. An empty body is accepted when optional is set.
func decodeBody(r *http.Request, dst any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func uuidParam(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
