package slot_api

import (
	"errors"
	"fmt"
	"net/http"

	"ms-reviews/internal/common"
	"ms-reviews/internal/utils"
)

var statusByKind = map[common.Kind]int{
	common.KindNotFound:      http.StatusNotFound,
	common.KindStateConflict: http.StatusConflict,
	common.KindLimitExceeded: http.StatusTooManyRequests,
	common.KindValidation:    http.StatusUnprocessableEntity,
	common.KindNotAuthorized: http.StatusForbidden,
	common.KindPrecondition:  http.StatusPreconditionFailed,
	common.KindTransient:     http.StatusServiceUnavailable,
}

type conflictBody struct {
	SlotID int64  `json:"slot_id"`
	Status string `json:"status"`
}

type limitBody struct {
	Count int `json:"count"`
	Limit int `json:"limit"`
}

// writeError maps err onto the response envelope with the status of its kind.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	kind := common.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	resp := utils.ErrorResponse(http.StatusText(status), err.Error()).WithCode(kind.String())
	var conflict *common.StateConflictError
	var limit *common.LimitError
	var verr *common.ValidationError
	switch {
	case errors.As(err, &conflict):
		resp.Data = conflictBody{SlotID: conflict.SlotID, Status: string(conflict.Actual)}
	case errors.As(err, &limit):
		resp.Data = limitBody{Count: limit.Count, Limit: limit.Limit}
	case errors.As(err, &verr):
		resp = resp.WithFields(verr.Fields)
	}
	if status == http.StatusInternalServerError {
		// Internal details stay in the log.
		resp.Error = "internal error"
		h.Logger.Error("API", fmt.Sprintf("%s %s: %s: %v", r.Method, r.URL.Path, op, err))
	} else {
		h.Logger.Warn("API", fmt.Sprintf("%s %s: %s: %v", r.Method, r.URL.Path, op, err))
	}

	utils.WriteJSON(w, status, resp)
}

// retryOnce runs fn again when its first failure is transient.
func retryOnce(fn func() error) error {
	err := fn()
	if common.IsTransient(err) {
		err = fn()
	}
	return err
}
