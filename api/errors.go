package api

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/qubic/go-vesting-ledger/business/domain/vesting"
	"github.com/qubic/go-vesting-ledger/entities"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var validationErrors = []error{
	entities.ErrInvalidTimeRange,
	entities.ErrInvalidCliff,
	entities.ErrInvalidInterval,
	entities.ErrInvalidName,
	entities.ErrInvalidIdentity,
	entities.ErrInvalidAmount,
}

var preconditionErrors = []error{
	entities.ErrCliffNotReached,
	entities.ErrNothingToClaim,
	entities.ErrVestingRevoked,
	entities.ErrNotRevocable,
	entities.ErrAlreadyRevoked,
	entities.ErrScheduleExists,
	entities.ErrInsufficientFunds,
	entities.ErrCustodyClosed,
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, entities.ErrScheduleNotFound):
		return http.StatusNotFound
	case errors.Is(err, entities.ErrUnauthorized):
		return http.StatusForbidden
	case isAny(err, validationErrors):
		return http.StatusBadRequest
	case isAny(err, preconditionErrors):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusCode(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Errorw("Error handling request", "error", err)
		if !errors.Is(err, entities.ErrMathOverflow) {
			message = "internal error"
		}
	}
	h.writeProblem(w, status, vesting.Reason(err), message)
}

func (h *Handler) writeProblem(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
