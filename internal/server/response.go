package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fintrack/receipt-processor/internal/common"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondWithError(c *gin.Context, status int, message, code string) {
	c.JSON(status, ErrorResponse{Error: message, Code: code})
}

// respondWithDomainError maps application errors to HTTP statuses.
func respondWithDomainError(c *gin.Context, err error) {
	var verr *common.ValidationError
	switch {
	case errors.As(err, &verr):
		respondWithError(c, http.StatusUnprocessableEntity, verr.Message, verr.Code)
	case errors.Is(err, common.ErrNotFound):
		respondWithError(c, http.StatusNotFound, "resource not found", "")
	case errors.Is(err, common.ErrInvalidInput):
		respondWithError(c, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, common.ErrInvalidTransition):
		respondWithError(c, http.StatusConflict, err.Error(), "")
	case errors.Is(err, common.ErrNoTransactions),
		errors.Is(err, common.ErrExtractionFailed),
		errors.Is(err, common.ErrStructuringFailed):
		respondWithError(c, http.StatusUnprocessableEntity, err.Error(), "")
	default:
		respondWithError(c, http.StatusInternalServerError, "internal server error", "")
	}
}
