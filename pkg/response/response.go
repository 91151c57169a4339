package response

import (
	"errors"
	"net/http"
	"time"

	"card-escrow-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

const (
	unknownErrorCode    = "SYS_000"
	unknownErrorMessage = "Internal server error"
)

// SuccessResponse wraps every successful payload.
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id"`
	Timestamp string      `json:"timestamp"`
}

// ErrorResponse carries a stable error code; causes never leave the process.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// OK writes data with 200.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, success(c, data))
}

// Created writes data with 201.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, success(c, data))
}

// Error writes err as an error envelope. Anything that is not an
// *apperror.AppError anywhere in the chain becomes an opaque 500.
func Error(c *gin.Context, err error) {
	status, body := http.StatusInternalServerError, ErrorResponse{
		ErrorCode: unknownErrorCode,
		Message:   unknownErrorMessage,
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status = appErr.HTTPStatus
		body.ErrorCode = appErr.Code
		body.Message = appErr.Message
	}

	body.RequestID = RequestID(c)
	body.Timestamp = now()
	c.JSON(status, body)
}

// RequestID returns the id assigned by the request id middleware. Outside
// that middleware a fresh id is generated so envelopes are never blank.
func RequestID(c *gin.Context) string {
	if id, ok := c.Get(RequestIDKey); ok {
		if s, ok := id.(string); ok && s != "" {
			return s
		}
	}
	return uuid.NewString()
}

func success(c *gin.Context, data interface{}) SuccessResponse {
	return SuccessResponse{
		Data:      data,
		RequestID: RequestID(c),
		Timestamp: now(),
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
