package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Response is the success envelope
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// ErrorResponse is the error envelope returned by every service
type ErrorResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    data,
	})
}

// NewError builds an error envelope stamped with the current time
func NewError(message string, errs map[string]string) ErrorResponse {
	return ErrorResponse{
		Success:   false,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Errors:    errs,
	}
}

func Error(c *gin.Context, status int, message string) {
	c.JSON(status, NewError(message, nil))
}

// ValidationError responds 400 with per-field messages
func ValidationError(c *gin.Context, message string, errs map[string]string) {
	c.JSON(http.StatusBadRequest, NewError(message, errs))
}

func InternalError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, message)
}
