package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ragchat/internal/domain"
	"ragchat/internal/session"
)

const (
	CodeOK                   = 0
	CodeBadRequest           = 40000
	CodeEmptyQuestion        = 40001
	CodeSessionNotFound      = 40401
	CodeUnreadableDocument   = 42201
	CodeEmptyDocument        = 42202
	CodeInternalServer       = 50000
	CodeEmbeddingUnavailable = 50201
	CodeGenerationFailed     = 50202
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// Status maps an operation error to its HTTP status and API code.
func Status(err error) (int, int) {
	switch {
	case errors.Is(err, domain.ErrEmptyQuestion):
		return http.StatusBadRequest, CodeEmptyQuestion
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, CodeSessionNotFound
	case errors.Is(err, domain.ErrUnreadableDocument):
		return http.StatusUnprocessableEntity, CodeUnreadableDocument
	case errors.Is(err, domain.ErrEmptyDocument):
		return http.StatusUnprocessableEntity, CodeEmptyDocument
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		return http.StatusBadGateway, CodeEmbeddingUnavailable
	case errors.Is(err, domain.ErrGenerationFailed):
		return http.StatusBadGateway, CodeGenerationFailed
	default:
		return http.StatusInternalServerError, CodeInternalServer
	}
}

// Fail writes err with the status Status assigns to it.
func Fail(c *gin.Context, err error) {
	status, code := Status(err)
	Error(c, status, code, err.Error())
}
