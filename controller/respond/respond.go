package respond

import (
	"log"
	"net/http"
	"time"

	"resumable-upload/apperr"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Business codes carried in Response.Code
const (
	CodeSuccess      = 0
	CodeInvalidParam = 40000
	CodeNotFound     = 40400
	CodeConflict     = 40900
	CodeIncomplete   = 40901
	CodeServerError  = 50000
)

const (
	startTimeKey    = "requestStart"
	RequestIDHeader = "X-Request-Id"
)

// Response unified response envelope
type Response struct {
	Code           int         `json:"code" example:"0"`
	Message        string      `json:"message" example:"success"`
	ProcessingTime int64       `json:"processingTime" example:"3"` // Milliseconds
	Data           interface{} `json:"data"`
}

// IncompleteData payload of an Incomplete finalize rejection
type IncompleteData struct {
	PendingCount int `json:"pendingCount" example:"2"`
}

// TimingMiddleware records the request start time and tags each request with an id
func TimingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(startTimeKey, time.Now())
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

func elapsed(c *gin.Context) int64 {
	if v, ok := c.Get(startTimeKey); ok {
		if start, ok := v.(time.Time); ok {
			return time.Since(start).Milliseconds()
		}
	}
	return 0
}

func write(c *gin.Context, httpStatus, code int, message string, data interface{}) {
	c.JSON(httpStatus, Response{
		Code:           code,
		Message:        message,
		ProcessingTime: elapsed(c),
		Data:           data,
	})
}

// Success 200 with data
func Success(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, CodeSuccess, "success", data)
}

// InvalidParam 400
func InvalidParam(c *gin.Context, message string) {
	write(c, http.StatusBadRequest, CodeInvalidParam, message, nil)
}

// NotFound 404
func NotFound(c *gin.Context, message string) {
	write(c, http.StatusNotFound, CodeNotFound, message, nil)
}

// Conflict 409
func Conflict(c *gin.Context, message string) {
	write(c, http.StatusConflict, CodeConflict, message, nil)
}

// Incomplete 409 carrying the number of chunks still pending
func Incomplete(c *gin.Context, message string, pendingCount int) {
	write(c, http.StatusConflict, CodeIncomplete, message, IncompleteData{PendingCount: pendingCount})
}

// ServerError 500
func ServerError(c *gin.Context, message string) {
	write(c, http.StatusInternalServerError, CodeServerError, message, nil)
}

// Error maps a classified error to its response
func Error(c *gin.Context, err error) {
	switch apperr.CategoryOf(err) {
	case apperr.CategoryValidation:
		InvalidParam(c, err.Error())
	case apperr.CategoryNotFound:
		NotFound(c, err.Error())
	case apperr.CategoryConflict:
		Conflict(c, err.Error())
	case apperr.CategoryIncomplete:
		Incomplete(c, err.Error(), apperr.PendingCountOf(err))
	case apperr.CategoryIO:
		ServerError(c, err.Error())
	default:
		// Unclassified errors may carry internals; log them and keep the response generic
		log.Printf("Internal error %s %s [%s]: %v", c.Request.Method, c.Request.URL.Path, c.Writer.Header().Get(RequestIDHeader), err)
		ServerError(c, "internal server error")
	}
}
