package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"resumable-upload/apperr"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{name: "validation", err: apperr.Validation("bad index"), wantStatus: http.StatusBadRequest, wantCode: CodeInvalidParam},
		{name: "not found", err: apperr.NotFound("abc"), wantStatus: http.StatusNotFound, wantCode: CodeNotFound},
		{name: "conflict", err: apperr.Conflict("busy"), wantStatus: http.StatusConflict, wantCode: CodeConflict},
		{name: "incomplete", err: apperr.Incomplete(2), wantStatus: http.StatusConflict, wantCode: CodeIncomplete},
		{name: "io", err: apperr.IO(errors.New("disk full"), "write chunk"), wantStatus: http.StatusInternalServerError, wantCode: CodeServerError},
		{name: "unclassified", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: CodeServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			Error(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
			if tt.name == "unclassified" {
				assert.Equal(t, "internal server error", resp.Message)
			}
		})
	}
}

func TestIncompleteCarriesPendingCount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	Error(c, apperr.Incomplete(3))

	var resp struct {
		Code int            `json:"code"`
		Data IncompleteData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Data.PendingCount)
}

func TestTimingMiddlewareSetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TimingMiddleware())
	r.GET("/ping", func(c *gin.Context) { Success(c, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "given-id")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "given-id", w.Header().Get(RequestIDHeader))
}
