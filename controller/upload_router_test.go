package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"resumable-upload/controller/respond"
	"resumable-upload/database"
	"resumable-upload/service/upload_service"
	"resumable-upload/storage"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ledger, err := database.NewPebbleLedger(&database.PebbleConfig{DataDir: "mem", FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	writer, err := storage.NewChunkWriter(t.TempDir())
	require.NoError(t, err)

	svc := upload_service.NewUploadService(ledger, writer, upload_service.Options{
		DefaultChunkSize: 4,
		MaxChunkSize:     16,
		MaxFileSize:      1024,
	})
	return SetupUploadRouter(svc)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, r *gin.Engine, method, path string, body []byte) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestUploadFlow(t *testing.T) {
	r := newTestRouter(t)
	content := []byte("abcdefghij")

	code, env := do(t, r, http.MethodPost, "/api/v1/uploads/handshake",
		[]byte(`{"sessionId":"flow-1","filename":"a.txt","totalSize":10,"totalChunks":3}`))
	require.Equal(t, http.StatusOK, code, env.Message)
	var hs upload_service.HandshakeResponse
	require.NoError(t, json.Unmarshal(env.Data, &hs))
	assert.Equal(t, int64(4), hs.ChunkSize)
	assert.Empty(t, hs.ReceivedIndices)

	code, env = do(t, r, http.MethodPost, "/api/v1/uploads/flow-1/finalize", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, respond.CodeIncomplete, env.Code)
	var incomplete respond.IncompleteData
	require.NoError(t, json.Unmarshal(env.Data, &incomplete))
	assert.Equal(t, 3, incomplete.PendingCount)

	for i, part := range [][]byte{content[:4], content[4:8], content[8:]} {
		code, env = do(t, r, http.MethodPut, fmt.Sprintf("/api/v1/uploads/flow-1/chunks/%d", i), part)
		require.Equal(t, http.StatusOK, code, env.Message)
	}

	code, env = do(t, r, http.MethodGet, "/api/v1/uploads/flow-1", nil)
	require.Equal(t, http.StatusOK, code)
	var status upload_service.StatusResponse
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, []int{0, 1, 2}, status.ReceivedIndices)

	code, env = do(t, r, http.MethodPost, "/api/v1/uploads/flow-1/finalize", nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	var fin upload_service.FinalizeResponse
	require.NoError(t, json.Unmarshal(env.Data, &fin))
	assert.Equal(t, "COMPLETED", fin.Status)
	assert.Equal(t, "72399361da6a7754fec986dca5b7cbaf1c810a28ded4abaf56b2106d06cb78b0", fin.Hash)
	assert.Equal(t, []string{}, fin.ContentListing)

	code, _ = do(t, r, http.MethodPost, "/api/v1/uploads/flow-1/reset", nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestUploadErrors(t *testing.T) {
	r := newTestRouter(t)

	code, env := do(t, r, http.MethodPost, "/api/v1/uploads/handshake", []byte(`{"sessionId":"x"}`))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, respond.CodeInvalidParam, env.Code)

	code, env = do(t, r, http.MethodGet, "/api/v1/uploads/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, respond.CodeNotFound, env.Code)

	code, _ = do(t, r, http.MethodPost, "/api/v1/uploads/handshake",
		[]byte(`{"sessionId":"err-1","filename":"a.txt","totalSize":10,"totalChunks":3}`))
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, r, http.MethodPut, "/api/v1/uploads/err-1/chunks/abc", []byte("abcd"))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, r, http.MethodPut, "/api/v1/uploads/err-1/chunks/0", bytes.Repeat([]byte("a"), 17))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, r, http.MethodPut, "/api/v1/uploads/err-1/chunks/2", []byte("abcd"))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Contains(t, w.Body.String(), `"ledger"`)
}
