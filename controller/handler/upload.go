package handler

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"resumable-upload/controller/respond"
	"resumable-upload/service/upload_service"

	"github.com/gin-gonic/gin"
)

// UploadHandler upload handler
type UploadHandler struct {
	uploadService *upload_service.UploadService
}

// NewUploadHandler create upload handler instance
func NewUploadHandler(uploadService *upload_service.UploadService) *UploadHandler {
	return &UploadHandler{
		uploadService: uploadService,
	}
}

// bindJSONWithOptionalGzip handles JSON payloads that may be gzip-compressed.
// If the request header specifies gzip encoding, the body is decompressed before binding.
func bindJSONWithOptionalGzip(c *gin.Context, obj interface{}) error {
	encoding := strings.ToLower(strings.TrimSpace(c.GetHeader("Content-Encoding")))
	if strings.Contains(encoding, "gzip") {
		defer c.Request.Body.Close()

		gzipReader, err := gzip.NewReader(c.Request.Body)
		if err != nil {
			return err
		}
		defer gzipReader.Close()

		bodyBytes, err := io.ReadAll(gzipReader)
		if err != nil {
			return err
		}

		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		c.Request.ContentLength = int64(len(bodyBytes))
		c.Request.Header.Del("Content-Encoding")
	}

	return c.ShouldBindJSON(obj)
}

// Handshake create or resume upload session
// @Summary      Handshake
// @Description  Create the session or resume it. Returns the chunk indices the server already holds.
// @Tags         Resumable Upload
// @Accept       json
// @Produce      json
// @Param        request  body      upload_service.HandshakeRequest  true  "Session geometry"
// @Success      200      {object}  respond.Response{data=upload_service.HandshakeResponse}
// @Failure      400      {object}  respond.Response  "Parameter error"
// @Failure      500      {object}  respond.Response  "Server error"
// @Router       /uploads/handshake [post]
func (h *UploadHandler) Handshake(c *gin.Context) {
	var req upload_service.HandshakeRequest
	if err := bindJSONWithOptionalGzip(c, &req); err != nil {
		respond.InvalidParam(c, "invalid request: "+err.Error())
		return
	}

	resp, err := h.uploadService.Handshake(c.Request.Context(), &req)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Success(c, resp)
}

// UploadChunk upload one chunk
// @Summary      Upload chunk
// @Description  Write the raw request body as chunk {index}. Repeating a received chunk is a no-op.
// @Tags         Resumable Upload
// @Accept       application/octet-stream
// @Produce      json
// @Param        sessionId  path      string  true  "Session ID"
// @Param        index      path      int     true  "Zero-based chunk index"
// @Success      200        {object}  respond.Response{data=upload_service.ChunkResponse}
// @Failure      400        {object}  respond.Response  "Parameter error"
// @Failure      404        {object}  respond.Response  "Session not found"
// @Failure      500        {object}  respond.Response  "Server error"
// @Router       /uploads/{sessionId}/chunks/{index} [put]
func (h *UploadHandler) UploadChunk(c *gin.Context) {
	sessionID := c.Param("sessionId")
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		respond.InvalidParam(c, "index must be an integer")
		return
	}

	limit := h.uploadService.Options().MaxChunkSize
	body := http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.InvalidParam(c, "chunk exceeds max chunk size")
			return
		}
		respond.InvalidParam(c, "failed to read chunk body")
		return
	}

	resp, err := h.uploadService.UploadChunk(c.Request.Context(), sessionID, index, data)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Success(c, resp)
}

// GetStatus query session status
// @Summary      Session status
// @Description  Status and received chunk indices. Hash and listing are set once COMPLETED.
// @Tags         Resumable Upload
// @Produce      json
// @Param        sessionId  path      string  true  "Session ID"
// @Success      200        {object}  respond.Response{data=upload_service.StatusResponse}
// @Failure      404        {object}  respond.Response  "Session not found"
// @Router       /uploads/{sessionId} [get]
func (h *UploadHandler) GetStatus(c *gin.Context) {
	resp, err := h.uploadService.Status(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Success(c, resp)
}

// Finalize finalize session
// @Summary      Finalize
// @Description  Hash, inspect and publish the assembled file. 409 while another finalize runs or chunks are pending.
// @Tags         Resumable Upload
// @Produce      json
// @Param        sessionId  path      string  true  "Session ID"
// @Success      200        {object}  respond.Response{data=upload_service.FinalizeResponse}
// @Failure      404        {object}  respond.Response  "Session not found"
// @Failure      409        {object}  respond.Response{data=respond.IncompleteData}  "Conflict or incomplete"
// @Failure      500        {object}  respond.Response  "Finalize failed"
// @Router       /uploads/{sessionId}/finalize [post]
func (h *UploadHandler) Finalize(c *gin.Context) {
	resp, err := h.uploadService.Finalize(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Success(c, resp)
}

// Reset reset failed session
// @Summary      Reset failed session
// @Description  Move a FAILED session back to UPLOADING. Received chunks are kept.
// @Tags         Resumable Upload
// @Produce      json
// @Param        sessionId  path      string  true  "Session ID"
// @Success      200        {object}  respond.Response{data=upload_service.StatusResponse}
// @Failure      404        {object}  respond.Response  "Session not found"
// @Failure      409        {object}  respond.Response  "Session is not FAILED"
// @Router       /uploads/{sessionId}/reset [post]
func (h *UploadHandler) Reset(c *gin.Context) {
	resp, err := h.uploadService.Reset(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Success(c, resp)
}
