package uploadclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"resumable-upload/apperr"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

// incompleteCode business code the server uses for finalize with pending chunks
const incompleteCode = 40901

// HandshakeRequest session geometry sent on handshake
type HandshakeRequest struct {
	SessionID   string `json:"sessionId"`
	FileName    string `json:"filename"`
	TotalSize   int64  `json:"totalSize"`
	TotalChunks int    `json:"totalChunks"`
	ChunkSize   int64  `json:"chunkSize,omitempty"`
}

// SessionState server view of a session
type SessionState struct {
	SessionID       string
	Status          string
	ChunkSize       int64
	TotalChunks     int
	ReceivedIndices []int
	Hash            string
	ContentListing  []string
	FailureReason   string
}

// Transport the scheduler's view of the upload service
type Transport interface {
	Handshake(ctx context.Context, req HandshakeRequest) (*SessionState, error)
	UploadChunk(ctx context.Context, sessionID string, index int, data []byte) error
	Status(ctx context.Context, sessionID string) (*SessionState, error)
	Finalize(ctx context.Context, sessionID string) (*SessionState, error)
}

// HTTPTransport talks to the upload API. Control calls retry transport-level failures
// on their own; chunk uploads do not, the scheduler owns their retries.
type HTTPTransport struct {
	baseURL string
	control *retryablehttp.Client
	chunks  *retryablehttp.Client
	logger  log.Logger
}

// NewHTTPTransport create HTTP transport for baseURL, e.g. http://localhost:7282
func NewHTTPTransport(baseURL string, logger log.Logger) *HTTPTransport {
	control := retryhttp.NewClient(logger)
	control.CheckRetry = retryPolicy
	control.ErrorHandler = retryablehttp.PassthroughErrorHandler

	chunks := retryhttp.NewClient(logger)
	chunks.RetryMax = 0
	chunks.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1/uploads",
		control: control,
		chunks:  chunks,
		logger:  logger,
	}
}

// retryPolicy retries connection failures and gateway errors only. A 500 from finalize
// is a recorded failure, repeating it changes nothing.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

func (t *HTTPTransport) Handshake(ctx context.Context, req HandshakeRequest) (*SessionState, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	data, err := t.do(ctx, t.control, http.MethodPost, t.baseURL+"/handshake", "application/json", body)
	if err != nil {
		return nil, err
	}
	return parseSessionState(data), nil
}

func (t *HTTPTransport) UploadChunk(ctx context.Context, sessionID string, index int, data []byte) error {
	url := fmt.Sprintf("%s/%s/chunks/%d", t.baseURL, sessionID, index)
	_, err := t.do(ctx, t.chunks, http.MethodPut, url, "application/octet-stream", data)
	return err
}

func (t *HTTPTransport) Status(ctx context.Context, sessionID string) (*SessionState, error) {
	data, err := t.do(ctx, t.control, http.MethodGet, t.baseURL+"/"+sessionID, "", nil)
	if err != nil {
		return nil, err
	}
	return parseSessionState(data), nil
}

func (t *HTTPTransport) Finalize(ctx context.Context, sessionID string) (*SessionState, error) {
	data, err := t.do(ctx, t.control, http.MethodPost, t.baseURL+"/"+sessionID+"/finalize", "", nil)
	if err != nil {
		return nil, err
	}
	return parseSessionState(data), nil
}

// do sends one request and returns the envelope's data field, or a classified error
func (t *HTTPTransport) do(ctx context.Context, client *retryablehttp.Client, method, url, contentType string, body []byte) (gjson.Result, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return gjson.Result{}, apperr.Validation("build request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	// Add Content-Length header manually because retryablehttp doesn't do it automatically
	req.ContentLength = int64(len(body))

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return gjson.Result{}, ctx.Err()
		}
		if resp == nil {
			return gjson.Result{}, apperr.Transient(err)
		}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, apperr.Transient(fmt.Errorf("read response: %w", err))
	}
	if err := classifyResponse(resp.StatusCode, payload); err != nil {
		t.logger.Debugf("%s %s -> %d: %v", method, url, resp.StatusCode, err)
		return gjson.Result{}, err
	}
	return gjson.GetBytes(payload, "data"), nil
}

// classifyResponse maps an HTTP status and envelope onto the error taxonomy
func classifyResponse(status int, payload []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	message := gjson.GetBytes(payload, "message").String()
	if message == "" {
		message = http.StatusText(status)
	}
	cause := errors.New(message)

	switch {
	case status == http.StatusBadRequest:
		return apperr.Wrap(cause, apperr.CategoryValidation, "rejected")
	case status == http.StatusNotFound:
		return apperr.Wrap(cause, apperr.CategoryNotFound, "unknown session")
	case status == http.StatusConflict && gjson.GetBytes(payload, "code").Int() == incompleteCode:
		return apperr.Incomplete(int(gjson.GetBytes(payload, "data.pendingCount").Int()))
	case status == http.StatusConflict:
		return apperr.Wrap(cause, apperr.CategoryConflict, "conflict")
	case status == http.StatusTooManyRequests, status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return apperr.Transient(fmt.Errorf("status %d: %w", status, cause))
	default:
		return apperr.IO(cause, "server error %d", status)
	}
}

// parseSessionState reads handshake, status and finalize payloads alike
func parseSessionState(data gjson.Result) *SessionState {
	state := &SessionState{
		SessionID:     data.Get("sessionId").String(),
		Status:        data.Get("status").String(),
		ChunkSize:     data.Get("chunkSize").Int(),
		TotalChunks:   int(data.Get("totalChunks").Int()),
		Hash:          data.Get("hash").String(),
		FailureReason: data.Get("failureReason").String(),
	}
	if state.Hash == "" {
		state.Hash = data.Get("finalHash").String()
	}
	state.ReceivedIndices = []int{}
	for _, v := range data.Get("receivedIndices").Array() {
		state.ReceivedIndices = append(state.ReceivedIndices, int(v.Int()))
	}
	state.ContentListing = []string{}
	for _, v := range data.Get("contentListing").Array() {
		state.ContentListing = append(state.ContentListing, v.String())
	}
	return state
}
