// Package model invokes the external language-model service behind
// external-call nodes. The engine sees exactly two failure modes: timeout
// and transport error, both wrapped as ErrExternalCall.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/convoflow/engine/pkg/api"
	"github.com/convoflow/engine/pkg/log"
)

type (
	// Client performs a single external model/tool invocation
	Client interface {
		Invoke(context.Context, *api.CallRequest) (*api.CallResponse, error)
	}

	// HTTPClient invokes a chat-completion style HTTP endpoint
	HTTPClient struct {
		httpClient *http.Client
		endpoint   string
	}
)

var (
	// ErrExternalCall wraps any timeout or transport failure of the model
	// service. The engine treats it as recoverable; no checkpoint is
	// committed and the node is re-attempted on resume
	ErrExternalCall = errors.New("external call failed")

	ErrModelHTTPError = errors.New("model service returned HTTP error")
)

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a model client for the given endpoint. The timeout
// bounds each invocation end to end
func NewHTTPClient(endpoint string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		endpoint: endpoint,
	}
}

// Invoke posts the call request and decodes the model's response
func (c *HTTPClient) Invoke(
	ctx context.Context, req *api.CallRequest,
) (*api.CallResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalCall, err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalCall, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	dur := time.Since(start)

	if err != nil {
		slog.Error("Model request failed",
			slog.String("model", req.Model),
			slog.Duration("duration", dur),
			log.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrExternalCall, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalCall, err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("Model HTTP error",
			slog.String("model", req.Model),
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(respBody)))
		return nil, fmt.Errorf("%w: %w: HTTP %d",
			ErrExternalCall, ErrModelHTTPError, resp.StatusCode)
	}

	var response api.CallResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalCall, err)
	}

	slog.Debug("Model call completed",
		slog.String("model", req.Model),
		slog.Duration("duration", dur))
	return &response, nil
}
