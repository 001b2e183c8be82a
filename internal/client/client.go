package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/apperr"
)

// Timeouts bounds every call to the API. Light covers reads and small
// writes; Heavy covers question loading, finalize and uploads.
type Timeouts struct {
	Light time.Duration
	Heavy time.Duration
}

// maxResponseBytes caps how much of an API response body is read.
const maxResponseBytes = 8 << 20

// DefaultTimeouts mirrors the bounds the exam page has always used.
var DefaultTimeouts = Timeouts{Light: 15 * time.Second, Heavy: 20 * time.Second}

// Client talks to the rendiciones API on behalf of one student.
type Client struct {
	baseURL  string
	http     *http.Client
	token    string
	timeouts Timeouts
	log      zerolog.Logger
}

// New creates a Client without a token. Use WithToken per student session.
func New(baseURL string, timeouts Timeouts, log zerolog.Logger) *Client {
	if timeouts.Light <= 0 {
		timeouts.Light = DefaultTimeouts.Light
	}
	if timeouts.Heavy <= 0 {
		timeouts.Heavy = DefaultTimeouts.Heavy
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     cleanhttp.DefaultPooledClient(),
		timeouts: timeouts,
		log:      log.With().Str("component", "api_client").Logger(),
	}
}

// WithToken returns a shallow copy that authenticates as the given bearer.
// The underlying connection pool is shared.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// errorBody covers the error shapes the API answers with.
type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, op, method, path string, timeout time.Duration, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, op, out)
}

func (c *Client) send(req *http.Request, op string, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("op", op).Dur("elapsed", time.Since(start)).Msg("API request failed")
		return apperr.NewConnectivityError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return apperr.NewConnectivityError(op, err)
	}
	oversized := len(raw) > maxResponseBytes
	if oversized {
		c.log.Warn().Str("op", op).Int("status", resp.StatusCode).Msg("API response body over limit")
		raw = nil
	}

	c.log.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("API request")

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(op, resp.StatusCode, raw)
	}

	if oversized {
		return fmt.Errorf("%s: response body exceeds %d bytes", op, maxResponseBytes)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func decodeAPIError(op string, status int, raw []byte) error {
	apiErr := &apperr.APIError{Op: op, Status: status}

	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil {
		apiErr.Message = eb.Message
		apiErr.Code = eb.Code
		if eb.Error != nil {
			if apiErr.Message == "" {
				apiErr.Message = eb.Error.Message
			}
			if apiErr.Code == "" {
				apiErr.Code = eb.Error.Code
			}
		}
	}
	return apiErr
}
