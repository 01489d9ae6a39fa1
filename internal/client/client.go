// Package client implements the HTTP and WebSocket surface the session
// controller consumes: fetching the test definition and identity,
// submitting the attempt, and streaming violations/autosaves.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/preplab/proctord/internal/model"
)

// envelope mirrors the server's response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *envelopeError  `json:"error,omitempty"`
}

type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client talks to the delivery service. It implements session.API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// New creates a client for the given base URL (e.g. http://host:8080)
// using the student's bearer token.
func New(baseURL, token string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("component", "api_client").Logger(),
	}
}

// FetchTest retrieves the student-facing test definition.
func (c *Client) FetchTest(ctx context.Context, testID string) (*model.TestDefinition, error) {
	var test model.TestDefinition
	if err := c.do(ctx, http.MethodGet, "/api/v1/student/tests/"+testID, nil, &test); err != nil {
		return nil, fmt.Errorf("fetch test: %w", err)
	}
	return &test, nil
}

// FetchIdentity retrieves the caller's identity for watermarking.
func (c *Client) FetchIdentity(ctx context.Context) (*model.Identity, error) {
	var id model.Identity
	if err := c.do(ctx, http.MethodGet, "/api/v1/student/me", nil, &id); err != nil {
		return nil, fmt.Errorf("fetch identity: %w", err)
	}
	return &id, nil
}

// SubmitTest posts the submission payload.
func (c *Client) SubmitTest(ctx context.Context, testID string, sub *model.Submission) error {
	if err := c.do(ctx, http.MethodPost, "/api/v1/student/tests/"+testID+"/submit", sub, nil); err != nil {
		return fmt.Errorf("submit test: %w", err)
	}
	return nil
}

// do issues one request and decodes the envelope into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if env.Error != nil {
			return fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
