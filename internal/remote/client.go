// Package remote is an HTTP client for the dashboard API, letting one
// agentherd invocation list and prompt sessions owned by another (possibly
// on another host).
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentherd/agentherd/internal/errs"
	"github.com/agentherd/agentherd/internal/session"
)

// Client talks to a dashboard server.
type Client struct {
	baseURL string
	http    *http.Client
}

// SessionPayload mirrors the dashboard's session listing shape.
type SessionPayload struct {
	session.Info
	Metrics session.Metrics `json:"metrics"`
}

// New creates a client for the dashboard at baseURL, e.g.
// "http://127.0.0.1:7610".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// ListSessions fetches every session the remote manager tracks.
func (c *Client) ListSessions(ctx context.Context) ([]SessionPayload, error) {
	var payload []SessionPayload
	if err := c.get(ctx, "/api/sessions", &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// GetSession fetches one session snapshot by name.
func (c *Client) GetSession(ctx context.Context, name string) (SessionPayload, error) {
	var payload SessionPayload
	if err := c.get(ctx, "/api/sessions/"+name, &payload); err != nil {
		return SessionPayload{}, err
	}
	return payload, nil
}

// StartRequest describes a session to start remotely.
type StartRequest struct {
	Name           string                `json:"name"`
	WorkDir        string                `json:"work_dir"`
	PermissionMode string                `json:"permission_mode,omitempty"`
	SystemPrompt   string                `json:"system_prompt,omitempty"`
	Tags           []string              `json:"tags,omitempty"`
	Restart        session.RestartPolicy `json:"restart"`
}

// StartSession starts a session on the remote manager.
func (c *Client) StartSession(ctx context.Context, req StartRequest) (SessionPayload, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return SessionPayload{}, errs.Wrap(err, "failed to marshal start request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/sessions", bytes.NewReader(body))
	if err != nil {
		return SessionPayload{}, errs.Wrap(err, "failed to build start request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return SessionPayload{}, errs.Wrapf(err, "start request to %s failed", c.baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return SessionPayload{}, apiError(resp)
	}
	var payload SessionPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return SessionPayload{}, errs.Wrap(err, "failed to decode start response")
	}
	return payload, nil
}

// StopSession stops a session on the remote manager.
func (c *Client) StopSession(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/api/sessions/"+name, nil)
	if err != nil {
		return errs.Wrap(err, "failed to build stop request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrapf(err, "stop request to %s failed", c.baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// SendPrompt submits a prompt to a remote session and returns the correlated
// response.
func (c *Client) SendPrompt(ctx context.Context, name, prompt string) (string, error) {
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return "", errs.Wrap(err, "failed to marshal prompt request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/sessions/"+name+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", errs.Wrap(err, "failed to build prompt request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errs.Wrapf(err, "prompt request to %s failed", c.baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}
	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errs.Wrap(err, "failed to decode prompt response")
	}
	return out.Response, nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errs.Wrap(err, "failed to build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrapf(err, "request to %s failed", c.baseURL+path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errs.Wrap(err, "failed to decode response")
	}
	return nil
}

// apiError maps dashboard statuses back onto the error taxonomy.
func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &body)
	msg := body.Error
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return errs.Wrapf(errs.ErrSessionNotFound, "remote: %s", msg)
	case http.StatusConflict:
		return errs.Wrapf(errs.ErrPromptBusy, "remote: %s", msg)
	case http.StatusGatewayTimeout:
		return errs.Wrapf(errs.ErrPromptTimeout, "remote: %s", msg)
	}
	return fmt.Errorf("remote: unexpected status %d: %s", resp.StatusCode, msg)
}
