package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wricardo/mcp-training/guardpatrol/puzzle/engine"
	"github.com/wricardo/mcp-training/guardpatrol/puzzle/service"
)

// Client drives a patrol session on a running server through its REST API
type Client struct {
	baseURL   string
	sessionID string
	client    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SessionID returns the session the client is bound to
func (c *Client) SessionID() string {
	return c.sessionID
}

// CreateSession starts a new session for puzzle (the server default when
// empty) and binds the client to it
func (c *Client) CreateSession(ctx context.Context, puzzle string) (*engine.PatrolState, error) {
	var body interface{}
	if puzzle != "" {
		body = map[string]string{"puzzle_id": puzzle}
	}

	var info service.SessionInfo
	if err := c.do(ctx, http.MethodPost, "/api/sessions", body, &info); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	c.sessionID = info.ID
	return info.PatrolState, nil
}

// Resume binds the client to an existing session
func (c *Client) Resume(ctx context.Context, sessionID string) (*engine.PatrolState, error) {
	c.sessionID = sessionID
	state, err := c.GetState(ctx)
	if err != nil {
		c.sessionID = ""
		return nil, err
	}
	return state, nil
}

func (c *Client) GetState(ctx context.Context) (*engine.PatrolState, error) {
	var state engine.PatrolState
	if err := c.do(ctx, http.MethodGet, c.sessionPath("/state"), nil, &state); err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	return &state, nil
}

// Step advances the guard up to steps rule applications
func (c *Client) Step(ctx context.Context, steps int) (*service.StepResult, error) {
	req := map[string]int{"steps": steps}

	var result service.StepResult
	if err := c.do(ctx, http.MethodPost, c.sessionPath("/step"), req, &result); err != nil {
		return nil, fmt.Errorf("step: %w", err)
	}
	return &result, nil
}

type resetResponse struct {
	Message string              `json:"message"`
	State   *engine.PatrolState `json:"state"`
}

func (c *Client) Reset(ctx context.Context) (*engine.PatrolState, error) {
	var resp resetResponse
	if err := c.do(ctx, http.MethodPost, c.sessionPath("/reset"), nil, &resp); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	return resp.State, nil
}

func (c *Client) PlaceObstacle(ctx context.Context, p engine.Position) (*engine.PatrolState, error) {
	var state engine.PatrolState
	if err := c.do(ctx, http.MethodPost, c.sessionPath("/obstacles"), p, &state); err != nil {
		return nil, fmt.Errorf("place obstacle at %s: %w", p, err)
	}
	return &state, nil
}

func (c *Client) ClearObstacles(ctx context.Context) (*engine.PatrolState, error) {
	var state engine.PatrolState
	if err := c.do(ctx, http.MethodDelete, c.sessionPath("/obstacles"), nil, &state); err != nil {
		return nil, fmt.Errorf("clear obstacles: %w", err)
	}
	return &state, nil
}

func (c *Client) sessionPath(suffix string) string {
	return "/api/sessions/" + url.PathEscape(c.sessionID) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("%s", resp.Status)
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}
