package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/artpar/stackd/internal/shell/api"
)

// apiClient is a thin HTTP client for the stackd API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// apiError is a non-2xx response from the server.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach stackd at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return &apiError{Status: resp.StatusCode, Code: errResp.Code, Message: errResp.Error}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *apiClient) createStack(ctx context.Context, req api.CreateStackRequest) (*api.StackResponse, error) {
	var stk api.StackResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/stacks", req, &stk); err != nil {
		return nil, err
	}
	return &stk, nil
}

func (c *apiClient) getStack(ctx context.Context, ref string) (*api.StackResponse, error) {
	var stk api.StackResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/stacks/"+ref, nil, &stk); err != nil {
		return nil, err
	}
	return &stk, nil
}

func (c *apiClient) listStacks(ctx context.Context) (*api.ListStacksResponse, error) {
	var list api.ListStacksResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/stacks", nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *apiClient) applyStack(ctx context.Context, ref string) (*api.StackResponse, error) {
	var stk api.StackResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/stacks/"+ref+"/apply", nil, &stk); err != nil {
		return nil, err
	}
	return &stk, nil
}

func (c *apiClient) stopStack(ctx context.Context, ref string) (*api.StackResponse, error) {
	var stk api.StackResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/stacks/"+ref+"/stop", nil, &stk); err != nil {
		return nil, err
	}
	return &stk, nil
}

func (c *apiClient) deleteStack(ctx context.Context, ref string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/stacks/"+ref, nil, nil)
}

func (c *apiClient) stackStatus(ctx context.Context, ref string) (*api.StackStatusResponse, error) {
	var status api.StackStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/stacks/"+ref+"/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *apiClient) listEvents(ctx context.Context, ref string) (*api.ListEventsResponse, error) {
	var events api.ListEventsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/stacks/"+ref+"/events", nil, &events); err != nil {
		return nil, err
	}
	return &events, nil
}
