// Package e2e provides end-to-end testing utilities for stackd.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/artpar/stackd/internal/core/plan"
	"github.com/artpar/stackd/internal/shell/api"
	"github.com/artpar/stackd/internal/shell/docker"
	"github.com/artpar/stackd/internal/shell/store"
)

// =============================================================================
// Shared State
// =============================================================================

// Shared state for all e2e tests, initialized by TestMain.
var (
	testStore  store.Store
	testDocker docker.Client
	testClient *http.Client
	baseURL    string
	testServer *http.Server
)

// =============================================================================
// HTTP Helpers
// =============================================================================

// HTTPGet performs a GET request and fails the test on transport errors.
func HTTPGet(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := testClient.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	return resp
}

// HTTPDo performs a request with a JSON body and decodes a JSON response
// into out (when out is non-nil). It returns the response status code.
func HTTPDo(t *testing.T, method, url string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := testClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}

	if out != nil && len(data) > 0 && resp.StatusCode < 300 {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("decode response (%d): %v\nbody: %s", resp.StatusCode, err, data)
		}
	}
	if resp.StatusCode >= 400 {
		t.Logf("%s %s -> %d: %s", method, url, resp.StatusCode, data)
	}

	return resp.StatusCode
}

// =============================================================================
// Stack API Helpers
// =============================================================================

// CreateStack registers a stack via the API and fails on error.
func CreateStack(t *testing.T, name, source string, variables map[string]string) api.StackResponse {
	t.Helper()

	var stk api.StackResponse
	code := HTTPDo(t, http.MethodPost, baseURL+"/api/v1/stacks", api.CreateStackRequest{
		Name:      name,
		Source:    source,
		Variables: variables,
	}, &stk)
	if code != http.StatusCreated {
		t.Fatalf("create stack: expected 201, got %d", code)
	}
	return stk
}

// GetStack fetches a stack by ID.
func GetStack(t *testing.T, id string) api.StackResponse {
	t.Helper()

	var stk api.StackResponse
	code := HTTPDo(t, http.MethodGet, baseURL+"/api/v1/stacks/"+id, nil, &stk)
	if code != http.StatusOK {
		t.Fatalf("get stack %s: expected 200, got %d", id, code)
	}
	return stk
}

// ApplyStack applies a stack and returns the resulting state.
func ApplyStack(t *testing.T, id string) api.StackResponse {
	t.Helper()

	var stk api.StackResponse
	code := HTTPDo(t, http.MethodPost, baseURL+"/api/v1/stacks/"+id+"/apply", nil, &stk)
	if code != http.StatusOK {
		t.Fatalf("apply stack %s: expected 200, got %d", id, code)
	}
	return stk
}

// StopStack stops all containers in a stack.
func StopStack(t *testing.T, id string) api.StackResponse {
	t.Helper()

	var stk api.StackResponse
	code := HTTPDo(t, http.MethodPost, baseURL+"/api/v1/stacks/"+id+"/stop", nil, &stk)
	if code != http.StatusOK {
		t.Fatalf("stop stack %s: expected 200, got %d", id, code)
	}
	return stk
}

// DeleteStack removes a stack and its resources.
func DeleteStack(t *testing.T, id string) {
	t.Helper()

	code := HTTPDo(t, http.MethodDelete, baseURL+"/api/v1/stacks/"+id, nil, nil)
	if code != http.StatusNoContent {
		t.Fatalf("delete stack %s: expected 204, got %d", id, code)
	}
}

// StackStatus fetches the live readiness status of a stack.
func StackStatus(t *testing.T, id string) api.StackStatusResponse {
	t.Helper()

	var status api.StackStatusResponse
	code := HTTPDo(t, http.MethodGet, baseURL+"/api/v1/stacks/"+id+"/status", nil, &status)
	if code != http.StatusOK {
		t.Fatalf("stack status %s: expected 200, got %d", id, code)
	}
	return status
}

// ListEvents fetches the apply-history events of a stack.
func ListEvents(t *testing.T, id string) api.ListEventsResponse {
	t.Helper()

	var events api.ListEventsResponse
	code := HTTPDo(t, http.MethodGet, baseURL+"/api/v1/stacks/"+id+"/events", nil, &events)
	if code != http.StatusOK {
		t.Fatalf("list events %s: expected 200, got %d", id, code)
	}
	return events
}

// =============================================================================
// Readiness Waiting
// =============================================================================

// WaitForReadiness polls the status endpoint until the stack-level readiness
// reaches want or the timeout elapses.
func WaitForReadiness(t *testing.T, id, want string, timeout time.Duration) api.StackStatusResponse {
	t.Helper()

	var last api.StackStatusResponse
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		last = StackStatus(t, id)
		if last.Readiness == want {
			return last
		}
		t.Logf("Stack %s readiness: %s (waiting for %s)", id, last.Readiness, want)
		time.Sleep(2 * time.Second)
	}
	t.Fatalf("timeout waiting for stack %s readiness %q (last: %q)", id, want, last.Readiness)
	return last
}

// Eventually retries a condition function until it returns true or timeout.
func Eventually(t *testing.T, timeout, interval time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(interval)
	}
	return false
}

// =============================================================================
// Cleanup Utilities
// =============================================================================

// CleanupAllTestResources removes all stackd-managed containers.
// Use this in TestMain cleanup.
func CleanupAllTestResources(ctx context.Context, d docker.Client) error {
	containers, err := d.ListContainers(docker.ListOptions{
		All: true,
		Filters: map[string]string{
			"label": plan.LabelManaged + "=true",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	for _, c := range containers {
		timeout := 5 * time.Second
		_ = d.StopContainer(c.ID, &timeout)
		_ = d.RemoveContainer(c.ID, docker.RemoveOptions{Force: true, RemoveVolumes: true})
	}

	return nil
}

// ContainersForStack returns all containers labeled with the given stack ID.
func ContainersForStack(ctx context.Context, d docker.Client, stackID string) ([]docker.ContainerInfo, error) {
	return d.ListContainers(docker.ListOptions{
		All: true,
		Filters: map[string]string{
			"label": plan.LabelStack + "=" + stackID,
		},
	})
}
