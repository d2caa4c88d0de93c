package edge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/artpar/stackd/internal/core/domain"
	"github.com/artpar/stackd/internal/shell/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := Config{
		BaseDomain: "stacks.test.io",
	}

	server, err := NewServer(cfg, st, nil)
	require.NoError(t, err)

	return server, st
}

func seedStack(t *testing.T, st store.Store, name string, status domain.StackStatus, port int, hostname string) *domain.Stack {
	t.Helper()

	stk, err := domain.NewStack(name, "services:\n  web:\n    image: nginx:alpine\n", nil)
	require.NoError(t, err)
	stk.Status = status
	stk.EdgePort = port
	stk.Hostname = hostname
	require.NoError(t, st.CreateStack(context.Background(), stk))
	return stk
}

// backendPort starts a test HTTP backend and returns its port, so a seeded
// stack's edge port can point at it.
func backendPort(t *testing.T, handler http.HandlerFunc) int {
	t.Helper()

	backend := httptest.NewServer(handler)
	t.Cleanup(backend.Close)

	u, err := url.Parse(backend.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return port
}

func TestServer_NotFound(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "http://unknown.stacks.test.io/", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, 404, rec.Code)
	assert.Contains(t, rec.Body.String(), "Stack Not Found")
	assert.Contains(t, rec.Body.String(), "unknown.stacks.test.io")
}

func TestServer_Stopped(t *testing.T) {
	server, st := setupTestServer(t)
	seedStack(t, st, "blog", domain.StatusStopped, 30001, "")

	req := httptest.NewRequest("GET", "http://blog.stacks.test.io/", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, 503, rec.Code)
	assert.Contains(t, rec.Body.String(), "Stack Stopped")
}

func TestServer_ProxiesToRunningStack(t *testing.T) {
	server, st := setupTestServer(t)

	var gotStackID string
	port := backendPort(t, func(w http.ResponseWriter, r *http.Request) {
		gotStackID = r.Header.Get("X-Stack-ID")
		w.WriteHeader(200)
		w.Write([]byte("hello from upstream"))
	})

	stk := seedStack(t, st, "blog", domain.StatusRunning, port, "")

	req := httptest.NewRequest("GET", "http://blog.stacks.test.io/", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "hello from upstream", rec.Body.String())
	assert.Equal(t, stk.ID, gotStackID)
}

func TestServer_ProxiesDegradedStack(t *testing.T) {
	server, st := setupTestServer(t)

	port := backendPort(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("still serving"))
	})

	seedStack(t, st, "blog", domain.StatusDegraded, port, "")

	req := httptest.NewRequest("GET", "http://blog.stacks.test.io/", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "still serving", rec.Body.String())
}

func TestServer_CustomHostname(t *testing.T) {
	server, st := setupTestServer(t)

	port := backendPort(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("custom domain"))
	})

	seedStack(t, st, "shop", domain.StatusRunning, port, "shop.example.com")

	req := httptest.NewRequest("GET", "http://shop.example.com/checkout", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "custom domain", rec.Body.String())
}

func TestServer_UpstreamFailure(t *testing.T) {
	server, st := setupTestServer(t)

	// Port 1 has nothing listening, so the proxy dial fails.
	seedStack(t, st, "blog", domain.StatusRunning, 1, "")

	req := httptest.NewRequest("GET", "http://blog.stacks.test.io/", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, 502, rec.Code)
	assert.Contains(t, rec.Body.String(), "Bad Gateway")
}

func TestServer_RunningWithoutPort(t *testing.T) {
	server, st := setupTestServer(t)
	seedStack(t, st, "blog", domain.StatusRunning, 0, "")

	req := httptest.NewRequest("GET", "http://blog.stacks.test.io/", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, 503, rec.Code)
}

func TestServer_Healthz(t *testing.T) {
	server, st := setupTestServer(t)
	seedStack(t, st, "blog", domain.StatusRunning, 30001, "")
	seedStack(t, st, "shop", domain.StatusStopped, 30002, "")

	req := httptest.NewRequest("GET", "http://stacks.test.io/healthz", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.StacksRoutable)
	assert.Equal(t, "stacks.test.io", resp.BaseDomain)
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		remoteIP string
		want     string
	}{
		{
			name:     "X-Real-IP header",
			headers:  map[string]string{"X-Real-IP": "1.2.3.4"},
			remoteIP: "127.0.0.1:1234",
			want:     "1.2.3.4",
		},
		{
			name:     "X-Forwarded-For header",
			headers:  map[string]string{"X-Forwarded-For": "1.2.3.4, 5.6.7.8"},
			remoteIP: "127.0.0.1:1234",
			want:     "1.2.3.4",
		},
		{
			name:     "fall back to remote address",
			headers:  map[string]string{},
			remoteIP: "192.168.1.1:5555",
			want:     "192.168.1.1:5555",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteIP
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			got := getRealIP(req)
			assert.Equal(t, tt.want, got)
		})
	}
}
