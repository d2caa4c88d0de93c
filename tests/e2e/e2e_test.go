// Package e2e provides end-to-end tests for stackd.
//
// These tests require a running Docker daemon and will create/destroy
// real containers. Run with:
//
//	go test -v -timeout 10m ./tests/e2e/...
package e2e

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/stackd/internal/shell/api"
	"github.com/artpar/stackd/internal/shell/docker"
	"github.com/artpar/stackd/internal/shell/store"
)

// =============================================================================
// TestMain Setup
// =============================================================================

func TestMain(m *testing.M) {
	code := setup()
	if code != 0 {
		os.Exit(code)
	}

	result := m.Run()

	teardown()

	os.Exit(result)
}

func setup() int {
	log.Println("E2E Setup: Initializing test environment...")

	// 1. Create temp database
	tmpDir, err := os.MkdirTemp("", "stackd_e2e_")
	if err != nil {
		log.Printf("Failed to create temp dir: %v", err)
		return 1
	}
	tmpDB := filepath.Join(tmpDir, "test.db")
	log.Printf("E2E Setup: Using database: %s", tmpDB)

	// 2. Create SQLite store
	s, err := store.NewSQLiteStore(tmpDB)
	if err != nil {
		log.Printf("Failed to create store: %v", err)
		return 1
	}
	testStore = s
	log.Println("E2E Setup: SQLite store initialized")

	// 3. Create Docker client
	d, err := docker.NewDockerClient("")
	if err != nil {
		log.Printf("Failed to create Docker client: %v", err)
		return 1
	}
	testDocker = d
	log.Println("E2E Setup: Docker client created")

	// 4. Verify Docker connection
	if err := d.Ping(); err != nil {
		log.Printf("Failed to ping Docker: %v", err)
		log.Println("Make sure Docker daemon is running")
		return 1
	}
	log.Println("E2E Setup: Docker daemon is reachable")

	// 5. Cleanup any leftover test containers
	log.Println("E2E Setup: Cleaning up any leftover test containers...")
	if err := CleanupAllTestResources(context.Background(), d); err != nil {
		log.Printf("WARN: Failed to cleanup old containers: %v", err)
	}

	// 6. Create HTTP handler
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	handler := api.NewHandler(testStore, testDocker, logger, "stacks.localhost")
	log.Println("E2E Setup: HTTP handler created")

	// 7. Find an available port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Printf("Failed to find available port: %v", err)
		return 1
	}
	port := listener.Addr().(*net.TCPAddr).Port
	baseURL = fmt.Sprintf("http://127.0.0.1:%d", port)
	log.Printf("E2E Setup: Server will listen on port %d", port)

	// 8. Create HTTP server
	testServer = &http.Server{
		Handler: handler.Routes(),
	}

	// 9. Start server in goroutine
	go func() {
		if err := testServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()
	log.Println("E2E Setup: HTTP server started")

	// 10. Create HTTP client
	testClient = &http.Client{
		Timeout: 60 * time.Second,
	}

	// 11. Wait for server to be ready
	if err := waitForReady(baseURL+"/health", 10*time.Second); err != nil {
		log.Printf("Server failed to become ready: %v", err)
		return 1
	}
	log.Println("E2E Setup: Server is ready")

	log.Println("E2E Setup: Complete!")
	return 0
}

func teardown() {
	log.Println("E2E Teardown: Cleaning up...")

	// 1. Shutdown HTTP server
	if testServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		testServer.Shutdown(ctx)
		log.Println("E2E Teardown: HTTP server stopped")
	}

	// 2. Cleanup test containers
	if testDocker != nil {
		CleanupAllTestResources(context.Background(), testDocker)
		testDocker.Close()
		log.Println("E2E Teardown: Docker client closed")
	}

	// 3. Close database
	if testStore != nil {
		testStore.Close()
		log.Println("E2E Teardown: Database closed")
	}

	log.Println("E2E Teardown: Complete!")
}

// waitForReady polls the health endpoint until it responds.
func waitForReady(url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server not ready after %v", timeout)
}
