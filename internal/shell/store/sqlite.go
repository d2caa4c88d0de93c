package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/stackd/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Stack Operations
// =============================================================================

// stackRow represents a stack row in the database.
type stackRow struct {
	ID              string  `db:"id"`
	Name            string  `db:"name"`
	Slug            string  `db:"slug"`
	Source          string  `db:"source"`
	Variables       *string `db:"variables"`
	EnvFiles        *string `db:"env_files"`
	Hostname        *string `db:"hostname"`
	EdgePort        int     `db:"edge_port"`
	Status          string  `db:"status"`
	Containers      *string `db:"containers"`
	ResourcesCPU    float64 `db:"resources_cpu_cores"`
	ResourcesMemory int64   `db:"resources_memory_mb"`
	ResourcesDisk   int64   `db:"resources_disk_mb"`
	ErrorMessage    string  `db:"error_message"`
	CreatedAt       string  `db:"created_at"`
	UpdatedAt       string  `db:"updated_at"`
	AppliedAt       *string `db:"applied_at"`
	StoppedAt       *string `db:"stopped_at"`
}

func (s *SQLiteStore) CreateStack(ctx context.Context, stack *domain.Stack) error {
	return createStack(ctx, s.db, stack)
}

func (s *SQLiteStore) GetStack(ctx context.Context, id string) (*domain.Stack, error) {
	return getStack(ctx, s.db, id)
}

func (s *SQLiteStore) GetStackBySlug(ctx context.Context, slug string) (*domain.Stack, error) {
	return getStackBySlug(ctx, s.db, slug)
}

func (s *SQLiteStore) GetStackByHostname(ctx context.Context, hostname string) (*domain.Stack, error) {
	return getStackByHostname(ctx, s.db, hostname)
}

func (s *SQLiteStore) UpdateStack(ctx context.Context, stack *domain.Stack) error {
	return updateStack(ctx, s.db, stack)
}

func (s *SQLiteStore) DeleteStack(ctx context.Context, id string) error {
	return deleteStack(ctx, s.db, id)
}

func (s *SQLiteStore) ListStacks(ctx context.Context, opts ListOptions) ([]domain.Stack, error) {
	return listStacks(ctx, s.db, opts)
}

func (s *SQLiteStore) ListStacksByStatus(ctx context.Context, status domain.StackStatus) ([]domain.Stack, error) {
	return listStacksByStatus(ctx, s.db, status)
}

func (s *SQLiteStore) GetUsedEdgePorts(ctx context.Context) ([]int, error) {
	return getUsedEdgePorts(ctx, s.db)
}

func (s *SQLiteStore) CountRoutableStacks(ctx context.Context) (int, error) {
	return countRoutableStacks(ctx, s.db)
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, event *domain.Event) error {
	return recordEvent(ctx, s.db, event)
}

func (s *SQLiteStore) ListEvents(ctx context.Context, stackID string, limit int, eventType *string) ([]domain.Event, error) {
	return listEvents(ctx, s.db, stackID, limit, eventType)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateStack(ctx context.Context, stack *domain.Stack) error {
	return createStack(ctx, s.tx, stack)
}

func (s *txSQLiteStore) GetStack(ctx context.Context, id string) (*domain.Stack, error) {
	return getStack(ctx, s.tx, id)
}

func (s *txSQLiteStore) GetStackBySlug(ctx context.Context, slug string) (*domain.Stack, error) {
	return getStackBySlug(ctx, s.tx, slug)
}

func (s *txSQLiteStore) GetStackByHostname(ctx context.Context, hostname string) (*domain.Stack, error) {
	return getStackByHostname(ctx, s.tx, hostname)
}

func (s *txSQLiteStore) UpdateStack(ctx context.Context, stack *domain.Stack) error {
	return updateStack(ctx, s.tx, stack)
}

func (s *txSQLiteStore) DeleteStack(ctx context.Context, id string) error {
	return deleteStack(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListStacks(ctx context.Context, opts ListOptions) ([]domain.Stack, error) {
	return listStacks(ctx, s.tx, opts)
}

func (s *txSQLiteStore) ListStacksByStatus(ctx context.Context, status domain.StackStatus) ([]domain.Stack, error) {
	return listStacksByStatus(ctx, s.tx, status)
}

func (s *txSQLiteStore) GetUsedEdgePorts(ctx context.Context) ([]int, error) {
	return getUsedEdgePorts(ctx, s.tx)
}

func (s *txSQLiteStore) CountRoutableStacks(ctx context.Context) (int, error) {
	return countRoutableStacks(ctx, s.tx)
}

func (s *txSQLiteStore) RecordEvent(ctx context.Context, event *domain.Event) error {
	return recordEvent(ctx, s.tx, event)
}

func (s *txSQLiteStore) ListEvents(ctx context.Context, stackID string, limit int, eventType *string) ([]domain.Event, error) {
	return listEvents(ctx, s.tx, stackID, limit, eventType)
}

// WithTx on a transaction store reuses the existing transaction.
func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	return nil
}

// =============================================================================
// Stack Query Implementations
// =============================================================================

func createStack(ctx context.Context, exec executor, stack *domain.Stack) error {
	variablesJSON, err := json.Marshal(stack.Variables)
	if err != nil {
		return NewStoreError("CreateStack", "stack", stack.ID, "failed to serialize variables", ErrInvalidData)
	}
	envFilesJSON, err := json.Marshal(stack.EnvFiles)
	if err != nil {
		return NewStoreError("CreateStack", "stack", stack.ID, "failed to serialize env files", ErrInvalidData)
	}
	containersJSON, err := json.Marshal(stack.Containers)
	if err != nil {
		return NewStoreError("CreateStack", "stack", stack.ID, "failed to serialize containers", ErrInvalidData)
	}

	query := `
		INSERT INTO stacks (
			id, name, slug, source, variables, env_files, hostname, edge_port, status,
			containers, resources_cpu_cores, resources_memory_mb, resources_disk_mb,
			error_message, created_at, updated_at, applied_at, stopped_at
		) VALUES (
			:id, :name, :slug, :source, :variables, :env_files, :hostname, :edge_port, :status,
			:containers, :resources_cpu_cores, :resources_memory_mb, :resources_disk_mb,
			:error_message, :created_at, :updated_at, :applied_at, :stopped_at
		)`

	_, err = exec.NamedExecContext(ctx, query, stackToNamedArgs(stack, string(variablesJSON), string(envFilesJSON), string(containersJSON)))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: stacks.id") {
			return NewStoreError("CreateStack", "stack", stack.ID, "stack with this ID already exists", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed: stacks.slug") {
			return NewStoreError("CreateStack", "stack", stack.ID, "stack with this slug already exists", ErrDuplicateSlug)
		}
		if strings.Contains(err.Error(), "idx_stacks_hostname") {
			return NewStoreError("CreateStack", "stack", stack.ID, "stack with this hostname already exists", ErrDuplicateHostname)
		}
		return NewStoreError("CreateStack", "stack", stack.ID, err.Error(), err)
	}

	return nil
}

func getStack(ctx context.Context, exec executor, id string) (*domain.Stack, error) {
	var row stackRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM stacks WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetStack", "stack", id, "stack not found", ErrNotFound)
		}
		return nil, NewStoreError("GetStack", "stack", id, err.Error(), err)
	}
	return rowToStack(&row)
}

func getStackBySlug(ctx context.Context, exec executor, slug string) (*domain.Stack, error) {
	var row stackRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM stacks WHERE slug = ?`, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetStackBySlug", "stack", slug, "stack not found", ErrNotFound)
		}
		return nil, NewStoreError("GetStackBySlug", "stack", slug, err.Error(), err)
	}
	return rowToStack(&row)
}

func getStackByHostname(ctx context.Context, exec executor, hostname string) (*domain.Stack, error) {
	var row stackRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM stacks WHERE hostname = ?`, hostname)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetStackByHostname", "stack", hostname, "stack not found", ErrNotFound)
		}
		return nil, NewStoreError("GetStackByHostname", "stack", hostname, err.Error(), err)
	}
	return rowToStack(&row)
}

func updateStack(ctx context.Context, exec executor, stack *domain.Stack) error {
	variablesJSON, err := json.Marshal(stack.Variables)
	if err != nil {
		return NewStoreError("UpdateStack", "stack", stack.ID, "failed to serialize variables", ErrInvalidData)
	}
	envFilesJSON, err := json.Marshal(stack.EnvFiles)
	if err != nil {
		return NewStoreError("UpdateStack", "stack", stack.ID, "failed to serialize env files", ErrInvalidData)
	}
	containersJSON, err := json.Marshal(stack.Containers)
	if err != nil {
		return NewStoreError("UpdateStack", "stack", stack.ID, "failed to serialize containers", ErrInvalidData)
	}

	query := `
		UPDATE stacks SET
			name = :name,
			slug = :slug,
			source = :source,
			variables = :variables,
			env_files = :env_files,
			hostname = :hostname,
			edge_port = :edge_port,
			status = :status,
			containers = :containers,
			resources_cpu_cores = :resources_cpu_cores,
			resources_memory_mb = :resources_memory_mb,
			resources_disk_mb = :resources_disk_mb,
			error_message = :error_message,
			updated_at = :updated_at,
			applied_at = :applied_at,
			stopped_at = :stopped_at
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, stackToNamedArgs(stack, string(variablesJSON), string(envFilesJSON), string(containersJSON)))
	if err != nil {
		if strings.Contains(err.Error(), "idx_stacks_hostname") {
			return NewStoreError("UpdateStack", "stack", stack.ID, "stack with this hostname already exists", ErrDuplicateHostname)
		}
		return NewStoreError("UpdateStack", "stack", stack.ID, err.Error(), err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return NewStoreError("UpdateStack", "stack", stack.ID, err.Error(), err)
	}
	if rows == 0 {
		return NewStoreError("UpdateStack", "stack", stack.ID, "stack not found", ErrNotFound)
	}

	return nil
}

func deleteStack(ctx context.Context, exec executor, id string) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM stacks WHERE id = ?`, id)
	if err != nil {
		return NewStoreError("DeleteStack", "stack", id, err.Error(), err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return NewStoreError("DeleteStack", "stack", id, err.Error(), err)
	}
	if rows == 0 {
		return NewStoreError("DeleteStack", "stack", id, "stack not found", ErrNotFound)
	}

	return nil
}

func listStacks(ctx context.Context, exec executor, opts ListOptions) ([]domain.Stack, error) {
	opts = opts.applyDefaults()

	var rows []stackRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM stacks ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListStacks", "stack", "", err.Error(), err)
	}

	return rowsToStacks(rows)
}

func listStacksByStatus(ctx context.Context, exec executor, status domain.StackStatus) ([]domain.Stack, error) {
	var rows []stackRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM stacks WHERE status = ? ORDER BY created_at DESC`,
		string(status))
	if err != nil {
		return nil, NewStoreError("ListStacksByStatus", "stack", "", err.Error(), err)
	}

	return rowsToStacks(rows)
}

func getUsedEdgePorts(ctx context.Context, exec executor) ([]int, error) {
	var ports []int
	err := exec.SelectContext(ctx, &ports,
		`SELECT edge_port FROM stacks WHERE edge_port > 0 AND status NOT IN ('removed')`)
	if err != nil {
		return nil, NewStoreError("GetUsedEdgePorts", "stack", "", err.Error(), err)
	}
	return ports, nil
}

func countRoutableStacks(ctx context.Context, exec executor) (int, error) {
	var count int
	err := exec.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM stacks WHERE status IN ('running', 'degraded') AND edge_port > 0`)
	if err != nil {
		return 0, NewStoreError("CountRoutableStacks", "stack", "", err.Error(), err)
	}
	return count, nil
}

// =============================================================================
// Event Query Implementations
// =============================================================================

// eventRow represents an apply-history event row in the database.
type eventRow struct {
	ID        string `db:"id"`
	StackID   string `db:"stack_id"`
	Type      string `db:"type"`
	Service   string `db:"service"`
	Message   string `db:"message"`
	CreatedAt string `db:"created_at"`
}

func recordEvent(ctx context.Context, exec executor, event *domain.Event) error {
	query := `
		INSERT INTO events (id, stack_id, type, service, message, created_at)
		VALUES (:id, :stack_id, :type, :service, :message, :created_at)`

	_, err := exec.NamedExecContext(ctx, query, map[string]any{
		"id":         event.ID,
		"stack_id":   event.StackID,
		"type":       string(event.Type),
		"service":    event.Service,
		"message":    event.Message,
		"created_at": event.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("RecordEvent", "event", event.ID, "stack not found", ErrNotFound)
		}
		return NewStoreError("RecordEvent", "event", event.ID, err.Error(), err)
	}

	return nil
}

func listEvents(ctx context.Context, exec executor, stackID string, limit int, eventType *string) ([]domain.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT * FROM events WHERE stack_id = ?`
	args := []any{stackID}

	if eventType != nil && *eventType != "" {
		query += ` AND type = ?`
		args = append(args, *eventType)
	}

	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	var rows []eventRow
	err := exec.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, NewStoreError("ListEvents", "event", stackID, err.Error(), err)
	}

	events := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
		events = append(events, domain.Event{
			ID:        row.ID,
			StackID:   row.StackID,
			Type:      domain.EventType(row.Type),
			Service:   row.Service,
			Message:   row.Message,
			CreatedAt: createdAt,
		})
	}

	return events, nil
}

// =============================================================================
// Row Conversion
// =============================================================================

func stackToNamedArgs(stack *domain.Stack, variablesJSON, envFilesJSON, containersJSON string) map[string]any {
	var hostname *string
	if stack.Hostname != "" {
		hostname = &stack.Hostname
	}

	var appliedAt, stoppedAt *string
	if stack.AppliedAt != nil {
		s := stack.AppliedAt.Format(time.RFC3339)
		appliedAt = &s
	}
	if stack.StoppedAt != nil {
		s := stack.StoppedAt.Format(time.RFC3339)
		stoppedAt = &s
	}

	return map[string]any{
		"id":                  stack.ID,
		"name":                stack.Name,
		"slug":                stack.Slug,
		"source":              stack.Source,
		"variables":           variablesJSON,
		"env_files":           envFilesJSON,
		"hostname":            hostname,
		"edge_port":           stack.EdgePort,
		"status":              string(stack.Status),
		"containers":          containersJSON,
		"resources_cpu_cores": stack.Resources.CPUCores,
		"resources_memory_mb": stack.Resources.MemoryMB,
		"resources_disk_mb":   stack.Resources.DiskMB,
		"error_message":       stack.ErrorMessage,
		"created_at":          stack.CreatedAt.Format(time.RFC3339),
		"updated_at":          stack.UpdatedAt.Format(time.RFC3339),
		"applied_at":          appliedAt,
		"stopped_at":          stoppedAt,
	}
}

func rowToStack(row *stackRow) (*domain.Stack, error) {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, row.UpdatedAt)

	var appliedAt, stoppedAt *time.Time
	if row.AppliedAt != nil && *row.AppliedAt != "" {
		t, _ := time.Parse(time.RFC3339, *row.AppliedAt)
		appliedAt = &t
	}
	if row.StoppedAt != nil && *row.StoppedAt != "" {
		t, _ := time.Parse(time.RFC3339, *row.StoppedAt)
		stoppedAt = &t
	}

	var variables map[string]string
	if row.Variables != nil && *row.Variables != "" && *row.Variables != "null" {
		if err := json.Unmarshal([]byte(*row.Variables), &variables); err != nil {
			return nil, NewStoreError("rowToStack", "stack", row.ID, "failed to parse variables", ErrInvalidData)
		}
	}

	var envFiles map[string]map[string]string
	if row.EnvFiles != nil && *row.EnvFiles != "" && *row.EnvFiles != "null" {
		if err := json.Unmarshal([]byte(*row.EnvFiles), &envFiles); err != nil {
			return nil, NewStoreError("rowToStack", "stack", row.ID, "failed to parse env files", ErrInvalidData)
		}
	}

	var containers []domain.ContainerInfo
	if row.Containers != nil && *row.Containers != "" && *row.Containers != "null" {
		if err := json.Unmarshal([]byte(*row.Containers), &containers); err != nil {
			return nil, NewStoreError("rowToStack", "stack", row.ID, "failed to parse containers", ErrInvalidData)
		}
	}

	hostname := ""
	if row.Hostname != nil {
		hostname = *row.Hostname
	}

	return &domain.Stack{
		ID:         row.ID,
		Name:       row.Name,
		Slug:       row.Slug,
		Source:     row.Source,
		Variables:  variables,
		EnvFiles:   envFiles,
		Hostname:   hostname,
		EdgePort:   row.EdgePort,
		Status:     domain.StackStatus(row.Status),
		Containers: containers,
		Resources: domain.Resources{
			CPUCores: row.ResourcesCPU,
			MemoryMB: row.ResourcesMemory,
			DiskMB:   row.ResourcesDisk,
		},
		ErrorMessage: row.ErrorMessage,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
		AppliedAt:    appliedAt,
		StoppedAt:    stoppedAt,
	}, nil
}

func rowsToStacks(rows []stackRow) ([]domain.Stack, error) {
	stacks := make([]domain.Stack, 0, len(rows))
	for i := range rows {
		stack, err := rowToStack(&rows[i])
		if err != nil {
			return nil, err
		}
		stacks = append(stacks, *stack)
	}
	return stacks, nil
}
