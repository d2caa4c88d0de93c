package store

import (
	"context"

	"github.com/artpar/stackd/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for stackd entities.
type Store interface {
	// Stack operations
	CreateStack(ctx context.Context, stack *domain.Stack) error
	GetStack(ctx context.Context, id string) (*domain.Stack, error)
	GetStackBySlug(ctx context.Context, slug string) (*domain.Stack, error)
	GetStackByHostname(ctx context.Context, hostname string) (*domain.Stack, error)
	UpdateStack(ctx context.Context, stack *domain.Stack) error
	DeleteStack(ctx context.Context, id string) error
	ListStacks(ctx context.Context, opts ListOptions) ([]domain.Stack, error)
	ListStacksByStatus(ctx context.Context, status domain.StackStatus) ([]domain.Stack, error)

	// Edge routing lookups
	GetUsedEdgePorts(ctx context.Context) ([]int, error)
	CountRoutableStacks(ctx context.Context) (int, error)

	// Apply history
	RecordEvent(ctx context.Context, event *domain.Event) error
	ListEvents(ctx context.Context, stackID string, limit int, eventType *string) ([]domain.Event, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// applyDefaults sets sane pagination defaults.
func (o ListOptions) applyDefaults() ListOptions {
	if o.Limit <= 0 || o.Limit > 500 {
		o.Limit = 100
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
