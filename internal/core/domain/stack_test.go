package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// NewStack Tests
// =============================================================================

func TestNewStack(t *testing.T) {
	stk, err := NewStack("My Blog", "services:\n  web:\n    image: nginx\n", map[string]string{"KEY": "value"})
	require.NoError(t, err)

	assert.NotEmpty(t, stk.ID)
	assert.Equal(t, "My Blog", stk.Name)
	assert.True(t, strings.HasPrefix(stk.Slug, "my-blog-"), "slug %q should derive from name", stk.Slug)
	assert.Equal(t, StatusPending, stk.Status)
	assert.Equal(t, "value", stk.Variables["KEY"])
	assert.False(t, stk.CreatedAt.IsZero())
	assert.Nil(t, stk.AppliedAt)
}

func TestNewStack_EmptyName(t *testing.T) {
	_, err := NewStack("", "services: {}", nil)
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestNewStack_EmptySource(t *testing.T) {
	_, err := NewStack("name", "", nil)
	assert.ErrorIs(t, err, ErrEmptySource)
}

func TestNewStack_UniqueSlugs(t *testing.T) {
	a, err := NewStack("blog", "services: {}", nil)
	require.NoError(t, err)
	b, err := NewStack("blog", "services: {}", nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.Slug, b.Slug)
}

// =============================================================================
// Transition Tests
// =============================================================================

func TestTransition_HappyPath(t *testing.T) {
	stk, err := NewStack("app", "services: {}", nil)
	require.NoError(t, err)

	require.NoError(t, stk.Transition(StatusApplying))
	require.NoError(t, stk.Transition(StatusRunning))
	require.NotNil(t, stk.AppliedAt)

	require.NoError(t, stk.Transition(StatusStopping))
	require.NoError(t, stk.Transition(StatusStopped))
	require.NotNil(t, stk.StoppedAt)

	require.NoError(t, stk.Transition(StatusRemoving))
	require.NoError(t, stk.Transition(StatusRemoved))
}

func TestTransition_Invalid(t *testing.T) {
	stk, err := NewStack("app", "services: {}", nil)
	require.NoError(t, err)

	// pending cannot jump straight to running
	err = stk.Transition(StatusRunning)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusPending, stk.Status)
}

func TestTransition_RemovedIsTerminal(t *testing.T) {
	stk := &Stack{Status: StatusRemoved}

	for _, to := range []StackStatus{StatusApplying, StatusRunning, StatusRemoving, StatusPending} {
		assert.ErrorIs(t, stk.Transition(to), ErrInvalidTransition)
	}
}

func TestTransition_DegradedRecovers(t *testing.T) {
	stk := &Stack{Status: StatusRunning}

	require.NoError(t, stk.Transition(StatusDegraded))
	require.NoError(t, stk.Transition(StatusRunning))
}

func TestTransition_ReapplyFromRunning(t *testing.T) {
	stk := &Stack{Status: StatusRunning, ErrorMessage: "old error"}

	require.NoError(t, stk.Transition(StatusApplying))
	assert.Empty(t, stk.ErrorMessage, "starting a new apply clears the error")
}

func TestTransition_RetryAfterFailure(t *testing.T) {
	stk := &Stack{Status: StatusFailed, ErrorMessage: "image pull failed"}

	require.NoError(t, stk.Transition(StatusApplying))
	assert.Empty(t, stk.ErrorMessage)
}

func TestTransitionToFailed(t *testing.T) {
	stk := &Stack{Status: StatusApplying}

	require.NoError(t, stk.TransitionToFailed("image pull failed"))
	assert.Equal(t, StatusFailed, stk.Status)
	assert.Equal(t, "image pull failed", stk.ErrorMessage)
}

func TestTransitionToFailed_FromPending(t *testing.T) {
	stk := &Stack{Status: StatusPending}
	assert.ErrorIs(t, stk.TransitionToFailed("nope"), ErrInvalidTransition)
}

func TestValidateTransition_UnknownStatus(t *testing.T) {
	assert.ErrorIs(t, ValidateTransition("bogus", StatusRunning), ErrInvalidTransition)
}

// =============================================================================
// Routable Tests
// =============================================================================

func TestRoutable(t *testing.T) {
	tests := []struct {
		name     string
		status   StackStatus
		edgePort int
		want     bool
	}{
		{"running with port", StatusRunning, 30001, true},
		{"degraded with port", StatusDegraded, 30001, true},
		{"running without port", StatusRunning, 0, false},
		{"stopped with port", StatusStopped, 30001, false},
		{"pending with port", StatusPending, 30001, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stk := &Stack{Status: tt.status, EdgePort: tt.edgePort}
			assert.Equal(t, tt.want, stk.Routable())
		})
	}
}
