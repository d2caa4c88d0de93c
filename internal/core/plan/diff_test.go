package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func desiredPlans(t *testing.T) []ContainerPlan {
	t.Helper()
	db := planParams("stk")
	db.ServiceName = "db"
	db.Service.Name = "db"
	db.Service.Image = "postgres:15"

	api := planParams("stk")

	return []ContainerPlan{BuildContainerPlan(db), BuildContainerPlan(api)}
}

func observe(p ContainerPlan, id string, running bool) ObservedContainer {
	return ObservedContainer{
		ID:          id,
		ServiceName: p.ServiceName,
		ConfigHash:  p.Labels[LabelConfigHash],
		Running:     running,
	}
}

func TestDiff_AllCreate(t *testing.T) {
	desired := desiredPlans(t)

	actions := Diff(desired, nil)

	require.Len(t, actions, 2)
	assert.Equal(t, ActionCreate, actions[0].Kind)
	assert.Equal(t, "db", actions[0].ServiceName)
	assert.Equal(t, ActionCreate, actions[1].Kind)
	assert.Equal(t, "api", actions[1].ServiceName)
	assert.False(t, Converged(actions))
}

func TestDiff_AllKeep(t *testing.T) {
	desired := desiredPlans(t)
	observed := []ObservedContainer{
		observe(desired[0], "c1", true),
		observe(desired[1], "c2", true),
	}

	actions := Diff(desired, observed)

	require.Len(t, actions, 2)
	for _, a := range actions {
		assert.Equal(t, ActionKeep, a.Kind)
	}
	assert.Equal(t, "c1", actions[0].ContainerID)
	assert.Equal(t, "c2", actions[1].ContainerID)
	assert.True(t, Converged(actions))
}

func TestDiff_RecreateOnHashChange(t *testing.T) {
	desired := desiredPlans(t)
	observed := []ObservedContainer{
		observe(desired[0], "c1", true),
		{ID: "c2", ServiceName: "api", ConfigHash: "stale", Running: true},
	}

	actions := Diff(desired, observed)

	require.Len(t, actions, 2)
	assert.Equal(t, ActionKeep, actions[0].Kind)
	assert.Equal(t, ActionRecreate, actions[1].Kind)
	assert.Equal(t, "c2", actions[1].ContainerID)
	require.NotNil(t, actions[1].Plan)
	assert.Equal(t, "api", actions[1].Plan.ServiceName)
}

func TestDiff_RemovesOrphans(t *testing.T) {
	desired := desiredPlans(t)
	observed := []ObservedContainer{
		observe(desired[0], "c1", true),
		observe(desired[1], "c2", true),
		{ID: "c3", ServiceName: "worker", ConfigHash: "whatever", Running: false},
	}

	actions := Diff(desired, observed)

	require.Len(t, actions, 3)
	last := actions[2]
	assert.Equal(t, ActionRemove, last.Kind)
	assert.Equal(t, "worker", last.ServiceName)
	assert.Equal(t, "c3", last.ContainerID)
	assert.Nil(t, last.Plan)
}

func TestDiff_EmptyDesiredRemovesEverything(t *testing.T) {
	observed := []ObservedContainer{
		{ID: "c1", ServiceName: "db"},
		{ID: "c2", ServiceName: "api"},
	}

	actions := Diff(nil, observed)

	require.Len(t, actions, 2)
	for _, a := range actions {
		assert.Equal(t, ActionRemove, a.Kind)
	}
}

func TestDiff_KeepsDesiredOrder(t *testing.T) {
	desired := desiredPlans(t)

	actions := Diff(desired, nil)

	require.Len(t, actions, 2)
	assert.Equal(t, desired[0].ServiceName, actions[0].ServiceName)
	assert.Equal(t, desired[1].ServiceName, actions[1].ServiceName)
}

func TestConverged_Empty(t *testing.T) {
	assert.True(t, Converged(nil))
}
