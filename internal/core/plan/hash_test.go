package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/artpar/stackd/internal/core/stack"
)

func planParams(stackID string) BuildContainerPlanParams {
	return BuildContainerPlanParams{
		StackID:     stackID,
		ServiceName: "api",
		Service: stack.Service{
			Name:  "api",
			Image: "api:1.0",
			Environment: map[string]string{
				"LOG_LEVEL": "info",
				"DB_HOST":   "relational_db",
			},
			Ports: []stack.Port{{Target: 8080, Published: 8080}},
		},
		NetworkName: NetworkName(stackID),
	}
}

func TestConfigHash_Deterministic(t *testing.T) {
	a := BuildContainerPlan(planParams("stk"))
	b := BuildContainerPlan(planParams("stk"))

	assert.NotEmpty(t, a.Labels[LabelConfigHash])
	assert.Equal(t, a.Labels[LabelConfigHash], b.Labels[LabelConfigHash])
}

func TestConfigHash_ChangesWithImage(t *testing.T) {
	params := planParams("stk")
	a := BuildContainerPlan(params)

	params.Service.Image = "api:2.0"
	b := BuildContainerPlan(params)

	assert.NotEqual(t, a.Labels[LabelConfigHash], b.Labels[LabelConfigHash])
}

func TestConfigHash_ChangesWithEnv(t *testing.T) {
	params := planParams("stk")
	a := BuildContainerPlan(params)

	params.Service.Environment["LOG_LEVEL"] = "debug"
	b := BuildContainerPlan(params)

	assert.NotEqual(t, a.Labels[LabelConfigHash], b.Labels[LabelConfigHash])
}

func TestConfigHash_ChangesWithVariables(t *testing.T) {
	params := planParams("stk")
	params.Service.Environment["SECRET"] = "${SECRET}"

	params.Variables = map[string]string{"SECRET": "one"}
	a := BuildContainerPlan(params)

	params.Variables = map[string]string{"SECRET": "two"}
	b := BuildContainerPlan(params)

	assert.NotEqual(t, a.Labels[LabelConfigHash], b.Labels[LabelConfigHash])
}

func TestConfigHash_ExcludesOwnLabel(t *testing.T) {
	p := BuildContainerPlan(planParams("stk"))

	// Recomputing on a plan that already carries the hash label must be stable
	assert.Equal(t, p.Labels[LabelConfigHash], ConfigHash(p))
}

func TestConfigHash_ShortHex(t *testing.T) {
	p := BuildContainerPlan(planParams("stk"))
	assert.Len(t, p.Labels[LabelConfigHash], 24) // 12 bytes hex-encoded
}
