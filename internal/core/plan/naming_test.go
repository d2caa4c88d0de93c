package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetworkName(t *testing.T) {
	assert.Equal(t, "stackd_abc123", NetworkName("abc123"))
}

func TestVolumeName(t *testing.T) {
	assert.Equal(t, "stackd_abc123_pgdata", VolumeName("abc123", "pgdata"))
}

func TestContainerName(t *testing.T) {
	assert.Equal(t, "stackd_abc123_api", ContainerName("abc123", "api"))
}
