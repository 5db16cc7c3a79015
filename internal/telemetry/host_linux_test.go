//go:build linux

package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	assert.Equal(t, "cpu", categorize("k10temp_tctl"))
	assert.Equal(t, "gpu", categorize("amdgpu_edge"))
	assert.Equal(t, "drive", categorize("nvme_composite"))
	assert.Equal(t, "system", categorize("acpitz"))
}
