package sysinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollect(t *testing.T) {
	info, err := Collect()
	require.NoError(t, err)

	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Architecture)
	assert.Greater(t, info.CPUCores, 0)
	assert.Greater(t, info.MemoryTotal, uint64(0))
	assert.LessOrEqual(t, info.MemoryAvailable, info.MemoryTotal)
}

func TestUsage(t *testing.T) {
	cpuPercent, used := Usage()
	assert.GreaterOrEqual(t, cpuPercent, 0.0)
	assert.Greater(t, used, uint64(0))
}
