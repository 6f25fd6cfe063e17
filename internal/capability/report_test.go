package capability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vitalstat/vitalstat/internal/engine"
)

func TestLimitsReport(t *testing.T) {
	r := NewReporter(engine.Limits{
		MaxWallTime:    15 * time.Second,
		MaxMemoryMB:    256,
		MaxOutputBytes: 4096,
	})

	report := r.Limits()
	assert.Equal(t, 15.0, report.MaxWallTimeSeconds)
	assert.Equal(t, 256, report.MaxMemoryMB)
	assert.Equal(t, 4096, report.MaxOutputBytes)
	assert.Contains(t, report.Interpreter, "yaegi")
	assert.Greater(t, report.HostCPUCount, 0)
}

func TestLibrariesMatchSandbox(t *testing.T) {
	r := NewReporter(engine.DefaultLimits())
	libs := r.Libraries()

	assert.True(t, libs["stats"])
	assert.True(t, libs["frame"])
	assert.True(t, libs["dataset"])
	assert.False(t, libs["os"])
	assert.False(t, libs["net/http"])
}
