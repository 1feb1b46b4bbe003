package optimizer

import (
	"testing"

	"github.com/rcourtman/pulse-perfmon/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthySnapshot() models.Snapshot {
	return models.Snapshot{
		Memory: models.Memory{Pressure: 20, SwapUsed: 0, SwapTotal: 100},
		Disk:   models.Disk{Total: 100, Available: 50},
	}
}

func TestAnalyzeQuitsTopMemoryConsumersUnderPressure(t *testing.T) {
	snap := healthySnapshot()
	snap.Memory.Pressure = 85
	procs := []models.ProcessInfo{
		{PID: 4, Name: "four", Memory: 4},
		{PID: 8, Name: "eight", Memory: 8},
		{PID: 12, Name: "twelve", Memory: 12},
		{PID: 6, Name: "six", Memory: 6},
	}

	got := New().Analyze(snap, procs)
	require.Len(t, got, 3)

	assert.Equal(t, models.Suggestion{
		Type:    models.SuggestionQuitApp,
		App:     "twelve",
		Reason:  "Using 12.0% of memory while system is under pressure",
		Impact:  models.ImpactHigh,
		Command: "kill -TERM 12",
	}, got[0])
	assert.Equal(t, "eight", got[1].App)
	assert.Equal(t, models.ImpactMedium, got[1].Impact)
	assert.Equal(t, "six", got[2].App)
	assert.Equal(t, models.ImpactMedium, got[2].Impact)
	for _, s := range got {
		assert.Equal(t, models.SuggestionQuitApp, s.Type)
	}
}

func TestAnalyzeNoQuitWithoutPressure(t *testing.T) {
	snap := healthySnapshot()
	snap.Memory.Pressure = 70
	procs := []models.ProcessInfo{{PID: 1, Name: "big", Memory: 40}}

	assert.Empty(t, New().Analyze(snap, procs))
}

func TestAnalyzeLowDisk(t *testing.T) {
	snap := healthySnapshot()
	snap.Disk = models.Disk{Total: 100, Available: 5}

	got := New().Analyze(snap, nil)
	require.Len(t, got, 1)
	assert.Equal(t, models.SuggestionClearCache, got[0].Type)
	assert.Equal(t, models.ImpactHigh, got[0].Impact)
	assert.Equal(t, "Less than 10% disk space remaining", got[0].Reason)
	assert.NotEmpty(t, got[0].Command)
	assert.Empty(t, got[0].App)
}

func TestAnalyzeDiskAtThresholdIsFine(t *testing.T) {
	snap := healthySnapshot()
	snap.Disk = models.Disk{Total: 100, Available: 10}

	assert.Empty(t, New().Analyze(snap, nil))
}

func TestAnalyzeCPUHogKeepsReduceMemoryType(t *testing.T) {
	procs := []models.ProcessInfo{
		{PID: 1, Name: "spin", CPU: 95.26},
		{PID: 2, Name: "busy", CPU: 60},
		{PID: 3, Name: "idle", CPU: 50},
	}

	got := New().Analyze(healthySnapshot(), procs)
	require.Len(t, got, 2)
	assert.Equal(t, models.Suggestion{
		Type:   models.SuggestionReduceMemory,
		App:    "spin",
		Reason: "Consuming 95.3% CPU continuously",
		Impact: models.ImpactHigh,
	}, got[0])
	assert.Equal(t, "busy", got[1].App)
	assert.Equal(t, models.ImpactMedium, got[1].Impact)
	assert.Empty(t, got[1].Command)
}

func TestAnalyzeSwap(t *testing.T) {
	snap := healthySnapshot()
	snap.Memory.SwapUsed = 51
	snap.Memory.SwapTotal = 100

	got := New().Analyze(snap, nil)
	require.Len(t, got, 1)
	assert.Equal(t, models.SuggestionReduceMemory, got[0].Type)
	assert.Equal(t, models.ImpactHigh, got[0].Impact)
	assert.Empty(t, got[0].App)
}

func TestAnalyzeNoSwapConfigured(t *testing.T) {
	snap := healthySnapshot()
	snap.Memory.SwapUsed = 0
	snap.Memory.SwapTotal = 0

	assert.Empty(t, New().Analyze(snap, nil))
}

func TestAnalyzeRuleOrder(t *testing.T) {
	snap := models.Snapshot{
		Memory: models.Memory{Pressure: 90, SwapUsed: 80, SwapTotal: 100},
		Disk:   models.Disk{Total: 100, Available: 1},
	}
	procs := []models.ProcessInfo{{PID: 7, Name: "hog", CPU: 90, Memory: 30}}

	got := New().Analyze(snap, procs)
	types := make([]models.SuggestionType, 0, len(got))
	for _, s := range got {
		types = append(types, s.Type)
	}
	assert.Equal(t, []models.SuggestionType{
		models.SuggestionQuitApp,
		models.SuggestionReduceMemory,
		models.SuggestionClearCache,
		models.SuggestionReduceMemory,
	}, types)
	assert.Equal(t, []string{RuleMemoryPressure, RuleCPUHog, RuleLowDisk, RuleSwap}, New().Rules())
}

func TestProtectedProcessesAreNeverTargeted(t *testing.T) {
	snap := healthySnapshot()
	snap.Memory.Pressure = 90
	procs := []models.ProcessInfo{
		{PID: 1, Name: "systemd", CPU: 99, Memory: 50},
		{PID: 2, Name: "sshd-session", CPU: 99, Memory: 40},
		{PID: 3, Name: "chrome", CPU: 10, Memory: 20},
	}

	a := New(DefaultRules(DefaultThresholds(), []string{"systemd", "sshd*"})...)
	got := a.Analyze(snap, procs)
	require.Len(t, got, 1)
	assert.Equal(t, "chrome", got[0].App)
}

func TestAnalyzeCustomRule(t *testing.T) {
	called := false
	a := New(NewRule("custom", func(models.Snapshot, []models.ProcessInfo) []models.Suggestion {
		called = true
		return nil
	}))

	got := a.Analyze(models.Snapshot{}, nil)
	assert.True(t, called)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
