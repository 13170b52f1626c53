package alert

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/genc-murat/memwarden/internal/core/models"
)

type fakeSource struct {
	usage int64
	rate  float64
}

func (f *fakeSource) CurrentUsage() int64     { return f.usage }
func (f *fakeSource) AllocationRate() float64 { return f.rate }

type fakeAnalyzer struct {
	freq float64
}

func (f *fakeAnalyzer) CollectionFrequency() float64            { return f.freq }
func (f *fakeAnalyzer) PerformanceImpact() models.ImpactLevel { return models.ImpactNone }

func newTestManager(t *testing.T) (*Manager, *fakeSource, *fakeAnalyzer, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	src := &fakeSource{}
	an := &fakeAnalyzer{}
	m, err := New(DefaultThresholds(), src, an, WithClock(clk))
	require.NoError(t, err)
	return m, src, an, clk
}

func TestThresholdValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Thresholds)
	}{
		{"zero warning", func(th *Thresholds) { th.MemoryWarningMB = 0 }},
		{"critical below warning", func(th *Thresholds) { th.MemoryCriticalMB = 100 }},
		{"emergency below critical", func(th *Thresholds) { th.MemoryEmergencyMB = 700 }},
		{"allocation inverted", func(th *Thresholds) { th.AllocationCriticalMBps = 1 }},
		{"frequency inverted", func(th *Thresholds) { th.FrequencyCritical = 1 }},
		{"negative cooldown", func(th *Thresholds) { th.Cooldown = -time.Second }},
		{"zero interval", func(th *Thresholds) { th.CheckInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := DefaultThresholds()
			tt.mutate(&th)
			_, err := New(th, &fakeSource{}, nil)
			assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
		})
	}

	_, err := New(DefaultThresholds(), nil, nil)
	assert.ErrorIs(t, err, models.ErrDependencyUnavailable)
}

func TestMemoryTiers(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, models.AlertNormal, th.MemoryTier(499))
	assert.Equal(t, models.AlertWarning, th.MemoryTier(500))
	assert.Equal(t, models.AlertWarning, th.MemoryTier(600))
	assert.Equal(t, models.AlertCritical, th.MemoryTier(900))
	assert.Equal(t, models.AlertEmergency, th.MemoryTier(1024))
}

func TestThresholdsAreMebibytes(t *testing.T) {
	m, src, _, _ := newTestManager(t)

	src.usage = 500_000_000
	assert.Equal(t, models.AlertNormal, m.Check().MemoryTier)

	src.usage = 500 * mib
	assert.Equal(t, models.AlertWarning, m.Check().MemoryTier)

	src.rate = 10*mib - 1
	assert.Equal(t, models.AlertNormal, m.Check().AllocationTier)
	src.rate = 10 * mib
	assert.Equal(t, models.AlertWarning, m.Check().AllocationTier)
}

func TestEscalationIsMonotonic(t *testing.T) {
	m, src, _, clk := newTestManager(t)

	var changes []models.LevelChange
	m.OnLevelChanged().Add(func(c models.LevelChange) { changes = append(changes, c) })

	steps := []struct {
		usageMB int64
		want    models.AlertLevel
	}{
		{0, models.AlertNormal},
		{250, models.AlertNormal},
		{499, models.AlertNormal},
		{500, models.AlertWarning},
		{650, models.AlertWarning},
		{799, models.AlertWarning},
		{800, models.AlertCritical},
		{1000, models.AlertCritical},
		{1023, models.AlertCritical},
		{1024, models.AlertEmergency},
	}

	prev := models.AlertNormal
	for _, step := range steps {
		src.usage = step.usageMB * mib
		clk.Add(time.Second)
		res := m.Check()

		assert.Equal(t, step.want, res.Level, "usage %d MB", step.usageMB)
		assert.GreaterOrEqual(t, res.Level, prev, "usage %d MB", step.usageMB)
		assert.Equal(t, res.Level, m.CurrentLevel())
		prev = res.Level
	}

	assert.Equal(t, []models.LevelChange{
		{Old: models.AlertNormal, New: models.AlertWarning},
		{Old: models.AlertWarning, New: models.AlertCritical},
		{Old: models.AlertCritical, New: models.AlertEmergency},
	}, changes)
}

func TestCheckRaisesMemoryAlert(t *testing.T) {
	m, src, _, _ := newTestManager(t)

	var raised []models.Alert
	m.OnAlertRaised().Add(func(a models.Alert) { raised = append(raised, a) })

	src.usage = 600 * mib
	res := m.Check()

	assert.Equal(t, models.AlertWarning, res.Level)
	require.Len(t, raised, 1)
	assert.Equal(t, models.AlertMemoryUsage, raised[0].Type)
	assert.Equal(t, models.AlertWarning, raised[0].Level)
	assert.InDelta(t, 600, raised[0].CurrentMemoryMB, 1e-9)
	assert.NotEmpty(t, raised[0].ID)
	assert.Contains(t, raised[0].Message, "600 MiB")
}

func TestCooldownDebouncesSameType(t *testing.T) {
	m, src, _, clk := newTestManager(t)

	count := 0
	m.OnAlertRaised().Add(func(models.Alert) { count++ })

	src.usage = 600 * mib
	m.Check()
	clk.Add(2 * time.Second)
	m.Check()
	assert.Equal(t, 1, count)
	assert.False(t, m.CanFireAlert(models.AlertMemoryUsage))

	clk.Add(3 * time.Second)
	assert.True(t, m.CanFireAlert(models.AlertMemoryUsage))
	m.Check()
	assert.Equal(t, 2, count)
}

func TestCooldownIsPerType(t *testing.T) {
	m, src, _, _ := newTestManager(t)

	src.usage = 600 * mib
	src.rate = 20 * mib
	res := m.Check()

	require.Len(t, res.Fired, 2)
	assert.Equal(t, models.AlertMemoryUsage, res.Fired[0].Type)
	assert.Equal(t, models.AlertAllocationRate, res.Fired[1].Type)
	assert.Equal(t, models.AlertWarning, res.AllocationTier)
}

func TestLevelChangeFiresOnTransitionOnly(t *testing.T) {
	m, src, _, clk := newTestManager(t)

	var changes []models.LevelChange
	m.OnLevelChanged().Add(func(c models.LevelChange) { changes = append(changes, c) })

	src.usage = 600 * mib
	m.Check()
	clk.Add(time.Second)
	m.Check()
	src.usage = 900 * mib
	clk.Add(time.Second)
	m.Check()
	src.usage = 100 * mib
	clk.Add(time.Second)
	m.Check()

	assert.Equal(t, []models.LevelChange{
		{Old: models.AlertNormal, New: models.AlertWarning},
		{Old: models.AlertWarning, New: models.AlertCritical},
		{Old: models.AlertCritical, New: models.AlertNormal},
	}, changes)
	assert.Equal(t, models.AlertNormal, m.CurrentLevel())
}

func TestEmergencySignalIsDebounced(t *testing.T) {
	m, src, _, clk := newTestManager(t)

	emergencies := 0
	m.OnEmergency().Add(func(models.Alert) { emergencies++ })

	src.usage = 1100 * mib
	res := m.Check()
	assert.True(t, res.Emergency)
	assert.Equal(t, models.AlertEmergency, res.Level)

	clk.Add(time.Second)
	res = m.Check()
	assert.False(t, res.Emergency)
	assert.Equal(t, 1, emergencies)

	clk.Add(5 * time.Second)
	m.Check()
	assert.Equal(t, 2, emergencies)
}

func TestFrequencyTier(t *testing.T) {
	m, _, an, _ := newTestManager(t)

	an.freq = 10
	res := m.Check()
	assert.Equal(t, models.AlertCritical, res.FrequencyTier)
	require.Len(t, res.Fired, 1)
	assert.Equal(t, models.AlertGCFrequency, res.Fired[0].Type)
}

func TestMissingAnalyzerSkipsFrequencyAndWarnsOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m, err := New(DefaultThresholds(), &fakeSource{}, nil, WithLogger(zap.New(core)))
	require.NoError(t, err)

	res := m.Check()
	m.Check()

	assert.Equal(t, models.AlertNormal, res.FrequencyTier)
	assert.Equal(t, 1, logs.FilterMessage("collector frequency check skipped").Len())
}

func TestTypedNilAnalyzerIsTreatedAsMissing(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	var an *fakeAnalyzer
	m, err := New(DefaultThresholds(), &fakeSource{usage: 600 * mib}, an, WithLogger(zap.New(core)))
	require.NoError(t, err)

	var res CheckResult
	assert.NotPanics(t, func() { res = m.Check() })
	assert.Equal(t, models.AlertNormal, res.FrequencyTier)
	assert.Equal(t, models.AlertWarning, res.Level)
	assert.Equal(t, 1, logs.FilterMessage("collector frequency check skipped").Len())
}

func TestTypedNilSourceIsRejected(t *testing.T) {
	var src *fakeSource
	_, err := New(DefaultThresholds(), src, nil)
	assert.ErrorIs(t, err, models.ErrDependencyUnavailable)
}

func TestTriggerAlertHonoursCooldown(t *testing.T) {
	m, _, _, clk := newTestManager(t)

	custom := models.AlertType("texture_streaming")
	assert.True(t, m.TriggerAlert(custom, models.AlertWarning, "streaming stalled"))
	assert.False(t, m.TriggerAlert(custom, models.AlertCritical, "streaming stalled"))

	clk.Add(5 * time.Second)
	assert.True(t, m.TriggerAlert(custom, models.AlertCritical, "streaming stalled"))
	assert.Len(t, m.RecentAlerts(), 2)
}

func TestTickChecksOnInterval(t *testing.T) {
	m, src, _, _ := newTestManager(t)
	src.usage = 900 * mib

	m.Tick(400 * time.Millisecond)
	assert.Equal(t, models.AlertNormal, m.CurrentLevel())

	m.Tick(600 * time.Millisecond)
	assert.Equal(t, models.AlertCritical, m.CurrentLevel())
}

func TestRecentAlertsBounded(t *testing.T) {
	th := DefaultThresholds()
	th.Cooldown = 0
	m, err := New(th, &fakeSource{}, nil, WithClock(clock.NewMock()))
	require.NoError(t, err)

	for range recentAlertLimit + 10 {
		m.TriggerAlert("manual", models.AlertWarning, "x")
	}
	assert.Len(t, m.RecentAlerts(), recentAlertLimit)

	m.Reset()
	assert.Empty(t, m.RecentAlerts())
	assert.True(t, m.CanFireAlert("manual"))
}
