package gcstats

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"

	"github.com/genc-murat/memwarden/internal/core/models"
	"github.com/genc-murat/memwarden/internal/core/ports"
)

var _ ports.GCAnalyzer = (*Analyzer)(nil)

type fakeRuntime struct {
	r Reading
}

func (f *fakeRuntime) read() Reading { return f.r }

func TestCollectionFrequency(t *testing.T) {
	clk := clock.NewMock()
	rt := &fakeRuntime{}
	a := New(Config{Window: 10 * time.Second, SampleInterval: time.Second}, rt.read, clk)

	a.Sample()
	assert.Equal(t, 0.0, a.CollectionFrequency())

	rt.r.NumGC = 30
	clk.Add(time.Second)
	a.Sample()
	assert.InDelta(t, 3.0, a.CollectionFrequency(), 1e-9)

	clk.Add(11 * time.Second)
	assert.Equal(t, 0.0, a.CollectionFrequency())
}

func TestFirstSampleOnlyPrimes(t *testing.T) {
	clk := clock.NewMock()
	rt := &fakeRuntime{r: Reading{NumGC: 500}}
	a := New(DefaultConfig(), rt.read, clk)

	a.Sample()
	assert.Equal(t, 0.0, a.CollectionFrequency())
}

func TestTickSamplesOnInterval(t *testing.T) {
	clk := clock.NewMock()
	calls := 0
	a := New(Config{Window: time.Second, SampleInterval: 100 * time.Millisecond}, func() Reading {
		calls++
		return Reading{}
	}, clk)

	for i := 0; i < 10; i++ {
		a.Tick(50 * time.Millisecond)
	}
	assert.Equal(t, 5, calls)
}

func TestPerformanceImpact(t *testing.T) {
	tests := []struct {
		cpu   float64
		pause time.Duration
		want  models.ImpactLevel
	}{
		{0, 0, models.ImpactNone},
		{0.02, 0, models.ImpactLow},
		{0.06, 0, models.ImpactModerate},
		{0.12, 0, models.ImpactHigh},
		{0.30, 0, models.ImpactSevere},
		{0.0, 150 * time.Millisecond, models.ImpactHigh},
		{0.30, 150 * time.Millisecond, models.ImpactSevere},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, impactOf(tt.cpu, tt.pause))
	}
}

func TestAveragePauseFromReadings(t *testing.T) {
	clk := clock.NewMock()
	rt := &fakeRuntime{}
	a := New(DefaultConfig(), rt.read, clk)
	a.Sample()

	rt.r = Reading{NumGC: 2, PauseTotal: 400 * time.Millisecond, GCCPUFraction: 0.0}
	a.Sample()

	stats := a.Stats()
	assert.Equal(t, 200*time.Millisecond, stats.AveragePause)
	assert.Equal(t, models.ImpactHigh, a.PerformanceImpact())
}

func TestRecordCollection(t *testing.T) {
	a := New(DefaultConfig(), (&fakeRuntime{}).read, clock.NewMock())
	a.RecordCollection(models.GCResult{Executed: true})
	a.RecordCollection(models.GCResult{Executed: false})

	assert.Equal(t, int64(1), a.Stats().ForcedCollections)
}

func TestReadRuntime(t *testing.T) {
	r := ReadRuntime()
	assert.GreaterOrEqual(t, r.GCCPUFraction, 0.0)
}
