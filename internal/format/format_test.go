package format

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{in: 0, want: "0 B"},
		{in: 1023, want: "1023 B"},
		{in: 1536, want: "1.5 KiB"},
		{in: 500 * 1024 * 1024, want: "500 MiB"},
		{in: -2048, want: "-2.0 KiB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Bytes(tt.in))
	}
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "85.3%", Percent(0.853))
	assert.Equal(t, "0.0%", Percent(0))
	assert.Equal(t, "100.0%", Percent(1))
	assert.Equal(t, "n/a", Percent(math.NaN()))
}

func TestMB(t *testing.T) {
	assert.Equal(t, 600.0, MB(600*1024*1024))
}

func TestInternCacheIsBounded(t *testing.T) {
	c := newInternCache[int](4)
	for i := 0; i < 10; i++ {
		c.get(i, func(v int) string { return "x" })
	}
	assert.Equal(t, 4, c.len())
}

func TestInternCacheConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				_ = Bytes(int64(i * g))
				_ = Percent(float64(i%1000) / 1000)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, byteLabels.len(), cacheSize)
}

func TestFormatInfo(t *testing.T) {
	tests := []struct {
		info map[string]string
		want string
	}{
		{
			info: map[string]string{"strategy": "adaptive", "alert_level": "normal"},
			want: "alert_level:normal\r\nstrategy:adaptive\r\n",
		},
		{
			info: map[string]string{},
			want: "",
		},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatInfo(tt.info))
	}
}
