// Package format renders memory figures for logs, alerts and status output.
// Rendered strings are interned in small bounded caches because the same
// values are formatted from many call sites, possibly concurrently.
package format

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const cacheSize = 1024

type internCache[K comparable] struct {
	mu  sync.Mutex
	lru *simplelru.LRU[K, string]
}

func newInternCache[K comparable](size int) *internCache[K] {
	lru, err := simplelru.NewLRU[K, string](size, nil)
	if err != nil {
		panic(err)
	}
	return &internCache[K]{lru: lru}
}

func (c *internCache[K]) get(key K, render func(K) string) string {
	c.mu.Lock()
	s, ok := c.lru.Get(key)
	c.mu.Unlock()
	if ok {
		return s
	}

	s = render(key)

	c.mu.Lock()
	c.lru.Add(key, s)
	c.mu.Unlock()
	return s
}

func (c *internCache[K]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

var (
	byteLabels    = newInternCache[int64](cacheSize)
	percentLabels = newInternCache[int](cacheSize)
)

// Bytes renders n with IEC units, e.g. "1.5 MiB". Negative values keep their sign.
func Bytes(n int64) string {
	return byteLabels.get(n, func(v int64) string {
		if v < 0 {
			return "-" + humanize.IBytes(uint64(-v))
		}
		return humanize.IBytes(uint64(v))
	})
}

// Percent renders a ratio with one decimal, e.g. 0.853 -> "85.3%".
func Percent(ratio float64) string {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return "n/a"
	}
	permille := int(math.Round(ratio * 1000))
	return percentLabels.get(permille, func(v int) string {
		return strconv.FormatFloat(float64(v)/10, 'f', 1, 64) + "%"
	})
}

// MB converts bytes to mebibytes.
func MB(n int64) float64 {
	return float64(n) / (1024 * 1024)
}

// FormatInfo renders key-values as sorted "key:value" lines.
func FormatInfo(info map[string]string) string {
	var builder strings.Builder
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		builder.WriteString(k)
		builder.WriteString(":")
		builder.WriteString(info[k])
		builder.WriteString("\r\n")
	}
	return builder.String()
}
