package structure

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/floats"
)

type rangeKey struct {
	track string
	start int
	end   int
}

// VectorCache memoizes average vectors over frame ranges. One cache belongs to
// one analysis run; it is keyed by track name so chroma and mfcc averages of
// the same span do not collide.
type VectorCache struct {
	cache  *lru.Cache[rangeKey, []float64]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewVectorCache creates a cache holding up to size averages
func NewVectorCache(size int) *VectorCache {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[rangeKey, []float64](size)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &VectorCache{cache: cache}
}

// Average returns the element-wise mean of vectors[start:end]. The returned
// slice is shared; callers must not modify it.
func (vc *VectorCache) Average(track string, vectors [][]float64, start, end int) []float64 {
	start = max(0, start)
	end = min(len(vectors), end)
	key := rangeKey{track: track, start: start, end: end}

	if v, ok := vc.cache.Get(key); ok {
		vc.hits.Add(1)
		return v
	}
	vc.misses.Add(1)

	var out []float64
	if start < end {
		out = make([]float64, len(vectors[start]))
		count := 0
		for i := start; i < end; i++ {
			if len(vectors[i]) == len(out) {
				floats.Add(out, vectors[i])
				count++
			}
		}
		if count > 0 {
			floats.Scale(1.0/float64(count), out)
		}
	}

	vc.cache.Add(key, out)
	return out
}

// Mean returns the mean of values[start:end], cached like Average
func (vc *VectorCache) Mean(track string, values []float64, start, end int) float64 {
	start = max(0, start)
	end = min(len(values), end)
	key := rangeKey{track: track, start: start, end: end}

	if v, ok := vc.cache.Get(key); ok {
		vc.hits.Add(1)
		return v[0]
	}
	vc.misses.Add(1)

	mean := 0.0
	if start < end {
		mean = floats.Sum(values[start:end]) / float64(end-start)
	}
	vc.cache.Add(key, []float64{mean})
	return mean
}

// Stats returns cache hits and misses
func (vc *VectorCache) Stats() (hits, misses int64) {
	return vc.hits.Load(), vc.misses.Load()
}
