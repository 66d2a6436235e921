package structure

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// KernelCache holds checkerboard kernels built during one analysis run
type KernelCache struct {
	mu      sync.Mutex
	taper   float64
	kernels map[int]*mat.SymDense
}

// NewKernelCache creates a cache for kernels with the given taper ratio
func NewKernelCache(taper float64) *KernelCache {
	return &KernelCache{
		taper:   taper,
		kernels: make(map[int]*mat.SymDense),
	}
}

// Get returns the kernel of the given (even) size, building it on first use
func (kc *KernelCache) Get(size int) *mat.SymDense {
	kc.mu.Lock()
	defer kc.mu.Unlock()

	if k, ok := kc.kernels[size]; ok {
		return k
	}
	k := CheckerboardKernel(size, kc.taper)
	kc.kernels[size] = k
	return k
}

// Len returns the number of cached kernels
func (kc *KernelCache) Len() int {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	return len(kc.kernels)
}

// CheckerboardKernel builds Foote's checkerboard kernel of even size 2h:
// positive on the two same-side quadrants, negative on the cross quadrants,
// tapered by a radial Gaussian with sigma = taper*h, then made zero-mean and
// scaled to unit L1 norm.
//
// References:
//   - Foote, J. (2000). "Automatic Audio Segmentation Using a Measure of Audio
//     Novelty". Proc. IEEE ICME.
func CheckerboardKernel(size int, taper float64) *mat.SymDense {
	if size < 2 {
		size = 2
	}
	size -= size % 2
	h := size / 2

	sigma := taper * float64(h)
	if sigma <= 0 {
		sigma = float64(h)
	}

	data := make([]float64, size*size)
	mean := 0.0
	for a := 0; a < size; a++ {
		da := float64(a-h) + 0.5
		for b := 0; b < size; b++ {
			db := float64(b-h) + 0.5
			sign := 1.0
			if (da < 0) != (db < 0) {
				sign = -1.0
			}
			v := sign * math.Exp(-(da*da+db*db)/(2*sigma*sigma))
			data[a*size+b] = v
			mean += v
		}
	}
	mean /= float64(len(data))

	l1 := 0.0
	for i := range data {
		data[i] -= mean
		l1 += math.Abs(data[i])
	}
	if l1 > 0 {
		for i := range data {
			data[i] /= l1
		}
	}

	return mat.NewSymDense(size, data)
}
