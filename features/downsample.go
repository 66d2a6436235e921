package features

import (
	"gonum.org/v1/gonum/floats"
)

// DownsampleFactor returns the smallest integer factor that brings n frames
// down to at most maxFrames. A non-positive limit disables downsampling.
func DownsampleFactor(n, maxFrames int) int {
	if maxFrames <= 0 || n <= maxFrames {
		return 1
	}
	return (n + maxFrames - 1) / maxFrames
}

// Downsample averages consecutive groups of factor frames. The result has
// ceil(n/factor) frames; each keeps the timestamp of its first member.
func Downsample(f *Frames, factor int) *Frames {
	if f == nil || factor <= 1 || f.Len() == 0 {
		return f
	}

	n := f.Len()
	m := (n + factor - 1) / factor
	out := &Frames{
		Hop:        f.Hop * float64(factor),
		Timestamps: make([]float64, m),
		Chroma:     make([][]float64, m),
		RMS:        make([]float64, m),
		Flux:       make([]float64, m),
		Derived:    f.Derived,
		Replaced:   f.Replaced,
	}

	mfcc, hasMFCC := f.MFCC.Get()
	vocal, hasVocal := f.Vocal.Get()
	var outMFCC [][]float64
	var outVocal []float64
	if hasMFCC {
		outMFCC = make([][]float64, m)
	}
	if hasVocal {
		outVocal = make([]float64, m)
	}

	for g := 0; g < m; g++ {
		start := g * factor
		end := min(n, start+factor)
		count := float64(end - start)

		out.Timestamps[g] = f.Timestamps[start]
		out.Chroma[g] = averageVectors(f.Chroma[start:end])
		out.RMS[g] = floats.Sum(f.RMS[start:end]) / count
		out.Flux[g] = floats.Sum(f.Flux[start:end]) / count
		if hasMFCC {
			outMFCC[g] = averageVectors(mfcc[start:end])
		}
		if hasVocal {
			outVocal[g] = floats.Sum(vocal[start:end]) / count
		}
	}

	if hasMFCC {
		out.MFCC = Some(outMFCC)
	}
	if hasVocal {
		out.Vocal = Some(outVocal)
	}
	return out
}

func averageVectors(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	out := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		if len(v) == len(out) {
			floats.Add(out, v)
		}
	}
	floats.Scale(1.0/float64(len(vectors)), out)
	return out
}
