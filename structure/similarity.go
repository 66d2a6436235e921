package structure

import (
	"context"
	"fmt"

	"github.com/RyanBlaney/sonido-forma/algorithms/common"
	"github.com/RyanBlaney/sonido-forma/features"
	"github.com/RyanBlaney/sonido-forma/logging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Similarity is anything that can answer the combined similarity of two frames
type Similarity interface {
	At(i, j int) float64
	Size() int
}

// Matrix is a symmetric frame similarity matrix stored as a flat row-major
// buffer of size*size values in [0,1] with a unit diagonal.
type Matrix struct {
	data []float64
	size int
}

// NewMatrix allocates a zeroed size x size matrix
func NewMatrix(size int) *Matrix {
	if size < 0 {
		size = 0
	}
	return &Matrix{data: make([]float64, size*size), size: size}
}

// Size returns the number of frames
func (m *Matrix) Size() int {
	return m.size
}

// Data exposes the flat buffer
func (m *Matrix) Data() []float64 {
	return m.data
}

// At returns M[i][j]
func (m *Matrix) At(i, j int) float64 {
	return m.data[i*m.size+j]
}

func (m *Matrix) set(i, j int, v float64) {
	m.data[i*m.size+j] = v
	m.data[j*m.size+i] = v
}

// Symmetric returns a gonum view sharing the matrix buffer
func (m *Matrix) Symmetric() *mat.SymDense {
	if m.size == 0 {
		return &mat.SymDense{}
	}
	return mat.NewSymDense(m.size, m.data)
}

// FrameComparer computes the weighted frame similarity on demand. Vectors are
// L2-normalized once so each cosine is a dot product.
type FrameComparer struct {
	params SimilarityParams
	chroma [][]float64
	mfcc   [][]float64
	rms    []float64
	flux   []float64
	n      int
}

// NewFrameComparer prepares normalized copies of the frame tracks
func NewFrameComparer(frames *features.Frames, params SimilarityParams) *FrameComparer {
	n := frames.Len()
	fc := &FrameComparer{
		params: params,
		chroma: make([][]float64, n),
		n:      n,
	}

	for i, c := range frames.Chroma {
		fc.chroma[i] = common.L2Normalize(c)
	}
	if mfcc, ok := frames.MFCC.Get(); ok {
		fc.mfcc = make([][]float64, n)
		for i, v := range mfcc {
			fc.mfcc[i] = common.L2Normalize(v)
		}
	}

	fc.rms = common.PeakNormalize(frames.RMS)
	fc.flux = common.PeakNormalize(frames.Flux)
	return fc
}

// Size returns the number of frames
func (fc *FrameComparer) Size() int {
	return fc.n
}

// At returns the combined similarity of frames i and j in [0,1]. Without a
// timbre track the chroma similarity stands in for it.
func (fc *FrameComparer) At(i, j int) float64 {
	if i == j {
		return 1.0
	}

	chroma := common.Clamp01(common.Dot(fc.chroma[i], fc.chroma[j]))
	timbre := chroma
	if fc.mfcc != nil {
		timbre = common.Clamp01(common.Dot(fc.mfcc[i], fc.mfcc[j]))
	}

	sim := fc.params.ChromaWeight*chroma +
		fc.params.MFCCWeight*timbre +
		fc.params.RMSWeight*common.Closeness(fc.rms[i], fc.rms[j]) +
		fc.params.FluxWeight*common.Closeness(fc.flux[i], fc.flux[j])

	return common.Clamp01(sim)
}

// BuildMatrix computes the full similarity matrix. The upper triangle is filled
// in fixed-size blocks and mirrored; above CoarseThreshold frames only every
// CoarseStride-th frame is compared and the value is replicated over the
// stride x stride block. The context is checked once per block row.
func BuildMatrix(ctx context.Context, frames *features.Frames, params SimilarityParams) (*Matrix, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "similarity",
		"function":  "BuildMatrix",
	})

	n := frames.Len()
	m := NewMatrix(n)
	if n == 0 {
		logger.Warn("No frames, returning empty similarity matrix")
		return m, nil
	}

	fc := NewFrameComparer(frames, params)

	stride := 1
	if params.CoarseThreshold > 0 && n > params.CoarseThreshold && params.CoarseStride > 1 {
		stride = params.CoarseStride
	}
	block := params.BlockSize
	if block <= 0 {
		block = 64
	}
	block = max(block, stride)
	block -= block % stride

	for bi := 0; bi < n; bi += block {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("similarity matrix: %w", err)
		}
		iEnd := min(n, bi+block)
		for bj := bi; bj < n; bj += block {
			jEnd := min(n, bj+block)
			for i := bi; i < iEnd; i += stride {
				jStart := bj
				if bj == bi {
					jStart = i
				}
				for j := jStart; j < jEnd; j += stride {
					v := fc.At(i, j)
					if stride == 1 {
						m.set(i, j, v)
						continue
					}
					for a := i; a < min(n, i+stride); a++ {
						for b := j; b < min(n, j+stride); b++ {
							m.set(a, b, v)
						}
					}
				}
			}
		}
	}

	for i := 0; i < n; i++ {
		m.data[i*n+i] = 1.0
	}

	logger.Debug("Similarity matrix built", logging.Fields{
		"frames": n,
		"stride": stride,
		"mean":   floats.Sum(m.data) / float64(len(m.data)),
	})
	return m, nil
}
