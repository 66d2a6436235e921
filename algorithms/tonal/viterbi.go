package tonal

import (
	"math"

	"github.com/RyanBlaney/sonido-forma/algorithms/chroma"
	"github.com/RyanBlaney/sonido-forma/algorithms/common"
	"gonum.org/v1/gonum/mat"
)

// TransitionParams defines the chord transition model
type TransitionParams struct {
	// Probability of staying on the same state
	Stay float64 `json:"stay" yaml:"stay" mapstructure:"stay"`
	// Share of the remaining mass given to moves by a fourth or a fifth
	FifthShare float64 `json:"fifth_share" yaml:"fifth_share" mapstructure:"fifth_share"`
	// Added to every probability before taking logs
	Epsilon float64 `json:"epsilon" yaml:"epsilon" mapstructure:"epsilon"`
}

// DefaultTransitionParams returns the standard transition model
func DefaultTransitionParams() TransitionParams {
	return TransitionParams{
		Stay:       0.8,
		FifthShare: 0.5,
		Epsilon:    1e-9,
	}
}

// TransitionMatrix builds the row-stochastic transition matrix between states
// with the given roots. Staying costs Stay; moves by a fourth or fifth split
// FifthShare of the remainder evenly; every other move shares the rest
// uniformly. Two states with the same root but different qualities count as
// an "other" move.
func TransitionMatrix(roots []int, params TransitionParams) *mat.Dense {
	n := len(roots)
	if n == 0 {
		return nil
	}
	t := mat.NewDense(n, n, nil)
	if n == 1 {
		t.Set(0, 0, 1)
		return t
	}

	rest := 1 - params.Stay
	for i := 0; i < n; i++ {
		var fifths, others []int
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			switch common.CircularDistance(roots[j], roots[i], chroma.NumPitchClasses) {
			case 5:
				fifths = append(fifths, j)
			default:
				others = append(others, j)
			}
		}

		fifthMass := rest * params.FifthShare
		otherMass := rest - fifthMass
		if len(fifths) == 0 {
			otherMass = rest
		}
		if len(others) == 0 {
			fifthMass = rest
		}

		t.Set(i, i, params.Stay)
		for _, j := range fifths {
			t.Set(i, j, fifthMass/float64(len(fifths)))
		}
		for _, j := range others {
			t.Set(i, j, otherMass/float64(len(others)))
		}
	}
	return t
}

// Viterbi returns the maximum-likelihood state path through the probability
// rows under the transition matrix, decoding in the log domain with a uniform
// initial prior. Epsilon regularizes zero probabilities. Ties resolve to the
// lowest state index so the path is deterministic.
//
// References:
//   - Rabiner, L. R. (1989). "A Tutorial on Hidden Markov Models and Selected
//     Applications in Speech Recognition". Proc. IEEE 77(2).
func Viterbi(rows [][]float64, transitions mat.Matrix, epsilon float64) []int {
	if len(rows) == 0 || transitions == nil {
		return nil
	}
	n, c := transitions.Dims()
	if n != c || n == 0 {
		return nil
	}
	for _, row := range rows {
		if len(row) != n {
			return nil
		}
	}
	if epsilon <= 0 {
		epsilon = 1e-9
	}

	logT := mat.NewDense(n, n, nil)
	logT.Apply(func(_, _ int, v float64) float64 {
		return math.Log(v + epsilon)
	}, transitions)

	emit := func(p float64) float64 {
		if !common.IsFinite(p) || p < 0 {
			p = 0
		}
		return math.Log(p + epsilon)
	}

	steps := len(rows)
	delta := make([]float64, n)
	next := make([]float64, n)
	back := make([][]int, steps)

	for s := 0; s < n; s++ {
		delta[s] = emit(rows[0][s])
	}

	for t := 1; t < steps; t++ {
		back[t] = make([]int, n)
		for s := 0; s < n; s++ {
			best := math.Inf(-1)
			arg := 0
			for p := 0; p < n; p++ {
				if v := delta[p] + logT.At(p, s); v > best {
					best = v
					arg = p
				}
			}
			next[s] = best + emit(rows[t][s])
			back[t][s] = arg
		}
		delta, next = next, delta
	}

	path := make([]int, steps)
	path[steps-1] = common.ArgMax(delta)
	for t := steps - 1; t > 0; t-- {
		path[t-1] = back[t][path[t]]
	}
	return path
}
