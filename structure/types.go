package structure

import (
	"encoding/json"
	"fmt"
)

// Label is a semantic section name
type Label string

const (
	LabelIntro        Label = "intro"
	LabelVerse        Label = "verse"
	LabelPreChorus    Label = "pre-chorus"
	LabelChorus       Label = "chorus"
	LabelBridge       Label = "bridge"
	LabelMiddle8      Label = "middle8"
	LabelSolo         Label = "solo"
	LabelInstrumental Label = "instrumental"
	LabelBreakdown    Label = "breakdown"
	LabelOutro        Label = "outro"
	LabelSection      Label = "section"
)

// Labels lists every label in display order
var Labels = []Label{
	LabelIntro, LabelVerse, LabelPreChorus, LabelChorus, LabelBridge, LabelMiddle8,
	LabelSolo, LabelInstrumental, LabelBreakdown, LabelOutro, LabelSection,
}

// Valid reports whether l is one of the known labels
func (l Label) Valid() bool {
	for _, known := range Labels {
		if l == known {
			return true
		}
	}
	return false
}

// UnmarshalJSON rejects unknown labels
func (l *Label) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s != "" && !Label(s).Valid() {
		return fmt.Errorf("unknown section label %q", s)
	}
	*l = Label(s)
	return nil
}

// Signature is the per-section feature summary the labeler reasons over
type Signature struct {
	AvgRMS            float64 `json:"avg_rms"`
	MaxRMS            float64 `json:"max_rms"`
	SpectralFluxMean  float64 `json:"spectral_flux_mean"`
	SpectralFluxTrend float64 `json:"spectral_flux_trend"`
	ChromaEntropyMean float64 `json:"chroma_entropy_mean"`
	VocalRatio        float64 `json:"vocal_ratio"`
	HasVocals         bool    `json:"has_vocals"`
	EnergySlope       float64 `json:"energy_slope"`
	RepetitionScore   float64 `json:"repetition_score"`
	RepetitionCount   int     `json:"repetition_count"`
	DurationSeconds   float64 `json:"duration_seconds"`
	DurationBars      float64 `json:"duration_bars"`
	PositionRatio     float64 `json:"position_ratio"`
	IsUnique          bool    `json:"is_unique"`

	// RelativeEnergy is AvgRMS divided by the loudest section's AvgRMS
	RelativeEnergy float64 `json:"relative_energy"`
	// VocalEstimated is set when vocal presence was inferred without a vocal track
	VocalEstimated bool `json:"vocal_estimated"`
}

// Section is a half-open frame span [StartFrame, EndFrame)
type Section struct {
	Index      int       `json:"index"`
	StartFrame int       `json:"start_frame"`
	EndFrame   int       `json:"end_frame"`
	StartTime  float64   `json:"start_time"`
	EndTime    float64   `json:"end_time"`
	ClusterID  int       `json:"cluster_id"`
	Label      Label     `json:"section_label"`
	Variant    int       `json:"section_variant"`
	Confidence float64   `json:"label_confidence"`
	Reason     string    `json:"label_reason"`
	Key        string    `json:"key,omitempty"`
	Signature  Signature `json:"semantic_signature"`
}

// Frames returns the number of frames in the section
func (s Section) Frames() int {
	return s.EndFrame - s.StartFrame
}

// Duration returns the section length in seconds
func (s Section) Duration() float64 {
	return s.EndTime - s.StartTime
}

// Cluster groups sections judged acoustically equivalent
type Cluster struct {
	ID       int   `json:"id"`
	Sections []int `json:"sections"`
}

// Segmentation is the novelty detector output
type Segmentation struct {
	// Boundaries are strictly increasing frame indices, first 0, last n-1
	Boundaries []int `json:"boundaries"`
	// Strength is the smoothed novelty at each boundary
	Strength []float64 `json:"strength"`
	// Hard marks structurally significant boundaries
	Hard []bool `json:"hard"`
	// Novelty is the combined, smoothed curve (debug output)
	Novelty []float64 `json:"novelty,omitempty"`

	Sensitivity float64 `json:"sensitivity"`
	Retried     bool    `json:"retried"`
	Refined     int     `json:"refined"`
}

// IsHard reports whether the boundary at frame is flagged hard
func (s *Segmentation) IsHard(frame int) bool {
	for i, b := range s.Boundaries {
		if b == frame {
			return s.Hard[i]
		}
	}
	return false
}

// ReviewFlag marks sections a human should look at
type ReviewFlag struct {
	Sections []int  `json:"sections"`
	Reason   string `json:"reason"`
}
