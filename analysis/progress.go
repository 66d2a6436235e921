package analysis

import "time"

// Stage names a pipeline stage
type Stage string

const (
	StageFeatures   Stage = "features"
	StageSimilarity Stage = "similarity"
	StageNovelty    Stage = "novelty"
	StageClustering Stage = "clustering"
	StageLabeling   Stage = "labeling"
	StageChords     Stage = "chords"
	StageCorrection Stage = "correction"
)

// Stages lists the stages in execution order
var Stages = []Stage{
	StageFeatures, StageSimilarity, StageNovelty, StageClustering,
	StageLabeling, StageChords, StageCorrection,
}

var stagePercent = map[Stage]int{
	StageFeatures:   10,
	StageSimilarity: 35,
	StageNovelty:    50,
	StageClustering: 65,
	StageLabeling:   75,
	StageChords:     90,
	StageCorrection: 100,
}

// Percent returns the completion percentage reported when the stage ends
func (s Stage) Percent() int {
	return stagePercent[s]
}

// ProgressEvent is emitted when a stage completes
type ProgressEvent struct {
	Stage   Stage         `json:"stage"`
	Percent int           `json:"percent"`
	Elapsed time.Duration `json:"elapsed"`
}

// progressFunc receives stage completions; it must not block
type progressFunc func(ProgressEvent)
