package structure

import (
	"context"
	"fmt"

	"github.com/RyanBlaney/sonido-forma/features"
	"github.com/RyanBlaney/sonido-forma/logging"
)

// Clusterer turns boundaries into sections and groups equivalent sections.
//
// Clustering is greedy and order dependent: the first unclustered section
// opens a cluster and every later unclustered section whose average similarity
// to it clears the threshold joins. Membership is tested against that first
// representative only, so the relation is not transitive.
type Clusterer struct {
	params ClusterParams
	logger logging.Logger
}

// NewClusterer creates a clusterer with default parameters
func NewClusterer() *Clusterer {
	return NewClustererWithParams(DefaultClusterParams())
}

// NewClustererWithParams creates a clusterer with custom parameters
func NewClustererWithParams(params ClusterParams) *Clusterer {
	return &Clusterer{
		params: params,
		logger: logging.WithFields(logging.Fields{
			"component": "section_clusterer",
		}),
	}
}

// Sections materializes one section per consecutive boundary pair. The last
// section runs to the end of the track so sections partition [0, n). Spans
// shorter than MinSectionFrames are absorbed by a neighbour.
func (c *Clusterer) Sections(seg *Segmentation, frames *features.Frames) []Section {
	n := frames.Len()
	if n == 0 || len(seg.Boundaries) == 0 {
		return nil
	}

	b := seg.Boundaries
	var spans [][2]int
	if len(b) == 1 {
		spans = append(spans, [2]int{0, n})
	}
	for k := 0; k+1 < len(b); k++ {
		end := b[k+1]
		if k+2 == len(b) {
			// the closing boundary is the last frame; its section includes it
			end = n
		}
		if end > b[k] {
			spans = append(spans, [2]int{b[k], end})
		}
	}

	minFrames := max(1, c.params.MinSectionFrames)
	merged := make([][2]int, 0, len(spans))
	for _, s := range spans {
		if s[1]-s[0] < minFrames && len(merged) > 0 {
			merged[len(merged)-1][1] = s[1]
			continue
		}
		merged = append(merged, s)
	}
	if len(merged) > 1 && merged[0][1]-merged[0][0] < minFrames {
		merged[1][0] = merged[0][0]
		merged = merged[1:]
	}

	sections := make([]Section, len(merged))
	for i, s := range merged {
		sections[i] = Section{
			Index:      i,
			StartFrame: s[0],
			EndFrame:   s[1],
			StartTime:  frames.TimeAt(s[0]),
			EndTime:    frames.TimeAt(s[1]),
			ClusterID:  -1,
		}
	}
	return sections
}

// Cluster assigns cluster ids in place and returns the cluster map
func (c *Clusterer) Cluster(ctx context.Context, sim Similarity, sections []Section, seg *Segmentation) ([]Cluster, error) {
	logger := c.logger.WithFields(logging.Fields{
		"function": "Cluster",
	})

	for i := range sections {
		sections[i].ClusterID = -1
	}

	var clusters []Cluster
	for i := range sections {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("clustering: %w", err)
		}
		if sections[i].ClusterID >= 0 {
			continue
		}

		id := len(clusters)
		sections[i].ClusterID = id
		cluster := Cluster{ID: id, Sections: []int{i}}

		for j := i + 1; j < len(sections); j++ {
			if sections[j].ClusterID >= 0 {
				continue
			}
			if c.params.RespectHardBoundaries && j == i+1 && seg != nil && seg.IsHard(sections[j].StartFrame) {
				continue
			}
			if c.AverageSimilarity(sim, sections[i], sections[j]) >= c.params.Threshold {
				sections[j].ClusterID = id
				cluster.Sections = append(cluster.Sections, j)
			}
		}
		clusters = append(clusters, cluster)
	}

	logger.Debug("Sections clustered", logging.Fields{
		"sections": len(sections),
		"clusters": len(clusters),
	})
	return clusters, nil
}

// AverageSimilarity averages sim over strided frame pairs of two sections
func (c *Clusterer) AverageSimilarity(sim Similarity, a, b Section) float64 {
	stride := max(1, c.params.Stride)
	n := sim.Size()

	total := 0.0
	count := 0
	for i := a.StartFrame; i < a.EndFrame && i < n; i += stride {
		for j := b.StartFrame; j < b.EndFrame && j < n; j += stride {
			total += sim.At(i, j)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}
