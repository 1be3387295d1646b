// Package aggregation implements aggregation pipelines: an ordered list of
// stages, each consuming the output of the previous one.
package aggregation

import (
	"slices"

	"github.com/sboesebeck/morphium-sub001/domain"
)

// Pipeline is an ordered list of stages. Collation and Comment apply to the
// whole pipeline.
type Pipeline struct {
	stages    []Stage
	Collation *domain.Collation
	Comment   string
}

// NewPipeline returns a pipeline running stages in order.
func NewPipeline(stages ...Stage) Pipeline {
	return Pipeline{stages: slices.Clone(stages)}
}

// Stages returns the stages of the pipeline.
func (p Pipeline) Stages() []Stage { return slices.Clone(p.stages) }

// Len returns the number of stages.
func (p Pipeline) Len() int { return len(p.stages) }

// Append returns a copy of p with stages added at the end.
func (p Pipeline) Append(stages ...Stage) Pipeline {
	p.stages = append(slices.Clone(p.stages), stages...)
	return p
}

// Documents returns the wire form of the stages.
func (p Pipeline) Documents() []*domain.Document {
	res := make([]*domain.Document, len(p.stages))
	for n, s := range p.stages {
		res[n] = s.Document()
	}
	return res
}
