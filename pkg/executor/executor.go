// Package executor runs a pkg/pipeline.Pipeline to completion (spec §4.6,
// "Execution model"): three interchangeable executors — sequential,
// thread-pool with work stealing, and distributed multi-process — share
// one contract and deliver each node's output both through the pipeline's
// per-task TaskResult futures and through a run's PipelineOutput.
package executor

import (
	"context"

	"github.com/dftracer/dftracer-utils/pkg/pipeline"
)

// Executor runs p to completion, seeding root tasks (those with no
// parents) with initialInput, and returns the terminal nodes' outputs.
type Executor interface {
	Execute(ctx context.Context, p *pipeline.Pipeline, initialInput any) (*PipelineOutput, error)
}

// PipelineOutput exposes the outputs of a run's terminal nodes — those
// with no children (spec §4.6: "PipelineOutput exposes outputs of the
// terminal nodes").
type PipelineOutput struct {
	values map[pipeline.TaskID]any
}

func newPipelineOutput() *PipelineOutput {
	return &PipelineOutput{values: make(map[pipeline.TaskID]any)}
}

// Get returns the value terminal task id produced.
func (o *PipelineOutput) Get(id pipeline.TaskID) (any, bool) {
	v, ok := o.values[id]
	return v, ok
}

// TerminalIDs returns the ids this output has a value for.
func (o *PipelineOutput) TerminalIDs() []pipeline.TaskID {
	ids := make([]pipeline.TaskID, 0, len(o.values))
	for id := range o.values {
		ids = append(ids, id)
	}
	return ids
}

// assembleInput builds a task's input value per spec §4.6: a root task
// (no parents) gets the run's initial input; a single-parent task gets its
// parent's output verbatim; a multi-parent task gets a pipeline.Tuple of
// parent outputs in declared order.
func assembleInput(p *pipeline.Pipeline, id pipeline.TaskID, initialInput any) (any, error) {
	parents := p.Parents(id)
	switch len(parents) {
	case 0:
		return initialInput, nil
	case 1:
		v, err := p.Await(parents[0])
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		tup := make(pipeline.Tuple, len(parents))
		for i, parentID := range parents {
			v, err := p.Await(parentID)
			if err != nil {
				return nil, err
			}
			tup[i] = v
		}
		return tup, nil
	}
}

// collectOutput gathers every terminal node's published result into a
// PipelineOutput, once a run has completed (successfully or not).
func collectOutput(p *pipeline.Pipeline) *PipelineOutput {
	out := newPipelineOutput()
	for _, id := range p.TerminalTaskIDs() {
		if v, err := p.Await(id); err == nil {
			out.values[id] = v
		}
	}
	return out
}

// abortPending fulfills every static task that has not yet completed with
// cause. Futures of dynamically emitted tasks are not touched here: one
// still pending in a dynamicRunner stays unfulfilled.
func abortPending(p *pipeline.Pipeline, cause error) {
	for _, id := range p.AllTaskIDs() {
		if !p.Ready(id) {
			p.Fulfill(id, nil, cause)
		}
	}
}
