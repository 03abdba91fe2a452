package executor

import (
	"context"

	"github.com/dftracer/dftracer-utils/pkg/pipeline"
)

// Sequential is the single-threaded cooperative executor (spec §4.6,
// §5): topological sort, then run one task to completion at a time,
// draining dynamically emitted tasks in-line before moving to the next
// static task. It never blocks on a future internally — every parent
// output it needs is already fulfilled by the time it is read.
type Sequential struct{}

// NewSequential builds a Sequential executor. It carries no state of its
// own between runs.
func NewSequential() *Sequential { return &Sequential{} }

func (s *Sequential) Execute(ctx context.Context, p *pipeline.Pipeline, initialInput any) (*PipelineOutput, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	order, err := p.TopoOrder()
	if err != nil {
		return nil, err
	}

	runner := newDynamicRunner(p)
	tctx := pipeline.NewTaskContext(runner)

	for _, id := range order {
		select {
		case <-ctx.Done():
			cause := ctx.Err()
			abortPending(p, cause)
			return nil, cause
		default:
		}

		in, err := assembleInput(p, id, initialInput)
		if err != nil {
			taskErr := &pipeline.TaskFailureError{TaskID: id, Cause: err}
			p.Fulfill(id, nil, taskErr)
			abortPending(p, taskErr)
			return nil, taskErr
		}

		out, err := p.RunTask(tctx, id, in)
		if err != nil {
			taskErr := &pipeline.TaskFailureError{TaskID: id, Cause: err}
			p.Fulfill(id, nil, taskErr)
			abortPending(p, taskErr)
			return nil, taskErr
		}
		p.Fulfill(id, out, nil)

		if err := runner.drain(tctx); err != nil {
			abortPending(p, err)
			return nil, err
		}
	}

	return collectOutput(p), nil
}
