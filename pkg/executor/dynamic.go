package executor

import (
	"fmt"
	"sync"

	"github.com/dftracer/dftracer-utils/pkg/pipeline"
)

// dynNode is one task emitted mid-run via pipeline.Emit (spec §3,
// "Lifecycles": "an ExecutorContext owns dynamic nodes emitted mid-run").
// Unlike a static node its input is already known at emission time; only
// its start is gated on dependsOn.
type dynNode struct {
	id        pipeline.TaskID
	task      pipeline.Task
	in        any
	dependsOn []pipeline.TaskID
	future    *pipeline.Future
}

// dynamicRunner is a minimal, single-threaded pipeline.Emitter: it is the
// "synchronous sub-scheduler" spec §4.6 describes for the sequential
// executor ("the emitted task is appended to a per-run dynamic queue and
// drained before moving on"), and is reused by the distributed executor's
// per-rank sequential sub-runs.
type dynamicRunner struct {
	p *pipeline.Pipeline

	mu      sync.Mutex
	nextID  pipeline.TaskID
	pending map[pipeline.TaskID]*dynNode
	done    map[pipeline.TaskID]bool
}

func newDynamicRunner(p *pipeline.Pipeline) *dynamicRunner {
	return &dynamicRunner{
		p:       p,
		nextID:  pipeline.TaskID(p.NumTasks()),
		pending: make(map[pipeline.TaskID]*dynNode),
		done:    make(map[pipeline.TaskID]bool),
	}
}

// EmitDynamic implements pipeline.Emitter: it atomically allocates an id,
// registers the node, and returns its Future — the emitted task cannot be
// observed as runnable (see depsSatisfied) until this call returns, which
// is what rules out the add-then-wire race spec §9 calls out.
func (r *dynamicRunner) EmitDynamic(task pipeline.Task, in any, dependsOn []pipeline.TaskID) (*pipeline.Future, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	f := pipeline.NewFuture()
	r.pending[id] = &dynNode{id: id, task: task, in: in, dependsOn: dependsOn, future: f}
	return f, nil
}

// depsSatisfied reports whether every id in deps has completed, whether it
// names a static task (already finished, so pipeline.Ready is authoritative)
// or an earlier dynamic task (tracked in r.done).
func (r *dynamicRunner) depsSatisfied(deps []pipeline.TaskID) bool {
	numStatic := pipeline.TaskID(r.p.NumTasks())
	for _, d := range deps {
		if d < numStatic {
			if !r.p.Ready(d) {
				return false
			}
			continue
		}
		if !r.done[d] {
			return false
		}
	}
	return true
}

// drain runs every pending dynamic task once its dependencies are
// satisfied, repeating fixed-point style (spec §4.6: "a synchronous
// sub-scheduler serves the same topological-sort invariant over the
// dynamic slice") since running one task may itself emit more. Returns an
// error — and stops — on the first task failure or unresolved dependency.
func (r *dynamicRunner) drain(ctx *pipeline.TaskContext) error {
	for {
		r.mu.Lock()
		var next *dynNode
		for id, n := range r.pending {
			if r.depsSatisfied(n.dependsOn) {
				next = n
				delete(r.pending, id)
				break
			}
		}
		remaining := len(r.pending)
		r.mu.Unlock()

		if next == nil {
			if remaining > 0 {
				return fmt.Errorf("executor: %d dynamic task(s) have unresolved dependencies", remaining)
			}
			return nil
		}

		out, err := pipeline.Run(ctx, next.task, next.in)
		if err != nil {
			next.future.Fulfill(nil, err)
			return err
		}
		next.future.Fulfill(out, nil)

		r.mu.Lock()
		r.done[next.id] = true
		r.mu.Unlock()
	}
}
