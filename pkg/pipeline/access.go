package pipeline

import (
	"context"
	"reflect"
)

// The accessors below are the seam executors (pkg/executor) use to drive a
// Pipeline without reaching into its unexported node slice directly: the
// graph stays the single owner of node storage and one-shot result slots,
// per spec §3's ownership model ("Pipeline owns static nodes").

// AllTaskIDs returns every static task's id, in insertion order.
func (p *Pipeline) AllTaskIDs() []TaskID {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]TaskID, len(p.nodes))
	for i := range p.nodes {
		ids[i] = TaskID(i)
	}
	return ids
}

// Parents returns id's parent task ids, in declared (Tuple-assembly)
// order.
func (p *Pipeline) Parents(id TaskID) []TaskID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TaskID(nil), p.nodes[id].parents...)
}

// TerminalTaskIDs returns the ids of every node with no children — the
// nodes whose output is part of a run's PipelineOutput (spec §4.6).
func (p *Pipeline) TerminalTaskIDs() []TaskID {
	p.mu.Lock()
	defer p.mu.Unlock()
	hasChild := make([]bool, len(p.nodes))
	for _, n := range p.nodes {
		for _, parent := range n.parents {
			hasChild[parent] = true
		}
	}
	var out []TaskID
	for i, has := range hasChild {
		if !has {
			out = append(out, TaskID(i))
		}
	}
	return out
}

// RunTask invokes id's task body with an already-assembled input value.
func (p *Pipeline) RunTask(ctx *TaskContext, id TaskID, in any) (any, error) {
	p.mu.Lock()
	task := p.nodes[id].task
	p.mu.Unlock()
	return task.run(ctx, in)
}

// Run invokes an arbitrary Task value directly, for executors running
// dynamically emitted tasks that are not stored as nodes in this Pipeline
// (spec §3, "an ExecutorContext owns dynamic nodes emitted mid-run").
func Run(ctx *TaskContext, t Task, in any) (any, error) {
	return t.run(ctx, in)
}

// Fulfill publishes id's result through its one-shot slot (spec §9,
// "One-shot result channels"). Safe to call more than once; only the first
// call takes effect.
func (p *Pipeline) Fulfill(id TaskID, val any, err error) {
	p.mu.Lock()
	o := p.nodes[id].result
	p.mu.Unlock()
	o.Fulfill(val, err)
}

// Await blocks until id's result is published.
func (p *Pipeline) Await(id TaskID) (any, error) {
	p.mu.Lock()
	o := p.nodes[id].result
	p.mu.Unlock()
	return o.Get()
}

// AwaitContext is Await with cancellation.
func (p *Pipeline) AwaitContext(ctx context.Context, id TaskID) (any, error) {
	p.mu.Lock()
	o := p.nodes[id].result
	p.mu.Unlock()
	return o.GetContext(ctx)
}

// Ready reports whether id's result has already been published, without
// blocking — used by executors to test whether a dynamic task's static
// dependency is already satisfied.
func (p *Pipeline) Ready(id TaskID) bool {
	p.mu.Lock()
	o := p.nodes[id].result
	p.mu.Unlock()
	return o.Ready()
}

// InputType and OutputType expose a node's declared types (e.g. for
// executors building diagnostics); both come straight from the task.
func (p *Pipeline) InputType(id TaskID) reflect.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nodes[id].task.InputType()
}

func (p *Pipeline) OutputType(id TaskID) reflect.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nodes[id].task.OutputType()
}
