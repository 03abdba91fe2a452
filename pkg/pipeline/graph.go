// Package pipeline is the typed task-DAG described in spec §4.5: a graph
// of polymorphic nodes connected by directed parent→child dependency
// edges, validated for acyclicity and structural type compatibility before
// any executor (pkg/executor) is allowed to run it.
package pipeline

import "sync"

// node is one task in the graph (spec §3, "Pipeline graph"): the
// type-erased task body, its parents in declared order (order matters for
// Tuple assembly), and the one-shot slot its output is published through.
type node struct {
	id      TaskID
	task    Task
	parents []TaskID
	result  *Future
}

// Pipeline is a typed DAG of tasks (spec §4.5). It is safe to build up
// concurrently (AddTask/AddDependency take a lock) but is meant to be
// fully constructed before Validate/execution.
type Pipeline struct {
	mu    sync.Mutex
	nodes []*node
}

// New creates an empty Pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

// AddTask registers fn as a new node and returns its stable TaskID plus a
// TaskResult the caller can Get() once the pipeline has executed (spec
// §4.5, "add_task(fn) returns a stable TaskId and a shareable
// TaskResult<Output>").
func AddTask[I, O any](p *Pipeline, fn TaskFunc[I, O]) (TaskID, *TaskResult[O]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := TaskID(len(p.nodes))
	o := NewFuture()
	p.nodes = append(p.nodes, &node{
		id:     id,
		task:   newGenericTask(fn),
		result: o,
	})
	return id, &TaskResult[O]{f: o}
}

// AddDependency records a parent→child edge (spec §4.5, "add_dependency").
// Edges are appended in call order, which is the order Tuple assembles
// multi-parent inputs in.
func (p *Pipeline) AddDependency(parent, child TaskID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.validID(parent) || !p.validID(child) {
		return newValidationError(ValidationUnknownTask, "unknown task id in AddDependency(%d, %d)", parent, child)
	}
	cn := p.nodes[child]
	cn.parents = append(cn.parents, parent)
	return nil
}

func (p *Pipeline) validID(id TaskID) bool {
	return id >= 0 && int(id) < len(p.nodes)
}

// NumTasks returns the number of static tasks currently in the graph.
func (p *Pipeline) NumTasks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.nodes)
}

// Validate runs the checks spec §4.5 requires before every execution:
// the graph is non-empty, acyclic, and every edge is structurally type
// compatible. It never mutates the graph and never invokes a task body
// (spec §8 targets 9-10).
func (p *Pipeline) Validate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.nodes) == 0 {
		return newValidationError(ValidationEmpty, "pipeline has no tasks")
	}

	order, err := p.topoSort()
	if err != nil {
		return err
	}

	for _, n := range p.nodes {
		if err := p.checkTypes(n); err != nil {
			return err
		}
	}

	_ = order // topoSort's ordering is exposed via TopoOrder for executors
	return nil
}

// TopoOrder returns a topological order over the static nodes (spec §8
// target 6: "for all edges u→v, index(u) < index(v)"), recomputing it
// fresh rather than caching Validate's result so it stays correct for a
// graph mutated after a prior Validate call.
func (p *Pipeline) TopoOrder() ([]TaskID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.topoSort()
}

// color marks a DFS node's traversal state for cycle detection.
type color int

const (
	white color = iota
	gray
	black
)

// topoSort performs a standard DFS with gray-node marking (spec §4.5,
// "validate() ... cycle detection is a standard DFS with gray-node
// marking"), returning a valid topological order or a ValidationError if a
// back-edge (cycle) is found.
func (p *Pipeline) topoSort() ([]TaskID, error) {
	colors := make([]color, len(p.nodes))
	order := make([]TaskID, 0, len(p.nodes))

	var visit func(id TaskID) error
	visit = func(id TaskID) error {
		switch colors[id] {
		case black:
			return nil
		case gray:
			return newValidationError(ValidationCycle, "cycle detected through task %d", id)
		}
		colors[id] = gray
		for _, parent := range p.nodes[id].parents {
			if err := visit(parent); err != nil {
				return err
			}
		}
		colors[id] = black
		order = append(order, id)
		return nil
	}

	for _, n := range p.nodes {
		if colors[n.id] == white {
			if err := visit(n.id); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}

// checkTypes enforces spec §4.5's structural rule: a single-parent child
// must match its parent's output type exactly, or declare Any; a
// multi-parent child must declare Tuple or Any.
func (p *Pipeline) checkTypes(n *node) error {
	switch len(n.parents) {
	case 0:
		return nil
	case 1:
		parent := p.nodes[n.parents[0]]
		if n.task.InputType() == anyType {
			return nil
		}
		if n.task.InputType() != parent.task.OutputType() {
			return newValidationError(ValidationTypeMismatch,
				"task %d expects %s but its parent (task %d) produces %s",
				n.id, n.task.InputType(), parent.id, parent.task.OutputType())
		}
		return nil
	default:
		if n.task.InputType() == anyType || n.task.InputType() == tupleType {
			return nil
		}
		return newValidationError(ValidationTypeMismatch,
			"task %d has %d parents but does not declare Tuple or Any input",
			n.id, len(n.parents))
	}
}
