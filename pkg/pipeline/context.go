package pipeline

// Emitter is implemented by whichever executor is driving a run; it is the
// only way a dynamically emitted task gets wired into that run's schedule.
// EmitDynamic must look up dependencies and register the new node as one
// atomic step (spec §9, "Re-entrancy of task emission": "do not offer a
// two-step 'add then wire' API — it is a classic race-to-start bug").
// Exported so executors living in pkg/executor can implement it.
type Emitter interface {
	EmitDynamic(task Task, in any, dependsOn []TaskID) (*Future, error)
}

// TaskContext is handed to every running task so it may, from inside its
// own body, emit further tasks into the same run (spec §4.6, "Dynamic task
// emission"). A task that does not need to emit simply ignores it.
type TaskContext struct {
	e Emitter
}

// NewTaskContext wraps an Emitter for handing to a running task body.
func NewTaskContext(e Emitter) *TaskContext {
	return &TaskContext{e: e}
}

// Emit atomically adds a dynamic task to the running pipeline: fn(ctx, in)
// will run once every task listed in dependsOn has completed, and not
// before (spec §4.6: "the emitted task cannot start before its dependency
// is declared — this is the core race-freedom invariant for emission").
// The returned TaskResult is fulfilled exactly like a static task's.
func Emit[I, O any](ctx *TaskContext, fn TaskFunc[I, O], in I, dependsOn ...TaskID) *TaskResult[O] {
	task := newGenericTask(fn)
	f, err := ctx.e.EmitDynamic(task, in, dependsOn)
	if err != nil {
		f = NewFuture()
		f.Fulfill(nil, err)
	}
	return &TaskResult[O]{f: f}
}
