package pipeline

import "reflect"

// TaskID identifies one node in a Pipeline, stable for the pipeline's
// lifetime (spec §4.5, "add_task(fn) returns a stable TaskID").
type TaskID int

// Tuple is the value every multi-parent child actually receives: parent
// outputs in declared parent-insertion order (spec §4.5, "Multi-parent
// children receive a tuple of parents' outputs"). A task declared with
// Tuple as its input type is a heterogeneous join: it type-asserts each
// element itself. This, plus Any, are the two escape hatches spec §9
// calls for alongside the normal structural type check.
type Tuple []any

// Any is the universal input-type marker (spec §4.5: "a universal 'any'
// marker when the task takes a heterogeneous join"). Declaring a task with
// Any as its TaskFunc input type parameter makes it accept any single
// parent's output, or — together with a Tuple-shaped run-time value — any
// multi-parent join, without a structural match.
type Any = any

// TaskFunc is the user-supplied body of one task: given the input value
// assembled from its parents' outputs (or, for a root task, the pipeline's
// initial input), produce an output value or fail (spec §4.6, "Task
// contract"). ctx is non-nil only when the executor supports dynamic
// emission for this run; it is always non-nil for the sequential and
// thread executors.
type TaskFunc[I, O any] func(ctx *TaskContext, in I) (O, error)

// Task is the type-erased form every node in the graph stores, so the
// executor can walk a Pipeline without knowing each task's concrete I/O
// types; InputType/OutputType back Validate's structural check.
type Task interface {
	InputType() reflect.Type
	OutputType() reflect.Type
	run(ctx *TaskContext, in any) (any, error)
}

type genericTask[I, O any] struct {
	fn TaskFunc[I, O]
}

func newGenericTask[I, O any](fn TaskFunc[I, O]) *genericTask[I, O] {
	return &genericTask[I, O]{fn: fn}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (t *genericTask[I, O]) InputType() reflect.Type  { return typeOf[I]() }
func (t *genericTask[I, O]) OutputType() reflect.Type { return typeOf[O]() }

func (t *genericTask[I, O]) run(ctx *TaskContext, in any) (any, error) {
	typed, _ := in.(I)
	return t.fn(ctx, typed)
}

// anyType is the reflect.Type of the Any/interface{} marker; a node whose
// declared InputType equals anyType accepts any parent output in Validate.
var anyType = typeOf[Any]()

// tupleType is the reflect.Type of Tuple, the heterogeneous-join marker.
var tupleType = typeOf[Tuple]()
