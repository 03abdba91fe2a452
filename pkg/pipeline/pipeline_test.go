package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestScenarioA is spec §8 scenario A: double = fn(x)->x*2, executed
// directly via RunTask/Await (no executor package dependency here).
func TestScenarioA(t *testing.T) {
	p := New()
	id, result := AddTask(p, func(_ *TaskContext, in int) (int, error) {
		return in * 2, nil
	})
	require.NoError(t, p.Validate())

	out, err := p.RunTask(nil, id, 21)
	require.NoError(t, err)
	p.Fulfill(id, out, nil)

	got, err := result.Get()
	require.NoError(t, err)
	require.Equal(t, 42, got)
}

// TestScenarioB is spec §8 scenario B: add10 -> mul2 chained; add10.get()
// == 15 and mul2.get() == 30 on input 5.
func TestScenarioB(t *testing.T) {
	p := New()
	add10, add10Result := AddTask(p, func(_ *TaskContext, in int) (int, error) {
		return in + 10, nil
	})
	mul2, mul2Result := AddTask(p, func(_ *TaskContext, in int) (int, error) {
		return in * 2, nil
	})
	require.NoError(t, p.AddDependency(add10, mul2))
	require.NoError(t, p.Validate())

	out, err := p.RunTask(nil, add10, 5)
	require.NoError(t, err)
	p.Fulfill(add10, out, nil)

	parentVal, err := p.Await(add10)
	require.NoError(t, err)
	out2, err := p.RunTask(nil, mul2, parentVal)
	require.NoError(t, err)
	p.Fulfill(mul2, out2, nil)

	a, err := add10Result.Get()
	require.NoError(t, err)
	require.Equal(t, 15, a)

	m, err := mul2Result.Get()
	require.NoError(t, err)
	require.Equal(t, 30, m)
}

// TestScenarioC is spec §8 scenario C: T1:+10, T2:*2, T3:combine(sum),
// edges T1->T3, T2->T3; input 5. T3.get() == 25.
func TestScenarioC(t *testing.T) {
	p := New()
	t1, _ := AddTask(p, func(_ *TaskContext, in int) (int, error) { return in + 10, nil })
	t2, _ := AddTask(p, func(_ *TaskContext, in int) (int, error) { return in * 2, nil })
	t3, t3Result := AddTask(p, func(_ *TaskContext, in Tuple) (int, error) {
		sum := 0
		for _, v := range in {
			sum += v.(int)
		}
		return sum, nil
	})
	require.NoError(t, p.AddDependency(t1, t3))
	require.NoError(t, p.AddDependency(t2, t3))
	require.NoError(t, p.Validate())

	out1, err := p.RunTask(nil, t1, 5)
	require.NoError(t, err)
	p.Fulfill(t1, out1, nil)

	out2, err := p.RunTask(nil, t2, 5)
	require.NoError(t, err)
	p.Fulfill(t2, out2, nil)

	v1, _ := p.Await(t1)
	v2, _ := p.Await(t2)
	out3, err := p.RunTask(nil, t3, Tuple{v1, v2})
	require.NoError(t, err)
	p.Fulfill(t3, out3, nil)

	got, err := t3Result.Get()
	require.NoError(t, err)
	require.Equal(t, 25, got)
}

// TestScenarioD is spec §8 scenario D: a cycle T1<->T2 makes Validate
// return a Validation error (target 9: execute throws before any task
// body runs — here, before any RunTask call is even reachable).
func TestScenarioD(t *testing.T) {
	p := New()
	t1, _ := AddTask(p, func(_ *TaskContext, in int) (int, error) { return in, nil })
	t2, _ := AddTask(p, func(_ *TaskContext, in int) (int, error) { return in, nil })
	require.NoError(t, p.AddDependency(t1, t2))
	require.NoError(t, p.AddDependency(t2, t1))

	err := p.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrValidation))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ValidationCycle, verr.Kind)
}

// TestValidateTypeMismatch is spec §8 target 10: a type-incompatible
// child-parent connection is rejected by Validate.
func TestValidateTypeMismatch(t *testing.T) {
	p := New()
	producesInt, _ := AddTask(p, func(_ *TaskContext, in int) (int, error) { return in, nil })
	wantsString, _ := AddTask(p, func(_ *TaskContext, in string) (string, error) { return in, nil })
	require.NoError(t, p.AddDependency(producesInt, wantsString))

	err := p.Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ValidationTypeMismatch, verr.Kind)
}

// TestValidateMultiParentRequiresTupleOrAny covers the other half of
// checkTypes: a multi-parent child that doesn't declare Tuple or Any.
func TestValidateMultiParentRequiresTupleOrAny(t *testing.T) {
	p := New()
	t1, _ := AddTask(p, func(_ *TaskContext, in int) (int, error) { return in, nil })
	t2, _ := AddTask(p, func(_ *TaskContext, in int) (int, error) { return in, nil })
	bad, _ := AddTask(p, func(_ *TaskContext, in int) (int, error) { return in, nil })
	require.NoError(t, p.AddDependency(t1, bad))
	require.NoError(t, p.AddDependency(t2, bad))

	err := p.Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ValidationTypeMismatch, verr.Kind)
}

// TestValidateEmptyPipeline covers PipelineError::Validation's "empty
// pipeline" case.
func TestValidateEmptyPipeline(t *testing.T) {
	p := New()
	err := p.Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ValidationEmpty, verr.Kind)
}

// TestTopoOrderRespectsEdges is spec §8 target 6: for all edges u->v,
// index(u) < index(v) in the order TopoOrder returns.
func TestTopoOrderRespectsEdges(t *testing.T) {
	p := New()
	a, _ := AddTask(p, func(_ *TaskContext, in int) (int, error) { return in, nil })
	b, _ := AddTask(p, func(_ *TaskContext, in int) (int, error) { return in, nil })
	c, _ := AddTask(p, func(_ *TaskContext, in Tuple) (int, error) { return 0, nil })
	require.NoError(t, p.AddDependency(a, b))
	require.NoError(t, p.AddDependency(a, c))
	require.NoError(t, p.AddDependency(b, c))

	order, err := p.TopoOrder()
	require.NoError(t, err)

	pos := make(map[TaskID]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	require.Less(t, pos[a], pos[b])
	require.Less(t, pos[a], pos[c])
	require.Less(t, pos[b], pos[c])
}

// TestAnyAcceptsAnyParentOutput covers the Any escape hatch for a
// single-parent edge (spec §9, "a narrow Any escape hatch").
func TestAnyAcceptsAnyParentOutput(t *testing.T) {
	p := New()
	producer, _ := AddTask(p, func(_ *TaskContext, in int) (string, error) { return "x", nil })
	consumer, _ := AddTask(p, func(_ *TaskContext, in Any) (int, error) { return 0, nil })
	require.NoError(t, p.AddDependency(producer, consumer))
	require.NoError(t, p.Validate())
}

// TestFutureFulfilledOnce ensures a Future only ever publishes its first
// Fulfill call (spec §9, "One-shot result channels").
func TestFutureFulfilledOnce(t *testing.T) {
	f := NewFuture()
	f.Fulfill(1, nil)
	f.Fulfill(2, errors.New("ignored"))

	v, err := f.Get()
	require.NoError(t, err)
	require.Equal(t, 1, v)
}
