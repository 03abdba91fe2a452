package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dftracer/dftracer-utils/pkg/pipeline"
)

// buildScenarioC constructs spec §8 scenario C: T1:+10, T2:*2,
// T3:combine(sum), edges T1->T3, T2->T3.
func buildScenarioC() (*pipeline.Pipeline, pipeline.TaskID, pipeline.TaskID, pipeline.TaskID) {
	p := pipeline.New()
	t1, _ := pipeline.AddTask(p, func(_ *pipeline.TaskContext, in int) (int, error) { return in + 10, nil })
	t2, _ := pipeline.AddTask(p, func(_ *pipeline.TaskContext, in int) (int, error) { return in * 2, nil })
	t3, _ := pipeline.AddTask(p, func(_ *pipeline.TaskContext, in pipeline.Tuple) (int, error) {
		sum := 0
		for _, v := range in {
			sum += v.(int)
		}
		return sum, nil
	})
	_ = p.AddDependency(t1, t3)
	_ = p.AddDependency(t2, t3)
	return p, t1, t2, t3
}

func TestSequentialScenarioC(t *testing.T) {
	p, t1, t2, t3 := buildScenarioC()
	out, err := NewSequential().Execute(context.Background(), p, 5)
	require.NoError(t, err)

	v1, _ := p.Await(t1)
	v2, _ := p.Await(t2)
	v3, _ := out.Get(t3)
	require.Equal(t, 15, v1)
	require.Equal(t, 10, v2)
	require.Equal(t, 25, v3)
}

// TestSequentialAndThreadAgree is spec §8 target 8: sequential and thread
// executors produce identical outputs for every TaskResult on the same
// deterministic pipeline.
func TestSequentialAndThreadAgree(t *testing.T) {
	seqPipeline, _, _, seqT3 := buildScenarioC()
	seqOut, err := NewSequential().Execute(context.Background(), seqPipeline, 5)
	require.NoError(t, err)
	seqVal, _ := seqOut.Get(seqT3)

	threadPipeline, _, _, threadT3 := buildScenarioC()
	threadOut, err := NewThread(4).Execute(context.Background(), threadPipeline, 5)
	require.NoError(t, err)
	threadVal, _ := threadOut.Get(threadT3)

	require.Equal(t, seqVal, threadVal)
}

// TestExecuteRejectsCycle is spec §8 target 9: a cycle causes execute to
// fail before any task body runs.
func TestExecuteRejectsCycle(t *testing.T) {
	p := pipeline.New()
	ran := false
	t1, _ := pipeline.AddTask(p, func(_ *pipeline.TaskContext, in int) (int, error) {
		ran = true
		return in, nil
	})
	t2, _ := pipeline.AddTask(p, func(_ *pipeline.TaskContext, in int) (int, error) {
		ran = true
		return in, nil
	})
	_ = p.AddDependency(t1, t2)
	_ = p.AddDependency(t2, t1)

	_, err := NewSequential().Execute(context.Background(), p, 1)
	require.Error(t, err)
	require.False(t, ran)
}

// TestTaskFailureAbortsPendingFutures covers spec §7's PipelineError::
// TaskFailure recovery: all pending futures complete exceptionally.
func TestTaskFailureAbortsPendingFutures(t *testing.T) {
	p := pipeline.New()
	failing, failingResult := pipeline.AddTask(p, func(_ *pipeline.TaskContext, in int) (int, error) {
		return 0, assertErr
	})
	downstream, downstreamResult := pipeline.AddTask(p, func(_ *pipeline.TaskContext, in int) (int, error) {
		return in, nil
	})
	_ = p.AddDependency(failing, downstream)

	_, err := NewSequential().Execute(context.Background(), p, 1)
	require.Error(t, err)

	_, err1 := failingResult.Get()
	require.Error(t, err1)
	_, err2 := downstreamResult.Get()
	require.Error(t, err2)
}

var assertErr = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
