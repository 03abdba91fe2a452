package executor

import (
	"context"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/dftracer/dftracer-utils/pkg/pipeline"
)

// Thread is the work-stealing multi-goroutine executor (spec §4.6, "Thread
// executor"): one deque per worker, ready static tasks pushed by whichever
// worker unblocked them, idle workers steal from the opposite end of a
// sibling's deque before backing off.
type Thread struct {
	// Workers is the worker goroutine count. Zero means runtime.GOMAXPROCS(0).
	Workers int
}

// NewThread builds a Thread executor with the given worker count (0 for
// GOMAXPROCS).
func NewThread(workers int) *Thread { return &Thread{Workers: workers} }

func (t *Thread) Execute(ctx context.Context, p *pipeline.Pipeline, initialInput any) (*PipelineOutput, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	// TopoOrder is unused for scheduling here (readiness is data-driven by
	// the parent refcounts below) but still confirms the graph is acyclic.
	if _, err := p.TopoOrder(); err != nil {
		return nil, err
	}

	ids := p.AllTaskIDs()
	n := len(ids)

	workers := t.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers < 1 {
		workers = 1
	}

	remaining := make([]int32, n)
	children := make([][]pipeline.TaskID, n)
	for _, id := range ids {
		parents := p.Parents(id)
		remaining[id] = int32(len(parents))
		for _, parent := range parents {
			children[parent] = append(children[parent], id)
		}
	}

	deques := make([]*deque, workers)
	for i := range deques {
		deques[i] = newDeque()
	}

	var wg sync.WaitGroup
	wg.Add(n)

	var errMu sync.Mutex
	var firstErr error
	recordErr := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}

	runner := newDynamicRunner(p)
	tctx := pipeline.NewTaskContext(runner)

	// schedule publishes id's readiness onto a deque, round-robining the
	// initial wave and otherwise handing it to the worker that unblocked it
	// (push-owner locality; spec §4.6: "a worker that completes a task
	// pushes its newly ready children onto its own deque").
	schedule := func(id pipeline.TaskID, ownerHint int) {
		deques[ownerHint%workers].pushOwner(id)
	}

	for _, id := range ids {
		if remaining[id] == 0 {
			schedule(id, int(id))
		}
	}

	stopCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopCh)
	}()

	runWorker := func(wid int) {
		var backoff rate.Sometimes
		backoff.Every = 64
		for {
			id, ok := deques[wid].popOwner()
			if !ok {
				id, ok = stealFrom(deques, wid)
			}
			if !ok {
				select {
				case <-stopCh:
					return
				default:
				}
				backoff.Do(func() { time.Sleep(200 * time.Microsecond) })
				runtime.Gosched()
				continue
			}

			select {
			case <-ctx.Done():
				taskErr := ctx.Err()
				p.Fulfill(id, nil, taskErr)
				recordErr(taskErr)
				wg.Done()
				scheduleChildren(id, children, remaining, schedule, wid)
				continue
			default:
			}

			in, err := assembleInput(p, id, initialInput)
			if err == nil {
				out, runErr := p.RunTask(tctx, id, in)
				if runErr != nil {
					err = runErr
				} else {
					p.Fulfill(id, out, nil)
				}
				if runErr == nil {
					if drainErr := runner.drain(tctx); drainErr != nil {
						recordErr(drainErr)
					}
				}
			}
			if err != nil {
				taskErr := &pipeline.TaskFailureError{TaskID: id, Cause: err}
				p.Fulfill(id, nil, taskErr)
				recordErr(taskErr)
			}

			wg.Done()
			scheduleChildren(id, children, remaining, schedule, wid)
		}
	}

	var workerWG sync.WaitGroup
	workerWG.Add(workers)
	for w := 0; w < workers; w++ {
		w := w
		go func() {
			defer workerWG.Done()
			runWorker(w)
		}()
	}
	workerWG.Wait()

	if firstErr != nil {
		abortPending(p, firstErr)
		return nil, firstErr
	}
	return collectOutput(p), nil
}

// scheduleChildren decrements each of id's children's remaining-parent
// count, pushing any child that reaches zero onto the deque of the worker
// that just finished id (ownerHint), win or lose — a failed parent still
// unblocks its children so the failure cascades down through
// assembleInput's p.Await error rather than requiring a separate abort walk.
func scheduleChildren(id pipeline.TaskID, children [][]pipeline.TaskID, remaining []int32, schedule func(pipeline.TaskID, int), ownerHint int) {
	for _, child := range children[id] {
		if atomic.AddInt32(&remaining[child], -1) == 0 {
			schedule(child, ownerHint)
		}
	}
}

// stealFrom tries every other worker's deque once, starting from a random
// offset so concurrent thieves fan out instead of contending on the same
// victim.
func stealFrom(deques []*deque, self int) (pipeline.TaskID, bool) {
	n := len(deques)
	if n <= 1 {
		return 0, false
	}
	start := rand.IntN(n)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if idx == self {
			continue
		}
		if id, ok := deques[idx].steal(); ok {
			return id, true
		}
	}
	return 0, false
}
