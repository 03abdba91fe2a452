package executor

import (
	"sync"

	"github.com/dftracer/dftracer-utils/pkg/pipeline"
)

// deque is one worker's ready-task queue (spec §4.6, "Thread executor":
// "Each worker has its own deque; the owner pushes/pops at the front,
// thieves pop from the back"). A slice backs both ends: the owner treats
// the tail as the front (O(1) push/pop), thieves take from the head.
type deque struct {
	mu    sync.Mutex
	items []pipeline.TaskID
}

func newDeque() *deque { return &deque{} }

func (d *deque) pushOwner(id pipeline.TaskID) {
	d.mu.Lock()
	d.items = append(d.items, id)
	d.mu.Unlock()
}

func (d *deque) popOwner() (pipeline.TaskID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.items)
	if n == 0 {
		return 0, false
	}
	id := d.items[n-1]
	d.items = d.items[:n-1]
	return id, true
}

func (d *deque) steal() (pipeline.TaskID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) == 0 {
		return 0, false
	}
	id := d.items[0]
	d.items = d.items[1:]
	return id, true
}
