package transport

import (
	"context"
	"fmt"
	"sync"
)

// Local is an in-process Transport backed by Go channels: every rank in
// the group shares one *localGroup, so NewLocal needs no network. Used for
// tests (spec §8 target 8: sequential/thread/distributed executors must
// agree) and for running the distributed executor's logic within a single
// binary.
type localGroup struct {
	mu        sync.Mutex
	size      int
	inboxes   map[[2]int]chan []byte // key: (dest, generic sequence key for src+tag encoded by caller)
	barrierMu sync.Mutex
	barrierCh []chan struct{}
	barrierN  int
	bcastMu   sync.Mutex
	bcastCh   map[int]chan []byte
}

// NewLocal builds size independent Transport handles sharing one in-memory
// group, ranks 0..size-1.
func NewLocal(size int) []Transport {
	g := &localGroup{
		size:    size,
		inboxes: make(map[[2]int]chan []byte),
		bcastCh: make(map[int]chan []byte),
	}
	ts := make([]Transport, size)
	for r := 0; r < size; r++ {
		ts[r] = &localTransport{rank: r, g: g}
	}
	return ts
}

type localTransport struct {
	rank     int
	g        *localGroup
	bcastSeq int // number of Broadcast calls this rank has made
}

func (t *localTransport) Rank() int { return t.rank }
func (t *localTransport) Size() int { return t.g.size }

func inboxKey(dest, tagHash int) [2]int { return [2]int{dest, tagHash} }

// tagKey folds (src, tag) into one int so one map can serve every (dest,
// src, tag) triple without a 3-tuple key type; collisions are avoided by
// keeping tag and src in disjoint bit ranges (tags and ranks are both
// small, non-negative, in this package's use).
func tagKey(src, tag int) int { return src<<20 ^ tag }

func (t *localTransport) mailbox(dest, src, tag int) chan []byte {
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	k := inboxKey(dest, tagKey(src, tag))
	ch, ok := t.g.inboxes[k]
	if !ok {
		ch = make(chan []byte, 1)
		t.g.inboxes[k] = ch
	}
	return ch
}

func (t *localTransport) Send(ctx context.Context, dest int, tag int, data []byte) error {
	if dest < 0 || dest >= t.g.size {
		return fmt.Errorf("transport: send: destination rank %d out of range", dest)
	}
	cp := append([]byte(nil), data...)
	ch := t.mailbox(dest, t.rank, tag)
	select {
	case ch <- cp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *localTransport) Recv(ctx context.Context, src int, tag int) ([]byte, error) {
	ch := t.mailbox(t.rank, src, tag)
	select {
	case data := <-ch:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *localTransport) Barrier(ctx context.Context) error {
	g := t.g
	g.barrierMu.Lock()
	if g.barrierCh == nil {
		g.barrierCh = make([]chan struct{}, g.size)
		for i := range g.barrierCh {
			g.barrierCh[i] = make(chan struct{})
		}
	}
	g.barrierN++
	mine := g.barrierN
	chans := g.barrierCh
	if mine == g.size {
		g.barrierCh = nil
		g.barrierN = 0
		for _, c := range chans {
			close(c)
		}
		g.barrierMu.Unlock()
		return nil
	}
	g.barrierMu.Unlock()

	select {
	case <-chans[t.rank]:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *localTransport) Broadcast(ctx context.Context, root int, data []byte) ([]byte, error) {
	g := t.g
	// Each rank counts its own calls, so the k-th Broadcast on every rank
	// meets on the same channel however late a rank arrives.
	seq := t.bcastSeq
	t.bcastSeq++
	g.bcastMu.Lock()
	ch, ok := g.bcastCh[seq]
	if !ok {
		ch = make(chan []byte, g.size)
		g.bcastCh[seq] = ch
	}
	g.bcastMu.Unlock()

	if t.rank == root {
		cp := append([]byte(nil), data...)
		for i := 0; i < g.size-1; i++ {
			ch <- cp
		}
		return cp, nil
	}

	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *localTransport) Finalize() error { return nil }
