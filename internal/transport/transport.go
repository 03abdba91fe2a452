// Package transport is the blocking message-passing abstraction the
// distributed executor is built on (spec §4.6 "Distributed (multi-process)
// executor", §6 "Distributed runtime"): init/finalize, rank/size, a
// barrier, point-to-point send/recv keyed by (src, tag), and a
// root-broadcast, plus typed serialization for the executor's closed
// payload set.
//
// Two implementations are provided: Local, an in-process fan of channels
// used by tests and single-binary "distributed" runs, and NATS, a real
// multi-process transport modeled on the teacher's pkg/nats client
// (subjects instead of sockets, the same connection-option and
// error-handling idiom).
package transport

import "context"

// Transport is the collective messaging contract the distributed executor
// (pkg/executor) depends on. Every method blocks until its operation
// completes or ctx is done.
type Transport interface {
	Rank() int
	Size() int

	// Barrier blocks until every rank has called Barrier.
	Barrier(ctx context.Context) error

	// Send delivers data to dest, tagged tag. Send does not block waiting
	// for the corresponding Recv (spec: "blocking send/recv"; blocking here
	// means send/recv calls block the caller's goroutine, not that Send
	// waits for delivery confirmation from the application).
	Send(ctx context.Context, dest int, tag int, data []byte) error

	// Recv blocks until a message tagged tag has arrived from src.
	Recv(ctx context.Context, src int, tag int) ([]byte, error)

	// Broadcast distributes data from root to every rank (including root,
	// which gets back exactly what it sent).
	Broadcast(ctx context.Context, root int, data []byte) ([]byte, error)

	Finalize() error
}
