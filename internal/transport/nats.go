package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/dftracer/dftracer-utils/internal/config"
	"github.com/dftracer/dftracer-utils/pkg/log"
)

// natsTransport is the real multi-process Transport, one NATS connection
// per rank, modeled on the teacher's pkg/nats.Client: same connection
// options, same reconnect/error-handler idiom (spec SPEC_FULL.md DOMAIN
// STACK row for nats.go).
type natsTransport struct {
	conn *nats.Conn
	rank int
	size int

	mu      sync.Mutex
	inboxes map[string]chan []byte
	subs    []*nats.Subscription

	bcastMu  sync.Mutex
	bcastSeq int
}

// NewNATS connects rank (of size world ranks total) to the NATS server
// described by cfg, subscribing to every subject this rank might receive
// on (spec §6, "Distributed runtime").
func NewNATS(cfg config.NatsConfig, rank, size int) (Transport, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("transport: nats: address is required")
	}

	var opts []nats.Option
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}
	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			log.Warnf("transport: nats disconnected: %v", err)
		}
	}))
	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		log.Infof("transport: nats reconnected to %s", nc.ConnectedUrl())
	}))
	opts = append(opts, nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
		log.Errorf("transport: nats error: %v", err)
	}))

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("transport: nats connect: %w", err)
	}

	t := &natsTransport{
		conn:    nc,
		rank:    rank,
		size:    size,
		inboxes: make(map[string]chan []byte),
	}

	sub, err := nc.Subscribe(fmt.Sprintf("dftracer.msg.%d.>", rank), func(m *nats.Msg) {
		t.mu.Lock()
		ch, ok := t.inboxes[m.Subject]
		if !ok {
			ch = make(chan []byte, 1)
			t.inboxes[m.Subject] = ch
		}
		t.mu.Unlock()
		ch <- append([]byte(nil), m.Data...)
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("transport: nats subscribe: %w", err)
	}
	t.subs = append(t.subs, sub)

	return t, nil
}

func (t *natsTransport) Rank() int { return t.rank }
func (t *natsTransport) Size() int { return t.size }

func msgSubject(dest, src, tag int) string {
	return fmt.Sprintf("dftracer.msg.%d.%d.%d", dest, src, tag)
}

func (t *natsTransport) Send(ctx context.Context, dest int, tag int, data []byte) error {
	if err := t.conn.Publish(msgSubject(dest, t.rank, tag), data); err != nil {
		return fmt.Errorf("transport: nats send: %w", err)
	}
	return nil
}

func (t *natsTransport) Recv(ctx context.Context, src int, tag int) ([]byte, error) {
	subject := msgSubject(t.rank, src, tag)
	t.mu.Lock()
	ch, ok := t.inboxes[subject]
	if !ok {
		ch = make(chan []byte, 1)
		t.inboxes[subject] = ch
	}
	t.mu.Unlock()

	select {
	case data := <-ch:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Barrier implements a centralized rendezvous at rank 0: every non-zero
// rank publishes an arrival and waits for a release; rank 0 counts
// arrivals and publishes the release once every other rank has checked in.
func (t *natsTransport) Barrier(ctx context.Context) error {
	const tag = -1 // reserved tag, never used by task payloads
	if t.rank == 0 {
		for src := 1; src < t.size; src++ {
			if _, err := t.Recv(ctx, src, tag); err != nil {
				return fmt.Errorf("transport: barrier: %w", err)
			}
		}
		for dest := 1; dest < t.size; dest++ {
			if err := t.Send(ctx, dest, tag, nil); err != nil {
				return fmt.Errorf("transport: barrier: %w", err)
			}
		}
		return nil
	}
	if err := t.Send(ctx, 0, tag, nil); err != nil {
		return fmt.Errorf("transport: barrier: %w", err)
	}
	if _, err := t.Recv(ctx, 0, tag); err != nil {
		return fmt.Errorf("transport: barrier: %w", err)
	}
	return nil
}

func (t *natsTransport) Broadcast(ctx context.Context, root int, data []byte) ([]byte, error) {
	t.bcastMu.Lock()
	seq := t.bcastSeq
	t.bcastSeq++
	t.bcastMu.Unlock()
	tag := -1000 - seq // reserved tag range for broadcasts

	if t.rank == root {
		for dest := 0; dest < t.size; dest++ {
			if dest == root {
				continue
			}
			if err := t.Send(ctx, dest, tag, data); err != nil {
				return nil, fmt.Errorf("transport: broadcast: %w", err)
			}
		}
		return data, nil
	}
	return t.Recv(ctx, root, tag)
}

func (t *natsTransport) Finalize() error {
	for _, s := range t.subs {
		_ = s.Unsubscribe()
	}
	t.conn.Close()
	return nil
}
