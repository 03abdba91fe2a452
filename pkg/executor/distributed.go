package executor

import (
	"context"
	"errors"
	"fmt"

	gojson "github.com/goccy/go-json"

	"github.com/dftracer/dftracer-utils/internal/transport"
	"github.com/dftracer/dftracer-utils/pkg/pipeline"
)

// Distributed is the multi-process executor (spec §4.6, "Distributed
// executor"): every rank builds the identical Pipeline (same tasks, same
// edges) and calls Execute with its own Transport; static tasks are
// distributed round-robin by id, and each task's result is broadcast from
// its owning rank to every other rank so later tasks can consume it as a
// parent regardless of which rank produced it.
//
// Cross-rank values are restricted to Transport's closed payload set (see
// internal/transport) — a task whose output cannot be expressed as an int,
// float, string, or a homogeneous vector of one of those fails when run
// under Distributed, even if it would succeed under Sequential or Thread.
// Dynamically emitted tasks (pipeline.Emit) are not redistributed: they run
// on whichever rank emits them and are not visible to other ranks.
type Distributed struct {
	Transport transport.Transport
}

// NewDistributed builds a Distributed executor bound to tr for the calling
// process's rank.
func NewDistributed(tr transport.Transport) *Distributed {
	return &Distributed{Transport: tr}
}

// wireEnvelope carries one task's outcome across ranks: either the task's
// value (already reduced to transport.Value) or the error string it failed
// with. Marshaled directly with goccy/go-json — independent of
// transport.Marshal/Unmarshal, which serve the Value-keyed wire protocol,
// not this executor's own per-task envelope.
type wireEnvelope struct {
	Err  string          `json:"err,omitempty"`
	Null bool            `json:"null,omitempty"`
	Val  transport.Value `json:"val,omitempty"`
}

func (d *Distributed) Execute(ctx context.Context, p *pipeline.Pipeline, initialInput any) (*PipelineOutput, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	order, err := p.TopoOrder()
	if err != nil {
		return nil, err
	}

	tr := d.Transport
	myRank := tr.Rank()
	size := tr.Size()

	runner := newDynamicRunner(p)
	tctx := pipeline.NewTaskContext(runner)

	owner := func(id pipeline.TaskID) int { return int(id) % size }

	// Seed every rank with the same initial input: rank 0 owns it.
	seeded, err := d.broadcastValue(ctx, 0, myRank, initialInput)
	if err != nil {
		return nil, err
	}
	initialInput = seeded

	var firstErr error

	for _, id := range order {
		select {
		case <-ctx.Done():
			if firstErr == nil {
				firstErr = ctx.Err()
			}
		default:
		}

		ownerRank := owner(id)

		var val any
		var taskErr error
		if firstErr != nil {
			taskErr = firstErr
		} else if ownerRank == myRank {
			in, inErr := assembleInput(p, id, initialInput)
			if inErr != nil {
				taskErr = inErr
			} else {
				out, runErr := p.RunTask(tctx, id, in)
				if runErr != nil {
					taskErr = runErr
				} else {
					val = out
					if drainErr := runner.drain(tctx); drainErr != nil {
						taskErr = drainErr
					}
				}
			}
		}

		gathered, bcastErr := d.broadcastOutcome(ctx, ownerRank, myRank, val, taskErr)
		if bcastErr != nil {
			if firstErr == nil {
				firstErr = &transport.TransportError{Op: "broadcast", Cause: bcastErr}
			}
			p.Fulfill(id, nil, firstErr)
			continue
		}

		if gathered.err != nil {
			wrapped := &pipeline.TaskFailureError{TaskID: id, Cause: gathered.err}
			p.Fulfill(id, nil, wrapped)
			if firstErr == nil {
				firstErr = wrapped
			}
			continue
		}
		p.Fulfill(id, gathered.val, nil)
	}

	if berr := tr.Barrier(ctx); berr != nil && firstErr == nil {
		firstErr = &transport.TransportError{Op: "barrier", Cause: berr}
	}

	if firstErr != nil {
		abortPending(p, firstErr)
		return nil, firstErr
	}
	return collectOutput(p), nil
}

// broadcastValue is the degenerate one-value form of broadcastOutcome used
// to seed every rank with the run's initial input.
func (d *Distributed) broadcastValue(ctx context.Context, rootRank, myRank int, v any) (any, error) {
	out, err := d.broadcastOutcome(ctx, rootRank, myRank, v, nil)
	if err != nil {
		return nil, &transport.TransportError{Op: "broadcast-initial-input", Cause: err}
	}
	if out.err != nil {
		return nil, out.err
	}
	return out.val, nil
}

type outcome struct {
	val any
	err error
}

// broadcastOutcome has ownerRank's (val, taskErr) reach every rank: ownerRank
// marshals an envelope and broadcasts it; every other rank (including
// ownerRank itself, which gets its own data echoed back by Transport.
// Broadcast) decodes the same bytes.
func (d *Distributed) broadcastOutcome(ctx context.Context, ownerRank, myRank int, val any, taskErr error) (outcome, error) {
	var payload []byte
	if myRank == ownerRank {
		env := wireEnvelope{}
		if taskErr != nil {
			env.Err = taskErr.Error()
		} else if val == nil {
			env.Null = true
		} else {
			v, convErr := transport.FromAny(val)
			if convErr != nil {
				env.Err = fmt.Sprintf("executor: value not representable on the wire: %v", convErr)
			} else {
				env.Val = v
			}
		}
		data, mErr := gojson.Marshal(env)
		if mErr != nil {
			return outcome{}, mErr
		}
		payload = data
	}

	received, err := d.Transport.Broadcast(ctx, ownerRank, payload)
	if err != nil {
		return outcome{}, err
	}

	if len(received) == 0 {
		return outcome{}, nil
	}
	var env wireEnvelope
	if err := gojson.Unmarshal(received, &env); err != nil {
		return outcome{}, err
	}
	if env.Err != "" {
		return outcome{err: errors.New(env.Err)}, nil
	}
	if env.Null {
		return outcome{}, nil
	}
	return outcome{val: env.Val.ToAny()}, nil
}
