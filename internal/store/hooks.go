package store

import (
	"context"
	"time"

	"github.com/dftracer/dftracer-utils/pkg/log"
)

// queryTimingHooks satisfies sqlhooks.Hooks, logging every query and its
// elapsed time at debug level.
type queryTimingHooks struct{}

type queryStartKey struct{}

func (h *queryTimingHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("sql query %s %v", query, args)
	return context.WithValue(ctx, queryStartKey{}, time.Now()), nil
}

func (h *queryTimingHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if started, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		log.Debugf("sql query took %s", time.Since(started))
	}
	return ctx, nil
}
