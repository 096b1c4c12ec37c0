package redisclient

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/newrelic/go-agent/v3/newrelic"
)

type segmentKey struct{}

// Instrument reports Redis commands as New Relic datastore segments of the
// transaction carried by the command's context
func (c *Client) Instrument(app *newrelic.Application) {
	if app == nil {
		return
	}
	c.rdb.AddHook(nrRedisHook{})
}

// nrRedisHook implements redis.Hook for New Relic instrumentation
type nrRedisHook struct{}

var _ redis.Hook = nrRedisHook{}

func (nrRedisHook) start(ctx context.Context, operation string) context.Context {
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return ctx
	}
	segment := &newrelic.DatastoreSegment{
		StartTime:  txn.StartSegmentNow(),
		Product:    newrelic.DatastoreRedis,
		Operation:  operation,
		Collection: "redis",
	}
	return context.WithValue(ctx, segmentKey{}, segment)
}

func (nrRedisHook) end(ctx context.Context) {
	if segment, ok := ctx.Value(segmentKey{}).(*newrelic.DatastoreSegment); ok {
		segment.End()
	}
}

func (h nrRedisHook) BeforeProcess(ctx context.Context, cmd redis.Cmder) (context.Context, error) {
	return h.start(ctx, cmd.Name()), nil
}

func (h nrRedisHook) AfterProcess(ctx context.Context, _ redis.Cmder) error {
	h.end(ctx)
	return nil
}

func (h nrRedisHook) BeforeProcessPipeline(ctx context.Context, _ []redis.Cmder) (context.Context, error) {
	return h.start(ctx, "pipeline"), nil
}

func (h nrRedisHook) AfterProcessPipeline(ctx context.Context, _ []redis.Cmder) error {
	h.end(ctx)
	return nil
}
