package codec

import (
	"context"
	"time"

	"amina-zigbee/internal/metrics"
)

// Dispatcher hands a wire operation to the host network stack and waits for
// its acknowledgement.
type Dispatcher interface {
	Dispatch(ctx context.Context, op Operation) error
}

// Set encodes a set request and dispatches it. Invalid requests never reach
// the dispatcher. Dispatcher errors are returned unchanged.
func (c *Codec) Set(ctx context.Context, d Dispatcher, key string, value any) (Operation, error) {
	op, err := c.EncodeSet(key, value)
	if err != nil {
		return Operation{}, err
	}
	return op, c.Dispatch(ctx, d, op)
}

// Get encodes a get request and dispatches it. The value itself arrives later
// as a read response.
func (c *Codec) Get(ctx context.Context, d Dispatcher, key string) (Operation, error) {
	op, err := c.EncodeGet(key)
	if err != nil {
		return Operation{}, err
	}
	return op, c.Dispatch(ctx, d, op)
}

// Dispatch sends one already encoded operation, recording its outcome.
func (c *Codec) Dispatch(ctx context.Context, d Dispatcher, op Operation) error {
	start := time.Now()
	err := d.Dispatch(ctx, op)
	metrics.DispatchDuration.WithLabelValues(string(op.Kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.OperationsDispatched.WithLabelValues(string(op.Kind), "error").Inc()
		c.logger.Warn("dispatch failed", "op", op.String(), "err", err)
		return err
	}
	metrics.OperationsDispatched.WithLabelValues(string(op.Kind), "ok").Inc()
	c.logger.Debug("dispatched", "op", op.String())
	return nil
}
