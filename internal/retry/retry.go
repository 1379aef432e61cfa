// Package retry provides bounded fixed-backoff retry policies for operations
// that must not be repeated once they succeed.
package retry

import (
	"context"
	"time"

	"github.com/juju/clock"
	jujuretry "github.com/juju/retry"
)

// Policy bounds how often and how fast an operation is retried.
type Policy struct {
	Attempts int
	Delay    time.Duration
	Clock    clock.Clock
}

// Do calls fn until it succeeds, returns an error isFatal accepts, the
// attempts are used up or ctx is done. notify is called after every failed
// attempt and may be nil.
//
// Exhausting the attempts returns an error for which IsExhausted is true;
// LastError recovers the final failure.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error, isFatal func(error) bool, notify func(err error, attempt int)) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay
	if delay <= 0 {
		delay = time.Nanosecond
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	if notify == nil {
		notify = func(error, int) {}
	}

	return jujuretry.Call(jujuretry.CallArgs{
		Func:         func() error { return fn(ctx) },
		IsFatalError: isFatal,
		NotifyFunc:   notify,
		Attempts:     attempts,
		Delay:        delay,
		Clock:        clk,
		Stop:         ctx.Done(),
	})
}

// IsExhausted reports whether err means every attempt failed.
func IsExhausted(err error) bool {
	return jujuretry.IsAttemptsExceeded(err)
}

// IsStopped reports whether the retry loop ended because its context was done.
func IsStopped(err error) bool {
	return jujuretry.IsRetryStopped(err)
}

// LastError returns the final failure wrapped by an exhausted or stopped
// retry, or err itself.
func LastError(err error) error {
	if IsExhausted(err) || IsStopped(err) {
		return jujuretry.LastError(err)
	}
	return err
}
