package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/alim08/coingraph/pkg/logger"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

const (
	stateClosed int32 = iota
	stateOpen
	stateHalfOpen
)

// Breaker is a consecutive-failure circuit breaker. After Threshold failures
// in a row it rejects calls until Cooldown has passed, then lets calls
// through again; the next success closes it.
type Breaker struct {
	Name      string
	Threshold int64
	Cooldown  time.Duration

	failureCount int64
	lastFailure  int64 // unix nanos
	state        int32
}

// NewBreaker returns a breaker that opens after 5 failures for 30s.
func NewBreaker(name string) *Breaker {
	return &Breaker{Name: name, Threshold: 5, Cooldown: 30 * time.Second}
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() bool {
	if atomic.LoadInt32(&b.state) != stateOpen {
		return true
	}
	since := time.Since(time.Unix(0, atomic.LoadInt64(&b.lastFailure)))
	if since >= b.Cooldown {
		atomic.CompareAndSwapInt32(&b.state, stateOpen, stateHalfOpen) // open -> half-open
		return true
	}
	return false
}

// Record updates breaker state with the outcome of a call.
func (b *Breaker) Record(err error) {
	if err == nil {
		atomic.StoreInt64(&b.failureCount, 0)
		atomic.StoreInt32(&b.state, stateClosed)
		return
	}
	n := atomic.AddInt64(&b.failureCount, 1)
	atomic.StoreInt64(&b.lastFailure, time.Now().UnixNano())

	if atomic.CompareAndSwapInt32(&b.state, stateHalfOpen, stateOpen) {
		logger.Log.Warn("circuit breaker re-opened", zap.String("operation", b.Name))
		return
	}
	if n >= b.Threshold && atomic.CompareAndSwapInt32(&b.state, stateClosed, stateOpen) {
		logger.Log.Warn("circuit breaker opened", zap.String("operation", b.Name), zap.Int64("failures", n))
	}
}

// Open reports whether the breaker is currently rejecting calls.
func (b *Breaker) Open() bool {
	return atomic.LoadInt32(&b.state) == stateOpen
}

// Retry runs op with bounded exponential backoff, stopping early when ctx is
// done or op returns a backoff.Permanent error. Every attempt goes through
// the breaker.
func Retry(ctx context.Context, b *Breaker, maxRetries uint64, op func(ctx context.Context) error) error {
	attempt := func() error {
		if !b.Allow() {
			return backoff.Permanent(ErrCircuitBreakerOpen)
		}
		err := op(ctx)
		b.Record(unwrapPermanent(err))
		return err
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	return backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
