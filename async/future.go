// Package async provides single-assignment futures used by the non-blocking request
// pipeline.
//
// A [Future] completes exactly once. The completion callback, when set, runs once on the
// goroutine that completed the future, after the result became visible to [Future.Wait].
package async

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrAlreadyCompleted is returned by Complete when the future already holds a result.
var ErrAlreadyCompleted = errors.New("async operation already completed")

// Callback observes a completed future.
type Callback[T any] func(*Future[T])

// Sink receives faults raised inside asynchronous continuations.
type Sink func(error)

// PanicError wraps a value recovered from a panicking pipeline step.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("async: panic in pipeline step: %v", e.Value)
}

// Future holds the eventual outcome of an asynchronous operation.
type Future[T any] struct {
	done      chan struct{}
	completed atomic.Bool
	value     T
	err       error
	cb        Callback[T]
}

// New returns a pending future. cb may be nil.
func New[T any](cb Callback[T]) *Future[T] {
	return &Future[T]{
		done: make(chan struct{}),
		cb:   cb,
	}
}

// Completed returns a future that already holds v and err. cb runs before Completed
// returns.
func Completed[T any](v T, err error, cb Callback[T]) *Future[T] {
	f := New(cb)
	f.mustComplete(v, err)
	return f
}

// Complete stores the outcome and fires the callback. A second call returns
// ErrAlreadyCompleted and leaves the first outcome untouched.
func (f *Future[T]) Complete(v T, err error) error {
	if !f.completed.CompareAndSwap(false, true) {
		return ErrAlreadyCompleted
	}
	f.value = v
	f.err = err
	close(f.done)

	if f.cb != nil {
		f.cb(f)
	}
	return nil
}

// mustComplete treats a double completion as a programming fault.
func (f *Future[T]) mustComplete(v T, err error) {
	if cerr := f.Complete(v, err); cerr != nil {
		panic(cerr)
	}
}

// Done is closed once the future completes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsCompleted reports whether the outcome is available.
func (f *Future[T]) IsCompleted() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future completes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result blocks until the future completes.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.value, f.err
}

// Go runs fn on a new goroutine and completes the returned future with its outcome.
// A panic inside fn is reported to sink and completes the future with a *PanicError.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error), cb Callback[T], sink Sink) *Future[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	f := New(cb)
	go func() {
		v, err := run(ctx, fn, sink)
		f.mustComplete(v, err)
	}()
	return f
}

// Then chains fn onto src. Failures of src propagate without calling fn. Errors and
// panics raised by fn are reported to sink before the returned future completes.
func Then[T, U any](ctx context.Context, src *Future[T], fn func(context.Context, T) (U, error), cb Callback[U], sink Sink) *Future[U] {
	if ctx == nil {
		ctx = context.Background()
	}
	f := New(cb)
	go func() {
		in, err := src.Result()
		if err != nil {
			var zero U
			f.mustComplete(zero, err)
			return
		}
		v, err := run(ctx, func(ctx context.Context) (U, error) { return fn(ctx, in) }, sink)
		if err != nil && sink != nil {
			var pe *PanicError
			if !errors.As(err, &pe) {
				sink(err)
			}
		}
		f.mustComplete(v, err)
	}()
	return f
}

// Finally chains fn onto src whatever its outcome: fn receives the value and error of
// src. Errors and panics raised by fn are reported to sink as with Then.
func Finally[T, U any](ctx context.Context, src *Future[T], fn func(context.Context, T, error) (U, error), cb Callback[U], sink Sink) *Future[U] {
	if ctx == nil {
		ctx = context.Background()
	}
	f := New(cb)
	go func() {
		in, srcErr := src.Result()
		v, err := run(ctx, func(ctx context.Context) (U, error) { return fn(ctx, in, srcErr) }, sink)
		if err != nil && sink != nil {
			var pe *PanicError
			if !errors.As(err, &pe) {
				sink(err)
			}
		}
		f.mustComplete(v, err)
	}()
	return f
}

func run[T any](ctx context.Context, fn func(context.Context) (T, error), sink Sink) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v = zero
			err = &PanicError{Value: r}
			if sink != nil {
				sink(err)
			}
		}
	}()
	return fn(ctx)
}
