package goGraph

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples request goroutines from the sink. A nil dispatcher
// accepts and drops everything.
type auditDispatcher struct {
	dropIfFull bool
	sink       AuditSink
	ch         chan AuditEvent
	done       chan struct{}
	wg         sync.WaitGroup
	dropped    atomic.Uint64
	closed     atomic.Bool
	closeOnce  sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		dropIfFull: cfg.DropIfFull,
		sink:       sink,
		ch:         make(chan AuditEvent, cfg.BufferSize),
		done:       make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *auditDispatcher) run() {
	defer d.wg.Done()

	ctx := context.Background()
	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(ctx, event)
		case <-d.done:
			d.drain(ctx)
			return
		}
	}
}

// drain flushes what was queued before Close.
func (d *auditDispatcher) drain(ctx context.Context) {
	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(ctx, event)
		default:
			return
		}
	}
}

func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.done:
	}
}

// Close stops accepting events and waits for the queue to drain.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
