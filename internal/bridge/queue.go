package bridge

import (
	"context"
	"sync"
)

// Dispatcher serializes message handling per chat: events for one chat
// are processed strictly in arrival order, while different chats run
// concurrently. Heavy work (fetch, DB, sends) therefore never blocks the
// inbound pump, and per-chat conversation state is only ever touched by
// that chat's own worker.
type Dispatcher struct {
	handle func(ctx context.Context, msg InboundMessage)

	mu     sync.Mutex
	queues map[int64]*chatQueue
	wg     sync.WaitGroup
}

// chatQueue is the pending work for one chat. A worker goroutine exists
// only while pending is non-empty.
type chatQueue struct {
	pending []InboundMessage
	running bool
}

// NewDispatcher creates a Dispatcher that invokes handle for every
// message.
func NewDispatcher(handle func(ctx context.Context, msg InboundMessage)) *Dispatcher {
	return &Dispatcher{
		handle: handle,
		queues: make(map[int64]*chatQueue),
	}
}

// Dispatch enqueues a message on its chat's queue, starting a worker for
// the chat if none is running. Never blocks.
func (d *Dispatcher) Dispatch(ctx context.Context, msg InboundMessage) {
	d.mu.Lock()
	q, ok := d.queues[msg.ChatID]
	if !ok {
		q = &chatQueue{}
		d.queues[msg.ChatID] = q
	}
	q.pending = append(q.pending, msg)
	if !q.running {
		q.running = true
		d.wg.Add(1)
		go d.run(ctx, msg.ChatID, q)
	}
	d.mu.Unlock()
}

// run drains one chat's queue and exits when it is empty. The queue map
// entry is removed on exit so idle chats cost nothing.
func (d *Dispatcher) run(ctx context.Context, chatID int64, q *chatQueue) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			delete(d.queues, chatID)
			d.mu.Unlock()
			return
		}
		msg := q.pending[0]
		q.pending = q.pending[1:]
		d.mu.Unlock()

		d.handle(ctx, msg)
	}
}

// Wait blocks until all in-flight workers have drained. Used on
// shutdown after the inbound channel is closed.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
