package rchannel

import (
	"sync"

	"github.com/lsds/paramserver/srcs/go/msg"
)

// mailbox is an unbounded FIFO of messages with one consumer.
// Watchers are signalled without blocking on every put, a Poller uses them.
type mailbox struct {
	sync.Mutex
	cond     *sync.Cond
	q        []*msg.Message
	closed   bool
	watchers []chan<- struct{}
}

func newMailbox() *mailbox {
	b := &mailbox{}
	b.cond = sync.NewCond(&b.Mutex)
	return b
}

func (b *mailbox) put(m *msg.Message) error {
	b.Lock()
	defer b.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.q = append(b.q, m)
	b.cond.Signal()
	b.notify()
	return nil
}

func (b *mailbox) notify() {
	for _, w := range b.watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}

func (b *mailbox) pop() *msg.Message {
	m := b.q[0]
	b.q[0] = nil
	b.q = b.q[1:]
	return m
}

// get blocks until a message arrives. Messages queued before close are still returned.
func (b *mailbox) get() (*msg.Message, error) {
	b.Lock()
	defer b.Unlock()
	for len(b.q) == 0 && !b.closed {
		b.cond.Wait()
	}
	if len(b.q) == 0 {
		return nil, ErrClosed
	}
	return b.pop(), nil
}

func (b *mailbox) tryGet() (*msg.Message, bool) {
	b.Lock()
	defer b.Unlock()
	if len(b.q) == 0 {
		return nil, false
	}
	return b.pop(), true
}

func (b *mailbox) ready() bool {
	b.Lock()
	defer b.Unlock()
	return len(b.q) > 0 || b.closed
}

func (b *mailbox) len() int {
	b.Lock()
	defer b.Unlock()
	return len(b.q)
}

func (b *mailbox) watch(ch chan<- struct{}) {
	b.Lock()
	defer b.Unlock()
	b.watchers = append(b.watchers, ch)
	if len(b.q) > 0 || b.closed {
		b.notify()
	}
}

func (b *mailbox) close() {
	b.Lock()
	defer b.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.cond.Broadcast()
	b.notify()
}
