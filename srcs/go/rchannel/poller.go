package rchannel

import (
	"time"
)

// Poller waits on several sockets at once.
type Poller struct {
	socks []Socket
	wake  chan struct{}
	next  int
}

func NewPoller(socks ...Socket) *Poller {
	p := &Poller{
		wake: make(chan struct{}, 1),
	}
	for _, s := range socks {
		p.Add(s)
	}
	return p
}

func (p *Poller) Add(s Socket) {
	p.socks = append(p.socks, s)
	s.inbox().watch(p.wake)
}

// Poll returns a socket with a message to receive, or nil if none became
// ready within timeout. Closed sockets are reported as ready.
func (p *Poller) Poll(timeout time.Duration) Socket {
	if s := p.ready(); s != nil {
		return s
	}
	tm := time.NewTimer(timeout)
	defer tm.Stop()
	for {
		select {
		case <-p.wake:
			if s := p.ready(); s != nil {
				return s
			}
		case <-tm.C:
			return p.ready()
		}
	}
}

// ready scans from the socket after the last one returned so that a busy
// socket can't starve the others.
func (p *Poller) ready() Socket {
	n := len(p.socks)
	for i := 0; i < n; i++ {
		j := (p.next + i) % n
		if p.socks[j].inbox().ready() {
			p.next = (j + 1) % n
			return p.socks[j]
		}
	}
	return nil
}
