package rchannel

import (
	"sync"

	"github.com/lsds/paramserver/srcs/go/log"
	"github.com/lsds/paramserver/srcs/go/msg"
	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/lsds/paramserver/srcs/go/rchannel/connection"
	"github.com/pkg/errors"
)

// Dealer is connected to exactly one router, in this process or a remote one.
type Dealer struct {
	ctx *Context
	id  int
	box *mailbox

	mu       sync.Mutex
	endpoint string
	send     func(*msg.Message) error
	conn     connection.Connection
}

func newDealer(ctx *Context, id int) *Dealer {
	return &Dealer{
		ctx: ctx,
		id:  id,
		box: newMailbox(),
	}
}

// Connect attaches to the router bound at endpoint, either an inproc:// name
// or the host:port of a remote process.
func (d *Dealer) Connect(endpoint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.send != nil {
		return errors.Wrapf(errConnected, "dealer %d to %s", d.id, d.endpoint)
	}
	if isInproc(endpoint) {
		r, err := d.ctx.lookup(endpoint)
		if err != nil {
			return err
		}
		rt := &inprocRoute{d: d}
		d.send = func(m *msg.Message) error { return r.receive(rt, m) }
	} else {
		peer, err := plan.ParsePeerID(endpoint)
		if err != nil {
			return errors.Wrapf(errBadEndpoint, "%s: %v", endpoint, err)
		}
		conn, err := connection.Open(*peer, d.ctx.self, connection.ConnMessage, d.ctx.token)
		if err != nil {
			return errors.Wrapf(err, "connect to %s", endpoint)
		}
		d.conn = conn
		go d.recvLoop(conn)
		m := d.ctx.monitor
		d.send = func(x *msg.Message) error {
			n := x.Size()
			if err := conn.Send(x); err != nil {
				return err
			}
			m.Egress(int64(n), plan.NetAddr(*peer))
			return nil
		}
	}
	d.endpoint = endpoint
	return nil
}

func (d *Dealer) recvLoop(conn connection.Connection) {
	n, err := connection.Stream(conn, func(m *msg.Message, c connection.Connection) {
		d.ctx.monitor.Ingress(int64(m.Size()), plan.NetAddr(c.Dest()))
		if err := d.box.put(m); err != nil {
			log.Debugf("dealer %d dropped %s: %v", d.id, m, err)
		}
	})
	if err != nil {
		log.Warnf("dealer %d: stream from %s failed after %d messages: %v", d.id, conn.Dest(), n, err)
	}
	d.box.close()
}

func (d *Dealer) Send(m *msg.Message) error {
	d.mu.Lock()
	send := d.send
	d.mu.Unlock()
	if send == nil {
		return errors.Wrapf(errNotConnect, "dealer %d", d.id)
	}
	return send(m)
}

func (d *Dealer) Receive() (*msg.Message, error) {
	return d.box.get()
}

// TryReceive returns a message only if one is already queued.
func (d *Dealer) TryReceive() (*msg.Message, bool) {
	return d.box.tryGet()
}

func (d *Dealer) Endpoint() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.endpoint
}

func (d *Dealer) Close() error {
	d.box.close()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

func (d *Dealer) inbox() *mailbox {
	return d.box
}
