package rchannel

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/lsds/paramserver/srcs/go/config"
	"github.com/lsds/paramserver/srcs/go/log"
	"github.com/lsds/paramserver/srcs/go/monitor"
	"github.com/lsds/paramserver/srcs/go/msg"
	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/lsds/paramserver/srcs/go/rchannel/connection"
	"github.com/lsds/paramserver/srcs/go/rchannel/server"
	"github.com/pkg/errors"
)

// route delivers messages back to one connected peer.
type route interface {
	deliver(m *msg.Message) error
	String() string
}

type inprocRoute struct {
	d *Dealer
}

func (r *inprocRoute) deliver(m *msg.Message) error {
	return r.d.box.put(m)
}

func (r *inprocRoute) String() string {
	return fmt.Sprintf("inproc dealer %d", r.d.id)
}

// connRoute writes to a remote dealer from its own goroutine.
type connRoute struct {
	conn    connection.Connection
	out     *mailbox
	monitor monitor.Monitor
	done    chan struct{}
}

func newConnRoute(conn connection.Connection, m monitor.Monitor) *connRoute {
	r := &connRoute{
		conn:    conn,
		out:     newMailbox(),
		monitor: m,
		done:    make(chan struct{}),
	}
	go r.writeLoop()
	return r
}

func (r *connRoute) writeLoop() {
	defer close(r.done)
	for {
		m, err := r.out.get()
		if err != nil {
			return
		}
		n := m.Size()
		if err := r.conn.Send(m); err != nil {
			log.Errorf("send %s to %s failed: %v", m, r.conn.Src(), err)
			continue
		}
		r.monitor.Egress(int64(n), plan.NetAddr(r.conn.Src()))
	}
}

func (r *connRoute) deliver(m *msg.Message) error {
	return r.out.put(m)
}

func (r *connRoute) close() {
	r.out.close()
	<-r.done
}

func (r *connRoute) String() string {
	return fmt.Sprintf("connection from %s", r.conn.Src())
}

// Router receives from many dealers and sends back to any of them by address.
// An address becomes known when the first message from it arrives, until then
// messages to it are buffered.
type Router struct {
	ctx      *Context
	capacity int
	box      *mailbox

	mu        sync.Mutex
	routes    map[msg.Addr]route
	pending   map[msg.Addr][]*msg.Message
	nPending  int
	endpoints []string
	srv       *server.Server
	conns     map[*connRoute]struct{}
}

func newRouter(ctx *Context, capacity int) *Router {
	return &Router{
		ctx:      ctx,
		capacity: capacity,
		box:      newMailbox(),
		routes:   make(map[msg.Addr]route),
		pending:  make(map[msg.Addr][]*msg.Message),
		conns:    make(map[*connRoute]struct{}),
	}
}

// Bind registers the router at the inproc endpoint of its context and, for a
// non-empty host:port endpoint, also accepts remote dealers there.
func (r *Router) Bind(endpoint string) error {
	if err := r.ctx.register(config.InprocEndpoint, r); err != nil {
		return err
	}
	r.mu.Lock()
	r.endpoints = append(r.endpoints, config.InprocEndpoint)
	r.mu.Unlock()
	if len(endpoint) == 0 || endpoint == config.InprocEndpoint {
		return nil
	}
	if isInproc(endpoint) {
		if err := r.ctx.register(endpoint, r); err != nil {
			return err
		}
		r.mu.Lock()
		r.endpoints = append(r.endpoints, endpoint)
		r.mu.Unlock()
		return nil
	}
	peer, err := plan.ParsePeerID(endpoint)
	if err != nil {
		return errors.Wrapf(errBadEndpoint, "%s: %v", endpoint, err)
	}
	srv := server.New(*peer, r)
	srv.SetToken(r.ctx.token)
	if err := srv.Start(); err != nil {
		return errors.Wrapf(err, "bind %s", endpoint)
	}
	r.mu.Lock()
	r.srv = srv
	r.mu.Unlock()
	log.Debugf("router bound to %s", srv.Self())
	return nil
}

// Addr returns the address remote dealers can connect to.
func (r *Router) Addr() (plan.PeerID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.srv == nil {
		return plan.PeerID{}, false
	}
	return r.srv.Self(), true
}

// Handle serves one accepted connection.
func (r *Router) Handle(conn connection.Connection) (int, error) {
	switch conn.Type() {
	case connection.ConnPing:
		return connection.Echo(conn)
	case connection.ConnMessage:
		cr := newConnRoute(conn, r.ctx.monitor)
		r.mu.Lock()
		r.conns[cr] = struct{}{}
		r.mu.Unlock()
		defer func() {
			r.forget(cr)
			cr.close()
		}()
		return connection.Stream(conn, func(m *msg.Message, c connection.Connection) {
			r.ctx.monitor.Ingress(int64(m.Size()), plan.NetAddr(c.Src()))
			if err := r.receive(cr, m); err != nil {
				log.Debugf("router dropped %s: %v", m, err)
			}
		})
	default:
		return 0, connection.ErrInvalidConnectionType
	}
}

func (r *Router) forget(cr *connRoute) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, cr)
	for a, rt := range r.routes {
		if rt == route(cr) {
			delete(r.routes, a)
		}
	}
}

// receive learns the route back to m.Src, flushes what was buffered for it,
// then queues m for Receive.
func (r *Router) receive(rt route, m *msg.Message) error {
	r.mu.Lock()
	if old, ok := r.routes[m.Src]; !ok || old != rt {
		log.Debugf("router learnt %s via %s", m.Src, rt)
		r.routes[m.Src] = rt
	}
	if q := r.pending[m.Src]; len(q) > 0 {
		log.Debugf("flushing %d buffered messages to %s", len(q), m.Src)
		for _, p := range q {
			if err := rt.deliver(p); err != nil {
				log.Errorf("flush %s failed: %v", p, err)
			}
		}
		r.nPending -= len(q)
		delete(r.pending, m.Src)
	}
	r.mu.Unlock()
	return r.box.put(m)
}

// Send delivers m to the dealer that announced m.Dst, or buffers it.
func (r *Router) Send(m *msg.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rt, ok := r.routes[m.Dst]; ok {
		return rt.deliver(m)
	}
	if r.nPending >= r.capacity {
		return errors.Wrapf(ErrBufferFull, "%d messages (%s) buffered, can't buffer %s", r.nPending, humanize.Bytes(uint64(r.pendingBytes())), m)
	}
	r.pending[m.Dst] = append(r.pending[m.Dst], m)
	r.nPending++
	r.ctx.monitor.Count(monitor.RouterBuffered, 1)
	log.Debugf("buffered %s until %s connects", m, m.Dst)
	return nil
}

func (r *Router) pendingBytes() int {
	var n int
	for _, q := range r.pending {
		for _, m := range q {
			n += m.Size()
		}
	}
	return n
}

// Pending returns the number of buffered messages.
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nPending
}

func (r *Router) Receive() (*msg.Message, error) {
	return r.box.get()
}

func (r *Router) Close() error {
	r.mu.Lock()
	srv := r.srv
	endpoints := r.endpoints
	var conns []*connRoute
	for cr := range r.conns {
		conns = append(conns, cr)
	}
	r.mu.Unlock()
	for _, e := range endpoints {
		r.ctx.unregister(e, r)
	}
	if srv != nil {
		srv.Close()
	}
	for _, cr := range conns {
		cr.conn.Close()
	}
	r.box.close()
	if n := r.Pending(); n > 0 {
		log.Warnf("router closed with %d undelivered messages", n)
	}
	return nil
}

func (r *Router) inbox() *mailbox {
	return r.box
}
