package rchannel

import (
	"strings"
	"sync"

	"github.com/lsds/paramserver/srcs/go/monitor"
	"github.com/lsds/paramserver/srcs/go/msg"
	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/pkg/errors"
)

var (
	ErrClosed      = errors.New("socket closed")
	ErrBufferFull  = errors.New("router buffer full")
	errNotBound    = errors.New("no router bound to endpoint")
	errInUse       = errors.New("endpoint in use")
	errNotConnect  = errors.New("dealer not connected")
	errConnected   = errors.New("dealer already connected")
	errBadEndpoint = errors.New("invalid endpoint")
)

// Socket is an endpoint that can be registered to a Poller.
type Socket interface {
	Send(m *msg.Message) error
	Receive() (*msg.Message, error)
	Close() error

	inbox() *mailbox
}

// Context owns the inproc endpoint table of one process and the identity
// it presents to remote routers.
type Context struct {
	sync.Mutex
	self    plan.PeerID
	token   uint32
	monitor monitor.Monitor
	routers map[string]*Router
}

func NewContext(self plan.PeerID, token uint32, m monitor.Monitor) *Context {
	if m == nil {
		m = monitor.Noop()
	}
	return &Context{
		self:    self,
		token:   token,
		monitor: m,
		routers: make(map[string]*Router),
	}
}

func (c *Context) Self() plan.PeerID {
	return c.self
}

// NewRouter creates a router buffering at most capacity messages for unknown destinations.
func (c *Context) NewRouter(capacity int) *Router {
	return newRouter(c, capacity)
}

// NewDealer creates an unconnected dealer, id is only used in logs.
func (c *Context) NewDealer(id int) *Dealer {
	return newDealer(c, id)
}

func (c *Context) register(endpoint string, r *Router) error {
	c.Lock()
	defer c.Unlock()
	if _, ok := c.routers[endpoint]; ok {
		return errors.Wrapf(errInUse, "%s", endpoint)
	}
	c.routers[endpoint] = r
	return nil
}

func (c *Context) unregister(endpoint string, r *Router) {
	c.Lock()
	defer c.Unlock()
	if c.routers[endpoint] == r {
		delete(c.routers, endpoint)
	}
}

func (c *Context) lookup(endpoint string) (*Router, error) {
	c.Lock()
	defer c.Unlock()
	r, ok := c.routers[endpoint]
	if !ok {
		return nil, errors.Wrapf(errNotBound, "%s", endpoint)
	}
	return r, nil
}

func isInproc(endpoint string) bool {
	return strings.HasPrefix(endpoint, "inproc://")
}
