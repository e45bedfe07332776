package client

import (
	"context"
	"sync"
	"time"

	"github.com/lsds/paramserver/srcs/go/msg"
	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/lsds/paramserver/srcs/go/rchannel"
	"github.com/lsds/paramserver/srcs/go/rchannel/connection"
	"github.com/lsds/paramserver/srcs/go/utils"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

var errUnknownProcs = errors.New("unknown procs id")

// Client forwards messages to remote processes through dealers created on first use.
type Client struct {
	ctx   *rchannel.Context
	peers plan.PeerList

	sync.Mutex
	dealers map[int]*rchannel.Dealer
}

func New(ctx *rchannel.Context, peers plan.PeerList) *Client {
	return &Client{
		ctx:     ctx,
		peers:   peers,
		dealers: make(map[int]*rchannel.Dealer),
	}
}

func (c *Client) get(pid int) (*rchannel.Dealer, error) {
	c.Lock()
	defer c.Unlock()
	if d, ok := c.dealers[pid]; ok {
		return d, nil
	}
	if pid < 0 || pid >= len(c.peers) {
		return nil, errors.Wrapf(errUnknownProcs, "%d", pid)
	}
	d := c.ctx.NewDealer(pid)
	if err := d.Connect(c.peers[pid].String()); err != nil {
		return nil, err
	}
	c.dealers[pid] = d
	return d, nil
}

// Send forwards m to the router of process pid.
func (c *Client) Send(pid int, m *msg.Message) error {
	d, err := c.get(pid)
	if err != nil {
		return err
	}
	return d.Send(m)
}

// Remotes lists the procs ids a dealer has been created for.
func (c *Client) Remotes() []int {
	c.Lock()
	defer c.Unlock()
	pids := make([]int, 0, len(c.dealers))
	for pid := range c.dealers {
		pids = append(pids, pid)
	}
	slices.Sort(pids)
	return pids
}

func (c *Client) Close() error {
	c.Lock()
	defer c.Unlock()
	var errs []error
	for pid, d := range c.dealers {
		errs = append(errs, d.Close())
		delete(c.dealers, pid)
	}
	return utils.MergeErrors(errs, "close dealers")
}

// Ping measures one round trip to the router of target.
func (c *Client) Ping(target plan.PeerID) (time.Duration, error) {
	t0 := time.Now()
	conn, err := connection.Open(target, c.ctx.Self(), connection.ConnPing, 0)
	if err != nil {
		return time.Since(t0), err
	}
	defer conn.Close()
	if err := conn.Send(msg.New(msg.Stub, msg.Stub, msg.Connect, 0)); err != nil {
		return time.Since(t0), err
	}
	if _, err := conn.Receive(); err != nil {
		return time.Since(t0), err
	}
	return time.Since(t0), nil
}

// Wait waits a peer until it's accessible
func (c *Client) Wait(ctx context.Context, target plan.PeerID) (int, bool) {
	const period = 200 * time.Millisecond
	var last time.Time
	ping := func() bool {
		if d := time.Since(last); d < period {
			time.Sleep(period - d)
		}
		_, err := c.Ping(target)
		last = time.Now()
		return err == nil
	}
	return utils.Poll(ctx, ping)
}

// WaitAll waits for every peer of the cluster.
func (c *Client) WaitAll(ctx context.Context) error {
	var errs []error
	for _, p := range c.peers {
		if n, ok := c.Wait(ctx, p); !ok {
			errs = append(errs, errors.Errorf("%s not reachable after %d pings", p, n))
		}
	}
	return utils.MergeErrors(errs, "wait peers")
}
