package dispatch

import (
	"context"

	"github.com/lsds/paramserver/srcs/go/config"
	"github.com/lsds/paramserver/srcs/go/log"
	"github.com/lsds/paramserver/srcs/go/monitor"
	"github.com/lsds/paramserver/srcs/go/msg"
	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/lsds/paramserver/srcs/go/rchannel"
	"github.com/pkg/errors"
)

// Forwarder sends messages to the router of another process.
type Forwarder interface {
	Send(pid int, m *msg.Message) error
}

// Dispatcher moves every message received by the router of a process to
// its destination, in this process or another one.
type Dispatcher struct {
	procsID int
	cluster *plan.Cluster
	router  *rchannel.Router
	remote  Forwarder
	monitor monitor.Monitor
}

func New(procsID int, c *plan.Cluster, r *rchannel.Router, remote Forwarder, m monitor.Monitor) *Dispatcher {
	if m == nil {
		m = monitor.Noop()
	}
	return &Dispatcher{
		procsID: procsID,
		cluster: c,
		router:  r,
		remote:  remote,
		monitor: m,
	}
}

// Run dispatches until a Stop message for the stub arrives, the router is
// closed or ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	poller := rchannel.NewPoller(d.router)
	for ctx.Err() == nil {
		if poller.Poll(config.PollTimeout) == nil {
			continue
		}
		m, err := d.router.Receive()
		if err != nil {
			if errors.Is(err, rchannel.ErrClosed) {
				return nil
			}
			return err
		}
		stop, err := d.Dispatch(m)
		if err != nil {
			return err
		}
		if stop {
			log.Debugf("dispatcher of procs %d stopped", d.procsID)
			return nil
		}
	}
	return nil
}

// Dispatch routes one message. It reports true for a Stop sent to the stub.
func (d *Dispatcher) Dispatch(m *msg.Message) (bool, error) {
	if m.Dst.Role == msg.RoleStub {
		switch m.Type {
		case msg.Connect:
			log.Debugf("procs %d: %s connected", d.procsID, m.Src)
		case msg.Stop:
			return true, nil
		default:
			log.Errorf("procs %d: unexpected control message %s", d.procsID, m)
		}
		return false, nil
	}
	pid, err := d.cluster.ProcsIDOf(m.Dst)
	if err != nil {
		return false, errors.Wrapf(err, "dispatch %s", m)
	}
	if pid == d.procsID {
		if err := d.router.Send(m); err != nil {
			if errors.Is(err, rchannel.ErrClosed) {
				log.Warnf("procs %d dropped %s: %s has stopped", d.procsID, m, m.Dst)
				d.monitor.Count(monitor.DispatchDropped, 1)
				return false, nil
			}
			return false, errors.Wrapf(err, "procs %d", d.procsID)
		}
		return false, nil
	}
	if err := d.remote.Send(pid, m); err != nil {
		log.Errorf("procs %d: forwarding %s to procs %d failed: %v", d.procsID, m, pid, err)
		return false, nil
	}
	d.monitor.Count(monitor.DispatchForwarded, 1)
	return false, nil
}
