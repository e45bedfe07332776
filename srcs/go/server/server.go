package server

import (
	"context"

	"github.com/lsds/paramserver/srcs/go/config"
	"github.com/lsds/paramserver/srcs/go/log"
	"github.com/lsds/paramserver/srcs/go/monitor"
	"github.com/lsds/paramserver/srcs/go/msg"
	"github.com/lsds/paramserver/srcs/go/rchannel"
	"github.com/pkg/errors"
)

type Options struct {
	// Groups is the number of server groups.
	Groups int
	// SyncFrequency is the number of updates between two syncs with the
	// server of the same id in the next group, 0 disables them.
	SyncFrequency int
	// Clients is the number of Stop messages that end the loop.
	Clients int
}

// Server runs the request loop of one PMServer on its socket.
type Server struct {
	pm      *PMServer
	sock    rchannel.Socket
	opts    Options
	monitor monitor.Monitor

	nUpdates int
	nStops   int

	requeued []*msg.Message
}

func New(pm *PMServer, sock rchannel.Socket, opts Options, m monitor.Monitor) *Server {
	if m == nil {
		m = monitor.Noop()
	}
	return &Server{
		pm:      pm,
		sock:    sock,
		opts:    opts,
		monitor: m,
	}
}

// Run serves requests until a Stop message arrives, the socket is closed or
// ctx is done. It fails on the first fatal error.
func (s *Server) Run(ctx context.Context) error {
	self := s.pm.Addr()
	if err := s.sock.Send(msg.New(self, msg.Stub, msg.Connect, 0)); err != nil {
		return errors.Wrapf(err, "server %s", self)
	}
	poller := rchannel.NewPoller(s.sock)
	for ctx.Err() == nil {
		if poller.Poll(config.PollTimeout) != nil {
			m, err := s.sock.Receive()
			if err != nil {
				if errors.Is(err, rchannel.ErrClosed) {
					return nil
				}
				return err
			}
			if m.Type == msg.Stop {
				if s.nStops++; s.nStops >= s.opts.Clients {
					log.Debugf("server %s stopped with %d requests in queue", self, len(s.requeued))
					return nil
				}
				continue
			}
			if err := s.serve(m); err != nil {
				return errors.Wrapf(err, "server %s", self)
			}
		}
		if err := s.retry(); err != nil {
			return errors.Wrapf(err, "server %s", self)
		}
	}
	return nil
}

// Requeued returns the number of requests waiting for their param.
func (s *Server) Requeued() int {
	return len(s.requeued)
}

func (s *Server) retry() error {
	q := s.requeued
	s.requeued = nil
	for _, m := range q {
		if err := s.serve(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) serve(m *msg.Message) error {
	var (
		reply   *msg.Message
		requeue bool
		err     error
	)
	switch m.Type {
	case msg.Put:
		err = s.pm.HandlePut(m)
	case msg.Get:
		reply, requeue, err = s.pm.HandleGet(m)
	case msg.Update:
		reply, requeue, err = s.pm.HandleUpdate(m)
		if reply != nil {
			defer s.updated()
		}
	case msg.Sync:
		reply, requeue, err = s.pm.HandleSync(m)
	case msg.SyncRequest:
		reply, requeue, err = s.pm.HandleSyncRequest(m)
	case msg.SyncResponse:
		err = s.pm.HandleSyncResponse(m)
		if errors.Is(err, ErrUnknownParam) {
			log.Errorf("server %s dropped %s: %v", s.pm.Addr(), m, err)
			s.monitor.Count(monitor.DroppedSync, 1)
			return nil
		}
	default:
		log.Errorf("server %s: unexpected %s", s.pm.Addr(), m)
		return nil
	}
	if err != nil {
		return err
	}
	if requeue {
		m.Rewind()
		s.requeued = append(s.requeued, m)
		s.monitor.Count(monitor.Requeues, 1)
		return nil
	}
	if reply != nil {
		return s.sock.Send(reply)
	}
	return nil
}

func (s *Server) updated() {
	s.nUpdates++
	if s.opts.SyncFrequency <= 0 || s.opts.Groups <= 1 || s.nUpdates%s.opts.SyncFrequency != 0 {
		return
	}
	self := s.pm.Addr()
	to := msg.Addr{Group: (self.Group + 1) % s.opts.Groups, ID: self.ID, Role: msg.RoleServer}
	for _, id := range s.pm.IDs() {
		m, err := s.pm.GenSyncRequest(id, to)
		if err != nil {
			log.Errorf("server %s: sync of %d failed: %v", self, id, err)
			continue
		}
		if m == nil {
			continue
		}
		if err := s.sock.Send(m); err != nil {
			log.Errorf("server %s: send %s failed: %v", self, m, err)
		}
	}
}
