package server

import (
	"github.com/lsds/paramserver/srcs/go/log"
	"github.com/lsds/paramserver/srcs/go/msg"
	"github.com/lsds/paramserver/srcs/go/param"
	"github.com/lsds/paramserver/srcs/go/syncer"
	"github.com/lsds/paramserver/srcs/go/updater"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

var (
	ErrUnknownParam = errors.New("unknown param")
	errSizeMismatch = errors.New("size mismatch")
)

// PMServer owns the shard of one server. It is not safe for concurrent use,
// the server loop is its only caller.
type PMServer struct {
	addr     msg.Addr
	shard    map[int]*param.Param
	updater  updater.Updater
	strategy syncer.Strategy
	nSync    int
}

func NewPMServer(addr msg.Addr, u updater.Updater, s syncer.Strategy) *PMServer {
	return &PMServer{
		addr:     addr,
		shard:    make(map[int]*param.Param),
		updater:  u,
		strategy: s,
	}
}

func (s *PMServer) Addr() msg.Addr {
	return s.addr
}

func (s *PMServer) Lookup(id int) (*param.Param, bool) {
	p, ok := s.shard[id]
	return p, ok
}

// IDs returns the owned ids in increasing order.
func (s *PMServer) IDs() []int {
	ids := make([]int, 0, len(s.shard))
	for id := range s.shard {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// SyncCount is the number of sync requests served for other servers.
func (s *PMServer) SyncCount() int {
	return s.nSync
}

// HandlePut registers the content of m.Target. A put for an id already held
// overwrites its content.
func (s *PMServer) HandlePut(m *msg.Message) error {
	name, err := m.NextString()
	if err != nil {
		return errors.Wrapf(err, "put %s", m)
	}
	content, err := m.NextFloats()
	if err != nil {
		return errors.Wrapf(err, "put %s", m)
	}
	p, ok := s.shard[m.Target]
	if ok {
		log.Warnf("server %s: duplicate put of %s", s.addr, p)
		if p.Size() != len(content) {
			return errors.Wrapf(errSizeMismatch, "put %d floats to %s", len(content), p)
		}
	} else {
		p = param.New(m.Target, name, len(content))
		s.shard[m.Target] = p
	}
	copy(p.Data, content)
	p.TakeSnapshot()
	if m.NumFrames() > 2 {
		scales, err := m.NextFloats()
		if err != nil {
			return errors.Wrapf(err, "put %s", m)
		}
		if len(scales) == 2 {
			p.LRScale, p.WDScale = scales[0], scales[1]
		}
	}
	return nil
}

// HandleGet answers with the content of m.Target, or asks for m to be
// requeued if it hasn't been put yet.
func (s *PMServer) HandleGet(m *msg.Message) (*msg.Message, bool, error) {
	p, ok := s.shard[m.Target]
	if !ok {
		return nil, true, nil
	}
	return s.content(m, p), false, nil
}

// HandleUpdate applies the gradient carried by m and answers with the new
// content.
func (s *PMServer) HandleUpdate(m *msg.Message) (*msg.Message, bool, error) {
	p, ok := s.shard[m.Target]
	if !ok {
		return nil, true, nil
	}
	step, err := m.NextUint32()
	if err != nil {
		return nil, false, errors.Wrapf(err, "update %s", m)
	}
	grad, err := m.NextFloats()
	if err != nil {
		return nil, false, errors.Wrapf(err, "update %s", m)
	}
	if len(grad) != p.Size() {
		return nil, false, errors.Wrapf(errSizeMismatch, "gradient of %d floats for %s", len(grad), p)
	}
	copy(p.Grad, grad)
	s.updater.Update(int(step), p)
	return s.content(m, p), false, nil
}

// HandleSync reconciles m.Target with a worker replica.
func (s *PMServer) HandleSync(m *msg.Message) (*msg.Message, bool, error) {
	return s.handleSync(m, msg.Sync)
}

// HandleSyncRequest reconciles m.Target with the replica of another server.
func (s *PMServer) HandleSyncRequest(m *msg.Message) (*msg.Message, bool, error) {
	reply, requeue, err := s.handleSync(m, msg.SyncResponse)
	if reply != nil {
		s.nSync++
	}
	return reply, requeue, err
}

func (s *PMServer) handleSync(m *msg.Message, t msg.Type) (*msg.Message, bool, error) {
	p, ok := s.shard[m.Target]
	if !ok {
		return nil, true, nil
	}
	reply := m.Reply(t)
	if err := s.strategy.Handle(p, m, reply); err != nil {
		return nil, false, errors.Wrapf(err, "sync %s", m)
	}
	return reply, false, nil
}

// HandleSyncResponse applies the answer to a sync request this server sent.
// It fails with ErrUnknownParam if m.Target is not held.
func (s *PMServer) HandleSyncResponse(m *msg.Message) error {
	p, ok := s.shard[m.Target]
	if !ok {
		return errors.Wrapf(ErrUnknownParam, "%s", m)
	}
	return s.strategy.Apply(p, m)
}

// GenSyncRequest starts a sync of id with the same server of another group.
// It returns nil if the strategy has nothing to send.
func (s *PMServer) GenSyncRequest(id int, to msg.Addr) (*msg.Message, error) {
	p, ok := s.shard[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownParam, "%d", id)
	}
	m := msg.New(s.addr, to, msg.SyncRequest, id)
	ok, err := s.strategy.Generate(p, m)
	if err != nil || !ok {
		return nil, err
	}
	return m, nil
}

func (s *PMServer) content(req *msg.Message, p *param.Param) *msg.Message {
	reply := req.Reply(req.Type)
	reply.AddString(p.Name)
	reply.AddFloats(p.Data)
	return reply
}
