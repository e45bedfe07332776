package worker

import (
	"fmt"
	"time"

	"github.com/lsds/paramserver/srcs/go/config"
	"github.com/lsds/paramserver/srcs/go/log"
	"github.com/lsds/paramserver/srcs/go/monitor"
	"github.com/lsds/paramserver/srcs/go/msg"
	"github.com/lsds/paramserver/srcs/go/param"
	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/lsds/paramserver/srcs/go/rchannel"
	"github.com/lsds/paramserver/srcs/go/syncer"
	"github.com/lsds/paramserver/srcs/go/utils"
	"github.com/pkg/errors"
)

var (
	ErrSplitGap     = errors.New("splits are not contiguous")
	errSizeMismatch = errors.New("size mismatch")
	errRegistered   = errors.New("param already registered")
	errUnregistered = errors.New("param not registered")
)

// ParamCounter counts the requests sent for one split. Gets, Updates and
// Syncs are decremented when their answer arrives.
type ParamCounter struct {
	Puts    int
	Gets    int
	Updates int
	Syncs   int
}

func (c ParamCounter) Outstanding() int {
	return c.Gets + c.Updates + c.Syncs
}

// ShardEntry is the bookkeeping of one split at the worker.
type ShardEntry struct {
	Segment param.Segment
	Server  msg.Addr
	ProcsID int
	Local   bool

	Counter ParamCounter

	view *param.Param
}

func (e *ShardEntry) String() string {
	return fmt.Sprintf("%s at %s (procs %d)", e.Segment, e.Server, e.ProcsID)
}

type Options struct {
	ProcsID        int
	MaxSplits      int
	SplitThreshold int
}

// Table tracks the params of one worker and their round trips to the
// servers. It is owned by the worker loop, only the receiving goroutine
// runs concurrently and it talks to the loop through a channel.
type Table struct {
	self     msg.Addr
	sock     rchannel.Socket
	cluster  *plan.Cluster
	strategy syncer.Strategy
	opts     Options
	monitor  monitor.Monitor

	params  map[int]*param.Param
	splits  map[int][]int
	entries map[int]*ShardEntry

	recv chan *msg.Message
}

func NewTable(self msg.Addr, sock rchannel.Socket, c *plan.Cluster, s syncer.Strategy, opts Options, m monitor.Monitor) *Table {
	if opts.MaxSplits <= 0 {
		opts.MaxSplits = config.MaxSplits
	}
	if opts.SplitThreshold <= 0 {
		opts.SplitThreshold = config.SplitThreshold
	}
	if m == nil {
		m = monitor.Noop()
	}
	return &Table{
		self:     self,
		sock:     sock,
		cluster:  c,
		strategy: s,
		opts:     opts,
		monitor:  m,
		params:   make(map[int]*param.Param),
		splits:   make(map[int][]int),
		entries:  make(map[int]*ShardEntry),
		recv:     make(chan *msg.Message, 64),
	}
}

// Start announces the worker to its router and starts receiving.
func (t *Table) Start() error {
	if err := t.sock.Send(msg.New(t.self, msg.Stub, msg.Connect, 0)); err != nil {
		return errors.Wrapf(err, "worker %s", t.self)
	}
	go t.receive()
	return nil
}

func (t *Table) receive() {
	defer close(t.recv)
	for {
		m, err := t.sock.Receive()
		if err != nil {
			return
		}
		t.recv <- m
	}
}

// Register splits params and assigns every split to a server of the group
// this worker talks to.
func (t *Table) Register(params ...*param.Param) error {
	group := t.cluster.ServerGroupOf(t.self.Group)
	for _, p := range params {
		if _, ok := t.params[p.ID]; ok {
			return errors.Wrapf(errRegistered, "%s", p)
		}
		threshold := t.opts.SplitThreshold
		if p.SplitThreshold > 0 {
			threshold = p.SplitThreshold
		}
		segs, err := param.SplitParam(p.ID, p.Size(), threshold, t.opts.MaxSplits)
		if err != nil {
			return err
		}
		ids := make([]int, len(segs))
		for i, seg := range segs {
			dst := msg.Addr{Group: group, ID: param.Shard(seg.SplitID, t.cluster.ServersPerGroup), Role: msg.RoleServer}
			pid, err := t.cluster.ProcsIDOf(dst)
			if err != nil {
				return err
			}
			t.entries[seg.SplitID] = &ShardEntry{
				Segment: seg,
				Server:  dst,
				ProcsID: pid,
				Local:   pid == t.opts.ProcsID,
				view:    splitView(p, seg),
			}
			ids[i] = seg.SplitID
		}
		t.params[p.ID] = p
		t.splits[p.ID] = ids
		if len(segs) > 1 {
			log.Debugf("worker %s: %s cut into %d splits", t.self, p, len(segs))
		}
	}
	return nil
}

func splitView(p *param.Param, seg param.Segment) *param.Param {
	i, j := seg.Offset, seg.End()
	return &param.Param{
		ID:       seg.SplitID,
		Name:     p.Name,
		Data:     p.Data[i:j:j],
		Grad:     p.Grad[i:j:j],
		History:  p.History[i:j:j],
		Snapshot: p.Snapshot[i:j:j],
		LRScale:  p.LRScale,
		WDScale:  p.WDScale,
	}
}

// Entries returns the split entries of p in offset order.
func (t *Table) Entries(p *param.Param) []*ShardEntry {
	var es []*ShardEntry
	for _, id := range t.splits[p.ID] {
		es = append(es, t.entries[id])
	}
	return es
}

// Pending is the number of answers still expected over all params.
func (t *Table) Pending() int {
	var n int
	for _, e := range t.entries {
		n += e.Counter.Outstanding()
	}
	return n
}

func (t *Table) splitsOf(p *param.Param) ([]*ShardEntry, error) {
	if _, ok := t.params[p.ID]; !ok {
		return nil, errors.Wrapf(errUnregistered, "%s", p)
	}
	return t.Entries(p), nil
}

func (t *Table) request(e *ShardEntry, typ msg.Type) *msg.Message {
	return msg.New(t.self, e.Server, typ, e.Segment.SplitID)
}

// Put sends the content of p to its servers. The current content becomes the
// sync snapshot.
func (t *Table) Put(p *param.Param) error {
	es, err := t.splitsOf(p)
	if err != nil {
		return err
	}
	p.TakeSnapshot()
	for _, e := range es {
		m := t.request(e, msg.Put)
		m.AddString(p.Name)
		m.AddFloats(e.view.Data)
		m.AddFloats([]float32{p.LRScale, p.WDScale})
		if err := t.sock.Send(m); err != nil {
			return err
		}
		e.Counter.Puts++
	}
	return nil
}

// AsyncGet requests the content of every split of p without waiting.
func (t *Table) AsyncGet(p *param.Param) error {
	es, err := t.splitsOf(p)
	if err != nil {
		return err
	}
	for _, e := range es {
		if err := t.sock.Send(t.request(e, msg.Get)); err != nil {
			return err
		}
		e.Counter.Gets++
	}
	return nil
}

// AsyncUpdate sends the gradient of every split of p without waiting.
func (t *Table) AsyncUpdate(p *param.Param, step int) error {
	es, err := t.splitsOf(p)
	if err != nil {
		return err
	}
	for _, e := range es {
		m := t.request(e, msg.Update)
		m.AddUint32(uint32(step))
		m.AddFloats(e.view.Grad)
		if err := t.sock.Send(m); err != nil {
			return err
		}
		e.Counter.Updates++
	}
	return nil
}

// AsyncSync starts a sync of every split of p the strategy has something
// to send for.
func (t *Table) AsyncSync(p *param.Param) error {
	es, err := t.splitsOf(p)
	if err != nil {
		return err
	}
	for _, e := range es {
		m := t.request(e, msg.Sync)
		ok, err := t.strategy.Generate(e.view, m)
		if err != nil {
			return errors.Wrapf(err, "sync %s", e)
		}
		if !ok {
			continue
		}
		if err := t.sock.Send(m); err != nil {
			return err
		}
		e.Counter.Syncs++
	}
	return nil
}

// AsyncCollect waits until every request sent for p has been answered.
// Answers for other params arriving meanwhile are folded into them.
func (t *Table) AsyncCollect(p *param.Param) error {
	es, err := t.splitsOf(p)
	if err != nil {
		return err
	}
	t0 := time.Now()
	defer func() { t.monitor.Time(monitor.CollectWait, time.Since(t0)) }()
	outstanding := func() int {
		var n int
		for _, e := range es {
			n += e.Counter.Outstanding()
		}
		return n
	}
	if outstanding() > 0 {
		sd := utils.InstallStallDetector(fmt.Sprintf("worker %s collecting %s", t.self, p), config.StallTimeout)
		defer sd.Stop()
	}
	for outstanding() > 0 {
		m, ok := <-t.recv
		if !ok {
			return errors.Wrapf(rchannel.ErrClosed, "worker %s collecting %s", t.self, p)
		}
		if err := t.Deliver(m); err != nil {
			return err
		}
	}
	return checkContiguous(p, es)
}

func checkContiguous(p *param.Param, es []*ShardEntry) error {
	var end int
	for _, e := range es {
		if e.Segment.Offset != end {
			return errors.Wrapf(ErrSplitGap, "%s: %s after offset %d", p, e.Segment, end)
		}
		end = e.Segment.End()
	}
	if end != p.Size() {
		return errors.Wrapf(ErrSplitGap, "%s: splits end at %d", p, end)
	}
	return nil
}

// Get replaces the content of p with the one held by the servers.
func (t *Table) Get(p *param.Param) error {
	if err := t.AsyncGet(p); err != nil {
		return err
	}
	return t.AsyncCollect(p)
}

// Update sends the gradient of p and waits for the updated content.
func (t *Table) Update(p *param.Param, step int) error {
	if err := t.AsyncUpdate(p, step); err != nil {
		return err
	}
	return t.AsyncCollect(p)
}

func (t *Table) Sync(p *param.Param) error {
	if err := t.AsyncSync(p); err != nil {
		return err
	}
	return t.AsyncCollect(p)
}

// Deliver folds an answer into the split it is for.
func (t *Table) Deliver(m *msg.Message) error {
	e, ok := t.entries[m.Target]
	if !ok {
		log.Errorf("worker %s dropped %s: unknown split", t.self, m)
		return nil
	}
	var counter *int
	switch m.Type {
	case msg.Get:
		counter = &e.Counter.Gets
	case msg.Update:
		counter = &e.Counter.Updates
	case msg.Sync:
		counter = &e.Counter.Syncs
	default:
		log.Errorf("worker %s: unexpected %s", t.self, m)
		return nil
	}
	if *counter == 0 {
		log.Errorf("worker %s dropped %s: not requested", t.self, m)
		return nil
	}
	*counter--
	if m.Type == msg.Sync {
		return t.strategy.Apply(e.view, m)
	}
	if _, err := m.NextString(); err != nil {
		return errors.Wrapf(err, "%s", m)
	}
	content, err := m.NextFloats()
	if err != nil {
		return errors.Wrapf(err, "%s", m)
	}
	if len(content) != e.Segment.Length {
		return errors.Wrapf(errSizeMismatch, "%d floats for %s", len(content), e)
	}
	// The server's answer is the last agreed value, so a later sync only
	// carries changes made at this worker.
	copy(e.view.Data, content)
	copy(e.view.Snapshot, content)
	return nil
}

// Finish tells every server this worker talks to that it is done.
func (t *Table) Finish() error {
	group := t.cluster.ServerGroupOf(t.self.Group)
	for id := 0; id < t.cluster.ServersPerGroup; id++ {
		dst := msg.Addr{Group: group, ID: id, Role: msg.RoleServer}
		if err := t.sock.Send(msg.New(t.self, dst, msg.Stop, 0)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) Close() error {
	return t.sock.Close()
}
