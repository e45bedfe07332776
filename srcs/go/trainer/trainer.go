package trainer

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
	"github.com/lsds/paramserver/srcs/go/config"
	"github.com/lsds/paramserver/srcs/go/dispatch"
	"github.com/lsds/paramserver/srcs/go/log"
	"github.com/lsds/paramserver/srcs/go/model"
	"github.com/lsds/paramserver/srcs/go/monitor"
	"github.com/lsds/paramserver/srcs/go/msg"
	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/lsds/paramserver/srcs/go/rchannel"
	"github.com/lsds/paramserver/srcs/go/rchannel/client"
	"github.com/lsds/paramserver/srcs/go/server"
	"github.com/lsds/paramserver/srcs/go/syncer"
	"github.com/lsds/paramserver/srcs/go/updater"
	"github.com/lsds/paramserver/srcs/go/worker"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var errNoPeer = errors.New("procs has no address")

// TokenOf derives the connection token of a run from its id.
func TokenOf(runID string) (uint32, error) {
	if len(runID) == 0 {
		return 0, nil
	}
	id, err := uuid.Parse(runID)
	if err != nil {
		return 0, errors.Wrapf(err, "run id %q", runID)
	}
	return binary.LittleEndian.Uint32(id[:4]), nil
}

// Trainer runs the servers and workers a cluster assigns to one process.
type Trainer struct {
	procsID int
	cluster *plan.Cluster
	model   *model.Config
	token   uint32
	monitor monitor.Monitor

	mu      sync.Mutex
	workers map[msg.Addr]*model.Quadratic
}

func New(procsID int, c *plan.Cluster, mc *model.Config, token uint32, m monitor.Monitor) *Trainer {
	if m == nil {
		m = monitor.Noop()
	}
	return &Trainer{
		procsID: procsID,
		cluster: c,
		model:   mc,
		token:   token,
		monitor: m,
		workers: make(map[msg.Addr]*model.Quadratic),
	}
}

func (t *Trainer) self() (plan.PeerID, error) {
	if p, ok := t.cluster.Peer(t.procsID); ok {
		return p, nil
	}
	if t.cluster.NumProcs() == 1 && t.procsID == 0 {
		return plan.PeerID{IPv4: plan.MustParseIPv4("127.0.0.1")}, nil
	}
	return plan.PeerID{}, errors.Wrapf(errNoPeer, "%d of %s", t.procsID, t.cluster)
}

// Run returns when every local server and worker is done.
func (t *Trainer) Run(ctx context.Context) error {
	self, err := t.self()
	if err != nil {
		return err
	}
	rctx := rchannel.NewContext(self, t.token, t.monitor)
	router := rctx.NewRouter(config.RouterBufferSize)
	var endpoint string
	if t.cluster.NumProcs() > 1 {
		endpoint = self.String()
	}
	if err := router.Bind(endpoint); err != nil {
		return err
	}
	defer router.Close()
	remote := client.New(rctx, t.cluster.Peers)
	defer remote.Close()

	var dealers []*rchannel.Dealer
	newDealer := func(a msg.Addr) (*rchannel.Dealer, error) {
		d := rctx.NewDealer(len(dealers))
		if err := d.Connect(config.InprocEndpoint); err != nil {
			return nil, errors.Wrapf(err, "%s", a)
		}
		dealers = append(dealers, d)
		return d, nil
	}
	var loops []func(context.Context) error
	if group, ids, ok := t.cluster.LocalServers(t.procsID); ok {
		for id := ids.Begin; id < ids.End; id++ {
			a := msg.Addr{Group: group, ID: id, Role: msg.RoleServer}
			d, err := newDealer(a)
			if err != nil {
				return err
			}
			srv, err := t.newServer(a, d)
			if err != nil {
				return err
			}
			loops = append(loops, srv.Run)
		}
	}
	if groups, ids, ok := t.cluster.LocalWorkers(t.procsID); ok {
		for g := groups.Begin; g < groups.End; g++ {
			for id := ids.Begin; id < ids.End; id++ {
				a := msg.Addr{Group: g, ID: id, Role: msg.RoleWorkerParam}
				d, err := newDealer(a)
				if err != nil {
					return err
				}
				w, err := t.newWorker(a, d)
				if err != nil {
					return err
				}
				loops = append(loops, w.Run)
			}
		}
	}
	log.Infof("procs %d at %s runs %d loops of %s", t.procsID, self, len(loops), t.cluster)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatch.New(t.procsID, t.cluster, router, remote, t.monitor).Run(gctx)
	})
	g.Go(func() error {
		lg, lctx := errgroup.WithContext(gctx)
		for _, loop := range loops {
			lg.Go(func() error { return loop(lctx) })
		}
		go func() {
			<-lctx.Done()
			for _, d := range dealers {
				d.Close()
			}
		}()
		err := lg.Wait()
		ctl := rctx.NewDealer(-1)
		defer ctl.Close()
		if err := ctl.Connect(config.InprocEndpoint); err != nil {
			return err
		}
		if err := ctl.Send(msg.New(msg.Stub, msg.Stub, msg.Stop, 0)); err != nil {
			log.Warnf("stop dispatcher: %v", err)
		}
		return err
	})
	return g.Wait()
}

func (t *Trainer) strategy() (syncer.Strategy, error) {
	return syncer.New(t.model.SyncKind(), t.model.Sync.Rate, t.monitor)
}

func (t *Trainer) newServer(a msg.Addr, d *rchannel.Dealer) (*server.Server, error) {
	u, err := updater.New(t.model.Updater)
	if err != nil {
		return nil, err
	}
	s, err := t.strategy()
	if err != nil {
		return nil, err
	}
	opts := server.Options{
		Groups:        t.cluster.ServerGroups,
		SyncFrequency: t.cluster.SyncFrequency,
		Clients:       t.cluster.NumClients(a.Group),
	}
	return server.New(server.NewPMServer(a, u, s), d, opts, t.monitor), nil
}

func (t *Trainer) newWorker(a msg.Addr, d *rchannel.Dealer) (*worker.Worker, error) {
	s, err := t.strategy()
	if err != nil {
		return nil, err
	}
	m := model.New(t.model)
	t.mu.Lock()
	t.workers[a] = m
	t.mu.Unlock()
	tb := worker.NewTable(a, d, t.cluster, s, worker.Options{ProcsID: t.procsID}, t.monitor)
	cfg := worker.Config{
		Steps:         t.model.Steps,
		SyncFrequency: t.model.Sync.Frequency,
		// the first worker of each group feeding a distinct server group
		// initialises it
		Put: a.ID == 0 && a.Group < t.cluster.ServerGroups,
	}
	return worker.New(tb, m, cfg), nil
}

// Losses reports the loss of the model of every local worker.
func (t *Trainer) Losses() map[string]float32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	losses := make(map[string]float32, len(t.workers))
	for a, m := range t.workers {
		losses[a.String()] = m.Loss()
	}
	return losses
}
