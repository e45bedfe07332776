package worker

import (
	"context"
	"testing"

	"github.com/lsds/paramserver/srcs/go/config"
	"github.com/lsds/paramserver/srcs/go/msg"
	"github.com/lsds/paramserver/srcs/go/param"
	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/lsds/paramserver/srcs/go/rchannel"
	"github.com/lsds/paramserver/srcs/go/server"
	"github.com/lsds/paramserver/srcs/go/syncer"
	"github.com/lsds/paramserver/srcs/go/updater"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type constModel struct {
	params []*param.Param
	grad   float32
}

func (m *constModel) Params() []*param.Param {
	return m.params
}

func (m *constModel) Gradients(step int) error {
	for _, p := range m.params {
		for i := range p.Grad {
			p.Grad[i] = m.grad
		}
	}
	return nil
}

// route forwards everything but control messages back through the router,
// as the dispatcher of a single process does.
func route(r *rchannel.Router) {
	for {
		m, err := r.Receive()
		if err != nil {
			return
		}
		if m.Dst.Role == msg.RoleStub {
			continue
		}
		r.Send(m)
	}
}

// train runs one worker of testCluster against real server loops and
// returns the trained params and the servers.
func train(t *testing.T, s syncer.Strategy, cfg Config) ([]*param.Param, []*server.PMServer) {
	ctx := rchannel.NewContext(plan.PeerID{}, 0, nil)
	r := ctx.NewRouter(64)
	require.NoError(t, r.Bind(""))
	defer r.Close()
	go route(r)

	u, err := updater.New(updater.Config{BaseLR: 1})
	require.NoError(t, err)

	var g errgroup.Group
	var pms []*server.PMServer
	for id := 0; id < testCluster.ServersPerGroup; id++ {
		d := ctx.NewDealer(id)
		require.NoError(t, d.Connect(config.InprocEndpoint))
		defer d.Close()
		pm := server.NewPMServer(msg.Addr{ID: id, Role: msg.RoleServer}, u, s)
		pms = append(pms, pm)
		srv := server.New(pm, d, server.Options{Groups: 1, Clients: 1}, nil)
		g.Go(func() error { return srv.Run(context.Background()) })
	}

	d := ctx.NewDealer(100)
	require.NoError(t, d.Connect(config.InprocEndpoint))
	defer d.Close()
	ps := param.Alloc(1, []param.Shape{{Name: "a", Size: 6}, {Name: "b", Size: 3}})
	for _, p := range ps {
		for i := range p.Data {
			p.Data[i] = float32(i)
		}
	}
	tb := NewTable(self, d, testCluster, s, Options{SplitThreshold: 4, MaxSplits: 10}, nil)
	w := New(tb, &constModel{params: ps, grad: 0.25}, cfg)
	g.Go(func() error { return w.Run(context.Background()) })
	require.NoError(t, g.Wait())
	return ps, pms
}

func Test_WorkerTrainsAgainstServers(t *testing.T) {
	s, err := syncer.New(syncer.ElasticAverage, 0.5, nil)
	require.NoError(t, err)
	ps, pms := train(t, s, Config{Steps: 4, SyncFrequency: 2, Put: true})
	for _, p := range ps {
		for i, x := range p.Data {
			assert.InDelta(t, float32(i)-1, x, 1e-5, "%s[%d]", p, i)
		}
	}
	var n int
	for _, pm := range pms {
		n += len(pm.IDs())
	}
	assert.Equal(t, 3, n)
}

func Test_RandomSyncMatchesPlainSGD(t *testing.T) {
	for _, rate := range []float32{1, 0.5} {
		s, err := syncer.New(syncer.RandomSample, rate, nil)
		require.NoError(t, err)
		ps, pms := train(t, s, Config{Steps: 3, SyncFrequency: 1, Put: true})
		for _, p := range ps {
			for i, x := range p.Data {
				assert.InDelta(t, float32(i)-0.75, x, 1e-5, "rate %f: %s[%d]", rate, p, i)
			}
		}
		var local, remote float32
		for _, p := range ps {
			for _, x := range p.Data {
				local += x
			}
		}
		for _, pm := range pms {
			for _, id := range pm.IDs() {
				sp, ok := pm.Lookup(id)
				require.True(t, ok)
				for _, x := range sp.Data {
					remote += x
				}
			}
		}
		assert.InDelta(t, local, remote, 1e-4, "rate %f", rate)
	}
}
