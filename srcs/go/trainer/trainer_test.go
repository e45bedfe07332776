package trainer

import (
	"context"
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/lsds/paramserver/srcs/go/model"
	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const modelConfig = `
params:
  - name: w
    size: 10
    split_threshold: 4
  - name: b
    size: 3
updater:
  base_lr: 0.2
sync:
  strategy: elastic
  rate: 0.5
  frequency: 2
steps: 8
seed: 7
`

func loadModel(t *testing.T) *model.Config {
	mc, err := model.ParseConfig([]byte(modelConfig))
	require.NoError(t, err)
	return mc
}

func Test_TokenOf(t *testing.T) {
	tk, err := TokenOf("")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), tk)

	id := uuid.New().String()
	a, err := TokenOf(id)
	require.NoError(t, err)
	b, err := TokenOf(id)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = TokenOf("not-a-uuid")
	assert.Error(t, err)
}

func Test_SingleProcs(t *testing.T) {
	c := &plan.Cluster{
		ServerGroups: 1, ServersPerGroup: 2, ServersPerProcs: 2,
		WorkerGroups: 1, WorkersPerGroup: 2, WorkersPerProcs: 2,
	}
	require.NoError(t, c.Validate())
	mc := loadModel(t)
	initial := model.New(mc).Loss()

	tr := New(0, c, mc, 0, nil)
	require.NoError(t, tr.Run(context.Background()))
	losses := tr.Losses()
	require.Len(t, losses, 2)
	for name, loss := range losses {
		assert.Less(t, loss, initial, name)
	}
}

func freePeer(t *testing.T) plan.PeerID {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return plan.PeerID{
		IPv4: plan.MustParseIPv4("127.0.0.1"),
		Port: uint16(l.Addr().(*net.TCPAddr).Port),
	}
}

func Test_TwoProcsTwoGroups(t *testing.T) {
	c := &plan.Cluster{
		ServerGroups: 2, ServersPerGroup: 1, ServersPerProcs: 1,
		WorkerGroups: 2, WorkersPerGroup: 1, WorkersPerProcs: 1,
		SyncFrequency: 3,
	}
	require.NoError(t, c.Validate())
	require.Equal(t, 2, c.NumProcs())
	c.Peers = plan.PeerList{freePeer(t), freePeer(t)}
	mc := loadModel(t)
	initial := model.New(mc).Loss()
	token, err := TokenOf(uuid.New().String())
	require.NoError(t, err)

	var g errgroup.Group
	var trainers []*Trainer
	for pid := 0; pid < c.NumProcs(); pid++ {
		tr := New(pid, c, mc, token, nil)
		trainers = append(trainers, tr)
		g.Go(func() error { return tr.Run(context.Background()) })
	}
	require.NoError(t, g.Wait())
	for _, tr := range trainers {
		for name, loss := range tr.Losses() {
			assert.Less(t, loss, initial, name)
		}
	}
}

func Test_NoPeer(t *testing.T) {
	c := &plan.Cluster{
		ServerGroups: 1, ServersPerGroup: 2, ServersPerProcs: 1,
		WorkerGroups: 1, WorkersPerGroup: 2, WorkersPerProcs: 1,
	}
	assert.Error(t, New(1, c, loadModel(t), 0, nil).Run(context.Background()))
}
