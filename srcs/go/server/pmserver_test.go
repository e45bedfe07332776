package server

import (
	"testing"

	"github.com/lsds/paramserver/srcs/go/msg"
	"github.com/lsds/paramserver/srcs/go/syncer"
	"github.com/lsds/paramserver/srcs/go/updater"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	serverAddr = msg.Addr{Group: 0, ID: 1, Role: msg.RoleServer}
	workerAddr = msg.Addr{Group: 0, ID: 3, Role: msg.RoleWorkerParam}
)

func newPMServer(t *testing.T, kind syncer.Kind, rate float32) *PMServer {
	u, err := updater.New(updater.Config{Type: "sgd", BaseLR: 1})
	require.NoError(t, err)
	s, err := syncer.New(kind, rate, nil)
	require.NoError(t, err)
	return NewPMServer(serverAddr, u, s)
}

func putMsg(id int, content ...float32) *msg.Message {
	m := msg.New(workerAddr, serverAddr, msg.Put, id)
	m.AddString("w")
	m.AddFloats(content)
	return m
}

func updateMsg(id, step int, grad ...float32) *msg.Message {
	m := msg.New(workerAddr, serverAddr, msg.Update, id)
	m.AddUint32(uint32(step))
	m.AddFloats(grad)
	return m
}

func contentOf(t *testing.T, m *msg.Message) []float32 {
	_, err := m.NextString()
	require.NoError(t, err)
	xs, err := m.NextFloats()
	require.NoError(t, err)
	return xs
}

func Test_PutGetUpdate(t *testing.T) {
	s := newPMServer(t, syncer.Plain, 0)
	require.NoError(t, s.HandlePut(putMsg(7, 1, 2, 3)))

	reply, requeue, err := s.HandleGet(msg.New(workerAddr, serverAddr, msg.Get, 7))
	require.NoError(t, err)
	assert.False(t, requeue)
	assert.Equal(t, workerAddr, reply.Dst)
	assert.Equal(t, serverAddr, reply.Src)
	assert.Equal(t, msg.Get, reply.Type)
	assert.Equal(t, []float32{1, 2, 3}, contentOf(t, reply))

	reply, requeue, err = s.HandleUpdate(updateMsg(7, 0, 0.1, 0.1, 0.1))
	require.NoError(t, err)
	assert.False(t, requeue)
	assert.Equal(t, msg.Update, reply.Type)
	assert.InDeltaSlice(t, []float32{0.9, 1.9, 2.9}, contentOf(t, reply), 1e-6)

	reply, _, err = s.HandleGet(msg.New(workerAddr, serverAddr, msg.Get, 7))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.9, 1.9, 2.9}, contentOf(t, reply), 1e-6)
}

func Test_RequeueUnknown(t *testing.T) {
	s := newPMServer(t, syncer.ElasticAverage, 0.5)
	for _, m := range []*msg.Message{
		msg.New(workerAddr, serverAddr, msg.Get, 1),
		updateMsg(1, 0, 1),
		msg.New(workerAddr, serverAddr, msg.Sync, 1),
		msg.New(serverAddr, serverAddr, msg.SyncRequest, 1),
	} {
		var handle func(*msg.Message) (*msg.Message, bool, error)
		switch m.Type {
		case msg.Get:
			handle = s.HandleGet
		case msg.Update:
			handle = s.HandleUpdate
		case msg.Sync:
			handle = s.HandleSync
		default:
			handle = s.HandleSyncRequest
		}
		reply, requeue, err := handle(m)
		assert.NoError(t, err, m.Type)
		assert.Nil(t, reply, m.Type)
		assert.True(t, requeue, m.Type)
	}
	assert.Equal(t, 0, s.SyncCount())
}

func Test_DuplicatePut(t *testing.T) {
	s := newPMServer(t, syncer.Plain, 0)
	require.NoError(t, s.HandlePut(putMsg(2, 1, 1)))
	require.NoError(t, s.HandlePut(putMsg(2, 5, 6)))
	p, ok := s.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, []float32{5, 6}, p.Data)

	assert.Error(t, s.HandlePut(putMsg(2, 1, 2, 3)))
}

func Test_PutScales(t *testing.T) {
	s := newPMServer(t, syncer.Plain, 0)
	m := putMsg(3, 1)
	m.AddFloats([]float32{0.5, 0})
	require.NoError(t, s.HandlePut(m))
	_, _, err := s.HandleUpdate(updateMsg(3, 0, 1))
	require.NoError(t, err)
	p, _ := s.Lookup(3)
	assert.InDelta(t, 0.5, p.Data[0], 1e-6)
}

func Test_UpdateSizeMismatch(t *testing.T) {
	s := newPMServer(t, syncer.Plain, 0)
	require.NoError(t, s.HandlePut(putMsg(4, 1, 2)))
	_, _, err := s.HandleUpdate(updateMsg(4, 0, 1))
	assert.Error(t, err)
}

func Test_SyncResponseUnknown(t *testing.T) {
	s := newPMServer(t, syncer.ElasticAverage, 0.5)
	err := s.HandleSyncResponse(msg.New(serverAddr, serverAddr, msg.SyncResponse, 9))
	assert.True(t, errors.Is(err, ErrUnknownParam))
}

func Test_ElasticSyncBetweenServers(t *testing.T) {
	a := newPMServer(t, syncer.ElasticAverage, 0.5)
	b := NewPMServer(msg.Addr{Group: 1, ID: 1, Role: msg.RoleServer}, a.updater, a.strategy)
	require.NoError(t, a.HandlePut(putMsg(5, 4, 8)))
	require.NoError(t, b.HandlePut(putMsg(5, 0, 0)))

	req, err := a.GenSyncRequest(5, b.Addr())
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, msg.SyncRequest, req.Type)

	resp, requeue, err := b.HandleSyncRequest(req)
	require.NoError(t, err)
	require.False(t, requeue)
	assert.Equal(t, msg.SyncResponse, resp.Type)
	assert.Equal(t, a.Addr(), resp.Dst)
	assert.Equal(t, 1, b.SyncCount())

	require.NoError(t, a.HandleSyncResponse(resp))
	pa, _ := a.Lookup(5)
	pb, _ := b.Lookup(5)
	assert.Equal(t, []float32{2, 4}, pb.Data)
	assert.Equal(t, []float32{2, 4}, pa.Data)
}

func Test_PlainGeneratesNothing(t *testing.T) {
	s := newPMServer(t, syncer.Plain, 0)
	require.NoError(t, s.HandlePut(putMsg(1, 1)))
	m, err := s.GenSyncRequest(1, serverAddr)
	require.NoError(t, err)
	assert.Nil(t, m)
	_, err = s.GenSyncRequest(2, serverAddr)
	assert.Error(t, err)
}

func Test_IDs(t *testing.T) {
	s := newPMServer(t, syncer.Plain, 0)
	for _, id := range []int{30, 10, 20} {
		require.NoError(t, s.HandlePut(putMsg(id, 0)))
	}
	assert.Equal(t, []int{10, 20, 30}, s.IDs())
}
