package rchannel

import (
	"testing"
	"time"

	"github.com/lsds/paramserver/srcs/go/config"
	"github.com/lsds/paramserver/srcs/go/msg"
	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var localhost = plan.PeerID{IPv4: plan.MustParseIPv4("127.0.0.1")}

func newLocal(t *testing.T, capacity int) (*Context, *Router) {
	ctx := NewContext(localhost, 0, nil)
	r := ctx.NewRouter(capacity)
	require.NoError(t, r.Bind(""))
	t.Cleanup(func() { r.Close() })
	return ctx, r
}

func connectedDealer(t *testing.T, ctx *Context) *Dealer {
	d := ctx.NewDealer(1)
	require.NoError(t, d.Connect(config.InprocEndpoint))
	t.Cleanup(func() { d.Close() })
	return d
}

var (
	server0 = msg.Addr{Group: 0, ID: 0, Role: msg.RoleServer}
	worker1 = msg.Addr{Group: 0, ID: 1, Role: msg.RoleWorkerParam}
)

func Test_RouterBuffersUntilAnnounced(t *testing.T) {
	ctx, r := newLocal(t, 10)
	d := connectedDealer(t, ctx)

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Send(msg.New(worker1, server0, msg.Get, i)))
	}
	assert.Equal(t, 3, r.Pending())
	_, ok := d.TryReceive()
	assert.False(t, ok)

	require.NoError(t, d.Send(msg.New(server0, msg.Stub, msg.Connect, 0)))
	for i := 0; i < 3; i++ {
		m, err := d.Receive()
		require.NoError(t, err)
		assert.Equal(t, i, m.Target)
	}
	assert.Equal(t, 0, r.Pending())

	m, err := r.Receive()
	require.NoError(t, err)
	assert.Equal(t, msg.Connect, m.Type)
	assert.Equal(t, server0, m.Src)

	require.NoError(t, r.Send(msg.New(worker1, server0, msg.Get, 9)))
	m, err = d.Receive()
	require.NoError(t, err)
	assert.Equal(t, 9, m.Target)
}

func Test_RouterBufferFull(t *testing.T) {
	_, r := newLocal(t, 2)
	require.NoError(t, r.Send(msg.New(worker1, server0, msg.Get, 0)))
	require.NoError(t, r.Send(msg.New(worker1, server0, msg.Get, 1)))
	err := r.Send(msg.New(worker1, server0, msg.Get, 2))
	assert.True(t, errors.Is(err, ErrBufferFull))
}

func Test_BindTwice(t *testing.T) {
	ctx, _ := newLocal(t, 1)
	r := ctx.NewRouter(1)
	assert.Error(t, r.Bind(""))
}

func Test_DealerErrors(t *testing.T) {
	ctx := NewContext(localhost, 0, nil)
	d := ctx.NewDealer(0)
	assert.Error(t, d.Send(msg.New(worker1, server0, msg.Get, 0)))
	assert.Error(t, d.Connect(config.InprocEndpoint))
	assert.Error(t, d.Connect("not-an-endpoint"))
}

func Test_ReceiveAfterClose(t *testing.T) {
	ctx, r := newLocal(t, 1)
	d := connectedDealer(t, ctx)
	require.NoError(t, d.Send(msg.New(worker1, msg.Stub, msg.Connect, 0)))
	r.Close()
	m, err := r.Receive()
	require.NoError(t, err)
	assert.Equal(t, msg.Connect, m.Type)
	_, err = r.Receive()
	assert.Equal(t, ErrClosed, err)
	assert.Error(t, d.Send(msg.New(worker1, msg.Stub, msg.Data, 0)))
}

func Test_Poller(t *testing.T) {
	ctx, r := newLocal(t, 1)
	d := connectedDealer(t, ctx)
	p := NewPoller(r, d)

	t0 := time.Now()
	assert.Nil(t, p.Poll(20*time.Millisecond))
	assert.True(t, time.Since(t0) >= 20*time.Millisecond)

	go func() {
		time.Sleep(10 * time.Millisecond)
		d.Send(msg.New(worker1, msg.Stub, msg.Connect, 0))
	}()
	s := p.Poll(time.Second)
	require.NotNil(t, s)
	assert.Equal(t, Socket(r), s)
	_, err := s.Receive()
	require.NoError(t, err)

	require.NoError(t, r.Send(msg.New(msg.Stub, worker1, msg.Data, 0)))
	assert.Equal(t, Socket(d), p.Poll(time.Second))
}

func Test_PollerFairness(t *testing.T) {
	ctx, r := newLocal(t, 1)
	d := connectedDealer(t, ctx)
	p := NewPoller(r, d)
	require.NoError(t, d.Send(msg.New(worker1, msg.Stub, msg.Connect, 0)))
	require.NoError(t, d.Send(msg.New(worker1, msg.Stub, msg.Data, 1)))
	require.NoError(t, r.Send(msg.New(msg.Stub, worker1, msg.Data, 2)))
	assert.Equal(t, Socket(r), p.Poll(0))
	assert.Equal(t, Socket(d), p.Poll(0))
	assert.Equal(t, Socket(r), p.Poll(0))
}

func Test_RemoteDealer(t *testing.T) {
	ctx1 := NewContext(localhost, 7, nil)
	r := ctx1.NewRouter(10)
	require.NoError(t, r.Bind("127.0.0.1:0"))
	defer r.Close()
	addr, ok := r.Addr()
	require.True(t, ok)

	ctx2 := NewContext(plan.PeerID{IPv4: localhost.IPv4, Port: 1}, 7, nil)
	d := ctx2.NewDealer(0)
	require.NoError(t, d.Connect(addr.String()))
	defer d.Close()

	m := msg.New(worker1, server0, msg.Update, 3)
	m.AddFloats([]float32{0.5})
	require.NoError(t, d.Send(m))
	got, err := r.Receive()
	require.NoError(t, err)
	assert.Equal(t, worker1, got.Src)
	xs, err := got.NextFloats()
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5}, xs)

	require.NoError(t, r.Send(got.Reply(msg.Data)))
	reply, err := d.Receive()
	require.NoError(t, err)
	assert.Equal(t, worker1, reply.Dst)
	assert.Equal(t, 3, reply.Target)
}
