package server

import (
	"testing"

	"github.com/lsds/paramserver/srcs/go/msg"
	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/lsds/paramserver/srcs/go/rchannel/connection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ServeEcho(t *testing.T) {
	self := plan.PeerID{IPv4: plan.MustParseIPv4("127.0.0.1")}
	s := New(self, connection.HandlerFunc(connection.Echo))
	s.SetToken(3)
	require.NoError(t, s.Start())
	defer s.Close()
	assert.NotZero(t, s.Self().Port)

	client := plan.PeerID{IPv4: self.IPv4, Port: 1}
	conn, err := connection.Open(s.Self(), client, connection.ConnMessage, 3)
	require.NoError(t, err)
	defer conn.Close()

	src := msg.Addr{Group: 0, ID: 1, Role: msg.RoleWorkerParam}
	m := msg.New(src, msg.Stub, msg.Get, 5)
	m.AddString("x")
	require.NoError(t, conn.Send(m))
	r, err := conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, src, r.Dst)
	assert.Equal(t, msg.Stub, r.Src)
	assert.Equal(t, "x", string(r.Frame(0)))
}

func Test_InvalidToken(t *testing.T) {
	self := plan.PeerID{IPv4: plan.MustParseIPv4("127.0.0.1")}
	s := New(self, connection.HandlerFunc(connection.Echo))
	s.SetToken(3)
	require.NoError(t, s.Start())
	defer s.Close()

	_, err := connection.Open(s.Self(), self, connection.ConnMessage, 4)
	assert.Error(t, err)
}
