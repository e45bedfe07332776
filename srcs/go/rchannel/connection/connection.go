package connection

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/lsds/paramserver/srcs/go/config"
	"github.com/lsds/paramserver/srcs/go/log"
	"github.com/lsds/paramserver/srcs/go/msg"
	"github.com/lsds/paramserver/srcs/go/plan"
)

// Connection is a duplex framed message stream between two processes.
// Send and Receive may be called concurrently with each other.
type Connection interface {
	io.Closer

	Type() ConnType
	Src() plan.PeerID
	Dest() plan.PeerID
	Send(m *msg.Message) error
	Receive() (*msg.Message, error)
}

// UpgradeFrom performs the server side handshake on an accepted connection.
func UpgradeFrom(conn net.Conn, self plan.PeerID, token uint32) (Connection, error) {
	var ch connectionHeader
	if err := ch.ReadFrom(conn); err != nil {
		return nil, err
	}
	if t := ConnType(ch.Type); t != ConnPing && t != ConnMessage {
		return nil, ErrInvalidConnectionType
	}
	ack := connectionACK{
		Token: token,
	}
	if err := ack.WriteTo(conn); err != nil {
		return nil, err
	}
	return newTCPConnection(conn, plan.PeerID{IPv4: ch.SrcIPv4, Port: ch.SrcPort}, self, ConnType(ch.Type)), nil
}

var errInvalidToken = errors.New("invalid token")

// Open dials remote and performs the client side handshake.
// Message connections retry up to config.ConnRetryCount times.
func Open(remote, local plan.PeerID, t ConnType, token uint32) (Connection, error) {
	init := func() (net.Conn, error) {
		conn, err := net.Dial("tcp", remote.String())
		if err != nil {
			return nil, err
		}
		h := connectionHeader{
			Type:    uint16(t),
			SrcIPv4: local.IPv4,
			SrcPort: local.Port,
		}
		if err := h.WriteTo(conn); err != nil {
			conn.Close()
			return nil, err
		}
		var ack connectionACK
		if err := ack.ReadFrom(conn); err != nil {
			conn.Close()
			return nil, err
		}
		if t == ConnMessage && ack.Token != token {
			conn.Close()
			return nil, errInvalidToken
		}
		return conn, nil
	}
	var initRetry int
	if t == ConnMessage {
		initRetry = config.ConnRetryCount
	}
	t0 := time.Now()
	for i := 0; i <= initRetry; i++ {
		conn, err := init()
		if err == nil {
			log.Debugf("%s connection to #<%s> established after %d trials, took %s", t, remote, i+1, time.Since(t0))
			return newTCPConnection(conn, local, remote, t), nil
		}
		if err == errInvalidToken {
			return nil, err
		}
		log.Debugf("failed to establish connection to #<%s> for %d times: %v", remote, i+1, err)
		if i < initRetry {
			time.Sleep(config.ConnRetryPeriod)
		}
	}
	return nil, errCantEstablishConnection
}

var errCantEstablishConnection = errors.New("can't establish connection")

type tcpConnection struct {
	src, dest plan.PeerID
	connType  ConnType
	conn      net.Conn

	wmu sync.Mutex
	w   *bufio.Writer

	rmu sync.Mutex
	r   *bufio.Reader
}

func newTCPConnection(conn net.Conn, src, dest plan.PeerID, t ConnType) *tcpConnection {
	return &tcpConnection{
		src:      src,
		dest:     dest,
		connType: t,
		conn:     conn,
		w:        bufio.NewWriter(conn),
		r:        bufio.NewReader(conn),
	}
}

func (c *tcpConnection) Type() ConnType {
	return c.connType
}

func (c *tcpConnection) Src() plan.PeerID {
	return c.src
}

func (c *tcpConnection) Dest() plan.PeerID {
	return c.dest
}

func (c *tcpConnection) Send(m *msg.Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := m.Encode(c.w); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *tcpConnection) Receive() (*msg.Message, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	var m msg.Message
	if err := m.Decode(c.r); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *tcpConnection) Close() error {
	return c.conn.Close()
}
