package connection

import (
	"errors"
	"io"
	"net"

	"github.com/lsds/paramserver/srcs/go/msg"
)

type Handler interface {
	Handle(conn Connection) (int, error)
}

type HandlerFunc func(Connection) (int, error)

func (f HandlerFunc) Handle(c Connection) (int, error) { return f(c) }

type MsgHandleFunc func(m *msg.Message, conn Connection)

// Stream calls handle for every message received on conn until the peer closes it.
func Stream(conn Connection, handle MsgHandleFunc) (int, error) {
	for i := 0; ; i++ {
		m, err := conn.Receive()
		if err != nil {
			if err == io.EOF || errors.Is(err, net.ErrClosed) {
				return i, nil
			}
			return i, err
		}
		handle(m, conn)
	}
}

// Echo replies every message with itself, it serves ping connections.
func Echo(conn Connection) (int, error) {
	var sendErr error
	n, err := Stream(conn, func(m *msg.Message, conn Connection) {
		if sendErr == nil {
			m.SwapAddr()
			sendErr = conn.Send(m)
		}
	})
	if err == nil {
		err = sendErr
	}
	return n, err
}
