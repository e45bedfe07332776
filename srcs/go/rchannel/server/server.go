package server

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/lsds/paramserver/srcs/go/log"
	"github.com/lsds/paramserver/srcs/go/plan"
	"github.com/lsds/paramserver/srcs/go/rchannel/connection"
)

// Server accepts connections from remote processes and hands each one to the handler.
type Server struct {
	listener net.Listener
	self     plan.PeerID
	handler  connection.Handler
	token    uint32
	wg       sync.WaitGroup
}

func New(self plan.PeerID, handler connection.Handler) *Server {
	return &Server{
		self:    self,
		handler: handler,
	}
}

func (s *Server) SetToken(token uint32) {
	atomic.StoreUint32(&s.token, token)
}

// Listen binds all interfaces on the port of self.
// With port 0 a free port is chosen and Self reports it.
func (s *Server) Listen() error {
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(int(s.self.Port)))
	log.Debugf("listening: %s", addr)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = l
	if s.self.Port == 0 {
		s.self.Port = uint16(l.Addr().(*net.TCPAddr).Port)
	}
	return nil
}

func (s *Server) Self() plan.PeerID {
	return s.self
}

func (s *Server) accept() (connection.Connection, error) {
	tcpConn, err := s.listener.Accept()
	if err != nil {
		return nil, err
	}
	conn, err := connection.UpgradeFrom(tcpConn, s.self, atomic.LoadUint32(&s.token))
	if err != nil {
		tcpConn.Close()
		return nil, err
	}
	return conn, nil
}

func (s *Server) Serve() {
	for {
		conn, err := s.accept()
		if err != nil {
			if isNetClosingErr(err) {
				break
			}
			log.Infof("Accept failed: %v", err)
			continue
		}
		s.wg.Add(1)
		go s.handle(conn)
	}
}

// Start listens and serves in background.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	go s.Serve()
	return nil
}

// Close stops accepting. Connections already accepted stay open until their peers close them.
func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
	log.Debugf("Server Closed")
}

// Wait waits for all accepted connections to be handled.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) handle(conn connection.Connection) {
	defer s.wg.Done()
	defer conn.Close()
	if n, err := s.handler.Handle(conn); err != nil {
		log.Warnf("handle conn err: %v after handled %d messages", err, n)
	}
}

// check if error is internal/poll.ErrNetClosing
func isNetClosingErr(err error) bool {
	const msg = `use of closed network connection`
	if e, ok := err.(*net.OpError); ok {
		return msg == e.Err.Error()
	}
	return false
}
