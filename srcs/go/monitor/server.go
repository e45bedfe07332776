package monitor

import (
	"net"
	"net/http"
	"strconv"

	"github.com/lsds/paramserver/srcs/go/log"
)

type Server struct {
	srv *http.Server
}

// StartServer exposes m in text form on port.
func StartServer(port int, m Monitor) *Server {
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(port))
	s := &Server{
		srv: &http.Server{
			Handler: m,
			Addr:    addr,
		},
	}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("monitoring server on %s: %v", addr, err)
		}
	}()
	log.Infof("monitoring on %s", addr)
	return s
}

func (s *Server) Stop() {
	s.srv.Close()
}
