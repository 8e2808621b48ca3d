package server

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("kuri.server")

// KuriServer is the check server wrapping a compile worker. It serves the
// Connect services over HTTP and the gRPC health protocol on its own port.
type KuriServer struct {
	worker   *CompileWorker
	results  *ResultStore
	sessions *SessionStore
	mux      *http.ServeMux
	health   *HealthServer
	http     *http.Server

	stopSweeper func()
}

// New creates a KuriServer compiling with ws.
func New(ws *Workspace) *KuriServer {
	worker := NewCompileWorker(ws)
	results := NewResultStore()
	sessions := NewSessionStore(results)

	s := &KuriServer{
		worker:   worker,
		results:  results,
		sessions: sessions,
		mux:      http.NewServeMux(),
		health:   NewHealthServer(),
	}
	s.http = &http.Server{Handler: s.mux}

	NewCheckService(worker, results, sessions).Handle(s.mux)
	NewSessionService(worker, sessions).Handle(s.mux)

	// Sweep every 5 minutes, 30-minute TTL
	s.stopSweeper = results.StartSweeper(5*time.Minute, 30*time.Minute)

	return s
}

// Handler returns the HTTP handler serving the Connect services.
func (s *KuriServer) Handler() http.Handler {
	return s.mux
}

// Sessions returns the server's session store.
func (s *KuriServer) Sessions() *SessionStore {
	return s.sessions
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *KuriServer) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Noticef("kuri check server listening on %s", lis.Addr())
	log.Infof("  Connect (CBOR): http://%s%s", lis.Addr(), CheckProcedure)
	err = s.http.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ServeHealth serves the gRPC health protocol on addr until Stop.
func (s *KuriServer) ServeHealth(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Infof("  gRPC health:    grpc://%s", lis.Addr())
	return s.health.Serve(lis)
}

// Stop shuts down the server.
func (s *KuriServer) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.http.Close()
	s.health.Stop()
	s.worker.Stop()
}
