package server

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
)

// maxCompletions caps completion responses.
const maxCompletions = 100

// SessionService implements the SessionService Connect handler.
type SessionService struct {
	worker   *CompileWorker
	sessions *SessionStore
}

// NewSessionService creates a SessionService.
func NewSessionService(worker *CompileWorker, sessions *SessionStore) *SessionService {
	return &SessionService{
		worker:   worker,
		sessions: sessions,
	}
}

// CreateSession creates a new workspace session.
func (s *SessionService) CreateSession(
	ctx context.Context,
	req *connect.Request[CreateSessionRequest],
) (*connect.Response[CreateSessionResponse], error) {
	session := s.sessions.Create(req.Msg.Name)
	return connect.NewResponse(&CreateSessionResponse{SessionID: session.ID}), nil
}

// DestroySession destroys a session and releases its compilation results.
func (s *SessionService) DestroySession(
	ctx context.Context,
	req *connect.Request[DestroySessionRequest],
) (*connect.Response[DestroySessionResponse], error) {
	if req.Msg.SessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session_id is required"))
	}

	if _, ok := s.sessions.Get(req.Msg.SessionID); !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.Msg.SessionID))
	}

	s.sessions.Destroy(req.Msg.SessionID)
	return connect.NewResponse(&DestroySessionResponse{}), nil
}

// Complete returns keywords and the names declared by the session's
// modules that start with the given prefix.
func (s *SessionService) Complete(
	ctx context.Context,
	req *connect.Request[CompleteRequest],
) (*connect.Response[CompleteResponse], error) {
	prefix := req.Msg.Prefix
	if prefix == "" {
		return connect.NewResponse(&CompleteResponse{}), nil
	}

	session, ok := s.sessions.Get(req.Msg.SessionID)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.Msg.SessionID))
	}

	result, err := s.worker.Do(func(ws *Workspace) interface{} {
		return completions(session.ctx, prefix)
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	items := result.([]CompletionItem)
	if len(items) > maxCompletions {
		items = items[:maxCompletions]
	}
	return connect.NewResponse(&CompleteResponse{Items: items}), nil
}

// Handle registers the service's procedures on mux.
func (s *SessionService) Handle(mux *http.ServeMux, opts ...connect.HandlerOption) {
	opts = append([]connect.HandlerOption{connect.WithCodec(cborCodec{})}, opts...)
	mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, s.CreateSession, opts...))
	mux.Handle(DestroySessionProcedure, connect.NewUnaryHandler(DestroySessionProcedure, s.DestroySession, opts...))
	mux.Handle(CompleteProcedure, connect.NewUnaryHandler(CompleteProcedure, s.Complete, opts...))
}
