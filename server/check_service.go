package server

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"

	"github.com/diekev/delsace-sub011/compiler"
	"github.com/diekev/delsace-sub011/compiler/wire"
)

// Procedure paths of the kuri.v1 services.
const (
	CheckProcedure          = "/kuri.v1.CheckService/Check"
	TokensProcedure         = "/kuri.v1.CheckService/Tokens"
	InterfaceProcedure      = "/kuri.v1.CheckService/Interface"
	CreateSessionProcedure  = "/kuri.v1.SessionService/CreateSession"
	DestroySessionProcedure = "/kuri.v1.SessionService/DestroySession"
	CompleteProcedure       = "/kuri.v1.SessionService/Complete"
)

// CheckService implements the CheckService Connect handler.
type CheckService struct {
	worker   *CompileWorker
	results  *ResultStore
	sessions *SessionStore
}

// NewCheckService creates a CheckService.
func NewCheckService(worker *CompileWorker, results *ResultStore, sessions *SessionStore) *CheckService {
	return &CheckService{
		worker:   worker,
		results:  results,
		sessions: sessions,
	}
}

// Check compiles a module and reports its diagnostics, or its interface
// when it is valid.
func (s *CheckService) Check(
	ctx context.Context,
	req *connect.Request[CheckRequest],
) (*connect.Response[CheckResponse], error) {
	msg := req.Msg
	if msg.Module == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("module is required"))
	}

	var session *Session
	if msg.SessionID != "" {
		var ok bool
		if session, ok = s.sessions.Get(msg.SessionID); !ok {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", msg.SessionID))
		}
	}

	result, err := s.worker.Do(func(ws *Workspace) interface{} {
		out := ws.check(ctx, session, msg)
		return ws.response(ctx, out, s.results, msg.SessionID)
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	resp := result.(*CheckResponse)
	if !resp.Valid {
		log.Debugf("check %s: %d diagnostics", msg.Module, len(resp.Diagnostics))
	}
	return connect.NewResponse(resp), nil
}

// Tokens returns the token stream of a source text. Tokenizing touches no
// shared state, so it does not go through the worker.
func (s *CheckService) Tokens(
	ctx context.Context,
	req *connect.Request[TokensRequest],
) (*connect.Response[TokensResponse], error) {
	toks, err := compiler.Tokenize(req.Msg.Source, 1)
	if err != nil {
		ds := diagnosticMessages(err)
		return connect.NewResponse(&TokensResponse{Diagnostic: &ds[0]}), nil
	}

	resp := &TokensResponse{Tokens: make([]Token, len(toks))}
	for i, t := range toks {
		resp.Tokens[i] = Token{Kind: t.Kind.String(), Text: t.Text, Line: t.Line, Column: t.Column}
	}
	return connect.NewResponse(resp), nil
}

// Interface returns the canonical CBOR interface stored by a check.
func (s *CheckService) Interface(
	ctx context.Context,
	req *connect.Request[InterfaceRequest],
) (*connect.Response[InterfaceResponse], error) {
	if req.Msg.CompileID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("compile_id is required"))
	}

	iface, ok := s.results.Lookup(req.Msg.CompileID)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("compilation %q not found", req.Msg.CompileID))
	}

	data, err := wire.MarshalInterface(iface)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&InterfaceResponse{Data: data}), nil
}

// Handle registers the service's procedures on mux.
func (s *CheckService) Handle(mux *http.ServeMux, opts ...connect.HandlerOption) {
	opts = append([]connect.HandlerOption{connect.WithCodec(cborCodec{})}, opts...)
	mux.Handle(CheckProcedure, connect.NewUnaryHandler(CheckProcedure, s.Check, opts...))
	mux.Handle(TokensProcedure, connect.NewUnaryHandler(TokensProcedure, s.Tokens, opts...))
	mux.Handle(InterfaceProcedure, connect.NewUnaryHandler(InterfaceProcedure, s.Interface, opts...))
}

// CheckClient calls the kuri.v1 services of a running server.
type CheckClient struct {
	check          *connect.Client[CheckRequest, CheckResponse]
	tokens         *connect.Client[TokensRequest, TokensResponse]
	iface          *connect.Client[InterfaceRequest, InterfaceResponse]
	createSession  *connect.Client[CreateSessionRequest, CreateSessionResponse]
	destroySession *connect.Client[DestroySessionRequest, DestroySessionResponse]
	complete       *connect.Client[CompleteRequest, CompleteResponse]
}

// NewCheckClient creates a client for the server at baseURL, such as
// "http://127.0.0.1:7470".
func NewCheckClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *CheckClient {
	opts = append([]connect.ClientOption{connect.WithCodec(cborCodec{})}, opts...)
	return &CheckClient{
		check:          connect.NewClient[CheckRequest, CheckResponse](httpClient, baseURL+CheckProcedure, opts...),
		tokens:         connect.NewClient[TokensRequest, TokensResponse](httpClient, baseURL+TokensProcedure, opts...),
		iface:          connect.NewClient[InterfaceRequest, InterfaceResponse](httpClient, baseURL+InterfaceProcedure, opts...),
		createSession:  connect.NewClient[CreateSessionRequest, CreateSessionResponse](httpClient, baseURL+CreateSessionProcedure, opts...),
		destroySession: connect.NewClient[DestroySessionRequest, DestroySessionResponse](httpClient, baseURL+DestroySessionProcedure, opts...),
		complete:       connect.NewClient[CompleteRequest, CompleteResponse](httpClient, baseURL+CompleteProcedure, opts...),
	}
}

// Check calls CheckService.Check.
func (c *CheckClient) Check(ctx context.Context, req *CheckRequest) (*CheckResponse, error) {
	resp, err := c.check.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Tokens calls CheckService.Tokens.
func (c *CheckClient) Tokens(ctx context.Context, source string) (*TokensResponse, error) {
	resp, err := c.tokens.CallUnary(ctx, connect.NewRequest(&TokensRequest{Source: source}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Interface calls CheckService.Interface and decodes the result.
func (c *CheckClient) Interface(ctx context.Context, compileID string) (*wire.Interface, error) {
	resp, err := c.iface.CallUnary(ctx, connect.NewRequest(&InterfaceRequest{CompileID: compileID}))
	if err != nil {
		return nil, err
	}
	return wire.UnmarshalInterface(resp.Msg.Data)
}

// CreateSession calls SessionService.CreateSession.
func (c *CheckClient) CreateSession(ctx context.Context, name string) (string, error) {
	resp, err := c.createSession.CallUnary(ctx, connect.NewRequest(&CreateSessionRequest{Name: name}))
	if err != nil {
		return "", err
	}
	return resp.Msg.SessionID, nil
}

// DestroySession calls SessionService.DestroySession.
func (c *CheckClient) DestroySession(ctx context.Context, id string) error {
	_, err := c.destroySession.CallUnary(ctx, connect.NewRequest(&DestroySessionRequest{SessionID: id}))
	return err
}

// Complete calls SessionService.Complete.
func (c *CheckClient) Complete(ctx context.Context, sessionID, prefix string) ([]CompletionItem, error) {
	resp, err := c.complete.CallUnary(ctx, connect.NewRequest(&CompleteRequest{SessionID: sessionID, Prefix: prefix}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Items, nil
}
