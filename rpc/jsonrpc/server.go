package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nel349/midnight-ledger-reader/ledger"
	"github.com/nel349/midnight-ledger-reader/logging"
	"github.com/nel349/midnight-ledger-reader/state"
	"github.com/nel349/midnight-ledger-reader/types"
)

// maxBodyBytes bounds a single request body.
const maxBodyBytes = 4 << 20

// ServerConfig configures the JSON-RPC server.
type ServerConfig struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is a JSON-RPC 2.0 server over the ledger query service.
type Server struct {
	svc    *ledger.Service
	config ServerConfig
	log    *logging.Logger

	httpServer *http.Server
	listener   net.Listener

	methods map[string]MethodHandler
	running atomic.Bool
}

// MethodHandler handles a specific RPC method.
type MethodHandler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// NewServer creates a new JSON-RPC server.
func NewServer(svc *ledger.Service, config ServerConfig, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 30 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 30 * time.Second
	}
	s := &Server{
		svc:     svc,
		config:  config,
		log:     log.WithComponent("rpc.jsonrpc"),
		methods: make(map[string]MethodHandler),
	}
	s.registerMethods()
	return s
}

// registerMethods registers all RPC methods.
func (s *Server) registerMethods() {
	s.methods["health"] = s.handleHealth
	s.methods["ledger_state"] = s.handleLedgerState
	s.methods["read_field"] = s.handleReadField
	s.methods["collection_member"] = s.handleCollectionMember
	s.methods["collection_lookup"] = s.handleCollectionLookup
	s.methods["call_pure"] = s.handleCallPure
	s.methods["call_pure_batch"] = s.handleCallPureBatch
}

// Start starts the JSON-RPC server.
func (s *Server) Start() error {
	if s.running.Swap(true) {
		return nil // Already running
	}

	addr := strings.TrimPrefix(s.config.ListenAddr, "tcp://")
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHTTP)

	s.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("rpc server stopped", logging.Error(err))
		}
	}()

	s.log.Info("rpc server listening", logging.Method(listener.Addr().String()))
	return nil
}

// Stop stops the JSON-RPC server.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil // Already stopped
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}
	return nil
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleHTTP handles HTTP requests.
func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, nil, ErrParseError)
		return
	}

	// Check if batch request
	if len(body) > 0 && body[0] == '[' {
		s.handleBatch(w, r.Context(), body)
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, nil, ErrParseError)
		return
	}

	resp := s.processRequest(r.Context(), &req)
	s.writeResponse(w, resp)
}

// handleBatch handles batch requests.
func (s *Server) handleBatch(w http.ResponseWriter, ctx context.Context, body []byte) {
	var batch BatchRequest
	if err := json.Unmarshal(body, &batch); err != nil {
		s.writeError(w, nil, ErrParseError)
		return
	}

	if len(batch) == 0 {
		s.writeError(w, nil, ErrInvalidRequest)
		return
	}

	responses := make(BatchResponse, len(batch))
	for i, req := range batch {
		responses[i] = *s.processRequest(ctx, &req)
	}

	data, _ := json.Marshal(responses)
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// processRequest processes a single JSON-RPC request.
func (s *Server) processRequest(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != "2.0" {
		return NewErrorResponse(req.ID, ErrInvalidRequest)
	}

	handler, ok := s.methods[req.Method]
	if !ok {
		return NewErrorResponse(req.ID, ErrMethodNotFound)
	}

	result, err := handler(ctx, req.Params)
	if err != nil {
		return NewErrorResponse(req.ID, toRPCError(err))
	}

	resp, err := NewResponse(req.ID, result)
	if err != nil {
		return NewErrorResponse(req.ID, ErrInternalError)
	}
	return resp
}

// toRPCError maps domain errors to application error codes.
func toRPCError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	switch {
	case errors.Is(err, types.ErrContractNotFound):
		return NewErrorWithData(CodeContractNotFound, "contract not found", err.Error())
	case errors.Is(err, types.ErrFieldNotFound):
		return NewErrorWithData(CodeFieldNotFound, "field not found", err.Error())
	case errors.Is(err, types.ErrMalformedKey):
		return NewErrorWithData(CodeMalformedKey, "malformed key", err.Error())
	case errors.Is(err, types.ErrNotACollection):
		return NewErrorWithData(CodeNotACollection, "field is not a collection", err.Error())
	case errors.Is(err, types.ErrInvalidAddress):
		return NewErrorWithData(CodeInvalidParams, "invalid contract address", err.Error())
	default:
		return NewErrorWithData(CodeInternalError, err.Error(), nil)
	}
}

// writeResponse writes a JSON-RPC response.
func (s *Server) writeResponse(w http.ResponseWriter, resp *Response) {
	data, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// writeError writes a JSON-RPC error response.
func (s *Server) writeError(w http.ResponseWriter, id interface{}, err *Error) {
	s.writeResponse(w, NewErrorResponse(id, err))
}

// Method handlers

func (s *Server) handleHealth(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return map[string]string{"status": "ok"}, nil
}

type ledgerStateParams struct {
	Address string `json:"address"`
}

func (s *Server) handleLedgerState(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ledgerStateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, ErrInvalidParams
	}

	st, err := s.svc.ReadLedgerState(ctx, types.ContractAddress(p.Address))
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, nil
	}

	fields := make(map[string]state.Encoded, st.Record.Len())
	for _, name := range st.Record.Fields() {
		v, _ := st.Record.Get(name)
		fields[name] = v.Encode()
	}
	return map[string]interface{}{
		"fields":      fields,
		"fieldOrder":  st.Record.Fields(),
		"blockHeight": st.BlockHeight,
		"timestamp":   st.Timestamp,
	}, nil
}

type readFieldParams struct {
	Address string `json:"address"`
	Field   string `json:"field"`
}

func (s *Server) handleReadField(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p readFieldParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, ErrInvalidParams
	}

	v, err := s.svc.ReadField(ctx, types.ContractAddress(p.Address), p.Field)
	if err != nil {
		return nil, err
	}
	return v.Encode(), nil
}

type collectionParams struct {
	Address string `json:"address"`
	Field   string `json:"field"`
	Key     string `json:"key"`
}

func (s *Server) handleCollectionMember(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p collectionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, ErrInvalidParams
	}

	key, err := state.ParseKey(p.Key)
	if err != nil {
		return nil, err
	}
	member, err := s.svc.CollectionHasMember(ctx, types.ContractAddress(p.Address), p.Field, key.Bytes())
	if err != nil {
		return nil, err
	}
	return map[string]bool{"member": member}, nil
}

func (s *Server) handleCollectionLookup(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p collectionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, ErrInvalidParams
	}

	key, err := state.ParseKey(p.Key)
	if err != nil {
		return nil, err
	}
	v, found, err := s.svc.CollectionLookup(ctx, types.ContractAddress(p.Address), p.Field, key.Bytes())
	if err != nil {
		return nil, err
	}
	if !found {
		return map[string]interface{}{"found": false}, nil
	}
	return map[string]interface{}{"found": true, "value": v.Encode()}, nil
}

type callPureParams struct {
	Address  string          `json:"address"`
	Function string          `json:"function"`
	Args     []state.Encoded `json:"args,omitempty"`
}

func decodeArgs(encoded []state.Encoded) ([]state.Value, error) {
	args := make([]state.Value, 0, len(encoded))
	for _, enc := range encoded {
		v, err := state.Decode(enc)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

func (s *Server) handleCallPure(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p callPureParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, ErrInvalidParams
	}

	args, err := decodeArgs(p.Args)
	if err != nil {
		return nil, NewErrorWithData(CodeInvalidParams, "invalid argument encoding", err.Error())
	}
	v, found, err := s.svc.CallPureFunction(ctx, types.ContractAddress(p.Address), p.Function, args)
	if err != nil {
		return nil, err
	}
	if !found {
		return map[string]interface{}{"found": false}, nil
	}
	return map[string]interface{}{"found": true, "value": v.Encode()}, nil
}

type callPureBatchParams struct {
	Address string `json:"address"`
	Calls   []struct {
		Function string          `json:"function"`
		Args     []state.Encoded `json:"args,omitempty"`
	} `json:"calls"`
}

func (s *Server) handleCallPureBatch(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p callPureBatchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, ErrInvalidParams
	}

	calls := make([]ledger.PureCall, 0, len(p.Calls))
	for _, c := range p.Calls {
		args, err := decodeArgs(c.Args)
		if err != nil {
			return nil, NewErrorWithData(CodeInvalidParams, "invalid argument encoding", err.Error())
		}
		calls = append(calls, ledger.PureCall{Name: c.Function, Args: args})
	}

	results, err := s.svc.CallPureFunctionsBatch(ctx, types.ContractAddress(p.Address), calls)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, 0, len(results))
	for _, res := range results {
		out = append(out, map[string]interface{}{
			"function": res.Name,
			"found":    res.Found,
			"value":    res.Value.Encode(),
		})
	}
	return out, nil
}
