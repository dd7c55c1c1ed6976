// Package codec carries the classification runtime over gRPC. The client
// side is an engine.Runtime; the server side exposes any engine.Runtime.
// Messages are google.protobuf.Struct values, so no generated stubs are
// needed on either side.
package codec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gnssanalyze/rtk-advisor/internal/engine"
)

// #region client-struct

// Runtime is an engine.Runtime backed by a remote classifier service.
type Runtime struct {
	addr     string
	dialOpts []grpc.DialOption
	backoff  time.Duration

	mu   sync.Mutex
	conn *grpc.ClientConn
}

// NewRuntime prepares a runtime for the service at addr. Extra dial options
// are appended after insecure transport credentials.
func NewRuntime(addr string, opts ...grpc.DialOption) *Runtime {
	return &Runtime{
		addr:     addr,
		dialOpts: append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...),
		backoff:  defaultBackoff,
	}
}

// #endregion client-struct

// #region runtime

// Start creates the client connection. The connection is established lazily
// by the first RPC.
func (r *Runtime) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return nil
	}
	conn, err := grpc.NewClient(r.addr, r.dialOpts...)
	if err != nil {
		return fmt.Errorf("grpc dial %s: %w", r.addr, err)
	}
	r.conn = conn
	return nil
}

// Import asks the service to load module. Unavailable services are retried.
func (r *Runtime) Import(ctx context.Context, module string, searchPaths []string) (engine.Module, error) {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return nil, engine.ErrNotStarted
	}

	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"module":       structpb.NewStringValue(module),
		"search_paths": stringList(searchPaths),
	}}
	resp := new(structpb.Struct)
	err := withRetry(ctx, r.backoff, func() error {
		return conn.Invoke(ctx, methodImport, req, resp)
	})
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("import %s: %w", module, engine.ErrModuleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("import rpc: %w", err)
	}

	m := &remoteModule{conn: conn, name: module, entries: make(map[engine.EntryPoint]bool)}
	for _, name := range decodeStrings(resp.Fields["entry_points"]) {
		m.entries[engine.EntryPoint(name)] = true
	}
	return m, nil
}

// Close shuts down the gRPC connection.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

// #endregion runtime

// #region module

type remoteModule struct {
	conn    *grpc.ClientConn
	name    string
	entries map[engine.EntryPoint]bool
}

func (m *remoteModule) Lookup(ep engine.EntryPoint) (engine.Callable, bool) {
	if !m.entries[ep] {
		return nil, false
	}
	return &remoteCallable{module: m, ep: ep}, true
}

func (m *remoteModule) Close() error { return nil }

type remoteCallable struct {
	module *remoteModule
	ep     engine.EntryPoint
}

// ErrRemote wraps failures raised inside the remote entry point.
var ErrRemote = errors.New("remote call failed")

func (c *remoteCallable) Call(ctx context.Context, args ...engine.Value) (engine.Result, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"module":      structpb.NewStringValue(c.module.name),
		"entry_point": structpb.NewStringValue(string(c.ep)),
		"args":        encodeArgs(args),
	}}
	resp := new(structpb.Struct)
	if err := c.module.conn.Invoke(ctx, methodCall, req, resp); err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.Aborted {
			return nil, fmt.Errorf("%w: %s: %s", ErrRemote, c.ep, st.Message())
		}
		return nil, fmt.Errorf("call rpc %s: %w", c.ep, err)
	}

	v, err := decodeValue(resp.Fields["value"])
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", c.ep, err)
	}
	return engine.NewResult(v, nil), nil
}

func (c *remoteCallable) Release() {}

// #endregion module
