package codec

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gnssanalyze/rtk-advisor/internal/engine"
	"github.com/gnssanalyze/rtk-advisor/internal/logging"
)

// #region service

// ClassifierServer is the server API of the classifier service.
type ClassifierServer interface {
	Import(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Call(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterClassifierServer registers srv with s.
func RegisterClassifierServer(s grpc.ServiceRegistrar, srv ClassifierServer) {
	s.RegisterService(&classifierServiceDesc, srv)
}

var classifierServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ClassifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Import", Handler: unaryHandler(methodImport, ClassifierServer.Import)},
		{MethodName: "Call", Handler: unaryHandler(methodCall, ClassifierServer.Call)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "advisory/v1/classifier.proto",
}

func unaryHandler(fullMethod string, fn func(ClassifierServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(srv.(ClassifierServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return fn(srv.(ClassifierServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// #endregion service

// #region server

// Server serves a started engine.Runtime. Modules are imported on first
// request and kept until Close.
type Server struct {
	rt  engine.Runtime
	log logging.Logger

	mu      sync.Mutex
	modules map[string]engine.Module
}

// NewServer wraps rt, which must already be started.
func NewServer(rt engine.Runtime, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{rt: rt, log: log, modules: make(map[string]engine.Module)}
}

// Import resolves a module and reports its callable entry points.
func (s *Server) Import(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := req.Fields["module"].GetStringValue()
	mod, err := s.module(ctx, name, decodeStrings(req.Fields["search_paths"]))
	if err != nil {
		return nil, err
	}

	var available []string
	for _, ep := range engine.EntryPoints {
		if c, ok := mod.Lookup(ep); ok && c != nil {
			available = append(available, string(ep))
			c.Release()
		}
	}
	s.log.Info(ctx, "module imported", logging.String("module", name), logging.Int("entry_points", len(available)))
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"entry_points": stringList(available),
	}}, nil
}

// Call invokes one entry point. Failures inside the entry point map to
// codes.Aborted.
func (s *Server) Call(ctx context.Context, req *structpb.Struct) (resp *structpb.Struct, err error) {
	name := req.Fields["module"].GetStringValue()
	ep := engine.EntryPoint(req.Fields["entry_point"].GetStringValue())

	s.mu.Lock()
	mod, ok := s.modules[name]
	s.mu.Unlock()
	if !ok {
		return nil, status.Errorf(codes.FailedPrecondition, "module %q not imported", name)
	}
	c, ok := mod.Lookup(ep)
	if !ok || c == nil {
		return nil, status.Errorf(codes.NotFound, "entry point %q not found", ep)
	}
	defer c.Release()

	args, err := decodeArgs(req.Fields["args"])
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Warn(ctx, "entry point panicked", logging.String("entry_point", string(ep)), logging.Any("panic", r))
			resp, err = nil, status.Errorf(codes.Aborted, "panic: %v", r)
		}
	}()

	res, err := c.Call(ctx, args...)
	if err != nil {
		s.log.Debug(ctx, "entry point failed", logging.String("entry_point", string(ep)), logging.Err(err))
		return nil, status.Error(codes.Aborted, err.Error())
	}
	if res == nil {
		return nil, status.Errorf(codes.Aborted, "%s returned no result", ep)
	}
	defer res.Release()

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"value": encodeValue(resultValue(res)),
	}}, nil
}

// Close releases every imported module.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for name, mod := range s.modules {
		if err := mod.Close(); err != nil && first == nil {
			first = fmt.Errorf("close module %s: %w", name, err)
		}
	}
	s.modules = make(map[string]engine.Module)
	return first
}

func (s *Server) module(ctx context.Context, name string, searchPaths []string) (engine.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mod, ok := s.modules[name]; ok {
		return mod, nil
	}
	mod, err := s.rt.Import(ctx, name, searchPaths)
	if err != nil {
		s.log.Warn(ctx, "module import failed", logging.String("module", name), logging.Err(err))
		return nil, status.Errorf(codes.NotFound, "import %s: %v", name, err)
	}
	s.modules[name] = mod
	return mod, nil
}

// resultValue recovers the primitive behind a Result. Results that do not
// expose their value are tried as int, then float.
func resultValue(res engine.Result) engine.Value {
	if v, ok := res.(interface{ Value() engine.Value }); ok {
		return v.Value()
	}
	if n, err := res.Int(); err == nil {
		return engine.Int(n)
	}
	if f, err := res.Float(); err == nil {
		return engine.Float(f)
	}
	return engine.None()
}

// #endregion server
