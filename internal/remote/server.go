package remote

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/funvibe/sable/internal/assert"
	"github.com/funvibe/sable/internal/cachemgr"
	"github.com/funvibe/sable/internal/config"
	"github.com/funvibe/sable/internal/evaluator"
	"github.com/funvibe/sable/internal/program"
	"github.com/funvibe/sable/internal/typesystem"
	"github.com/funvibe/sable/internal/uri"
	"github.com/funvibe/sable/internal/vfs"
)

type ServerOptions struct {
	// FS backs every session. Defaults to the OS file system.
	FS fs.FS
	// Config is the base configuration; OpenSession may override roots,
	// stub paths and analysis settings.
	Config       *config.Options
	Logger       *slog.Logger
	CacheManager *cachemgr.Manager
}

// Server implements the engine service. Sessions run independently;
// calls on one session are serialized.
type Server struct {
	opts ServerOptions
	log  *slog.Logger
	svc  *desc.ServiceDescriptor

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

type session struct {
	mu   sync.Mutex
	prog *program.Program
}

type handler func(ctx context.Context, in, out *dynamic.Message) error

func NewServer(opts ServerOptions) (*Server, error) {
	svc, err := engineService()
	if err != nil {
		return nil, err
	}
	if opts.FS == nil {
		opts.FS = vfs.OS()
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.CacheManager == nil {
		opts.CacheManager = cachemgr.New(cachemgr.WithHeapLimit(opts.Config.Memory.HeapLimitBytes))
	}
	return &Server{
		opts:     opts,
		log:      opts.Logger,
		svc:      svc,
		sessions: make(map[uuid.UUID]*session),
	}, nil
}

// Register adds the engine service to g.
func (s *Server) Register(g *grpc.Server) {
	handlers := s.handlers()
	sd := &grpc.ServiceDesc{
		ServiceName: s.svc.GetFullyQualifiedName(),
		HandlerType: (*interface{})(nil),
		Metadata:    s.svc.GetFile().GetName(),
	}
	for _, md := range s.svc.GetMethods() {
		h, ok := handlers[md.GetName()]
		assert.That(ok, "no handler for %s", md.GetFullyQualifiedName())
		sd.Methods = append(sd.Methods, grpc.MethodDesc{
			MethodName: md.GetName(),
			Handler:    s.unary(md, h),
		})
	}
	g.RegisterService(sd, s)
}

func (s *Server) unary(md *desc.MethodDescriptor, h handler) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := methodPath(s.svc, md.GetName())
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := dynamic.NewMessage(md.GetInputType())
		if err := dec(in); err != nil {
			return nil, err
		}
		call := func(ctx context.Context, req any) (any, error) {
			out := dynamic.NewMessage(md.GetOutputType())
			if err := h(ctx, req.(*dynamic.Message), out); err != nil {
				s.log.Debug("rpc failed", "method", md.GetName(), "err", err)
				return nil, err
			}
			return out, nil
		}
		if interceptor == nil {
			return call(ctx, in)
		}
		return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, call)
	}
}

func (s *Server) handlers() map[string]handler {
	return map[string]handler{
		"OpenSession":  s.openSession,
		"CloseSession": s.closeSession,
		"SetContents": s.withProgram(func(ctx context.Context, p *program.Program, in, out *dynamic.Message) error {
			p.SetContents(uri.URI(str(in, "uri")), i32(in, "version"), str(in, "text"), program.ContentOptions{
				IsTracked:          flag(in, "tracked"),
				ChainedPredecessor: uri.URI(str(in, "chained_predecessor")),
			})
			return nil
		}),
		"SetClosed": s.withProgram(func(ctx context.Context, p *program.Program, in, out *dynamic.Message) error {
			p.SetClosed(uri.URI(str(in, "uri")))
			return nil
		}),
		"UpdateChainedPredecessor": s.withProgram(func(ctx context.Context, p *program.Program, in, out *dynamic.Message) error {
			p.UpdateChainedPredecessor(uri.URI(str(in, "uri")), uri.URI(str(in, "predecessor")))
			return nil
		}),
		"MarkDirty": s.withProgram(func(ctx context.Context, p *program.Program, in, out *dynamic.Message) error {
			p.MarkDirty(stringURIs(strs(in, "uris")), flag(in, "even_if_unchanged"))
			return nil
		}),
		"Analyze": s.withProgram(func(ctx context.Context, p *program.Program, in, out *dynamic.Message) error {
			more, err := p.Analyze(ctx)
			out.SetFieldByName("more", more)
			return err
		}),
		"GetDiagnostics": s.withProgram(func(ctx context.Context, p *program.Program, in, out *dynamic.Message) error {
			for _, d := range p.GetDiagnostics(uri.URI(str(in, "uri"))) {
				m := nested(out, "diagnostics")
				putDiagnostic(m, d)
				out.AddRepeatedFieldByName("diagnostics", m)
			}
			return nil
		}),
		"GetTypeAt": s.withProgram(func(ctx context.Context, p *program.Program, in, out *dynamic.Message) error {
			u, line, col := uri.URI(str(in, "uri")), i32(in, "line"), i32(in, "column")
			n, t, err := p.GetTypeAtPosition(ctx, u, line, col)
			if err != nil || n == nil {
				return err
			}
			hover, err := p.GetHoverText(ctx, u, line, col)
			if err != nil {
				return err
			}
			out.SetFieldByName("found", true)
			out.SetFieldByName("type", typesystem.Print(t))
			out.SetFieldByName("hover", hover)
			return nil
		}),
		"GetSourceUnitList": s.withProgram(func(ctx context.Context, p *program.Program, in, out *dynamic.Message) error {
			for _, info := range p.GetSourceUnitList() {
				m := nested(out, "units")
				putUnit(m, info)
				out.AddRepeatedFieldByName("units", m)
			}
			return nil
		}),
		"HandleMemoryHighUsage": s.withProgram(func(ctx context.Context, p *program.Program, in, out *dynamic.Message) error {
			out.SetFieldByName("evicted", p.HandleMemoryHighUsage())
			return nil
		}),
	}
}

func (s *Server) openSession(ctx context.Context, in, out *dynamic.Message) error {
	cfg := *s.opts.Config
	if roots := strs(in, "roots"); len(roots) > 0 {
		cfg.Roots = roots
	}
	if stubs := strs(in, "stub_paths"); len(stubs) > 0 {
		cfg.StubPaths = stubs
	}
	cfg.Analysis.CheckOnlyOpenFiles = flag(in, "check_only_open_files")
	if n := i32(in, "max_work_per_call"); n > 0 {
		cfg.Analysis.MaxWorkPerCall = n
	}
	if err := cfg.Validate(); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	id := uuid.New()
	p := program.New(program.Options{
		FS:           s.opts.FS,
		Config:       &cfg,
		Logger:       s.log.With("session", id.String()),
		CacheManager: s.opts.CacheManager,
	})
	s.mu.Lock()
	s.sessions[id] = &session{prog: p}
	n := len(s.sessions)
	s.mu.Unlock()

	s.log.Info("session opened", "session", id.String(), "sessions", n)
	out.SetFieldByName("session", id.String())
	return nil
}

func (s *Server) closeSession(ctx context.Context, in, out *dynamic.Message) error {
	id, err := sessionID(in)
	if err != nil {
		return err
	}
	s.mu.Lock()
	sess := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if sess == nil {
		return status.Errorf(codes.NotFound, "unknown session %s", id)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.prog.Close()
	s.log.Info("session closed", "session", id.String())
	return nil
}

func sessionID(in *dynamic.Message) (uuid.UUID, error) {
	id, err := uuid.Parse(str(in, "session"))
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "bad session id: %v", err)
	}
	return id, nil
}

func (s *Server) lookup(in *dynamic.Message) (*session, error) {
	id, err := sessionID(in)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[id]
	if sess == nil {
		return nil, status.Errorf(codes.NotFound, "unknown session %s", id)
	}
	return sess, nil
}

// withProgram runs fn on the session's program while holding the session
// lock. Engine failures become gRPC status errors.
func (s *Server) withProgram(fn func(ctx context.Context, p *program.Program, in, out *dynamic.Message) error) handler {
	return func(ctx context.Context, in, out *dynamic.Message) (err error) {
		sess, err := s.lookup(in)
		if err != nil {
			return err
		}
		sess.mu.Lock()
		defer sess.mu.Unlock()
		defer func() { err = toStatus(err) }()
		defer assert.Recover(&err)
		return fn(ctx, sess.prog, in, out)
	}
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var ie *assert.InternalError
	switch {
	case errors.As(err, &ie):
		return status.Error(codes.Internal, ie.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, evaluator.ErrCanceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Unknown, err.Error())
}

// Sessions returns the number of open sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close closes every session.
func (s *Server) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[uuid.UUID]*session)
	s.mu.Unlock()
	for id, sess := range sessions {
		sess.mu.Lock()
		sess.prog.Close()
		sess.mu.Unlock()
		s.log.Debug("session closed", "session", id.String())
	}
}
