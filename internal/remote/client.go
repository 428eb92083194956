package remote

import (
	"context"
	"fmt"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"

	"github.com/funvibe/sable/internal/diagnostics"
	"github.com/funvibe/sable/internal/program"
	"github.com/funvibe/sable/internal/uri"
)

// Client talks to a remote engine.
type Client struct {
	conn grpc.ClientConnInterface
	svc  *desc.ServiceDescriptor
}

func NewClient(conn grpc.ClientConnInterface) (*Client, error) {
	svc, err := engineService()
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, svc: svc}, nil
}

// invoke calls method with a request filled in by fill.
func (c *Client) invoke(ctx context.Context, method string, fill func(req *dynamic.Message)) (*dynamic.Message, error) {
	md := c.svc.FindMethodByName(method)
	if md == nil {
		return nil, fmt.Errorf("method %s not found in %s", method, ServiceName)
	}
	req := dynamic.NewMessage(md.GetInputType())
	if fill != nil {
		fill(req)
	}
	resp := dynamic.NewMessage(md.GetOutputType())
	if err := c.conn.Invoke(ctx, methodPath(c.svc, method), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

type SessionOptions struct {
	Roots              []string
	StubPaths          []string
	CheckOnlyOpenFiles bool
	MaxWorkPerCall     int
}

// OpenSession creates a program on the server.
func (c *Client) OpenSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	resp, err := c.invoke(ctx, "OpenSession", func(req *dynamic.Message) {
		addStrs(req, "roots", opts.Roots)
		addStrs(req, "stub_paths", opts.StubPaths)
		req.SetFieldByName("check_only_open_files", opts.CheckOnlyOpenFiles)
		req.SetFieldByName("max_work_per_call", int32(opts.MaxWorkPerCall))
	})
	if err != nil {
		return nil, err
	}
	return &Session{c: c, id: str(resp, "session")}, nil
}

// Session is the client side of one remote program. Its methods mirror
// program.Program.
type Session struct {
	c  *Client
	id string
}

func (s *Session) ID() string { return s.id }

func (s *Session) call(ctx context.Context, method string, fill func(req *dynamic.Message)) (*dynamic.Message, error) {
	return s.c.invoke(ctx, method, func(req *dynamic.Message) {
		req.SetFieldByName("session", s.id)
		if fill != nil {
			fill(req)
		}
	})
}

func (s *Session) Close(ctx context.Context) error {
	_, err := s.call(ctx, "CloseSession", nil)
	return err
}

func (s *Session) SetContents(ctx context.Context, u uri.URI, version int, text string, opts program.ContentOptions) error {
	_, err := s.call(ctx, "SetContents", func(req *dynamic.Message) {
		req.SetFieldByName("uri", string(u))
		req.SetFieldByName("version", int32(version))
		req.SetFieldByName("text", text)
		req.SetFieldByName("tracked", opts.IsTracked)
		req.SetFieldByName("chained_predecessor", string(opts.ChainedPredecessor))
	})
	return err
}

func (s *Session) SetClosed(ctx context.Context, u uri.URI) error {
	_, err := s.call(ctx, "SetClosed", func(req *dynamic.Message) {
		req.SetFieldByName("uri", string(u))
	})
	return err
}

func (s *Session) UpdateChainedPredecessor(ctx context.Context, u, pred uri.URI) error {
	_, err := s.call(ctx, "UpdateChainedPredecessor", func(req *dynamic.Message) {
		req.SetFieldByName("uri", string(u))
		req.SetFieldByName("predecessor", string(pred))
	})
	return err
}

func (s *Session) MarkDirty(ctx context.Context, uris []uri.URI, evenIfUnchanged bool) error {
	_, err := s.call(ctx, "MarkDirty", func(req *dynamic.Message) {
		addStrs(req, "uris", uriStrings(uris))
		req.SetFieldByName("even_if_unchanged", evenIfUnchanged)
	})
	return err
}

// Analyze runs one analysis step and reports whether more work remains.
func (s *Session) Analyze(ctx context.Context) (bool, error) {
	resp, err := s.call(ctx, "Analyze", nil)
	if err != nil {
		return true, err
	}
	return flag(resp, "more"), nil
}

func (s *Session) GetDiagnostics(ctx context.Context, u uri.URI) ([]*diagnostics.DiagnosticError, error) {
	resp, err := s.call(ctx, "GetDiagnostics", func(req *dynamic.Message) {
		req.SetFieldByName("uri", string(u))
	})
	if err != nil {
		return nil, err
	}
	var out []*diagnostics.DiagnosticError
	for _, m := range messages(resp, "diagnostics") {
		out = append(out, takeDiagnostic(m))
	}
	return out, nil
}

// TypeInfo describes the node at a position.
type TypeInfo struct {
	Found bool
	Type  string
	Hover string
}

func (s *Session) GetTypeAt(ctx context.Context, u uri.URI, line, col int) (TypeInfo, error) {
	resp, err := s.call(ctx, "GetTypeAt", func(req *dynamic.Message) {
		req.SetFieldByName("uri", string(u))
		req.SetFieldByName("line", int32(line))
		req.SetFieldByName("column", int32(col))
	})
	if err != nil {
		return TypeInfo{}, err
	}
	return TypeInfo{Found: flag(resp, "found"), Type: str(resp, "type"), Hover: str(resp, "hover")}, nil
}

func (s *Session) GetSourceUnitList(ctx context.Context) ([]program.UnitInfo, error) {
	resp, err := s.call(ctx, "GetSourceUnitList", nil)
	if err != nil {
		return nil, err
	}
	var out []program.UnitInfo
	for _, m := range messages(resp, "units") {
		out = append(out, takeUnit(m))
	}
	return out, nil
}

func (s *Session) HandleMemoryHighUsage(ctx context.Context) (bool, error) {
	resp, err := s.call(ctx, "HandleMemoryHighUsage", nil)
	if err != nil {
		return false, err
	}
	return flag(resp, "evicted"), nil
}
