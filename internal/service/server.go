// Package service exposes the classifier over gRPC. There are no generated
// stubs: the service shape lives in an embedded proto file, the service
// descriptor is built by hand, and every request and response is a dynamic
// message.
package service

import (
	"context"
	_ "embed"
	"fmt"
	"net"
	"strings"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/funvibe/veq/internal/analyzer"
	"github.com/funvibe/veq/internal/baseline"
	"github.com/funvibe/veq/internal/classify"
	"github.com/funvibe/veq/internal/diagnostics"
	"github.com/funvibe/veq/internal/report"
	"github.com/funvibe/veq/internal/snapshot"
)

//go:embed veq.proto
var protoSource string

const serviceName = "veq.v1.Veq"

// Server hosts the veq.v1.Veq service.
type Server struct {
	grpcServer *grpc.Server
	store      *baseline.Store // nil disables baseline filtering
	sd         *desc.ServiceDescriptor
	findingMD  *desc.MessageDescriptor
}

// NewServer builds a server around an optional baseline store.
func NewServer(store *baseline.Store) (*Server, error) {
	parser := protoparse.Parser{
		Accessor: protoparse.FileContentsFromMap(map[string]string{"veq.proto": protoSource}),
	}
	fds, err := parser.ParseFiles("veq.proto")
	if err != nil {
		return nil, fmt.Errorf("parsing embedded service proto: %w", err)
	}
	sd := fds[0].FindService(serviceName)
	if sd == nil {
		return nil, fmt.Errorf("service %s not found in embedded proto", serviceName)
	}

	s := &Server{
		grpcServer: grpc.NewServer(),
		store:      store,
		sd:         sd,
		findingMD:  fds[0].FindMessage("veq.v1.Finding"),
	}
	s.register()
	return s, nil
}

// register builds the grpc.ServiceDesc from the parsed descriptor. Each
// handler decodes into a dynamic message of the method's input type and
// answers with one of the output type.
func (s *Server) register() {
	gd := &grpc.ServiceDesc{
		ServiceName: s.sd.GetFullyQualifiedName(),
		HandlerType: (*interface{})(nil),
		Methods:     []grpc.MethodDesc{},
		Streams:     []grpc.StreamDesc{},
		Metadata:    s.sd.GetFile().GetName(),
	}

	for _, method := range s.sd.GetMethods() {
		md := method

		var handle func(ctx context.Context, in, out *dynamic.Message) error
		switch md.GetName() {
		case "CheckSnapshot":
			handle = s.checkSnapshot
		case "ClassifyType":
			handle = s.classifyType
		default:
			continue
		}

		gd.Methods = append(gd.Methods, grpc.MethodDesc{
			MethodName: md.GetName(),
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := dynamic.NewMessage(md.GetInputType())
				if err := dec(in); err != nil {
					return nil, err
				}
				out := dynamic.NewMessage(md.GetOutputType())
				if err := handle(ctx, in, out); err != nil {
					return nil, err
				}
				return out, nil
			},
		})
	}

	s.grpcServer.RegisterService(gd, s)
}

func (s *Server) checkSnapshot(ctx context.Context, in, out *dynamic.Message) error {
	u, diags := snapshot.Parse([]byte(stringField(in, "snapshot_yaml")), "snapshot.yaml")
	if len(diags) > 0 {
		return status.Error(codes.InvalidArgument, joinDiags(diags))
	}

	findings := analyzer.New().Check(u)
	suppressed := 0
	if s.store != nil {
		var err error
		findings, suppressed, err = s.store.Filter(findings)
		if err != nil {
			return status.Errorf(codes.Internal, "baseline: %v", err)
		}
	}

	rep := report.New("grpc", "snapshot", findings, suppressed)
	if s.store != nil {
		rec := baseline.RunRecord{
			ID:         rep.RunID,
			Source:     rep.Source,
			Provider:   rep.Provider,
			Findings:   len(findings),
			Suppressed: suppressed,
		}
		if err := s.store.RecordRun(rec); err != nil {
			return status.Errorf(codes.Internal, "recording run: %v", err)
		}
	}

	out.SetFieldByName("run_id", rep.RunID)
	out.SetFieldByName("suppressed", int32(suppressed))
	for _, f := range findings {
		out.AddRepeatedFieldByName("findings", s.findingMessage(f))
	}
	return nil
}

func (s *Server) classifyType(ctx context.Context, in, out *dynamic.Message) error {
	u, diags := snapshot.Parse([]byte(stringField(in, "snapshot_yaml")), "snapshot.yaml")
	if len(diags) > 0 {
		return status.Error(codes.InvalidArgument, joinDiags(diags))
	}

	name := stringField(in, "type_name")
	ref, ok := u.Lookup(name)
	if !ok {
		return status.Errorf(codes.NotFound, "type %q is not declared in the snapshot", name)
	}

	v := classify.Classify(ref)
	out.SetFieldByName("outcome", v.Status.String())
	out.SetFieldByName("inner", v.Inner)
	return nil
}

func (s *Server) findingMessage(f *analyzer.Finding) *dynamic.Message {
	d := f.Diagnostic()
	m := dynamic.NewMessage(s.findingMD)
	m.SetFieldByName("unit", f.Unit)
	m.SetFieldByName("member", f.Member)
	m.SetFieldByName("type", f.Type)
	m.SetFieldByName("inner", f.Inner)
	m.SetFieldByName("status", f.Status.String())
	m.SetFieldByName("code", string(d.Code))
	m.SetFieldByName("message", d.Message)
	m.SetFieldByName("file", f.Pos.File)
	m.SetFieldByName("line", int32(f.Pos.Line))
	m.SetFieldByName("column", int32(f.Pos.Column))
	return m
}

// Serve listens on addr and blocks until the server stops.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.serveListener(lis)
}

func (s *Server) serveListener(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// GracefulStop drains active calls and stops the server.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}

func stringField(m *dynamic.Message, name string) string {
	v, _ := m.GetFieldByName(name).(string)
	return v
}

func joinDiags(diags []*diagnostics.DiagnosticError) string {
	msgs := make([]string, len(diags))
	for i, d := range diags {
		msgs[i] = d.Error()
	}
	return strings.Join(msgs, "; ")
}
