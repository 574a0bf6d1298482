// admin_grpc.go: gRPC admin service for operating a running module host
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"context"
	"net"
	"time"

	"github.com/agilira/go-errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// AdminServiceName is the fully qualified gRPC service name.
const AdminServiceName = "modhost.admin.v1.ModuleAdmin"

// ModuleAdminServer is the server side of the admin service. Messages
// are protobuf well-known types so no generated code is needed.
type ModuleAdminServer interface {
	List(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	Get(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error)
	Enable(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error)
	Disable(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error)
	Reload(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error)
	Unload(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error)
	LoadAll(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	EnableAll(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	DisableAll(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*ModuleAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		emptyMethod("List", ModuleAdminServer.List),
		idMethod("Get", ModuleAdminServer.Get),
		idMethod("Enable", ModuleAdminServer.Enable),
		idMethod("Disable", ModuleAdminServer.Disable),
		idMethod("Reload", ModuleAdminServer.Reload),
		idMethod("Unload", ModuleAdminServer.Unload),
		emptyMethod("LoadAll", ModuleAdminServer.LoadAll),
		emptyMethod("EnableAll", ModuleAdminServer.EnableAll),
		emptyMethod("DisableAll", ModuleAdminServer.DisableAll),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "modhost/admin/v1/admin.proto",
}

func emptyMethod(name string, call func(ModuleAdminServer, context.Context, *emptypb.Empty) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(emptypb.Empty)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(ModuleAdminServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*emptypb.Empty))
			})
		},
	}
}

func idMethod(name string, call func(ModuleAdminServer, context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(wrapperspb.StringValue)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(ModuleAdminServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*wrapperspb.StringValue))
			})
		},
	}
}

// RegisterAdminServer registers srv on s.
func RegisterAdminServer(s grpc.ServiceRegistrar, srv ModuleAdminServer) {
	s.RegisterService(&adminServiceDesc, srv)
}

// AdminServer exposes a Manager over gRPC.
type AdminServer struct {
	manager *Manager
	logger  Logger
}

// NewAdminServer creates the admin service for m.
func NewAdminServer(m *Manager, logger any) *AdminServer {
	return &AdminServer{manager: m, logger: NewLogger(logger)}
}

func (a *AdminServer) List(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	modules := make([]any, 0)
	for _, info := range a.manager.List() {
		modules = append(modules, moduleFields(info))
	}
	return newStruct(map[string]any{"modules": modules})
}

func (a *AdminServer) Get(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	info, ok := a.manager.Info(in.GetValue())
	if !ok {
		return nil, toStatus(NewModuleNotFoundError(in.GetValue()))
	}
	return newStruct(moduleFields(info))
}

func (a *AdminServer) Enable(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	return a.mutate(ctx, "enable", in.GetValue(), a.manager.Enable)
}

func (a *AdminServer) Disable(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	return a.mutate(ctx, "disable", in.GetValue(), a.manager.Disable)
}

func (a *AdminServer) Reload(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	return a.mutate(ctx, "reload", in.GetValue(), a.manager.Reload)
}

func (a *AdminServer) Unload(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	return a.mutate(ctx, "unload", in.GetValue(), a.manager.Unload)
}

func (a *AdminServer) mutate(ctx context.Context, op, id string, fn func(context.Context, string) error) (*structpb.Struct, error) {
	a.logger.Info("Admin request", "operation", op, "module", id)
	if err := fn(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{
		"id":    NormalizeModuleID(id),
		"state": a.manager.State(id).String(),
	})
}

func (a *AdminServer) LoadAll(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	report, err := a.manager.LoadAll(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	failed := make(map[string]any, len(report.Failed))
	for _, f := range report.Failed {
		key := f.ID
		if key == "" {
			key = f.Location
		}
		failed[key] = f.Err.Error()
	}
	return newStruct(map[string]any{
		"loaded": stringsToAny(report.Loaded),
		"failed": failed,
	})
}

func (a *AdminServer) EnableAll(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return bulkStruct(a.manager.EnableAll(ctx))
}

func (a *AdminServer) DisableAll(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return bulkStruct(a.manager.DisableAll(ctx))
}

// ServeAdmin listens on address and serves the admin service until ctx
// is done.
func ServeAdmin(ctx context.Context, address string, m *Manager, logger any) error {
	log := NewLogger(logger)
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return NewAdminError("failed to listen for admin connections", err)
	}

	server := grpc.NewServer()
	RegisterAdminServer(server, NewAdminServer(m, log))

	go func() {
		<-ctx.Done()
		server.GracefulStop()
	}()

	log.Info("Admin service listening", "address", lis.Addr().String())
	if err := server.Serve(lis); err != nil {
		return NewAdminError("admin service stopped", err)
	}
	return nil
}

// ModuleSummary is the client-side view of one module.
type ModuleSummary struct {
	ID           string
	Name         string
	Version      string
	State        string
	Dependencies []string
	Commands     []string
	Listeners    []string
	Location     string
}

// AdminClient calls the admin service.
type AdminClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminClient wraps an established connection.
func NewAdminClient(cc grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{cc: cc}
}

func (c *AdminClient) invoke(ctx context.Context, method string, in any) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+AdminServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) List(ctx context.Context) ([]ModuleSummary, error) {
	out, err := c.invoke(ctx, "List", &emptypb.Empty{})
	if err != nil {
		return nil, err
	}
	var summaries []ModuleSummary
	for _, v := range out.GetFields()["modules"].GetListValue().GetValues() {
		summaries = append(summaries, summaryFrom(v.GetStructValue()))
	}
	return summaries, nil
}

func (c *AdminClient) Get(ctx context.Context, id string) (ModuleSummary, error) {
	out, err := c.invoke(ctx, "Get", wrapperspb.String(id))
	if err != nil {
		return ModuleSummary{}, err
	}
	return summaryFrom(out), nil
}

// Do runs one of enable, disable, reload or unload and returns the
// module's resulting state.
func (c *AdminClient) Do(ctx context.Context, operation, id string) (string, error) {
	method := map[string]string{
		"enable":  "Enable",
		"disable": "Disable",
		"reload":  "Reload",
		"unload":  "Unload",
	}[operation]
	if method == "" {
		return "", status.Errorf(codes.InvalidArgument, "unknown operation %q", operation)
	}
	out, err := c.invoke(ctx, method, wrapperspb.String(id))
	if err != nil {
		return "", err
	}
	return out.GetFields()["state"].GetStringValue(), nil
}

// LoadAll runs a load pass and returns loaded ids and failures by id.
func (c *AdminClient) LoadAll(ctx context.Context) ([]string, map[string]string, error) {
	out, err := c.invoke(ctx, "LoadAll", &emptypb.Empty{})
	if err != nil {
		return nil, nil, err
	}
	failed := make(map[string]string)
	for k, v := range out.GetFields()["failed"].GetStructValue().GetFields() {
		failed[k] = v.GetStringValue()
	}
	return stringList(out.GetFields()["loaded"]), failed, nil
}

// EnableAll returns succeeded and failed counts.
func (c *AdminClient) EnableAll(ctx context.Context) (int, int, error) {
	return c.bulk(ctx, "EnableAll")
}

// DisableAll returns succeeded and failed counts.
func (c *AdminClient) DisableAll(ctx context.Context) (int, int, error) {
	return c.bulk(ctx, "DisableAll")
}

func (c *AdminClient) bulk(ctx context.Context, method string) (int, int, error) {
	out, err := c.invoke(ctx, method, &emptypb.Empty{})
	if err != nil {
		return 0, 0, err
	}
	f := out.GetFields()
	return int(f["succeeded"].GetNumberValue()), int(f["failed"].GetNumberValue()), nil
}

// toStatus maps host errors onto gRPC codes; the error code travels in
// the message.
func toStatus(err error) error {
	code := codes.Internal
	switch ErrorCodeOf(err) {
	case ErrCodeModuleNotFound:
		code = codes.NotFound
	case ErrCodeInvalidDescriptor:
		code = codes.InvalidArgument
	case ErrCodeModuleInUse, ErrCodeInvalidModuleState, ErrCodeUnmetDependency, ErrCodeCyclicDependency:
		code = codes.FailedPrecondition
	case ErrCodeDuplicateModule:
		code = codes.AlreadyExists
	}
	return status.Errorf(code, "%s: %v", ErrorCodeOf(err), err)
}

func moduleFields(info ModuleInfo) map[string]any {
	d := info.Descriptor
	fields := map[string]any{
		"id":           info.ID,
		"name":         d.DisplayName(),
		"version":      d.Version(),
		"state":        info.State.String(),
		"dependencies": stringsToAny(d.Dependencies()),
		"commands":     stringsToAny(info.Commands),
		"listeners":    stringsToAny(info.Listeners),
		"location":     info.Location,
	}
	if !info.LoadedAt.IsZero() {
		fields["loaded_at"] = info.LoadedAt.Format(time.RFC3339)
	}
	return fields
}

func summaryFrom(s *structpb.Struct) ModuleSummary {
	f := s.GetFields()
	return ModuleSummary{
		ID:           f["id"].GetStringValue(),
		Name:         f["name"].GetStringValue(),
		Version:      f["version"].GetStringValue(),
		State:        f["state"].GetStringValue(),
		Dependencies: stringList(f["dependencies"]),
		Commands:     stringList(f["commands"]),
		Listeners:    stringList(f["listeners"]),
		Location:     f["location"].GetStringValue(),
	}
}

func bulkStruct(r BulkResult) (*structpb.Struct, error) {
	failures := make(map[string]any, len(r.Errors))
	for id, err := range r.Errors {
		failures[id] = err.Error()
	}
	return newStruct(map[string]any{
		"succeeded": r.Succeeded,
		"failed":    r.Failed,
		"errors":    failures,
	})
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, errors.Wrap(err, ErrCodeAdminError, "failed to encode response").Error())
	}
	return s, nil
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func stringList(v *structpb.Value) []string {
	values := v.GetListValue().GetValues()
	out := make([]string, 0, len(values))
	for _, item := range values {
		out = append(out, item.GetStringValue())
	}
	return out
}
