// Package rpc exposes the sales ledger over gRPC. Messages are
// google.protobuf.Struct values carrying the same JSON documents the HTTP
// gateway accepts and returns.
package rpc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	ledger "pos-system/internal/services/ledger/handler"
)

const ServiceName = "pos.v1.LedgerService"

const (
	MethodCreatePurchase = "/" + ServiceName + "/CreatePurchase"
	MethodCreateRefund   = "/" + ServiceName + "/CreateRefund"
	MethodGetPurchase    = "/" + ServiceName + "/GetPurchase"
)

type LedgerServer interface {
	CreatePurchase(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateRefund(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPurchase(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// LedgerService adapts the ledger handler to LedgerServer.
type LedgerService struct {
	ledger *ledger.LedgerHandler
}

func NewLedgerService(h *ledger.LedgerHandler) *LedgerService {
	return &LedgerService{ledger: h}
}

type createRefundRequest struct {
	PurchaseID int64                    `json:"purchase_id"`
	Items      []ledger.RefundItemInput `json:"items"`
}

type getPurchaseRequest struct {
	PurchaseID int64 `json:"purchase_id"`
}

func (s *LedgerService) CreatePurchase(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in ledger.CreatePurchaseInput
	if err := decodeStruct(req, &in); err != nil {
		return nil, toStatus(ctx, err)
	}
	receipt, err := s.ledger.CreatePurchase(ctx, in)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return encodeResponse(ctx, receipt)
}

func (s *LedgerService) CreateRefund(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in createRefundRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, toStatus(ctx, err)
	}
	receipt, err := s.ledger.CreateRefund(ctx, in.PurchaseID, in.Items)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return encodeResponse(ctx, receipt)
}

func (s *LedgerService) GetPurchase(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in getPurchaseRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, toStatus(ctx, err)
	}
	receipt, err := s.ledger.GetPurchase(ctx, in.PurchaseID)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return encodeResponse(ctx, receipt)
}

func encodeResponse(ctx context.Context, v interface{}) (*structpb.Struct, error) {
	out, err := EncodeStruct(v)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return out, nil
}

// --- Service descriptor ---

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&ledgerServiceDesc, srv)
}

func unaryHandler(method string, call func(LedgerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(LedgerServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreatePurchase",
			Handler:    unaryHandler(MethodCreatePurchase, LedgerServer.CreatePurchase),
		},
		{
			MethodName: "CreateRefund",
			Handler:    unaryHandler(MethodCreateRefund, LedgerServer.CreateRefund),
		},
		{
			MethodName: "GetPurchase",
			Handler:    unaryHandler(MethodGetPurchase, LedgerServer.GetPurchase),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pos/v1/ledger.proto",
}

// --- Server ---

// LoggingInterceptor logs every call with its duration and status code.
func LoggingInterceptor(log *logrus.Entry) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		entry := log.WithFields(logrus.Fields{
			"method":   info.FullMethod,
			"code":     code.String(),
			"duration": time.Since(start),
		})
		switch {
		case code == codes.Internal || code == codes.Unknown:
			entry.WithError(err).Error("gRPC call failed")
		case err != nil:
			entry.WithError(err).Warn("gRPC call rejected")
		default:
			entry.Info("gRPC call")
		}
		return resp, err
	}
}

// NewServer builds a gRPC server exposing the ledger, the health service and
// reflection.
func NewServer(h *ledger.LedgerHandler, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(LoggingInterceptor(logrus.WithField("service", "grpc"))),
	}, opts...)
	s := grpc.NewServer(opts...)

	RegisterLedgerServer(s, NewLedgerService(h))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	reflection.Register(s)
	return s, healthServer
}
