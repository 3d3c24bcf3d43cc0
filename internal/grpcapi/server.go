package grpcapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chungtau/mti-gateway/internal/model"
	"github.com/chungtau/mti-gateway/internal/notify"
)

// Subscriber is implemented by *notify.Hub
type Subscriber interface {
	Subscribe(merchantID string, l notify.Listener)
	Unsubscribe(l notify.Listener)
}

// TransactionReader is implemented by *processor.Processor
type TransactionReader interface {
	Get(ctx context.Context, merchantID, id string) (*model.Transaction, error)
}

type Service struct {
	hub    Subscriber
	txs    TransactionReader
	buffer int
	logger zerolog.Logger

	quit     chan struct{}
	quitOnce sync.Once
}

func NewService(hub Subscriber, txs TransactionReader, buffer int, logger zerolog.Logger) *Service {
	return &Service{
		hub:    hub,
		txs:    txs,
		buffer: buffer,
		logger: logger.With().Str("component", "grpcapi").Logger(),
		quit:   make(chan struct{}),
	}
}

// Shutdown ends every open Subscribe stream so GracefulStop can return.
func (s *Service) Shutdown() {
	s.quitOnce.Do(func() { close(s.quit) })
}

// NewServer builds a gRPC server with keepalive and JWT auth and registers svc.
func NewServer(svc *Service, jwtSecret string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(unaryLogging(svc.logger), UnaryAuthInterceptor(jwtSecret)),
		grpc.ChainStreamInterceptor(streamLogging(svc.logger), StreamAuthInterceptor(jwtSecret)),
	)
	srv.RegisterService(&ServiceDesc, svc)
	return srv
}

// Subscribe streams every event of the authenticated merchant until the client
// cancels. A subscriber that falls behind is dropped with ResourceExhausted.
func (s *Service) Subscribe(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	merchantID, ok := MerchantFromContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing merchant")
	}

	q := notify.NewQueue(s.buffer)
	s.hub.Subscribe(merchantID, q)
	defer func() {
		s.hub.Unsubscribe(q)
		q.Close()
	}()
	s.logger.Info().Str("merchant_id", merchantID).Msg("grpc subscriber connected")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.quit:
			return status.Error(codes.Unavailable, "server shutting down")
		case ev, ok := <-q.Events():
			if !ok {
				return status.Error(codes.ResourceExhausted, "subscriber fell behind")
			}
			msg, err := toStruct(ev)
			if err != nil {
				return status.Errorf(codes.Internal, "encode event: %v", err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// GetTransaction returns the persisted record; it is how subscribers learn about
// payout_failed, which has no event.
func (s *Service) GetTransaction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	merchantID, ok := MerchantFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing merchant")
	}
	id := in.GetFields()[TransactionIDField].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "transactionId is required")
	}

	tx, err := s.txs.Get(ctx, merchantID, id)
	if err != nil {
		return nil, ToStatus(err)
	}
	out, err := toStruct(tx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode transaction: %v", err)
	}
	return out, nil
}

// toStruct converts a JSON-tagged value to a Struct so the wire field names
// match the HTTP and SSE payloads.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("build struct: %w", err)
	}
	return s, nil
}
