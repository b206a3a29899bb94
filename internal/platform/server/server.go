package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ogurasousui/hr-analytics/internal/adapters/grpc/handler"
	"github.com/ogurasousui/hr-analytics/internal/core/roster"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Server は gRPC サーバーのライフサイクルを管理します。
type Server struct {
	listenAddr string
	grpcServer *grpc.Server
	logger     *zap.Logger
}

// New は指定されたアドレスで待ち受ける gRPC サーバーを構築し、AnalyticsService を登録します。
func New(listenAddr string, analytics roster.UseCase, logger *zap.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(LoggingInterceptor(logger))}, opts...)
	srv := grpc.NewServer(opts...)
	handler.RegisterAnalyticsServiceServer(srv, handler.NewAnalyticsHandler(analytics))

	return &Server{
		listenAddr: listenAddr,
		grpcServer: srv,
		logger:     logger,
	}
}

// LoggingInterceptor はメソッド名・所要時間・ステータスコードを記録します。
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("latency", time.Since(start)),
			zap.String("code", status.Code(err).String()),
		}
		if err != nil {
			logger.Warn("grpc request failed", append(fields, zap.Error(err))...)
		} else {
			logger.Info("grpc request", fields...)
		}
		return resp, err
	}
}

// Run はサーバーを起動し、コンテキストがキャンセルされると GracefulStop します。
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.listenAddr, err)
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down gRPC server")
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	return nil
}

// GracefulStop はサーバーを安全に停止します。
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}
