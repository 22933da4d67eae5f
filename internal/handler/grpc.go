package handler

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/MikhailRaia/shortcode/internal/middleware"
	"github.com/MikhailRaia/shortcode/internal/proto"
	"github.com/MikhailRaia/shortcode/internal/service"
)

type ShortenerGRPCServer struct {
	urlService URLService
}

func NewShortenerGRPCServer(urlService URLService) *ShortenerGRPCServer {
	return &ShortenerGRPCServer{
		urlService: urlService,
	}
}

// NewGRPCServer builds a gRPC server with the JSON codec, the logging
// interceptor and the shortener service registered.
func NewGRPCServer(urlService URLService, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ForceServerCodec(proto.Codec{}),
		grpc.ChainUnaryInterceptor(middleware.UnaryLoggingInterceptor),
	}, opts...)

	srv := grpc.NewServer(opts...)
	proto.RegisterShortenerServiceServer(srv, NewShortenerGRPCServer(urlService))

	return srv
}

func (s *ShortenerGRPCServer) Shorten(ctx context.Context, req *proto.ShortenRequest) (*proto.ShortenResponse, error) {
	expiresAt, err := ParseExpiry(req.ExpiresAt)
	if err != nil {
		return nil, grpcError(err)
	}

	m, err := s.urlService.Shorten(ctx, service.ShortenRequest{
		OriginalURL: req.OriginalUrl,
		CustomCode:  req.CustomCode,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return nil, grpcError(err)
	}

	return &proto.ShortenResponse{Code: m.Code, ShortUrl: s.urlService.ShortURL(m.Code)}, nil
}

func (s *ShortenerGRPCServer) Resolve(ctx context.Context, req *proto.ResolveRequest) (*proto.ResolveResponse, error) {
	originalURL, err := s.urlService.Resolve(ctx, req.Code)
	if err != nil {
		return nil, grpcError(err)
	}

	return &proto.ResolveResponse{OriginalUrl: originalURL}, nil
}

func (s *ShortenerGRPCServer) List(ctx context.Context, req *proto.ListRequest) (*proto.ListResponse, error) {
	urls, err := s.urlService.List(ctx, int(req.Limit), int(req.Offset))
	if err != nil {
		return nil, grpcError(err)
	}

	resp := &proto.ListResponse{
		Urls: make([]*proto.URLData, 0, len(urls)),
	}

	for _, u := range urls {
		data := &proto.URLData{
			Code:        u.Code,
			ShortUrl:    s.urlService.ShortURL(u.Code),
			OriginalUrl: u.OriginalURL,
			CreatedAt:   u.CreatedAt.Format(time.RFC3339),
		}
		if u.ExpiresAt != nil {
			data.ExpiresAt = u.ExpiresAt.Format(time.RFC3339)
		}
		resp.Urls = append(resp.Urls, data)
	}

	return resp, nil
}

func (s *ShortenerGRPCServer) Ping(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.urlService.Ping(ctx); err != nil {
		return nil, status.Errorf(codes.Unavailable, "storage unreachable: %v", err)
	}
	return &emptypb.Empty{}, nil
}

// grpcError maps service errors to gRPC status codes.
func grpcError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidURL),
		errors.Is(err, service.ErrInvalidCode),
		errors.Is(err, service.ErrInvalidExpiry):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrExpired):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrCodeTaken):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, service.ErrStorage):
		return status.Error(codes.Unavailable, "storage unavailable, retry later")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
