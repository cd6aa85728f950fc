package proto

import (
	"context"
	"net"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/config"
	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/models"
	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/service"
)

type CatalogServerImpl struct {
	books  *service.Books
	logger *zap.SugaredLogger
}

func NewGRPCServer(lc fx.Lifecycle, cfg *config.Config, books *service.Books, logger *zap.SugaredLogger) *CatalogServerImpl {
	instance := NewCatalogServer(books, logger)

	grpcServer := grpc.NewServer()
	RegisterCatalogServer(grpcServer, instance)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			listen := cfg.Host + ":" + cfg.GRPCPort
			lis, err := net.Listen("tcp", listen)
			if err != nil {
				return errors.Wrap(err, "failed to listen")
			}
			go func() {
				if err := grpcServer.Serve(lis); err != nil {
					logger.Errorw("GRPC server stopped", "error", err)
				}
			}()
			logger.Infow("GRPC server started", "addr", listen)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping GRPC server.")
			grpcServer.GracefulStop()
			return nil
		},
	})

	return instance
}

func NewCatalogServer(books *service.Books, logger *zap.SugaredLogger) *CatalogServerImpl {
	return &CatalogServerImpl{
		books:  books,
		logger: logger,
	}
}

// ListBooks accepts the same price, search and ordering keys as GET /books/.
func (s *CatalogServerImpl) ListBooks(ctx context.Context, request *structpb.Struct) (*structpb.ListValue, error) {
	fields := request.GetFields()
	filter, err := service.ParseBookFilter(
		stringField(fields["price"]),
		stringField(fields["search"]),
		stringField(fields["ordering"]),
	)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	books, err := s.books.List(ctx, filter)
	if err != nil {
		s.logger.Errorw("list books", "error", err)
		return nil, status.Error(codes.Internal, "list books")
	}

	items := make([]*structpb.Value, len(books))
	for i := range books {
		item, err := bookStruct(&books[i])
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		items[i] = structpb.NewStructValue(item)
	}
	return &structpb.ListValue{Values: items}, nil
}

func (s *CatalogServerImpl) GetBook(ctx context.Context, request *wrapperspb.UInt64Value) (*structpb.Struct, error) {
	book, err := s.books.Get(ctx, request.GetValue())
	if err != nil {
		if errors.Is(err, service.ErrBookNotFound) {
			return nil, status.Error(codes.NotFound, "book not found")
		}
		s.logger.Errorw("get book", "error", err)
		return nil, status.Error(codes.Internal, "get book")
	}

	item, err := bookStruct(book)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return item, nil
}

// stringField lets clients send the price filter either as a string or as a number.
func stringField(v *structpb.Value) string {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	}
	return ""
}

// bookStruct mirrors the HTTP representation of a book.
func bookStruct(b *models.Book) (*structpb.Struct, error) {
	resp := models.NewBookResp(b)
	var owner interface{}
	if resp.Owner != nil {
		owner = *resp.Owner
	}
	return structpb.NewStruct(map[string]interface{}{
		"id":          resp.ID,
		"name":        resp.Name,
		"price":       resp.Price,
		"author_name": resp.AuthorName,
		"owner":       owner,
	})
}
