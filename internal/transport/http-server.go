package transport

import (
	"context"
	"encoding/json"
	"net"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/config"
	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/models"
	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/service"
)

const (
	tokenHeader   = "X-Token"
	userLocalsKey = "user"
)

var censoredFields = []string{"password"}

type (
	ErrorResp struct {
		Detail string `json:"detail"`
		Field  string `json:"field,omitempty"`
	}

	HTTPServer struct {
		app       *fiber.App
		general   *service.General
		books     *service.Books
		relations *service.Relations
		logger    *zap.SugaredLogger
	}
)

func NewHTTPServer(lc fx.Lifecycle, cfg *config.Config, general *service.General, books *service.Books,
	relations *service.Relations, logger *zap.SugaredLogger) *HTTPServer {
	instance := New(general, books, relations, logger)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			listen := cfg.Host + ":" + cfg.Port
			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return errors.Wrap(err, "listen http")
			}
			go func() {
				if err := instance.app.Listener(ln); err != nil {
					logger.Errorw("HTTP server stopped", "error", err)
				}
			}()
			logger.Infow("HTTP server started", "addr", listen)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP server.")
			return instance.app.ShutdownWithContext(ctx)
		},
	})

	return instance
}

// New builds the router without binding a port.
func New(general *service.General, books *service.Books, relations *service.Relations, logger *zap.SugaredLogger) *HTTPServer {
	instance := &HTTPServer{
		general:   general,
		books:     books,
		relations: relations,
		logger:    logger,
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          instance.ErrorHandler,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(instance.LoggerMiddleware)
	app.Use(instance.AuthMiddleware)

	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	authG := app.Group("/auth")
	authG.Post("/register", instance.Register)
	authG.Post("/login", instance.Login)
	authG.Delete("/me", instance.DeleteMe)

	bookG := app.Group("/books")
	bookG.Get("/", instance.BookList)
	bookG.Post("/", instance.BookCreate)
	bookG.Get("/:id", instance.BookGet)
	bookG.Put("/:id", instance.BookUpdate)
	bookG.Patch("/:id", instance.BookUpdate)
	bookG.Delete("/:id", instance.BookDelete)

	app.Patch("/relations/:book", instance.RelationUpdate)

	instance.app = app
	return instance
}

func (s *HTTPServer) App() *fiber.App {
	return s.app
}

func (s *HTTPServer) Register(c *fiber.Ctx) error {
	req := models.UserReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	token, err := s.general.Register(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(models.TokenResp{Token: token})
}

func (s *HTTPServer) Login(c *fiber.Ctx) error {
	req := models.UserReq{}
	if err := Bind(c, &req); err != nil {
		return err
	}

	token, err := s.general.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(models.TokenResp{Token: token})
}

func (s *HTTPServer) DeleteMe(c *fiber.Ctx) error {
	user, err := RequireUser(c)
	if err != nil {
		return err
	}
	if err := s.general.DeleteUser(c.UserContext(), user); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *HTTPServer) BookList(c *fiber.Ctx) error {
	filter, err := service.ParseBookFilter(c.Query("price"), c.Query("search"), c.Query("ordering"))
	if err != nil {
		return err
	}

	books, err := s.books.List(c.UserContext(), filter)
	if err != nil {
		return err
	}

	resp := make([]models.BookResp, len(books))
	for i := range books {
		resp[i] = models.NewBookResp(&books[i])
	}
	return c.JSON(resp)
}

func (s *HTTPServer) BookGet(c *fiber.Ctx) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	book, err := s.books.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(models.NewBookResp(book))
}

func (s *HTTPServer) BookCreate(c *fiber.Ctx) error {
	req := models.BookReq{}
	if err := Bind(c, &req); err != nil {
		return err
	}

	book, err := s.books.Create(c.UserContext(), GetUserFromContext(c), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(models.NewBookResp(book))
}

// BookUpdate serves both PUT and PATCH, the method decides whether fields may be omitted.
func (s *HTTPServer) BookUpdate(c *fiber.Ctx) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	req := models.BookReq{}
	if err := Bind(c, &req); err != nil {
		return err
	}

	book, err := s.books.Update(c.UserContext(), c.Method(), GetUserFromContext(c), id, req)
	if err != nil {
		return err
	}
	return c.JSON(models.NewBookResp(book))
}

func (s *HTTPServer) BookDelete(c *fiber.Ctx) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	if err := s.books.Delete(c.UserContext(), c.Method(), GetUserFromContext(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *HTTPServer) RelationUpdate(c *fiber.Ctx) error {
	user, err := RequireUser(c)
	if err != nil {
		return err
	}
	bookID, err := GetAndParseParam(c, "book")
	if err != nil {
		return err
	}

	req := models.RelationReq{}
	if len(c.Body()) != 0 {
		if err := Bind(c, &req); err != nil {
			return err
		}
	}

	rel, err := s.relations.Update(c.UserContext(), user, bookID, req)
	if err != nil {
		return err
	}
	return c.JSON(models.NewRelationResp(rel))
}

// AuthMiddleware resolves the X-Token header into a user. Requests without the
// header continue anonymously; an unknown token is rejected outright.
func (s *HTTPServer) AuthMiddleware(c *fiber.Ctx) error {
	switch strings.TrimSuffix(c.Path(), "/") {
	case "/auth/register", "/auth/login", "/ping":
		return c.Next()
	}
	token := c.Get(tokenHeader)
	if token == "" {
		return c.Next()
	}

	user, err := s.general.UserByToken(c.UserContext(), token)
	if err != nil {
		if errors.Is(err, service.ErrUnauthenticated) {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid token.")
		}
		return errors.Wrap(err, "find user by token")
	}

	c.Locals(userLocalsKey, user)
	return c.Next()
}

func (s *HTTPServer) LoggerMiddleware(c *fiber.Ctx) error {
	start := time.Now()
	body := censorBody(c.Body())

	if err := c.Next(); err != nil {
		if herr := s.ErrorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	fields := []interface{}{
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"latency", time.Since(start),
	}
	if len(body) != 0 {
		fields = append(fields, "body", string(body))
	}
	s.logger.Infow("request", fields...)
	return nil
}

func (s *HTTPServer) ErrorHandler(c *fiber.Ctx, err error) error {
	status, resp := errorResponse(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Errorw("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(resp)
}

func errorResponse(err error) (int, ErrorResp) {
	var (
		verr *service.ValidationError
		ferr *fiber.Error
	)
	switch {
	case errors.As(err, &verr):
		return fiber.StatusBadRequest, ErrorResp{Detail: verr.Message, Field: verr.Field}
	case errors.Is(err, service.ErrBookNotFound):
		return fiber.StatusNotFound, ErrorResp{Detail: "Not found."}
	case errors.Is(err, service.ErrPermissionDenied):
		return fiber.StatusForbidden, ErrorResp{Detail: "You do not have permission to perform this action."}
	case errors.Is(err, service.ErrUnauthenticated):
		return fiber.StatusUnauthorized, ErrorResp{Detail: "Authentication credentials were not provided."}
	case errors.Is(err, service.ErrLoginUserNotFound), errors.Is(err, service.ErrLoginPasswordDoesNotMatch):
		return fiber.StatusUnauthorized, ErrorResp{Detail: "Invalid email or password."}
	case errors.Is(err, service.ErrUserAlreadyExists):
		return fiber.StatusConflict, ErrorResp{Detail: "User with this email already exists."}
	case errors.As(err, &ferr):
		return ferr.Code, ErrorResp{Detail: ferr.Message}
	}
	return fiber.StatusInternalServerError, ErrorResp{Detail: "Internal server error."}
}

////////

// censorBody masks secrets in JSON bodies before they reach the access log.
func censorBody(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return b
	}

	censored := false
	for _, name := range censoredFields {
		if _, ok := fields[name]; ok {
			fields[name] = json.RawMessage(`"$censored"`)
			censored = true
		}
	}
	if !censored {
		return b
	}

	out, err := json.Marshal(fields)
	if err != nil {
		return b
	}
	return out
}

// Bind decodes the body into v. Decoder errors are reported in client terms,
// never with Go type names.
func Bind(c *fiber.Ctx, v interface{}) error {
	err := c.BodyParser(v)
	if err == nil {
		return nil
	}

	var (
		terr *json.UnmarshalTypeError
		ferr *fiber.Error
	)
	switch {
	case errors.As(err, &terr) && terr.Field != "":
		return &service.ValidationError{Field: terr.Field, Message: typeMessage(terr.Type.Kind())}
	case errors.As(err, &ferr):
		return ferr
	}
	return fiber.NewError(fiber.StatusBadRequest, "Malformed request body.")
}

func typeMessage(kind reflect.Kind) string {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "A valid integer is required."
	case reflect.Bool:
		return "Must be a valid boolean."
	case reflect.String:
		return "Not a valid string."
	}
	return "Invalid value."
}

func BindAndValidate(c *fiber.Ctx, v interface{}) error {
	if err := Bind(c, v); err != nil {
		return err
	}
	return service.ValidateStruct(v)
}

// GetUserFromContext returns the authenticated caller, nil for anonymous requests.
func GetUserFromContext(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(userLocalsKey).(*models.User)
	return user
}

func RequireUser(c *fiber.Ctx) (*models.User, error) {
	user := GetUserFromContext(c)
	if user == nil {
		return nil, service.ErrUnauthenticated
	}
	return user, nil
}

func GetParam(c *fiber.Ctx, name string) (string, error) {
	value := c.Params(name)
	if value == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid path param '"+name+"'")
	}
	return value, nil
}

// GetAndParseParam reads a numeric id from the path. Anything else cannot name a row.
func GetAndParseParam(c *fiber.Ctx, name string) (uint64, error) {
	v, e := GetParam(c, name)
	if e != nil {
		return 0, e
	}
	vv, e := strconv.ParseUint(v, 10, 64)
	if e != nil {
		return 0, fiber.NewError(fiber.StatusNotFound, "Not found.")
	}
	return vv, nil
}
