package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/directory"
	"github.com/trezcool/bitacora/core/evidence"
	"github.com/trezcool/bitacora/core/notification"
	"github.com/trezcool/bitacora/core/user"
	metricsvc "github.com/trezcool/bitacora/services/metrics"
)

type (
	Deps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc         user.Service
		DirectorySvc    directory.Service
		EvidenceSvc     evidence.Service
		NotificationSvc notification.Service

		// optional
		Metrics        *metricsvc.Metrics
		DisableReqLogs bool
	}

	Server struct {
		app      *echo.Echo
		auth     *Authenticator
		addr     string
		shutdown chan os.Signal
		errors   chan error
	}
)

func NewServer(deps Deps) *Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "Conf"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Validate, "Validate"),
		vala.IsNotNil(deps.Translator, "Translator"),
		vala.IsNotNil(deps.UserSvc, "UserSvc"),
		vala.IsNotNil(deps.DirectorySvc, "DirectorySvc"),
		vala.IsNotNil(deps.EvidenceSvc, "EvidenceSvc"),
		vala.IsNotNil(deps.NotificationSvc, "NotificationSvc"),
	).CheckAndPanic()

	s := &Server{
		app:      echo.New(),
		auth:     NewAuthenticator(deps.Conf, deps.DirectorySvc),
		addr:     deps.Conf.ServerAddress(),
		shutdown: make(chan os.Signal, 1),
		errors:   make(chan error, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup(deps)
	return s
}

func (s *Server) setup(deps Deps) {
	conf := deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if deps.Metrics != nil {
		s.app.Use(metricsMiddleware(deps.Metrics))
		s.app.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(deps.Logger, deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := s.auth.middleware()

	registerUserAPI(v1, jwt, s.auth, deps.UserSvc, deps.DirectorySvc, deps.Validate, deps.Logger)
	registerDirectoryAPI(v1, jwt, deps.DirectorySvc, deps.EvidenceSvc, deps.Validate)
	registerEvidenceAPI(v1, jwt, deps.EvidenceSvc, deps.DirectorySvc)
	registerNotificationAPI(v1, jwt, deps.NotificationSvc, deps.UserSvc)
}

// Start listens until the server is shut down; other failures are sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.addr); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGSTOP:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error { return s.app.Shutdown(ctx) }

func (s *Server) Close() error { return s.app.Close() }

func (s *Server) Authenticator() *Authenticator { return s.auth }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Bitácora API")
}
