package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/tmkamba/kanisa/core"
	"github.com/tmkamba/kanisa/core/conversion"
	"github.com/tmkamba/kanisa/core/followup"
	"github.com/tmkamba/kanisa/core/goal"
	"github.com/tmkamba/kanisa/core/prospect"
	"github.com/tmkamba/kanisa/core/report"
	"github.com/tmkamba/kanisa/core/weekly"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		ProspectSvc    *prospect.Service
		TaskSvc        *followup.Service
		ConversionSvc  *conversion.Service
		GoalSvc        *goal.Service
		WeeklySvc      *weekly.Service
		ReportSvc      *report.Service
		Validate       *validator.Validate
		Translator     ut.Translator
		HealthCheck    func(ctx context.Context) error
		DisableReqLogs bool
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errs     chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errs:     make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug
	s.app.HideBanner = true

	s.app.GET("/", home)
	s.app.GET("/-/health", s.health)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf))

	registerProspectAPI(v1, jwt, s.deps.ProspectSvc, s.deps.Validate)
	registerTaskAPI(v1, jwt, s.deps.TaskSvc, s.deps.Validate)
	registerConversionAPI(v1, jwt, s.deps.ConversionSvc, s.deps.Validate)
	registerGoalAPI(v1, jwt, s.deps.GoalSvc, s.deps.Validate)
	registerWeeklyAPI(v1, jwt, s.deps.WeeklySvc, s.deps.Validate)
	registerReportAPI(v1, jwt, s.deps.ReportSvc)
}

func (s *Server) Start() {
	s.errs <- s.app.Start(s.deps.Conf.Server.Address())
}

// Errors receives the server's fatal run error, if any.
func (s *Server) Errors() <-chan error { return s.errs }

// ShutdownSignal receives SIGINT/SIGTERM, or an internal signal when an
// integrity issue requires a graceful stop.
func (s *Server) ShutdownSignal() <-chan os.Signal {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	return s.shutdown
}

func (s *Server) signalShutdown() {
	s.shutdown <- syscall.SIGTERM
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Kanisa Evangelism API!")
}

// health reports storage readiness. An unreachable store is an integrity
// issue: the shutdown error makes the error handler signal a graceful stop.
func (s *Server) health(ctx echo.Context) error {
	if s.deps.HealthCheck != nil {
		if err := s.deps.HealthCheck(ctx.Request().Context()); err != nil {
			return core.NewShutdownError("storage not ready: " + err.Error())
		}
	}
	return ctx.NoContent(http.StatusNoContent)
}
