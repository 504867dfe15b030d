package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"keyadmin/internal/config"
	"keyadmin/internal/http-server/handlers/admin"
	"keyadmin/internal/http-server/handlers/errors"
	"keyadmin/internal/http-server/handlers/health"
	"keyadmin/internal/http-server/middleware/authenticate"
	"keyadmin/internal/http-server/middleware/timeout"
	"keyadmin/lib/sl"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	admin.Core
}

// Infra holds the unauthenticated operational endpoints. Both fields may be nil.
type Infra struct {
	Remote  health.Pinger
	Metrics http.Handler
}

// NewRouter builds the route tree.
func NewRouter(conf *config.Config, log *slog.Logger, handler Handler, infra Infra) http.Handler {
	router := chi.NewRouter()
	router.Use(timeout.Timeout(conf.Listen.Timeout))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(errors.NotFound(log))
	router.MethodNotAllowed(errors.NotAllowed(log))

	router.Get("/healthz", health.Health(log, infra.Remote))
	if infra.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", infra.Metrics)
	}

	router.Route("/admin", func(adminApi chi.Router) {
		adminApi.Use(authenticate.New(log, handler))
		adminApi.Route("/discord", func(discord chi.Router) {
			discord.Post("/generate-paid-key", admin.GenerateKey(log, handler))
			discord.Post("/bulk-delete-users", admin.BulkDelete(log, handler))
		})
		adminApi.Get("/audit", admin.Audit(log, handler))
	})

	return router
}

func New(conf *config.Config, log *slog.Logger, handler Handler, infra Infra) error {

	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:      NewRouter(conf, log, handler, infra),
		ErrorLog:     httpLog,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: time.Duration(conf.Listen.Timeout+5) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIp, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	server.log.Info("starting api server", slog.String("address", serverAddress))

	return server.httpServer.Serve(listener)
}
