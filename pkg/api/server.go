package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/ssobridge/pkg/httputil"
	"github.com/platinummonkey/ssobridge/pkg/observability"
	"github.com/platinummonkey/ssobridge/pkg/sso"
)

// Server is the bridge's HTTP surface
type Server struct {
	router     *mux.Router
	dispatcher *sso.Dispatcher
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewServer wires the dispatcher's routes behind the middleware stack
func NewServer(dispatcher *sso.Dispatcher, logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(
		httputil.RequestIDMiddleware(s.logger),
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		s.metrics.Middleware,
	)
	s.dispatcher.RegisterRoutes(s.router)
}

// Handler returns the root handler with tracing wrapped around the
// router
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "ssobridge")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
