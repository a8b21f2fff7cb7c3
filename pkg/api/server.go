package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/arnac-io/opensafeapi/pkg/pusher/sources"
	"github.com/arnac-io/opensafeapi/pkg/pusher/sse"
	"github.com/arnac-io/opensafeapi/pkg/pusher/websocket"
)

type Server struct {
	logger     *zap.Logger
	httpServer *http.Server
}

type ServerOptions struct {
	httpMiddleware []mux.MiddlewareFunc
	eventSource    sources.SafeEventSource
	rps            float64
	burst          int
}

type ServerOption func(options *ServerOptions)

func WithHttpMiddleware(m ...mux.MiddlewareFunc) ServerOption {
	return func(options *ServerOptions) {
		options.httpMiddleware = m
	}
}

// WithEventSource enables the SSE and websocket endpoints.
func WithEventSource(source sources.SafeEventSource) ServerOption {
	return func(options *ServerOptions) {
		options.eventSource = source
	}
}

// WithRateLimit limits every client to rps requests per second with the given burst.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(options *ServerOptions) {
		options.rps = rps
		options.burst = burst
	}
}

func NewServer(log *zap.Logger, handler *Handler, address string, opts ...ServerOption) (*Server, error) {
	options := &ServerOptions{}
	for _, o := range opts {
		o(options)
	}
	router := NewRouter(log, handler, options)
	serv := Server{
		logger: log,
		httpServer: &http.Server{
			Addr:              address,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	return &serv, nil
}

// NewRouter registers every endpoint of the API.
func NewRouter(log *zap.Logger, h *Handler, options *ServerOptions) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestID, loggingMiddleware(log), metricsMiddleware)
	router.Use(rateLimitMiddleware(newClientLimiter(options.rps, options.burst, 0)))
	router.Use(options.httpMiddleware...)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/status", h.wrap(h.GetStatus)).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/search", h.wrap(h.SearchAccounts)).Methods(http.MethodGet)
	v1.HandleFunc("/safes", h.wrap(h.GetSafes)).Methods(http.MethodGet)
	v1.HandleFunc("/safes/{address}", h.wrap(h.GetSafe)).Methods(http.MethodGet)
	v1.HandleFunc("/safes/{address}/hash", h.wrap(h.GetTransactionHash)).Methods(http.MethodPost)
	v1.HandleFunc("/safes/{address}/admin", h.wrap(h.BuildAdminTransaction)).Methods(http.MethodPost)
	v1.HandleFunc("/safes/{address}/proposals", h.wrap(h.CreateProposal)).Methods(http.MethodPost)
	v1.HandleFunc("/safes/{address}/proposals", h.wrap(h.GetProposals)).Methods(http.MethodGet)
	v1.HandleFunc("/proposals/{hash}", h.wrap(h.GetProposal)).Methods(http.MethodGet)
	v1.HandleFunc("/proposals/{hash}/signatures", h.wrap(h.AddSignature)).Methods(http.MethodPost)
	v1.HandleFunc("/proposals/{hash}/emulate", h.wrap(h.EmulateProposal)).Methods(http.MethodPost)
	v1.HandleFunc("/proposals/{hash}/execute", h.wrap(h.ExecuteProposal)).Methods(http.MethodPost)

	if options.eventSource != nil {
		sseHandler := sse.NewHandler(options.eventSource)
		v1.HandleFunc("/sse/safes/events", sseHandler.SafeEvents()).Methods(http.MethodGet)
		v1.HandleFunc("/ws", websocket.Handler(log, options.eventSource)).Methods(http.MethodGet)
	}
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, notFound("%v not found", r.URL.Path))
	})
	return router
}

func (s *Server) Run() {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		s.logger.Info("opensafeapi quit")
		return
	}
	s.logger.Fatal("ListedAndServe() failed", zap.Error(err))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
