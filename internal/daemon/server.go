// Package daemon provides the HTTP gateway in front of the session manager.
//
//	@title			WhatsApp Session Gateway API
//	@version		1.0
//	@description	Multi-tenant gateway that starts messaging sessions, hands out pairing QR codes and sends messages
//	@BasePath		/api/v1
//	@schemes		http https
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/wagate/gateway/internal/common"
	"github.com/wagate/gateway/internal/config"
	"github.com/wagate/gateway/internal/models"
)

// SessionService is the lifecycle surface driven by the API.
type SessionService interface {
	Start(ctx context.Context, sessionID string, wait bool) (models.SessionInfo, error)
	Status(sessionID string) (models.SessionInfo, error)
	List() []models.SessionInfo
	Counts() map[models.SessionState]int
	Stop(ctx context.Context, sessionID string) (models.SessionInfo, error)
	QRCode(ctx context.Context, sessionID string) (string, models.SessionInfo, error)
	Send(ctx context.Context, sessionID string, msg models.OutgoingMessage) (*models.Ack, error)
}

// EventDispatcher routes worker callbacks to the client that emitted them.
type EventDispatcher interface {
	Dispatch(event cloudevents.Event) error
}

// HistoryReader serves the persisted transitions of a session.
type HistoryReader interface {
	History(ctx context.Context, sessionID string, limit int) ([]models.Transition, error)
}

// Dependencies are the collaborators wired into the server. Events, Journal,
// Metrics and Logs are optional.
type Dependencies struct {
	Sessions SessionService
	Events   EventDispatcher
	Journal  HistoryReader
	Metrics  http.Handler
	Logs     config.LogBuffer
}

// Server represents the gateway web service
type Server struct {
	Config        *config.Config
	StartTime     time.Time
	TotalRequests int64

	sessions SessionService
	events   EventDispatcher
	journal  HistoryReader
	metrics  http.Handler
	logs     config.LogBuffer

	limiter  *RateLimiter
	router   *gin.Engine
	server   *http.Server
	draining atomic.Bool
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	s := &Server{
		Config:    cfg,
		StartTime: time.Now().UTC(),
		sessions:  deps.Sessions,
		events:    deps.Events,
		journal:   deps.Journal,
		metrics:   deps.Metrics,
		logs:      deps.Logs,
	}

	if cfg.Server.Limits.RequestsPerMinute > 0 {
		s.limiter = NewRateLimiter(
			float64(cfg.Server.Limits.RequestsPerMinute)/60.0,
			cfg.Server.Limits.Burst,
		)
	}

	s.router = s.buildRouter()
	return s
}

func (s *Server) GetVersion() string {
	return common.GetVersion()
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.MaxMultipartMemory = 8 << 20

	router.Use(CorrelationMiddleware())
	router.Use(RequestLogger())
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		err, ok := recovered.(error)
		if !ok {
			err = fmt.Errorf("%v", recovered)
		}
		s.getErrorPage(c, http.StatusInternalServerError, "Internal Server Error", err)
	}))
	router.Use(s.requestCounterMiddleware())
	router.Use(cors.New(s.corsConfig()))

	s.setupRoutes(router)
	return router
}

func (s *Server) corsConfig() cors.Config {
	settings := s.Config.Server.Security.CORS

	corsConfig := cors.Config{
		AllowMethods:  settings.AllowedMethods,
		AllowHeaders:  settings.AllowedHeaders,
		ExposeHeaders: []string{correlationHeader},
		MaxAge:        time.Duration(settings.MaxAge) * time.Second,
	}

	if len(settings.AllowedOrigins) == 0 || slices.Contains(settings.AllowedOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		origins := settings.AllowedOrigins
		corsConfig.AllowOriginFunc = func(origin string) bool {
			return slices.ContainsFunc(origins, func(pattern string) bool {
				return matchOrigin(origin, pattern)
			})
		}
	}

	if len(corsConfig.AllowMethods) == 0 {
		corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}

	logrus.WithFields(logrus.Fields{
		"allowAll": corsConfig.AllowAllOrigins,
		"origins":  settings.AllowedOrigins,
	}).Debugln("CORS configuration")

	return corsConfig
}

// Start begins serving in the background
func (s *Server) Start() error {
	addr := s.Config.GetServerAddress()

	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.Config.Server.Limits.ReadTimeout,
		WriteTimeout: s.Config.Server.Limits.WriteTimeout,
		IdleTimeout:  s.Config.Server.Limits.IdleTimeout,
	}

	s.server = server

	errChan := make(chan error, 1)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait a moment to see if the listener fails to bind
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start server: %w", err)
	case <-time.After(100 * time.Millisecond):
		logrus.WithField("address", addr).Infoln("Gateway listening")
		return nil
	}
}

// Stop drains in-flight requests. Readiness reports unavailable from here on.
// Drain marks the server as going away: readiness fails from now on while
// in-flight requests keep being served.
func (s *Server) Drain() {
	s.draining.Store(true)
}

func (s *Server) Stop(ctx context.Context) error {
	s.Drain()

	if s.limiter != nil {
		s.limiter.Stop()
	}

	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logrus.Infoln("Gateway stopped")
	return nil
}

// requestCounterMiddleware increments the request counter
func (s *Server) requestCounterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		atomic.AddInt64(&s.TotalRequests, 1)
		c.Next()
	}
}

// setupRoutes configures all the HTTP routes
func (s *Server) setupRoutes(router *gin.Engine) {

	if s.Config.Server.Health.Enabled {
		router.GET(s.Config.Server.Health.Path, s.healthHandler)
	}

	if s.Config.Server.Ready.Enabled {
		router.GET(s.Config.Server.Ready.Path, s.readyHandler)
	}

	if s.Config.Server.Metrics.Enabled && s.metrics != nil {
		router.GET(s.Config.Server.Metrics.Path, gin.WrapH(s.metrics))
	}

	api := router.Group(s.Config.GetApiBasePath())
	if s.limiter != nil {
		api.Use(s.limiter.Middleware())
	}
	{
		api.GET("/sessions", s.getSessions)
		api.GET("/sessions/:id", s.getSession)
		api.DELETE("/sessions/:id", s.deleteSession)
		api.POST("/sessions/:id/start", s.postSessionStart)
		api.GET("/sessions/:id/qr", s.getSessionQR)
		api.GET("/sessions/:id/history", s.getSessionHistory)
		api.POST("/sessions/:id/messages", s.postMessage)

		// Worker callbacks are not rate limited per client address.
		router.POST(s.Config.GetApiBasePath()+"/bridge/events", s.postBridgeEvent)

		api.GET("/logs", s.getLogs)
	}

	// Paths used by existing frontends.
	legacy := router.Group("/api")
	if s.limiter != nil {
		legacy.Use(s.limiter.Middleware())
	}
	{
		legacy.GET("/login/:id", s.postSessionStart)
		legacy.GET("/qr/:id", s.getSessionQR)
		legacy.POST("/message/:id", s.postMessage)
	}
}
