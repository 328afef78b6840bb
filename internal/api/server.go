// Package api поднимает HTTP сервер агента: REST статус, метрики
// и WebSocket endpoint для зрителей.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"remote-agent/internal/agent"
	"remote-agent/internal/config"
	"remote-agent/internal/types"
)

// Server HTTP сервер агента
type Server struct {
	cfg      *config.Config
	agent    *agent.Agent
	logger   *zap.Logger
	router   *gin.Engine
	server   *http.Server
	upgrader websocket.Upgrader
}

// NewServer создает HTTP сервер поверх агента
func NewServer(cfg *config.Config, ag *agent.Agent, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		agent:  ag,
		logger: logger,
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	s.router = s.newRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Security.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           86400,
	})

	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     corsHandler.Handler(s.router),
		ReadTimeout: cfg.Server.ConnectionTimeout.D(),
		IdleTimeout: 2 * cfg.Server.ConnectionTimeout.D(),
	}

	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.Security.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) newRouter() *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			s.logger.Info("HTTP Request",
				zap.String("method", param.Method),
				zap.String("path", param.Path),
				zap.Int("status", param.StatusCode),
				zap.Duration("latency", param.Latency),
				zap.String("client_ip", param.ClientIP),
			)
			return ""
		},
	}))
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "remote-agent",
			"version": agent.Version,
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		s.agent.Tracker().Registry(),
		promhttp.HandlerOpts{},
	)))

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/status", s.handleStatus)
		apiV1.GET("/sessions", s.handleSessions)
		apiV1.GET("/connections", s.handleConnections)
		apiV1.GET("/displays", s.handleDisplays)
	}

	router.GET("/ws/control", s.handleWebSocket)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Not Found",
			"path":  c.Request.URL.Path,
		})
	})

	return router
}

func (s *Server) handleStatus(c *gin.Context) {
	status := s.agent.Status()
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"uptime": types.FormatDuration(time.Duration(status.UptimeSeconds) * time.Second),
	})
}

func (s *Server) handleSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sessions": s.agent.Sessions().GetAll(),
		"count":    s.agent.Sessions().Count(),
	})
}

func (s *Server) handleConnections(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connections": s.agent.Transport().GetAll(),
		"count":       s.agent.Transport().Count(),
	})
}

func (s *Server) handleDisplays(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"displays": s.agent.Displays(),
	})
}

// handleWebSocket принимает зрителя: апгрейд соединения и регистрация
// в транспортном менеджере
func (s *Server) handleWebSocket(c *gin.Context) {
	clientID := c.Query("client_id")
	if clientID == "" {
		clientID = types.NewID()
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	if _, err := s.agent.Transport().RegisterWebSocket(clientID, conn); err != nil {
		s.logger.Warn("WebSocket registration rejected",
			zap.String("client_id", clientID),
			zap.Error(err))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		conn.Close()
	}
}

// Router возвращает роутер без CORS обертки, используется в тестах
func (s *Server) Router() http.Handler {
	return s.router
}

// Start запускает HTTP сервер и блокируется до его остановки
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", zap.String("address", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown останавливает HTTP сервер
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
