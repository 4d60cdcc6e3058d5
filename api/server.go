// Package api exposes the sync engine over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradesync/config"
	"tradesync/logger"
	"tradesync/store"
	"tradesync/syncer"
)

// Server HTTP API server
type Server struct {
	router      *gin.Engine
	store       *store.Store
	service     *syncer.Service
	coordinator *syncer.Coordinator
	httpServer  *http.Server
	port        int
}

// NewServer creates the API server
func NewServer(st *store.Store, service *syncer.Service, coordinator *syncer.Coordinator, port int) *Server {
	// Release mode keeps request logging down
	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()
	router.Use(corsMiddleware())

	s := &Server{
		router:      router,
		store:       st,
		service:     service,
		coordinator: coordinator,
		port:        port,
	}
	s.setupRoutes()
	return s
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.Any("/health", s.handleHealth)

		// Authentication (public)
		api.POST("/register", s.handleRegister)
		api.POST("/login", s.handleLogin)

		protected := api.Group("/", s.authMiddleware())
		{
			// Exchange credentials
			protected.GET("/exchanges", s.handleGetExchanges)
			protected.PUT("/exchanges", s.handleUpdateExchange)
			protected.DELETE("/exchanges/:exchange", s.handleDeleteExchange)

			// Sync lifecycle
			protected.POST("/sync/start", s.handleStartSync)
			protected.POST("/sync/cancel", s.handleCancelSync)
			protected.POST("/sync/clear", s.handleClearProgress)
			protected.GET("/sync/progress", s.handleGetProgress)
			protected.GET("/sync/progress/ws", s.handleProgressWS)

			// Cached reads
			protected.GET("/orders", s.handleGetOrders)
			protected.GET("/orders/totals", s.handleGetTotals)
			protected.GET("/transactions", s.handleGetTransactions)

			// Bookmark mutations (cache-invalidating)
			protected.POST("/orders/:id/bookmark", s.handleBookmarkOrder)
			protected.POST("/transactions/:id/bookmark", s.handleBookmarkTransaction)
		}
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start runs the HTTP server until the context is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("🚀 API server listening on :%d", s.port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// Router exposes the gin engine (tests)
func (s *Server) Router() *gin.Engine {
	return s.router
}

func jwtSecret() []byte {
	return []byte(config.Get().JWTSecret)
}
