package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"signal-trader/internal/engine"
	"signal-trader/internal/events"
	"signal-trader/pkg/db"
)

// Server wires the trading engine behind HTTP endpoints.
type Server struct {
	Router    *gin.Engine
	Engine    *engine.Engine
	DB        *db.Database
	Bus       *events.Bus
	JWTSecret string
}

func NewServer(eng *engine.Engine, database *db.Database, bus *events.Bus, jwtSecret string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())

	s := &Server{
		Router:    r,
		Engine:    eng,
		DB:        database,
		Bus:       bus,
		JWTSecret: jwtSecret,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)

	api := s.Router.Group("/api")
	api.Use(AuthMiddleware(s.JWTSecret))

	// The event stream is deliberately long-lived, so it skips the request
	// timeout the other endpoints run under.
	api.GET("/events", s.streamEvents)

	timed := api.Group("")
	timed.Use(TimeoutMiddleware(30 * time.Second))
	{
		timed.POST("/trade", s.postTrade)
		timed.GET("/positions", s.getPositions)
		timed.GET("/positions/:id", s.getPosition)
		timed.GET("/positions/:id/orders", s.getPositionOrders)
		timed.POST("/positions/:id/close", s.closePosition)
		timed.POST("/positions/close-all", s.closeAllPositions)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
