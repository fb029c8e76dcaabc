package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(queue *QueueController, sessions *SessionController, events *EventsController, allowedOrigins []string) *gin.Engine {
	router := gin.Default()
	config := cors.DefaultConfig()
	config.AllowOrigins = allowedOrigins
	config.AllowCredentials = true
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
		userIDHeader,
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	config.ExposeHeaders = []string{"Set-Cookie"}
	router.Use(cors.New(config))
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	if queue != nil {
		q := api.Group("/queue")
		q.POST("/join", queue.Join)
		q.POST("/leave", queue.Leave)
		q.POST("/heartbeat", queue.Heartbeat)
		q.GET("/status", queue.Status)
	}

	if sessions != nil {
		s := api.Group("/sessions")
		s.GET("/:sessionID", sessions.Get)
		s.POST("/:sessionID/actions", sessions.Action)
		s.POST("/:sessionID/connected", sessions.Connected)
	}

	if events != nil {
		api.GET("/events/ws", events.Stream)
	}

	return router
}
