package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"chatserver/controllers"
	"chatserver/middlewares"
)

func SetupRouter(chat *controllers.ChatController, serviceName string, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.CORS())
	r.Use(middlewares.Logger(log))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": serviceName, "status": "ok"})
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	conversations := r.Group("/conversations")
	{
		conversations.GET("", chat.GetBlankConversation)
		conversations.POST("/send", chat.SendMessage)
		conversations.GET("/:id", chat.GetConversation)
		conversations.POST("/:id/send", chat.SendMessage)
	}

	return r
}
