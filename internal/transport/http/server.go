package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomrelay/internal/auth"
	"github.com/vovakirdan/roomrelay/internal/config"
	"github.com/vovakirdan/roomrelay/internal/core"
)

// NewServer builds the HTTP server: health, the WebSocket endpoint and the
// diagnostics API. The API requires an admin token when a secret is configured.
func NewServer(coord *core.Coordinator, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(coord, cfg, logger)))

	api := NewAPIHandlers(coord, logger)
	group := router.Group("/api")
	if cfg.AdminJWTSecret != "" {
		group.Use(AdminMiddleware(AdminJWTConfig(cfg), logger))
	}
	group.GET("/sockets-list", api.SocketsList)
	group.POST("/check-username", api.CheckUsername)
	group.GET("/in-private", api.InPrivate)
	group.GET("/online", api.Online)
	group.GET("/messages", api.Messages)
	group.POST("/broadcast", api.Broadcast)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// AdminJWTConfig derives token settings for the diagnostics API.
func AdminJWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.AdminJWTSecret),
		Issuer:   cfg.AdminJWTIssuer,
		Audience: auth.DefaultAudience,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
