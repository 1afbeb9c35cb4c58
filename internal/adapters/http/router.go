package http

import (
	"context"
	stdhttp "net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ChatCall/internal/adapters/signal"
	"github.com/dkeye/ChatCall/internal/app/orch"
	"github.com/dkeye/ChatCall/internal/config"
)

const sessionName = "ChatCallSession"

type Deps struct {
	Coord    *orch.Coordinator
	Messages MessageAPI
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery(), Metrics())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   3600 * 24 * 7,
		HttpOnly: true,
		SameSite: stdhttp.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(IdentityMiddleware(cfg.Auth.Mode))

	r.Static("/static", cfg.StaticPath)
	r.Static("/uploads", cfg.Uploads.Dir)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Str("auth", cfg.Auth.Mode).Msg("router setup")

	h := &handlers{
		coord:    deps.Coord,
		messages: deps.Messages,
		ice:      cfg.ICE,
		maxBody:  4*cfg.Uploads.MaxBytes + 1<<20,
	}

	api := r.Group("/api")
	if cfg.HTTP.RateRPS > 0 {
		api.Use(NewRateLimiter(cfg.HTTP.RateRPS, cfg.HTTP.RateBurst, KeyByUserOrIP()).Handler())
	}

	ctrl := signal.NewSignalWSController(deps.Coord, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
	})
	api.GET("/ws/signal", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	api.GET("/online", h.online)
	api.GET("/ice-servers", h.iceServers)

	api.GET("/auth/session", h.whoami)
	api.POST("/auth/session", h.login)
	api.DELETE("/auth/session", h.logout)

	api.POST("/messages/send/:id", h.sendMessage)
	api.GET("/messages/:id", h.history)

	return r
}
