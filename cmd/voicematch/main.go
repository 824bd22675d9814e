package main

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mossy-p/voice-match/config"
	"github.com/mossy-p/voice-match/internal/clock"
	"github.com/mossy-p/voice-match/internal/handlers"
	"github.com/mossy-p/voice-match/internal/matchmaking"
	"github.com/mossy-p/voice-match/internal/middleware"
	"github.com/mossy-p/voice-match/internal/presence"
	"github.com/mossy-p/voice-match/internal/profile"
	"github.com/mossy-p/voice-match/internal/redis"
	"github.com/mossy-p/voice-match/internal/signaling"
	"github.com/mossy-p/voice-match/internal/syncstate"
)

func main() {
	cfg := config.Load()

	if cfg.Environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	if err := redis.Connect(cfg.Redis); err != nil {
		logrus.WithError(err).Fatal("failed to connect to Redis")
	}
	defer redis.Close()
	logrus.Info("Redis connection established")

	clk := clock.System{}
	mirror := redis.NewMirror(redis.GetClient(), cfg.Match.SessionTTL)
	profiles := profile.NewRedis(redis.GetClient())

	tracker := presence.NewTracker(clk, profiles, mirror, cfg.Match.ActivityWindow, cfg.Match.PurgeWindow)
	signals := signaling.NewStore(clk, profiles, tracker, mirror)
	syncs := syncstate.NewStore(clk, profiles, tracker, mirror)
	match := matchmaking.NewManager(clk, profiles, tracker, mirror, cfg.Match.ActivityWindow, signals, syncs)

	api := &handlers.API{
		JWTSecret: cfg.JWTSecret,
		Presence:  tracker,
		Match:     match,
		Signals:   signals,
		Syncs:     syncs,
		Profiles:  profiles,
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	auth := middleware.IdentityAuth(cfg.JWTSecret)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/auth/login", api.Login)

		apiGroup.POST("/pool/join", auth, api.Join)
		apiGroup.POST("/pool/leave", auth, api.Leave)
		apiGroup.GET("/pool/status", auth, api.PoolStatus)
		apiGroup.GET("/pool/peer", auth, api.FindPeer)
		apiGroup.POST("/pool/pair", auth, api.Pair)
		apiGroup.POST("/pool/next", auth, api.NextPeer)
		apiGroup.POST("/pool/terminate", auth, api.Terminate)

		apiGroup.POST("/presence/heartbeat", auth, api.Heartbeat)
		apiGroup.GET("/presence/active", api.ActiveCount)
		apiGroup.POST("/presence/purge", auth, api.Purge)

		apiGroup.POST("/signal/:peer/offer", auth, api.CreateOffer)
		apiGroup.POST("/signal/:peer/answer", auth, api.SendAnswer)
		apiGroup.POST("/signal/:peer/candidate", auth, api.ExchangeCandidate)
		apiGroup.GET("/signal/:peer", auth, api.SignalingState)
		apiGroup.DELETE("/signal/:peer", auth, api.CleanupSignaling)

		apiGroup.PUT("/sync/:peer", auth, api.SetSyncState)
		apiGroup.GET("/sync/:peer", auth, api.GetSyncState)
		apiGroup.DELETE("/sync/:peer", auth, api.CleanupSync)
	}

	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("/watch/:peer", api.Watch)
	}

	logrus.WithField("port", cfg.Port).Info("starting voice-match server")
	if err := router.Run(":" + cfg.Port); err != nil {
		logrus.WithError(err).Fatal("failed to start server")
	}
}
