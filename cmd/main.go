package main

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/stagechat/session-gateway/internal/config"
	"github.com/stagechat/session-gateway/internal/domain"
	"github.com/stagechat/session-gateway/internal/handler"
	"github.com/stagechat/session-gateway/internal/hijack"
	"github.com/stagechat/session-gateway/internal/hub"
	"github.com/stagechat/session-gateway/internal/kafka"
	"github.com/stagechat/session-gateway/internal/profile"
	"github.com/stagechat/session-gateway/internal/repository"
	"github.com/stagechat/session-gateway/internal/service"
	"github.com/stagechat/session-gateway/internal/upstream"
	"github.com/stagechat/session-gateway/pkg/database"
	"github.com/stagechat/session-gateway/pkg/jwt"
	pkglog "github.com/stagechat/session-gateway/pkg/log"
	"github.com/stagechat/session-gateway/pkg/middleware"
	"github.com/stagechat/session-gateway/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	// Connect to database using GORM
	db, err := database.New(cfg.DatabaseConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Auto-migrate the conversation mirror
	if err := database.AutoMigrate(db,
		&domain.ConversationModel{},
		&domain.HistoryPairModel{},
		&domain.CharacterModel{},
	); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Msg("database migration completed")

	// Initialize repository
	repo := repository.NewGormConversationRepository(db)

	// Initialize Redis: profile cache and event bus
	profiles, err := profile.NewRedisCache(cfg.PubSubConfig(), cfg.Redis.CachePrefix)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer profiles.Close()

	bus, err := pubsub.NewRedisPubSub(cfg.PubSubConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis pubsub")
	}
	defer bus.Close()
	logger.Info().Msg("redis connected")

	// Initialize Kafka producer (optional)
	var producer kafka.ActivityProducer = kafka.NoopProducer{}
	if cfg.Kafka.Enabled {
		confluentProducer, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create kafka producer")
		}
		defer confluentProducer.Close()
		producer = confluentProducer
		logger.Info().Str("topic", cfg.Kafka.Topic).Msg("kafka producer connected")
	}

	// Initialize upstream client
	backend, err := upstream.NewHTTPClient(upstream.Config{
		BaseURL:      cfg.Upstream.BaseURL,
		ServiceToken: cfg.Upstream.AuthToken,
		Timeout:      cfg.Upstream.Timeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create upstream client")
	}

	// Initialize WebSocket hub
	h := hub.NewHub(cfg.WebSocket)
	go h.Run()

	// Initialize services
	conversations := service.NewConversationService(backend, repo, repo, producer)
	chatrooms := service.NewChatroomService(backend, profiles, bus, h, producer, service.ChatroomConfig{
		Hijack: hijack.Config{
			CountdownSeconds:        cfg.Hijack.CountdownSeconds,
			OutbidRestartsCountdown: cfg.Hijack.OutbidRestartsCountdown,
		},
		ReconnectWait: cfg.Upstream.ReconnectWait,
		ProfileTTL:    cfg.Profile.TTL,
	})

	// Initialize auth middleware
	tokens, err := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create jwt manager")
	}
	authMiddleware := middleware.NewAuthMiddleware(tokens)

	// Initialize handlers
	httpHandler := handler.NewHandler(conversations, chatrooms, authMiddleware)
	sseHandler := handler.NewSSEHandler(chatrooms, bus)
	wsHandler := handler.NewWSHandler(h, cfg.WebSocket)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(*logger))

	// Register routes
	httpHandler.RegisterRoutes(r, sseHandler)
	r.GET("/ws", wsHandler.HandleWebSocket)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info().Str("addr", addr).Str("upstream", cfg.Upstream.BaseURL).Msg("session-gateway starting")
	if err := r.Run(addr); err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}
}
