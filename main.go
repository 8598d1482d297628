package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"vibez-client/internal/auth"
	"vibez-client/internal/chat"
	"vibez-client/internal/config"
	"vibez-client/internal/gateway"
	"vibez-client/internal/handlers"
	"vibez-client/internal/history"
	"vibez-client/internal/models"
	"vibez-client/internal/notify"
	"vibez-client/internal/observability"
	"vibez-client/internal/sink"
	"vibez-client/internal/stomp"
	"vibez-client/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config load failed")
	}

	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Endpoint != "" {
		shutdown, err := observability.SetupTracing(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
		if err != nil {
			logger.Fatal().Err(err).Msg("tracing setup failed")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("tracing shutdown failed")
			}
		}()
	}

	tokens := tokenSource(cfg.Auth)
	self := cfg.Auth.Username
	if self == "" {
		token, err := tokens.Token(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("no credential available")
		}
		claims, err := auth.ParseClaims(token)
		if err != nil {
			logger.Fatal().Err(err).Msg("cannot derive username from token; set auth.username")
		}
		self = claims.Subject
	}
	logger.Info().Str("username", self).Msg("starting vibez client")

	var archive *history.Store
	if cfg.Cache.Path != "" {
		archive, err = history.Open(cfg.Cache.Path)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.Cache.Path).Msg("history cache open failed")
		}
		defer archive.Close()
	}

	events := sink.NewPublisher(cfg.Sink.AMQPURL, cfg.Sink.Exchange, logger)
	defer events.Close()
	logger.Info().Str("mode", sink.Mode(events)).Msg("event sink ready")

	api := gateway.NewClient(cfg.API.BaseURL, tokens, logger)

	realtime := transport.NewClient(transport.Config{
		URL: cfg.Realtime.URL,
		HeartBeat: stomp.HeartBeat{
			SendInterval: cfg.Realtime.HeartbeatSend,
			RecvInterval: cfg.Realtime.HeartbeatRecv,
		},
		ReconnectDelay:   cfg.Realtime.ReconnectDelay,
		HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
		Logger:           logger,
	}, tokens)
	realtime.OnStateChange = func(state transport.State) {
		logger.Info().Str("state", state.String()).Msg("realtime state change")
		event := sink.NewEnvelope("connection.state", map[string]string{"state": state.String()})
		if err := events.Publish(context.Background(), sink.KeyConnection, event); err != nil {
			logger.Debug().Err(err).Msg("connection event publish failed")
		}
	}
	realtime.OnConnectionLost = func(err error) {
		logger.Error().Err(err).Msg("realtime connection lost for good")
	}

	var chatArchive chat.Archive
	var notifyArchive notify.Archive
	if archive != nil {
		chatArchive = archive
		notifyArchive = archive
	}

	session := chat.NewManager(self, api, realtime, chatArchive, logger)
	session.OnMessage = func(msg models.Message) {
		if err := events.Publish(context.Background(), sink.KeyChatMessage, sink.NewEnvelope("chat.message", msg)); err != nil {
			logger.Debug().Err(err).Msg("chat event publish failed")
		}
	}
	session.OnUpdate = func(update models.RoomUpdate) {
		if err := events.Publish(context.Background(), sink.KeyChatUpdate, sink.NewEnvelope("chat.update", update)); err != nil {
			logger.Debug().Err(err).Msg("chat update publish failed")
		}
	}

	center := notify.NewNotifier(api, realtime, notifyArchive, logger)

	// Subscriptions must be registered before the first connect so they are
	// replayed on the session that comes up.
	if err := session.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("chat session start failed")
	}
	if err := center.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("notification client start failed")
	}

	go func() {
		if err := realtime.Connect(ctx); err != nil {
			if errors.Is(err, transport.ErrAuthRejected) {
				logger.Error().Err(err).Msg("realtime connect rejected; refresh the credential and restart")
				stop()
				return
			}
			logger.Error().Err(err).Msg("realtime connect failed")
		}
	}()

	go func() {
		for toast := range center.Toasts() {
			if err := events.Publish(context.Background(), sink.KeyNotification, sink.NewEnvelope("notification", toast)); err != nil {
				logger.Debug().Err(err).Msg("notification event publish failed")
			}
		}
	}()

	router := newRouter(cfg, api, session, center, realtime)
	server := &http.Server{Addr: cfg.Control.ListenAddr, Handler: router}

	go func() {
		logger.Info().Str("addr", cfg.Control.ListenAddr).Msg("control api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("control api failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("control api shutdown failed")
	}
	realtime.Disconnect()
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var out = zerolog.MultiLevelWriter(os.Stderr)
	if cfg.Pretty {
		out = zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func tokenSource(cfg config.AuthConfig) auth.TokenSource {
	if cfg.Token != "" {
		return auth.StaticTokenSource(cfg.Token)
	}
	return &auth.FileTokenSource{Path: cfg.TokenFile}
}

func newRouter(cfg *config.Config, api *gateway.Client, session *chat.Manager, center *notify.Notifier, realtime *transport.Client) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	chatHandler := handlers.NewChatHandler(session)
	notificationHandler := handlers.NewNotificationHandler(center)
	statusHandler := handlers.NewStatusHandler(realtime)
	mediaHandler := handlers.NewMediaHandler(api)

	router.GET("/healthz", statusHandler.Health)
	router.GET("/status", statusHandler.Status)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/rooms", chatHandler.ListRooms)
	router.POST("/rooms/private", chatHandler.StartPrivateChat)
	router.POST("/rooms/group", chatHandler.StartGroupChat)
	router.POST("/rooms/close", chatHandler.CloseRoom)
	router.POST("/rooms/:room_id/open", chatHandler.OpenRoom)
	router.GET("/rooms/:room_id/messages", chatHandler.GetMessages)
	router.POST("/rooms/:room_id/messages", chatHandler.PostMessage)
	router.PATCH("/messages/:message_id", chatHandler.EditMessage)
	router.DELETE("/messages/:message_id", chatHandler.DeleteMessage)

	router.GET("/feed", mediaHandler.Feed)
	router.GET("/search/users", mediaHandler.SearchUsers)
	router.POST("/device-token", mediaHandler.RegisterDevice)

	router.GET("/notifications", notificationHandler.List)
	router.GET("/notifications/toast", notificationHandler.Toast)
	router.DELETE("/notifications/toast", notificationHandler.DismissToast)
	router.POST("/notifications/read-all", notificationHandler.ReadAll)
	router.PATCH("/notifications/:id/read", notificationHandler.ReadOne)

	return router
}
