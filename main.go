package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"moment-service/internal/auth"
	"moment-service/internal/config"
	"moment-service/internal/db"
	"moment-service/internal/handlers"
	"moment-service/internal/middleware"
	"moment-service/internal/moments"
	"moment-service/internal/observability"
	"moment-service/internal/presence"
	"moment-service/internal/push"
	"moment-service/internal/rabbitmq"
	"moment-service/internal/repositories"
	"moment-service/internal/telemetry"
	"moment-service/internal/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(shutdownCtx)
		}()
	}

	if cfg.AMQPURL != "" {
		eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.EventExchange)
		if err != nil {
			log.Printf("event publisher disabled: %v", err)
		} else {
			observability.SetPublisher(eventPublisher)
			defer eventPublisher.Close()
		}
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AuditExchange)
	defer auditPublisher.Close()
	log.Printf("audit publisher mode=%s reason=%q", rabbitmq.PublisherMode(auditPublisher), rabbitmq.PublisherNoopReason(auditPublisher))
	audit := telemetry.NewAuditEmitter(auditPublisher, "audit.moment-service", cfg.ServiceName, cfg.Environment)

	pushSender := push.NewSender(cfg.AMQPURL, cfg.PushExchange)
	log.Printf("push sender mode=%s", push.SenderMode(pushSender))

	partyRepo := repositories.NewPartyRepo(database)
	pairingRepo := repositories.NewPairingRepo(database)
	inviteRepo := repositories.NewInviteRepo(database)
	momentRepo := repositories.NewMomentRepo(database)
	taskRepo := repositories.NewDeliveryTaskRepo(database)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	hub := ws.NewHub()
	broadcaster := presence.NewBroadcaster(pairingRepo, hub)

	queue := moments.NewQueue(taskRepo, hub, cfg.TaskRetention)
	queue.StartSweeper(ctx, cfg.SweepInterval)

	pipeline := moments.NewPipeline(partyRepo, pairingRepo, momentRepo, queue, hub, pushSender, moments.NewJPEGNormalizer(), cfg.DailySendLimit)

	sessionHandler := ws.NewSessionHandler(hub, verifier, partyRepo, pairingRepo, broadcaster, queue)
	pairHandler := handlers.NewPairHandler(partyRepo, pairingRepo, inviteRepo, hub, broadcaster, pushSender, audit, cfg.InviteTTL)
	momentHandler := handlers.NewMomentHandler(pipeline, partyRepo, pairingRepo, momentRepo, audit)
	partyHandler := handlers.NewPartyHandler(partyRepo, hub, audit)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier, partyRepo)
	rateLimiter := middleware.NewRateLimiter(time.Minute, 120)

	router.GET("/health", handlers.Health(database, partyRepo, hub))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/", authMiddleware, rateLimiter.Middleware())

	api.POST("/pairs/invite", pairHandler.CreateInvite)
	api.POST("/pairs/join", pairHandler.JoinWithInvite)
	api.DELETE("/pairs", pairHandler.Unpair)
	api.GET("/pairs/partner", pairHandler.GetPartner)

	api.POST("/moments", momentHandler.Upload)
	api.GET("/moments/latest", momentHandler.Latest)

	api.GET("/parties/me", partyHandler.Me)
	api.PUT("/parties/push-token", partyHandler.RegisterPushToken)
	api.PUT("/parties/settings", partyHandler.UpdateSettings)

	router.GET("/ws", sessionHandler.Handle)

	handlers.RegisterDebugRoutes(router, audit, hub, cfg.DebugRoutes)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		log.Printf("listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
