package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mongosession/config"
	"mongosession/converter"
	"mongosession/handler"
	"mongosession/middleware"
	"mongosession/model"
	"mongosession/repository"
	"mongosession/services"
	"mongosession/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type app struct {
	cfg    *config.Config
	logger *zap.Logger
	repo   *repository.SessionRepo
	conv   *converter.SessionConverter
	db     handler.Pinger
	cache  handler.CacheStatus
}

func setupRouter(a *app) *gin.Engine {
	if a.cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestTracingMiddleware())
	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/healthz", handler.HealthHandler(a.db, a.cache, a.logger))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	sessionHandler := handler.NewSessionHandler(a.repo, a.cfg.Session, a.conv, a.logger)

	api := router.Group("/api")
	api.Use(middleware.RequestSizeLimiter(int64(a.cfg.MaxBodySize)))
	api.Use(middleware.SessionMiddleware(a.repo, a.cfg.Session, model.RealClock{}, a.logger))
	{
		session := api.Group("/session")
		{
			session.GET("", sessionHandler.GetSession)
			session.PUT("/attributes/:name", sessionHandler.SetAttribute)
			session.DELETE("/attributes/:name", sessionHandler.DeleteAttribute)
			session.POST("/login", sessionHandler.Login)
			session.POST("/logout", sessionHandler.Logout)
		}

		// Session management endpoints
		sessions := api.Group("/sessions")
		sessions.Use(middleware.RequirePrincipal())
		{
			sessions.GET("", sessionHandler.ListPrincipalSessions)
			sessions.GET("/search", sessionHandler.SearchSessions)
		}
	}

	return router
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	client, err := utils.NewMongoClient(ctx, cfg.Mongo.ClientOptions(), cfg.Mongo.OperationTimeout)
	if err != nil {
		logger.Fatal("failed to initialize MongoDB", zap.Error(err))
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Warn("failed to disconnect from MongoDB", zap.Error(err))
		}
	}()

	coll := client.Database(cfg.Mongo.DatabaseName).Collection(cfg.Mongo.Collection)
	if err := repository.SetupIndexes(ctx, coll, logger); err != nil {
		logger.Fatal("failed to set up indexes", zap.Error(err))
	}

	conv := converter.NewSessionConverter(nil)
	a := &app{cfg: cfg, logger: logger, conv: conv, db: client}

	var cache repository.SessionCache
	if cfg.Redis.URL != "" {
		sc, err := services.NewSessionCache(ctx, cfg.Redis.URL, conv, model.RealClock{})
		if err != nil {
			// Sessions still work from MongoDB alone.
			logger.Warn("session cache disabled", zap.Error(err))
		} else {
			defer sc.Close()
			cache = sc
			a.cache = sc
		}
	}

	a.repo = repository.GetSessionRepo(coll, repository.SessionRepoConfig{
		MaxInactiveInterval: cfg.Session.MaxInactiveInterval,
		OperationTimeout:    cfg.Mongo.OperationTimeout,
	}, conv, cache, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	sig := <-signalChan
	logger.Info("shutdown signal received", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("server shutdown complete")
}
