package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/proisp/workflow-driver/internal/config"
	"github.com/proisp/workflow-driver/internal/database"
	"github.com/proisp/workflow-driver/internal/events"
	"github.com/proisp/workflow-driver/internal/handlers"
	"github.com/proisp/workflow-driver/internal/middleware"
	"github.com/proisp/workflow-driver/internal/models"
	"github.com/proisp/workflow-driver/internal/scheduler"
	"github.com/proisp/workflow-driver/internal/services"
	"github.com/proisp/workflow-driver/internal/store"
	"github.com/proisp/workflow-driver/internal/workflow"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	sugar.Infow("starting subscriber workflow driver", "owner_service_id", cfg.OwnerServiceID)

	if err := database.Connect(cfg, sugar); err != nil {
		sugar.Fatalw("failed to connect to database", "error", err)
	}
	defer database.Close()

	if err := models.AutoMigrate(database.DB); err != nil {
		sugar.Fatalw("failed to run migrations", "error", err)
	}

	redisAddr := fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort)

	st := store.New(database.DB)
	topo := store.NewTopology(database.DB)
	engine := workflow.NewEngine(st, topo, sugar, workflow.Options{
		OwnerID:                     cfg.OwnerServiceID,
		CreateSubscriberOnDiscovery: cfg.CreateSubscriberOnDiscovery,
	})

	retrier := scheduler.NewClient(redisAddr, cfg.RedisPassword, cfg.ReconcileMaxRetry)
	defer retrier.Close()

	dispatcher := workflow.NewDispatcher(engine, retrier, sugar)
	consumer := events.NewConsumer(database.Redis, dispatcher, sugar)
	worker := scheduler.NewWorker(redisAddr, cfg.RedisPassword, engine, sugar)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			sugar.Errorw("bus consumer stopped", "error", err)
		}
	}()
	go worker.Run(ctx)

	sweep := services.NewPolicySweepService(engine, st, cfg.OwnerServiceID, cfg.SweepIntervalMinutes, sugar)
	sweep.Start()

	app := newAPI(cfg, sugar)
	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			sugar.Errorw("ops api stopped", "error", err)
		}
	}()

	sugar.Infow("workflow driver started", "api_port", cfg.APIPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sugar.Infow("shutting down")
	cancel()
	sweep.Stop()
	_ = app.Shutdown()
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newAPI(cfg *config.Config, sugar *zap.SugaredLogger) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(middleware.RequestLogger(sugar))

	status := handlers.NewStatusHandler(cfg.OwnerServiceID)
	app.Get("/health", status.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api", middleware.RequireAuth(cfg))
	api.Get("/service-instances", status.ListServiceInstances)
	api.Get("/service-instances/:serial", status.GetServiceInstance)
	api.Get("/whitelist", status.ListWhitelist)
	api.Get("/subscribers/:serial", status.GetSubscriber)

	return app
}
