package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mbaylor/leafwatch/internal/api/carwings"
	"github.com/mbaylor/leafwatch/internal/api/handlers"
	"github.com/mbaylor/leafwatch/internal/config"
	"github.com/mbaylor/leafwatch/internal/refresh"
	"github.com/mbaylor/leafwatch/internal/remote"
	"github.com/mbaylor/leafwatch/internal/repository"
	"github.com/mbaylor/leafwatch/internal/service"
	"github.com/mbaylor/leafwatch/internal/session"
	"github.com/mbaylor/leafwatch/internal/status"
	"github.com/mbaylor/leafwatch/pkg/units"
	"github.com/mbaylor/leafwatch/pkg/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting leafwatch", zap.String("port", cfg.ServerPort))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migrated successfully")

	vehicleRepo := repository.NewVehicleRepository(db)
	stateRepo := repository.NewStateRepository(db)

	scale, err := units.ScaleFor(cfg.DistanceUnit)
	if err != nil {
		logger.Fatal("Invalid distance unit", zap.Error(err))
	}

	client := carwings.NewClient("")
	sess := session.NewManager(logger, client, cfg.Username, cfg.Password, remote.Region(cfg.Region))

	projector := status.NewProjector(logger)
	orchestrator := refresh.NewOrchestrator(logger, sess, projector)
	scheduler := refresh.NewScheduler(logger, refresh.Intervals{
		Charging: cfg.ChargingInterval,
		Idle:     cfg.IdleInterval,
		Error:    cfg.ErrorInterval,
	})

	wsHub := ws.NewHub(logger)

	refreshService := service.NewRefreshService(
		cfg,
		logger,
		sess,
		orchestrator,
		scheduler,
		projector,
		vehicleRepo,
		stateRepo,
		wsHub,
		scale,
	)

	wsHub.SetInitDataProvider(func() *ws.InitData {
		vehicles, err := refreshService.Vehicles(context.Background())
		if err != nil {
			logger.Error("Failed to build websocket init data", zap.Error(err))
			return nil
		}
		return &ws.InitData{
			Vehicles:  vehicles,
			Snapshots: refreshService.Snapshots(),
		}
	})
	go wsHub.Run()

	if err := refreshService.Start(ctx); err != nil {
		logger.Error("Failed to start refresh service", zap.Error(err))
	}

	handler := handlers.NewHandler(logger, vehicleRepo, stateRepo, refreshService, wsHub)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	cancel()
	refreshService.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
