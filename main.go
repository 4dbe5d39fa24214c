package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/card-scanner/internal/auth"
	"github.com/example/card-scanner/internal/capture"
	"github.com/example/card-scanner/internal/config"
	"github.com/example/card-scanner/internal/handlers"
	"github.com/example/card-scanner/internal/httpclient"
	"github.com/example/card-scanner/internal/interpreter"
	"github.com/example/card-scanner/internal/live"
	"github.com/example/card-scanner/internal/logging"
	"github.com/example/card-scanner/internal/repository"
	"github.com/example/card-scanner/internal/screen"
)

func main() {
	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := httpclient.New(cfg.ServiceURL, cfg.Timeout)
	if err != nil {
		logger.Fatal("failed to build service client", zap.Error(err))
	}
	var gateway interpreter.Client = interpreter.NewGateway(client, logger)
	if cfg.RedisAddr != "" {
		redisCtx, redisCancel := context.WithTimeout(startupCtx, 5*time.Second)
		redisClient := initRedis(redisCtx, cfg.RedisAddr, logger)
		redisCancel()
		defer redisClient.Close()
		gateway = interpreter.NewCachedClient(gateway, interpreter.NewRedisCache(redisClient), cfg.CacheTTL, logger)
	}

	var (
		history       screen.History
		historyReader handlers.HistoryReader
	)
	if cfg.DatabaseDSN != "" {
		db := initDatabase(startupCtx, cfg.DatabaseDSN, logger)
		repo := repository.NewScanRepository(db, logger)
		if err := repo.AutoMigrate(startupCtx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
		history, historyReader = repo, repo
	}

	camera := capture.PermissionGate{
		Camera:  capture.NewWebcam(cfg.CameraDevice, ""),
		Allowed: cfg.CameraAllowed,
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	hub := live.NewHub(logger)
	go hub.Run(runCtx)

	store := screen.NewStore(screen.InitialState())
	store.Subscribe(func(s screen.State) { hub.Publish("view", screen.Derive(s)) })
	alerts := screen.NewAlertBoard()
	alerts.OnChange(func(pending []screen.Alert) { hub.Publish("alerts", pending) })

	ctrl := screen.NewController(store, gateway, camera, alerts, history, logger)
	ctrl.RefreshCamera(startupCtx)

	var authMiddleware gin.HandlerFunc
	if cfg.JWTSecret != "" {
		authMiddleware = auth.BearerAuth(cfg.JWTSecret, cfg.JWTAudience)
	}

	r := gin.Default()
	r.MaxMultipartMemory = handlers.MaxUploadSize
	handlers.RegisterRoutes(r, handlers.Deps{
		Controller: ctrl,
		Alerts:     alerts,
		Hub:        hub,
		History:    historyReader,
		GalleryDir: cfg.GalleryDir,
		Logger:     logger,
	}, authMiddleware)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	logger.Info("card scanner listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("service_url", client.BaseURL()),
		zap.Bool("cache", cfg.RedisAddr != ""),
		zap.Bool("history", cfg.DatabaseDSN != ""),
	)
	if err := serveHTTPServer(server, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh := signalCh
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
