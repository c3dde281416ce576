package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/LingByte/LingBridge/pkg/callhistory"
	"github.com/LingByte/LingBridge/pkg/config"
	"github.com/LingByte/LingBridge/pkg/logger"
	"github.com/LingByte/LingBridge/pkg/relay"
)

func main() {
	// 1. Parse Command Line Parameters
	addr := flag.String("port", "", "Port to listen on")
	mode := flag.String("mode", "", "running environment (development, test, production)")
	dsn := flag.String("dsn", "", "database source name")
	flag.Parse()
	if *mode != "" {
		os.Setenv("MODE", *mode)
	}

	// 2. Load Global Configuration
	if err := config.Load(); err != nil {
		panic("config load failed: " + err.Error())
	}

	// 3. Load Log Configuration
	if err := logger.Init(&config.GlobalConfig.Log, config.GlobalConfig.Mode); err != nil {
		panic(err)
	}
	defer logger.Sync()

	// 4. Resolve Base Configs
	if *addr == "" {
		*addr = config.GlobalConfig.Server.Addr
	}
	if !strings.HasPrefix(*addr, ":") {
		*addr = ":" + *addr
	}
	if *dsn == "" {
		*dsn = config.GlobalConfig.DSN
	}
	if *dsn == "" {
		*dsn = "lingbridge.db"
	}

	logger.Info("checked config -- addr: ", zap.String("addr", *addr))
	logger.Info("checked config -- dsn: ", zap.String("dsn", *dsn))
	logger.Info("checked config -- mode: ", zap.String("mode", config.GlobalConfig.Mode))

	// 5. Load Data Source
	db, err := gorm.Open(sqlite.Open(*dsn), &gorm.Config{})
	if err != nil {
		logger.Error("database setup failed", zap.Error(err))
		return
	}
	history, err := callhistory.NewService(db)
	if err != nil {
		logger.Error("call history setup failed", zap.Error(err))
		return
	}

	// 6. Presence Store (redis when configured, in-memory otherwise)
	var presence relay.PresenceRepo
	if redisAddr := config.GlobalConfig.RedisAddr; redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		presence = relay.NewRedisPresence(rdb)
		logger.Info("presence store: redis", zap.String("addr", redisAddr))
	} else {
		presence = relay.NewMemoryPresence()
		logger.Info("presence store: memory")
	}

	// 7. New App
	hub := relay.NewHub(presence, history)
	server := relay.NewServer(hub)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	server.RegisterRoutes(r)
	history.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:           *addr,
		Handler:        r,
		ReadTimeout:    config.GlobalConfig.Server.ReadTimeout,
		WriteTimeout:   config.GlobalConfig.Server.WriteTimeout,
		IdleTimeout:    config.GlobalConfig.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		logger.Info("Starting HTTP server Port is", zap.String("addr", *addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server run failed", zap.Error(err))
		}
	}()

	// 8. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}
