package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resumable-upload/conf"
	"resumable-upload/controller"
	"resumable-upload/database"
	"resumable-upload/notify"
	"resumable-upload/service/upload_service"
	"resumable-upload/storage"
)

var ENV string

func init() {
	flag.StringVar(&ENV, "env", "loc", "Environment: loc/prod/test/example")
}

// @title           Resumable Upload API
// @version         1.0
// @description     Chunked, resumable file upload with server-side finalize.

// @host      localhost:7282
// @BasePath  /api/v1

// @schemes http https

// services background workers started alongside the HTTP server
type services struct {
	cleanup  *upload_service.CleanupProcessor
	mirror   *upload_service.MirrorProcessor
	notifier notify.Notifier
}

func main() {
	svc, srv, cleanup := initAll()
	defer cleanup()

	svc.cleanup.Start()
	if svc.mirror != nil {
		svc.mirror.Start()
	}

	go startServer(srv)
	log.Println("Upload API service started successfully")

	waitForShutdown()

	log.Println("Shutting down upload service...")

	// Stop taking requests before stopping the workers they feed
	shutdownServer(srv)

	svc.cleanup.Stop()
	if svc.mirror != nil {
		svc.mirror.Stop()
	}

	log.Println("Server exited")
}

// initEnv initialize environment
func initEnv() {
	env, err := conf.ParseEnvironment(ENV)
	if err != nil {
		log.Fatalf("Invalid -env: %v", err)
	}
	conf.SystemEnvironmentEnum = env
	fmt.Printf("Environment: %s\n", ENV)
}

// initAll initialize all components
func initAll() (*services, *http.Server, func()) {
	flag.Parse()

	initEnv()

	// Secrets may come from a .env file next to the binary
	if err := conf.LoadDotEnv(".env", ".env."+ENV); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	if err := conf.InitConfig(); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	log.Printf("Configuration loaded: env=%s, port=%s, db=%s, storage=%s",
		ENV, conf.Cfg.Uploader.Port, conf.Cfg.Database.Type, conf.Cfg.Storage.Type)

	if err := initDatabase(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Redis is optional, a failure only disables the cache and the shared sweep lock
	if err := database.InitRedis(); err != nil {
		log.Printf("⚠️  Redis initialization failed (cache and sweep lock disabled): %v", err)
	}

	writer, err := storage.NewChunkWriter(conf.Cfg.Uploader.DataDir)
	if err != nil {
		log.Fatalf("Failed to initialize chunk writer: %v", err)
	}

	uploadService := upload_service.NewUploadService(database.DB, writer, upload_service.Options{
		DefaultChunkSize: conf.Cfg.Uploader.ChunkSize,
		MaxChunkSize:     conf.Cfg.Uploader.MaxChunkSize,
		MaxFileSize:      conf.Cfg.Uploader.MaxFileSize,
		PeekMaxEntries:   conf.Cfg.Uploader.PeekMaxEntries,
	})

	svc := &services{notifier: notify.NopNotifier{}}

	if conf.Cfg.Notify.ZmqEnabled {
		zmqNotifier, err := notify.NewZMQNotifier(conf.Cfg.Notify.ZmqAddress)
		if err != nil {
			log.Fatalf("Failed to start ZMQ notifier: %v", err)
		}
		svc.notifier = zmqNotifier
	}
	uploadService.SetNotifier(svc.notifier)

	// Mirror storage (optional)
	mirrorStorage, err := storage.NewStorage()
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	if mirrorStorage != nil {
		svc.mirror = upload_service.NewMirrorProcessor(mirrorStorage, 2, 256)
		uploadService.SetMirror(svc.mirror)
		log.Printf("Mirror storage initialized: type=%s", conf.Cfg.Storage.Type)
	}

	svc.cleanup = upload_service.NewCleanupProcessor(uploadService,
		conf.Cfg.Uploader.SweepInterval, conf.Cfg.Uploader.SweepMaxAge, conf.Cfg.Uploader.SweepBatchSize)

	if database.IsRedisEnabled() {
		ttl := time.Duration(conf.Cfg.Redis.CacheTTL) * time.Second
		uploadService.SetCache(database.NewRedisSessionCache(database.RedisClient, ttl))
		svc.cleanup.SetLock(database.NewRedisSweepLock(database.RedisClient, "upload:sweep:lock", sweepLockTTL(conf.Cfg.Uploader.SweepInterval)))
	}

	router := controller.SetupUploadRouter(uploadService)

	srv := &http.Server{
		Addr:              ":" + conf.Cfg.Uploader.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	cleanup := func() {
		if err := svc.notifier.Close(); err != nil {
			log.Printf("Failed to close notifier: %v", err)
		}
		if database.DB != nil {
			database.DB.Close()
		}
		if err := database.CloseRedis(); err != nil {
			log.Printf("Failed to close Redis: %v", err)
		}
	}

	return svc, srv, cleanup
}

// initDatabase initialize database based on configuration
func initDatabase() error {
	dbType := database.DBType(conf.Cfg.Database.Type)

	switch dbType {
	case database.DBTypeMySQL, database.DBTypeSQLite:
		config := &database.GormConfig{
			DSN:          conf.Cfg.Database.Dsn,
			MaxOpenConns: conf.Cfg.Database.MaxOpenConns,
			MaxIdleConns: conf.Cfg.Database.MaxIdleConns,
		}
		return database.InitDatabase(dbType, config)

	case database.DBTypePebble:
		config := &database.PebbleConfig{
			DataDir: conf.Cfg.Database.DataDir,
		}
		return database.InitDatabase(database.DBTypePebble, config)

	default:
		return fmt.Errorf("%w: %q", database.ErrUnsupportedDBType, conf.Cfg.Database.Type)
	}
}

// startServer start HTTP server
func startServer(srv *http.Server) {
	log.Printf("Upload API service starting on port %s...", conf.Cfg.Uploader.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// waitForShutdown wait for shutdown signal
func waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
}

// shutdownServer gracefully shutdown server
func shutdownServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
}

// sweepLockTTL keeps the lock through a sweep that overruns its interval, yet frees it
// if the holder dies
func sweepLockTTL(interval time.Duration) time.Duration {
	ttl := 2 * interval
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}
