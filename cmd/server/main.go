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

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/iliyamo/farmwise/internal/config"
	"github.com/iliyamo/farmwise/internal/database"
	"github.com/iliyamo/farmwise/internal/handler"
	"github.com/iliyamo/farmwise/internal/logging"
	"github.com/iliyamo/farmwise/internal/middleware"
	"github.com/iliyamo/farmwise/internal/news"
	"github.com/iliyamo/farmwise/internal/queue"
	"github.com/iliyamo/farmwise/internal/realtime"
	"github.com/iliyamo/farmwise/internal/repository"
	"github.com/iliyamo/farmwise/internal/router"
	"github.com/iliyamo/farmwise/internal/service"
	"github.com/iliyamo/farmwise/internal/storage"
	"github.com/iliyamo/farmwise/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.IsProduction())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		logger.Warn("redis unavailable; rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}

	uploads, err := storage.New(ctx, cfg.Upload)
	if err != nil {
		logger.Fatal("upload store", zap.Error(err))
	}

	users := repository.NewUserRepo(db)
	experts := repository.NewExpertRepo(db)
	bookings := repository.NewBookingRepo(db)
	blogs := repository.NewBlogRepo(db)
	messages := repository.NewMessageRepo(db)

	// realtime core
	metrics := realtime.NewMetrics(prometheus.DefaultRegisterer)
	hub := realtime.NewHub(logger.Named("hub"), metrics)
	ingest := realtime.NewIngestor(messages, hub, cfg.Realtime.IngestWorkers, cfg.Realtime.QueueSize, logger.Named("ingest"), metrics)
	ingestDone := make(chan struct{})
	go func() {
		defer close(ingestDone)
		ingest.Run(ctx)
	}()
	verify := func(raw string) (utils.Claims, error) { return utils.ParseAccessToken(cfg.AccessSecret, raw) }
	ws := realtime.NewHandler(hub, ingest, verify, cfg.Realtime.TypingRPS, cfg.CORSOrigin, logger.Named("ws"))

	// booking events
	var events service.BookingPublisher = service.NopPublisher{}
	if cfg.RabbitURL != "" {
		events = service.NewRabbitPublisher(cfg.RabbitURL, logger.Named("publisher"))
		go func() {
			logDir := os.Getenv("BOOKING_LOG_DIR")
			if logDir == "" {
				logDir = "logs"
			}
			if err := queue.StartBookingConsumer(ctx, cfg.RabbitURL, logDir, logger.Named("consumer")); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("booking consumer stopped", zap.Error(err))
			}
		}()
	}

	respCache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb)
	expertHandler := handler.NewExpertHandler(cfg, experts, users, bookings, uploads, logger.Named("experts"))
	expertHandler.Cache = respCache

	e := router.New(router.Handlers{
		Users:    handler.NewUserHandler(cfg, users, experts, utils.Bcrypt{Cost: cfg.BcryptCost}, uploads, logger.Named("users")),
		Blogs:    handler.NewBlogHandler(cfg, blogs, uploads, logger.Named("blogs")),
		Messages: handler.NewMessageHandler(cfg, messages, ingest, uploads, logger.Named("messages")),
		Experts:  expertHandler,
		Bookings: handler.NewBookingHandler(bookings, events, logger.Named("bookings")),
		News:     handler.NewNewsHandler(news.NewClient(cfg.News.BaseURL, cfg.News.APIKey), logger.Named("news")),
		Realtime: ws,
		DB:       db,
	}, router.Options{
		AccessSecret: cfg.AccessSecret,
		CORSOrigin:   cfg.CORSOrigin,
		RateLimit:    config.LoadRateLimitConfig(),
		Cache:        respCache,
		Redis:        rdb,
		Gatherer:     prometheus.DefaultGatherer,
		Log:          logger,
	})

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	hub.CloseAll()
	select {
	case <-ingestDone:
	case <-shutdownCtx.Done():
		logger.Warn("ingestor did not stop in time")
	}
}
