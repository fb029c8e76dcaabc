package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/immxrtalbeast/speeddating/internal/api/http"
	"github.com/immxrtalbeast/speeddating/internal/config"
	"github.com/immxrtalbeast/speeddating/internal/domain"
	"github.com/immxrtalbeast/speeddating/internal/notify"
	"github.com/immxrtalbeast/speeddating/internal/repository"
	"github.com/immxrtalbeast/speeddating/internal/room"
	"github.com/immxrtalbeast/speeddating/internal/service"
	"github.com/immxrtalbeast/speeddating/lib/clock"
	"github.com/immxrtalbeast/speeddating/lib/logger/sl"
	"github.com/immxrtalbeast/speeddating/lib/logger/slogpretty"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := connectDatabase(cfg.Database)
	if err != nil {
		log.Error("failed to connect database", sl.Err(err))
		os.Exit(1)
	}

	rdb, err := connectRedis(ctx, cfg.Redis)
	if err != nil {
		log.Error("failed to connect redis", sl.Err(err))
		os.Exit(1)
	}
	defer rdb.Close()

	c := clock.Real{}

	queueStore := repository.NewRedisQueueStore(rdb, cfg.Redis.KeyPrefix)
	pairingStore := repository.NewRedisPairingStore(rdb, cfg.Redis.KeyPrefix)
	locker := repository.NewRedisMatchLocker(rdb, cfg.Redis.KeyPrefix)

	sessionRepo := repository.NewPostgresSessionRepository(db)
	actionRepo := repository.NewPostgresActionRepository(db)
	matchRepo := repository.NewPostgresMatchRepository(db)
	icebreakerRepo := repository.NewPostgresIcebreakerRepository(db)
	profileRepo := repository.NewPostgresProfileRepository(db)
	roomRepo := repository.NewPostgresRoomRepository(db)

	provisioner, err := room.NewProvisioner(roomRepo, room.Options{
		BaseURL:         cfg.Rooms.BaseURL,
		TokenSecret:     cfg.Rooms.TokenSecret,
		TokenTTL:        cfg.Rooms.TokenTTL,
		SessionDuration: cfg.Session.Duration,
		STUNServers:     cfg.WebRTC.STUNServers,
	}, c, log)
	if err != nil {
		log.Error("failed to set up room provisioner", sl.Err(err))
		os.Exit(1)
	}

	// Events go through redis so every instance delivers to its own sockets.
	hub := notify.NewHub(0, log)
	bus := notify.NewRedisBus(rdb, cfg.Redis.KeyPrefix, log)
	forwarding := make(chan struct{})
	forwardErr := make(chan error, 1)
	go func() {
		forwardErr <- bus.Forward(ctx, hub, forwarding)
	}()
	select {
	case <-forwarding:
	case err := <-forwardErr:
		log.Error("failed to subscribe to events", sl.Err(err))
		os.Exit(1)
	case <-ctx.Done():
		return
	}

	engine := service.NewMatchingEngine(service.MatchingDeps{
		Queue:       queueStore,
		Pairings:    pairingStore,
		Locker:      locker,
		Sessions:    sessionRepo,
		Icebreakers: icebreakerRepo,
		Rooms:       provisioner,
		Publisher:   bus,
		Clock:       c,
		Log:         log,
	}, service.MatchingOptions{
		Window:          cfg.Matching.Window,
		LockTTL:         cfg.Matching.LockTTL,
		PairingTTL:      cfg.Matching.PairingTTL,
		SessionDuration: cfg.Session.Duration,
	})

	eventService := service.NewEventService(service.EventDeps{
		Queue:     queueStore,
		Sessions:  sessionRepo,
		Actions:   actionRepo,
		Matches:   matchRepo,
		Profiles:  profileRepo,
		Matcher:   engine,
		Publisher: bus,
		Points: domain.PointsPolicy{
			Vibe:       cfg.Points.Vibe,
			MutualVibe: cfg.Points.MutualVibe,
			Skip:       cfg.Points.Skip,
			Report:     cfg.Points.Report,
		},
		Clock: c,
		Log:   log,
	})

	sweeper := service.NewSweeper(service.SweeperDeps{
		Queue:     queueStore,
		Locker:    locker,
		Sessions:  sessionRepo,
		Rooms:     roomRepo,
		Matcher:   eventService,
		Publisher: bus,
		Clock:     c,
		Log:       log,
	}, service.SweeperOptions{
		InactivityThreshold:    cfg.Queue.InactivityThreshold,
		MaxWait:                cfg.Queue.MaxWait,
		SessionDuration:        cfg.Session.Duration,
		HeartbeatSweepInterval: cfg.Queue.HeartbeatSweepInterval,
		CleanupInterval:        cfg.Queue.CleanupInterval,
		SessionSweepInterval:   cfg.Session.SweepInterval,
		PositionUpdateInterval: cfg.Queue.PositionUpdateInterval,
		PollInterval:           cfg.Matching.PollInterval,
	})
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(ctx)
	}()

	queueController := httpapi.NewQueueController(eventService)
	sessionController := httpapi.NewSessionController(eventService)
	eventsController := httpapi.NewEventsController(hub, eventService, log)

	router := httpapi.SetupRouter(queueController, sessionController, eventsController, cfg.HTTP.AllowedOrigins)

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting application", slog.String("addr", cfg.HTTP.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", sl.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", sl.Err(err))
	}
	<-sweeperDone

	log.Info("application stopped")
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := repository.AutoMigrate(db); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return rdb, nil
}
