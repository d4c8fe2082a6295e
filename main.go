package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"numball/config"
	"numball/engine"
	"numball/handlers"
	"numball/models"
	"numball/repository"
	"numball/routes"
	"numball/services"
	"numball/store"
)

const (
	roomSweepInterval   = time.Minute
	onlineStatsInterval = 30 * time.Second
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		gin.SetMode(gin.ReleaseMode)
	}

	if err := engine.ValidateModeConfigs(); err != nil {
		log.Fatal().Err(err).Msg("invalid mode configuration")
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Game{},
		&models.GameMove{},
	); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient := config.InitRedis(cfg)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	sessionStore := store.NewRedisStore(redisClient)

	userRepo := repository.NewUserRepository(db)
	gameRepo := repository.NewGameRepository(db)

	authService := services.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiryHours)
	userService := services.NewUserService(userRepo, sessionStore)

	hub := services.NewHub(sessionStore, userRepo)
	gameService := services.NewGameService(userRepo, gameRepo, sessionStore, hub, services.DefaultTimings())
	roomService := services.NewRoomService(userRepo, hub, gameService)
	matchmaking := services.NewMatchmakingService(sessionStore, userRepo, hub, gameService)
	gameService.SetRoomCallback(roomService.GameFinished)
	hub.Attach(gameService, roomService, matchmaking)
	go hub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go matchmaking.RunScanner(ctx)
	go runTicker(ctx, roomSweepInterval, roomService.SweepIdleRooms)
	go runTicker(ctx, onlineStatsInterval, func() { hub.BroadcastOnlineStats(ctx) })

	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService)
	gameHandler := handlers.NewGameHandler(gameRepo)
	practiceHandler := handlers.NewPracticeHandler(sessionStore)

	router := gin.Default()
	routes.SetupRoutes(router, authHandler, userHandler, gameHandler, practiceHandler, authService, hub)

	addr := cfg.BindAddress + ":" + cfg.Port
	log.Info().Str("addr", addr).Msg("server starting")
	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func runTicker(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
