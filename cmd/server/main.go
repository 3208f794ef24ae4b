package main

import (
	"stromboard/internal/cache"
	"stromboard/internal/config"
	"stromboard/internal/database"
	"stromboard/internal/logging"
	"stromboard/internal/server"
	"stromboard/internal/store"
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("config load failed")
	}

	logging.Init(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	// 데이터베이스 연결
	db, err := database.ConnectDB(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("database connection failed")
	}
	defer database.Close(db)

	if err := database.Ping(db); err != nil {
		logging.Fatal().Err(err).Msg("database ping failed")
	}
	logging.Info().Str("driver", cfg.Database.Driver).Msg("database connected")

	deps := server.Deps{
		DB:       db,
		Sessions: store.NewGormSessionStore(db),
		Users:    store.NewGormUserStore(db),
	}

	// Redis 캐시 (선택)
	if cfg.Redis.Addr != "" {
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logging.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, session cache disabled")
		} else {
			defer redisClient.Close()
			deps.Sessions = cache.NewSessionStore(deps.Sessions, redisClient, cfg.Redis.TTL)
			deps.Cache = redisClient
			logging.Info().Str("addr", cfg.Redis.Addr).Msg("session cache enabled")
		}
	}

	// 서버 생성 및 설정
	srv := server.New(cfg, deps)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	// 서버 시작
	if err := srv.Start(); err != nil {
		logging.Fatal().Err(err).Msg("server failed to start")
	}
}
