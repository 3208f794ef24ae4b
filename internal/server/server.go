package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"stromboard/internal/auth"
	"stromboard/internal/config"
	"stromboard/internal/handler"
	"stromboard/internal/logging"
	"stromboard/internal/metrics"
	"stromboard/internal/relay"
	"stromboard/internal/store"
)

// Deps 서버가 사용하는 저장소/외부 구성요소
type Deps struct {
	DB       *gorm.DB
	Sessions store.SessionStore
	Users    store.UserStore
	// Cache 헬스체크 대상 (nil이면 미설정)
	Cache handler.HealthChecker
}

// Server Fiber 서버 래퍼
type Server struct {
	app        *fiber.App
	cfg        *config.Config
	log        zerolog.Logger
	jwtManager *auth.JWTManager

	hub    *relay.Hub
	bridge *relay.Bridge

	sessionHandler *handler.SessionHandler
	authHandler    *handler.AuthHandler
	healthHandler  *handler.HealthHandler
	wsHandler      *handler.RelayWSHandler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 새 서버 인스턴스 생성
func New(cfg *config.Config, deps Deps) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Stromboard Relay",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		BodyLimit:             10 * 1024 * 1024, // 10MB (drawingData 스냅샷)
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		DisableStartupMessage: true,
	})

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry, cfg.Auth.Issuer)

	bridge := relay.NewBridge(deps.Sessions, cfg.Relay.PersistQueueSize, cfg.Relay.PersistTimeout)
	hub := relay.NewHub(relay.NewDirectory(), jwtManager, bridge, cfg.Relay.CommandBufferSize)

	return &Server{
		app:            app,
		cfg:            cfg,
		log:            logging.Component("server"),
		jwtManager:     jwtManager,
		hub:            hub,
		bridge:         bridge,
		sessionHandler: handler.NewSessionHandler(deps.Sessions, hub.Directory()),
		authHandler:    handler.NewAuthHandler(deps.Users, jwtManager, cfg.Auth.TokenExpiry, cfg.Auth.BcryptCost, cfg.Auth.SecureCookie),
		healthHandler:  handler.NewHealthHandler(deps.DB, deps.Cache, hub),
		wsHandler:      handler.NewRelayWSHandler(hub, cfg.WebSocket),
	}
}

// App 테스트용 fiber 앱 접근
func (s *Server) App() *fiber.App {
	return s.app
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅 (zerolog 출력으로)
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		Output:     logging.Logger(),
	}))

	// 요청 지표
	s.app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		route := c.Route().Path
		metrics.RecordHTTPRequest(c.Method(), route, strconv.Itoa(c.Response().StatusCode()), time.Since(start))
		return err
	})

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: s.cfg.CORS.AllowOrigins != "*",
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	api := s.app.Group("/api")

	// 헬스체크 엔드포인트
	api.Get("/health", s.healthHandler.Check)
	api.Get("/ping", s.healthHandler.Ping)

	// Rate Limiter 설정 (인증 엔드포인트용 - Brute Force 방지)
	authLimiter := limiter.New(limiter.Config{
		Max:        s.cfg.Auth.LoginLimit,
		Expiration: s.cfg.Auth.LimitWindow,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() // IP 기반 제한
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	// Auth 라우트 그룹
	authGroup := api.Group("/auth")
	authGroup.Post("/register", authLimiter, s.authHandler.Register)
	authGroup.Post("/login", authLimiter, s.authHandler.Login)
	authGroup.Post("/logout", s.authHandler.Logout)
	authGroup.Get("/me", auth.AuthMiddleware(s.jwtManager), s.authHandler.GetMe)

	// Session 라우트 그룹 (익명 허용)
	sessionGroup := api.Group("/sessions")
	sessionGroup.Post("", auth.OptionalAuthMiddleware(s.jwtManager), s.sessionHandler.CreateSession)
	sessionGroup.Get("", s.sessionHandler.ListSessions)
	sessionGroup.Get("/:id", s.sessionHandler.GetSession)
	sessionGroup.Put("/:id", s.sessionHandler.UpdateSession)
	sessionGroup.Delete("/:id", s.sessionHandler.DeleteSession)
	sessionGroup.Get("/:id/participants", s.sessionHandler.GetParticipants)

	// Prometheus
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// WebSocket 릴레이 엔드포인트
	s.app.Get("/ws", s.wsHandler.Upgrade, websocket.New(s.wsHandler.HandleWebSocket, s.wsHandler.Config()))
}

// runWorkers Hub 루프와 스냅샷 워커 시작
func (s *Server) runWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error().Err(err).Msg("hub stopped")
		}
	}()
	go func() {
		defer s.wg.Done()
		if err := s.bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error().Err(err).Msg("snapshot worker stopped")
		}
	}()
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	s.runWorkers()

	// Graceful Shutdown 설정
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		s.log.Info().Msg("shutting down server")
		if err := s.Shutdown(); err != nil {
			s.log.Error().Err(err).Msg("server shutdown")
		}
	}()

	s.log.Info().
		Str("addr", s.cfg.Server.Port).
		Str("ws", "ws://localhost"+s.cfg.Server.Port+"/ws").
		Msg("stromboard relay starting")

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown Hub를 먼저 멈춰 WebSocket 연결을 닫고 대기 중인 스냅샷을 저장한 뒤 HTTP 서버 종료
func (s *Server) Shutdown() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return s.app.ShutdownWithTimeout(s.cfg.Server.ShutdownTimeout)
}
