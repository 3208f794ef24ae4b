package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"stromboard/internal/database"
	"stromboard/internal/relay"
)

// HealthChecker Redis 등 선택 구성요소 상태 확인
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler 헬스체크 핸들러
type HealthHandler struct {
	db    *gorm.DB
	cache HealthChecker
	hub   *relay.Hub
}

// NewHealthHandler HealthHandler 생성 (cache는 nil 허용)
func NewHealthHandler(db *gorm.DB, cache HealthChecker, hub *relay.Hub) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, hub: hub}
}

// ComponentCheck 컴포넌트 상태
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RelayStats 실시간 릴레이 현황
type RelayStats struct {
	Connections int `json:"connections"`
	Sessions    int `json:"sessions"`
}

// HealthResponse 헬스체크 응답
type HealthResponse struct {
	Status    string                    `json:"status"`
	Message   string                    `json:"message"`
	Timestamp string                    `json:"timestamp"`
	Checks    map[string]ComponentCheck `json:"checks"`
	Relay     RelayStats                `json:"relay"`
}

// Check 전체 상태 확인 (DB + Cache)
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	response := HealthResponse{
		Status:    "OK",
		Message:   "Stromboard backend is running!",
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    make(map[string]ComponentCheck),
		Relay: RelayStats{
			Connections: h.hub.Connections(),
			Sessions:    h.hub.Directory().Len(),
		},
	}

	// 1. Database 체크
	dbStart := time.Now()
	if err := database.Ping(h.db); err != nil {
		response.Status = "unhealthy"
		response.Checks["database"] = ComponentCheck{
			Status: "unhealthy",
			Error:  "database ping failed",
		}
	} else {
		response.Checks["database"] = ComponentCheck{
			Status:  "healthy",
			Latency: time.Since(dbStart).String(),
		}
	}

	// 2. Cache 체크 (장애 시 DB로 동작하므로 degraded)
	if h.cache != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		cacheStart := time.Now()
		if err := h.cache.Health(ctx); err != nil {
			response.Checks["cache"] = ComponentCheck{
				Status: "degraded",
				Error:  "cache unreachable",
			}
		} else {
			response.Checks["cache"] = ComponentCheck{
				Status:  "healthy",
				Latency: time.Since(cacheStart).String(),
			}
		}
	} else {
		response.Checks["cache"] = ComponentCheck{
			Status: "not_configured",
		}
	}

	statusCode := fiber.StatusOK
	if response.Status == "unhealthy" {
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(response)
}

// Ping 단순 응답 체크
func (h *HealthHandler) Ping(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"ok":        true,
		"timestamp": time.Now().UnixMilli(),
	})
}
