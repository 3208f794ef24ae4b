package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	// LocalsIdentity 검증된 Identity가 저장되는 fiber Locals 키
	LocalsIdentity = "identity"
	// LocalsToken 요청에 실린 원본 토큰
	LocalsToken = "token"
)

// TokenFromRequest Authorization 헤더, access_token 쿠키, token 쿼리 순으로 토큰 추출
func TokenFromRequest(c *fiber.Ctx) string {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie := c.Cookies("access_token"); cookie != "" {
		return cookie
	}
	return c.Query("token")
}

// IdentityFrom Locals에서 Identity 조회
func IdentityFrom(c *fiber.Ctx) (*Identity, bool) {
	id, ok := c.Locals(LocalsIdentity).(*Identity)
	return id, ok && id != nil
}

// AuthMiddleware JWT 인증 미들웨어
func AuthMiddleware(v Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := TokenFromRequest(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing authorization token",
			})
		}

		identity, err := v.Verify(token)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "token expired",
					"code":  "TOKEN_EXPIRED",
				})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token",
			})
		}

		c.Locals(LocalsIdentity, identity)
		return c.Next()
	}
}

// OptionalAuthMiddleware 선택적 인증 미들웨어 (인증 실패해도 계속 진행)
//
// 원본 토큰은 LocalsToken에 남겨 WebSocket 핸들러가 검증 실패를 기록할 수 있게 한다.
func OptionalAuthMiddleware(v Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := TokenFromRequest(c)
		c.Locals(LocalsToken, token)

		if token != "" {
			if identity, err := v.Verify(token); err == nil {
				c.Locals(LocalsIdentity, identity)
			}
		}

		return c.Next()
	}
}
