package handler

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"stromboard/internal/auth"
	"stromboard/internal/logging"
	"stromboard/internal/model"
	"stromboard/internal/store"
)

const accessTokenCookie = "access_token"

// AuthHandler 인증 핸들러
type AuthHandler struct {
	users        store.UserStore
	jwtManager   *auth.JWTManager
	tokenExpiry  time.Duration
	bcryptCost   int
	secureCookie bool
	log          zerolog.Logger
}

// NewAuthHandler AuthHandler 생성
func NewAuthHandler(users store.UserStore, jwtManager *auth.JWTManager, tokenExpiry time.Duration, bcryptCost int, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		users:        users,
		jwtManager:   jwtManager,
		tokenExpiry:  tokenExpiry,
		bcryptCost:   bcryptCost,
		secureCookie: secureCookie,
		log:          logging.Component("auth"),
	}
}

// RegisterRequest 회원가입 요청
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"omitempty,min=6,max=72"`
	Provider string `json:"provider" validate:"omitempty,oneof=email google"`
	PhotoURL string `json:"photoURL" validate:"omitempty,url,max=2048"`
}

// LoginRequest 로그인 요청
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password"`
}

// AuthResponse 인증 응답
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// UserResponse 사용자 응답
type UserResponse struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	PhotoURL *string `json:"photoURL,omitempty"`
}

func newUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		PhotoURL: u.PhotoURL,
	}
}

// Register POST /api/auth/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}

	provider := model.AuthProvider(req.Provider)
	if provider == "" {
		provider = model.AuthProviderEmail
	}
	if provider.RequiresPassword() && req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "password is required for email accounts",
		})
	}

	user := &model.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    req.Email,
		Provider: provider,
	}
	if req.PhotoURL != "" {
		user.PhotoURL = &req.PhotoURL
	}
	if req.Password != "" {
		hashed, err := auth.HashPassword(req.Password, h.bcryptCost)
		if err != nil {
			h.log.Error().Err(err).Msg("hash password")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Server error",
			})
		}
		user.Password = &hashed
	}

	if err := h.users.CreateUser(c.UserContext(), user); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "User already exists",
			})
		}
		h.log.Error().Err(err).Msg("create user")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Server error",
		})
	}

	h.log.Info().Str("user", user.ID).Str("provider", provider.String()).Msg("user registered")
	return h.issue(c, fiber.StatusCreated, user)
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}

	user, err := h.users.FindUserByEmail(c.UserContext(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return invalidCredentials(c)
		}
		h.log.Error().Err(err).Msg("find user")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Server error",
		})
	}

	// 비밀번호 없는 계정(외부 provider)은 이 경로로 로그인 불가
	if user.Password == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "No password set for this account",
		})
	}
	if err := auth.ComparePassword(*user.Password, req.Password); err != nil {
		return invalidCredentials(c)
	}

	return h.issue(c, fiber.StatusOK, user)
}

// Logout 로그아웃
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     accessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   h.secureCookie,
		HTTPOnly: true,
	})

	return c.JSON(fiber.Map{
		"message": "logged out successfully",
	})
}

// GetMe 현재 사용자 정보
func (h *AuthHandler) GetMe(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "missing authorization token",
		})
	}

	user, err := h.users.FindUserByID(c.UserContext(), identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "user not found",
			})
		}
		h.log.Error().Err(err).Msg("find user")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Server error",
		})
	}

	return c.JSON(newUserResponse(user))
}

// issue JWT 발급 후 쿠키와 바디로 반환
func (h *AuthHandler) issue(c *fiber.Ctx, status int, user *model.User) error {
	token, err := h.jwtManager.GenerateToken(auth.Identity{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("generate token")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate token",
		})
	}

	// HTTP-Only 쿠키 (WebSocket 연결 시에도 사용)
	c.Cookie(&fiber.Cookie{
		Name:     accessTokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokenExpiry.Seconds()),
		Secure:   h.secureCookie,
		HTTPOnly: true,
		SameSite: "Lax",
	})

	return c.Status(status).JSON(AuthResponse{
		Token: token,
		User:  newUserResponse(user),
	})
}

func invalidCredentials(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Invalid credentials",
	})
}
