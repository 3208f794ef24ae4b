package connection

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"stromboard/internal/auth"
)

var (
	ErrClosed            = errors.New("connection closed")
	ErrAlreadyAuthorized = errors.New("connection already authenticated")
	ErrEmptySessionID    = errors.New("session id is required")
)

// State 연결 상태
//
//	Connected -> Authenticated? -> Joined(sessionID) -> Disconnected
type State int

const (
	StateConnected     State = iota // 익명 연결
	StateAuthenticated              // 토큰 검증 완료, 세션 미참여
	StateJoined                     // 세션 참여 중
	StateDisconnected               // 연결 종료
)

// String 상태를 문자열로 반환
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Connection 클라이언트 연결 하나의 상태 (Thread-Safe)
type Connection struct {
	ID          string
	ConnectedAt time.Time

	mu        sync.RWMutex
	state     State
	identity  *auth.Identity
	sessionID string
}

// New 새 연결 생성 (id가 비어 있으면 uuid 발급)
func New(id string) *Connection {
	if id == "" {
		id = uuid.NewString()
	}
	return &Connection{
		ID:          id,
		ConnectedAt: time.Now(),
		state:       StateConnected,
	}
}

// Authenticate 연결 수립 시 한 번만 호출
func (c *Connection) Authenticate(identity *auth.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == StateDisconnected:
		return ErrClosed
	case c.identity != nil:
		return ErrAlreadyAuthorized
	}

	c.identity = identity
	if c.state == StateConnected {
		c.state = StateAuthenticated
	}
	return nil
}

// Join 세션 참여. 이미 다른 세션에 있었다면 이전 세션 id를 반환한다.
func (c *Connection) Join(sessionID string) (previous string, err error) {
	if sessionID == "" {
		return "", ErrEmptySessionID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisconnected {
		return "", ErrClosed
	}

	previous = c.sessionID
	c.sessionID = sessionID
	c.state = StateJoined
	return previous, nil
}

// Close 연결 종료. 최초 호출에서만 first=true, 참여 중이던 세션 id 반환
func (c *Connection) Close() (sessionID string, first bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisconnected {
		return "", false
	}

	sessionID = c.sessionID
	c.sessionID = ""
	c.state = StateDisconnected
	return sessionID, true
}

// State 현재 상태 조회
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Identity 검증된 신원 (익명이면 nil)
func (c *Connection) Identity() *auth.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// SessionID 참여 중인 세션 id
func (c *Connection) SessionID() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID, c.state == StateJoined
}

// IsClosed 연결 종료 여부 확인
func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateDisconnected
}

// Duration 연결 유지 시간
func (c *Connection) Duration() time.Duration {
	return time.Since(c.ConnectedAt)
}
