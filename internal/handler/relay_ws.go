package handler

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"stromboard/internal/auth"
	"stromboard/internal/config"
	"stromboard/internal/logging"
	"stromboard/internal/relay"
)

const defaultPingPeriod = 54 * time.Second

// RelayWSHandler WebSocket 전송 계층 (프레임 읽기/쓰기만 담당, 상태는 Hub 소유)
type RelayWSHandler struct {
	hub *relay.Hub
	cfg config.WebSocketConfig
	log zerolog.Logger
}

// NewRelayWSHandler RelayWSHandler 생성
func NewRelayWSHandler(hub *relay.Hub, cfg config.WebSocketConfig) *RelayWSHandler {
	return &RelayWSHandler{
		hub: hub,
		cfg: cfg,
		log: logging.Component("ws"),
	}
}

// Upgrade 업그레이드 요청만 통과시키고 토큰을 Locals에 보관
func (h *RelayWSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals(auth.LocalsToken, auth.TokenFromRequest(c))
	return c.Next()
}

// Config websocket.New에 넘길 설정
func (h *RelayWSHandler) Config() websocket.Config {
	return websocket.Config{
		ReadBufferSize:  h.cfg.ReadBufferSize,
		WriteBufferSize: h.cfg.WriteBufferSize,
	}
}

// HandleWebSocket WebSocket 연결 처리
func (h *RelayWSHandler) HandleWebSocket(c *websocket.Conn) {
	token, _ := c.Locals(auth.LocalsToken).(string)

	peer := relay.NewQueuePeer(h.cfg.SendBufferSize)
	conn := h.hub.Attach(peer, token)
	if conn.IsClosed() {
		// Hub 종료 중
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		return
	}

	writerDone := make(chan struct{})
	go h.writePump(c, peer, writerDone)

	h.readPump(c, conn.ID)

	// 연결 해제 시 정리 (Hub가 peer를 닫으면 writePump 종료)
	h.hub.Detach(conn.ID)
	<-writerDone
}

// readPump 수신 루프. 한 연결의 프레임은 이 고루틴에서만 Hub로 넘어가므로 순서가 유지된다.
func (h *RelayWSHandler) readPump(c *websocket.Conn, connID string) {
	if h.cfg.MaxMessageSize > 0 {
		c.SetReadLimit(h.cfg.MaxMessageSize)
	}
	if h.cfg.PongWait > 0 {
		_ = c.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		c.SetPongHandler(func(string) error {
			return c.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		})
	}

	for {
		msgType, msg, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.log.Debug().Err(err).Str("connection", connID).Msg("read failed")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.hub.Dispatch(connID, msg)
	}
}

// writePump 송신 루프. peer 큐가 닫히면 close 프레임을 보내고 종료.
func (h *RelayWSHandler) writePump(c *websocket.Conn, peer *relay.QueuePeer, done chan<- struct{}) {
	pingPeriod := h.cfg.PingPeriod()
	if pingPeriod <= 0 {
		pingPeriod = defaultPingPeriod
	}
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
		close(done)
	}()

	for {
		select {
		case frame, ok := <-peer.Frames():
			h.setWriteDeadline(c)
			if !ok {
				_ = c.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			h.setWriteDeadline(c)
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *RelayWSHandler) setWriteDeadline(c *websocket.Conn) {
	if h.cfg.WriteTimeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	}
}
