package ws

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"notebookCollab/backend/internal/collab"
)

// 允许本地开发环境的来源
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" { // 一些环境不发送 Origin，或为 "null"
		return true
	}
	for _, p := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

type Manager struct {
	h   *Hub
	svc collab.Service
	sem *collab.SemaphoreControl
}

func NewManager(h *Hub, svc collab.Service, sem *collab.SemaphoreControl) *Manager {
	return &Manager{h: h, svc: svc, sem: sem}
}

// WebSocketConnect 升级连接；userId/username 由鉴权中间件写入 gin.Context
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetUint64("userId")
	username := c.GetString("username")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	wsConn := NewConn(conn, m.h, uuid.NewString(), userID, username, m.svc, m.sem)
	log.Printf("websocket connected sid=%s user=%d", wsConn.sid, userID)

	// 先启动写循环，再进入读循环（阻塞至连接关闭）
	done := make(chan struct{})
	go func() {
		wsConn.writeLoop()
		close(done)
	}()
	wsConn.readLoop(c.Request.Context())
	<-done
}
