package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"notebookCollab/backend/internal/cache"
	"notebookCollab/backend/internal/collab"
)

const presenceTTL = 10 * time.Minute

type Hub struct {
	// 可以为 nil：单实例部署时不记录跨实例的在线状态
	presence cache.PresenceCache
	mu       sync.RWMutex
	// notebookID -> 连接集合；同一用户可以有多个连接（多标签页）
	rooms map[string]map[*Conn]struct{}
}

func NewHub(p cache.PresenceCache) *Hub {
	return &Hub{presence: p, rooms: make(map[string]map[*Conn]struct{})}
}

// Join 将连接加入指定笔记本房间
func (h *Hub) Join(ctx context.Context, notebookID string, c *Conn) {
	h.mu.Lock()
	if h.rooms[notebookID] == nil {
		h.rooms[notebookID] = make(map[*Conn]struct{})
	}
	h.rooms[notebookID][c] = struct{}{}
	h.mu.Unlock()

	if h.presence != nil {
		if err := h.presence.Join(ctx, notebookID, c.sid, presenceTTL); err != nil {
			log.Printf("presence join error notebook=%s sid=%s: %v", notebookID, c.sid, err)
		}
	}
}

// Leave 将连接从指定笔记本房间移除
func (h *Hub) Leave(ctx context.Context, notebookID string, c *Conn) {
	h.mu.Lock()
	if conns, ok := h.rooms[notebookID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, notebookID)
		}
	}
	h.mu.Unlock()

	if h.presence != nil {
		if err := h.presence.Leave(ctx, notebookID, c.sid); err != nil {
			log.Printf("presence leave error notebook=%s sid=%s: %v", notebookID, c.sid, err)
		}
	}
}

// Broadcast 发给房间内除 except 之外的所有连接
func (h *Hub) Broadcast(notebookID string, except *Conn, msg OutboundMessage) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[notebookID]))
	for c := range h.rooms[notebookID] {
		if c != except {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.Enqueue(msg)
	}
}

type originKey struct{}

// origin 是提交操作的连接；Publish 给它回 ack，其他连接收到广播
type origin struct {
	conn      *Conn
	opID      string
	delivered bool
}

func withOrigin(ctx context.Context, o *origin) context.Context {
	return context.WithValue(ctx, originKey{}, o)
}

// Publish 用作 collab.Options.OnApplied。它在笔记本锁内被调用，
// 所以每个连接收到的 ack 和广播都按版本号排好序
func (h *Hub) Publish(ctx context.Context, notebookID string, applied collab.AppliedOp) {
	o, _ := ctx.Value(originKey{}).(*origin)
	var except *Conn
	if o != nil {
		except = o.conn
	}
	h.Broadcast(notebookID, except, ApplyOperationMessage{
		Type:       TypeApplyOperation,
		NotebookID: notebookID,
		Operation:  applied.Operation,
		Revision:   applied.Revision,
		AuthorID:   applied.AuthorID,
	})
	if o != nil {
		o.conn.Enqueue(AckMessage{Type: TypeAck, OpID: o.opID, Revision: applied.Revision})
		o.delivered = true
	}
}
