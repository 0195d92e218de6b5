package ws

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"notebookCollab/backend/internal/collab"
	"notebookCollab/backend/internal/notebook"
)

const (
	sendQueueSize = 64
	submitTimeout = 2 * time.Second
)

type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	sid      string
	userID   uint64
	username string

	mu     sync.Mutex
	closed bool
	send   chan OutboundMessage
	// 当前连接订阅的笔记本，只在读循环中访问
	subscribed map[string]struct{}

	svc collab.Service
	sem *collab.SemaphoreControl
}

func NewConn(ws *websocket.Conn, hub *Hub, sid string, userID uint64, username string, svc collab.Service, sem *collab.SemaphoreControl) *Conn {
	return &Conn{
		ws:         ws,
		hub:        hub,
		sid:        sid,
		userID:     userID,
		username:   username,
		send:       make(chan OutboundMessage, sendQueueSize),
		subscribed: make(map[string]struct{}),
		svc:        svc,
		sem:        sem,
	}
}

// Enqueue 非阻塞入队；队列满或连接已关闭时丢弃消息
func (c *Conn) Enqueue(msg OutboundMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		log.Printf("send queue full, drop %s for sid=%s", msg.MessageType(), c.sid)
	}
}

func (c *Conn) fail(opID string, err error) {
	c.Enqueue(ErrMessage{Type: TypeErr, ErrorMessage: err.Error(), OpID: opID})
}

func (c *Conn) subscribe(ctx context.Context, msg ClientMessage) {
	if msg.NotebookID == "" {
		c.fail(msg.OpID, notebook.InternalError("missing notebookId"))
		return
	}
	if err := c.svc.Load(ctx, msg.NotebookID); err != nil {
		c.fail(msg.OpID, err)
		return
	}
	c.subscribed[msg.NotebookID] = struct{}{}
	c.hub.Join(ctx, msg.NotebookID, c)
	rev, _ := c.svc.CurrentRevision(ctx, msg.NotebookID)
	c.Enqueue(AckMessage{Type: TypeAck, OpID: msg.OpID, Revision: rev})
}

func (c *Conn) unsubscribe(ctx context.Context, msg ClientMessage) {
	delete(c.subscribed, msg.NotebookID)
	c.hub.Leave(ctx, msg.NotebookID, c)
	c.Enqueue(AckMessage{Type: TypeAck, OpID: msg.OpID})
}

func (c *Conn) applyOperation(ctx context.Context, msg ClientMessage) {
	if _, ok := c.subscribed[msg.NotebookID]; !ok {
		c.fail(msg.OpID, notebook.Unauthorized("not subscribed to notebook "+msg.NotebookID))
		return
	}
	if msg.Operation.Op == nil {
		c.fail(msg.OpID, notebook.InternalError("missing operation"))
		return
	}

	submitCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()
	if c.sem != nil {
		if err := c.sem.Acquire(submitCtx); err != nil {
			c.fail(msg.OpID, err)
			return
		}
		defer c.sem.Release()
	}

	clientID := ""
	if msg.ClientSeq > 0 {
		clientID = c.sid
	}
	o := &origin{conn: c, opID: msg.OpID}
	applied, err := c.svc.Submit(withOrigin(submitCtx, o), msg.NotebookID, c.userID, msg.Revision, clientID, msg.ClientSeq, msg.Operation.Op)
	if err != nil {
		log.Printf("apply operation failed sid=%s notebook=%s base=%d: %v", c.sid, msg.NotebookID, msg.Revision, err)
		c.fail(msg.OpID, err)
		return
	}
	if o.delivered {
		return
	}
	// 服务没有挂 Hub.Publish 时退回到提交之后再发，不保证与其他连接的顺序
	c.Enqueue(AckMessage{Type: TypeAck, OpID: msg.OpID, Revision: applied.Revision})
	c.hub.Broadcast(msg.NotebookID, c, ApplyOperationMessage{
		Type:       TypeApplyOperation,
		NotebookID: msg.NotebookID,
		Operation:  applied.Operation,
		Revision:   applied.Revision,
		AuthorID:   applied.AuthorID,
	})
}

func (c *Conn) debugResponse(msg ClientMessage) {
	ids := make([]string, 0, len(c.subscribed))
	for id := range c.subscribed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	c.Enqueue(DebugResponseMessage{Type: TypeDebugResponse, SID: c.sid, SubscribedNotebooks: ids, OpID: msg.OpID})
}

func (c *Conn) readLoop(ctx context.Context) {
	defer c.close()
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("read json error (sid=%s, user=%d): %v", c.sid, c.userID, err)
			}
			return
		}
		switch msg.Type {
		case TypeSubscribe:
			c.subscribe(ctx, msg)
		case TypeUnsubscribe:
			c.unsubscribe(ctx, msg)
		case TypeApplyOperation:
			c.applyOperation(ctx, msg)
		case TypeDebugRequest:
			c.debugResponse(msg)
		default:
			c.fail(msg.OpID, notebook.InternalError("unknown message type %q", msg.Type))
		}
	}
}

// close 离开所有房间后关闭发送队列，写循环随之退出
func (c *Conn) close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for id := range c.subscribed {
		c.hub.Leave(ctx, id, c)
	}
	c.mu.Lock()
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

func (c *Conn) writeLoop() {
	for msg := range c.send {
		if err := c.ws.WriteJSON(msg); err != nil {
			log.Printf("write json error (sid=%s): %v", c.sid, err)
		}
	}
}
