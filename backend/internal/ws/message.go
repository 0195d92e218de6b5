package ws

import "notebookCollab/backend/internal/ot/operation"

// 客户端 -> 服务端
const (
	TypeSubscribe      = "subscribe"
	TypeUnsubscribe    = "unsubscribe"
	TypeApplyOperation = "apply_operation"
	TypeDebugRequest   = "debug_request"
)

// 服务端 -> 客户端（apply_operation 两个方向共用）
const (
	TypeAck           = "ack"
	TypeErr           = "err"
	TypeDebugResponse = "debug_response"
)

type ClientMessage struct {
	Type       string `json:"type"`
	NotebookID string `json:"notebookId,omitempty"`
	// apply_operation：操作基于的版本
	Revision  uint32         `json:"revision,omitempty"`
	Operation operation.Wire `json:"operation"`
	// 针对同一连接的本地递增序号，0 表示不去重
	ClientSeq uint64 `json:"clientSeq,omitempty"`
	OpID      string `json:"opId,omitempty"`
}

// 出站消息接口
type OutboundMessage interface {
	MessageType() string
}

// 广播给同一笔记本其他订阅者的已应用操作
type ApplyOperationMessage struct {
	Type       string         `json:"type"` // 固定 "apply_operation"
	NotebookID string         `json:"notebookId"`
	Operation  operation.Wire `json:"operation"`
	Revision   uint32         `json:"revision"` // 应用之后的版本
	AuthorID   uint64         `json:"authorId,omitempty"`
	OpID       string         `json:"opId,omitempty"`
}

type AckMessage struct {
	Type     string `json:"type"` // 固定 "ack"
	OpID     string `json:"opId"`
	Revision uint32 `json:"revision,omitempty"`
}

type ErrMessage struct {
	Type         string `json:"type"` // 固定 "err"
	ErrorMessage string `json:"errorMessage"`
	OpID         string `json:"opId,omitempty"`
}

type DebugResponseMessage struct {
	Type                string   `json:"type"` // 固定 "debug_response"
	SID                 string   `json:"sid"`
	SubscribedNotebooks []string `json:"subscribedNotebooks"`
	OpID                string   `json:"opId,omitempty"`
}

func (m ApplyOperationMessage) MessageType() string { return m.Type }
func (m AckMessage) MessageType() string            { return m.Type }
func (m ErrMessage) MessageType() string            { return m.Type }
func (m DebugResponseMessage) MessageType() string  { return m.Type }
