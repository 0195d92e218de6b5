package collab

import (
	"time"

	"notebookCollab/backend/internal/ot/change"
	"notebookCollab/backend/internal/ot/operation"
)

const EventOperationApplied = "OPERATION_APPLIED"

// ChangeEvent 是写入 kafka 的消息体，key 为 notebookId，保证同一笔记本的事件有序
type ChangeEvent struct {
	EventType    string          `json:"eventType"`
	NotebookID   string          `json:"notebookId"`
	OperationID  string          `json:"operationId"`
	Revision     uint32          `json:"revision"`
	AuthorID     uint64          `json:"authorId"`
	ClientID     string          `json:"clientId,omitempty"`
	ClientSeq    uint64          `json:"clientSeq,omitempty"`
	BaseRevision uint32          `json:"baseRevision"`
	Operation    operation.Wire  `json:"operation"`
	Changes      []change.Change `json:"changes"`
	AppliedAt    time.Time       `json:"appliedAt"`
}

func newChangeEvent(notebookID string, baseRevision uint32, op AppliedOp) ChangeEvent {
	return ChangeEvent{
		EventType:    EventOperationApplied,
		NotebookID:   notebookID,
		OperationID:  op.OperationID,
		Revision:     op.Revision,
		AuthorID:     op.AuthorID,
		ClientID:     op.ClientID,
		ClientSeq:    op.ClientSeq,
		BaseRevision: baseRevision,
		Operation:    op.Operation,
		Changes:      op.Changes,
		AppliedAt:    op.AppliedAt,
	}
}
