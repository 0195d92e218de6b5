package store

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"notebookCollab/backend/internal/collab"
	"notebookCollab/backend/internal/ot/change"
	"notebookCollab/backend/internal/ot/operation"
)

func InitMySQL(dsn string) (*gorm.DB, error) {
	return gorm.Open(mysql.Open(dsn), &gorm.Config{})
}

// OperationRecord 是操作日志的一行，operation/changes 以 JSON 保存
type OperationRecord struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	NotebookID  string `gorm:"size:64;not null;uniqueIndex:idx_notebook_revision,priority:1"`
	Revision    uint32 `gorm:"not null;uniqueIndex:idx_notebook_revision,priority:2"`
	OperationID string `gorm:"size:36;not null;uniqueIndex"`
	Type        string `gorm:"size:32;not null"`
	AuthorID    uint64
	ClientID    string `gorm:"size:64"`
	ClientSeq   uint64
	Operation   string `gorm:"type:longtext;not null"`
	Changes     string `gorm:"type:longtext;not null"`
	AppliedAt   time.Time
}

func (OperationRecord) TableName() string { return "notebook_operations" }

type OperationLog struct{ db *gorm.DB }

func NewOperationLog(db *gorm.DB) *OperationLog {
	return &OperationLog{db: db}
}

func (l *OperationLog) AutoMigrate() error {
	return l.db.AutoMigrate(&OperationRecord{})
}

func newOperationRecord(notebookID string, op collab.AppliedOp) (OperationRecord, error) {
	opJSON, err := json.Marshal(op.Operation)
	if err != nil {
		return OperationRecord{}, err
	}
	changes := op.Changes
	if changes == nil {
		changes = []change.Change{}
	}
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return OperationRecord{}, err
	}
	rec := OperationRecord{
		NotebookID:  notebookID,
		Revision:    op.Revision,
		OperationID: op.OperationID,
		AuthorID:    op.AuthorID,
		ClientID:    op.ClientID,
		ClientSeq:   op.ClientSeq,
		Operation:   string(opJSON),
		Changes:     string(changesJSON),
		AppliedAt:   op.AppliedAt,
	}
	if op.Operation.Op != nil {
		rec.Type = string(op.Operation.Op.OpType())
	}
	return rec, nil
}

// AppliedOp 把日志行还原成服务层的结构
func (r OperationRecord) AppliedOp() (collab.AppliedOp, error) {
	op, err := operation.Decode([]byte(r.Operation))
	if err != nil {
		return collab.AppliedOp{}, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(r.Changes), &raw); err != nil {
		return collab.AppliedOp{}, err
	}
	changes := make([]change.Change, 0, len(raw))
	for _, c := range raw {
		ch, err := change.Decode(c)
		if err != nil {
			return collab.AppliedOp{}, err
		}
		changes = append(changes, ch)
	}
	return collab.AppliedOp{
		OperationID: r.OperationID,
		Revision:    r.Revision,
		AuthorID:    r.AuthorID,
		ClientID:    r.ClientID,
		ClientSeq:   r.ClientSeq,
		Operation:   operation.Wire{Op: op},
		Changes:     changes,
		AppliedAt:   r.AppliedAt,
	}, nil
}

func (l *OperationLog) Append(ctx context.Context, notebookID string, op collab.AppliedOp) error {
	rec, err := newOperationRecord(notebookID, op)
	if err != nil {
		return err
	}
	return l.db.WithContext(ctx).Create(&rec).Error
}

// Since 按版本升序返回 fromRevision 之后的操作，limit <= 0 表示不限制
func (l *OperationLog) Since(ctx context.Context, notebookID string, fromRevision uint32, limit int) ([]collab.AppliedOp, error) {
	q := l.db.WithContext(ctx).
		Where("notebook_id = ? AND revision > ?", notebookID, fromRevision).
		Order("revision ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []OperationRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]collab.AppliedOp, 0, len(recs))
	for _, r := range recs {
		op, err := r.AppliedOp()
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}
