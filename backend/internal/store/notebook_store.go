package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-sql-driver/mysql"

	"notebookCollab/backend/internal/collab"
	"notebookCollab/backend/internal/notebook"
)

// mysql 错误码：主键/唯一键冲突
const errDuplicateEntry = 1062

var schema = []string{
	`CREATE TABLE IF NOT EXISTS notebooks (
		id         VARCHAR(64)     NOT NULL PRIMARY KEY,
		owner_id   BIGINT UNSIGNED NOT NULL,
		title      VARCHAR(255)    NOT NULL,
		created_at TIMESTAMP       NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS notebook_snapshots (
		notebook_id VARCHAR(64)  NOT NULL,
		revision    INT UNSIGNED NOT NULL,
		content     LONGTEXT     NOT NULL,
		created_at  TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (notebook_id, revision)
	)`,
}

// NotebookStore 保存笔记本元数据和按版本的 JSON 快照
type NotebookStore struct{ db *sql.DB }

func NewNotebookStore(db *sql.DB) *NotebookStore {
	return &NotebookStore{db: db}
}

func (s *NotebookStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry
}

// CreateNotebook 在同一个事务里写入元数据和初始快照
func (s *NotebookStore) CreateNotebook(ctx context.Context, ownerID uint64, nb *notebook.Notebook) error {
	content, err := json.Marshal(nb)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO notebooks (id, owner_id, title) VALUES (?, ?, ?)`,
		nb.ID, ownerID, nb.Title,
	); err != nil {
		if isDuplicate(err) {
			return collab.ErrNotebookExists
		}
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO notebook_snapshots (notebook_id, revision, content) VALUES (?, ?, ?)`,
		nb.ID, nb.Revision, content,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveNotebookSnapshot 同一版本重复保存时直接忽略
func (s *NotebookStore) SaveNotebookSnapshot(ctx context.Context, nb *notebook.Notebook) error {
	content, err := json.Marshal(nb)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notebook_snapshots (notebook_id, revision, content) VALUES (?, ?, ?)`,
		nb.ID, nb.Revision, content,
	)
	if err != nil && !isDuplicate(err) {
		return err
	}
	// 标题只在快照里有最新值，顺手同步到元数据表
	_, err = s.db.ExecContext(ctx, `UPDATE notebooks SET title = ? WHERE id = ?`, nb.Title, nb.ID)
	return err
}

func (s *NotebookStore) LatestNotebookSnapshot(ctx context.Context, notebookID string) (*notebook.Notebook, bool, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM notebook_snapshots WHERE notebook_id = ? ORDER BY revision DESC LIMIT 1`,
		notebookID,
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var nb notebook.Notebook
	if err := json.Unmarshal(content, &nb); err != nil {
		return nil, false, err
	}
	return &nb, true, nil
}

// OwnerID 返回笔记本的创建者
func (s *NotebookStore) OwnerID(ctx context.Context, notebookID string) (uint64, error) {
	var owner uint64
	err := s.db.QueryRowContext(ctx, `SELECT owner_id FROM notebooks WHERE id = ?`, notebookID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, collab.ErrNotebookNotFound
	}
	return owner, err
}
