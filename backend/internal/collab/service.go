package collab

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"notebookCollab/backend/internal/notebook"
	"notebookCollab/backend/internal/ot"
	"notebookCollab/backend/internal/ot/change"
	"notebookCollab/backend/internal/ot/formatting"
	"notebookCollab/backend/internal/ot/operation"
)

// 协作引擎接口：服务端是唯一的排序者，所有操作在这里得到全局版本号
type Service interface {
	Submit(ctx context.Context, notebookID string, authorID uint64,
		baseRevision uint32, clientID string, clientSeq uint64,
		op operation.Operation) (AppliedOp, error)

	Notebook(ctx context.Context, notebookID string) (*notebook.Notebook, error)
	CurrentRevision(ctx context.Context, notebookID string) (uint32, error)

	// 用于重连后追平：返回 fromRevision 之后的已应用操作
	OpsSince(ctx context.Context, notebookID string, fromRevision uint32, limit int) ([]AppliedOp, error)

	CreateNotebook(ctx context.Context, ownerID uint64, nb *notebook.Notebook) (*notebook.Notebook, error)
	SaveSnapshot(ctx context.Context, notebookID string) error
	Load(ctx context.Context, notebookID string) error
}

// 快照存储接口，实现在 store 中
type SnapshotStore interface {
	CreateNotebook(ctx context.Context, ownerID uint64, nb *notebook.Notebook) error
	SaveNotebookSnapshot(ctx context.Context, nb *notebook.Notebook) error
	// 返回值 bool 表示是否存在
	LatestNotebookSnapshot(ctx context.Context, notebookID string) (*notebook.Notebook, bool, error)
}

// 操作日志接口，环形缓冲之外的历史从这里取
type OperationLog interface {
	Append(ctx context.Context, notebookID string, op AppliedOp) error
	Since(ctx context.Context, notebookID string, fromRevision uint32, limit int) ([]AppliedOp, error)
}

// 快照缓存接口，实现在 cache 中
type SnapshotCache interface {
	GetOrLoad(ctx context.Context, notebookID string,
		fetch func() (*notebook.Notebook, bool, error)) (*notebook.Notebook, bool, error)
	Put(ctx context.Context, nb *notebook.Notebook) error
}

type Publisher interface {
	Enqueue(ctx context.Context, evt ChangeEvent) error
}

type AppliedOp struct {
	OperationID string          `json:"operationId"` // 本次操作的唯一 ID
	Revision    uint32          `json:"revision"`    // 应用之后的笔记本版本
	AuthorID    uint64          `json:"authorId"`
	ClientID    string          `json:"clientId,omitempty"`
	ClientSeq   uint64          `json:"clientSeq,omitempty"`
	Operation   operation.Wire  `json:"operation"` // 变换后真正应用的操作
	Changes     []change.Change `json:"changes,omitempty"`
	AppliedAt   time.Time       `json:"appliedAt"`
}

var (
	ErrRevisionConflict      = errors.New("REVISION_CONFLICT")
	ErrDuplicateOrOutOfOrder = errors.New("DUPLICATE_OR_OUT_OF_ORDER")
	ErrNotebookNotFound      = errors.New("NOTEBOOK_NOT_FOUND")
	ErrNotebookExists        = errors.New("NOTEBOOK_EXISTS")
	// 变换之后操作已经没有意义（例如目标单元格被并发删除）
	ErrOperationDropped = errors.New("OPERATION_DROPPED")
)

type ringEntry struct {
	applied AppliedOp
	// 应用该操作之前的笔记本，变换时作为状态
	before *notebook.Notebook
}

type notebookState struct {
	mu   sync.RWMutex
	nb   *notebook.Notebook
	ring []ringEntry
	// 去重窗口：记录每个 clientId 最近的最大 clientSeq
	lastSeqByClient map[string]uint64
	// 距离上次快照应用的操作数
	sinceSnapshot int
}

type Options struct {
	RingCapacity  int
	SnapshotEvery int

	Snapshots SnapshotStore
	Log       OperationLog
	Cache     SnapshotCache
	Publisher Publisher
	// 入队等待上限，超时即丢弃事件
	PublishTimeout time.Duration
	// 每个操作应用之后在笔记本锁内调用，调用顺序就是版本顺序；不能阻塞
	OnApplied func(ctx context.Context, notebookID string, applied AppliedOp)
}

// 内存实现：持有所有已加载笔记本的状态
type InMemoryService struct {
	mu        sync.RWMutex
	notebooks map[string]*notebookState
	opt       Options
}

func NewInMemoryService(opt Options) *InMemoryService {
	if opt.RingCapacity <= 0 {
		opt.RingCapacity = 1024
	}
	if opt.PublishTimeout <= 0 {
		opt.PublishTimeout = 50 * time.Millisecond
	}
	return &InMemoryService{notebooks: make(map[string]*notebookState), opt: opt}
}

// 获取笔记本状态，不在内存中时从缓存/快照加载
func (s *InMemoryService) state(ctx context.Context, notebookID string) (*notebookState, error) {
	s.mu.RLock()
	st := s.notebooks[notebookID]
	s.mu.RUnlock()
	if st != nil {
		return st, nil
	}

	nb, ok, err := s.fetch(ctx, notebookID)
	if err != nil {
		return nil, fmt.Errorf("load notebook %s: %w", notebookID, err)
	}
	if !ok {
		return nil, ErrNotebookNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st = s.notebooks[notebookID]; st == nil {
		st = newNotebookState(sortLabels(nb), s.opt.RingCapacity)
		s.notebooks[notebookID] = st
		log.Printf("notebook loaded id=%s rev=%d", notebookID, nb.Revision)
	}
	return st, nil
}

func (s *InMemoryService) fetch(ctx context.Context, notebookID string) (*notebook.Notebook, bool, error) {
	fromStore := func() (*notebook.Notebook, bool, error) {
		if s.opt.Snapshots == nil {
			return nil, false, nil
		}
		return s.opt.Snapshots.LatestNotebookSnapshot(ctx, notebookID)
	}
	if s.opt.Cache == nil {
		return fromStore()
	}
	return s.opt.Cache.GetOrLoad(ctx, notebookID, fromStore)
}

func newNotebookState(nb *notebook.Notebook, capacity int) *notebookState {
	return &notebookState{
		nb:              nb,
		ring:            make([]ringEntry, 0, capacity),
		lastSeqByClient: make(map[string]uint64),
	}
}

// Submit 把基于 baseRevision 的操作变换到当前版本并应用
func (s *InMemoryService) Submit(ctx context.Context, notebookID string, authorID uint64, baseRevision uint32, clientID string, clientSeq uint64, op operation.Operation) (AppliedOp, error) {
	if op == nil {
		return AppliedOp{}, notebook.InternalError("missing operation")
	}
	st, err := s.state(ctx, notebookID)
	if err != nil {
		return AppliedOp{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	// 幂等/去重：同一 clientId 的序号只允许递增
	if clientID != "" {
		if last, seen := st.lastSeqByClient[clientID]; seen && clientSeq <= last {
			return AppliedOp{}, ErrDuplicateOrOutOfOrder
		}
	}

	transformed, err := st.rebase(baseRevision, op)
	if err != nil {
		if errors.Is(err, ErrOperationDropped) {
			operationsDropped.WithLabelValues(string(op.OpType())).Inc()
			log.Printf("operation dropped notebook=%s base=%d type=%s", notebookID, baseRevision, op.OpType())
		}
		return AppliedOp{}, err
	}

	next, changes, err := ot.ApplyWithChanges(st.nb, transformed)
	if err != nil {
		operationsFailed.WithLabelValues(string(transformed.OpType())).Inc()
		return AppliedOp{}, err
	}

	applied := AppliedOp{
		OperationID: uuid.NewString(),
		Revision:    next.Revision,
		AuthorID:    authorID,
		ClientID:    clientID,
		ClientSeq:   clientSeq,
		Operation:   operation.Wire{Op: transformed},
		Changes:     changes,
		AppliedAt:   time.Now(),
	}

	// 环形缓冲满了就丢弃最老的一条
	if len(st.ring) == cap(st.ring) {
		copy(st.ring, st.ring[1:])
		st.ring = st.ring[:len(st.ring)-1]
	}
	st.ring = append(st.ring, ringEntry{applied: applied, before: st.nb})
	st.nb = next
	if clientID != "" {
		st.lastSeqByClient[clientID] = clientSeq
	}
	operationsApplied.WithLabelValues(string(transformed.OpType())).Inc()
	if s.opt.OnApplied != nil {
		s.opt.OnApplied(ctx, notebookID, applied)
	}

	if s.opt.Log != nil {
		if err := s.opt.Log.Append(ctx, notebookID, applied); err != nil {
			log.Printf("append operation log failed notebook=%s rev=%d err=%v", notebookID, applied.Revision, err)
		}
	}
	s.publish(notebookID, baseRevision, applied)

	st.sinceSnapshot++
	if s.opt.SnapshotEvery > 0 && st.sinceSnapshot >= s.opt.SnapshotEvery {
		st.sinceSnapshot = 0
		go s.persist(context.Background(), next)
	}
	return applied, nil
}

// rebase 依次对 baseRevision 之后的每个已应用操作做变换，调用方持有写锁
func (st *notebookState) rebase(baseRevision uint32, op operation.Operation) (operation.Operation, error) {
	current := st.nb.Revision
	if baseRevision > current {
		return nil, fmt.Errorf("%w: base %d is ahead of %d", ErrRevisionConflict, baseRevision, current)
	}
	if baseRevision == current {
		transformDepth.Observe(0)
		return op, nil
	}

	first := -1
	for i, e := range st.ring {
		if e.applied.Revision == baseRevision+1 {
			first = i
			break
		}
	}
	if first < 0 {
		// 历史已经滚出环形缓冲，只能让客户端重新拉取
		return nil, fmt.Errorf("%w: base %d is older than the kept history", ErrRevisionConflict, baseRevision)
	}

	entries := st.ring[first:]
	transformDepth.Observe(float64(len(entries)))
	for _, e := range entries {
		next, err := ot.Transform(ot.StateFromNotebook(e.before), op, e.applied.Operation.Op)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, ErrOperationDropped
		}
		op = next
	}
	return op, nil
}

func (s *InMemoryService) publish(notebookID string, baseRevision uint32, applied AppliedOp) {
	if s.opt.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opt.PublishTimeout)
	defer cancel()
	if err := s.opt.Publisher.Enqueue(ctx, newChangeEvent(notebookID, baseRevision, applied)); err != nil {
		log.Printf("change event dropped notebook=%s rev=%d err=%v", notebookID, applied.Revision, err)
	}
}

func (s *InMemoryService) Notebook(ctx context.Context, notebookID string) (*notebook.Notebook, error) {
	st, err := s.state(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.nb, nil
}

func (s *InMemoryService) CurrentRevision(ctx context.Context, notebookID string) (uint32, error) {
	nb, err := s.Notebook(ctx, notebookID)
	if err != nil {
		return 0, err
	}
	return nb.Revision, nil
}

// OpsSince 优先从环形缓冲返回；缓冲不够旧时回退到操作日志
func (s *InMemoryService) OpsSince(ctx context.Context, notebookID string, fromRevision uint32, limit int) ([]AppliedOp, error) {
	st, err := s.state(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	st.mu.RLock()
	covered := fromRevision >= st.nb.Revision ||
		(len(st.ring) > 0 && st.ring[0].applied.Revision <= fromRevision+1)
	var out []AppliedOp
	if covered {
		for _, e := range st.ring {
			if e.applied.Revision > fromRevision {
				out = append(out, e.applied)
				if limit > 0 && len(out) >= limit {
					break
				}
			}
		}
	}
	st.mu.RUnlock()

	if covered {
		return out, nil
	}
	if s.opt.Log == nil {
		return nil, fmt.Errorf("%w: revision %d is older than the kept history", ErrRevisionConflict, fromRevision)
	}
	return s.opt.Log.Since(ctx, notebookID, fromRevision, limit)
}

// CreateNotebook 校验并登记一个新笔记本；ID 为空时分配一个
func (s *InMemoryService) CreateNotebook(ctx context.Context, ownerID uint64, nb *notebook.Notebook) (*notebook.Notebook, error) {
	if nb == nil {
		return nil, notebook.InternalError("missing notebook")
	}
	nb = sortLabels(nb.Clone())
	if nb.ID == "" {
		nb.ID = uuid.NewString()
	}
	if err := validateNotebook(nb); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, exists := s.notebooks[nb.ID]; exists {
		s.mu.Unlock()
		return nil, ErrNotebookExists
	}
	s.notebooks[nb.ID] = newNotebookState(nb, s.opt.RingCapacity)
	s.mu.Unlock()

	if s.opt.Snapshots != nil {
		if err := s.opt.Snapshots.CreateNotebook(ctx, ownerID, nb); err != nil {
			s.mu.Lock()
			delete(s.notebooks, nb.ID)
			s.mu.Unlock()
			return nil, err
		}
	}
	if s.opt.Cache != nil {
		if err := s.opt.Cache.Put(ctx, nb); err != nil {
			log.Printf("cache notebook failed id=%s err=%v", nb.ID, err)
		}
	}
	log.Printf("notebook created id=%s owner=%d cells=%d", nb.ID, ownerID, len(nb.Cells))
	return nb, nil
}

// 标签按 key 排序保存：AddLabel 按 key 插入，这样撤销 RemoveLabel 后顺序不变。
// 已经有序时原样返回，否则返回排好序的副本
func sortLabels(nb *notebook.Notebook) *notebook.Notebook {
	byKey := func(a, b notebook.Label) int { return cmp.Compare(a.Key, b.Key) }
	if slices.IsSortedFunc(nb.Labels, byKey) {
		return nb
	}
	nb = nb.Clone()
	slices.SortStableFunc(nb.Labels, byKey)
	return nb
}

func validateNotebook(nb *notebook.Notebook) error {
	seen := make(map[string]bool, len(nb.Cells))
	for _, c := range nb.Cells {
		if c == nil {
			return notebook.InternalError("nil cell")
		}
		id := c.CellID()
		if seen[id] {
			return notebook.DuplicateID(id)
		}
		seen[id] = true
		if cc, ok := c.(notebook.ContentCell); ok {
			text, f := cc.TextContent()
			if err := formatting.Validate(text, f); err != nil {
				var e *notebook.Error
				if errors.As(err, &e) && e.Kind == notebook.KindInvalidTextOffset {
					return notebook.InvalidTextOffset(id, e.Offset)
				}
				return err
			}
		}
	}
	return nil
}

func (s *InMemoryService) SaveSnapshot(ctx context.Context, notebookID string) error {
	if s.opt.Snapshots == nil {
		return errors.New("snapshot store not initialized")
	}
	s.mu.RLock()
	st := s.notebooks[notebookID]
	s.mu.RUnlock()
	if st == nil {
		return ErrNotebookNotFound
	}
	st.mu.Lock()
	nb := st.nb
	st.sinceSnapshot = 0
	st.mu.Unlock()
	return s.persist(ctx, nb)
}

func (s *InMemoryService) persist(ctx context.Context, nb *notebook.Notebook) error {
	if s.opt.Snapshots == nil {
		return nil
	}
	if err := s.opt.Snapshots.SaveNotebookSnapshot(ctx, nb); err != nil {
		log.Printf("save snapshot failed id=%s rev=%d err=%v", nb.ID, nb.Revision, err)
		return err
	}
	if s.opt.Cache != nil {
		if err := s.opt.Cache.Put(ctx, nb); err != nil {
			log.Printf("cache snapshot failed id=%s rev=%d err=%v", nb.ID, nb.Revision, err)
		}
	}
	return nil
}

// Load 预先把笔记本加载到内存中
func (s *InMemoryService) Load(ctx context.Context, notebookID string) error {
	_, err := s.state(ctx, notebookID)
	return err
}
