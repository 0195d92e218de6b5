package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"notebookCollab/backend/internal/cache"
	"notebookCollab/backend/internal/collab"
	"notebookCollab/backend/internal/notebook"
	"notebookCollab/backend/internal/ot/operation"
)

// OwnerLookup 查询笔记本创建者，实现在 store 中
type OwnerLookup interface {
	OwnerID(ctx context.Context, notebookID string) (uint64, error)
}

type NotebookHandler struct {
	svc collab.Service
	// 可以为 nil
	presence cache.PresenceCache
	// 可以为 nil：不做所有者检查
	owners OwnerLookup
}

func NewNotebookHandler(svc collab.Service, presence cache.PresenceCache, owners OwnerLookup) *NotebookHandler {
	return &NotebookHandler{svc: svc, presence: presence, owners: owners}
}

// requireOwner 只允许笔记本的创建者继续
func (h *NotebookHandler) requireOwner(c *gin.Context) bool {
	if h.owners == nil {
		return true
	}
	owner, err := h.owners.OwnerID(c.Request.Context(), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return false
	}
	if owner != c.GetUint64("userId") {
		WriteError(c, notebook.Unauthorized("only the owner of notebook "+c.Param("id")+" can do this"))
		return false
	}
	return true
}

// GetNotebook 返回当前版本；If-None-Match 命中时返回 304
func (h *NotebookHandler) GetNotebook(c *gin.Context) {
	nb, err := h.svc.Notebook(c.Request.Context(), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	etag, err := cache.ETag(nb)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.JSON(http.StatusOK, nb)
}

func (h *NotebookHandler) CreateNotebook(c *gin.Context) {
	var nb notebook.Notebook
	if err := c.ShouldBindJSON(&nb); err != nil {
		badRequest(c, err)
		return
	}
	created, err := h.svc.CreateNotebook(c.Request.Context(), c.GetUint64("userId"), &nb)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

type submitRequest struct {
	// 操作基于的版本
	Revision  uint32         `json:"revision"`
	Operation operation.Wire `json:"operation"`
	ClientID  string         `json:"clientId"`
	ClientSeq uint64         `json:"clientSeq"`
}

func (h *NotebookHandler) SubmitOperation(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Operation.Op == nil {
		WriteError(c, notebook.InternalError("missing operation"))
		return
	}
	applied, err := h.svc.Submit(c.Request.Context(), c.Param("id"), c.GetUint64("userId"),
		req.Revision, req.ClientID, req.ClientSeq, req.Operation.Op)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, applied)
}

// ListOperations: GET /notebooks/:id/operations?since=3&limit=100
func (h *NotebookHandler) ListOperations(c *gin.Context) {
	since, err := strconv.ParseUint(c.DefaultQuery("since", "0"), 10, 32)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		badRequest(c, err)
		return
	}
	ops, err := h.svc.OpsSince(c.Request.Context(), c.Param("id"), uint32(since), limit)
	if err != nil {
		WriteError(c, err)
		return
	}
	if ops == nil {
		ops = []collab.AppliedOp{}
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops})
}

// SaveSnapshot 只有创建者可以强制落快照
func (h *NotebookHandler) SaveSnapshot(c *gin.Context) {
	if !h.requireOwner(c) {
		return
	}
	if err := h.svc.SaveSnapshot(c.Request.Context(), c.Param("id")); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Sessions 返回订阅了该笔记本的会话
func (h *NotebookHandler) Sessions(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Load(c.Request.Context(), id); err != nil {
		WriteError(c, err)
		return
	}
	sessions := []string{}
	if h.presence != nil {
		sids, err := h.presence.Sessions(c.Request.Context(), id)
		if err != nil {
			WriteError(c, err)
			return
		}
		sessions = append(sessions, sids...)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}
