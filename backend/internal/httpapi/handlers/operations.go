package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"notebookCollab/backend/internal/notebook"
	"notebookCollab/backend/internal/ot"
	"notebookCollab/backend/internal/ot/operation"
)

// 无状态的引擎接口，客户端用来计算撤销和影响范围

type operationRequest struct {
	Operation operation.Wire `json:"operation"`
}

func bindOperation(c *gin.Context) (operation.Operation, bool) {
	var req operationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return nil, false
	}
	if req.Operation.Op == nil {
		WriteError(c, notebook.InternalError("missing operation"))
		return nil, false
	}
	return req.Operation.Op, true
}

func RelevantCells(c *gin.Context) {
	op, ok := bindOperation(c)
	if !ok {
		return
	}
	ids := ot.RelevantCellIDs(op)
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"cellIds": ids})
}

func InvertOperation(c *gin.Context) {
	op, ok := bindOperation(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"operation": operation.Wire{Op: ot.Invert(op)}})
}
