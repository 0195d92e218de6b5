package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"notebookCollab/backend/internal/collab"
	"notebookCollab/backend/internal/notebook"
)

func engineStatus(kind notebook.ErrorKind) int {
	switch kind {
	case notebook.KindCellNotFound, notebook.KindDataSourceNotFound, notebook.KindLabelNotFound:
		return http.StatusNotFound
	case notebook.KindDuplicateID:
		return http.StatusConflict
	case notebook.KindInvalidInsertIndex, notebook.KindInvalidTextOffset, notebook.KindNoTextCell:
		return http.StatusUnprocessableEntity
	case notebook.KindUnauthorized:
		return http.StatusUnauthorized
	case notebook.KindInternalError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError 把服务层/引擎错误映射成 HTTP 状态码和统一的错误体
func WriteError(c *gin.Context, err error) {
	var engineErr *notebook.Error
	switch {
	case errors.As(err, &engineErr):
		c.AbortWithStatusJSON(engineStatus(engineErr.Kind), gin.H{
			"code":    string(engineErr.Kind),
			"message": engineErr.Error(),
			"error":   engineErr,
		})
		return
	case errors.Is(err, collab.ErrNotebookNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"code": collab.ErrNotebookNotFound.Error(), "message": err.Error()})
		return
	}

	for _, sentinel := range []error{
		collab.ErrNotebookExists,
		collab.ErrRevisionConflict,
		collab.ErrDuplicateOrOutOfOrder,
		collab.ErrOperationDropped,
	} {
		if errors.Is(err, sentinel) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"code": sentinel.Error(), "message": err.Error()})
			return
		}
	}

	log.Printf("request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "internal error"})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": err.Error()})
}
