package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notebookCollab/backend/internal/cache"
	"notebookCollab/backend/internal/collab"
	"notebookCollab/backend/internal/httpapi/handlers"
	"notebookCollab/backend/internal/httpapi/middleware"
	"notebookCollab/backend/internal/ws"
)

type Deps struct {
	Service    collab.Service
	Presence   cache.PresenceCache
	Owners     handlers.OwnerLookup
	WS         *ws.Manager
	AuthSecret string
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		// 允许任意来源（包含 file:// 场景的 Origin: null）
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match"},
		ExposeHeaders:    []string{"Content-Length", "ETag"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/", middleware.Auth(d.AuthSecret))
	nh := handlers.NewNotebookHandler(d.Service, d.Presence, d.Owners)
	api.POST("/notebooks", nh.CreateNotebook)
	api.GET("/notebooks/:id", nh.GetNotebook)
	api.POST("/notebooks/:id/operations", nh.SubmitOperation)
	api.GET("/notebooks/:id/operations", nh.ListOperations)
	api.POST("/notebooks/:id/snapshot", nh.SaveSnapshot)
	api.GET("/notebooks/:id/sessions", nh.Sessions)
	api.POST("/operations/relevant-cells", handlers.RelevantCells)
	api.POST("/operations/invert", handlers.InvertOperation)
	if d.WS != nil {
		api.GET("/ws", d.WS.WebSocketConnect)
	}
	return r
}
