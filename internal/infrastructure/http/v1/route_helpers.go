package v1

import (
	"github.com/gin-gonic/gin"
)

// DocumentRouteHandler defines the interface for document handlers.
type DocumentRouteHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	Approve(c *gin.Context)
	Unapprove(c *gin.Context)
	Post(c *gin.Context)
	Unpost(c *gin.Context)
	Derive(c *gin.Context)
}

// DocumentInspectHandler is an optional interface for read-only document views.
type DocumentInspectHandler interface {
	Counters(c *gin.Context)
	History(c *gin.Context)
}

// RegisterDocumentRoutes registers CRUD + lifecycle transition routes for documents.
// If the handler also implements DocumentInspectHandler, its routes are registered too.
//
// Usage:
//
//	handler := handlers.NewDocumentHandler(baseHandler, service, auditService)
//	RegisterDocumentRoutes(v1.Group("/documents"), handler)
func RegisterDocumentRoutes(group *gin.RouterGroup, handler DocumentRouteHandler) {
	group.GET("", handler.List)
	group.POST("", handler.Create)
	group.GET("/:id", handler.Get)
	group.PUT("/:id", handler.Update)
	group.DELETE("/:id", handler.Delete)
	group.POST("/:id/approve", handler.Approve)
	group.POST("/:id/unapprove", handler.Unapprove)
	group.POST("/:id/post", handler.Post)
	group.POST("/:id/unpost", handler.Unpost)
	group.POST("/:id/derive", handler.Derive)

	if inspect, ok := handler.(DocumentInspectHandler); ok {
		group.GET("/:id/counters", inspect.Counters)
		group.GET("/:id/history", inspect.History)
	}
}
