package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/document"
	"docflow/internal/domain/lifecycle"
	"docflow/internal/infrastructure/http/v1/dto"
	"docflow/internal/infrastructure/storage/postgres"
)

// HistoryReader serves the audit trail of an entity.
type HistoryReader interface {
	History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]postgres.AuditEntry, error)
}

// DocumentHandler handles HTTP requests for documents of every kind.
type DocumentHandler struct {
	*BaseHandler
	service *lifecycle.Service
	history HistoryReader
}

// NewDocumentHandler creates a new document handler. history may be nil.
func NewDocumentHandler(base *BaseHandler, service *lifecycle.Service, history HistoryReader) *DocumentHandler {
	return &DocumentHandler{BaseHandler: base, service: service, history: history}
}

// List handles GET /documents
func (h *DocumentHandler) List(c *gin.Context) {
	var q dto.DocumentListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{Items: res.Items, TotalCount: res.TotalCount, Limit: res.Limit, Offset: res.Offset})
}

// Create handles POST /documents
func (h *DocumentHandler) Create(c *gin.Context) {
	var req dto.CreateDocumentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	doc, err := req.ToEntity()
	if err != nil {
		h.Error(c, err)
		return
	}

	created, err := h.service.Create(c.Request.Context(), doc)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, created)
}

// Get handles GET /documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}
	doc, err := h.service.GetByID(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// Update handles PUT /documents/:id
func (h *DocumentHandler) Update(c *gin.Context) {
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var req dto.UpdateDocumentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	doc, err := req.ToEntity(docID)
	if err != nil {
		h.Error(c, err)
		return
	}

	updated, err := h.service.Update(c.Request.Context(), doc)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, updated)
}

// Delete handles DELETE /documents/:id
func (h *DocumentHandler) Delete(c *gin.Context) {
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), docID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Approve handles POST /documents/:id/approve
func (h *DocumentHandler) Approve(c *gin.Context) {
	h.transition(c, h.service.Approve)
}

// Unapprove handles POST /documents/:id/unapprove
func (h *DocumentHandler) Unapprove(c *gin.Context) {
	h.transition(c, h.service.Unapprove)
}

// Post handles POST /documents/:id/post
func (h *DocumentHandler) Post(c *gin.Context) {
	h.transition(c, h.service.Post)
}

// Unpost handles POST /documents/:id/unpost
func (h *DocumentHandler) Unpost(c *gin.Context) {
	h.transition(c, h.service.Unpost)
}

func (h *DocumentHandler) transition(c *gin.Context, fn func(context.Context, id.ID) (*document.Document, error)) {
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}
	doc, err := fn(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// Derive handles POST /documents/:id/derive
func (h *DocumentHandler) Derive(c *gin.Context) {
	sourceID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var req dto.DeriveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	opts := lifecycle.DeriveOptions{LocationID: req.LocationID}
	if req.Date != "" {
		d, err := dto.ParseDate(req.Date)
		if err != nil {
			h.Error(c, apperror.NewFieldValidation("date", "invalid date"))
			return
		}
		opts.Date = d
	}

	child, err := h.service.Derive(c.Request.Context(), sourceID, document.Kind(req.Kind), opts)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, child)
}

// Counters handles GET /documents/:id/counters
func (h *DocumentHandler) Counters(c *gin.Context) {
	sourceID, ok := h.ParamID(c)
	if !ok {
		return
	}
	counters, err := h.service.Counters(c.Request.Context(), sourceID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": counters})
}

// History handles GET /documents/:id/history
func (h *DocumentHandler) History(c *gin.Context) {
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}
	if h.history == nil {
		h.Error(c, apperror.NewNotFound("history", docID.String()))
		return
	}
	entries, err := h.history.History(c.Request.Context(), "document", docID, h.ParseIntQuery(c, "limit", 100))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": entries})
}
