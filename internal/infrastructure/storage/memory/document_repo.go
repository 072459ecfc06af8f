package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"docflow/internal/core/apperror"
	"docflow/internal/core/entity"
	"docflow/internal/core/id"
	"docflow/internal/domain"
	"docflow/internal/domain/document"
)

var _ document.Repository = (*DocumentRepo)(nil)

// DocumentRepo stores documents as deep copies.
type DocumentRepo struct {
	mu   sync.RWMutex
	docs map[id.ID]*document.Document
}

// NewDocumentRepo creates an empty document store.
func NewDocumentRepo() *DocumentRepo {
	return &DocumentRepo{docs: make(map[id.ID]*document.Document)}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *document.Document) error {
	r.mu.Lock()
	if _, exists := r.docs[doc.ID]; exists {
		r.mu.Unlock()
		return apperror.NewValidation("document already exists").WithDetail("id", doc.ID.String())
	}
	r.mu.Unlock()

	r.put(ctx, doc.ID, doc.Clone())
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, docID id.ID) (*document.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[docID]
	if !ok {
		return nil, apperror.NewNotFound("document", docID.String())
	}
	return doc.Clone(), nil
}

// GetForUpdate relies on the caller holding the document lock key.
func (r *DocumentRepo) GetForUpdate(ctx context.Context, docID id.ID) (*document.Document, error) {
	return r.GetByID(ctx, docID)
}

func (r *DocumentRepo) Update(ctx context.Context, doc *document.Document) error {
	r.mu.RLock()
	cur, ok := r.docs[doc.ID]
	r.mu.RUnlock()
	if !ok {
		return apperror.NewNotFound("document", doc.ID.String())
	}
	if cur.Version != doc.Version {
		return apperror.NewConcurrentModification("document", doc.ID.String())
	}

	doc.Touch()
	stored := doc.Clone()
	stored.Warnings = nil
	r.put(ctx, doc.ID, stored)
	return nil
}

func (r *DocumentRepo) Delete(ctx context.Context, docID id.ID) error {
	r.mu.RLock()
	_, ok := r.docs[docID]
	r.mu.RUnlock()
	if !ok {
		return apperror.NewNotFound("document", docID.String())
	}
	r.put(ctx, docID, nil)
	return nil
}

func (r *DocumentRepo) List(ctx context.Context, f domain.ListFilter) (domain.ListResult[*document.Document], error) {
	f.Normalize()

	r.mu.RLock()
	var matched []*document.Document
	for _, d := range r.docs {
		if matches(d, f) {
			matched = append(matched, d.Clone())
		}
	}
	r.mu.RUnlock()

	desc := strings.HasPrefix(f.OrderBy, "-")
	field := strings.TrimPrefix(f.OrderBy, "-")
	slices.SortFunc(matched, func(a, b *document.Document) int {
		var c int
		switch field {
		case "number":
			c = strings.Compare(a.Number, b.Number)
		case "created_at":
			c = a.CreatedAt.Compare(b.CreatedAt)
		default:
			c = a.Date.Compare(b.Date)
		}
		if c == 0 {
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if desc {
			return -c
		}
		return c
	})

	total := len(matched)
	start := min(f.Offset, total)
	end := min(start+f.Limit, total)
	return domain.ListResult[*document.Document]{
		Items:      matched[start:end],
		TotalCount: int64(total),
		Limit:      f.Limit,
		Offset:     f.Offset,
	}, nil
}

func (r *DocumentRepo) CountDerived(ctx context.Context, sourceID id.ID, statuses []entity.Status) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, d := range r.docs {
		if d.SourceDocumentID != nil && *d.SourceDocumentID == sourceID && slices.Contains(statuses, d.Status) {
			n++
		}
	}
	return n, nil
}

func (r *DocumentRepo) put(ctx context.Context, docID id.ID, doc *document.Document) {
	r.mu.Lock()
	prev, existed := r.docs[docID]
	if doc == nil {
		delete(r.docs, docID)
	} else {
		r.docs[docID] = doc
	}
	r.mu.Unlock()

	recordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if existed {
			r.docs[docID] = prev
		} else {
			delete(r.docs, docID)
		}
	})
}

func matches(d *document.Document, f domain.ListFilter) bool {
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, string(d.Kind)) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, d.Status) {
		return false
	}
	if f.PartnerID != nil && (d.PartnerID == nil || *d.PartnerID != *f.PartnerID) {
		return false
	}
	if f.SourceDocumentID != nil && (d.SourceDocumentID == nil || *d.SourceDocumentID != *f.SourceDocumentID) {
		return false
	}
	if f.DateFrom != nil && d.Date.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && d.Date.After(*f.DateTo) {
		return false
	}
	if f.Search != "" && !strings.HasPrefix(d.Number, f.Search) {
		return false
	}
	return true
}
