// Package domain provides core business logic interfaces and types.
package domain

import (
	"context"
	"time"

	"docflow/internal/core/entity"
	"docflow/internal/core/id"
)

// --- Filter & Pagination ---

// ListFilter contains common filtering options for document list operations.
type ListFilter struct {
	// Kinds restricts the result to the given document kinds
	Kinds []string

	// Statuses restricts the result to the given lifecycle statuses
	Statuses []entity.Status

	// PartnerID filters by customer/supplier
	PartnerID *id.ID

	// SourceDocumentID lists documents derived from a source
	SourceDocumentID *id.ID

	// DateFrom and DateTo bound the business date (inclusive)
	DateFrom *time.Time
	DateTo   *time.Time

	// Search matches the document number prefix
	Search string

	// OrderBy specifies sorting (e.g., "date", "-created_at")
	OrderBy string

	// Pagination
	Limit  int
	Offset int
}

// DefaultListFilter returns sensible defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{
		Limit:   50,
		OrderBy: "-date",
	}
}

// Normalize clamps pagination to sane bounds.
func (f *ListFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 500 {
		f.Limit = 500
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.OrderBy == "" {
		f.OrderBy = "-date"
	}
}

// ListResult contains paginated results.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// --- Hooks ---

// HookEvent represents lifecycle event type.
type HookEvent string

const (
	BeforeCreate    HookEvent = "before_create"
	AfterCreate     HookEvent = "after_create"
	BeforeUpdate    HookEvent = "before_update"
	AfterUpdate     HookEvent = "after_update"
	BeforeDelete    HookEvent = "before_delete"
	AfterDelete     HookEvent = "after_delete"
	BeforeApprove   HookEvent = "before_approve"
	AfterApprove    HookEvent = "after_approve"
	BeforeUnapprove HookEvent = "before_unapprove"
	AfterUnapprove  HookEvent = "after_unapprove"
	BeforePost      HookEvent = "before_post"
	AfterPost       HookEvent = "after_post"
	BeforeUnpost    HookEvent = "before_unpost"
	AfterUnpost     HookEvent = "after_unpost"
)

// Hook is a function that runs at specific lifecycle points.
type Hook[T any] func(ctx context.Context, entity T) error

// HookRegistry stores lifecycle hooks for an entity type.
// Before-hooks run inside the transaction and abort it on error.
// After-hooks run after commit; their errors are logged, not returned.
type HookRegistry[T any] struct {
	hooks map[HookEvent][]Hook[T]
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry[T any]() *HookRegistry[T] {
	return &HookRegistry[T]{
		hooks: make(map[HookEvent][]Hook[T]),
	}
}

// On registers a hook for the specified event.
func (r *HookRegistry[T]) On(event HookEvent, hook Hook[T]) {
	r.hooks[event] = append(r.hooks[event], hook)
}

// Run executes all hooks for the specified event.
func (r *HookRegistry[T]) Run(ctx context.Context, event HookEvent, entity T) error {
	for _, hook := range r.hooks[event] {
		if err := hook(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

// OnBeforeCreate registers a hook to run before create.
func (r *HookRegistry[T]) OnBeforeCreate(hook Hook[T]) {
	r.On(BeforeCreate, hook)
}

// OnAfterCreate registers a hook to run after create.
func (r *HookRegistry[T]) OnAfterCreate(hook Hook[T]) {
	r.On(AfterCreate, hook)
}

// OnBeforePost registers a hook to run inside the post transaction.
func (r *HookRegistry[T]) OnBeforePost(hook Hook[T]) {
	r.On(BeforePost, hook)
}

// OnAfterPost registers a hook to run after a successful post.
func (r *HookRegistry[T]) OnAfterPost(hook Hook[T]) {
	r.On(AfterPost, hook)
}

// OnBeforeUnpost registers a hook to run inside the unpost transaction.
func (r *HookRegistry[T]) OnBeforeUnpost(hook Hook[T]) {
	r.On(BeforeUnpost, hook)
}
