package document

import (
	"context"

	"docflow/internal/core/entity"
	"docflow/internal/core/id"
	"docflow/internal/domain"
)

// Repository persists documents with their lines and allocations.
type Repository interface {
	Create(ctx context.Context, doc *Document) error

	// GetByID returns NotFound for unknown ids.
	GetByID(ctx context.Context, docID id.ID) (*Document, error)

	// GetForUpdate locks the header row for the rest of the transaction.
	GetForUpdate(ctx context.Context, docID id.ID) (*Document, error)

	// Update saves header, lines and allocations when doc.Version matches
	// the stored version, then bumps doc.Version.
	Update(ctx context.Context, doc *Document) error

	// Delete physically removes a document.
	Delete(ctx context.Context, docID id.ID) error

	List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Document], error)

	// CountDerived counts documents derived from sourceID in one of statuses.
	CountDerived(ctx context.Context, sourceID id.ID, statuses []entity.Status) (int, error)
}
