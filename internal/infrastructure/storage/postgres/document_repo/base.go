// Package document_repo provides the PostgreSQL document repository:
// headers in documents, table parts in document_lines and document_allocations.
package document_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"docflow/internal/core/apperror"
	"docflow/internal/core/entity"
	"docflow/internal/core/id"
	"docflow/internal/domain"
	"docflow/internal/domain/document"
	"docflow/internal/infrastructure/storage/postgres"
)

const (
	documentsTable   = "documents"
	linesTable       = "document_lines"
	allocationsTable = "document_allocations"
)

var (
	lineColumns = []string{
		"line_id", "line_no", "item_id", "role", "description",
		"quantity", "unit_price", "unit_cost", "discount_pct", "line_total",
		"source_line_id", "quantity_already_fulfilled", "posted_unit_cost",
	}
	allocationColumns = []string{"allocation_id", "target_invoice_id", "allocated_amount"}
)

var _ document.Repository = (*DocumentRepo)(nil)

// DocumentRepo implements document.Repository.
type DocumentRepo struct {
	txManager  *postgres.TxManager
	batch      *postgres.BatchInserter
	selectCols []string
}

// NewDocumentRepo creates a new document repository.
func NewDocumentRepo(txManager *postgres.TxManager) *DocumentRepo {
	return &DocumentRepo{
		txManager:  txManager,
		batch:      postgres.NewBatchInserter(txManager),
		selectCols: postgres.ExtractDBColumns[document.Document](),
	}
}

// Builder returns a new squirrel builder.
func (r *DocumentRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Create inserts the header and table parts. Must run inside a transaction.
func (r *DocumentRepo) Create(ctx context.Context, doc *document.Document) error {
	data := postgres.StructToMap(doc)
	filtered := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}

	sql, args, err := r.Builder().Insert(documentsTable).SetMap(filtered).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", documentsTable, err)
	}
	return r.saveParts(ctx, doc)
}

// Update saves header and table parts with optimistic locking and bumps doc.Version.
func (r *DocumentRepo) Update(ctx context.Context, doc *document.Document) error {
	sql, args, err := r.updateQuery(doc).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	var version int
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&version); err != nil {
		if pgxscan.NotFound(err) {
			return apperror.NewConcurrentModification("document", doc.ID.String())
		}
		return fmt.Errorf("update %s: %w", documentsTable, err)
	}
	doc.SetVersion(version)

	return r.saveParts(ctx, doc)
}

func (r *DocumentRepo) updateQuery(doc *document.Document) squirrel.UpdateBuilder {
	data := postgres.StructToMap(doc)

	filtered := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		switch col {
		case "id", "created_at", "version", "updated_at":
			continue
		}
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}

	return r.Builder().
		Update(documentsTable).
		SetMap(filtered).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": doc.ID, "version": doc.Version}).
		Suffix("RETURNING version")
}

// Delete physically removes a document; table parts cascade.
func (r *DocumentRepo) Delete(ctx context.Context, docID id.ID) error {
	sql, args, err := r.Builder().Delete(documentsTable).Where(squirrel.Eq{"id": docID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", documentsTable, err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("document", docID.String())
	}
	return nil
}

func (r *DocumentRepo) baseSelect() squirrel.SelectBuilder {
	return r.Builder().Select(r.selectCols...).From(documentsTable)
}

// GetByID retrieves a document with its table parts.
func (r *DocumentRepo) GetByID(ctx context.Context, docID id.ID) (*document.Document, error) {
	return r.get(ctx, r.baseSelect().Where(squirrel.Eq{"id": docID}), docID)
}

// GetForUpdate retrieves a document and locks its header row.
func (r *DocumentRepo) GetForUpdate(ctx context.Context, docID id.ID) (*document.Document, error) {
	return r.get(ctx, r.baseSelect().Where(squirrel.Eq{"id": docID}).Suffix("FOR UPDATE"), docID)
}

func (r *DocumentRepo) get(ctx context.Context, q squirrel.SelectBuilder, docID id.ID) (*document.Document, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	doc := &document.Document{}
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), doc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("document", docID.String())
		}
		return nil, fmt.Errorf("get document: %w", err)
	}

	if err := r.loadParts(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns document headers with their table parts.
func (r *DocumentRepo) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*document.Document], error) {
	result := domain.ListResult[*document.Document]{
		Items:  []*document.Document{},
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	q := applyFilter(r.baseSelect(), filter)
	querier := r.txManager.GetQuerier(ctx)

	countSQL, countArgs, err := r.Builder().Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count: %w", err)
	}

	orderBy, err := r.parseOrderBy(filter.OrderBy)
	if err != nil {
		return result, err
	}
	q = q.OrderBy(orderBy, "id")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("list: %w", err)
	}

	for _, doc := range result.Items {
		if err := r.loadParts(ctx, doc); err != nil {
			return result, err
		}
	}
	return result, nil
}

// CountDerived counts documents derived from sourceID in one of statuses.
func (r *DocumentRepo) CountDerived(ctx context.Context, sourceID id.ID, statuses []entity.Status) (int, error) {
	sql, args, err := r.Builder().
		Select("COUNT(*)").
		From(documentsTable).
		Where(squirrel.Eq{"source_document_id": sourceID, "status": statuses}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var n int
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count derived: %w", err)
	}
	return n, nil
}

// applyFilter translates a ListFilter into WHERE clauses.
func applyFilter(q squirrel.SelectBuilder, f domain.ListFilter) squirrel.SelectBuilder {
	if len(f.Kinds) > 0 {
		q = q.Where(squirrel.Eq{"kind": f.Kinds})
	}
	if len(f.Statuses) > 0 {
		q = q.Where(squirrel.Eq{"status": f.Statuses})
	}
	if f.PartnerID != nil {
		q = q.Where(squirrel.Eq{"partner_id": *f.PartnerID})
	}
	if f.SourceDocumentID != nil {
		q = q.Where(squirrel.Eq{"source_document_id": *f.SourceDocumentID})
	}
	if f.DateFrom != nil {
		q = q.Where(squirrel.GtOrEq{"date": *f.DateFrom})
	}
	if f.DateTo != nil {
		q = q.Where(squirrel.LtOrEq{"date": *f.DateTo})
	}
	if f.Search != "" {
		q = q.Where(squirrel.ILike{"number": f.Search + "%"})
	}
	return q
}

func (r *DocumentRepo) parseOrderBy(orderBy string) (string, error) {
	allowed := make(map[string]struct{}, len(r.selectCols))
	for _, col := range r.selectCols {
		allowed[col] = struct{}{}
	}

	if strings.TrimSpace(orderBy) == "" {
		return "date DESC", nil
	}

	direction := "ASC"
	field := orderBy
	if strings.HasPrefix(orderBy, "-") {
		direction = "DESC"
		field = strings.TrimPrefix(orderBy, "-")
	} else if strings.HasPrefix(orderBy, "+") {
		field = strings.TrimPrefix(orderBy, "+")
	}

	field = strings.TrimSpace(field)
	if _, ok := allowed[field]; !ok || field == "" {
		return "", apperror.NewValidation("invalid orderBy").WithDetail("orderBy", orderBy)
	}

	return field + " " + direction, nil
}
