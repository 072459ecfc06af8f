package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"docflow/internal/core/id"
	"docflow/internal/domain/document"
)

// loadParts fills lines and allocations of doc.
func (r *DocumentRepo) loadParts(ctx context.Context, doc *document.Document) error {
	querier := r.txManager.GetQuerier(ctx)

	sql, args, err := r.Builder().
		Select(lineColumns...).
		From(linesTable).
		Where(squirrel.Eq{"document_id": doc.ID}).
		OrderBy("line_no").
		ToSql()
	if err != nil {
		return fmt.Errorf("build lines query: %w", err)
	}
	doc.Lines = []document.Line{}
	if err := pgxscan.Select(ctx, querier, &doc.Lines, sql, args...); err != nil {
		return fmt.Errorf("get lines: %w", err)
	}

	sql, args, err = r.Builder().
		Select(allocationColumns...).
		From(allocationsTable).
		Where(squirrel.Eq{"document_id": doc.ID}).
		OrderBy("allocation_id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build allocations query: %w", err)
	}
	doc.Allocations = nil
	if err := pgxscan.Select(ctx, querier, &doc.Allocations, sql, args...); err != nil {
		return fmt.Errorf("get allocations: %w", err)
	}
	return nil
}

// saveParts replaces lines and allocations of doc: delete, then COPY.
func (r *DocumentRepo) saveParts(ctx context.Context, doc *document.Document) error {
	querier := r.txManager.GetQuerier(ctx)

	for _, table := range []string{linesTable, allocationsTable} {
		if _, err := querier.Exec(ctx, "DELETE FROM "+table+" WHERE document_id = $1", doc.ID); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}

	if _, err := r.batch.CopyFromSlice(ctx, linesTable, append([]string{"document_id"}, lineColumns...), lineRows(doc.ID, doc.Lines)); err != nil {
		return fmt.Errorf("copy lines: %w", err)
	}
	if _, err := r.batch.CopyFromSlice(ctx, allocationsTable, append([]string{"document_id"}, allocationColumns...), allocationRows(doc.ID, doc.Allocations)); err != nil {
		return fmt.Errorf("copy allocations: %w", err)
	}
	return nil
}

func lineRows(docID id.ID, lines []document.Line) [][]any {
	rows := make([][]any, 0, len(lines))
	for _, l := range lines {
		role := l.Role
		if role == "" {
			role = document.RoleNormal
		}
		rows = append(rows, []any{
			docID, l.ID, l.LineNo, l.ItemID, string(role), l.Description,
			l.Quantity.Int64Scaled(), l.UnitPrice, l.UnitCost, l.DiscountPct, l.LineTotal,
			l.SourceLineID, l.QuantityAlreadyFulfilled.Int64Scaled(), l.PostedUnitCost,
		})
	}
	return rows
}

func allocationRows(docID id.ID, allocations []document.Allocation) [][]any {
	rows := make([][]any, 0, len(allocations))
	for _, a := range allocations {
		rows = append(rows, []any{docID, a.ID, a.TargetInvoiceID, a.AllocatedAmount})
	}
	return rows
}
