package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/fulfillment"
	"docflow/internal/infrastructure/storage/postgres"
)

const countersTable = "fulfillment_counters"

var counterColumns = []string{"source_document_id", "source_line_id", "item_id", "ordered", "fulfilled", "version"}

var _ fulfillment.Repository = (*FulfillmentRepo)(nil)

// FulfillmentRepo implements fulfillment.Repository.
type FulfillmentRepo struct {
	txManager *postgres.TxManager
	batch     *postgres.BatchInserter
	builder   squirrel.StatementBuilderType
}

// NewFulfillmentRepo creates a new counter repository.
func NewFulfillmentRepo(txManager *postgres.TxManager) *FulfillmentRepo {
	return &FulfillmentRepo{
		txManager: txManager,
		batch:     postgres.NewBatchInserter(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateCounters opens counters of a posted source. Must run inside a transaction.
func (r *FulfillmentRepo) CreateCounters(ctx context.Context, counters []fulfillment.Counter) error {
	rows := make([][]any, 0, len(counters))
	for _, c := range counters {
		rows = append(rows, []any{
			c.SourceDocumentID, c.SourceLineID, c.ItemID,
			c.Ordered.Int64Scaled(), c.Fulfilled.Int64Scaled(), 1,
		})
	}
	if _, err := r.batch.CopyFromSlice(ctx, countersTable, counterColumns, rows); err != nil {
		return fmt.Errorf("copy counters: %w", err)
	}
	return nil
}

func (r *FulfillmentRepo) DeleteCounters(ctx context.Context, sourceID id.ID) error {
	sql, args, err := r.builder.Delete(countersTable).Where(squirrel.Eq{"source_document_id": sourceID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete counters: %w", err)
	}
	return nil
}

func (r *FulfillmentRepo) Counters(ctx context.Context, sourceID id.ID) ([]fulfillment.Counter, error) {
	sql, args, err := r.builder.
		Select(counterColumns...).
		From(countersTable).
		Where(squirrel.Eq{"source_document_id": sourceID}).
		OrderBy("source_line_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var counters []fulfillment.Counter
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &counters, sql, args...); err != nil {
		return nil, fmt.Errorf("select counters: %w", err)
	}
	return counters, nil
}

func (r *FulfillmentRepo) GetForUpdate(ctx context.Context, sourceID, lineID id.ID) (fulfillment.Counter, error) {
	sql, args, err := r.builder.
		Select(counterColumns...).
		From(countersTable).
		Where(squirrel.Eq{"source_document_id": sourceID, "source_line_id": lineID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return fulfillment.Counter{}, fmt.Errorf("build query: %w", err)
	}

	var c fulfillment.Counter
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &c, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return c, apperror.NewNotFound("fulfillment_counter", lineID.String())
		}
		return c, fmt.Errorf("get counter for update: %w", err)
	}
	return c, nil
}

func (r *FulfillmentRepo) UpdateFulfilled(ctx context.Context, c fulfillment.Counter) error {
	sql, args, err := r.builder.
		Update(countersTable).
		Set("fulfilled", c.Fulfilled.Int64Scaled()).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{
			"source_document_id": c.SourceDocumentID,
			"source_line_id":     c.SourceLineID,
			"version":            c.Version,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("fulfillment_counter", c.SourceLineID.String())
	}
	return nil
}
