// Package register_repo provides PostgreSQL implementations of the running
// registers: cost layers with their movement ledger, fulfillment counters
// and invoice balances.
package register_repo

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/costing"
	"docflow/internal/infrastructure/storage/postgres"
)

const (
	costLayersTable    = "cost_layers"
	costMovementsTable = "cost_movements"
)

var movementColumns = []string{
	"seq", "recorder_id", "recorder_kind", "line_id",
	"item_id", "location_id", "direction", "quantity", "unit_cost",
	"period", "created_at",
}

var _ costing.Repository = (*CostingRepo)(nil)

// CostingRepo implements costing.Repository.
type CostingRepo struct {
	txManager *postgres.TxManager
	batch     *postgres.BatchInserter
	builder   squirrel.StatementBuilderType
}

// NewCostingRepo creates a new cost register repository.
func NewCostingRepo(txManager *postgres.TxManager) *CostingRepo {
	return &CostingRepo{
		txManager: txManager,
		batch:     postgres.NewBatchInserter(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *CostingRepo) layerQuery(key costing.Key) squirrel.SelectBuilder {
	return r.builder.
		Select("item_id", "location_id", "quantity", "average_cost", "version").
		From(costLayersTable).
		Where(squirrel.Eq{"item_id": key.ItemID, "location_id": key.LocationID})
}

// GetLayer returns a zero layer when none exists.
func (r *CostingRepo) GetLayer(ctx context.Context, key costing.Key) (costing.Layer, error) {
	return r.getLayer(ctx, r.layerQuery(key), key)
}

// GetLayerForUpdate locks the layer row. A missing row is covered by the
// cost lock key and the primary key on insert.
func (r *CostingRepo) GetLayerForUpdate(ctx context.Context, key costing.Key) (costing.Layer, error) {
	return r.getLayer(ctx, r.layerQuery(key).Suffix("FOR UPDATE"), key)
}

func (r *CostingRepo) getLayer(ctx context.Context, q squirrel.SelectBuilder, key costing.Key) (costing.Layer, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return costing.Layer{}, fmt.Errorf("build query: %w", err)
	}

	var layer costing.Layer
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &layer, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return costing.Layer{ItemID: key.ItemID, LocationID: key.LocationID, AverageCost: decimal.Zero}, nil
		}
		return costing.Layer{}, fmt.Errorf("get cost layer: %w", err)
	}
	return layer, nil
}

// SaveLayer inserts a new layer (Version 0) or updates an existing one
// with an optimistic version check.
func (r *CostingRepo) SaveLayer(ctx context.Context, layer costing.Layer) error {
	var (
		sql  string
		args []any
		err  error
	)
	if layer.Version == 0 {
		sql, args, err = r.builder.
			Insert(costLayersTable).
			Columns("item_id", "location_id", "quantity", "average_cost", "version").
			Values(layer.ItemID, layer.LocationID, layer.Quantity.Int64Scaled(), layer.AverageCost, 1).
			Suffix("ON CONFLICT (item_id, location_id) DO NOTHING").
			ToSql()
	} else {
		sql, args, err = r.builder.
			Update(costLayersTable).
			Set("quantity", layer.Quantity.Int64Scaled()).
			Set("average_cost", layer.AverageCost).
			Set("version", squirrel.Expr("version + 1")).
			Where(squirrel.Eq{"item_id": layer.ItemID, "location_id": layer.LocationID, "version": layer.Version}).
			ToSql()
	}
	if err != nil {
		return fmt.Errorf("build save layer: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("save cost layer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("cost_layer", costing.Key{ItemID: layer.ItemID, LocationID: layer.LocationID}.LockKey())
	}
	return nil
}

// AppendMovements reserves ledger sequence numbers and COPYs the rows.
// Must run inside a transaction.
func (r *CostingRepo) AppendMovements(ctx context.Context, movements []costing.Movement) error {
	if len(movements) == 0 {
		return nil
	}

	querier := r.txManager.GetQuerier(ctx)
	rows, err := querier.Query(ctx,
		`SELECT nextval(pg_get_serial_sequence('cost_movements', 'seq')) FROM generate_series(1, $1)`,
		len(movements))
	if err != nil {
		return fmt.Errorf("reserve movement seq: %w", err)
	}
	seqs := make([]int64, 0, len(movements))
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			rows.Close()
			return fmt.Errorf("scan movement seq: %w", err)
		}
		seqs = append(seqs, seq)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reserve movement seq: %w", err)
	}
	if len(seqs) != len(movements) {
		return apperror.NewInvariantViolation("movement sequence reservation came back short")
	}
	slices.Sort(seqs)

	now := time.Now().UTC()
	for i := range movements {
		movements[i].Seq = seqs[i]
		if movements[i].CreatedAt.IsZero() {
			movements[i].CreatedAt = now
		}
	}

	if _, err := r.batch.CopyFromSlice(ctx, costMovementsTable, movementColumns, movementRows(movements)); err != nil {
		return fmt.Errorf("copy movements: %w", err)
	}
	return nil
}

func movementRows(movements []costing.Movement) [][]any {
	rows := make([][]any, 0, len(movements))
	for _, m := range movements {
		rows = append(rows, []any{
			m.Seq, m.RecorderID, m.RecorderKind, m.LineID,
			m.ItemID, m.LocationID, string(m.Direction), m.Quantity.Int64Scaled(), m.UnitCost,
			m.Period, m.CreatedAt,
		})
	}
	return rows
}

// MovementsByRecorder returns the movements written by one document.
func (r *CostingRepo) MovementsByRecorder(ctx context.Context, recorderID id.ID) ([]costing.Movement, error) {
	return r.selectMovements(ctx, squirrel.Eq{"recorder_id": recorderID})
}

// Movements returns the ledger of a layer ordered by seq.
func (r *CostingRepo) Movements(ctx context.Context, key costing.Key) ([]costing.Movement, error) {
	return r.selectMovements(ctx, squirrel.Eq{"item_id": key.ItemID, "location_id": key.LocationID})
}

func (r *CostingRepo) selectMovements(ctx context.Context, where squirrel.Eq) ([]costing.Movement, error) {
	sql, args, err := r.builder.
		Select(movementColumns...).
		From(costMovementsTable).
		Where(where).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []costing.Movement
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

// DeleteMovementsByRecorder removes the movements of one document.
func (r *CostingRepo) DeleteMovementsByRecorder(ctx context.Context, recorderID id.ID) error {
	sql, args, err := r.builder.Delete(costMovementsTable).Where(squirrel.Eq{"recorder_id": recorderID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete movements: %w", err)
	}
	return nil
}
