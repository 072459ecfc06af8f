// Package catalog_repo provides the PostgreSQL master-data provider over the
// cat_* reference tables.
package catalog_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"docflow/internal/core/apperror"
	"docflow/internal/infrastructure/storage/postgres"
)

// table gives typed lookups and upserts for one reference table.
type table[T any] struct {
	txManager *postgres.TxManager
	name      string
	entity    string
	keyCol    string
	cols      []string
}

func newTable[T any](txManager *postgres.TxManager, name, entity, keyCol string, cols []string) table[T] {
	return table[T]{txManager: txManager, name: name, entity: entity, keyCol: keyCol, cols: cols}
}

func (t table[T]) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (t table[T]) getQuery(key any) squirrel.SelectBuilder {
	return t.builder().
		Select(t.cols...).
		From(t.name).
		Where(squirrel.Eq{t.keyCol: key})
}

// get returns NotFound for unknown keys.
func (t table[T]) get(ctx context.Context, key any) (T, error) {
	var entity T
	sql, args, err := t.getQuery(key).ToSql()
	if err != nil {
		return entity, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Get(ctx, t.txManager.GetQuerier(ctx), &entity, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity, apperror.NewNotFound(t.entity, key)
		}
		return entity, fmt.Errorf("get %s: %w", t.entity, err)
	}
	return entity, nil
}

func (t table[T]) upsertQuery(entity T) (string, []any, error) {
	data := postgres.StructToMap(entity)

	values := make([]any, 0, len(t.cols))
	updates := make([]string, 0, len(t.cols))
	for _, col := range t.cols {
		val, ok := data[col]
		if !ok {
			return "", nil, fmt.Errorf("%s: column %s missing from entity", t.name, col)
		}
		values = append(values, val)
		if col != t.keyCol {
			updates = append(updates, col+" = EXCLUDED."+col)
		}
	}

	q := t.builder().Insert(t.name).Columns(t.cols...).Values(values...)
	if len(updates) > 0 {
		q = q.Suffix("ON CONFLICT (" + t.keyCol + ") DO UPDATE SET " + strings.Join(updates, ", "))
	} else {
		q = q.Suffix("ON CONFLICT (" + t.keyCol + ") DO NOTHING")
	}
	return q.ToSql()
}

// upsert inserts or replaces a row by its key column.
func (t table[T]) upsert(ctx context.Context, entity T) error {
	sql, args, err := t.upsertQuery(entity)
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := t.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", t.entity, err)
	}
	return nil
}
