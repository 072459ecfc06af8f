package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/allocation"
	"docflow/internal/domain/document"
	"docflow/internal/infrastructure/storage/postgres"
)

const balancesTable = "invoice_balances"

var balanceColumns = []string{"invoice_id", "kind", "partner_id", "number", "date", "total", "outstanding", "version"}

var _ allocation.Repository = (*BalanceRepo)(nil)

// BalanceRepo implements allocation.Repository.
type BalanceRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewBalanceRepo creates a new invoice balance repository.
func NewBalanceRepo(txManager *postgres.TxManager) *BalanceRepo {
	return &BalanceRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *BalanceRepo) Open(ctx context.Context, b allocation.Balance) error {
	sql, args, err := r.builder.
		Insert(balancesTable).
		Columns(balanceColumns...).
		Values(b.InvoiceID, string(b.Kind), b.PartnerID, b.Number, b.Date, b.Total, b.Outstanding, 1).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("open balance: %w", err)
	}
	return nil
}

func (r *BalanceRepo) Close(ctx context.Context, invoiceID id.ID) error {
	sql, args, err := r.builder.Delete(balancesTable).Where(squirrel.Eq{"invoice_id": invoiceID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("close balance: %w", err)
	}
	return nil
}

func (r *BalanceRepo) Get(ctx context.Context, invoiceID id.ID) (allocation.Balance, error) {
	return r.get(ctx, invoiceID, "")
}

func (r *BalanceRepo) GetForUpdate(ctx context.Context, invoiceID id.ID) (allocation.Balance, error) {
	return r.get(ctx, invoiceID, "FOR UPDATE")
}

func (r *BalanceRepo) get(ctx context.Context, invoiceID id.ID, suffix string) (allocation.Balance, error) {
	q := r.builder.Select(balanceColumns...).From(balancesTable).Where(squirrel.Eq{"invoice_id": invoiceID})
	if suffix != "" {
		q = q.Suffix(suffix)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return allocation.Balance{}, fmt.Errorf("build query: %w", err)
	}

	var b allocation.Balance
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return b, apperror.NewNotFound("invoice_balance", invoiceID.String())
		}
		return b, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

func (r *BalanceRepo) UpdateOutstanding(ctx context.Context, b allocation.Balance) error {
	sql, args, err := r.builder.
		Update(balancesTable).
		Set("outstanding", b.Outstanding).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"invoice_id": b.InvoiceID, "version": b.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("invoice_balance", b.InvoiceID.String())
	}
	return nil
}

func (r *BalanceRepo) ListOpen(ctx context.Context, partnerID *id.ID, kind document.Kind) ([]allocation.Balance, error) {
	sql, args, err := r.listOpenQuery(partnerID, kind).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var balances []allocation.Balance
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &balances, sql, args...); err != nil {
		return nil, fmt.Errorf("list open balances: %w", err)
	}
	return balances, nil
}

func (r *BalanceRepo) listOpenQuery(partnerID *id.ID, kind document.Kind) squirrel.SelectBuilder {
	q := r.builder.
		Select(balanceColumns...).
		From(balancesTable).
		Where(squirrel.Gt{"outstanding": 0})
	if partnerID != nil {
		q = q.Where(squirrel.Eq{"partner_id": *partnerID})
	}
	if kind != "" {
		q = q.Where(squirrel.Eq{"kind": string(kind)})
	}
	return q.OrderBy("date", "invoice_id")
}
