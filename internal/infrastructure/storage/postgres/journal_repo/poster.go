// Package journal_repo stores general-ledger entries in PostgreSQL.
package journal_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"docflow/internal/core/apperror"
	"docflow/internal/domain/document"
	"docflow/internal/domain/journal"
	"docflow/internal/infrastructure/storage/postgres"
)

const (
	entriesTable = "journal_entries"
	linesTable   = "journal_lines"
)

var lineColumns = []string{"entry_id", "line_no", "account_id", "debit", "credit", "memo"}

var _ journal.Poster = (*Poster)(nil)

// Poster implements journal.Poster on the journal tables. Writes join the
// caller's transaction, so a rolled-back post leaves no entry behind.
type Poster struct {
	txManager *postgres.TxManager
	batch     *postgres.BatchInserter
	builder   *journal.Builder
	sq        squirrel.StatementBuilderType
}

// NewPoster creates a ledger that builds entries with builder.
func NewPoster(txManager *postgres.TxManager, builder *journal.Builder) *Poster {
	return &Poster{
		txManager: txManager,
		batch:     postgres.NewBatchInserter(txManager),
		builder:   builder,
		sq:        squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (p *Poster) PostJournal(ctx context.Context, doc *document.Document) (string, error) {
	e, err := p.builder.Build(doc)
	if err != nil {
		return "", err
	}

	var ref string
	err = p.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		querier := p.txManager.GetQuerier(ctx)

		var seq int64
		if err := querier.QueryRow(ctx, "SELECT nextval('journal_ref_seq')").Scan(&seq); err != nil {
			return fmt.Errorf("next journal ref: %w", err)
		}
		e.Ref = formatRef(seq)

		sql, args, err := p.sq.
			Insert(entriesTable).
			Columns("id", "ref", "document_id", "document_kind", "number", "date").
			Values(e.ID, e.Ref, e.DocumentID, string(e.DocumentKind), e.Number, e.Date).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert journal entry: %w", err)
		}

		if _, err := p.batch.CopyFromSlice(ctx, linesTable, lineColumns, lineRows(e)); err != nil {
			return fmt.Errorf("copy journal lines: %w", err)
		}
		ref = e.Ref
		return nil
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

func (p *Poster) RetractJournal(ctx context.Context, ref string) error {
	sql, args, err := p.sq.Delete(entriesTable).Where(squirrel.Eq{"ref": ref}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	tag, err := p.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("retract journal entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("journal_entry", ref)
	}
	return nil
}

// Entry loads a stored entry with its lines.
func (p *Poster) Entry(ctx context.Context, ref string) (*journal.Entry, error) {
	querier := p.txManager.GetQuerier(ctx)

	sql, args, err := p.sq.
		Select("id", "ref", "document_id", "document_kind", "number", "date").
		From(entriesTable).
		Where(squirrel.Eq{"ref": ref}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var e journal.Entry
	if err := pgxscan.Get(ctx, querier, &e, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("journal_entry", ref)
		}
		return nil, fmt.Errorf("get journal entry: %w", err)
	}

	sql, args, err = p.sq.
		Select("account_id", "debit", "credit", "memo").
		From(linesTable).
		Where(squirrel.Eq{"entry_id": e.ID}).
		OrderBy("line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &e.Lines, sql, args...); err != nil {
		return nil, fmt.Errorf("select journal lines: %w", err)
	}
	return &e, nil
}

func formatRef(seq int64) string {
	return fmt.Sprintf("JE-%06d", seq)
}

func lineRows(e *journal.Entry) [][]any {
	rows := make([][]any, 0, len(e.Lines))
	for i, l := range e.Lines {
		rows = append(rows, []any{e.ID, i + 1, l.AccountID, l.Debit, l.Credit, l.Memo})
	}
	return rows
}
