// Package journal builds balanced double-entry entries for posted documents
// and defines the journal-posting collaborator contract.
package journal

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"docflow/internal/core/id"
	"docflow/internal/core/types"
	"docflow/internal/domain/document"
)

// Poster is the external journal-posting service. It is invoked exactly
// once per post and once per unpost.
type Poster interface {
	PostJournal(ctx context.Context, doc *document.Document) (ref string, err error)
	RetractJournal(ctx context.Context, ref string) error
}

// Entry is a journal entry generated by one document.
type Entry struct {
	ID           id.ID         `db:"id" json:"id"`
	Ref          string        `db:"ref" json:"ref"`
	DocumentID   id.ID         `db:"document_id" json:"documentId"`
	DocumentKind document.Kind `db:"document_kind" json:"documentKind"`
	Number       string        `db:"number" json:"number"`
	Date         time.Time     `db:"date" json:"date"`
	Lines        []Line        `db:"-" json:"lines"`
}

// Line is a single debit or credit.
type Line struct {
	AccountID id.ID       `db:"account_id" json:"accountId"`
	Debit     types.Money `db:"debit" json:"debit"`
	Credit    types.Money `db:"credit" json:"credit"`
	Memo      string      `db:"memo" json:"memo,omitempty"`
}

// Totals returns Σ debit and Σ credit.
func (e *Entry) Totals() (debit, credit types.Money) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range e.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

// Balanced reports whether debits equal credits.
func (e *Entry) Balanced() bool {
	d, c := e.Totals()
	return d.Equal(c)
}

func (e *Entry) debit(account id.ID, amount types.Money, memo string) {
	if amount.IsZero() {
		return
	}
	if amount.IsNegative() {
		e.credit(account, amount.Neg(), memo)
		return
	}
	e.Lines = append(e.Lines, Line{AccountID: account, Debit: amount, Credit: decimal.Zero, Memo: memo})
}

func (e *Entry) credit(account id.ID, amount types.Money, memo string) {
	if amount.IsZero() {
		return
	}
	if amount.IsNegative() {
		e.debit(account, amount.Neg(), memo)
		return
	}
	e.Lines = append(e.Lines, Line{AccountID: account, Debit: decimal.Zero, Credit: amount, Memo: memo})
}
