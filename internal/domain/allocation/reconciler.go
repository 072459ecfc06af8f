// Package allocation matches adjustment amounts against open invoice balances.
package allocation

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/core/types"
	"docflow/internal/domain/document"
)

// DefaultEpsilon is the tolerance of the allocation sum check.
var DefaultEpsilon = decimal.RequireFromString("0.01")

// Balance is the outstanding amount of a posted invoice.
type Balance struct {
	InvoiceID   id.ID         `db:"invoice_id" json:"invoiceId"`
	Kind        document.Kind `db:"kind" json:"kind"`
	PartnerID   id.ID         `db:"partner_id" json:"partnerId"`
	Number      string        `db:"number" json:"number"`
	Date        time.Time     `db:"date" json:"date"`
	Total       types.Money   `db:"total" json:"total"`
	Outstanding types.Money   `db:"outstanding" json:"outstanding"`
	Version     int           `db:"version" json:"-"`
}

// LockKey returns the shared-resource key of an invoice balance.
func LockKey(invoiceID id.ID) string {
	return fmt.Sprintf("invoice:%s", invoiceID)
}

// Repository persists invoice balances.
type Repository interface {
	Open(ctx context.Context, b Balance) error
	Close(ctx context.Context, invoiceID id.ID) error

	// Get returns NotFound for invoices without an open balance.
	Get(ctx context.Context, invoiceID id.ID) (Balance, error)
	GetForUpdate(ctx context.Context, invoiceID id.ID) (Balance, error)

	// UpdateOutstanding saves Outstanding with an optimistic version check.
	UpdateOutstanding(ctx context.Context, b Balance) error

	// ListOpen returns balances with outstanding > 0, oldest first.
	// A nil partner or empty kind matches all.
	ListOpen(ctx context.Context, partnerID *id.ID, kind document.Kind) ([]Balance, error)
}

// Reconciler enforces allocation invariants. Callers provide the
// transaction and hold the invoice locks.
type Reconciler struct {
	repo    Repository
	epsilon decimal.Decimal
}

// NewReconciler creates a reconciler with the given sum tolerance.
func NewReconciler(repo Repository, epsilon decimal.Decimal) *Reconciler {
	return &Reconciler{repo: repo, epsilon: epsilon}
}

// CheckSum verifies |Σ allocated − total| ≤ epsilon for allocation-enabled documents.
func (r *Reconciler) CheckSum(doc *document.Document) error {
	if !doc.AllocateToInvoice {
		return nil
	}
	sum := doc.AllocatedSum()
	diff := sum.Sub(doc.TotalAmount()).Abs()
	if diff.GreaterThan(r.epsilon) {
		return apperror.NewBusinessRule(apperror.CodeAllocationMismatch, "allocated amounts must add up to the document total").
			WithDetail("total", doc.TotalAmount().String()).
			WithDetail("allocated", sum.String()).
			WithDetail("difference", diff.String())
	}
	return nil
}

// CheckTargets verifies every allocation points to an open invoice of the
// expected kind and partner with enough outstanding balance.
func (r *Reconciler) CheckTargets(ctx context.Context, doc *document.Document) error {
	_, err := r.targets(ctx, doc, r.repo.Get)
	return err
}

func (r *Reconciler) targets(ctx context.Context, doc *document.Document, load func(context.Context, id.ID) (Balance, error)) ([]Balance, error) {
	if !doc.AllocateToInvoice {
		return nil, nil
	}
	p, err := doc.Profile()
	if err != nil {
		return nil, err
	}

	out := make([]Balance, 0, len(doc.Allocations))
	for i, a := range doc.Allocations {
		b, err := load(ctx, a.TargetInvoiceID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return nil, apperror.NewFieldValidation("allocations", "target invoice has no open balance").
					WithDetail("index", i).
					WithDetail("invoice_id", a.TargetInvoiceID.String())
			}
			return nil, fmt.Errorf("load invoice balance: %w", err)
		}
		if b.Kind != p.AllocatesAgainst {
			return nil, apperror.NewFieldValidation("allocations", fmt.Sprintf("%s can only be allocated to %s", doc.Kind, p.AllocatesAgainst)).
				WithDetail("index", i).
				WithDetail("invoice_kind", string(b.Kind))
		}
		if doc.PartnerID == nil || b.PartnerID != *doc.PartnerID {
			return nil, apperror.NewFieldValidation("allocations", "target invoice belongs to another partner").
				WithDetail("index", i).
				WithDetail("invoice_id", a.TargetInvoiceID.String())
		}
		if b.Outstanding.LessThan(a.AllocatedAmount) {
			return nil, apperror.NewBusinessRule(apperror.CodeAllocationMismatch, "allocated amount exceeds invoice outstanding balance").
				WithDetail("invoice_id", a.TargetInvoiceID.String()).
				WithDetail("outstanding", b.Outstanding.String()).
				WithDetail("allocated", a.AllocatedAmount.String())
		}
		out = append(out, b)
	}
	return out, nil
}

// LockKeys returns the sorted invoice keys a document allocates against.
func LockKeys(doc *document.Document) []string {
	if !doc.AllocateToInvoice {
		return nil
	}
	keys := make([]string, 0, len(doc.Allocations))
	for _, a := range doc.Allocations {
		keys = append(keys, LockKey(a.TargetInvoiceID))
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

// Apply re-checks the targets under lock and reduces their outstanding balances.
func (r *Reconciler) Apply(ctx context.Context, doc *document.Document) error {
	balances, err := r.targets(ctx, doc, r.repo.GetForUpdate)
	if err != nil {
		return err
	}
	for i, b := range balances {
		b.Outstanding = b.Outstanding.Sub(doc.Allocations[i].AllocatedAmount)
		if err := r.repo.UpdateOutstanding(ctx, b); err != nil {
			return fmt.Errorf("update invoice balance: %w", err)
		}
	}
	return nil
}

// Revert restores the balances reduced by Apply.
func (r *Reconciler) Revert(ctx context.Context, doc *document.Document) error {
	if !doc.AllocateToInvoice {
		return nil
	}
	for _, a := range doc.Allocations {
		b, err := r.repo.GetForUpdate(ctx, a.TargetInvoiceID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewInvariantViolation("allocated invoice has no open balance").
					WithDetail("invoice_id", a.TargetInvoiceID.String()).
					WithDetail("document_id", doc.ID.String())
			}
			return fmt.Errorf("lock invoice balance: %w", err)
		}
		b.Outstanding = b.Outstanding.Add(a.AllocatedAmount)
		if b.Outstanding.GreaterThan(b.Total) {
			return apperror.NewInvariantViolation("restored outstanding exceeds invoice total").
				WithDetail("invoice_id", b.InvoiceID.String()).
				WithDetail("outstanding", b.Outstanding.String()).
				WithDetail("total", b.Total.String())
		}
		if err := r.repo.UpdateOutstanding(ctx, b); err != nil {
			return fmt.Errorf("update invoice balance: %w", err)
		}
	}
	return nil
}

// OpenInvoice registers the balance of a posted invoice.
func (r *Reconciler) OpenInvoice(ctx context.Context, inv *document.Document) error {
	if inv.PartnerID == nil {
		return apperror.NewInvariantViolation("invoice without partner").WithDetail("document_id", inv.ID.String())
	}
	return r.repo.Open(ctx, Balance{
		InvoiceID:   inv.ID,
		Kind:        inv.Kind,
		PartnerID:   *inv.PartnerID,
		Number:      inv.Number,
		Date:        inv.Date,
		Total:       inv.TotalAmount(),
		Outstanding: inv.TotalAmount(),
	})
}

// CloseInvoice removes the balance of an invoice being unposted. Any
// allocation that consumed part of it blocks the operation.
func (r *Reconciler) CloseInvoice(ctx context.Context, inv *document.Document) error {
	b, err := r.repo.GetForUpdate(ctx, inv.ID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("lock invoice balance: %w", err)
	}
	if !b.Outstanding.Equal(b.Total) {
		return apperror.NewDependencyConflict("a posted adjustment is allocated to this invoice").
			WithDetail("invoice_id", inv.ID.String()).
			WithDetail("outstanding", b.Outstanding.String()).
			WithDetail("total", b.Total.String())
	}
	return r.repo.Close(ctx, inv.ID)
}

// OpenBalances lists open invoices.
func (r *Reconciler) OpenBalances(ctx context.Context, partnerID *id.ID, kind document.Kind) ([]Balance, error) {
	return r.repo.ListOpen(ctx, partnerID, kind)
}
