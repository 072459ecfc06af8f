package security

import (
	"context"
	"time"

	"docflow/internal/core/apperror"
)

// PostingPolicy decides whether a document date is still open for changes.
type PostingPolicy interface {
	// CanPost checks if document can be posted with given date
	CanPost(ctx context.Context, docDate time.Time) error

	// CanModify checks if a draft dated docDate may still be edited
	CanModify(ctx context.Context, docDate time.Time) error

	// CanUnpost checks if document can be unposted
	CanUnpost(ctx context.Context, docDate time.Time) error

	// ClosedUntil returns the first open date (zero when nothing is closed)
	ClosedUntil(ctx context.Context) time.Time
}

// ClosedPeriodPolicy forbids any change dated before closedUntil.
type ClosedPeriodPolicy struct {
	closedUntil time.Time
}

// NewClosedPeriodPolicy creates a policy that forbids changes before closedUntil.
func NewClosedPeriodPolicy(closedUntil time.Time) *ClosedPeriodPolicy {
	return &ClosedPeriodPolicy{closedUntil: closedUntil}
}

func (p *ClosedPeriodPolicy) CanPost(ctx context.Context, docDate time.Time) error {
	if !p.closedUntil.IsZero() && docDate.Before(p.closedUntil) {
		return apperror.NewPeriodClosed(p.closedUntil.AddDate(0, 0, -1).Format("2006-01")).
			WithDetail("closed_until", p.closedUntil.Format("2006-01-02"))
	}
	return nil
}

func (p *ClosedPeriodPolicy) CanModify(ctx context.Context, docDate time.Time) error {
	return p.CanPost(ctx, docDate)
}

func (p *ClosedPeriodPolicy) CanUnpost(ctx context.Context, docDate time.Time) error {
	return p.CanPost(ctx, docDate)
}

func (p *ClosedPeriodPolicy) ClosedUntil(ctx context.Context) time.Time {
	return p.closedUntil
}

// OpenPolicy allows all operations (for development/testing).
type OpenPolicy struct{}

func (OpenPolicy) CanPost(ctx context.Context, docDate time.Time) error   { return nil }
func (OpenPolicy) CanModify(ctx context.Context, docDate time.Time) error { return nil }
func (OpenPolicy) CanUnpost(ctx context.Context, docDate time.Time) error { return nil }
func (OpenPolicy) ClosedUntil(ctx context.Context) time.Time              { return time.Time{} }
