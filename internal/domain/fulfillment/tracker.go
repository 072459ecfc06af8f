// Package fulfillment tracks ordered and fulfilled quantities per source
// document line and derives child documents from what is still outstanding.
package fulfillment

import (
	"context"
	"fmt"
	"slices"
	"time"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/core/types"
	"docflow/internal/domain/document"
)

// Counter holds the running totals of one source line.
type Counter struct {
	SourceDocumentID id.ID          `db:"source_document_id" json:"sourceDocumentId"`
	SourceLineID     id.ID          `db:"source_line_id" json:"sourceLineId"`
	ItemID           *id.ID         `db:"item_id" json:"itemId,omitempty"`
	Ordered          types.Quantity `db:"ordered" json:"ordered"`
	Fulfilled        types.Quantity `db:"fulfilled" json:"fulfilled"`
	Version          int            `db:"version" json:"-"`
}

// Outstanding is max(0, ordered − fulfilled), never above ordered.
func (c Counter) Outstanding() types.Quantity {
	return types.MinQuantity((c.Ordered - c.Fulfilled).ClampZero(), c.Ordered)
}

// LockKey returns the shared-resource key of a source line.
func LockKey(sourceID, lineID id.ID) string {
	return fmt.Sprintf("line:%s:%s", sourceID, lineID)
}

// Repository persists fulfillment counters.
type Repository interface {
	CreateCounters(ctx context.Context, counters []Counter) error
	DeleteCounters(ctx context.Context, sourceID id.ID) error

	// Counters returns the counters of a source ordered by line.
	Counters(ctx context.Context, sourceID id.ID) ([]Counter, error)

	// GetForUpdate locks a counter row. Missing counters yield NotFound.
	GetForUpdate(ctx context.Context, sourceID, lineID id.ID) (Counter, error)

	// UpdateFulfilled saves Fulfilled with an optimistic version check.
	UpdateFulfilled(ctx context.Context, counter Counter) error
}

// Tracker implements fulfillment bookkeeping on top of a Repository.
// Callers provide the transaction and hold the line locks.
type Tracker struct {
	repo Repository
}

// NewTracker creates a tracker.
func NewTracker(repo Repository) *Tracker {
	return &Tracker{repo: repo}
}

// Register opens a counter for every line of a posted source.
func (t *Tracker) Register(ctx context.Context, source *document.Document) error {
	counters := make([]Counter, 0, len(source.Lines))
	for _, l := range source.Lines {
		counters = append(counters, Counter{
			SourceDocumentID: source.ID,
			SourceLineID:     l.ID,
			ItemID:           l.ItemID,
			Ordered:          l.Quantity,
		})
	}
	if err := t.repo.CreateCounters(ctx, counters); err != nil {
		return fmt.Errorf("create fulfillment counters: %w", err)
	}
	return nil
}

// Unregister drops the counters of a source being unposted. Any line that a
// posted child already fulfilled blocks the operation.
func (t *Tracker) Unregister(ctx context.Context, source *document.Document) error {
	counters, err := t.repo.Counters(ctx, source.ID)
	if err != nil {
		return fmt.Errorf("load fulfillment counters: %w", err)
	}
	for _, c := range counters {
		if c.Fulfilled > 0 {
			return apperror.NewDependencyConflict("a posted downstream document already fulfilled this document").
				WithDetail("source_line_id", c.SourceLineID.String()).
				WithDetail("fulfilled", c.Fulfilled.String())
		}
	}
	if err := t.repo.DeleteCounters(ctx, source.ID); err != nil {
		return fmt.Errorf("delete fulfillment counters: %w", err)
	}
	return nil
}

// Counters returns the current counters of a source.
func (t *Tracker) Counters(ctx context.Context, sourceID id.ID) ([]Counter, error) {
	return t.repo.Counters(ctx, sourceID)
}

// Derive builds a Draft child of kind from the outstanding lines of source.
// Each line is pre-filled with its outstanding quantity and a snapshot of
// what was already fulfilled.
func (t *Tracker) Derive(ctx context.Context, source *document.Document, kind document.Kind, date time.Time) (*document.Document, error) {
	counters, err := t.repo.Counters(ctx, source.ID)
	if err != nil {
		return nil, fmt.Errorf("load fulfillment counters: %w", err)
	}
	byLine := make(map[id.ID]Counter, len(counters))
	for _, c := range counters {
		byLine[c.SourceLineID] = c
	}

	child, err := document.New(kind, date)
	if err != nil {
		return nil, err
	}
	child.PartnerID = source.PartnerID
	child.LocationID = source.LocationID
	child.SourceDocumentID = id.Ptr(source.ID)

	for _, l := range source.Lines {
		c, ok := byLine[l.ID]
		if !ok || c.Outstanding() <= 0 {
			continue
		}
		child.Lines = append(child.Lines, document.Line{
			ID:                       id.New(),
			ItemID:                   l.ItemID,
			Description:              l.Description,
			Quantity:                 c.Outstanding(),
			UnitPrice:                l.UnitPrice,
			UnitCost:                 l.UnitCost,
			DiscountPct:              l.DiscountPct,
			SourceLineID:             id.Ptr(l.ID),
			QuantityAlreadyFulfilled: c.Fulfilled,
		})
	}

	if len(child.Lines) == 0 {
		return nil, apperror.NewValidation("source document has no outstanding quantity").
			WithDetail("source_document_id", source.ID.String())
	}
	return child, nil
}

// LockKeys returns the sorted line keys a child posts against.
func LockKeys(child *document.Document) []string {
	if child.SourceDocumentID == nil {
		return nil
	}
	var keys []string
	for _, l := range child.Lines {
		if l.SourceLineID != nil {
			keys = append(keys, LockKey(*child.SourceDocumentID, *l.SourceLineID))
		}
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

// Apply adds every child line to its source counter. The check runs against
// the locked counter, so concurrent drafts of the same outstanding quantity
// cannot both succeed.
func (t *Tracker) Apply(ctx context.Context, child *document.Document) error {
	return t.each(ctx, child, func(c *Counter, l document.Line) error {
		if c.Fulfilled+l.Quantity > c.Ordered {
			return apperror.NewBusinessRule(apperror.CodeOverFulfillment, "quantity exceeds outstanding quantity of source line").
				WithDetail("source_line_id", c.SourceLineID.String()).
				WithDetail("ordered", c.Ordered.String()).
				WithDetail("fulfilled", c.Fulfilled.String()).
				WithDetail("outstanding", c.Outstanding().String()).
				WithDetail("requested", l.Quantity.String())
		}
		c.Fulfilled += l.Quantity
		return nil
	})
}

// Revert subtracts every child line from its source counter.
func (t *Tracker) Revert(ctx context.Context, child *document.Document) error {
	return t.each(ctx, child, func(c *Counter, l document.Line) error {
		if c.Fulfilled-l.Quantity < 0 {
			return apperror.NewInvariantViolation("fulfilled quantity would become negative").
				WithDetail("source_line_id", c.SourceLineID.String()).
				WithDetail("fulfilled", c.Fulfilled.String()).
				WithDetail("reverted", l.Quantity.String())
		}
		c.Fulfilled -= l.Quantity
		return nil
	})
}

func (t *Tracker) each(ctx context.Context, child *document.Document, fn func(c *Counter, l document.Line) error) error {
	if child.SourceDocumentID == nil {
		return nil
	}
	sourceID := *child.SourceDocumentID

	for _, l := range child.Lines {
		if l.SourceLineID == nil {
			continue
		}
		c, err := t.repo.GetForUpdate(ctx, sourceID, *l.SourceLineID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewFieldValidation("lines", "source line is not open for fulfillment").
					WithDetail("lineNo", l.LineNo).
					WithDetail("source_line_id", l.SourceLineID.String())
			}
			return fmt.Errorf("lock fulfillment counter: %w", err)
		}
		if err := fn(&c, l); err != nil {
			return err
		}
		if err := t.repo.UpdateFulfilled(ctx, c); err != nil {
			return fmt.Errorf("update fulfillment counter: %w", err)
		}
	}
	return nil
}

// FullyFulfilled reports whether every line of source has zero outstanding.
func (t *Tracker) FullyFulfilled(ctx context.Context, sourceID id.ID) (bool, error) {
	counters, err := t.repo.Counters(ctx, sourceID)
	if err != nil {
		return false, err
	}
	if len(counters) == 0 {
		return false, nil
	}
	for _, c := range counters {
		if c.Outstanding() > 0 {
			return false, nil
		}
	}
	return true, nil
}
