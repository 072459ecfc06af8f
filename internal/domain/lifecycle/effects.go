package lifecycle

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"docflow/internal/core/apperror"
	"docflow/internal/core/entity"
	"docflow/internal/core/id"
	"docflow/internal/core/lock"
	"docflow/internal/core/types"
	"docflow/internal/domain"
	"docflow/internal/domain/allocation"
	"docflow/internal/domain/costing"
	"docflow/internal/domain/document"
	"docflow/internal/domain/fulfillment"
	"docflow/pkg/logger"
)

// withSharedLocks takes every shared resource key the document's post or
// unpost touches. The caller already holds the document key, so the
// document cannot change between reading the keys and using them.
func (s *Service) withSharedLocks(ctx context.Context, docID id.ID, fn func(ctx context.Context) error) error {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return err
	}
	keys, err := SharedLockKeys(doc)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fn(ctx)
	}

	release, err := s.locker.Acquire(ctx, keys...)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// SharedLockKeys returns the sorted resource keys of doc: its cost layers,
// the source document and the source lines it fulfills, its own counters,
// its own invoice balance and the invoices it allocates against.
func SharedLockKeys(doc *document.Document) ([]string, error) {
	p, err := doc.Profile()
	if err != nil {
		return nil, err
	}

	var keys []string
	if p.StockEffect != document.StockNone && doc.LocationID != nil {
		for _, l := range doc.Lines {
			if l.IsStock() {
				keys = append(keys, costing.Key{ItemID: *l.ItemID, LocationID: *doc.LocationID}.LockKey())
			}
		}
	}
	if doc.SourceDocumentID != nil {
		keys = append(keys, DocLockKey(*doc.SourceDocumentID))
		keys = append(keys, fulfillment.LockKeys(doc)...)
	}
	if p.Tracked {
		for _, l := range doc.Lines {
			keys = append(keys, fulfillment.LockKey(doc.ID, l.ID))
		}
	}
	if p.Invoice {
		keys = append(keys, allocation.LockKey(doc.ID))
	}
	keys = append(keys, allocation.LockKeys(doc)...)
	return lock.Normalize(keys), nil
}

// applyStock records the cost movements of doc and fills PostedUnitCost.
// Conversions issue their inputs first so that the input cost is known
// before the outputs are received.
func (s *Service) applyStock(ctx context.Context, doc *document.Document, p document.Profile) error {
	if doc.LocationID == nil {
		return apperror.NewInvariantViolation("stock document without location").WithDetail("document_id", doc.ID.String())
	}
	rec := costing.Recorder{ID: doc.ID, Kind: string(doc.Kind), Date: doc.Date}

	switch p.StockEffect {
	case document.StockIn:
		_, err := s.move(ctx, rec, doc, allLines(doc), costing.In, incomingCosts(doc, allLines(doc)))
		return err

	case document.StockOut:
		_, err := s.move(ctx, rec, doc, allLines(doc), costing.Out, nil)
		return err

	case document.StockConversion:
		inputs, outputs := linesOfRole(doc, document.RoleInput), linesOfRole(doc, document.RoleOutput)

		totalIn, err := s.move(ctx, rec, doc, inputs, costing.Out, nil)
		if err != nil {
			return err
		}

		costs := incomingCosts(doc, outputs)
		if doc.DistributeCost {
			qty := make([]types.Quantity, len(outputs))
			for i, idx := range outputs {
				qty[i] = doc.Lines[idx].Quantity
			}
			distributed := costing.DistributeConversionCost(totalIn, qty)
			for i, idx := range outputs {
				// An explicit unit cost overrides the distribution.
				if doc.Lines[idx].UnitCost == nil {
					costs[i] = distributed[i]
				}
			}
		}

		totalOut, err := s.move(ctx, rec, doc, outputs, costing.In, costs)
		if err != nil {
			return err
		}

		if _, warning := costing.ConversionVariance(totalIn, totalOut); warning != "" {
			doc.Warnings = append(doc.Warnings, warning)
			logger.Warn(ctx, "conversion value mismatch", "id", doc.ID, "input", totalIn, "output", totalOut)
		}
		return nil
	}
	return nil
}

// move applies one batch of lines in direction dir and returns its total value.
func (s *Service) move(ctx context.Context, rec costing.Recorder, doc *document.Document, idx []int, dir costing.Direction, costs []types.Money) (types.Money, error) {
	entries := make([]costing.Entry, len(idx))
	for i, li := range idx {
		l := doc.Lines[li]
		entries[i] = costing.Entry{
			LineID:     l.ID,
			ItemID:     *l.ItemID,
			LocationID: *doc.LocationID,
			Direction:  dir,
			Quantity:   l.Quantity,
			UnitCost:   decimal.Zero,
		}
		if costs != nil {
			entries[i].UnitCost = costs[i]
		}
	}

	applied, err := s.costing.Apply(ctx, rec, entries)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for i, li := range idx {
		doc.Lines[li].PostedUnitCost = applied[i]
		total = total.Add(doc.Lines[li].Quantity.Decimal().Mul(applied[i]))
	}
	return total, nil
}

// fulfill adds doc to its source counters under the source lock and closes
// the source once nothing is outstanding.
func (s *Service) fulfill(ctx context.Context, doc *document.Document, p document.Profile) error {
	src, err := s.repo.GetForUpdate(ctx, *doc.SourceDocumentID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return apperror.NewFieldValidation("sourceDocumentId", "unknown source document").WithCause(err)
		}
		return err
	}
	if !p.CanDeriveFrom(src.Kind) {
		return apperror.NewFieldValidation("sourceDocumentId", fmt.Sprintf("%s cannot be derived from %s", doc.Kind, src.Kind))
	}
	if src.Status != entity.StatusPosted {
		return apperror.NewState(string(src.Status), "fulfill").
			WithDetail("source_document_id", src.ID.String()).
			WithDetail("source_number", src.Number)
	}

	if err := s.tracker.Apply(ctx, doc); err != nil {
		return err
	}

	srcProfile, err := src.Profile()
	if err != nil {
		return err
	}
	if !srcProfile.AutoClose {
		return nil
	}
	done, err := s.tracker.FullyFulfilled(ctx, src.ID)
	if err != nil {
		return fmt.Errorf("check source fulfillment: %w", err)
	}
	if !done {
		return nil
	}

	src.Status = entity.StatusClosed
	if err := s.repo.Update(ctx, src); err != nil {
		return fmt.Errorf("close source document: %w", err)
	}
	logger.Info(ctx, "source document closed", "id", src.ID, "kind", src.Kind, "number", src.Number)
	return s.record(ctx, src, domain.EventDocumentClosed, "", statusChange(entity.StatusPosted, entity.StatusClosed))
}

// unfulfill reverts doc from its source counters and reopens a closed source.
func (s *Service) unfulfill(ctx context.Context, doc *document.Document) error {
	if err := s.tracker.Revert(ctx, doc); err != nil {
		return err
	}

	src, err := s.repo.GetForUpdate(ctx, *doc.SourceDocumentID)
	if err != nil {
		return err
	}
	if src.Status != entity.StatusClosed {
		return nil
	}

	src.Status = entity.StatusPosted
	if err := s.repo.Update(ctx, src); err != nil {
		return fmt.Errorf("reopen source document: %w", err)
	}
	logger.Info(ctx, "source document reopened", "id", src.ID, "kind", src.Kind, "number", src.Number)
	return s.record(ctx, src, domain.EventDocumentReopened, "", statusChange(entity.StatusClosed, entity.StatusPosted))
}

func clearPostedCosts(doc *document.Document) {
	for i := range doc.Lines {
		doc.Lines[i].PostedUnitCost = decimal.Zero
	}
}

func allLines(doc *document.Document) []int {
	out := make([]int, len(doc.Lines))
	for i := range doc.Lines {
		out[i] = i
	}
	return out
}

func linesOfRole(doc *document.Document, role document.LineRole) []int {
	var out []int
	for i, l := range doc.Lines {
		if l.Role == role {
			out = append(out, i)
		}
	}
	return out
}

func incomingCosts(doc *document.Document, idx []int) []types.Money {
	out := make([]types.Money, len(idx))
	for i, li := range idx {
		out[i] = doc.Lines[li].IncomingUnitCost()
	}
	return out
}
