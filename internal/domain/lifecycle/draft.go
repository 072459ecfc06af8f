package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"docflow/internal/core/apperror"
	"docflow/internal/core/entity"
	"docflow/internal/core/id"
	"docflow/internal/domain"
	"docflow/internal/domain/audit"
	"docflow/internal/domain/document"
	"docflow/internal/domain/masterdata"
	"docflow/pkg/logger"
)

// Create validates doc, assigns its number and saves it as Draft.
// Status, number, version and posting results supplied by the caller are ignored.
func (s *Service) Create(ctx context.Context, doc *document.Document) (created *document.Document, err error) {
	ctx, span := s.startSpan(ctx, "create", doc.ID)
	defer func() { endSpan(span, err) }()

	p, err := document.ProfileOf(doc.Kind)
	if err != nil {
		return nil, err
	}
	resetDraft(doc, p)

	if err := s.prepare(ctx, doc); err != nil {
		return nil, failed(ctx, "create", doc.ID, err)
	}
	if err := s.checkSource(ctx, doc, p, true); err != nil {
		return nil, failed(ctx, "create", doc.ID, err)
	}
	if err := s.hooks.Run(ctx, domain.BeforeCreate, doc); err != nil {
		return nil, err
	}

	// Numbers are reserved before the transaction; a failed save leaves a gap.
	number, err := s.numerator.GetNextNumber(ctx, s.numberCfg(doc.TransactionTypeCode), s.numberOpts, doc.Date)
	if err != nil {
		return nil, failed(ctx, "create", doc.ID, apperror.NewCollaboratorFailure("numbering", err).
			WithDetail("transaction_type_code", doc.TransactionTypeCode))
	}
	doc.Number = number

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		return s.record(ctx, doc, domain.EventDocumentCreated, audit.ActionCreate, map[string]any{
			"number":     doc.Number,
			"grandTotal": doc.GrandTotal.String(),
			"lines":      len(doc.Lines),
		})
	})
	if err != nil {
		return nil, failed(ctx, "create", doc.ID, err)
	}

	s.runAfter(ctx, domain.AfterCreate, doc)
	logger.Info(ctx, "document created", "id", doc.ID, "kind", doc.Kind, "number", doc.Number)
	return doc, nil
}

// Update replaces the editable fields of a Draft document. A non-zero
// doc.Version must match the stored version.
func (s *Service) Update(ctx context.Context, doc *document.Document) (updated *document.Document, err error) {
	ctx, span := s.startSpan(ctx, "update", doc.ID)
	defer func() { endSpan(span, err) }()

	err = s.withDocLock(ctx, doc.ID, func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			cur, err := s.repo.GetForUpdate(ctx, doc.ID)
			if err != nil {
				return err
			}
			if err := cur.CanModify(); err != nil {
				return err
			}
			if doc.Version != 0 && doc.Version != cur.Version {
				return apperror.NewConcurrentModification("document", doc.ID.String()).
					WithDetail("expected_version", doc.Version).
					WithDetail("actual_version", cur.Version)
			}
			if err := s.policy.CanModify(ctx, cur.Date); err != nil {
				return err
			}

			p, err := cur.Profile()
			if err != nil {
				return err
			}
			oldTotal := cur.GrandTotal
			cur.ApplyChanges(doc)
			if err := s.prepare(ctx, cur); err != nil {
				return err
			}
			if err := s.checkSource(ctx, cur, p, false); err != nil {
				return err
			}
			if err := s.hooks.Run(ctx, domain.BeforeUpdate, cur); err != nil {
				return err
			}

			if err := s.repo.Update(ctx, cur); err != nil {
				return fmt.Errorf("update document: %w", err)
			}
			updated = cur
			return s.record(ctx, cur, domain.EventDocumentUpdated, audit.ActionUpdate, map[string]any{
				"grandTotal": []string{oldTotal.String(), cur.GrandTotal.String()},
				"lines":      len(cur.Lines),
			})
		})
	})
	if err != nil {
		return nil, failed(ctx, "update", doc.ID, err)
	}

	s.runAfter(ctx, domain.AfterUpdate, updated)
	logger.Info(ctx, "document updated", "id", updated.ID, "kind", updated.Kind, "number", updated.Number, "version", updated.Version)
	return updated, nil
}

// Delete physically removes a Draft document. Documents that ever left
// Draft are kept.
func (s *Service) Delete(ctx context.Context, docID id.ID) (err error) {
	ctx, span := s.startSpan(ctx, "delete", docID)
	defer func() { endSpan(span, err) }()

	var deleted *document.Document
	err = s.withDocLock(ctx, docID, func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			cur, err := s.repo.GetForUpdate(ctx, docID)
			if err != nil {
				return err
			}
			if cur.Status != entity.StatusDraft {
				return apperror.NewState(string(cur.Status), "delete").WithDetail("document_id", docID.String())
			}
			if err := s.policy.CanModify(ctx, cur.Date); err != nil {
				return err
			}
			if err := s.hooks.Run(ctx, domain.BeforeDelete, cur); err != nil {
				return err
			}
			if err := s.repo.Delete(ctx, docID); err != nil {
				return fmt.Errorf("delete document: %w", err)
			}
			deleted = cur
			return s.record(ctx, cur, domain.EventDocumentDeleted, audit.ActionDelete, map[string]any{"number": cur.Number})
		})
	})
	if err != nil {
		return failed(ctx, "delete", docID, err)
	}

	s.runAfter(ctx, domain.AfterDelete, deleted)
	logger.Info(ctx, "document deleted", "id", docID, "kind", deleted.Kind, "number", deleted.Number)
	return nil
}

// DeriveOptions tunes a derived child. Zero values inherit from the source.
type DeriveOptions struct {
	// Date defaults to today.
	Date time.Time
	// LocationID overrides the source location. Orders need not carry one,
	// so a receiving or shipment derived from such an order names it here.
	LocationID *id.ID
}

// Derive creates a Draft of kind from the outstanding lines of a posted source.
func (s *Service) Derive(ctx context.Context, sourceID id.ID, kind document.Kind, opts DeriveOptions) (*document.Document, error) {
	p, err := document.ProfileOf(kind)
	if err != nil {
		return nil, err
	}
	src, err := s.repo.GetByID(ctx, sourceID)
	if err != nil {
		return nil, normalizeErr(err)
	}
	if !p.CanDeriveFrom(src.Kind) {
		return nil, apperror.NewFieldValidation("kind", fmt.Sprintf("%s cannot be derived from %s", kind, src.Kind))
	}
	if src.Status != entity.StatusPosted {
		return nil, apperror.NewState(string(src.Status), "derive").WithDetail("source_document_id", sourceID.String())
	}
	date := opts.Date
	if date.IsZero() {
		date = time.Now().UTC().Truncate(24 * time.Hour)
	}

	child, err := s.tracker.Derive(ctx, src, kind, date)
	if err != nil {
		return nil, err
	}
	if opts.LocationID != nil {
		child.LocationID = opts.LocationID
	}
	return s.Create(ctx, child)
}

// resetDraft brings a caller-supplied document into its initial Draft shape.
func resetDraft(doc *document.Document, p document.Profile) {
	base := entity.NewBaseDocument()
	if !id.IsNil(doc.ID) {
		base.ID = doc.ID
	}
	doc.BaseDocument = base
	doc.Status = entity.StatusDraft
	doc.Number = ""
	doc.JournalRef = ""
	doc.Warnings = nil
	if doc.TransactionTypeCode == "" {
		doc.TransactionTypeCode = p.DefaultTransactionType
	}
	if doc.TaxMode == "" {
		doc.TaxMode = p.DefaultTaxMode
	}
	for i := range doc.Lines {
		doc.Lines[i].PostedUnitCost = decimal.Zero
	}
}

// prepare recomputes derived fields and runs the checks shared by create and update.
func (s *Service) prepare(ctx context.Context, doc *document.Document) error {
	doc.Recalculate(s.tax)
	if err := doc.Validate(ctx); err != nil {
		return err
	}
	if err := s.policy.CanModify(ctx, doc.Date); err != nil {
		return err
	}
	if err := masterdata.CheckReferences(ctx, s.masterData, doc); err != nil {
		return err
	}
	return s.reconciler.CheckTargets(ctx, doc)
}

// checkSource verifies the source link and that every derived line points
// at a line of the source.
func (s *Service) checkSource(ctx context.Context, doc *document.Document, p document.Profile, requirePosted bool) error {
	if doc.SourceDocumentID == nil {
		for _, l := range doc.Lines {
			if l.SourceLineID != nil {
				return apperror.NewFieldValidation("lines", "source line without source document").WithDetail("lineNo", l.LineNo)
			}
		}
		return nil
	}

	src, err := s.repo.GetByID(ctx, *doc.SourceDocumentID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return apperror.NewFieldValidation("sourceDocumentId", "unknown source document").WithCause(err)
		}
		return err
	}
	if !p.CanDeriveFrom(src.Kind) {
		return apperror.NewFieldValidation("sourceDocumentId", fmt.Sprintf("%s cannot be derived from %s", doc.Kind, src.Kind))
	}
	if requirePosted && src.Status != entity.StatusPosted {
		return apperror.NewState(string(src.Status), "derive").WithDetail("source_document_id", src.ID.String())
	}

	srcLines := make(map[id.ID]struct{}, len(src.Lines))
	for _, l := range src.Lines {
		srcLines[l.ID] = struct{}{}
	}
	for _, l := range doc.Lines {
		if l.SourceLineID == nil {
			continue
		}
		if _, ok := srcLines[*l.SourceLineID]; !ok {
			return apperror.NewFieldValidation("lines", "source line does not belong to the source document").
				WithDetail("lineNo", l.LineNo).
				WithDetail("source_line_id", l.SourceLineID.String())
		}
	}
	return nil
}
