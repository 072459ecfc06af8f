package lifecycle

import (
	"context"
	"fmt"

	"docflow/internal/core/apperror"
	"docflow/internal/core/entity"
	"docflow/internal/core/id"
	"docflow/internal/core/tx"
	"docflow/internal/domain"
	"docflow/internal/domain/audit"
	"docflow/internal/domain/document"
	"docflow/internal/domain/guard"
	"docflow/internal/domain/masterdata"
	"docflow/pkg/logger"
)

// Approve moves a Draft document of a three-state family to Approved.
// It has no stock or ledger effects.
func (s *Service) Approve(ctx context.Context, docID id.ID) (approved *document.Document, err error) {
	ctx, span := s.startSpan(ctx, "approve", docID)
	defer func() { endSpan(span, err) }()

	var from entity.Status
	err = s.withDocLock(ctx, docID, func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			cur, err := s.repo.GetForUpdate(ctx, docID)
			if err != nil {
				return err
			}
			p, err := cur.Profile()
			if err != nil {
				return err
			}
			if p.Approval == document.TwoState {
				return apperror.NewState(string(cur.Status), "approve").
					WithDetail("kind", string(cur.Kind)).
					WithDetail("reason", "kind is posted without approval")
			}
			if cur.Status != entity.StatusDraft {
				return apperror.NewState(string(cur.Status), "approve")
			}

			cur.Recalculate(s.tax)
			if err := cur.Validate(ctx); err != nil {
				return err
			}
			if err := masterdata.CheckReferences(ctx, s.masterData, cur); err != nil {
				return err
			}
			if err := s.reconciler.CheckSum(cur); err != nil {
				return err
			}
			if err := s.reconciler.CheckTargets(ctx, cur); err != nil {
				return err
			}
			if err := s.guards.Check(ctx, cur, guard.ActionApprove); err != nil {
				return err
			}
			if err := s.hooks.Run(ctx, domain.BeforeApprove, cur); err != nil {
				return err
			}

			from = cur.Status
			cur.Status = entity.StatusApproved
			if err := s.repo.Update(ctx, cur); err != nil {
				return fmt.Errorf("update document: %w", err)
			}
			approved = cur
			return s.record(ctx, cur, domain.EventDocumentApproved, audit.ActionApprove, statusChange(from, cur.Status))
		})
	})
	if err != nil {
		return nil, failed(ctx, "approve", docID, err)
	}

	s.runAfter(ctx, domain.AfterApprove, approved)
	logTransition(ctx, "document approved", approved, from)
	return approved, nil
}

// Unapprove returns an Approved document to Draft. It is refused while a
// posted document derived from this one exists.
func (s *Service) Unapprove(ctx context.Context, docID id.ID) (unapproved *document.Document, err error) {
	ctx, span := s.startSpan(ctx, "unapprove", docID)
	defer func() { endSpan(span, err) }()

	var from entity.Status
	err = s.withDocLock(ctx, docID, func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			cur, err := s.repo.GetForUpdate(ctx, docID)
			if err != nil {
				return err
			}
			p, err := cur.Profile()
			if err != nil {
				return err
			}
			if p.Approval == document.TwoState || cur.Status != entity.StatusApproved {
				return apperror.NewState(string(cur.Status), "unapprove").WithDetail("kind", string(cur.Kind))
			}

			n, err := s.repo.CountDerived(ctx, cur.ID, []entity.Status{entity.StatusPosted, entity.StatusClosed})
			if err != nil {
				return fmt.Errorf("count derived documents: %w", err)
			}
			if n > 0 {
				return apperror.NewDependencyConflict("a posted document was derived from this document").
					WithDetail("document_id", cur.ID.String()).
					WithDetail("derived_posted", n)
			}
			if err := s.guards.Check(ctx, cur, guard.ActionUnapprove); err != nil {
				return err
			}
			if err := s.hooks.Run(ctx, domain.BeforeUnapprove, cur); err != nil {
				return err
			}

			from = cur.Status
			cur.Status = entity.StatusDraft
			if err := s.repo.Update(ctx, cur); err != nil {
				return fmt.Errorf("update document: %w", err)
			}
			unapproved = cur
			return s.record(ctx, cur, domain.EventDocumentUnapproved, audit.ActionUnapprove, statusChange(from, cur.Status))
		})
	})
	if err != nil {
		return nil, failed(ctx, "unapprove", docID, err)
	}

	s.runAfter(ctx, domain.AfterUnapprove, unapproved)
	logTransition(ctx, "document unapproved", unapproved, from)
	return unapproved, nil
}

// Post applies the stock, fulfillment, balance and journal effects of a
// document and marks it Posted. Either every effect is applied or none.
func (s *Service) Post(ctx context.Context, docID id.ID) (posted *document.Document, err error) {
	ctx, span := s.startSpan(ctx, "post", docID)
	defer func() { endSpan(span, err) }()

	var from entity.Status
	err = s.withDocLock(ctx, docID, func(ctx context.Context) error {
		return s.withSharedLocks(ctx, docID, func(ctx context.Context) error {
			// Set when the transaction manager cannot run the journal compensation itself.
			var orphanRef string

			err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
				cur, err := s.repo.GetForUpdate(ctx, docID)
				if err != nil {
					return err
				}
				from = cur.Status
				if err := s.post(ctx, cur, &orphanRef); err != nil {
					return err
				}
				posted = cur
				return nil
			})
			if err != nil && orphanRef != "" {
				s.retractJournal(context.WithoutCancel(ctx), orphanRef)
			}
			return err
		})
	})
	if err != nil {
		return nil, failed(ctx, "post", docID, err)
	}

	s.runAfter(ctx, domain.AfterPost, posted)
	logTransition(ctx, "document posted", posted, from, "journal_ref", posted.JournalRef, "warnings", len(posted.Warnings))
	return posted, nil
}

func (s *Service) post(ctx context.Context, cur *document.Document, orphanRef *string) error {
	p, err := cur.Profile()
	if err != nil {
		return err
	}
	switch {
	case cur.IsPosted():
		return apperror.NewState(string(cur.Status), "post")
	case p.Approval == document.ThreeState && cur.Status != entity.StatusApproved:
		return apperror.NewState(string(cur.Status), "post").
			WithDetail("required_status", string(entity.StatusApproved))
	case p.Approval == document.TwoState && cur.Status != entity.StatusDraft:
		return apperror.NewState(string(cur.Status), "post")
	}

	if err := s.policy.CanPost(ctx, cur.Date); err != nil {
		return err
	}
	cur.Recalculate(s.tax)
	if err := cur.Validate(ctx); err != nil {
		return err
	}
	if err := masterdata.CheckReferences(ctx, s.masterData, cur); err != nil {
		return err
	}
	if err := s.reconciler.CheckSum(cur); err != nil {
		return err
	}
	if err := s.guards.Check(ctx, cur, guard.ActionPost); err != nil {
		return err
	}
	if err := s.hooks.Run(ctx, domain.BeforePost, cur); err != nil {
		return err
	}

	from := cur.Status
	cur.Warnings = nil

	if p.StockEffect != document.StockNone {
		if err := s.applyStock(ctx, cur, p); err != nil {
			return err
		}
	}
	if cur.SourceDocumentID != nil {
		if err := s.fulfill(ctx, cur, p); err != nil {
			return err
		}
	}
	if p.Tracked {
		if err := s.tracker.Register(ctx, cur); err != nil {
			return err
		}
	}
	if p.Invoice {
		if err := s.reconciler.OpenInvoice(ctx, cur); err != nil {
			return fmt.Errorf("open invoice balance: %w", err)
		}
	}
	if err := s.reconciler.Apply(ctx, cur); err != nil {
		return err
	}

	cur.Status = entity.StatusPosted

	// The journal is external to the transaction: post it last and retract
	// it if anything after this point fails.
	ref, err := s.journal.PostJournal(ctx, cur)
	if err != nil {
		return journalErr(err)
	}
	cur.JournalRef = ref
	if !tx.OnRollback(ctx, func(ctx context.Context) { s.retractJournal(ctx, ref) }) {
		*orphanRef = ref
	}

	if err := s.repo.Update(ctx, cur); err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	changes := statusChange(from, cur.Status)
	changes["journalRef"] = ref
	return s.record(ctx, cur, domain.EventDocumentPosted, audit.ActionPost, changes)
}

// Unpost reverses every effect of Post. Cost layers are recomputed from the
// remaining ledger. Refused while a downstream document still consumes
// this one's fulfillment or invoice balance.
func (s *Service) Unpost(ctx context.Context, docID id.ID) (unposted *document.Document, err error) {
	ctx, span := s.startSpan(ctx, "unpost", docID)
	defer func() { endSpan(span, err) }()

	var from entity.Status
	err = s.withDocLock(ctx, docID, func(ctx context.Context) error {
		return s.withSharedLocks(ctx, docID, func(ctx context.Context) error {
			return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
				cur, err := s.repo.GetForUpdate(ctx, docID)
				if err != nil {
					return err
				}
				from = cur.Status
				if err := s.unpost(ctx, cur); err != nil {
					return err
				}
				unposted = cur
				return nil
			})
		})
	})
	if err != nil {
		return nil, failed(ctx, "unpost", docID, err)
	}

	s.runAfter(ctx, domain.AfterUnpost, unposted)
	logTransition(ctx, "document unposted", unposted, from)
	return unposted, nil
}

func (s *Service) unpost(ctx context.Context, cur *document.Document) error {
	p, err := cur.Profile()
	if err != nil {
		return err
	}
	if !cur.IsPosted() {
		return apperror.NewState(string(cur.Status), "unpost")
	}
	if err := s.policy.CanUnpost(ctx, cur.Date); err != nil {
		return err
	}
	if err := s.guards.Check(ctx, cur, guard.ActionUnpost); err != nil {
		return err
	}
	if err := s.hooks.Run(ctx, domain.BeforeUnpost, cur); err != nil {
		return err
	}

	from := cur.Status

	if p.Tracked {
		if err := s.tracker.Unregister(ctx, cur); err != nil {
			return err
		}
	}
	if p.Invoice {
		if err := s.reconciler.CloseInvoice(ctx, cur); err != nil {
			return err
		}
	}
	if err := s.reconciler.Revert(ctx, cur); err != nil {
		return err
	}
	if cur.SourceDocumentID != nil {
		if err := s.unfulfill(ctx, cur); err != nil {
			return err
		}
	}
	if p.StockEffect != document.StockNone {
		if err := s.costing.Retract(ctx, cur.ID); err != nil {
			return err
		}
		clearPostedCosts(cur)
	}

	ref := cur.JournalRef
	cur.Status = p.UnpostTarget()
	cur.JournalRef = ""
	if err := s.repo.Update(ctx, cur); err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	changes := statusChange(from, cur.Status)
	changes["journalRef"] = ref
	if err := s.record(ctx, cur, domain.EventDocumentUnposted, audit.ActionUnpost, changes); err != nil {
		return err
	}

	// Last step: a retraction failure still rolls everything back.
	if ref != "" {
		if err := s.journal.RetractJournal(ctx, ref); err != nil {
			return journalErr(err).WithDetail("journal_ref", ref)
		}
	}
	return nil
}

func (s *Service) retractJournal(ctx context.Context, ref string) {
	if err := s.journal.RetractJournal(ctx, ref); err != nil {
		logger.Error(ctx, "journal compensation failed", "journal_ref", ref, "error", err)
		return
	}
	logger.Warn(ctx, "journal entry retracted after rollback", "journal_ref", ref)
}

func journalErr(err error) *apperror.AppError {
	if appErr, ok := apperror.AsAppError(err); ok && appErr.Code == apperror.CodeInvariantViolation {
		return appErr
	}
	return apperror.NewCollaboratorFailure("journal", err)
}

func statusChange(from, to entity.Status) map[string]any {
	return map[string]any{"status": []string{string(from), string(to)}}
}

func logTransition(ctx context.Context, msg string, doc *document.Document, from entity.Status, kv ...any) {
	args := append([]any{
		"id", doc.ID,
		"kind", doc.Kind,
		"number", doc.Number,
		"from", from,
		"to", doc.Status,
	}, kv...)
	logger.Info(ctx, msg, args...)
}
