package masterdata

import (
	"context"
	"fmt"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/document"
)

// CheckReferences resolves every reference of doc through p.
// Unknown references become validation errors naming the field; any other
// provider failure is a collaborator failure.
func CheckReferences(ctx context.Context, p Provider, doc *document.Document) error {
	prof, err := doc.Profile()
	if err != nil {
		return err
	}

	if _, err := p.TransactionType(ctx, doc.TransactionTypeCode); err != nil {
		return lookupErr("transactionTypeCode", err)
	}

	if doc.PartnerID != nil {
		partner, err := p.Partner(ctx, *doc.PartnerID)
		if err != nil {
			return lookupErr("partnerId", err)
		}
		role := RoleCustomer
		if prof.Party == document.PartySupplier {
			role = RoleSupplier
		}
		if !partner.Acts(role) {
			return apperror.NewFieldValidation("partnerId", fmt.Sprintf("partner %s is not a %s", partner.Code, role))
		}
	}

	if doc.LocationID != nil {
		if _, err := p.Location(ctx, *doc.LocationID); err != nil {
			return lookupErr("locationId", err)
		}
	}

	if doc.CounterAccountID != nil {
		if _, err := p.Account(ctx, *doc.CounterAccountID); err != nil {
			return lookupErr("counterAccountId", err)
		}
	}

	checked := make(map[id.ID]struct{})
	for _, l := range doc.Lines {
		if !l.IsStock() {
			continue
		}
		if _, ok := checked[*l.ItemID]; ok {
			continue
		}
		item, err := p.Item(ctx, *l.ItemID)
		if err != nil {
			return lookupErr("lines", err).WithDetail("lineNo", l.LineNo)
		}
		if prof.StockEffect != document.StockNone && !item.Stocked {
			return apperror.NewFieldValidation("lines", fmt.Sprintf("item %s is not stocked", item.Code)).
				WithDetail("lineNo", l.LineNo)
		}
		checked[*l.ItemID] = struct{}{}
	}
	return nil
}

func lookupErr(field string, err error) *apperror.AppError {
	if apperror.IsNotFound(err) {
		return apperror.NewFieldValidation(field, "unknown reference").WithCause(err)
	}
	return apperror.NewCollaboratorFailure("master data", err).WithDetail("field", field)
}
