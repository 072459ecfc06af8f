package dto

import (
	"github.com/shopspring/decimal"

	"docflow/internal/core/id"
	"docflow/internal/core/types"
	"docflow/internal/domain/document"
	"docflow/internal/domain/tax"
)

// --- Request DTOs ---

// DocumentLineRequest represents a line in create/update requests.
type DocumentLineRequest struct {
	LineID       *id.ID           `json:"lineId,omitempty"`
	ItemID       *id.ID           `json:"itemId,omitempty"`
	Role         string           `json:"role,omitempty" binding:"omitempty,oneof=normal input output"`
	Description  string           `json:"description,omitempty"`
	Quantity     types.Quantity   `json:"quantity" binding:"required"`
	UnitPrice    decimal.Decimal  `json:"unitPrice"`
	UnitCost     *decimal.Decimal `json:"unitCost,omitempty"`
	DiscountPct  decimal.Decimal  `json:"discountPct"`
	SourceLineID *id.ID           `json:"sourceLineId,omitempty"`
}

// AllocationRequest assigns part of an adjustment to an invoice.
type AllocationRequest struct {
	TargetInvoiceID id.ID           `json:"targetInvoiceId" binding:"required"`
	AllocatedAmount decimal.Decimal `json:"allocatedAmount"`
}

// DocumentFields are the editable fields shared by create and update.
type DocumentFields struct {
	Date              string                `json:"date" binding:"required"`
	PartnerID         *id.ID                `json:"partnerId,omitempty"`
	LocationID        *id.ID                `json:"locationId,omitempty"`
	CounterAccountID  *id.ID                `json:"counterAccountId,omitempty"`
	TaxMode           string                `json:"taxMode,omitempty"`
	AllocateToInvoice bool                  `json:"allocateToInvoice,omitempty"`
	DistributeCost    bool                  `json:"distributeCost,omitempty"`
	Comment           string                `json:"comment,omitempty"`
	Lines             []DocumentLineRequest `json:"lines" binding:"dive"`
	Allocations       []AllocationRequest   `json:"allocations,omitempty" binding:"dive"`
}

// CreateDocumentRequest represents a request to create a Draft document.
type CreateDocumentRequest struct {
	Kind                string `json:"kind" binding:"required"`
	TransactionTypeCode string `json:"transactionTypeCode,omitempty"`
	SourceDocumentID    *id.ID `json:"sourceDocumentId,omitempty"`
	DocumentFields
}

// ToEntity converts the request to a Draft document.
func (r *CreateDocumentRequest) ToEntity() (*document.Document, error) {
	date, err := optionalDate("date", r.Date)
	if err != nil {
		return nil, err
	}
	doc, err := document.New(document.Kind(r.Kind), *date)
	if err != nil {
		return nil, err
	}
	if r.TransactionTypeCode != "" {
		doc.TransactionTypeCode = r.TransactionTypeCode
	}
	doc.SourceDocumentID = r.SourceDocumentID
	if err := r.DocumentFields.apply(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateDocumentRequest replaces the editable fields of a Draft document.
// Version, when non-zero, must match the stored version.
type UpdateDocumentRequest struct {
	Version int `json:"version"`
	DocumentFields
}

// ToEntity converts the request to a change set for docID.
func (r *UpdateDocumentRequest) ToEntity(docID id.ID) (*document.Document, error) {
	doc := &document.Document{}
	doc.ID = docID
	doc.Version = r.Version
	if err := r.DocumentFields.apply(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (f *DocumentFields) apply(doc *document.Document) error {
	date, err := optionalDate("date", f.Date)
	if err != nil {
		return err
	}
	doc.Date = *date
	doc.PartnerID = f.PartnerID
	doc.LocationID = f.LocationID
	doc.CounterAccountID = f.CounterAccountID
	doc.AllocateToInvoice = f.AllocateToInvoice
	doc.DistributeCost = f.DistributeCost
	doc.Comment = f.Comment

	if doc.TaxMode, err = tax.ParseMode(f.TaxMode, doc.TaxMode); err != nil {
		return err
	}

	doc.Lines = make([]document.Line, 0, len(f.Lines))
	for _, l := range f.Lines {
		line := document.Line{
			ItemID:       l.ItemID,
			Role:         document.LineRole(l.Role),
			Description:  l.Description,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
			UnitCost:     l.UnitCost,
			DiscountPct:  l.DiscountPct,
			SourceLineID: l.SourceLineID,
		}
		if l.LineID != nil {
			line.ID = *l.LineID
		}
		doc.Lines = append(doc.Lines, line)
	}

	doc.Allocations = make([]document.Allocation, 0, len(f.Allocations))
	for _, a := range f.Allocations {
		doc.Allocations = append(doc.Allocations, document.Allocation{
			TargetInvoiceID: a.TargetInvoiceID,
			AllocatedAmount: a.AllocatedAmount,
		})
	}
	return nil
}

// DeriveRequest creates a child document from a posted source.
type DeriveRequest struct {
	Kind       string `json:"kind" binding:"required"`
	Date       string `json:"date,omitempty"`
	LocationID *id.ID `json:"locationId,omitempty"`
}
