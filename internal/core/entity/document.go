package entity

import (
	"context"
	"time"

	"docflow/internal/core/apperror"
)

// Status is the lifecycle state of a document.
type Status string

const (
	StatusDraft    Status = "Draft"
	StatusApproved Status = "Approved"
	StatusPosted   Status = "Posted"
	StatusClosed   Status = "Closed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusApproved, StatusPosted, StatusClosed:
		return true
	}
	return false
}

// Document is the base type for business transactions.
// Examples: PurchaseOrder, Shipment, ARInvoice, ItemConversion.
type Document struct {
	BaseDocument

	// TransactionTypeCode keys the numbering sequence. Stored explicitly,
	// never derived from Number.
	TransactionTypeCode string `db:"transaction_type_code" json:"transactionTypeCode"`

	// Number is assigned once by the numbering service and never changes.
	Number string `db:"number" json:"number"`

	// Date is the business date of the document
	Date time.Time `db:"date" json:"date"`

	Status Status `db:"status" json:"status"`

	// Comment is an optional user comment
	Comment string `db:"comment" json:"comment,omitempty"`
}

// NewDocument creates a new Draft document with generated ID.
func NewDocument(transactionTypeCode string, date time.Time) Document {
	return Document{
		BaseDocument:        NewBaseDocument(),
		TransactionTypeCode: transactionTypeCode,
		Date:                date,
		Status:              StatusDraft,
	}
}

// Validate implements Validatable interface.
func (d *Document) Validate(ctx context.Context) error {
	if d.TransactionTypeCode == "" {
		return apperror.NewFieldValidation("transactionTypeCode", "transaction type is required")
	}

	if d.Date.IsZero() {
		return apperror.NewFieldValidation("date", "date is required")
	}

	if !d.Status.Valid() {
		return apperror.NewFieldValidation("status", "unknown status").
			WithDetail("status", string(d.Status))
	}

	return nil
}

// CanModify rejects header and line mutations outside Draft.
func (d *Document) CanModify() error {
	if d.Status != StatusDraft {
		return apperror.NewState(string(d.Status), "modify").
			WithDetail("document_id", d.ID.String())
	}
	return nil
}

// IsPosted reports whether the document carries durable side effects.
func (d *Document) IsPosted() bool {
	return d.Status == StatusPosted || d.Status == StatusClosed
}

// IsBackdated checks if document date is in the past.
func (d *Document) IsBackdated() bool {
	return d.Date.Before(time.Now().UTC().Truncate(24 * time.Hour))
}
