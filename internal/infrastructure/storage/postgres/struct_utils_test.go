package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"docflow/internal/core/id"
	"docflow/internal/domain/document"
)

func TestExtractDBColumns_Document(t *testing.T) {
	cols := ExtractDBColumns[document.Document]()

	for _, expected := range []string{
		"id", "version", "created_at", "updated_at",
		"transaction_type_code", "number", "date", "status",
		"kind", "partner_id", "source_document_id", "tax_mode", "grand_total", "journal_ref",
	} {
		assert.Contains(t, cols, expected)
	}
	// Table parts live in their own tables.
	assert.NotContains(t, cols, "lines")
	assert.NotContains(t, cols, "-")
}

func TestStructToMap_Document(t *testing.T) {
	doc, err := document.New(document.KindSalesOrder, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
	partner := id.New()
	doc.PartnerID = &partner
	doc.Number = "SO-2026-00001"
	doc.Version = 5

	m := StructToMap(doc)

	assert.Equal(t, doc.ID, m["id"])
	assert.Equal(t, 5, m["version"])
	assert.Equal(t, "SO", m["transaction_type_code"])
	assert.Equal(t, "SO-2026-00001", m["number"])
	assert.Equal(t, document.KindSalesOrder, m["kind"])
	assert.Equal(t, &partner, m["partner_id"])
	_, hasLines := m["lines"]
	assert.False(t, hasLines)
}
