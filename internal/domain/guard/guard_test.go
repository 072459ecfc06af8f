package guard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/core/apperror"
	"docflow/internal/core/types"
	"docflow/internal/domain/document"
)

func newOrder(t *testing.T, total string) *document.Document {
	t.Helper()
	doc, err := document.New(document.KindPurchaseOrder, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	doc.GrandTotal = types.MustMoney(total)
	doc.Lines = []document.Line{{Quantity: types.NewQuantity(2), UnitPrice: types.MustMoney("50")}}
	return doc
}

func TestSet_Check(t *testing.T) {
	s, err := NewSet()
	require.NoError(t, err)
	require.NoError(t, s.Add(Rule{
		Kind:       document.KindPurchaseOrder,
		Action:     ActionApprove,
		Expression: `doc.grandTotal <= 1000.0 || doc.comment != ""`,
		Message:    "large orders need a comment",
	}))
	assert.Equal(t, 1, s.Len())

	ctx := context.Background()

	small := newOrder(t, "999.99")
	assert.NoError(t, s.Check(ctx, small, ActionApprove))

	large := newOrder(t, "5000")
	err = s.Check(ctx, large, ActionApprove)
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeGuardRejected, appErr.Code)
	assert.Equal(t, "large orders need a comment", appErr.Message)

	// Other actions are unaffected.
	assert.NoError(t, s.Check(ctx, large, ActionPost))

	large.Comment = "approved by board"
	assert.NoError(t, s.Check(ctx, large, ActionApprove))
}

func TestSet_LinesVariable(t *testing.T) {
	s, err := NewSet()
	require.NoError(t, err)
	require.NoError(t, s.Add(Rule{
		Kind:       document.KindPurchaseOrder,
		Action:     ActionPost,
		Expression: `doc.lines.all(l, l.quantity <= 10.0)`,
	}))

	doc := newOrder(t, "100")
	assert.NoError(t, s.Check(context.Background(), doc, ActionPost))

	doc.Lines[0].Quantity = types.NewQuantity(11)
	assert.Error(t, s.Check(context.Background(), doc, ActionPost))
}

func TestSet_AddRejectsBadRules(t *testing.T) {
	s, err := NewSet()
	require.NoError(t, err)

	tests := []struct {
		name string
		rule Rule
	}{
		{"unknown kind", Rule{Kind: "Nope", Action: ActionPost, Expression: "true"}},
		{"unknown action", Rule{Kind: document.KindShipment, Action: "close", Expression: "true"}},
		{"syntax", Rule{Kind: document.KindShipment, Action: ActionPost, Expression: "doc.("}},
		{"not bool", Rule{Kind: document.KindShipment, Action: ActionPost, Expression: "1 + 2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, apperror.IsValidation(s.Add(tt.rule)))
		})
	}
	assert.Equal(t, 0, s.Len())
}

func TestSet_NilIsPermissive(t *testing.T) {
	var s *Set
	assert.NoError(t, s.Check(context.Background(), newOrder(t, "1"), ActionPost))
}
