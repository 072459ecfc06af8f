// Package guard evaluates configurable CEL conditions that a document must
// satisfy before a lifecycle transition.
//
// Expressions see a single variable `doc`:
//
//	doc.kind, doc.status, doc.number, doc.comment  string
//	doc.subtotal, doc.taxAmount, doc.grandTotal    double
//	doc.hasPartner, doc.hasSource                  bool
//	doc.lines                                      list of {quantity, unitPrice, discountPct, lineTotal}
//
// Example: `doc.grandTotal <= 100000.0 || doc.comment != ""`.
package guard

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"docflow/internal/core/apperror"
	"docflow/internal/domain/document"
)

// Action is the transition a rule applies to.
type Action string

const (
	ActionApprove   Action = "approve"
	ActionUnapprove Action = "unapprove"
	ActionPost      Action = "post"
	ActionUnpost    Action = "unpost"
)

// Rule is one configured guard.
type Rule struct {
	Kind       document.Kind `mapstructure:"kind" json:"kind"`
	Action     Action        `mapstructure:"action" json:"action"`
	Expression string        `mapstructure:"expression" json:"expression"`
	Message    string        `mapstructure:"message" json:"message"`
}

type compiled struct {
	rule    Rule
	program cel.Program
}

type ruleKey struct {
	kind   document.Kind
	action Action
}

// Set holds compiled rules keyed by kind and action. Safe for concurrent use.
type Set struct {
	env *cel.Env

	mu    sync.RWMutex
	rules map[ruleKey][]compiled
}

// NewSet creates an empty rule set.
func NewSet() (*Set, error) {
	env, err := cel.NewEnv(
		cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	return &Set{env: env, rules: make(map[ruleKey][]compiled)}, nil
}

// Add compiles and registers rule. The expression must evaluate to bool.
func (s *Set) Add(rule Rule) error {
	if _, err := document.ProfileOf(rule.Kind); err != nil {
		return err
	}
	switch rule.Action {
	case ActionApprove, ActionUnapprove, ActionPost, ActionUnpost:
	default:
		return apperror.NewFieldValidation("action", fmt.Sprintf("unknown guard action %q", rule.Action))
	}

	ast, iss := s.env.Compile(rule.Expression)
	if iss != nil && iss.Err() != nil {
		return apperror.NewFieldValidation("expression", iss.Err().Error()).
			WithDetail("expression", rule.Expression)
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return apperror.NewFieldValidation("expression", "guard must evaluate to bool").
			WithDetail("expression", rule.Expression)
	}
	prg, err := s.env.Program(ast)
	if err != nil {
		return fmt.Errorf("build cel program: %w", err)
	}

	if rule.Message == "" {
		rule.Message = "transition rejected by guard: " + rule.Expression
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := ruleKey{kind: rule.Kind, action: rule.Action}
	s.rules[k] = append(s.rules[k], compiled{rule: rule, program: prg})
	return nil
}

// Len returns the number of registered rules.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.rules {
		n += len(r)
	}
	return n
}

// Check evaluates every rule of doc.Kind for action. The first rule that
// yields false rejects the transition with GUARD_REJECTED.
func (s *Set) Check(ctx context.Context, doc *document.Document, action Action) error {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	rules := s.rules[ruleKey{kind: doc.Kind, action: action}]
	s.mu.RUnlock()
	if len(rules) == 0 {
		return nil
	}

	vars := map[string]any{"doc": Variables(doc)}
	for _, c := range rules {
		out, _, err := c.program.ContextEval(ctx, vars)
		if err != nil {
			return apperror.NewInvariantViolation("guard evaluation failed").
				WithDetail("expression", c.rule.Expression).
				WithCause(err)
		}
		ok, isBool := out.Value().(bool)
		if !isBool || !ok {
			return apperror.NewBusinessRule(apperror.CodeGuardRejected, c.rule.Message).
				WithDetail("kind", string(doc.Kind)).
				WithDetail("action", string(c.rule.Action)).
				WithDetail("expression", c.rule.Expression)
		}
	}
	return nil
}

// Variables projects doc into the CEL activation.
func Variables(doc *document.Document) map[string]any {
	lines := make([]any, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		lines = append(lines, map[string]any{
			"quantity":    l.Quantity.Float64(),
			"unitPrice":   l.UnitPrice.InexactFloat64(),
			"discountPct": l.DiscountPct.InexactFloat64(),
			"lineTotal":   l.LineTotal.InexactFloat64(),
		})
	}
	return map[string]any{
		"kind":       string(doc.Kind),
		"status":     string(doc.Status),
		"number":     doc.Number,
		"comment":    doc.Comment,
		"subtotal":   doc.Subtotal.InexactFloat64(),
		"taxAmount":  doc.TaxAmount.InexactFloat64(),
		"grandTotal": doc.GrandTotal.InexactFloat64(),
		"hasPartner": doc.PartnerID != nil,
		"hasSource":  doc.SourceDocumentID != nil,
		"lines":      lines,
	}
}
