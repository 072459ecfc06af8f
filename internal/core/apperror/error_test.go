package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		validation bool
		state      bool
		conflict   bool
		status     int
	}{
		{"validation", NewValidation("bad"), true, false, false, http.StatusBadRequest},
		{"over fulfillment", NewBusinessRule(CodeOverFulfillment, "too much"), true, false, false, http.StatusUnprocessableEntity},
		{"state", NewState("Posted", "post"), false, true, false, http.StatusConflict},
		{"dependency", NewDependencyConflict("billed"), false, false, true, http.StatusConflict},
		{"optimistic", NewConcurrentModification("document", "x"), false, false, true, http.StatusConflict},
		{"busy", NewResourceBusy([]string{"cost:a:b"}), false, false, true, http.StatusConflict},
		{"wrapped", fmt.Errorf("post: %w", NewState("Draft", "unpost")), false, true, false, http.StatusConflict},
		{"plain", errors.New("boom"), false, false, false, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.validation, IsValidation(tt.err))
			assert.Equal(t, tt.state, IsState(tt.err))
			assert.Equal(t, tt.conflict, IsDependencyConflict(tt.err))
			assert.Equal(t, tt.status, GetHTTPStatus(tt.err))
		})
	}
}

func TestCollaboratorFailureKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewCollaboratorFailure("journal", cause)

	assert.True(t, IsCollaboratorFailure(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "journal", err.Details["collaborator"])
	assert.Contains(t, err.Error(), "connection refused")
}
