// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"strings"
	"time"

	"docflow/internal/core/apperror"
	"docflow/internal/core/entity"
	"docflow/internal/core/id"
	"docflow/internal/domain"
)

// IDResponse returns a created entity id.
type IDResponse struct {
	ID string `json:"id"`
}

// SuccessResponse for simple acknowledgements.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse mirrors the body written by the error middleware.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ListResponse wraps list results with pagination.
type ListResponse struct {
	Items      any   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// DocumentListQuery holds the query parameters of GET /documents.
type DocumentListQuery struct {
	Kinds            []string `form:"kind"`
	Statuses         []string `form:"status"`
	PartnerID        string   `form:"partnerId"`
	SourceDocumentID string   `form:"sourceDocumentId"`
	DateFrom         string   `form:"dateFrom"`
	DateTo           string   `form:"dateTo"`
	Search           string   `form:"search"`
	OrderBy          string   `form:"orderBy"`
	Limit            int      `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset           int      `form:"offset" binding:"omitempty,min=0"`
}

// ToFilter converts query parameters to a domain filter.
func (q *DocumentListQuery) ToFilter() (domain.ListFilter, error) {
	f := domain.DefaultListFilter()
	f.Kinds = splitCSV(q.Kinds)
	for _, s := range splitCSV(q.Statuses) {
		st := entity.Status(s)
		if !st.Valid() {
			return f, apperror.NewFieldValidation("status", "unknown status").WithDetail("status", s)
		}
		f.Statuses = append(f.Statuses, st)
	}

	var err error
	if f.PartnerID, err = optionalID("partnerId", q.PartnerID); err != nil {
		return f, err
	}
	if f.SourceDocumentID, err = optionalID("sourceDocumentId", q.SourceDocumentID); err != nil {
		return f, err
	}
	if f.DateFrom, err = optionalDate("dateFrom", q.DateFrom); err != nil {
		return f, err
	}
	if f.DateTo, err = optionalDate("dateTo", q.DateTo); err != nil {
		return f, err
	}

	f.Search = q.Search
	if q.OrderBy != "" {
		f.OrderBy = q.OrderBy
	}
	if q.Limit > 0 {
		f.Limit = q.Limit
	}
	f.Offset = q.Offset
	return f, nil
}

// ParseDate accepts YYYY-MM-DD or RFC 3339.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func optionalID(field, s string) (*id.ID, error) {
	if s == "" {
		return nil, nil
	}
	v, err := id.Parse(s)
	if err != nil {
		return nil, apperror.NewFieldValidation(field, "invalid id format")
	}
	return &v, nil
}

func optionalDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return nil, apperror.NewFieldValidation(field, "invalid date")
	}
	return &t, nil
}

// splitCSV accepts both repeated parameters and comma-separated values.
func splitCSV(in []string) []string {
	var out []string
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
