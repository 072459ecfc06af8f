package memory

import (
	"context"
	"fmt"
	"sync"

	"docflow/internal/core/apperror"
	"docflow/internal/domain/document"
	"docflow/internal/domain/journal"
)

var _ journal.Poster = (*Journal)(nil)

// Journal is an in-memory general ledger. It lives outside the transaction
// like a remote journal service would.
type Journal struct {
	mu      sync.Mutex
	builder *journal.Builder
	entries map[string]*journal.Entry
	seq     int

	// FailPost and FailRetract inject collaborator errors.
	FailPost    error
	FailRetract error

	Posted    int
	Retracted int
}

// NewJournal creates a ledger that builds entries with builder.
func NewJournal(builder *journal.Builder) *Journal {
	return &Journal{builder: builder, entries: make(map[string]*journal.Entry)}
}

func (j *Journal) PostJournal(ctx context.Context, doc *document.Document) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.FailPost != nil {
		return "", j.FailPost
	}

	e, err := j.builder.Build(doc)
	if err != nil {
		return "", err
	}
	j.seq++
	e.Ref = fmt.Sprintf("JE-%06d", j.seq)
	j.entries[e.Ref] = e
	j.Posted++
	return e.Ref, nil
}

func (j *Journal) RetractJournal(ctx context.Context, ref string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.FailRetract != nil {
		return j.FailRetract
	}
	if _, ok := j.entries[ref]; !ok {
		return apperror.NewNotFound("journal_entry", ref)
	}
	delete(j.entries, ref)
	j.Retracted++
	return nil
}

// Entry returns a stored entry.
func (j *Journal) Entry(ref string) (*journal.Entry, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.entries[ref]
	return e, ok
}

// Len returns the number of live entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}
