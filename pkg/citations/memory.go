// Package citations holds the per-run mapping from query term to the
// references its summary was built from.
package citations

import (
	"fmt"
	"io"

	"github.com/xhad/readmit/internal/models"
)

// Entry is one term and its references in retrieval order.
type Entry struct {
	Term      string            `json:"term"`
	Citations []models.Citation `json:"citations"`
}

// Memory is an insertion-ordered accumulator owned by the caller of a run.
// It is not safe for concurrent use.
type Memory struct {
	order   []string
	entries map[string][]models.Citation
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]models.Citation)}
}

// Record stores the references for term. Recording a term again replaces
// its references and keeps its original position.
func (m *Memory) Record(term string, refs []models.Citation) {
	if _, ok := m.entries[term]; !ok {
		m.order = append(m.order, term)
	}
	stored := make([]models.Citation, len(refs))
	copy(stored, refs)
	m.entries[term] = stored
}

func (m *Memory) Get(term string) ([]models.Citation, bool) {
	refs, ok := m.entries[term]
	if !ok {
		return nil, false
	}
	out := make([]models.Citation, len(refs))
	copy(out, refs)
	return out, true
}

func (m *Memory) Terms() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

func (m *Memory) Len() int { return len(m.order) }

func (m *Memory) Entries() []Entry {
	out := make([]Entry, 0, len(m.order))
	for _, term := range m.order {
		refs, _ := m.Get(term)
		out = append(out, Entry{Term: term, Citations: refs})
	}
	return out
}

func (m *Memory) Reset() {
	m.order = nil
	m.entries = make(map[string][]models.Citation)
}

// WriteMarkdown renders the memory as a bold term followed by a link list.
func (m *Memory) WriteMarkdown(w io.Writer) error {
	for _, e := range m.Entries() {
		if _, err := fmt.Fprintf(w, "**%s**\n", e.Term); err != nil {
			return err
		}
		for _, c := range e.Citations {
			if _, err := fmt.Fprintf(w, "- [%s](%s)\n", c.Title, c.URL); err != nil {
				return err
			}
		}
	}
	return nil
}
