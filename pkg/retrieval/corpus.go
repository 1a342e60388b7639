package retrieval

import (
	"encoding/json"
	"fmt"
	"os"
)

// Document is one reference passage. Embedding is optional in the
// corpus file; documents without one are embedded at index time.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Corpus is an ordered document collection. Registration order is
// significant: score ties resolve in favor of the earlier document.
type Corpus struct {
	docs []Document
}

// NewCorpus builds a corpus from documents in registration order.
func NewCorpus(docs []Document) *Corpus {
	out := make([]Document, len(docs))
	copy(out, docs)
	return &Corpus{docs: out}
}

// LoadCorpus reads a JSON corpus file: an array of documents.
func LoadCorpus(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}

	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}
	for i, d := range docs {
		if d.ID == "" {
			return nil, fmt.Errorf("corpus document %d: missing id", i)
		}
		if d.Content == "" {
			return nil, fmt.Errorf("corpus document %q: missing content", d.ID)
		}
	}
	return NewCorpus(docs), nil
}

// Len returns the number of documents.
func (c *Corpus) Len() int { return len(c.docs) }

// Documents returns the documents in registration order.
func (c *Corpus) Documents() []Document {
	out := make([]Document, len(c.docs))
	copy(out, c.docs)
	return out
}
