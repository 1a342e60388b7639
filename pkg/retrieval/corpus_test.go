package retrieval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCorpusFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCorpus(t *testing.T) {
	path := writeCorpusFile(t, `[
		{"id": "d1", "title": "First", "content": "alpha"},
		{"id": "d2", "title": "Second", "content": "beta", "embedding": [0.1, 0.2]}
	]`)

	corpus, err := LoadCorpus(path)
	require.NoError(t, err)
	require.Equal(t, 2, corpus.Len())

	docs := corpus.Documents()
	assert.Equal(t, "d1", docs[0].ID)
	assert.Equal(t, "beta", docs[1].Content)
	assert.Len(t, docs[1].Embedding, 2)
}

func TestLoadCorpusRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing id", `[{"title": "x", "content": "y"}]`},
		{"missing content", `[{"id": "d1", "title": "x"}]`},
		{"invalid json", `{"not": "an array"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCorpus(writeCorpusFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadCorpusMissingFile(t *testing.T) {
	_, err := LoadCorpus(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestCorpusDocumentsReturnsCopy(t *testing.T) {
	corpus := NewCorpus([]Document{{ID: "d1", Title: "First", Content: "alpha"}})

	docs := corpus.Documents()
	docs[0].Content = "mutated"

	assert.Equal(t, "alpha", corpus.Documents()[0].Content)
}
