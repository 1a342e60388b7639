package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Scorer computes a relevance score for every corpus document against a
// query. The returned slice is positionally aligned with the corpus:
// index i scores document i. Higher is more relevant.
type Scorer interface {
	Score(ctx context.Context, query string) ([]float64, error)
}

// VecScorer scores by cosine similarity over an in-memory sqlite-vec
// index. Corpus embeddings are inserted once at construction; only the
// query is embedded per call.
type VecScorer struct {
	db       *sql.DB
	embedder Embedder
	count    int
}

// NewVecScorer indexes the corpus. Documents without a precomputed
// embedding are embedded in one batch through the embedder.
func NewVecScorer(ctx context.Context, corpus *Corpus, embedder Embedder) (*VecScorer, error) {
	if corpus == nil || corpus.Len() == 0 {
		return nil, fmt.Errorf("corpus is empty")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	docs := corpus.Documents()
	if err := fillEmbeddings(ctx, docs, embedder); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	// A pooled connection would see its own empty :memory: database.
	db.SetMaxOpenConns(1)

	schema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE doc_index USING vec0(
			doc_pos INTEGER PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, embedder.Dimension())
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create vector table: %w", err)
	}

	for i, doc := range docs {
		vec, err := json.Marshal(doc.Embedding)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("marshal embedding for %q: %w", doc.ID, err)
		}
		if _, err := db.ExecContext(ctx,
			"INSERT INTO doc_index (doc_pos, embedding) VALUES (?, ?)",
			i, string(vec),
		); err != nil {
			db.Close()
			return nil, fmt.Errorf("index document %q: %w", doc.ID, err)
		}
	}

	return &VecScorer{db: db, embedder: embedder, count: len(docs)}, nil
}

func fillEmbeddings(ctx context.Context, docs []Document, embedder Embedder) error {
	var pending []int
	var texts []string
	for i, d := range docs {
		if len(d.Embedding) == 0 {
			pending = append(pending, i)
			texts = append(texts, d.Title+"\n"+d.Content)
		} else if len(d.Embedding) != embedder.Dimension() {
			return fmt.Errorf("document %q: embedding dimension %d, want %d", d.ID, len(d.Embedding), embedder.Dimension())
		}
	}
	if len(pending) == 0 {
		return nil
	}

	vecs, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed corpus: %w", err)
	}
	for n, i := range pending {
		docs[i].Embedding = vecs[n]
	}
	return nil
}

// Score embeds the query and returns cosine similarity per document.
func (s *VecScorer) Score(ctx context.Context, query string) ([]float64, error) {
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vecJSON, err := json.Marshal(queryVec)
	if err != nil {
		return nil, fmt.Errorf("marshal query embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_pos, vec_distance_cosine(embedding, ?) AS distance
		FROM doc_index
	`, string(vecJSON))
	if err != nil {
		return nil, fmt.Errorf("score query: %w", err)
	}
	defer rows.Close()

	scores := make([]float64, s.count)
	for rows.Next() {
		var pos int
		var distance float64
		if err := rows.Scan(&pos, &distance); err != nil {
			return nil, err
		}
		if pos < 0 || pos >= s.count {
			return nil, fmt.Errorf("unexpected document position %d", pos)
		}
		scores[pos] = 1.0 - distance
	}
	return scores, rows.Err()
}

// Close releases the index.
func (s *VecScorer) Close() error {
	return s.db.Close()
}
