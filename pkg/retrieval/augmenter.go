package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nadira/kirin/internal/observability"
	"github.com/nadira/kirin/internal/tracing"
	"github.com/nadira/kirin/pkg/chat"
)

const (
	DefaultThreshold = 0.35
	DefaultMaxDocs   = 3
)

// Augmenter rewrites the instruction message with reference material
// relevant to a query.
type Augmenter struct {
	corpus    *Corpus
	scorer    Scorer
	threshold float64
	maxDocs   int
	logger    zerolog.Logger
}

// AugmenterConfig holds augmenter configuration.
type AugmenterConfig struct {
	Corpus    *Corpus
	Scorer    Scorer
	Threshold float64
	MaxDocs   int
	Logger    zerolog.Logger
}

// NewAugmenter creates an augmenter.
func NewAugmenter(cfg AugmenterConfig) (*Augmenter, error) {
	observability.EnsureRegistered()

	if cfg.Corpus == nil {
		return nil, fmt.Errorf("corpus is required")
	}
	if cfg.Scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MaxDocs <= 0 {
		cfg.MaxDocs = DefaultMaxDocs
	}

	return &Augmenter{
		corpus:    cfg.Corpus,
		scorer:    cfg.Scorer,
		threshold: cfg.Threshold,
		maxDocs:   cfg.MaxDocs,
		logger:    cfg.Logger,
	}, nil
}

// Augment scores the corpus against query and returns an instruction
// message extended with the best-matching documents. Scoring failure
// and an empty match set both return the instruction unchanged.
func (a *Augmenter) Augment(ctx context.Context, query string, instruction chat.Message) chat.Message {
	logger := tracing.LoggerFromContext(ctx, a.logger)

	scores, err := a.scorer.Score(ctx, query)
	if err != nil {
		logger.Warn().Err(err).Msg("Retrieval scoring failed, using instruction unchanged")
		observability.RecordAugmentation("fallback")
		return instruction
	}

	docs := a.corpus.Documents()
	if len(scores) != len(docs) {
		logger.Warn().
			Int("scores", len(scores)).
			Int("documents", len(docs)).
			Msg("Scorer returned mismatched result, using instruction unchanged")
		observability.RecordAugmentation("fallback")
		return instruction
	}

	type match struct {
		pos   int
		score float64
	}
	var kept []match
	for i, score := range scores {
		if score >= a.threshold {
			kept = append(kept, match{pos: i, score: score})
		}
	}
	if len(kept) == 0 {
		observability.RecordAugmentation("empty")
		return instruction
	}

	// Stable sort: equal scores keep registration order.
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].score > kept[j].score
	})
	if len(kept) > a.maxDocs {
		kept = kept[:a.maxDocs]
	}

	var block strings.Builder
	block.WriteString(instruction.Content)
	block.WriteString("\n\n## Reference material\n")
	block.WriteString("Prefer the reference material below when answering. If you rely on knowledge outside it, say so explicitly.\n")

	citations := make([]string, 0, len(kept))
	for _, m := range kept {
		doc := docs[m.pos]
		fmt.Fprintf(&block, "\n### %s\n%s\n", doc.Title, doc.Content)
		citations = append(citations, doc.Title)
	}

	logger.Debug().
		Str("query", query).
		Strs("citations", citations).
		Msg("Instruction augmented")
	observability.RecordAugmentation("augmented")

	return chat.Message{
		Role:      chat.RoleInstruction,
		Content:   block.String(),
		Citations: citations,
	}
}
