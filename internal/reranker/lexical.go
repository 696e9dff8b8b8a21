package reranker

import (
	"context"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/complianced/internal/corpus"
)

// LexicalReranker reorders candidates by term overlap between the
// query and the passage text, blended with the original similarity.
// No external model call, so it never degrades; useful where a
// cross-encoder endpoint is not available.
type LexicalReranker struct{}

// NewLexicalReranker creates a new LexicalReranker instance.
func NewLexicalReranker() *LexicalReranker {
	return &LexicalReranker{}
}

// Rerank scores each candidate as 50% original similarity and 50%
// query-term overlap, then sorts descending. Ties keep the input
// (similarity rank) order.
func (r *LexicalReranker) Rerank(_ context.Context, query string, candidates []corpus.RankedPassage) ([]corpus.RankedPassage, error) {
	out := make([]corpus.RankedPassage, len(candidates))
	copy(out, candidates)
	if len(out) == 0 {
		return out, nil
	}

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		// Nothing to score against, keep similarity ordering.
		for i := range out {
			out[i].RerankScore = out[i].Similarity
		}
		return out, nil
	}

	for i := range out {
		overlap := termOverlap(queryTokens, tokenize(out[i].Text))
		out[i].RerankScore = 0.5*out[i].Similarity + 0.5*overlap
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RerankScore > out[j].RerankScore
	})
	return out, nil
}

// Close is a no-op; LexicalReranker holds no resources.
func (r *LexicalReranker) Close() error {
	return nil
}

// tokenize splits text into lowercase terms, filtering stopwords and
// short tokens.
func tokenize(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isAlphanumeric(r)
	})

	filtered := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !stopwords[token] && len(token) > 2 {
			filtered = append(filtered, token)
		}
	}
	return filtered
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_'
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "shall": true, "must": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true,
	"this": true, "that": true, "these": true, "those": true, "such": true,
	"which": true, "who": true, "when": true, "where": true, "any": true,
	"every": true, "under": true, "thereof": true,
}

// termOverlap returns the fraction of unique query terms present in
// the passage tokens, in [0, 1].
func termOverlap(queryTokens, passageTokens []string) float32 {
	if len(queryTokens) == 0 {
		return 0
	}

	passageSet := make(map[string]bool, len(passageTokens))
	for _, token := range passageTokens {
		passageSet[token] = true
	}

	matched := 0
	counted := make(map[string]bool, len(queryTokens))
	unique := 0
	for _, token := range queryTokens {
		if counted[token] {
			continue
		}
		counted[token] = true
		unique++
		if passageSet[token] {
			matched++
		}
	}
	return float32(matched) / float32(unique)
}
