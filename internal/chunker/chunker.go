// Package chunker splits source legal text into overlapping passages
// sized for embedding. Splitting is deterministic: identical input and
// configuration always produce byte-identical passage boundaries,
// which the index fingerprint depends on.
package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/complianced/internal/corpus"
)

// ErrInvalidConfig indicates invalid chunker configuration.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Config holds chunking parameters. The canonical string form of the
// config participates in the corpus fingerprint, so changing any field
// forces an index rebuild.
type Config struct {
	// ChunkSize is the target passage length in runes.
	ChunkSize int `koanf:"chunk_size"`

	// Overlap is the fraction of ChunkSize carried over between
	// adjacent passages so cross-references spanning a boundary stay
	// retrievable from at least one passage. Range [0, 0.5].
	Overlap float64 `koanf:"overlap"`

	// RuleAware enables splitting at numbered rule/sub-rule headings
	// when they are detectable; otherwise a plain sliding window is
	// used.
	RuleAware bool `koanf:"rule_aware"`
}

// DefaultConfig mirrors the chunking used for the statutory corpus:
// 1000-rune passages with 10% overlap, rule-aware.
func DefaultConfig() Config {
	return Config{ChunkSize: 1000, Overlap: 0.1, RuleAware: true}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive", ErrInvalidConfig)
	}
	if c.Overlap < 0 || c.Overlap > 0.5 {
		return fmt.Errorf("%w: overlap must be in [0, 0.5]", ErrInvalidConfig)
	}
	return nil
}

// String returns the canonical config encoding used in the corpus
// fingerprint.
func (c Config) String() string {
	return fmt.Sprintf("size=%d,overlap=%.3f,rule_aware=%t", c.ChunkSize, c.Overlap, c.RuleAware)
}

// ruleHeading matches the start of a numbered rule or sub-rule, e.g.
// "6.", "6A.", "6(1)", "Rule 7" at the beginning of a line. These are
// the smallest atomic units a passage boundary must not cut through.
var ruleHeading = regexp.MustCompile(`(?m)^\s*(?:Rule\s+\d+[A-Z]?|\d+[A-Z]?\s*[.)(])`)

// Chunker splits documents into passage drafts (text only, no
// embeddings).
type Chunker struct {
	cfg Config
}

// New creates a Chunker with the given configuration.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

// Config returns the chunker configuration.
func (c *Chunker) Config() Config {
	return c.cfg
}

// Split chunks every document into passages in document order.
func (c *Chunker) Split(docs []corpus.Document) []corpus.Passage {
	var passages []corpus.Passage
	for _, doc := range docs {
		for ordinal, text := range c.splitText(doc.Text) {
			passages = append(passages, corpus.Passage{
				ID:         corpus.PassageID(doc.ID, ordinal),
				DocumentID: doc.ID,
				Ordinal:    ordinal,
				Text:       text,
			})
		}
	}
	return passages
}

// splitText splits one document's text. Rule-aware mode cuts the text
// into rule units first and packs whole units into passages; the
// sliding window is the fallback when no rule structure is detectable
// or a single unit overflows the chunk size.
func (c *Chunker) splitText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len([]rune(text)) <= c.cfg.ChunkSize {
		return []string{text}
	}

	if c.cfg.RuleAware {
		if units := splitRuleUnits(text); len(units) > 1 {
			return c.packUnits(units)
		}
	}
	return c.slidingWindow(text)
}

// splitRuleUnits cuts text at rule-heading boundaries. Returns the
// units in document order; the leading preamble before the first
// heading is its own unit when non-empty.
func splitRuleUnits(text string) []string {
	locs := ruleHeading.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	var units []string
	prev := 0
	for _, loc := range locs {
		if loc[0] > prev {
			if unit := strings.TrimSpace(text[prev:loc[0]]); unit != "" {
				units = append(units, unit)
			}
		}
		prev = loc[0]
	}
	if unit := strings.TrimSpace(text[prev:]); unit != "" {
		units = append(units, unit)
	}
	return units
}

// packUnits greedily packs whole rule units into passages up to
// ChunkSize. The last unit of a passage is repeated at the start of
// the next one when it fits the overlap budget. A single oversized
// unit falls back to the sliding window on that unit alone.
func (c *Chunker) packUnits(units []string) []string {
	overlapBudget := int(float64(c.cfg.ChunkSize) * c.cfg.Overlap)

	var chunks []string
	var current []string
	currentLen := 0
	fresh := 0 // units in current that are not overlap carry-over

	flush := func() {
		if fresh == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, "\n"))
		// Carry the tail unit forward as overlap when it fits.
		tail := current[len(current)-1]
		current = current[:0]
		currentLen = 0
		fresh = 0
		if n := len([]rune(tail)); n <= overlapBudget {
			current = append(current, tail)
			currentLen = n + 1
		}
	}

	for _, unit := range units {
		n := len([]rune(unit))
		if n > c.cfg.ChunkSize {
			flush()
			current = current[:0]
			currentLen = 0
			chunks = append(chunks, c.slidingWindow(unit)...)
			continue
		}
		if currentLen+n > c.cfg.ChunkSize {
			flush()
			// Drop the overlap carry when it would still overflow.
			if currentLen+n > c.cfg.ChunkSize {
				current = current[:0]
				currentLen = 0
			}
		}
		current = append(current, unit)
		currentLen += n + 1
		fresh++
	}
	flush()
	return chunks
}

// slidingWindow splits text into fixed-size rune windows with the
// configured overlap.
func (c *Chunker) slidingWindow(text string) []string {
	runes := []rune(text)
	size := c.cfg.ChunkSize
	step := size - int(float64(size)*c.cfg.Overlap)
	if step <= 0 {
		step = size
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
