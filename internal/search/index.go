// Package search ranks post candidates against a free-text query. It is a
// small, deterministic, concurrency-safe in-memory index:
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options (Option pattern)
//   - Unicode-aware tokenization with optional stop-word removal
//   - Immutable after construction (safe for concurrent use)
//   - Deterministic ordering: score, then recency, then ID
//
// Scoring uses Jaccard similarity between the query token set and each
// document's token set: score = |Q ∩ D| / |Q ∪ D|.
//
// The database narrows the corpus first (a LIKE prefilter on the query
// tokens); the index only orders what the prefilter returned.
package search

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// Doc is a searchable document (a post).
type Doc struct {
	ID   string
	Text string
	At   time.Time
}

// Result is a ranked document ID with its similarity score.
type Result struct {
	ID    string
	Score float64
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	maxDocs   int
	minScore  float64
}

func defaultConfig() config {
	return config{}
}

// WithStopwords drops the given words from documents and queries.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMaxDocs caps how many documents are indexed.
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// WithMinScore drops results scoring below s.
func WithMinScore(s float64) Option {
	return func(c *config) {
		if s >= 0 {
			c.minScore = s
		}
	}
}

// DefaultStopwords is a short English list applied to post search.
var DefaultStopwords = []string{
	"a", "an", "and", "are", "at", "be", "but", "by", "for", "i", "in", "is",
	"it", "me", "my", "of", "on", "or", "so", "that", "the", "this", "to",
	"was", "we", "with", "you",
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	id     string
	at     time.Time
	tokens map[string]struct{}
}

// Index is an immutable token index over a set of documents.
type Index struct {
	cfg  config
	docs []doc
}

// NewIndex tokenizes docs. Documents with no tokens are skipped.
func NewIndex(docs []Doc, opts ...Option) *Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	out := make([]doc, 0, len(docs))
	for _, d := range docs {
		toks := tokenize(d.Text, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		out = append(out, doc{id: d.ID, at: d.At, tokens: toks})
		if cfg.maxDocs > 0 && len(out) >= cfg.maxDocs {
			break
		}
	}
	return &Index{cfg: cfg, docs: out}
}

// Len returns the number of indexed documents.
func (i *Index) Len() int { return len(i.docs) }

// TopK returns up to k best-matching documents. k <= 0 means all matches.
func (i *Index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	type scored struct {
		id    string
		at    time.Time
		score float64
	}
	buf := make([]scored, 0, len(i.docs))
	for _, d := range i.docs {
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := float64(qLen + len(d.tokens) - over)
		score := float64(over) / union
		if score <= 0 || score < i.cfg.minScore {
			continue
		}
		buf = append(buf, scored{id: d.id, at: d.at, score: score})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if !buf[a].at.Equal(buf[b].at) {
			return buf[a].at.After(buf[b].at)
		}
		return buf[a].id < buf[b].id
	})

	if k <= 0 || k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for n := 0; n < k; n++ {
		out[n] = Result{ID: buf[n].id, Score: buf[n].score}
	}
	return out
}

// Tokens returns the distinct, lower-cased query tokens of s in first-seen
// order, minus stop words. Used to build the SQL prefilter.
func Tokens(s string, stop []string) []string {
	var sw map[string]struct{}
	if len(stop) > 0 {
		c := defaultConfig()
		WithStopwords(stop)(&c)
		sw = c.stopwords
	}
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, skip := sw[w]; skip {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`[\p{L}\p{N}_]+`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
