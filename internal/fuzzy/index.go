// Package fuzzy implements the tolerant name index used as the last local
// fallback when a token is neither a number nor a known nickname.
//
// Each catalog record contributes four searchable fields: display name,
// original name, internal ID and collection number. A token is scored
// against every field with a blend of string metrics:
//
//  1. Jaro-Winkler similarity on the full strings, on the strings with
//     spaces removed and on the best pair of words.
//  2. A Levenshtein ratio on the full strings.
//  3. A prefix or substring bonus when the token appears verbatim in a name.
//
// A field whose Double Metaphone codes overlap the token's codes is accepted
// at the lower phonetic threshold; other fields need the fuzzy threshold.
// A record scores as its best field.
package fuzzy

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/antzucaro/matchr"

	"github.com/MrWong99/atlasbot/internal/entity"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85

	prefixScore    = 0.95
	substringScore = 0.90

	// minSubstringLen keeps one- and two-letter tokens from matching the
	// middle of every name.
	minSubstringLen = 3
)

// Field names reported in [Hit.Field].
const (
	FieldName         = "name"
	FieldOriginalName = "originalName"
	FieldID           = "id"
	FieldCollectionNo = "collectionNo"
)

// Option is a functional option for configuring an [Index].
type Option func(*Index)

// WithPhoneticThreshold sets the minimum score for a field that shares a
// phonetic code with the token. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(ix *Index) {
		if threshold > 0 {
			ix.phoneticThreshold = threshold
		}
	}
}

// WithFuzzyThreshold sets the minimum score for a field without phonetic
// overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(ix *Index) {
		if threshold > 0 {
			ix.fuzzyThreshold = threshold
		}
	}
}

// Hit is one ranked search result.
type Hit struct {
	Entity entity.Entity

	// Score is the similarity in [0, 1] of the best matching field.
	Score float64

	// Field names the best matching field.
	Field string

	// Phonetic is true when the best field shares a phonetic code with the
	// token.
	Phonetic bool
}

// field is one precomputed searchable string.
type field struct {
	kind    string
	lower   string
	tokens  []string
	codes   map[string]struct{}
	numeric bool
}

type document struct {
	pos    int
	fields []field
}

// Index is a read-only search structure over one catalog. It is safe for
// concurrent use.
type Index struct {
	catalog           *entity.Catalog
	docs              []document
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New builds an Index over every record of c.
func New(c *entity.Catalog, opts ...Option) *Index {
	ix := &Index{
		catalog:           c,
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(ix)
	}

	ix.docs = make([]document, 0, c.Len())
	for i := range c.Len() {
		e := c.At(i)
		d := document{pos: i}
		d.fields = appendText(d.fields, FieldName, e.Name)
		d.fields = appendText(d.fields, FieldOriginalName, e.OriginalName)
		d.fields = appendNumber(d.fields, FieldID, e.ID)
		if e.HasCollectionNo() {
			d.fields = appendNumber(d.fields, FieldCollectionNo, e.CollectionNo)
		}
		ix.docs = append(ix.docs, d)
	}
	return ix
}

func appendText(fields []field, kind, s string) []field {
	lower := normalize(s)
	if lower == "" {
		return fields
	}
	tokens := strings.Fields(lower)
	return append(fields, field{kind: kind, lower: lower, tokens: tokens, codes: codesForTokens(tokens)})
}

func appendNumber(fields []field, kind string, n int) []field {
	if n <= 0 {
		return fields
	}
	s := strconv.Itoa(n)
	return append(fields, field{kind: kind, lower: s, tokens: []string{s}, numeric: true})
}

// Len returns the number of indexed records.
func (ix *Index) Len() int { return len(ix.docs) }

// Search returns every record scoring above its threshold, best first. Equal
// scores keep catalog order. A blank token yields no hits.
func (ix *Index) Search(token string) []Hit {
	q := normalize(token)
	if q == "" {
		return nil
	}
	qTokens := strings.Fields(q)
	qCodes := codesForTokens(qTokens)
	qHasDigit := strings.ContainsFunc(q, unicode.IsDigit)

	type scored struct {
		pos int
		hit Hit
	}
	var results []scored

	for _, d := range ix.docs {
		var best Hit
		matched := false
		for _, f := range d.fields {
			if f.numeric && !qHasDigit {
				continue
			}
			score := fieldScore(q, qTokens, f)
			phonetic := !f.numeric && codesOverlap(qCodes, f.codes)

			threshold := ix.fuzzyThreshold
			if phonetic {
				threshold = ix.phoneticThreshold
			}
			if score < threshold {
				continue
			}
			if !matched || score > best.Score {
				best = Hit{Score: score, Field: f.kind, Phonetic: phonetic}
				matched = true
			}
		}
		if matched {
			results = append(results, scored{pos: d.pos, hit: best})
		}
	}

	slices.SortStableFunc(results, func(a, b scored) int {
		return cmp.Compare(b.hit.Score, a.hit.Score)
	})

	hits := make([]Hit, len(results))
	for i, r := range results {
		r.hit.Entity = ix.catalog.At(r.pos)
		hits[i] = r.hit
	}
	return hits
}

// Best returns the top hit for token, if any.
func (ix *Index) Best(token string) (Hit, bool) {
	hits := ix.Search(token)
	if len(hits) == 0 {
		return Hit{}, false
	}
	return hits[0], true
}

// normalize lowercases s, trims it and collapses runs of whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// fieldScore blends the string metrics for one field.
func fieldScore(q string, qTokens []string, f field) float64 {
	if q == f.lower {
		return 1
	}
	if f.numeric {
		return levenshteinRatio(q, f.lower)
	}

	score := bestJWScore(qTokens, f.tokens, q, f.lower)
	if r := levenshteinRatio(q, f.lower); r > score {
		score = r
	}

	switch {
	case strings.HasPrefix(f.lower, q) || tokenHasPrefix(f.tokens, q):
		score = max(score, prefixScore)
	case utf8.RuneCountInString(q) >= minSubstringLen && strings.Contains(f.lower, q):
		score = max(score, substringScore)
	}
	return score
}

func tokenHasPrefix(tokens []string, q string) bool {
	for _, t := range tokens {
		if strings.HasPrefix(t, q) {
			return true
		}
	}
	return false
}

// levenshteinRatio maps edit distance to a similarity in [0, 1].
func levenshteinRatio(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore returns the highest Jaro-Winkler similarity over the full
// strings, the strings with spaces removed and every pair of words.
func bestJWScore(qTokens, fTokens []string, qFull, fFull string) float64 {
	score := matchr.JaroWinkler(qFull, fFull, false)

	if len(qTokens) > 1 || len(fTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(qTokens, ""), strings.Join(fTokens, ""), false); s > score {
			score = s
		}
	}

	for _, qt := range qTokens {
		for _, ft := range fTokens {
			if s := matchr.JaroWinkler(qt, ft, false); s > score {
				score = s
			}
		}
	}
	return score
}
