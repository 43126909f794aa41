package retrieval

import (
	"math"
	"strings"
	"unicode"
)

// stopWords are excluded from unigrams and break bigram adjacency.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "he": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "of": {}, "on": {}, "that": {}, "the": {}, "this": {},
	"to": {}, "was": {}, "will": {}, "with": {}, "your": {}, "you": {}, "our": {},
}

// termVector is a sparse term-frequency vector over unigrams and bigrams.
type termVector map[string]int

// vectorize lowercases text, strips punctuation, and builds a term-frequency
// vector of unigrams (length > 2, stop-words removed) plus bigrams of
// adjacent non-stop-words.
func vectorize(text string) termVector {
	words := tokenize(text)
	vec := make(termVector)

	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		vec[w]++
	}

	for i := 0; i+1 < len(words); i++ {
		if _, stop := stopWords[words[i]]; stop {
			continue
		}
		if _, stop := stopWords[words[i+1]]; stop {
			continue
		}
		vec[words[i]+"_"+words[i+1]]++
	}

	return vec
}

func tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return strings.Fields(cleaned)
}

// cosine returns the cosine similarity of two term-frequency vectors,
// or 0 when either is empty.
func cosine(a, b termVector) float64 {
	var dot, normA, normB float64
	for term, va := range a {
		normA += float64(va) * float64(va)
		if vb, ok := b[term]; ok {
			dot += float64(va) * float64(vb)
		}
	}
	for _, vb := range b {
		normB += float64(vb) * float64(vb)
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
