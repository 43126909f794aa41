// Package retrieval ranks advice tips against an engagement classification.
// The vector path uses embeddings when an embedding-capable engine is
// configured; any failure there degrades transparently to the always
// available lexical path.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/kalambet/edna/internal/dataset"
)

// Mode records which retrieval path produced a result set, so callers and
// tests can assert on degradation instead of inferring it from output shape.
type Mode string

const (
	ModeVector  Mode = "vector"
	ModeLexical Mode = "lexical"
)

// Citation is a (tip id, score) reference into the tips corpus.
type Citation struct {
	TipID string  `json:"tip_id"`
	Score float64 `json:"score"`
}

// Ranked is a retrieval result set with its provenance mode.
type Ranked struct {
	Citations []Citation
	Mode      Mode
}

// situationBoost multiplies the score of results whose situation tag matches
// the query classification; topically-matched tips should outrank generic ones.
const situationBoost = 1.2

// TipsRetriever scores a fixed tips corpus against classification queries.
type TipsRetriever struct {
	tips       []dataset.Tip
	docVectors []termVector
	embedder   *Embedder       // nil: lexical only
	cache      *EmbeddingCache // nil: embed directly every run
}

// NewTipsRetriever builds a retriever over the corpus. Lexical document
// vectors are precomputed once. embedder may be nil to force the lexical
// path; cache may be nil to skip embedding reuse.
func NewTipsRetriever(tips []dataset.Tip, embedder *Embedder, cache *EmbeddingCache) *TipsRetriever {
	docVectors := make([]termVector, len(tips))
	for i, tip := range tips {
		docVectors[i] = vectorize(tip.Situation + " " + tip.Text)
	}
	return &TipsRetriever{
		tips:       tips,
		docVectors: docVectors,
		embedder:   embedder,
		cache:      cache,
	}
}

// Search ranks the corpus against the classification and its explanations,
// returning the top-k citations. Identical inputs always yield identical
// rankings; ties keep corpus order.
func (r *TipsRetriever) Search(ctx context.Context, classification string, explanations []string, topK int) Ranked {
	if topK <= 0 || len(r.tips) == 0 {
		return Ranked{Mode: ModeLexical}
	}

	query := classification
	if len(explanations) > 0 {
		query += " " + strings.Join(explanations, " ")
	}

	if r.embedder != nil {
		citations, err := r.vectorSearch(ctx, query, topK)
		if err == nil {
			return Ranked{Citations: r.boost(citations, classification, topK), Mode: ModeVector}
		}
		slog.Warn("vector retrieval failed, falling back to lexical", "error", err)
	}

	citations := r.lexicalSearch(query, topK)
	return Ranked{Citations: r.boost(citations, classification, topK), Mode: ModeLexical}
}

// lexicalSearch ranks tips by TF cosine similarity against the query.
func (r *TipsRetriever) lexicalSearch(query string, topK int) []Citation {
	queryVec := vectorize(query)

	citations := make([]Citation, len(r.tips))
	for i, tip := range r.tips {
		citations[i] = Citation{
			TipID: tip.TipID,
			Score: cosine(queryVec, r.docVectors[i]),
		}
	}

	sort.SliceStable(citations, func(i, j int) bool {
		return citations[i].Score > citations[j].Score
	})
	if len(citations) > topK {
		citations = citations[:topK]
	}
	return citations
}

// vectorSearch embeds the query and corpus and ranks by similarity derived
// from L2 distance: similarity = 1 / (1 + distance).
func (r *TipsRetriever) vectorSearch(ctx context.Context, query string, topK int) ([]Citation, error) {
	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	tipVecs, err := r.tipEmbeddings(ctx)
	if err != nil {
		return nil, err
	}

	citations := make([]Citation, len(r.tips))
	for i, tip := range r.tips {
		dist, err := l2Distance(queryVec, tipVecs[i])
		if err != nil {
			return nil, fmt.Errorf("scoring tip %s: %w", tip.TipID, err)
		}
		citations[i] = Citation{TipID: tip.TipID, Score: 1 / (1 + dist)}
	}

	sort.SliceStable(citations, func(i, j int) bool {
		return citations[i].Score > citations[j].Score
	})
	if len(citations) > topK {
		citations = citations[:topK]
	}
	return citations, nil
}

// tipEmbeddings returns one embedding per tip, using the cache when present.
// Cache read/write failures are logged and bypassed; only embedding failures
// propagate.
func (r *TipsRetriever) tipEmbeddings(ctx context.Context) ([][]float32, error) {
	vecs := make([][]float32, len(r.tips))
	hashes := make([]string, len(r.tips))

	var missIdx []int
	for i, tip := range r.tips {
		hashes[i] = contentHash(tip.Situation, tip.Text)
		if r.cache != nil {
			vec, hit, err := r.cache.Get(tip.TipID, hashes[i])
			if err != nil {
				slog.Warn("embedding cache read failed", "tip_id", tip.TipID, "error", err)
			} else if hit {
				vecs[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
	}

	if len(missIdx) > 0 {
		texts := make([]string, len(missIdx))
		for j, i := range missIdx {
			texts[j] = r.tips[i].Situation + " " + r.tips[i].Text
		}
		embedded, err := r.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		for j, i := range missIdx {
			vecs[i] = embedded[j]
			if r.cache != nil {
				if err := r.cache.Put(r.tips[i].TipID, hashes[i], embedded[j]); err != nil {
					slog.Warn("embedding cache write failed", "tip_id", r.tips[i].TipID, "error", err)
				}
			}
		}
	}

	return vecs, nil
}

// boost raises scores of tips whose situation tag equals the classification,
// capped at 1.0, then re-ranks the result set.
func (r *TipsRetriever) boost(citations []Citation, classification string, topK int) []Citation {
	for i := range citations {
		tip, ok := r.tipByID(citations[i].TipID)
		if !ok || tip.Situation != classification {
			continue
		}
		boosted := citations[i].Score * situationBoost
		if boosted > 1.0 {
			boosted = 1.0
		}
		citations[i].Score = boosted
	}

	sort.SliceStable(citations, func(i, j int) bool {
		return citations[i].Score > citations[j].Score
	})
	if len(citations) > topK {
		citations = citations[:topK]
	}
	return citations
}

func (r *TipsRetriever) tipByID(tipID string) (dataset.Tip, bool) {
	for _, tip := range r.tips {
		if tip.TipID == tipID {
			return tip, true
		}
	}
	return dataset.Tip{}, false
}

func l2Distance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
