// Package search implements SearchEngine: the strategy selector that fuses
// FTSIndex and VectorIndex results into one ranked candidate list.
package search

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/convomem/convomem/pkg/concurrency"
	"github.com/convomem/convomem/pkg/providers"
	"github.com/convomem/convomem/pkg/repositories"
	"github.com/convomem/convomem/pkg/search/fts"
	"github.com/convomem/convomem/pkg/search/vector"
	"github.com/convomem/convomem/pkg/telemetry"

	cmerrors "github.com/convomem/convomem/pkg/errors"
)

// Strategy selects how Search ranks candidates.
type Strategy string

const (
	StrategyFTS      Strategy = "fts"
	StrategySemantic Strategy = "semantic"
	StrategyHybrid   Strategy = "hybrid"
	StrategyAuto     Strategy = "auto"
)

// Weights controls the hybrid fusion split between semantic and FTS score.
// WSemantic+WFTS must sum to 1; DefaultWeights is used when the caller
// leaves Weights zero-valued.
type Weights struct {
	WSemantic float64
	WFTS      float64
}

// DefaultWeights is spec.md §4.H's default hybrid split.
var DefaultWeights = Weights{WSemantic: 0.6, WFTS: 0.4}

// Options configures one Search call.
type Options struct {
	Strategy         Strategy
	Weights          Weights
	ConversationID   string
	Limit            int
	Offset           int
	MinSemanticScore float64
	MatchType        fts.MatchType
}

// ScoredHit is one ranked candidate message.
type ScoredHit struct {
	MessageID string
	Score     float64
	FTSScore  float64
	SemScore  float64
	CreatedAt int64
}

// Result is the full outcome of one Search call.
type Result struct {
	Hits           []ScoredHit
	Strategy       Strategy
	FallbackUsed   bool
	FallbackReason string
}

// Engine fuses FTSIndex and VectorIndex into one ranked result set,
// selecting a strategy per spec.md §4.H and falling back to a single
// strategy when its counterpart is unavailable or fails.
type Engine struct {
	ftsIndex  *fts.FTSIndex
	vecIndex  vector.VectorIndex
	embedder  providers.Embedder
	messages  *repositories.MessageRepository
	metrics   *repositories.SearchMetricsRepository
	dedup     concurrency.Group[string, Result]
	now       func() time.Time
}

// New builds an Engine. vecIndex/embedder may be nil, in which case the
// engine always behaves as FTS-only regardless of requested strategy.
func New(ftsIndex *fts.FTSIndex, vecIndex vector.VectorIndex, embedder providers.Embedder,
	messages *repositories.MessageRepository, metrics *repositories.SearchMetricsRepository) *Engine {
	return &Engine{
		ftsIndex: ftsIndex,
		vecIndex: vecIndex,
		embedder: embedder,
		messages: messages,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Search runs query against the selected strategy and returns ranked hits,
// recording one SearchMetric row per call.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (Result, error) {
	if strings.TrimSpace(query) == "" {
		return Result{}, cmerrors.Validationf("query", "must not be empty")
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyAuto
	}

	start := e.now()
	key := dedupKey(query, strategy, opts)
	var result Result
	spanErr := telemetry.WithSpan(ctx, "search.engine.search", func(spanCtx context.Context) error {
		var doErr error
		result, doErr, _ = e.dedup.Do(key, func() (Result, error) {
			return e.search(spanCtx, query, strategy, opts)
		})
		return doErr
	}, attribute.String("search.strategy", string(strategy)), attribute.String("search.query", query))
	err := spanErr
	latency := e.now().Sub(start)

	if e.metrics != nil {
		resultCount := 0
		fallbackUsed, fallbackReason := false, ""
		if err == nil {
			resultCount = len(result.Hits)
			fallbackUsed, fallbackReason = result.FallbackUsed, result.FallbackReason
		}
		_ = e.metrics.Record(ctx, repositories.SearchMetric{
			Strategy:       string(strategy),
			QueryLength:    len(query),
			ResultCount:    resultCount,
			LatencyMs:      float64(latency.Microseconds()) / 1000.0,
			FallbackUsed:   fallbackUsed,
			FallbackReason: fallbackReason,
			RecordedAt:     e.now().Unix(),
		})
	}

	return result, err
}

func (e *Engine) search(ctx context.Context, query string, strategy Strategy, opts Options) (Result, error) {
	resolved := e.resolveAuto(query, strategy)

	switch resolved {
	case StrategyFTS:
		hits, err := e.searchFTS(ctx, query, opts)
		return Result{Hits: hits, Strategy: StrategyFTS}, err

	case StrategySemantic:
		hits, err := e.searchSemantic(ctx, query, opts)
		if err != nil && cmerrors.Is(err, cmerrors.ExternalProviderUnavailable) {
			ftsHits, ftsErr := e.searchFTS(ctx, query, opts)
			if ftsErr != nil {
				return Result{}, ftsErr
			}
			return Result{
				Hits: ftsHits, Strategy: StrategyFTS,
				FallbackUsed: true, FallbackReason: "semantic: " + err.Error(),
			}, nil
		}
		return Result{Hits: hits, Strategy: StrategySemantic}, err

	default: // hybrid
		return e.searchHybrid(ctx, query, opts)
	}
}

// resolveAuto implements spec.md §4.H's `auto` strategy heuristic: prefer
// fts for very short or non-linguistic queries, otherwise hybrid when a
// vector index is available, otherwise fts.
func (e *Engine) resolveAuto(query string, strategy Strategy) Strategy {
	if strategy != StrategyAuto {
		return strategy
	}
	tokens := strings.Fields(query)
	if len(tokens) <= 2 || isPunctOrDigits(query) {
		return StrategyFTS
	}
	if e.vectorAvailable() {
		return StrategyHybrid
	}
	return StrategyFTS
}

func (e *Engine) vectorAvailable() bool {
	return e.vecIndex != nil && e.vecIndex.Available() && e.embedder != nil
}

func isPunctOrDigits(s string) bool {
	for _, r := range s {
		if (r >= '0' && r <= '9') || isASCIIPunct(r) || r == ' ' {
			continue
		}
		return false
	}
	return true
}

func isASCIIPunct(r rune) bool {
	return r > 32 && r < 127 && !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'))
}

func (e *Engine) searchFTS(ctx context.Context, query string, opts Options) ([]ScoredHit, error) {
	matchType := opts.MatchType
	if matchType == "" {
		matchType = fts.MatchFuzzy
	}
	hits, err := e.ftsIndex.Search(ctx, query, matchType, opts.ConversationID, opts.Limit+opts.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, ScoredHit{MessageID: h.MessageID, Score: h.Rank, FTSScore: h.Rank})
	}
	return e.paginate(e.attachCreatedAt(ctx, rank(out)), opts), nil
}

func (e *Engine) searchSemantic(ctx context.Context, query string, opts Options) ([]ScoredHit, error) {
	if !e.vectorAvailable() {
		return nil, cmerrors.New(cmerrors.ExternalProviderUnavailable, "no vector index configured")
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	var filter map[string]string
	if opts.ConversationID != "" {
		filter = map[string]string{"conversation_id": opts.ConversationID}
	}
	results, err := e.vecIndex.Search(ctx, vec, opts.Limit+opts.Offset, filter)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredHit, 0, len(results))
	for _, r := range results {
		if r.Similarity < opts.MinSemanticScore {
			continue
		}
		out = append(out, ScoredHit{MessageID: r.ID, Score: r.Similarity, SemScore: r.Similarity})
	}
	return e.paginate(e.attachCreatedAt(ctx, rank(out)), opts), nil
}

// searchHybrid runs FTS and semantic concurrently via FanOut, merges scores,
// and falls back to whichever single strategy succeeded if the other fails.
func (e *Engine) searchHybrid(ctx context.Context, query string, opts Options) (Result, error) {
	if !e.vectorAvailable() {
		hits, err := e.searchFTS(ctx, query, opts)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Hits: hits, Strategy: StrategyFTS,
			FallbackUsed: true, FallbackReason: "vector index unavailable",
		}, nil
	}

	var ftsHits, semHits []ScoredHit
	var ftsErr, semErr error
	// Each branch reports its failure via its own captured error variable
	// rather than FanOut's return, since a partial failure here should fall
	// back to the other strategy rather than abort the whole call.
	_ = concurrency.FanOut(ctx,
		func(ctx context.Context) error {
			noLimitOpts := opts
			noLimitOpts.Limit, noLimitOpts.Offset = opts.Limit+opts.Offset, 0
			ftsHits, ftsErr = e.searchFTSRaw(ctx, query, noLimitOpts)
			return nil
		},
		func(ctx context.Context) error {
			noLimitOpts := opts
			noLimitOpts.Limit, noLimitOpts.Offset = opts.Limit+opts.Offset, 0
			semHits, semErr = e.searchSemanticRaw(ctx, query, noLimitOpts)
			return nil
		},
	)

	switch {
	case ftsErr != nil && semErr != nil:
		return Result{}, cmerrors.Wrap(cmerrors.Internal, ftsErr, "both search strategies failed")
	case semErr != nil:
		return Result{
			Hits: e.paginate(e.attachCreatedAt(ctx, rank(ftsHits)), opts), Strategy: StrategyFTS,
			FallbackUsed: true, FallbackReason: "semantic: " + semErr.Error(),
		}, nil
	case ftsErr != nil:
		return Result{
			Hits: e.paginate(e.attachCreatedAt(ctx, rank(semHits)), opts), Strategy: StrategySemantic,
			FallbackUsed: true, FallbackReason: "fts: " + ftsErr.Error(),
		}, nil
	}

	merged := mergeScores(ftsHits, semHits, opts.Weights)
	merged = e.attachCreatedAt(ctx, merged)
	return Result{Hits: e.paginate(rank(merged), opts), Strategy: StrategyHybrid}, nil
}

func (e *Engine) searchFTSRaw(ctx context.Context, query string, opts Options) ([]ScoredHit, error) {
	matchType := opts.MatchType
	if matchType == "" {
		matchType = fts.MatchFuzzy
	}
	hits, err := e.ftsIndex.Search(ctx, query, matchType, opts.ConversationID, opts.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, ScoredHit{MessageID: h.MessageID, FTSScore: h.Rank})
	}
	return out, nil
}

func (e *Engine) searchSemanticRaw(ctx context.Context, query string, opts Options) ([]ScoredHit, error) {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, cmerrors.Wrap(cmerrors.ExternalProviderUnavailable, err, "embed failed")
	}
	var filter map[string]string
	if opts.ConversationID != "" {
		filter = map[string]string{"conversation_id": opts.ConversationID}
	}
	results, err := e.vecIndex.Search(ctx, vec, opts.Limit, filter)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredHit, 0, len(results))
	for _, r := range results {
		out = append(out, ScoredHit{MessageID: r.ID, SemScore: r.Similarity})
	}
	return out, nil
}

// mergeScores fuses FTS and semantic candidate lists by message id;
// candidates present in only one list get the missing score set to 0, per
// spec.md §4.H.
func mergeScores(ftsHits, semHits []ScoredHit, w Weights) []ScoredHit {
	byID := make(map[string]*ScoredHit, len(ftsHits)+len(semHits))
	order := make([]string, 0, len(ftsHits)+len(semHits))
	for _, h := range ftsHits {
		byID[h.MessageID] = &ScoredHit{MessageID: h.MessageID, FTSScore: h.FTSScore}
		order = append(order, h.MessageID)
	}
	for _, h := range semHits {
		if existing, ok := byID[h.MessageID]; ok {
			existing.SemScore = h.SemScore
			continue
		}
		byID[h.MessageID] = &ScoredHit{MessageID: h.MessageID, SemScore: h.SemScore}
		order = append(order, h.MessageID)
	}
	out := make([]ScoredHit, 0, len(order))
	for _, id := range order {
		h := byID[id]
		h.Score = w.WSemantic*h.SemScore + w.WFTS*h.FTSScore
		out = append(out, *h)
	}
	return out
}

// rank fills in Score as the max of FTSScore/SemScore for single-strategy
// result sets; a hit whose Score is already non-zero is left unchanged.
func rank(hits []ScoredHit) []ScoredHit {
	for i := range hits {
		if hits[i].Score == 0 {
			if hits[i].FTSScore > hits[i].SemScore {
				hits[i].Score = hits[i].FTSScore
			} else {
				hits[i].Score = hits[i].SemScore
			}
		}
	}
	return hits
}

// attachCreatedAt loads CreatedAt for every hit's tie-break field, then
// sorts by score desc, createdAt desc, message id asc per spec.md §4.H.
func (e *Engine) attachCreatedAt(ctx context.Context, hits []ScoredHit) []ScoredHit {
	for i := range hits {
		if msg, err := e.messages.FindByID(ctx, hits[i].MessageID); err == nil {
			hits[i].CreatedAt = msg.CreatedAt
		}
	}
	sortHits(hits)
	return hits
}

func sortHits(hits []ScoredHit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && less(hits[j], hits[j-1]); j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

// less reports whether a should sort before b under the tie-break rule:
// higher score, then more recent createdAt, then lexicographically smaller
// message id.
func less(a, b ScoredHit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.MessageID < b.MessageID
}

func (e *Engine) paginate(hits []ScoredHit, opts Options) []ScoredHit {
	if opts.Offset >= len(hits) {
		return nil
	}
	end := opts.Offset + opts.Limit
	if end > len(hits) {
		end = len(hits)
	}
	return hits[opts.Offset:end]
}

func dedupKey(query string, strategy Strategy, opts Options) string {
	return string(strategy) + "|" + opts.ConversationID + "|" + query
}
