// Package contextassembler implements ContextAssembler: token-budgeted
// selection of messages, summaries, and metadata into one prompt-ready
// context blob, per spec.md §4.L.
package contextassembler

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/convomem/convomem/pkg/knowledge"
	"github.com/convomem/convomem/pkg/repositories"
	"github.com/convomem/convomem/pkg/search"
	"github.com/convomem/convomem/pkg/telemetry"

	cmerrors "github.com/convomem/convomem/pkg/errors"
)

// Strategy selects how candidate items are scored for relevance.
type Strategy string

const (
	StrategyTemporal      Strategy = "temporal"
	StrategyTopical       Strategy = "topical"
	StrategyEntityCentric Strategy = "entity-centric"
	StrategyHybrid        Strategy = "hybrid"
)

// HybridWeights is spec.md §4.L's default weighting for the hybrid strategy.
var HybridWeights = struct{ Topical, Temporal, EntityCentric float64 }{0.5, 0.3, 0.2}

// TimeWindow bounds candidate selection; UntilMs <= 0 means no upper bound.
type TimeWindow struct {
	SinceMs int64
	UntilMs int64
}

// ItemType enumerates the kind of content an IncludedItem carries.
type ItemType string

const (
	ItemMessage  ItemType = "message"
	ItemSummary  ItemType = "summary"
	ItemMetadata ItemType = "metadata"
)

// IncludedItem is one unit of content admitted into the assembled context.
type IncludedItem struct {
	ID             string
	Type           ItemType
	RelevanceScore float64
	TokenCount     int
	Position       int
}

// TokenBreakdown reports how the assembled budget was spent across regions.
// The five fields always sum to the enclosing AssembledContext.TokenCount.
type TokenBreakdown struct {
	Query     int
	Messages  int
	Summaries int
	Metadata  int
	Buffer    int
}

// Metrics reports selection-pass bookkeeping useful for diagnostics.
type Metrics struct {
	CandidatesConsidered int
	ItemsAdmitted        int
	ItemsSkipped         int
}

// AssembledContext is the result of one Assemble call.
type AssembledContext struct {
	Text           string
	TokenCount     int
	TokenBreakdown TokenBreakdown
	IncludedItems  []IncludedItem
	Strategy       Strategy
	Metrics        Metrics
}

// Options configures one Assemble call.
type Options struct {
	Query           string
	MaxTokens       int
	Strategy        Strategy
	ConversationIDs []string
	MinRelevance    float64
	IncludeRecent   int
	FocusEntities   []string
	TimeWindow      *TimeWindow
	Model           string
}

// candidate is a scored content unit before admission.
type candidate struct {
	id        string
	typ       ItemType
	text      string
	tokens    int
	score     float64
	createdAt int64
}

// Assembler selects and packs content under a token budget using the
// strategy and budget-decomposition rules in spec.md §4.L.
type Assembler struct {
	messages  *repositories.MessageRepository
	summaries *repositories.SummaryRepository
	searchEng *search.Engine
	knowledge *knowledge.Service
	tokenizer Tokenizer
}

// New builds an Assembler. searchEng/knowledge may be nil, in which case
// the topical/entity-centric strategies degrade to temporal ordering.
func New(messages *repositories.MessageRepository, summaries *repositories.SummaryRepository,
	searchEng *search.Engine, ks *knowledge.Service, tokenizer Tokenizer) *Assembler {
	if tokenizer == nil {
		tokenizer = ApproxTokenizer{}
	}
	return &Assembler{messages: messages, summaries: summaries, searchEng: searchEng, knowledge: ks, tokenizer: tokenizer}
}

// Assemble builds one AssembledContext for a single conversation, or if
// len(opts.ConversationIDs) > 1, delegates to AssembleMulti.
func (a *Assembler) Assemble(ctx context.Context, opts Options) (AssembledContext, error) {
	if opts.MaxTokens <= 0 {
		return AssembledContext{}, cmerrors.Validationf("maxTokens", "must be > 0")
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyHybrid
	}
	if len(opts.ConversationIDs) > 1 {
		return a.AssembleMulti(ctx, opts)
	}

	var conversationID string
	if len(opts.ConversationIDs) == 1 {
		conversationID = opts.ConversationIDs[0]
	}

	var assembled AssembledContext
	err := telemetry.WithSpan(ctx, "contextassembler.assemble", func(spanCtx context.Context) error {
		candidates, err := a.buildCandidates(spanCtx, conversationID, opts)
		if err != nil {
			return err
		}
		assembled = a.pack(spanCtx, candidates, opts)
		return nil
	}, attribute.String("contextassembler.strategy", string(opts.Strategy)))
	if err != nil {
		return AssembledContext{}, err
	}
	return assembled, nil
}

// AssembleMulti assembles up to 5 conversations independently, sorts the
// resulting sub-contexts by average relevance desc, and concatenates them
// with a literal "\n\n---\n\n" separator until the budget is exhausted.
func (a *Assembler) AssembleMulti(ctx context.Context, opts Options) (AssembledContext, error) {
	convIDs := opts.ConversationIDs
	if len(convIDs) > 5 {
		convIDs = convIDs[:5]
	}

	type subContext struct {
		ctx    AssembledContext
		avgRel float64
	}
	var subs []subContext
	for _, id := range convIDs {
		sub := opts
		sub.ConversationIDs = []string{id}
		candidates, err := a.buildCandidates(ctx, id, sub)
		if err != nil {
			continue
		}
		packed := a.pack(ctx, candidates, sub)
		avg := averageRelevance(packed.IncludedItems)
		subs = append(subs, subContext{ctx: packed, avgRel: avg})
	}

	sort.SliceStable(subs, func(i, j int) bool { return subs[i].avgRel > subs[j].avgRel })

	var textParts []string
	merged := AssembledContext{Strategy: opts.Strategy}
	for _, s := range subs {
		sepTokens := 0
		if len(textParts) > 0 {
			sepTokens = a.tokenizer.Tokenize("\n\n---\n\n", opts.Model)
		}
		candidateTotal := merged.TokenCount + sepTokens + s.ctx.TokenCount
		if candidateTotal > opts.MaxTokens {
			break
		}
		textParts = append(textParts, s.ctx.Text)
		merged.TokenCount = candidateTotal
		merged.TokenBreakdown.Query += s.ctx.TokenBreakdown.Query
		merged.TokenBreakdown.Messages += s.ctx.TokenBreakdown.Messages
		merged.TokenBreakdown.Summaries += s.ctx.TokenBreakdown.Summaries
		merged.TokenBreakdown.Metadata += s.ctx.TokenBreakdown.Metadata
		// Separator tokens between sub-contexts aren't owned by any region a
		// sub-context reports on its own; fold them into Buffer so the
		// breakdown still sums to the merged TokenCount.
		merged.TokenBreakdown.Buffer += s.ctx.TokenBreakdown.Buffer + sepTokens
		merged.IncludedItems = append(merged.IncludedItems, s.ctx.IncludedItems...)
		merged.Metrics.CandidatesConsidered += s.ctx.Metrics.CandidatesConsidered
		merged.Metrics.ItemsAdmitted += s.ctx.Metrics.ItemsAdmitted
		merged.Metrics.ItemsSkipped += s.ctx.Metrics.ItemsSkipped
	}
	merged.Text = strings.Join(textParts, "\n\n---\n\n")
	return merged, nil
}

func averageRelevance(items []IncludedItem) float64 {
	if len(items) == 0 {
		return 0
	}
	var sum float64
	for _, it := range items {
		sum += it.RelevanceScore
	}
	return sum / float64(len(items))
}

// buildCandidates gathers messages, summaries, and entity-mention metadata
// for one conversation and scores them per opts.Strategy.
func (a *Assembler) buildCandidates(ctx context.Context, conversationID string, opts Options) ([]candidate, error) {
	var messages []repositories.Message
	var err error
	if conversationID != "" {
		messages, err = a.messages.FindByConversationId(ctx, conversationID, 1000, nil, nil)
		if err != nil {
			return nil, err
		}
	}
	if opts.TimeWindow != nil {
		messages = filterByWindow(messages, *opts.TimeWindow)
	}

	topicalScores := a.topicalScores(ctx, messages, opts)
	entityScores := a.entityScores(ctx, messages, opts)

	// Without a bounded window, temporal scores are taken relative to the
	// oldest and newest message in scope.
	scoreOpts := opts
	if (opts.TimeWindow == nil || opts.TimeWindow.UntilMs <= opts.TimeWindow.SinceMs) && len(messages) > 0 {
		w := TimeWindow{SinceMs: messages[0].CreatedAt, UntilMs: messages[0].CreatedAt}
		for _, m := range messages[1:] {
			if m.CreatedAt < w.SinceMs {
				w.SinceMs = m.CreatedAt
			}
			if m.CreatedAt > w.UntilMs {
				w.UntilMs = m.CreatedAt
			}
		}
		scoreOpts.TimeWindow = &w
	}

	candidates := make([]candidate, 0, len(messages))
	for _, m := range messages {
		score := a.scoreMessage(m, topicalScores, entityScores, scoreOpts)
		candidates = append(candidates, candidate{
			id: m.ID, typ: ItemMessage, text: m.Content,
			tokens: a.tokenizer.Tokenize(m.Content, opts.Model),
			score:  score, createdAt: m.CreatedAt,
		})
	}

	if conversationID != "" && a.summaries != nil {
		if summaries, err := a.summaries.ListFor(ctx, conversationID); err == nil {
			for _, s := range summaries {
				candidates = append(candidates, candidate{
					id: s.ID, typ: ItemSummary, text: s.Text,
					tokens: a.tokenizer.Tokenize(s.Text, opts.Model),
					score:  0.5, createdAt: s.GeneratedAt,
				})
			}
		}
	}

	filtered := candidates[:0]
	for _, c := range candidates {
		if c.score >= opts.MinRelevance {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

func filterByWindow(messages []repositories.Message, w TimeWindow) []repositories.Message {
	out := messages[:0]
	for _, m := range messages {
		if m.CreatedAt < w.SinceMs {
			continue
		}
		if w.UntilMs > 0 && m.CreatedAt > w.UntilMs {
			continue
		}
		out = append(out, m)
	}
	return out
}

// topicalScores queries the SearchEngine for opts.Query and returns a
// messageId -> normalized score map; empty if no engine or query is wired.
func (a *Assembler) topicalScores(ctx context.Context, messages []repositories.Message, opts Options) map[string]float64 {
	scores := make(map[string]float64)
	if a.searchEng == nil || strings.TrimSpace(opts.Query) == "" {
		return scores
	}
	var conversationID string
	if len(messages) > 0 {
		conversationID = messages[0].ConversationID
	}
	result, err := a.searchEng.Search(ctx, opts.Query, search.Options{
		ConversationID: conversationID,
		Limit:          len(messages) + 1,
	})
	if err != nil {
		return scores
	}
	for _, hit := range result.Hits {
		scores[hit.MessageID] = hit.Score
	}
	return scores
}

// entityScores returns a messageId -> score map derived from relationship
// strength to opts.FocusEntities, via mentions recorded against each
// message; empty if no knowledge service or focus entities are wired.
func (a *Assembler) entityScores(ctx context.Context, messages []repositories.Message, opts Options) map[string]float64 {
	scores := make(map[string]float64)
	if a.knowledge == nil || len(opts.FocusEntities) == 0 {
		return scores
	}
	for _, entityRef := range opts.FocusEntities {
		_, history, err := a.knowledge.EntityHistory(ctx, entityRef, "", knowledge.TimeRange{})
		if err != nil {
			continue
		}
		for _, h := range history {
			if h.Mention.Confidence > scores[h.Mention.MessageID] {
				scores[h.Mention.MessageID] = h.Mention.Confidence
			}
		}
	}
	return scores
}

func (a *Assembler) scoreMessage(m repositories.Message, topical, entity map[string]float64, opts Options) float64 {
	switch opts.Strategy {
	case StrategyTemporal:
		return temporalScore(m, opts)
	case StrategyTopical:
		return topical[m.ID]
	case StrategyEntityCentric:
		return entity[m.ID]
	default: // hybrid
		return HybridWeights.Topical*topical[m.ID] +
			HybridWeights.Temporal*temporalScore(m, opts) +
			HybridWeights.EntityCentric*entity[m.ID]
	}
}

// temporalScore favors recency without any external collaborator: it is a
// fraction of the message's position within [oldest, newest] in the window
// under consideration, recomputed relative to opts.TimeWindow when set.
func temporalScore(m repositories.Message, opts Options) float64 {
	if opts.TimeWindow == nil || opts.TimeWindow.UntilMs <= opts.TimeWindow.SinceMs {
		return 1.0
	}
	span := float64(opts.TimeWindow.UntilMs - opts.TimeWindow.SinceMs)
	if span <= 0 {
		return 1.0
	}
	frac := float64(m.CreatedAt-opts.TimeWindow.SinceMs) / span
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return frac
}

// pack runs the budget decomposition and greedy admission algorithm of
// spec.md §4.L over candidates.
func (a *Assembler) pack(ctx context.Context, candidates []candidate, opts Options) AssembledContext {
	budget := decomposeBudget(opts.MaxTokens)

	queryTokens := 0
	var textParts []string
	if strings.TrimSpace(opts.Query) != "" {
		queryTokens = a.tokenizer.Tokenize(opts.Query, opts.Model)
		textParts = append(textParts, opts.Query)
	}
	// The query prefix is reserved first, shrinking the content budget the
	// admission loop below is allowed to spend so the final total (query +
	// content + buffer) never exceeds maxTokens.
	contentBudget := opts.MaxTokens - queryTokens
	if contentBudget < 0 {
		contentBudget = 0
	}

	avgTokens := averageTokens(candidates)
	poolCap := int(float64(opts.MaxTokens) / avgTokens * 3)
	if poolCap < 1 {
		poolCap = len(candidates)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > poolCap {
		candidates = candidates[:poolCap]
	}

	var reserved map[string]struct{}
	var reservedItems []IncludedItem
	reservedTokens := 0

	if opts.IncludeRecent > 0 {
		recent := mostRecent(candidates, opts.IncludeRecent)
		reserveBudget := int(float64(contentBudget) * 0.10)
		reserved = make(map[string]struct{}, len(recent))
		for _, c := range recent {
			if reservedTokens+c.tokens > reserveBudget {
				break
			}
			reserved[c.id] = struct{}{}
			reservedTokens += c.tokens
			reservedItems = append(reservedItems, IncludedItem{ID: c.id, Type: c.typ, RelevanceScore: c.score, TokenCount: c.tokens})
			textParts = append(textParts, c.text)
		}
	}

	var result AssembledContext
	result.Strategy = opts.Strategy
	result.Metrics.CandidatesConsidered = len(candidates)

	used := map[ItemType]int{}
	used[ItemMessage] += countTokensByType(reservedItems, ItemMessage)
	used[ItemSummary] += countTokensByType(reservedItems, ItemSummary)
	used[ItemMetadata] += countTokensByType(reservedItems, ItemMetadata)

	total := reservedTokens
	position := len(reservedItems)
	var included []IncludedItem
	included = append(included, reservedItems...)

	regionBudget := func(t ItemType) int {
		switch t {
		case ItemMessage:
			return budget.Messages
		case ItemSummary:
			return budget.Summaries
		default:
			return budget.Metadata
		}
	}

	for _, c := range candidates {
		if reserved != nil {
			if _, ok := reserved[c.id]; ok {
				continue
			}
		}
		if total+c.tokens > contentBudget {
			result.Metrics.ItemsSkipped++
			continue
		}
		rb := regionBudget(c.typ)
		if rb > 0 && used[c.typ]+c.tokens > rb && total+c.tokens > contentBudget-budget.Buffer {
			result.Metrics.ItemsSkipped++
			continue
		}
		included = append(included, IncludedItem{ID: c.id, Type: c.typ, RelevanceScore: c.score, TokenCount: c.tokens, Position: position})
		textParts = append(textParts, c.text)
		used[c.typ] += c.tokens
		total += c.tokens
		position++
	}

	// Buffer is whatever's left of the soft 5% reserve after the content
	// actually admitted, not leftover room up to maxTokens: the breakdown
	// must sum to the real tokenCount, not to maxTokens.
	buffer := contentBudget - total
	if buffer > budget.Buffer {
		buffer = budget.Buffer
	}
	if buffer < 0 {
		buffer = 0
	}

	result.Text = strings.Join(textParts, "\n\n")
	result.TokenCount = queryTokens + total + buffer
	result.TokenBreakdown = TokenBreakdown{
		Query:     queryTokens,
		Messages:  used[ItemMessage],
		Summaries: used[ItemSummary],
		Metadata:  used[ItemMetadata],
		Buffer:    buffer,
	}
	result.IncludedItems = included
	result.Metrics.ItemsAdmitted = len(included)
	return result
}

type tokenBudget struct {
	Messages  int
	Summaries int
	Metadata  int
	Buffer    int
}

// decomposeBudget implements spec.md §4.L's soft split: 60% messages/
// snippets, 25% summaries, 10% metadata, 5% buffer.
func decomposeBudget(maxTokens int) tokenBudget {
	return tokenBudget{
		Messages:  int(float64(maxTokens) * 0.60),
		Summaries: int(float64(maxTokens) * 0.25),
		Metadata:  int(float64(maxTokens) * 0.10),
		Buffer:    int(float64(maxTokens) * 0.05),
	}
}

func averageTokens(candidates []candidate) float64 {
	if len(candidates) == 0 {
		return 1
	}
	var sum int
	for _, c := range candidates {
		sum += c.tokens
	}
	avg := float64(sum) / float64(len(candidates))
	if avg < 1 {
		avg = 1
	}
	return avg
}

func mostRecent(candidates []candidate, n int) []candidate {
	byRecency := append([]candidate{}, candidates...)
	sort.SliceStable(byRecency, func(i, j int) bool { return byRecency[i].createdAt > byRecency[j].createdAt })
	if len(byRecency) > n {
		byRecency = byRecency[:n]
	}
	return byRecency
}

func countTokensByType(items []IncludedItem, t ItemType) int {
	var n int
	for _, it := range items {
		if it.Type == t {
			n += it.TokenCount
		}
	}
	return n
}
