package tools

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/convomem/convomem/pkg/contextassembler"
	cmerrors "github.com/convomem/convomem/pkg/errors"
	"github.com/convomem/convomem/pkg/knowledge/extractor"
	"github.com/convomem/convomem/pkg/repositories"
)

// GetConversationAnalyticsTool returns the rollup row for a conversation,
// computing and persisting one on first request.
type GetConversationAnalyticsTool struct {
	Analytics *repositories.ConversationAnalyticsRepository
	Messages  *repositories.MessageRepository
	Entities  *repositories.EntityRepository
}

type GetConversationAnalyticsInput struct {
	ConversationID string `json:"conversationId" jsonschema:"required"`
}

func (GetConversationAnalyticsTool) Name() string        { return "get_conversation_analytics" }
func (GetConversationAnalyticsTool) Description() string { return "Return message/token/entity rollup statistics for a conversation, computing them on first request." }
func (GetConversationAnalyticsTool) InputSchema() *jsonschema.Schema { return GenerateSchema[GetConversationAnalyticsInput]() }

func (t *GetConversationAnalyticsTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in GetConversationAnalyticsInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}
	existing, err := t.Analytics.FindByConversation(ctx, in.ConversationID)
	if err == nil {
		return existing, nil
	}
	if !cmerrors.Is(err, cmerrors.NotFound) {
		return nil, err
	}

	messages, err := t.Messages.FindByConversationId(ctx, in.ConversationID, 10000, nil, nil)
	if err != nil {
		return nil, err
	}
	tokenizer := ApproxTokenizer{}
	totalTokens := 0
	entitySet := map[string]struct{}{}
	var totalLatency float64
	var latencySamples int
	for i, m := range messages {
		totalTokens += tokenizer.Tokenize(m.Content, "")
		for _, e := range extractor.Extract(m.Content, extractor.DefaultOptions) {
			entitySet[e.NormalizedText] = struct{}{}
		}
		if m.Role == repositories.RoleAssistant && i > 0 {
			prev := messages[i-1]
			if prev.Role == repositories.RoleUser {
				totalLatency += float64(m.CreatedAt - prev.CreatedAt)
				latencySamples++
			}
		}
	}
	avgLatency := 0.0
	if latencySamples > 0 {
		avgLatency = totalLatency / float64(latencySamples)
	}

	a := repositories.ConversationAnalytics{
		ConversationID:       in.ConversationID,
		MessageCount:         len(messages),
		TotalTokens:          totalTokens,
		EntityCount:          len(entitySet),
		AvgResponseLatencyMs: avgLatency,
		ComputedAt:           timeNowMs(),
	}
	if err := t.Analytics.Upsert(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// AnalyzeProductivityPatternsTool detects coarse productivity signals (burst
// activity, long silences) within a window and records them.
type AnalyzeProductivityPatternsTool struct {
	Patterns *repositories.ProductivityPatternRepository
	Messages *repositories.MessageRepository
}

type AnalyzeProductivityPatternsInput struct {
	ConversationID string `json:"conversationId" jsonschema:"required"`
	WindowStart    int64  `json:"windowStart,omitempty"`
	WindowEnd      int64  `json:"windowEnd,omitempty"`
}

func (AnalyzeProductivityPatternsTool) Name() string        { return "analyze_productivity_patterns" }
func (AnalyzeProductivityPatternsTool) Description() string { return "Detect burst-activity and long-silence patterns in a conversation window and record them." }
func (AnalyzeProductivityPatternsTool) InputSchema() *jsonschema.Schema { return GenerateSchema[AnalyzeProductivityPatternsInput]() }

func (t *AnalyzeProductivityPatternsTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in AnalyzeProductivityPatternsInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}
	messages, err := t.Messages.FindByConversationId(ctx, in.ConversationID, 10000, nil, nil)
	if err != nil {
		return nil, err
	}
	start, end := in.WindowStart, in.WindowEnd
	if len(messages) > 0 {
		if start == 0 {
			start = messages[0].CreatedAt
		}
		if end == 0 {
			end = messages[len(messages)-1].CreatedAt
		}
	}

	const burstGapMs = 60_000
	const silenceGapMs = 3_600_000
	now := timeNowMs()
	for i := 1; i < len(messages); i++ {
		gap := messages[i].CreatedAt - messages[i-1].CreatedAt
		if messages[i].CreatedAt < start || messages[i].CreatedAt > end {
			continue
		}
		switch {
		case gap <= burstGapMs:
			if err := t.Patterns.Create(ctx, repositories.ProductivityPattern{
				ConversationID: in.ConversationID,
				PatternType:    "burst_activity",
				Description:    "consecutive messages arrived within a minute of each other",
				Confidence:     0.6,
				WindowStart:    messages[i-1].CreatedAt,
				WindowEnd:      messages[i].CreatedAt,
				DetectedAt:     now,
			}); err != nil {
				return nil, err
			}
		case gap >= silenceGapMs:
			if err := t.Patterns.Create(ctx, repositories.ProductivityPattern{
				ConversationID: in.ConversationID,
				PatternType:    "long_silence",
				Description:    "over an hour passed between consecutive messages",
				Confidence:     0.6,
				WindowStart:    messages[i-1].CreatedAt,
				WindowEnd:      messages[i].CreatedAt,
				DetectedAt:     now,
			}); err != nil {
				return nil, err
			}
		}
	}
	return t.Patterns.FindByWindow(ctx, in.ConversationID, start, end)
}

// DetectKnowledgeGapsTool flags unanswered questions as knowledge gaps: a
// user message ending in "?" with no assistant reply directly after it.
type DetectKnowledgeGapsTool struct {
	Gaps     *repositories.KnowledgeGapRepository
	Messages *repositories.MessageRepository
}

type DetectKnowledgeGapsInput struct {
	ConversationID string `json:"conversationId" jsonschema:"required"`
}

func (DetectKnowledgeGapsTool) Name() string        { return "detect_knowledge_gaps" }
func (DetectKnowledgeGapsTool) Description() string { return "Flag user questions left without a following assistant reply as knowledge gaps." }
func (DetectKnowledgeGapsTool) InputSchema() *jsonschema.Schema { return GenerateSchema[DetectKnowledgeGapsInput]() }

func (t *DetectKnowledgeGapsTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in DetectKnowledgeGapsInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}
	messages, err := t.Messages.FindByConversationId(ctx, in.ConversationID, 10000, nil, nil)
	if err != nil {
		return nil, err
	}
	now := timeNowMs()
	for i, m := range messages {
		if m.Role != repositories.RoleUser || !strings.HasSuffix(strings.TrimSpace(m.Content), "?") {
			continue
		}
		answered := i+1 < len(messages) && messages[i+1].Role == repositories.RoleAssistant
		if answered {
			continue
		}
		topic := m.Content
		if len(topic) > 80 {
			topic = topic[:80]
		}
		if err := t.Gaps.Create(ctx, repositories.KnowledgeGap{
			ConversationID: in.ConversationID,
			Topic:          topic,
			Description:    "question received no assistant reply in this conversation",
			Severity:       "medium",
			Frequency:      1,
			DetectedAt:     now,
		}); err != nil {
			return nil, err
		}
	}
	return t.Gaps.FindByConversation(ctx, in.ConversationID)
}

// TrackDecisionEffectivenessTool records decisions and their later outcomes.
// Supplying decision/rationale creates a new record; supplying decisionId
// and effectivenessScore records an outcome on an existing one; supplying
// neither lists the conversation's tracked decisions.
type TrackDecisionEffectivenessTool struct {
	Decisions *repositories.DecisionTrackingRepository
}

type TrackDecisionEffectivenessInput struct {
	ConversationID      string   `json:"conversationId" jsonschema:"required"`
	DecisionID          *string  `json:"decisionId,omitempty"`
	Decision            *string  `json:"decision,omitempty"`
	Rationale           string   `json:"rationale,omitempty"`
	ProblemIdentifiedAt int64    `json:"problemIdentifiedAt,omitempty"`
	DecisionMadeAt      int64    `json:"decisionMadeAt,omitempty"`
	SourceMessageID     *string  `json:"sourceMessageId,omitempty"`
	OutcomeObservedAt   int64    `json:"outcomeObservedAt,omitempty"`
	EffectivenessScore  *float64 `json:"effectivenessScore,omitempty"`
}

func (TrackDecisionEffectivenessTool) Name() string        { return "track_decision_effectiveness" }
func (TrackDecisionEffectivenessTool) Description() string { return "Record a decision, record its later outcome, or list decisions tracked for a conversation." }
func (TrackDecisionEffectivenessTool) InputSchema() *jsonschema.Schema { return GenerateSchema[TrackDecisionEffectivenessInput]() }

func (t *TrackDecisionEffectivenessTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in TrackDecisionEffectivenessInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}

	switch {
	case in.DecisionID != nil && in.EffectivenessScore != nil:
		observedAt := in.OutcomeObservedAt
		if observedAt == 0 {
			observedAt = timeNowMs()
		}
		if err := t.Decisions.RecordOutcome(ctx, *in.DecisionID, observedAt, *in.EffectivenessScore); err != nil {
			return nil, err
		}
	case in.Decision != nil:
		madeAt := in.DecisionMadeAt
		if madeAt == 0 {
			madeAt = timeNowMs()
		}
		identifiedAt := in.ProblemIdentifiedAt
		if identifiedAt == 0 {
			identifiedAt = madeAt
		}
		if err := t.Decisions.Create(ctx, repositories.DecisionRecord{
			ConversationID:      in.ConversationID,
			Decision:            *in.Decision,
			Rationale:           in.Rationale,
			ProblemIdentifiedAt: identifiedAt,
			DecisionMadeAt:      madeAt,
			SourceMessageID:     in.SourceMessageID,
		}); err != nil {
			return nil, err
		}
	}
	return t.Decisions.FindByConversation(ctx, in.ConversationID)
}

// GenerateAnalyticsReportTool composes a conversation's rollup, productivity
// patterns, knowledge gaps and tracked decisions into one report.
type GenerateAnalyticsReportTool struct {
	Analytics *repositories.ConversationAnalyticsRepository
	Patterns  *repositories.ProductivityPatternRepository
	Gaps      *repositories.KnowledgeGapRepository
	Decisions *repositories.DecisionTrackingRepository
}

type GenerateAnalyticsReportInput struct {
	ConversationID string `json:"conversationId" jsonschema:"required"`
}

type AnalyticsReport struct {
	Analytics   repositories.ConversationAnalytics `json:"analytics"`
	Patterns    []repositories.ProductivityPattern `json:"patterns"`
	Gaps        []repositories.KnowledgeGap        `json:"gaps"`
	Decisions   []repositories.DecisionRecord      `json:"decisions"`
	GeneratedAt int64                              `json:"generatedAt"`
}

func (GenerateAnalyticsReportTool) Name() string        { return "generate_analytics_report" }
func (GenerateAnalyticsReportTool) Description() string { return "Compose a conversation's analytics, productivity patterns, knowledge gaps, and tracked decisions into one report." }
func (GenerateAnalyticsReportTool) InputSchema() *jsonschema.Schema { return GenerateSchema[GenerateAnalyticsReportInput]() }

func (t *GenerateAnalyticsReportTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in GenerateAnalyticsReportInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}
	report := AnalyticsReport{GeneratedAt: timeNowMs()}

	analytics, err := t.Analytics.FindByConversation(ctx, in.ConversationID)
	if err != nil && !cmerrors.Is(err, cmerrors.NotFound) {
		return nil, err
	}
	report.Analytics = analytics

	patterns, err := t.Patterns.FindByWindow(ctx, in.ConversationID, 0, timeNowMs())
	if err != nil {
		return nil, err
	}
	report.Patterns = patterns

	gaps, err := t.Gaps.FindByConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	report.Gaps = gaps

	decisions, err := t.Decisions.FindByConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	report.Decisions = decisions

	return report, nil
}

// GetProactiveInsightsTool surfaces the conversation's most actionable open
// items: unresolved knowledge gaps and detected productivity patterns,
// ranked by severity/confidence.
type GetProactiveInsightsTool struct {
	Gaps     *repositories.KnowledgeGapRepository
	Patterns *repositories.ProductivityPatternRepository
}

type GetProactiveInsightsInput struct {
	ConversationID string `json:"conversationId" jsonschema:"required"`
}

type Insight struct {
	Kind        string  `json:"kind"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

func (GetProactiveInsightsTool) Name() string        { return "get_proactive_insights" }
func (GetProactiveInsightsTool) Description() string { return "Surface a conversation's unresolved knowledge gaps and detected productivity patterns, ranked by weight." }
func (GetProactiveInsightsTool) InputSchema() *jsonschema.Schema { return GenerateSchema[GetProactiveInsightsInput]() }

func (t *GetProactiveInsightsTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in GetProactiveInsightsInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}
	gaps, err := t.Gaps.FindByConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	patterns, err := t.Patterns.FindByWindow(ctx, in.ConversationID, 0, timeNowMs())
	if err != nil {
		return nil, err
	}

	var insights []Insight
	for _, g := range gaps {
		if g.ResolutionDate != nil {
			continue
		}
		weight := float64(g.Frequency)
		if g.Severity == "high" {
			weight *= 2
		}
		insights = append(insights, Insight{Kind: "knowledge_gap", Description: g.Topic, Weight: weight})
	}
	for _, p := range patterns {
		insights = append(insights, Insight{Kind: p.PatternType, Description: p.Description, Weight: p.Confidence})
	}
	sort.SliceStable(insights, func(i, j int) bool { return insights[i].Weight > insights[j].Weight })
	return insights, nil
}

// CheckForConflictsTool flags decisions that were superseded without their
// predecessor ever recording an outcome, a signal the conversation reversed
// itself before learning whether the original choice worked.
type CheckForConflictsTool struct {
	Decisions *repositories.DecisionTrackingRepository
}

type CheckForConflictsInput struct {
	ConversationID string `json:"conversationId" jsonschema:"required"`
}

type Conflict struct {
	DecisionID   string `json:"decisionId"`
	SupersededBy string `json:"supersededBy"`
	Reason       string `json:"reason"`
}

func (CheckForConflictsTool) Name() string        { return "check_for_conflicts" }
func (CheckForConflictsTool) Description() string { return "Flag decisions that were reversed before their outcome was ever observed." }
func (CheckForConflictsTool) InputSchema() *jsonschema.Schema { return GenerateSchema[CheckForConflictsInput]() }

func (t *CheckForConflictsTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in CheckForConflictsInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}
	decisions, err := t.Decisions.FindByConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	var conflicts []Conflict
	for _, d := range decisions {
		if d.SupersededBy != nil && d.OutcomeObservedAt == nil {
			conflicts = append(conflicts, Conflict{
				DecisionID:   d.ID,
				SupersededBy: *d.SupersededBy,
				Reason:       "decision was superseded before its outcome was recorded",
			})
		}
	}
	return conflicts, nil
}

// SuggestRelevantContextTool is a hybrid-strategy convenience wrapper over
// the context assembler, biased toward entity-centric scoring when focus
// entities are supplied.
type SuggestRelevantContextTool struct{ Assembler *contextassembler.Assembler }

type SuggestRelevantContextInput struct {
	Query          string   `json:"query" jsonschema:"required"`
	ConversationID string   `json:"conversationId,omitempty"`
	FocusEntities  []string `json:"focusEntities,omitempty"`
	MaxTokens      int      `json:"maxTokens,omitempty"`
}

func (SuggestRelevantContextTool) Name() string        { return "suggest_relevant_context" }
func (SuggestRelevantContextTool) Description() string { return "Suggest relevant prior context for a query, weighting entity overlap when focus entities are given." }
func (SuggestRelevantContextTool) InputSchema() *jsonschema.Schema { return GenerateSchema[SuggestRelevantContextInput]() }

func (t *SuggestRelevantContextTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in SuggestRelevantContextInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}
	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	strategy := contextassembler.StrategyHybrid
	if len(in.FocusEntities) > 0 {
		strategy = contextassembler.StrategyEntityCentric
	}
	var convIDs []string
	if in.ConversationID != "" {
		convIDs = []string{in.ConversationID}
	}
	return t.Assembler.Assemble(ctx, contextassembler.Options{
		Query:           in.Query,
		MaxTokens:       maxTokens,
		Strategy:        strategy,
		ConversationIDs: convIDs,
		FocusEntities:   in.FocusEntities,
	})
}

// AutoTagConversationTool extracts entities across a conversation's messages
// and stores the most frequently mentioned as tags in conversation metadata.
type AutoTagConversationTool struct {
	Conversations *repositories.ConversationRepository
	Messages      *repositories.MessageRepository
}

type AutoTagConversationInput struct {
	ConversationID string `json:"conversationId" jsonschema:"required"`
	MaxTags        int    `json:"maxTags,omitempty"`
}

func (AutoTagConversationTool) Name() string        { return "auto_tag_conversation" }
func (AutoTagConversationTool) Description() string { return "Extract the most frequently mentioned entities across a conversation and store them as tags." }
func (AutoTagConversationTool) InputSchema() *jsonschema.Schema { return GenerateSchema[AutoTagConversationInput]() }

func (t *AutoTagConversationTool) Run(ctx context.Context, raw json.RawMessage) (any, error) {
	var in AutoTagConversationInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, cmerrors.Validationf("input", "%v", err)
	}
	maxTags := in.MaxTags
	if maxTags <= 0 {
		maxTags = 10
	}

	messages, err := t.Messages.FindByConversationId(ctx, in.ConversationID, 10000, nil, nil)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, m := range messages {
		for _, e := range extractor.Extract(m.Content, extractor.DefaultOptions) {
			counts[e.NormalizedText]++
		}
	}
	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	sort.SliceStable(tags, func(i, j int) bool { return counts[tags[i]] > counts[tags[j]] })
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}

	metadata, err := json.Marshal(map[string]any{"tags": tags})
	if err != nil {
		return nil, cmerrors.Wrap(cmerrors.Internal, err, "failed to marshal tags")
	}
	if err := t.Conversations.UpdateMetadata(ctx, in.ConversationID, nil, metadata, timeNowMs()); err != nil {
		return nil, err
	}
	return map[string]any{"conversationId": in.ConversationID, "tags": tags}, nil
}
