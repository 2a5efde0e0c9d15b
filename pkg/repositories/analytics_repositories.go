package repositories

import (
	"context"

	convomemdb "github.com/convomem/convomem/pkg/db"
	cmerrors "github.com/convomem/convomem/pkg/errors"
	"github.com/google/uuid"
)

// ConversationAnalyticsRepository provides CRUD and windowed queries over
// conversation_analytics, the per-conversation rollup table.
type ConversationAnalyticsRepository struct{ store *convomemdb.Store }

// NewConversationAnalyticsRepository binds a repository to a store.
func NewConversationAnalyticsRepository(store *convomemdb.Store) *ConversationAnalyticsRepository {
	return &ConversationAnalyticsRepository{store: store}
}

// Upsert replaces the analytics row for a conversation (one row per
// conversation, per the table's UNIQUE constraint).
func (r *ConversationAnalyticsRepository) Upsert(ctx context.Context, a ConversationAnalytics) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := r.store.Exec(ctx, `
		INSERT INTO conversation_analytics (id, conversation_id, message_count, total_tokens, entity_count, avg_response_latency_ms, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			message_count = excluded.message_count,
			total_tokens = excluded.total_tokens,
			entity_count = excluded.entity_count,
			avg_response_latency_ms = excluded.avg_response_latency_ms,
			computed_at = excluded.computed_at
	`, a.ID, a.ConversationID, a.MessageCount, a.TotalTokens, a.EntityCount, a.AvgResponseLatencyMs, a.ComputedAt)
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to upsert conversation analytics")
	}
	return nil
}

// FindByConversation loads the analytics row for a conversation.
func (r *ConversationAnalyticsRepository) FindByConversation(ctx context.Context, conversationID string) (ConversationAnalytics, error) {
	var a ConversationAnalytics
	rows, err := r.store.Query(ctx, `
		SELECT id, conversation_id, message_count, total_tokens, entity_count, avg_response_latency_ms, computed_at
		FROM conversation_analytics WHERE conversation_id = ?
	`, conversationID)
	if err != nil {
		return a, err
	}
	defer rows.Close()
	if !rows.Next() {
		return a, cmerrors.NotFoundf("conversation_analytics", conversationID)
	}
	if err := rows.StructScan(&a); err != nil {
		return a, cmerrors.Wrap(cmerrors.Internal, err, "failed to scan conversation analytics")
	}
	return a, nil
}

// ProductivityPatternRepository provides CRUD and windowed queries over
// productivity_patterns.
type ProductivityPatternRepository struct{ store *convomemdb.Store }

// NewProductivityPatternRepository binds a repository to a store.
func NewProductivityPatternRepository(store *convomemdb.Store) *ProductivityPatternRepository {
	return &ProductivityPatternRepository{store: store}
}

// Create inserts a detected productivity pattern.
func (r *ProductivityPatternRepository) Create(ctx context.Context, p ProductivityPattern) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := r.store.Exec(ctx, `
		INSERT INTO productivity_patterns (id, conversation_id, pattern_type, description, confidence, window_start, window_end, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.ConversationID, p.PatternType, p.Description, p.Confidence, p.WindowStart, p.WindowEnd, p.DetectedAt)
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to create productivity pattern")
	}
	return nil
}

// FindByWindow returns patterns for a conversation whose window overlaps [start,end].
func (r *ProductivityPatternRepository) FindByWindow(ctx context.Context, conversationID string, start, end int64) ([]ProductivityPattern, error) {
	rows, err := r.store.Query(ctx, `
		SELECT id, conversation_id, pattern_type, description, confidence, window_start, window_end, detected_at
		FROM productivity_patterns
		WHERE conversation_id = ? AND window_start <= ? AND window_end >= ?
		ORDER BY detected_at DESC
	`, conversationID, end, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProductivityPattern
	for rows.Next() {
		var p ProductivityPattern
		if err := rows.StructScan(&p); err != nil {
			return nil, cmerrors.Wrap(cmerrors.Internal, err, "failed to scan productivity pattern")
		}
		out = append(out, p)
	}
	return out, nil
}

// KnowledgeGapRepository provides CRUD over knowledge_gaps.
type KnowledgeGapRepository struct{ store *convomemdb.Store }

// NewKnowledgeGapRepository binds a repository to a store.
func NewKnowledgeGapRepository(store *convomemdb.Store) *KnowledgeGapRepository {
	return &KnowledgeGapRepository{store: store}
}

// Create inserts a detected knowledge gap.
func (r *KnowledgeGapRepository) Create(ctx context.Context, g KnowledgeGap) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Frequency <= 0 {
		return cmerrors.Validationf("frequency", "must be > 0")
	}
	_, err := r.store.Exec(ctx, `
		INSERT INTO knowledge_gaps (id, conversation_id, topic, description, severity, frequency, detected_at, resolution_date, resolution_conversation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, g.ID, g.ConversationID, g.Topic, g.Description, g.Severity, g.Frequency, g.DetectedAt, g.ResolutionDate, g.ResolutionConversationID)
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to create knowledge gap")
	}
	return nil
}

// Resolve records a resolution for a previously detected gap.
func (r *KnowledgeGapRepository) Resolve(ctx context.Context, id string, resolvedAt int64, conversationID string) error {
	res, err := r.store.Exec(ctx, `
		UPDATE knowledge_gaps SET resolution_date = ?, resolution_conversation_id = ? WHERE id = ?
	`, resolvedAt, conversationID, id)
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to resolve knowledge gap")
	}
	return requireRowsAffected(res, "knowledge_gap", id)
}

// FindByConversation returns every gap recorded for a conversation.
func (r *KnowledgeGapRepository) FindByConversation(ctx context.Context, conversationID string) ([]KnowledgeGap, error) {
	rows, err := r.store.Query(ctx, `
		SELECT id, conversation_id, topic, description, severity, frequency, detected_at, resolution_date, resolution_conversation_id
		FROM knowledge_gaps WHERE conversation_id = ? ORDER BY detected_at DESC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KnowledgeGap
	for rows.Next() {
		var g KnowledgeGap
		if err := rows.StructScan(&g); err != nil {
			return nil, cmerrors.Wrap(cmerrors.Internal, err, "failed to scan knowledge gap")
		}
		out = append(out, g)
	}
	return out, nil
}

// SearchMetric is the row shape of the search_metrics table, written once
// per SearchEngine.Search call for observability into strategy performance
// and fallback frequency.
type SearchMetric struct {
	ID             string  `db:"id"`
	Strategy       string  `db:"strategy"`
	QueryLength    int     `db:"query_length"`
	ResultCount    int     `db:"result_count"`
	LatencyMs      float64 `db:"latency_ms"`
	FallbackUsed   bool    `db:"fallback_used"`
	FallbackReason string  `db:"fallback_reason"`
	RecordedAt     int64   `db:"recorded_at"`
}

// SearchMetricsRepository records SearchEngine call outcomes.
type SearchMetricsRepository struct{ store *convomemdb.Store }

// NewSearchMetricsRepository binds a repository to a store.
func NewSearchMetricsRepository(store *convomemdb.Store) *SearchMetricsRepository {
	return &SearchMetricsRepository{store: store}
}

// Record inserts one SearchMetric row.
func (r *SearchMetricsRepository) Record(ctx context.Context, m SearchMetric) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := r.store.Exec(ctx, `
		INSERT INTO search_metrics (id, strategy, query_length, result_count, latency_ms, fallback_used, fallback_reason, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Strategy, m.QueryLength, m.ResultCount, m.LatencyMs, boolToInt(m.FallbackUsed), m.FallbackReason, m.RecordedAt)
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to record search metric")
	}
	return nil
}

// DecisionTrackingRepository provides CRUD over decision_tracking.
type DecisionTrackingRepository struct{ store *convomemdb.Store }

// NewDecisionTrackingRepository binds a repository to a store.
func NewDecisionTrackingRepository(store *convomemdb.Store) *DecisionTrackingRepository {
	return &DecisionTrackingRepository{store: store}
}

// Create inserts a decision record. problemIdentifiedAt <= decisionMadeAt is
// enforced by a table CHECK constraint; Create surfaces a clean Validation
// error instead of a raw constraint-violation message.
func (r *DecisionTrackingRepository) Create(ctx context.Context, d DecisionRecord) error {
	if d.ProblemIdentifiedAt > d.DecisionMadeAt {
		return cmerrors.Validationf("decisionMadeAt", "must be >= problemIdentifiedAt")
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err := r.store.Exec(ctx, `
		INSERT INTO decision_tracking (
			id, conversation_id, decision, rationale, problem_identified_at, options_considered_at,
			decision_made_at, implemented_at, outcome_observed_at, effectiveness_score, source_message_id, superseded_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.ConversationID, d.Decision, d.Rationale, d.ProblemIdentifiedAt, d.OptionsConsideredAt,
		d.DecisionMadeAt, d.ImplementedAt, d.OutcomeObservedAt, d.EffectivenessScore, d.SourceMessageID, d.SupersededBy)
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to create decision record")
	}
	return nil
}

// RecordOutcome sets the outcome-observed timestamp and effectiveness score
// for a previously tracked decision.
func (r *DecisionTrackingRepository) RecordOutcome(ctx context.Context, id string, observedAt int64, score float64) error {
	res, err := r.store.Exec(ctx, `
		UPDATE decision_tracking SET outcome_observed_at = ?, effectiveness_score = ? WHERE id = ?
	`, observedAt, score, id)
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to record decision outcome")
	}
	return requireRowsAffected(res, "decision_tracking", id)
}

// FindByConversation returns decisions for a conversation in the order made.
func (r *DecisionTrackingRepository) FindByConversation(ctx context.Context, conversationID string) ([]DecisionRecord, error) {
	rows, err := r.store.Query(ctx, `
		SELECT id, conversation_id, decision, rationale, problem_identified_at, options_considered_at,
		       decision_made_at, implemented_at, outcome_observed_at, effectiveness_score, source_message_id, superseded_by
		FROM decision_tracking WHERE conversation_id = ? ORDER BY decision_made_at ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var d DecisionRecord
		if err := rows.StructScan(&d); err != nil {
			return nil, cmerrors.Wrap(cmerrors.Internal, err, "failed to scan decision record")
		}
		out = append(out, d)
	}
	return out, nil
}
