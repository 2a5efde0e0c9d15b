// Package repositories provides typed CRUD and domain-query access to the
// tables db.Store's migrations create. Each repository owns one table
// family, translates rows to/from the structs in this file, and maps
// sql.ErrNoRows and constraint violations to the cmerrors taxonomy.
package repositories

import "encoding/json"

// Conversation is the row shape of the conversations table.
type Conversation struct {
	ID        string          `db:"id"`
	CreatedAt int64           `db:"created_at"`
	UpdatedAt int64           `db:"updated_at"`
	Title     *string         `db:"title"`
	Metadata  json.RawMessage `db:"metadata"`
	DeletedAt *int64          `db:"deleted_at"`
}

// Role enumerates the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is the row shape of the messages table.
type Message struct {
	ID              string          `db:"id"`
	ConversationID  string          `db:"conversation_id"`
	Role            Role            `db:"role"`
	Content         string          `db:"content"`
	CreatedAt       int64           `db:"created_at"`
	ParentMessageID *string         `db:"parent_message_id"`
	Metadata        json.RawMessage `db:"metadata"`
	Embedding       []byte          `db:"embedding"`
}

// SummaryLevel enumerates the granularity of a ConversationSummary.
type SummaryLevel string

const (
	SummaryBrief    SummaryLevel = "brief"
	SummaryStandard SummaryLevel = "standard"
	SummaryDetailed SummaryLevel = "detailed"
	SummaryFull     SummaryLevel = "full"
)

// ConversationSummary is the row shape of the conversation_summaries table.
type ConversationSummary struct {
	ID              string       `db:"id"`
	ConversationID  string       `db:"conversation_id"`
	Level           SummaryLevel `db:"level"`
	Text            string       `db:"text"`
	TokenCount      int          `db:"token_count"`
	Provider        string       `db:"provider"`
	Model           string       `db:"model"`
	GeneratedAt     int64        `db:"generated_at"`
	MessageCount    int          `db:"message_count"`
	StartMessageID  *string      `db:"start_message_id"`
	EndMessageID    *string      `db:"end_message_id"`
}

// EntityType enumerates the kind of thing an Entity names.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityProduct      EntityType = "product"
	EntityTechnical    EntityType = "technical"
	EntityLocation     EntityType = "location"
	EntityConcept      EntityType = "concept"
	EntityEvent        EntityType = "event"
	EntityDecision     EntityType = "decision"
)

// Entity is the row shape of the entities table.
type Entity struct {
	ID              string          `db:"id"`
	Name            string          `db:"name"`
	NormalizedName  string          `db:"normalized_name"`
	Type            EntityType      `db:"type"`
	ConfidenceScore float64         `db:"confidence_score"`
	MentionCount    int             `db:"mention_count"`
	FirstSeenAt     int64           `db:"first_seen_at"`
	LastMentionedAt int64           `db:"last_mentioned_at"`
	Metadata        json.RawMessage `db:"metadata"`
}

// MentionMethod enumerates how an EntityMention was produced.
type MentionMethod string

const (
	MentionPattern    MentionMethod = "pattern"
	MentionStatistical MentionMethod = "statistical"
	MentionManual     MentionMethod = "manual"
)

// EntityMention is the row shape of the entity_mentions table.
type EntityMention struct {
	ID          string        `db:"id"`
	EntityID    string        `db:"entity_id"`
	MessageID   string        `db:"message_id"`
	StartOffset int           `db:"start_offset"`
	EndOffset   int           `db:"end_offset"`
	Method      MentionMethod `db:"method"`
	Confidence  float64       `db:"confidence"`
}

// RelationshipType enumerates the semantic link an EntityRelationship carries.
type RelationshipType string

const (
	RelWorksFor         RelationshipType = "works_for"
	RelCreatedBy        RelationshipType = "created_by"
	RelDiscussedWith    RelationshipType = "discussed_with"
	RelPartOf           RelationshipType = "part_of"
	RelRelatedTo        RelationshipType = "related_to"
	RelMentionedWith    RelationshipType = "mentioned_with"
	RelTemporalSequence RelationshipType = "temporal_sequence"
	RelCauseEffect      RelationshipType = "cause_effect"
)

// EntityRelationship is the row shape of the entity_relationships table.
// ContextMessageIDs is stored as a JSON array preserving insertion order.
type EntityRelationship struct {
	ID                string           `db:"id"`
	SourceEntityID    string           `db:"source_entity_id"`
	TargetEntityID    string           `db:"target_entity_id"`
	RelationshipType  RelationshipType `db:"relationship_type"`
	Strength          float64          `db:"strength"`
	SemanticWeight    float64          `db:"semantic_weight"`
	MentionCount      int              `db:"mention_count"`
	ContextMessageIDs json.RawMessage  `db:"context_message_ids"`
	FirstMentionedAt  int64            `db:"first_mentioned_at"`
	LastMentionedAt   int64            `db:"last_mentioned_at"`
}

// ProviderKind distinguishes in-process from networked providers.
type ProviderKind string

const (
	ProviderLocal    ProviderKind = "local"
	ProviderExternal ProviderKind = "external"
)

// ProviderConfig is the row shape of the llm_providers table.
type ProviderConfig struct {
	ID              string          `db:"id"`
	Name            string          `db:"name"`
	Kind            ProviderKind    `db:"kind"`
	Endpoint        *string         `db:"endpoint"`
	APIKeyEnv       *string         `db:"api_key_env"`
	ModelName       string          `db:"model_name"`
	MaxTokens       int             `db:"max_tokens"`
	Temperature     float64         `db:"temperature"`
	IsActive        bool            `db:"is_active"`
	Priority        int             `db:"priority"`
	CostPer1kTokens float64         `db:"cost_per_1k_tokens"`
	Metadata        json.RawMessage `db:"metadata"`
}

// ConversationAnalytics is the row shape of the conversation_analytics table.
type ConversationAnalytics struct {
	ID                   string  `db:"id"`
	ConversationID       string  `db:"conversation_id"`
	MessageCount         int     `db:"message_count"`
	TotalTokens          int     `db:"total_tokens"`
	EntityCount          int     `db:"entity_count"`
	AvgResponseLatencyMs float64 `db:"avg_response_latency_ms"`
	ComputedAt           int64   `db:"computed_at"`
}

// ProductivityPattern is the row shape of the productivity_patterns table.
type ProductivityPattern struct {
	ID             string  `db:"id"`
	ConversationID string  `db:"conversation_id"`
	PatternType    string  `db:"pattern_type"`
	Description    string  `db:"description"`
	Confidence     float64 `db:"confidence"`
	WindowStart    int64   `db:"window_start"`
	WindowEnd      int64   `db:"window_end"`
	DetectedAt     int64   `db:"detected_at"`
}

// KnowledgeGap is the row shape of the knowledge_gaps table.
type KnowledgeGap struct {
	ID                       string  `db:"id"`
	ConversationID           string  `db:"conversation_id"`
	Topic                    string  `db:"topic"`
	Description              string  `db:"description"`
	Severity                 string  `db:"severity"`
	Frequency                int     `db:"frequency"`
	DetectedAt               int64   `db:"detected_at"`
	ResolutionDate           *int64  `db:"resolution_date"`
	ResolutionConversationID *string `db:"resolution_conversation_id"`
}

// DecisionRecord is the row shape of the decision_tracking table.
type DecisionRecord struct {
	ID                   string   `db:"id"`
	ConversationID       string   `db:"conversation_id"`
	Decision             string   `db:"decision"`
	Rationale            string   `db:"rationale"`
	ProblemIdentifiedAt  int64    `db:"problem_identified_at"`
	OptionsConsideredAt  *int64   `db:"options_considered_at"`
	DecisionMadeAt       int64    `db:"decision_made_at"`
	ImplementedAt        *int64   `db:"implemented_at"`
	OutcomeObservedAt    *int64   `db:"outcome_observed_at"`
	EffectivenessScore   *float64 `db:"effectiveness_score"`
	SourceMessageID      *string  `db:"source_message_id"`
	SupersededBy         *string  `db:"superseded_by"`
}

// Paginated wraps a page of results with the cursor/offset the caller used
// to produce it.
type Paginated[T any] struct {
	Items      []T
	Total      int
	Limit      int
	Offset     int
}
