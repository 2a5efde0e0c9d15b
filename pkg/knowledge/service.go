// Package knowledge orchestrates entity extraction, relationship detection,
// and graph persistence: KnowledgeGraphService per spec.md §4.K.
package knowledge

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/convomem/convomem/pkg/knowledge/extractor"
	"github.com/convomem/convomem/pkg/knowledge/relationships"
	"github.com/convomem/convomem/pkg/repositories"
)

// Service wires EntityExtractor and RelationshipDetector to the entity and
// knowledge-graph repositories, subscribing to MessageRepository.OnCreate.
type Service struct {
	entities  *repositories.EntityRepository
	graph     *repositories.KnowledgeGraphRepository
	messages  *repositories.MessageRepository
	extractOp extractor.Options
	detectOp  relationships.Options
}

// New builds a Service with spec.md's default extraction/detection options.
func New(entities *repositories.EntityRepository, graph *repositories.KnowledgeGraphRepository, messages *repositories.MessageRepository) *Service {
	return &Service{
		entities:  entities,
		graph:     graph,
		messages:  messages,
		extractOp: extractor.DefaultOptions,
		detectOp:  relationships.DefaultOptions,
	}
}

// TimeRange bounds an EntityHistory query; UntilMs <= 0 means no upper bound.
type TimeRange struct {
	SinceMs int64
	UntilMs int64
}

// EntityHistoryEntry is one mention of an entity, resolved to its message
// and conversation.
type EntityHistoryEntry struct {
	Mention        repositories.EntityMention
	ConversationID string
	Content        string
	CreatedAt      int64
}

// EntityHistory resolves entityNameOrID (tried as an id first, falling back
// to a normalized-name lookup scoped to typ) and returns every mention
// within timeRange, most recent first.
func (s *Service) EntityHistory(ctx context.Context, entityNameOrID string, typ repositories.EntityType, timeRange TimeRange) (repositories.Entity, []EntityHistoryEntry, error) {
	entity, err := s.entities.FindById(ctx, entityNameOrID)
	if err != nil {
		entity, err = s.entities.FindByName(ctx, strings.ToLower(strings.TrimSpace(entityNameOrID)), typ)
		if err != nil {
			return repositories.Entity{}, nil, err
		}
	}

	mentions, err := s.entities.MentionsForEntity(ctx, entity.ID, timeRange.SinceMs, timeRange.UntilMs)
	if err != nil {
		return entity, nil, err
	}

	out := make([]EntityHistoryEntry, 0, len(mentions))
	for _, m := range mentions {
		msg, err := s.messages.FindByID(ctx, m.MessageID)
		if err != nil {
			continue
		}
		out = append(out, EntityHistoryEntry{
			Mention:        m,
			ConversationID: msg.ConversationID,
			Content:        msg.Content,
			CreatedAt:      msg.CreatedAt,
		})
	}
	return entity, out, nil
}

// RelatedConversation is one conversation scored by how many of the given
// entities it mentions.
type RelatedConversation struct {
	ConversationID string
	MatchCount     int
	LastMentioned  int64
}

// FindRelatedConversations returns the k conversations with the most
// mentions across entityIDs, ties broken by most recent mention.
func (s *Service) FindRelatedConversations(ctx context.Context, entityIDs []string, k int) ([]RelatedConversation, error) {
	byConversation := make(map[string]*RelatedConversation)
	for _, id := range entityIDs {
		mentions, err := s.entities.MentionsForEntity(ctx, id, 0, 0)
		if err != nil {
			return nil, err
		}
		for _, m := range mentions {
			msg, err := s.messages.FindByID(ctx, m.MessageID)
			if err != nil {
				continue
			}
			rc, ok := byConversation[msg.ConversationID]
			if !ok {
				rc = &RelatedConversation{ConversationID: msg.ConversationID}
				byConversation[msg.ConversationID] = rc
			}
			rc.MatchCount++
			if msg.CreatedAt > rc.LastMentioned {
				rc.LastMentioned = msg.CreatedAt
			}
		}
	}

	out := make([]RelatedConversation, 0, len(byConversation))
	for _, rc := range byConversation {
		out = append(out, *rc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MatchCount != out[j].MatchCount {
			return out[i].MatchCount > out[j].MatchCount
		}
		return out[i].LastMentioned > out[j].LastMentioned
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Traverse delegates to KnowledgeGraphRepository.Traverse.
func (s *Service) Traverse(ctx context.Context, entityID string, maxDepth int, minStrength float64) ([]repositories.Path, error) {
	return s.graph.Traverse(ctx, entityID, maxDepth, minStrength)
}

// OnMessageCreated runs the full extraction → persistence pipeline for one
// message. It is registered as MessageRepository.OnCreate so ingestion stays
// decoupled from the repository layer. Idempotency per messageId rests on
// EntityRepository.CreateMention's INSERT OR IGNORE (no double mention) and
// KnowledgeGraphRepository.UpsertRelationship's new-context-id check (no
// double mention_count), so calling this twice for the same message is safe.
func (s *Service) OnMessageCreated(ctx context.Context, m repositories.Message) {
	_ = s.Process(ctx, m)
}

// OnMessageDeleted runs the mention/entity garbage collection a single
// message's own delete requires. It is registered as
// MessageRepository.OnDelete; best-effort like OnMessageCreated, since a
// failed GC pass shouldn't block the delete that triggered it.
func (s *Service) OnMessageDeleted(ctx context.Context, messageID string) {
	_ = s.entities.GCMentionsForMessage(ctx, messageID)
}

// Process runs extraction and relationship detection on m.Content and
// persists the result, returning the first error encountered (processing
// continues best-effort past per-entity failures so one bad span doesn't
// block the whole message).
func (s *Service) Process(ctx context.Context, m repositories.Message) error {
	extracted := extractor.Extract(m.Content, s.extractOp)
	if len(extracted) == 0 {
		return nil
	}

	entityIDs := make(map[string]string, len(extracted)) // normalizedText -> entity id
	var firstErr error
	for _, e := range extracted {
		id, err := s.entities.UpsertByNormalized(ctx, e.Text, e.NormalizedText, e.Type, e.Confidence, m.CreatedAt)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		entityIDs[e.NormalizedText] = id

		if err := s.entities.CreateMention(ctx, repositories.EntityMention{
			EntityID:    id,
			MessageID:   m.ID,
			StartOffset: e.StartPos,
			EndOffset:   e.EndPos,
			Method:      e.Method,
			Confidence:  e.Confidence,
		}); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	detected := relationships.Detect(extracted, m.Content, m.ID, s.detectOp)
	for _, d := range detected {
		sourceID, sourceOK := entityIDs[d.Source.NormalizedText]
		targetID, targetOK := entityIDs[d.Target.NormalizedText]
		if !sourceOK || !targetOK {
			continue
		}
		contextIDs, err := json.Marshal(d.ContextMessageIDs)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := s.graph.UpsertRelationship(ctx, repositories.EntityRelationship{
			SourceEntityID:    sourceID,
			TargetEntityID:    targetID,
			RelationshipType:  d.Type,
			Strength:          d.Confidence,
			SemanticWeight:    d.Confidence,
			MentionCount:      1,
			ContextMessageIDs: contextIDs,
			FirstMentionedAt:  m.CreatedAt,
			LastMentionedAt:   m.CreatedAt,
		}); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
