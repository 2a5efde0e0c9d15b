package repositories

import (
	"context"
	"encoding/json"

	"github.com/convomem/convomem/pkg/cache"
	convomemdb "github.com/convomem/convomem/pkg/db"
	cmerrors "github.com/convomem/convomem/pkg/errors"
	"github.com/google/uuid"
)

// KnowledgeGraphRepository provides upsert and traversal over
// entity_relationships. The graph is represented as two tables, queried via
// explicit BFS with a visited set, never as owning in-memory pointers
// (relationships are many-to-many and naturally cyclic).
type KnowledgeGraphRepository struct {
	store *convomemdb.Store
	cache cache.Cache
}

// NewKnowledgeGraphRepository binds a repository to a store and the shared
// query cache.
func NewKnowledgeGraphRepository(store *convomemdb.Store, c cache.Cache) *KnowledgeGraphRepository {
	return &KnowledgeGraphRepository{store: store, cache: c}
}

// UpsertRelationship merges by (source, target, type): on conflict it takes
// the max of strength, adds 1 to mention_count (and folds the confidence
// into a running-average semantic_weight) only when the incoming context
// ids include one not yet recorded, unions contextMessageIds, and
// advances lastMentionedAt, exactly the accrual rule KnowledgeGraphService
// relies on for idempotent ingestion.
func (r *KnowledgeGraphRepository) UpsertRelationship(ctx context.Context, rel EntityRelationship) error {
	if rel.SourceEntityID == rel.TargetEntityID {
		return cmerrors.Validationf("targetEntityId", "must differ from sourceEntityId")
	}
	if rel.ID == "" {
		rel.ID = uuid.NewString()
	}
	if len(rel.ContextMessageIDs) == 0 {
		rel.ContextMessageIDs = json.RawMessage(`[]`)
	}

	existing, err := r.findByTriple(ctx, rel.SourceEntityID, rel.TargetEntityID, rel.RelationshipType)
	if err != nil && !cmerrors.Is(err, cmerrors.NotFound) {
		return err
	}
	if err == nil {
		merged, newIDs, mergeErr := mergeContextIDs(existing.ContextMessageIDs, rel.ContextMessageIDs)
		if mergeErr != nil {
			return cmerrors.Wrap(cmerrors.Internal, mergeErr, "failed to merge relationship context ids")
		}
		strength := rel.Strength
		if existing.Strength > strength {
			strength = existing.Strength
		}
		// Reprocessing a message already recorded against this relationship
		// contributes no new context ids; skip the mention_count bump so a
		// message processed twice cannot double-count it.
		mentionDelta := 0
		semanticWeight := existing.SemanticWeight
		if newIDs {
			mentionDelta = 1
			// Running average of every contributing detection's confidence,
			// weighted by how many detections have landed so far, so one
			// outlier (high or low) can't dominate the weight the way
			// last-write-wins would.
			oldCount := float64(existing.MentionCount)
			semanticWeight = (existing.SemanticWeight*oldCount + rel.SemanticWeight) / (oldCount + 1)
		}
		_, err = r.store.Exec(ctx, `
			UPDATE entity_relationships
			SET strength = ?, semantic_weight = ?, mention_count = mention_count + ?,
			    context_message_ids = ?, last_mentioned_at = MAX(last_mentioned_at, ?)
			WHERE id = ?
		`, strength, semanticWeight, mentionDelta, merged, rel.LastMentionedAt, existing.ID)
		if err != nil {
			return cmerrors.Wrap(cmerrors.Internal, err, "failed to update entity relationship")
		}
	} else {
		_, err = r.store.Exec(ctx, `
			INSERT INTO entity_relationships (
				id, source_entity_id, target_entity_id, relationship_type, strength, semantic_weight,
				mention_count, context_message_ids, first_mentioned_at, last_mentioned_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rel.ID, rel.SourceEntityID, rel.TargetEntityID, string(rel.RelationshipType), rel.Strength, rel.SemanticWeight,
			rel.MentionCount, string(rel.ContextMessageIDs), rel.FirstMentionedAt, rel.LastMentionedAt)
		if err != nil {
			return cmerrors.Wrap(cmerrors.Internal, err, "failed to create entity relationship")
		}
	}

	if r.cache != nil {
		r.cache.Invalidate("relationships")
	}
	return nil
}

func (r *KnowledgeGraphRepository) findByTriple(ctx context.Context, source, target string, typ RelationshipType) (EntityRelationship, error) {
	var rel EntityRelationship
	rows, err := r.store.Query(ctx, `
		SELECT id, source_entity_id, target_entity_id, relationship_type, strength, semantic_weight,
		       mention_count, context_message_ids, first_mentioned_at, last_mentioned_at
		FROM entity_relationships
		WHERE source_entity_id = ? AND target_entity_id = ? AND relationship_type = ?
	`, source, target, string(typ))
	if err != nil {
		return rel, err
	}
	defer rows.Close()

	if !rows.Next() {
		return rel, cmerrors.NotFoundf("entity_relationship", source+"->"+target+":"+string(typ))
	}
	if err := rows.StructScan(&rel); err != nil {
		return rel, cmerrors.Wrap(cmerrors.Internal, err, "failed to scan entity relationship")
	}
	return rel, nil
}

// mergeContextIDs unions a (existing) and b (incoming) preserving order, and
// reports whether b contributed any id not already present in a.
func mergeContextIDs(a, b json.RawMessage) (merged string, grewBy bool, err error) {
	var existing, incoming []string
	if len(a) > 0 {
		if err := json.Unmarshal(a, &existing); err != nil {
			return "", false, err
		}
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &incoming); err != nil {
			return "", false, err
		}
	}
	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	for _, id := range incoming {
		if _, ok := seen[id]; !ok {
			existing = append(existing, id)
			seen[id] = struct{}{}
			grewBy = true
		}
	}
	out, err := json.Marshal(existing)
	if err != nil {
		return "", false, err
	}
	return string(out), grewBy, nil
}

// GetNeighbors returns outgoing relationships from entityId with strength
// at least minStrength, strongest first, capped at limit.
func (r *KnowledgeGraphRepository) GetNeighbors(ctx context.Context, entityID string, minStrength float64, limit int) ([]EntityRelationship, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.store.Query(ctx, `
		SELECT id, source_entity_id, target_entity_id, relationship_type, strength, semantic_weight,
		       mention_count, context_message_ids, first_mentioned_at, last_mentioned_at
		FROM entity_relationships
		WHERE source_entity_id = ? AND strength >= ?
		ORDER BY strength DESC
		LIMIT ?
	`, entityID, minStrength, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EntityRelationship
	for rows.Next() {
		var rel EntityRelationship
		if err := rows.StructScan(&rel); err != nil {
			return nil, cmerrors.Wrap(cmerrors.Internal, err, "failed to scan entity relationship")
		}
		out = append(out, rel)
	}
	return out, nil
}

// Path is one depth-bounded walk Traverse discovered, entity ids only (the
// design note in spec.md §9 calls for passing ids, not references, since
// the graph is cyclic).
type Path struct {
	EntityIDs []string
	Strength  float64 // the weakest edge strength along the path
}

// Traverse performs a depth-bounded breadth-first walk from entityID,
// following edges with strength >= minStrength, and returns every distinct
// path found. A per-traversal visited set prevents any path from revisiting
// an entity, so cycles in the underlying graph cannot produce infinite or
// duplicated paths.
func (r *KnowledgeGraphRepository) Traverse(ctx context.Context, entityID string, maxDepth int, minStrength float64) ([]Path, error) {
	if maxDepth < 0 {
		return nil, cmerrors.Validationf("maxDepth", "must be >= 0")
	}

	type frontierEntry struct {
		path     []string
		visited  map[string]struct{}
		strength float64
	}

	start := frontierEntry{path: []string{entityID}, visited: map[string]struct{}{entityID: {}}, strength: 1.0}
	frontier := []frontierEntry{start}
	var results []Path

	for depth := 0; depth < maxDepth; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, cmerrors.Wrap(cmerrors.Cancelled, err, "traversal cancelled")
		}
		var next []frontierEntry
		for _, fe := range frontier {
			head := fe.path[len(fe.path)-1]
			neighbors, err := r.GetNeighbors(ctx, head, minStrength, 100)
			if err != nil {
				return nil, err
			}
			for _, nb := range neighbors {
				if _, seen := fe.visited[nb.TargetEntityID]; seen {
					continue
				}
				childStrength := nb.Strength
				if fe.strength < childStrength {
					childStrength = fe.strength
				}
				childVisited := make(map[string]struct{}, len(fe.visited)+1)
				for k := range fe.visited {
					childVisited[k] = struct{}{}
				}
				childVisited[nb.TargetEntityID] = struct{}{}
				childPath := append(append([]string{}, fe.path...), nb.TargetEntityID)

				results = append(results, Path{EntityIDs: childPath, Strength: childStrength})
				next = append(next, frontierEntry{path: childPath, visited: childVisited, strength: childStrength})
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	return results, nil
}
