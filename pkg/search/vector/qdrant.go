package vector

import (
	"context"

	cmerrors "github.com/convomem/convomem/pkg/errors"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadIDField stores the caller-supplied id in the point payload: qdrant
// only accepts UUIDs or positive integers as point ids, and convomem's ids
// are opaque UUID-shaped strings that don't always parse as qdrant UUIDs.
const payloadIDField = "_original_id"

// Qdrant is a VectorIndex backed by a remote Qdrant collection.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	dimension  int
	available  bool
}

// QdrantOptions configure the collection Qdrant connects to.
type QdrantOptions struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  int
}

// NewQdrant connects to a Qdrant instance and ensures the target collection
// exists with cosine distance. If the connection or collection-creation
// fails, it returns a non-nil error; app.Build then falls back to InMemory
// rather than failing startup.
func NewQdrant(ctx context.Context, opts QdrantOptions) (*Qdrant, error) {
	if opts.Collection == "" {
		return nil, cmerrors.New(cmerrors.Validation, "qdrant collection name is required")
	}
	if opts.Dimension <= 0 {
		return nil, cmerrors.New(cmerrors.Validation, "qdrant vector dimension must be > 0")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		APIKey: opts.APIKey,
		UseTLS: opts.UseTLS,
	})
	if err != nil {
		return nil, errUnavailable(err)
	}

	q := &Qdrant{client: client, collection: opts.Collection, dimension: opts.Dimension}
	if err := q.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, errUnavailable(err)
	}
	q.available = true
	return q, nil
}

func (q *Qdrant) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func pointUUID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

// Upsert stores vector under id, keyed internally by a deterministic UUID
// derived from id when id is not itself UUID-shaped.
func (q *Qdrant) Upsert(ctx context.Context, id string, vector []float32) error {
	uid := pointUUID(id)
	payload := map[string]any{}
	if uid != id {
		payload[payloadIDField] = id
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(uid),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return errUnavailable(err)
	}
	return nil
}

// Delete removes the point stored under id.
func (q *Qdrant) Delete(ctx context.Context, id string) error {
	uid := pointUUID(id)
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(uid)),
	})
	if err != nil {
		return errUnavailable(err)
	}
	return nil
}

// Search returns the k nearest points to vector, honoring an optional
// key/value payload filter (exact-match AND semantics).
func (q *Qdrant) Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	var qf *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for key, val := range filter {
			must = append(must, qdrant.NewMatch(key, val))
		}
		qf = &qdrant.Filter{Must: must}
	}
	limit := uint64(k)
	vec := make([]float32, len(vector))
	copy(vec, vector)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         qf,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, errUnavailable(err)
	}

	out := make([]Result, 0, len(hits))
	for _, hit := range hits {
		id := hit.Id.GetUuid()
		if hit.Payload != nil {
			if v, ok := hit.Payload[payloadIDField]; ok {
				id = v.GetStringValue()
			}
		}
		out = append(out, Result{ID: id, Similarity: float64(hit.Score)})
	}
	return out, nil
}

// Available reports whether the initial connection and collection setup
// succeeded.
func (q *Qdrant) Available() bool { return q.available }

// Close releases the underlying gRPC connection.
func (q *Qdrant) Close() error { return q.client.Close() }
