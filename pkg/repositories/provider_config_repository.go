package repositories

import (
	"context"
	"encoding/json"

	"github.com/convomem/convomem/pkg/cache"
	convomemdb "github.com/convomem/convomem/pkg/db"
	cmerrors "github.com/convomem/convomem/pkg/errors"
	"github.com/google/uuid"
)

// ProviderConfigRepository provides CRUD over llm_providers plus the
// ListActive query app.Build consults at startup to pick the summarizer
// and embedder.
type ProviderConfigRepository struct {
	store *convomemdb.Store
	cache cache.Cache
}

// NewProviderConfigRepository binds a repository to a store and the shared
// query cache.
func NewProviderConfigRepository(store *convomemdb.Store, c cache.Cache) *ProviderConfigRepository {
	return &ProviderConfigRepository{store: store, cache: c}
}

// Create inserts a provider configuration row.
func (r *ProviderConfigRepository) Create(ctx context.Context, p ProviderConfig) (ProviderConfig, error) {
	if p.MaxTokens <= 0 {
		return p, cmerrors.Validationf("maxTokens", "must be > 0")
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return p, cmerrors.Validationf("temperature", "must be in [0,2]")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if len(p.Metadata) == 0 {
		p.Metadata = json.RawMessage(`{}`)
	}
	_, err := r.store.Exec(ctx, `
		INSERT INTO llm_providers (
			id, name, kind, endpoint, api_key_env, model_name, max_tokens,
			temperature, is_active, priority, cost_per_1k_tokens, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, string(p.Kind), p.Endpoint, p.APIKeyEnv, p.ModelName, p.MaxTokens,
		p.Temperature, boolToInt(p.IsActive), p.Priority, p.CostPer1kTokens, string(p.Metadata))
	if err != nil {
		return p, cmerrors.Wrap(cmerrors.Internal, err, "failed to create provider config")
	}
	r.invalidate()
	return p, nil
}

// FindById loads a single provider configuration by id.
func (r *ProviderConfigRepository) FindById(ctx context.Context, id string) (ProviderConfig, error) {
	return r.findOne(ctx, `WHERE id = ?`, id)
}

// FindByName loads a single provider configuration by its unique name.
func (r *ProviderConfigRepository) FindByName(ctx context.Context, name string) (ProviderConfig, error) {
	return r.findOne(ctx, `WHERE name = ?`, name)
}

func (r *ProviderConfigRepository) findOne(ctx context.Context, where string, args ...any) (ProviderConfig, error) {
	var p ProviderConfig
	var isActive int
	query := `SELECT id, name, kind, endpoint, api_key_env, model_name, max_tokens, temperature, is_active, priority, cost_per_1k_tokens, metadata FROM llm_providers ` + where
	rows, err := r.store.Query(ctx, query, args...)
	if err != nil {
		return p, err
	}
	defer rows.Close()

	if !rows.Next() {
		return p, cmerrors.NotFoundf("provider_config", where)
	}
	if err := rows.Scan(&p.ID, &p.Name, &p.Kind, &p.Endpoint, &p.APIKeyEnv, &p.ModelName, &p.MaxTokens,
		&p.Temperature, &isActive, &p.Priority, &p.CostPer1kTokens, &p.Metadata); err != nil {
		return p, cmerrors.Wrap(cmerrors.Internal, err, "failed to scan provider config")
	}
	p.IsActive = isActive != 0
	return p, nil
}

// Update replaces the mutable fields of a provider configuration.
func (r *ProviderConfigRepository) Update(ctx context.Context, p ProviderConfig) error {
	res, err := r.store.Exec(ctx, `
		UPDATE llm_providers SET endpoint = ?, api_key_env = ?, model_name = ?, max_tokens = ?,
		       temperature = ?, is_active = ?, priority = ?, cost_per_1k_tokens = ?, metadata = ?
		WHERE id = ?
	`, p.Endpoint, p.APIKeyEnv, p.ModelName, p.MaxTokens, p.Temperature, boolToInt(p.IsActive),
		p.Priority, p.CostPer1kTokens, string(p.Metadata), p.ID)
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to update provider config")
	}
	if err := requireRowsAffected(res, "provider_config", p.ID); err != nil {
		return err
	}
	r.invalidate()
	return nil
}

// Delete removes a provider configuration.
func (r *ProviderConfigRepository) Delete(ctx context.Context, id string) error {
	res, err := r.store.Exec(ctx, `DELETE FROM llm_providers WHERE id = ?`, id)
	if err != nil {
		return cmerrors.Wrap(cmerrors.Internal, err, "failed to delete provider config")
	}
	if err := requireRowsAffected(res, "provider_config", id); err != nil {
		return err
	}
	r.invalidate()
	return nil
}

// ListActive returns every enabled provider, highest priority first;
// app.Build uses the first external one for both summarizer and embedder.
func (r *ProviderConfigRepository) ListActive(ctx context.Context) ([]ProviderConfig, error) {
	rows, err := r.store.Query(ctx, `
		SELECT id, name, kind, endpoint, api_key_env, model_name, max_tokens, temperature, is_active, priority, cost_per_1k_tokens, metadata
		FROM llm_providers WHERE is_active = 1 ORDER BY priority DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProviderConfig
	for rows.Next() {
		var p ProviderConfig
		var isActive int
		if err := rows.Scan(&p.ID, &p.Name, &p.Kind, &p.Endpoint, &p.APIKeyEnv, &p.ModelName, &p.MaxTokens,
			&p.Temperature, &isActive, &p.Priority, &p.CostPer1kTokens, &p.Metadata); err != nil {
			return nil, cmerrors.Wrap(cmerrors.Internal, err, "failed to scan provider config")
		}
		p.IsActive = isActive != 0
		out = append(out, p)
	}
	return out, nil
}

func (r *ProviderConfigRepository) invalidate() {
	if r.cache != nil {
		r.cache.Invalidate("llm_providers")
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
