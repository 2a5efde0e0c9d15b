// Package app composes every convomem component — store, caches, search
// indices, providers, the knowledge graph, the context assembler, and the
// full tool registry — into one process, mirroring how the teacher's
// cmd/kodelet wires its own dependency graph out of pkg/* packages.
package app

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/convomem/convomem/pkg/cache"
	"github.com/convomem/convomem/pkg/config"
	"github.com/convomem/convomem/pkg/contextassembler"
	convomemdb "github.com/convomem/convomem/pkg/db"
	"github.com/convomem/convomem/pkg/db/migrations"
	"github.com/convomem/convomem/pkg/knowledge"
	"github.com/convomem/convomem/pkg/logger"
	"github.com/convomem/convomem/pkg/providers"
	"github.com/convomem/convomem/pkg/repositories"
	"github.com/convomem/convomem/pkg/search"
	"github.com/convomem/convomem/pkg/search/fts"
	"github.com/convomem/convomem/pkg/search/vector"
	"github.com/convomem/convomem/pkg/tools"
)

// App owns every long-lived component a running convomem process needs,
// so main can start/stop it as one unit.
type App struct {
	Config *config.Config
	Store  *convomemdb.Store
	Lock   *convomemdb.InstanceLock
	Cache  cache.Cache

	Conversations *repositories.ConversationRepository
	Messages      *repositories.MessageRepository
	Entities      *repositories.EntityRepository
	Graph         *repositories.KnowledgeGraphRepository
	Summaries     *repositories.SummaryRepository
	Providers     *repositories.ProviderConfigRepository
	Analytics     *repositories.ConversationAnalyticsRepository
	Patterns      *repositories.ProductivityPatternRepository
	Gaps          *repositories.KnowledgeGapRepository
	Decisions     *repositories.DecisionTrackingRepository
	Metrics       *repositories.SearchMetricsRepository

	VectorIndex vector.VectorIndex
	SearchEng   *search.Engine
	Knowledge   *knowledge.Service
	Assembler   *contextassembler.Assembler
	Summarizer  providers.Summarizer
	Embedder    providers.Embedder

	Registry *tools.Registry
}

// Build opens the store, runs migrations (unless readOnly), and wires every
// downstream component. The caller must call Close when done.
func Build(ctx context.Context, cfg *config.Config, readOnly bool) (*App, error) {
	lock, err := convomemdb.AcquireInstanceLock(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	store, err := convomemdb.Open(ctx, convomemdb.Options{
		Path:           cfg.DBPath,
		ReadOnly:       readOnly,
		MaxConnections: cfg.MaxConnections,
		CacheSizeKB:    cfg.CacheSizeKB,
	})
	if err != nil {
		lock.Release()
		return nil, err
	}
	if err := store.Init(ctx, migrations.All()); err != nil {
		store.Close()
		lock.Release()
		return nil, err
	}

	c, err := cache.NewFromConfig(cfg.CacheBackend, cfg.CacheSizeKB, time.Duration(cfg.QueryCacheTTLms)*time.Millisecond, cfg.RedisAddr)
	if err != nil {
		logger.L.WithError(err).Warn("failed to build configured cache backend, falling back to in-process cache")
		c = cache.New(cfg.CacheSizeKB)
	}

	a := &App{
		Config: cfg,
		Store:  store,
		Lock:   lock,
		Cache:  c,

		Conversations: repositories.NewConversationRepository(store, c),
		Messages:      repositories.NewMessageRepository(store, c),
		Entities:      repositories.NewEntityRepository(store, c),
		Graph:         repositories.NewKnowledgeGraphRepository(store, c),
		Summaries:     repositories.NewSummaryRepository(store, c),
		Providers:     repositories.NewProviderConfigRepository(store, c),
		Analytics:     repositories.NewConversationAnalyticsRepository(store),
		Patterns:      repositories.NewProductivityPatternRepository(store),
		Gaps:          repositories.NewKnowledgeGapRepository(store),
		Decisions:     repositories.NewDecisionTrackingRepository(store),
		Metrics:       repositories.NewSearchMetricsRepository(store),
	}

	if err := a.seedProviders(ctx, cfg.ProviderSeedPath); err != nil {
		logger.L.WithError(err).Warn("failed to load provider seed file, continuing without it")
	}
	a.watchProviderSeed(ctx, cfg.ProviderSeedPath)

	if cfg.EnableVectorIndex {
		a.VectorIndex = buildVectorIndex(ctx, cfg)
	}

	a.Summarizer = providers.NewTemplateSummarizer()
	a.Embedder = providers.NewNullEmbedder(0)
	if active, err := a.Providers.ListActive(ctx); err == nil {
		for _, p := range active {
			if p.Kind != repositories.ProviderExternal {
				continue
			}
			if summarizer, err := providers.NewSummarizer(ctx, p); err == nil {
				a.Summarizer = summarizer
			}
			if embedder, err := providers.NewEmbedder(ctx, p); err == nil {
				a.Embedder = embedder
			}
			break
		}
	}

	a.SearchEng = search.New(fts.New(store), a.VectorIndex, a.Embedder, a.Messages, a.Metrics)
	a.Knowledge = knowledge.New(a.Entities, a.Graph, a.Messages)
	a.Messages.OnCreate = a.Knowledge.OnMessageCreated
	a.Messages.OnDelete = a.Knowledge.OnMessageDeleted
	a.Assembler = contextassembler.New(a.Messages, a.Summaries, a.SearchEng, a.Knowledge, nil)

	a.Registry = tools.New()
	a.Registry.SetTimeout(cfg.ToolTimeoutMs)
	if err := a.registerTools(); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func buildVectorIndex(ctx context.Context, cfg *config.Config) vector.VectorIndex {
	if cfg.VectorBackend == "qdrant" && cfg.QdrantAddr != "" {
		host, port := splitQdrantAddr(cfg.QdrantAddr)
		if q, err := vector.NewQdrant(ctx, vector.QdrantOptions{
			Host:       host,
			Port:       port,
			Collection: "convomem",
			Dimension:  1536,
		}); err == nil {
			return q
		} else {
			logger.L.WithError(err).Warn("failed to connect to configured qdrant backend, falling back to in-memory vector index")
		}
	}
	return vector.NewInMemory()
}

// splitQdrantAddr parses a "host:port" config value, defaulting to Qdrant's
// standard gRPC port when addr carries no port of its own.
func splitQdrantAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6334
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6334
	}
	return host, port
}

// Close releases the store, vector index, cache, and instance lock.
func (a *App) Close() error {
	if a.VectorIndex != nil {
		_ = a.VectorIndex.Close()
	}
	if closer, ok := a.Cache.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
	if a.Lock != nil {
		return a.Lock.Release()
	}
	return nil
}
