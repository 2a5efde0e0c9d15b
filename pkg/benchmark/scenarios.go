package benchmark

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/convomem/convomem/pkg/contextassembler"
	"github.com/convomem/convomem/pkg/repositories"
	"github.com/convomem/convomem/pkg/search"
)

func nowMillis() int64 { return time.Now().UnixMilli() }

// Deps bundles the collaborators the built-in scenarios exercise, mirroring
// the subset of app.App each scenario needs.
type Deps struct {
	Conversations *repositories.ConversationRepository
	Messages      *repositories.MessageRepository
	SearchEngine  *search.Engine
	Assembler     *contextassembler.Assembler
}

// MessageWriteScenario hammers Message.Create on a single pre-created
// conversation, exercising Store/B.ConnectionPool/C.QueryCache invalidation
// under write load.
func MessageWriteScenario(d Deps, iterations, concurrency int) Scenario {
	return Scenario{
		Name:        "message_write",
		Iterations:  iterations,
		Concurrency: concurrency,
		Setup: func(ctx context.Context) (func(), error) {
			now := nowMillis()
			if err := d.Conversations.Create(ctx, repositories.Conversation{
				ID: benchmarkConversationID, CreatedAt: now, UpdatedAt: now,
			}); err != nil {
				return nil, err
			}
			return func() {
				_ = d.Conversations.Delete(ctx, benchmarkConversationID, true, nowMillis())
			}, nil
		},
		Step: func(ctx context.Context, i int) error {
			return d.Messages.Create(ctx, repositories.Message{
				ID:             uuid.NewString(),
				ConversationID: benchmarkConversationID,
				Role:           repositories.RoleUser,
				Content:        fmt.Sprintf("benchmark message %d", i),
				CreatedAt:      nowMillis(),
			})
		},
	}
}

// SearchLatencyScenario repeatedly runs one hybrid search query, exercising
// F.FTSIndex/G.VectorIndex/H.SearchEngine under read load.
func SearchLatencyScenario(d Deps, query string, iterations, concurrency int) Scenario {
	return Scenario{
		Name:        "search_hybrid",
		Iterations:  iterations,
		Concurrency: concurrency,
		Step: func(ctx context.Context, i int) error {
			_, err := d.SearchEngine.Search(ctx, query, search.Options{Strategy: search.StrategyHybrid, Limit: 20})
			return err
		},
	}
}

// ContextAssemblyScenario repeatedly assembles context for a fixed
// conversation at a fixed token budget, exercising L.ContextAssembler's
// candidate scoring and packing under load.
func ContextAssemblyScenario(d Deps, conversationID string, maxTokens, iterations, concurrency int) Scenario {
	return Scenario{
		Name:        "context_assemble",
		Iterations:  iterations,
		Concurrency: concurrency,
		Step: func(ctx context.Context, i int) error {
			_, err := d.Assembler.Assemble(ctx, contextassembler.Options{
				ConversationIDs: []string{conversationID},
				MaxTokens:       maxTokens,
				Strategy:        contextassembler.StrategyHybrid,
			})
			return err
		},
	}
}

// benchmarkConversationID is fixed because MessageWriteScenario's Setup runs
// once and every Step shares the conversation it created.
const benchmarkConversationID = "benchmark-conversation"
