package repositories_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convomem/convomem/pkg/cache"
	convomemdb "github.com/convomem/convomem/pkg/db"
	"github.com/convomem/convomem/pkg/db/migrations"
	"github.com/convomem/convomem/pkg/repositories"
)

func openTestStore(t *testing.T) *convomemdb.Store {
	t.Helper()
	ctx := context.Background()
	store, err := convomemdb.Open(ctx, convomemdb.Options{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	require.NoError(t, store.Init(ctx, migrations.All()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// TestConversationMessageRoundTrip exercises the save+retrieve round trip
// spec.md's seed scenarios call for: create a conversation, append a
// message, and read it back through both repositories.
func TestConversationMessageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	c := cache.New(100)

	conversations := repositories.NewConversationRepository(store, c)
	messages := repositories.NewMessageRepository(store, c)

	conv := repositories.Conversation{ID: "conv-1", CreatedAt: 1000, UpdatedAt: 1000}
	require.NoError(t, conversations.Create(ctx, conv))

	msg := repositories.Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		Role:           repositories.RoleUser,
		Content:        "hello world",
		CreatedAt:      1001,
	}
	require.NoError(t, messages.Create(ctx, msg))

	found, err := conversations.FindById(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", found.ID)

	history, err := messages.FindByConversationId(ctx, "conv-1", 10, nil, nil)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello world", history[0].Content)
}

// TestMessageCreate_RejectsOrphanConversation verifies the repository-level
// validation documented alongside MessageRepository.Create.
func TestMessageCreate_RejectsOrphanConversation(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	messages := repositories.NewMessageRepository(store, cache.New(100))

	err := messages.Create(ctx, repositories.Message{
		ID:             "msg-orphan",
		ConversationID: "does-not-exist",
		Role:           repositories.RoleUser,
		Content:        "orphaned",
		CreatedAt:      1,
	})
	require.Error(t, err)
}

// TestMessageCreate_RejectsSelfReferencingParent verifies the
// parentMessageId self-reference invariant.
func TestMessageCreate_RejectsSelfReferencingParent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	c := cache.New(100)
	conversations := repositories.NewConversationRepository(store, c)
	messages := repositories.NewMessageRepository(store, c)

	require.NoError(t, conversations.Create(ctx, repositories.Conversation{ID: "conv-2", CreatedAt: 1, UpdatedAt: 1}))

	selfID := "msg-self"
	err := messages.Create(ctx, repositories.Message{
		ID:              selfID,
		ConversationID:  "conv-2",
		Role:            repositories.RoleUser,
		Content:         "self-referencing",
		CreatedAt:       2,
		ParentMessageID: &selfID,
	})
	require.Error(t, err)
}
