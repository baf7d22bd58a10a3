package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/repository"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

func TestChatServiceSendAndFetchFlow(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationChatService(pool)

	aliceID := createTestUser(t, ctx, pool, "alice")
	bobID := createTestUser(t, ctx, pool, "bob")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, aliceID, bobID) })

	first, err := service.SendMessage(ctx, aliceID, SendMessageInput{
		RecipientID: bobID,
		Text:        "hello",
	})
	if err != nil {
		t.Fatalf("first SendMessage: %v", err)
	}
	if first.Message.Seen {
		t.Fatal("new message must start unseen")
	}
	if first.Conversation.LastMessage.Text != "hello" || first.Conversation.LastMessage.Seen {
		t.Fatalf("unexpected preview after send: %+v", first.Conversation.LastMessage)
	}

	second, err := service.SendMessage(ctx, aliceID, SendMessageInput{
		RecipientID: bobID,
		Text:        "still there?",
	})
	if err != nil {
		t.Fatalf("second SendMessage: %v", err)
	}
	if second.Conversation.ID != first.Conversation.ID {
		t.Fatalf("expected one conversation per pair, got %s and %s", first.Conversation.ID, second.Conversation.ID)
	}

	// Bob fetches the history: both of alice's messages flip to seen.
	result, err := service.FetchConversationMessages(ctx, bobID, aliceID, 1, 50)
	if err != nil {
		t.Fatalf("FetchConversationMessages: %v", err)
	}
	if result.Total != 2 || len(result.Messages) != 2 {
		t.Fatalf("expected 2 messages, got total=%d len=%d", result.Total, len(result.Messages))
	}
	if result.Messages[0].Text != "hello" || result.Messages[1].Text != "still there?" {
		t.Fatalf("messages out of order: %+v", result.Messages)
	}
	if result.SeenModified != 2 {
		t.Fatalf("expected 2 seen transitions, got %d", result.SeenModified)
	}
	for _, view := range result.Messages {
		if !view.Seen {
			t.Fatalf("expected fetched message %s seen", view.ID)
		}
	}

	// The repeat fetch modifies nothing.
	again, err := service.FetchConversationMessages(ctx, bobID, aliceID, 1, 50)
	if err != nil {
		t.Fatalf("repeat FetchConversationMessages: %v", err)
	}
	if again.SeenModified != 0 {
		t.Fatalf("repeat fetch must be a no-op, modified %d", again.SeenModified)
	}

	summaries, err := service.ListConversations(ctx, bobID)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(summaries))
	}
	if summaries[0].UnreadCount != 0 {
		t.Fatalf("expected no unread after fetch, got %d", summaries[0].UnreadCount)
	}
	if !summaries[0].LastMessage.Seen {
		t.Fatal("expected preview marked seen after fetch")
	}
	if summaries[0].Participant.ID != aliceID {
		t.Fatalf("expected participant %s, got %s", aliceID, summaries[0].Participant.ID)
	}
}

func TestChatServiceConversationPairConverges(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationChatService(pool)

	aliceID := createTestUser(t, ctx, pool, "alice")
	bobID := createTestUser(t, ctx, pool, "bob")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, aliceID, bobID) })

	fromAlice, err := service.SendMessage(ctx, aliceID, SendMessageInput{RecipientID: bobID, Text: "hi bob"})
	if err != nil {
		t.Fatalf("SendMessage from alice: %v", err)
	}
	fromBob, err := service.SendMessage(ctx, bobID, SendMessageInput{RecipientID: aliceID, Text: "hi alice"})
	if err != nil {
		t.Fatalf("SendMessage from bob: %v", err)
	}

	if fromAlice.Conversation.ID != fromBob.Conversation.ID {
		t.Fatalf("both directions must share one conversation, got %s and %s", fromAlice.Conversation.ID, fromBob.Conversation.ID)
	}
}

func TestChatServiceMarkConversationSeen(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationChatService(pool)

	aliceID := createTestUser(t, ctx, pool, "alice")
	bobID := createTestUser(t, ctx, pool, "bob")
	malloryID := createTestUser(t, ctx, pool, "mallory")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, aliceID, bobID, malloryID) })

	sent, err := service.SendMessage(ctx, aliceID, SendMessageInput{RecipientID: bobID, Text: "read me"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	conversationID := sent.Conversation.ID

	if _, err := service.MarkConversationSeen(ctx, malloryID, conversationID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for outsider, got %v", err)
	}

	receipt, err := service.MarkConversationSeen(ctx, bobID, conversationID)
	if err != nil {
		t.Fatalf("MarkConversationSeen: %v", err)
	}
	if receipt.Modified != 1 {
		t.Fatalf("expected 1 seen transition, got %d", receipt.Modified)
	}
	if receipt.NotifyUserID != aliceID {
		t.Fatalf("expected notify target %s, got %s", aliceID, receipt.NotifyUserID)
	}

	repeat, err := service.MarkConversationSeen(ctx, bobID, conversationID)
	if err != nil {
		t.Fatalf("repeat MarkConversationSeen: %v", err)
	}
	if repeat.Modified != 0 {
		t.Fatalf("repeat ack must be a no-op, modified %d", repeat.Modified)
	}

	summaries, err := service.ListConversations(ctx, aliceID)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(summaries) != 1 || !summaries[0].LastMessage.Seen {
		t.Fatalf("expected seen preview on sender side, got %+v", summaries)
	}
}

func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testDBOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		dbURL := os.Getenv("DB_URL")
		if dbURL == "" {
			testDBErr = fmt.Errorf("DB_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			testDBErr = err
			return
		}

		testDBPool, testDBErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testDBErr != nil {
			return
		}
		testDBErr = testDBPool.Ping(context.Background())
	})

	if testDBErr != nil {
		t.Skipf("skipping integration test: %v", testDBErr)
	}
	return testDBPool
}

func newIntegrationChatService(pool *pgxpool.Pool) *ChatService {
	return NewChatService(
		repository.NewConversationRepository(pool),
		repository.NewMessageRepository(pool),
		repository.NewUserRepository(pool),
		repository.NewPostRepository(pool),
		nil,
	)
}

func createTestUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, name string) string {
	t.Helper()

	id := uuid.NewString()
	username := fmt.Sprintf("chat-test-%s-%d", name, time.Now().UnixNano())
	if _, err := pool.Exec(ctx,
		"INSERT INTO users (id, name, username) VALUES ($1, $2, $3)",
		id, name, username,
	); err != nil {
		t.Fatalf("insert test user %s: %v", name, err)
	}
	return id
}

func cleanupTestUsers(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userIDs ...string) {
	t.Helper()

	if len(userIDs) == 0 {
		return
	}

	if _, err := pool.Exec(ctx, "DELETE FROM messages WHERE sender_id = ANY($1) OR conversation_id IN (SELECT id FROM conversations WHERE user_a = ANY($1) OR user_b = ANY($1))", userIDs); err != nil {
		t.Fatalf("cleanup messages: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM conversations WHERE user_a = ANY($1) OR user_b = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup conversations: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM posts WHERE posted_by = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup posts: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM users WHERE id = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup users: %v", err)
	}
}
