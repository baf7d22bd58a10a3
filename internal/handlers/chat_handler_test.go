package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/delivery"
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/models"
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/presence"
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/services"
	chatws "github.com/ziko247/threads-clone-finale-pfa-main247/internal/websocket"
)

type stubChatService struct {
	conversationsResult []models.ConversationSummary
	conversationsErr    error
	sendResult          *services.ChatDelivery
	sendErr             error
	fetchResult         *services.ConversationMessages
	fetchErr            error

	lastUserID      string
	lastSendInput   services.SendMessageInput
	lastOtherUserID string
	lastPage        int
	lastLimit       int
}

func (s *stubChatService) ListConversations(_ context.Context, userID string) ([]models.ConversationSummary, error) {
	s.lastUserID = userID
	return s.conversationsResult, s.conversationsErr
}

func (s *stubChatService) SendMessage(_ context.Context, senderID string, input services.SendMessageInput) (*services.ChatDelivery, error) {
	s.lastUserID = senderID
	s.lastSendInput = input
	return s.sendResult, s.sendErr
}

func (s *stubChatService) FetchConversationMessages(_ context.Context, userID, otherUserID string, page, limit int) (*services.ConversationMessages, error) {
	s.lastUserID = userID
	s.lastOtherUserID = otherUserID
	s.lastPage = page
	s.lastLimit = limit
	return s.fetchResult, s.fetchErr
}

func (s *stubChatService) MarkConversationSeen(_ context.Context, _, _ string) (*services.SeenReceipt, error) {
	return nil, nil
}

func newTestHub(t *testing.T) *chatws.Hub {
	t.Helper()
	dedup := delivery.NewDeduplicator(delivery.DefaultRetention, delivery.DefaultSweepInterval)
	t.Cleanup(dedup.Stop)
	return chatws.NewHub(presence.NewRegistry(), dedup)
}

func newTestApp(handler *ChatHandler, userID string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	})
	app.Get("/api/v1/conversations", handler.ListConversations)
	app.Post("/api/v1/messages", handler.SendMessage)
	app.Get("/api/v1/messages/:otherUserId", handler.GetMessages)
	return app
}

func TestListConversationsReturnsConversationSummaries(t *testing.T) {
	service := &stubChatService{
		conversationsResult: []models.ConversationSummary{
			{
				Conversation: models.Conversation{
					ID:    "conv-1",
					UserA: "alice",
					UserB: "bob",
					LastMessage: models.LastMessage{
						Text:     "See you tomorrow",
						SenderID: "bob",
					},
					UpdatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
				},
				Participant: models.UserSummary{ID: "bob", Username: "bob"},
				UnreadCount: 2,
			},
		},
	}
	handler := NewChatHandler(service, newTestHub(t), "secret")
	app := newTestApp(handler, "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastUserID != "alice" {
		t.Fatalf("unexpected actor: %q", service.lastUserID)
	}

	var body struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Conversations) != 1 || body.Conversations[0].UnreadCount != 2 {
		t.Fatalf("unexpected response: %+v", body.Conversations)
	}
}

func TestSendMessageReturnsCreatedMessage(t *testing.T) {
	service := &stubChatService{
		sendResult: &services.ChatDelivery{
			Conversation: &models.Conversation{ID: "conv-1", UserA: "alice", UserB: "bob"},
			Message: &models.MessageView{
				Message: models.Message{ID: "m1", ConversationID: "conv-1", SenderID: "alice", Text: "hi"},
				Sender:  models.UserSummary{ID: "alice", Username: "alice"},
			},
			RecipientID: "bob",
		},
	}
	handler := NewChatHandler(service, newTestHub(t), "secret")
	app := newTestApp(handler, "alice")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(`{"recipient_id":"bob","text":"hi"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastSendInput.RecipientID != "bob" || service.lastSendInput.Text != "hi" {
		t.Fatalf("unexpected forwarded input: %+v", service.lastSendInput)
	}

	var body struct {
		Message models.MessageView `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body.Message.ID != "m1" {
		t.Fatalf("unexpected response message: %+v", body.Message)
	}
}

func TestSendMessageMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid input", services.ErrInvalidInput, http.StatusBadRequest},
		{"recipient not found", services.ErrRecipientNotFound, http.StatusNotFound},
		{"storage unavailable", services.ErrStorageUnavailable, http.StatusServiceUnavailable},
		{"no rows", pgx.ErrNoRows, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubChatService{sendErr: tc.err}
			handler := NewChatHandler(service, newTestHub(t), "secret")
			app := newTestApp(handler, "alice")

			req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(`{"recipient_id":"bob","text":"hi"}`))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.StatusCode)
			}
		})
	}
}

func TestGetMessagesForwardsPagination(t *testing.T) {
	service := &stubChatService{
		fetchResult: &services.ConversationMessages{
			Conversation: &models.Conversation{ID: "conv-1", UserA: "alice", UserB: "bob"},
			OtherUserID:  "bob",
			Messages: []models.MessageView{
				{Message: models.Message{ID: "m1", SenderID: "bob", Text: "hi", Seen: true}},
			},
			Total: 12,
		},
	}
	handler := NewChatHandler(service, newTestHub(t), "secret")
	app := newTestApp(handler, "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages/bob?page=2&limit=5", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastOtherUserID != "bob" || service.lastPage != 2 || service.lastLimit != 5 {
		t.Fatalf("unexpected forwarded pagination: other=%q page=%d limit=%d", service.lastOtherUserID, service.lastPage, service.lastLimit)
	}

	var body struct {
		Messages   []models.MessageView  `json:"messages"`
		Pagination models.PaginationMeta `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Messages) != 1 || body.Pagination.Total != 12 || body.Pagination.TotalPages != 3 {
		t.Fatalf("unexpected response body: %+v %+v", body.Messages, body.Pagination)
	}
}

func TestGetMessagesClampsLimit(t *testing.T) {
	service := &stubChatService{
		fetchResult: &services.ConversationMessages{OtherUserID: "bob", Messages: []models.MessageView{}},
	}
	handler := NewChatHandler(service, newTestHub(t), "secret")
	app := newTestApp(handler, "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages/bob?limit=500", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if service.lastLimit != maxPageLimit {
		t.Fatalf("expected limit clamped to %d, got %d", maxPageLimit, service.lastLimit)
	}
}

func TestGetMessagesEmptyHistoryIsOK(t *testing.T) {
	service := &stubChatService{
		fetchResult: &services.ConversationMessages{OtherUserID: "stranger", Messages: []models.MessageView{}},
	}
	handler := NewChatHandler(service, newTestHub(t), "secret")
	app := newTestApp(handler, "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages/stranger", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Messages   []models.MessageView  `json:"messages"`
		Pagination models.PaginationMeta `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Messages) != 0 || body.Pagination.Total != 0 {
		t.Fatalf("expected empty history, got %+v", body)
	}
}

func TestMissingUserContextIsUnauthorized(t *testing.T) {
	handler := NewChatHandler(&stubChatService{}, newTestHub(t), "secret")

	app := fiber.New()
	app.Get("/api/v1/conversations", handler.ListConversations)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
