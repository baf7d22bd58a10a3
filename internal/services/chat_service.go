package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/models"
)

var (
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrRecipientNotFound  = errors.New("recipient not found")
	ErrStorageUnavailable = errors.New("storage service is not configured")
)

const (
	sharedPostMessageText = "Check out this post!"
	sharedPostPreviewText = "Shared a post"
)

type conversationStore interface {
	FindByParticipants(ctx context.Context, userID, otherUserID string) (*models.Conversation, error)
	CreateOrGet(ctx context.Context, userID, otherUserID string) (*models.Conversation, error)
	GetByIDForParticipant(ctx context.Context, conversationID, participantID string) (*models.Conversation, error)
	UpdateLastMessage(ctx context.Context, conversationID string, last models.LastMessage) error
	SetLastMessageSeen(ctx context.Context, conversationID string) error
	SetLastMessageSeenFromSender(ctx context.Context, conversationID, senderID string) error
	ListForParticipant(ctx context.Context, participantID string) ([]models.ConversationSummary, error)
}

type messageStore interface {
	Create(ctx context.Context, message *models.Message) error
	ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]models.MessageView, int, error)
	MarkSeenFromSender(ctx context.Context, conversationID, senderID string) (int64, error)
	MarkConversationSeen(ctx context.Context, conversationID string) (int64, error)
}

type userReader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type postReader interface {
	GetSummaryByID(ctx context.Context, id string) (*models.PostSummary, error)
}

// ChatService owns message persistence and the seen-state transitions. It
// performs no pushes itself: callers decide delivery from the returned
// delivery/receipt values, so the transitions stay testable without a
// transport.
type ChatService struct {
	conversations conversationStore
	messages      messageStore
	users         userReader
	posts         postReader
	storage       StorageService
}

func NewChatService(
	conversations conversationStore,
	messages messageStore,
	users userReader,
	posts postReader,
	storage StorageService,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		posts:         posts,
		storage:       storage,
	}
}

type SendMessageInput struct {
	RecipientID  string
	Text         string
	Image        string
	SharedPostID string
}

// ChatDelivery is the result of a successful send: the persisted message
// resolved for push plus who to push it to.
type ChatDelivery struct {
	Conversation *models.Conversation
	Message      *models.MessageView
	RecipientID  string
}

// ConversationMessages is the result of a history fetch. SeenModified is
// the number of messages the fetch transitioned to seen; a positive count
// means the other participant should be notified.
type ConversationMessages struct {
	Conversation *models.Conversation
	OtherUserID  string
	Messages     []models.MessageView
	Total        int
	SeenModified int64
}

// SeenReceipt is the result of an explicit seen acknowledgement.
type SeenReceipt struct {
	ConversationID string
	SeenBy         string
	NotifyUserID   string
	Modified       int64
}

func (s *ChatService) SendMessage(
	ctx context.Context,
	senderID string,
	input SendMessageInput,
) (*ChatDelivery, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" && input.Image == "" && input.SharedPostID == "" {
		return nil, ErrInvalidInput
	}
	if input.RecipientID == "" || input.RecipientID == senderID {
		return nil, ErrInvalidInput
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	if _, err := s.users.GetByID(ctx, input.RecipientID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}

	var sharedPost *models.PostSummary
	if input.SharedPostID != "" {
		sharedPost, err = s.posts.GetSummaryByID(ctx, input.SharedPostID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrInvalidInput
			}
			return nil, err
		}
		if text == "" {
			text = sharedPostMessageText
		}
	}

	imageURL := ""
	if input.Image != "" {
		if s.storage == nil {
			return nil, ErrStorageUnavailable
		}
		data, err := DecodeImagePayload(input.Image)
		if err != nil {
			return nil, ErrInvalidInput
		}
		imageURL, err = s.storage.UploadImage(ctx, data, uuid.NewString())
		if err != nil {
			return nil, err
		}
	}

	conversation, err := s.conversations.FindByParticipants(ctx, senderID, input.RecipientID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		conversation, err = s.conversations.CreateOrGet(ctx, senderID, input.RecipientID)
		if err != nil {
			return nil, err
		}
	}

	message := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversation.ID,
		SenderID:       senderID,
		Text:           text,
		ImageURL:       imageURL,
		SharedPostID:   input.SharedPostID,
	}
	if err := s.messages.Create(ctx, message); err != nil {
		return nil, err
	}

	previewText := text
	if sharedPost != nil {
		previewText = sharedPostPreviewText
	}
	last := models.LastMessage{Text: previewText, SenderID: senderID, Seen: false}
	if err := s.conversations.UpdateLastMessage(ctx, conversation.ID, last); err != nil {
		// The message is durably stored at this point; a failed preview
		// write leaves the conversation list stale until the next send.
		log.Printf("chat: conversation %s preview stale after message %s: %v", conversation.ID, message.ID, err)
	} else {
		conversation.LastMessage = last
	}

	return &ChatDelivery{
		Conversation: conversation,
		Message: &models.MessageView{
			Message:    *message,
			Sender:     sender.Summary(),
			SharedPost: sharedPost,
		},
		RecipientID: input.RecipientID,
	}, nil
}

// FetchConversationMessages returns the history between userID and
// otherUserID, marking every unseen message authored by otherUserID as seen
// on the way. Fetching a pair with no conversation yet returns an empty
// history, not an error.
func (s *ChatService) FetchConversationMessages(
	ctx context.Context,
	userID string,
	otherUserID string,
	page int,
	limit int,
) (*ConversationMessages, error) {
	if otherUserID == "" || otherUserID == userID || page <= 0 || limit <= 0 {
		return nil, ErrInvalidInput
	}

	conversation, err := s.conversations.FindByParticipants(ctx, userID, otherUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &ConversationMessages{OtherUserID: otherUserID, Messages: []models.MessageView{}}, nil
		}
		return nil, err
	}

	views, total, err := s.messages.ListByConversation(ctx, conversation.ID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}

	modified, err := s.messages.MarkSeenFromSender(ctx, conversation.ID, otherUserID)
	if err != nil {
		return nil, err
	}
	if modified > 0 {
		if err := s.conversations.SetLastMessageSeenFromSender(ctx, conversation.ID, otherUserID); err != nil {
			log.Printf("chat: conversation %s preview seen flag stale: %v", conversation.ID, err)
		}
	}

	for i := range views {
		if views[i].SenderID == otherUserID {
			views[i].Seen = true
		}
	}

	return &ConversationMessages{
		Conversation: conversation,
		OtherUserID:  otherUserID,
		Messages:     views,
		Total:        total,
		SeenModified: modified,
	}, nil
}

// MarkConversationSeen handles an explicit "I have seen everything here"
// acknowledgement from a connected client. Unlike the fetch path it clears
// every unseen message in the conversation, so a positive count always
// covers the latest message and the preview flag can be set outright.
func (s *ChatService) MarkConversationSeen(
	ctx context.Context,
	userID string,
	conversationID string,
) (*SeenReceipt, error) {
	if conversationID == "" {
		return nil, ErrInvalidInput
	}

	conversation, err := s.conversations.GetByIDForParticipant(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrForbidden
		}
		return nil, err
	}

	modified, err := s.messages.MarkConversationSeen(ctx, conversation.ID)
	if err != nil {
		return nil, err
	}
	if modified > 0 {
		if err := s.conversations.SetLastMessageSeen(ctx, conversation.ID); err != nil {
			log.Printf("chat: conversation %s preview seen flag stale: %v", conversation.ID, err)
		}
	}

	return &SeenReceipt{
		ConversationID: conversation.ID,
		SeenBy:         userID,
		NotifyUserID:   conversation.OtherParticipant(userID),
		Modified:       modified,
	}, nil
}

func (s *ChatService) ListConversations(
	ctx context.Context,
	userID string,
) ([]models.ConversationSummary, error) {
	return s.conversations.ListForParticipant(ctx, userID)
}
