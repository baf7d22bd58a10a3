package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/models"
)

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// OrderParticipants returns the pair in storage order (UserA < UserB), so
// the unordered pair maps to exactly one row.
func OrderParticipants(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

const conversationColumns = `
	id, user_a, user_b,
	last_message_text, last_message_sender, last_message_seen,
	created_at, updated_at
`

func (r *ConversationRepository) FindByParticipants(
	ctx context.Context,
	userID string,
	otherUserID string,
) (*models.Conversation, error) {
	userA, userB := OrderParticipants(userID, otherUserID)
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE user_a = $1 AND user_b = $2
	`
	return r.scanConversation(r.db.QueryRow(ctx, query, userA, userB))
}

// CreateOrGet inserts a conversation for the pair or, when a concurrent
// send already created one, returns the existing row. The no-op conflict
// update lets RETURNING yield the canonical record either way.
func (r *ConversationRepository) CreateOrGet(
	ctx context.Context,
	userID string,
	otherUserID string,
) (*models.Conversation, error) {
	userA, userB := OrderParticipants(userID, otherUserID)
	query := `
		INSERT INTO conversations (id, user_a, user_b)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_a, user_b)
		DO UPDATE SET updated_at = conversations.updated_at
		RETURNING ` + conversationColumns
	return r.scanConversation(r.db.QueryRow(ctx, query, uuid.NewString(), userA, userB))
}

func (r *ConversationRepository) GetByIDForParticipant(
	ctx context.Context,
	conversationID string,
	participantID string,
) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE id = $1 AND (user_a = $2 OR user_b = $2)
	`
	return r.scanConversation(r.db.QueryRow(ctx, query, conversationID, participantID))
}

// UpdateLastMessage overwrites the denormalized preview after a new message
// is persisted.
func (r *ConversationRepository) UpdateLastMessage(
	ctx context.Context,
	conversationID string,
	last models.LastMessage,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message_text = $2,
		    last_message_sender = $3,
		    last_message_seen = $4,
		    updated_at = NOW()
		WHERE id = $1
	`, conversationID, last.Text, last.SenderID, last.Seen)
	return err
}

// SetLastMessageSeen flips the preview's seen flag. Used by the explicit
// acknowledgement path, which clears every unseen message in the
// conversation so the latest one is covered.
func (r *ConversationRepository) SetLastMessageSeen(ctx context.Context, conversationID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message_seen = TRUE
		WHERE id = $1
	`, conversationID)
	return err
}

// SetLastMessageSeenFromSender flips the preview's seen flag only when the
// preview belongs to senderID. The fetch path marks just that sender's
// messages seen, so the preview of a message authored by the fetcher must
// stay untouched.
func (r *ConversationRepository) SetLastMessageSeenFromSender(
	ctx context.Context,
	conversationID string,
	senderID string,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message_seen = TRUE
		WHERE id = $1
		  AND last_message_sender = $2
		  AND last_message_seen = FALSE
	`, conversationID, senderID)
	return err
}

func (r *ConversationRepository) ListForParticipant(
	ctx context.Context,
	participantID string,
) ([]models.ConversationSummary, error) {
	query := `
		SELECT
			c.id,
			c.user_a,
			c.user_b,
			c.last_message_text,
			c.last_message_sender,
			c.last_message_seen,
			c.created_at,
			c.updated_at,
			u.id,
			u.name,
			u.username,
			u.profile_pic,
			COALESCE(uc.unread_count, 0)
		FROM conversations c
		JOIN users u
			ON u.id = CASE WHEN c.user_a = $1 THEN c.user_b ELSE c.user_a END
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS unread_count
			FROM messages
			WHERE conversation_id = c.id
			  AND sender_id <> $1
			  AND seen = FALSE
		) uc ON TRUE
		WHERE c.user_a = $1 OR c.user_b = $1
		ORDER BY c.updated_at DESC, c.id DESC
	`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var summary models.ConversationSummary
		if err := rows.Scan(
			&summary.ID,
			&summary.UserA,
			&summary.UserB,
			&summary.LastMessage.Text,
			&summary.LastMessage.SenderID,
			&summary.LastMessage.Seen,
			&summary.CreatedAt,
			&summary.UpdatedAt,
			&summary.Participant.ID,
			&summary.Participant.Name,
			&summary.Participant.Username,
			&summary.Participant.ProfilePic,
			&summary.UnreadCount,
		); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

func (r *ConversationRepository) scanConversation(row interface{ Scan(dest ...any) error }) (*models.Conversation, error) {
	var conversation models.Conversation
	err := row.Scan(
		&conversation.ID,
		&conversation.UserA,
		&conversation.UserB,
		&conversation.LastMessage.Text,
		&conversation.LastMessage.SenderID,
		&conversation.LastMessage.Seen,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}
