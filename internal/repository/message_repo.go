package repository

import (
	"context"
	"database/sql"

	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/models"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create persists the message with seen = FALSE and fills in the
// database-assigned sequence and timestamp. The sequence breaks ordering
// ties between messages created in the same instant.
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, text, image_url, shared_post_id, seen)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), FALSE)
		RETURNING seq, created_at
	`
	message.Seen = false
	return r.db.QueryRow(
		ctx,
		query,
		message.ID,
		message.ConversationID,
		message.SenderID,
		message.Text,
		message.ImageURL,
		message.SharedPostID,
	).Scan(&message.Seq, &message.CreatedAt)
}

// ListByConversation returns messages oldest-first with sender details and
// any shared post attached, plus the conversation's total message count.
func (r *MessageRepository) ListByConversation(
	ctx context.Context,
	conversationID string,
	limit int,
	offset int,
) ([]models.MessageView, int, error) {
	totalQuery := `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1
	`

	var total int
	if err := r.db.QueryRow(ctx, totalQuery, conversationID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT
			m.id, m.conversation_id, m.sender_id, m.text, m.image_url,
			COALESCE(m.shared_post_id, ''), m.seen, m.seq, m.created_at,
			s.id, s.name, s.username, s.profile_pic,
			p.id, p.posted_by, p.text, p.image_url, p.created_at,
			pa.id, pa.name, pa.username, pa.profile_pic
		FROM messages m
		JOIN users s ON s.id = m.sender_id
		LEFT JOIN posts p ON p.id = m.shared_post_id
		LEFT JOIN users pa ON pa.id = p.posted_by
		WHERE m.conversation_id = $1
		ORDER BY m.created_at ASC, m.seq ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	views := make([]models.MessageView, 0)
	for rows.Next() {
		var view models.MessageView
		var postID, postPostedBy, postText, postImageURL sql.NullString
		var postCreatedAt sql.NullTime
		var authorID, authorName, authorUsername, authorProfilePic sql.NullString

		if err := rows.Scan(
			&view.ID,
			&view.ConversationID,
			&view.SenderID,
			&view.Text,
			&view.ImageURL,
			&view.SharedPostID,
			&view.Seen,
			&view.Seq,
			&view.CreatedAt,
			&view.Sender.ID,
			&view.Sender.Name,
			&view.Sender.Username,
			&view.Sender.ProfilePic,
			&postID,
			&postPostedBy,
			&postText,
			&postImageURL,
			&postCreatedAt,
			&authorID,
			&authorName,
			&authorUsername,
			&authorProfilePic,
		); err != nil {
			return nil, 0, err
		}

		if postID.Valid {
			view.SharedPost = &models.PostSummary{
				Post: models.Post{
					ID:        postID.String,
					PostedBy:  postPostedBy.String,
					Text:      postText.String,
					ImageURL:  postImageURL.String,
					CreatedAt: postCreatedAt.Time,
				},
				Author: models.UserSummary{
					ID:         authorID.String,
					Name:       authorName.String,
					Username:   authorUsername.String,
					ProfilePic: authorProfilePic.String,
				},
			}
		}

		views = append(views, view)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return views, total, nil
}

// MarkSeenFromSender flips every unseen message authored by senderID in the
// conversation and reports how many rows changed. Already-seen messages are
// untouched, which keeps repeated fetches from producing notifications.
func (r *MessageRepository) MarkSeenFromSender(
	ctx context.Context,
	conversationID string,
	senderID string,
) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages
		SET seen = TRUE
		WHERE conversation_id = $1
		  AND sender_id = $2
		  AND seen = FALSE
	`, conversationID, senderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkConversationSeen flips every unseen message in the conversation
// regardless of sender. This is the explicit client acknowledgement
// predicate; it is intentionally wider than MarkSeenFromSender.
func (r *MessageRepository) MarkConversationSeen(
	ctx context.Context,
	conversationID string,
) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages
		SET seen = TRUE
		WHERE conversation_id = $1
		  AND seen = FALSE
	`, conversationID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
