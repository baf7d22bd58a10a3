package repository

import (
	"context"

	"github.com/ziko247/threads-clone-finale-pfa-main247/internal/models"
)

// PostRepository resolves shared posts for message payloads. Post CRUD
// belongs to the feed service.
type PostRepository struct {
	db DBTX
}

func NewPostRepository(db DBTX) *PostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) GetSummaryByID(ctx context.Context, id string) (*models.PostSummary, error) {
	query := `
		SELECT p.id, p.posted_by, p.text, p.image_url, p.created_at,
		       u.id, u.name, u.username, u.profile_pic
		FROM posts p
		JOIN users u ON u.id = p.posted_by
		WHERE p.id = $1
	`
	var summary models.PostSummary
	err := r.db.QueryRow(ctx, query, id).Scan(
		&summary.ID,
		&summary.PostedBy,
		&summary.Text,
		&summary.ImageURL,
		&summary.CreatedAt,
		&summary.Author.ID,
		&summary.Author.Name,
		&summary.Author.Username,
		&summary.Author.ProfilePic,
	)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}
