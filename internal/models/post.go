package models

import "time"

// Post is read-only here. Posting, likes, and reposts are handled by the
// feed service; messages only reference posts when a user shares one.
type Post struct {
	ID        string    `json:"id"`
	PostedBy  string    `json:"posted_by"`
	Text      string    `json:"text"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type PostSummary struct {
	Post
	Author UserSummary `json:"author"`
}
