package entity

import (
	"time"

	directentity "github.com/vadim/glimpse/internal/domain/direct/entity"
)

// Post is a published entry on a user's wall.
type Post struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"ownerId"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PostView is a post decorated with its author and the aggregate counters a
// reader sees in a listing.
type PostView struct {
	Post
	Author       directentity.UserRef `json:"author"`
	LikeCount    int64                `json:"likeCount"`
	CommentCount int64                `json:"commentCount"`
	LikedByMe    bool                 `json:"likedByMe"`
}

// LikeState is the counter snapshot returned after a like or unlike.
type LikeState struct {
	LikeCount int64 `json:"likeCount"`
	Liked     bool  `json:"liked"`
}

// Comment is a reader's reply under a post.
type Comment struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"postId"`
	AuthorID  int64     `json:"authorId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// CommentView is a comment decorated with its author and the like counters a
// reader sees.
type CommentView struct {
	Comment
	Author    directentity.UserRef `json:"author"`
	LikeCount int64                `json:"likeCount"`
	LikedByMe bool                 `json:"likedByMe"`
}
