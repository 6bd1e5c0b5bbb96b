package service

import (
	"context"
	"strings"

	"github.com/vadim/glimpse/internal/apperr"
	"github.com/vadim/glimpse/internal/domain/publication/dao"
	"github.com/vadim/glimpse/internal/domain/publication/entity"
)

const (
	// DefaultListLimit is the page size used when the client supplies none.
	DefaultListLimit = 20
	// MaxListLimit caps a single listing page.
	MaxListLimit = 100

	maxTitleLength   = 200
	maxContentLength = 10000
	maxCommentLength = 2000
)

// PostRepository is the persistence surface for posts, likes and the feed.
type PostRepository interface {
	Create(ctx context.Context, ownerID int64, title, content, imageURL string) (*entity.Post, error)
	GetView(ctx context.Context, id, viewerID int64) (*entity.PostView, error)
	List(ctx context.Context, viewerID int64, f dao.ListFilter) ([]entity.PostView, error)
	Feed(ctx context.Context, userID int64, limit, offset int) ([]entity.PostView, error)
	OwnerOf(ctx context.Context, id int64) (int64, error)
	Update(ctx context.Context, id int64, title, content, imageURL *string) error
	Delete(ctx context.Context, id int64) error
	Like(ctx context.Context, postID, userID int64) (*entity.LikeState, error)
	Unlike(ctx context.Context, postID, userID int64) (*entity.LikeState, error)
}

// CommentRepository is the persistence surface for comments and their likes.
type CommentRepository interface {
	Create(ctx context.Context, postID, authorID int64, body string) (*entity.CommentView, error)
	ListByPost(ctx context.Context, postID, viewerID int64) ([]entity.CommentView, error)
	AuthorOf(ctx context.Context, id int64) (int64, error)
	Update(ctx context.Context, id, viewerID int64, body string) (*entity.CommentView, error)
	Delete(ctx context.Context, id int64) error
	Like(ctx context.Context, commentID, userID int64) (*entity.LikeState, error)
	Unlike(ctx context.Context, commentID, userID int64) (*entity.LikeState, error)
}

// Service handles business logic for posts, likes, comments and the feed.
type Service struct {
	posts    PostRepository
	comments CommentRepository
}

// New creates a new publication service.
func New(posts PostRepository, comments CommentRepository) *Service {
	return &Service{posts: posts, comments: comments}
}

// CreateInput represents input for creating a post.
type CreateInput struct {
	OwnerID  int64
	Title    string
	Content  string
	ImageURL string
}

// CreatePost validates and persists a new post.
func (s *Service) CreatePost(ctx context.Context, in CreateInput) (*entity.Post, error) {
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)

	if content == "" {
		return nil, apperr.Invalid("content must not be empty")
	}
	if len(content) > maxContentLength {
		return nil, apperr.Invalid("content is too long")
	}
	if len(title) > maxTitleLength {
		return nil, apperr.Invalid("title is too long")
	}

	post, err := s.posts.Create(ctx, in.OwnerID, title, content, strings.TrimSpace(in.ImageURL))
	if err != nil {
		return nil, apperr.Internal("creating post", err)
	}
	return post, nil
}

// ListInput narrows and pages a post listing. ViewerID 0 means anonymous.
type ListInput struct {
	ViewerID int64
	Query    string
	OwnerID  int64
	Limit    int
	Offset   int
}

// ListPosts returns posts newest-first, filtered by owner and text query.
func (s *Service) ListPosts(ctx context.Context, in ListInput) ([]entity.PostView, error) {
	limit, offset := clampPage(in.Limit, in.Offset)

	views, err := s.posts.List(ctx, in.ViewerID, dao.ListFilter{
		Query:   strings.TrimSpace(in.Query),
		OwnerID: in.OwnerID,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		return nil, apperr.Internal("listing posts", err)
	}
	return views, nil
}

// GetPost returns a single post as seen by the viewer.
func (s *Service) GetPost(ctx context.Context, id, viewerID int64) (*entity.PostView, error) {
	view, err := s.posts.GetView(ctx, id, viewerID)
	if err != nil {
		return nil, apperr.Internal("looking up post", err)
	}
	if view == nil {
		return nil, apperr.NotFound("post not found")
	}
	return view, nil
}

// UpdateInput carries the fields of a post edit; nil pointers mean "keep".
type UpdateInput struct {
	Title    *string
	Content  *string
	ImageURL *string
}

// UpdatePost applies a partial edit to a post. Only the owner may edit it,
// and at least one field must be provided.
func (s *Service) UpdatePost(ctx context.Context, id, callerID int64, in UpdateInput) (*entity.PostView, error) {
	ownerID, err := s.posts.OwnerOf(ctx, id)
	if err != nil {
		return nil, apperr.Internal("looking up post", err)
	}
	if ownerID == 0 {
		return nil, apperr.NotFound("post not found")
	}
	if ownerID != callerID {
		return nil, apperr.Forbidden("only the owner can edit this post")
	}

	if in.Title == nil && in.Content == nil && in.ImageURL == nil {
		return nil, apperr.Invalid("no changes provided")
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if len(title) > maxTitleLength {
			return nil, apperr.Invalid("title is too long")
		}
		in.Title = &title
	}
	if in.Content != nil {
		content := strings.TrimSpace(*in.Content)
		if content == "" {
			return nil, apperr.Invalid("content must not be empty")
		}
		if len(content) > maxContentLength {
			return nil, apperr.Invalid("content is too long")
		}
		in.Content = &content
	}
	if in.ImageURL != nil {
		imageURL := strings.TrimSpace(*in.ImageURL)
		in.ImageURL = &imageURL
	}

	if err := s.posts.Update(ctx, id, in.Title, in.Content, in.ImageURL); err != nil {
		return nil, apperr.Internal("updating post", err)
	}

	view, err := s.posts.GetView(ctx, id, callerID)
	if err != nil {
		return nil, apperr.Internal("looking up post", err)
	}
	return view, nil
}

// DeletePost removes a post. Only the owner may delete it.
func (s *Service) DeletePost(ctx context.Context, id, callerID int64) error {
	ownerID, err := s.posts.OwnerOf(ctx, id)
	if err != nil {
		return apperr.Internal("looking up post", err)
	}
	if ownerID == 0 {
		return apperr.NotFound("post not found")
	}
	if ownerID != callerID {
		return apperr.Forbidden("only the owner can delete this post")
	}

	if err := s.posts.Delete(ctx, id); err != nil {
		return apperr.Internal("deleting post", err)
	}
	return nil
}

// Like records the caller's like on a post. Idempotent.
func (s *Service) Like(ctx context.Context, postID, callerID int64) (*entity.LikeState, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}
	state, err := s.posts.Like(ctx, postID, callerID)
	if err != nil {
		return nil, apperr.Internal("recording like", err)
	}
	return state, nil
}

// Unlike removes the caller's like from a post. Idempotent.
func (s *Service) Unlike(ctx context.Context, postID, callerID int64) (*entity.LikeState, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}
	state, err := s.posts.Unlike(ctx, postID, callerID)
	if err != nil {
		return nil, apperr.Internal("removing like", err)
	}
	return state, nil
}

// AddComment appends a comment under a post.
func (s *Service) AddComment(ctx context.Context, postID, authorID int64, body string) (*entity.CommentView, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperr.Invalid("comment body must not be empty")
	}
	if len(body) > maxCommentLength {
		return nil, apperr.Invalid("comment is too long")
	}
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}

	view, err := s.comments.Create(ctx, postID, authorID, body)
	if err != nil {
		return nil, apperr.Internal("creating comment", err)
	}
	return view, nil
}

// ListComments returns a post's comments oldest-first as seen by the viewer.
func (s *Service) ListComments(ctx context.Context, postID, viewerID int64) ([]entity.CommentView, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}
	views, err := s.comments.ListByPost(ctx, postID, viewerID)
	if err != nil {
		return nil, apperr.Internal("listing comments", err)
	}
	return views, nil
}

// UpdateComment replaces a comment's body. Only the author may edit it.
func (s *Service) UpdateComment(ctx context.Context, id, callerID int64, body string) (*entity.CommentView, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperr.Invalid("comment body must not be empty")
	}
	if len(body) > maxCommentLength {
		return nil, apperr.Invalid("comment is too long")
	}

	authorID, err := s.comments.AuthorOf(ctx, id)
	if err != nil {
		return nil, apperr.Internal("looking up comment", err)
	}
	if authorID == 0 {
		return nil, apperr.NotFound("comment not found")
	}
	if authorID != callerID {
		return nil, apperr.Forbidden("only the author can edit this comment")
	}

	view, err := s.comments.Update(ctx, id, callerID, body)
	if err != nil {
		return nil, apperr.Internal("updating comment", err)
	}
	return view, nil
}

// LikeComment records the caller's like on a comment. Idempotent.
func (s *Service) LikeComment(ctx context.Context, commentID, callerID int64) (*entity.LikeState, error) {
	if err := s.requireComment(ctx, commentID); err != nil {
		return nil, err
	}
	state, err := s.comments.Like(ctx, commentID, callerID)
	if err != nil {
		return nil, apperr.Internal("recording comment like", err)
	}
	return state, nil
}

// UnlikeComment removes the caller's like from a comment. Idempotent.
func (s *Service) UnlikeComment(ctx context.Context, commentID, callerID int64) (*entity.LikeState, error) {
	if err := s.requireComment(ctx, commentID); err != nil {
		return nil, err
	}
	state, err := s.comments.Unlike(ctx, commentID, callerID)
	if err != nil {
		return nil, apperr.Internal("removing comment like", err)
	}
	return state, nil
}

// DeleteComment removes a comment. Only the author may delete it.
func (s *Service) DeleteComment(ctx context.Context, id, callerID int64) error {
	authorID, err := s.comments.AuthorOf(ctx, id)
	if err != nil {
		return apperr.Internal("looking up comment", err)
	}
	if authorID == 0 {
		return apperr.NotFound("comment not found")
	}
	if authorID != callerID {
		return apperr.Forbidden("only the author can delete this comment")
	}

	if err := s.comments.Delete(ctx, id); err != nil {
		return apperr.Internal("deleting comment", err)
	}
	return nil
}

// Feed returns posts from followed users plus the caller's own, newest-first.
func (s *Service) Feed(ctx context.Context, userID int64, limit, offset int) ([]entity.PostView, error) {
	limit, offset = clampPage(limit, offset)

	views, err := s.posts.Feed(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperr.Internal("building feed", err)
	}
	return views, nil
}

func (s *Service) requireComment(ctx context.Context, commentID int64) error {
	authorID, err := s.comments.AuthorOf(ctx, commentID)
	if err != nil {
		return apperr.Internal("looking up comment", err)
	}
	if authorID == 0 {
		return apperr.NotFound("comment not found")
	}
	return nil
}

func (s *Service) requirePost(ctx context.Context, postID int64) error {
	ownerID, err := s.posts.OwnerOf(ctx, postID)
	if err != nil {
		return apperr.Internal("looking up post", err)
	}
	if ownerID == 0 {
		return apperr.NotFound("post not found")
	}
	return nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
