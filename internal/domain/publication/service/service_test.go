package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadim/glimpse/internal/apperr"
	"github.com/vadim/glimpse/internal/domain/publication/dao"
	"github.com/vadim/glimpse/internal/domain/publication/entity"
)

// memPosts is an in-memory PostRepository for service tests.
type memPosts struct {
	nextID int64
	posts  map[int64]*entity.Post
	likes  map[int64]map[int64]bool
}

func newMemPosts() *memPosts {
	return &memPosts{
		posts: map[int64]*entity.Post{},
		likes: map[int64]map[int64]bool{},
	}
}

func (m *memPosts) Create(_ context.Context, ownerID int64, title, content, imageURL string) (*entity.Post, error) {
	m.nextID++
	p := &entity.Post{ID: m.nextID, OwnerID: ownerID, Title: title, Content: content, ImageURL: imageURL}
	m.posts[p.ID] = p
	return p, nil
}

func (m *memPosts) GetView(_ context.Context, id, viewerID int64) (*entity.PostView, error) {
	p, ok := m.posts[id]
	if !ok {
		return nil, nil
	}
	return &entity.PostView{
		Post:      *p,
		LikeCount: int64(len(m.likes[id])),
		LikedByMe: m.likes[id][viewerID],
	}, nil
}

func (m *memPosts) List(_ context.Context, viewerID int64, f dao.ListFilter) ([]entity.PostView, error) {
	views := []entity.PostView{}
	for id := m.nextID; id >= 1; id-- {
		p, ok := m.posts[id]
		if !ok {
			continue
		}
		if f.OwnerID != 0 && p.OwnerID != f.OwnerID {
			continue
		}
		views = append(views, entity.PostView{Post: *p, LikedByMe: m.likes[id][viewerID]})
	}
	return views, nil
}

func (m *memPosts) Feed(ctx context.Context, userID int64, limit, offset int) ([]entity.PostView, error) {
	return m.List(ctx, userID, dao.ListFilter{OwnerID: userID, Limit: limit, Offset: offset})
}

func (m *memPosts) OwnerOf(_ context.Context, id int64) (int64, error) {
	p, ok := m.posts[id]
	if !ok {
		return 0, nil
	}
	return p.OwnerID, nil
}

func (m *memPosts) Update(_ context.Context, id int64, title, content, imageURL *string) error {
	p := m.posts[id]
	if title != nil {
		p.Title = *title
	}
	if content != nil {
		p.Content = *content
	}
	if imageURL != nil {
		p.ImageURL = *imageURL
	}
	return nil
}

func (m *memPosts) Delete(_ context.Context, id int64) error {
	delete(m.posts, id)
	delete(m.likes, id)
	return nil
}

func (m *memPosts) Like(_ context.Context, postID, userID int64) (*entity.LikeState, error) {
	if m.likes[postID] == nil {
		m.likes[postID] = map[int64]bool{}
	}
	m.likes[postID][userID] = true
	return &entity.LikeState{LikeCount: int64(len(m.likes[postID])), Liked: true}, nil
}

func (m *memPosts) Unlike(_ context.Context, postID, userID int64) (*entity.LikeState, error) {
	delete(m.likes[postID], userID)
	return &entity.LikeState{LikeCount: int64(len(m.likes[postID])), Liked: false}, nil
}

// memComments is an in-memory CommentRepository for service tests.
type memComments struct {
	nextID   int64
	comments map[int64]*entity.Comment
	likes    map[int64]map[int64]bool
}

func newMemComments() *memComments {
	return &memComments{
		comments: map[int64]*entity.Comment{},
		likes:    map[int64]map[int64]bool{},
	}
}

func (m *memComments) Create(_ context.Context, postID, authorID int64, body string) (*entity.CommentView, error) {
	m.nextID++
	c := &entity.Comment{ID: m.nextID, PostID: postID, AuthorID: authorID, Body: body}
	m.comments[c.ID] = c
	return &entity.CommentView{Comment: *c}, nil
}

func (m *memComments) ListByPost(_ context.Context, postID, viewerID int64) ([]entity.CommentView, error) {
	views := []entity.CommentView{}
	for id := int64(1); id <= m.nextID; id++ {
		if c, ok := m.comments[id]; ok && c.PostID == postID {
			views = append(views, entity.CommentView{
				Comment:   *c,
				LikeCount: int64(len(m.likes[id])),
				LikedByMe: m.likes[id][viewerID],
			})
		}
	}
	return views, nil
}

func (m *memComments) AuthorOf(_ context.Context, id int64) (int64, error) {
	c, ok := m.comments[id]
	if !ok {
		return 0, nil
	}
	return c.AuthorID, nil
}

func (m *memComments) Update(_ context.Context, id, viewerID int64, body string) (*entity.CommentView, error) {
	c := m.comments[id]
	c.Body = body
	return &entity.CommentView{
		Comment:   *c,
		LikeCount: int64(len(m.likes[id])),
		LikedByMe: m.likes[id][viewerID],
	}, nil
}

func (m *memComments) Delete(_ context.Context, id int64) error {
	delete(m.comments, id)
	delete(m.likes, id)
	return nil
}

func (m *memComments) Like(_ context.Context, commentID, userID int64) (*entity.LikeState, error) {
	if m.likes[commentID] == nil {
		m.likes[commentID] = map[int64]bool{}
	}
	m.likes[commentID][userID] = true
	return &entity.LikeState{LikeCount: int64(len(m.likes[commentID])), Liked: true}, nil
}

func (m *memComments) Unlike(_ context.Context, commentID, userID int64) (*entity.LikeState, error) {
	delete(m.likes[commentID], userID)
	return &entity.LikeState{LikeCount: int64(len(m.likes[commentID])), Liked: false}, nil
}

func newTestService() (*Service, *memPosts, *memComments) {
	posts := newMemPosts()
	comments := newMemComments()
	return New(posts, comments), posts, comments
}

func TestCreatePostValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreatePost(ctx, CreateInput{OwnerID: 1, Content: "   "})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	post, err := svc.CreatePost(ctx, CreateInput{OwnerID: 1, Title: "  t  ", Content: "  hello  "})
	require.NoError(t, err)
	assert.Equal(t, "t", post.Title)
	assert.Equal(t, "hello", post.Content)
}

func TestDeletePostOwnership(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, CreateInput{OwnerID: 1, Content: "mine"})
	require.NoError(t, err)

	err = svc.DeletePost(ctx, post.ID, 2)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	require.NoError(t, svc.DeletePost(ctx, post.ID, 1))

	err = svc.DeletePost(ctx, post.ID, 1)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestLikeUnlikeIdempotent(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, CreateInput{OwnerID: 1, Content: "likeable"})
	require.NoError(t, err)

	state, err := svc.Like(ctx, post.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.LikeCount)
	assert.True(t, state.Liked)

	// Liking again must not double-count.
	state, err = svc.Like(ctx, post.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.LikeCount)

	state, err = svc.Unlike(ctx, post.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.LikeCount)
	assert.False(t, state.Liked)

	// Unliking when not liked is a no-op.
	state, err = svc.Unlike(ctx, post.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.LikeCount)

	_, err = svc.Like(ctx, 999, 2)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestCommentsLifecycle(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, CreateInput{OwnerID: 1, Content: "discuss"})
	require.NoError(t, err)

	_, err = svc.AddComment(ctx, post.ID, 2, "  ")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	c1, err := svc.AddComment(ctx, post.ID, 2, "first")
	require.NoError(t, err)
	c2, err := svc.AddComment(ctx, post.ID, 3, "second")
	require.NoError(t, err)

	list, err := svc.ListComments(ctx, post.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, c1.ID, list[0].ID)
	assert.Equal(t, c2.ID, list[1].ID)

	// Only the author may delete.
	err = svc.DeleteComment(ctx, c1.ID, 3)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
	require.NoError(t, svc.DeleteComment(ctx, c1.ID, 2))

	list, err = svc.ListComments(ctx, post.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "second", list[0].Body)
}

func TestUpdatePost(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, CreateInput{OwnerID: 1, Title: "before", Content: "old"})
	require.NoError(t, err)

	content := "new content"
	_, err = svc.UpdatePost(ctx, post.ID, 2, UpdateInput{Content: &content})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	_, err = svc.UpdatePost(ctx, post.ID, 1, UpdateInput{})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	blank := "   "
	_, err = svc.UpdatePost(ctx, post.ID, 1, UpdateInput{Content: &blank})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	view, err := svc.UpdatePost(ctx, post.ID, 1, UpdateInput{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, "new content", view.Content)
	assert.Equal(t, "before", view.Title)

	_, err = svc.UpdatePost(ctx, 999, 1, UpdateInput{Content: &content})
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestUpdateCommentAuthorOnly(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, CreateInput{OwnerID: 1, Content: "discuss"})
	require.NoError(t, err)
	c, err := svc.AddComment(ctx, post.ID, 2, "tpyo")
	require.NoError(t, err)

	_, err = svc.UpdateComment(ctx, c.ID, 3, "typo")
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	_, err = svc.UpdateComment(ctx, c.ID, 2, "   ")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	view, err := svc.UpdateComment(ctx, c.ID, 2, "  typo  ")
	require.NoError(t, err)
	assert.Equal(t, "typo", view.Body)

	_, err = svc.UpdateComment(ctx, 999, 2, "typo")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestCommentLikeIdempotent(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, CreateInput{OwnerID: 1, Content: "likeable"})
	require.NoError(t, err)
	c, err := svc.AddComment(ctx, post.ID, 2, "nice")
	require.NoError(t, err)

	state, err := svc.LikeComment(ctx, c.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.LikeCount)
	assert.True(t, state.Liked)

	// Liking again must not double-count.
	state, err = svc.LikeComment(ctx, c.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.LikeCount)

	// The listing reflects the viewer's like.
	list, err := svc.ListComments(ctx, post.ID, 3)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].LikeCount)
	assert.True(t, list[0].LikedByMe)

	list, err = svc.ListComments(ctx, post.ID, 2)
	require.NoError(t, err)
	assert.False(t, list[0].LikedByMe)

	state, err = svc.UnlikeComment(ctx, c.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.LikeCount)
	assert.False(t, state.Liked)

	_, err = svc.LikeComment(ctx, 999, 3)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}
