package service

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadim/glimpse/internal/apperr"
	"github.com/vadim/glimpse/internal/auth"
	"github.com/vadim/glimpse/internal/domain/account/entity"
)

// memUsers is an in-memory UserRepository for service tests.
type memUsers struct {
	nextID  int64
	users   map[int64]*entity.User
	follows map[[2]int64]bool

	searchedQuery string
}

func newMemUsers() *memUsers {
	return &memUsers{
		users:   map[int64]*entity.User{},
		follows: map[[2]int64]bool{},
	}
}

func (m *memUsers) Create(_ context.Context, email, name, passwordHash string) (*entity.User, error) {
	m.nextID++
	u := &entity.User{ID: m.nextID, Email: email, Name: name, PasswordHash: passwordHash}
	m.users[u.ID] = u
	return u, nil
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*entity.User, error) {
	return m.users[id], nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memUsers) UpdateProfile(_ context.Context, id int64, name, bio, avatarURL *string) error {
	u := m.users[id]
	if name != nil {
		u.Name = *name
	}
	if bio != nil {
		u.Bio = *bio
	}
	if avatarURL != nil {
		u.AvatarURL = *avatarURL
	}
	return nil
}

func (m *memUsers) Profile(_ context.Context, id, viewerID int64) (*entity.Profile, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &entity.Profile{ID: u.ID, Name: u.Name, IsFollowing: m.follows[[2]int64{viewerID, id}]}, nil
}

func (m *memUsers) Exists(_ context.Context, id int64) (bool, error) {
	_, ok := m.users[id]
	return ok, nil
}

func (m *memUsers) Search(_ context.Context, callerID int64, query string, limit int) ([]entity.SearchResult, error) {
	m.searchedQuery = query
	results := []entity.SearchResult{}
	for id := int64(1); id <= m.nextID; id++ {
		u, ok := m.users[id]
		if !ok || u.ID == callerID {
			continue
		}
		if strings.Contains(u.Name, query) || strings.Contains(u.Email, query) {
			results = append(results, entity.SearchResult{ID: u.ID, Name: u.Name, Email: u.Email})
		}
	}
	return results, nil
}

func (m *memUsers) Followers(_ context.Context, id, viewerID int64) ([]entity.FollowEntry, error) {
	entries := []entity.FollowEntry{}
	for edge := range m.follows {
		if edge[1] != id {
			continue
		}
		u := m.users[edge[0]]
		entries = append(entries, entity.FollowEntry{
			ID:          u.ID,
			Name:        u.Name,
			IsFollowing: m.follows[[2]int64{viewerID, u.ID}],
		})
	}
	return entries, nil
}

func (m *memUsers) Following(_ context.Context, id, viewerID int64) ([]entity.FollowEntry, error) {
	entries := []entity.FollowEntry{}
	for edge := range m.follows {
		if edge[0] != id {
			continue
		}
		u := m.users[edge[1]]
		entries = append(entries, entity.FollowEntry{
			ID:          u.ID,
			Name:        u.Name,
			IsFollowing: m.follows[[2]int64{viewerID, u.ID}],
		})
	}
	return entries, nil
}

func (m *memUsers) Follow(_ context.Context, followerID, followeeID int64) error {
	m.follows[[2]int64{followerID, followeeID}] = true
	return nil
}

func (m *memUsers) Unfollow(_ context.Context, followerID, followeeID int64) error {
	delete(m.follows, [2]int64{followerID, followeeID})
	return nil
}

func newAccountTestService(t *testing.T) (*Service, *memUsers) {
	t.Helper()
	users := newMemUsers()
	tokens := auth.NewManager("test-access", "test-refresh", time.Minute, time.Hour)
	return New(users, tokens, slog.New(slog.DiscardHandler)), users
}

func seedUser(t *testing.T, users *memUsers, email, name string) *entity.User {
	t.Helper()
	u, err := users.Create(context.Background(), email, name, "")
	require.NoError(t, err)
	return u
}

func TestSearchUsers(t *testing.T) {
	svc, users := newAccountTestService(t)
	ctx := context.Background()

	alice := seedUser(t, users, "alice@example.com", "alice")
	seedUser(t, users, "bob@example.com", "bob")
	seedUser(t, users, "bobby@example.com", "bobby")

	results, err := svc.SearchUsers(ctx, alice.ID, "  bob  ")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "bob", users.searchedQuery)
	assert.Equal(t, "bob@example.com", results[0].Email)

	// The caller never matches themselves.
	results, err = svc.SearchUsers(ctx, alice.ID, "alice")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchUsersBlankQuery(t *testing.T) {
	svc, users := newAccountTestService(t)

	results, err := svc.SearchUsers(context.Background(), 1, "   ")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Empty(t, users.searchedQuery)
}

func TestFollowListings(t *testing.T) {
	svc, users := newAccountTestService(t)
	ctx := context.Background()

	alice := seedUser(t, users, "alice@example.com", "alice")
	bob := seedUser(t, users, "bob@example.com", "bob")
	carol := seedUser(t, users, "carol@example.com", "carol")

	require.NoError(t, svc.Follow(ctx, bob.ID, alice.ID))
	require.NoError(t, svc.Follow(ctx, carol.ID, alice.ID))
	require.NoError(t, svc.Follow(ctx, bob.ID, carol.ID))

	followers, err := svc.Followers(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, followers, 2)
	for _, f := range followers {
		// Bob follows carol but not himself.
		assert.Equal(t, f.ID == carol.ID, f.IsFollowing)
	}

	following, err := svc.Following(ctx, bob.ID, 0)
	require.NoError(t, err)
	require.Len(t, following, 2)

	_, err = svc.Followers(ctx, 999, 0)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	_, err = svc.Following(ctx, 999, 0)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}
