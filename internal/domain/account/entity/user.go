package entity

import "time"

// User is a registered account together with its profile fields.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Bio          string    `json:"bio,omitempty"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Profile is the public view of a user, including the follow graph counts
// and the viewer's relationship to them.
type Profile struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Bio         string `json:"bio,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Followers   int64  `json:"followers"`
	Following   int64  `json:"following"`
	IsFollowing bool   `json:"isFollowing"`
}

// SearchResult is a user matched by a directory search.
type SearchResult struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// FollowEntry is one row of a followers or following listing, with the
// viewer's relationship to the listed user.
type FollowEntry struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	FollowedAt  time.Time `json:"followedAt"`
	IsFollowing bool      `json:"isFollowing"`
}

// TokenPair is the credential set returned by register/login.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
