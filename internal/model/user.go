package model

import (
	"time"

	"github.com/samber/lo"
)

// User is a VibeSphere profile document.
type User struct {
	UID            string    `json:"uid"`
	Username       string    `json:"username"`
	DisplayName    string    `json:"displayName"`
	Email          string    `json:"email"`
	PhotoURL       string    `json:"photoURL,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	Tribe          []string  `json:"tribe"`      // followers
	VibingWith     []string  `json:"vibingWith"` // following
	Favorites      []string  `json:"favorites"`  // saved pulse ids
	ResonanceCount int       `json:"resonanceCount"`
	CreatedAt      time.Time `json:"createdAt"`
	IsOnline       bool      `json:"isOnline,omitempty"`

	// PasswordHash is only present on accounts created with email sign-up.
	PasswordHash string `json:"passwordHash,omitempty"`
	Provider     string `json:"provider,omitempty"`
}

// HasFavorite reports whether pulseID is in the user's favorites.
func (u User) HasFavorite(pulseID string) bool {
	return lo.Contains(u.Favorites, pulseID)
}

// IsVibingWith reports whether the user follows uid.
func (u User) IsVibingWith(uid string) bool {
	return lo.Contains(u.VibingWith, uid)
}

// Public strips credentials before the user is handed to the UI.
func (u User) Public() User {
	u.PasswordHash = ""
	u.Tribe = append([]string(nil), u.Tribe...)
	u.VibingWith = append([]string(nil), u.VibingWith...)
	u.Favorites = append([]string(nil), u.Favorites...)
	return u
}
