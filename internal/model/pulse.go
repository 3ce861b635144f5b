// Package model holds the VibeSphere domain types.
//
// Vocabulary follows the product: a Pulse is a short video post, Resonance is
// its like count, Echoes are comments, Ripples are shares, and a Wave is a
// Pulse flagged as trending.
package model

import (
	"time"

	"github.com/samber/lo"
)

// Collection names in the document store.
const (
	CollectionPulses        = "pulses"
	CollectionUsers         = "users"
	CollectionNotifications = "notifications"
)

// Pulse is a short video feed item.
type Pulse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	UserPhoto    string    `json:"userPhoto,omitempty"`
	VideoURL     string    `json:"videoUrl"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	Caption      string    `json:"caption"`
	Tags         []string  `json:"tags"`
	Resonance    int       `json:"resonance"`
	ResonatedBy  []string  `json:"resonatedBy"`
	Echoes       []Echo    `json:"echoes"`
	Ripples      int       `json:"ripples"`
	Views        int       `json:"views"`
	Duration     int       `json:"duration"` // seconds
	CreatedAt    time.Time `json:"createdAt"`
	IsWave       bool      `json:"isWave,omitempty"`

	// Version is assigned by the document store on every write.
	// Not part of the document body.
	Version int64 `json:"-"`
}

// Echo is a comment on a Pulse. Echoes are append-only.
type Echo struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	UserPhoto string    `json:"userPhoto,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Resonance int       `json:"resonance"`
}

// FeedPage is one page of Pulses plus the cursor for the next page.
// An empty Cursor means the store had nothing past this page.
type FeedPage struct {
	Items  []Pulse
	Cursor string
}

// HasResonated reports whether uid is in the liking set.
func (p Pulse) HasResonated(uid string) bool {
	return uid != "" && lo.Contains(p.ResonatedBy, uid)
}

// WithResonance returns a copy of p with uid's like toggled to on.
// Applying it twice does not double count.
func (p Pulse) WithResonance(uid string, on bool) Pulse {
	had := p.HasResonated(uid)
	switch {
	case on && !had:
		p.ResonatedBy = AddToSet(p.ResonatedBy, uid)
		p.Resonance++
	case !on && had:
		p.ResonatedBy = RemoveFromSet(p.ResonatedBy, uid)
		if p.Resonance > 0 {
			p.Resonance--
		}
	}
	return p
}

// Clone returns a deep copy so callers can hand out snapshots without
// sharing slice backing arrays.
func (p Pulse) Clone() Pulse {
	p.Tags = append([]string(nil), p.Tags...)
	p.ResonatedBy = append([]string(nil), p.ResonatedBy...)
	p.Echoes = append([]Echo(nil), p.Echoes...)
	return p
}
