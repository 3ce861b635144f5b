package feed

import "fmt"

// Phase is the playback state of the active item.
type Phase int

const (
	PhaseIdle Phase = iota // nothing loaded
	PhaseBuffering
	PhasePlaying
	PhasePaused
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseBuffering:
		return "buffering"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Playback is the controller's view of the active media element. Never
// persisted.
type Playback struct {
	Index    int
	Phase    Phase
	WantPlay bool // intent; true after every index change
	Muted    bool
}

func (p Playback) String() string {
	if p.Phase == PhaseIdle {
		return "Idle"
	}
	return fmt.Sprintf("%s(%d)", p.Phase, p.Index)
}

// Media is the set of media elements rendered for the list, addressed by
// list index. Implementations must not call back into the controller
// synchronously from these methods.
type Media interface {
	// Load tells the player which items now occupy each index.
	Load(items []PulseRef)
	Play(i int) error
	Pause(i int)
	Rewind(i int)
	Ready(i int) bool
	SetMuted(muted bool)
}

// PulseRef is the part of a Pulse the player needs.
type PulseRef struct {
	ID       string
	VideoURL string
	Duration int
}
