package ui

import (
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/vibesphere/internal/feed"
)

var (
	ErrNotBuffered = errors.New("player: not buffered")
	ErrNoSource    = errors.New("player: no video source")
)

// defaultBufferDelay is how long the simulated player takes to buffer.
const defaultBufferDelay = 400 * time.Millisecond

// Player is a simulated media element set for the terminal. It tracks
// which index is buffered and playing and how far along each one is.
// The controller calls into it from command goroutines, so it is
// safe for concurrent use.
type Player struct {
	mu      sync.Mutex
	refs    []feed.PulseRef
	ready   map[int]bool
	pos     map[int]time.Duration
	playing int // -1 when nothing plays
	started time.Time
	muted   bool
	gen     int // bumps on Load so stale buffering results are dropped

	bufferDelay time.Duration
	now         func() time.Time
}

// NewPlayer creates a Player. A zero delay uses the default.
func NewPlayer(bufferDelay time.Duration) *Player {
	if bufferDelay <= 0 {
		bufferDelay = defaultBufferDelay
	}
	return &Player{
		ready:       make(map[int]bool),
		pos:         make(map[int]time.Duration),
		playing:     -1,
		bufferDelay: bufferDelay,
		now:         time.Now,
	}
}

func (p *Player) Load(items []feed.PulseRef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs = append(p.refs[:0:0], items...)
	p.ready = make(map[int]bool)
	p.pos = make(map[int]time.Duration)
	p.playing = -1
	p.gen++
}

func (p *Player) Play(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.refs) {
		return fmt.Errorf("play %d: %w", i, ErrNoSource)
	}
	if p.refs[i].VideoURL == "" {
		return fmt.Errorf("play %s: %w", p.refs[i].ID, ErrNoSource)
	}
	if !p.ready[i] {
		return fmt.Errorf("play %s: %w", p.refs[i].ID, ErrNotBuffered)
	}
	if p.playing == i {
		return nil
	}
	p.stopLocked()
	p.playing = i
	p.started = p.now()
	return nil
}

func (p *Player) Pause(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing == i {
		p.stopLocked()
	}
}

func (p *Player) Rewind(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos[i] = 0
	if p.playing == i {
		p.started = p.now()
	}
}

func (p *Player) Ready(i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready[i]
}

func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
}

// Buffer returns a command that reports index i buffered after the
// buffering delay. Nil when i is already buffered or out of range.
func (p *Player) Buffer(i int) tea.Cmd {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.refs) || p.ready[i] {
		return nil
	}
	gen := p.gen
	return tea.Tick(p.bufferDelay, func(time.Time) tea.Msg {
		return Buffered{Index: i, Gen: gen}
	})
}

// MarkBuffered records a finished buffering. It reports false when the
// list was reloaded since the buffering started.
func (p *Player) MarkBuffered(b Buffered) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b.Gen != p.gen || b.Index < 0 || b.Index >= len(p.refs) {
		return false
	}
	p.ready[b.Index] = true
	return true
}

// Progress returns how far index i is and its length. Playback loops.
func (p *Player) Progress(i int) (elapsed, total time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.refs) {
		return 0, 0
	}
	total = time.Duration(p.refs[i].Duration) * time.Second
	elapsed = p.pos[i]
	if p.playing == i {
		elapsed += p.now().Sub(p.started)
	}
	if total > 0 {
		elapsed %= total
	}
	return elapsed, total
}

// Playing returns the index that is playing, or -1.
func (p *Player) Playing() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Player) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

func (p *Player) stopLocked() {
	if p.playing < 0 {
		return
	}
	p.pos[p.playing] += p.now().Sub(p.started)
	p.playing = -1
}
