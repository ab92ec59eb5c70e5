package chatview

import (
	"sync"
	"time"
)

// DefaultBannerTTL is how long a notification stays visible
const DefaultBannerTTL = 3 * time.Second

// Banner is a single-slot notification. Showing a new text replaces the
// current one and restarts the dismiss timer.
type Banner struct {
	mu       sync.Mutex
	ttl      time.Duration
	text     string
	visible  bool
	gen      uint64
	timer    *time.Timer
	onChange func(text string, visible bool)
}

// NewBanner creates a banner. onChange, if set, is called after every show
// and dismiss, outside the banner lock.
func NewBanner(ttl time.Duration, onChange func(text string, visible bool)) *Banner {
	if ttl <= 0 {
		ttl = DefaultBannerTTL
	}
	return &Banner{ttl: ttl, onChange: onChange}
}

// Show displays text until the ttl elapses or another Show arrives
func (b *Banner) Show(text string) {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	gen := b.gen
	b.text = text
	b.visible = true
	b.timer = time.AfterFunc(b.ttl, func() { b.expire(gen) })
	b.mu.Unlock()

	b.notify(text, true)
}

// expire dismisses the banner only if no newer Show happened since gen
func (b *Banner) expire(gen uint64) {
	b.mu.Lock()
	if gen != b.gen || !b.visible {
		b.mu.Unlock()
		return
	}
	b.visible = false
	text := b.text
	b.mu.Unlock()

	b.notify(text, false)
}

// Dismiss hides the banner immediately
func (b *Banner) Dismiss() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	wasVisible := b.visible
	b.visible = false
	text := b.text
	b.mu.Unlock()

	if wasVisible {
		b.notify(text, false)
	}
}

// Current returns the displayed text and whether it is visible
func (b *Banner) Current() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text, b.visible
}

func (b *Banner) notify(text string, visible bool) {
	if b.onChange != nil {
		b.onChange(text, visible)
	}
}
