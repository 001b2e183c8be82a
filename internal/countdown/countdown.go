package countdown

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// Untimed is shown when the attempt has no scheduled end.
	Untimed = "—:—:—"
	// Zero is the text of an expired countdown.
	Zero = "00:00:00"
)

// Remaining returns max(0, deadline-now).
func Remaining(deadline, now time.Time) time.Duration {
	d := deadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Format renders the time left until deadline as HH:MM:SS. Hours are not
// capped at 24.
func Format(deadline *time.Time, now time.Time) string {
	if deadline == nil || deadline.IsZero() {
		return Untimed
	}
	d := Remaining(*deadline, now)
	if d <= 0 {
		return Zero
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// Danger reports whether the text shows under ten minutes left.
func Danger(text string) bool {
	return strings.HasPrefix(text, "00:0")
}

// Countdown tracks one attempt deadline and reports text changes and expiry.
type Countdown struct {
	mu       sync.Mutex
	deadline *time.Time
	text     string
	expired  bool

	onChange func(text string)
	onExpire func()
}

// New creates a Countdown. Either callback may be nil.
func New(onChange func(text string), onExpire func()) *Countdown {
	return &Countdown{text: Untimed, onChange: onChange, onExpire: onExpire}
}

// Reset points the countdown at a new deadline (nil for untimed) and
// re-arms expiry.
func (c *Countdown) Reset(deadline *time.Time, now time.Time) string {
	c.mu.Lock()
	if deadline != nil {
		d := *deadline
		c.deadline = &d
	} else {
		c.deadline = nil
	}
	c.expired = false
	c.text = Format(c.deadline, now)
	text := c.text
	c.mu.Unlock()
	return text
}

// Tick recomputes the text. onChange fires only when the text differs from
// the previous one; onExpire fires once, on the first tick that reaches zero.
func (c *Countdown) Tick(now time.Time) string {
	c.mu.Lock()
	text := Format(c.deadline, now)
	changed := text != c.text
	c.text = text
	expire := c.deadline != nil && text == Zero && !c.expired
	if expire {
		c.expired = true
	}
	c.mu.Unlock()

	if changed && c.onChange != nil {
		c.onChange(text)
	}
	if expire && c.onExpire != nil {
		c.onExpire()
	}
	return text
}

// Text returns the last computed text.
func (c *Countdown) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Timed reports whether a deadline is set.
func (c *Countdown) Timed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline != nil
}

// Expired reports whether the expiry callback already ran.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}
