package countdown

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		deadline *time.Time
		now      time.Time
		want     string
	}{
		{"untimed", nil, t0, Untimed},
		{"hours", ptr(t0.Add(2*time.Hour + 5*time.Minute + 9*time.Second)), t0, "02:05:09"},
		{"sub-second rounds down", ptr(t0.Add(1500 * time.Millisecond)), t0, "00:00:01"},
		{"past deadline", ptr(t0.Add(-time.Minute)), t0, Zero},
		{"over a day", ptr(t0.Add(30 * time.Hour)), t0, "30:00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.deadline, tt.now))
		})
	}
}

func TestDanger(t *testing.T) {
	assert.True(t, Danger("00:09:59"))
	assert.True(t, Danger(Zero))
	assert.False(t, Danger("00:10:00"))
	assert.False(t, Danger(Untimed))
}

func TestTickExpiresExactlyOnce(t *testing.T) {
	var changes []string
	expired := 0
	c := New(func(s string) { changes = append(changes, s) }, func() { expired++ })

	deadline := t0.Add(3 * time.Second)
	assert.Equal(t, "00:00:03", c.Reset(&deadline, t0))

	for i := 1; i <= 6; i++ {
		c.Tick(t0.Add(time.Duration(i) * time.Second))
	}

	assert.Equal(t, []string{"00:00:02", "00:00:01", Zero}, changes)
	assert.Equal(t, 1, expired)
	assert.True(t, c.Expired())
}

func TestTickSuppressesUnchangedText(t *testing.T) {
	calls := 0
	c := New(func(string) { calls++ }, nil)
	deadline := t0.Add(time.Minute)
	c.Reset(&deadline, t0)

	c.Tick(t0.Add(100 * time.Millisecond))
	c.Tick(t0.Add(900 * time.Millisecond))
	assert.Equal(t, 1, calls)
}

func TestUntimedNeverExpires(t *testing.T) {
	expired := false
	c := New(nil, func() { expired = true })
	c.Reset(nil, t0)

	assert.Equal(t, Untimed, c.Tick(t0.Add(24*time.Hour)))
	assert.False(t, expired)
	assert.False(t, c.Timed())
}

func TestTickSourceFanOut(t *testing.T) {
	src := NewTickSource(time.Second, zerolog.Nop())

	var a, b int
	cancelA := src.Subscribe(func(time.Time) { a++ })
	src.Subscribe(func(time.Time) { b++ })
	require.Equal(t, 2, src.Subscribers())

	src.Broadcast(t0)
	cancelA()
	cancelA()
	src.Broadcast(t0)

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	assert.Equal(t, 1, src.Subscribers())
}

func ptr(t time.Time) *time.Time { return &t }
