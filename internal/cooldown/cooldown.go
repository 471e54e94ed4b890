// Package cooldown gates how often an alert may produce evidence.
package cooldown

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// State of the controller at a given instant.
type State int

const (
	// Idle means no alert yet, or the cooldown has elapsed.
	Idle State = iota
	// Suppressed means the last approved alert is still within the cooldown window.
	Suppressed
)

func (s State) String() string {
	if s == Suppressed {
		return "suppressed"
	}
	return "idle"
}

// Controller tracks the last approved alert of a single run. Not safe for concurrent use;
// each run owns its own controller.
type Controller struct {
	cooldown time.Duration
	last     time.Time
	set      bool
}

// New returns an idle controller with the given cooldown window.
func New(cooldown time.Duration) *Controller {
	return &Controller{cooldown: cooldown}
}

// Cooldown returns the configured window.
func (c *Controller) Cooldown() time.Duration {
	return c.cooldown
}

// ShouldAlert reports whether a new alert is permitted at now.
func (c *Controller) ShouldAlert(now time.Time) bool {
	if !c.set {
		return true
	}
	return now.Sub(c.last) >= c.cooldown
}

// RecordAlert marks now as the time of the last approved alert.
func (c *Controller) RecordAlert(now time.Time) {
	c.last = now
	c.set = true
}

// LastAlert returns the time of the last approved alert, if any.
func (c *Controller) LastAlert() (time.Time, bool) {
	return c.last, c.set
}

// Remaining returns how long until alerts are permitted again; zero when idle.
func (c *Controller) Remaining(now time.Time) time.Duration {
	if !c.set {
		return 0
	}
	left := c.cooldown - now.Sub(c.last)
	if left < 0 {
		return 0
	}
	return left
}

// State returns Idle or Suppressed at now.
func (c *Controller) State(now time.Time) State {
	if c.ShouldAlert(now) {
		return Idle
	}
	return Suppressed
}

// TimeSource selects which clock drives cooldown decisions.
type TimeSource string

const (
	// MediaTime uses the frame presentation timestamp, so results do not depend on processing speed.
	MediaTime TimeSource = "media"
	// WallTime uses the wall clock at the moment the frame is processed.
	WallTime TimeSource = "wall"
)

// ParseTimeSource validates a configured time source name.
func ParseTimeSource(s string) (TimeSource, error) {
	switch TimeSource(s) {
	case MediaTime, WallTime:
		return TimeSource(s), nil
	default:
		return "", fmt.Errorf("unknown cooldown clock %q (want %q or %q)", s, MediaTime, WallTime)
	}
}

// Timeline turns a frame timestamp into the instant handed to the Controller.
type Timeline struct {
	source TimeSource
	clock  clock.Clock
}

// NewTimeline builds a Timeline. A nil clk uses the real clock.
func NewTimeline(source TimeSource, clk clock.Clock) Timeline {
	if clk == nil {
		clk = clock.New()
	}
	return Timeline{source: source, clock: clk}
}

// Now returns the cooldown instant for a frame presented at frameMs milliseconds.
func (t Timeline) Now(frameMs float64) time.Time {
	if t.source == WallTime {
		return t.clock.Now()
	}
	return time.UnixMilli(0).Add(time.Duration(frameMs * float64(time.Millisecond)))
}
