// Package browser provides the automated-browser capability the portal
// state machines drive: a Driver interface over a live page, a chromedp
// implementation, and a bounded pool of reusable sessions.
package browser

import (
	"errors"
	"fmt"
	"time"
)

// ErrWaitTimeout is returned when an element or dialog did not appear
// within the allowed wait.
var ErrWaitTimeout = errors.New("browser: wait timed out")

// ErrSessionDead is returned when the underlying browser process or
// target is gone. Callers must discard the session, never release it.
var ErrSessionDead = errors.New("browser: session dead")

// Strategy selects how a Locator value is interpreted.
type Strategy string

const (
	ByID    Strategy = "id"
	ByName  Strategy = "name"
	ByClass Strategy = "class"
	ByXPath Strategy = "xpath"
)

// Locator names one element on the portal. Values are fragile,
// site-specific constants and stay overridable through configuration.
type Locator struct {
	Strategy Strategy `toml:"strategy" json:"strategy"`
	Value    string   `toml:"value" json:"value"`
}

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.Strategy, l.Value)
}

// Driver is the blocking page-interaction capability consumed by the
// login and swap state machines. Implementations report a dead browser
// as ErrSessionDead (possibly wrapped) so callers can distinguish a
// broken session from an ordinary timeout.
type Driver interface {
	// Navigate loads url and waits for the document to be ready.
	Navigate(url string) error

	// WaitVisible blocks until the element is present or timeout
	// elapses (ErrWaitTimeout).
	WaitVisible(loc Locator, timeout time.Duration) error

	// Exists reports whether the element is currently in the DOM,
	// without waiting.
	Exists(loc Locator) (bool, error)

	// Click clicks the element.
	Click(loc Locator) error

	// SelectValue picks the option with the given value attribute in a
	// select control.
	SelectValue(loc Locator, value string) error

	// SendKeys types text into the element.
	SendKeys(loc Locator, text string) error

	// Text returns the element's visible text.
	Text(loc Locator) (string, error)

	// CurrentURL returns the page's current location.
	CurrentURL() (string, error)

	// DialogPresent waits up to timeout for a native JavaScript dialog
	// to open and reports whether one did.
	DialogPresent(timeout time.Duration) bool

	// AcceptDialog dismisses the pending dialog and returns its text.
	// It is only valid after DialogPresent reported true.
	AcceptDialog() (string, error)

	// HideElement sets the element invisible. Cosmetic only; failures
	// are ignorable.
	HideElement(loc Locator) error

	// Healthy reports whether the underlying browser is still usable.
	Healthy() bool
}

// IsSessionDead reports whether err indicates an unusable browser
// session rather than an ordinary element/timeout failure.
func IsSessionDead(err error) bool {
	return errors.Is(err, ErrSessionDead)
}

// IsWaitTimeout reports whether err is an element-wait timeout.
func IsWaitTimeout(err error) bool {
	return errors.Is(err, ErrWaitTimeout)
}
