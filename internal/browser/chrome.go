package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ErrCreate is returned when a Chrome session cannot be started at all
// (binary missing, crash on launch, resource exhaustion).
var ErrCreate = errors.New("browser: cannot start session")

// Options configures a Chrome session.
type Options struct {
	// ChromePath overrides the Chrome binary location. Empty means let
	// chromedp resolve it.
	ChromePath string

	// Headless runs Chrome without a display. Default true.
	Headless bool

	// WindowWidth and WindowHeight size the virtual window. The portal
	// renders incorrectly in small viewports.
	WindowWidth  int
	WindowHeight int
}

// DefaultOptions returns the production Chrome configuration.
func DefaultOptions() Options {
	return Options{
		Headless:     true,
		WindowWidth:  1920,
		WindowHeight: 1080,
	}
}

// Session is one live automated Chrome instance. A Session is owned by
// exactly one orchestration step at a time; the pool enforces mutual
// exclusion. Sessions are not safe for concurrent use.
type Session struct {
	ctx       context.Context
	cancel    context.CancelFunc
	allocStop context.CancelFunc

	dialogs chan string

	mu      sync.Mutex
	pending string
	hasDlg  bool
}

// NewSession launches a Chrome instance and attaches a dialog listener.
// Failure to launch wraps ErrCreate.
func NewSession(opts Options) (*Session, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{},
		chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-software-rasterizer", true),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
	)
	if opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromePath))
	}

	allocCtx, allocStop := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:       ctx,
		cancel:    cancel,
		allocStop: allocStop,
		dialogs:   make(chan string, 4),
	}

	// Native dialogs block the page until handled, so accept at the CDP
	// level immediately and hand the text to DialogPresent/AcceptDialog.
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		if dlg, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			select {
			case s.dialogs <- dlg.Message:
			default:
				slog.Warn("dropping unconsumed dialog", "text", dlg.Message)
			}
			go func() {
				if err := chromedp.Run(ctx, page.HandleJavaScriptDialog(true)); err != nil {
					slog.Warn("dismissing dialog failed", "error", err)
				}
			}()
		}
	})

	// Start the browser process now so launch failures surface here,
	// not on first navigation.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocStop()
		return nil, fmt.Errorf("%w: %v", ErrCreate, err)
	}

	return s, nil
}

// Close terminates the browser process. The session is unusable after.
func (s *Session) Close() {
	s.cancel()
	s.allocStop()
}

// Healthy reports whether the browser target is still reachable.
func (s *Session) Healthy() bool {
	return s.ctx.Err() == nil
}

func selectorFor(loc Locator) (string, chromedp.QueryOption, error) {
	switch loc.Strategy {
	case ByID:
		return "#" + loc.Value, chromedp.ByQuery, nil
	case ByName:
		return fmt.Sprintf(`[name=%q]`, loc.Value), chromedp.ByQuery, nil
	case ByClass:
		return "." + loc.Value, chromedp.ByQuery, nil
	case ByXPath:
		return loc.Value, chromedp.BySearch, nil
	default:
		return "", nil, fmt.Errorf("unknown locator strategy %q", loc.Strategy)
	}
}

// run executes actions against the session with an optional deadline.
func (s *Session) run(timeout time.Duration, actions ...chromedp.Action) error {
	ctx := s.ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return chromedp.Run(ctx, actions...)
}

// classify maps a raw chromedp error onto the package's error taxonomy.
// A dead browser context always wins over timeout.
func (s *Session) classify(err error, waiting bool) error {
	if err == nil {
		return nil
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrSessionDead, err)
	}
	if waiting && errors.Is(err, context.DeadlineExceeded) {
		return ErrWaitTimeout
	}
	return err
}

// Navigate loads url.
func (s *Session) Navigate(url string) error {
	err := s.run(30*time.Second, chromedp.Navigate(url))
	return s.classify(err, true)
}

// WaitVisible blocks until the element is present or timeout elapses.
func (s *Session) WaitVisible(loc Locator, timeout time.Duration) error {
	sel, by, err := selectorFor(loc)
	if err != nil {
		return err
	}
	return s.classify(s.run(timeout, chromedp.WaitReady(sel, by)), true)
}

// Exists reports whether the element is in the DOM right now.
func (s *Session) Exists(loc Locator) (bool, error) {
	sel, by, err := selectorFor(loc)
	if err != nil {
		return false, err
	}
	var nodes []*cdp.Node
	runErr := s.run(3*time.Second, chromedp.Nodes(sel, &nodes, by, chromedp.AtLeast(0)))
	if cErr := s.classify(runErr, false); cErr != nil {
		return false, cErr
	}
	return len(nodes) > 0, nil
}

// Click clicks the element.
func (s *Session) Click(loc Locator) error {
	sel, by, err := selectorFor(loc)
	if err != nil {
		return err
	}
	return s.classify(s.run(10*time.Second, chromedp.Click(sel, by)), false)
}

// SelectValue picks the option with the given value in a select control.
func (s *Session) SelectValue(loc Locator, value string) error {
	sel, by, err := selectorFor(loc)
	if err != nil {
		return err
	}
	return s.classify(s.run(10*time.Second, chromedp.SetValue(sel, value, by)), false)
}

// SendKeys types text into the element.
func (s *Session) SendKeys(loc Locator, text string) error {
	sel, by, err := selectorFor(loc)
	if err != nil {
		return err
	}
	return s.classify(s.run(10*time.Second, chromedp.SendKeys(sel, text, by)), false)
}

// Text returns the element's visible text.
func (s *Session) Text(loc Locator) (string, error) {
	sel, by, err := selectorFor(loc)
	if err != nil {
		return "", err
	}
	var out string
	runErr := s.run(10*time.Second, chromedp.Text(sel, &out, by))
	return out, s.classify(runErr, false)
}

// CurrentURL returns the page's current location.
func (s *Session) CurrentURL() (string, error) {
	var url string
	err := s.run(5*time.Second, chromedp.Location(&url))
	return url, s.classify(err, false)
}

// DialogPresent waits up to timeout for a native dialog. The dialog is
// already dismissed at the protocol level; its text is held for
// AcceptDialog.
func (s *Session) DialogPresent(timeout time.Duration) bool {
	s.mu.Lock()
	if s.hasDlg {
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	select {
	case text := <-s.dialogs:
		s.mu.Lock()
		s.pending = text
		s.hasDlg = true
		s.mu.Unlock()
		return true
	case <-time.After(timeout):
		return false
	case <-s.ctx.Done():
		return false
	}
}

// AcceptDialog consumes the pending dialog and returns its text.
func (s *Session) AcceptDialog() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasDlg {
		return "", errors.New("browser: no pending dialog")
	}
	text := s.pending
	s.pending = ""
	s.hasDlg = false
	return text, nil
}

// HideElement makes the element invisible. Used only to keep a sticky
// page header from intercepting clicks; failures are non-fatal.
func (s *Session) HideElement(loc Locator) error {
	sel, by, err := selectorFor(loc)
	if err != nil {
		return err
	}
	runErr := s.run(5*time.Second,
		chromedp.SetAttributeValue(sel, "style", "visibility: hidden", by))
	return s.classify(runErr, false)
}
