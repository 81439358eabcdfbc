package portal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joshlzx/starswap/internal/browser"
)

// ErrBadCredentials is the terminal authentication failure. Its text is
// shown to the polling client verbatim.
var ErrBadCredentials = errors.New("Incorrect username/password. Please try again.")

// ErrPlanButtonMissing is returned when the timetable landing page has
// no "Plan/ Registration" control to click through.
var ErrPlanButtonMissing = errors.New("Unable to find or click the 'Plan/ Registration' button.")

// urlPollInterval is how often the login flow re-reads the location
// while waiting for the post-login redirect.
const urlPollInterval = 250 * time.Millisecond

// Login authenticates the session against the portal: submit username,
// submit password, wait for one of the two known landing pages, click
// through the intermediate "Plan/ Registration" control if the
// timetable page came up, then wait for the course table.
//
// A dead session passes through as-is so the caller can replace it; any
// other failure is terminal for the run and maps to a user-facing
// credentials error.
func Login(drv browser.Driver, cfg Config, username, password string) error {
	if err := drv.Navigate(cfg.LoginURL); err != nil {
		return loginFailure("navigating to login page", err)
	}

	if err := drv.WaitVisible(cfg.Locators.Get(StepUsernameField), cfg.ElementWait); err != nil {
		return loginFailure("waiting for username field", err)
	}
	if err := drv.SendKeys(cfg.Locators.Get(StepUsernameField), username); err != nil {
		return loginFailure("typing username", err)
	}
	if err := drv.Click(cfg.Locators.Get(StepLoginButton)); err != nil {
		return loginFailure("submitting username", err)
	}

	if err := drv.WaitVisible(cfg.Locators.Get(StepPasswordField), cfg.ElementWait); err != nil {
		return loginFailure("waiting for password field", err)
	}
	if err := drv.SendKeys(cfg.Locators.Get(StepPasswordField), password); err != nil {
		return loginFailure("typing password", err)
	}
	if err := drv.Click(cfg.Locators.Get(StepLoginButton)); err != nil {
		return loginFailure("submitting password", err)
	}

	landing, err := waitForLanding(drv, cfg)
	if err != nil {
		return loginFailure("waiting for post-login redirect", err)
	}

	if landing == cfg.TimetableURL {
		loc := cfg.Locators.Get(StepPlanRegistration)
		if err := drv.Click(loc); err != nil {
			if browser.IsSessionDead(err) {
				return err
			}
			slog.Warn("plan/registration click failed", "error", err)
			return ErrPlanButtonMissing
		}
	}

	if err := drv.WaitVisible(cfg.Locators.Get(StepCourseTable), cfg.ElementWait); err != nil {
		return loginFailure("waiting for course table", err)
	}
	return nil
}

// waitForLanding polls the current URL until it matches one of the two
// known landing pages or the element wait elapses.
func waitForLanding(drv browser.Driver, cfg Config) (string, error) {
	deadline := time.Now().Add(cfg.ElementWait)
	for {
		url, err := drv.CurrentURL()
		if err != nil {
			return "", err
		}
		if url == cfg.PlannerURL || url == cfg.TimetableURL {
			return url, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("unexpected post-login page %q: %w", url, browser.ErrWaitTimeout)
		}
		time.Sleep(urlPollInterval)
	}
}

// loginFailure preserves session-death for the caller and downgrades
// everything else to the credentials error the client sees.
func loginFailure(stage string, err error) error {
	if browser.IsSessionDead(err) {
		return fmt.Errorf("%s: %w", stage, err)
	}
	slog.Warn("login failed", "stage", stage, "error", err)
	return ErrBadCredentials
}
