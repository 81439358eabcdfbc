// Package portal drives the university enrollment portal through its
// multi-page "change index" wizard: a login state machine, a per-attempt
// swap state machine, and the declarative locator table binding logical
// steps to site-specific selectors.
package portal

import (
	"fmt"
	"time"

	"github.com/joshlzx/starswap/internal/browser"
)

// Step names one logical element of the wizard. The mapping from step
// to locator is data, not code, so selector drift on the portal side is
// a configuration change.
type Step string

const (
	StepUsernameField    Step = "username_field"
	StepPasswordField    Step = "password_field"
	StepLoginButton      Step = "login_button"
	StepPlanRegistration Step = "plan_registration_button"
	StepCourseTable      Step = "course_table"
	StepOldIndexRadio    Step = "old_index_radio"
	StepOperationMenu    Step = "operation_menu"
	StepGoButton         Step = "go_button"
	StepSiteHeader       Step = "site_header"
	StepChangeIndexPage  Step = "change_index_page"
	StepNewIndexSelect   Step = "new_index_select"
	StepNewIndexOption   Step = "new_index_option"
	StepOKButton         Step = "ok_button"
	StepBackButton       Step = "back_button"
	StepConfirmForm      Step = "confirm_form"
	StepConfirmButton    Step = "confirm_button"
)

// changeIndexOperation is the value of the "change index" entry in the
// operation menu.
const changeIndexOperation = "C"

// Locators maps wizard steps to element locators.
type Locators map[Step]browser.Locator

// DefaultLocators returns the selector set for the current portal
// markup. StepOldIndexRadio and StepNewIndexOption carry a %s
// placeholder filled with the index number at attempt time.
func DefaultLocators() Locators {
	return Locators{
		StepUsernameField:    {Strategy: browser.ByID, Value: "UID"},
		StepPasswordField:    {Strategy: browser.ByID, Value: "PW"},
		StepLoginButton:      {Strategy: browser.ByXPath, Value: `//input[@value='OK']`},
		StepPlanRegistration: {Strategy: browser.ByXPath, Value: `//input[@value='Plan/ Registration']`},
		StepCourseTable:      {Strategy: browser.ByXPath, Value: `//table[@bordercolor='#E0E0E0']`},
		StepOldIndexRadio:    {Strategy: browser.ByXPath, Value: `//input[@type='radio' and @value='%s']`},
		StepOperationMenu:    {Strategy: browser.ByName, Value: "opt"},
		StepGoButton:         {Strategy: browser.ByXPath, Value: `//input[@type='submit' and @value='Go']`},
		StepSiteHeader:       {Strategy: browser.ByClass, Value: "site-header__body"},
		StepChangeIndexPage:  {Strategy: browser.ByName, Value: "AUS_STARS_MENU"},
		StepNewIndexSelect:   {Strategy: browser.ByName, Value: "new_index_nmbr"},
		StepNewIndexOption:   {Strategy: browser.ByXPath, Value: `//select[@name='new_index_nmbr']/option[@value='%s']`},
		StepOKButton:         {Strategy: browser.ByXPath, Value: `//input[@type='submit' and @value='OK']`},
		StepBackButton:       {Strategy: browser.ByXPath, Value: `//input[@type='submit' and @value='Back to Timetable']`},
		StepConfirmForm:      {Strategy: browser.ByXPath, Value: `//*[@id='top']/div/section[2]/div/div/form[1]`},
		StepConfirmButton:    {Strategy: browser.ByXPath, Value: `//input[@type='submit' and @value='Confirm to Change Index Number']`},
	}
}

// Get returns the locator for step.
func (l Locators) Get(step Step) browser.Locator {
	return l[step]
}

// Format returns the locator for a templated step with args substituted
// into its value.
func (l Locators) Format(step Step, args ...interface{}) browser.Locator {
	loc := l[step]
	loc.Value = fmt.Sprintf(loc.Value, args...)
	return loc
}

// Merge overlays non-zero entries from overrides onto l, returning a
// new table. Used to apply configured locator overrides without
// touching the defaults.
func (l Locators) Merge(overrides Locators) Locators {
	out := make(Locators, len(l))
	for k, v := range l {
		out[k] = v
	}
	for k, v := range overrides {
		if v.Value != "" {
			out[k] = v
		}
	}
	return out
}

// Config carries everything the state machines need besides the live
// session: portal URLs, the locator table, and wait ceilings.
type Config struct {
	// LoginURL is the portal's LDAP login entry point.
	LoginURL string

	// PlannerURL and TimetableURL are the two known post-login landing
	// pages.
	PlannerURL   string
	TimetableURL string

	// Locators is the step-to-selector table.
	Locators Locators

	// ElementWait bounds ordinary element waits. Default 10s.
	ElementWait time.Duration

	// DialogWait bounds the brief probe for native dialogs. Default 5s.
	DialogWait time.Duration
}

// DefaultConfig returns the production portal configuration.
func DefaultConfig() Config {
	return Config{
		LoginURL:     "https://wish.wis.ntu.edu.sg/pls/webexe/ldap_login.login?w_url=https://wish.wis.ntu.edu.sg/pls/webexe/aus_stars_planner.main",
		PlannerURL:   "https://wish.wis.ntu.edu.sg/pls/webexe/AUS_STARS_PLANNER.planner",
		TimetableURL: "https://wish.wis.ntu.edu.sg/pls/webexe/AUS_STARS_PLANNER.time_table",
		Locators:     DefaultLocators(),
		ElementWait:  10 * time.Second,
		DialogWait:   5 * time.Second,
	}
}
