package portal

import (
	"fmt"
	"log/slog"

	"github.com/joshlzx/starswap/internal/browser"
)

// ProgressFunc receives human-readable attempt progress for the ledger.
// success is true only on the sole success exit.
type ProgressFunc func(message string, success bool)

// portalClosedMessage is shown when the wizard rejects the operation
// outside operating hours.
const portalClosedMessage = "Portal is closed now. Please try again from 10:30am - 10:00pm."

// AttemptSwap drives one (oldIndex -> newIndex) transition through the
// change-index wizard on an authenticated session. The walk is linear
// with branch points:
//
//	listing page -> select old index -> choose "change index" -> submit
//	-> closed-portal dialog? -> change-index page -> validate candidate
//	and vacancy -> submit -> clash dialog? -> confirmation page ->
//	confirm -> accept result dialog.
//
// Every exit returns a Result with a readable reason; nothing panics
// out of here, and unexpected driver errors are downgraded to a retry
// of the next candidate.
func AttemptSwap(drv browser.Driver, cfg Config, oldIndex, newIndex string, progress ProgressFunc) Result {
	progress(fmt.Sprintf("Attempting to swap %s -> %s", oldIndex, newIndex), false)

	// 1. Listing page must be up before anything is clickable.
	if err := drv.WaitVisible(cfg.Locators.Get(StepCourseTable), cfg.ElementWait); err != nil {
		return classify(err, "course listing page did not load")
	}

	// 2. Row selector for the currently enrolled index.
	radio := cfg.Locators.Format(StepOldIndexRadio, oldIndex)
	if err := drv.WaitVisible(radio, cfg.ElementWait); err != nil {
		if browser.IsSessionDead(err) {
			return sessionDead("Session expired. Re-logging in...")
		}
		msg := fmt.Sprintf("Old index %s not found. Swap cannot proceed.", oldIndex)
		progress(msg, false)
		return oldIndexGone(msg)
	}
	if err := drv.Click(radio); err != nil {
		return classify(err, fmt.Sprintf("selecting old index %s", oldIndex))
	}

	// 3. Pick the "change index" operation and submit.
	if err := drv.SelectValue(cfg.Locators.Get(StepOperationMenu), changeIndexOperation); err != nil {
		return classify(err, "choosing change-index operation")
	}
	// The sticky header overlaps the submit row; hiding it is cosmetic.
	if err := drv.HideElement(cfg.Locators.Get(StepSiteHeader)); err != nil {
		slog.Debug("hiding site header failed", "error", err)
	}
	if err := drv.Click(cfg.Locators.Get(StepGoButton)); err != nil {
		return classify(err, "submitting change-index operation")
	}

	// 4. A native dialog here means the portal is closed for everyone.
	if drv.DialogPresent(cfg.DialogWait) {
		if text, err := drv.AcceptDialog(); err == nil {
			slog.Info("portal closed dialog", "text", text)
		}
		return portalClosed(portalClosedMessage)
	}

	// 5. Change-index wizard page.
	if err := drv.WaitVisible(cfg.Locators.Get(StepChangeIndexPage), cfg.ElementWait); err != nil {
		return classify(err, "change index page did not load")
	}

	// 6. Candidate must be listed and have vacancies.
	option := cfg.Locators.Format(StepNewIndexOption, newIndex)
	found, err := drv.Exists(option)
	if err != nil {
		return classify(err, fmt.Sprintf("checking new index %s", newIndex))
	}
	if !found {
		msg := fmt.Sprintf("New Index %s was not found in the dropdown options. Swap cannot proceed.", newIndex)
		progress(msg, false)
		return backOut(drv, cfg, newIndex, false, msg)
	}

	optionText, err := drv.Text(option)
	if err != nil {
		return classify(err, fmt.Sprintf("reading vacancy text for index %s", newIndex))
	}
	vacancies, err := ParseVacancy(optionText)
	if err != nil {
		msg := fmt.Sprintf("Failed to parse vacancies for index %s: %v", newIndex, err)
		progress(msg, false)
		return backOut(drv, cfg, newIndex, true, msg)
	}
	slog.Debug("vacancy parsed", "new_index", newIndex, "vacancies", vacancies)

	if err := drv.SelectValue(cfg.Locators.Get(StepNewIndexSelect), newIndex); err != nil {
		return classify(err, fmt.Sprintf("selecting new index %s", newIndex))
	}

	if vacancies <= 0 {
		msg := fmt.Sprintf("Index %s has no vacancies. Swap cannot proceed.", newIndex)
		progress(msg, false)
		return backOut(drv, cfg, newIndex, false, msg)
	}

	// 7. Confirm the candidate; a dialog here is a timetable clash.
	if err := drv.Click(cfg.Locators.Get(StepOKButton)); err != nil {
		return classify(err, "submitting new index selection")
	}
	if drv.DialogPresent(cfg.DialogWait) {
		text, _ := drv.AcceptDialog()
		if text == "" {
			text = fmt.Sprintf("Index %s clashes with an existing module.", newIndex)
		}
		progress(text, false)
		return backOut(drv, cfg, newIndex, false, text)
	}

	// 8. Final confirmation form.
	if err := drv.WaitVisible(cfg.Locators.Get(StepConfirmForm), cfg.ElementWait); err != nil {
		return classify(err, "confirmation page did not load")
	}
	if err := drv.Click(cfg.Locators.Get(StepConfirmButton)); err != nil {
		return classify(err, "confirming index change")
	}

	// 9. The result dialog is the sole success exit.
	if !drv.DialogPresent(cfg.ElementWait) {
		return retry(fmt.Sprintf("No confirmation dialog after changing %s -> %s.", oldIndex, newIndex))
	}
	if text, err := drv.AcceptDialog(); err == nil {
		slog.Info("swap confirmed", "old_index", oldIndex, "new_index", newIndex, "dialog", text)
	}

	msg := fmt.Sprintf("Successfully swapped %s -> %s", oldIndex, newIndex)
	progress(msg, true)
	return success(msg)
}

// backOut selects the candidate option when one exists, then navigates
// back to the timetable so the next attempt starts from the listing
// page. The back click failing is not worth more than a log line unless
// the session itself died.
func backOut(drv browser.Driver, cfg Config, newIndex string, selectFirst bool, msg string) Result {
	if selectFirst {
		if err := drv.SelectValue(cfg.Locators.Get(StepNewIndexSelect), newIndex); err != nil {
			if browser.IsSessionDead(err) {
				return sessionDead("Session expired. Re-logging in...")
			}
			slog.Debug("selecting option before back-out failed", "error", err)
		}
	}
	if err := drv.Click(cfg.Locators.Get(StepBackButton)); err != nil {
		if browser.IsSessionDead(err) {
			return sessionDead("Session expired. Re-logging in...")
		}
		slog.Warn("back to timetable failed", "error", err)
	}
	return retry(msg)
}

// classify maps a driver error to the attempt taxonomy: a dead session
// escalates for replacement, everything else retries the next
// candidate with the error text as the reason.
func classify(err error, context string) Result {
	if browser.IsSessionDead(err) {
		return sessionDead("Session expired. Re-logging in...")
	}
	return retry(fmt.Sprintf("%s: %v", context, err))
}
