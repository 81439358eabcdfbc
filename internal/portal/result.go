package portal

// Outcome classifies how a single swap attempt ended. The source of
// truth for control flow one level up: Retry means try the next
// candidate index, SessionDead means replace the browser session,
// PortalClosed and OldIndexMissing escalate past the attempt.
type Outcome int

const (
	// OutcomeSuccess: the index was changed; sole success exit.
	OutcomeSuccess Outcome = iota

	// OutcomeRetry: this candidate failed (no vacancy, not listed,
	// clash, parse error, page not ready); the next candidate or the
	// next pass may still succeed.
	OutcomeRetry

	// OutcomeOldIndexMissing: the currently enrolled index is not on
	// the listing page at all; no candidate for this module can work.
	OutcomeOldIndexMissing

	// OutcomePortalClosed: the portal rejected the operation globally
	// (outside operating hours); no attempt on any module can succeed.
	OutcomePortalClosed

	// OutcomeSessionDead: the browser session is unusable; discard it,
	// acquire a fresh one and re-authenticate before continuing.
	OutcomeSessionDead
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomeOldIndexMissing:
		return "old_index_missing"
	case OutcomePortalClosed:
		return "portal_closed"
	case OutcomeSessionDead:
		return "session_dead"
	default:
		return "unknown"
	}
}

// Result is the unified attempt result. Message is always a readable
// reason, including for the portal-closed exit.
type Result struct {
	Outcome Outcome
	Message string
}

func success(msg string) Result      { return Result{Outcome: OutcomeSuccess, Message: msg} }
func retry(msg string) Result        { return Result{Outcome: OutcomeRetry, Message: msg} }
func sessionDead(msg string) Result  { return Result{Outcome: OutcomeSessionDead, Message: msg} }
func portalClosed(msg string) Result { return Result{Outcome: OutcomePortalClosed, Message: msg} }
func oldIndexGone(msg string) Result { return Result{Outcome: OutcomeOldIndexMissing, Message: msg} }
