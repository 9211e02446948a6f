package lifecycle

// State is the session lifecycle state.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	WarningPending
	Expired
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case WarningPending:
		return "warning_pending"
	case Expired:
		return "expired"
	default:
		return "unauthenticated"
	}
}

// Active reports whether the state holds a live session.
func (s State) Active() bool {
	return s == Authenticated || s == WarningPending
}

// Causes recorded when a session ends.
const (
	CauseUser         = "user"         // explicit logout
	CauseExpired      = "expired"      // client-detected expiry
	CauseStale        = "stale"        // call attempted with a stale credential
	CauseUnauthorized = "unauthorized" // server answered 401
	CauseDeclined     = "declined"     // user declined to continue after the warning
)
