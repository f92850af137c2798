// Package mirror implements the reconciliation algorithm that keeps the
// local ticket mirror consistent with remote list snapshots.
package mirror

import "strings"

// Remote ticket statuses.
const (
	StatusOpened     = "OPENED"
	StatusInProgress = "INPROGRESS"
	StatusAccepted   = "ACCEPTED"
	StatusRepair     = "REPAIR"
	StatusPostponed  = "POSTPONED"
	StatusCompleted  = "COMPLETED"
	StatusClosed     = "CLOSED"
	StatusCanceled   = "CANCELED"

	// StatusRemoved is the best-effort terminal status recorded when the
	// remote reports a mirrored ticket as gone (404).
	StatusRemoved = "REMOVED"
)

// terminalStatuses is the closed set of states from which no further
// remote transition is expected.
var terminalStatuses = map[string]bool{
	StatusClosed:    true,
	StatusCompleted: true,
	StatusCanceled:  true,
	StatusRemoved:   true,
}

// NormalizeStatus folds a remote status value to its canonical form.
func NormalizeStatus(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// IsTerminal reports whether the status justifies migration to history.
func IsTerminal(s string) bool {
	return terminalStatuses[NormalizeStatus(s)]
}
