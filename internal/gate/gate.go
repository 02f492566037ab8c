// Package gate decides, for one endpoint and one probe result, whether a
// notification is due and how the failure record must change.
package gate

import "github.com/hazz-dev/portwatch/internal/checker"

// Alert is the notification a decision asks for.
type Alert int

const (
	AlertNone Alert = iota
	AlertDown
	AlertRecovered
)

func (a Alert) String() string {
	switch a {
	case AlertDown:
		return "down"
	case AlertRecovered:
		return "recovered"
	default:
		return "none"
	}
}

// StateAction is the change a decision asks of the failure store.
type StateAction int

const (
	StateNone StateAction = iota
	StateRecordFailure
	StateClear
)

func (s StateAction) String() string {
	switch s {
	case StateRecordFailure:
		return "record_failure"
	case StateClear:
		return "clear"
	default:
		return "none"
	}
}

// Decision is the outcome of Decide.
type Decision struct {
	Alert Alert
	State StateAction
	// NewCount is the failure count once State has been applied.
	NewCount int
}

// Decide maps the previous consecutive failure count (0 when no record
// exists), the current probe status and the alert threshold to a Decision.
//
// A down alert fires only when the count first equals threshold, so a streak
// produces at most one, however long it lasts. Counts only grow or reset,
// which keeps that true across restarts.
func Decide(previousCount int, status checker.Status, threshold int) Decision {
	if previousCount < 0 {
		previousCount = 0
	}
	if status == checker.StatusUp {
		if previousCount > 0 {
			return Decision{Alert: AlertRecovered, State: StateClear}
		}
		return Decision{}
	}

	d := Decision{State: StateRecordFailure, NewCount: previousCount + 1}
	if d.NewCount == threshold {
		d.Alert = AlertDown
	}
	return d
}
