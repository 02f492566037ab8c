// Package alert delivers down and recovery notifications for endpoints.
package alert

import (
	"context"
	"fmt"

	"github.com/hazz-dev/portwatch/internal/config"
)

// Notifier sends one notification per call. Callers decide when a
// notification is due; a Notifier never deduplicates.
type Notifier interface {
	NotifyDown(ctx context.Context, ep config.Endpoint) error
	NotifyRecovered(ctx context.Context, ep config.Endpoint) error
}

// Kind is the state a notification reports.
type Kind string

const (
	KindDown Kind = "down"
	KindUp   Kind = "up"
)

// Subject returns the mail subject for a notification.
func Subject(ep config.Endpoint, kind Kind) string {
	return fmt.Sprintf("Port %d on Host %s is %s!", ep.Port, ep.Host, kind)
}

// Body returns the plain text message for a notification.
func Body(ep config.Endpoint, kind Kind) string {
	if kind == KindDown {
		return fmt.Sprintf("Port %d on Host %s is down! Please check your system!", ep.Port, ep.Host)
	}
	return fmt.Sprintf("Port %d on Host %s is up! Your system has recovered!", ep.Port, ep.Host)
}
