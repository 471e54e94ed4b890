// Package notify delivers alert notifications to external transports.
package notify

import (
	"context"
	"time"

	"go.uber.org/multierr"
)

// Alert is an approved alert event.
type Alert struct {
	RunID        string    `json:"run_id"`
	TimestampMs  int64     `json:"timestamp_ms"`
	Objects      []string  `json:"objects"`
	EvidencePath string    `json:"evidence_path,omitempty"`
	Time         time.Time `json:"time"`
}

// Notifier sends an alert. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Nop discards alerts.
type Nop struct{}

func (Nop) Notify(context.Context, Alert) error { return nil }

// Multi fans an alert out to every notifier and combines their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, alert Alert) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.Notify(ctx, alert))
	}
	return err
}

// Closer is implemented by notifiers holding connections.
type Closer interface {
	Close() error
}

// Close releases every notifier that holds resources.
func (m Multi) Close() error {
	var err error
	for _, n := range m {
		if c, ok := n.(Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
