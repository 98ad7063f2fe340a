// Package notify delivers best-effort status messages about completed
// synchronizations. Delivery failures are logged and never propagate.
package notify

import (
	"context"

	"github.com/tssgery/pmm-dizquetv/internal/channelsync"
)

// Sink receives one message per terminal synchronization outcome plus the
// PMM run boundary signals. Implementations must not block the caller
// beyond their own delivery timeout and must never return delivery errors
// up the sync path.
type Sink interface {
	Notify(ctx context.Context, outcome channelsync.Outcome)
	RunSignal(ctx context.Context, message string)
}

// Nop is the sink used when no notification target is configured.
type Nop struct{}

func (Nop) Notify(context.Context, channelsync.Outcome) {}

func (Nop) RunSignal(context.Context, string) {}
