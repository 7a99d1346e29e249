package storage

import (
	"context"
	"time"

	"focusgate/internal/core"
)

// Storage is the ledger plus the lifecycle hooks the server needs
type Storage interface {
	core.LedgerStore

	// AddExtraTime grants extra time on top of an app's daily limit for today
	AddExtraTime(ctx context.Context, packageName string, extra time.Duration) error

	// Ping checks that the database answers
	Ping(ctx context.Context) error
	Close() error
}
