package session

import (
	"context"
	"time"
)

// PresenceStore mirrors registry membership to shared storage for scale-out visibility.
// The in-memory registry stays authoritative; store failures are logged only.
type PresenceStore interface {
	Register(ctx context.Context, id string, createdAt time.Time) error
	Remove(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}
