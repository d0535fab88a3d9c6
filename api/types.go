package api

import (
	"context"

	"trello-api/domain"
)

// Authenticator is implemented by types able to extract user IDs from bearer tokens.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
	UserIDFromBearer([]byte) (string, error)
}

// TokenIssuer signs session tokens for locally registered users.
type TokenIssuer interface {
	IssueToken(userID string) (string, error)
}

// Deduper remembers which entity an idempotency key produced.
type Deduper interface {
	// Claim reserves key for userID. When the key is already taken it returns
	// false together with the entity id recorded for it, which is empty while
	// the first request is still running.
	Claim(ctx context.Context, userID, key string) (bool, string, error)
	// Complete records the entity created under a claimed key.
	Complete(ctx context.Context, userID, key, entityID string) error
	// Remove releases a claim so the request may be retried.
	Remove(ctx context.Context, userID, key string) error
}

// EventSink receives change events after a successful mutation.
type EventSink interface {
	Publish(ctx context.Context, events ...domain.Event) error
}

// Emitter hands events to background delivery. It never blocks the request.
type Emitter interface {
	Emit(events ...domain.Event) bool
}
