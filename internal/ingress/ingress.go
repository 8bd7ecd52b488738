// Package ingress defines the collaborator interface the gateway's
// core consumes to talk to whatever chat surface is in front of it.
// A real Telegram Bot API adapter is out of scope here; this package
// is the contract plus a minimal in-memory double for wiring tests.
package ingress

import "context"

// FileHandle identifies an uploaded document to be fetched lazily.
type FileHandle string

// Ingress is the boundary between the gateway's core pipeline and
// whatever delivers/receives chat messages. Implementations must be
// best-effort on sends: failures are logged by the implementation,
// never surfaced back into a Job.
type Ingress interface {
	SendText(ctx context.Context, chatID int64, text string) error
	EditText(ctx context.Context, messageHandle string, text string) error
	SendFile(ctx context.Context, chatID int64, path, filename string) error
	FetchBytes(ctx context.Context, handle FileHandle) ([]byte, error)
}

// Handler is implemented by the core pipeline and driven by an
// Ingress adapter as chat events arrive.
type Handler interface {
	OnText(ctx context.Context, userID, chatID int64, text string)
	OnDocument(ctx context.Context, userID, chatID int64, handle FileHandle)
}

// VisibilityFilter decides whether an incoming chat event should
// reach the Handler at all. When PrivateOnly is set, non-private
// chats are silently ignored, per the ingress adapter's visibility
// guarantee.
type VisibilityFilter struct {
	PrivateOnly bool
}

// Allow reports whether an event from a chat of the given kind should
// be delivered to the handler.
func (f VisibilityFilter) Allow(isPrivateChat bool) bool {
	if f.PrivateOnly {
		return isPrivateChat
	}
	return true
}
