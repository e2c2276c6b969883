//go:generate go run go.uber.org/mock/mockgen -source=handle.go -destination=../mocks/mock_handle.go -package=mocks
package hub

import "errors"

// ErrDeliveryFailed is returned by a Handle that can no longer receive.
var ErrDeliveryFailed = errors.New("delivery failed")

// Handle is the capability the hub holds for one connected client.
//
// Deliver hands one encoded outbound frame to the client. A non-nil error
// means the client is gone; the hub does not look at the cause and evicts
// the handle. Deliver must return in bounded time: a slow client has to be
// turned into an error by the implementation, never into a blocked hub.
//
// Any type may implement Handle. With Options.VerifyChatter the hub finds the
// sender of a chat by comparing handles, so a handle whose value is not
// comparable (a func or a struct holding a slice) is never recognized as
// logged in and its chats are dropped. Pointer types are always recognized.
type Handle interface {
	Deliver(payload []byte) error
}
