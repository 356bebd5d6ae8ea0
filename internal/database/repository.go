package database

import (
	"errors"
	"time"

	"github.com/edulink/classchat/internal/types"
)

var (
	// ErrNotFound is returned when a referenced message or room does not
	// exist in the tenant's store.
	ErrNotFound = errors.New("not found")
	// ErrPinLimit is returned when pinning would exceed the per-room cap.
	ErrPinLimit = errors.New("pin limit reached")
)

// MaxPinnedPerRoom is the per-room cap on pinned messages.
const MaxPinnedPerRoom = 3

// TenantRepository is the storage contract for a single tenant's database.
// Mutations that touch one message are atomic at the storage layer: the
// engine never holds its own per-message locks.
type TenantRepository interface {
	Ping() error

	ListRooms() ([]RoomRecord, error)
	GetRoom(id string) (RoomRecord, error)
	CreateRoom(params CreateRoomParams) (RoomRecord, error)

	CreateMessage(msg types.Message) error
	GetMessage(id string) (types.Message, error)
	DeleteMessage(id string) error
	// UpdateMessageContent edits a message in place, conditional on the
	// caller being the original sender. Returns ErrNotFound if no row
	// matched both the id and the sender.
	UpdateMessageContent(id, senderId, content string, editedAt time.Time) error

	// ToggleReaction removes the actor from every emoji bucket on the
	// message; if the removed bucket equals emoji the call is an un-react,
	// otherwise the actor is added to the emoji bucket. Runs in a single
	// transaction serialized on the message row. Returns the full
	// resulting reaction map.
	ToggleReaction(messageId, emoji string, actor types.Reactor) (map[string][]types.Reactor, error)

	// MarkRead idempotently adds userId to the read set of every message
	// in the room authored by someone else.
	MarkRead(roomId, userId string) error
	UnreadCount(roomId, userId string) (int, error)
	UnreadCounts(userId string) (map[string]int, error)

	PinMessage(messageId, pinnedBy string, pinnedAt time.Time) error
	UnpinMessage(messageId string) error
	PinnedMessages(roomId string) ([]types.Message, error)

	Messages(roomId string, before time.Time, limit int) ([]types.Message, error)
	SearchMessages(roomId, query string, limit int) ([]types.Message, error)

	Close() error
}
