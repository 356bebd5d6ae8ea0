package database

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/edulink/classchat/internal/types"
)

// MemoryTenantRepository is an in-process TenantRepository with the same
// mutation semantics as the Postgres implementation. Every operation runs
// under one mutex, which stands in for the storage engine's atomicity.
// Used by tests and by local development without a database.
type MemoryTenantRepository struct {
	mu        sync.Mutex
	rooms     map[string]RoomRecord
	messages  map[string]*types.Message
	reads     map[string]map[string]struct{} // messageId -> set of userIds
	reactions map[string]map[string]reaction // messageId -> userId -> reaction
}

type reaction struct {
	name  string
	emoji string
}

func NewMemoryTenantRepository() *MemoryTenantRepository {
	return &MemoryTenantRepository{
		rooms:     make(map[string]RoomRecord),
		messages:  make(map[string]*types.Message),
		reads:     make(map[string]map[string]struct{}),
		reactions: make(map[string]map[string]reaction),
	}
}

func (m *MemoryTenantRepository) Ping() error { return nil }
func (m *MemoryTenantRepository) Close() error {
	return nil
}

func (m *MemoryTenantRepository) ListRooms() ([]RoomRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := make([]RoomRecord, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.Before(rooms[j].CreatedAt) })

	return rooms, nil
}

func (m *MemoryTenantRepository) GetRoom(id string) (RoomRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[id]
	if !ok {
		return RoomRecord{}, ErrNotFound
	}

	return r, nil
}

func (m *MemoryTenantRepository) CreateRoom(params CreateRoomParams) (RoomRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := RoomRecord{
		Id:         params.Id,
		Name:       params.Name,
		Kind:       params.Kind,
		Teachers:   params.Teachers,
		Members:    params.Members,
		ClassCodes: params.ClassCodes,
		Groups:     params.Groups,
		CreatedAt:  time.Now().UTC(),
	}
	m.rooms[r.Id] = r

	return r, nil
}

func (m *MemoryTenantRepository) CreateMessage(msg types.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := msg
	m.messages[msg.Id] = &stored

	return nil
}

func (m *MemoryTenantRepository) GetMessage(id string) (types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[id]
	if !ok {
		return types.Message{}, ErrNotFound
	}

	return m.view(msg), nil
}

func (m *MemoryTenantRepository) DeleteMessage(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.messages[id]; !ok {
		return ErrNotFound
	}
	delete(m.messages, id)
	delete(m.reads, id)
	delete(m.reactions, id)

	return nil
}

func (m *MemoryTenantRepository) UpdateMessageContent(id, senderId, content string, editedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[id]
	if !ok || msg.Sender.Id != senderId {
		return ErrNotFound
	}

	msg.Content = content
	msg.Edited = true
	t := editedAt
	msg.EditedAt = &t

	return nil
}

func (m *MemoryTenantRepository) ToggleReaction(messageId, emoji string, actor types.Reactor) (map[string][]types.Reactor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.messages[messageId]; !ok {
		return nil, ErrNotFound
	}

	byUser := m.reactions[messageId]
	if byUser == nil {
		byUser = make(map[string]reaction)
		m.reactions[messageId] = byUser
	}

	prior, had := byUser[actor.UserId]
	delete(byUser, actor.UserId)
	if !had || prior.emoji != emoji {
		byUser[actor.UserId] = reaction{name: actor.Name, emoji: emoji}
	}

	return m.reactionMap(messageId), nil
}

func (m *MemoryTenantRepository) MarkRead(roomId, userId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, msg := range m.messages {
		if msg.RoomId != roomId || msg.Sender.Id == userId {
			continue
		}
		set := m.reads[id]
		if set == nil {
			set = make(map[string]struct{})
			m.reads[id] = set
		}
		set[userId] = struct{}{}
	}

	return nil
}

func (m *MemoryTenantRepository) UnreadCount(roomId, userId string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int
	for id, msg := range m.messages {
		if msg.RoomId != roomId || msg.Sender.Id == userId {
			continue
		}
		if _, read := m.reads[id][userId]; !read {
			count++
		}
	}

	return count, nil
}

func (m *MemoryTenantRepository) UnreadCounts(userId string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int)
	for id, msg := range m.messages {
		if msg.Sender.Id == userId {
			continue
		}
		if _, read := m.reads[id][userId]; !read {
			counts[msg.RoomId]++
		}
	}

	return counts, nil
}

func (m *MemoryTenantRepository) PinMessage(messageId, pinnedBy string, pinnedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[messageId]
	if !ok {
		return ErrNotFound
	}
	if msg.Pinned {
		return nil
	}

	var pinnedCount int
	for _, other := range m.messages {
		if other.RoomId == msg.RoomId && other.Pinned {
			pinnedCount++
		}
	}
	if pinnedCount >= MaxPinnedPerRoom {
		return ErrPinLimit
	}

	msg.Pinned = true
	t := pinnedAt
	msg.PinnedAt = &t
	msg.PinnedBy = pinnedBy

	return nil
}

func (m *MemoryTenantRepository) UnpinMessage(messageId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[messageId]
	if !ok {
		return ErrNotFound
	}

	msg.Pinned = false
	msg.PinnedAt = nil
	msg.PinnedBy = ""

	return nil
}

func (m *MemoryTenantRepository) PinnedMessages(roomId string) ([]types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pinned []types.Message
	for _, msg := range m.messages {
		if msg.RoomId == roomId && msg.Pinned {
			pinned = append(pinned, m.view(msg))
		}
	}
	sort.Slice(pinned, func(i, j int) bool {
		return pinned[i].PinnedAt.After(*pinned[j].PinnedAt)
	})

	return pinned, nil
}

func (m *MemoryTenantRepository) Messages(roomId string, before time.Time, limit int) ([]types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var msgs []types.Message
	for _, msg := range m.messages {
		if msg.RoomId == roomId && msg.CreatedAt.Before(before) {
			msgs = append(msgs, m.view(msg))
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.After(msgs[j].CreatedAt) })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}

	return msgs, nil
}

func (m *MemoryTenantRepository) SearchMessages(roomId, query string, limit int) ([]types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	query = strings.ToLower(query)
	var msgs []types.Message
	for _, msg := range m.messages {
		if msg.RoomId == roomId && strings.Contains(strings.ToLower(msg.Content), query) {
			msgs = append(msgs, m.view(msg))
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.After(msgs[j].CreatedAt) })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}

	return msgs, nil
}

// view materializes a message with its read set and reaction map attached,
// detached from internal state.
func (m *MemoryTenantRepository) view(msg *types.Message) types.Message {
	out := *msg

	out.ReadBy = []string{}
	for userId := range m.reads[msg.Id] {
		out.ReadBy = append(out.ReadBy, userId)
	}
	sort.Strings(out.ReadBy)

	out.Reactions = m.reactionMap(msg.Id)

	return out
}

func (m *MemoryTenantRepository) reactionMap(messageId string) map[string][]types.Reactor {
	reactions := make(map[string][]types.Reactor)
	for userId, r := range m.reactions[messageId] {
		reactions[r.emoji] = append(reactions[r.emoji], types.Reactor{UserId: userId, Name: r.name})
	}
	for _, bucket := range reactions {
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].UserId < bucket[j].UserId })
	}

	return reactions
}
