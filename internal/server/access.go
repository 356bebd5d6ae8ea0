package server

import (
	"encoding/json"
	"strings"

	"github.com/edulink/classchat/internal/database"
	"github.com/edulink/classchat/internal/types"
)

// normalizeList canonicalizes a stored membership field. Older admin
// tooling wrote comma-separated strings, newer tooling writes JSON arrays;
// both survive in tenant databases, so the shape is resolved here and
// nowhere else.
func normalizeList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if strings.HasPrefix(raw, "[") {
		var list []string
		if err := json.Unmarshal([]byte(raw), &list); err == nil {
			return trimList(list)
		}
	}

	return trimList(strings.Split(raw, ","))
}

func trimList(list []string) []string {
	var out []string
	for _, item := range list {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}

	return out
}

func listContains(list []string, candidates ...string) bool {
	for _, item := range list {
		for _, candidate := range candidates {
			if candidate != "" && strings.EqualFold(item, candidate) {
				return true
			}
		}
	}

	return false
}

// roomFromRecord converts a stored room into its wire form with membership
// lists normalized.
func roomFromRecord(rec database.RoomRecord) types.Room {
	return types.Room{
		Id:         rec.Id,
		Name:       rec.Name,
		Kind:       rec.Kind,
		Teachers:   normalizeList(rec.Teachers),
		Members:    normalizeList(rec.Members),
		ClassCodes: normalizeList(rec.ClassCodes),
		Groups:     normalizeList(rec.Groups),
		CreatedAt:  rec.CreatedAt,
	}
}

// visibleTo evaluates a room's membership policy for one identity.
// School admins see every room. Teachers see rooms listing them. Students
// see rooms listing them individually, or matching their class code, or
// intersecting their groups. No access means the room is omitted, never an
// error.
func visibleTo(identity types.Identity, room types.Room) bool {
	switch identity.Role {
	case types.RoleSchoolAdmin:
		return true
	case types.RoleTeacher:
		return listContains(room.Teachers, identity.UserId, identity.Username, identity.DisplayName)
	case types.RoleStudent:
		if listContains(room.Members, identity.UserId, identity.Username, identity.DisplayName) {
			return true
		}
		if identity.ClassCode != "" && listContains(room.ClassCodes, identity.ClassCode) {
			return true
		}
		return listContains(room.Groups, identity.Groups...)
	default:
		return false
	}
}

// RoomsVisibleTo lists the tenant's rooms the identity may enter.
func (cs *ChatServer) RoomsVisibleTo(identity types.Identity) ([]types.Room, error) {
	repo, err := cs.repo(identity.TenantId)
	if err != nil {
		return nil, asChatError(err)
	}

	records, err := repo.ListRooms()
	if err != nil {
		return nil, cs.storeErr(identity.TenantId, err)
	}

	rooms := make([]types.Room, 0, len(records))
	for _, rec := range records {
		room := roomFromRecord(rec)
		if visibleTo(identity, room) {
			rooms = append(rooms, room)
		}
	}

	return rooms, nil
}
