package database

import "time"

// RoomRecord is the stored form of a chatroom. The membership columns are
// kept exactly as written by older admin tooling: each may hold either a
// JSON array ("[\"7A\",\"7B\"]") or a legacy comma-separated string
// ("7A,7B"). They are normalized at the access-resolution boundary, not
// here.
type RoomRecord struct {
	Id         string
	Name       string
	Kind       string
	Teachers   string
	Members    string
	ClassCodes string
	Groups     string
	CreatedAt  time.Time
}

type CreateRoomParams struct {
	Id         string `json:"id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Teachers   string `json:"teachers"`
	Members    string `json:"members"`
	ClassCodes string `json:"class_codes"`
	Groups     string `json:"groups"`
}
