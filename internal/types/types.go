package types

import (
	"time"
)

type Role string

const (
	RoleStudent     Role = "student"
	RoleTeacher     Role = "teacher"
	RoleSchoolAdmin Role = "school-admin"
)

// Identity is the verified result of credential resolution. It is created
// once per connection attempt and never mutated for the connection lifetime.
type Identity struct {
	UserId      string   `json:"user_id"`
	TenantId    string   `json:"tenant_id"`
	Role        Role     `json:"role"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name"`
	ClassCode   string   `json:"class_code,omitempty"`
	Groups      []string `json:"groups,omitempty"`
}

type Sender struct {
	Id   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

type Attachment struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	SizeBytes    int64  `json:"size_bytes"`
	MimeType     string `json:"mime_type"`
	Url          string `json:"url"`
	IsImage      bool   `json:"is_image"`
	IsAudio      bool   `json:"is_audio"`
}

type ReplyRef struct {
	Id            string `json:"id"`
	Content       string `json:"content"`
	Sender        string `json:"sender"`
	HasAttachment bool   `json:"has_attachment"`
}

type Mention struct {
	Id       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
}

type Reactor struct {
	UserId string `json:"user_id"`
	Name   string `json:"name"`
}

type Message struct {
	Id         string               `json:"id"`
	RoomId     string               `json:"room_id"`
	TenantId   string               `json:"-"`
	Sender     Sender               `json:"sender"`
	Content    string               `json:"content"`
	Attachment *Attachment          `json:"attachment,omitempty"`
	ReplyTo    *ReplyRef            `json:"reply_to,omitempty"`
	Mentions   []Mention            `json:"mentions,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	Edited     bool                 `json:"edited"`
	EditedAt   *time.Time           `json:"edited_at,omitempty"`
	ReadBy     []string             `json:"read_by"`
	Reactions  map[string][]Reactor `json:"reactions"`
	Pinned     bool                 `json:"pinned"`
	PinnedAt   *time.Time           `json:"pinned_at,omitempty"`
	PinnedBy   string               `json:"pinned_by,omitempty"`
}

// Room is the wire form of a chatroom with its membership lists already
// normalized. The floating room is never represented here; it exists
// implicitly per tenant.
type Room struct {
	Id         string    `json:"id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	Teachers   []string  `json:"teachers,omitempty"`
	Members    []string  `json:"members,omitempty"`
	ClassCodes []string  `json:"class_codes,omitempty"`
	Groups     []string  `json:"groups,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// MessagePage is one descending page of room history. NextCursor is the
// timestamp of the oldest message returned and is passed back as "before"
// to fetch the next page.
type MessagePage struct {
	Messages   []Message  `json:"messages"`
	HasMore    bool       `json:"has_more"`
	NextCursor *time.Time `json:"next_cursor,omitempty"`
}
