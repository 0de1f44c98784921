package chat

import (
	"time"
)

// wire types for the chat REST and socket surfaces.
// field names follow the server schemas exactly.

type Message struct {
	Id             Id            `json:"id"`
	Content        string        `json:"content,omitempty"`
	AuthorId       Id            `json:"author_id"`
	AuthorUsername string        `json:"author_username"`
	AuthorAvatar   string        `json:"author_avatar"`
	IsAdmin        bool          `json:"is_admin"`
	IsPinned       bool          `json:"is_pinned"`
	Attachments    []*Attachment `json:"attachments,omitempty"`
	Reactions      []*Reaction   `json:"reactions,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      *time.Time    `json:"updated_at,omitempty"`
	ReplyTo        *ReplyInfo    `json:"reply_to,omitempty"`
}

type ReplyInfo struct {
	Id             Id     `json:"id"`
	Content        string `json:"content,omitempty"`
	AuthorUsername string `json:"author_username"`
}

type Attachment struct {
	Type string `json:"type"`
	Url  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
	// storage key on the server, echoed back for admin delete
	ObjectName string `json:"object_name,omitempty"`
}

// grouped per-emoji view of a message's reactions.
// `Users` and `UserAvatars` are parallel, same length and order.
type Reaction struct {
	Emoji          string   `json:"emoji"`
	Count          int      `json:"count"`
	Users          []string `json:"users"`
	UserAvatars    []string `json:"user_avatars"`
	CustomEmojiUrl string   `json:"custom_emoji_url,omitempty"`
}

func (self *Reaction) HasUser(username string) bool {
	for _, user := range self.Users {
		if user == username {
			return true
		}
	}
	return false
}

type OnlineUser struct {
	UserId   Id     `json:"user_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	IsAdmin  bool   `json:"is_admin"`
	CanPost  bool   `json:"can_post"`
}

type CustomEmoji struct {
	Id   Id     `json:"id"`
	Name string `json:"name"`
	Url  string `json:"url"`
}

type Avatar struct {
	Id   string `json:"id"`
	Name string `json:"name"`
	Url  string `json:"url"`
}

// local user profile, held by the auth collaborator
type User struct {
	Id       Id     `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	IsAdmin  bool   `json:"is_admin"`
	CanPost  bool   `json:"can_post"`
}
