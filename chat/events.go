package chat

import (
	"encoding/json"
	"fmt"

	"github.com/golang/glog"
)

// one frame on the socket is one json object `{type, data}`.
// the payload stays raw until the kind is known.
type Frame struct {
	Type EventKind       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type EventKind string

// inbound kinds. the reconcile switch handles every one of these.
const (
	EventConnected          EventKind = "connected"
	EventNewMessage         EventKind = "new_message"
	EventMessageDeleted     EventKind = "message_deleted"
	EventChatCleared        EventKind = "chat_cleared"
	EventMessagePinned      EventKind = "message_pinned_update"
	EventReactionAdded      EventKind = "reaction_added"
	EventReactionRemoved    EventKind = "reaction_removed"
	EventUserJoin           EventKind = "user_join"
	EventUserLeave          EventKind = "user_leave"
	EventTyping             EventKind = "typing"
	EventUserAvatarChanged  EventKind = "user_avatar_changed"
	EventCustomEmojiAdded   EventKind = "custom_emoji_added"
	EventCustomEmojiRemoved EventKind = "custom_emoji_removed"
)

// outbound kinds
const (
	EventSendTyping   EventKind = "typing"
	EventUpdateAvatar EventKind = "update_avatar"
)

type ConnectedEvent struct {
	OnlineUsers []*OnlineUser `json:"online_users"`
	OnlineCount int           `json:"online_count"`
	Token       string        `json:"token,omitempty"`
	UserId      Id            `json:"user_id"`
	Username    string        `json:"username"`
	Avatar      string        `json:"avatar"`
	IsAdmin     bool          `json:"is_admin"`
	CanPost     bool          `json:"can_post"`
}

type MessageDeletedEvent struct {
	MessageId Id `json:"message_id"`
}

type MessagePinnedEvent struct {
	MessageId Id   `json:"message_id"`
	IsPinned  bool `json:"is_pinned"`
}

type ReactionEvent struct {
	MessageId      Id     `json:"message_id"`
	Emoji          string `json:"emoji"`
	Username       string `json:"username"`
	Avatar         string `json:"avatar"`
	CustomEmojiUrl string `json:"custom_emoji_url,omitempty"`
}

type UserJoinEvent struct {
	UserId      Id     `json:"user_id"`
	Username    string `json:"username"`
	Avatar      string `json:"avatar"`
	IsAdmin     bool   `json:"is_admin"`
	CanPost     bool   `json:"can_post"`
	OnlineCount int    `json:"online_count"`
}

type UserLeaveEvent struct {
	UserId      Id  `json:"user_id"`
	OnlineCount int `json:"online_count"`
}

type TypingEvent struct {
	Username string `json:"username"`
}

type UserAvatarChangedEvent struct {
	UserId Id     `json:"user_id"`
	Avatar string `json:"avatar"`
}

type CustomEmojiRemovedEvent struct {
	EmojiId Id `json:"emoji_id"`
}

// decodes one frame and applies it through the reconciler.
// an unknown kind is ignored. a payload that does not decode for a known
// kind is an error to the owning read loop; the frame is dropped there and
// the stream continues.
type Router struct {
	reconciler *Reconciler
}

func NewRouter(reconciler *Reconciler) *Router {
	return &Router{
		reconciler: reconciler,
	}
}

func (self *Router) Route(frameBytes []byte) error {
	var frame Frame
	if err := json.Unmarshal(frameBytes, &frame); err != nil {
		return fmt.Errorf("bad frame: %w", err)
	}
	return self.RouteFrame(&frame)
}

// one frame yields exactly one reconciler call
func (self *Router) RouteFrame(frame *Frame) error {
	switch frame.Type {
	case EventConnected:
		var event ConnectedEvent
		if err := json.Unmarshal(frame.Data, &event); err != nil {
			return fmt.Errorf("bad %s payload: %w", frame.Type, err)
		}
		self.reconciler.Connected(&event)
	case EventNewMessage:
		var message Message
		if err := json.Unmarshal(frame.Data, &message); err != nil {
			return fmt.Errorf("bad %s payload: %w", frame.Type, err)
		}
		self.reconciler.NewMessage(&message)
	case EventMessageDeleted:
		var event MessageDeletedEvent
		if err := json.Unmarshal(frame.Data, &event); err != nil {
			return fmt.Errorf("bad %s payload: %w", frame.Type, err)
		}
		self.reconciler.MessageDeleted(&event)
	case EventChatCleared:
		self.reconciler.ChatCleared()
	case EventMessagePinned:
		var event MessagePinnedEvent
		if err := json.Unmarshal(frame.Data, &event); err != nil {
			return fmt.Errorf("bad %s payload: %w", frame.Type, err)
		}
		self.reconciler.MessagePinned(&event)
	case EventReactionAdded:
		var event ReactionEvent
		if err := json.Unmarshal(frame.Data, &event); err != nil {
			return fmt.Errorf("bad %s payload: %w", frame.Type, err)
		}
		self.reconciler.ReactionAdded(&event)
	case EventReactionRemoved:
		var event ReactionEvent
		if err := json.Unmarshal(frame.Data, &event); err != nil {
			return fmt.Errorf("bad %s payload: %w", frame.Type, err)
		}
		self.reconciler.ReactionRemoved(&event)
	case EventUserJoin:
		var event UserJoinEvent
		if err := json.Unmarshal(frame.Data, &event); err != nil {
			return fmt.Errorf("bad %s payload: %w", frame.Type, err)
		}
		self.reconciler.UserJoined(&event)
	case EventUserLeave:
		var event UserLeaveEvent
		if err := json.Unmarshal(frame.Data, &event); err != nil {
			return fmt.Errorf("bad %s payload: %w", frame.Type, err)
		}
		self.reconciler.UserLeft(&event)
	case EventTyping:
		var event TypingEvent
		if err := json.Unmarshal(frame.Data, &event); err != nil {
			return fmt.Errorf("bad %s payload: %w", frame.Type, err)
		}
		self.reconciler.Typing(&event)
	case EventUserAvatarChanged:
		var event UserAvatarChangedEvent
		if err := json.Unmarshal(frame.Data, &event); err != nil {
			return fmt.Errorf("bad %s payload: %w", frame.Type, err)
		}
		self.reconciler.UserAvatarChanged(&event)
	case EventCustomEmojiAdded:
		var emoji CustomEmoji
		if err := json.Unmarshal(frame.Data, &emoji); err != nil {
			return fmt.Errorf("bad %s payload: %w", frame.Type, err)
		}
		self.reconciler.CustomEmojiAdded(&emoji)
	case EventCustomEmojiRemoved:
		var event CustomEmojiRemovedEvent
		if err := json.Unmarshal(frame.Data, &event); err != nil {
			return fmt.Errorf("bad %s payload: %w", frame.Type, err)
		}
		self.reconciler.CustomEmojiRemoved(&event)
	default:
		// not an error. newer servers emit kinds this client does not know.
		glog.V(2).Infof("[r]ignore unknown kind %s\n", frame.Type)
	}
	return nil
}
