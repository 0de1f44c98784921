package chat

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

// StateStore is the canonical in-memory model for one chat session:
// the loaded message window, the pinned view, presence, typing, and the
// emoji and avatar catalogs. One store is constructed per session and
// passed to the collaborators that need it. All writes go through the
// Reconciler; renderers only read.
//
// `messages` is the single authoritative map. The ordered views
// (`messageOrder`, `pinnedOrder`) hold ids and dereference into the map,
// so a message mutation is visible in every view at once.
type StateStore struct {
	mutex sync.Mutex

	messages     map[Id]*Message
	messageOrder []Id
	// most recently pinned first. every entry is a key of `messages`.
	pinnedOrder []Id

	onlineUsers []*OnlineUser
	onlineCount int

	typingOrder  []string
	typingTimers map[string]*time.Timer

	emojis     map[Id]*CustomEmoji
	emojiNames map[string]*CustomEmoji

	avatars []*Avatar

	updateMonitor *Monitor
}

func NewStateStore() *StateStore {
	return &StateStore{
		messages:      map[Id]*Message{},
		typingTimers:  map[string]*time.Timer{},
		emojis:        map[Id]*CustomEmoji{},
		emojiNames:    map[string]*CustomEmoji{},
		updateMonitor: NewMonitor(),
	}
}

// closed and reopened on every state change.
// renderers block on the channel and re-read on wake.
func (self *StateStore) UpdateMonitor() *Monitor {
	return self.updateMonitor
}

func (self *StateStore) update() {
	self.updateMonitor.NotifyAll()
}

func (self *StateStore) Messages() []*Message {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	out := make([]*Message, 0, len(self.messageOrder))
	for _, messageId := range self.messageOrder {
		out = append(out, self.messages[messageId])
	}
	return out
}

func (self *StateStore) Message(messageId Id) *Message {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.messages[messageId]
}

func (self *StateStore) MessageCount() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return len(self.messageOrder)
}

func (self *StateStore) PinnedMessages() []*Message {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	out := make([]*Message, 0, len(self.pinnedOrder))
	for _, messageId := range self.pinnedOrder {
		if message, ok := self.messages[messageId]; ok {
			out = append(out, message)
		}
	}
	return out
}

// the id of the oldest loaded message, used as the backfill cursor
func (self *StateStore) OldestMessageId() (Id, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if len(self.messageOrder) == 0 {
		return Id{}, false
	}
	return self.messageOrder[0], true
}

func (self *StateStore) OnlineUsers() []*OnlineUser {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return slices.Clone(self.onlineUsers)
}

func (self *StateStore) OnlineCount() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.onlineCount
}

func (self *StateStore) TypingUsers() []string {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return slices.Clone(self.typingOrder)
}

func (self *StateStore) Emojis() []*CustomEmoji {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	out := make([]*CustomEmoji, 0, len(self.emojis))
	for _, emoji := range self.emojis {
		out = append(out, emoji)
	}
	slices.SortFunc(out, func(a *CustomEmoji, b *CustomEmoji) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func (self *StateStore) EmojiByName(name string) *CustomEmoji {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.emojiNames[name]
}

func (self *StateStore) Avatars() []*Avatar {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return slices.Clone(self.avatars)
}

// resolves an avatar id against the catalog.
// full urls pass through, unknown ids fall back to the conventional path.
func (self *StateStore) AvatarUrl(avatarId string) string {
	if avatarId == "" {
		return "/avatars/default.png"
	}
	if strings.HasPrefix(avatarId, "http://") || strings.HasPrefix(avatarId, "https://") {
		return avatarId
	}

	self.mutex.Lock()
	defer self.mutex.Unlock()

	for _, avatar := range self.avatars {
		if avatar.Id == avatarId {
			if strings.HasPrefix(avatar.Url, "/") {
				return avatar.Url
			}
			return "/" + avatar.Url
		}
	}
	return "/avatars/" + avatarId + ".png"
}

// mutators below assume the caller holds `mutex`

func (self *StateStore) appendMessage(message *Message) {
	if _, ok := self.messages[message.Id]; ok {
		// duplicate delivery. keep the first copy.
		return
	}
	self.messages[message.Id] = message
	self.messageOrder = append(self.messageOrder, message.Id)
}

func (self *StateStore) removeMessage(messageId Id) {
	delete(self.messages, messageId)
	if i := slices.Index(self.messageOrder, messageId); 0 <= i {
		self.messageOrder = slices.Delete(self.messageOrder, i, i+1)
	}
	self.unpin(messageId)
}

func (self *StateStore) clearMessages() {
	self.messages = map[Id]*Message{}
	self.messageOrder = nil
	self.pinnedOrder = nil
}

func (self *StateStore) pin(messageId Id) {
	if slices.Contains(self.pinnedOrder, messageId) {
		return
	}
	self.pinnedOrder = append([]Id{messageId}, self.pinnedOrder...)
}

func (self *StateStore) unpin(messageId Id) {
	if i := slices.Index(self.pinnedOrder, messageId); 0 <= i {
		self.pinnedOrder = slices.Delete(self.pinnedOrder, i, i+1)
	}
}

func (self *StateStore) setOnline(users []*OnlineUser, count int) {
	self.onlineUsers = users
	self.onlineCount = count
}

func (self *StateStore) addOnline(user *OnlineUser) {
	for _, onlineUser := range self.onlineUsers {
		if onlineUser.UserId == user.UserId {
			return
		}
	}
	self.onlineUsers = append(self.onlineUsers, user)
}

func (self *StateStore) removeOnline(userId Id) {
	self.onlineUsers = slices.DeleteFunc(self.onlineUsers, func(user *OnlineUser) bool {
		return user.UserId == userId
	})
}

func (self *StateStore) addEmoji(emoji *CustomEmoji) {
	if previous, ok := self.emojis[emoji.Id]; ok {
		delete(self.emojiNames, previous.Name)
	}
	self.emojis[emoji.Id] = emoji
	self.emojiNames[emoji.Name] = emoji
}

func (self *StateStore) removeEmoji(emojiId Id) {
	if emoji, ok := self.emojis[emojiId]; ok {
		delete(self.emojis, emojiId)
		delete(self.emojiNames, emoji.Name)
	}
}

func (self *StateStore) setEmojis(emojis []*CustomEmoji) {
	self.emojis = map[Id]*CustomEmoji{}
	self.emojiNames = map[string]*CustomEmoji{}
	for _, emoji := range emojis {
		self.emojis[emoji.Id] = emoji
		self.emojiNames[emoji.Name] = emoji
	}
}

func (self *StateStore) setAvatars(avatars []*Avatar) {
	self.avatars = avatars
}

// called from the typing expiry timer
func (self *StateStore) expireTyping(username string) {
	self.mutex.Lock()
	if _, ok := self.typingTimers[username]; !ok {
		self.mutex.Unlock()
		return
	}
	delete(self.typingTimers, username)
	if i := slices.Index(self.typingOrder, username); 0 <= i {
		self.typingOrder = slices.Delete(self.typingOrder, i, i+1)
	}
	self.mutex.Unlock()

	self.update()
}

// stops pending typing timers. used on session teardown.
func (self *StateStore) Close() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	for username, timer := range self.typingTimers {
		timer.Stop()
		delete(self.typingTimers, username)
	}
	self.typingOrder = nil
}
