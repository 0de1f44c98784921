package chat

import (
	"time"

	"github.com/golang/glog"

	"golang.org/x/exp/slices"
)

// the auth collaborator as seen from the reconciler.
// token acquisition and persistence live outside this package.
type SessionAuth interface {
	// a token carried on the connected payload, for sessions that opened
	// the socket without one
	HandleSessionToken(token string)
	User() *User
	SetUser(user *User)
}

type ReconcilerSettings struct {
	// how long a typing entry lives without an explicit removal signal.
	// this is a local timeout, not a server fact.
	TypingTimeout time.Duration
}

func DefaultReconcilerSettings() *ReconcilerSettings {
	return &ReconcilerSettings{
		TypingTimeout: 3 * time.Second,
	}
}

// Reconciler applies one incoming fact at a time, an event frame or a rest
// page, to the state store. it is the only writer. each apply holds the
// store mutex for the whole mutation, so the invariants hold at every
// point a reader can observe:
//   - a message id appears at most once in the window and at most once in
//     the pinned view
//   - reaction user and avatar lists stay parallel
//   - a reaction entry exists iff its count is positive
//   - every pinned id is present in the message map
type Reconciler struct {
	store    *StateStore
	auth     SessionAuth
	hydrator *EmojiHydrator

	settings *ReconcilerSettings
}

func NewReconciler(store *StateStore, auth SessionAuth) *Reconciler {
	return NewReconcilerWithSettings(store, auth, DefaultReconcilerSettings())
}

func NewReconcilerWithSettings(store *StateStore, auth SessionAuth, settings *ReconcilerSettings) *Reconciler {
	return &Reconciler{
		store:    store,
		auth:     auth,
		hydrator: NewEmojiHydrator(store),
		settings: settings,
	}
}

func (self *Reconciler) Connected(event *ConnectedEvent) {
	self.store.mutex.Lock()
	users := event.OnlineUsers
	if users == nil {
		users = []*OnlineUser{}
	}
	self.store.setOnline(users, event.OnlineCount)
	self.store.mutex.Unlock()

	if self.auth != nil {
		if event.Token != "" {
			self.auth.HandleSessionToken(event.Token)
		}
		if user := self.auth.User(); user == nil {
			self.auth.SetUser(&User{
				Id:       event.UserId,
				Username: event.Username,
				Avatar:   event.Avatar,
				IsAdmin:  event.IsAdmin,
				CanPost:  event.CanPost,
			})
		} else {
			// never overwrite a richer profile wholesale
			user.CanPost = event.CanPost
		}
	}

	self.store.update()
}

func (self *Reconciler) NewMessage(message *Message) {
	self.store.mutex.Lock()
	self.hydrator.hydrateLocked(message)
	self.store.appendMessage(message)
	if message.IsPinned {
		self.store.pin(message.Id)
	}
	self.store.mutex.Unlock()

	self.store.update()
}

func (self *Reconciler) MessageDeleted(event *MessageDeletedEvent) {
	self.store.mutex.Lock()
	// no-op if already deleted
	self.store.removeMessage(event.MessageId)
	self.store.mutex.Unlock()

	self.store.update()
}

func (self *Reconciler) ChatCleared() {
	self.store.mutex.Lock()
	self.store.clearMessages()
	self.store.mutex.Unlock()

	self.store.update()
}

func (self *Reconciler) MessagePinned(event *MessagePinnedEvent) {
	self.store.mutex.Lock()
	message, ok := self.store.messages[event.MessageId]
	if ok {
		message.IsPinned = event.IsPinned
	}
	if event.IsPinned {
		if ok {
			self.store.pin(event.MessageId)
		} else {
			// the message is outside the loaded window. not fatal.
			glog.Infof("[rc]pin skipped, message %s not loaded\n", event.MessageId)
		}
	} else {
		self.store.unpin(event.MessageId)
	}
	self.store.mutex.Unlock()

	self.store.update()
}

func (self *Reconciler) ReactionAdded(event *ReactionEvent) {
	self.store.mutex.Lock()
	message, ok := self.store.messages[event.MessageId]
	if !ok {
		self.store.mutex.Unlock()
		glog.V(2).Infof("[rc]reaction for unloaded message %s\n", event.MessageId)
		return
	}

	reaction := findReaction(message, event.Emoji)
	if reaction == nil {
		reaction = &Reaction{
			Emoji:       event.Emoji,
			Count:       1,
			Users:       []string{event.Username},
			UserAvatars: []string{event.Avatar},
		}
		message.Reactions = append(message.Reactions, reaction)
	} else if !reaction.HasUser(event.Username) {
		reaction.Count += 1
		reaction.Users = append(reaction.Users, event.Username)
		reaction.UserAvatars = append(reaction.UserAvatars, event.Avatar)
	}
	// else duplicate delivery. the presence check keeps the count honest.

	if event.CustomEmojiUrl != "" {
		reaction.CustomEmojiUrl = event.CustomEmojiUrl
	} else {
		self.hydrator.hydrateReactionLocked(reaction)
	}
	self.store.mutex.Unlock()

	self.store.update()
}

func (self *Reconciler) ReactionRemoved(event *ReactionEvent) {
	self.store.mutex.Lock()
	message, ok := self.store.messages[event.MessageId]
	if !ok {
		self.store.mutex.Unlock()
		glog.V(2).Infof("[rc]reaction for unloaded message %s\n", event.MessageId)
		return
	}

	if reaction := findReaction(message, event.Emoji); reaction != nil {
		for i, username := range reaction.Users {
			if username == event.Username {
				reaction.Count -= 1
				// remove from both parallel lists at the same index
				reaction.Users = append(reaction.Users[0:i], reaction.Users[i+1:]...)
				reaction.UserAvatars = append(reaction.UserAvatars[0:i], reaction.UserAvatars[i+1:]...)
				break
			}
		}
		if reaction.Count <= 0 {
			removeReaction(message, event.Emoji)
		}
	}
	self.store.mutex.Unlock()

	self.store.update()
}

func (self *Reconciler) UserJoined(event *UserJoinEvent) {
	self.store.mutex.Lock()
	// duplicate join events are idempotent
	self.store.addOnline(&OnlineUser{
		UserId:   event.UserId,
		Username: event.Username,
		Avatar:   event.Avatar,
		IsAdmin:  event.IsAdmin,
		CanPost:  event.CanPost,
	})
	self.store.onlineCount = event.OnlineCount
	self.store.mutex.Unlock()

	self.store.update()
}

func (self *Reconciler) UserLeft(event *UserLeaveEvent) {
	self.store.mutex.Lock()
	self.store.removeOnline(event.UserId)
	self.store.onlineCount = event.OnlineCount
	self.store.mutex.Unlock()

	self.store.update()
}

func (self *Reconciler) Typing(event *TypingEvent) {
	self.store.mutex.Lock()
	if _, ok := self.store.typingTimers[event.Username]; ok {
		// one timer per name. repeats do not reschedule.
		self.store.mutex.Unlock()
		return
	}
	username := event.Username
	self.store.typingOrder = append(self.store.typingOrder, username)
	self.store.typingTimers[username] = time.AfterFunc(self.settings.TypingTimeout, func() {
		self.store.expireTyping(username)
	})
	self.store.mutex.Unlock()

	self.store.update()
}

func (self *Reconciler) UserAvatarChanged(event *UserAvatarChangedEvent) {
	self.store.mutex.Lock()
	// no-op if the user is not online
	for _, user := range self.store.onlineUsers {
		if user.UserId == event.UserId {
			user.Avatar = event.Avatar
			break
		}
	}
	self.store.mutex.Unlock()

	self.store.update()
}

func (self *Reconciler) CustomEmojiAdded(emoji *CustomEmoji) {
	self.store.mutex.Lock()
	self.store.addEmoji(emoji)
	// re-hydrate reactions that were waiting on this name.
	// urls already attached are left alone.
	for _, message := range self.store.messages {
		for _, reaction := range message.Reactions {
			if reaction.Emoji == emoji.Name {
				self.hydrator.hydrateReactionLocked(reaction)
			}
		}
	}
	self.store.mutex.Unlock()

	self.store.update()
}

func (self *Reconciler) CustomEmojiRemoved(event *CustomEmojiRemovedEvent) {
	self.store.mutex.Lock()
	// urls already attached to reactions are not purged
	self.store.removeEmoji(event.EmojiId)
	self.store.mutex.Unlock()

	self.store.update()
}

// rest-page merges. the same reconciler serializes these with the event
// stream, so a page and a frame never interleave mid-mutation.

// wholesale replacement. only valid as the very first load.
func (self *Reconciler) MergeInitialPage(page *MessagePage) {
	self.store.mutex.Lock()
	self.store.clearMessages()
	for _, message := range page.Messages {
		self.hydrator.hydrateLocked(message)
		self.store.appendMessage(message)
	}
	// the page delivers pinned messages most recently pinned first.
	// keep that order.
	for _, message := range page.PinnedMessages {
		if _, ok := self.store.messages[message.Id]; !ok {
			// pinned but older than the loaded window. keep it reachable
			// by id without splicing it into the window order.
			self.hydrator.hydrateLocked(message)
			self.store.messages[message.Id] = message
		}
		if !slices.Contains(self.store.pinnedOrder, message.Id) {
			self.store.pinnedOrder = append(self.store.pinnedOrder, message.Id)
		}
	}
	self.store.mutex.Unlock()

	self.store.update()
}

// prepends a strictly older page. relies on the server returning pages
// disjoint from the loaded window; ids already present keep their loaded
// copy and are not duplicated into the order.
func (self *Reconciler) MergeOlderPage(page *MessagePage) {
	self.store.mutex.Lock()
	olderOrder := []Id{}
	for _, message := range page.Messages {
		if _, ok := self.store.messages[message.Id]; !ok {
			self.hydrator.hydrateLocked(message)
			self.store.messages[message.Id] = message
		}
		if !slices.Contains(self.store.messageOrder, message.Id) {
			olderOrder = append(olderOrder, message.Id)
		}
	}
	self.store.messageOrder = append(olderOrder, self.store.messageOrder...)
	self.store.mutex.Unlock()

	self.store.update()
}

func (self *Reconciler) MergeEmojiCatalog(emojis []*CustomEmoji) {
	self.store.mutex.Lock()
	self.store.setEmojis(emojis)
	for _, message := range self.store.messages {
		self.hydrator.hydrateLocked(message)
	}
	self.store.mutex.Unlock()

	self.store.update()
}

func (self *Reconciler) MergeAvatarCatalog(avatars []*Avatar) {
	self.store.mutex.Lock()
	self.store.setAvatars(avatars)
	self.store.mutex.Unlock()

	self.store.update()
}

func findReaction(message *Message, emoji string) *Reaction {
	for _, reaction := range message.Reactions {
		if reaction.Emoji == emoji {
			return reaction
		}
	}
	return nil
}

func removeReaction(message *Message, emoji string) {
	reactions := []*Reaction{}
	for _, reaction := range message.Reactions {
		if reaction.Emoji != emoji {
			reactions = append(reactions, reaction)
		}
	}
	message.Reactions = reactions
}
