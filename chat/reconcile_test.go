package chat

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func newTestReconciler() (*StateStore, *Auth, *Reconciler) {
	store := NewStateStore()
	auth := NewAuth()
	reconciler := NewReconciler(store, auth)
	return store, auth, reconciler
}

func testMessage(content string) *Message {
	return &Message{
		Id:             NewId(),
		Content:        content,
		AuthorId:       NewId(),
		AuthorUsername: "dave",
		AuthorAvatar:   "a4",
		CreatedAt:      time.Now().UTC(),
	}
}

func assertReactionInvariants(t *testing.T, message *Message) {
	for _, reaction := range message.Reactions {
		assert.Equal(t, len(reaction.Users), len(reaction.UserAvatars))
		if reaction.Count <= 0 {
			t.Fatalf("reaction %s exists with count %d", reaction.Emoji, reaction.Count)
		}
	}
}

func TestReactionAddRemove(t *testing.T) {
	store, _, reconciler := newTestReconciler()

	message := testMessage("m1")
	reconciler.NewMessage(message)

	reconciler.ReactionAdded(&ReactionEvent{
		MessageId: message.Id,
		Emoji:     ":wave:",
		Username:  "alice",
		Avatar:    "a1",
	})

	loaded := store.Message(message.Id)
	assert.Equal(t, 1, len(loaded.Reactions))
	assert.Equal(t, ":wave:", loaded.Reactions[0].Emoji)
	assert.Equal(t, 1, loaded.Reactions[0].Count)
	assert.Equal(t, []string{"alice"}, loaded.Reactions[0].Users)
	assert.Equal(t, []string{"a1"}, loaded.Reactions[0].UserAvatars)
	assertReactionInvariants(t, loaded)

	reconciler.ReactionAdded(&ReactionEvent{
		MessageId: message.Id,
		Emoji:     ":wave:",
		Username:  "bob",
		Avatar:    "a2",
	})

	assert.Equal(t, 2, loaded.Reactions[0].Count)
	assert.Equal(t, []string{"alice", "bob"}, loaded.Reactions[0].Users)
	assert.Equal(t, []string{"a1", "a2"}, loaded.Reactions[0].UserAvatars)
	assertReactionInvariants(t, loaded)

	reconciler.ReactionRemoved(&ReactionEvent{
		MessageId: message.Id,
		Emoji:     ":wave:",
		Username:  "alice",
		Avatar:    "a1",
	})

	assert.Equal(t, 1, loaded.Reactions[0].Count)
	assert.Equal(t, []string{"bob"}, loaded.Reactions[0].Users)
	assert.Equal(t, []string{"a2"}, loaded.Reactions[0].UserAvatars)
	assertReactionInvariants(t, loaded)

	reconciler.ReactionRemoved(&ReactionEvent{
		MessageId: message.Id,
		Emoji:     ":wave:",
		Username:  "bob",
		Avatar:    "a2",
	})

	// the entry is removed, not zeroed
	assert.Equal(t, 0, len(store.Message(message.Id).Reactions))
}

func TestReactionDuplicateDelivery(t *testing.T) {
	store, _, reconciler := newTestReconciler()

	message := testMessage("m1")
	reconciler.NewMessage(message)

	event := &ReactionEvent{
		MessageId: message.Id,
		Emoji:     ":+1:",
		Username:  "alice",
		Avatar:    "a1",
	}
	reconciler.ReactionAdded(event)
	reconciler.ReactionAdded(event)

	loaded := store.Message(message.Id)
	assert.Equal(t, 1, loaded.Reactions[0].Count)
	assert.Equal(t, []string{"alice"}, loaded.Reactions[0].Users)
	assertReactionInvariants(t, loaded)

	// removing a user that never reacted changes nothing
	reconciler.ReactionRemoved(&ReactionEvent{
		MessageId: message.Id,
		Emoji:     ":+1:",
		Username:  "mallory",
	})
	assert.Equal(t, 1, loaded.Reactions[0].Count)
	assert.Equal(t, []string{"alice"}, loaded.Reactions[0].Users)
}

func TestReactionForUnloadedMessage(t *testing.T) {
	store, _, reconciler := newTestReconciler()

	reconciler.ReactionAdded(&ReactionEvent{
		MessageId: NewId(),
		Emoji:     ":wave:",
		Username:  "alice",
	})
	assert.Equal(t, 0, store.MessageCount())
}

func TestReactionVisibleInPinnedView(t *testing.T) {
	store, _, reconciler := newTestReconciler()

	message := testMessage("pin me")
	message.IsPinned = true
	reconciler.NewMessage(message)

	reconciler.ReactionAdded(&ReactionEvent{
		MessageId: message.Id,
		Emoji:     ":tada:",
		Username:  "alice",
		Avatar:    "a1",
	})

	// the pinned view dereferences the same object, so the reaction is
	// visible there without a second update
	pinned := store.PinnedMessages()
	assert.Equal(t, 1, len(pinned))
	assert.Equal(t, 1, len(pinned[0].Reactions))
	assert.Equal(t, 1, pinned[0].Reactions[0].Count)
}

func TestNewMessagePinnedPrepend(t *testing.T) {
	store, _, reconciler := newTestReconciler()

	first := testMessage("first")
	first.IsPinned = true
	second := testMessage("second")
	second.IsPinned = true
	reconciler.NewMessage(first)
	reconciler.NewMessage(second)

	// most recently pinned first
	pinned := store.PinnedMessages()
	assert.Equal(t, 2, len(pinned))
	assert.Equal(t, second.Id, pinned[0].Id)
	assert.Equal(t, first.Id, pinned[1].Id)
}

func TestMessageUniqueAcrossWindow(t *testing.T) {
	store, _, reconciler := newTestReconciler()

	message := testMessage("once")
	reconciler.NewMessage(message)
	reconciler.NewMessage(message)

	assert.Equal(t, 1, store.MessageCount())
}

func TestMessageDeleted(t *testing.T) {
	store, _, reconciler := newTestReconciler()

	message := testMessage("going away")
	message.IsPinned = true
	reconciler.NewMessage(message)
	assert.Equal(t, 1, store.MessageCount())
	assert.Equal(t, 1, len(store.PinnedMessages()))

	reconciler.MessageDeleted(&MessageDeletedEvent{MessageId: message.Id})
	assert.Equal(t, 0, store.MessageCount())
	assert.Equal(t, 0, len(store.PinnedMessages()))

	// already deleted, no-op
	reconciler.MessageDeleted(&MessageDeletedEvent{MessageId: message.Id})
	assert.Equal(t, 0, store.MessageCount())
}

func TestChatCleared(t *testing.T) {
	store, _, reconciler := newTestReconciler()

	for i := 0; i < 10; i += 1 {
		message := testMessage("m")
		message.IsPinned = i%2 == 0
		reconciler.NewMessage(message)
	}
	assert.Equal(t, 10, store.MessageCount())

	reconciler.ChatCleared()
	assert.Equal(t, 0, store.MessageCount())
	assert.Equal(t, 0, len(store.PinnedMessages()))
}

func TestMessagePinnedUpdate(t *testing.T) {
	store, _, reconciler := newTestReconciler()

	message := testMessage("pinnable")
	reconciler.NewMessage(message)

	reconciler.MessagePinned(&MessagePinnedEvent{MessageId: message.Id, IsPinned: true})
	assert.Equal(t, true, store.Message(message.Id).IsPinned)
	assert.Equal(t, 1, len(store.PinnedMessages()))

	// pinning twice does not duplicate the entry
	reconciler.MessagePinned(&MessagePinnedEvent{MessageId: message.Id, IsPinned: true})
	assert.Equal(t, 1, len(store.PinnedMessages()))

	reconciler.MessagePinned(&MessagePinnedEvent{MessageId: message.Id, IsPinned: false})
	assert.Equal(t, false, store.Message(message.Id).IsPinned)
	assert.Equal(t, 0, len(store.PinnedMessages()))
}

func TestMessagePinnedUnloaded(t *testing.T) {
	store, _, reconciler := newTestReconciler()

	// the pin-list add is skipped for a message outside the window
	reconciler.MessagePinned(&MessagePinnedEvent{MessageId: NewId(), IsPinned: true})
	assert.Equal(t, 0, len(store.PinnedMessages()))
}

func TestUserJoinIdempotent(t *testing.T) {
	store, _, reconciler := newTestReconciler()

	event := &UserJoinEvent{
		UserId:      NewId(),
		Username:    "alice",
		Avatar:      "a1",
		OnlineCount: 3,
	}
	reconciler.UserJoined(event)
	users := store.OnlineUsers()
	reconciler.UserJoined(event)

	assert.Equal(t, users, store.OnlineUsers())
	assert.Equal(t, 1, len(store.OnlineUsers()))
	assert.Equal(t, 3, store.OnlineCount())
}

func TestUserLeave(t *testing.T) {
	store, _, reconciler := newTestReconciler()

	userId := NewId()
	reconciler.UserJoined(&UserJoinEvent{UserId: userId, Username: "alice", OnlineCount: 2})
	reconciler.UserLeft(&UserLeaveEvent{UserId: userId, OnlineCount: 1})

	assert.Equal(t, 0, len(store.OnlineUsers()))
	assert.Equal(t, 1, store.OnlineCount())

	// already absent, the count still follows the payload
	reconciler.UserLeft(&UserLeaveEvent{UserId: userId, OnlineCount: 0})
	assert.Equal(t, 0, store.OnlineCount())
}

func TestTypingExpiry(t *testing.T) {
	store := NewStateStore()
	reconciler := NewReconcilerWithSettings(store, NewAuth(), &ReconcilerSettings{
		TypingTimeout: 50 * time.Millisecond,
	})

	reconciler.Typing(&TypingEvent{Username: "carol"})
	assert.Equal(t, []string{"carol"}, store.TypingUsers())

	// a repeat before expiry does not reschedule the timer
	time.Sleep(30 * time.Millisecond)
	reconciler.Typing(&TypingEvent{Username: "carol"})

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 0, len(store.TypingUsers()))
}

func TestUserAvatarChanged(t *testing.T) {
	store, _, reconciler := newTestReconciler()

	userId := NewId()
	reconciler.UserJoined(&UserJoinEvent{UserId: userId, Username: "alice", Avatar: "a1", OnlineCount: 1})
	reconciler.UserAvatarChanged(&UserAvatarChangedEvent{UserId: userId, Avatar: "a9"})
	assert.Equal(t, "a9", store.OnlineUsers()[0].Avatar)

	// not online, no-op
	reconciler.UserAvatarChanged(&UserAvatarChangedEvent{UserId: NewId(), Avatar: "a5"})
	assert.Equal(t, 1, len(store.OnlineUsers()))
}

func TestConnectedEvent(t *testing.T) {
	store, auth, reconciler := newTestReconciler()

	reconciler.Connected(&ConnectedEvent{
		OnlineUsers: []*OnlineUser{
			{UserId: NewId(), Username: "alice"},
			{UserId: NewId(), Username: "bob"},
		},
		OnlineCount: 2,
		Token:       "guest-token",
		UserId:      NewId(),
		Username:    "guest_42",
		Avatar:      "default",
		CanPost:     true,
	})

	assert.Equal(t, 2, len(store.OnlineUsers()))
	assert.Equal(t, 2, store.OnlineCount())
	// no token was held, so the socket-delivered one is adopted
	assert.Equal(t, "guest-token", auth.Token())
	// no local profile existed, so one is synthesized
	assert.Equal(t, "guest_42", auth.User().Username)
	assert.Equal(t, true, auth.User().CanPost)
}

func TestConnectedKeepsRicherProfile(t *testing.T) {
	store, auth, reconciler := newTestReconciler()

	auth.SetToken("held-token")
	auth.SetUser(&User{
		Id:       NewId(),
		Username: "alice",
		Avatar:   "a1",
		IsAdmin:  true,
		CanPost:  true,
	})

	reconciler.Connected(&ConnectedEvent{
		OnlineCount: 1,
		Token:       "other-token",
		Username:    "alice",
		CanPost:     false,
	})

	// a held token wins, and only the posting flag is merged
	assert.Equal(t, "held-token", auth.Token())
	assert.Equal(t, "alice", auth.User().Username)
	assert.Equal(t, true, auth.User().IsAdmin)
	assert.Equal(t, false, auth.User().CanPost)
	assert.Equal(t, 1, store.OnlineCount())
}

func TestCustomEmojiAddedRehydrates(t *testing.T) {
	store, _, reconciler := newTestReconciler()

	message := testMessage("m1")
	reconciler.NewMessage(message)
	reconciler.ReactionAdded(&ReactionEvent{
		MessageId: message.Id,
		Emoji:     "partyparrot",
		Username:  "alice",
		Avatar:    "a1",
	})
	assert.Equal(t, "", store.Message(message.Id).Reactions[0].CustomEmojiUrl)

	reconciler.CustomEmojiAdded(&CustomEmoji{
		Id:   NewId(),
		Name: "partyparrot",
		Url:  "/emojis/partyparrot.gif",
	})
	assert.Equal(t, "/emojis/partyparrot.gif", store.Message(message.Id).Reactions[0].CustomEmojiUrl)
}

func TestCustomEmojiRemovedNoPurge(t *testing.T) {
	store, _, reconciler := newTestReconciler()

	emoji := &CustomEmoji{
		Id:   NewId(),
		Name: "partyparrot",
		Url:  "/emojis/partyparrot.gif",
	}
	reconciler.CustomEmojiAdded(emoji)

	message := testMessage("m1")
	reconciler.NewMessage(message)
	reconciler.ReactionAdded(&ReactionEvent{
		MessageId: message.Id,
		Emoji:     "partyparrot",
		Username:  "alice",
		Avatar:    "a1",
	})
	assert.Equal(t, "/emojis/partyparrot.gif", store.Message(message.Id).Reactions[0].CustomEmojiUrl)

	// removal does not retroactively purge attached urls
	reconciler.CustomEmojiRemoved(&CustomEmojiRemovedEvent{EmojiId: emoji.Id})
	assert.Equal(t, nil, store.EmojiByName("partyparrot"))
	assert.Equal(t, "/emojis/partyparrot.gif", store.Message(message.Id).Reactions[0].CustomEmojiUrl)
}

func TestUpdateMonitorNotifies(t *testing.T) {
	store, _, reconciler := newTestReconciler()

	notify := store.UpdateMonitor().NotifyChannel()
	reconciler.NewMessage(testMessage("m1"))

	select {
	case <-notify:
	case <-time.After(1 * time.Second):
		t.Fatal("no update notification")
	}
}
