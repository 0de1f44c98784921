package chat

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestHydrateAttachesCatalogUrl(t *testing.T) {
	store, _, reconciler := newTestReconciler()
	hydrator := NewEmojiHydrator(store)

	reconciler.CustomEmojiAdded(&CustomEmoji{
		Id:   NewId(),
		Name: "blobcat",
		Url:  "/emojis/blobcat.png",
	})

	message := testMessage("m1")
	message.Reactions = []*Reaction{
		{Emoji: "blobcat", Count: 1, Users: []string{"alice"}, UserAvatars: []string{"a1"}},
		{Emoji: ":wave:", Count: 1, Users: []string{"bob"}, UserAvatars: []string{"a2"}},
	}

	hydrator.Hydrate(message)

	assert.Equal(t, "/emojis/blobcat.png", message.Reactions[0].CustomEmojiUrl)
	// a miss is not an error. the reaction stays usable without custom art.
	assert.Equal(t, "", message.Reactions[1].CustomEmojiUrl)
}

func TestHydrateKeepsAttachedUrl(t *testing.T) {
	store, _, reconciler := newTestReconciler()
	hydrator := NewEmojiHydrator(store)

	reconciler.CustomEmojiAdded(&CustomEmoji{
		Id:   NewId(),
		Name: "blobcat",
		Url:  "/emojis/blobcat-v2.png",
	})

	message := testMessage("m1")
	message.Reactions = []*Reaction{
		{Emoji: "blobcat", Count: 1, Users: []string{"alice"}, UserAvatars: []string{"a1"}, CustomEmojiUrl: "/emojis/blobcat-v1.png"},
	}

	hydrator.Hydrate(message)
	assert.Equal(t, "/emojis/blobcat-v1.png", message.Reactions[0].CustomEmojiUrl)
}

func TestHydrateOnRestIngestion(t *testing.T) {
	store, _, reconciler := newTestReconciler()

	reconciler.CustomEmojiAdded(&CustomEmoji{
		Id:   NewId(),
		Name: "blobcat",
		Url:  "/emojis/blobcat.png",
	})

	message := testMessage("m1")
	message.Reactions = []*Reaction{
		{Emoji: "blobcat", Count: 1, Users: []string{"alice"}, UserAvatars: []string{"a1"}},
	}
	reconciler.MergeInitialPage(&MessagePage{Messages: []*Message{message}})

	assert.Equal(t, "/emojis/blobcat.png", store.Message(message.Id).Reactions[0].CustomEmojiUrl)
}

func TestReactionEventCarriesUrl(t *testing.T) {
	store, _, reconciler := newTestReconciler()

	message := testMessage("m1")
	reconciler.NewMessage(message)

	// the event itself carries a resolved url. the catalog is not needed.
	reconciler.ReactionAdded(&ReactionEvent{
		MessageId:      message.Id,
		Emoji:          "blobcat",
		Username:       "alice",
		Avatar:         "a1",
		CustomEmojiUrl: "/emojis/blobcat.png",
	})
	assert.Equal(t, "/emojis/blobcat.png", store.Message(message.Id).Reactions[0].CustomEmojiUrl)
}
